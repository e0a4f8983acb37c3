package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/openclinical/klinscore/internal/cache"
	"github.com/openclinical/klinscore/internal/domain"
	"github.com/openclinical/klinscore/internal/export"
	"github.com/openclinical/klinscore/internal/loader"
	"github.com/openclinical/klinscore/internal/score"
)

// usageWindow is the rolling window for per-score usage counters.
const usageWindow = 24 * time.Hour

// recordTTL is how long calculation records stay in the read-through
// cache.
const recordTTL = time.Hour

// Handler holds dependencies for API handlers.
type Handler struct {
	registry  *score.Registry
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	scoresDir string
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(registry *score.Registry, repo domain.Repository, c domain.Cache, bus domain.EventBus, scoresDir, version string) *Handler {
	return &Handler{
		registry:  registry,
		repo:      repo,
		cache:     c,
		bus:       bus,
		scoresDir: scoresDir,
		version:   version,
	}
}

// CalculateRequest is the request body for POST /scores/{id}/calculate.
type CalculateRequest struct {
	Inputs map[string]any `json:"inputs"`
}

// CalculateResponse is the response for a successful calculation.
type CalculateResponse struct {
	CalculationID  string                     `json:"calculationId"`
	ScoreID        string                     `json:"scoreId"`
	ScoreName      string                     `json:"scoreName"`
	Total          int                        `json:"total"`
	FieldScores    []domain.FieldScore        `json:"fieldScores"`
	Matched        *domain.InterpretationBand `json:"matched,omitempty"`
	RiskLevelColor string                     `json:"riskLevelColor,omitempty"`
	Metadata       struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// Calculate handles POST /scores/{id}/calculate.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	traceID := GetTraceID(ctx)
	scoreID := chi.URLParam(r, "id")

	cs, ok := h.registry.Get(scoreID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "score not found",
		})
		return
	}

	var req CalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.Inputs == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "inputs is required",
		})
		return
	}

	result, err := cs.Calculate(req.Inputs)
	if err != nil {
		writeCalculationError(w, err)
		return
	}

	// Persist and publish; the calculation result itself is already
	// final, so failures here degrade to a warning.
	rec := recordFromResult(cs.Definition, result, req.Inputs)
	if h.repo != nil {
		if err := h.repo.SaveCalculation(ctx, rec); err != nil {
			slog.Error("failed to save calculation", "calculation_id", rec.ID, "error", err)
		}
	}
	if h.cache != nil {
		if err := cache.SetRecord(ctx, h.cache, rec, recordTTL); err != nil {
			slog.Warn("failed to cache calculation", "calculation_id", rec.ID, "error", err)
		}
		if _, err := h.cache.IncrementCounter(ctx, "calc:"+scoreID, usageWindow); err != nil {
			slog.Warn("failed to increment usage counter", "score_id", scoreID, "error", err)
		}
	}
	if h.bus != nil {
		payload, _ := json.Marshal(rec)
		if err := h.bus.Publish(ctx, domain.TopicCalculationCompleted, payload); err != nil {
			slog.Error("failed to publish calculation event", "calculation_id", rec.ID, "error", err)
		}
	}

	resp := CalculateResponse{
		CalculationID: rec.ID,
		ScoreID:       result.ScoreID,
		ScoreName:     cs.Definition.Name,
		Total:         result.Total,
		FieldScores:   result.FieldScores,
		Matched:       result.Matched,
	}
	if result.Matched != nil {
		resp.RiskLevelColor = result.Matched.RiskLevel.Color()
	}
	resp.Metadata.TraceID = traceID
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// recordFromResult builds the persisted record for a calculation.
func recordFromResult(def *domain.ScoreDefinition, result *domain.CalculationResult, inputs map[string]any) *domain.CalculationRecord {
	rec := &domain.CalculationRecord{
		ID:          uuid.New().String(),
		ScoreID:     def.ID,
		ScoreName:   def.Name,
		Total:       result.Total,
		FieldScores: result.FieldScores,
		Inputs:      inputs,
		CreatedAt:   time.Now().UTC(),
	}
	if result.Matched != nil {
		rec.Risk = result.Matched.Risk
		rec.RiskLevel = result.Matched.RiskLevel
		rec.Recommendation = result.Matched.Recommendation
	}
	return rec
}

// writeCalculationError maps calculation input errors to a structured
// 400 response.
func writeCalculationError(w http.ResponseWriter, err error) {
	body := map[string]string{"error": err.Error()}

	var missing *domain.MissingFieldError
	var mismatch *domain.TypeMismatchError
	var rangeErr *domain.RangeError
	var option *domain.InvalidOptionError

	switch {
	case errors.As(err, &missing):
		body["kind"] = "missing_field"
		body["field"] = missing.Field
	case errors.As(err, &mismatch):
		body["kind"] = "type_mismatch"
		body["field"] = mismatch.Field
		body["expected"] = string(mismatch.Expected)
	case errors.As(err, &rangeErr):
		body["kind"] = "out_of_range"
		body["field"] = rangeErr.Field
	case errors.As(err, &option):
		body["kind"] = "invalid_option"
		body["field"] = option.Field
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "calculation failed",
		})
		return
	}

	writeJSON(w, http.StatusBadRequest, body)
}

// ListScores returns the score catalog, optionally filtered by
// specialty.
func (h *Handler) ListScores(w http.ResponseWriter, r *http.Request) {
	var defs []*domain.ScoreDefinition
	if specialty := r.URL.Query().Get("specialty"); specialty != "" {
		defs = h.registry.BySpecialty(specialty)
	} else {
		defs = h.registry.List()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"scores": defs,
		"count":  len(defs),
	})
}

// GetScore returns one score definition.
func (h *Handler) GetScore(w http.ResponseWriter, r *http.Request) {
	scoreID := chi.URLParam(r, "id")

	cs, ok := h.registry.Get(scoreID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "score not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, cs.Definition)
}

// ListSpecialties returns the distinct specialties in the catalog.
func (h *Handler) ListSpecialties(w http.ResponseWriter, r *http.Request) {
	specialties := h.registry.Specialties()
	writeJSON(w, http.StatusOK, map[string]any{
		"specialties": specialties,
		"count":       len(specialties),
	})
}

// GetCalculation retrieves a calculation record, trying the cache
// before the repository.
func (h *Handler) GetCalculation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	calcID := chi.URLParam(r, "id")

	if h.cache != nil {
		if rec, err := cache.GetRecord(ctx, h.cache, calcID); err == nil && rec != nil {
			writeJSON(w, http.StatusOK, rec)
			return
		}
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	rec, err := h.repo.GetCalculation(ctx, calcID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "calculation not found",
		})
		return
	}

	if h.cache != nil {
		_ = cache.SetRecord(ctx, h.cache, rec, recordTTL)
	}

	writeJSON(w, http.StatusOK, rec)
}

// ListCalculations returns recent calculation history.
func (h *Handler) ListCalculations(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	scoreID := r.URL.Query().Get("score")
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a positive integer",
			})
			return
		}
		limit = n
	}

	records, err := h.repo.ListCalculations(r.Context(), scoreID, limit)
	if err != nil {
		slog.Error("failed to list calculations", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list calculations",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"calculations": records,
		"count":        len(records),
	})
}

// ExportCalculation renders one calculation as CSV or JSON for
// download.
func (h *Handler) ExportCalculation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	calcID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	rec, err := h.repo.GetCalculation(ctx, calcID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "calculation not found",
		})
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}

	view := export.FromCalculation(rec)

	var data []byte
	var contentType string
	switch format {
	case "csv":
		data, err = export.ToCSV(view)
		contentType = "text/csv"
	case "json":
		data, err = export.ToJSON(view)
		contentType = "application/json"
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "format must be csv or json",
		})
		return
	}
	if err != nil {
		slog.Error("failed to export calculation", "calculation_id", calcID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "export failed",
		})
		return
	}

	filename := export.DefaultFilename(rec.ScoreName, format, time.Now())
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// ReloadScores re-reads the score directory and atomically replaces
// the catalog.
func (h *Handler) ReloadScores(w http.ResponseWriter, r *http.Request) {
	scores, skipped, err := loader.LoadDir(h.scoresDir, slog.Default())
	if err != nil {
		slog.Error("failed to reload scores", "dir", h.scoresDir, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload scores",
		})
		return
	}

	h.registry.Replace(scores)

	slog.Info("score catalog reloaded", "count", len(scores), "skipped", skipped)
	writeJSON(w, http.StatusOK, map[string]any{
		"loaded":  len(scores),
		"skipped": skipped,
	})
}

// ScoreUsage is the per-score usage entry for GET /stats.
type ScoreUsage struct {
	ScoreID string `json:"scoreId"`
	Name    string `json:"name"`
	Count   int64  `json:"count"`
}

// Stats returns catalog and usage statistics.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defs := h.registry.List()

	usage := make([]ScoreUsage, 0, len(defs))
	for _, def := range defs {
		entry := ScoreUsage{ScoreID: def.ID, Name: def.Name}
		if h.cache != nil {
			if n, err := h.cache.GetCounter(ctx, "calc:"+def.ID); err == nil {
				entry.Count = n
			}
		}
		usage = append(usage, entry)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"scores":      h.registry.Count(),
		"specialties": h.registry.Specialties(),
		"usage":       usage,
		"window":      usageWindow.String(),
		"version":     h.version,
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.registry.Count() == 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"ready": "false",
			"error": "no scores loaded",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
