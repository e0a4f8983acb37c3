// Package export renders calculation records as CSV or JSON documents
// for download and record keeping.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/openclinical/klinscore/internal/domain"
)

// Record is the export view of a calculation: the contributing factors
// only, with zero-point entries dropped.
type Record struct {
	CalculationID  string              `json:"calculationId"`
	ScoreName      string              `json:"scoreName"`
	Total          int                 `json:"total"`
	Risk           string              `json:"risk,omitempty"`
	RiskLevel      domain.RiskLevel    `json:"riskLevel,omitempty"`
	Recommendation string              `json:"recommendation,omitempty"`
	Factors        []domain.FieldScore `json:"factors"`
	CreatedAt      time.Time           `json:"createdAt"`
}

// FromCalculation builds the export view of a record.
func FromCalculation(rec *domain.CalculationRecord) *Record {
	factors := make([]domain.FieldScore, 0, len(rec.FieldScores))
	for _, fs := range rec.FieldScores {
		if fs.Points == 0 {
			continue
		}
		factors = append(factors, fs)
	}

	return &Record{
		CalculationID:  rec.ID,
		ScoreName:      rec.ScoreName,
		Total:          rec.Total,
		Risk:           rec.Risk,
		RiskLevel:      rec.RiskLevel,
		Recommendation: rec.Recommendation,
		Factors:        factors,
		CreatedAt:      rec.CreatedAt,
	}
}

// ToCSV renders the record as a CSV document: a header block of
// field/value pairs followed by the factor breakdown.
func ToCSV(rec *Record) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	rows := [][]string{
		{"Field", "Value"},
		{"Score", rec.ScoreName},
		{"Calculation ID", rec.CalculationID},
		{"Total", strconv.Itoa(rec.Total)},
		{"Risk", rec.Risk},
		{"Recommendation", rec.Recommendation},
		{"Calculated At", rec.CreatedAt.UTC().Format(time.RFC3339)},
		{},
		{"Factor", "Points"},
	}
	for _, fs := range rec.Factors {
		label := fs.Label
		if label == "" {
			label = fs.Field
		}
		rows = append(rows, []string{label, strconv.Itoa(fs.Points)})
	}

	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("failed to write csv: %w", err)
	}
	return buf.Bytes(), nil
}

// ToJSON renders the record as an indented JSON document.
func ToJSON(rec *Record) ([]byte, error) {
	return json.MarshalIndent(rec, "", "  ")
}

// DefaultFilename builds a download filename from the score name and
// the export time, e.g. "curb-65_2026-08-28_1430.csv".
func DefaultFilename(scoreName, ext string, at time.Time) string {
	name := strings.ToLower(scoreName)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '_', r == '-':
			b.WriteByte('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = "score"
	}
	return fmt.Sprintf("%s_%s.%s", slug, at.UTC().Format("2006-01-02_1504"), ext)
}
