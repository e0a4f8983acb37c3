package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/openclinical/klinscore/internal/domain"
)

func TestSQLiteRepository(t *testing.T) {
	// Create temp database file
	tmpFile, err := os.CreateTemp("", "klinscore-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	}

	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetCalculation", func(t *testing.T) {
		rec := &domain.CalculationRecord{
			ID:             "calc-001",
			ScoreID:        "cha2ds2_va",
			ScoreName:      "CHA2DS2-VA",
			Total:          3,
			Risk:           "High",
			RiskLevel:      domain.RiskHigh,
			Recommendation: "Anticoagulation recommended unless contraindicated",
			FieldScores: []domain.FieldScore{
				{Field: "age", Label: "Age", Points: 1},
				{Field: "heart_failure", Label: "Congestive heart failure", Points: 1},
				{Field: "hypertension", Label: "Hypertension", Points: 1},
			},
			Inputs:    map[string]any{"age": 72.0, "heart_failure": true, "hypertension": true},
			CreatedAt: time.Now().UTC(),
		}

		if err := repo.SaveCalculation(ctx, rec); err != nil {
			t.Fatalf("SaveCalculation failed: %v", err)
		}

		retrieved, err := repo.GetCalculation(ctx, rec.ID)
		if err != nil {
			t.Fatalf("GetCalculation failed: %v", err)
		}

		if retrieved.ScoreID != rec.ScoreID {
			t.Errorf("expected ScoreID %s, got %s", rec.ScoreID, retrieved.ScoreID)
		}
		if retrieved.Total != rec.Total {
			t.Errorf("expected Total %d, got %d", rec.Total, retrieved.Total)
		}
		if retrieved.RiskLevel != domain.RiskHigh {
			t.Errorf("expected RiskLevel high, got %s", retrieved.RiskLevel)
		}
		if len(retrieved.FieldScores) != 3 {
			t.Errorf("expected 3 field scores, got %d", len(retrieved.FieldScores))
		}
		if v, ok := retrieved.Inputs["age"].(float64); !ok || v != 72 {
			t.Errorf("expected age input 72, got %v", retrieved.Inputs["age"])
		}
	})

	t.Run("RequiresIDs", func(t *testing.T) {
		if err := repo.SaveCalculation(ctx, &domain.CalculationRecord{ScoreID: "x"}); err == nil {
			t.Error("expected error for empty record ID")
		}
		if err := repo.SaveCalculation(ctx, &domain.CalculationRecord{ID: "x"}); err == nil {
			t.Error("expected error for empty score ID")
		}
		if _, err := repo.GetCalculation(ctx, ""); err == nil {
			t.Error("expected error for empty lookup ID")
		}
	})

	t.Run("ListCalculations", func(t *testing.T) {
		base := time.Now().UTC()
		for i, scoreID := range []string{"curb65", "curb65", "stop_bang"} {
			rec := &domain.CalculationRecord{
				ID:          "list-" + scoreID + string(rune('a'+i)),
				ScoreID:     scoreID,
				ScoreName:   scoreID,
				Total:       i,
				RiskLevel:   domain.RiskLow,
				FieldScores: []domain.FieldScore{},
				Inputs:      map[string]any{},
				CreatedAt:   base.Add(time.Duration(i) * time.Second),
			}
			if err := repo.SaveCalculation(ctx, rec); err != nil {
				t.Fatalf("SaveCalculation failed: %v", err)
			}
		}

		all, err := repo.ListCalculations(ctx, "", 10)
		if err != nil {
			t.Fatalf("ListCalculations failed: %v", err)
		}
		if len(all) < 3 {
			t.Errorf("expected at least 3 records, got %d", len(all))
		}
		// newest first
		for i := 1; i < len(all); i++ {
			if all[i].CreatedAt.After(all[i-1].CreatedAt) {
				t.Errorf("records not sorted newest first at index %d", i)
			}
		}

		curb, err := repo.ListCalculations(ctx, "curb65", 10)
		if err != nil {
			t.Fatalf("ListCalculations with filter failed: %v", err)
		}
		if len(curb) != 2 {
			t.Errorf("expected 2 curb65 records, got %d", len(curb))
		}

		limited, err := repo.ListCalculations(ctx, "", 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(limited) != 1 {
			t.Errorf("expected 1 record with limit 1, got %d", len(limited))
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if _, err := repo.GetCalculation(ctx, "nonexistent"); err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	cfg := domain.RepositoryConfig{
		Driver: "mysql",
	}

	_, err := New(cfg)
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		result := repo.rebind(tt.input)
		if result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
