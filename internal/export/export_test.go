package export

import (
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/openclinical/klinscore/internal/domain"
)

func sampleRecord() *domain.CalculationRecord {
	return &domain.CalculationRecord{
		ID:             "calc-001",
		ScoreID:        "cha2ds2_va",
		ScoreName:      "CHA2DS2-VA",
		Total:          3,
		Risk:           "High",
		RiskLevel:      domain.RiskHigh,
		Recommendation: "Anticoagulation recommended",
		FieldScores: []domain.FieldScore{
			{Field: "age", Label: "Age", Points: 1},
			{Field: "heart_failure", Label: "Congestive heart failure", Points: 1},
			{Field: "hypertension", Label: "Hypertension", Points: 1},
			{Field: "diabetes", Label: "Diabetes mellitus", Points: 0},
		},
		CreatedAt: time.Date(2026, 8, 28, 14, 30, 0, 0, time.UTC),
	}
}

func TestFromCalculationDropsZeroPoints(t *testing.T) {
	rec := FromCalculation(sampleRecord())

	if len(rec.Factors) != 3 {
		t.Fatalf("expected 3 contributing factors, got %d", len(rec.Factors))
	}
	for _, fs := range rec.Factors {
		if fs.Points == 0 {
			t.Errorf("zero-point factor %q should be dropped", fs.Field)
		}
	}
	if rec.Total != 3 {
		t.Errorf("expected total 3, got %d", rec.Total)
	}
}

func TestToCSV(t *testing.T) {
	data, err := ToCSV(FromCalculation(sampleRecord()))
	if err != nil {
		t.Fatalf("ToCSV failed: %v", err)
	}

	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}

	// header block + factor header + 3 factors; the blank separator
	// line is skipped by the reader
	if len(rows) != 11 {
		t.Fatalf("expected 11 rows, got %d", len(rows))
	}
	if rows[1][0] != "Score" || rows[1][1] != "CHA2DS2-VA" {
		t.Errorf("unexpected score row: %v", rows[1])
	}
	if rows[3][0] != "Total" || rows[3][1] != "3" {
		t.Errorf("unexpected total row: %v", rows[3])
	}
	if rows[8][0] != "Age" || rows[8][1] != "1" {
		t.Errorf("unexpected first factor row: %v", rows[8])
	}
}

func TestToJSON(t *testing.T) {
	data, err := ToJSON(FromCalculation(sampleRecord()))
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if rec.ScoreName != "CHA2DS2-VA" {
		t.Errorf("unexpected score name: %q", rec.ScoreName)
	}
	if len(rec.Factors) != 3 {
		t.Errorf("expected 3 factors, got %d", len(rec.Factors))
	}
}

func TestDefaultFilename(t *testing.T) {
	at := time.Date(2026, 8, 28, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		ext  string
		want string
	}{
		{"CURB-65", "csv", "curb-65_2026-08-28_1430.csv"},
		{"STOP BANG", "json", "stop-bang_2026-08-28_1430.json"},
		{"", "csv", "score_2026-08-28_1430.csv"},
	}
	for _, tt := range tests {
		if got := DefaultFilename(tt.name, tt.ext, at); got != tt.want {
			t.Errorf("DefaultFilename(%q): expected %q, got %q", tt.name, tt.want, got)
		}
	}
}
