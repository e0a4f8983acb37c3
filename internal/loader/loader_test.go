package loader

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

const validScoreYAML = `name: AF Stroke Risk
specialty: cardiology
version: "1.0"
inputs:
  - field: age
    kind: number
    label: Age
    min: 18
    max: 120
    points:
      - condition: ">= 75"
        points: 2
      - condition: ">= 65"
        points: 1
  - field: heart_failure
    kind: boolean
    label: Heart failure
    points: 1
  - field: diabetes
    kind: boolean
    label: Diabetes
    required: false
    points: 1
interpretation:
  - score: 0
    risk: Low
    risk_level: low
    recommendation: No anticoagulation
  - score: 1-2
    risk: Moderate
    risk_level: moderate
    recommendation: Consider anticoagulation
  - score: ">= 3"
    risk: High
    risk_level: high
    recommendation: Anticoagulation recommended
`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeScore(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	writeScore(t, dir, "af_stroke.yaml", validScoreYAML)

	cs, err := LoadFile(filepath.Join(dir, "af_stroke.yaml"))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	def := cs.Definition
	if def.ID != "af_stroke" {
		t.Errorf("expected ID from filename stem, got %q", def.ID)
	}
	if def.Name != "AF Stroke Risk" {
		t.Errorf("unexpected name: %q", def.Name)
	}
	if len(def.Inputs) != 3 {
		t.Fatalf("expected 3 inputs, got %d", len(def.Inputs))
	}

	// required defaults to true when omitted
	if !def.Inputs[0].Required || !def.Inputs[1].Required {
		t.Error("fields without a required key must default to required")
	}
	if def.Inputs[2].Required {
		t.Error("explicit required: false must be honored")
	}

	// points decode as either a condition list or a fixed scalar
	if !def.Inputs[0].Points.IsConditional() {
		t.Error("age points should be conditional")
	}
	if def.Inputs[1].Points.Fixed == nil || *def.Inputs[1].Points.Fixed != 1 {
		t.Error("heart_failure points should be fixed 1")
	}

	// the compiled score is immediately usable
	result, err := cs.Calculate(map[string]any{"age": 70.0, "heart_failure": true})
	if err != nil {
		t.Fatal(err)
	}
	if result.Total != 2 {
		t.Errorf("expected total 2, got %d", result.Total)
	}
}

func TestLoadFileInvalidDefinition(t *testing.T) {
	dir := t.TempDir()
	writeScore(t, dir, "bad.yaml", "name: Broken\ninputs: []\n")

	if _, err := LoadFile(filepath.Join(dir, "bad.yaml")); err == nil {
		t.Fatal("expected error for invalid definition")
	}
}

func TestLoadDirSkipsBadAndTemplateFiles(t *testing.T) {
	dir := t.TempDir()
	writeScore(t, dir, "af_stroke.yaml", validScoreYAML)
	writeScore(t, dir, "broken.yaml", "name: Broken\ninputs: []\n")
	writeScore(t, dir, "not_yaml.yaml", "{{{{")
	writeScore(t, dir, "score_template.yaml", validScoreYAML)
	writeScore(t, dir, "notes.txt", "not a score")

	scores, skipped, err := LoadDir(dir, discardLogger())
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if len(scores) != 1 {
		t.Fatalf("expected 1 loaded score, got %d", len(scores))
	}
	if scores[0].Definition.ID != "af_stroke" {
		t.Errorf("unexpected score: %s", scores[0].Definition.ID)
	}
	if skipped != 2 {
		t.Errorf("expected 2 skipped files, got %d", skipped)
	}
}

func TestLoadRegistry(t *testing.T) {
	dir := t.TempDir()
	writeScore(t, dir, "af_stroke.yaml", validScoreYAML)

	registry, err := LoadRegistry(dir, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if registry.Count() != 1 {
		t.Fatalf("expected 1 score, got %d", registry.Count())
	}
	if _, ok := registry.Get("af_stroke"); !ok {
		t.Error("af_stroke should be registered")
	}
}

func TestLoadDirMissing(t *testing.T) {
	if _, _, err := LoadDir("/nonexistent/scores", discardLogger()); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
