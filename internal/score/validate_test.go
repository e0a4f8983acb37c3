package score

import (
	"strings"
	"testing"

	"github.com/openclinical/klinscore/internal/domain"
)

func TestValidateAcceptsGoodDefinition(t *testing.T) {
	if errs := Validate(afTestScore()); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	def := &domain.ScoreDefinition{
		ID:   "broken",
		Name: "", // error 1
		Inputs: []domain.InputField{
			{Field: "a", Kind: "slider", Points: domain.FixedPoints(1)}, // error 2: unknown kind
			{Field: "a", Kind: domain.KindBoolean, Points: domain.FixedPoints(1)}, // error 3: duplicate
			{
				Field: "b", Kind: domain.KindNumber,
				Min: floatPtr(10), Max: floatPtr(5), // error 4: min > max
				Points: domain.ConditionalPoints(
					domain.PointCondition{Condition: "more than 3", Points: 1}, // error 5
				),
			},
		},
		Interpretation: []domain.InterpretationBand{
			{Score: "high", Risk: "High"},                                 // error 6
			{Score: "1-2", Risk: "Mid", RiskLevel: domain.RiskLevel("severe")}, // error 7
		},
	}

	errs := Validate(def)
	if len(errs) != 7 {
		for _, e := range errs {
			t.Logf("  %v", e)
		}
		t.Fatalf("expected 7 errors, got %d", len(errs))
	}
	for _, e := range errs {
		if e.ScoreID != "broken" {
			t.Errorf("error missing score ID: %+v", e)
		}
	}
}

func TestValidateEmptyInputs(t *testing.T) {
	def := &domain.ScoreDefinition{ID: "empty", Name: "Empty"}
	errs := Validate(def)
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %v", errs)
	}
	if !strings.Contains(errs[0].Reason, "at least one input") {
		t.Errorf("unexpected reason: %q", errs[0].Reason)
	}
}

func TestValidateDropdown(t *testing.T) {
	def := &domain.ScoreDefinition{
		ID:   "dd",
		Name: "Dropdown",
		Inputs: []domain.InputField{
			{Field: "no_options", Kind: domain.KindDropdown},
			{Field: "dup_options", Kind: domain.KindDropdown, Options: []domain.DropdownOption{
				{Value: "x", Points: 0},
				{Value: "x", Points: 1},
			}},
		},
	}

	errs := Validate(def)
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %v", errs)
	}
}

func TestValidateFormula(t *testing.T) {
	t.Run("unknown formula", func(t *testing.T) {
		def := &domain.ScoreDefinition{
			ID:      "f",
			Name:    "Formula",
			Formula: "no_such_formula",
			Inputs:  []domain.InputField{{Field: "age", Kind: domain.KindNumber}},
		}
		errs := Validate(def)
		if len(errs) != 1 || !strings.Contains(errs[0].Reason, "unknown formula") {
			t.Fatalf("expected unknown-formula error, got %v", errs)
		}
	})

	t.Run("missing formula variable", func(t *testing.T) {
		def := &domain.ScoreDefinition{
			ID:      "f",
			Name:    "Formula",
			Formula: "ckd_epi_2021",
			Inputs: []domain.InputField{
				{Field: "age", Kind: domain.KindNumber},
				{Field: "creatinine", Kind: domain.KindNumber},
				// sex is missing
			},
		}
		errs := Validate(def)
		if len(errs) != 1 {
			t.Fatalf("expected 1 error, got %v", errs)
		}
		if errs[0].Field != "sex" {
			t.Errorf("expected error on field sex, got %+v", errs[0])
		}
	})
}
