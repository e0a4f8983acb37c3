// Package score provides validation, compilation, and calculation of
// clinical score definitions.
package score

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/cel-go/cel"

	"github.com/openclinical/klinscore/internal/domain"
	"github.com/openclinical/klinscore/internal/expr"
)

// CompiledScore is a validated score definition with every condition,
// band rule, and formula pre-parsed. It is immutable and safe for
// concurrent calculations.
type CompiledScore struct {
	Definition *domain.ScoreDefinition

	// conditions holds the parsed conditional point rules per field,
	// in declaration order.
	conditions map[string][]expr.Condition

	// bands holds the parsed match rule per interpretation band,
	// in declaration order.
	bands []expr.Condition

	// formula is the compiled equation for formula scores, nil otherwise.
	formula cel.Program
}

// Compile validates a definition and pre-parses its expressions.
// Returns an error joining every DefinitionError when the definition
// is structurally invalid.
func Compile(def *domain.ScoreDefinition) (*CompiledScore, error) {
	if defErrs := Validate(def); len(defErrs) > 0 {
		errs := make([]error, len(defErrs))
		for i, de := range defErrs {
			errs[i] = de
		}
		return nil, errors.Join(errs...)
	}

	cs := &CompiledScore{
		Definition: def,
		conditions: make(map[string][]expr.Condition),
	}

	for i := range def.Inputs {
		f := &def.Inputs[i]
		if len(f.Points.Conditions) == 0 {
			continue
		}
		conds := make([]expr.Condition, len(f.Points.Conditions))
		for j, pc := range f.Points.Conditions {
			cond, err := expr.Parse(pc.Condition)
			if err != nil {
				// Validate has already parsed every condition.
				return nil, err
			}
			conds[j] = cond
		}
		cs.conditions[f.Field] = conds
	}

	cs.bands = make([]expr.Condition, len(def.Interpretation))
	for i, band := range def.Interpretation {
		cond, err := parseBandRule(string(band.Score))
		if err != nil {
			return nil, err
		}
		cs.bands[i] = cond
	}

	if def.Formula != "" {
		program, err := compileFormula(def.Formula)
		if err != nil {
			return nil, err
		}
		cs.formula = program
	}

	return cs, nil
}

// MustCompile is a test helper that panics on compile errors.
func MustCompile(def *domain.ScoreDefinition) *CompiledScore {
	cs, err := Compile(def)
	if err != nil {
		panic(err)
	}
	return cs
}

// Calculate runs the score against a set of named input values and
// returns the total, the per-field breakdown, and the matched
// interpretation band (nil when none matched). Any invalid or missing
// field aborts the whole calculation; partial totals are never
// returned.
func (cs *CompiledScore) Calculate(inputs map[string]any) (*domain.CalculationResult, error) {
	def := cs.Definition

	if cs.formula != nil {
		return cs.calculateFormula(inputs)
	}

	total := 0
	fieldScores := make([]domain.FieldScore, 0, len(def.Inputs))

	for i := range def.Inputs {
		f := &def.Inputs[i]

		raw, present := inputs[f.Field]
		if !present {
			if f.Required {
				return nil, &domain.MissingFieldError{Field: f.Field}
			}
			// Optional and absent: contributes 0 points.
			fieldScores = append(fieldScores, domain.FieldScore{Field: f.Field, Label: f.Label})
			continue
		}

		points, err := cs.fieldPoints(f, raw)
		if err != nil {
			return nil, err
		}

		fieldScores = append(fieldScores, domain.FieldScore{
			Field:  f.Field,
			Label:  f.Label,
			Points: points,
		})
		total += points
	}

	return &domain.CalculationResult{
		ScoreID:     def.ID,
		Total:       total,
		FieldScores: fieldScores,
		Matched:     cs.matchBand(total),
	}, nil
}

// fieldPoints validates one supplied value against its field and
// computes its point contribution.
func (cs *CompiledScore) fieldPoints(f *domain.InputField, raw any) (int, error) {
	switch f.Kind {
	case domain.KindBoolean:
		b, ok := raw.(bool)
		if !ok {
			return 0, &domain.TypeMismatchError{Field: f.Field, Expected: domain.KindBoolean}
		}
		if !b || f.Points.Fixed == nil {
			return 0, nil
		}
		return *f.Points.Fixed, nil

	case domain.KindNumber:
		v, ok := toFloat(raw)
		if !ok {
			return 0, &domain.TypeMismatchError{Field: f.Field, Expected: domain.KindNumber}
		}
		if err := checkBounds(f, v); err != nil {
			return 0, err
		}
		if f.Points.Fixed != nil {
			return *f.Points.Fixed, nil
		}
		// First satisfied condition wins; none satisfied is 0 points.
		for i, cond := range cs.conditions[f.Field] {
			if cond.Eval(v) {
				return f.Points.Conditions[i].Points, nil
			}
		}
		return 0, nil

	case domain.KindDropdown:
		s, ok := raw.(string)
		if !ok {
			return 0, &domain.TypeMismatchError{Field: f.Field, Expected: domain.KindDropdown}
		}
		for _, opt := range f.Options {
			if opt.Value == s {
				return opt.Points, nil
			}
		}
		return 0, &domain.InvalidOptionError{Field: f.Field, Value: s}

	default:
		return 0, fmt.Errorf("field %q: unsupported kind %q", f.Field, f.Kind)
	}
}

// calculateFormula validates every input like the point-sum path, then
// evaluates the compiled equation and matches the result against the
// interpretation bands.
func (cs *CompiledScore) calculateFormula(inputs map[string]any) (*domain.CalculationResult, error) {
	def := cs.Definition

	fieldScores := make([]domain.FieldScore, 0, len(def.Inputs)+1)
	for i := range def.Inputs {
		f := &def.Inputs[i]

		raw, present := inputs[f.Field]
		if !present {
			if f.Required {
				return nil, &domain.MissingFieldError{Field: f.Field}
			}
			continue
		}
		if err := cs.checkFormulaInput(f, raw); err != nil {
			return nil, err
		}
		fieldScores = append(fieldScores, domain.FieldScore{Field: f.Field, Label: f.Label})
	}

	total, err := evalFormula(def.Formula, cs.formula, inputs)
	if err != nil {
		return nil, err
	}

	fieldScores = append(fieldScores, domain.FieldScore{
		Field:  "result",
		Label:  builtinFormulas[def.Formula].resultLabel,
		Points: total,
	})

	return &domain.CalculationResult{
		ScoreID:     def.ID,
		Total:       total,
		FieldScores: fieldScores,
		Matched:     cs.matchBand(total),
	}, nil
}

// checkFormulaInput applies the same kind/bounds/option checks the
// point-sum path performs, without computing points.
func (cs *CompiledScore) checkFormulaInput(f *domain.InputField, raw any) error {
	switch f.Kind {
	case domain.KindBoolean:
		if _, ok := raw.(bool); !ok {
			return &domain.TypeMismatchError{Field: f.Field, Expected: domain.KindBoolean}
		}
	case domain.KindNumber:
		v, ok := toFloat(raw)
		if !ok {
			return &domain.TypeMismatchError{Field: f.Field, Expected: domain.KindNumber}
		}
		return checkBounds(f, v)
	case domain.KindDropdown:
		s, ok := raw.(string)
		if !ok {
			return &domain.TypeMismatchError{Field: f.Field, Expected: domain.KindDropdown}
		}
		for _, opt := range f.Options {
			if opt.Value == s {
				return nil
			}
		}
		return &domain.InvalidOptionError{Field: f.Field, Value: s}
	}
	return nil
}

// matchBand scans the interpretation bands in declaration order and
// returns the first whose rule is satisfied by the total, or nil.
func (cs *CompiledScore) matchBand(total int) *domain.InterpretationBand {
	for i, cond := range cs.bands {
		if cond.Eval(float64(total)) {
			return &cs.Definition.Interpretation[i]
		}
	}
	return nil
}

func checkBounds(f *domain.InputField, v float64) error {
	if f.Min == nil && f.Max == nil {
		return nil
	}
	min, max := math.Inf(-1), math.Inf(1)
	if f.Min != nil {
		min = *f.Min
	}
	if f.Max != nil {
		max = *f.Max
	}
	if v < min || v > max {
		return &domain.RangeError{Field: f.Field, Value: v, Min: min, Max: max}
	}
	return nil
}

// toFloat converts the numeric types JSON decoding and Go callers
// produce.
func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	default:
		return 0, false
	}
}
