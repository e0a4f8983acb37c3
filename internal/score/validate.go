package score

import (
	"fmt"

	"github.com/openclinical/klinscore/internal/domain"
	"github.com/openclinical/klinscore/internal/expr"
)

// Validate checks a score definition for structural consistency and
// returns every problem found; an empty slice means the definition is
// valid. Checks are independent so an author sees all errors at once.
// A definition that fails validation must never reach the calculator.
func Validate(def *domain.ScoreDefinition) []domain.DefinitionError {
	var errs []domain.DefinitionError

	add := func(field, format string, args ...any) {
		errs = append(errs, domain.DefinitionError{
			ScoreID: def.ID,
			Field:   field,
			Reason:  fmt.Sprintf(format, args...),
		})
	}

	if def.Name == "" {
		add("", "score name is empty")
	}
	if len(def.Inputs) == 0 {
		add("", "score must declare at least one input field")
	}

	if def.Formula != "" {
		spec, ok := builtinFormulas[def.Formula]
		if !ok {
			add("", "unknown formula %q", def.Formula)
		} else {
			for _, v := range spec.vars {
				if def.Field(v.name) == nil {
					add(v.name, "formula %q requires input field %q", def.Formula, v.name)
				}
			}
		}
	}

	seen := make(map[string]bool, len(def.Inputs))
	for i := range def.Inputs {
		f := &def.Inputs[i]

		if f.Field == "" {
			add("", "input %d has an empty field name", i)
			continue
		}
		if seen[f.Field] {
			add(f.Field, "duplicate field name")
		}
		seen[f.Field] = true

		if !f.Kind.Valid() {
			add(f.Field, "unknown input kind %q", f.Kind)
		}

		if f.Kind == domain.KindDropdown {
			if len(f.Options) == 0 {
				add(f.Field, "dropdown field has no options")
			}
			optSeen := make(map[string]bool, len(f.Options))
			for _, opt := range f.Options {
				if optSeen[opt.Value] {
					add(f.Field, "duplicate option value %q", opt.Value)
				}
				optSeen[opt.Value] = true
			}
		}

		if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
			add(f.Field, "min %g exceeds max %g", *f.Min, *f.Max)
		}

		for _, cond := range f.Points.Conditions {
			if _, err := expr.Parse(cond.Condition); err != nil {
				add(f.Field, "invalid condition: %v", err)
			}
		}
	}

	for i, band := range def.Interpretation {
		if _, err := parseBandRule(string(band.Score)); err != nil {
			add("", "interpretation %d: %v", i, err)
		}
		if band.RiskLevel != "" && !band.RiskLevel.Valid() {
			add("", "interpretation %d: unknown risk level %q", i, band.RiskLevel)
		}
	}

	return errs
}
