package domain

import (
	"fmt"
	"time"
)

// FieldScore is one field's contribution to a total, kept in input
// declaration order for explainability.
type FieldScore struct {
	Field  string `json:"field"`
	Label  string `json:"label"`
	Points int    `json:"points"`
}

// CalculationResult is the outcome of one successful calculation.
// Matched is nil when no interpretation band covers the total; that is
// a valid result, not an error.
type CalculationResult struct {
	ScoreID     string              `json:"scoreId"`
	Total       int                 `json:"total"`
	FieldScores []FieldScore        `json:"fieldScores"`
	Matched     *InterpretationBand `json:"matched,omitempty"`
}

// FieldPoints returns the points awarded for a field, or 0 and false
// when the field is not part of the breakdown.
func (r *CalculationResult) FieldPoints(field string) (int, bool) {
	for _, fs := range r.FieldScores {
		if fs.Field == field {
			return fs.Points, true
		}
	}
	return 0, false
}

// CalculationRecord is a persisted calculation for the history log.
type CalculationRecord struct {
	ID             string       `json:"id"`
	ScoreID        string       `json:"scoreId"`
	ScoreName      string       `json:"scoreName"`
	Total          int          `json:"total"`
	Risk           string       `json:"risk,omitempty"`
	RiskLevel      RiskLevel    `json:"riskLevel"`
	Recommendation string       `json:"recommendation,omitempty"`
	FieldScores    []FieldScore `json:"fieldScores"`
	Inputs         map[string]any `json:"inputs"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// DefinitionError reports a structural problem in a score definition.
// It is raised only at validation time, never mid-calculation.
type DefinitionError struct {
	ScoreID string
	Field   string
	Reason  string
}

func (e DefinitionError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("definition %s: field %q: %s", e.ScoreID, e.Field, e.Reason)
	}
	return fmt.Sprintf("definition %s: %s", e.ScoreID, e.Reason)
}

// MissingFieldError reports a required field absent from the input set.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", e.Field)
}

// TypeMismatchError reports a supplied value of the wrong kind.
type TypeMismatchError struct {
	Field    string
	Expected InputKind
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("field %q: expected %s value", e.Field, e.Expected)
}

// RangeError reports a number outside its declared inclusive bounds.
type RangeError struct {
	Field string
	Value float64
	Min   float64
	Max   float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("field %q out of range: %g (allowed %g - %g)", e.Field, e.Value, e.Min, e.Max)
}

// InvalidOptionError reports a dropdown value not among the declared
// options.
type InvalidOptionError struct {
	Field string
	Value string
}

func (e *InvalidOptionError) Error() string {
	return fmt.Sprintf("field %q: unknown option %q", e.Field, e.Value)
}
