// Package domain defines the core types and interfaces for klinscore.
package domain

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ScoreDefinition is the declarative description of one clinical score.
// It is constructed once by the loader, validated once, and then shared
// read-only with the calculation engine. It has no mutation API.
type ScoreDefinition struct {
	// ID is the unique score identifier (filename stem for loaded scores).
	ID string `json:"id" yaml:"-"`

	Name             string `json:"name" yaml:"name"`
	Specialty        string `json:"specialty" yaml:"specialty"`
	Version          string `json:"version" yaml:"version"`
	GuidelineSource  string `json:"guidelineSource,omitempty" yaml:"guideline_source"`
	Reference        string `json:"reference,omitempty" yaml:"reference"`
	ValidationStatus string `json:"validationStatus,omitempty" yaml:"validation_status"`
	Description      string `json:"description,omitempty" yaml:"description"`

	// Formula names a built-in equation for scores that are not simple
	// point sums (e.g. eGFR). Empty for point-sum scores.
	Formula string `json:"formula,omitempty" yaml:"formula"`

	// Inputs in display and evaluation order.
	Inputs []InputField `json:"inputs" yaml:"inputs"`

	// Interpretation bands in declaration order; first match wins.
	Interpretation []InterpretationBand `json:"interpretation" yaml:"interpretation"`

	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata"`
}

// InputKind is the closed set of input field kinds.
type InputKind string

const (
	KindBoolean  InputKind = "boolean"
	KindNumber   InputKind = "number"
	KindDropdown InputKind = "dropdown"
)

// Valid reports whether k is a known input kind.
func (k InputKind) Valid() bool {
	switch k {
	case KindBoolean, KindNumber, KindDropdown:
		return true
	}
	return false
}

// InputField describes one datum a score requires.
type InputField struct {
	Field string    `json:"field" yaml:"field"`
	Kind  InputKind `json:"kind" yaml:"kind"`
	Label string    `json:"label" yaml:"label"`
	Unit  string    `json:"unit,omitempty" yaml:"unit"`
	Help  string    `json:"help,omitempty" yaml:"help"`

	// Points is either a fixed value or an ordered list of conditional
	// rules evaluated against a number field's value.
	Points PointsRule `json:"points" yaml:"points"`

	// Inclusive bounds for number fields.
	Min *float64 `json:"min,omitempty" yaml:"min"`
	Max *float64 `json:"max,omitempty" yaml:"max"`

	// Options for dropdown fields.
	Options []DropdownOption `json:"options,omitempty" yaml:"options"`

	// Required defaults to true when omitted in YAML.
	Required bool `json:"required" yaml:"required"`
}

// UnmarshalYAML applies the required-by-default rule.
func (f *InputField) UnmarshalYAML(value *yaml.Node) error {
	type rawField InputField
	raw := rawField{Required: true}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*f = InputField(raw)
	return nil
}

// PointsRule is the untagged union of a fixed point value and an
// ordered list of conditional rules. Exactly one of Fixed and
// Conditions is set.
type PointsRule struct {
	Fixed      *int
	Conditions []PointCondition
}

// IsConditional reports whether the rule is a condition list.
func (p PointsRule) IsConditional() bool {
	return p.Fixed == nil
}

// FixedPoints returns a fixed-value rule.
func FixedPoints(n int) PointsRule {
	return PointsRule{Fixed: &n}
}

// ConditionalPoints returns a conditional rule list.
func ConditionalPoints(conds ...PointCondition) PointsRule {
	return PointsRule{Conditions: conds}
}

// UnmarshalYAML decodes either a scalar (fixed) or a sequence
// (conditional rules).
func (p *PointsRule) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var n int
		if err := value.Decode(&n); err != nil {
			return fmt.Errorf("points: expected integer or condition list: %w", err)
		}
		p.Fixed = &n
		p.Conditions = nil
		return nil
	case yaml.SequenceNode:
		var conds []PointCondition
		if err := value.Decode(&conds); err != nil {
			return err
		}
		p.Fixed = nil
		p.Conditions = conds
		return nil
	default:
		return fmt.Errorf("points: expected integer or condition list")
	}
}

// MarshalJSON emits the same untagged form the YAML uses.
func (p PointsRule) MarshalJSON() ([]byte, error) {
	if p.Fixed != nil {
		return json.Marshal(*p.Fixed)
	}
	return json.Marshal(p.Conditions)
}

// UnmarshalJSON decodes either a number (fixed) or an array
// (conditional rules).
func (p *PointsRule) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		p.Fixed = &n
		p.Conditions = nil
		return nil
	}
	var conds []PointCondition
	if err := json.Unmarshal(data, &conds); err != nil {
		return fmt.Errorf("points: expected integer or condition list")
	}
	p.Fixed = nil
	p.Conditions = conds
	return nil
}

// PointCondition is one (comparison expression, points) pair.
type PointCondition struct {
	Condition string `json:"condition" yaml:"condition"`
	Points    int    `json:"points" yaml:"points"`
	Label     string `json:"label,omitempty" yaml:"label"`
}

// DropdownOption is one selectable value of a dropdown field.
type DropdownOption struct {
	Value       string `json:"value" yaml:"value"`
	Label       string `json:"label" yaml:"label"`
	Points      int    `json:"points" yaml:"points"`
	Description string `json:"description,omitempty" yaml:"description"`
}

// InterpretationBand maps a total-score range to a risk category.
type InterpretationBand struct {
	// Score is the raw match rule: an exact integer, an inclusive range
	// "a-b", or a comparison (">= n", "> n", "<= n", "< n", "≥ n", "≤ n").
	Score          ScoreMatch `json:"score" yaml:"score"`
	Risk           string     `json:"risk" yaml:"risk"`
	RiskLevel      RiskLevel  `json:"riskLevel" yaml:"risk_level"`
	Recommendation string     `json:"recommendation" yaml:"recommendation"`
	Details        string     `json:"details,omitempty" yaml:"details"`
}

// ScoreMatch is the raw textual form of a band match rule. YAML authors
// write either a bare integer or a range string; both are kept as text
// and parsed once at compile time.
type ScoreMatch string

// UnmarshalYAML accepts a scalar of any type and keeps its raw text.
func (s *ScoreMatch) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("score: expected integer or range string")
	}
	*s = ScoreMatch(value.Value)
	return nil
}

// UnmarshalJSON accepts either a JSON number or a string.
func (s *ScoreMatch) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = ScoreMatch(str)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("score: expected integer or range string")
	}
	*s = ScoreMatch(fmt.Sprintf("%d", n))
	return nil
}

// RiskLevel is an enumerated severity used purely for display.
type RiskLevel string

const (
	RiskVeryLow  RiskLevel = "very_low"
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
	RiskVeryHigh RiskLevel = "very_high"
	RiskCritical RiskLevel = "critical"
	RiskNone     RiskLevel = "none"
)

// Valid reports whether l is a known risk level.
func (l RiskLevel) Valid() bool {
	switch l {
	case RiskVeryLow, RiskLow, RiskModerate, RiskHigh, RiskVeryHigh, RiskCritical, RiskNone:
		return true
	}
	return false
}

// Color returns the hex display color for the level.
func (l RiskLevel) Color() string {
	switch l {
	case RiskVeryLow:
		return "#4CAF50"
	case RiskLow:
		return "#8BC34A"
	case RiskModerate:
		return "#FFC107"
	case RiskHigh:
		return "#FF9800"
	case RiskVeryHigh:
		return "#F44336"
	case RiskCritical:
		return "#B71C1C"
	default:
		return "#9E9E9E"
	}
}

// Alertable reports whether results at this level should be published
// to the alert topic by the audit worker.
func (l RiskLevel) Alertable() bool {
	switch l {
	case RiskHigh, RiskVeryHigh, RiskCritical:
		return true
	}
	return false
}

// Field returns the input field with the given name, or nil.
func (d *ScoreDefinition) Field(name string) *InputField {
	for i := range d.Inputs {
		if d.Inputs[i].Field == name {
			return &d.Inputs[i]
		}
	}
	return nil
}
