// Package expr implements the comparison-expression language used by
// conditional point rules: a comparison operator followed by a numeric
// literal, optionally several such clauses joined by "&&".
//
// Expressions are parsed once when a definition is validated and cached
// as a Condition, so evaluation itself cannot fail.
package expr

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Op is a comparison operator.
type Op int

const (
	OpGT Op = iota // >
	OpGE           // >=
	OpLT           // <
	OpLE           // <=
	OpEQ           // ==
	OpNE           // !=
)

// String returns the canonical token for the operator.
func (o Op) String() string {
	switch o {
	case OpGT:
		return ">"
	case OpGE:
		return ">="
	case OpLT:
		return "<"
	case OpLE:
		return "<="
	case OpEQ:
		return "=="
	case OpNE:
		return "!="
	}
	return "?"
}

// Clause is one simple comparison against a threshold.
type Clause struct {
	Op        Op
	Threshold float64
}

// Eval applies the clause to a value.
func (c Clause) Eval(v float64) bool {
	switch c.Op {
	case OpGT:
		return v > c.Threshold
	case OpGE:
		return v >= c.Threshold
	case OpLT:
		return v < c.Threshold
	case OpLE:
		return v <= c.Threshold
	case OpEQ:
		return math.Abs(v-c.Threshold) < 1e-9
	case OpNE:
		return math.Abs(v-c.Threshold) >= 1e-9
	}
	return false
}

// Condition is a conjunction of clauses; all must hold.
type Condition struct {
	Clauses []Clause
}

// Eval reports whether every clause holds for the value.
func (c Condition) Eval(v float64) bool {
	for _, cl := range c.Clauses {
		if !cl.Eval(v) {
			return false
		}
	}
	return true
}

// String reconstructs the canonical textual form.
func (c Condition) String() string {
	parts := make([]string, len(c.Clauses))
	for i, cl := range c.Clauses {
		parts[i] = fmt.Sprintf("%s %g", cl.Op, cl.Threshold)
	}
	return strings.Join(parts, " && ")
}

// operator tokens in match order: two-character tokens and Unicode
// synonyms before their single-character prefixes.
var opTokens = []struct {
	token string
	op    Op
}{
	{">=", OpGE},
	{"≥", OpGE},
	{"<=", OpLE},
	{"≤", OpLE},
	{"==", OpEQ},
	{"!=", OpNE},
	{">", OpGT},
	{"<", OpLT},
}

// Parse parses a comparison expression such as ">= 65" or
// ">= 30 && < 40". An empty expression, an unknown operator, or a
// non-numeric literal is an error.
func Parse(s string) (Condition, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Condition{}, fmt.Errorf("empty condition")
	}

	var cond Condition
	for _, part := range strings.Split(trimmed, "&&") {
		cl, err := parseClause(part)
		if err != nil {
			return Condition{}, fmt.Errorf("condition %q: %w", s, err)
		}
		cond.Clauses = append(cond.Clauses, cl)
	}
	return cond, nil
}

func parseClause(s string) (Clause, error) {
	s = strings.TrimSpace(s)
	for _, t := range opTokens {
		rest, ok := strings.CutPrefix(s, t.token)
		if !ok {
			continue
		}
		lit := strings.TrimSpace(rest)
		threshold, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return Clause{}, fmt.Errorf("invalid number after %q", t.token)
		}
		return Clause{Op: t.op, Threshold: threshold}, nil
	}
	return Clause{}, fmt.Errorf("unknown operator (expected >=, <=, >, <, ==, !=)")
}
