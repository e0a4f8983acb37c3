package score

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/openclinical/klinscore/internal/expr"
)

// parseBandRule parses an interpretation band match rule into a
// condition over the total score. Accepted forms: an exact integer
// ("3"), an inclusive range ("1-3"), or a comparison (">= 3", "> 3",
// "<= 3", "< 3", with Unicode "≥"/"≤" synonyms).
func parseBandRule(s string) (expr.Condition, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return expr.Condition{}, fmt.Errorf("empty score rule")
	}

	// Inclusive range "a-b".
	if strings.Contains(trimmed, "-") && !strings.HasPrefix(trimmed, "-") {
		parts := strings.SplitN(trimmed, "-", 2)
		lo, errLo := strconv.Atoi(strings.TrimSpace(parts[0]))
		hi, errHi := strconv.Atoi(strings.TrimSpace(parts[1]))
		if errLo != nil || errHi != nil {
			return expr.Condition{}, fmt.Errorf("score rule %q: invalid range", s)
		}
		if lo > hi {
			return expr.Condition{}, fmt.Errorf("score rule %q: range lower bound exceeds upper bound", s)
		}
		return expr.Condition{Clauses: []expr.Clause{
			{Op: expr.OpGE, Threshold: float64(lo)},
			{Op: expr.OpLE, Threshold: float64(hi)},
		}}, nil
	}

	// Exact integer.
	if n, err := strconv.Atoi(trimmed); err == nil {
		return expr.Condition{Clauses: []expr.Clause{
			{Op: expr.OpEQ, Threshold: float64(n)},
		}}, nil
	}

	// Comparison form, same operators as point conditions.
	cond, err := expr.Parse(trimmed)
	if err != nil {
		return expr.Condition{}, fmt.Errorf("score rule %q: unrecognized format", s)
	}
	return cond, nil
}
