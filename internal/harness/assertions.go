package harness

import (
	"fmt"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/deduce/internal/ir"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Index    int
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "assertions[%d] failed: %s\n", e.Index, e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// termComparer compares terms by value, so 1.0 and 1.00 decimals match.
var termComparer = cmp.Comparer(ir.Equal)

// diffTuples returns a readable diff of two sorted tuple lists, or "" if
// they are equal.
func diffTuples(want, got []ir.Tuple) string {
	return cmp.Diff(want, got, termComparer)
}

// EvaluateAssertions checks assertions against the final model. It
// returns one message per failed assertion.
func EvaluateAssertions(result *Result, model map[ir.Predicate][]ir.Tuple, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertContains:
			err = assertMembership(i, model, a, true)
		case AssertAbsent:
			err = assertMembership(i, model, a, false)
		case AssertCount:
			err = assertCount(i, model, a)
		case AssertStrata:
			if result.Strata != a.Count {
				err = &AssertionError{Index: i, Type: a.Type,
					Expected: fmt.Sprintf("%d strata", a.Count),
					Actual:   fmt.Sprintf("%d strata", result.Strata)}
			}
		default:
			err = fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}

func assertMembership(i int, model map[ir.Predicate][]ir.Tuple, a Assertion, want bool) error {
	row, err := ir.DecodeTuple(a.Row)
	if err != nil {
		return fmt.Errorf("assertions[%d]: row: %w", i, err)
	}
	p := ir.Pred(a.Pred, len(row))

	found := false
	for _, t := range model[p] {
		if cmp.Equal(row, t, termComparer) {
			found = true
			break
		}
	}
	if found == want {
		return nil
	}

	fact := a.Pred + row.String()
	if want {
		return &AssertionError{Index: i, Type: a.Type, Expected: fact + " in model",
			Actual: fmt.Sprintf("%d tuples of %s, none matching", len(model[p]), p)}
	}
	return &AssertionError{Index: i, Type: a.Type, Expected: fact + " not in model", Actual: "present"}
}

func assertCount(i int, model map[ir.Predicate][]ir.Tuple, a Assertion) error {
	p := ir.Pred(a.Pred, a.Arity)
	if n := len(model[p]); n != a.Count {
		return &AssertionError{Index: i, Type: a.Type,
			Expected: fmt.Sprintf("%d tuples of %s", a.Count, p),
			Actual:   fmt.Sprintf("%d tuples", n)}
	}
	return nil
}
