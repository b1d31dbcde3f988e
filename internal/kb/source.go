package kb

import (
	"context"
	"strconv"

	"github.com/roach88/deduce/internal/ir"
)

// DataSource supplies read-only facts from outside the knowledge base.
//
// Get returns the tuples of pred that match pattern. A Variable in the
// pattern matches any term; any other term is a selection the source may
// push down into its own query. Sources may return more tuples than the
// pattern selects: the knowledge base filters them again.
type DataSource interface {
	Predicates() []ir.Predicate
	Get(ctx context.Context, pred ir.Predicate, pattern ir.Tuple) ([]ir.Tuple, error)
}

// generalize returns the most specific pattern matching everything a and b
// match: positions where both hold the same ground term keep it, every
// other position becomes a fresh variable.
func generalize(a, b ir.Tuple) ir.Tuple {
	if a == nil {
		return freshen(b)
	}
	out := make(ir.Tuple, len(a))
	for i := range a {
		if a[i].IsGround() && b[i].IsGround() && ir.Equal(a[i], b[i]) {
			out[i] = a[i]
		} else {
			out[i] = wildcard(i)
		}
	}
	return out
}

// freshen replaces every non-ground term of t with a wildcard.
func freshen(t ir.Tuple) ir.Tuple {
	out := make(ir.Tuple, len(t))
	for i, term := range t {
		if term.IsGround() {
			out[i] = term
		} else {
			out[i] = wildcard(i)
		}
	}
	return out
}

func wildcard(i int) ir.Variable {
	return ir.Variable("_" + strconv.Itoa(i))
}

// patternsFor collects, for every predicate a source serves, the most
// general selection over all literals that reference it.
func patternsFor(served map[ir.Predicate]DataSource, rules []ir.Rule, queries []ir.Query) map[ir.Predicate]ir.Tuple {
	out := make(map[ir.Predicate]ir.Tuple)
	visit := func(ls []ir.Literal) {
		for _, l := range ls {
			if l.Atom.IsBuiltin() {
				continue
			}
			p := l.Atom.Predicate
			if _, ok := served[p]; !ok {
				continue
			}
			out[p] = generalize(out[p], l.Atom.Args)
		}
	}
	for _, r := range rules {
		visit(r.Body)
	}
	for _, q := range queries {
		visit(q.Body)
	}
	return out
}

// covers reports whether every tuple matched by b is matched by a.
func covers(a, b ir.Tuple) bool {
	if a == nil {
		return false
	}
	for i := range a {
		if a[i].IsGround() && !(b[i].IsGround() && ir.Equal(a[i], b[i])) {
			return false
		}
	}
	return true
}
