package evaluation

import (
	"fmt"

	"github.com/roach88/deduce/internal/compiler"
	"github.com/roach88/deduce/internal/config"
	"github.com/roach88/deduce/internal/storage"
)

// Evaluator computes the fixpoint of one stratum.
//
// INVARIANTS:
//   - On return without error, evaluating every rule against facts once
//     more derives nothing new
//   - Naive and SemiNaive leave identical facts for the same input
type Evaluator interface {
	Name() string
	EvaluateStratum(rules []*compiler.CompiledRule, facts *storage.Facts, limit int) (Stats, error)
}

// Stats describes one stratum evaluation.
type Stats struct {
	Rounds  int
	Derived int
	Unions  int
}

func (s *Stats) add(o Stats) {
	s.Rounds += o.Rounds
	s.Derived += o.Derived
	s.Unions += o.Unions
}

// NewEvaluator resolves a configured evaluator name.
func NewEvaluator(name string) (Evaluator, error) {
	switch name {
	case config.EvaluatorNaive:
		return Naive{}, nil
	case "", config.EvaluatorSemiNaive:
		return SemiNaive{}, nil
	default:
		return nil, fmt.Errorf("unknown evaluator %q", name)
	}
}

// Naive re-evaluates every rule in full until a pass adds nothing.
type Naive struct{}

func (Naive) Name() string { return config.EvaluatorNaive }

func (Naive) EvaluateStratum(rules []*compiler.CompiledRule, facts *storage.Facts, limit int) (Stats, error) {
	var stats Stats
	for {
		stats.Rounds++
		results := make([]storage.Relation, len(rules))
		for i, cr := range rules {
			rel, err := cr.Evaluate(facts)
			if err != nil {
				return stats, err
			}
			results[i] = rel
		}

		added, unions, err := mergeAll(rules, results, facts, nil)
		if err != nil {
			return stats, err
		}
		stats.Derived += added
		stats.Unions += unions
		if err := checkLimit(facts, limit); err != nil {
			return stats, err
		}
		if added == 0 && unions == 0 {
			return stats, nil
		}
	}
}

// SemiNaive seeds a delta with one full pass, then each round joins only
// against the previous round's delta.
//
// A round that merges term equivalences is followed by a full pass, since
// tuples derived earlier may now join with tuples they did not match
// before.
type SemiNaive struct{}

func (SemiNaive) Name() string { return config.EvaluatorSemiNaive }

func (SemiNaive) EvaluateStratum(rules []*compiler.CompiledRule, facts *storage.Facts, limit int) (Stats, error) {
	var stats Stats
	delta := facts.Empty()
	full := true
	for {
		stats.Rounds++
		results := make([]storage.Relation, len(rules))
		for i, cr := range rules {
			var (
				rel storage.Relation
				err error
			)
			if full {
				rel, err = cr.Evaluate(facts)
			} else {
				rel, err = cr.EvaluateIncrementally(facts, delta)
			}
			if err != nil {
				return stats, err
			}
			results[i] = rel
		}

		next := facts.Empty()
		added, unions, err := mergeAll(rules, results, facts, next)
		if err != nil {
			return stats, err
		}
		stats.Derived += added
		stats.Unions += unions
		if err := checkLimit(facts, limit); err != nil {
			return stats, err
		}
		if added == 0 && unions == 0 {
			return stats, nil
		}
		delta = next
		full = unions > 0
	}
}

// mergeAll adds every derived tuple to facts, recording the new ones in
// delta when it is non-nil. Tuples of head-equality rules are unions
// instead.
func mergeAll(rules []*compiler.CompiledRule, results []storage.Relation, facts, delta *storage.Facts) (added, unions int, err error) {
	for i, cr := range rules {
		rel := results[i]
		if cr.IsHeadEquality() {
			eq := facts.Equivalences()
			if eq == nil {
				return added, unions, &compiler.EvaluationError{
					Code:    compiler.ErrCodeUncompilable,
					Rule:    cr.String(),
					Message: "rule-head equality needs a fact store with equivalences",
				}
			}
			for _, t := range rel.Tuples() {
				if eq.Union(t[0], t[1]) {
					unions++
				}
			}
			continue
		}

		p := cr.HeadPredicate()
		for _, t := range rel.Tuples() {
			if facts.Add(p, t) {
				added++
				if delta != nil {
					delta.Add(p, t)
				}
			}
		}
	}
	return added, unions, nil
}

func checkLimit(facts *storage.Facts, limit int) error {
	if limit <= 0 {
		return nil
	}
	if n := facts.Size(); n > limit {
		return compiler.NewTupleLimitError(n, limit)
	}
	return nil
}
