package compiler

import (
	"fmt"

	"github.com/roach88/deduce/internal/builtin"
	"github.com/roach88/deduce/internal/config"
	"github.com/roach88/deduce/internal/ir"
)

// Optimiser is a semantics-preserving rule rewrite applied before
// compilation. Optimise returns a new rule and never mutates its input.
type Optimiser interface {
	Name() string
	Optimise(r ir.Rule) ir.Rule
}

// JoinConditionOptimiser unifies the two variables of a positive variable
// equality into one, turning the equality into a join condition. Under
// EQUAL this only happens when one side has no other binding literal.
type JoinConditionOptimiser struct {
	registry *builtin.Registry
}

// NewJoinConditionOptimiser creates the join condition optimiser.
func NewJoinConditionOptimiser(reg *builtin.Registry) JoinConditionOptimiser {
	return JoinConditionOptimiser{registry: reg}
}

func (JoinConditionOptimiser) Name() string { return config.OptimiserJoinCondition }

func (o JoinConditionOptimiser) Optimise(r ir.Rule) ir.Rule {
	reg := o.registry
	if reg == nil {
		reg = builtin.Default()
	}
	return replaceVariablesWithVariables(r, reg)
}

// ReplaceVariablesWithConstantsOptimiser propagates ?X = c into every other
// literal, pushing the selection into the joins.
type ReplaceVariablesWithConstantsOptimiser struct{}

func (ReplaceVariablesWithConstantsOptimiser) Name() string {
	return config.OptimiserReplaceConstants
}

func (ReplaceVariablesWithConstantsOptimiser) Optimise(r ir.Rule) ir.Rule {
	return removeUnnecessaryEqualities(replaceVariablesWithConstants(r, true, false))
}

// RemoveDuplicateLiteralOptimiser drops repeated body literals.
type RemoveDuplicateLiteralOptimiser struct{}

func (RemoveDuplicateLiteralOptimiser) Name() string { return config.OptimiserRemoveDuplicates }

func (RemoveDuplicateLiteralOptimiser) Optimise(r ir.Rule) ir.Rule {
	return removeDuplicateLiterals(r)
}

// ReOrderLiteralsOptimiser orders the body so variables are bound as early
// as possible.
//
// Positive ordinary literals come first, each time choosing the one that
// shares the most variables with those already bound. After every choice,
// builtins and negated literals that have become evaluable are placed
// immediately, in their original relative order.
type ReOrderLiteralsOptimiser struct {
	registry     *builtin.Registry
	allowNegated bool
}

// NewReOrderLiteralsOptimiser creates the reordering optimiser.
func NewReOrderLiteralsOptimiser(reg *builtin.Registry, allowNegated bool) *ReOrderLiteralsOptimiser {
	if reg == nil {
		reg = builtin.Default()
	}
	return &ReOrderLiteralsOptimiser{registry: reg, allowNegated: allowNegated}
}

func (o *ReOrderLiteralsOptimiser) Name() string { return config.OptimiserReorderLiterals }

func (o *ReOrderLiteralsOptimiser) Optimise(r ir.Rule) ir.Rule {
	remaining := append([]ir.Literal(nil), r.Body...)
	placed := make([]ir.Literal, 0, len(remaining))
	bound := make(map[ir.Variable]bool)

	bind := func(l ir.Literal) {
		for _, v := range l.Variables() {
			bound[v] = true
		}
	}

	for len(remaining) > 0 {
		// Evaluable builtins and negations first, to filter early.
		progress := false
		for i := 0; i < len(remaining); {
			l := remaining[i]
			if isOrdinaryPositive(l) || !o.ready(l, bound, remaining) {
				i++
				continue
			}
			placed = append(placed, l)
			bind(l)
			remaining = withoutLiteral(remaining, i)
			progress = true
		}
		if progress {
			continue
		}

		best, bestShared := -1, -1
		for i, l := range remaining {
			if !isOrdinaryPositive(l) {
				continue
			}
			shared := 0
			for _, v := range l.Variables() {
				if bound[v] {
					shared++
				}
			}
			if shared > bestShared {
				best, bestShared = i, shared
			}
		}
		if best < 0 {
			// Nothing more can be placed; keep the rest as written and let
			// the compiler report it.
			placed = append(placed, remaining...)
			break
		}
		placed = append(placed, remaining[best])
		bind(remaining[best])
		remaining = withoutLiteral(remaining, best)
	}

	return ir.Rule{Head: r.Head, Body: placed}
}

// ready reports whether a builtin or negated literal can be evaluated
// given the bound variables.
func (o *ReOrderLiteralsOptimiser) ready(l ir.Literal, bound map[ir.Variable]bool, remaining []ir.Literal) bool {
	if l.Atom.IsBuiltin() {
		spec, ok := o.registry.Lookup(l.Atom.Builtin)
		if !ok || len(l.Atom.Args) != spec.Arity {
			return true
		}
		if !l.Positive {
			return groundUnder(l.Atom.Args, bound)
		}
		return spec.CanCompute(func(i int) bool { return groundUnder(l.Atom.Args[i:i+1], bound) })
	}
	for _, v := range l.Variables() {
		if bound[v] {
			continue
		}
		if !o.allowNegated || occursOutsideNegation(v, remaining) {
			return false
		}
	}
	return true
}

func occursOutsideNegation(v ir.Variable, body []ir.Literal) bool {
	for _, l := range body {
		if !l.Positive && !l.Atom.IsBuiltin() {
			continue
		}
		for _, x := range l.Variables() {
			if x == v {
				return true
			}
		}
	}
	return false
}

func isOrdinaryPositive(l ir.Literal) bool {
	return l.Positive && !l.Atom.IsBuiltin()
}

func groundUnder(args ir.Tuple, bound map[ir.Variable]bool) bool {
	for _, t := range args {
		for _, v := range ir.Variables(t) {
			if !bound[v] {
				return false
			}
		}
	}
	return true
}

// OptimisersFromConfig resolves the configured optimiser names in order.
func OptimisersFromConfig(cfg config.Config, reg *builtin.Registry) ([]Optimiser, error) {
	out := make([]Optimiser, 0, len(cfg.Optimisers))
	for _, name := range cfg.Optimisers {
		switch name {
		case config.OptimiserJoinCondition:
			out = append(out, NewJoinConditionOptimiser(reg))
		case config.OptimiserReplaceConstants:
			out = append(out, ReplaceVariablesWithConstantsOptimiser{})
		case config.OptimiserRemoveDuplicates:
			out = append(out, RemoveDuplicateLiteralOptimiser{})
		case config.OptimiserReorderLiterals:
			out = append(out, NewReOrderLiteralsOptimiser(reg, cfg.AllowUnlimitedVariablesInNegatedOrdinaryPredicates))
		default:
			return nil, fmt.Errorf("unknown optimiser %q", name)
		}
	}
	return out, nil
}

// Optimise applies opts in order. An empty resulting body becomes the
// single always-true literal TRUE.
func Optimise(r ir.Rule, opts []Optimiser) ir.Rule {
	for _, o := range opts {
		r = o.Optimise(r)
	}
	if len(r.Body) == 0 {
		r = ir.Rule{Head: r.Head, Body: []ir.Literal{ir.Bi(ir.BuiltinTrue)}}
	}
	return r
}
