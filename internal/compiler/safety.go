package compiler

import (
	"slices"

	"github.com/roach88/deduce/internal/builtin"
	"github.com/roach88/deduce/internal/config"
	"github.com/roach88/deduce/internal/ir"
)

// RuleValidator checks that every variable of a rule is limited.
//
// A variable is limited when it occurs in a positive ordinary body literal,
// or when a positive equality (or, with TernaryTargetsImplyLimited, any
// positive arithmetic builtin) has it as the only unlimited variable of its
// argument group. Builtins with a constructed argument are treated as
// ordinary literals.
//
// Unsafe variables are the unlimited ones that occur in the head, as a
// builtin argument, or in a negative ordinary literal. The last category is
// exempt when AllowUnlimitedVariablesInNegatedOrdinaryPredicates is set.
type RuleValidator struct {
	allowNegated bool
	ternary      bool
	registry     *builtin.Registry
}

// NewRuleValidator creates a validator from the configuration's safety flags.
func NewRuleValidator(cfg config.Config, reg *builtin.Registry) *RuleValidator {
	if reg == nil {
		reg = builtin.Default()
	}
	return &RuleValidator{
		allowNegated: cfg.AllowUnlimitedVariablesInNegatedOrdinaryPredicates,
		ternary:      cfg.TernaryTargetsImplyLimited,
		registry:     reg,
	}
}

// Process returns rule unchanged if it is safe, or a *RuleUnsafeError
// naming every unlimited variable.
func (v *RuleValidator) Process(rule ir.Rule) (ir.Rule, error) {
	if unsafe := v.UnsafeVariables(rule); len(unsafe) > 0 {
		return ir.Rule{}, &RuleUnsafeError{Rule: rule, Variables: unsafe}
	}
	return rule, nil
}

// QueryOutputs returns the variables a query answers with. Variables that
// occur only under negation are left out when unlimited negated variables
// are allowed, since nothing binds them.
func (v *RuleValidator) QueryOutputs(q ir.Query) []ir.Variable {
	vars := q.OutputVariables()
	if !v.allowNegated {
		return vars
	}
	negated := q.NegatedOnlyVariables()
	if len(negated) == 0 {
		return vars
	}
	return slices.DeleteFunc(vars, func(x ir.Variable) bool {
		return slices.Contains(negated, x)
	})
}

// ProcessQuery validates a query as the headless rule over QueryOutputs.
func (v *RuleValidator) ProcessQuery(q ir.Query) error {
	_, err := v.Process(q.RuleFor(v.QueryOutputs(q)))
	return err
}

// UnsafeVariables returns the unlimited variables of rule, sorted by name.
func (v *RuleValidator) UnsafeVariables(rule ir.Rule) []ir.Variable {
	var (
		limited  = make(map[ir.Variable]bool)
		head     = rule.Head.Variables()
		builtins []ir.Variable
		negated  []ir.Variable
		groups   [][]ir.Variable
	)

	for _, lit := range rule.Body {
		vars := lit.Variables()
		if len(vars) == 0 {
			continue
		}

		if !lit.Atom.IsBuiltin() || hasConstruct(lit.Atom.Args) {
			if lit.Positive {
				for _, x := range vars {
					limited[x] = true
				}
			} else {
				negated = append(negated, vars...)
			}
			continue
		}

		builtins = append(builtins, vars...)
		if lit.Positive && v.limitsGroup(lit.Atom.Builtin) {
			groups = append(groups, argumentSlots(lit.Atom.Args))
		}
	}

	// Close over the equality/arithmetic groups: a group with exactly one
	// unlimited slot left limits its variable. A variable repeated in one
	// builtin fills several slots, so ADD(?X, ?Y, ?Y) cannot limit ?Y.
	for changed := true; changed; {
		changed = false
		for i, g := range groups {
			rest := g[:0:0]
			for _, x := range g {
				if !limited[x] {
					rest = append(rest, x)
				}
			}
			if len(rest) != len(g) {
				changed = true
			}
			if len(rest) == 1 {
				limited[rest[0]] = true
				rest = nil
				changed = true
			}
			groups[i] = rest
		}
	}

	seen := make(map[ir.Variable]bool)
	var unsafe []ir.Variable
	collect := func(vars []ir.Variable) {
		for _, x := range vars {
			if !limited[x] && !seen[x] {
				seen[x] = true
				unsafe = append(unsafe, x)
			}
		}
	}
	collect(head)
	collect(builtins)
	if !v.allowNegated {
		collect(negated)
	}

	slices.Sort(unsafe)
	return unsafe
}

// argumentSlots lists the variable arguments of a builtin, once per
// position.
func argumentSlots(args ir.Tuple) []ir.Variable {
	var out []ir.Variable
	for _, a := range args {
		if x, ok := a.(ir.Variable); ok {
			out = append(out, x)
		}
	}
	return out
}

func (v *RuleValidator) limitsGroup(kind ir.BuiltinKind) bool {
	if kind == ir.BuiltinEqual {
		return true
	}
	if !v.ternary {
		return false
	}
	spec, ok := v.registry.Lookup(kind)
	return ok && spec.Class == builtin.ClassArithmetic
}

func hasConstruct(args ir.Tuple) bool {
	for _, t := range args {
		if _, ok := t.(ir.Construct); ok {
			return true
		}
	}
	return false
}
