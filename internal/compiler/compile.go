package compiler

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/deduce/internal/builtin"
	"github.com/roach88/deduce/internal/config"
	"github.com/roach88/deduce/internal/ir"
	"github.com/roach88/deduce/internal/storage"
)

// Compiler turns safe rules and queries into CompiledRules.
//
// The compiler is stateless after construction and may be shared by every
// rule of a program.
type Compiler struct {
	registry     *builtin.Registry
	optimisers   []Optimiser
	policy       config.DivideByZeroPolicy
	allowNegated bool
}

// NewCompiler creates a compiler from the configuration's optimiser list,
// divide-by-zero policy and negation flag.
func NewCompiler(cfg config.Config, reg *builtin.Registry) (*Compiler, error) {
	if reg == nil {
		reg = builtin.Default()
	}
	opts, err := OptimisersFromConfig(cfg, reg)
	if err != nil {
		return nil, err
	}
	return &Compiler{
		registry:     reg,
		optimisers:   opts,
		policy:       cfg.DivideByZero,
		allowNegated: cfg.AllowUnlimitedVariablesInNegatedOrdinaryPredicates,
	}, nil
}

// CompiledRule is a rule compiled into an ordered pipeline of stages over
// rows of variable bindings, plus the head pattern the surviving rows are
// substituted into.
//
// INVARIANTS:
//   - Immutable once built; safe to evaluate repeatedly across rounds
//   - Every head variable has a slot bound by some stage
type CompiledRule struct {
	source   ir.Rule
	rule     ir.Rule
	headPred ir.Predicate
	head     ir.Tuple
	equality bool
	slots    map[ir.Variable]int
	stages   []stage
	policy   config.DivideByZeroPolicy
}

// Source returns the rule as written.
func (cr *CompiledRule) Source() ir.Rule { return cr.source }

// Rule returns the optimised rule the pipeline was built from.
func (cr *CompiledRule) Rule() ir.Rule { return cr.rule }

// HeadPredicate returns the predicate the rule derives tuples for.
func (cr *CompiledRule) HeadPredicate() ir.Predicate { return cr.headPred }

// IsHeadEquality reports whether the rule derives term equivalences. Each
// derived tuple is then a pair of equivalent terms.
func (cr *CompiledRule) IsHeadEquality() bool { return cr.equality }

// Plan describes the stages in execution order.
func (cr *CompiledRule) Plan() []string {
	out := make([]string, 0, len(cr.stages)+1)
	for _, s := range cr.stages {
		out = append(out, s.String())
	}
	return append(out, "head "+cr.rule.Head.Atom.String())
}

func (cr *CompiledRule) String() string {
	return cr.source.String()
}

// Compile optimises and compiles one rule.
//
// At each step the first remaining literal that can be evaluated with the
// variables bound so far becomes the next stage. If none can, the rule is
// reported as uncompilable.
func (c *Compiler) Compile(r ir.Rule) (*CompiledRule, error) {
	opt := Optimise(r, c.optimisers)

	cr := &CompiledRule{
		source:   r,
		rule:     opt,
		headPred: headPredicate(opt),
		head:     opt.Head.Atom.Args,
		equality: opt.IsHeadEquality(),
		slots:    make(map[ir.Variable]int),
		policy:   c.policy,
	}
	for _, v := range opt.BodyVariables() {
		cr.slots[v] = len(cr.slots)
	}
	for _, v := range opt.Head.Variables() {
		if _, ok := cr.slots[v]; !ok {
			cr.slots[v] = len(cr.slots)
		}
	}

	bound := make(map[ir.Variable]bool)
	remaining := slices.Clone(opt.Body)
	for len(remaining) > 0 {
		idx := -1
		for i, l := range remaining {
			ok, err := c.placeable(l, bound, remaining)
			if err != nil {
				return nil, &EvaluationError{
					Code:    ErrCodeBuiltinArity,
					Rule:    r.String(),
					Literal: l.String(),
					Message: err.Error(),
					Err:     err,
				}
			}
			if ok {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, &EvaluationError{
				Code:    ErrCodeUncompilable,
				Rule:    r.String(),
				Literal: remaining[0].String(),
				Message: "no remaining literal can be evaluated with the variables bound so far",
			}
		}

		l := remaining[idx]
		cr.stages = append(cr.stages, c.newStage(cr, l, bound))
		for _, v := range l.Variables() {
			bound[v] = true
		}
		remaining = withoutLiteral(remaining, idx)
	}

	slog.Debug("rule compiled",
		"rule", r.String(),
		"optimised", opt.String(),
		"stages", len(cr.stages))
	return cr, nil
}

// CompileQuery compiles a query as a headless rule whose head lists
// outputs.
func (c *Compiler) CompileQuery(q ir.Query, outputs []ir.Variable) (*CompiledRule, error) {
	return c.Compile(q.RuleFor(outputs))
}

func (c *Compiler) placeable(l ir.Literal, bound map[ir.Variable]bool, remaining []ir.Literal) (bool, error) {
	if l.Atom.IsBuiltin() {
		if err := c.registry.CheckArity(l.Atom); err != nil {
			return false, err
		}
		if !l.Positive {
			return groundUnder(l.Atom.Args, bound), nil
		}
		spec, _ := c.registry.Lookup(l.Atom.Builtin)
		return spec.CanCompute(func(i int) bool { return groundUnder(l.Atom.Args[i:i+1], bound) }), nil
	}
	if l.Positive {
		return true, nil
	}
	for _, v := range l.Variables() {
		if bound[v] {
			continue
		}
		if !c.allowNegated || occursOutsideNegation(v, remaining) {
			return false, nil
		}
	}
	return true, nil
}

func (c *Compiler) newStage(cr *CompiledRule, l ir.Literal, bound map[ir.Variable]bool) stage {
	if l.Atom.IsBuiltin() {
		spec, _ := c.registry.Lookup(l.Atom.Builtin)
		return &builtinStage{
			atom:     l.Atom,
			spec:     spec,
			positive: l.Positive,
			slots:    cr.slots,
			policy:   cr.policy,
		}
	}

	var keys []int
	for i, t := range l.Atom.Args {
		if groundUnder(ir.Tuple{t}, bound) {
			keys = append(keys, i)
		}
	}
	if l.Positive {
		return &joinStage{pred: l.Atom.Predicate, pattern: l.Atom.Args, keys: keys, slots: cr.slots}
	}
	return &antijoinStage{pred: l.Atom.Predicate, pattern: l.Atom.Args, keys: keys, slots: cr.slots}
}

// Evaluate runs the pipeline against facts and returns the derived head
// tuples.
func (cr *CompiledRule) Evaluate(facts *storage.Facts) (storage.Relation, error) {
	out := storage.NewHashRelation()
	if err := cr.run(&execution{facts: facts, deltaStage: -1}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// EvaluateIncrementally runs the pipeline once per positive ordinary
// literal whose predicate has tuples in deltas, with that literal reading
// deltas and every other literal reading facts. The union of the runs
// holds every head tuple that depends on at least one delta tuple.
func (cr *CompiledRule) EvaluateIncrementally(facts, deltas *storage.Facts) (storage.Relation, error) {
	out := storage.NewHashRelation()
	for i, s := range cr.stages {
		js, ok := s.(*joinStage)
		if !ok {
			continue
		}
		if rel, ok := deltas.Lookup(js.pred); !ok || rel.Len() == 0 {
			continue
		}
		if err := cr.run(&execution{facts: facts, deltas: deltas, deltaStage: i}, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (cr *CompiledRule) run(ec *execution, out storage.Relation) error {
	ec.eq = ec.facts.Equivalences()
	rows := []row{make(row, len(cr.slots))}
	for i, s := range cr.stages {
		ec.stage = i
		var err error
		rows, err = s.run(ec, rows)
		if err != nil {
			var ee *EvaluationError
			if errors.As(err, &ee) && ee.Rule == "" {
				ee.Rule = cr.source.String()
			}
			return err
		}
		if len(rows) == 0 {
			return nil
		}
	}
	for _, r := range rows {
		t := make(ir.Tuple, len(cr.head))
		for i, h := range cr.head {
			t[i] = resolve(h, r, cr.slots)
		}
		if t.IsGround() {
			out.Add(t)
		}
	}
	return nil
}

// =============================================================================
// Stages
// =============================================================================

// row holds the binding of each variable slot; nil means unbound.
type row []ir.Term

// execution is the state of one pipeline run.
type execution struct {
	facts      *storage.Facts
	deltas     *storage.Facts
	deltaStage int
	stage      int
	eq         *storage.Equivalences
}

// source returns the fact store the current stage reads.
func (ec *execution) source() *storage.Facts {
	if ec.deltas != nil && ec.stage == ec.deltaStage {
		return ec.deltas
	}
	return ec.facts
}

type stage interface {
	run(ec *execution, rows []row) ([]row, error)
	String() string
}

// joinStage extends each row with every matching tuple of a relation. The
// first join of a pipeline is a scan; later joins probe an index keyed on
// the positions already bound.
type joinStage struct {
	pred    ir.Predicate
	pattern ir.Tuple
	keys    []int
	slots   map[ir.Variable]int
}

func (s *joinStage) String() string {
	atom := ir.Atom{Predicate: s.pred, Args: s.pattern}
	if len(s.keys) == 0 {
		return "scan " + atom.String()
	}
	return fmt.Sprintf("join %s on %v", atom, s.keys)
}

func (s *joinStage) run(ec *execution, rows []row) ([]row, error) {
	src := ec.source()
	var out []row
	for _, r := range rows {
		for _, t := range candidates(src, s.pred, s.pattern, s.keys, r, s.slots) {
			next := slices.Clone(r)
			if unifyTuple(s.pattern, t, next, s.slots, ec.eq) {
				out = append(out, next)
			}
		}
	}
	return out, nil
}

// antijoinStage drops each row for which a matching tuple exists. Unbound
// variables act as wildcards.
type antijoinStage struct {
	pred    ir.Predicate
	pattern ir.Tuple
	keys    []int
	slots   map[ir.Variable]int
}

func (s *antijoinStage) String() string {
	return "antijoin " + ir.Atom{Predicate: s.pred, Args: s.pattern}.String()
}

func (s *antijoinStage) run(ec *execution, rows []row) ([]row, error) {
	out := rows[:0:0]
	for _, r := range rows {
		if !s.exists(ec, r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *antijoinStage) exists(ec *execution, r row) bool {
	if len(s.keys) == len(s.pattern) && ec.eq == nil {
		rel, ok := ec.facts.Lookup(s.pred)
		if !ok {
			return false
		}
		t := make(ir.Tuple, len(s.pattern))
		for i, p := range s.pattern {
			t[i] = resolve(p, r, s.slots)
		}
		return rel.Contains(t)
	}
	for _, t := range candidates(ec.facts, s.pred, s.pattern, s.keys, r, s.slots) {
		if unifyTuple(s.pattern, t, slices.Clone(r), s.slots, ec.eq) {
			return true
		}
	}
	return false
}

// builtinStage evaluates a builtin for each row, dropping rows for which it
// is false or not evaluable and extending rows with computed bindings.
type builtinStage struct {
	atom     ir.Atom
	spec     builtin.Spec
	positive bool
	slots    map[ir.Variable]int
	policy   config.DivideByZeroPolicy
}

func (s *builtinStage) String() string {
	if s.positive {
		return "builtin " + s.atom.String()
	}
	return "builtin not " + s.atom.String()
}

func (s *builtinStage) run(_ *execution, rows []row) ([]row, error) {
	out := rows[:0:0]
	for _, r := range rows {
		args := make(ir.Tuple, len(s.atom.Args))
		for i, a := range s.atom.Args {
			args[i] = resolve(a, r, s.slots)
		}
		res, err := s.spec.Eval(s.atom.Builtin, args)
		if err != nil {
			if builtin.IsDivideByZero(err) {
				if s.policy == config.DivideByZeroDiscard {
					continue
				}
				return nil, &EvaluationError{
					Code:    ErrCodeDivideByZero,
					Literal: s.atom.String(),
					Message: "division by zero",
					Err:     err,
				}
			}
			return nil, &EvaluationError{
				Code:    ErrCodeBuiltinFailed,
				Literal: s.atom.String(),
				Message: err.Error(),
				Err:     err,
			}
		}

		if !s.positive {
			if res.Outcome == builtin.False {
				out = append(out, r)
			}
			continue
		}
		if res.Outcome != builtin.True {
			continue
		}
		if len(res.Bindings) == 0 {
			out = append(out, r)
			continue
		}
		next := slices.Clone(r)
		for v, t := range res.Bindings {
			if i, ok := s.slots[v]; ok {
				next[i] = t
			}
		}
		out = append(out, next)
	}
	return out, nil
}

// =============================================================================
// Row helpers
// =============================================================================

// candidates returns the tuples of pred that may match pattern under r:
// every tuple when no position is bound, otherwise an index probe.
func candidates(src *storage.Facts, pred ir.Predicate, pattern ir.Tuple, keys []int, r row, slots map[ir.Variable]int) []ir.Tuple {
	if len(keys) == 0 {
		rel, ok := src.Lookup(pred)
		if !ok {
			return nil
		}
		return rel.Tuples()
	}
	key := make(ir.Tuple, len(keys))
	for i, pos := range keys {
		key[i] = resolve(pattern[pos], r, slots)
	}
	return src.Index(pred, keys).Lookup(key)
}

// resolve replaces the bound variables of t with their row values.
func resolve(t ir.Term, r row, slots map[ir.Variable]int) ir.Term {
	switch x := t.(type) {
	case ir.Variable:
		if i, ok := slots[x]; ok && r[i] != nil {
			return r[i]
		}
		return x
	case ir.Construct:
		if x.IsGround() {
			return x
		}
		args := make([]ir.Term, len(x.Args))
		for i, a := range x.Args {
			args[i] = resolve(a, r, slots)
		}
		return ir.Construct{Functor: x.Functor, Args: args}
	default:
		return t
	}
}

func unifyTuple(pattern, ground ir.Tuple, r row, slots map[ir.Variable]int, eq *storage.Equivalences) bool {
	if len(pattern) != len(ground) {
		return false
	}
	for i, p := range pattern {
		if !unify(p, ground[i], r, slots, eq) {
			return false
		}
	}
	return true
}

// unify matches pattern against a ground term, binding unbound slots of r.
// Ground comparisons go through eq when rule-head equality is in use.
func unify(pattern, ground ir.Term, r row, slots map[ir.Variable]int, eq *storage.Equivalences) bool {
	switch p := pattern.(type) {
	case ir.Variable:
		i := slots[p]
		if r[i] == nil {
			r[i] = ground
			return true
		}
		return sameTerm(r[i], ground, eq)
	case ir.Construct:
		if p.IsGround() {
			return sameTerm(p, ground, eq)
		}
		g, ok := ground.(ir.Construct)
		if !ok || g.Functor != p.Functor || len(g.Args) != len(p.Args) {
			return false
		}
		for i, a := range p.Args {
			if !unify(a, g.Args[i], r, slots, eq) {
				return false
			}
		}
		return true
	default:
		return sameTerm(pattern, ground, eq)
	}
}

func sameTerm(a, b ir.Term, eq *storage.Equivalences) bool {
	if eq != nil {
		return eq.Equivalent(a, b)
	}
	return ir.Equal(a, b)
}

// Plans renders the plan of every compiled rule, one rule per block.
func Plans(rules []*CompiledRule) string {
	var b strings.Builder
	for i, cr := range rules {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(cr.source.String())
		b.WriteByte('\n')
		for _, step := range cr.Plan() {
			b.WriteString("  ")
			b.WriteString(step)
			b.WriteByte('\n')
		}
	}
	return b.String()
}
