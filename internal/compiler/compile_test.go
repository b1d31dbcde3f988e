package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/deduce/internal/config"
	"github.com/roach88/deduce/internal/ir"
	"github.com/roach88/deduce/internal/storage"
)

func newCompiler(t *testing.T, opts ...config.Option) *Compiler {
	t.Helper()
	c, err := NewCompiler(config.New(opts...), nil)
	require.NoError(t, err)
	return c
}

func factsOf(pairs map[string][]ir.Tuple, opts ...storage.FactsOption) *storage.Facts {
	f := storage.NewFacts(opts...)
	for sym, ts := range pairs {
		for _, tup := range ts {
			f.Add(ir.Pred(sym, len(tup)), tup)
		}
	}
	return f
}

func ints(ns ...int64) ir.Tuple {
	t := make(ir.Tuple, len(ns))
	for i, n := range ns {
		t[i] = ir.I(n)
	}
	return t
}

func TestCompile_JoinOnBoundPositions(t *testing.T) {
	// path(?X, ?Y) :- e(?X, ?Z), e(?Z, ?Y).
	rule := ir.NewRule(ir.Ordinary("path", ir.V("X"), ir.V("Y")),
		ir.Pos("e", ir.V("X"), ir.V("Z")),
		ir.Pos("e", ir.V("Z"), ir.V("Y")))
	facts := factsOf(map[string][]ir.Tuple{"e": {ints(1, 2), ints(2, 3), ints(3, 4)}})

	cr, err := newCompiler(t).Compile(rule)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"scan e(?X, ?Z)",
		"join e(?Z, ?Y) on [0]",
		"head path(?X, ?Y)",
	}, cr.Plan())

	rel, err := cr.Evaluate(facts)
	require.NoError(t, err)
	assert.ElementsMatch(t, []ir.Tuple{ints(1, 3), ints(2, 4)}, rel.Tuples())
}

func TestCompile_ConstantSelection(t *testing.T) {
	// r(?Y) :- e(1, ?Y).
	rule := ir.NewRule(ir.Ordinary("r", ir.V("Y")), ir.Pos("e", ir.I(1), ir.V("Y")))
	facts := factsOf(map[string][]ir.Tuple{"e": {ints(1, 2), ints(2, 3), ints(1, 5)}})

	cr, err := newCompiler(t).Compile(rule)
	require.NoError(t, err)
	rel, err := cr.Evaluate(facts)
	require.NoError(t, err)
	assert.ElementsMatch(t, []ir.Tuple{ints(2), ints(5)}, rel.Tuples())
}

func TestCompile_RepeatedVariable(t *testing.T) {
	// loop(?X) :- e(?X, ?X).
	rule := ir.NewRule(ir.Ordinary("loop", ir.V("X")), ir.Pos("e", ir.V("X"), ir.V("X")))
	facts := factsOf(map[string][]ir.Tuple{"e": {ints(1, 1), ints(1, 2), ints(3, 3)}})

	cr, err := newCompiler(t).Compile(rule)
	require.NoError(t, err)
	rel, err := cr.Evaluate(facts)
	require.NoError(t, err)
	assert.ElementsMatch(t, []ir.Tuple{ints(1), ints(3)}, rel.Tuples())
}

func TestCompile_AntijoinWithWildcard(t *testing.T) {
	// p(?X) :- q(?X), not r(?X, ?W).
	rule := ir.NewRule(ir.Ordinary("p", ir.V("X")),
		ir.Pos("q", ir.V("X")),
		ir.Neg("r", ir.V("X"), ir.V("W")))
	facts := factsOf(map[string][]ir.Tuple{
		"q": {ints(1), ints(2)},
		"r": {ints(1, 5)},
	})

	cr, err := newCompiler(t).Compile(rule)
	require.NoError(t, err)
	rel, err := cr.Evaluate(facts)
	require.NoError(t, err)
	assert.Equal(t, []ir.Tuple{ints(2)}, rel.Tuples())
}

func TestCompile_NegationOnMissingRelation(t *testing.T) {
	rule := ir.NewRule(ir.Ordinary("p", ir.V("X")), ir.Pos("q", ir.V("X")), ir.Neg("r", ir.V("X")))
	facts := factsOf(map[string][]ir.Tuple{"q": {ints(1)}})

	cr, err := newCompiler(t).Compile(rule)
	require.NoError(t, err)
	rel, err := cr.Evaluate(facts)
	require.NoError(t, err)
	assert.Equal(t, []ir.Tuple{ints(1)}, rel.Tuples())
}

func TestCompile_ArithmeticBindsOutput(t *testing.T) {
	// s(?Z) :- q(?X, ?Y), ?X + ?Y = ?Z.
	rule := ir.NewRule(ir.Ordinary("s", ir.V("Z")),
		ir.Pos("q", ir.V("X"), ir.V("Y")),
		ir.Bi(ir.BuiltinAdd, ir.V("X"), ir.V("Y"), ir.V("Z")))
	facts := factsOf(map[string][]ir.Tuple{"q": {ints(1, 2), ints(3, 4)}})

	cr, err := newCompiler(t).Compile(rule)
	require.NoError(t, err)
	rel, err := cr.Evaluate(facts)
	require.NoError(t, err)
	assert.ElementsMatch(t, []ir.Tuple{ints(3), ints(7)}, rel.Tuples())
}

func TestCompile_ComparisonFilters(t *testing.T) {
	rule := ir.NewRule(ir.Ordinary("small", ir.V("X")),
		ir.Pos("q", ir.V("X")),
		ir.Bi(ir.BuiltinLess, ir.V("X"), ir.I(3)))
	facts := factsOf(map[string][]ir.Tuple{"q": {ints(1), ints(2), ints(3), ints(4)}})

	cr, err := newCompiler(t).Compile(rule)
	require.NoError(t, err)
	rel, err := cr.Evaluate(facts)
	require.NoError(t, err)
	assert.ElementsMatch(t, []ir.Tuple{ints(1), ints(2)}, rel.Tuples())
}

func TestCompile_DivideByZero(t *testing.T) {
	// d(?Z) :- q(?X, ?Y), ?X / ?Y = ?Z.
	rule := ir.NewRule(ir.Ordinary("d", ir.V("Z")),
		ir.Pos("q", ir.V("X"), ir.V("Y")),
		ir.Bi(ir.BuiltinDivide, ir.V("X"), ir.V("Y"), ir.V("Z")))
	facts := factsOf(map[string][]ir.Tuple{"q": {ints(4, 2), ints(1, 0)}})

	t.Run("stop", func(t *testing.T) {
		cr, err := newCompiler(t, config.WithDivideByZero(config.DivideByZeroStop)).Compile(rule)
		require.NoError(t, err)

		_, err = cr.Evaluate(facts)
		var ee *EvaluationError
		require.ErrorAs(t, err, &ee)
		assert.Equal(t, ErrCodeDivideByZero, ee.Code)
		assert.Equal(t, rule.String(), ee.Rule)
	})

	t.Run("discard", func(t *testing.T) {
		cr, err := newCompiler(t, config.WithDivideByZero(config.DivideByZeroDiscard)).Compile(rule)
		require.NoError(t, err)

		rel, err := cr.Evaluate(facts)
		require.NoError(t, err)
		assert.Equal(t, []ir.Tuple{ints(2)}, rel.Tuples())
	})
}

func TestCompile_Uncompilable(t *testing.T) {
	// p(?X) :- q(?X), ?Y < 3.
	rule := ir.NewRule(ir.Ordinary("p", ir.V("X")),
		ir.Pos("q", ir.V("X")),
		ir.Bi(ir.BuiltinLess, ir.V("Y"), ir.I(3)))

	_, err := newCompiler(t).Compile(rule)
	var ee *EvaluationError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ErrCodeUncompilable, ee.Code)
	assert.Equal(t, "?Y < 3", ee.Literal)
}

func TestCompile_BuiltinArity(t *testing.T) {
	rule := ir.NewRule(ir.Ordinary("p", ir.V("X")),
		ir.Pos("q", ir.V("X")),
		ir.Bi(ir.BuiltinLess, ir.V("X")))

	_, err := newCompiler(t).Compile(rule)
	var ee *EvaluationError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ErrCodeBuiltinArity, ee.Code)
}

func TestCompile_EmptyBodyDerivesHead(t *testing.T) {
	rule := ir.NewRule(ir.Ordinary("p", ir.I(1)))

	cr, err := newCompiler(t).Compile(rule)
	require.NoError(t, err)
	rel, err := cr.Evaluate(storage.NewFacts())
	require.NoError(t, err)
	assert.Equal(t, []ir.Tuple{ints(1)}, rel.Tuples())
}

func TestCompile_Constructs(t *testing.T) {
	// name(?N) :- person(f(?N, ?A)).
	rule := ir.NewRule(ir.Ordinary("name", ir.V("N")),
		ir.Pos("person", ir.Fn("f", ir.V("N"), ir.V("A"))))
	facts := factsOf(map[string][]ir.Tuple{"person": {
		{ir.Fn("f", ir.S("ann"), ir.I(30))},
		{ir.Fn("g", ir.S("bob"))},
	}})

	cr, err := newCompiler(t).Compile(rule)
	require.NoError(t, err)
	rel, err := cr.Evaluate(facts)
	require.NoError(t, err)
	assert.Equal(t, []ir.Tuple{{ir.S("ann")}}, rel.Tuples())
}

func TestCompile_EvaluateIncrementally(t *testing.T) {
	// path(?X, ?Y) :- e(?X, ?Z), path(?Z, ?Y).
	rule := ir.NewRule(ir.Ordinary("path", ir.V("X"), ir.V("Y")),
		ir.Pos("e", ir.V("X"), ir.V("Z")),
		ir.Pos("path", ir.V("Z"), ir.V("Y")))
	facts := factsOf(map[string][]ir.Tuple{
		"e":    {ints(1, 2), ints(2, 3)},
		"path": {ints(1, 2), ints(2, 3), ints(1, 3)},
	})
	deltas := facts.Empty()
	deltas.Add(ir.Pred("path", 2), ints(2, 3))

	cr, err := newCompiler(t).Compile(rule)
	require.NoError(t, err)

	rel, err := cr.EvaluateIncrementally(facts, deltas)
	require.NoError(t, err)
	assert.Equal(t, []ir.Tuple{ints(1, 3)}, rel.Tuples())

	empty, err := cr.EvaluateIncrementally(facts, facts.Empty())
	require.NoError(t, err)
	assert.Zero(t, empty.Len())
}

func TestCompile_EquivalenceAwareJoin(t *testing.T) {
	// p(?X) :- q(?X), r(?X).
	rule := ir.NewRule(ir.Ordinary("p", ir.V("X")), ir.Pos("q", ir.V("X")), ir.Pos("r", ir.V("X")))
	eq := storage.NewEquivalences()
	eq.Union(ir.S("a"), ir.S("b"))
	facts := factsOf(map[string][]ir.Tuple{
		"q": {{ir.S("a")}},
		"r": {{ir.S("b")}},
	}, storage.WithEquivalences(eq))

	cr, err := newCompiler(t).Compile(rule)
	require.NoError(t, err)
	rel, err := cr.Evaluate(facts)
	require.NoError(t, err)
	assert.Equal(t, []ir.Tuple{{ir.S("a")}}, rel.Tuples())
}

func TestCompile_HeadEquality(t *testing.T) {
	// ?X = ?Y :- same(?X, ?Y).
	rule := ir.Rule{
		Head: ir.Bi(ir.BuiltinEqual, ir.V("X"), ir.V("Y")),
		Body: []ir.Literal{ir.Pos("same", ir.V("X"), ir.V("Y"))},
	}

	cr, err := newCompiler(t).Compile(rule)
	require.NoError(t, err)
	assert.True(t, cr.IsHeadEquality())
	assert.Equal(t, equalityPredicate, cr.HeadPredicate())

	rel, err := cr.Evaluate(factsOf(map[string][]ir.Tuple{"same": {{ir.S("a"), ir.S("b")}}}))
	require.NoError(t, err)
	assert.Equal(t, []ir.Tuple{{ir.S("a"), ir.S("b")}}, rel.Tuples())
}

func TestCompileQuery(t *testing.T) {
	q := ir.NewQuery(ir.Pos("e", ir.I(1), ir.V("Y")))
	facts := factsOf(map[string][]ir.Tuple{"e": {ints(1, 2), ints(2, 3)}})

	cr, err := newCompiler(t).CompileQuery(q, q.OutputVariables())
	require.NoError(t, err)
	rel, err := cr.Evaluate(facts)
	require.NoError(t, err)
	assert.Equal(t, []ir.Tuple{ints(2)}, rel.Tuples())
}

func TestPlans(t *testing.T) {
	rule := ir.NewRule(ir.Ordinary("p", ir.V("X")), ir.Pos("q", ir.V("X")))
	cr, err := newCompiler(t).Compile(rule)
	require.NoError(t, err)

	assert.Equal(t, "p(?X) :- q(?X).\n  scan q(?X)\n  head p(?X)\n", Plans([]*CompiledRule{cr}))
}
