package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/deduce/internal/config"
	"github.com/roach88/deduce/internal/ir"
)

// stratumOf returns the index of the first stratum holding a rule for head.
func stratumOf(strata [][]ir.Rule, head string) int {
	for i, s := range strata {
		for _, r := range s {
			if r.Head.Atom.Predicate.Symbol == head {
				return i
			}
		}
	}
	return -1
}

func countRules(strata [][]ir.Rule) int {
	n := 0
	for _, s := range strata {
		n += len(s)
	}
	return n
}

// =============================================================================
// Global stratifier
// =============================================================================

func TestGlobalStratifier_NegativeSelfCycle(t *testing.T) {
	// p(?X) :- q(?X), not p(?X).
	rules := []ir.Rule{
		ir.NewRule(ir.Ordinary("p", ir.V("X")), ir.Pos("q", ir.V("X")), ir.Neg("p", ir.V("X"))),
	}

	_, err := GlobalStratifier{}.Stratify(rules)
	require.Error(t, err)
	assert.True(t, IsNotStratified(err))

	var ns *ProgramNotStratifiedError
	require.ErrorAs(t, err, &ns)
	assert.Equal(t, []ir.Predicate{ir.Pred("p", 1), ir.Pred("p", 1)}, ns.Cycle)
	assert.Contains(t, err.Error(), "p/1 → p/1")
}

func TestGlobalStratifier_NegativeMutualCycle(t *testing.T) {
	// p(?X) :- r(?X), not q(?X).  q(?X) :- p(?X).
	rules := []ir.Rule{
		ir.NewRule(ir.Ordinary("p", ir.V("X")), ir.Pos("r", ir.V("X")), ir.Neg("q", ir.V("X"))),
		ir.NewRule(ir.Ordinary("q", ir.V("X")), ir.Pos("p", ir.V("X"))),
	}

	_, err := GlobalStratifier{}.Stratify(rules)
	var ns *ProgramNotStratifiedError
	require.ErrorAs(t, err, &ns)
	require.Len(t, ns.Cycle, 3)
	assert.Equal(t, ns.Cycle[0], ns.Cycle[2])
}

func TestGlobalStratifier_PositiveDependencies(t *testing.T) {
	// q(?X) :- r(?X), t(?X).  s(?X, ?Y) :- t(?X, ?Y), q(?X).
	rules := []ir.Rule{
		ir.NewRule(ir.Ordinary("s", ir.V("X"), ir.V("Y")), ir.Pos("t", ir.V("X"), ir.V("Y")), ir.Pos("q", ir.V("X"))),
		ir.NewRule(ir.Ordinary("q", ir.V("X")), ir.Pos("r", ir.V("X")), ir.Pos("t", ir.V("X"))),
	}

	strata, err := GlobalStratifier{}.Stratify(rules)
	require.NoError(t, err)
	assert.Equal(t, 2, countRules(strata))
	assert.LessOrEqual(t, stratumOf(strata, "q"), stratumOf(strata, "s"))

	// Without negation every rule lands in the single lowest stratum.
	require.Len(t, strata, 1)
	assert.Equal(t, 0, stratumOf(strata, "q"))
	assert.Equal(t, 0, stratumOf(strata, "s"))
}

func TestGlobalStratifier_NegationRaisesStratum(t *testing.T) {
	// q(?X) :- s(?X), not p(?X).  p(?X) :- r(?X).
	rules := []ir.Rule{
		ir.NewRule(ir.Ordinary("q", ir.V("X")), ir.Pos("s", ir.V("X")), ir.Neg("p", ir.V("X"))),
		ir.NewRule(ir.Ordinary("p", ir.V("X")), ir.Pos("r", ir.V("X"))),
	}

	strata, err := GlobalStratifier{}.Stratify(rules)
	require.NoError(t, err)
	require.Len(t, strata, 2)
	assert.Equal(t, 0, stratumOf(strata, "p"))
	assert.Equal(t, 1, stratumOf(strata, "q"))
}

func TestGlobalStratifier_RecursionSharesStratum(t *testing.T) {
	rules := []ir.Rule{
		ir.NewRule(ir.Ordinary("path", ir.V("X"), ir.V("Y")), ir.Pos("e", ir.V("X"), ir.V("Y"))),
		ir.NewRule(ir.Ordinary("path", ir.V("X"), ir.V("Y")),
			ir.Pos("e", ir.V("X"), ir.V("Z")), ir.Pos("path", ir.V("Z"), ir.V("Y"))),
	}

	strata, err := GlobalStratifier{}.Stratify(rules)
	require.NoError(t, err)
	require.Len(t, strata, 1)
	assert.Equal(t, rules, strata[0], "rules keep their order within a stratum")
}

func TestGlobalStratifier_Empty(t *testing.T) {
	strata, err := GlobalStratifier{}.Stratify(nil)
	require.NoError(t, err)
	assert.Empty(t, strata)
}

// =============================================================================
// Local stratifier
// =============================================================================

func TestLocalStratifier_ConstantsSeparateHeads(t *testing.T) {
	// p(1, ?Y) :- q(?X, ?Y), not p(2, ?Y).
	rules := []ir.Rule{
		ir.NewRule(ir.Ordinary("p", ir.I(1), ir.V("Y")),
			ir.Pos("q", ir.V("X"), ir.V("Y")), ir.Neg("p", ir.I(2), ir.V("Y"))),
	}

	_, err := GlobalStratifier{}.Stratify(rules)
	require.Error(t, err)

	strata, err := NewLocalStratifier(true, nil).Stratify(rules)
	require.NoError(t, err)
	require.Len(t, strata, 1)
	assert.Len(t, strata[0], 1)
}

func TestLocalStratifier_SplitsProducer(t *testing.T) {
	// p(1, ?Y) :- r(?Y), not q(2, ?Y).  q(?X, ?Y) :- p(?X, ?Y).
	rules := []ir.Rule{
		ir.NewRule(ir.Ordinary("p", ir.I(1), ir.V("Y")),
			ir.Pos("r", ir.V("Y")), ir.Neg("q", ir.I(2), ir.V("Y"))),
		ir.NewRule(ir.Ordinary("q", ir.V("X"), ir.V("Y")), ir.Pos("p", ir.V("X"), ir.V("Y"))),
	}

	strata, err := NewLocalStratifier(true, nil).Stratify(rules)
	require.NoError(t, err)
	require.Len(t, strata, 2)
	assert.Len(t, strata[0], 1)
	assert.Len(t, strata[1], 2)
	assert.Equal(t, "q", strata[0][0].Head.Atom.Predicate.Symbol)
}

func TestLocalStratifier_NonStrictKeepsEqualityInBody(t *testing.T) {
	rules := []ir.Rule{
		ir.NewRule(ir.Ordinary("p", ir.I(1), ir.V("Y")),
			ir.Pos("r", ir.V("Y")), ir.Neg("q", ir.I(2), ir.V("Y"))),
		ir.NewRule(ir.Ordinary("q", ir.V("X"), ir.V("Y")), ir.Pos("p", ir.V("X"), ir.V("Y"))),
	}

	s := NewLocalStratifier(false, nil)
	assert.Equal(t, config.StratifierLocalNonStrict, s.Name())
	_, err := s.Stratify(rules)
	assert.True(t, IsNotStratified(err))
}

func TestLocalStratifier_DropsUnsatisfiableSplit(t *testing.T) {
	// p(?X, ?Y) :- r(?X, ?Y), not p(2, ?Y), ?X < 2.
	rules := []ir.Rule{
		ir.NewRule(ir.Ordinary("p", ir.V("X"), ir.V("Y")),
			ir.Pos("r", ir.V("X"), ir.V("Y")),
			ir.Neg("p", ir.I(2), ir.V("Y")),
			ir.Bi(ir.BuiltinLess, ir.V("X"), ir.I(2))),
	}

	strata, err := NewLocalStratifier(true, nil).Stratify(rules)
	require.NoError(t, err)
	require.Len(t, strata, 1)
	assert.Len(t, strata[0], 1)
}

func TestLocalStratifier_NotStratified(t *testing.T) {
	// p(2, ?Y) :- r(?Y), not q(2, ?Y).  q(?X, ?Y) :- p(?X, ?Y).
	rules := []ir.Rule{
		ir.NewRule(ir.Ordinary("p", ir.I(2), ir.V("Y")),
			ir.Pos("r", ir.V("Y")), ir.Neg("q", ir.I(2), ir.V("Y"))),
		ir.NewRule(ir.Ordinary("q", ir.V("X"), ir.V("Y")), ir.Pos("p", ir.V("X"), ir.V("Y"))),
	}

	_, err := NewLocalStratifier(true, nil).Stratify(rules)
	var ns *ProgramNotStratifiedError
	require.ErrorAs(t, err, &ns)
	assert.Equal(t, config.StratifierLocalStrict, ns.Stratifier)
}

// =============================================================================
// Stratifier chain
// =============================================================================

func TestStratify_FallsBackToLocal(t *testing.T) {
	rules := []ir.Rule{
		ir.NewRule(ir.Ordinary("p", ir.I(1), ir.V("Y")),
			ir.Pos("q", ir.V("X"), ir.V("Y")), ir.Neg("p", ir.I(2), ir.V("Y"))),
	}
	stratifiers, err := StratifiersFromConfig(config.Default(), nil)
	require.NoError(t, err)

	strata, name, err := Stratify(rules, stratifiers)
	require.NoError(t, err)
	assert.Equal(t, config.StratifierLocalStrict, name)
	assert.Len(t, strata, 1)
}

func TestStratify_ReportsGlobalCycle(t *testing.T) {
	rules := []ir.Rule{
		ir.NewRule(ir.Ordinary("p", ir.V("X")), ir.Pos("q", ir.V("X")), ir.Neg("p", ir.V("X"))),
	}
	stratifiers, err := StratifiersFromConfig(config.Default(), nil)
	require.NoError(t, err)

	_, _, err = Stratify(rules, stratifiers)
	var ns *ProgramNotStratifiedError
	require.ErrorAs(t, err, &ns)
	assert.Equal(t, config.StratifierGlobal, ns.Stratifier)
	assert.NotEmpty(t, ns.Cycle)
}

func TestStratifiersFromConfig_Unknown(t *testing.T) {
	cfg := config.Default()
	cfg.Stratifiers = []string{"magic"}

	_, err := StratifiersFromConfig(cfg, nil)
	assert.ErrorContains(t, err, "magic")
}
