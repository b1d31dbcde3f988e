package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/deduce/internal/config"
	"github.com/roach88/deduce/internal/ir"
)

func newValidator(opts ...config.Option) *RuleValidator {
	return NewRuleValidator(config.New(opts...), nil)
}

func TestRuleValidator_UnlimitedHeadVariable(t *testing.T) {
	// p(?x) :- q(?y).
	rule := ir.NewRule(ir.Ordinary("p", ir.V("x")), ir.Pos("q", ir.V("y")))

	_, err := newValidator().Process(rule)
	require.Error(t, err)
	assert.True(t, IsRuleUnsafe(err))

	var unsafe *RuleUnsafeError
	require.ErrorAs(t, err, &unsafe)
	assert.Equal(t, []ir.Variable{"x"}, unsafe.Variables)
	assert.Contains(t, err.Error(), "?x")
}

func TestRuleValidator_EqualityLimitsVariable(t *testing.T) {
	// p(?y) :- q(?x), ?x = ?y.
	rule := ir.NewRule(ir.Ordinary("p", ir.V("y")),
		ir.Pos("q", ir.V("x")),
		ir.Bi(ir.BuiltinEqual, ir.V("x"), ir.V("y")))

	got, err := newValidator().Process(rule)
	require.NoError(t, err)
	assert.Equal(t, rule, got)
}

func TestRuleValidator_EqualityChain(t *testing.T) {
	// p(?z) :- q(?x), ?y = ?z, ?x = ?y.
	rule := ir.NewRule(ir.Ordinary("p", ir.V("z")),
		ir.Pos("q", ir.V("x")),
		ir.Bi(ir.BuiltinEqual, ir.V("y"), ir.V("z")),
		ir.Bi(ir.BuiltinEqual, ir.V("x"), ir.V("y")))

	assert.Empty(t, newValidator().UnsafeVariables(rule))
}

func TestRuleValidator_ComparisonDoesNotLimit(t *testing.T) {
	// p(?x) :- q(?y), ?x < ?y.
	rule := ir.NewRule(ir.Ordinary("p", ir.V("x")),
		ir.Pos("q", ir.V("y")),
		ir.Bi(ir.BuiltinLess, ir.V("x"), ir.V("y")))

	assert.Equal(t, []ir.Variable{"x"}, newValidator().UnsafeVariables(rule))
}

func TestRuleValidator_TernaryTargets(t *testing.T) {
	// p(?z) :- q(?x, ?y), ?x + ?y = ?z.
	rule := ir.NewRule(ir.Ordinary("p", ir.V("z")),
		ir.Pos("q", ir.V("x"), ir.V("y")),
		ir.Bi(ir.BuiltinAdd, ir.V("x"), ir.V("y"), ir.V("z")))

	assert.Empty(t, newValidator().UnsafeVariables(rule))
	assert.Equal(t, []ir.Variable{"z"},
		newValidator(config.WithTernaryTargetsImplyLimited(false)).UnsafeVariables(rule))
}

func TestRuleValidator_RepeatedVariableInTernary(t *testing.T) {
	// q(?y) :- p(?x), ?x + ?y = ?y.
	rule := ir.NewRule(ir.Ordinary("q", ir.V("y")),
		ir.Pos("p", ir.V("x")),
		ir.Bi(ir.BuiltinAdd, ir.V("x"), ir.V("y"), ir.V("y")))

	assert.Equal(t, []ir.Variable{"y"}, newValidator().UnsafeVariables(rule))

	// q(?y) :- p(?x), ?x + ?x = ?y.
	doubled := ir.NewRule(ir.Ordinary("q", ir.V("y")),
		ir.Pos("p", ir.V("x")),
		ir.Bi(ir.BuiltinAdd, ir.V("x"), ir.V("x"), ir.V("y")))

	assert.Empty(t, newValidator().UnsafeVariables(doubled))
}

func TestRuleValidator_NegatedWildcards(t *testing.T) {
	// p(?x) :- q(?x), not r(?x, ?w).
	rule := ir.NewRule(ir.Ordinary("p", ir.V("x")),
		ir.Pos("q", ir.V("x")),
		ir.Neg("r", ir.V("x"), ir.V("w")))

	assert.Empty(t, newValidator().UnsafeVariables(rule))
	assert.Equal(t, []ir.Variable{"w"},
		newValidator(config.WithUnlimitedNegatedVariables(false)).UnsafeVariables(rule))
}

func TestRuleValidator_UnsafeVariablesSorted(t *testing.T) {
	// p(?b, ?a) :- q(?c).
	rule := ir.NewRule(ir.Ordinary("p", ir.V("b"), ir.V("a")), ir.Pos("q", ir.V("c")))

	assert.Equal(t, []ir.Variable{"a", "b"}, newValidator().UnsafeVariables(rule))
}

func TestRuleValidator_ProcessQuery(t *testing.T) {
	v := newValidator()

	require.NoError(t, v.ProcessQuery(ir.NewQuery(ir.Pos("q", ir.V("x")))))

	err := v.ProcessQuery(ir.NewQuery(ir.Pos("q", ir.V("x")), ir.Bi(ir.BuiltinLess, ir.V("x"), ir.V("y"))))
	assert.True(t, IsRuleUnsafe(err))
}

func TestRuleValidator_QueryOutputs(t *testing.T) {
	// ?- e(1, ?Y), not e(?Y, ?Z), ?Y < 5.
	q := ir.NewQuery(
		ir.Pos("e", ir.I(1), ir.V("Y")),
		ir.Neg("e", ir.V("Y"), ir.V("Z")),
		ir.Bi(ir.BuiltinLess, ir.V("Y"), ir.I(5)))

	v := newValidator()
	assert.Equal(t, []ir.Variable{"Y"}, v.QueryOutputs(q))
	assert.NoError(t, v.ProcessQuery(q))

	strict := newValidator(config.WithUnlimitedNegatedVariables(false))
	assert.Equal(t, []ir.Variable{"Y", "Z"}, strict.QueryOutputs(q))
	assert.True(t, IsRuleUnsafe(strict.ProcessQuery(q)))
}
