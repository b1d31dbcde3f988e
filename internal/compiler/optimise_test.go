package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/deduce/internal/config"
	"github.com/roach88/deduce/internal/ir"
)

func TestJoinConditionOptimiser(t *testing.T) {
	tests := []struct {
		name string
		rule ir.Rule
		want string
	}{
		{
			name: "exact equality joins",
			rule: ir.NewRule(ir.Ordinary("p", ir.V("X")),
				ir.Pos("q", ir.V("X")),
				ir.Pos("r", ir.V("Y")),
				ir.Bi(ir.BuiltinExactEqual, ir.V("X"), ir.V("Y"))),
			want: "p(?X) :- q(?X), r(?X).",
		},
		{
			// ?Y is only tested after the equality binds it.
			name: "second side bound only by the equality",
			rule: ir.NewRule(ir.Ordinary("p", ir.V("Y")),
				ir.Pos("q", ir.V("X")),
				ir.Bi(ir.BuiltinEqual, ir.V("X"), ir.V("Y")),
				ir.Neg("r", ir.V("Y")),
				ir.Bi(ir.BuiltinLess, ir.V("Y"), ir.I(3))),
			want: "p(?X) :- q(?X), not r(?X), ?X < 3.",
		},
		{
			name: "first side bound only by the equality",
			rule: ir.NewRule(ir.Ordinary("p", ir.V("X")),
				ir.Bi(ir.BuiltinEqual, ir.V("X"), ir.V("Y")),
				ir.Pos("q", ir.V("Y"))),
			want: "p(?Y) :- q(?Y).",
		},
		{
			// EQUAL matches 1 and 1.0, a join on one variable would not.
			name: "both sides bound elsewhere",
			rule: ir.NewRule(ir.Ordinary("p", ir.V("X")),
				ir.Pos("q", ir.V("X")),
				ir.Pos("r", ir.V("Y")),
				ir.Bi(ir.BuiltinEqual, ir.V("X"), ir.V("Y"))),
			want: "p(?X) :- q(?X), r(?Y), ?X = ?Y.",
		},
		{
			name: "side computed by arithmetic",
			rule: ir.NewRule(ir.Ordinary("p", ir.V("Y")),
				ir.Pos("q", ir.V("X")),
				ir.Pos("r", ir.V("Z")),
				ir.Bi(ir.BuiltinAdd, ir.V("Z"), ir.I(1), ir.V("Y")),
				ir.Bi(ir.BuiltinEqual, ir.V("X"), ir.V("Y"))),
			want: "p(?Y) :- q(?X), r(?Z), ?Z + 1 = ?Y, ?X = ?Y.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.rule.String()
			got := NewJoinConditionOptimiser(nil).Optimise(tt.rule)
			assert.Equal(t, tt.want, got.String())
			assert.Equal(t, before, tt.rule.String(), "input rule is not mutated")
		})
	}
}

func TestReplaceVariablesWithConstantsOptimiser(t *testing.T) {
	// p(?X, ?Y) :- q(?X, ?Y), ?X = 'a'.
	rule := ir.NewRule(ir.Ordinary("p", ir.V("X"), ir.V("Y")),
		ir.Pos("q", ir.V("X"), ir.V("Y")),
		ir.Bi(ir.BuiltinEqual, ir.V("X"), ir.S("a")))

	got := ReplaceVariablesWithConstantsOptimiser{}.Optimise(rule)
	require.Len(t, got.Body, 1)
	assert.Equal(t, ir.Tuple{ir.S("a"), ir.V("Y")}, got.Head.Atom.Args)
	assert.Equal(t, ir.Tuple{ir.S("a"), ir.V("Y")}, got.Body[0].Atom.Args)
}

func TestReplaceVariablesWithConstantsOptimiser_KeepsNumericEquality(t *testing.T) {
	// EQUAL matches 1 and 1.0, a join on the constant 1 would not.
	rule := ir.NewRule(ir.Ordinary("p", ir.V("X")),
		ir.Pos("q", ir.V("X")),
		ir.Bi(ir.BuiltinEqual, ir.V("X"), ir.I(1)))

	got := ReplaceVariablesWithConstantsOptimiser{}.Optimise(rule)
	assert.Equal(t, rule, got)
}

func TestRemoveDuplicateLiteralOptimiser(t *testing.T) {
	rule := ir.NewRule(ir.Ordinary("p", ir.V("X")),
		ir.Pos("q", ir.V("X")),
		ir.Neg("r", ir.V("X")),
		ir.Pos("q", ir.V("X")),
		ir.Neg("r", ir.V("X")))

	got := RemoveDuplicateLiteralOptimiser{}.Optimise(rule)
	assert.Equal(t, "p(?X) :- q(?X), not r(?X).", got.String())
}

func TestReOrderLiteralsOptimiser_BuiltinsAfterBinding(t *testing.T) {
	// p(?X) :- ?X < ?Y, q(?X), r(?Y).
	rule := ir.NewRule(ir.Ordinary("p", ir.V("X")),
		ir.Bi(ir.BuiltinLess, ir.V("X"), ir.V("Y")),
		ir.Pos("q", ir.V("X")),
		ir.Pos("r", ir.V("Y")))

	got := NewReOrderLiteralsOptimiser(nil, true).Optimise(rule)
	assert.Equal(t, "p(?X) :- q(?X), r(?Y), ?X < ?Y.", got.String())
}

func TestReOrderLiteralsOptimiser_NegationAsEarlyAsPossible(t *testing.T) {
	// p(?X) :- q(?X), r(?X, ?Y), not s(?X).
	rule := ir.NewRule(ir.Ordinary("p", ir.V("X")),
		ir.Pos("q", ir.V("X")),
		ir.Pos("r", ir.V("X"), ir.V("Y")),
		ir.Neg("s", ir.V("X")))

	got := NewReOrderLiteralsOptimiser(nil, true).Optimise(rule)
	assert.Equal(t, "p(?X) :- q(?X), not s(?X), r(?X, ?Y).", got.String())
}

func TestReOrderLiteralsOptimiser_PrefersSharedVariables(t *testing.T) {
	// p(?X, ?Z) :- a(?X), b(?Z), c(?X, ?Z).
	rule := ir.NewRule(ir.Ordinary("p", ir.V("X"), ir.V("Z")),
		ir.Pos("a", ir.V("X")),
		ir.Pos("b", ir.V("Z")),
		ir.Pos("c", ir.V("X"), ir.V("Z")))

	got := NewReOrderLiteralsOptimiser(nil, true).Optimise(rule)
	assert.Equal(t, "p(?X, ?Z) :- a(?X), c(?X, ?Z), b(?Z).", got.String())
}

func TestOptimise_EmptyBodyBecomesTrue(t *testing.T) {
	rule := ir.NewRule(ir.Ordinary("p", ir.V("X")), ir.Bi(ir.BuiltinEqual, ir.V("X"), ir.S("a")))

	opts, err := OptimisersFromConfig(config.Default(), nil)
	require.NoError(t, err)

	got := Optimise(rule, opts)
	assert.Equal(t, `p("a") :- TRUE.`, got.String())
}

func TestOptimisersFromConfig(t *testing.T) {
	opts, err := OptimisersFromConfig(config.Default(), nil)
	require.NoError(t, err)

	names := make([]string, len(opts))
	for i, o := range opts {
		names[i] = o.Name()
	}
	assert.Equal(t, config.DefaultOptimisers(), names)

	cfg := config.Default()
	cfg.Optimisers = []string{"bogus"}
	_, err = OptimisersFromConfig(cfg, nil)
	assert.ErrorContains(t, err, "bogus")
}
