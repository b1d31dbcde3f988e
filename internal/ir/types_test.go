package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerm_IsGround(t *testing.T) {
	assert.True(t, I(1).IsGround())
	assert.False(t, V("X").IsGround())
	assert.True(t, Fn("f", I(1), Fn("g", S("a"))).IsGround())
	assert.False(t, Fn("f", I(1), Fn("g", V("Y"))).IsGround())
}

func TestCompare_TermKindOrder(t *testing.T) {
	// Constants, then constructs, then variables
	assert.Negative(t, Compare(I(100), Fn("a")))
	assert.Negative(t, Compare(Fn("z", I(1)), V("A")))
	assert.Negative(t, Compare(S("zzz"), V("A")))
}

func TestCompare_Constructs(t *testing.T) {
	assert.Negative(t, Compare(Fn("f", I(9)), Fn("g", I(1))), "functor first")
	assert.Negative(t, Compare(Fn("f", I(9)), Fn("f", I(1), I(1))), "then arity")
	assert.Negative(t, Compare(Fn("f", I(1), I(2)), Fn("f", I(1), I(3))), "then arguments")
	assert.Equal(t, 0, Compare(Fn("f", S("a")), Fn("f", S("a"))))
}

func TestEqual_Structural(t *testing.T) {
	assert.True(t, Equal(Fn("f", V("X"), I(1)), Fn("f", V("X"), I(1))))
	assert.False(t, Equal(Fn("f", V("X")), Fn("f", V("Y"))))
	assert.False(t, Equal(I(1), V("X")))
}

func TestAtom_String(t *testing.T) {
	assert.Equal(t, "p(1, ?X)", Ordinary("p", I(1), V("X")).String())
	assert.Equal(t, "?X = ?Y", BuiltinAtom(BuiltinEqual, V("X"), V("Y")).String())
	assert.Equal(t, "?A + ?B = ?C", BuiltinAtom(BuiltinAdd, V("A"), V("B"), V("C")).String())
	assert.Equal(t, `STRING_CONCAT("a", ?X, ?Y)`,
		BuiltinAtom(BuiltinConcat, S("a"), V("X"), V("Y")).String())
	assert.Equal(t, "TRUE", BuiltinAtom(BuiltinTrue).String())
}

func TestRule_String(t *testing.T) {
	r := NewRule(Ordinary("q", V("X")), Pos("s", V("X")), Neg("p", V("X")))
	assert.Equal(t, "q(?X) :- s(?X), not p(?X).", r.String())

	fact := NewRule(Ordinary("p", I(1)))
	assert.Equal(t, "p(1).", fact.String())
}

func TestQuery_OutputVariables(t *testing.T) {
	q := NewQuery(
		Pos("path", I(1), V("Y")),
		Pos("e", V("Y"), V("Z")),
		Bi(BuiltinLess, V("Y"), V("Z")),
	)
	assert.Equal(t, []Variable{"Y", "Z"}, q.OutputVariables())
}

func TestQuery_AsRule(t *testing.T) {
	q := NewQuery(Pos("path", V("X"), V("Y")))
	r := q.AsRule()

	assert.Equal(t, Pred("", 2), r.Head.Atom.Predicate)
	assert.Equal(t, Tuple{V("X"), V("Y")}, r.Head.Atom.Args)
	assert.Equal(t, q.Body, r.Body)
}

func TestQuery_NegatedOnlyVariables(t *testing.T) {
	q := NewQuery(
		Pos("e", I(1), V("Y")),
		Neg("e", V("Y"), V("Z")),
		Neg("f", V("W")),
		Bi(BuiltinLess, V("W"), I(3)),
	)
	assert.Equal(t, []Variable{"Z"}, q.NegatedOnlyVariables())

	r := q.RuleFor([]Variable{"Y"})
	assert.Equal(t, Tuple{V("Y")}, r.Head.Atom.Args)
	assert.Equal(t, Pred("", 1), r.Head.Atom.Predicate)
}

func TestRule_IsHeadEquality(t *testing.T) {
	r := Rule{
		Head: Literal{Positive: true, Atom: BuiltinAtom(BuiltinEqual, V("X"), V("Y"))},
		Body: []Literal{Pos("same", V("X"), V("Y"))},
	}
	assert.True(t, r.IsHeadEquality())
	assert.False(t, NewRule(Ordinary("p", V("X")), Pos("q", V("X"))).IsHeadEquality())
}

func TestProgram_AddFact(t *testing.T) {
	var p Program
	p.AddFact("e", I(1), I(2))
	p.AddFact("e", I(2), I(3))

	require.Len(t, p.Facts[Pred("e", 2)], 2)
	assert.Equal(t, Tuple{I(2), I(3)}, p.Facts[Pred("e", 2)][1])
}

func TestLiteral_Equal(t *testing.T) {
	assert.True(t, Pos("p", V("X")).Equal(Pos("p", V("X"))))
	assert.False(t, Pos("p", V("X")).Equal(Neg("p", V("X"))))
	assert.False(t, Pos("p", V("X")).Equal(Pos("p", V("Y"))))
}

func TestCatalog_RegisterAndConflicts(t *testing.T) {
	var prog Program
	prog.AddFact("p", I(1))
	prog.Rules = []Rule{
		NewRule(Ordinary("q", V("X")), Pos("p", V("X")), Bi(BuiltinLess, V("X"), I(3))),
		NewRule(Ordinary("p", V("X"), V("Y")), Pos("q", V("X")), Pos("q", V("Y"))),
	}

	c := CatalogOf(&prog)

	assert.Equal(t, []Predicate{Pred("p", 1), Pred("q", 1), Pred("p", 2)}, c.Predicates())
	assert.True(t, c.Contains(Pred("q", 1)))
	assert.False(t, c.Contains(Pred("q", 2)))
	assert.Equal(t, []ArityConflict{{Symbol: "p", Arities: []int{1, 2}}}, c.Conflicts())
	assert.Len(t, c.Lookup("p"), 2)
}

func TestCatalog_RegisterReportsNew(t *testing.T) {
	c := NewCatalog()
	assert.True(t, c.Register(Pred("e", 2)))
	assert.False(t, c.Register(Pred("e", 2)))
	assert.Empty(t, c.Conflicts())
}
