package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testProgram() *Program {
	p := &Program{}
	p.AddFact("e", I(1), I(2))
	p.AddFact("e", I(2), I(3))
	p.AddFact("n", S("a"))
	p.Rules = []Rule{
		NewRule(Ordinary("path", V("X"), V("Y")), Pos("e", V("X"), V("Y"))),
		NewRule(Ordinary("path", V("X"), V("Y")), Pos("e", V("X"), V("Z")), Pos("path", V("Z"), V("Y"))),
	}
	return p
}

func TestProgramFingerprint_Deterministic(t *testing.T) {
	a := ProgramFingerprint(testProgram())
	b := ProgramFingerprint(testProgram())

	assert.Equal(t, a, b, "fingerprint must not depend on map iteration order")
	assert.Len(t, a, 64, "SHA-256 hex is 64 characters")
}

func TestProgramFingerprint_ChangesWithInput(t *testing.T) {
	base := ProgramFingerprint(testProgram())

	moreFacts := testProgram()
	moreFacts.AddFact("e", I(3), I(4))

	fewerRules := testProgram()
	fewerRules.Rules = fewerRules.Rules[:1]

	withQuery := testProgram()
	withQuery.Queries = []Query{NewQuery(Pos("path", I(1), V("Y")))}

	assert.NotEqual(t, base, ProgramFingerprint(moreFacts))
	assert.NotEqual(t, base, ProgramFingerprint(fewerRules))
	assert.Equal(t, base, ProgramFingerprint(withQuery), "queries are excluded")
}

func TestRuleFingerprint_Polarity(t *testing.T) {
	pos := NewRule(Ordinary("q", V("X")), Pos("s", V("X")), Pos("p", V("X")))
	neg := NewRule(Ordinary("q", V("X")), Pos("s", V("X")), Neg("p", V("X")))

	assert.NotEqual(t, RuleFingerprint(pos), RuleFingerprint(neg))
	assert.Equal(t, RuleFingerprint(pos), RuleFingerprint(pos))
}
