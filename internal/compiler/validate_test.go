package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/deduce/internal/ir"
)

// =============================================================================
// Program Validation Tests
// =============================================================================

func validProgram() *ir.Program {
	prog := &ir.Program{
		Rules: []ir.Rule{
			ir.NewRule(ir.Ordinary("q", ir.V("X")), ir.Pos("p", ir.V("X"))),
		},
		Queries: []ir.Query{ir.NewQuery(ir.Pos("q", ir.V("X")))},
	}
	prog.AddFact("p", ir.I(1))
	prog.AddFact("p", ir.I(2))
	return prog
}

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidateProgramValid(t *testing.T) {
	errs := ValidateProgram(validProgram(), nil)
	assert.Empty(t, errs, "valid program should have no errors")
}

func TestValidateProgramFactNotGround(t *testing.T) {
	prog := validProgram()
	prog.AddFact("p", ir.V("X"))

	errs := ValidateProgram(prog, nil)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrFactNotGround, errs[0].Code)
	assert.Equal(t, "facts.p/1[2]", errs[0].Field)
}

func TestValidateProgramFactArity(t *testing.T) {
	prog := validProgram()
	prog.Facts[ir.Pred("p", 1)] = append(prog.Facts[ir.Pred("p", 1)], ints(1, 2))

	errs := ValidateProgram(prog, nil)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrFactArity, errs[0].Code)
	assert.Contains(t, errs[0].Message, "arity is 1")
}

func TestValidateProgramNegativeHead(t *testing.T) {
	prog := validProgram()
	prog.Rules = append(prog.Rules, ir.Rule{
		Head: ir.Neg("r", ir.V("X")),
		Body: []ir.Literal{ir.Pos("p", ir.V("X"))},
	})

	errs := ValidateProgram(prog, nil)
	assert.Equal(t, []string{ErrNegativeHead}, codes(errs))
	assert.Equal(t, "rules[1].head", errs[0].Field)
}

func TestValidateProgramBuiltinHead(t *testing.T) {
	prog := validProgram()
	prog.Rules = append(prog.Rules, ir.Rule{
		Head: ir.Bi(ir.BuiltinLess, ir.V("X"), ir.I(3)),
		Body: []ir.Literal{ir.Pos("p", ir.V("X"))},
	})

	errs := ValidateProgram(prog, nil)
	assert.Equal(t, []string{ErrBuiltinHead}, codes(errs))
}

func TestValidateProgramHeadEqualityArity(t *testing.T) {
	prog := validProgram()
	prog.Rules = append(prog.Rules, ir.Rule{
		Head: ir.Bi(ir.BuiltinEqual, ir.V("X")),
		Body: []ir.Literal{ir.Pos("p", ir.V("X"))},
	})

	errs := ValidateProgram(prog, nil)
	assert.Equal(t, []string{ErrHeadEqualityArity}, codes(errs))
}

func TestValidateProgramBuiltinBody(t *testing.T) {
	prog := validProgram()
	prog.Rules = append(prog.Rules, ir.NewRule(ir.Ordinary("r", ir.V("X")),
		ir.Pos("p", ir.V("X")),
		ir.Bi(ir.BuiltinLess, ir.V("X")),
		ir.Bi("NO_SUCH_BUILTIN", ir.V("X"))))

	errs := ValidateProgram(prog, nil)
	assert.Equal(t, []string{ErrBuiltinArity, ErrUnknownBuiltin}, codes(errs))
	assert.Equal(t, "rules[1].body[1]", errs[0].Field)
	assert.Equal(t, "rules[1].body[2]", errs[1].Field)
}

func TestValidateProgramEmptyQuery(t *testing.T) {
	prog := validProgram()
	prog.Queries = append(prog.Queries, ir.Query{})

	errs := ValidateProgram(prog, nil)
	assert.Equal(t, []string{ErrEmptyQuery}, codes(errs))
	assert.Equal(t, "queries[1]", errs[0].Field)
}

func TestValidateProgramArityConflict(t *testing.T) {
	prog := validProgram()
	prog.AddFact("p", ir.I(1), ir.I(2))

	errs := ValidateProgram(prog, nil)
	assert.Equal(t, []string{ErrArityConflict}, codes(errs))
	assert.Contains(t, errs[0].Message, "1, 2")
}

func TestValidateProgramCollectsAllErrors(t *testing.T) {
	prog := validProgram()
	prog.AddFact("p", ir.V("X"))
	prog.Queries = append(prog.Queries, ir.Query{})

	errs := ValidateProgram(prog, nil)
	assert.Len(t, errs, 2, "validation does not fail fast")
}

func TestValidationErrorMessage(t *testing.T) {
	err := ValidationError{Field: "rules[0].head", Message: "rule head not(r(?X)) is negated", Code: ErrNegativeHead}
	assert.Equal(t, "[E210] rules[0].head: rule head not(r(?X)) is negated", err.Error())

	err.Line = 7
	assert.Equal(t, "[E210] line 7: rules[0].head: rule head not(r(?X)) is negated", err.Error())
}
