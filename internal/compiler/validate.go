package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/deduce/internal/builtin"
	"github.com/roach88/deduce/internal/ir"
)

// Validation error codes (E200-E299)
const (
	// Fact errors (E201-E204)
	ErrFactNotGround = "E201" // fact tuple contains a variable
	ErrFactArity     = "E202" // fact tuple length differs from predicate arity
	ErrEmptySymbol   = "E203" // predicate symbol is empty
	ErrArityConflict = "E204" // one symbol used with several arities

	// Rule errors (E210-E219)
	ErrNegativeHead      = "E210" // rule head must be positive
	ErrBuiltinHead       = "E211" // only EQUAL may appear as a builtin head
	ErrBuiltinArity      = "E212" // builtin used with the wrong number of arguments
	ErrUnknownBuiltin    = "E213" // builtin kind not registered
	ErrHeadEqualityArity = "E214" // rule-head equality needs exactly two arguments

	// Query errors (E220-E229)
	ErrEmptyQuery = "E220" // query has no literals
)

// ValidationError represents a structural program error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidateProgram checks the structure of a program before safety analysis
// and stratification. Returns all errors found (does not fail-fast).
//
// Arity conflicts (one symbol with several arities) are legal Datalog but
// almost always a typo, so they are reported here; callers that accept
// them can filter on ErrArityConflict.
func ValidateProgram(prog *ir.Program, reg *builtin.Registry) []ValidationError {
	if reg == nil {
		reg = builtin.Default()
	}
	var errs []ValidationError

	preds := make([]ir.Predicate, 0, len(prog.Facts))
	for p := range prog.Facts {
		preds = append(preds, p)
	}
	sort.Slice(preds, func(i, j int) bool {
		if preds[i].Symbol != preds[j].Symbol {
			return preds[i].Symbol < preds[j].Symbol
		}
		return preds[i].Arity < preds[j].Arity
	})

	for _, p := range preds {
		field := fmt.Sprintf("facts.%s", p)
		// E203: symbol must be non-empty
		if strings.TrimSpace(p.Symbol) == "" {
			errs = append(errs, ValidationError{Field: field, Message: "predicate symbol is empty", Code: ErrEmptySymbol})
		}
		for i, t := range prog.Facts[p] {
			// E202: tuple length must match arity
			if len(t) != p.Arity {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s[%d]", field, i),
					Message: fmt.Sprintf("tuple %s has %d terms, predicate arity is %d", t, len(t), p.Arity),
					Code:    ErrFactArity,
				})
			}
			// E201: facts are ground
			if !t.IsGround() {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s[%d]", field, i),
					Message: fmt.Sprintf("fact %s%s is not ground", p.Symbol, t),
					Code:    ErrFactNotGround,
				})
			}
		}
	}

	for i, r := range prog.Rules {
		errs = append(errs, validateRule(fmt.Sprintf("rules[%d]", i), r, reg)...)
	}

	for i, q := range prog.Queries {
		field := fmt.Sprintf("queries[%d]", i)
		// E220: a query needs at least one literal
		if len(q.Body) == 0 {
			errs = append(errs, ValidationError{Field: field, Message: "query has no literals", Code: ErrEmptyQuery})
		}
		errs = append(errs, validateBody(field, q.Body, reg)...)
	}

	// E204: one symbol, several arities
	for _, c := range ir.CatalogOf(prog).Conflicts() {
		arities := make([]string, len(c.Arities))
		for i, a := range c.Arities {
			arities[i] = fmt.Sprintf("%d", a)
		}
		errs = append(errs, ValidationError{
			Field:   "predicates." + c.Symbol,
			Message: fmt.Sprintf("symbol %q used with arities %s", c.Symbol, strings.Join(arities, ", ")),
			Code:    ErrArityConflict,
		})
	}

	return errs
}

func validateRule(field string, r ir.Rule, reg *builtin.Registry) []ValidationError {
	var errs []ValidationError

	// E210: heads are positive
	if !r.Head.Positive {
		errs = append(errs, ValidationError{
			Field:   field + ".head",
			Message: fmt.Sprintf("rule head %s is negated", r.Head),
			Code:    ErrNegativeHead,
		})
	}

	switch {
	case r.IsHeadEquality():
		// E214
		if len(r.Head.Atom.Args) != 2 {
			errs = append(errs, ValidationError{
				Field:   field + ".head",
				Message: fmt.Sprintf("rule-head equality needs 2 arguments, got %d", len(r.Head.Atom.Args)),
				Code:    ErrHeadEqualityArity,
			})
		}
	case r.Head.Atom.IsBuiltin():
		// E211
		errs = append(errs, ValidationError{
			Field:   field + ".head",
			Message: fmt.Sprintf("builtin %s cannot be a rule head", r.Head.Atom.Builtin),
			Code:    ErrBuiltinHead,
		})
	case strings.TrimSpace(r.Head.Atom.Predicate.Symbol) == "":
		// E203
		errs = append(errs, ValidationError{Field: field + ".head", Message: "predicate symbol is empty", Code: ErrEmptySymbol})
	}

	return append(errs, validateBody(field, r.Body, reg)...)
}

func validateBody(field string, body []ir.Literal, reg *builtin.Registry) []ValidationError {
	var errs []ValidationError
	for i, lit := range body {
		litField := fmt.Sprintf("%s.body[%d]", field, i)
		if !lit.Atom.IsBuiltin() {
			if strings.TrimSpace(lit.Atom.Predicate.Symbol) == "" {
				errs = append(errs, ValidationError{Field: litField, Message: "predicate symbol is empty", Code: ErrEmptySymbol})
			}
			continue
		}
		if err := reg.CheckArity(lit.Atom); err != nil {
			code := ErrBuiltinArity
			if be, ok := err.(*builtin.Error); ok && be.Code == builtin.ErrCodeUnknown {
				code = ErrUnknownBuiltin
			}
			errs = append(errs, ValidationError{Field: litField, Message: err.Error(), Code: code})
		}
	}
	return errs
}
