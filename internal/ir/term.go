package ir

import (
	"cmp"
	"fmt"
	"strings"
)

// Term is a sealed interface over the three term kinds.
// Only Constant, Variable, and Construct implement it.
type Term interface {
	term() // Sealed - only these types implement it

	// IsGround reports whether no Variable is reachable from the term.
	IsGround() bool

	String() string
}

// Constant is a term carrying a concrete value.
type Constant struct {
	Value Value
}

func (Constant) term()            {}
func (Constant) IsGround() bool   { return true }
func (c Constant) String() string { return c.Value.String() }

// Variable is a named logic variable. The name excludes the leading '?'.
type Variable string

func (Variable) term()            {}
func (Variable) IsGround() bool   { return false }
func (v Variable) String() string { return "?" + string(v) }

// Construct is a function-symbol term: a functor applied to arguments.
type Construct struct {
	Functor string
	Args    []Term
}

func (Construct) term() {}

func (c Construct) IsGround() bool {
	for _, a := range c.Args {
		if !a.IsGround() {
			return false
		}
	}
	return true
}

func (c Construct) String() string {
	parts := make([]string, len(c.Args))
	for i, a := range c.Args {
		parts[i] = a.String()
	}
	return c.Functor + "(" + strings.Join(parts, ", ") + ")"
}

// Term constructors. These keep test fixtures and program builders short:
//
//	ir.Tuple{ir.I(1), ir.S("w"), ir.V("X")}
func I(n int64) Constant     { return Constant{Value: Int(n)} }
func F(f float64) Constant   { return Constant{Value: Double(f)} }
func S(s string) Constant    { return Constant{Value: NewString(s)} }
func B(b bool) Constant      { return Constant{Value: Bool(b)} }
func D(s string) Constant    { return Constant{Value: MustDecimal(s)} }
func V(name string) Variable { return Variable(name) }
func C(v Value) Constant     { return Constant{Value: v} }

func Fn(functor string, args ...Term) Construct {
	return Construct{Functor: functor, Args: args}
}

// termRank orders term kinds: constants first, then constructs, then variables.
func termRank(t Term) int {
	switch t.(type) {
	case Constant:
		return 0
	case Construct:
		return 1
	case Variable:
		return 2
	default:
		panic(fmt.Sprintf("unknown term type: %T", t))
	}
}

// Compare is the total order over terms. Constants order by CompareValues,
// constructs by functor, then arity, then arguments left to right, and
// variables by name.
func Compare(a, b Term) int {
	if c := cmp.Compare(termRank(a), termRank(b)); c != 0 {
		return c
	}
	switch at := a.(type) {
	case Constant:
		return CompareValues(at.Value, b.(Constant).Value)
	case Variable:
		return cmp.Compare(at, b.(Variable))
	case Construct:
		bt := b.(Construct)
		if c := cmp.Compare(at.Functor, bt.Functor); c != 0 {
			return c
		}
		if c := cmp.Compare(len(at.Args), len(bt.Args)); c != 0 {
			return c
		}
		for i := range at.Args {
			if c := Compare(at.Args[i], bt.Args[i]); c != 0 {
				return c
			}
		}
		return 0
	}
	return 0
}

// Equal reports structural equality.
func Equal(a, b Term) bool {
	switch at := a.(type) {
	case Constant:
		bt, ok := b.(Constant)
		return ok && ValuesEqual(at.Value, bt.Value)
	case Variable:
		bt, ok := b.(Variable)
		return ok && at == bt
	case Construct:
		bt, ok := b.(Construct)
		if !ok || at.Functor != bt.Functor || len(at.Args) != len(bt.Args) {
			return false
		}
		for i := range at.Args {
			if !Equal(at.Args[i], bt.Args[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// CollectVariables appends the variables of t to dst in first-occurrence
// order, skipping names already present in seen. seen is updated.
func CollectVariables(dst []Variable, seen map[Variable]bool, t Term) []Variable {
	switch tt := t.(type) {
	case Variable:
		if !seen[tt] {
			seen[tt] = true
			dst = append(dst, tt)
		}
	case Construct:
		for _, a := range tt.Args {
			dst = CollectVariables(dst, seen, a)
		}
	}
	return dst
}

// Variables returns the distinct variables of t in first-occurrence order.
func Variables(t Term) []Variable {
	return CollectVariables(nil, map[Variable]bool{}, t)
}
