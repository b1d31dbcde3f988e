package testutil

import "github.com/roach88/deduce/internal/ir"

// Facts builds a fact map for one predicate from rows of constants.
// Plain Go values are converted with ir.DecodeTerm, so strings starting
// with '?' are not allowed here.
//
//	testutil.Facts("edge", []any{"a", "b"}, []any{"b", "c"})
func Facts(symbol string, rows ...[]any) map[ir.Predicate][]ir.Tuple {
	out := make(map[ir.Predicate][]ir.Tuple)
	for _, row := range rows {
		t, err := ir.DecodeTuple(row)
		if err != nil {
			panic("testutil.Facts: " + err.Error())
		}
		p := ir.Pred(symbol, len(t))
		out[p] = append(out[p], t)
	}
	return out
}

// TransitiveClosure returns the two rules deriving path/2 from edge/2.
func TransitiveClosure() []ir.Rule {
	return []ir.Rule{
		ir.NewRule(ir.Ordinary("path", ir.V("X"), ir.V("Y")), ir.Pos("edge", ir.V("X"), ir.V("Y"))),
		ir.NewRule(ir.Ordinary("path", ir.V("X"), ir.V("Y")),
			ir.Pos("edge", ir.V("X"), ir.V("Z")), ir.Pos("path", ir.V("Z"), ir.V("Y"))),
	}
}

// Strings returns one single-string tuple per argument.
func Strings(ss ...string) []ir.Tuple {
	out := make([]ir.Tuple, len(ss))
	for i, s := range ss {
		out[i] = ir.Tuple{ir.S(s)}
	}
	return out
}
