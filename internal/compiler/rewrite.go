package compiler

import (
	"slices"

	"github.com/roach88/deduce/internal/builtin"
	"github.com/roach88/deduce/internal/ir"
)

// Rule rewrites shared by the optimisers and the local stratifier. Each
// returns a new rule; the input is never mutated.

func substituteLiteral(l ir.Literal, s ir.Substitution) ir.Literal {
	if len(s) == 0 {
		return l
	}
	l.Atom.Args = ir.Substitute(l.Atom.Args, s)
	return l
}

// substituteRule applies s to the head, and to the body when body is true.
func substituteRule(r ir.Rule, s ir.Substitution, body bool) ir.Rule {
	out := ir.Rule{Head: substituteLiteral(r.Head, s), Body: r.Body}
	if body {
		out.Body = make([]ir.Literal, len(r.Body))
		for i, l := range r.Body {
			out.Body[i] = substituteLiteral(l, s)
		}
	}
	return out
}

func withoutLiteral(body []ir.Literal, i int) []ir.Literal {
	out := make([]ir.Literal, 0, len(body)-1)
	out = append(out, body[:i]...)
	return append(out, body[i+1:]...)
}

func isPositiveEquality(l ir.Literal) bool {
	return l.Positive && l.Atom.Builtin == ir.BuiltinEqual && len(l.Atom.Args) == 2
}

// propagatable reports whether a ground term may replace a variable bound
// by EQUAL. EQUAL compares numbers across datatypes while joins compare
// structurally, so unless numeric is set, terms holding numbers stay in
// their equality literal.
func propagatable(t ir.Term, numeric bool) bool {
	switch x := t.(type) {
	case ir.Constant:
		switch x.Value.Kind() {
		case ir.KindInt, ir.KindDecimal, ir.KindDouble:
			return numeric
		}
		return true
	case ir.Construct:
		for _, a := range x.Args {
			if !propagatable(a, numeric) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// variableEquality returns the variable and the ground term of X = c or
// c = X.
func variableEquality(l ir.Literal, numeric bool) (ir.Variable, ir.Term, bool) {
	if !isPositiveEquality(l) {
		return "", nil, false
	}
	a, b := l.Atom.Args[0], l.Atom.Args[1]
	if v, ok := a.(ir.Variable); ok && propagatable(b, numeric) {
		return v, b, true
	}
	if v, ok := b.(ir.Variable); ok && propagatable(a, numeric) {
		return v, a, true
	}
	return "", nil, false
}

// replaceVariablesWithConstants propagates X = c equalities. With strict
// the constant replaces X everywhere and the equality, now trivially true,
// is dropped. Without strict only the head is rewritten and the equality
// stays to constrain the body. Numeric constants are propagated only when
// numeric is set.
func replaceVariablesWithConstants(r ir.Rule, strict, numeric bool) ir.Rule {
	if !strict {
		s := ir.Substitution{}
		for _, l := range r.Body {
			if v, c, ok := variableEquality(l, numeric); ok {
				if _, bound := s[v]; !bound {
					s[v] = c
				}
			}
		}
		return substituteRule(r, s, false)
	}

	for {
		idx := -1
		var (
			v ir.Variable
			c ir.Term
		)
		for i, l := range r.Body {
			if x, t, ok := variableEquality(l, numeric); ok {
				idx, v, c = i, x, t
				break
			}
		}
		if idx < 0 {
			return r
		}
		r = ir.Rule{Head: r.Head, Body: withoutLiteral(r.Body, idx)}
		r = substituteRule(r, ir.Substitution{v: c}, true)
	}
}

// replaceVariablesWithVariables unifies the two variables of ?X =.= ?Y,
// and of ?X = ?Y when one side is bound by nothing but that equality. EQUAL
// compares numbers across datatypes while a shared variable joins
// structurally, so two variables that are both bound elsewhere stay apart
// under EQUAL. The variable that occurs first is kept where possible.
func replaceVariablesWithVariables(r ir.Rule, reg *builtin.Registry) ir.Rule {
	for {
		idx := -1
		var from, to ir.Variable
		for i, l := range r.Body {
			if !l.Positive || len(l.Atom.Args) != 2 {
				continue
			}
			a, aok := l.Atom.Args[0].(ir.Variable)
			b, bok := l.Atom.Args[1].(ir.Variable)
			if !aok || !bok || a == b {
				continue
			}
			switch {
			case l.Atom.Builtin == ir.BuiltinExactEqual:
				idx, from, to = i, b, a
			case l.Atom.Builtin != ir.BuiltinEqual:
				continue
			case boundOnlyByEquality(b, r.Body, i, reg):
				idx, from, to = i, b, a
			case boundOnlyByEquality(a, r.Body, i, reg):
				idx, from, to = i, a, b
			default:
				continue
			}
			break
		}
		if idx < 0 {
			return r
		}
		r = ir.Rule{Head: r.Head, Body: withoutLiteral(r.Body, idx)}
		r = substituteRule(r, ir.Substitution{from: to}, true)
	}
}

// boundOnlyByEquality reports whether v, outside body[eq], occurs only in
// negated literals and in builtins that compute nothing. Such a variable
// takes exactly the term on the other side of body[eq].
func boundOnlyByEquality(v ir.Variable, body []ir.Literal, eq int, reg *builtin.Registry) bool {
	for i, l := range body {
		if i == eq || !slices.Contains(l.Variables(), v) {
			continue
		}
		if !l.Atom.IsBuiltin() {
			if l.Positive {
				return false
			}
			continue
		}
		spec, ok := reg.Lookup(l.Atom.Builtin)
		if !ok || len(spec.Outputs) > 0 {
			return false
		}
	}
	return true
}

// removeUnnecessaryEqualities drops positive equalities whose two sides are
// structurally identical.
func removeUnnecessaryEqualities(r ir.Rule) ir.Rule {
	out := ir.Rule{Head: r.Head, Body: make([]ir.Literal, 0, len(r.Body))}
	for _, l := range r.Body {
		if l.Positive && len(l.Atom.Args) == 2 &&
			(l.Atom.Builtin == ir.BuiltinEqual || l.Atom.Builtin == ir.BuiltinExactEqual) &&
			ir.Equal(l.Atom.Args[0], l.Atom.Args[1]) {
			continue
		}
		out.Body = append(out.Body, l)
	}
	return out
}

// removeDuplicateLiterals keeps the first of structurally equal literals.
func removeDuplicateLiterals(r ir.Rule) ir.Rule {
	out := ir.Rule{Head: r.Head, Body: make([]ir.Literal, 0, len(r.Body))}
	for _, l := range r.Body {
		dup := false
		for _, kept := range out.Body {
			if kept.Equal(l) {
				dup = true
				break
			}
		}
		if !dup {
			out.Body = append(out.Body, l)
		}
	}
	return out
}

// addEquality appends v = t to the body.
func addEquality(r ir.Rule, v ir.Variable, t ir.Term) ir.Rule {
	body := append(append([]ir.Literal(nil), r.Body...), ir.Bi(ir.BuiltinEqual, v, t))
	return ir.Rule{Head: r.Head, Body: body}
}

// addInequality appends v != t to the body.
func addInequality(r ir.Rule, v ir.Variable, t ir.Term) ir.Rule {
	body := append(append([]ir.Literal(nil), r.Body...), ir.Bi(ir.BuiltinNotEqual, v, t))
	return ir.Rule{Head: r.Head, Body: body}
}
