package ir

import (
	"maps"
	"strings"
)

// Tuple is a fixed-arity ordered sequence of terms.
type Tuple []Term

// IsGround reports whether every term of the tuple is ground.
func (t Tuple) IsGround() bool {
	for _, term := range t {
		if !term.IsGround() {
			return false
		}
	}
	return true
}

// Equal reports structural equality of two tuples.
func (t Tuple) Equal(o Tuple) bool {
	if len(t) != len(o) {
		return false
	}
	for i := range t {
		if !Equal(t[i], o[i]) {
			return false
		}
	}
	return true
}

// Compare orders tuples lexicographically by Compare, shorter first on a
// common prefix.
func (t Tuple) Compare(o Tuple) int {
	n := min(len(t), len(o))
	for i := 0; i < n; i++ {
		if c := Compare(t[i], o[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(t) < len(o):
		return -1
	case len(t) > len(o):
		return 1
	}
	return 0
}

// Project returns the terms at the given positions, in position order.
func (t Tuple) Project(positions []int) Tuple {
	out := make(Tuple, len(positions))
	for i, p := range positions {
		out[i] = t[p]
	}
	return out
}

// Variables returns the distinct variables of the tuple in first-occurrence order.
func (t Tuple) Variables() []Variable {
	seen := map[Variable]bool{}
	var out []Variable
	for _, term := range t {
		out = CollectVariables(out, seen, term)
	}
	return out
}

func (t Tuple) String() string {
	parts := make([]string, len(t))
	for i, term := range t {
		parts[i] = term.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Substitution maps variables to the terms they are bound to.
type Substitution map[Variable]Term

// Clone returns an independent copy of the substitution.
func (s Substitution) Clone() Substitution {
	return maps.Clone(s)
}

// Match unifies pattern against a ground tuple in one direction.
//
// The first occurrence of a variable binds it to the ground subterm at that
// position; later occurrences must be structurally equal to the binding.
// Constructs match only when functor and arity agree, and their arguments
// are matched recursively. Returns (nil, false) when no binding exists.
func Match(pattern, ground Tuple) (Substitution, bool) {
	if len(pattern) != len(ground) {
		return nil, false
	}
	s := Substitution{}
	for i := range pattern {
		if !MatchTerm(pattern[i], ground[i], s) {
			return nil, false
		}
	}
	return s, true
}

// MatchTerm extends s so that pattern instantiated by s equals ground.
// On failure s may hold partial bindings and should be discarded.
func MatchTerm(pattern, ground Term, s Substitution) bool {
	switch p := pattern.(type) {
	case Variable:
		if bound, ok := s[p]; ok {
			return Equal(bound, ground)
		}
		s[p] = ground
		return true
	case Constant:
		return Equal(p, ground)
	case Construct:
		g, ok := ground.(Construct)
		if !ok || g.Functor != p.Functor || len(g.Args) != len(p.Args) {
			return false
		}
		for i := range p.Args {
			if !MatchTerm(p.Args[i], g.Args[i], s) {
				return false
			}
		}
		return true
	}
	return false
}

// Substitute replaces every bound variable of pattern, including inside
// constructs. Unbound variables are left in place.
func Substitute(pattern Tuple, s Substitution) Tuple {
	out := make(Tuple, len(pattern))
	for i, t := range pattern {
		out[i] = SubstituteTerm(t, s)
	}
	return out
}

// SubstituteTerm applies s to a single term.
func SubstituteTerm(t Term, s Substitution) Term {
	switch tt := t.(type) {
	case Variable:
		if bound, ok := s[tt]; ok {
			return bound
		}
		return tt
	case Construct:
		if tt.IsGround() {
			return tt
		}
		args := make([]Term, len(tt.Args))
		for i, a := range tt.Args {
			args[i] = SubstituteTerm(a, s)
		}
		return Construct{Functor: tt.Functor, Args: args}
	default:
		return t
	}
}
