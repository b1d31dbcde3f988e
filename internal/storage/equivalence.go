package storage

import (
	"github.com/roach88/deduce/internal/ir"
)

// Equivalences is a union-find structure over ground terms, populated by
// rule-head equality rules (X = Y in a rule head).
//
// Each class is represented by its smallest member under ir.Compare, so
// representatives are deterministic regardless of union order. Version
// advances on every effective union; indexes keyed on representatives
// rebuild when it changes.
type Equivalences struct {
	parent  map[string]string
	terms   map[string]ir.Term
	members map[string][]ir.Term
	version uint64
}

// NewEquivalences creates an empty equivalence relation in which every term
// is only equivalent to itself.
func NewEquivalences() *Equivalences {
	return &Equivalences{
		parent:  make(map[string]string),
		terms:   make(map[string]ir.Term),
		members: make(map[string][]ir.Term),
	}
}

func termKey(t ir.Term) string {
	return string(ir.AppendCanonical(nil, t))
}

func (e *Equivalences) root(k string) string {
	for {
		p, ok := e.parent[k]
		if !ok || p == k {
			return k
		}
		// Path halving.
		if gp, ok := e.parent[p]; ok {
			e.parent[k] = gp
		}
		k = p
	}
}

// Union merges the classes of a and b and reports whether they were
// previously distinct.
func (e *Equivalences) Union(a, b ir.Term) bool {
	ka, kb := termKey(a), termKey(b)
	e.register(ka, a)
	e.register(kb, b)
	ra, rb := e.root(ka), e.root(kb)
	if ra == rb {
		return false
	}
	// The smaller term becomes the representative.
	if ir.Compare(e.terms[rb], e.terms[ra]) < 0 {
		ra, rb = rb, ra
	}
	e.parent[rb] = ra
	e.members[ra] = append(e.members[ra], e.members[rb]...)
	delete(e.members, rb)
	e.version++
	return true
}

func (e *Equivalences) register(k string, t ir.Term) {
	if _, ok := e.terms[k]; ok {
		return
	}
	e.terms[k] = t
	e.parent[k] = k
	e.members[k] = []ir.Term{t}
}

// Find returns the representative of t's class. Constructs not themselves
// in any class are rebuilt from the representatives of their arguments, so
// f(a) and f(b) share a representative once a and b are equivalent.
func (e *Equivalences) Find(t ir.Term) ir.Term {
	if len(e.terms) == 0 {
		return t
	}
	k := termKey(t)
	if _, ok := e.terms[k]; ok {
		return e.terms[e.root(k)]
	}
	c, ok := t.(ir.Construct)
	if !ok {
		return t
	}
	args := make([]ir.Term, len(c.Args))
	changed := false
	for i, a := range c.Args {
		args[i] = e.Find(a)
		if !ir.Equal(args[i], a) {
			changed = true
		}
	}
	if !changed {
		return t
	}
	rebuilt := ir.Construct{Functor: c.Functor, Args: args}
	if rk := termKey(rebuilt); e.terms[rk] != nil {
		return e.terms[e.root(rk)]
	}
	return rebuilt
}

// FindTuple maps every term of t to its representative.
func (e *Equivalences) FindTuple(t ir.Tuple) ir.Tuple {
	if len(e.terms) == 0 {
		return t
	}
	out := make(ir.Tuple, len(t))
	for i, term := range t {
		out[i] = e.Find(term)
	}
	return out
}

// Equivalent reports whether a and b are in the same class.
func (e *Equivalences) Equivalent(a, b ir.Term) bool {
	return ir.Equal(e.Find(a), e.Find(b))
}

// Members returns every term known to be equivalent to t, including t.
func (e *Equivalences) Members(t ir.Term) []ir.Term {
	k := termKey(t)
	if _, ok := e.terms[k]; !ok {
		return []ir.Term{t}
	}
	return append([]ir.Term(nil), e.members[e.root(k)]...)
}

// Version advances on every effective Union.
func (e *Equivalences) Version() uint64 {
	return e.version
}

// Len returns the number of terms that take part in some union.
func (e *Equivalences) Len() int {
	return len(e.terms)
}
