package ir

import (
	"slices"
	"sort"
)

// Catalog records the predicates a program uses, in first-registration order.
//
// A symbol may legally appear with several arities (p/1 and p/2 are distinct
// predicates), but this is almost always a typo, so the catalog can report
// such symbols as conflicts.
type Catalog struct {
	preds    []Predicate
	seen     map[Predicate]bool
	bySymbol map[string][]Predicate
}

// ArityConflict names a symbol used with more than one arity.
type ArityConflict struct {
	Symbol  string `json:"symbol"`
	Arities []int  `json:"arities"`
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		seen:     make(map[Predicate]bool),
		bySymbol: make(map[string][]Predicate),
	}
}

// CatalogOf registers every ordinary predicate of prog: fact predicates
// first in sorted order, then rule heads and bodies, then queries.
func CatalogOf(prog *Program) *Catalog {
	c := NewCatalog()
	factPreds := make([]Predicate, 0, len(prog.Facts))
	for p := range prog.Facts {
		factPreds = append(factPreds, p)
	}
	sort.Slice(factPreds, func(i, j int) bool {
		if factPreds[i].Symbol != factPreds[j].Symbol {
			return factPreds[i].Symbol < factPreds[j].Symbol
		}
		return factPreds[i].Arity < factPreds[j].Arity
	})
	for _, p := range factPreds {
		c.Register(p)
	}
	for _, r := range prog.Rules {
		c.RegisterLiterals(r.Head)
		c.RegisterLiterals(r.Body...)
	}
	for _, q := range prog.Queries {
		c.RegisterLiterals(q.Body...)
	}
	return c
}

// Register adds p and reports whether it was new.
func (c *Catalog) Register(p Predicate) bool {
	if c.seen[p] {
		return false
	}
	c.seen[p] = true
	c.preds = append(c.preds, p)
	c.bySymbol[p.Symbol] = append(c.bySymbol[p.Symbol], p)
	return true
}

// RegisterLiterals registers the predicate of every ordinary literal.
func (c *Catalog) RegisterLiterals(ls ...Literal) {
	for _, l := range ls {
		if !l.Atom.IsBuiltin() {
			c.Register(l.Atom.Predicate)
		}
	}
}

// Contains reports whether p has been registered.
func (c *Catalog) Contains(p Predicate) bool {
	return c.seen[p]
}

// Lookup returns the registered predicates with the given symbol.
func (c *Catalog) Lookup(symbol string) []Predicate {
	return slices.Clone(c.bySymbol[symbol])
}

// Predicates returns all registered predicates in registration order.
func (c *Catalog) Predicates() []Predicate {
	return slices.Clone(c.preds)
}

// Conflicts returns the symbols registered with more than one arity,
// ordered by symbol.
func (c *Catalog) Conflicts() []ArityConflict {
	var out []ArityConflict
	for sym, preds := range c.bySymbol {
		if len(preds) < 2 {
			continue
		}
		arities := make([]int, len(preds))
		for i, p := range preds {
			arities[i] = p.Arity
		}
		slices.Sort(arities)
		out = append(out, ArityConflict{Symbol: sym, Arities: arities})
	}
	slices.SortFunc(out, func(a, b ArityConflict) int {
		switch {
		case a.Symbol < b.Symbol:
			return -1
		case a.Symbol > b.Symbol:
			return 1
		}
		return 0
	})
	return out
}
