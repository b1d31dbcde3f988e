package storage

import (
	"fmt"

	"github.com/roach88/deduce/internal/ir"
)

// Index maps a projected key (the terms at Positions, in order) to the
// tuples of one relation sharing that key.
type Index interface {
	// Lookup returns the tuples whose projection equals key, in insertion
	// order. len(key) must equal len(Positions()).
	Lookup(key ir.Tuple) []ir.Tuple

	// Positions returns the indexed tuple positions.
	Positions() []int
}

// IndexFactory creates an index over rel. eq is nil unless rule-head
// equality is in use.
type IndexFactory func(rel Relation, positions []int, eq *Equivalences) Index

// Index factory names accepted by IndexFactoryByName.
const (
	IndexHash        = "hash"
	IndexEquivalence = "equivalence"
)

// IndexFactoryByName resolves a configured factory name. The hash factory
// upgrades to an equivalence index whenever an equivalence relation is
// supplied, so rule-head equality works with either setting.
func IndexFactoryByName(name string) (IndexFactory, error) {
	switch name {
	case "", IndexHash:
		return func(rel Relation, positions []int, eq *Equivalences) Index {
			if eq != nil {
				return NewEquivalenceIndex(rel, positions, eq)
			}
			return NewHashIndex(rel, positions)
		}, nil
	case IndexEquivalence:
		return func(rel Relation, positions []int, eq *Equivalences) Index {
			if eq == nil {
				eq = NewEquivalences()
			}
			return NewEquivalenceIndex(rel, positions, eq)
		}, nil
	default:
		return nil, fmt.Errorf("unknown index factory %q (want %q or %q)", name, IndexHash, IndexEquivalence)
	}
}

// HashIndex is a lazily built hash index over an append-only relation.
//
// It tracks a watermark of how many tuples it has absorbed; each Lookup
// absorbs only the tail added since. If the relation's Generation changes
// (tuples were removed) the index is rebuilt from scratch.
type HashIndex struct {
	rel       Relation
	positions []int
	keyFn     func(ir.Term) ir.Term

	buckets   map[uint64][]int
	watermark int
	gen       uint64
}

// NewHashIndex creates an index over rel keyed on positions.
func NewHashIndex(rel Relation, positions []int) *HashIndex {
	return &HashIndex{
		rel:       rel,
		positions: append([]int(nil), positions...),
		buckets:   make(map[uint64][]int),
		gen:       rel.Generation(),
	}
}

// Positions returns the indexed tuple positions.
func (x *HashIndex) Positions() []int {
	return x.positions
}

// Watermark returns how many tuples of the relation have been absorbed.
func (x *HashIndex) Watermark() int {
	return x.watermark
}

func (x *HashIndex) reset() {
	x.buckets = make(map[uint64][]int)
	x.watermark = 0
	x.gen = x.rel.Generation()
}

func (x *HashIndex) project(t ir.Tuple) ir.Tuple {
	key := t.Project(x.positions)
	if x.keyFn != nil {
		for i, term := range key {
			key[i] = x.keyFn(term)
		}
	}
	return key
}

func (x *HashIndex) absorb() {
	if x.gen != x.rel.Generation() {
		x.reset()
	}
	n := x.rel.Len()
	for i := x.watermark; i < n; i++ {
		h := ir.HashTuple(x.project(x.rel.Get(i)))
		x.buckets[h] = append(x.buckets[h], i)
	}
	x.watermark = n
}

// Lookup returns the tuples whose projection equals key.
func (x *HashIndex) Lookup(key ir.Tuple) []ir.Tuple {
	x.absorb()
	if x.keyFn != nil {
		mapped := make(ir.Tuple, len(key))
		for i, term := range key {
			mapped[i] = x.keyFn(term)
		}
		key = mapped
	}
	candidates := x.buckets[ir.HashTuple(key)]
	if len(candidates) == 0 {
		return nil
	}
	out := make([]ir.Tuple, 0, len(candidates))
	for _, i := range candidates {
		t := x.rel.Get(i)
		if x.project(t).Equal(key) {
			out = append(out, t)
		}
	}
	return out
}

// EquivalenceIndex is a HashIndex whose keys are compared modulo an
// equivalence relation: a lookup for key (a) also returns tuples stored
// under (b) when a and b are equivalent.
type EquivalenceIndex struct {
	*HashIndex
	eq      *Equivalences
	version uint64
}

// NewEquivalenceIndex creates an equivalence-aware index over rel.
func NewEquivalenceIndex(rel Relation, positions []int, eq *Equivalences) *EquivalenceIndex {
	h := NewHashIndex(rel, positions)
	h.keyFn = eq.Find
	return &EquivalenceIndex{HashIndex: h, eq: eq, version: eq.Version()}
}

// Lookup returns the tuples whose projected key is equivalent to key.
func (x *EquivalenceIndex) Lookup(key ir.Tuple) []ir.Tuple {
	if v := x.eq.Version(); v != x.version {
		// Representatives moved; rebucket everything.
		x.HashIndex.reset()
		x.version = v
	}
	return x.HashIndex.Lookup(key)
}
