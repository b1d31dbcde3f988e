package storage

import (
	"fmt"

	"github.com/roach88/deduce/internal/ir"
)

// Relation is an insertion-ordered set of ground tuples of one arity.
//
// INVARIANTS:
//   - No two structurally equal tuples coexist
//   - Get(i) is stable for i < Len() until the next Retain
//   - Tuples are only appended between Retain calls
//
// Indexes rely on the last two: they absorb the tail past a watermark and
// rebuild when Generation changes.
type Relation interface {
	// Add inserts t and reports whether it was new. An equal tuple already
	// present leaves the relation unchanged.
	Add(t ir.Tuple) bool

	// Contains reports whether an equal tuple is present.
	Contains(t ir.Tuple) bool

	// Len returns the number of tuples.
	Len() int

	// Get returns the i-th tuple in insertion order.
	Get(i int) ir.Tuple

	// Tuples returns the tuples in insertion order. The slice must not be
	// modified by the caller.
	Tuples() []ir.Tuple

	// Retain keeps only the tuples for which keep returns true, preserving
	// their relative order, and returns how many were removed. Removing
	// anything advances Generation.
	Retain(keep func(ir.Tuple) bool) int

	// Generation changes whenever tuples are removed.
	Generation() uint64
}

// RelationFactory creates empty relations.
type RelationFactory func() Relation

// Relation factory names accepted by RelationFactoryByName.
const (
	RelationHash   = "hash"
	RelationSorted = "sorted"
)

// RelationFactoryByName resolves a configured factory name.
func RelationFactoryByName(name string) (RelationFactory, error) {
	switch name {
	case "", RelationHash:
		return NewHashRelation, nil
	case RelationSorted:
		return NewSortedRelation, nil
	default:
		return nil, fmt.Errorf("unknown relation factory %q (want %q or %q)", name, RelationHash, RelationSorted)
	}
}

// hashRelation stores tuples in a slice and deduplicates through xxhash
// buckets of slice positions. Hash collisions fall back to Tuple.Equal.
type hashRelation struct {
	tuples  []ir.Tuple
	buckets map[uint64][]int
	gen     uint64
}

// NewHashRelation creates an empty hash-deduplicated relation.
func NewHashRelation() Relation {
	return &hashRelation{buckets: make(map[uint64][]int)}
}

func (r *hashRelation) Add(t ir.Tuple) bool {
	h := ir.HashTuple(t)
	for _, i := range r.buckets[h] {
		if r.tuples[i].Equal(t) {
			return false
		}
	}
	r.buckets[h] = append(r.buckets[h], len(r.tuples))
	r.tuples = append(r.tuples, t)
	return true
}

func (r *hashRelation) Contains(t ir.Tuple) bool {
	for _, i := range r.buckets[ir.HashTuple(t)] {
		if r.tuples[i].Equal(t) {
			return true
		}
	}
	return false
}

func (r *hashRelation) Len() int           { return len(r.tuples) }
func (r *hashRelation) Get(i int) ir.Tuple { return r.tuples[i] }
func (r *hashRelation) Tuples() []ir.Tuple { return r.tuples }
func (r *hashRelation) Generation() uint64 { return r.gen }

func (r *hashRelation) Retain(keep func(ir.Tuple) bool) int {
	kept := r.tuples[:0:0]
	for _, t := range r.tuples {
		if keep(t) {
			kept = append(kept, t)
		}
	}
	removed := len(r.tuples) - len(kept)
	if removed == 0 {
		return 0
	}
	r.tuples = kept
	r.buckets = make(map[uint64][]int, len(kept))
	for i, t := range kept {
		h := ir.HashTuple(t)
		r.buckets[h] = append(r.buckets[h], i)
	}
	r.gen++
	return removed
}
