package storage

import (
	"github.com/google/btree"

	"github.com/roach88/deduce/internal/ir"
)

// btreeDegree matches the degree used for in-memory ordered sets elsewhere.
const btreeDegree = 16

// tupleItem adapts a tuple to btree.Item using the total term order.
type tupleItem ir.Tuple

func (a tupleItem) Less(b btree.Item) bool {
	return ir.Tuple(a).Compare(ir.Tuple(b.(tupleItem))) < 0
}

// sortedRelation keeps membership in a B-tree ordered by ir.Compare and
// insertion order in a slice. Sorted iterates in term order.
type sortedRelation struct {
	tree   *btree.BTree
	tuples []ir.Tuple
	gen    uint64
}

// NewSortedRelation creates an empty relation whose membership is kept in
// term order.
func NewSortedRelation() Relation {
	return &sortedRelation{tree: btree.New(btreeDegree)}
}

func (r *sortedRelation) Add(t ir.Tuple) bool {
	if r.tree.Has(tupleItem(t)) {
		return false
	}
	r.tree.ReplaceOrInsert(tupleItem(t))
	r.tuples = append(r.tuples, t)
	return true
}

func (r *sortedRelation) Contains(t ir.Tuple) bool { return r.tree.Has(tupleItem(t)) }
func (r *sortedRelation) Len() int                 { return len(r.tuples) }
func (r *sortedRelation) Get(i int) ir.Tuple       { return r.tuples[i] }
func (r *sortedRelation) Tuples() []ir.Tuple       { return r.tuples }
func (r *sortedRelation) Generation() uint64       { return r.gen }

func (r *sortedRelation) Retain(keep func(ir.Tuple) bool) int {
	kept := r.tuples[:0:0]
	for _, t := range r.tuples {
		if keep(t) {
			kept = append(kept, t)
		} else {
			r.tree.Delete(tupleItem(t))
		}
	}
	removed := len(r.tuples) - len(kept)
	if removed > 0 {
		r.tuples = kept
		r.gen++
	}
	return removed
}

// Sorted returns the tuples in ascending term order.
func (r *sortedRelation) Sorted() []ir.Tuple {
	out := make([]ir.Tuple, 0, r.tree.Len())
	r.tree.Ascend(func(i btree.Item) bool {
		out = append(out, ir.Tuple(i.(tupleItem)))
		return true
	})
	return out
}

// Sorted returns the tuples of r in ascending term order. Relations built
// by NewSortedRelation answer from their B-tree; others are copied and sorted.
func Sorted(r Relation) []ir.Tuple {
	if s, ok := r.(*sortedRelation); ok {
		return s.Sorted()
	}
	tree := btree.New(btreeDegree)
	for _, t := range r.Tuples() {
		tree.ReplaceOrInsert(tupleItem(t))
	}
	out := make([]ir.Tuple, 0, tree.Len())
	tree.Ascend(func(i btree.Item) bool {
		out = append(out, ir.Tuple(i.(tupleItem)))
		return true
	})
	return out
}
