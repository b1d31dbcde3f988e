package storage

import (
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/deduce/internal/ir"
)

// Facts maps predicates to relations, creating each relation on first use.
//
// Facts also owns the indexes over its relations so they survive across
// fixpoint rounds: an index absorbs only the tuples added since its last
// lookup instead of being rebuilt every round.
//
// Thread-safety: Facts is not safe for concurrent use. The evaluator and
// the stream engine access it from a single owning goroutine.
type Facts struct {
	newRelation RelationFactory
	newIndex    IndexFactory
	eq          *Equivalences

	rels    map[ir.Predicate]Relation
	order   []ir.Predicate
	indexes map[indexKey]Index
}

type indexKey struct {
	pred      ir.Predicate
	positions string
}

// FactsOption configures a Facts.
type FactsOption func(*Facts)

// WithRelationFactory sets the factory for new relations.
func WithRelationFactory(f RelationFactory) FactsOption {
	return func(fs *Facts) {
		if f != nil {
			fs.newRelation = f
		}
	}
}

// WithIndexFactory sets the factory for new indexes.
func WithIndexFactory(f IndexFactory) FactsOption {
	return func(fs *Facts) {
		if f != nil {
			fs.newIndex = f
		}
	}
}

// WithEquivalences makes every index equivalence aware over eq.
func WithEquivalences(eq *Equivalences) FactsOption {
	return func(fs *Facts) {
		fs.eq = eq
	}
}

// NewFacts creates an empty fact store. Defaults: hash relations, hash indexes.
func NewFacts(opts ...FactsOption) *Facts {
	hashIndexes, _ := IndexFactoryByName(IndexHash)
	f := &Facts{
		newRelation: NewHashRelation,
		newIndex:    hashIndexes,
		rels:        make(map[ir.Predicate]Relation),
		indexes:     make(map[indexKey]Index),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Empty creates a fact store configured like f but holding no tuples.
// Semi-naive evaluation uses it for delta sets.
func (f *Facts) Empty() *Facts {
	return &Facts{
		newRelation: f.newRelation,
		newIndex:    f.newIndex,
		eq:          f.eq,
		rels:        make(map[ir.Predicate]Relation),
		indexes:     make(map[indexKey]Index),
	}
}

// Get returns the relation of p, creating it on first use.
func (f *Facts) Get(p ir.Predicate) Relation {
	if r, ok := f.rels[p]; ok {
		return r
	}
	r := f.newRelation()
	f.rels[p] = r
	f.order = append(f.order, p)
	return r
}

// Lookup returns the relation of p without creating it.
func (f *Facts) Lookup(p ir.Predicate) (Relation, bool) {
	r, ok := f.rels[p]
	return r, ok
}

// Add inserts t into p's relation and reports whether it was new.
func (f *Facts) Add(p ir.Predicate, t ir.Tuple) bool {
	return f.Get(p).Add(t)
}

// AddAll merges every tuple of other into f and returns how many were new.
func (f *Facts) AddAll(other *Facts) int {
	added := 0
	for _, p := range other.order {
		src := other.rels[p]
		if src.Len() == 0 {
			continue
		}
		dst := f.Get(p)
		for _, t := range src.Tuples() {
			if dst.Add(t) {
				added++
			}
		}
	}
	return added
}

// Predicates returns the predicates with a relation, in creation order.
func (f *Facts) Predicates() []ir.Predicate {
	return slices.Clone(f.order)
}

// Size returns the total number of tuples across all relations.
func (f *Facts) Size() int {
	n := 0
	for _, r := range f.rels {
		n += r.Len()
	}
	return n
}

// IsEmpty reports whether no relation holds a tuple.
func (f *Facts) IsEmpty() bool {
	for _, r := range f.rels {
		if r.Len() > 0 {
			return false
		}
	}
	return true
}

// Equivalences returns the equivalence relation, or nil when rule-head
// equality is not in use.
func (f *Facts) Equivalences() *Equivalences {
	return f.eq
}

// Index returns the cached index of p's relation on positions, creating it
// on first use.
func (f *Facts) Index(p ir.Predicate, positions []int) Index {
	k := indexKey{pred: p, positions: encodePositions(positions)}
	if x, ok := f.indexes[k]; ok {
		return x
	}
	x := f.newIndex(f.Get(p), positions, f.eq)
	f.indexes[k] = x
	return x
}

// Retain applies keep to every relation and returns the number of tuples removed.
func (f *Facts) Retain(keep func(p ir.Predicate, t ir.Tuple) bool) int {
	removed := 0
	for _, p := range f.order {
		removed += f.rels[p].Retain(func(t ir.Tuple) bool { return keep(p, t) })
	}
	return removed
}

func encodePositions(positions []int) string {
	var b strings.Builder
	for i, p := range positions {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(p))
	}
	return b.String()
}
