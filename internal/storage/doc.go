// Package storage provides the in-memory fact store of the engine:
// deduplicated relations, lazy incremental indexes, and the union-find
// equivalence relation used by rule-head equality.
//
// Two relation factories exist. The hash factory deduplicates through
// xxhash buckets; the sorted factory keeps a google/btree ordered by the
// total term order and can enumerate tuples sorted. Both preserve
// insertion order for positional access.
//
// Nothing here is persisted. External fact sources live in package
// datasource and are loaded into a Facts before evaluation.
package storage
