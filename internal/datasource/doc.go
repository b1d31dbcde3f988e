// Package datasource provides read-only sources of external facts for the
// knowledge base.
//
// SQLSource maps predicates onto SQLite tables. A selection pattern from
// the knowledge base becomes a parameterized WHERE clause, so only rows
// that can match are read:
//
//	src, err := datasource.Open("graph.db", datasource.Table{
//		Predicate: ir.Pred("edge", 2),
//		Name:      "edges",
//		Columns:   []string{"src", "dst"},
//	})
//	kb, err := kb.New(prog, cfg, kb.WithDataSource(src))
package datasource
