// Package kb is the knowledge base: the upward API of the engine.
//
// A KnowledgeBase is built from an ir.Program and a config.Config. It
// keeps the program's base facts, evaluates the minimal model on demand
// and answers queries against it:
//
//	kb, err := kb.New(prog, config.Default())
//	res, err := kb.EvaluateQuery(ctx, query)
//
// External read-only facts come from DataSources (see package datasource).
package kb
