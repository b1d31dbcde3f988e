// Package harness runs conformance scenarios against the knowledge base.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: transitive_closure
//	description: "What this scenario validates"
//	program: programs/graph.yaml   # optional, relative to the scenario
//	facts:                          # inline document, merged into program
//	  edge: [[a, b], [b, c]]
//	rules: [...]
//	config:                         # overrides of config.Default()
//	  evaluator: naive
//	steps:
//	  - add:
//	      edge: [[c, d]]
//	  - query:
//	      - {pred: path, args: [a, "?Y"]}
//	    expect: [[b], [c], [d]]
//	assertions:
//	  - type: contains
//	    pred: path
//	    row: [a, d]
//	  - type: strata
//	    count: 1
//
// expect_error, at the top level or on a query step, names the error kind
// the run must fail with (see ErrorKind).
//
// # Golden Files
//
// RunWithGolden renders the trace and the final model as JSON and compares
// it against testdata/golden/<name>.golden. Regenerate with -update.
package harness
