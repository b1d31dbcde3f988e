// Package evaluation computes the minimal model of a stratified program.
//
// A Strategy turns rules into a Program (safety check, stratification,
// compilation) and evaluates it bottom-up against a storage.Facts, one
// stratum at a time. Each stratum is run to fixpoint by an Evaluator:
//
//   - Naive re-evaluates every rule in full until a pass adds nothing
//   - SemiNaive joins only against the tuples derived in the previous round
//
// Both evaluators leave the same facts behind. Queries are compiled as
// headless rules and evaluated once against the finished model.
//
// Evaluation is synchronous and single-threaded. Callers serialize access
// to the facts they pass in (see package kb).
package evaluation
