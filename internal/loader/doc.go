// Package loader reads programs from structured documents.
//
// A program document has three optional top-level fields:
//
//	facts:   map of predicate symbol to a list of rows
//	rules:   list of {head, body}
//	queries: list of literal lists
//
// Atoms are {pred, args} or {builtin, args}; body literals may add
// negated: true. Builtins are named by kind (LESS) or by infix operator
// (<). Terms use the encoding of ir.DecodeTerm: "?X" is a variable, other
// strings and scalars are constants.
//
// The same document may be written in CUE, YAML or JSON. A directory is
// loaded as one CUE package, so a program can be split across files.
package loader
