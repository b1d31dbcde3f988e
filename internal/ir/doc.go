// Package ir provides the term, tuple, and program types of the Datalog engine.
//
// This package contains type definitions and pure functions only. All other
// internal packages import ir; ir imports nothing internal. This keeps IR the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Term and Value are sealed interfaces (closed tagged unions)
//   - Terms, tuples, and rules are immutable once built; rewrites produce new values
//   - Structural equality (Equal) and canonical encoding (AppendCanonical) agree
//   - Strings are NFC normalized at construction (NewString)
package ir
