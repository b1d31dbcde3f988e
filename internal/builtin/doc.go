// Package builtin evaluates builtin literals: equality, comparison,
// arithmetic, string, and type-test predicates.
//
// Every builtin is one Spec record in a Registry, dispatched on its
// ir.BuiltinKind tag. Evaluation never fails for missing bindings; it
// reports NotEvaluable and the caller drops the row. Errors are reserved
// for divide-by-zero, bad arity, and uninterpretable arguments.
//
// Numeric operands are promoted Int -> Decimal -> Double. Int division
// truncates toward zero. Ternary arithmetic builtins op(a, b, c) mean
// a op b = c and can solve for any one unbound argument, except MODULUS
// which only computes c.
package builtin
