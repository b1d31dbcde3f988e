package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/deduce/internal/ir"
)

// RuleUnsafeError reports a rule whose variables are not all limited.
//
// Unsafe rules are fatal for the program and never retried.
type RuleUnsafeError struct {
	// Rule is the offending rule as written.
	Rule ir.Rule

	// Variables lists every unlimited variable, sorted and deduplicated.
	Variables []ir.Variable
}

// Error implements the error interface.
func (e *RuleUnsafeError) Error() string {
	names := make([]string, len(e.Variables))
	for i, v := range e.Variables {
		names[i] = v.String()
	}
	return fmt.Sprintf("rule is unsafe: unlimited variables %s in %s", strings.Join(names, ", "), e.Rule)
}

// ProgramNotStratifiedError reports a cycle through negation.
type ProgramNotStratifiedError struct {
	// Cycle is a dependency path that starts and ends on the same
	// predicate and crosses at least one negative edge. Empty when the
	// failing stratifier cannot name one.
	Cycle []ir.Predicate

	// Stratifier names the last stratifier tried.
	Stratifier string
}

// Error implements the error interface.
func (e *ProgramNotStratifiedError) Error() string {
	if len(e.Cycle) == 0 {
		return fmt.Sprintf("program is not stratified (%s)", e.Stratifier)
	}
	parts := make([]string, len(e.Cycle))
	for i, p := range e.Cycle {
		parts[i] = p.String()
	}
	return fmt.Sprintf("program is not stratified: negative cycle %s", strings.Join(parts, " → "))
}

// EvaluationErrorCode categorizes evaluation errors.
type EvaluationErrorCode string

const (
	// ErrCodeDivideByZero is DIVIDE or MODULUS by zero under the STOP policy.
	ErrCodeDivideByZero EvaluationErrorCode = "DIVIDE_BY_ZERO"

	// ErrCodeBuiltinArity is a builtin used with the wrong number of arguments.
	ErrCodeBuiltinArity EvaluationErrorCode = "BUILTIN_ARITY"

	// ErrCodeBuiltinFailed is any other builtin failure, such as a bad
	// regular expression.
	ErrCodeBuiltinFailed EvaluationErrorCode = "BUILTIN_FAILED"

	// ErrCodeUncompilable is a body in which no remaining literal can be
	// placed.
	ErrCodeUncompilable EvaluationErrorCode = "UNCOMPILABLE"

	// ErrCodeTupleLimit is an evaluation that exceeded the configured
	// maximum number of tuples.
	ErrCodeTupleLimit EvaluationErrorCode = "TUPLE_LIMIT"
)

// EvaluationError aborts the current evaluate call.
type EvaluationError struct {
	Code EvaluationErrorCode

	// Rule is the rule being evaluated, empty for program-level errors.
	Rule string

	// Literal is the literal that failed, if any.
	Literal string

	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *EvaluationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	if e.Literal != "" {
		fmt.Fprintf(&b, " (literal=%s)", e.Literal)
	}
	if e.Rule != "" {
		fmt.Fprintf(&b, " (rule=%s)", e.Rule)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// NewTupleLimitError creates the error raised when an evaluation holds more
// than max tuples.
func NewTupleLimitError(size, max int) *EvaluationError {
	return &EvaluationError{
		Code:    ErrCodeTupleLimit,
		Message: fmt.Sprintf("evaluation exceeded max tuples (%d > %d)", size, max),
	}
}

// IsRuleUnsafe returns true if err is or wraps a *RuleUnsafeError.
func IsRuleUnsafe(err error) bool {
	var e *RuleUnsafeError
	return errors.As(err, &e)
}

// IsNotStratified returns true if err is or wraps a *ProgramNotStratifiedError.
func IsNotStratified(err error) bool {
	var e *ProgramNotStratifiedError
	return errors.As(err, &e)
}

// IsEvaluationError returns true if err is or wraps an *EvaluationError.
func IsEvaluationError(err error) bool {
	var e *EvaluationError
	return errors.As(err, &e)
}

// IsTupleLimit returns true if err is an evaluation error for an exceeded
// tuple limit. Uses errors.As to handle wrapped errors.
func IsTupleLimit(err error) bool {
	var e *EvaluationError
	if errors.As(err, &e) {
		return e.Code == ErrCodeTupleLimit
	}
	return false
}
