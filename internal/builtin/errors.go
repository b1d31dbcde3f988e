package builtin

import (
	"errors"
	"fmt"

	"github.com/roach88/deduce/internal/ir"
)

// ErrorCode categorizes builtin failures.
type ErrorCode string

const (
	// ErrCodeDivideByZero indicates DIVIDE or MODULUS with a zero divisor.
	ErrCodeDivideByZero ErrorCode = "DIVIDE_BY_ZERO"

	// ErrCodeArity indicates a builtin literal with the wrong number of arguments.
	ErrCodeArity ErrorCode = "BAD_ARITY"

	// ErrCodeUnknown indicates a builtin kind with no registered implementation.
	ErrCodeUnknown ErrorCode = "UNKNOWN_BUILTIN"

	// ErrCodeBadArgument indicates an argument the builtin cannot interpret,
	// such as an invalid regular expression.
	ErrCodeBadArgument ErrorCode = "BAD_ARGUMENT"
)

// Error is returned by Evaluate for conditions that are not an ordinary
// "false" or "not evaluable" outcome.
type Error struct {
	Code    ErrorCode
	Kind    ir.BuiltinKind
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Kind, e.Message)
}

// IsDivideByZero returns true if err is a divide-by-zero builtin error.
// Uses errors.As to handle wrapped errors.
func IsDivideByZero(err error) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Code == ErrCodeDivideByZero
	}
	return false
}

func divideByZero(kind ir.BuiltinKind, dividend ir.Value) *Error {
	return &Error{
		Code:    ErrCodeDivideByZero,
		Kind:    kind,
		Message: fmt.Sprintf("%s divided by zero", dividend),
	}
}
