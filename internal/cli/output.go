package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/deduce/internal/compiler"
	"github.com/roach88/deduce/internal/kb"
	"github.com/roach88/deduce/internal/loader"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Program rejected, evaluation failed or scenarios failed
	ExitCommandError = 2 // Command error (bad paths, bad flags, unreadable config)
)

// Error codes reported by commands. Loader errors keep their own codes
// (E001-E011) and program validation errors keep theirs (E2xx).
const (
	ErrCodeGeneric        = "E000"
	ErrCodeConfig         = "E007" // configuration file missing or invalid
	ErrCodeDataSource     = "E008" // SQLite source could not be opened or mapped
	ErrCodeQuery          = "E009" // --query flag is not a literal list
	ErrCodeInvalidProgram = "E200"
	ErrCodeRuleUnsafe     = "E300"
	ErrCodeNotStratified  = "E301"
	ErrCodeEvaluation     = "E302"
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	ErrCode string // Reported error code such as ErrCodeConfig (optional)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E300", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format. Text
// output prints data with fmt.Println, so payloads implement fmt.Stringer.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// encode writes one JSON document without HTML escaping, so builtins such
// as "<" print as written.
func (f *OutputFormatter) encode(v any) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// Fail reports err in the configured format and returns the ExitError the
// command should return. The error code and exit code follow the error's
// type: load errors are command errors, program and evaluation errors are
// failures.
func (f *OutputFormatter) Fail(message string, err error) error {
	code, exit, details := classify(err)
	if outErr := f.Error(code, fmt.Sprintf("%s: %v", message, err), details); outErr != nil {
		return outErr
	}
	return WrapExitError(exit, message, err)
}

func classify(err error) (code string, exit int, details any) {
	var (
		loadErr    *loader.LoadError
		invalidErr *kb.InvalidProgramError
		unsafeErr  *compiler.RuleUnsafeError
		stratErr   *compiler.ProgramNotStratifiedError
		evalErr    *compiler.EvaluationError
		exitErr    *ExitError
	)
	switch {
	case errors.As(err, &loadErr):
		return loadErr.Code, ExitCommandError, nil
	case errors.As(err, &invalidErr):
		return ErrCodeInvalidProgram, ExitFailure, invalidErr.Errors
	case errors.As(err, &unsafeErr):
		return ErrCodeRuleUnsafe, ExitFailure, nil
	case errors.As(err, &stratErr):
		return ErrCodeNotStratified, ExitFailure, nil
	case errors.As(err, &evalErr):
		return ErrCodeEvaluation, ExitFailure, map[string]string{"kind": string(evalErr.Code)}
	case errors.As(err, &exitErr):
		if exitErr.ErrCode != "" {
			return exitErr.ErrCode, exitErr.Code, nil
		}
		return ErrCodeGeneric, exitErr.Code, nil
	}
	return ErrCodeGeneric, ExitFailure, nil
}
