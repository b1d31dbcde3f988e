package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/deduce/internal/compiler"
	"github.com/roach88/deduce/internal/ir"
	"github.com/roach88/deduce/internal/kb"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid       bool                       `json:"valid"`
	Fingerprint string                     `json:"fingerprint"`
	Errors      []compiler.ValidationError `json:"errors,omitempty"`
	Warnings    []compiler.ValidationError `json:"warnings,omitempty"`
	Strata      int                        `json:"strata"`
	Stratifier  string                     `json:"stratifier,omitempty"`
}

func (r ValidationResult) String() string {
	var b strings.Builder
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "warning: %s\n", w.Error())
	}
	if r.Valid {
		fmt.Fprintf(&b, "✓ Program valid (%d %s, %s stratifier)\nfingerprint: %s", r.Strata, plural(r.Strata, "stratum", "strata"), r.Stratifier, r.Fingerprint)
		return b.String()
	}
	fmt.Fprintf(&b, "✗ Validation failed with %d %s:", len(r.Errors), plural(len(r.Errors), "error", "errors"))
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "\n  %s", e.Error())
	}
	return b.String()
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProgramOptions{}

	cmd := &cobra.Command{
		Use:   "validate <program>",
		Short: "Validate a program without evaluating it",
		Long: `Validate a program without evaluating it.

Checks the structure of facts, rules and queries, then rule safety and
stratification under the configured stratifiers. Faster than run for
development feedback, and no data source is read.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "path to YAML configuration file")

	return cmd
}

func runValidate(rootOpts *RootOptions, opts *ProgramOptions, path string, cmd *cobra.Command) error {
	formatter := rootOpts.formatter(cmd)

	prog, cfg, err := opts.load(path)
	if err != nil {
		return formatter.Fail("failed to load program", err)
	}
	formatter.VerboseLog("Validating %d rules, %d queries", len(prog.Rules), len(prog.Queries))

	// The fingerprint identifies the program content independent of the
	// file format it was written in.
	result := ValidationResult{Fingerprint: ir.ProgramFingerprint(prog)}
	for _, e := range compiler.ValidateProgram(prog, nil) {
		if e.Code == compiler.ErrArityConflict {
			result.Warnings = append(result.Warnings, e)
			continue
		}
		result.Errors = append(result.Errors, e)
	}

	if len(result.Errors) == 0 {
		quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
		base, err := kb.New(prog, cfg, kb.WithLogger(quiet))
		if err != nil {
			return formatter.Fail("invalid program", err)
		}
		p, err := base.Program()
		if err != nil {
			result.Errors = append(result.Errors, preparationError(err))
		} else {
			result.Strata = len(p.Strata)
			result.Stratifier = p.Stratifier
		}
	}

	result.Valid = len(result.Errors) == 0
	if err := formatter.Success(result); err != nil {
		return err
	}
	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d errors", len(result.Errors)))
	}
	return nil
}

// preparationError reports a safety or stratification failure in the same
// shape as a structural error.
func preparationError(err error) compiler.ValidationError {
	var (
		unsafeErr *compiler.RuleUnsafeError
		stratErr  *compiler.ProgramNotStratifiedError
	)
	switch {
	case errors.As(err, &unsafeErr):
		return compiler.ValidationError{Field: "rules", Message: unsafeErr.Error(), Code: ErrCodeRuleUnsafe}
	case errors.As(err, &stratErr):
		return compiler.ValidationError{Field: "rules", Message: stratErr.Error(), Code: ErrCodeNotStratified}
	}
	return compiler.ValidationError{Field: "rules", Message: err.Error(), Code: ErrCodeEvaluation}
}
