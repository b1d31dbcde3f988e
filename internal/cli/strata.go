package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/deduce/internal/compiler"
	"github.com/roach88/deduce/internal/kb"
)

// StrataResult describes the stratification of a program.
type StrataResult struct {
	Stratifier string    `json:"stratifier"`
	Strata     []Stratum `json:"strata"`
}

// Stratum is one evaluation stratum.
type Stratum struct {
	Index      int      `json:"index"`
	Predicates []string `json:"predicates"`
	Rules      []string `json:"rules"`
	Plans      string   `json:"plans,omitempty"`
}

func (r StrataResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "stratifier: %s\n", r.Stratifier)
	for _, s := range r.Strata {
		fmt.Fprintf(&b, "\nstratum %d: %s\n", s.Index, strings.Join(s.Predicates, ", "))
		if s.Plans != "" {
			for _, line := range strings.Split(strings.TrimSuffix(s.Plans, "\n"), "\n") {
				fmt.Fprintf(&b, "  %s\n", line)
			}
			continue
		}
		for _, rule := range s.Rules {
			fmt.Fprintf(&b, "  %s\n", rule)
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// StrataOptions holds flags for the strata command.
type StrataOptions struct {
	ProgramOptions
	Plans bool
}

// NewStrataCommand creates the strata command.
func NewStrataCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StrataOptions{}

	cmd := &cobra.Command{
		Use:   "strata <program>",
		Short: "Show the evaluation strata of a program",
		Long: `Show how a program's rules are stratified for evaluation.

Each stratum lists the predicates it defines and its rules after
optimisation. With --plans, each rule is followed by its compiled join plan.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStrata(rootOpts, opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "path to YAML configuration file")
	cmd.Flags().BoolVar(&opts.Plans, "plans", false, "show compiled join plans")

	return cmd
}

func runStrata(rootOpts *RootOptions, opts *StrataOptions, path string, cmd *cobra.Command) error {
	formatter := rootOpts.formatter(cmd)

	prog, cfg, err := opts.load(path)
	if err != nil {
		return formatter.Fail("failed to load program", err)
	}
	base, err := kb.New(prog, cfg)
	if err != nil {
		return formatter.Fail("invalid program", err)
	}
	p, err := base.Program()
	if err != nil {
		return formatter.Fail("program rejected", err)
	}

	result := StrataResult{Stratifier: p.Stratifier, Strata: make([]Stratum, 0, len(p.Strata))}
	for i, rules := range p.Strata {
		result.Strata = append(result.Strata, newStratum(i, rules, opts.Plans))
	}
	return formatter.Success(result)
}

func newStratum(index int, rules []*compiler.CompiledRule, plans bool) Stratum {
	s := Stratum{Index: index, Rules: make([]string, 0, len(rules))}
	seen := make(map[string]bool)
	for _, cr := range rules {
		s.Rules = append(s.Rules, cr.Rule().String())
		if name := cr.HeadPredicate().String(); !seen[name] {
			seen[name] = true
			s.Predicates = append(s.Predicates, name)
		}
	}
	sort.Strings(s.Predicates)
	if plans {
		s.Plans = compiler.Plans(rules)
	}
	return s
}
