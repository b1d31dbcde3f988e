package cli

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/deduce/internal/datasource"
	"github.com/roach88/deduce/internal/evaluation"
	"github.com/roach88/deduce/internal/kb"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ProgramOptions

	SQLite  string   // SQLite database serving --table predicates
	Tables  []string // pred=table(col,...) mappings
	Metrics bool     // include evaluation metrics in the output
}

// RunResult is the output of the run command.
type RunResult struct {
	Answers []Answer           `json:"answers"`
	Stats   RunStats           `json:"stats"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// RunStats summarizes the evaluation.
type RunStats struct {
	Facts   int `json:"facts"`
	Rounds  int `json:"rounds"`
	Derived int `json:"derived"`
	Unions  int `json:"unions"`
}

func (r RunResult) String() string {
	var b strings.Builder
	for i, a := range r.Answers {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(a.String())
	}
	if len(r.Answers) == 0 {
		fmt.Fprintf(&b, "evaluated: %d base facts, %d derived in %d rounds\n", r.Stats.Facts, r.Stats.Derived, r.Stats.Rounds)
	}
	names := make([]string, 0, len(r.Metrics))
	for name := range r.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "%s %g\n", name, r.Metrics[name])
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <program>",
		Short: "Evaluate a program and answer its queries",
		Long: `Evaluate a program to its minimal model and answer queries against it.

The program is a .cue, .yaml, .yml or .json file, or a directory holding a
CUE package. Without --query, the program's own queries are answered.

Facts for some predicates may be read from SQLite tables: map each one with
--table pred=table(col1,col2), where the columns supply the arguments in
order.

Examples:
  deduce run family.yaml
  deduce run ./program --query '[{pred: ancestor, args: [alice, "?Y"]}]'
  deduce run graph.cue --sqlite graph.db --table 'edge=edges(src,dst)'
  deduce run family.yaml --config deduce.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProgram(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "path to YAML configuration file")
	cmd.Flags().StringVar(&opts.Evaluator, "evaluator", "", "evaluator (naive|seminaive), overrides config")
	cmd.Flags().StringArrayVarP(&opts.Queries, "query", "q", nil, "query as a YAML literal list (repeatable)")
	cmd.Flags().StringVar(&opts.SQLite, "sqlite", "", "SQLite database serving --table predicates")
	cmd.Flags().StringArrayVar(&opts.Tables, "table", nil, "map a predicate to a table: pred=table(col,...) (repeatable)")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "include evaluation metrics in the output")

	return cmd
}

func runProgram(ctx context.Context, opts *RunOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)

	prog, cfg, err := opts.load(path)
	if err != nil {
		return formatter.Fail("failed to load program", err)
	}
	queries, err := opts.queries(prog)
	if err != nil {
		return formatter.Fail("failed to parse query", err)
	}
	formatter.VerboseLog("Loaded %d rules, %d queries from %s", len(prog.Rules), len(queries), path)

	registry := prometheus.NewRegistry()
	kbOpts := []kb.Option{
		kb.WithLogger(slog.Default()),
		kb.WithMetrics(evaluation.NewMetrics(registry)),
	}

	src, err := opts.dataSource()
	if err != nil {
		return formatter.Fail("failed to open data source", err)
	}
	if src != nil {
		defer func() {
			if closeErr := src.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()
		kbOpts = append(kbOpts, kb.WithDataSource(src))
	}

	base, err := kb.New(prog, cfg, kbOpts...)
	if err != nil {
		return formatter.Fail("invalid program", err)
	}
	if err := base.Execute(ctx); err != nil {
		return formatter.Fail("evaluation failed", err)
	}

	result := RunResult{Answers: []Answer{}}
	for _, q := range queries {
		res, err := base.EvaluateQuery(ctx, q)
		if err != nil {
			return formatter.Fail(fmt.Sprintf("query %s failed", q), err)
		}
		result.Answers = append(result.Answers, NewAnswer(q, res))
	}

	stats := base.Stats()
	result.Stats = RunStats{Facts: base.Size(), Rounds: stats.Rounds, Derived: stats.Derived, Unions: stats.Unions}
	if opts.Metrics {
		result.Metrics, err = gatherMetrics(registry)
		if err != nil {
			return formatter.Fail("failed to gather metrics", err)
		}
	}
	return formatter.Success(result)
}

// dataSource opens the --sqlite database, or returns nil if none was given.
func (o *RunOptions) dataSource() (*datasource.SQLSource, error) {
	if o.SQLite == "" {
		if len(o.Tables) > 0 {
			return nil, &ExitError{Code: ExitCommandError, ErrCode: ErrCodeDataSource, Message: "--table requires --sqlite"}
		}
		return nil, nil
	}
	tables := make([]datasource.Table, 0, len(o.Tables))
	for _, s := range o.Tables {
		t, err := datasource.ParseTable(s)
		if err != nil {
			return nil, &ExitError{Code: ExitCommandError, ErrCode: ErrCodeDataSource, Message: "invalid --table", Err: err}
		}
		tables = append(tables, t)
	}
	src, err := datasource.Open(o.SQLite, tables...)
	if err != nil {
		return nil, &ExitError{Code: ExitCommandError, ErrCode: ErrCodeDataSource, Message: "failed to open " + o.SQLite, Err: err}
	}
	return src, nil
}

// gatherMetrics flattens the registry to one value per metric family:
// counters sum over their labels, histograms report their sample count.
func gatherMetrics(reg *prometheus.Registry) (map[string]float64, error) {
	families, err := reg.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(families))
	for _, mf := range families {
		var total float64
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				total += m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				total += float64(m.GetHistogram().GetSampleCount())
			}
		}
		out[mf.GetName()] = total
	}
	return out, nil
}
