package cli

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/deduce/internal/config"
	"github.com/roach88/deduce/internal/evaluation"
	"github.com/roach88/deduce/internal/ir"
	"github.com/roach88/deduce/internal/loader"
)

// ProgramOptions are the flags shared by commands that evaluate a program.
type ProgramOptions struct {
	Config    string   // path to a YAML configuration file
	Evaluator string   // overrides config evaluator
	Queries   []string // literal lists replacing the program's queries
}

// load reads the program at path and the configuration.
func (o *ProgramOptions) load(path string) (*ir.Program, config.Config, error) {
	cfg := config.Default()
	if o.Config != "" {
		var err error
		cfg, err = config.Load(o.Config)
		if err != nil {
			return nil, config.Config{}, &ExitError{Code: ExitCommandError, ErrCode: ErrCodeConfig, Message: "failed to load config", Err: err}
		}
	}
	if o.Evaluator != "" {
		cfg.Evaluator = o.Evaluator
		if err := cfg.Validate(); err != nil {
			return nil, config.Config{}, &ExitError{Code: ExitCommandError, ErrCode: ErrCodeConfig, Message: "invalid evaluator", Err: err}
		}
	}

	prog, err := loader.Load(path)
	if err != nil {
		return nil, config.Config{}, err
	}
	return prog, cfg, nil
}

// queries returns the --query queries, or the program's own if none were
// given.
func (o *ProgramOptions) queries(prog *ir.Program) ([]ir.Query, error) {
	if len(o.Queries) == 0 {
		return prog.Queries, nil
	}
	out := make([]ir.Query, 0, len(o.Queries))
	for _, s := range o.Queries {
		q, err := ParseQuery(s)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

// ParseQuery parses a query given as a YAML flow list of literals, the
// same form queries take in a program file:
//
//	[{pred: path, args: [a, "?Y"]}, {builtin: "<", args: ["?Y", 3]}]
func ParseQuery(s string) (ir.Query, error) {
	var lits []loader.LiteralDoc
	dec := yaml.NewDecoder(strings.NewReader(s))
	dec.KnownFields(true)
	if err := dec.Decode(&lits); err != nil {
		return ir.Query{}, &ExitError{Code: ExitCommandError, ErrCode: ErrCodeQuery, Message: fmt.Sprintf("invalid query %q", s), Err: err}
	}
	doc := loader.Document{Queries: [][]loader.LiteralDoc{lits}}
	prog, err := doc.Program()
	if err != nil {
		return ir.Query{}, &ExitError{Code: ExitCommandError, ErrCode: ErrCodeQuery, Message: fmt.Sprintf("invalid query %q", s), Err: err}
	}
	return prog.Queries[0], nil
}

// Answer is the result of one query.
type Answer struct {
	Query     string   `json:"query"`
	Variables []string `json:"variables"`
	Rows      [][]any  `json:"rows"`
	Count     int      `json:"count"`

	tuples []ir.Tuple
}

// NewAnswer converts a query result. Rows are in term order.
func NewAnswer(q ir.Query, res *evaluation.Result) Answer {
	a := Answer{
		Query:     q.String(),
		Variables: make([]string, len(res.Variables)),
		Rows:      [][]any{},
	}
	for i, v := range res.Variables {
		a.Variables[i] = v.String()
	}
	a.tuples = res.Tuples()
	for _, t := range a.tuples {
		a.Rows = append(a.Rows, ir.EncodeTupleValues(t))
	}
	a.Count = len(a.Rows)
	return a
}

// String renders the answer as a query line followed by one binding line
// per row, or yes/no for a query without output variables.
func (a Answer) String() string {
	var b strings.Builder
	b.WriteString(a.Query)
	b.WriteByte('\n')
	if len(a.Variables) == 0 {
		if a.Count > 0 {
			b.WriteString("  yes\n")
		} else {
			b.WriteString("  no\n")
		}
		return b.String()
	}
	for _, t := range a.tuples {
		b.WriteString("  ")
		for i, term := range t {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s = %s", a.Variables[i], term)
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "  (%d %s)\n", a.Count, plural(a.Count, "answer", "answers"))
	return b.String()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
