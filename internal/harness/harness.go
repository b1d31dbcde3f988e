package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/roach88/deduce/internal/compiler"
	"github.com/roach88/deduce/internal/ir"
	"github.com/roach88/deduce/internal/kb"
	"github.com/roach88/deduce/internal/loader"
)

// Error kinds reported in traces and matched by expect_error.
const (
	KindInvalidProgram = "invalid_program"
	KindRuleUnsafe     = "rule_unsafe"
	KindNotStratified  = "not_stratified"
	KindLoad           = "load"
	KindOther          = "error"
)

// ErrorKind classifies err. Evaluation errors report their lower-cased
// code, such as "divide_by_zero" or "tuple_limit".
func ErrorKind(err error) string {
	var ee *compiler.EvaluationError
	switch {
	case err == nil:
		return ""
	case kb.IsInvalidProgram(err):
		return KindInvalidProgram
	case compiler.IsRuleUnsafe(err):
		return KindRuleUnsafe
	case compiler.IsNotStratified(err):
		return KindNotStratified
	case errors.As(err, &ee):
		return strings.ToLower(string(ee.Code))
	case loader.IsLoadError(err):
		return KindLoad
	}
	return KindOther
}

// Run executes a scenario against a fresh knowledge base.
//
// An error return means the scenario could not be set up (bad program
// file or configuration). Failed expectations and assertions are reported
// in the result instead.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	cfg, err := scenario.Configuration()
	if err != nil {
		return nil, err
	}
	prog, err := scenario.program()
	if err != nil {
		return nil, err
	}

	result := NewResult()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	base, err := kb.New(prog, cfg, kb.WithLogger(logger))
	if err == nil {
		err = base.Execute(ctx)
	}
	if kind := ErrorKind(err); kind != scenario.ExpectError {
		switch {
		case err == nil:
			result.AddError(fmt.Sprintf("expected %s error, program evaluated", scenario.ExpectError))
		case scenario.ExpectError == "":
			result.AddError(fmt.Sprintf("program failed: %v", err))
		default:
			result.AddError(fmt.Sprintf("expected %s error, got %s: %v", scenario.ExpectError, kind, err))
		}
	}
	if err != nil {
		return result, nil
	}

	steps := scenario.Steps
	if len(steps) == 0 {
		for _, q := range prog.Queries {
			steps = append(steps, Step{Query: loader.NewDocument(&ir.Program{Queries: []ir.Query{q}}).Queries[0]})
		}
	}
	for i, step := range steps {
		if len(step.Add) > 0 {
			result.Trace = append(result.Trace, runAdd(base, i, step, result))
			continue
		}
		result.Trace = append(result.Trace, runQuery(ctx, base, i, step, result))
	}

	p, err := base.Program()
	if err != nil {
		result.AddError(fmt.Sprintf("prepare program: %v", err))
		return result, nil
	}
	result.Strata = len(p.Strata)

	model, err := base.Snapshot(ctx)
	if err != nil {
		result.AddError(fmt.Sprintf("final model: %v", err))
		return result, nil
	}
	for pred, ts := range model {
		rows := make([][]any, len(ts))
		for i, t := range ts {
			rows[i] = ir.EncodeTupleValues(t)
		}
		result.Model[pred.String()] = rows
	}

	for _, msg := range EvaluateAssertions(result, model, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// program loads the program file, if any, and merges the inline document.
func (s *Scenario) program() (*ir.Program, error) {
	inline, err := s.Document.Program()
	if err != nil {
		return nil, fmt.Errorf("inline program: %w", err)
	}
	if s.Program == "" {
		return inline, nil
	}

	prog, err := loader.Load(s.Program)
	if err != nil {
		return nil, err
	}
	for p, ts := range inline.Facts {
		for _, t := range ts {
			prog.AddFact(p.Symbol, t...)
		}
	}
	prog.Rules = append(prog.Rules, inline.Rules...)
	prog.Queries = append(prog.Queries, inline.Queries...)
	return prog, nil
}

func runAdd(base *kb.KnowledgeBase, i int, step Step, result *Result) TraceEvent {
	ev := TraceEvent{Step: i, Type: EventAdd}
	doc := loader.Document{Facts: step.Add}
	prog, err := doc.Program()
	if err == nil {
		ev.Count, err = base.AddFacts(prog.Facts)
	}
	if err != nil {
		ev.Error = ErrorKind(err)
		result.AddError(fmt.Sprintf("steps[%d]: add facts: %v", i, err))
	}
	return ev
}

func runQuery(ctx context.Context, base *kb.KnowledgeBase, i int, step Step, result *Result) TraceEvent {
	ev := TraceEvent{Step: i, Type: EventQuery}

	doc := loader.Document{Queries: [][]loader.LiteralDoc{step.Query}}
	prog, err := doc.Program()
	if err != nil {
		ev.Error = ErrorKind(err)
		result.AddError(fmt.Sprintf("steps[%d]: %v", i, err))
		return ev
	}
	q := prog.Queries[0]
	ev.Query = q.String()

	res, err := base.EvaluateQuery(ctx, q)
	if kind := ErrorKind(err); kind != step.ExpectError {
		if err == nil {
			result.AddError(fmt.Sprintf("steps[%d]: %s: expected %s error, got answers", i, q, step.ExpectError))
		} else {
			result.AddError(fmt.Sprintf("steps[%d]: %s: %v", i, q, err))
		}
	}
	if err != nil {
		ev.Error = ErrorKind(err)
		return ev
	}

	for _, v := range res.Variables {
		ev.Variables = append(ev.Variables, v.String())
	}
	got := res.Tuples()
	ev.Count = len(got)
	for _, t := range got {
		ev.Rows = append(ev.Rows, ir.EncodeTupleValues(t))
	}

	if step.Expect != nil {
		want, err := decodeRows(step.Expect)
		if err != nil {
			result.AddError(fmt.Sprintf("steps[%d]: expect: %v", i, err))
			return ev
		}
		if diff := diffTuples(want, got); diff != "" {
			result.AddError(fmt.Sprintf("steps[%d]: %s answers mismatch (-want +got):\n%s", i, q, diff))
		}
	}
	return ev
}

func decodeRows(rows [][]any) ([]ir.Tuple, error) {
	out := make([]ir.Tuple, 0, len(rows))
	for i, row := range rows {
		t, err := ir.DecodeTuple(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out, nil
}
