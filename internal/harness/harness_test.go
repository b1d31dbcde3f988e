package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/deduce/internal/compiler"
	"github.com/roach88/deduce/internal/config"
	"github.com/roach88/deduce/internal/ir"
	"github.com/roach88/deduce/internal/kb"
	"github.com/roach88/deduce/internal/loader"
)

func scenarioPath(name string) string {
	return filepath.Join("testdata", "scenarios", name+".yaml")
}

func TestRunWithGolden(t *testing.T) {
	for _, name := range []string{"transitive_closure", "negation"} {
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario(scenarioPath(name))
			require.NoError(t, err)

			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_ExpectedErrors(t *testing.T) {
	for _, name := range []string{"not_stratified", "divide_by_zero"} {
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario(scenarioPath(name))
			require.NoError(t, err)

			result, err := Run(context.Background(), s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Trace)
		})
	}
}

func TestLoadScenarios(t *testing.T) {
	all, err := LoadScenarios(filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "divide_by_zero", all[0].Name)
}

func TestRun_ReportsMismatch(t *testing.T) {
	s, err := LoadScenario(scenarioPath("transitive_closure"))
	require.NoError(t, err)
	s.Steps[0].Expect = [][]any{{"b"}, {"z"}}
	s.Assertions = append(s.Assertions, Assertion{Type: AssertCount, Pred: "edge", Arity: 2, Count: 9})

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "steps[0]")
	assert.Contains(t, result.Errors[0], "-want +got")
	assert.Contains(t, result.Errors[1], "9 tuples of edge/2")
}

func TestRun_UnexpectedSuccess(t *testing.T) {
	s, err := LoadScenario(scenarioPath("negation"))
	require.NoError(t, err)
	s.ExpectError = KindRuleUnsafe

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "expected rule_unsafe error")
}

func TestRun_QueryStepError(t *testing.T) {
	s := &Scenario{
		Name:        "unsafe_query",
		Description: "An unsafe query is reported on its step.",
		Document:    loader.Document{Facts: map[string][][]any{"p": {{"a"}}}},
		Steps: []Step{{
			Query: []loader.LiteralDoc{{
				AtomDoc: loader.AtomDoc{Builtin: "<", Args: []any{"?X", 3}},
			}},
			ExpectError: KindRuleUnsafe,
		}},
	}
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 1)
	assert.Equal(t, KindRuleUnsafe, result.Trace[0].Error)
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", "name: x\ndescription: y\nfacts: {p: [[a]]}\nasertions: []\n", "failed to parse YAML"},
		{"no name", "description: y\nfacts: {p: [[a]]}\n", "name is required"},
		{"no program", "name: x\ndescription: y\n", "program or inline"},
		{"missing program", "name: x\ndescription: y\nprogram: nope.yaml\n", "program not found"},
		{"bad config", "name: x\ndescription: y\nfacts: {p: [[a]]}\nconfig: {evaluator: magic}\n", "evaluator"},
		{"add and query", "name: x\ndescription: y\nfacts: {p: [[a]]}\nsteps:\n  - add: {p: [[b]]}\n    query: [{pred: p, args: [\"?X\"]}]\n", "exactly one"},
		{"bad assertion", "name: x\ndescription: y\nfacts: {p: [[a]]}\nassertions: [{type: sometimes}]\n", "unknown assertion type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "s.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))
			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "", ErrorKind(nil))
	assert.Equal(t, KindInvalidProgram, ErrorKind(&kb.InvalidProgramError{Errors: []compiler.ValidationError{{}}}))
	assert.Equal(t, "tuple_limit", ErrorKind(compiler.NewTupleLimitError(10, 5)))
	assert.Equal(t, KindLoad, ErrorKind(&loader.LoadError{Code: loader.ErrCodeTerm}))
	assert.Equal(t, KindOther, ErrorKind(assert.AnError))
}

func TestDiffTuples_DecimalsByValue(t *testing.T) {
	want := []ir.Tuple{{ir.D("1.0")}}
	got := []ir.Tuple{{ir.D("1.00")}}
	assert.Empty(t, diffTuples(want, got))
	assert.NotEmpty(t, diffTuples(want, []ir.Tuple{{ir.D("2")}}))
}

func TestScenario_Configuration(t *testing.T) {
	s, err := LoadScenario(scenarioPath("negation"))
	require.NoError(t, err)
	cfg, err := s.Configuration()
	require.NoError(t, err)
	assert.Equal(t, config.EvaluatorNaive, cfg.Evaluator)
	assert.Equal(t, config.Default().Stratifiers, cfg.Stratifiers)
}
