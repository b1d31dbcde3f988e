package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	c := Default()

	require.NoError(t, c.Validate())
	assert.True(t, c.AllowUnlimitedVariablesInNegatedOrdinaryPredicates)
	assert.True(t, c.TernaryTargetsImplyLimited)
	assert.Equal(t, EvaluatorSemiNaive, c.Evaluator)
	assert.Equal(t, DivideByZeroStop, c.DivideByZero)
	assert.Equal(t, []string{StratifierGlobal, StratifierLocalStrict, StratifierLocalNonStrict}, c.Stratifiers)
	assert.Zero(t, c.MaxTuples)
}

func TestNew_AppliesOptions(t *testing.T) {
	c := New(
		WithEvaluator(EvaluatorNaive),
		WithDivideByZero(DivideByZeroDiscard),
		WithUnlimitedNegatedVariables(false),
		WithTernaryTargetsImplyLimited(false),
		WithOptimisers(),
		WithStratifiers(StratifierLocalNonStrict),
		WithRelationFactory(FactorySorted),
		WithIndexFactory(FactoryEquivalence),
		WithMaxTuples(100),
		WithStreamWindow(5*time.Second),
		WithStreamInterval(time.Millisecond),
	)

	require.NoError(t, c.Validate())
	assert.Equal(t, EvaluatorNaive, c.Evaluator)
	assert.Equal(t, DivideByZeroDiscard, c.DivideByZero)
	assert.False(t, c.AllowUnlimitedVariablesInNegatedOrdinaryPredicates)
	assert.False(t, c.TernaryTargetsImplyLimited)
	assert.Empty(t, c.Optimisers)
	assert.Equal(t, []string{StratifierLocalNonStrict}, c.Stratifiers)
	assert.Equal(t, FactorySorted, c.RelationFactory)
	assert.Equal(t, FactoryEquivalence, c.IndexFactory)
	assert.Equal(t, 100, c.MaxTuples)
	assert.Equal(t, 5*time.Second, c.Stream.Window)
	assert.Equal(t, time.Millisecond, c.Stream.Interval)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		opt     Option
		wantErr string
	}{
		{"evaluator", WithEvaluator("magic"), "evaluator"},
		{"policy", WithDivideByZero("ignore"), "divide_by_zero"},
		{"optimiser", WithOptimisers("inline"), "optimisers[0]"},
		{"no stratifiers", WithStratifiers(), "stratifiers"},
		{"stratifier", WithStratifiers(StratifierGlobal, "dynamic"), "stratifiers[1]"},
		{"relation factory", WithRelationFactory("lsm"), "relation_factory"},
		{"index factory", WithIndexFactory("bitmap"), "index_factory"},
		{"max tuples", WithMaxTuples(-1), "max_tuples"},
		{"window", WithStreamWindow(-time.Second), "stream.window"},
		{"interval", WithStreamInterval(0), "stream.interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.opt).Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParse_OverlaysDefaults(t *testing.T) {
	c, err := Parse([]byte(`
evaluator: naive
divide_by_zero: discard
max_tuples: 5000
stratifiers: [local-strict]
stream:
  window: 30s
`))
	require.NoError(t, err)

	assert.Equal(t, EvaluatorNaive, c.Evaluator)
	assert.Equal(t, DivideByZeroDiscard, c.DivideByZero)
	assert.Equal(t, 5000, c.MaxTuples)
	assert.Equal(t, []string{StratifierLocalStrict}, c.Stratifiers)
	assert.Equal(t, 30*time.Second, c.Stream.Window)
	assert.Equal(t, DefaultStreamInterval, c.Stream.Interval, "unset keys keep defaults")
	assert.Equal(t, DefaultOptimisers(), c.Optimisers)
	assert.True(t, c.TernaryTargetsImplyLimited)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("evaluator: [not, a, string]"))
	assert.ErrorContains(t, err, "parse config")

	_, err = Parse([]byte("evaluator: topdown"))
	assert.ErrorContains(t, err, "invalid config")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deduce.yaml")
	require.NoError(t, os.WriteFile(path, []byte("relation_factory: sorted\n"), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, FactorySorted, c.RelationFactory)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config")
}
