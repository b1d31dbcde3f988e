package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrata_JSON(t *testing.T) {
	out, err := execute(t, "strata", "--format", "json", "testdata/negation.yaml")
	require.NoError(t, err)

	result, cliErr := decode[StrataResult](t, out)
	require.Nil(t, cliErr)
	assert.Equal(t, "global", result.Stratifier)
	require.Len(t, result.Strata, 2)

	assert.Equal(t, 0, result.Strata[0].Index)
	assert.Equal(t, []string{"p/1"}, result.Strata[0].Predicates)
	assert.Equal(t, []string{"q/1"}, result.Strata[1].Predicates)
	require.Len(t, result.Strata[1].Rules, 1)
	assert.Contains(t, result.Strata[1].Rules[0], "not p(?X)")
	assert.Empty(t, result.Strata[1].Plans)
}

func TestStrata_Plans(t *testing.T) {
	out, err := execute(t, "strata", "--plans", "testdata/graph.yaml")
	require.NoError(t, err)

	assert.Contains(t, out, "stratifier: global")
	assert.Contains(t, out, "stratum 0: path/2")
	assert.Contains(t, out, "head path(?X, ")
}

func TestStrata_NotStratified(t *testing.T) {
	out, err := execute(t, "strata", "testdata/not_stratified.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E301]")
}
