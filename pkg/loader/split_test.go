package loader_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DaviLago/MachineLearningRegressionModel/pkg/loader"
)

func TestTrainTestSplit(t *testing.T) {
	t.Parallel()

	train, test, err := loader.TrainTestSplit(10, 0.2, 42)
	require.NoError(t, err)
	require.Len(t, test, 2)
	require.Len(t, train, 8)
	requirePartition(t, 10, train, test)

	train2, test2, err := loader.TrainTestSplit(10, 0.2, 42)
	require.NoError(t, err)
	require.Equal(t, train, train2)
	require.Equal(t, test, test2)
}

func TestStratifiedSplit_PreservesBinShares(t *testing.T) {
	t.Parallel()

	// Unequal strata: 500, 300, 150, 50 rows.
	sizes := []int{500, 300, 150, 50}
	var strata []int
	for s, n := range sizes {
		for range n {
			strata = append(strata, s)
		}
	}
	train, test, err := loader.StratifiedSplit(strata, 0.2, 42)
	require.NoError(t, err)
	require.Len(t, test, 200)
	require.Len(t, train, 800)
	requirePartition(t, len(strata), train, test)

	share := func(idx []int, s int) float64 {
		c := 0
		for _, i := range idx {
			if strata[i] == s {
				c++
			}
		}
		return float64(c) / float64(len(idx))
	}
	for s, n := range sizes {
		overall := float64(n) / float64(len(strata))
		require.InDelta(t, overall, share(train, s), 0.05, "train share of stratum %d", s)
		require.InDelta(t, overall, share(test, s), 0.05, "test share of stratum %d", s)
	}
}

func TestStratifiedSplit_Deterministic(t *testing.T) {
	t.Parallel()

	strata := make([]int, 97)
	for i := range strata {
		strata[i] = i % 4
	}
	train, test, err := loader.StratifiedSplit(strata, 0.2, 7)
	require.NoError(t, err)
	require.Len(t, test, int(math.Ceil(0.2*97)))
	for range 3 {
		train2, test2, err := loader.StratifiedSplit(strata, 0.2, 7)
		require.NoError(t, err)
		require.Equal(t, train, train2)
		require.Equal(t, test, test2)
	}

	_, other, err := loader.StratifiedSplit(strata, 0.2, 8)
	require.NoError(t, err)
	require.NotEqual(t, test, other)
}

func TestStratifiedSplit_Errors(t *testing.T) {
	t.Parallel()

	_, _, err := loader.StratifiedSplit([]int{0, 0, 1}, 0.5, 1)
	require.Error(t, err, "singleton stratum")

	_, _, err = loader.StratifiedSplit([]int{0, 0, 1, 1}, 0, 1)
	require.Error(t, err)

	_, _, err = loader.StratifiedSplit([]int{0, 0, 1, 1, 2, 2, 3, 3}, 0.1, 1)
	require.Error(t, err, "fewer test rows than strata")
}

func requirePartition(t *testing.T, n int, train, test []int) {
	t.Helper()
	seen := make([]bool, n)
	for _, idx := range [][]int{train, test} {
		for _, i := range idx {
			require.False(t, seen[i], "row %d assigned twice", i)
			seen[i] = true
		}
	}
	for i, ok := range seen {
		require.True(t, ok, "row %d unassigned", i)
	}
}
