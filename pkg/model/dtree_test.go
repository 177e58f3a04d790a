package model_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DaviLago/MachineLearningRegressionModel/pkg/model"
)

func stepData() ([][]float64, []float64) {
	var X [][]float64
	var y []float64
	for i := range 40 {
		X = append(X, []float64{float64(i), float64(i % 3)})
		if i < 20 {
			y = append(y, 10)
		} else {
			y = append(y, 50)
		}
	}
	return X, y
}

func TestDecisionTreeRegressor_FitsStepFunction(t *testing.T) {
	t.Parallel()

	X, y := stepData()
	tree := model.NewDecisionTreeRegressor(model.WithMaxDepth(3), model.WithRandomState(1))
	require.NoError(t, tree.Fit(X, y))
	require.True(t, tree.IsFitted())
	require.Equal(t, 2, tree.NFeatures())
	require.Equal(t, 1, tree.Depth())
	require.Equal(t, 2, tree.Leaves())
	require.Equal(t, []int{20, 20}, tree.LeafSizes())

	preds, err := tree.Predict([][]float64{{0, 0}, {19, 1}, {19.6, 0}, {100, 2}})
	require.NoError(t, err)
	require.Equal(t, []float64{10, 10, 50, 50}, preds)
}

func TestDecisionTreeRegressor_RespectsMinSamplesLeaf(t *testing.T) {
	t.Parallel()

	var X [][]float64
	var y []float64
	for i := range 30 {
		X = append(X, []float64{float64(i)})
		y = append(y, float64(i*i))
	}
	tree := model.NewDecisionTreeRegressor(model.WithMaxDepth(5), model.WithMinSamplesLeaf(10), model.WithRandomState(42))
	require.NoError(t, tree.Fit(X, y))
	for _, n := range tree.LeafSizes() {
		require.GreaterOrEqual(t, n, 10)
	}
	require.LessOrEqual(t, tree.Depth(), 5)
}

func TestDecisionTreeRegressor_RespectsMaxDepth(t *testing.T) {
	t.Parallel()

	var X [][]float64
	var y []float64
	for i := range 64 {
		X = append(X, []float64{float64(i)})
		y = append(y, float64(i))
	}
	tree := model.NewDecisionTreeRegressor(model.WithMaxDepth(2), model.WithRandomState(7))
	require.NoError(t, tree.Fit(X, y))
	require.Equal(t, 2, tree.Depth())
	require.Equal(t, 4, tree.Leaves())
}

func TestDecisionTreeRegressor_MinImpurityDecrease(t *testing.T) {
	t.Parallel()

	// The perfect split removes 16000 of squared error over 40 samples,
	// a weighted decrease of 400.
	X, y := stepData()
	blocked := model.NewDecisionTreeRegressor(model.WithMinImpurityDecrease(500), model.WithRandomState(1))
	require.NoError(t, blocked.Fit(X, y))
	require.Equal(t, 1, blocked.Leaves())

	allowed := model.NewDecisionTreeRegressor(model.WithMinImpurityDecrease(300), model.WithRandomState(1))
	require.NoError(t, allowed.Fit(X, y))
	require.Equal(t, 2, allowed.Leaves())
}

func TestDecisionTreeRegressor_ConstantTargetIsSingleLeaf(t *testing.T) {
	t.Parallel()

	tree := model.NewDecisionTreeRegressor()
	require.NoError(t, tree.Fit([][]float64{{1}, {2}, {3}}, []float64{4, 4, 4}))
	require.Equal(t, 1, tree.Leaves())
	preds, err := tree.Predict([][]float64{{10}})
	require.NoError(t, err)
	require.Equal(t, []float64{4}, preds)
}

func TestDecisionTreeRegressor_DeterministicForSeed(t *testing.T) {
	t.Parallel()

	// Features 0 and 1 are identical, so the split choice depends on the
	// feature order drawn from the seed.
	var X [][]float64
	var y []float64
	for i := range 50 {
		v := float64(i % 10)
		X = append(X, []float64{v, v, float64(i)})
		y = append(y, v*3+float64(i%2))
	}
	fit := func() []byte {
		tree := model.NewDecisionTreeRegressor(model.WithMaxDepth(4), model.WithRandomState(42), model.WithWorkers(4))
		require.NoError(t, tree.Fit(X, y))
		b, err := tree.MarshalBinary()
		require.NoError(t, err)
		return b
	}
	first := fit()
	for range 5 {
		require.Equal(t, first, fit())
	}
}

func TestDecisionTreeRegressor_Errors(t *testing.T) {
	t.Parallel()

	tree := model.NewDecisionTreeRegressor()
	_, err := tree.Predict([][]float64{{1}})
	require.ErrorIs(t, err, model.ErrNotFitted)

	require.Error(t, tree.Fit(nil, nil))
	require.Error(t, tree.Fit([][]float64{{1}, {2}}, []float64{1}))
	require.Error(t, tree.Fit([][]float64{{1}, {2, 3}}, []float64{1, 2}))

	require.NoError(t, tree.Fit([][]float64{{1, 2}, {3, 4}}, []float64{1, 2}))
	_, err = tree.Predict([][]float64{{1}})
	require.Error(t, err)
}

func TestDecisionTreeRegressor_BinaryRoundTrip(t *testing.T) {
	t.Parallel()

	X, y := stepData()
	tree := model.NewDecisionTreeRegressor(model.WithMaxDepth(3), model.WithRandomState(3))
	require.NoError(t, tree.Fit(X, y))
	b, err := tree.MarshalBinary()
	require.NoError(t, err)

	var got model.DecisionTreeRegressor
	require.NoError(t, got.UnmarshalBinary(b))
	require.Equal(t, tree.MaxDepth, got.MaxDepth)
	require.Equal(t, tree.Leaves(), got.Leaves())

	want, err := tree.Predict(X)
	require.NoError(t, err)
	preds, err := got.Predict(X)
	require.NoError(t, err)
	require.Equal(t, want, preds)

	require.Error(t, got.UnmarshalBinary([]byte("garbage")))
}
