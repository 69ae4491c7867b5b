package model_selection

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/cytodash/pkg/errors"
)

// rows returns X with X[i] = (i, 10*i) and y[i] = i%2.
func rows(n int) (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, float64(i))
		X.Set(i, 1, float64(10*i))
		y.Set(i, 0, float64(i%2))
	}
	return X, y
}

func TestTrainTestSplit_Sizes(t *testing.T) {
	tests := []struct {
		n, testSize       float64
		wantTest, wantTrn int
	}{
		{n: 569, testSize: 0.2, wantTest: 114, wantTrn: 455},
		{n: 10, testSize: 0.2, wantTest: 2, wantTrn: 8},
		{n: 11, testSize: 0.2, wantTest: 3, wantTrn: 8},
		{n: 3, testSize: 0.5, wantTest: 2, wantTrn: 1},
	}
	for _, tt := range tests {
		X, y := rows(int(tt.n))
		split, err := TrainTestSplit(X, y, tt.testSize, 42)
		require.NoError(t, err)

		r, _ := split.XTest.Dims()
		assert.Equal(t, tt.wantTest, r)
		r, _ = split.XTrain.Dims()
		assert.Equal(t, tt.wantTrn, r)
		assert.Len(t, split.TestIndices, tt.wantTest)
		assert.Len(t, split.TrainIndices, tt.wantTrn)
	}
}

func TestTrainTestSplit_PartitionsRows(t *testing.T) {
	X, y := rows(50)
	split, err := TrainTestSplit(X, y, 0.2, 42)
	require.NoError(t, err)

	all := append(append([]int(nil), split.TrainIndices...), split.TestIndices...)
	sort.Ints(all)
	for i, idx := range all {
		require.Equal(t, i, idx)
	}

	// rows stay aligned with their labels
	for i, idx := range split.TestIndices {
		assert.Equal(t, float64(idx), split.XTest.At(i, 0))
		assert.Equal(t, float64(10*idx), split.XTest.At(i, 1))
		assert.Equal(t, float64(idx%2), split.YTest.At(i, 0))
	}
	for i, idx := range split.TrainIndices {
		assert.Equal(t, float64(idx), split.XTrain.At(i, 0))
		assert.Equal(t, float64(idx%2), split.YTrain.At(i, 0))
	}
}

func TestTrainTestSplit_Deterministic(t *testing.T) {
	X, y := rows(100)

	a, err := TrainTestSplit(X, y, 0.2, 42)
	require.NoError(t, err)
	b, err := TrainTestSplit(X, y, 0.2, 42)
	require.NoError(t, err)
	assert.Equal(t, a.TestIndices, b.TestIndices)
	assert.True(t, mat.Equal(a.XTrain, b.XTrain))

	c, err := TrainTestSplit(X, y, 0.2, 7)
	require.NoError(t, err)
	assert.NotEqual(t, a.TestIndices, c.TestIndices)
}

func TestTrainTestSplit_Errors(t *testing.T) {
	X, y := rows(10)

	t.Run("test size out of range", func(t *testing.T) {
		for _, ts := range []float64{0, 1, -0.1, 1.5} {
			_, err := TrainTestSplit(X, y, ts, 42)
			var valErr *errors.ValidationError
			assert.ErrorAs(t, err, &valErr, "test_size=%v", ts)
		}
	})

	t.Run("label rows mismatch", func(t *testing.T) {
		_, err := TrainTestSplit(X, mat.NewDense(3, 1, nil), 0.2, 42)
		var dimErr *errors.DimensionError
		assert.ErrorAs(t, err, &dimErr)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := TrainTestSplit(nil, nil, 0.2, 42)
		assert.ErrorIs(t, err, errors.ErrEmptyData)
	})

	t.Run("no training rows left", func(t *testing.T) {
		Xs, ys := rows(1)
		_, err := TrainTestSplit(Xs, ys, 0.5, 42)
		assert.Error(t, err)
	})
}
