// Package model_selection provides dataset splitting for model evaluation.
package model_selection

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/cytodash/pkg/errors"
)

// Split holds the result of TrainTestSplit. Rows keep the shuffled order;
// TrainIndices and TestIndices are row indices into the original inputs.
type Split struct {
	XTrain, XTest *mat.Dense
	YTrain, YTest *mat.Dense

	TrainIndices []int
	TestIndices  []int
}

// TrainTestSplit shuffles rows with a seeded permutation and holds out
// ceil(n*testSize) of them for testing. The same seed always yields the same split.
func TrainTestSplit(X, y mat.Matrix, testSize float64, randomState int64) (*Split, error) {
	if X == nil || y == nil {
		return nil, errors.NewModelError("TrainTestSplit", "empty data", errors.ErrEmptyData)
	}
	nSamples, _ := X.Dims()
	yRows, _ := y.Dims()
	if nSamples == 0 {
		return nil, errors.NewModelError("TrainTestSplit", "empty data", errors.ErrEmptyData)
	}
	if yRows != nSamples {
		return nil, errors.NewDimensionError("TrainTestSplit", nSamples, yRows, 0)
	}
	if !(testSize > 0 && testSize < 1) {
		return nil, errors.NewValidationError("test_size", "must be in the open interval (0, 1)", testSize)
	}

	nTest := int(math.Ceil(float64(nSamples) * testSize))
	nTrain := nSamples - nTest
	if nTrain < 1 {
		return nil, errors.NewValidationError("test_size",
			"leaves no training samples for the given number of rows", testSize)
	}

	seed := uint64(randomState)
	r := rand.New(rand.NewPCG(seed, seed))
	indices := r.Perm(nSamples)

	split := &Split{
		TestIndices:  append([]int(nil), indices[:nTest]...),
		TrainIndices: append([]int(nil), indices[nTest:]...),
	}
	split.XTest, split.YTest = extractSubset(X, y, split.TestIndices)
	split.XTrain, split.YTrain = extractSubset(X, y, split.TrainIndices)
	return split, nil
}

// extractSubset copies the given rows of X and y, in the order given.
func extractSubset(X, y mat.Matrix, indices []int) (*mat.Dense, *mat.Dense) {
	_, xCols := X.Dims()
	_, yCols := y.Dims()

	xSubset := mat.NewDense(len(indices), xCols, nil)
	ySubset := mat.NewDense(len(indices), yCols, nil)
	for i, idx := range indices {
		for j := 0; j < xCols; j++ {
			xSubset.Set(i, j, X.At(idx, j))
		}
		for j := 0; j < yCols; j++ {
			ySubset.Set(i, j, y.At(idx, j))
		}
	}
	return xSubset, ySubset
}
