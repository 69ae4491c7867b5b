package training

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/cytodash/artifact"
	"github.com/YuminosukeSato/cytodash/dataset"
	"github.com/YuminosukeSato/cytodash/dataset/datasettest"
	"github.com/YuminosukeSato/cytodash/diagnosis"
	"github.com/YuminosukeSato/cytodash/pkg/errors"
	"github.com/YuminosukeSato/cytodash/pkg/log"
)

func options(t *testing.T, n int) Options {
	t.Helper()
	opts := DefaultOptions()
	opts.DataPath = datasettest.WriteRawCSV(t, n, 1)
	opts.ModelDir = filepath.Join(t.TempDir(), "model")
	return opts
}

func TestRun(t *testing.T) {
	errors.SetWarningHandler(func(error) {})
	defer errors.SetWarningHandler(nil)

	opts := options(t, 60)
	res, err := Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, 60, res.NSamples)
	assert.Equal(t, 12, res.NTest)
	assert.Equal(t, 48, res.NTrain)
	assert.Equal(t, 1.0, res.Accuracy)
	assert.Equal(t, 0.0, res.ErrorRate)
	assert.Equal(t, 1.0, res.AUC)
	assert.Less(t, res.LogLoss, 0.5)
	require.NotNil(t, res.Report)
	assert.Equal(t, "Benign", res.Report.Classes[0].Name)
	assert.Contains(t, res.Report.String(), "Malignant")

	pair, err := artifact.LoadPair(opts.ModelDir, dataset.FeatureKeys())
	require.NoError(t, err)
	require.NotNil(t, pair.Evaluation)
	assert.Equal(t, res.Accuracy, pair.Evaluation.Accuracy)
	assert.Equal(t, 0.2, pair.Evaluation.TestSize)
	assert.Equal(t, 60, pair.Scaler.NSamples())

	// the persisted pair drives the serving transform
	ds, err := dataset.Load(opts.DataPath)
	require.NoError(t, err)
	m, err := diagnosis.NewModelFromPair(pair)
	require.NoError(t, err)
	pred, err := m.Predict(ds.Record(0))
	require.NoError(t, err)
	assert.Equal(t, diagnosis.Malignant, pred.Diagnosis)
	pred, err = m.Predict(ds.Record(1))
	require.NoError(t, err)
	assert.Equal(t, diagnosis.Benign, pred.Diagnosis)
}

func TestRun_Deterministic(t *testing.T) {
	errors.SetWarningHandler(func(error) {})
	defer errors.SetWarningHandler(nil)

	opts := options(t, 45)
	first, err := Run(context.Background(), opts)
	require.NoError(t, err)
	a, err := artifact.LoadClassifier(opts.ModelDir)
	require.NoError(t, err)

	opts.ModelDir = filepath.Join(t.TempDir(), "again")
	second, err := Run(context.Background(), opts)
	require.NoError(t, err)
	b, err := artifact.LoadClassifier(opts.ModelDir)
	require.NoError(t, err)

	assert.Equal(t, first.LogLoss, second.LogLoss)
	assert.Equal(t, a.Weights.Coefficients, b.Weights.Coefficients)
	assert.Equal(t, a.Weights.Intercept, b.Weights.Intercept)
}

func TestRun_Errors(t *testing.T) {
	t.Run("missing dataset", func(t *testing.T) {
		opts := DefaultOptions()
		opts.DataPath = filepath.Join(t.TempDir(), "nope.csv")
		_, err := Run(context.Background(), opts)
		assert.Error(t, err)
	})

	t.Run("bad test size", func(t *testing.T) {
		opts := options(t, 30)
		opts.TestSize = 1.5
		_, err := Run(context.Background(), opts)
		var valErr *errors.ValidationError
		assert.ErrorAs(t, err, &valErr)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Run(ctx, options(t, 30))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRun_LogsSummary(t *testing.T) {
	errors.SetWarningHandler(func(error) {})
	defer errors.SetWarningHandler(nil)

	provider, _ := log.NewTestLoggerProvider(log.LevelInfo)
	prev := log.GetProvider()
	log.SetProvider(provider)
	defer log.SetProvider(prev)
	errors.SetZerologWarnFunc(nil)

	_, err := Run(context.Background(), options(t, 30))
	require.NoError(t, err)

	logs := provider.TestLogger()
	assert.True(t, logs.ContainsMessage("training finished"))
	assert.True(t, logs.ContainsField(log.AccuracyKey, 1.0))
}
