package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
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

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	prev := log.GetProvider()
	t.Cleanup(func() { log.SetProvider(prev) })

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func trained(t *testing.T) (dataPath, modelDir string) {
	t.Helper()
	dataPath = datasettest.WriteRawCSV(t, 60, 1)
	modelDir = filepath.Join(t.TempDir(), "model")

	out, _, err := execute(t, "", "train", "--data", dataPath, "--model-dir", modelDir, "--log-level", "warn")
	require.NoError(t, err)
	require.Contains(t, out, "Accuracy of the model: 1.0000")
	require.Contains(t, out, "Classification error: 0.0000")
	return dataPath, modelDir
}

func TestTrainCommand(t *testing.T) {
	_, modelDir := trained(t)

	for _, name := range []string{artifact.ScalerFile, artifact.ClassifierFile} {
		_, err := os.Stat(filepath.Join(modelDir, name))
		assert.NoError(t, err, name)
	}
}

func TestTrainCommand_Output(t *testing.T) {
	dataPath := datasettest.WriteRawCSV(t, 45, 2)
	modelDir := filepath.Join(t.TempDir(), "model")

	out, logs, err := execute(t, "", "train",
		"--data", dataPath, "--model-dir", modelDir,
		"--test-size", "0.3", "--max-iter", "500", "--c", "0.5",
		"--log-format", "json",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Classification report:")
	assert.Contains(t, out, "Benign")
	assert.Contains(t, out, "Malignant")
	assert.Contains(t, out, "weighted avg")
	assert.Contains(t, logs, "training finished")

	pair, err := artifact.LoadPair(modelDir, dataset.FeatureKeys())
	require.NoError(t, err)
	require.NotNil(t, pair.Evaluation)
	assert.Equal(t, 0.3, pair.Evaluation.TestSize)
	assert.Equal(t, 0.5, pair.Classifier.GetParams()["C"])
}

func TestTrainCommand_InvalidFlags(t *testing.T) {
	dataPath := datasettest.WriteRawCSV(t, 30, 1)

	tests := []struct {
		name  string
		args  []string
		param string
	}{
		{"test size", []string{"--test-size", "1.5"}, "CYTODASH_TEST_SIZE"},
		{"C", []string{"--c", "0"}, "CYTODASH_C"},
		{"zero variance", []string{"--zero-variance", "ignore"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"train", "--data", dataPath, "--model-dir", t.TempDir()}, tt.args...)
			_, _, err := execute(t, "", args...)
			var valErr *errors.ValidationError
			require.ErrorAs(t, err, &valErr)
			if tt.param != "" {
				assert.Equal(t, tt.param, valErr.ParamName)
			}
		})
	}
}

func TestPredictCommand(t *testing.T) {
	dataPath, modelDir := trained(t)
	ds, err := dataset.Load(dataPath)
	require.NoError(t, err)

	sample, err := json.Marshal(map[string]any{"features": ds.Record(0)})
	require.NoError(t, err)
	input := filepath.Join(t.TempDir(), "sample.json")
	require.NoError(t, os.WriteFile(input, sample, 0o600))

	out, _, err := execute(t, "", "predict", "--data", dataPath, "--model-dir", modelDir, "--input", input)
	require.NoError(t, err)

	var report diagnosis.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, diagnosis.Malignant, report.Prediction.Diagnosis)
	assert.Len(t, report.Radar.Series, 3)

	// stdin, partial input
	out, _, err = execute(t, `{"features":{"radius_mean":1}}`,
		"predict", "--data", dataPath, "--model-dir", modelDir, "--input", "-")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 1.0, report.Input["radius_mean"])
}

func TestPredictCommand_Errors(t *testing.T) {
	dataPath, modelDir := trained(t)

	t.Run("input required", func(t *testing.T) {
		_, _, err := execute(t, "", "predict", "--data", dataPath, "--model-dir", modelDir)
		assert.ErrorContains(t, err, "input")
	})

	t.Run("unknown key", func(t *testing.T) {
		_, _, err := execute(t, `{"features":{"radius":1}}`,
			"predict", "--data", dataPath, "--model-dir", modelDir, "--input", "-")
		var valErr *errors.ValidationError
		require.ErrorAs(t, err, &valErr)
		assert.Equal(t, "radius", valErr.ParamName)
	})

	t.Run("empty", func(t *testing.T) {
		_, _, err := execute(t, `{}`, "predict", "--data", dataPath, "--model-dir", modelDir, "--input", "-")
		var valErr *errors.ValidationError
		assert.ErrorAs(t, err, &valErr)
	})

	t.Run("missing artifacts", func(t *testing.T) {
		_, _, err := execute(t, `{"features":{"radius_mean":1}}`,
			"predict", "--data", dataPath, "--model-dir", t.TempDir(), "--input", "-")
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestRootCommand_InvalidLogLevel(t *testing.T) {
	_, _, err := execute(t, "", "train", "--log-level", "verbose")
	assert.Error(t, err)
}
