package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/cytodash/pkg/errors"
	"github.com/YuminosukeSato/cytodash/preprocessing"
)

func TestLoadFromMap_Defaults(t *testing.T) {
	cfg, err := LoadFromMap(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "data/data.csv", cfg.Data.Path)
	assert.Equal(t, "model", cfg.Data.ModelDir)
	assert.Equal(t, ":8501", cfg.Server.Addr)
	assert.Equal(t, ":9090", cfg.Server.MetricsAddr)
	assert.True(t, cfg.Server.MetricsEnabled())
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Server.ChartCacheTTL)
	assert.Equal(t, 0.2, cfg.Training.TestSize)
	assert.Equal(t, int64(42), cfg.Training.RandomState)
	assert.Equal(t, 1000, cfg.Training.MaxIter)
	assert.Equal(t, 1.0, cfg.Training.C)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	policy, err := cfg.Training.Policy()
	require.NoError(t, err)
	assert.Equal(t, preprocessing.ZeroVarianceReject, policy)
}

func TestLoadFromMap_Overrides(t *testing.T) {
	cfg, err := LoadFromMap(map[string]string{
		"CYTODASH_DATA_PATH":       "/srv/data.csv",
		"CYTODASH_METRICS_ADDR":    "off",
		"CYTODASH_CHART_CACHE_TTL": "30s",
		"CYTODASH_ZERO_VARIANCE":   "clamp",
		"CYTODASH_TEST_SIZE":       "0.25",
		"LOG_FORMAT":               "console",
		"LOG_LEVEL":                "debug",
	})
	require.NoError(t, err)

	assert.Equal(t, "/srv/data.csv", cfg.Data.Path)
	assert.Equal(t, 30*time.Second, cfg.Server.ChartCacheTTL)
	assert.False(t, cfg.Server.MetricsEnabled())
	assert.Equal(t, 0.25, cfg.Training.TestSize)
	assert.Equal(t, "console", cfg.Log.Format)

	policy, err := cfg.Training.Policy()
	require.NoError(t, err)
	assert.Equal(t, preprocessing.ZeroVarianceClamp, policy)
}

func TestLoadFromMap_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"test size", map[string]string{"CYTODASH_TEST_SIZE": "1"}},
		{"max iter", map[string]string{"CYTODASH_MAX_ITER": "0"}},
		{"C", map[string]string{"CYTODASH_C": "-1"}},
		{"zero variance", map[string]string{"CYTODASH_ZERO_VARIANCE": "ignore"}},
		{"log format", map[string]string{"LOG_FORMAT": "xml"}},
		{"log level", map[string]string{"LOG_LEVEL": "loud"}},
		{"duration", map[string]string{"CYTODASH_SHUTDOWN_TIMEOUT": "soon"}},
		{"number", map[string]string{"CYTODASH_RANDOM_STATE": "forty-two"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromMap(tt.env)
			assert.Error(t, err)
		})
	}

	_, err := LoadFromMap(map[string]string{"CYTODASH_TEST_SIZE": "0"})
	var valErr *errors.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "CYTODASH_TEST_SIZE", valErr.ParamName)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("CYTODASH_MODEL_DIR=/tmp/cytodash-model-test\n"), 0o644))
	// restored on cleanup
	t.Setenv("CYTODASH_MODEL_DIR", "")
	require.NoError(t, os.Unsetenv("CYTODASH_MODEL_DIR"))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/cytodash-model-test", cfg.Data.ModelDir)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}
