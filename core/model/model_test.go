package model

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/cytodash/pkg/errors"
)

func TestStateManager(t *testing.T) {
	sm := NewStateManager()

	err := sm.RequireFitted("StandardScaler", "Transform")
	var notFitted *errors.NotFittedError
	require.True(t, errors.As(err, &notFitted))
	assert.Equal(t, "Transform", notFitted.Method)

	sm.SetDimensions(30, 569)
	sm.SetFitted()
	assert.NoError(t, sm.RequireFitted("StandardScaler", "Transform"))
	assert.NoError(t, sm.RequireFeatures("Transform", 30))

	err = sm.RequireFeatures("Transform", 29)
	var dimErr *errors.DimensionError
	require.True(t, errors.As(err, &dimErr))
	assert.Equal(t, 30, dimErr.Expected)

	nFeatures, nSamples := sm.GetDimensions()
	assert.Equal(t, 30, nFeatures)
	assert.Equal(t, 569, nSamples)

	sm.Reset()
	assert.False(t, sm.IsFitted())
	nFeatures, _ = sm.GetDimensions()
	assert.Zero(t, nFeatures)
}

func TestSaveLoadJSON_FloatsRoundTripExactly(t *testing.T) {
	type doc struct {
		Values []float64 `json:"values"`
	}
	in := doc{Values: []float64{
		0.1, 1.0 / 3.0, math.Pi, 14.127291739894552, 3.5240488051408e-05,
		-0.0009, 6.4e-10, 2501, 1e21, math.Nextafter(1, 2),
	}}

	path := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, SaveJSON(in, path))

	var out doc
	require.NoError(t, LoadJSON(&out, path))
	require.Len(t, out.Values, len(in.Values))
	for i := range in.Values {
		assert.Equal(t, math.Float64bits(in.Values[i]), math.Float64bits(out.Values[i]), "value %d", i)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must not be left behind")
}

func TestLoadJSONFromReader_RejectsUnknownFields(t *testing.T) {
	var out struct {
		Mean []float64 `json:"mean"`
	}
	err := LoadJSONFromReader(&out, bytes.NewBufferString(`{"mean":[1],"sigma":[2]}`))
	assert.Error(t, err)
}

func TestLoadJSON_MissingFile(t *testing.T) {
	var out map[string]interface{}
	assert.Error(t, LoadJSON(&out, filepath.Join(t.TempDir(), "missing.json")))
}

func TestModelWeights(t *testing.T) {
	w := &ModelWeights{
		ModelType:       "LogisticRegression",
		Version:         "1",
		Coefficients:    []float64{0.5, -0.25},
		Intercept:       0.1,
		Classes:         []int{0, 1},
		Features:        []string{"radius_mean", "texture_mean"},
		Hyperparameters: map[string]interface{}{"C": 1.0},
		IsFitted:        true,
	}
	require.NoError(t, w.Validate())

	clone := w.Clone()
	clone.Coefficients[0] = 9
	clone.Hyperparameters["C"] = 2.0
	assert.Equal(t, 0.5, w.Coefficients[0])
	assert.Equal(t, 1.0, w.Hyperparameters["C"])

	bad := w.Clone()
	bad.Features = bad.Features[:1]
	assert.Error(t, bad.Validate())

	bad = w.Clone()
	bad.Classes = []int{0, 1, 2}
	assert.Error(t, bad.Validate())

	assert.Error(t, (&ModelWeights{Version: "1"}).Validate())
}
