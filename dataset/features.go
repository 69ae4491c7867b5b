// Package dataset loads the Wisconsin diagnostic cytology table, cleans it
// and exposes it as a LabeledDataset keyed by the 30 canonical feature keys.
package dataset

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// NumFeatures is the number of canonical feature keys.
const NumFeatures = 30

// Measurement is one of the ten base cell-nucleus measurements.
type Measurement struct {
	// Key is the column prefix, e.g. "concave points".
	Key string
	// Name is the radar chart category, e.g. "Concave Points".
	Name string
	// Label is the slider label prefix, e.g. "Concave points".
	Label string
}

// Group is one of the three aggregation variants of a measurement.
type Group struct {
	// Suffix is the column suffix: "mean", "se" or "worst".
	Suffix string
	// Name is the radar chart series name.
	Name string
}

var measurements = []Measurement{
	{Key: "radius", Name: "Radius", Label: "Radius"},
	{Key: "texture", Name: "Texture", Label: "Texture"},
	{Key: "perimeter", Name: "Perimeter", Label: "Perimeter"},
	{Key: "area", Name: "Area", Label: "Area"},
	{Key: "smoothness", Name: "Smoothness", Label: "Smoothness"},
	{Key: "compactness", Name: "Compactness", Label: "Compactness"},
	{Key: "concavity", Name: "Concavity", Label: "Concavity"},
	{Key: "concave points", Name: "Concave Points", Label: "Concave points"},
	{Key: "symmetry", Name: "Symmetry", Label: "Symmetry"},
	{Key: "fractal_dimension", Name: "Fractal Dimension", Label: "Fractal dimension"},
}

var groups = []Group{
	{Suffix: "mean", Name: "Mean Value"},
	{Suffix: "se", Name: "Standard Error"},
	{Suffix: "worst", Name: "Worst Value"},
}

// featureKeys follows the column order of the source table: all means, then
// all standard errors, then all worst values.
var featureKeys = lo.FlatMap(groups, func(g Group, _ int) []string {
	return lo.Map(measurements, func(m Measurement, _ int) string {
		return FeatureKey(m, g)
	})
})

var featureIndex = func() map[string]int {
	idx := make(map[string]int, len(featureKeys))
	for i, k := range featureKeys {
		idx[k] = i
	}
	return idx
}()

// FeatureKeys returns a copy of the 30 canonical keys in training order.
// The order is the contract between the scaler, the classifier and every
// serving-time input vector.
func FeatureKeys() []string {
	return append([]string(nil), featureKeys...)
}

// Measurements returns the ten base measurements in chart order.
func Measurements() []Measurement {
	return append([]Measurement(nil), measurements...)
}

// Groups returns the mean, standard error and worst groups in that order.
func Groups() []Group {
	return append([]Group(nil), groups...)
}

// FeatureKey joins a measurement and a group, e.g. "radius_mean".
func FeatureKey(m Measurement, g Group) string {
	return m.Key + "_" + g.Suffix
}

// IsFeatureKey reports whether key is one of the canonical keys.
func IsFeatureKey(key string) bool {
	_, ok := featureIndex[key]
	return ok
}

// FeatureIndex returns the position of key in FeatureKeys, or -1.
func FeatureIndex(key string) int {
	if i, ok := featureIndex[key]; ok {
		return i
	}
	return -1
}

// SplitKey returns the measurement and group a canonical key is made of.
func SplitKey(key string) (Measurement, Group, bool) {
	i := FeatureIndex(key)
	if i < 0 {
		return Measurement{}, Group{}, false
	}
	return measurements[i%len(measurements)], groups[i/len(measurements)], true
}

// SliderLabel returns the human label of a key, e.g. "Concave points (mean)".
func SliderLabel(key string) string {
	m, g, ok := SplitKey(key)
	if !ok {
		return strings.ReplaceAll(key, "_", " ")
	}
	return fmt.Sprintf("%s (%s)", m.Label, g.Suffix)
}
