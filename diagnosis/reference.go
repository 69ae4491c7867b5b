// Package diagnosis turns a raw feature record into what the dashboard shows:
// a prediction with class probabilities and min-max normalized radar data.
package diagnosis

import (
	"fmt"
	"math"
	"slices"

	"github.com/YuminosukeSato/cytodash/dataset"
	"github.com/YuminosukeSato/cytodash/pkg/errors"
	"github.com/YuminosukeSato/cytodash/preprocessing"
)

// Reference holds the statistics derived once per serving session from the
// reference dataset: the display FeatureRange and the slider bounds. It is
// read-only after NewReference and safe for concurrent use.
type Reference struct {
	keys    []string
	summary dataset.Summary
	bounds  map[string]dataset.FeatureSummary
	ranges  *preprocessing.MinMaxScaler
}

// NewReference fits the display range on ds.
func NewReference(ds *dataset.LabeledDataset) (*Reference, error) {
	if ds == nil || ds.Len() == 0 {
		return nil, errors.NewModelError("diagnosis.NewReference", "empty data", errors.ErrEmptyData)
	}

	ranges := preprocessing.NewMinMaxScalerDefault()
	if err := ranges.FitDataset(ds); err != nil {
		return nil, err
	}

	summary := ds.Summary()
	bounds := make(map[string]dataset.FeatureSummary, len(summary.Features))
	for _, f := range summary.Features {
		bounds[f.Key] = f
	}

	return &Reference{
		keys:    slices.Clone(ds.Keys),
		summary: summary,
		bounds:  bounds,
		ranges:  ranges,
	}, nil
}

// Keys returns the feature keys in dataset column order.
func (r *Reference) Keys() []string {
	return slices.Clone(r.keys)
}

// Summary returns the per-feature min, max and mean plus class counts.
func (r *Reference) Summary() dataset.Summary {
	return r.summary
}

// Bounds returns the summary of one key.
func (r *Reference) Bounds(key string) (dataset.FeatureSummary, bool) {
	b, ok := r.bounds[key]
	return b, ok
}

// Defaults returns the slider starting values: the dataset mean of every key.
func (r *Reference) Defaults() dataset.Record {
	rec := make(dataset.Record, len(r.keys))
	for _, k := range r.keys {
		rec[k] = r.bounds[k].Mean
	}
	return rec
}

// Normalize maps every value to (x - min) / (max - min) using the reference
// range. Values are not clipped: inputs outside [min, max] land outside [0, 1].
func (r *Reference) Normalize(rec dataset.Record) (dataset.Record, error) {
	return r.ranges.TransformRecord(rec)
}

// Normalize is the display normalization of rec against ref.
func Normalize(rec dataset.Record, ref *Reference) (dataset.Record, error) {
	return ref.Normalize(rec)
}

// ValidateInput enforces the serving-time constraint 0 <= x <= max for every
// key, where max is the reference dataset maximum.
func ValidateInput(rec dataset.Record, ref *Reference) error {
	x, err := rec.Vector(ref.keys)
	if err != nil {
		return err
	}
	for j, v := range x {
		key := ref.keys[j]
		hi := ref.bounds[key].Max
		if math.IsNaN(v) || v < 0 || v > hi {
			return errors.NewValidationError(key, fmt.Sprintf("must be within [0, %g]", hi), v)
		}
	}
	return nil
}

// Complete starts from Defaults, overrides the keys present in features and
// validates the result. Keys unknown to the reference are rejected.
func (r *Reference) Complete(features map[string]float64) (dataset.Record, error) {
	rec := r.Defaults()
	for k, v := range features {
		if _, ok := r.bounds[k]; !ok {
			return nil, errors.NewValidationError(k, "unknown feature key", v)
		}
		rec[k] = v
	}
	if err := ValidateInput(rec, r); err != nil {
		return nil, err
	}
	return rec, nil
}
