package dataset

import (
	"github.com/samber/lo"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/cytodash/pkg/errors"
)

// LabeledDataset holds the feature matrix and binary labels of a cleaned
// table. Column j of X is Keys[j]. It is read-only once built.
type LabeledDataset struct {
	Keys []string
	X    *mat.Dense
	Y    []float64
}

func newLabeledDataset(keys []string, data, y []float64) *LabeledDataset {
	return &LabeledDataset{
		Keys: keys,
		X:    mat.NewDense(len(y), len(keys), data),
		Y:    y,
	}
}

// NewLabeledDataset validates shapes and wraps X and y. Labels must be 0 or 1.
func NewLabeledDataset(keys []string, X *mat.Dense, y []float64) (*LabeledDataset, error) {
	r, c := X.Dims()
	if c != len(keys) {
		return nil, errors.NewDimensionError("NewLabeledDataset", len(keys), c, 1)
	}
	if r != len(y) {
		return nil, errors.NewDimensionError("NewLabeledDataset", r, len(y), 0)
	}
	for i, v := range y {
		if v != LabelBenign && v != LabelMalignant {
			return nil, errors.NewDataShapeError("NewLabeledDataset", LabelColumn, i+1, "label must be 0 or 1")
		}
	}
	return &LabeledDataset{Keys: append([]string(nil), keys...), X: X, Y: y}, nil
}

// Len returns the number of records.
func (d *LabeledDataset) Len() int {
	return len(d.Y)
}

// Record returns row i as a Record.
func (d *LabeledDataset) Record(i int) Record {
	r := make(Record, len(d.Keys))
	for j, k := range d.Keys {
		r[k] = d.X.At(i, j)
	}
	return r
}

// Column returns a copy of the values of key.
func (d *LabeledDataset) Column(key string) ([]float64, error) {
	j := lo.IndexOf(d.Keys, key)
	if j < 0 {
		return nil, errors.NewDataShapeError("LabeledDataset.Column", key, 0, "column is missing")
	}
	return mat.Col(nil, j, d.X), nil
}

// Labels returns y as an n×1 matrix.
func (d *LabeledDataset) Labels() *mat.Dense {
	return mat.NewDense(len(d.Y), 1, append([]float64(nil), d.Y...))
}

// FeatureSummary describes one column: its range and mean.
type FeatureSummary struct {
	Key   string  `json:"key"`
	Label string  `json:"label"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
}

// Summary is the per-feature description of a dataset plus class counts.
type Summary struct {
	Features  []FeatureSummary `json:"features"`
	Benign    int              `json:"benign"`
	Malignant int              `json:"malignant"`
}

// Feature returns the summary of key.
func (s Summary) Feature(key string) (FeatureSummary, bool) {
	return lo.Find(s.Features, func(f FeatureSummary) bool { return f.Key == key })
}

// Summary computes min, max and mean per feature and the class counts.
func (d *LabeledDataset) Summary() Summary {
	s := Summary{Features: make([]FeatureSummary, len(d.Keys))}
	for j, k := range d.Keys {
		col := mat.Col(nil, j, d.X)
		fs := FeatureSummary{Key: k, Label: SliderLabel(k)}
		if len(col) > 0 {
			fs.Min = floats.Min(col)
			fs.Max = floats.Max(col)
			fs.Mean = stat.Mean(col, nil)
		}
		s.Features[j] = fs
	}
	s.Malignant = lo.CountBy(d.Y, func(v float64) bool { return v == LabelMalignant })
	s.Benign = len(d.Y) - s.Malignant
	return s
}
