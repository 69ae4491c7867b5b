package dataset

import (
	"sort"

	"github.com/samber/lo"

	"github.com/YuminosukeSato/cytodash/pkg/errors"
)

// Record maps feature keys to raw measurement values. Key identity matters,
// map order does not.
type Record map[string]float64

// Vector returns the values of r in the order of keys. r must contain
// exactly the given keys; a missing or unexpected key is a DataShapeError
// since a wrong-shaped vector would silently mispredict.
func (r Record) Vector(keys []string) ([]float64, error) {
	out := make([]float64, len(keys))
	for i, k := range keys {
		v, ok := r[k]
		if !ok {
			return nil, errors.NewDataShapeError("Record.Vector", k, 0, "feature is missing")
		}
		out[i] = v
	}
	if len(r) != len(keys) {
		known := lo.SliceToMap(keys, func(k string) (string, struct{}) { return k, struct{}{} })
		extra := lo.Filter(lo.Keys(r), func(k string, _ int) bool {
			_, ok := known[k]
			return !ok
		})
		sort.Strings(extra)
		return nil, errors.NewDataShapeError("Record.Vector", extra[0], 0, "unexpected feature")
	}
	return out, nil
}

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// RecordFromVector zips keys and values into a Record.
func RecordFromVector(keys []string, values []float64) (Record, error) {
	if len(keys) != len(values) {
		return nil, errors.NewDimensionError("RecordFromVector", len(keys), len(values), 1)
	}
	r := make(Record, len(keys))
	for i, k := range keys {
		r[k] = values[i]
	}
	return r, nil
}
