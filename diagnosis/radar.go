package diagnosis

import (
	"github.com/samber/lo"

	"github.com/YuminosukeSato/cytodash/dataset"
	"github.com/YuminosukeSato/cytodash/pkg/errors"
)

// Series is one trace of the radar chart.
type Series struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// RadarData holds ten categories and one series per group
// (mean, standard error, worst), values aligned with Categories.
type RadarData struct {
	Categories []string `json:"categories"`
	Series     []Series `json:"series"`
}

// Radar groups a normalized record into the three radar traces.
func Radar(normalized dataset.Record) (RadarData, error) {
	measurements := dataset.Measurements()
	groups := dataset.Groups()

	data := RadarData{
		Categories: lo.Map(measurements, func(m dataset.Measurement, _ int) string { return m.Name }),
		Series:     make([]Series, len(groups)),
	}

	// FeatureKeys is group-major, so each chunk is one group in measurement order.
	for i, keys := range lo.Chunk(dataset.FeatureKeys(), len(measurements)) {
		values := make([]float64, len(keys))
		for j, k := range keys {
			v, ok := normalized[k]
			if !ok {
				return RadarData{}, errors.NewDataShapeError("diagnosis.Radar", k, 0, "feature is missing")
			}
			values[j] = v
		}
		data.Series[i] = Series{Name: groups[i].Name, Values: values}
	}
	return data, nil
}
