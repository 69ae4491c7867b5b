package server

import (
	"bytes"
	"net/http"
	"net/url"
	"strconv"

	"github.com/patrickmn/go-cache"

	"github.com/YuminosukeSato/cytodash/chart"
	"github.com/YuminosukeSato/cytodash/dataset"
	"github.com/YuminosukeSato/cytodash/diagnosis"
	"github.com/YuminosukeSato/cytodash/pkg/errors"
	"github.com/YuminosukeSato/cytodash/pkg/log"
)

const headerNameCache = "X-Cache"

type predictRequest struct {
	Features map[string]*float64 `json:"features" validate:"required,min=1,dive,keys,required,endkeys,required"`
}

type featureResponse struct {
	Key     string  `json:"key"`
	Label   string  `json:"label"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Default float64 `json:"default"`
	DataMin float64 `json:"dataMin"`
}

type healthResponse struct {
	Status string `json:"status"`
}

// record starts from the dataset means and overrides every feature key
// present in q. Other parameters are ignored.
func (s *Server) record(q url.Values) (dataset.Record, error) {
	features := make(map[string]float64, len(q))
	for key, values := range q {
		if !dataset.IsFeatureKey(key) || len(values) == 0 {
			continue
		}
		raw := values[len(values)-1]
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, errors.NewValidationError(key, "not a number", raw)
		}
		features[key] = v
	}
	return s.ref.Complete(features)
}

// canonicalQuery encodes every key of rec in sorted order, so equal inputs
// always produce the same string.
func (s *Server) canonicalQuery(rec dataset.Record) string {
	q := make(url.Values, len(rec))
	for _, key := range s.ref.Keys() {
		q.Set(key, strconv.FormatFloat(rec[key], 'g', -1, 64))
	}
	return q.Encode()
}

func (s *Server) getDashboard(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	rec, err := s.record(r.URL.Query())
	if err != nil {
		return err
	}

	report, err := s.model.Report(rec, s.ref)
	if err != nil {
		return err
	}
	s.metrics.ObservePrediction(report.Prediction.Diagnosis)

	var buf bytes.Buffer
	if err := s.page.Execute(&buf, s.dashboardView(rec, report)); err != nil {
		return errors.Wrap(err, "render dashboard")
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		logger(ctx).Warn("write dashboard", "error", err.Error())
	}
	return nil
}

func (s *Server) getChart(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	rec, err := s.record(r.URL.Query())
	if err != nil {
		return err
	}

	key := s.canonicalQuery(rec)
	svg, hit := s.cachedChart(key)
	if !hit {
		normalized, err := s.ref.Normalize(rec)
		if err != nil {
			return err
		}
		radar, err := diagnosis.Radar(normalized)
		if err != nil {
			return err
		}
		// a panic inside the plotter becomes a 500 and nothing is cached
		err = errors.SafeExecute("chart.RenderRadar", func() error {
			var renderErr error
			svg, renderErr = s.render(radar, chart.DefaultOptions())
			return renderErr
		})
		if err != nil {
			return err
		}
		s.charts.Set(key, svg, cache.DefaultExpiration)
	}

	w.Header().Set("Content-Type", "image/svg+xml")
	if hit {
		w.Header().Set(headerNameCache, "HIT")
	} else {
		w.Header().Set(headerNameCache, "MISS")
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(svg); err != nil {
		logger(ctx).Warn("write chart", "error", err.Error())
	}
	return nil
}

func (s *Server) cachedChart(key string) ([]byte, bool) {
	v, ok := s.charts.Get(key)
	if !ok {
		return nil, false
	}
	svg, ok := v.([]byte)
	return svg, ok
}

func (s *Server) postPredict(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	var body predictRequest
	if err := read(r, &body); err != nil {
		return err
	}

	features := make(map[string]float64, len(body.Features))
	for key, v := range body.Features {
		features[key] = *v
	}
	rec, err := s.ref.Complete(features)
	if err != nil {
		return err
	}

	report, err := s.model.Report(rec, s.ref)
	if err != nil {
		return err
	}
	s.metrics.ObservePrediction(report.Prediction.Diagnosis)

	logger(ctx).Info("prediction served",
		log.ClassKey, report.Prediction.Label,
		log.ProbabilityKey, report.Prediction.ProbMalignant,
	)

	replyJSON(ctx, w, http.StatusOK, report)
	return nil
}

func (s *Server) getFeatures(w http.ResponseWriter, r *http.Request) error {
	summary := s.ref.Summary()
	features := make([]featureResponse, 0, len(summary.Features))
	for _, f := range summary.Features {
		features = append(features, featureResponse{
			Key:     f.Key,
			Label:   dataset.SliderLabel(f.Key),
			Min:     0,
			Max:     f.Max,
			Default: f.Mean,
			DataMin: f.Min,
		})
	}

	replyJSON(r.Context(), w, http.StatusOK, features)
	return nil
}

func (s *Server) getHealthz(w http.ResponseWriter, r *http.Request) error {
	replyJSON(r.Context(), w, http.StatusOK, healthResponse{Status: "ok"})
	return nil
}
