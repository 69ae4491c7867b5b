package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/cytodash/artifact"
	"github.com/YuminosukeSato/cytodash/chart"
	"github.com/YuminosukeSato/cytodash/dataset"
	"github.com/YuminosukeSato/cytodash/dataset/datasettest"
	"github.com/YuminosukeSato/cytodash/diagnosis"
	"github.com/YuminosukeSato/cytodash/internal/config"
	"github.com/YuminosukeSato/cytodash/pkg/errors"
	"github.com/YuminosukeSato/cytodash/pkg/log"
	"github.com/YuminosukeSato/cytodash/training"
)

type fixture struct {
	srv *Server
	ds  *dataset.LabeledDataset
	h   http.Handler
}

func newFixture(t *testing.T, cfg config.Server) fixture {
	t.Helper()
	errors.SetWarningHandler(func(error) {})
	t.Cleanup(func() { errors.SetWarningHandler(nil) })

	opts := training.DefaultOptions()
	opts.DataPath = datasettest.WriteRawCSV(t, 60, 1)
	opts.ModelDir = filepath.Join(t.TempDir(), "model")
	_, err := training.Run(context.Background(), opts)
	require.NoError(t, err)

	pair, err := artifact.LoadPair(opts.ModelDir, dataset.FeatureKeys())
	require.NoError(t, err)
	m, err := diagnosis.NewModelFromPair(pair)
	require.NoError(t, err)
	ds, err := dataset.Load(opts.DataPath)
	require.NoError(t, err)
	ref, err := diagnosis.NewReference(ds)
	require.NoError(t, err)

	srv, err := New(m, ref, cfg)
	require.NoError(t, err)
	return fixture{srv: srv, ds: ds, h: srv.Handler()}
}

func testConfig() config.Server {
	return config.Server{
		Addr:            "127.0.0.1:0",
		MetricsAddr:     config.MetricsDisabled,
		ShutdownTimeout: time.Second,
		ChartCacheTTL:   time.Minute,
	}
}

func (f fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func query(rec dataset.Record) string {
	q := url.Values{}
	for k, v := range rec {
		q.Set(k, strconv.FormatFloat(v, 'g', -1, 64))
	}
	return q.Encode()
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, testConfig())

	rec := f.do(t, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(headerNameTraceID))
}

func TestTraceID_Propagated(t *testing.T) {
	f := newFixture(t, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	req.Header.Set(headerNameTraceID, "trace-123")
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)

	assert.Equal(t, "trace-123", rec.Header().Get(headerNameTraceID))
}

func TestDashboard(t *testing.T) {
	f := newFixture(t, testConfig())

	rec := f.do(t, http.MethodGet, "/", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "<title>Breast Cancer Predictor</title>")
	assert.Contains(t, body, "Cell Nuclei Measurements")
	assert.Contains(t, body, "Radius (mean)")
	assert.Contains(t, body, "Fractal dimension (worst)")
	assert.Equal(t, dataset.NumFeatures, strings.Count(body, `type="range"`))
	assert.Contains(t, body, `src="/chart.svg?`)
	assert.Contains(t, body, "Probability of being benign: ")
	assert.Contains(t, body, "Probability of being malignant: ")
	assert.Contains(t, body, "should not be used as a substitute")
}

func TestDashboard_MalignantSample(t *testing.T) {
	f := newFixture(t, testConfig())

	rec := f.do(t, http.MethodGet, "/?"+query(f.ds.Record(0)), "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `class="diagnosis malignant">Malignant<`)
}

func TestDashboard_InvalidInput(t *testing.T) {
	f := newFixture(t, testConfig())

	tests := []struct {
		name  string
		query string
	}{
		{"negative", "radius_mean=-1"},
		{"not a number", "radius_mean=abc"},
		{"above max", "area_worst=1e12"},
		{"nan", "texture_se=NaN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, "/?"+tt.query, "")

			require.Equal(t, http.StatusBadRequest, rec.Code)
			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, codeValidation, resp.Code)
			assert.Equal(t, rec.Header().Get(headerNameTraceID), resp.SupportID)
		})
	}
}

func TestChart_Cached(t *testing.T) {
	f := newFixture(t, testConfig())
	defaults := f.srv.ref.Defaults()
	r := strconv.FormatFloat(defaults["radius_mean"], 'g', -1, 64)
	tx := strconv.FormatFloat(defaults["texture_mean"], 'g', -1, 64)

	first := f.do(t, http.MethodGet, "/chart.svg?radius_mean="+r+"&texture_mean="+tx, "")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "image/svg+xml", first.Header().Get("Content-Type"))
	assert.Equal(t, "MISS", first.Header().Get(headerNameCache))
	assert.Contains(t, first.Body.String(), "<svg")

	// same input in another order and with defaults spelled out
	second := f.do(t, http.MethodGet, "/chart.svg?texture_mean="+tx+"&radius_mean="+r, "")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "HIT", second.Header().Get(headerNameCache))
	assert.Equal(t, first.Body.Bytes(), second.Body.Bytes())

	third := f.do(t, http.MethodGet, "/chart.svg", "")
	assert.Equal(t, "HIT", third.Header().Get(headerNameCache))

	other := f.do(t, http.MethodGet, "/chart.svg?radius_mean=0", "")
	assert.Equal(t, "MISS", other.Header().Get(headerNameCache))
}

func TestChart_InvalidInput(t *testing.T) {
	f := newFixture(t, testConfig())

	rec := f.do(t, http.MethodGet, "/chart.svg?radius_mean=-3", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, f.srv.charts.ItemCount())
}

func TestPredict(t *testing.T) {
	f := newFixture(t, testConfig())

	features := make(map[string]float64)
	for k, v := range f.ds.Record(0) {
		features[k] = v
	}
	body, err := json.Marshal(map[string]any{"features": features})
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/api/v1/predict", string(body))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report diagnosis.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, diagnosis.Malignant, report.Prediction.Diagnosis)
	assert.Equal(t, 1, report.Prediction.Label)
	assert.InDelta(t, 1.0, report.Prediction.ProbBenign+report.Prediction.ProbMalignant, 1e-9)
	assert.InDelta(t, report.Prediction.ProbMalignant, report.Rounded.ProbMalignant, 0.005)
	assert.Len(t, report.Normalized, dataset.NumFeatures)
	assert.Len(t, report.Radar.Categories, 10)
	require.Len(t, report.Radar.Series, 3)
	assert.Equal(t, "Mean Value", report.Radar.Series[0].Name)
}

func TestPredict_PartialInputUsesMeans(t *testing.T) {
	f := newFixture(t, testConfig())

	rec := f.do(t, http.MethodPost, "/api/v1/predict", `{"features":{"radius_mean":0}}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report diagnosis.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 0.0, report.Input["radius_mean"])
	assert.Equal(t, f.srv.ref.Defaults()["area_worst"], report.Input["area_worst"])
}

func TestPredict_Errors(t *testing.T) {
	f := newFixture(t, testConfig())

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"features":`},
		{"missing features", `{}`},
		{"empty features", `{"features":{}}`},
		{"null value", `{"features":{"radius_mean":null}}`},
		{"unknown key", `{"features":{"radius":1}}`},
		{"negative value", `{"features":{"radius_mean":-1}}`},
		{"above max", `{"features":{"area_mean":1e9}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/v1/predict", tt.body)

			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, codeValidation, resp.Code)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestFeatures(t *testing.T) {
	f := newFixture(t, testConfig())

	rec := f.do(t, http.MethodGet, "/api/v1/features", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var features []featureResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &features))
	require.Len(t, features, dataset.NumFeatures)
	assert.Equal(t, "radius_mean", features[0].Key)
	assert.Equal(t, "Radius (mean)", features[0].Label)
	for _, ft := range features {
		assert.Equal(t, 0.0, ft.Min, ft.Key)
		assert.GreaterOrEqual(t, ft.Default, ft.DataMin, ft.Key)
		assert.LessOrEqual(t, ft.Default, ft.Max, ft.Key)
	}
}

func TestNotFound(t *testing.T) {
	f := newFixture(t, testConfig())

	rec := f.do(t, http.MethodGet, "/nope", "")

	require.Equal(t, http.StatusNotFound, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, codeNotFound, resp.Code)
}

func TestMetrics(t *testing.T) {
	f := newFixture(t, testConfig())

	f.do(t, http.MethodGet, "/?"+query(f.ds.Record(0)), "")
	f.do(t, http.MethodGet, "/healthz", "")

	rec := httptest.NewRecorder()
	f.srv.Metrics().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `cytodash_predictions_total{diagnosis="Malignant"} 1`)
	assert.Contains(t, body, `cytodash_request_duration_seconds_count{method="GET",route="/healthz",status="200"} 1`)
	assert.Contains(t, body, `cytodash_request_duration_seconds_count{method="GET",route="/",status="200"} 1`)
}

func TestRecovery(t *testing.T) {
	h := TraceID(Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestReplyError_Internal(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx := withTraceID(context.Background(), "abc")

	replyError(ctx, rec, errors.NewNotFittedError("LogisticRegression", "Predict"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, errorResponse{Code: codeInternal, Message: "internal server error", SupportID: "abc"}, resp)
}

func TestReplyError_Status(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", errors.NewValidationError("radius_mean", "must be within [0, 28]", -1.0), http.StatusBadRequest},
		{"data shape", errors.NewDataShapeError("diagnosis.Radar", "area_se", 0, "feature is missing"), http.StatusBadRequest},
		{"wrapped validation", errors.Wrap(errors.NewValidationError("body", "bad", nil), "decode"), http.StatusBadRequest},
		{"value", errors.NewValueError("StandardScaler.TransformRecord", "scaler has no feature names"), http.StatusInternalServerError},
		{"dimension", errors.NewDimensionError("diagnosis.Predict", 2, 3, 1), http.StatusInternalServerError},
		{"not fitted", errors.NewNotFittedError("LogisticRegression", "Predict"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			replyError(context.Background(), rec, tt.err)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestChart_RenderPanic(t *testing.T) {
	f := newFixture(t, testConfig())
	f.srv.render = func(diagnosis.RadarData, chart.Options) ([]byte, error) {
		panic("plot: bad canvas")
	}

	rec := f.do(t, http.MethodGet, "/chart.svg", "")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, codeInternal, resp.Code)
	assert.Equal(t, 0, f.srv.charts.ItemCount())

	f.srv.render = chart.RenderRadar
	rec = f.do(t, http.MethodGet, "/chart.svg", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get(headerNameCache))
}

func TestLogger_AccessLog(t *testing.T) {
	f := newFixture(t, testConfig())

	provider, _ := log.NewTestLoggerProvider(log.LevelInfo)
	prev := log.GetProvider()
	log.SetProvider(provider)
	defer log.SetProvider(prev)
	errors.SetZerologWarnFunc(nil)

	f.do(t, http.MethodGet, "/healthz", "")

	logs := provider.TestLogger()
	assert.True(t, logs.ContainsMessage("request served"))
	assert.True(t, logs.ContainsField(log.RouteKey, "/healthz"))
	assert.True(t, logs.ContainsField(log.StatusKey, float64(http.StatusOK)))
}

func TestNew_Errors(t *testing.T) {
	_, err := New(nil, nil, testConfig())
	assert.Error(t, err)
}

func TestRun_GracefulShutdown(t *testing.T) {
	cfg := testConfig()
	cfg.Addr = "127.0.0.1:18501"
	cfg.MetricsAddr = "127.0.0.1:19090"
	f := newFixture(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.srv.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + cfg.Addr + "/healthz")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + cfg.MetricsAddr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
