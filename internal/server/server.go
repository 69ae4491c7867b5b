// Package server serves the cytology dashboard, its JSON API and the radar chart.
package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"github.com/YuminosukeSato/cytodash/chart"
	"github.com/YuminosukeSato/cytodash/diagnosis"
	"github.com/YuminosukeSato/cytodash/internal/config"
	cerrors "github.com/YuminosukeSato/cytodash/pkg/errors"
	"github.com/YuminosukeSato/cytodash/pkg/log"
)

// Server wires a diagnosis model and its reference statistics to HTTP.
type Server struct {
	model   *diagnosis.Model
	ref     *diagnosis.Reference
	charts  *cache.Cache
	metrics *Metrics
	page    *template.Template
	cfg     config.Server

	render func(diagnosis.RadarData, chart.Options) ([]byte, error)
}

// New builds a server. The model and reference must describe the same feature keys.
func New(model *diagnosis.Model, ref *diagnosis.Reference, cfg config.Server) (*Server, error) {
	if model == nil || ref == nil {
		return nil, cerrors.NewValueError("server.New", "model and reference are required")
	}
	mk, rk := model.Keys(), ref.Keys()
	if len(mk) != len(rk) {
		return nil, cerrors.NewArtifactMismatchError("reference", "feature keys", mk, rk)
	}
	for i := range mk {
		if mk[i] != rk[i] {
			return nil, cerrors.NewArtifactMismatchError("reference", "feature keys", mk, rk)
		}
	}

	page, err := parseDashboard()
	if err != nil {
		return nil, err
	}

	ttl := cfg.ChartCacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &Server{
		model:   model,
		ref:     ref,
		charts:  cache.New(ttl, 2*ttl),
		metrics: NewMetrics(),
		page:    page,
		cfg:     cfg,
		render:  chart.RenderRadar,
	}, nil
}

// Metrics returns the server's collectors.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Handler returns the chi router with all middlewares installed.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(TraceID, Logger, s.metrics.Middleware, Recovery)
	r.NotFound(notFound)

	s.RegisterRoutes(r)

	return r
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/", handler(s.getDashboard))
	r.Get("/chart.svg", handler(s.getChart))
	r.Get("/healthz", handler(s.getHealthz))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/features", handler(s.getFeatures))
		r.Post("/predict", handler(s.postPredict))
	})
}

// Run serves the dashboard, and the metrics listener unless disabled, until
// ctx is done. Both listeners shut down gracefully within ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	httpServer := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: httpServerReadHeaderTimeout,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	HTTPServer{ShutdownTimeout: s.cfg.ShutdownTimeout}.Run(ctx, g, httpServer)

	if s.cfg.MetricsEnabled() {
		prometheusServer := NewPrometheusServer(s.cfg.MetricsAddr, s.metrics)

		g.Go(func() error {
			if err := prometheusServer.Run(ctx); err != nil {
				return fmt.Errorf("prometheusServer.Run: %w", err)
			}

			return nil
		})
	}

	return g.Wait()
}

// HTTPServer starts an http.Server inside an errgroup and shuts it down when
// the group context ends.
type HTTPServer struct {
	ShutdownTimeout time.Duration
}

func (h HTTPServer) Run(ctx context.Context, g *errgroup.Group, httpServer *http.Server) {
	g.Go(func() error {
		go func() {
			<-ctx.Done()

			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.ShutdownTimeout) //nolint:govet
			defer cancel()

			if err := httpServer.Shutdown(ctx); err != nil {
				logger(ctx).Error("server.Shutdown", err)
			}
		}()

		logger(ctx).Info("http server started", log.AddrKey, httpServer.Addr)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("httpServer.ListenAndServe: %w", err)
		}

		logger(ctx).Info("http server stopped", log.AddrKey, httpServer.Addr)

		return nil
	})
}
