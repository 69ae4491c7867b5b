package main

import (
	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/cytodash/internal/server"
	"github.com/YuminosukeSato/cytodash/pkg/log"
)

type serveFlags struct {
	data        dataFlags
	addr        string
	metricsAddr string
}

func newServeCmd(a *app) *cobra.Command {
	f := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard and the prediction API",
		Long: `Loads the trained artifacts and the reference dataset, then serves the
dashboard, the JSON API and, unless disabled with --metrics-addr=off, the
Prometheus metrics on a separate listener. Stops gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, a, f)
		},
	}

	f.data.register(cmd)
	cmd.Flags().StringVar(&f.addr, "addr", "", "dashboard listen address (overrides CYTODASH_HTTP_ADDR)")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "metrics listen address or off (overrides CYTODASH_METRICS_ADDR)")
	return cmd
}

func runServe(cmd *cobra.Command, a *app, f *serveFlags) error {
	cfg := &a.cfg
	f.data.apply(cmd, cfg)
	if cmd.Flags().Changed("addr") {
		cfg.Server.Addr = f.addr
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.Server.MetricsAddr = f.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	model, ref, err := a.loadModel()
	if err != nil {
		return err
	}

	srv, err := server.New(model, ref, cfg.Server)
	if err != nil {
		return err
	}

	log.GetLoggerWithName("cmd").Info("serving dashboard",
		log.PathKey, cfg.Data.ModelDir,
		log.AddrKey, cfg.Server.Addr,
	)
	return srv.Run(cmd.Context())
}
