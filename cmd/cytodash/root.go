package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/cytodash/artifact"
	"github.com/YuminosukeSato/cytodash/dataset"
	"github.com/YuminosukeSato/cytodash/diagnosis"
	"github.com/YuminosukeSato/cytodash/internal/config"
	"github.com/YuminosukeSato/cytodash/pkg/log"
)

// app carries the configuration shared by all subcommands. Flags of a
// subcommand override the environment only when they are set explicitly.
type app struct {
	cfg       config.Config
	envFile   string
	logLevel  string
	logFormat string
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "cytodash",
		Short:         "Breast cancer cytology predictor",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&a.envFile, "env-file", "", "load settings from this .env file")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
	cmd.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "json, console or cloud (overrides LOG_FORMAT)")

	cmd.AddCommand(
		newTrainCmd(a),
		newServeCmd(a),
		newPredictCmd(a),
	)
	return cmd
}

func (a *app) setup(cmd *cobra.Command) error {
	var err error
	if a.envFile != "" {
		a.cfg, err = config.LoadFile(a.envFile)
	} else {
		a.cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}

	if a.logLevel != "" {
		a.cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		a.cfg.Log.Format = a.logFormat
	}
	if _, err := log.SetupLoggerWithWriter(cmd.ErrOrStderr(), a.cfg.Log.Format, a.cfg.Log.Level); err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	return nil
}

// loadModel reads the artifact pair and rebuilds the reference statistics
// from the dataset.
func (a *app) loadModel() (*diagnosis.Model, *diagnosis.Reference, error) {
	pair, err := artifact.LoadPair(a.cfg.Data.ModelDir, dataset.FeatureKeys())
	if err != nil {
		return nil, nil, err
	}
	model, err := diagnosis.NewModelFromPair(pair)
	if err != nil {
		return nil, nil, err
	}

	ds, err := dataset.Load(a.cfg.Data.Path)
	if err != nil {
		return nil, nil, err
	}
	ref, err := diagnosis.NewReference(ds)
	if err != nil {
		return nil, nil, err
	}
	return model, ref, nil
}

type dataFlags struct {
	path     string
	modelDir string
}

func (f *dataFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.path, "data", "", "dataset CSV (overrides CYTODASH_DATA_PATH)")
	cmd.Flags().StringVar(&f.modelDir, "model-dir", "", "artifact directory (overrides CYTODASH_MODEL_DIR)")
}

func (f *dataFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("data") {
		cfg.Data.Path = f.path
	}
	if cmd.Flags().Changed("model-dir") {
		cfg.Data.ModelDir = f.modelDir
	}
}
