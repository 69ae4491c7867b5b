package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/cytodash/training"
)

type trainFlags struct {
	data         dataFlags
	testSize     float64
	randomState  int64
	maxIter      int
	c            float64
	zeroVariance string
}

func newTrainCmd(a *app) *cobra.Command {
	f := &trainFlags{}

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Fit the scaler and classifier and write the artifacts",
		Long: `Loads and cleans the dataset, standardizes every feature, holds out a
test split, fits a logistic regression on the rest and prints its accuracy
and classification report. scaler.json and classifier.json are written to
the model directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTrain(cmd, a, f)
		},
	}

	f.data.register(cmd)
	cmd.Flags().Float64Var(&f.testSize, "test-size", 0, "held-out fraction (overrides CYTODASH_TEST_SIZE)")
	cmd.Flags().Int64Var(&f.randomState, "random-state", 0, "split seed (overrides CYTODASH_RANDOM_STATE)")
	cmd.Flags().IntVar(&f.maxIter, "max-iter", 0, "solver iteration cap (overrides CYTODASH_MAX_ITER)")
	cmd.Flags().Float64Var(&f.c, "c", 0, "inverse L2 strength (overrides CYTODASH_C)")
	cmd.Flags().StringVar(&f.zeroVariance, "zero-variance", "", "reject or clamp (overrides CYTODASH_ZERO_VARIANCE)")
	return cmd
}

func runTrain(cmd *cobra.Command, a *app, f *trainFlags) error {
	cfg := &a.cfg
	f.data.apply(cmd, cfg)
	flags := cmd.Flags()
	if flags.Changed("test-size") {
		cfg.Training.TestSize = f.testSize
	}
	if flags.Changed("random-state") {
		cfg.Training.RandomState = f.randomState
	}
	if flags.Changed("max-iter") {
		cfg.Training.MaxIter = f.maxIter
	}
	if flags.Changed("c") {
		cfg.Training.C = f.c
	}
	if flags.Changed("zero-variance") {
		cfg.Training.ZeroVariance = f.zeroVariance
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	policy, err := cfg.Training.Policy()
	if err != nil {
		return err
	}

	res, err := training.Run(cmd.Context(), training.Options{
		DataPath:     cfg.Data.Path,
		ModelDir:     cfg.Data.ModelDir,
		TestSize:     cfg.Training.TestSize,
		RandomState:  cfg.Training.RandomState,
		MaxIter:      cfg.Training.MaxIter,
		C:            cfg.Training.C,
		ZeroVariance: policy,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Accuracy of the model: %.4f\n", res.Accuracy)
	fmt.Fprintf(out, "Classification error: %.4f\n", res.ErrorRate)
	fmt.Fprintf(out, "ROC AUC: %.4f  log loss: %.4f\n", res.AUC, res.LogLoss)
	fmt.Fprintf(out, "Classification report:\n%s", res.Report)
	fmt.Fprintf(out, "Artifacts written to %s\n", res.ModelDir)
	return nil
}
