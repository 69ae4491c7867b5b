package main

import (
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/cytodash/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type predictFlags struct {
	data  dataFlags
	input string
}

type predictInput struct {
	Features map[string]float64 `json:"features"`
}

func newPredictCmd(a *app) *cobra.Command {
	f := &predictFlags{}

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict one sample and print the report as JSON",
		Long: `Reads {"features": {"radius_mean": 17.99, ...}} from --input ("-" for
stdin). Missing keys take the dataset mean, as on the dashboard.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPredict(cmd, a, f)
		},
	}

	f.data.register(cmd)
	cmd.Flags().StringVar(&f.input, "input", "", "sample JSON file, or - for stdin")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func runPredict(cmd *cobra.Command, a *app, f *predictFlags) error {
	f.data.apply(cmd, &a.cfg)

	in, err := readInput(cmd, f.input)
	if err != nil {
		return err
	}

	model, ref, err := a.loadModel()
	if err != nil {
		return err
	}

	rec, err := ref.Complete(in.Features)
	if err != nil {
		return err
	}
	report, err := model.Report(rec, ref)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode report")
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}

func readInput(cmd *cobra.Command, path string) (*predictInput, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		r = file
	}

	var in predictInput
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return nil, errors.NewValidationError("input", fmt.Sprintf("json.Decode: %v", err), path)
	}
	if len(in.Features) == 0 {
		return nil, errors.NewValidationError("input", "no features", path)
	}
	return &in, nil
}
