// Package cytodash is a breast cancer cytology predictor: it trains a
// logistic regression on the Wisconsin diagnostic table and serves a
// dashboard where the 30 cell-nucleus measurements are adjusted by hand.
//
// # Quick Start
//
// Train once, then serve:
//
//	cytodash train --data data/data.csv --model-dir model
//	cytodash serve --addr :8501
//
// Or use the packages directly:
//
//	package main
//
//	import (
//	    "context"
//	    "fmt"
//	    "log"
//
//	    "github.com/YuminosukeSato/cytodash/artifact"
//	    "github.com/YuminosukeSato/cytodash/dataset"
//	    "github.com/YuminosukeSato/cytodash/diagnosis"
//	    "github.com/YuminosukeSato/cytodash/training"
//	)
//
//	func main() {
//	    opts := training.DefaultOptions()
//	    res, err := training.Run(context.Background(), opts)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Print(res.Report)
//
//	    pair, err := artifact.LoadPair(opts.ModelDir, dataset.FeatureKeys())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    m, err := diagnosis.NewModelFromPair(pair)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    ds, err := dataset.Load(opts.DataPath)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    pred, err := m.Predict(ds.Record(0))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println(pred.Diagnosis, pred.MalignantText())
//	}
//
// # Packages
//
//   - dataset: CSV loading, cleaning and the canonical feature keys
//   - preprocessing: StandardScaler (model input) and MinMaxScaler (display)
//   - sklearn/linear_model: binary LogisticRegression
//   - sklearn/model_selection: seeded train/test split
//   - metrics: accuracy, AUC, log loss, confusion matrix, classification report
//   - artifact: versioned JSON persistence of the scaler and classifier
//   - diagnosis: prediction, display normalization and radar data
//   - chart: SVG radar chart rendering
//   - training: the offline fit-evaluate-persist pipeline
//   - internal/server: dashboard, JSON API and Prometheus metrics
//   - core/model: shared interfaces, weights and fitted state
//   - core/parallel: row-parallel helpers
//   - pkg/errors, pkg/log: error types and structured logging
//
// # Configuration
//
// Settings come from the environment (optionally a .env file) and can be
// overridden by CLI flags. See internal/config for the variable names.
package cytodash
