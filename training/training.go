// Package training fits the scaler and classifier on the reference dataset,
// evaluates on a held-out split and persists both artifacts.
package training

import (
	"context"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/cytodash/artifact"
	"github.com/YuminosukeSato/cytodash/dataset"
	"github.com/YuminosukeSato/cytodash/diagnosis"
	"github.com/YuminosukeSato/cytodash/metrics"
	"github.com/YuminosukeSato/cytodash/pkg/errors"
	"github.com/YuminosukeSato/cytodash/pkg/log"
	"github.com/YuminosukeSato/cytodash/preprocessing"
	"github.com/YuminosukeSato/cytodash/sklearn/linear_model"
	"github.com/YuminosukeSato/cytodash/sklearn/model_selection"
)

// Options configures a training run.
type Options struct {
	DataPath     string
	ModelDir     string
	TestSize     float64
	RandomState  int64
	MaxIter      int
	C            float64
	ZeroVariance preprocessing.ZeroVariancePolicy
}

// DefaultOptions mirrors the defaults of the configuration layer.
func DefaultOptions() Options {
	return Options{
		DataPath:     "data/data.csv",
		ModelDir:     "model",
		TestSize:     0.2,
		RandomState:  42,
		MaxIter:      1000,
		C:            1.0,
		ZeroVariance: preprocessing.ZeroVarianceReject,
	}
}

// Result summarises a finished run.
type Result struct {
	NSamples  int
	NTrain    int
	NTest     int
	NIter     int
	Accuracy  float64
	ErrorRate float64
	AUC       float64
	LogLoss   float64
	Report    *metrics.Report
	Confusion *metrics.ConfusionMatrix
	ModelDir  string
	Duration  time.Duration
}

// Run loads and cleans the dataset, fits the scaler on every row, splits,
// fits the classifier on the training rows, evaluates on the test rows and
// writes scaler.json and classifier.json into opts.ModelDir.
func Run(ctx context.Context, opts Options) (*Result, error) {
	logger := log.GetLoggerWithName("training")
	start := time.Now()

	ds, err := dataset.Load(opts.DataPath)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scaler := preprocessing.NewStandardScaler(preprocessing.WithZeroVariancePolicy(opts.ZeroVariance))
	if err := scaler.FitDataset(ds); err != nil {
		return nil, err
	}
	Xs, err := scaler.Transform(ds.X)
	if err != nil {
		return nil, err
	}

	split, err := model_selection.TrainTestSplit(Xs, ds.Labels(), opts.TestSize, opts.RandomState)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lr := linear_model.NewLogisticRegression(
		linear_model.WithLRFeatureNames(ds.Keys),
		linear_model.WithLRC(opts.C),
		linear_model.WithLRMaxIter(opts.MaxIter),
	)
	if err := lr.Fit(split.XTrain, split.YTrain); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := evaluate(lr, split)
	if err != nil {
		return nil, err
	}
	res.NSamples = ds.Len()
	res.NIter = lr.NIter()
	res.ModelDir = opts.ModelDir

	pair := &artifact.Pair{
		Keys:       ds.Keys,
		Scaler:     scaler,
		Classifier: lr,
		Evaluation: &artifact.Evaluation{
			Accuracy: res.Accuracy,
			AUC:      res.AUC,
			LogLoss:  res.LogLoss,
			TestSize: opts.TestSize,
			NTest:    res.NTest,
		},
	}
	if err := artifact.Save(opts.ModelDir, pair); err != nil {
		return nil, err
	}
	res.Duration = time.Since(start)

	logger.Info("training finished",
		log.OperationKey, log.OperationFit,
		log.PhaseKey, log.PhaseTraining,
		log.SamplesKey, res.NSamples,
		log.TestSizeKey, opts.TestSize,
		log.RandomSeedKey, opts.RandomState,
		log.AccuracyKey, res.Accuracy,
		log.AUCKey, res.AUC,
		log.LossKey, res.LogLoss,
		log.DurationMsKey, res.Duration.Milliseconds(),
	)
	logger.Debug("classification report", "report", res.Report.String())
	return res, nil
}

func evaluate(lr *linear_model.LogisticRegression, split *model_selection.Split) (*Result, error) {
	nTest, _ := split.XTest.Dims()
	nTrain, _ := split.XTrain.Dims()

	pred, err := lr.Predict(split.XTest)
	if err != nil {
		return nil, err
	}
	proba, err := lr.PredictProba(split.XTest)
	if err != nil {
		return nil, err
	}

	yTrue := mat.NewVecDense(nTest, mat.Col(nil, 0, split.YTest))
	yPred := mat.NewVecDense(nTest, mat.Col(nil, 0, pred))
	pMalignant := mat.NewVecDense(nTest, mat.Col(nil, 1, proba))

	res := &Result{NTrain: nTrain, NTest: nTest}
	if res.Accuracy, err = metrics.Accuracy(yTrue, yPred); err != nil {
		return nil, err
	}
	if res.ErrorRate, err = metrics.ClassificationError(yTrue, yPred); err != nil {
		return nil, err
	}
	if res.AUC, err = metrics.AUC(yTrue, pMalignant); err != nil {
		return nil, err
	}
	if res.LogLoss, err = metrics.BinaryLogLoss(yTrue, pMalignant); err != nil {
		return nil, err
	}
	if res.Confusion, err = metrics.NewConfusionMatrix(yTrue, yPred); err != nil {
		return nil, err
	}

	var names []string
	if len(res.Confusion.Labels) == 2 {
		names = make([]string, 2)
		for i, l := range res.Confusion.Labels {
			if names[i], err = diagnosis.DiagnosisFor(l); err != nil {
				return nil, errors.Wrap(err, "training: report labels")
			}
		}
	}
	if res.Report, err = metrics.ClassificationReport(yTrue, yPred, names); err != nil {
		return nil, err
	}
	return res, nil
}
