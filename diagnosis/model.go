package diagnosis

import (
	"context"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/cytodash/artifact"
	"github.com/YuminosukeSato/cytodash/core/model"
	"github.com/YuminosukeSato/cytodash/dataset"
	"github.com/YuminosukeSato/cytodash/pkg/errors"
	"github.com/YuminosukeSato/cytodash/pkg/log"
	"github.com/YuminosukeSato/cytodash/preprocessing"
)

// Display names of the two diagnoses, as shown on the dashboard and in
// the classification report.
const (
	// Benign is the name of label 0.
	Benign = "Benign"
	// Malignant is the name of label 1.
	Malignant = "Malignant"
)

// Prediction is the classifier output for one record.
type Prediction struct {
	Label         int     `json:"label"`
	Diagnosis     string  `json:"diagnosis"`
	ProbBenign    float64 `json:"prob_benign"`
	ProbMalignant float64 `json:"prob_malignant"`
}

// Rounded returns p with both probabilities rounded to 2 decimals for display.
func (p Prediction) Rounded() Prediction {
	p.ProbBenign = round2(p.ProbBenign)
	p.ProbMalignant = round2(p.ProbMalignant)
	return p
}

// BenignText is the display line for the benign probability.
func (p Prediction) BenignText() string {
	return fmt.Sprintf("Probability of being benign: %.2f", p.ProbBenign)
}

// MalignantText is the display line for the malignant probability.
func (p Prediction) MalignantText() string {
	return fmt.Sprintf("Probability of being malignant: %.2f", p.ProbMalignant)
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// DiagnosisFor returns the display name of a label.
func DiagnosisFor(label int) (string, error) {
	switch label {
	case dataset.LabelBenign:
		return Benign, nil
	case dataset.LabelMalignant:
		return Malignant, nil
	}
	return "", errors.NewValueError("diagnosis.DiagnosisFor", "label must be 0 or 1")
}

// Model pairs the fitted scaler with a classifier trained on its output.
// The scaler's feature order is the order of every classifier-ready vector.
type Model struct {
	keys       []string
	scaler     *preprocessing.StandardScaler
	classifier model.ProbabilisticClassifier
	logger     log.Logger
}

// NewModel checks that the scaler carries keys in order and that the
// classifier, when it reports classes, was fit on labels 0 and 1.
func NewModel(keys []string, scaler *preprocessing.StandardScaler, classifier model.ProbabilisticClassifier) (*Model, error) {
	if scaler == nil || classifier == nil {
		return nil, errors.NewValueError("diagnosis.NewModel", "scaler and classifier are required")
	}
	if !scaler.IsFitted() {
		return nil, errors.NewNotFittedError("StandardScaler", "NewModel")
	}
	if !slices.Equal(scaler.FeatureNames, keys) {
		return nil, errors.NewArtifactMismatchError(artifact.ScalerFile, "feature keys", keys, scaler.FeatureNames)
	}
	if c, ok := classifier.(interface{ Classes() []int }); ok {
		want := []int{dataset.LabelBenign, dataset.LabelMalignant}
		if got := c.Classes(); !slices.Equal(got, want) {
			return nil, errors.NewArtifactMismatchError(artifact.ClassifierFile, "classes", want, got)
		}
	}
	return &Model{
		keys:       slices.Clone(keys),
		scaler:     scaler,
		classifier: classifier,
		logger:     log.GetLoggerWithName("diagnosis"),
	}, nil
}

// NewModelFromPair wraps a validated artifact pair.
func NewModelFromPair(p *artifact.Pair) (*Model, error) {
	return NewModel(p.Keys, p.Scaler, p.Classifier)
}

// Keys returns the feature order of classifier-ready vectors.
func (m *Model) Keys() []string {
	return slices.Clone(m.keys)
}

// Vector returns the standardized values of rec in key order.
func (m *Model) Vector(rec dataset.Record) ([]float64, error) {
	return m.scaler.TransformRecord(rec)
}

// Predict scales rec and runs the classifier on it.
func (m *Model) Predict(rec dataset.Record) (Prediction, error) {
	x, err := m.Vector(rec)
	if err != nil {
		return Prediction{}, err
	}
	X := mat.NewDense(1, len(x), x)

	labels, err := m.classifier.Predict(X)
	if err != nil {
		return Prediction{}, err
	}
	proba, err := m.classifier.PredictProba(X)
	if err != nil {
		return Prediction{}, err
	}
	if r, c := proba.Dims(); r != 1 || c != 2 {
		return Prediction{}, errors.NewDimensionError("diagnosis.Predict", 2, c, 1)
	}

	label := int(labels.At(0, 0))
	name, err := DiagnosisFor(label)
	if err != nil {
		return Prediction{}, err
	}

	p := Prediction{
		Label:         label,
		Diagnosis:     name,
		ProbBenign:    proba.At(0, 0),
		ProbMalignant: proba.At(0, 1),
	}
	if m.logger.Enabled(context.Background(), log.LevelDebug) {
		m.logger.Debug("prediction",
			log.OperationKey, log.OperationPredict,
			log.ClassKey, p.Diagnosis,
			log.ProbabilityKey, p.ProbMalignant,
		)
	}
	return p, nil
}

// Report is everything the dashboard renders for one input.
type Report struct {
	Input      dataset.Record `json:"input"`
	Prediction Prediction     `json:"prediction"`
	Rounded    Prediction     `json:"rounded"`
	Normalized dataset.Record `json:"normalized"`
	Radar      RadarData      `json:"radar"`
}

// Report predicts rec and derives its radar data against ref.
func (m *Model) Report(rec dataset.Record, ref *Reference) (*Report, error) {
	pred, err := m.Predict(rec)
	if err != nil {
		return nil, err
	}
	norm, err := Normalize(rec, ref)
	if err != nil {
		return nil, err
	}
	radar, err := Radar(norm)
	if err != nil {
		return nil, err
	}
	return &Report{
		Input:      rec.Clone(),
		Prediction: pred,
		Rounded:    pred.Rounded(),
		Normalized: norm,
		Radar:      radar,
	}, nil
}
