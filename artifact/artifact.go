// Package artifact persists the fitted scaler and classifier as versioned JSON
// documents and validates that a loaded pair matches the serving feature keys.
package artifact

import (
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/YuminosukeSato/cytodash/core/model"
	"github.com/YuminosukeSato/cytodash/pkg/errors"
	"github.com/YuminosukeSato/cytodash/pkg/log"
	"github.com/YuminosukeSato/cytodash/preprocessing"
	"github.com/YuminosukeSato/cytodash/sklearn/linear_model"
)

// SchemaVersion is the layout version written into every document.
const SchemaVersion = 1

const (
	KindScaler     = "standard_scaler"
	KindClassifier = "logistic_regression"

	ScalerFile     = "scaler.json"
	ClassifierFile = "classifier.json"
)

// ScalerDocument is the on-disk form of a fitted StandardScaler.
type ScalerDocument struct {
	SchemaVersion int                                `json:"schema_version"`
	Kind          string                             `json:"kind"`
	FeatureKeys   []string                           `json:"feature_keys"`
	CreatedAt     time.Time                          `json:"created_at"`
	Params        preprocessing.StandardScalerParams `json:"params"`
}

// Evaluation summarises the held-out evaluation run at training time.
type Evaluation struct {
	Accuracy float64 `json:"accuracy"`
	AUC      float64 `json:"auc"`
	LogLoss  float64 `json:"log_loss"`
	TestSize float64 `json:"test_size"`
	NTest    int     `json:"n_test"`
}

// ClassifierDocument is the on-disk form of a fitted LogisticRegression.
type ClassifierDocument struct {
	SchemaVersion int                 `json:"schema_version"`
	Kind          string              `json:"kind"`
	FeatureKeys   []string            `json:"feature_keys"`
	CreatedAt     time.Time           `json:"created_at"`
	Weights       *model.ModelWeights `json:"weights"`
	Evaluation    *Evaluation         `json:"evaluation,omitempty"`
}

// Pair is a validated scaler and classifier sharing one feature key order.
type Pair struct {
	Keys       []string
	Scaler     *preprocessing.StandardScaler
	Classifier *linear_model.LogisticRegression
	Evaluation *Evaluation
}

// SaveScaler writes the fitted scaler to dir/scaler.json.
func SaveScaler(dir string, s *preprocessing.StandardScaler) error {
	params, err := s.Params()
	if err != nil {
		return err
	}
	if len(params.FeatureNames) == 0 {
		return errors.NewValueError("artifact.SaveScaler", "scaler has no feature names")
	}

	doc := &ScalerDocument{
		SchemaVersion: SchemaVersion,
		Kind:          KindScaler,
		FeatureKeys:   append([]string(nil), params.FeatureNames...),
		CreatedAt:     time.Now().UTC(),
		Params:        params,
	}
	return save(dir, ScalerFile, doc)
}

// SaveClassifier writes the fitted classifier and its evaluation to dir/classifier.json.
func SaveClassifier(dir string, lr *linear_model.LogisticRegression, eval *Evaluation) error {
	weights, err := lr.ExportWeights()
	if err != nil {
		return err
	}
	if len(weights.Features) == 0 {
		return errors.NewValueError("artifact.SaveClassifier", "classifier has no feature names")
	}

	doc := &ClassifierDocument{
		SchemaVersion: SchemaVersion,
		Kind:          KindClassifier,
		FeatureKeys:   append([]string(nil), weights.Features...),
		CreatedAt:     time.Now().UTC(),
		Weights:       weights,
		Evaluation:    eval,
	}
	return save(dir, ClassifierFile, doc)
}

func save(dir, name string, doc interface{}) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "artifact: create %s", dir)
	}
	path := filepath.Join(dir, name)
	if err := model.SaveJSON(doc, path); err != nil {
		return errors.Wrapf(err, "artifact: save %s", path)
	}
	log.GetLoggerWithName("artifact").Info("artifact saved",
		log.OperationKey, log.OperationSave,
		log.ArtifactKey, name,
		log.PathKey, path,
	)
	return nil
}

// LoadScaler reads dir/scaler.json and checks its schema version and kind.
func LoadScaler(dir string) (*ScalerDocument, error) {
	doc := &ScalerDocument{}
	if err := load(dir, ScalerFile, doc); err != nil {
		return nil, err
	}
	if err := checkHeader(ScalerFile, doc.SchemaVersion, doc.Kind, KindScaler); err != nil {
		return nil, err
	}
	return doc, nil
}

// LoadClassifier reads dir/classifier.json and checks its schema version and kind.
func LoadClassifier(dir string) (*ClassifierDocument, error) {
	doc := &ClassifierDocument{}
	if err := load(dir, ClassifierFile, doc); err != nil {
		return nil, err
	}
	if err := checkHeader(ClassifierFile, doc.SchemaVersion, doc.Kind, KindClassifier); err != nil {
		return nil, err
	}
	if doc.Weights == nil {
		return nil, errors.NewArtifactMismatchError(ClassifierFile, "missing weights", "weights", nil)
	}
	return doc, nil
}

func load(dir, name string, doc interface{}) error {
	path := filepath.Join(dir, name)
	if err := model.LoadJSON(doc, path); err != nil {
		return errors.Wrapf(err, "artifact: load %s", path)
	}
	log.GetLoggerWithName("artifact").Debug("artifact loaded",
		log.OperationKey, log.OperationLoad,
		log.ArtifactKey, name,
		log.PathKey, path,
	)
	return nil
}

func checkHeader(name string, version int, kind, wantKind string) error {
	if version != SchemaVersion {
		return errors.NewArtifactMismatchError(name, "schema version", SchemaVersion, version)
	}
	if kind != wantKind {
		return errors.NewArtifactMismatchError(name, "kind", wantKind, kind)
	}
	return nil
}

// Scaler rebuilds the fitted scaler, checking the parameter keys against the document keys.
func (d *ScalerDocument) Scaler() (*preprocessing.StandardScaler, error) {
	if !slices.Equal(d.Params.FeatureNames, d.FeatureKeys) {
		return nil, errors.NewArtifactMismatchError(ScalerFile, "params feature names", d.FeatureKeys, d.Params.FeatureNames)
	}
	if len(d.Params.Mean) != len(d.FeatureKeys) {
		return nil, errors.NewArtifactMismatchError(ScalerFile, "mean length", len(d.FeatureKeys), len(d.Params.Mean))
	}
	return preprocessing.NewStandardScalerFromParams(d.Params)
}

// Classifier rebuilds the fitted classifier, checking the weight keys against the document keys.
func (d *ClassifierDocument) Classifier() (*linear_model.LogisticRegression, error) {
	if !slices.Equal(d.Weights.Features, d.FeatureKeys) {
		return nil, errors.NewArtifactMismatchError(ClassifierFile, "weights feature names", d.FeatureKeys, d.Weights.Features)
	}
	if len(d.Weights.Coefficients) != len(d.FeatureKeys) {
		return nil, errors.NewArtifactMismatchError(ClassifierFile, "coefficient length", len(d.FeatureKeys), len(d.Weights.Coefficients))
	}
	return linear_model.NewLogisticRegressionFromWeights(d.Weights)
}

// Save writes both artifacts of a pair.
func Save(dir string, p *Pair) error {
	if err := SaveScaler(dir, p.Scaler); err != nil {
		return err
	}
	return SaveClassifier(dir, p.Classifier, p.Evaluation)
}

// LoadPair loads both artifacts from dir and verifies that each carries
// exactly keys, in the same order. Any difference is an ArtifactMismatchError.
func LoadPair(dir string, keys []string) (*Pair, error) {
	sdoc, err := LoadScaler(dir)
	if err != nil {
		return nil, err
	}
	cdoc, err := LoadClassifier(dir)
	if err != nil {
		return nil, err
	}

	if !slices.Equal(sdoc.FeatureKeys, keys) {
		return nil, errors.NewArtifactMismatchError(ScalerFile, "feature keys", keys, sdoc.FeatureKeys)
	}
	if !slices.Equal(cdoc.FeatureKeys, keys) {
		return nil, errors.NewArtifactMismatchError(ClassifierFile, "feature keys", keys, cdoc.FeatureKeys)
	}

	scaler, err := sdoc.Scaler()
	if err != nil {
		return nil, err
	}
	classifier, err := cdoc.Classifier()
	if err != nil {
		return nil, err
	}

	log.GetLoggerWithName("artifact").Info("artifacts loaded",
		log.OperationKey, log.OperationLoad,
		log.PathKey, dir,
		log.FeaturesKey, len(keys),
		log.SchemaVersionKey, SchemaVersion,
	)
	return &Pair{
		Keys:       append([]string(nil), keys...),
		Scaler:     scaler,
		Classifier: classifier,
		Evaluation: cdoc.Evaluation,
	}, nil
}
