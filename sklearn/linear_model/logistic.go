// Package linear_model provides the binary logistic regression classifier
// used to produce the malignancy probability.
package linear_model

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/cytodash/core/model"
	"github.com/YuminosukeSato/cytodash/pkg/errors"
	"github.com/YuminosukeSato/cytodash/pkg/log"
)

// ModelType is the identifier written into exported weights.
const ModelType = "LogisticRegression"

// WeightsVersion is the version of the exported weight layout.
const WeightsVersion = "1"

const (
	// PenaltyL2 applies an L2 penalty on the coefficients (not the intercept).
	PenaltyL2 = "l2"
	// PenaltyNone disables regularization.
	PenaltyNone = "none"
)

// minStep bounds the backtracking line search.
const minStep = 1e-12

// LogisticRegression implements binary logistic regression for classification.
// Compatible with scikit-learn's LogisticRegression objective:
//
//	sum_i logloss(y_i, w·x_i + b) + 1/(2C) ||w||²
//
// optimised as a mean over samples, so the penalty per sample is 1/(C·n).
type LogisticRegression struct {
	state *model.StateManager // State management (composition)

	// Hyperparameters
	penalty      string  // Regularization: "l2", "none"
	C            float64 // Inverse regularization strength (1/alpha)
	fitIntercept bool    // Whether to fit intercept
	randomState  int64   // Seed for the initial coefficients, -1 starts from zeros
	maxIter      int     // Maximum iterations
	tol          float64 // Stop when max|grad| <= tol
	featureNames []string

	// Model parameters
	coef_      []float64 // Coefficients (n_features)
	intercept_ float64   // Intercept term
	classes_   []int     // Sorted class labels, len 2 when fitted
	nIter_     int       // Iterations run by the last Fit
	loss_      float64   // Objective value at the end of Fit

	logger log.Logger
}

// LogisticRegressionOption is a functional option for LogisticRegression
type LogisticRegressionOption func(*LogisticRegression)

// NewLogisticRegression creates a new LogisticRegression classifier
func NewLogisticRegression(opts ...LogisticRegressionOption) *LogisticRegression {
	lr := &LogisticRegression{
		state:        model.NewStateManager(),
		penalty:      PenaltyL2,
		C:            1.0,
		fitIntercept: true,
		randomState:  -1,
		maxIter:      100,
		tol:          1e-4,
		logger:       log.GetLoggerWithName("linear_model.LogisticRegression"),
	}

	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// WithLRPenalty sets the penalty type
func WithLRPenalty(penalty string) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.penalty = penalty
	}
}

// WithLRC sets the inverse regularization strength
func WithLRC(c float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.C = c
	}
}

// WithLogisticFitIntercept sets whether to fit intercept
func WithLogisticFitIntercept(fit bool) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.fitIntercept = fit
	}
}

// WithLRMaxIter sets maximum iterations
func WithLRMaxIter(maxIter int) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.maxIter = maxIter
	}
}

// WithLRTol sets tolerance for stopping criteria
func WithLRTol(tol float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.tol = tol
	}
}

// WithLRRandomState sets the seed used to initialise the coefficients.
// A negative seed starts from zeros.
func WithLRRandomState(seed int64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.randomState = seed
	}
}

// WithLRFeatureNames records the column keys so they travel with exported weights.
func WithLRFeatureNames(names []string) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.featureNames = append([]string(nil), names...)
	}
}

func (lr *LogisticRegression) validateParams() error {
	switch lr.penalty {
	case PenaltyL2, PenaltyNone:
	default:
		return errors.NewValidationError("penalty", "must be 'l2' or 'none'", lr.penalty)
	}
	if lr.penalty == PenaltyL2 && (lr.C <= 0 || math.IsNaN(lr.C) || math.IsInf(lr.C, 0)) {
		return errors.NewValidationError("C", "must be a positive finite number", lr.C)
	}
	if lr.maxIter < 1 {
		return errors.NewValidationError("max_iter", "must be at least 1", lr.maxIter)
	}
	if lr.tol < 0 || math.IsNaN(lr.tol) {
		return errors.NewValidationError("tol", "must be non-negative", lr.tol)
	}
	return nil
}

// Fit trains the model on X (n_samples x n_features) and y (n_samples x 1).
// y must contain exactly two distinct integer labels.
func (lr *LogisticRegression) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "LogisticRegression.Fit")

	if err := lr.validateParams(); err != nil {
		return err
	}

	nSamples, nFeatures := X.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return errors.NewModelError("LogisticRegression.Fit", "empty data", errors.ErrEmptyData)
	}
	yRows, yCols := y.Dims()
	if yRows != nSamples {
		return errors.NewDimensionError("LogisticRegression.Fit", nSamples, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("LogisticRegression.Fit", 1, yCols, 1)
	}
	if lr.featureNames != nil && len(lr.featureNames) != nFeatures {
		return errors.NewDimensionError("LogisticRegression.Fit", len(lr.featureNames), nFeatures, 1)
	}
	if err := errors.CheckMatrix("LogisticRegression.Fit", X, lr.featureNames); err != nil {
		return err
	}

	classes, err := extractClasses(y)
	if err != nil {
		return err
	}

	// Encode targets as 0/1 against the sorted classes.
	target := make([]float64, nSamples)
	for i := 0; i < nSamples; i++ {
		if int(y.At(i, 0)) == classes[1] {
			target[i] = 1
		}
	}

	lr.state.Reset()
	lr.classes_ = classes
	lr.fitBinary(mat.DenseCopyOf(X), target)

	lr.state.SetDimensions(nFeatures, nSamples)
	lr.state.SetFitted()

	lr.logger.Info("logistic regression fitted",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, nSamples,
		log.FeaturesKey, nFeatures,
		log.IterationKey, lr.nIter_,
		log.LossKey, lr.loss_,
	)
	return nil
}

// extractClasses returns the sorted unique labels of y.
func extractClasses(y mat.Matrix) ([]int, error) {
	rows, _ := y.Dims()
	seen := make(map[int]struct{})
	for i := 0; i < rows; i++ {
		v := y.At(i, 0)
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return nil, errors.NewValidationError("y", "labels must be integers", v)
		}
		seen[int(v)] = struct{}{}
	}

	classes := make([]int, 0, len(seen))
	for c := range seen {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	if len(classes) != 2 {
		return nil, errors.NewValidationError("y", "binary classifier requires exactly 2 classes", classes)
	}
	return classes, nil
}

// initializeWeights returns the starting coefficients.
func (lr *LogisticRegression) initializeWeights(nFeatures int) []float64 {
	w := make([]float64, nFeatures)
	if lr.randomState < 0 {
		return w
	}
	rng := rand.New(rand.NewSource(lr.randomState))
	for j := range w {
		w[j] = rng.NormFloat64() * 0.01
	}
	return w
}

// fitBinary runs full-batch gradient descent with a backtracking line search.
func (lr *LogisticRegression) fitBinary(X *mat.Dense, target []float64) {
	n, p := X.Dims()

	lambda := 0.0
	if lr.penalty == PenaltyL2 {
		lambda = 1.0 / (lr.C * float64(n))
	}

	w := lr.initializeWeights(p)
	b := 0.0

	gradW := make([]float64, p)
	candW := make([]float64, p)
	z := mat.NewVecDense(n, nil)
	resid := mat.NewVecDense(n, nil)
	gw := mat.NewVecDense(p, gradW)

	objective := func(w []float64, b float64) float64 {
		z.MulVec(X, mat.NewVecDense(p, w))
		loss := 0.0
		for i := 0; i < n; i++ {
			zi := z.AtVec(i) + b
			loss += softplus(zi) - target[i]*zi
		}
		loss /= float64(n)
		if lambda > 0 {
			loss += 0.5 * lambda * floats.Dot(w, w)
		}
		return loss
	}

	// gradient fills gradW and returns the intercept gradient. z must hold X·w.
	gradient := func(w []float64, b float64) float64 {
		gb := 0.0
		for i := 0; i < n; i++ {
			r := sigmoid(z.AtVec(i)+b) - target[i]
			resid.SetVec(i, r)
			gb += r
		}
		gw.MulVec(X.T(), resid)
		floats.Scale(1/float64(n), gradW)
		if lambda > 0 {
			floats.AddScaled(gradW, lambda, w)
		}
		if !lr.fitIntercept {
			return 0
		}
		return gb / float64(n)
	}

	loss := objective(w, b)
	step := 1.0
	converged := false
	iter := 0

	for iter = 0; iter < lr.maxIter; iter++ {
		gb := gradient(w, b)

		gmax := math.Abs(gb)
		for _, g := range gradW {
			gmax = math.Max(gmax, math.Abs(g))
		}
		if gmax <= lr.tol {
			converged = true
			break
		}

		gnorm2 := floats.Dot(gradW, gradW) + gb*gb

		// Armijo backtracking; objective leaves z at X·candW.
		step = math.Min(step*2, 16)
		var candLoss, candB float64
		for {
			copy(candW, w)
			floats.AddScaled(candW, -step, gradW)
			candB = b - step*gb
			candLoss = objective(candW, candB)
			if candLoss <= loss-0.5*step*gnorm2 || step < minStep {
				break
			}
			step /= 2
		}

		copy(w, candW)
		b = candB
		loss = candLoss

		if lr.logger.Enabled(context.Background(), log.LevelDebug) && iter%50 == 0 {
			lr.logger.Debug("gradient step", log.IterationKey, iter, log.LossKey, loss)
		}
	}

	if !converged {
		errors.Warn(errors.NewConvergenceWarning("LogisticRegression", lr.maxIter,
			fmt.Sprintf("gradient descent did not reach tol=%g; increase max_iter", lr.tol)))
	}

	lr.coef_ = w
	lr.intercept_ = b
	lr.nIter_ = iter
	lr.loss_ = loss
}

// DecisionFunction returns w·x + b for each sample (n_samples x 1).
func (lr *LogisticRegression) DecisionFunction(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.state.RequireFitted("LogisticRegression", "DecisionFunction"); err != nil {
		return nil, err
	}
	n, p := X.Dims()
	if err := lr.state.RequireFeatures("LogisticRegression.DecisionFunction", p); err != nil {
		return nil, err
	}

	scores := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		s := lr.intercept_
		for j := 0; j < p; j++ {
			s += X.At(i, j) * lr.coef_[j]
		}
		scores.Set(i, 0, s)
	}
	return scores, nil
}

// Predict returns the predicted class labels (n_samples x 1).
func (lr *LogisticRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	scores, err := lr.DecisionFunction(X)
	if err != nil {
		return nil, err
	}

	n, _ := scores.Dims()
	predictions := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		label := lr.classes_[0]
		if scores.At(i, 0) > 0 {
			label = lr.classes_[1]
		}
		predictions.Set(i, 0, float64(label))
	}
	return predictions, nil
}

// PredictProba returns class probabilities (n_samples x 2), columns ordered
// as Classes(): [P(classes[0]), P(classes[1])].
func (lr *LogisticRegression) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	scores, err := lr.DecisionFunction(X)
	if err != nil {
		return nil, err
	}

	n, _ := scores.Dims()
	probas := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		p := sigmoid(scores.At(i, 0))
		probas.Set(i, 0, 1-p)
		probas.Set(i, 1, p)
	}
	return probas, nil
}

// Score returns the mean accuracy on the given test data and labels.
func (lr *LogisticRegression) Score(X, y mat.Matrix) (float64, error) {
	predictions, err := lr.Predict(X)
	if err != nil {
		return 0, err
	}

	n, _ := predictions.Dims()
	yRows, _ := y.Dims()
	if yRows != n {
		return 0, errors.NewDimensionError("LogisticRegression.Score", n, yRows, 0)
	}

	correct := 0
	for i := 0; i < n; i++ {
		if predictions.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// Coef returns a copy of the learned coefficients.
func (lr *LogisticRegression) Coef() []float64 {
	return append([]float64(nil), lr.coef_...)
}

// Intercept returns the learned intercept.
func (lr *LogisticRegression) Intercept() float64 {
	return lr.intercept_
}

// Classes returns the sorted class labels seen during Fit.
func (lr *LogisticRegression) Classes() []int {
	return append([]int(nil), lr.classes_...)
}

// NIter returns the number of iterations run by the last Fit.
func (lr *LogisticRegression) NIter() int {
	return lr.nIter_
}

// IsFitted reports whether the model has been fitted or imported.
func (lr *LogisticRegression) IsFitted() bool {
	return lr.state.IsFitted()
}

// FeatureNames returns the column keys, if known.
func (lr *LogisticRegression) FeatureNames() []string {
	return append([]string(nil), lr.featureNames...)
}

// GetParams returns the model's hyperparameters
func (lr *LogisticRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"penalty":       lr.penalty,
		"C":             lr.C,
		"fit_intercept": lr.fitIntercept,
		"random_state":  lr.randomState,
		"max_iter":      lr.maxIter,
		"tol":           lr.tol,
	}
}

// SetParams sets the model's hyperparameters. Numeric values decoded from
// JSON (float64) are accepted for integer parameters.
func (lr *LogisticRegression) SetParams(params map[string]interface{}) error {
	next := *lr
	for key, value := range params {
		var ok bool
		switch key {
		case "penalty":
			next.penalty, ok = value.(string)
		case "C":
			next.C, ok = toFloat(value)
		case "fit_intercept":
			next.fitIntercept, ok = value.(bool)
		case "random_state":
			var v int
			v, ok = toInt(value)
			next.randomState = int64(v)
		case "max_iter":
			next.maxIter, ok = toInt(value)
		case "tol":
			next.tol, ok = toFloat(value)
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
		if !ok {
			return errors.NewValidationError(key, fmt.Sprintf("unexpected type %T", value), value)
		}
	}
	if err := next.validateParams(); err != nil {
		return err
	}

	lr.penalty = next.penalty
	lr.C = next.C
	lr.fitIntercept = next.fitIntercept
	lr.randomState = next.randomState
	lr.maxIter = next.maxIter
	lr.tol = next.tol
	return nil
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}

func toInt(v interface{}) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		if t == math.Trunc(t) {
			return int(t), true
		}
	}
	return 0, false
}

// ExportWeights returns the learned parameters for persistence.
func (lr *LogisticRegression) ExportWeights() (*model.ModelWeights, error) {
	if err := lr.state.RequireFitted("LogisticRegression", "ExportWeights"); err != nil {
		return nil, err
	}
	w := &model.ModelWeights{
		ModelType:       ModelType,
		Version:         WeightsVersion,
		Coefficients:    lr.Coef(),
		Intercept:       lr.intercept_,
		Classes:         lr.Classes(),
		Hyperparameters: lr.GetParams(),
		NIter:           lr.nIter_,
		IsFitted:        true,
	}
	if len(lr.featureNames) > 0 {
		w.Features = lr.FeatureNames()
	}
	return w, nil
}

// ImportWeights restores a fitted model from exported weights.
func (lr *LogisticRegression) ImportWeights(weights *model.ModelWeights) error {
	if weights == nil {
		return errors.NewValueError("LogisticRegression.ImportWeights", "weights are nil")
	}
	if weights.ModelType != ModelType {
		return errors.NewArtifactMismatchError("classifier", "model type", ModelType, weights.ModelType)
	}
	if err := weights.Validate(); err != nil {
		return errors.Wrap(err, "LogisticRegression.ImportWeights")
	}
	if !weights.IsFitted {
		return errors.NewValueError("LogisticRegression.ImportWeights", "weights are not fitted")
	}
	if weights.Classes[0] >= weights.Classes[1] {
		return errors.NewValidationError("classes", "must be two ascending labels", weights.Classes)
	}
	params := append(append([]float64(nil), weights.Coefficients...), weights.Intercept)
	var names []string
	if len(weights.Features) == len(weights.Coefficients) {
		names = append(append(names, weights.Features...), "intercept")
	}
	if err := errors.CheckVector("LogisticRegression.ImportWeights", params, names); err != nil {
		return err
	}
	if weights.Hyperparameters != nil {
		if err := lr.SetParams(weights.Hyperparameters); err != nil {
			return err
		}
	}

	lr.coef_ = append([]float64(nil), weights.Coefficients...)
	lr.intercept_ = weights.Intercept
	lr.classes_ = append([]int(nil), weights.Classes...)
	lr.nIter_ = weights.NIter
	lr.featureNames = append([]string(nil), weights.Features...)
	if len(lr.featureNames) == 0 {
		lr.featureNames = nil
	}

	lr.state.Reset()
	lr.state.SetDimensions(len(lr.coef_), 0)
	lr.state.SetFitted()
	return nil
}

// NewLogisticRegressionFromWeights builds a fitted classifier from exported weights.
func NewLogisticRegressionFromWeights(weights *model.ModelWeights) (*LogisticRegression, error) {
	lr := NewLogisticRegression()
	if err := lr.ImportWeights(weights); err != nil {
		return nil, err
	}
	return lr, nil
}

// sigmoid computes the sigmoid function without overflow.
func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1.0 / (1.0 + errors.StabilizeExp(-z))
	}
	e := errors.StabilizeExp(z)
	return e / (1.0 + e)
}

// softplus computes log(1 + exp(z)) without overflow.
func softplus(z float64) float64 {
	return math.Max(z, 0) + math.Log1p(math.Exp(-math.Abs(z)))
}
