// Package preprocessing provides feature scalers fitted on the cytology
// dataset: StandardScaler for classifier input and MinMaxScaler for display.
package preprocessing

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/cytodash/core/model"
	"github.com/YuminosukeSato/cytodash/core/parallel"
	"github.com/YuminosukeSato/cytodash/dataset"
	"github.com/YuminosukeSato/cytodash/pkg/errors"
	"github.com/YuminosukeSato/cytodash/pkg/log"
)

// isConstantFeature は分散が丸め誤差の範囲内かどうかを判定する。
// 閾値はサンプル数と平均の大きさに比例するため、値の小さい特徴量でも
// ばらつきがあれば定数とはみなさない。
func isConstantFeature(variance, mean float64, n int) bool {
	const eps = 0x1p-52
	bound := float64(n)*eps*variance + math.Pow(float64(n)*mean*eps, 2)
	return variance <= bound
}

// ZeroVariancePolicy は分散0の特徴量をFitでどう扱うかを決める
type ZeroVariancePolicy string

const (
	// ZeroVarianceReject はDegenerateFeatureErrorを返す（デフォルト）
	ZeroVarianceReject ZeroVariancePolicy = "reject"
	// ZeroVarianceClamp はscikit-learnと同様にスケールを1.0にして警告を出す
	ZeroVarianceClamp ZeroVariancePolicy = "clamp"
)

// ParseZeroVariancePolicy は文字列からポリシーを得る
func ParseZeroVariancePolicy(s string) (ZeroVariancePolicy, error) {
	switch p := ZeroVariancePolicy(strings.ToLower(s)); p {
	case ZeroVarianceReject, ZeroVarianceClamp:
		return p, nil
	case "":
		return ZeroVarianceReject, nil
	default:
		return "", errors.NewValidationError("zero_variance", "must be 'reject' or 'clamp'", s)
	}
}

// StandardScaler はscikit-learn互換の標準化スケーラー
// データを平均0、標準偏差1に変換する（母標準偏差、ddof=0）
//
// Fit後の状態は読み取り専用で、Transform系のメソッドは複数のgoroutineから
// 同時に呼び出してよい。FitとTransformを同時に呼び出してはいけない。
type StandardScaler struct {
	state *model.StateManager

	// Mean は各特徴量の平均値
	Mean []float64

	// Scale は各特徴量の標準偏差
	Scale []float64

	// FeatureNames は列の特徴量キー（TransformRecordの順序）
	FeatureNames []string

	// WithMean は平均を引くかどうか (デフォルト: true)
	WithMean bool

	// WithStd は標準偏差で割るかどうか (デフォルト: true)
	WithStd bool

	// ZeroVariance は分散0の特徴量の扱い
	ZeroVariance ZeroVariancePolicy

	logger log.Logger
}

// StandardScalerOption はStandardScalerの設定を変更する関数
type StandardScalerOption func(*StandardScaler)

// WithFeatureNames は列に対応する特徴量キーを設定する
func WithFeatureNames(names []string) StandardScalerOption {
	return func(s *StandardScaler) {
		s.FeatureNames = append([]string(nil), names...)
	}
}

// WithZeroVariancePolicy は分散0の特徴量の扱いを設定する
func WithZeroVariancePolicy(p ZeroVariancePolicy) StandardScalerOption {
	return func(s *StandardScaler) {
		s.ZeroVariance = p
	}
}

// WithCentering は平均を引くかどうかを設定する
func WithCentering(withMean bool) StandardScalerOption {
	return func(s *StandardScaler) {
		s.WithMean = withMean
	}
}

// WithScaling は標準偏差で割るかどうかを設定する
func WithScaling(withStd bool) StandardScalerOption {
	return func(s *StandardScaler) {
		s.WithStd = withStd
	}
}

// NewStandardScaler は新しいStandardScalerを作成する
//
// 使用例:
//
//	scaler := preprocessing.NewStandardScaler(
//	    preprocessing.WithFeatureNames(dataset.FeatureKeys()),
//	)
//	err := scaler.Fit(X)
//	XScaled, err := scaler.Transform(X)
func NewStandardScaler(opts ...StandardScalerOption) *StandardScaler {
	s := &StandardScaler{
		state:        model.NewStateManager(),
		WithMean:     true,
		WithStd:      true,
		ZeroVariance: ZeroVarianceReject,
		logger:       log.GetLoggerWithName("preprocessing.StandardScaler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsFitted はスケーラーが学習済みかどうかを返す
func (s *StandardScaler) IsFitted() bool {
	return s.state.IsFitted()
}

// NSamples はFitに使われたサンプル数を返す
func (s *StandardScaler) NSamples() int {
	_, n := s.state.GetDimensions()
	return n
}

// Fit は訓練データから統計情報（平均、標準偏差）を計算する
//
// 同じ入力からは常にビット単位で同一の平均・標準偏差が得られる。
func (s *StandardScaler) Fit(X mat.Matrix) (err error) {
	defer errors.Recover(&err, "StandardScaler.Fit")

	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("StandardScaler.Fit", "empty data", errors.ErrEmptyData)
	}
	if s.FeatureNames != nil && len(s.FeatureNames) != c {
		return errors.NewDimensionError("StandardScaler.Fit", len(s.FeatureNames), c, 1)
	}

	mean := make([]float64, c)
	scale := make([]float64, c)
	col := make([]float64, r)

	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		if err := errors.CheckColumn("StandardScaler.Fit", s.featureName(j), j, col); err != nil {
			return err
		}
		m, std := stat.PopMeanStdDev(col, nil)

		if s.WithMean {
			mean[j] = m
		}

		if !s.WithStd {
			scale[j] = 1.0
			continue
		}

		// 分散0の場合はポリシーに従う（ゼロ除算を避ける）
		if isConstantFeature(std*std, m, r) {
			name := s.featureName(j)
			if s.ZeroVariance != ZeroVarianceClamp {
				return errors.NewDegenerateFeatureError("StandardScaler.Fit", name, j, std)
			}
			errors.Warn(errors.NewZeroVarianceWarning(name))
			std = 1.0
		}
		scale[j] = std
	}

	s.Mean = mean
	s.Scale = scale
	s.state.SetDimensions(c, r)
	s.state.SetFitted()

	s.logger.Debug("scaler fitted",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, r,
		log.FeaturesKey, c,
	)
	return nil
}

// FitDataset はデータセットのキーを特徴量名として設定し、Xで学習する
func (s *StandardScaler) FitDataset(ds *dataset.LabeledDataset) error {
	s.FeatureNames = append([]string(nil), ds.Keys...)
	return s.Fit(ds.X)
}

func (s *StandardScaler) featureName(j int) string {
	if j < len(s.FeatureNames) {
		return s.FeatureNames[j]
	}
	return fmt.Sprintf("x%d", j)
}

// Transform は学習済みの統計情報を使ってデータを標準化する
// 大きな行列では行ごとに並列に処理する
func (s *StandardScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.state.RequireFitted("StandardScaler", "Transform"); err != nil {
		return nil, err
	}

	r, c := X.Dims()
	if err := s.state.RequireFeatures("StandardScaler.Transform", c); err != nil {
		return nil, err
	}

	result := mat.NewDense(r, c, nil)
	parallel.ParallelizeWithThreshold(r, parallel.DefaultThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			for j := 0; j < c; j++ {
				result.Set(i, j, (X.At(i, j)-s.Mean[j])/s.Scale[j])
			}
		}
	})

	if err := errors.CheckMatrix("StandardScaler.Transform", result, s.FeatureNames); err != nil {
		return nil, err
	}
	return result, nil
}

// TransformVector は1サンプル分のベクトルを標準化する
func (s *StandardScaler) TransformVector(x []float64) ([]float64, error) {
	if err := s.state.RequireFitted("StandardScaler", "TransformVector"); err != nil {
		return nil, err
	}
	if err := s.state.RequireFeatures("StandardScaler.TransformVector", len(x)); err != nil {
		return nil, err
	}

	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	if err := errors.CheckVector("StandardScaler.TransformVector", out, s.FeatureNames); err != nil {
		return nil, err
	}
	return out, nil
}

// TransformRecord はレコードをFeatureNamesの順に並べて標準化する。
// 分類器に渡すベクトルはこの順序でなければならない。
func (s *StandardScaler) TransformRecord(rec dataset.Record) ([]float64, error) {
	if len(s.FeatureNames) == 0 {
		return nil, errors.NewValueError("StandardScaler.TransformRecord", "scaler has no feature names")
	}
	x, err := rec.Vector(s.FeatureNames)
	if err != nil {
		return nil, err
	}
	return s.TransformVector(x)
}

// FitTransform は訓練データで学習し、同じデータを変換する
func (s *StandardScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// InverseTransform は標準化されたデータを元のスケールに戻す
func (s *StandardScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.state.RequireFitted("StandardScaler", "InverseTransform"); err != nil {
		return nil, err
	}

	r, c := X.Dims()
	if err := s.state.RequireFeatures("StandardScaler.InverseTransform", c); err != nil {
		return nil, err
	}

	result := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			result.Set(i, j, X.At(i, j)*s.Scale[j]+s.Mean[j])
		}
	}
	return result, nil
}

// GetParams はスケーラーのパラメータを取得する
func (s *StandardScaler) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"with_mean":     s.WithMean,
		"with_std":      s.WithStd,
		"zero_variance": string(s.ZeroVariance),
	}
}

// String はスケーラーの文字列表現を返す
func (s *StandardScaler) String() string {
	if !s.IsFitted() {
		return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t)", s.WithMean, s.WithStd)
	}
	nFeatures, _ := s.state.GetDimensions()
	return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t, n_features=%d)",
		s.WithMean, s.WithStd, nFeatures)
}

// StandardScalerParams は学習済みStandardScalerの数値パラメータ（永続化用）
type StandardScalerParams struct {
	FeatureNames []string  `json:"feature_names"`
	Mean         []float64 `json:"mean"`
	Scale        []float64 `json:"scale"`
	NSamples     int       `json:"n_samples"`
	WithMean     bool      `json:"with_mean"`
	WithStd      bool      `json:"with_std"`
	ZeroVariance string    `json:"zero_variance"`
}

// Params は学習済みパラメータのコピーを返す
func (s *StandardScaler) Params() (StandardScalerParams, error) {
	if err := s.state.RequireFitted("StandardScaler", "Params"); err != nil {
		return StandardScalerParams{}, err
	}
	return StandardScalerParams{
		FeatureNames: append([]string(nil), s.FeatureNames...),
		Mean:         append([]float64(nil), s.Mean...),
		Scale:        append([]float64(nil), s.Scale...),
		NSamples:     s.NSamples(),
		WithMean:     s.WithMean,
		WithStd:      s.WithStd,
		ZeroVariance: string(s.ZeroVariance),
	}, nil
}

// NewStandardScalerFromParams は保存済みパラメータから学習済みスケーラーを復元する
func NewStandardScalerFromParams(p StandardScalerParams) (*StandardScaler, error) {
	n := len(p.Mean)
	if n == 0 {
		return nil, errors.NewValidationError("mean", "must not be empty", n)
	}
	if len(p.Scale) != n {
		return nil, errors.NewDimensionError("NewStandardScalerFromParams", n, len(p.Scale), 1)
	}
	if p.FeatureNames != nil && len(p.FeatureNames) != n {
		return nil, errors.NewDimensionError("NewStandardScalerFromParams", n, len(p.FeatureNames), 1)
	}
	for j, v := range p.Scale {
		if !(v > 0) || math.IsInf(v, 0) {
			return nil, errors.NewValidationError("scale", fmt.Sprintf("entry %d must be positive and finite", j), v)
		}
	}
	if err := errors.CheckVector("NewStandardScalerFromParams", p.Mean, p.FeatureNames); err != nil {
		return nil, err
	}
	policy, err := ParseZeroVariancePolicy(p.ZeroVariance)
	if err != nil {
		return nil, err
	}

	s := NewStandardScaler(WithFeatureNames(p.FeatureNames), WithZeroVariancePolicy(policy),
		WithCentering(p.WithMean), WithScaling(p.WithStd))
	s.Mean = append([]float64(nil), p.Mean...)
	s.Scale = append([]float64(nil), p.Scale...)
	s.state.SetDimensions(n, p.NSamples)
	s.state.SetFitted()
	return s, nil
}

var (
	_ model.InverseTransformer = (*StandardScaler)(nil)
	_ model.ParameterGetter    = (*StandardScaler)(nil)
)
