package preprocessing

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/cytodash/core/model"
	"github.com/YuminosukeSato/cytodash/core/parallel"
	"github.com/YuminosukeSato/cytodash/dataset"
	"github.com/YuminosukeSato/cytodash/pkg/errors"
)

// MinMaxScaler はscikit-learn互換のMin-Maxスケーラー
// データを指定した範囲（デフォルト[0,1]）にスケーリングする
//
// 変換式は (x - min) / (max - min) で、分母は範囲全体。学習範囲の外の値は
// クリップせず、そのまま範囲外（0未満や1超）の値になる。
// max == min の特徴量は分母を1として扱う。
type MinMaxScaler struct {
	state *model.StateManager

	// DataMin は学習データの最小値
	DataMin []float64

	// DataMax は学習データの最大値
	DataMax []float64

	// Scale は各特徴量の分母 (max - min)
	Scale []float64

	// FeatureNames は列の特徴量キー
	FeatureNames []string

	// FeatureRange はスケーリング後の範囲 [min, max]
	FeatureRange [2]float64
}

// NewMinMaxScaler は新しいMinMaxScalerを作成する
//
// 使用例:
//
//	scaler := preprocessing.NewMinMaxScaler([2]float64{0.0, 1.0})
//	err := scaler.FitDataset(ds)
//	normalized, err := scaler.TransformRecord(input)
func NewMinMaxScaler(featureRange [2]float64) *MinMaxScaler {
	return &MinMaxScaler{
		state:        model.NewStateManager(),
		FeatureRange: featureRange,
	}
}

// NewMinMaxScalerDefault はデフォルト設定([0,1]範囲)でMinMaxScalerを作成する
func NewMinMaxScalerDefault() *MinMaxScaler {
	return NewMinMaxScaler([2]float64{0.0, 1.0})
}

// IsFitted はスケーラーが学習済みかどうかを返す
func (m *MinMaxScaler) IsFitted() bool {
	return m.state.IsFitted()
}

// Fit は訓練データから最小値・最大値を計算する
func (m *MinMaxScaler) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("MinMaxScaler.Fit", "empty data", errors.ErrEmptyData)
	}
	if m.FeatureRange[1] <= m.FeatureRange[0] {
		return errors.NewValidationError("feature_range", "max must be greater than min", m.FeatureRange)
	}
	if m.FeatureNames != nil && len(m.FeatureNames) != c {
		return errors.NewDimensionError("MinMaxScaler.Fit", len(m.FeatureNames), c, 1)
	}

	dataMin := make([]float64, c)
	dataMax := make([]float64, c)
	scale := make([]float64, c)
	col := make([]float64, r)

	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		if err := errors.CheckColumn("MinMaxScaler.Fit", m.featureName(j), j, col); err != nil {
			return err
		}
		dataMin[j] = floats.Min(col)
		dataMax[j] = floats.Max(col)

		// 定数特徴量の場合、分母を1に設定
		scale[j] = dataMax[j] - dataMin[j]
		if scale[j] == 0 {
			scale[j] = 1.0
		}
	}

	m.DataMin, m.DataMax, m.Scale = dataMin, dataMax, scale
	m.state.SetDimensions(c, r)
	m.state.SetFitted()
	return nil
}

// FitDataset はデータセットのキーを特徴量名として設定し、Xで学習する
func (m *MinMaxScaler) FitDataset(ds *dataset.LabeledDataset) error {
	m.FeatureNames = append([]string(nil), ds.Keys...)
	return m.Fit(ds.X)
}

func (m *MinMaxScaler) featureName(j int) string {
	if j < len(m.FeatureNames) {
		return m.FeatureNames[j]
	}
	return ""
}

func (m *MinMaxScaler) scaleValue(j int, v float64) float64 {
	featureRange := m.FeatureRange[1] - m.FeatureRange[0]
	return (v-m.DataMin[j])/m.Scale[j]*featureRange + m.FeatureRange[0]
}

// Transform は学習済みの統計情報を使ってデータをスケーリングする
func (m *MinMaxScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := m.state.RequireFitted("MinMaxScaler", "Transform"); err != nil {
		return nil, err
	}

	r, c := X.Dims()
	if err := m.state.RequireFeatures("MinMaxScaler.Transform", c); err != nil {
		return nil, err
	}

	result := mat.NewDense(r, c, nil)
	parallel.ParallelizeWithThreshold(r, parallel.DefaultThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			for j := 0; j < c; j++ {
				result.Set(i, j, m.scaleValue(j, X.At(i, j)))
			}
		}
	})
	return result, nil
}

// TransformRecord はレコードの各値をスケーリングし、同じキーのレコードとして返す
func (m *MinMaxScaler) TransformRecord(rec dataset.Record) (dataset.Record, error) {
	if err := m.state.RequireFitted("MinMaxScaler", "TransformRecord"); err != nil {
		return nil, err
	}
	if len(m.FeatureNames) == 0 {
		return nil, errors.NewValueError("MinMaxScaler.TransformRecord", "scaler has no feature names")
	}
	x, err := rec.Vector(m.FeatureNames)
	if err != nil {
		return nil, err
	}

	out := make(dataset.Record, len(x))
	for j, v := range x {
		out[m.FeatureNames[j]] = m.scaleValue(j, v)
	}
	return out, nil
}

// FitTransform は訓練データで学習し、同じデータを変換する
func (m *MinMaxScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := m.Fit(X); err != nil {
		return nil, err
	}
	return m.Transform(X)
}

// InverseTransform はスケーリングされたデータを元の範囲に戻す
func (m *MinMaxScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := m.state.RequireFitted("MinMaxScaler", "InverseTransform"); err != nil {
		return nil, err
	}

	r, c := X.Dims()
	if err := m.state.RequireFeatures("MinMaxScaler.InverseTransform", c); err != nil {
		return nil, err
	}

	result := mat.NewDense(r, c, nil)
	featureRange := m.FeatureRange[1] - m.FeatureRange[0]
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			std := (X.At(i, j) - m.FeatureRange[0]) / featureRange
			result.Set(i, j, std*m.Scale[j]+m.DataMin[j])
		}
	}
	return result, nil
}

// GetParams はスケーラーのパラメータを取得する
func (m *MinMaxScaler) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"feature_range": m.FeatureRange,
	}
}

var (
	_ model.InverseTransformer = (*MinMaxScaler)(nil)
	_ model.ParameterGetter    = (*MinMaxScaler)(nil)
)
