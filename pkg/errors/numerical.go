package errors

import (
	"math"
)

// Matrix は CheckMatrix が読む行列。gonum の mat.Matrix が満たす。
type Matrix interface {
	Dims() (r, c int)
	At(i, j int) float64
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func featureAt(names []string, j int) string {
	if j < len(names) {
		return names[j]
	}
	return ""
}

// CheckColumn は1つの特徴量の列を検査する。最初のNaN/Infについて、
// 特徴量名・列番号・行番号（1始まり）を持つエラーを返す。
func CheckColumn(operation, feature string, index int, values []float64) error {
	for i, v := range values {
		if !finite(v) {
			return NewFeatureInstabilityError(operation, feature, index, i+1, v)
		}
	}
	return nil
}

// CheckVector は1サンプル分の特徴量ベクトルを検査する。names[j] は
// values[j] の特徴量名で、nil や短いスライスでもよい。
func CheckVector(operation string, values []float64, names []string) error {
	for j, v := range values {
		if !finite(v) {
			return NewFeatureInstabilityError(operation, featureAt(names, j), j, 0, v)
		}
	}
	return nil
}

// CheckMatrix は行列の全要素を行順に検査し、最初のNaN/Infの位置を返す。
// 列 j の特徴量名は names[j]。
func CheckMatrix(operation string, m Matrix, names []string) error {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := m.At(i, j); !finite(v) {
				return NewFeatureInstabilityError(operation, featureAt(names, j), j, i+1, v)
			}
		}
	}
	return nil
}

// ClipValue clips a value to the range [min, max].
func ClipValue(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// StabilizeExp computes exp with protection against overflow.
// Clips the input to prevent exp from returning Inf.
func StabilizeExp(value float64) float64 {
	const maxExp = 700.0 // exp(700) is close to the maximum float64
	if value > maxExp {
		return math.Exp(maxExp)
	}
	if value < -maxExp {
		return 0
	}
	return math.Exp(value)
}
