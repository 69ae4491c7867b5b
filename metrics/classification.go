// Package metrics は分類器の評価指標を提供する
package metrics

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/cytodash/pkg/errors"
)

// logLossEps はlog(0)を避けるための確率のクリップ幅
const logLossEps = 1e-15

// checkPair は長さが一致する空でないベクトルかを検証する
func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil || yTrue.Len() == 0 {
		return 0, errors.NewValueError(op, "empty vector")
	}
	n := yTrue.Len()
	if yPred.Len() != n {
		return 0, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return n, nil
}

// checkBinaryLabels はyTrueが0/1のみで構成されているかを検証する
func checkBinaryLabels(op string, yTrue *mat.VecDense) error {
	for i := 0; i < yTrue.Len(); i++ {
		if v := yTrue.AtVec(i); v != 0 && v != 1 {
			return errors.NewValueError(op, fmt.Sprintf("labels must be 0 or 1, got %v at index %d", v, i))
		}
	}
	return nil
}

// Accuracy は正解率を計算する
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("Accuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// ClassificationError は誤分類率（1 - Accuracy）を計算する
func ClassificationError(yTrue, yPred *mat.VecDense) (float64, error) {
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return 1 - acc, nil
}

// AUC はROC曲線下面積を計算する（同順位は平均順位で扱う）
// 正例または負例しかない場合は定義できないため0.5を返す
func AUC(yTrue, yScore *mat.VecDense) (float64, error) {
	n, err := checkPair("AUC", yTrue, yScore)
	if err != nil {
		return 0, err
	}
	if err := checkBinaryLabels("AUC", yTrue); err != nil {
		return 0, err
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return yScore.AtVec(idx[a]) < yScore.AtVec(idx[b])
	})

	// Mann-Whitney U: 正例の順位和から計算する
	var rankSumPos float64
	nPos := 0
	for i := 0; i < n; {
		j := i
		for j+1 < n && yScore.AtVec(idx[j+1]) == yScore.AtVec(idx[i]) {
			j++
		}
		avgRank := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			if yTrue.AtVec(idx[k]) == 1 {
				rankSumPos += avgRank
				nPos++
			}
		}
		i = j + 1
	}

	nNeg := n - nPos
	if nPos == 0 || nNeg == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("AUC", "only one class present in y_true", 0.5))
		return 0.5, nil
	}

	u := rankSumPos - float64(nPos*(nPos+1))/2
	return u / float64(nPos*nNeg), nil
}

// BinaryLogLoss は二値分類の対数損失を計算する
// yPredは正例の確率で、[eps, 1-eps]にクリップされる
func BinaryLogLoss(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("BinaryLogLoss", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	if err := checkBinaryLabels("BinaryLogLoss", yTrue); err != nil {
		return 0, err
	}

	var sum float64
	for i := 0; i < n; i++ {
		p := errors.ClipValue(yPred.AtVec(i), logLossEps, 1-logLossEps)
		if yTrue.AtVec(i) == 1 {
			sum -= math.Log(p)
		} else {
			sum -= math.Log(1 - p)
		}
	}
	return sum / float64(n), nil
}

// ConfusionMatrix は混同行列。Counts[i][j]は真のラベルがLabels[i]で
// 予測がLabels[j]のサンプル数
type ConfusionMatrix struct {
	Labels []int
	Counts [][]int
}

// NewConfusionMatrix はyTrueとyPredに現れるラベル（昇順）で混同行列を作る
func NewConfusionMatrix(yTrue, yPred *mat.VecDense) (*ConfusionMatrix, error) {
	n, err := checkPair("ConfusionMatrix", yTrue, yPred)
	if err != nil {
		return nil, err
	}

	values := make([]int, 0, 2*n)
	for i := 0; i < n; i++ {
		values = append(values, int(yTrue.AtVec(i)), int(yPred.AtVec(i)))
	}
	labels := lo.Uniq(values)
	slices.Sort(labels)

	pos := make(map[int]int, len(labels))
	for i, l := range labels {
		pos[l] = i
	}

	counts := make([][]int, len(labels))
	for i := range counts {
		counts[i] = make([]int, len(labels))
	}
	for i := 0; i < n; i++ {
		counts[pos[int(yTrue.AtVec(i))]][pos[int(yPred.AtVec(i))]]++
	}
	return &ConfusionMatrix{Labels: labels, Counts: counts}, nil
}

// At はラベル同士のセル値を返す。未知のラベルは0
func (cm *ConfusionMatrix) At(trueLabel, predLabel int) int {
	i := slices.Index(cm.Labels, trueLabel)
	j := slices.Index(cm.Labels, predLabel)
	if i < 0 || j < 0 {
		return 0
	}
	return cm.Counts[i][j]
}

// ClassMetrics は1クラス分の適合率・再現率・F1とサポート数
type ClassMetrics struct {
	Label     int     `json:"label"`
	Name      string  `json:"name"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1_score"`
	Support   int     `json:"support"`
}

// AverageMetrics はクラス平均の指標
type AverageMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1_score"`
	Support   int     `json:"support"`
}

// Report はscikit-learnのclassification_report相当の集計結果
type Report struct {
	Classes     []ClassMetrics `json:"classes"`
	Accuracy    float64        `json:"accuracy"`
	MacroAvg    AverageMetrics `json:"macro_avg"`
	WeightedAvg AverageMetrics `json:"weighted_avg"`
}

// ClassificationReport はクラスごとの適合率・再現率・F1を計算する
// targetNamesはラベル昇順のクラス名（省略時はラベル値を使う）
// 分母が0になる指標は0としてUndefinedMetricWarningを出す
func ClassificationReport(yTrue, yPred *mat.VecDense, targetNames []string) (*Report, error) {
	cm, err := NewConfusionMatrix(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	if targetNames != nil && len(targetNames) != len(cm.Labels) {
		return nil, errors.NewDimensionError("ClassificationReport", len(cm.Labels), len(targetNames), 0)
	}

	k := len(cm.Labels)
	report := &Report{Classes: make([]ClassMetrics, k)}
	total, correct := 0, 0

	for i, label := range cm.Labels {
		tp := cm.Counts[i][i]
		support, predicted := 0, 0
		for j := 0; j < k; j++ {
			support += cm.Counts[i][j]
			predicted += cm.Counts[j][i]
		}

		name := fmt.Sprint(label)
		if targetNames != nil {
			name = targetNames[i]
		}

		precision := safeRatio("precision", name, "no predicted samples", tp, predicted)
		recall := safeRatio("recall", name, "no true samples", tp, support)
		f1 := 0.0
		if precision+recall > 0 {
			f1 = 2 * precision * recall / (precision + recall)
		}

		report.Classes[i] = ClassMetrics{
			Label: label, Name: name,
			Precision: precision, Recall: recall, F1: f1,
			Support: support,
		}
		total += support
		correct += tp
	}

	report.Accuracy = float64(correct) / float64(total)
	for _, c := range report.Classes {
		report.MacroAvg.Precision += c.Precision / float64(k)
		report.MacroAvg.Recall += c.Recall / float64(k)
		report.MacroAvg.F1 += c.F1 / float64(k)

		w := float64(c.Support) / float64(total)
		report.WeightedAvg.Precision += c.Precision * w
		report.WeightedAvg.Recall += c.Recall * w
		report.WeightedAvg.F1 += c.F1 * w
	}
	report.MacroAvg.Support = total
	report.WeightedAvg.Support = total
	return report, nil
}

func safeRatio(metric, class, condition string, num, den int) float64 {
	if den == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning(
			fmt.Sprintf("%s[%s]", metric, class), condition, 0))
		return 0
	}
	return float64(num) / float64(den)
}

// String はscikit-learnと同じ体裁の表を返す
func (r *Report) String() string {
	width := len("weighted avg")
	for _, c := range r.Classes {
		width = max(width, len(c.Name))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%*s %9s %9s %9s %9s\n\n", width, "", "precision", "recall", "f1-score", "support")
	for _, c := range r.Classes {
		fmt.Fprintf(&b, "%*s %9.2f %9.2f %9.2f %9d\n", width, c.Name, c.Precision, c.Recall, c.F1, c.Support)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%*s %9s %9s %9.2f %9d\n", width, "accuracy", "", "", r.Accuracy, r.MacroAvg.Support)
	fmt.Fprintf(&b, "%*s %9.2f %9.2f %9.2f %9d\n", width, "macro avg",
		r.MacroAvg.Precision, r.MacroAvg.Recall, r.MacroAvg.F1, r.MacroAvg.Support)
	fmt.Fprintf(&b, "%*s %9.2f %9.2f %9.2f %9d\n", width, "weighted avg",
		r.WeightedAvg.Precision, r.WeightedAvg.Recall, r.WeightedAvg.F1, r.WeightedAvg.Support)
	return b.String()
}
