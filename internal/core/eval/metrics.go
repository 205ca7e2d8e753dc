package eval

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// R2 is the coefficient of determination. A constant target with any
// residual scores 0 rather than dividing by zero.
func R2(yTrue, yPred []float64) float64 {
	mean := stat.Mean(yTrue, nil)
	var ssRes, ssTot float64
	for i := range yTrue {
		d := yTrue[i] - yPred[i]
		ssRes += d * d
		t := yTrue[i] - mean
		ssTot += t * t
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1.0
		}
		return 0.0
	}
	return 1.0 - ssRes/ssTot
}

func MAE(yTrue, yPred []float64) float64 {
	var total float64
	for i := range yTrue {
		total += math.Abs(yTrue[i] - yPred[i])
	}
	if len(yTrue) == 0 {
		return 0
	}
	return total / float64(len(yTrue))
}

func f1FromCounts(tp, fp, fn float64) float64 {
	denom := 2*tp + fp + fn
	if denom == 0 {
		return 0
	}
	return 2 * tp / denom
}

func binaryCounts(yTrue, yPred []int) (tp, fp, fn float64) {
	for i := range yTrue {
		switch {
		case yPred[i] == 1 && yTrue[i] == 1:
			tp++
		case yPred[i] == 1 && yTrue[i] == 0:
			fp++
		case yPred[i] == 0 && yTrue[i] == 1:
			fn++
		}
	}
	return tp, fp, fn
}

// MultiLabelF1Micro pools true/false positives across every label before
// computing a single F1.
func MultiLabelF1Micro(yTrue, yPred [][]int) float64 {
	var tp, fp, fn float64
	for i := range yTrue {
		for j := range yTrue[i] {
			switch {
			case yPred[i][j] == 1 && yTrue[i][j] == 1:
				tp++
			case yPred[i][j] == 1 && yTrue[i][j] == 0:
				fp++
			case yPred[i][j] == 0 && yTrue[i][j] == 1:
				fn++
			}
		}
	}
	return f1FromCounts(tp, fp, fn)
}

// MultiLabelF1Macro averages per-label F1, scoring labels with no positive
// predictions or truths as 0.
func MultiLabelF1Macro(yTrue, yPred [][]int) float64 {
	if len(yTrue) == 0 || len(yTrue[0]) == 0 {
		return 0
	}
	numLabels := len(yTrue[0])
	scores := make([]float64, numLabels)
	for j := 0; j < numLabels; j++ {
		colTrue := make([]int, len(yTrue))
		colPred := make([]int, len(yTrue))
		for i := range yTrue {
			colTrue[i] = yTrue[i][j]
			colPred[i] = yPred[i][j]
		}
		scores[j] = f1FromCounts(binaryCounts(colTrue, colPred))
	}
	return stat.Mean(scores, nil)
}

func Accuracy(yTrue, yPred []string) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	var correct float64
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	return correct / float64(len(yTrue))
}

func classF1(yTrue, yPred []string, class string) (f1, support float64) {
	var tp, fp, fn float64
	for i := range yTrue {
		switch {
		case yPred[i] == class && yTrue[i] == class:
			tp++
		case yPred[i] == class && yTrue[i] != class:
			fp++
		case yPred[i] != class && yTrue[i] == class:
			fn++
		}
	}
	return f1FromCounts(tp, fp, fn), tp + fn
}

// MultiClassF1Macro averages one-vs-rest F1 across classes.
func MultiClassF1Macro(yTrue, yPred []string, classes []string) float64 {
	if len(classes) == 0 {
		return 0
	}
	scores := make([]float64, len(classes))
	for i, class := range classes {
		scores[i], _ = classF1(yTrue, yPred, class)
	}
	return stat.Mean(scores, nil)
}

// MultiClassF1Weighted weights each class's F1 by its support.
func MultiClassF1Weighted(yTrue, yPred []string, classes []string) float64 {
	var weighted, totalSupport float64
	for _, class := range classes {
		f1, support := classF1(yTrue, yPred, class)
		weighted += f1 * support
		totalSupport += support
	}
	if totalSupport == 0 {
		return 0
	}
	return weighted / totalSupport
}

// ConfusionMatrix returns the row-normalized confusion matrix in the given
// class order. Rows with no true samples stay all zero.
func ConfusionMatrix(yTrue, yPred []string, classes []string) [][]float64 {
	classIdx := make(map[string]int, len(classes))
	for i, c := range classes {
		classIdx[c] = i
	}
	counts := make([][]float64, len(classes))
	for i := range counts {
		counts[i] = make([]float64, len(classes))
	}
	for i := range yTrue {
		ti, tok := classIdx[yTrue[i]]
		pi, pok := classIdx[yPred[i]]
		if tok && pok {
			counts[ti][pi]++
		}
	}
	for i := range counts {
		var rowTotal float64
		for _, v := range counts[i] {
			rowTotal += v
		}
		if rowTotal > 0 {
			for j := range counts[i] {
				counts[i][j] /= rowTotal
			}
		}
	}
	return counts
}

// PRPoint is one operating point on a precision-recall curve.
type PRPoint struct {
	Recall    float64 `json:"recall"`
	Precision float64 `json:"precision"`
}

// PRCurve walks thresholds from the highest score down, grouping ties, and
// prepends the conventional (recall 0, precision 1) start point.
func PRCurve(yTrue []int, scores []float64) []PRPoint {
	var totalPos float64
	for _, v := range yTrue {
		if v == 1 {
			totalPos++
		}
	}
	if totalPos == 0 {
		return []PRPoint{{Recall: 0, Precision: 0}, {Recall: 1, Precision: 0}}
	}

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	points := []PRPoint{{Recall: 0, Precision: 1}}
	var tp, fp float64
	i := 0
	for i < len(order) {
		j := i
		for j < len(order) && scores[order[j]] == scores[order[i]] {
			if yTrue[order[j]] == 1 {
				tp++
			} else {
				fp++
			}
			j++
		}
		points = append(points, PRPoint{Recall: tp / totalPos, Precision: tp / (tp + fp)})
		i = j
	}
	return points
}

// AveragePrecision summarizes a precision-recall curve as the
// precision-weighted sum of recall increments, matching the step-function
// interpolation of the curve. Labels with no positives score 0.
func AveragePrecision(yTrue []int, scores []float64) float64 {
	points := PRCurve(yTrue, scores)
	var totalPos float64
	for _, v := range yTrue {
		if v == 1 {
			totalPos++
		}
	}
	if totalPos == 0 {
		return 0
	}
	var ap, prevRecall float64
	for _, p := range points[1:] {
		ap += (p.Recall - prevRecall) * p.Precision
		prevRecall = p.Recall
	}
	return ap
}
