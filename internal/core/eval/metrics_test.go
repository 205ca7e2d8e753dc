package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestR2(t *testing.T) {
	assert.InDelta(t, 1.0, R2([]float64{1, 2, 3}, []float64{1, 2, 3}), 1e-12)

	// predicting the mean scores exactly 0
	assert.InDelta(t, 0.0, R2([]float64{1, 2, 3}, []float64{2, 2, 2}), 1e-12)

	// constant target: 1 on exact match, 0 otherwise
	assert.InDelta(t, 1.0, R2([]float64{2, 2}, []float64{2, 2}), 1e-12)
	assert.InDelta(t, 0.0, R2([]float64{2, 2}, []float64{1, 3}), 1e-12)

	assert.InDelta(t, 0.9486, R2([]float64{3, -0.5, 2, 7}, []float64{2.5, 0.0, 2, 8}), 1e-3)
}

func TestMAE(t *testing.T) {
	assert.InDelta(t, 0.5, MAE([]float64{3, -0.5, 2, 7}, []float64{2.5, 0.0, 2, 8}), 1e-12)
	assert.InDelta(t, 0.0, MAE(nil, nil), 1e-12)
}

func TestMultiLabelF1(t *testing.T) {
	yTrue := [][]int{{1, 0}, {0, 1}, {1, 1}, {0, 0}}
	yPred := [][]int{{1, 0}, {0, 0}, {1, 1}, {0, 1}}

	// pooled: tp=3, fp=1, fn=1
	assert.InDelta(t, 0.75, MultiLabelF1Micro(yTrue, yPred), 1e-12)

	// label 0: tp=2 fp=0 fn=0 -> 1.0; label 1: tp=1 fp=1 fn=1 -> 0.5
	assert.InDelta(t, 0.75, MultiLabelF1Macro(yTrue, yPred), 1e-12)
}

func TestMultiLabelF1ZeroDivision(t *testing.T) {
	yTrue := [][]int{{0}, {0}}
	yPred := [][]int{{0}, {0}}
	assert.Zero(t, MultiLabelF1Micro(yTrue, yPred))
	assert.Zero(t, MultiLabelF1Macro(yTrue, yPred))
}

func TestMultiClassF1(t *testing.T) {
	yTrue := []string{"a", "a", "b", "b", "c"}
	yPred := []string{"a", "b", "b", "b", "b"}
	classes := []string{"a", "b", "c"}

	assert.InDelta(t, 0.6, Accuracy(yTrue, yPred), 1e-12)

	// a: tp=1 fp=0 fn=1 -> 2/3; b: tp=2 fp=2 fn=0 -> 2/3; c: 0
	assert.InDelta(t, (2.0/3+2.0/3+0)/3, MultiClassF1Macro(yTrue, yPred, classes), 1e-12)
	assert.InDelta(t, (2*2.0/3+2*2.0/3+0)/5, MultiClassF1Weighted(yTrue, yPred, classes), 1e-12)
}

func TestConfusionMatrixRowNormalized(t *testing.T) {
	yTrue := []string{"a", "a", "b", "b"}
	yPred := []string{"a", "b", "b", "b"}
	cm := ConfusionMatrix(yTrue, yPred, []string{"a", "b", "c"})

	assert.InDelta(t, 0.5, cm[0][0], 1e-12)
	assert.InDelta(t, 0.5, cm[0][1], 1e-12)
	assert.InDelta(t, 1.0, cm[1][1], 1e-12)

	// no true "c" samples: row stays zero
	for _, v := range cm[2] {
		assert.Zero(t, v)
	}
}

func TestAveragePrecision(t *testing.T) {
	// perfect ranking
	assert.InDelta(t, 1.0, AveragePrecision([]int{0, 0, 1, 1}, []float64{0.1, 0.2, 0.8, 0.9}), 1e-12)

	// sklearn reference value for this interleaved ranking
	assert.InDelta(t, 0.8333333, AveragePrecision([]int{0, 0, 1, 1}, []float64{0.1, 0.4, 0.35, 0.8}), 1e-6)

	// no positives
	assert.Zero(t, AveragePrecision([]int{0, 0}, []float64{0.5, 0.6}))
}

func TestPRCurve(t *testing.T) {
	points := PRCurve([]int{0, 1, 1}, []float64{0.2, 0.9, 0.5})
	assert.Equal(t, PRPoint{Recall: 0, Precision: 1}, points[0])
	assert.Equal(t, PRPoint{Recall: 1, Precision: 1}, points[len(points)-2])

	last := points[len(points)-1]
	assert.InDelta(t, 1.0, last.Recall, 1e-12)
	assert.InDelta(t, 2.0/3, last.Precision, 1e-12)
}

func TestGroupFoldsKeepCompaniesTogether(t *testing.T) {
	companies := []string{"a", "a", "a", "b", "b", "c", "c", "d"}
	folds := groupFolds(companies, 2)

	seen := make(map[string]int)
	total := 0
	for f, fold := range folds {
		for _, i := range fold {
			company := companies[i]
			if prev, ok := seen[company]; ok {
				assert.Equal(t, prev, f, "company %s straddles folds", company)
			}
			seen[company] = f
			total++
		}
	}
	assert.Equal(t, len(companies), total)
}

func TestEffectiveSplits(t *testing.T) {
	assert.Equal(t, 0, effectiveSplits([]string{"a", "a"}, 5))
	assert.Equal(t, 2, effectiveSplits([]string{"a", "b"}, 5))
	assert.Equal(t, 3, effectiveSplits([]string{"a", "b", "c"}, 5))
	assert.Equal(t, 5, effectiveSplits([]string{"a", "b", "c", "d", "e", "f", "g"}, 5))
}
