// Package eval measures held-out quality for the three models and extracts
// the top discriminative terms from their linear sub-models. Nothing here is
// used at serving time.
package eval

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"orgrisk-backend/internal/core"
	"orgrisk-backend/internal/core/textfeat"
)

// RoleMetrics carries per-bucket scores plus a "macro" key averaging them.
type RoleMetrics struct {
	R2  map[string]float64 `json:"r2"`
	MAE map[string]float64 `json:"mae"`
}

func EvaluateRole(model *core.RoleModel, x *textfeat.Matrix, yTrue [][]float64, buckets []string) (*RoleMetrics, error) {
	if len(yTrue) != x.NumRows {
		return nil, fmt.Errorf("have %d target rows for %d feature rows", len(yTrue), x.NumRows)
	}
	yPred, err := model.PredictSharesMatrix(x)
	if err != nil {
		return nil, err
	}

	metrics := &RoleMetrics{
		R2:  make(map[string]float64, len(buckets)+1),
		MAE: make(map[string]float64, len(buckets)+1),
	}
	r2s := make([]float64, len(buckets))
	maes := make([]float64, len(buckets))
	colTrue := make([]float64, len(yTrue))
	colPred := make([]float64, len(yTrue))
	for j, bucket := range buckets {
		for i := range yTrue {
			colTrue[i] = yTrue[i][j]
			colPred[i] = yPred[i][j]
		}
		r2s[j] = R2(colTrue, colPred)
		maes[j] = MAE(colTrue, colPred)
		metrics.R2[bucket] = r2s[j]
		metrics.MAE[bucket] = maes[j]
	}
	metrics.R2["macro"] = stat.Mean(r2s, nil)
	metrics.MAE["macro"] = stat.Mean(maes, nil)
	return metrics, nil
}

type NarrativeMetrics struct {
	F1Micro float64            `json:"f1_micro"`
	F1Macro float64            `json:"f1_macro"`
	PRAUC   map[string]float64 `json:"pr_auc"`

	// PRCurves carries the raw curve points so plots can be regenerated
	// from the metrics file alone.
	PRCurves map[string][]PRPoint `json:"pr_curves"`
}

// EvaluateNarrative scores the classifier at the reporting threshold.
// Labels without a positive example in the test set get PR-AUC 0 instead of
// an undefined value.
func EvaluateNarrative(model *core.NarrativeModel, x *textfeat.Matrix, yTrue [][]int, labels []string, threshold float64) (*NarrativeMetrics, error) {
	if len(yTrue) != x.NumRows {
		return nil, fmt.Errorf("have %d target rows for %d feature rows", len(yTrue), x.NumRows)
	}
	probs, err := model.PredictProbsMatrix(x)
	if err != nil {
		return nil, err
	}
	yPred := make([][]int, len(probs))
	for i, row := range probs {
		yPred[i] = core.Flags(row, threshold)
	}

	metrics := &NarrativeMetrics{
		F1Micro:  MultiLabelF1Micro(yTrue, yPred),
		F1Macro:  MultiLabelF1Macro(yTrue, yPred),
		PRAUC:    make(map[string]float64, len(labels)),
		PRCurves: make(map[string][]PRPoint, len(labels)),
	}
	colTrue := make([]int, len(yTrue))
	colProb := make([]float64, len(yTrue))
	for j, label := range labels {
		positives := 0
		for i := range yTrue {
			colTrue[i] = yTrue[i][j]
			colProb[i] = probs[i][j]
			positives += yTrue[i][j]
		}
		if positives == 0 {
			metrics.PRAUC[label] = 0.0
			metrics.PRCurves[label] = []PRPoint{{Recall: 0, Precision: 0}, {Recall: 1, Precision: 0}}
			continue
		}
		metrics.PRAUC[label] = AveragePrecision(colTrue, colProb)
		metrics.PRCurves[label] = PRCurve(colTrue, colProb)
	}
	return metrics, nil
}

type RiskMetrics struct {
	Accuracy   float64 `json:"accuracy"`
	F1Macro    float64 `json:"f1_macro"`
	F1Weighted float64 `json:"f1_weighted"`

	Classes   []string    `json:"classes"`
	Confusion [][]float64 `json:"confusion_matrix"`
}

// EvaluateRisk scores the calibrated classifier's arg-max predictions. The
// confusion matrix is row-normalized in the order of classes.
func EvaluateRisk(model *core.RiskModel, x *textfeat.Matrix, yTrue []string, classes []string) (*RiskMetrics, error) {
	if len(yTrue) != x.NumRows {
		return nil, fmt.Errorf("have %d target rows for %d feature rows", len(yTrue), x.NumRows)
	}
	yPred := make([]string, x.NumRows)
	for i := 0; i < x.NumRows; i++ {
		probs, err := model.PredictProbs(x.Row(i))
		if err != nil {
			return nil, err
		}
		yPred[i] = model.ArgMaxClass(probs)
	}
	return &RiskMetrics{
		Accuracy:   Accuracy(yTrue, yPred),
		F1Macro:    MultiClassF1Macro(yTrue, yPred, classes),
		F1Weighted: MultiClassF1Weighted(yTrue, yPred, classes),
		Classes:    classes,
		Confusion:  ConfusionMatrix(yTrue, yPred, classes),
	}, nil
}
