package core

import (
	"fmt"

	"orgrisk-backend/internal/core/linear"
	"orgrisk-backend/internal/core/textfeat"
)

const riskCalibrationFolds = 3

// RiskModel is a calibrated one-vs-rest logistic classifier over the three
// risk classes. Its probabilities are the statistical estimate; the
// user-facing headline class comes from the rule-based policy instead.
type RiskModel struct {
	Calibrated *linear.CalibratedOneVsRest `json:"calibrated"`
}

func FitRiskModel(x *textfeat.Matrix, labels []string) (*RiskModel, error) {
	calibrated, err := linear.FitCalibratedOneVsRest(x, labels, linear.DefaultLogisticConfig(), riskCalibrationFolds)
	if err != nil {
		return nil, fmt.Errorf("fitting risk classifier: %w", err)
	}
	return &RiskModel{Calibrated: calibrated}, nil
}

// Classes returns the model's internal class order (lexicographic).
func (m *RiskModel) Classes() []string {
	if m == nil || m.Calibrated == nil {
		return nil
	}
	return m.Calibrated.Classes
}

// PredictProbs returns calibrated probabilities parallel to Classes,
// summing to 1.
func (m *RiskModel) PredictProbs(vec textfeat.SparseVec) ([]float64, error) {
	if m == nil || m.Calibrated == nil {
		return nil, ErrNotFitted
	}
	return m.Calibrated.PredictProba(vec), nil
}

// ProbMap spreads probabilities into a map keyed by display class names so
// the internal class order never leaks. Classes the model never saw get 0.
func (m *RiskModel) ProbMap(probs []float64, displayClasses []string) map[string]float64 {
	out := make(map[string]float64, len(displayClasses))
	for _, class := range displayClasses {
		out[class] = 0.0
	}
	for i, class := range m.Classes() {
		if i < len(probs) {
			out[class] = probs[i]
		}
	}
	return out
}

// ArgMaxClass is the statistical point estimate.
func (m *RiskModel) ArgMaxClass(probs []float64) string {
	classes := m.Classes()
	if len(classes) == 0 || len(probs) == 0 {
		return ""
	}
	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}
	return classes[best]
}

// Coefficients returns the uncalibrated weight vector of the first fold's
// linear model for a class.
func (m *RiskModel) Coefficients(class string) ([]float64, bool) {
	if m == nil || m.Calibrated == nil {
		return nil, false
	}
	return m.Calibrated.BaseCoefficients(class)
}

func SaveRiskModel(path string, m *RiskModel) error {
	return saveJSON(path, m)
}

func LoadRiskModel(path string) (*RiskModel, error) {
	var m RiskModel
	if err := loadJSON(path, &m); err != nil {
		return nil, err
	}
	if m.Calibrated == nil || len(m.Calibrated.Folds) == 0 {
		return nil, fmt.Errorf("risk model at %s is incomplete", path)
	}
	return &m, nil
}
