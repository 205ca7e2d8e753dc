package core

import (
	"fmt"

	"orgrisk-backend/internal/core/linear"
	"orgrisk-backend/internal/core/textfeat"
)

// Serving flags fire at a much lower probability than the reporting
// threshold used for offline metrics. Keep the two apart.
const (
	DefaultNarrativeThreshold        = 0.5
	DefaultNarrativeServingThreshold = 0.10
)

// NarrativeModel is one independent balanced binary logistic classifier per
// narrative label over the shared feature space.
type NarrativeModel struct {
	Labels []string           `json:"labels"`
	Models []*linear.Logistic `json:"models"`
}

func FitNarrativeModel(x *textfeat.Matrix, flags [][]int, labels []string) (*NarrativeModel, error) {
	if len(flags) != x.NumRows {
		return nil, fmt.Errorf("flag rows (%d) do not match feature rows (%d)", len(flags), x.NumRows)
	}
	config := linear.DefaultLogisticConfig()
	models := make([]*linear.Logistic, len(labels))
	y := make([]bool, x.NumRows)
	for li, label := range labels {
		for i, row := range flags {
			if len(row) != len(labels) {
				return nil, fmt.Errorf("flag row %d has %d labels, expected %d", i, len(row), len(labels))
			}
			y[i] = row[li] == 1
		}
		model, err := linear.FitLogistic(x, y, config)
		if err != nil {
			return nil, fmt.Errorf("fitting narrative classifier for %q: %w", label, err)
		}
		models[li] = model
	}
	return &NarrativeModel{Labels: labels, Models: models}, nil
}

// PredictProbs returns the per-label sigmoid probability, parallel to Labels.
func (m *NarrativeModel) PredictProbs(vec textfeat.SparseVec) ([]float64, error) {
	if m == nil || len(m.Models) == 0 {
		return nil, ErrNotFitted
	}
	out := make([]float64, len(m.Models))
	for i, sub := range m.Models {
		out[i] = sub.Prob(vec)
	}
	return out, nil
}

func (m *NarrativeModel) PredictProbsMatrix(x *textfeat.Matrix) ([][]float64, error) {
	if m == nil || len(m.Models) == 0 {
		return nil, ErrNotFitted
	}
	out := make([][]float64, x.NumRows)
	for i := 0; i < x.NumRows; i++ {
		probs, err := m.PredictProbs(x.Row(i))
		if err != nil {
			return nil, err
		}
		out[i] = probs
	}
	return out, nil
}

// Flags thresholds probabilities into 0/1 decisions.
func Flags(probs []float64, threshold float64) []int {
	out := make([]int, len(probs))
	for i, p := range probs {
		if p >= threshold {
			out[i] = 1
		}
	}
	return out
}

func (m *NarrativeModel) Coefficients(label string) ([]float64, bool) {
	if m == nil {
		return nil, false
	}
	for i, l := range m.Labels {
		if l == label {
			return m.Models[i].Weights, true
		}
	}
	return nil, false
}

func SaveNarrativeModel(path string, m *NarrativeModel) error {
	return saveJSON(path, m)
}

func LoadNarrativeModel(path string) (*NarrativeModel, error) {
	var m NarrativeModel
	if err := loadJSON(path, &m); err != nil {
		return nil, err
	}
	if len(m.Labels) == 0 || len(m.Models) != len(m.Labels) {
		return nil, fmt.Errorf("narrative model at %s is incomplete", path)
	}
	return &m, nil
}
