package core

import (
	"fmt"
	"math"

	"orgrisk-backend/internal/core/linear"
	"orgrisk-backend/internal/core/textfeat"
)

// RoleModel predicts the share of commenters per professional-role bucket.
// It is a multi-output ridge regression over the shared feature space whose
// raw outputs are normalized into a valid distribution.
type RoleModel struct {
	Buckets []string           `json:"buckets"`
	Ridge   *linear.MultiRidge `json:"ridge"`
}

func FitRoleModel(x *textfeat.Matrix, shares [][]float64, buckets []string) (*RoleModel, error) {
	for i, row := range shares {
		if len(row) != len(buckets) {
			return nil, fmt.Errorf("share row %d has %d buckets, expected %d", i, len(row), len(buckets))
		}
	}
	ridge, err := linear.FitMultiRidge(x, shares, linear.DefaultAlphas())
	if err != nil {
		return nil, fmt.Errorf("fitting role ridge: %w", err)
	}
	return &RoleModel{Buckets: buckets, Ridge: ridge}, nil
}

// PredictShares returns a per-bucket distribution for one input. Raw ridge
// outputs that already form a distribution pass through unchanged; anything
// else goes through a numerically stable softmax.
func (m *RoleModel) PredictShares(vec textfeat.SparseVec) ([]float64, error) {
	if m == nil || m.Ridge == nil {
		return nil, ErrNotFitted
	}
	raw, err := m.Ridge.Predict(vec)
	if err != nil {
		return nil, err
	}
	return NormalizeDistribution(raw), nil
}

func (m *RoleModel) PredictSharesMatrix(x *textfeat.Matrix) ([][]float64, error) {
	if m == nil || m.Ridge == nil {
		return nil, ErrNotFitted
	}
	out := make([][]float64, x.NumRows)
	for i := 0; i < x.NumRows; i++ {
		shares, err := m.PredictShares(x.Row(i))
		if err != nil {
			return nil, err
		}
		out[i] = shares
	}
	return out, nil
}

// Coefficients returns the ridge weight vector for one bucket.
func (m *RoleModel) Coefficients(bucket string) ([]float64, bool) {
	if m == nil || m.Ridge == nil {
		return nil, false
	}
	for i, b := range m.Buckets {
		if b == bucket {
			return m.Ridge.Outputs[i].Weights, true
		}
	}
	return nil, false
}

// NormalizeDistribution leaves a row untouched when it is already
// non-negative and sums to 1 within tolerance, otherwise applies softmax
// (subtract max, exponentiate, divide by the sum clipped to 1e-12).
func NormalizeDistribution(raw []float64) []float64 {
	valid := true
	var sum float64
	for _, v := range raw {
		if v < 0 {
			valid = false
		}
		sum += v
	}
	if valid && math.Abs(sum-1.0) <= 1e-6 {
		out := make([]float64, len(raw))
		copy(out, raw)
		return out
	}

	max := math.Inf(-1)
	for _, v := range raw {
		if v > max {
			max = v
		}
	}
	out := make([]float64, len(raw))
	var expSum float64
	for i, v := range raw {
		out[i] = math.Exp(v - max)
		expSum += out[i]
	}
	if expSum < 1e-12 {
		expSum = 1e-12
	}
	for i := range out {
		out[i] /= expSum
	}
	return out
}

func SaveRoleModel(path string, m *RoleModel) error {
	return saveJSON(path, m)
}

func LoadRoleModel(path string) (*RoleModel, error) {
	var m RoleModel
	if err := loadJSON(path, &m); err != nil {
		return nil, err
	}
	if m.Ridge == nil || len(m.Buckets) == 0 {
		return nil, fmt.Errorf("role model at %s is incomplete", path)
	}
	return &m, nil
}
