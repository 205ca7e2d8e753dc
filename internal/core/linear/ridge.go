package linear

import (
	"errors"
	"fmt"
	"math"

	"orgrisk-backend/internal/core/textfeat"

	"gonum.org/v1/gonum/mat"
)

var ErrNoTrainingData = errors.New("no training data")

// LogSpace returns num values spaced evenly on a log10 scale between 10^min
// and 10^max, inclusive.
func LogSpace(min, max float64, num int) []float64 {
	if num == 1 {
		return []float64{math.Pow(10, min)}
	}
	out := make([]float64, num)
	step := (max - min) / float64(num-1)
	for i := range out {
		out[i] = math.Pow(10, min+float64(i)*step)
	}
	return out
}

// DefaultAlphas is the regularization grid searched during ridge fitting.
func DefaultAlphas() []float64 { return LogSpace(-3, 3, 13) }

type RidgeOutput struct {
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
	Alpha     float64   `json:"alpha"`
}

// MultiRidge is a set of independent ridge regressions sharing one feature
// space, one per output column.
type MultiRidge struct {
	NumFeatures int           `json:"num_features"`
	Outputs     []RidgeOutput `json:"outputs"`
}

// FitMultiRidge fits one ridge regression per target column. The
// regularization strength is chosen per column by efficient leave-one-out
// cross validation over the alpha grid, using a single eigendecomposition of
// the Gram matrix X·Xᵀ. Intercepts come from centering the targets.
func FitMultiRidge(x *textfeat.Matrix, targets [][]float64, alphas []float64) (*MultiRidge, error) {
	n := x.NumRows
	if n == 0 {
		return nil, ErrNoTrainingData
	}
	if len(targets) != n {
		return nil, fmt.Errorf("target rows (%d) do not match feature rows (%d)", len(targets), n)
	}
	numOutputs := len(targets[0])
	if numOutputs == 0 {
		return nil, errors.New("targets have no columns")
	}
	if len(alphas) == 0 {
		alphas = DefaultAlphas()
	}

	gram := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		ri := x.Row(i)
		for j := i; j < n; j++ {
			gram.SetSym(i, j, ri.Dot(x.Row(j)))
		}
	}

	var eig mat.EigenSym
	if !eig.Factorize(gram, true) {
		return nil, errors.New("eigendecomposition of gram matrix failed")
	}
	eigvals := eig.Values(nil)
	for i, v := range eigvals {
		if v < 0 {
			eigvals[i] = 0
		}
	}
	var eigvecs mat.Dense
	eig.VectorsTo(&eigvecs)

	model := &MultiRidge{NumFeatures: x.NumCols, Outputs: make([]RidgeOutput, numOutputs)}
	for col := 0; col < numOutputs; col++ {
		y := make([]float64, n)
		var mean float64
		for i := 0; i < n; i++ {
			y[i] = targets[i][col]
			mean += y[i]
		}
		mean /= float64(n)
		for i := range y {
			y[i] -= mean
		}

		// qty = Qᵀ·y
		qty := make([]float64, n)
		for k := 0; k < n; k++ {
			var s float64
			for i := 0; i < n; i++ {
				s += eigvecs.At(i, k) * y[i]
			}
			qty[k] = s
		}

		bestAlpha, bestScore := alphas[0], math.Inf(1)
		for _, alpha := range alphas {
			score := looError(&eigvecs, eigvals, qty, alpha, n)
			if score < bestScore {
				bestScore = score
				bestAlpha = alpha
			}
		}

		// dual coefficients at the selected alpha
		dual := make([]float64, n)
		for i := 0; i < n; i++ {
			var s float64
			for k := 0; k < n; k++ {
				s += eigvecs.At(i, k) * qty[k] / (eigvals[k] + bestAlpha)
			}
			dual[i] = s
		}

		weights := make([]float64, x.NumCols)
		for i := 0; i < n; i++ {
			row := x.Row(i)
			for k, idx := range row.Indices {
				weights[idx] += dual[i] * row.Values[k]
			}
		}
		model.Outputs[col] = RidgeOutput{Weights: weights, Intercept: mean, Alpha: bestAlpha}
	}
	return model, nil
}

// looError is the mean squared leave-one-out residual for one alpha. With
// G = (K + alpha·I), the LOO residual for sample i is (G⁻¹y)_i / (G⁻¹)_ii.
func looError(eigvecs *mat.Dense, eigvals, qty []float64, alpha float64, n int) float64 {
	var total float64
	for i := 0; i < n; i++ {
		var ci, gi float64
		for k := 0; k < n; k++ {
			q := eigvecs.At(i, k)
			inv := 1.0 / (eigvals[k] + alpha)
			ci += q * qty[k] * inv
			gi += q * q * inv
		}
		r := ci / gi
		total += r * r
	}
	return total / float64(n)
}

func (m *MultiRidge) NumOutputs() int { return len(m.Outputs) }

// Predict returns the raw regression output per column for one input vector.
func (m *MultiRidge) Predict(vec textfeat.SparseVec) ([]float64, error) {
	if vec.Dim != m.NumFeatures {
		return nil, fmt.Errorf("input has %d features, model expects %d", vec.Dim, m.NumFeatures)
	}
	out := make([]float64, len(m.Outputs))
	for j, output := range m.Outputs {
		s := output.Intercept
		for k, idx := range vec.Indices {
			s += output.Weights[idx] * vec.Values[k]
		}
		out[j] = s
	}
	return out, nil
}

func (m *MultiRidge) PredictMatrix(x *textfeat.Matrix) ([][]float64, error) {
	out := make([][]float64, x.NumRows)
	for i := 0; i < x.NumRows; i++ {
		pred, err := m.Predict(x.Row(i))
		if err != nil {
			return nil, err
		}
		out[i] = pred
	}
	return out, nil
}
