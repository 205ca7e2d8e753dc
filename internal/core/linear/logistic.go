package linear

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"orgrisk-backend/internal/core/textfeat"

	"gonum.org/v1/gonum/optimize"
)

type LogisticConfig struct {
	C        float64 // inverse regularization strength
	Balanced bool    // reweight classes inversely to their frequency
	MaxIter  int
	Tol      float64
}

func DefaultLogisticConfig() LogisticConfig {
	return LogisticConfig{C: 1.0, Balanced: true, MaxIter: 1000, Tol: 1e-6}
}

// Logistic is a fitted binary L2-regularized logistic regression.
type Logistic struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

func Sigmoid(z float64) float64 {
	if z >= 0 {
		return 1.0 / (1.0 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1.0 + e)
}

// log(1 + exp(z)) without overflow
func log1pExp(z float64) float64 {
	if z > 30 {
		return z
	}
	return math.Log1p(math.Exp(z))
}

func (m *Logistic) Margin(vec textfeat.SparseVec) float64 {
	s := m.Bias
	for k, idx := range vec.Indices {
		s += m.Weights[idx] * vec.Values[k]
	}
	return s
}

func (m *Logistic) Prob(vec textfeat.SparseVec) float64 {
	return Sigmoid(m.Margin(vec))
}

// FitLogistic fits a binary logistic regression by minimizing
//
//	0.5·wᵀw + C·Σᵢ sᵢ·log(1 + exp(−yᵢ·(xᵢᵀw + b)))
//
// with LBFGS, where sᵢ are per-sample class weights and the bias is not
// regularized. A single-class target yields a constant model pinned to the
// observed class instead of an error, so sparse labels degrade gracefully.
func FitLogistic(x *textfeat.Matrix, y []bool, config LogisticConfig) (*Logistic, error) {
	n := x.NumRows
	if n == 0 {
		return nil, ErrNoTrainingData
	}
	if len(y) != n {
		return nil, fmt.Errorf("labels (%d) do not match feature rows (%d)", len(y), n)
	}

	numPos := 0
	for _, v := range y {
		if v {
			numPos++
		}
	}
	numNeg := n - numPos
	if numPos == 0 || numNeg == 0 {
		bias := 10.0
		if numPos == 0 {
			bias = -10.0
		}
		return &Logistic{Weights: make([]float64, x.NumCols), Bias: bias}, nil
	}

	posWeight, negWeight := 1.0, 1.0
	if config.Balanced {
		posWeight = float64(n) / (2.0 * float64(numPos))
		negWeight = float64(n) / (2.0 * float64(numNeg))
	}

	signs := make([]float64, n)
	weights := make([]float64, n)
	for i, v := range y {
		if v {
			signs[i] = 1
			weights[i] = posWeight
		} else {
			signs[i] = -1
			weights[i] = negWeight
		}
	}

	d := x.NumCols
	problem := optimize.Problem{
		Func: func(params []float64) float64 {
			var reg float64
			for j := 0; j < d; j++ {
				reg += params[j] * params[j]
			}
			loss := 0.5 * reg
			for i := 0; i < n; i++ {
				row := x.Row(i)
				margin := params[d]
				for k, idx := range row.Indices {
					margin += params[idx] * row.Values[k]
				}
				loss += config.C * weights[i] * log1pExp(-signs[i]*margin)
			}
			return loss
		},
		Grad: func(grad, params []float64) {
			copy(grad, params[:d])
			grad[d] = 0
			for i := 0; i < n; i++ {
				row := x.Row(i)
				margin := params[d]
				for k, idx := range row.Indices {
					margin += params[idx] * row.Values[k]
				}
				// d/dm of log(1+exp(-y·m)) is -y·sigmoid(-y·m)
				g := config.C * weights[i] * -signs[i] * Sigmoid(-signs[i]*margin)
				for k, idx := range row.Indices {
					grad[idx] += g * row.Values[k]
				}
				grad[d] += g
			}
		},
	}

	settings := &optimize.Settings{
		GradientThreshold: config.Tol,
		MajorIterations:   config.MaxIter,
	}
	result, err := optimize.Minimize(problem, make([]float64, d+1), settings, &optimize.LBFGS{})
	if result == nil || len(result.Location.X) != d+1 {
		return nil, fmt.Errorf("logistic fit failed: %w", err)
	}
	params := result.Location.X
	for _, v := range params {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.New("logistic fit diverged")
		}
	}

	model := &Logistic{Weights: make([]float64, d), Bias: params[d]}
	copy(model.Weights, params[:d])
	return model, nil
}

// OneVsRest is a multiclass classifier built from one binary logistic
// regression per class. Classes are stored sorted.
type OneVsRest struct {
	Classes []string    `json:"classes"`
	Models  []*Logistic `json:"models"`
}

func FitOneVsRest(x *textfeat.Matrix, labels []string, config LogisticConfig) (*OneVsRest, error) {
	if x.NumRows == 0 {
		return nil, ErrNoTrainingData
	}
	if len(labels) != x.NumRows {
		return nil, fmt.Errorf("labels (%d) do not match feature rows (%d)", len(labels), x.NumRows)
	}

	classes := uniqueClasses(labels)
	if len(classes) < 2 {
		return nil, fmt.Errorf("need at least 2 classes, got %d", len(classes))
	}

	models := make([]*Logistic, len(classes))
	y := make([]bool, len(labels))
	for ci, class := range classes {
		for i, l := range labels {
			y[i] = l == class
		}
		model, err := FitLogistic(x, y, config)
		if err != nil {
			return nil, fmt.Errorf("fitting classifier for class %q: %w", class, err)
		}
		models[ci] = model
	}
	return &OneVsRest{Classes: classes, Models: models}, nil
}

// DecisionFunction returns the raw per-class margins.
func (m *OneVsRest) DecisionFunction(vec textfeat.SparseVec) []float64 {
	out := make([]float64, len(m.Models))
	for i, sub := range m.Models {
		out[i] = sub.Margin(vec)
	}
	return out
}

// PredictProba returns per-class sigmoid probabilities normalized to sum 1.
func (m *OneVsRest) PredictProba(vec textfeat.SparseVec) []float64 {
	out := make([]float64, len(m.Models))
	var sum float64
	for i, sub := range m.Models {
		out[i] = sub.Prob(vec)
		sum += out[i]
	}
	if sum <= 0 {
		uniform := 1.0 / float64(len(out))
		for i := range out {
			out[i] = uniform
		}
		return out
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func (m *OneVsRest) Predict(vec textfeat.SparseVec) string {
	return m.Classes[argmax(m.DecisionFunction(vec))]
}

func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

func uniqueClasses(labels []string) []string {
	seen := make(map[string]bool)
	var classes []string
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			classes = append(classes, l)
		}
	}
	sort.Strings(classes)
	return classes
}
