package linear

import (
	"fmt"
	"math"

	"orgrisk-backend/internal/core/textfeat"
)

// PlattScaler maps a raw decision margin f to a calibrated probability
// 1/(1+exp(A·f + B)).
type PlattScaler struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

func (s PlattScaler) Calibrate(margin float64) float64 {
	return Sigmoid(-(s.A*margin + s.B))
}

// FitPlatt fits the sigmoid parameters by Newton iterations on the smoothed
// negative log likelihood. Smoothed targets (Platt 1999): positives get
// (n⁺+1)/(n⁺+2), negatives 1/(n⁻+2).
func FitPlatt(margins []float64, y []bool) PlattScaler {
	n := len(margins)
	numPos := 0
	for _, v := range y {
		if v {
			numPos++
		}
	}
	numNeg := n - numPos

	if numPos == 0 || numNeg == 0 {
		// single-class fold: pin the output to the smoothed prior
		prior := (float64(numPos) + 1) / (float64(n) + 2)
		return PlattScaler{A: 0, B: -math.Log(prior / (1 - prior))}
	}

	tPos := (float64(numPos) + 1) / (float64(numPos) + 2)
	tNeg := 1.0 / (float64(numNeg) + 2)
	targets := make([]float64, n)
	for i, v := range y {
		if v {
			targets[i] = tPos
		} else {
			targets[i] = tNeg
		}
	}

	a := 0.0
	b := math.Log((float64(numNeg) + 1) / (float64(numPos) + 1))

	loss := func(a, b float64) float64 {
		var total float64
		for i := 0; i < n; i++ {
			z := a*margins[i] + b
			// -t·log(p) - (1-t)·log(1-p) with p = sigmoid(-z)
			total += targets[i]*log1pExp(z) + (1-targets[i])*log1pExp(-z)
		}
		return total
	}

	current := loss(a, b)
	for iter := 0; iter < 100; iter++ {
		var gradA, gradB, hAA, hAB, hBB float64
		for i := 0; i < n; i++ {
			f := margins[i]
			p := Sigmoid(-(a*f + b))
			diff := targets[i] - p
			gradA += diff * f
			gradB += diff
			w := p * (1 - p)
			hAA += w * f * f
			hAB += w * f
			hBB += w
		}
		if math.Abs(gradA) < 1e-10 && math.Abs(gradB) < 1e-10 {
			break
		}
		// solve the 2x2 Newton system, with a small ridge for stability
		hAA += 1e-12
		hBB += 1e-12
		det := hAA*hBB - hAB*hAB
		if det <= 0 {
			break
		}
		stepA := (hBB*gradA - hAB*gradB) / det
		stepB := (hAA*gradB - hAB*gradA) / det

		scale := 1.0
		improved := false
		for ls := 0; ls < 20; ls++ {
			nextA, nextB := a-scale*stepA, b-scale*stepB
			if next := loss(nextA, nextB); next < current {
				a, b, current = nextA, nextB, next
				improved = true
				break
			}
			scale /= 2
		}
		if !improved {
			break
		}
	}
	return PlattScaler{A: a, B: b}
}

// CalibratedFold pairs a one-vs-rest model trained on k-1 folds with the
// sigmoid scalers fitted on the held-out fold.
type CalibratedFold struct {
	Base    *OneVsRest    `json:"base"`
	Scalers []PlattScaler `json:"scalers"`
}

// CalibratedOneVsRest is a cross-validated sigmoid-calibrated classifier:
// prediction averages the calibrated probabilities of every fold model.
type CalibratedOneVsRest struct {
	Classes []string         `json:"classes"`
	Folds   []CalibratedFold `json:"folds"`
}

// stratifiedFolds assigns the i-th occurrence of each class to fold i mod k,
// which keeps fold class ratios close to the full set and is deterministic.
func stratifiedFolds(labels []string, k int) []int {
	assignment := make([]int, len(labels))
	seen := make(map[string]int)
	for i, label := range labels {
		assignment[i] = seen[label] % k
		seen[label]++
	}
	return assignment
}

func FitCalibratedOneVsRest(x *textfeat.Matrix, labels []string, config LogisticConfig, numFolds int) (*CalibratedOneVsRest, error) {
	if x.NumRows == 0 {
		return nil, ErrNoTrainingData
	}
	if numFolds < 2 {
		return nil, fmt.Errorf("calibration requires at least 2 folds, got %d", numFolds)
	}
	counts := make(map[string]int)
	for _, l := range labels {
		counts[l]++
	}
	for class, count := range counts {
		if count < numFolds {
			return nil, fmt.Errorf("class %q has %d samples, fewer than the %d calibration folds", class, count, numFolds)
		}
	}

	classes := uniqueClasses(labels)
	if len(classes) < 2 {
		return nil, fmt.Errorf("need at least 2 classes, got %d", len(classes))
	}

	assignment := stratifiedFolds(labels, numFolds)
	folds := make([]CalibratedFold, 0, numFolds)
	for fold := 0; fold < numFolds; fold++ {
		trainX := textfeat.NewMatrix(x.NumCols)
		var trainLabels []string
		holdX := textfeat.NewMatrix(x.NumCols)
		var holdLabels []string
		for i := 0; i < x.NumRows; i++ {
			if assignment[i] == fold {
				holdX.AppendRow(x.Row(i))
				holdLabels = append(holdLabels, labels[i])
			} else {
				trainX.AppendRow(x.Row(i))
				trainLabels = append(trainLabels, labels[i])
			}
		}

		base, err := FitOneVsRest(trainX, trainLabels, config)
		if err != nil {
			return nil, fmt.Errorf("fitting fold %d: %w", fold, err)
		}
		if len(base.Classes) != len(classes) {
			return nil, fmt.Errorf("fold %d lost a class during splitting", fold)
		}

		scalers := make([]PlattScaler, len(classes))
		margins := make([]float64, holdX.NumRows)
		isClass := make([]bool, holdX.NumRows)
		for ci, class := range classes {
			for i := 0; i < holdX.NumRows; i++ {
				margins[i] = base.Models[ci].Margin(holdX.Row(i))
				isClass[i] = holdLabels[i] == class
			}
			scalers[ci] = FitPlatt(margins, isClass)
		}
		folds = append(folds, CalibratedFold{Base: base, Scalers: scalers})
	}

	return &CalibratedOneVsRest{Classes: classes, Folds: folds}, nil
}

// PredictProba averages each fold's calibrated per-class probabilities and
// normalizes the result to sum to 1.
func (m *CalibratedOneVsRest) PredictProba(vec textfeat.SparseVec) []float64 {
	numClasses := len(m.Classes)
	avg := make([]float64, numClasses)
	for _, fold := range m.Folds {
		probs := make([]float64, numClasses)
		var sum float64
		for ci := range m.Classes {
			probs[ci] = fold.Scalers[ci].Calibrate(fold.Base.Models[ci].Margin(vec))
			sum += probs[ci]
		}
		if sum <= 0 {
			for ci := range probs {
				probs[ci] = 1.0 / float64(numClasses)
			}
		} else {
			for ci := range probs {
				probs[ci] /= sum
			}
		}
		for ci := range avg {
			avg[ci] += probs[ci]
		}
	}
	var total float64
	for _, v := range avg {
		total += v
	}
	if total <= 0 {
		for ci := range avg {
			avg[ci] = 1.0 / float64(numClasses)
		}
		return avg
	}
	for ci := range avg {
		avg[ci] /= total
	}
	return avg
}

func (m *CalibratedOneVsRest) Predict(vec textfeat.SparseVec) string {
	return m.Classes[argmax(m.PredictProba(vec))]
}

// BaseCoefficients exposes the first fold's underlying linear model for a
// class, for contribution-based explanations. Returns false when the class is
// unknown.
func (m *CalibratedOneVsRest) BaseCoefficients(class string) ([]float64, bool) {
	if len(m.Folds) == 0 {
		return nil, false
	}
	for ci, c := range m.Classes {
		if c == class {
			return m.Folds[0].Base.Models[ci].Weights, true
		}
	}
	return nil, false
}
