package core

import (
	"math"
	"sort"

	"orgrisk-backend/internal/core/textfeat"
	"orgrisk-backend/pkg/api"
)

// CoefficientSource yields the linear weight vector behind one named output
// (a role bucket, a narrative label, or a risk class). Implementations that
// cannot produce coefficients for the name return false, and callers emit
// empty evidence instead of failing.
type CoefficientSource interface {
	Coefficients(name string) ([]float64, bool)
}

// TopContributions ranks the terms present in vec by the absolute value of
// their contribution (feature value times coefficient). A dimension mismatch
// yields an empty list.
func TopContributions(vec textfeat.SparseVec, coefs []float64, featureNames []string, topK int) []api.NgramWeight {
	if vec.Dim != len(coefs) || len(vec.Indices) == 0 {
		return []api.NgramWeight{}
	}
	contributions := make([]api.NgramWeight, len(vec.Indices))
	for k, idx := range vec.Indices {
		contributions[k] = api.NgramWeight{Ngram: featureNames[idx], Weight: vec.Values[k] * coefs[idx]}
	}
	sort.SliceStable(contributions, func(i, j int) bool {
		return math.Abs(contributions[i].Weight) > math.Abs(contributions[j].Weight)
	})
	if len(contributions) > topK {
		contributions = contributions[:topK]
	}
	return contributions
}

// Evidence resolves coefficients for name through source. Unknown names
// degrade to an empty list.
func Evidence(source CoefficientSource, name string, vec textfeat.SparseVec, featureNames []string, topK int) []api.NgramWeight {
	coefs, ok := source.Coefficients(name)
	if !ok {
		return []api.NgramWeight{}
	}
	return TopContributions(vec, coefs, featureNames, topK)
}
