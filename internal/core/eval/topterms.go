package eval

import (
	"sort"

	"orgrisk-backend/internal/core"
)

// TermWeight is one vocabulary term and its coefficient in a linear
// sub-model, used for qualitative inspection of what a model learned.
type TermWeight struct {
	Term   string  `json:"term"`
	Weight float64 `json:"weight"`
}

const DefaultTopTerms = 15

// TopTerms extracts the topK highest-weighted terms per named output from a
// linear model. Outputs without obtainable coefficients map to an empty
// list rather than erroring, since this is inspection-only.
func TopTerms(source core.CoefficientSource, names []string, featureNames []string, topK int) map[string][]TermWeight {
	out := make(map[string][]TermWeight, len(names))
	for _, name := range names {
		coefs, ok := source.Coefficients(name)
		if !ok || len(coefs) != len(featureNames) {
			out[name] = []TermWeight{}
			continue
		}
		order := make([]int, len(coefs))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool { return coefs[order[a]] > coefs[order[b]] })
		if len(order) > topK {
			order = order[:topK]
		}
		terms := make([]TermWeight, len(order))
		for i, idx := range order {
			terms[i] = TermWeight{Term: featureNames[idx], Weight: coefs[idx]}
		}
		out[name] = terms
	}
	return out
}
