package textfeat

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	ErrEmptyCorpus = errors.New("cannot fit vectorizer on an empty corpus")
	ErrNotFitted   = errors.New("vectorizer has not been fitted")
)

// tokens are runs of two or more word characters (letters, digits, underscore)
var tokenRegex = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

var accentStripper = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))

type VectorizerConfig struct {
	NgramMin    int     `json:"ngram_min"`
	NgramMax    int     `json:"ngram_max"`
	MinDocFreq  int     `json:"min_df"`
	MaxDocRatio float64 `json:"max_df"`
	MaxFeatures int     `json:"max_features"`
}

func DefaultVectorizerConfig() VectorizerConfig {
	return VectorizerConfig{
		NgramMin:    1,
		NgramMax:    2,
		MinDocFreq:  2,
		MaxDocRatio: 0.95,
		MaxFeatures: 30000,
	}
}

// Vectorizer maps text to idf-weighted, L2-normalized bag-of-ngram vectors.
// Fit learns the vocabulary and document frequencies; Transform is read-only
// afterwards, so a fitted Vectorizer is safe for concurrent use.
type Vectorizer struct {
	Config     VectorizerConfig `json:"config"`
	Vocabulary map[string]int   `json:"vocabulary"`
	Idf        []float64        `json:"idf"`
	NumDocs    int              `json:"num_docs"`

	featureNames []string
}

func NewVectorizer(config VectorizerConfig) *Vectorizer {
	return &Vectorizer{Config: config}
}

func preprocess(text string) string {
	lowered := strings.ToLower(text)
	stripped, _, err := transform.String(accentStripper, lowered)
	if err != nil {
		return lowered
	}
	return stripped
}

func (v *Vectorizer) analyze(text string) []string {
	tokens := tokenRegex.FindAllString(preprocess(text), -1)
	if v.Config.NgramMax <= 1 {
		return tokens
	}
	ngrams := make([]string, 0, len(tokens)*2)
	for n := v.Config.NgramMin; n <= v.Config.NgramMax; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			ngrams = append(ngrams, strings.Join(tokens[i:i+n], " "))
		}
	}
	return ngrams
}

func (v *Vectorizer) Fit(docs []string) error {
	docFreq := make(map[string]int)
	termFreq := make(map[string]int)
	numDocs := 0
	for _, doc := range docs {
		terms := v.analyze(doc)
		if len(terms) == 0 && strings.TrimSpace(doc) == "" {
			continue
		}
		numDocs++
		seen := make(map[string]bool, len(terms))
		for _, t := range terms {
			termFreq[t]++
			if !seen[t] {
				seen[t] = true
				docFreq[t]++
			}
		}
	}
	if numDocs == 0 {
		return ErrEmptyCorpus
	}

	maxDocCount := v.Config.MaxDocRatio * float64(numDocs)
	kept := make([]string, 0, len(docFreq))
	for term, df := range docFreq {
		if df >= v.Config.MinDocFreq && float64(df) <= maxDocCount {
			kept = append(kept, term)
		}
	}
	if len(kept) == 0 {
		return fmt.Errorf("no terms survived document frequency pruning (min_df=%d, max_df=%g, docs=%d)",
			v.Config.MinDocFreq, v.Config.MaxDocRatio, numDocs)
	}

	if v.Config.MaxFeatures > 0 && len(kept) > v.Config.MaxFeatures {
		sort.Slice(kept, func(i, j int) bool {
			if termFreq[kept[i]] != termFreq[kept[j]] {
				return termFreq[kept[i]] > termFreq[kept[j]]
			}
			return kept[i] < kept[j]
		})
		kept = kept[:v.Config.MaxFeatures]
	}
	sort.Strings(kept)

	v.Vocabulary = make(map[string]int, len(kept))
	v.Idf = make([]float64, len(kept))
	for i, term := range kept {
		v.Vocabulary[term] = i
		// smoothed idf so unseen terms cannot divide by zero
		v.Idf[i] = math.Log(float64(1+numDocs)/float64(1+docFreq[term])) + 1
	}
	v.NumDocs = numDocs
	v.featureNames = kept
	return nil
}

// TransformOne vectorizes a single text against the fitted vocabulary.
func (v *Vectorizer) TransformOne(text string) (SparseVec, error) {
	if v.Vocabulary == nil {
		return SparseVec{}, ErrNotFitted
	}
	counts := make(map[int]float64)
	for _, term := range v.analyze(text) {
		if idx, ok := v.Vocabulary[term]; ok {
			counts[idx]++
		}
	}
	vec := SparseVec{
		Indices: make([]int, 0, len(counts)),
		Values:  make([]float64, 0, len(counts)),
		Dim:     len(v.Idf),
	}
	for idx := range counts {
		vec.Indices = append(vec.Indices, idx)
	}
	sort.Ints(vec.Indices)
	var sumSq float64
	for _, idx := range vec.Indices {
		w := counts[idx] * v.Idf[idx]
		vec.Values = append(vec.Values, w)
		sumSq += w * w
	}
	if sumSq > 0 {
		norm := math.Sqrt(sumSq)
		for i := range vec.Values {
			vec.Values[i] /= norm
		}
	}
	return vec, nil
}

func (v *Vectorizer) Transform(docs []string) (*Matrix, error) {
	if v.Vocabulary == nil {
		return nil, ErrNotFitted
	}
	m := NewMatrix(len(v.Idf))
	for _, doc := range docs {
		vec, err := v.TransformOne(doc)
		if err != nil {
			return nil, err
		}
		m.AppendRow(vec)
	}
	return m, nil
}

func (v *Vectorizer) FitTransform(docs []string) (*Matrix, error) {
	if err := v.Fit(docs); err != nil {
		return nil, err
	}
	return v.Transform(docs)
}

func (v *Vectorizer) NumFeatures() int {
	return len(v.Idf)
}

// FeatureNames returns terms ordered by their vocabulary index.
func (v *Vectorizer) FeatureNames() []string {
	if v.featureNames == nil && v.Vocabulary != nil {
		names := make([]string, len(v.Vocabulary))
		for term, idx := range v.Vocabulary {
			names[idx] = term
		}
		v.featureNames = names
	}
	return v.featureNames
}

func (v *Vectorizer) Save(path string) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("error serializing vectorizer: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing vectorizer to %s: %w", path, err)
	}
	return nil
}

func LoadVectorizer(path string) (*Vectorizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading vectorizer from %s: %w", path, err)
	}
	var v Vectorizer
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("error parsing vectorizer from %s: %w", path, err)
	}
	if v.Vocabulary == nil || len(v.Idf) != len(v.Vocabulary) {
		return nil, fmt.Errorf("vectorizer artifact %s is malformed: vocabulary and idf sizes do not match", path)
	}
	return &v, nil
}
