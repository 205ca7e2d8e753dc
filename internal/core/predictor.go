package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"orgrisk-backend/internal/core/taxonomy"
	"orgrisk-backend/internal/core/textfeat"
	"orgrisk-backend/pkg/api"
)

var ErrEmptyText = errors.New("post_text cannot be empty or whitespace")

const (
	analyzeSimilarPosts   = 5
	riskEvidenceTopK      = 8
	narrativeEvidenceTopK = 6
	roleEvidenceTopK      = 6
	roleTopBuckets        = 5
	comparePhraseTopK     = 10
	snippetRunes          = 160
)

// Predictor composes every trained artifact into the analyze/compare serving
// facade. All fields are immutable after LoadPredictor, so one Predictor is
// safe for concurrent use.
type Predictor struct {
	modelDir     string
	metadata     *Metadata
	vectorizer   *textfeat.Vectorizer
	featureNames []string
	role         *RoleModel
	narrative    *NarrativeModel
	risk         *RiskModel
	retriever    *Retriever // nil when retriever artifacts are absent
	topNgrams    json.RawMessage
	tax          *taxonomy.Taxonomy

	// servingThreshold flags narratives at serving time. It is deliberately
	// independent of the reporting threshold stored in metadata.
	servingThreshold float64
}

// LoadPredictor loads a model directory written by the trainer. Metadata,
// the shared vectorizer and the three models are required; the retriever
// matrix and index are optional and their absence only disables
// similar-post evidence.
func LoadPredictor(modelDir string, narrativeServingThreshold float64) (*Predictor, error) {
	metadata, err := LoadMetadata(filepath.Join(modelDir, MetadataFile))
	if err != nil {
		return nil, err
	}
	vectorizer, err := textfeat.LoadVectorizer(filepath.Join(modelDir, VectorizerFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMissingArtifact, filepath.Join(modelDir, VectorizerFile))
		}
		return nil, err
	}
	role, err := LoadRoleModel(filepath.Join(modelDir, RoleModelFile))
	if err != nil {
		return nil, err
	}
	narrative, err := LoadNarrativeModel(filepath.Join(modelDir, NarrativeModelFile))
	if err != nil {
		return nil, err
	}
	risk, err := LoadRiskModel(filepath.Join(modelDir, RiskModelFile))
	if err != nil {
		return nil, err
	}

	p := &Predictor{
		modelDir:         modelDir,
		metadata:         metadata,
		vectorizer:       vectorizer,
		featureNames:     vectorizer.FeatureNames(),
		role:             role,
		narrative:        narrative,
		risk:             risk,
		tax:              taxonomy.Default(),
		servingThreshold: narrativeServingThreshold,
	}
	if err := p.checkConsistency(); err != nil {
		return nil, err
	}

	matrix, merr := textfeat.LoadMatrix(filepath.Join(modelDir, TrainMatrixFile))
	index, ierr := LoadIndex(filepath.Join(modelDir, TrainIndexFile))
	if merr != nil || ierr != nil {
		slog.Warn("retriever artifacts unavailable, similar posts disabled", "model_dir", modelDir)
	} else {
		retriever, err := NewRetriever(vectorizer, matrix, index)
		if err != nil {
			return nil, fmt.Errorf("inconsistent retriever artifacts: %w", err)
		}
		p.retriever = retriever
	}

	topNgramsPath := filepath.Join(filepath.Dir(modelDir), ReportsDirName, TopNgramsFile)
	if data, err := os.ReadFile(topNgramsPath); err == nil && json.Valid(data) {
		p.topNgrams = data
	}
	return p, nil
}

func (p *Predictor) checkConsistency() error {
	numFeatures := p.vectorizer.NumFeatures()
	if len(p.role.Buckets) != len(p.metadata.RoleBuckets) {
		return fmt.Errorf("role model has %d buckets, metadata lists %d", len(p.role.Buckets), len(p.metadata.RoleBuckets))
	}
	if len(p.narrative.Labels) != len(p.metadata.NarrativeLabels) {
		return fmt.Errorf("narrative model has %d labels, metadata lists %d", len(p.narrative.Labels), len(p.metadata.NarrativeLabels))
	}
	if p.role.Ridge.NumFeatures != numFeatures {
		return fmt.Errorf("role model expects %d features, vectorizer produces %d", p.role.Ridge.NumFeatures, numFeatures)
	}
	for i, sub := range p.narrative.Models {
		if len(sub.Weights) != numFeatures {
			return fmt.Errorf("narrative model %q expects %d features, vectorizer produces %d", p.narrative.Labels[i], len(sub.Weights), numFeatures)
		}
	}
	for _, fold := range p.risk.Calibrated.Folds {
		for ci, sub := range fold.Base.Models {
			if len(sub.Weights) != numFeatures {
				return fmt.Errorf("risk model %q expects %d features, vectorizer produces %d", p.risk.Calibrated.Classes[ci], len(sub.Weights), numFeatures)
			}
		}
	}
	return nil
}

func (p *Predictor) ModelDir() string { return p.modelDir }

func (p *Predictor) Metadata() *Metadata { return p.metadata }

// TopNgrams returns the raw contents of the reports top_ngrams.json, or nil
// when it was absent at load time.
func (p *Predictor) TopNgrams() json.RawMessage { return p.topNgrams }

// HasRetriever reports whether similar-post lookups are available.
func (p *Predictor) HasRetriever() bool { return p.retriever != nil }

func (p *Predictor) Analyze(req api.AnalyzeRequest) (*api.AnalyzeResponse, error) {
	start := time.Now()

	text := strings.TrimSpace(req.PostText)
	if text == "" {
		return nil, ErrEmptyText
	}

	var filter Filter
	if req.SimilarFilter != nil && strings.TrimSpace(*req.SimilarFilter) != "" {
		parsed, err := ParseQuery(*req.SimilarFilter)
		if err != nil {
			return nil, err
		}
		filter = parsed
	}

	vec, err := p.vectorizer.TransformOne(text)
	if err != nil {
		return nil, err
	}

	shares, err := p.role.PredictShares(vec)
	if err != nil {
		return nil, err
	}
	roleAll := make([]api.RolePct, len(p.role.Buckets))
	for i, bucket := range p.role.Buckets {
		roleAll[i] = api.RolePct{Role: bucket, Pct: round4(shares[i] * 100)}
	}
	roleTop := make([]api.RolePct, len(roleAll))
	copy(roleTop, roleAll)
	sort.SliceStable(roleTop, func(i, j int) bool { return roleTop[i].Pct > roleTop[j].Pct })
	if len(roleTop) > roleTopBuckets {
		roleTop = roleTop[:roleTopBuckets]
	}

	narrativeProbs, err := p.narrative.PredictProbs(vec)
	if err != nil {
		return nil, err
	}
	probsByLabel := make(map[string]float64, len(p.narrative.Labels))
	flagsByLabel := make(map[string]bool, len(p.narrative.Labels))
	for i, label := range p.narrative.Labels {
		probsByLabel[label] = narrativeProbs[i]
		flagsByLabel[label] = narrativeProbs[i] >= p.servingThreshold
	}

	riskProbs, err := p.risk.PredictProbs(vec)
	if err != nil {
		return nil, err
	}
	probMap := p.risk.ProbMap(riskProbs, p.displayRiskClasses())
	maxProb := 0.0
	for _, v := range probMap {
		if v > maxProb {
			maxProb = v
		}
	}

	riskEvidence := Evidence(p.risk, p.tax.RuleBasedRisk.HarmfulClass, vec, p.featureNames, riskEvidenceTopK)
	narrativeEvidence := make(map[string][]api.NgramWeight, len(p.narrative.Labels))
	for _, label := range p.narrative.Labels {
		narrativeEvidence[label] = Evidence(p.narrative, label, vec, p.featureNames, narrativeEvidenceTopK)
	}
	roleEvidence := make(map[string][]api.NgramWeight, len(roleTop))
	for _, entry := range roleTop {
		roleEvidence[entry.Role] = Evidence(p.role, entry.Role, vec, p.featureNames, roleEvidenceTopK)
	}

	primaryReason := "No strong harmful signals."
	if len(riskEvidence) > 0 {
		primaryReason = fmt.Sprintf("Top harmful driver: %s (%+.3f)", riskEvidence[0].Ngram, riskEvidence[0].Weight)
	}

	similar, err := p.similarPosts(text, analyzeSimilarPosts, filter)
	if err != nil {
		return nil, err
	}

	return &api.AnalyzeResponse{
		InputText:            text,
		Audience:             req.CompanyHint,
		RoleDistributionTop5: roleTop,
		RoleDistributionAll:  roleAll,
		ConfidenceEntropy:    shannonEntropyBits(shares),
		Risk: api.RiskResult{
			RiskClass:         p.tax.RuleBasedClass(flagsByLabel),
			ModelRiskClass:    p.risk.ArgMaxClass(riskProbs),
			RiskProbs:         probMap,
			RiskLevel:         p.tax.LevelForProb(maxProb),
			PrimaryRiskReason: primaryReason,
		},
		Narratives: api.NarrativeResult{
			NarrativeProbs: probsByLabel,
			NarrativeFlags: flagsByLabel,
		},
		Evidence: api.Evidence{
			RiskTopNgrams:      riskEvidence,
			NarrativeTopNgrams: narrativeEvidence,
			RoleTopNgrams:      roleEvidence,
		},
		SimilarPosts: similar,
		Meta: api.ResponseMeta{
			ModelDirUsed: p.modelDir,
			TimestampISO: time.Now().UTC().Format("2006-01-02T15:04:05Z"),
			LatencyMs:    time.Since(start).Milliseconds(),
			RequestID:    uuid.NewString(),
		},
	}, nil
}

func (p *Predictor) Compare(baselineText, variantText string) (*api.CompareResponse, error) {
	baseline, err := p.Analyze(api.AnalyzeRequest{PostText: baselineText})
	if err != nil {
		return nil, fmt.Errorf("analyzing baseline: %w", err)
	}
	variant, err := p.Analyze(api.AnalyzeRequest{PostText: variantText})
	if err != nil {
		return nil, fmt.Errorf("analyzing variant: %w", err)
	}

	variantPct := make(map[string]float64, len(variant.RoleDistributionAll))
	for _, entry := range variant.RoleDistributionAll {
		variantPct[entry.Role] = entry.Pct
	}
	roleDelta := make(map[string]float64, len(baseline.RoleDistributionAll))
	for _, entry := range baseline.RoleDistributionAll {
		roleDelta[entry.Role] = round4(variantPct[entry.Role] - entry.Pct)
	}

	riskDelta := make(map[string]float64, len(p.displayRiskClasses()))
	for _, class := range p.displayRiskClasses() {
		riskDelta[class] = round6(variant.Risk.RiskProbs[class] - baseline.Risk.RiskProbs[class])
	}

	return &api.CompareResponse{
		Baseline: baseline,
		Variant:  variant,
		Delta: api.CompareDelta{
			RolePctDelta:      roleDelta,
			RiskProbDelta:     riskDelta,
			ChangedTopPhrases: mergeChangedPhrases(baseline.Evidence.RiskTopNgrams, variant.Evidence.RiskTopNgrams, comparePhraseTopK),
		},
	}, nil
}

// Similar runs a retriever lookup on its own, for the similar-posts
// endpoint. Unlike Analyze it treats a missing retriever as an error since
// the caller asked for retrieval explicitly.
func (p *Predictor) Similar(text string, k int, filterExpr string) ([]api.SimilarPost, error) {
	if p.retriever == nil {
		return nil, fmt.Errorf("%w: retriever artifacts were not loaded", ErrMissingArtifact)
	}
	var filter Filter
	if strings.TrimSpace(filterExpr) != "" {
		parsed, err := ParseQuery(filterExpr)
		if err != nil {
			return nil, err
		}
		filter = parsed
	}
	if k <= 0 {
		k = analyzeSimilarPosts
	}
	return p.similarPosts(text, k, filter)
}

func (p *Predictor) similarPosts(text string, k int, filter Filter) ([]api.SimilarPost, error) {
	if p.retriever == nil {
		return []api.SimilarPost{}, nil
	}
	matches, err := p.retriever.Query(text, k, filter)
	if err != nil {
		return nil, err
	}
	out := make([]api.SimilarPost, len(matches))
	for i, match := range matches {
		out[i] = api.SimilarPost{
			Company:         match.Row.Company,
			PostURL:         match.Row.PostURL,
			PostTextSnippet: truncateRunes(match.Row.PostURL, snippetRunes),
			Score:           match.Score,
		}
	}
	return out, nil
}

func (p *Predictor) displayRiskClasses() []string {
	if len(p.metadata.RiskClasses) > 0 {
		return p.metadata.RiskClasses
	}
	return p.tax.RiskClasses
}

// shannonEntropyBits measures how spread out a distribution is, in bits,
// after clipping to [1e-12, 1] and renormalizing.
func shannonEntropyBits(probs []float64) float64 {
	clipped := make([]float64, len(probs))
	var sum float64
	for i, v := range probs {
		if v < 1e-12 {
			v = 1e-12
		}
		if v > 1.0 {
			v = 1.0
		}
		clipped[i] = v
		sum += v
	}
	var entropy float64
	for _, v := range clipped {
		v /= sum
		entropy -= v * math.Log2(v)
	}
	return entropy
}

// mergeChangedPhrases nets the variant's evidence against the baseline's:
// terms only in the baseline show up negative, terms only in the variant
// positive, shared terms by their weight shift. Zero net shifts drop out.
func mergeChangedPhrases(baseline, variant []api.NgramWeight, topK int) []api.NgramWeight {
	merged := make(map[string]float64)
	var order []string
	accumulate := func(items []api.NgramWeight, sign float64) {
		for _, item := range items {
			if _, ok := merged[item.Ngram]; !ok {
				order = append(order, item.Ngram)
			}
			merged[item.Ngram] += sign * item.Weight
		}
	}
	accumulate(baseline, -1)
	accumulate(variant, +1)

	out := make([]api.NgramWeight, 0, len(order))
	for _, ngram := range order {
		if math.Abs(merged[ngram]) < 1e-12 {
			continue
		}
		out = append(out, api.NgramWeight{Ngram: ngram, Weight: merged[ngram]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].Weight) > math.Abs(out[j].Weight)
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func round4(v float64) float64 { return math.Round(v*1e4) / 1e4 }

func round6(v float64) float64 { return math.Round(v*1e6) / 1e6 }
