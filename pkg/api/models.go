package api

import "encoding/json"

type AnalyzeRequest struct {
	PostText    string  `json:"post_text" validate:"required"`
	CompanyHint *string `json:"company_hint,omitempty"`
	VariantID   *string `json:"variant_id,omitempty" validate:"omitempty,oneof=A B"`
	UserID      *string `json:"user_id,omitempty"`

	// SimilarFilter is an optional filter expression applied to the
	// similar-post candidates, e.g. `company = "acme" AND total_comments > 20`.
	SimilarFilter *string `json:"similar_filter,omitempty"`
}

type CompareRequest struct {
	BaselineText string `json:"baseline_text" validate:"required"`
	VariantText  string `json:"variant_text" validate:"required"`
}

// SimilarQuery is the query-string form of a retriever lookup.
type SimilarQuery struct {
	Text   string `schema:"text,required"`
	K      int    `schema:"k"`
	Filter string `schema:"filter"`
}

type NgramWeight struct {
	Ngram  string  `json:"ngram"`
	Weight float64 `json:"weight"`
}

type RolePct struct {
	Role string  `json:"role"`
	Pct  float64 `json:"pct"`
}

type RiskResult struct {
	// RiskClass is the rule-based headline; ModelRiskClass is the calibrated
	// model's arg-max. The two need not agree and both are always present.
	RiskClass         string             `json:"risk_class"`
	ModelRiskClass    string             `json:"model_risk_class"`
	RiskProbs         map[string]float64 `json:"risk_probs"`
	RiskLevel         string             `json:"risk_level"`
	PrimaryRiskReason string             `json:"primary_risk_reason"`
}

type NarrativeResult struct {
	NarrativeProbs map[string]float64 `json:"narrative_probs"`
	NarrativeFlags map[string]bool    `json:"narrative_flags"`
}

type Evidence struct {
	RiskTopNgrams      []NgramWeight            `json:"risk_top_ngrams"`
	NarrativeTopNgrams map[string][]NgramWeight `json:"narrative_top_ngrams"`
	RoleTopNgrams      map[string][]NgramWeight `json:"role_top_ngrams"`
}

type SimilarPost struct {
	Company         string  `json:"company"`
	PostURL         string  `json:"post_url"`
	PostTextSnippet string  `json:"post_text_snippet"`
	Score           float64 `json:"score"`
}

type ResponseMeta struct {
	ModelDirUsed string `json:"model_dir_used"`
	TimestampISO string `json:"timestamp_iso"`
	LatencyMs    int64  `json:"latency_ms"`
	RequestID    string `json:"request_id"`
}

type AnalyzeResponse struct {
	InputText            string          `json:"input_text"`
	Audience             *string         `json:"audience"`
	RoleDistributionTop5 []RolePct       `json:"role_distribution_top5"`
	RoleDistributionAll  []RolePct       `json:"role_distribution_all"`
	ConfidenceEntropy    float64         `json:"confidence_entropy"`
	Risk                 RiskResult      `json:"risk"`
	Narratives           NarrativeResult `json:"narratives"`
	Evidence             Evidence        `json:"evidence"`
	SimilarPosts         []SimilarPost   `json:"similar_posts"`
	Meta                 ResponseMeta    `json:"meta"`
}

type CompareDelta struct {
	RolePctDelta      map[string]float64 `json:"role_pct_delta"`
	RiskProbDelta     map[string]float64 `json:"risk_prob_delta"`
	ChangedTopPhrases []NgramWeight      `json:"changed_top_phrases"`
}

type CompareResponse struct {
	Baseline *AnalyzeResponse `json:"baseline"`
	Variant  *AnalyzeResponse `json:"variant"`
	Delta    CompareDelta     `json:"delta"`
}

type SimilarResponse struct {
	Matches []SimilarPost `json:"matches"`
	Count   int           `json:"count"`
}

type HistoryRow struct {
	ID           uint            `json:"id"`
	CreatedAtISO string          `json:"created_at_iso"`
	Mode         string          `json:"mode"`
	BaselineText string          `json:"baseline_text"`
	VariantText  *string         `json:"variant_text"`
	Response     json.RawMessage `json:"response"`
}

type HistoryResponse struct {
	Rows  []HistoryRow `json:"rows"`
	Count int          `json:"count"`
}

type HealthResponse struct {
	Status       string `json:"status"`
	ModelsLoaded bool   `json:"models_loaded"`
}
