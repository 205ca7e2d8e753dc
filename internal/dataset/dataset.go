package dataset

import (
	"errors"
)

const (
	RoleMinComments         = 15
	NarrativeMinComments    = 5
	NarrativeShareThreshold = 0.10
)

// PostRequiredColumns is the fixed schema of {company}_posts_training.csv.
var PostRequiredColumns = []string{
	"post_url", "post_text", "posted_at", "likes", "total_comments",
	"risk_level", "risk_class", "risk_score", "risk_reasons",
	"risk_level_full", "risk_class_full", "risk_score_full", "risk_reasons_full",
	"pct_negative", "pct_negative_engineer", "pct_toxic_burnout",
	"pct_critical_hostile", "pct_supportive",
	"pct_negative_full", "pct_negative_engineer_full", "pct_toxic_burnout_full",
	"pct_critical_hostile_full", "pct_supportive_full",
}

// CommentRequiredColumns is the fixed schema of {company}_comments_enriched_full.csv.
var CommentRequiredColumns = []string{
	"post_url", "comment_text", "author_headline", "role_bucket",
	"sentiment", "tone", "narrative",
}

// PctColumns are the percentage proxy features carried into the retriever index.
var PctColumns = []string{
	"pct_negative", "pct_negative_engineer", "pct_toxic_burnout",
	"pct_critical_hostile", "pct_supportive",
	"pct_negative_full", "pct_negative_engineer_full", "pct_toxic_burnout_full",
	"pct_critical_hostile_full", "pct_supportive_full",
}

var (
	ErrDuplicatePost  = errors.New("duplicate post url")
	ErrMissingColumns = errors.New("missing required columns")
	ErrNoCompanies    = errors.New("no company posts files found")
)

// Post is one deduplicated training post with its derived targets.
type Post struct {
	Company       string
	URL           string // canonical
	Text          string
	PostedAt      string
	TotalComments float64
	Pct           map[string]float64

	RoleShares     []float64 // parallel to taxonomy role buckets, sums to 1 or all zero
	NarrativeFlags []int     // parallel to taxonomy narrative labels, 0/1
	RiskTarget     string    // one of the risk classes, or "" when unlabeled
}

// Comment is one enriched comment row tied to a post by canonical URL.
type Comment struct {
	Company    string
	PostURL    string // canonical
	Text       string
	RoleBucket string
	Narrative  string
}

// TaskSplit is the per-task train/test partition by holdout company.
type TaskSplit struct {
	Train []Post
	Test  []Post
}

type SplitCounts struct {
	Train map[string]int `json:"train"`
	Test  map[string]int `json:"test"`
}

// SplitManifest records per-company row counts for each task's split.
type SplitManifest struct {
	Role      SplitCounts `json:"role"`
	Narrative SplitCounts `json:"narrative"`
	Risk      SplitCounts `json:"risk"`
}

// Bundle is everything one training run consumes.
type Bundle struct {
	Role      TaskSplit
	Narrative TaskSplit
	Risk      TaskSplit

	// RetrieverTrain is every non-holdout post regardless of task filters.
	RetrieverTrain []Post

	Manifest       SplitManifest
	HoldoutCompany string

	// NarrativeProxyCompanies lists companies whose comments carried no
	// recognized narrative labels, so their flags fell back to the
	// pct_toxic_burnout proxy.
	NarrativeProxyCompanies []string
}

// NarrativeFromComments reports whether every company's narrative targets
// came from real comment labels rather than the proxy.
func (b *Bundle) NarrativeFromComments() bool {
	return len(b.NarrativeProxyCompanies) == 0
}
