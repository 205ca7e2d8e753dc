package dataset

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"orgrisk-backend/internal/core/utils"
)

// RawComment is one scraped comment as it appears in a JSON export. The
// first enrichment pass covers a subset of comments (Enriched); the second
// pass covers everything, which is what the *_full proxy columns measure.
type RawComment struct {
	CommentText    string `json:"comment_text"`
	AuthorHeadline string `json:"author_headline"`
	RoleBucket     string `json:"role_bucket"`
	Sentiment      string `json:"sentiment"`
	Tone           string `json:"tone"`
	Narrative      string `json:"narrative"`
	Enriched       bool   `json:"enriched"`
}

// RawPost is one scraped post with its nested comments and both risk
// annotation passes.
type RawPost struct {
	PostURL  string  `json:"post_url"`
	PostText string  `json:"post_text"`
	PostedAt string  `json:"posted_at"`
	Likes    float64 `json:"likes"`

	RiskLevel   string  `json:"risk_level"`
	RiskClass   string  `json:"risk_class"`
	RiskScore   float64 `json:"risk_score"`
	RiskReasons string  `json:"risk_reasons"`

	RiskLevelFull   string  `json:"risk_level_full"`
	RiskClassFull   string  `json:"risk_class_full"`
	RiskScoreFull   float64 `json:"risk_score_full"`
	RiskReasonsFull string  `json:"risk_reasons_full"`

	Comments []RawComment `json:"comments"`
}

type PrepResult struct {
	Company           string
	Posts             int
	Comments          int
	DuplicatesDropped int
	InvalidDropped    int
}

// engineerBuckets are the roles counted as engineering commentary in the
// pct_negative_engineer proxy.
var engineerBuckets = map[string]bool{
	"Software Engineer":             true,
	"ML/AI/Data":                    true,
	"DevOps/SRE/Cloud":              true,
	"Security":                      true,
	"Engineering Manager/Tech Lead": true,
}

// PrepDir converts every {company}.json export in inputDir into the
// per-company CSV pair in outputDir. Files convert concurrently since each
// company is independent.
func PrepDir(inputDir, outputDir string, maxWorkers int) ([]PrepResult, error) {
	matches, err := filepath.Glob(filepath.Join(inputDir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("error scanning input dir %s: %w", inputDir, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no JSON exports found in %s", inputDir)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("error creating output dir: %w", err)
	}

	queue := make(chan string, len(matches))
	for _, path := range matches {
		queue <- path
	}
	close(queue)

	completed := make(chan utils.CompletedTask[PrepResult], len(matches))
	utils.RunInPool(func(path string) (PrepResult, error) {
		return PrepCompany(path, outputDir)
	}, queue, completed, maxWorkers)

	var results []PrepResult
	var firstErr error
	for task := range completed {
		if task.Error != nil {
			if firstErr == nil {
				firstErr = task.Error
			}
			continue
		}
		results = append(results, task.Result)
	}
	if firstErr != nil {
		return nil, firstErr
	}
	sort.Slice(results, func(a, b int) bool { return results[a].Company < results[b].Company })
	return results, nil
}

// PrepCompany converts one export file. The company name is the export's
// base filename.
func PrepCompany(inputPath, outputDir string) (PrepResult, error) {
	company := strings.TrimSuffix(filepath.Base(inputPath), ".json")
	result := PrepResult{Company: company}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		return result, fmt.Errorf("error reading export %s: %w", inputPath, err)
	}
	var posts []RawPost
	if err := json.Unmarshal(data, &posts); err != nil {
		return result, fmt.Errorf("error parsing export %s: %w", inputPath, err)
	}

	seen := make(map[string]bool)
	var kept []RawPost
	canonicals := make([]string, 0, len(posts))
	for _, post := range posts {
		canonical := CanonicalizeURL(post.PostURL)
		if canonical == "" || strings.TrimSpace(post.PostText) == "" {
			result.InvalidDropped++
			continue
		}
		if seen[canonical] {
			result.DuplicatesDropped++
			continue
		}
		seen[canonical] = true
		kept = append(kept, post)
		canonicals = append(canonicals, canonical)
	}
	if result.DuplicatesDropped > 0 {
		slog.Warn("dropped duplicate post urls from export", "company", company, "rows", result.DuplicatesDropped)
	}
	if result.InvalidDropped > 0 {
		slog.Warn("dropped export rows with invalid urls or empty text", "company", company, "rows", result.InvalidDropped)
	}

	if err := writePostsCSV(filepath.Join(outputDir, company+postsFileSuffix), kept, canonicals); err != nil {
		return result, err
	}
	commentRows, err := writeCommentsCSV(filepath.Join(outputDir, company+"_comments_enriched_full.csv"), kept, canonicals)
	if err != nil {
		return result, err
	}
	result.Posts = len(kept)
	result.Comments = commentRows
	return result, nil
}

// proxyShares computes the pct_* proxy columns over one comment subset.
func proxyShares(comments []RawComment) map[string]float64 {
	shares := map[string]float64{
		"pct_negative":          0,
		"pct_negative_engineer": 0,
		"pct_toxic_burnout":     0,
		"pct_critical_hostile":  0,
		"pct_supportive":        0,
	}
	if len(comments) == 0 {
		return shares
	}
	total := float64(len(comments))
	for _, c := range comments {
		sentiment := strings.ToLower(strings.TrimSpace(c.Sentiment))
		tone := strings.ToLower(strings.TrimSpace(c.Tone))
		narrative := strings.TrimSpace(c.Narrative)

		if sentiment == "negative" {
			shares["pct_negative"]++
			if engineerBuckets[c.RoleBucket] {
				shares["pct_negative_engineer"]++
			}
		}
		if narrative == "toxic_culture" || narrative == "burnout" {
			shares["pct_toxic_burnout"]++
		}
		if tone == "critical" || tone == "hostile" {
			shares["pct_critical_hostile"]++
		}
		if tone == "supportive" {
			shares["pct_supportive"]++
		}
	}
	for key := range shares {
		shares[key] /= total
	}
	return shares
}

func firstPassComments(comments []RawComment) []RawComment {
	var subset []RawComment
	for _, c := range comments {
		if c.Enriched {
			subset = append(subset, c)
		}
	}
	return subset
}

func writePostsCSV(path string, posts []RawPost, canonicals []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(PostRequiredColumns); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}

	for i, post := range posts {
		partial := proxyShares(firstPassComments(post.Comments))
		full := proxyShares(post.Comments)

		row := map[string]string{
			"post_url":       canonicals[i],
			"post_text":      post.PostText,
			"posted_at":      post.PostedAt,
			"likes":          formatFloat(post.Likes),
			"total_comments": strconv.Itoa(len(post.Comments)),

			"risk_level":   post.RiskLevel,
			"risk_class":   post.RiskClass,
			"risk_score":   formatFloat(post.RiskScore),
			"risk_reasons": post.RiskReasons,

			"risk_level_full":   post.RiskLevelFull,
			"risk_class_full":   post.RiskClassFull,
			"risk_score_full":   formatFloat(post.RiskScoreFull),
			"risk_reasons_full": post.RiskReasonsFull,
		}
		for key, value := range partial {
			row[key] = formatFloat(value)
		}
		for key, value := range full {
			row[key+"_full"] = formatFloat(value)
		}

		record := make([]string, len(PostRequiredColumns))
		for j, col := range PostRequiredColumns {
			record[j] = row[col]
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("error writing post row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func writeCommentsCSV(path string, posts []RawPost, canonicals []string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("error creating %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(CommentRequiredColumns); err != nil {
		return 0, fmt.Errorf("error writing header: %w", err)
	}

	rows := 0
	for i, post := range posts {
		for _, c := range post.Comments {
			record := []string{
				canonicals[i], c.CommentText, c.AuthorHeadline, c.RoleBucket,
				c.Sentiment, c.Tone, c.Narrative,
			}
			if err := w.Write(record); err != nil {
				return rows, fmt.Errorf("error writing comment row: %w", err)
			}
			rows++
		}
	}
	w.Flush()
	return rows, w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
