package dataset

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

const postsFileSuffix = "_posts_training.csv"

// DiscoverCompanies lists companies by globbing the posts file pattern.
func DiscoverCompanies(dataDir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dataDir, "*"+postsFileSuffix))
	if err != nil {
		return nil, fmt.Errorf("error scanning data dir %s: %w", dataDir, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoCompanies, dataDir)
	}
	companies := make([]string, 0, len(matches))
	for _, m := range matches {
		companies = append(companies, strings.TrimSuffix(filepath.Base(m), postsFileSuffix))
	}
	sort.Strings(companies)
	return companies, nil
}

type table struct {
	fileName string
	columns  map[string]int
	rows     [][]string
}

func readTable(path string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s has no header row", path)
	}

	columns := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		columns[strings.TrimSpace(name)] = i
	}
	return &table{fileName: filepath.Base(path), columns: columns, rows: records[1:]}, nil
}

func (t *table) ensureColumns(required []string) error {
	var missing []string
	for _, col := range required {
		if _, ok := t.columns[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w in %s: %v", ErrMissingColumns, t.fileName, missing)
	}
	return nil
}

func (t *table) get(row []string, col string) string {
	idx, ok := t.columns[col]
	if !ok || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// getFloat parses a cell as float64, treating blanks and junk as 0 so that
// threshold comparisons behave like comparisons against missing values.
func (t *table) getFloat(row []string, col string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(t.get(row, col)), 64)
	if err != nil {
		return 0
	}
	return v
}

func loadCompanyPosts(dataDir, company string) ([]Post, error) {
	path := filepath.Join(dataDir, company+postsFileSuffix)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("posts file missing for %s: %s", company, path)
	}
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}
	if err := t.ensureColumns(PostRequiredColumns); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	posts := make([]Post, 0, len(t.rows))
	dropped := 0
	for _, row := range t.rows {
		canonical := CanonicalizeURL(t.get(row, "post_url"))
		text := strings.TrimSpace(t.get(row, "post_text"))
		if canonical == "" || text == "" {
			dropped++
			continue
		}
		if seen[canonical] {
			return nil, fmt.Errorf("%w for %s: %s (one row per post_url required in %s)",
				ErrDuplicatePost, company, canonical, t.fileName)
		}
		seen[canonical] = true

		pct := make(map[string]float64, len(PctColumns))
		for _, col := range PctColumns {
			pct[col] = t.getFloat(row, col)
		}
		posts = append(posts, Post{
			Company:       company,
			URL:           canonical,
			Text:          text,
			PostedAt:      strings.TrimSpace(t.get(row, "posted_at")),
			TotalComments: t.getFloat(row, "total_comments"),
			Pct:           pct,
			RiskTarget:    riskTarget(t.get(row, "risk_class_full"), t.get(row, "risk_class")),
		})
	}
	if dropped > 0 {
		slog.Warn("dropped post rows with invalid urls or empty text", "company", company, "rows", dropped)
	}
	return posts, nil
}

func loadCompanyComments(dataDir, company string) ([]Comment, error) {
	path := filepath.Join(dataDir, company+"_comments_enriched_full.csv")
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("comments_enriched_full file missing for %s: %s", company, path)
	}
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}
	if err := t.ensureColumns(CommentRequiredColumns); err != nil {
		return nil, err
	}

	comments := make([]Comment, 0, len(t.rows))
	for _, row := range t.rows {
		canonical := CanonicalizeURL(t.get(row, "post_url"))
		if canonical == "" {
			continue
		}
		comments = append(comments, Comment{
			Company:    company,
			PostURL:    canonical,
			Text:       t.get(row, "comment_text"),
			RoleBucket: strings.TrimSpace(t.get(row, "role_bucket")),
			Narrative:  strings.TrimSpace(t.get(row, "narrative")),
		})
	}
	return comments, nil
}

// riskTarget picks the fully-labeled class when present, then the partial
// one, title-cased. Empty when neither is usable.
func riskTarget(full, partial string) string {
	if cleaned := titleCase(full); cleaned != "" {
		return cleaned
	}
	return titleCase(partial)
}

func titleCase(s string) string {
	fields := strings.Fields(strings.TrimSpace(s))
	for i, f := range fields {
		runes := []rune(strings.ToLower(f))
		runes[0] = unicode.ToUpper(runes[0])
		fields[i] = string(runes)
	}
	return strings.Join(fields, " ")
}
