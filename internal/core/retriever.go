package core

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"orgrisk-backend/internal/core/textfeat"
	"orgrisk-backend/internal/dataset"
)

var ErrEmptyQuery = errors.New("query text cannot be empty")

// IndexRow is one training post's metadata, parallel to a row of the
// retriever's feature matrix.
type IndexRow struct {
	PostURL       string
	Company       string
	PostedAt      string
	RiskClass     string
	TotalComments float64
	Pct           map[string]float64
}

var indexBaseColumns = []string{"post_url", "company", "posted_at", "risk_class", "total_comments"}

// Retriever answers nearest-neighbor queries over the training posts by
// cosine similarity in the shared feature space.
type Retriever struct {
	Vectorizer *textfeat.Vectorizer
	Matrix     *textfeat.Matrix
	Index      []IndexRow
}

func NewRetriever(vectorizer *textfeat.Vectorizer, matrix *textfeat.Matrix, index []IndexRow) (*Retriever, error) {
	if matrix.NumRows != len(index) {
		return nil, fmt.Errorf("matrix has %d rows but index has %d entries", matrix.NumRows, len(index))
	}
	return &Retriever{Vectorizer: vectorizer, Matrix: matrix, Index: index}, nil
}

// Match pairs an index row with its similarity to the query.
type Match struct {
	Row   IndexRow
	Score float64
}

// Query returns the top-k most similar training posts, ranked by similarity
// descending with ties broken by original row order. A non-nil filter
// restricts the candidate rows before ranking.
func (r *Retriever) Query(text string, k int, filter Filter) ([]Match, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyQuery
	}
	vec, err := r.Vectorizer.TransformOne(text)
	if err != nil {
		return nil, err
	}
	sims, err := textfeat.CosineSimilarities(vec, r.Matrix)
	if err != nil {
		return nil, err
	}

	candidates := make([]int, 0, len(r.Index))
	for i := range r.Index {
		if filter == nil || filter.Matches(&r.Index[i]) {
			candidates = append(candidates, i)
		}
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return sims[candidates[a]] > sims[candidates[b]]
	})
	if k < 0 {
		k = 0
	}
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	matches := make([]Match, len(candidates))
	for i, idx := range candidates {
		matches[i] = Match{Row: r.Index[idx], Score: sims[idx]}
	}
	return matches, nil
}

// SaveIndex writes the index table as CSV with a fixed column order.
func SaveIndex(path string, index []IndexRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating index file %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append(append([]string{}, indexBaseColumns...), dataset.PctColumns...)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("error writing index header: %w", err)
	}
	for _, row := range index {
		record := []string{
			row.PostURL,
			row.Company,
			row.PostedAt,
			row.RiskClass,
			strconv.FormatFloat(row.TotalComments, 'g', -1, 64),
		}
		for _, col := range dataset.PctColumns {
			record = append(record, strconv.FormatFloat(row.Pct[col], 'g', -1, 64))
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("error writing index row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func LoadIndex(path string) ([]IndexRow, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMissingArtifact, path)
		}
		return nil, fmt.Errorf("error opening index file %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("error reading index file %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("index file %s has no header row", path)
	}

	columns := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		columns[strings.TrimSpace(name)] = i
	}
	for _, col := range indexBaseColumns {
		if _, ok := columns[col]; !ok {
			return nil, fmt.Errorf("index file %s missing column %s", path, col)
		}
	}

	index := make([]IndexRow, 0, len(records)-1)
	for _, record := range records[1:] {
		get := func(col string) string {
			idx, ok := columns[col]
			if !ok || idx >= len(record) {
				return ""
			}
			return record[idx]
		}
		totalComments, _ := strconv.ParseFloat(get("total_comments"), 64)
		pct := make(map[string]float64, len(dataset.PctColumns))
		for _, col := range dataset.PctColumns {
			if v, err := strconv.ParseFloat(get(col), 64); err == nil {
				pct[col] = v
			}
		}
		index = append(index, IndexRow{
			PostURL:       get("post_url"),
			Company:       get("company"),
			PostedAt:      get("posted_at"),
			RiskClass:     get("risk_class"),
			TotalComments: totalComments,
			Pct:           pct,
		})
	}
	return index, nil
}
