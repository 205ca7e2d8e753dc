package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"orgrisk-backend/internal/core"
	"orgrisk-backend/internal/core/taxonomy"
	"orgrisk-backend/internal/core/textfeat"
	"orgrisk-backend/internal/database"
	"orgrisk-backend/pkg/api"
)

var fixtureTexts = []string{
	"sudden layoffs hit the engineering team hard this week",
	"toxic culture and layoffs drove our senior engineers away",
	"more layoffs announced while management blames the market",
	"burnout is real after months of constant overtime here",
	"feeling serious burnout from endless overtime this quarter",
	"an overtime culture leads straight to burnout for many",
	"excited to share our growth and the new product launch",
	"celebrating a wonderful product launch with the whole team",
	"proud of our growth this year and thankful to everyone",
}

// writeModelDir fits small models on the fixture corpus and writes a complete
// artifact directory, optionally without the retriever files.
func writeModelDir(t *testing.T, withRetriever bool) string {
	t.Helper()
	tax := taxonomy.Default()

	vectorizer := textfeat.NewVectorizer(textfeat.DefaultVectorizerConfig())
	x, err := vectorizer.FitTransform(fixtureTexts)
	require.NoError(t, err)

	shares := make([][]float64, len(fixtureTexts))
	flags := make([][]int, len(fixtureTexts))
	risks := make([]string, len(fixtureTexts))
	for i := range fixtureTexts {
		shares[i] = make([]float64, len(tax.RoleBuckets))
		shares[i][i%len(tax.RoleBuckets)] = 1.0
		flags[i] = make([]int, len(tax.NarrativeLabels))
		switch i / 3 {
		case 0:
			flags[i][0] = 1 // toxic_culture
			risks[i] = "Harmful"
		case 1:
			flags[i][1] = 1 // burnout
			risks[i] = "Harmless"
		default:
			risks[i] = "Helpful"
		}
	}

	role, err := core.FitRoleModel(x, shares, tax.RoleBuckets)
	require.NoError(t, err)
	narrative, err := core.FitNarrativeModel(x, flags, tax.NarrativeLabels)
	require.NoError(t, err)
	risk, err := core.FitRiskModel(x, risks)
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "models")
	require.NoError(t, writeArtifacts(dir, vectorizer, x, role, narrative, risk, risks, withRetriever))
	return dir
}

func writeArtifacts(dir string, vectorizer *textfeat.Vectorizer, x *textfeat.Matrix,
	role *core.RoleModel, narrative *core.NarrativeModel, risk *core.RiskModel,
	risks []string, withRetriever bool) error {

	tax := taxonomy.Default()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	metadata := &core.Metadata{
		RoleBuckets:        tax.RoleBuckets,
		NarrativeLabels:    tax.NarrativeLabels,
		RiskClasses:        tax.RiskClasses,
		NarrativeThreshold: core.DefaultNarrativeThreshold,
		HoldoutCompany:     "meta",
		Tfidf:              textfeat.DefaultVectorizerConfig(),
		TrainedAt:          time.Now().UTC().Format(time.RFC3339),
	}
	if err := core.SaveMetadata(filepath.Join(dir, core.MetadataFile), metadata); err != nil {
		return err
	}
	if err := vectorizer.Save(filepath.Join(dir, core.VectorizerFile)); err != nil {
		return err
	}
	if err := core.SaveRoleModel(filepath.Join(dir, core.RoleModelFile), role); err != nil {
		return err
	}
	if err := core.SaveNarrativeModel(filepath.Join(dir, core.NarrativeModelFile), narrative); err != nil {
		return err
	}
	if err := core.SaveRiskModel(filepath.Join(dir, core.RiskModelFile), risk); err != nil {
		return err
	}
	if !withRetriever {
		return nil
	}
	index := make([]core.IndexRow, len(fixtureTexts))
	for i := range fixtureTexts {
		index[i] = core.IndexRow{
			PostURL:       fmt.Sprintf("https://www.linkedin.com/posts/acme/p%d", i),
			Company:       "acme",
			PostedAt:      "2024-05-01",
			RiskClass:     risks[i],
			TotalComments: 20,
		}
	}
	if err := x.Save(filepath.Join(dir, core.TrainMatrixFile)); err != nil {
		return err
	}
	return core.SaveIndex(filepath.Join(dir, core.TrainIndexFile), index)
}

func newTestServer(t *testing.T, withRetriever bool) (*httptest.Server, *gorm.DB) {
	t.Helper()
	modelDir := writeModelDir(t, withRetriever)
	predictor, err := core.LoadPredictor(modelDir, core.DefaultNarrativeServingThreshold)
	require.NoError(t, err)

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.GetMigrator(db).Migrate())

	router := chi.NewRouter()
	NewService(db, predictor).AddRoutes(router)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, db
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealth(t *testing.T) {
	server, _ := newTestServer(t, true)

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	health := decodeBody[api.HealthResponse](t, resp)
	assert.Equal(t, "ok", health.Status)
	assert.True(t, health.ModelsLoaded)
}

func TestAnalyze(t *testing.T) {
	server, db := newTestServer(t, true)

	resp := postJSON(t, server.URL+"/analyze", api.AnalyzeRequest{
		PostText: "layoffs and toxic culture are wearing the engineering team down",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decodeBody[api.AnalyzeResponse](t, resp)
	var sum float64
	for _, rp := range result.RoleDistributionAll {
		sum += rp.Pct
	}
	assert.InDelta(t, 100.0, sum, 0.01)
	assert.NotEmpty(t, result.Risk.RiskClass)
	assert.NotEmpty(t, result.SimilarPosts)
	assert.NotEmpty(t, result.Meta.RequestID)

	runs, err := database.FetchHistory(context.Background(), db, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, database.ModeAnalyze, runs[0].Mode)
}

func TestAnalyzeSaveFalse(t *testing.T) {
	server, db := newTestServer(t, true)

	resp := postJSON(t, server.URL+"/analyze?save=false", api.AnalyzeRequest{
		PostText: "a perfectly ordinary product update post",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	runs, err := database.FetchHistory(context.Background(), db, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestAnalyzeRejectsEmptyText(t *testing.T) {
	server, _ := newTestServer(t, true)

	// missing entirely fails validation
	resp := postJSON(t, server.URL+"/analyze", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// whitespace-only passes validation but the predictor rejects it
	resp = postJSON(t, server.URL+"/analyze", api.AnalyzeRequest{PostText: "   \n\t"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAnalyzeRejectsBadSaveParam(t *testing.T) {
	server, _ := newTestServer(t, true)

	resp := postJSON(t, server.URL+"/analyze?save=maybe", api.AnalyzeRequest{PostText: "hello world"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCompare(t *testing.T) {
	server, db := newTestServer(t, true)

	resp := postJSON(t, server.URL+"/analyze/compare", api.CompareRequest{
		BaselineText: "we are announcing layoffs across the engineering org",
		VariantText:  "we are announcing a new product launch and growth plans",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decodeBody[api.CompareResponse](t, resp)
	require.NotNil(t, result.Baseline)
	require.NotNil(t, result.Variant)
	assert.NotEmpty(t, result.Delta.RiskProbDelta)

	runs, err := database.FetchHistory(context.Background(), db, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, database.ModeCompare, runs[0].Mode)
	require.NotNil(t, runs[0].VariantText)
}

func TestHistoryLimit(t *testing.T) {
	server, _ := newTestServer(t, true)

	for i := 0; i < 3; i++ {
		resp := postJSON(t, server.URL+"/analyze", api.AnalyzeRequest{PostText: fmt.Sprintf("post number %d about growth", i)})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, err := http.Get(server.URL + "/history?limit=2")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	history := decodeBody[api.HistoryResponse](t, resp)
	assert.Equal(t, 2, history.Count)
	require.Len(t, history.Rows, 2)
	assert.Greater(t, history.Rows[0].ID, history.Rows[1].ID)
	assert.NotEmpty(t, history.Rows[0].Response)

	for _, bad := range []string{"0", "201", "-5", "abc"} {
		resp, err := http.Get(server.URL + "/history?limit=" + bad)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "limit=%s", bad)
	}
}

func TestSimilar(t *testing.T) {
	server, _ := newTestServer(t, true)

	resp, err := http.Get(server.URL + "/similar?text=layoffs+at+a+tech+company&k=3")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	similar := decodeBody[api.SimilarResponse](t, resp)
	assert.Equal(t, len(similar.Matches), similar.Count)
	assert.NotEmpty(t, similar.Matches)
	assert.LessOrEqual(t, len(similar.Matches), 3)
	for _, match := range similar.Matches {
		assert.Equal(t, "acme", match.Company)
	}
}

func TestSimilarFilterValidation(t *testing.T) {
	server, _ := newTestServer(t, true)

	resp, err := http.Get(server.URL + `/similar?text=layoffs&filter=company+%3D+%22acme%22`)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(server.URL + `/similar?text=layoffs&filter=company+%3D%3D%3D`)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSimilarWithoutRetriever(t *testing.T) {
	server, _ := newTestServer(t, false)

	resp, err := http.Get(server.URL + "/similar?text=layoffs")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPredictionEndpointsWithoutModels(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.GetMigrator(db).Migrate())

	router := chi.NewRouter()
	NewService(db, nil).AddRoutes(router)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	health := decodeBody[api.HealthResponse](t, resp)
	resp.Body.Close()
	assert.False(t, health.ModelsLoaded)

	resp = postJSON(t, server.URL+"/analyze", api.AnalyzeRequest{PostText: "hello"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
