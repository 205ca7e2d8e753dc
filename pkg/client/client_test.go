package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgrisk-backend/pkg/api"
)

func newStubServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(server.URL)
}

func TestHealth(t *testing.T) {
	c := newStubServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		json.NewEncoder(w).Encode(api.HealthResponse{Status: "ok", ModelsLoaded: true})
	})

	health, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.True(t, health.ModelsLoaded)
}

func TestAnalyzeSendsBodyAndSaveParam(t *testing.T) {
	c := newStubServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/analyze", r.URL.Path)
		assert.Equal(t, "false", r.URL.Query().Get("save"))

		var req api.AnalyzeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "big launch today", req.PostText)

		json.NewEncoder(w).Encode(api.AnalyzeResponse{
			InputText:         req.PostText,
			ConfidenceEntropy: 1.5,
		})
	})

	res, err := c.Analyze(context.Background(), api.AnalyzeRequest{PostText: "big launch today"}, false)
	require.NoError(t, err)
	assert.Equal(t, "big launch today", res.InputText)
	assert.InDelta(t, 1.5, res.ConfidenceEntropy, 1e-9)
}

func TestCompare(t *testing.T) {
	c := newStubServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/analyze/compare", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("save"))
		json.NewEncoder(w).Encode(api.CompareResponse{
			Delta: api.CompareDelta{RiskProbDelta: map[string]float64{"Harmful": -0.2}},
		})
	})

	res, err := c.Compare(context.Background(), api.CompareRequest{
		BaselineText: "a", VariantText: "b",
	}, true)
	require.NoError(t, err)
	assert.InDelta(t, -0.2, res.Delta.RiskProbDelta["Harmful"], 1e-9)
}

func TestHistoryLimitParam(t *testing.T) {
	var gotLimit string
	c := newStubServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/history", r.URL.Path)
		gotLimit = r.URL.Query().Get("limit")
		json.NewEncoder(w).Encode(api.HistoryResponse{Count: 0})
	})

	_, err := c.History(context.Background(), 25)
	require.NoError(t, err)
	assert.Equal(t, "25", gotLimit)

	_, err = c.History(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, gotLimit)
}

func TestSimilarParams(t *testing.T) {
	c := newStubServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/similar", r.URL.Path)
		assert.Equal(t, "layoffs at the platform org", r.URL.Query().Get("text"))
		assert.Equal(t, "3", r.URL.Query().Get("k"))
		assert.Equal(t, `company = "acme"`, r.URL.Query().Get("filter"))
		json.NewEncoder(w).Encode(api.SimilarResponse{
			Matches: []api.SimilarPost{{Company: "acme", Score: 0.9}},
			Count:   1,
		})
	})

	res, err := c.Similar(context.Background(), "layoffs at the platform org", 3, `company = "acme"`)
	require.NoError(t, err)
	require.Equal(t, 1, res.Count)
	assert.Equal(t, "acme", res.Matches[0].Company)
}

func TestAPIErrorCarriesStatusAndBody(t *testing.T) {
	c := newStubServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "post_text must not be empty", http.StatusBadRequest)
	})

	_, err := c.Analyze(context.Background(), api.AnalyzeRequest{}, true)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "post_text must not be empty", apiErr.Message)
}
