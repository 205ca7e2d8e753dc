package integrationtests

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgrisk-backend/internal/api"
	"orgrisk-backend/internal/core"
	"orgrisk-backend/internal/database"
	"orgrisk-backend/internal/storage"
	pkgapi "orgrisk-backend/pkg/api"
	"orgrisk-backend/pkg/client"
)

// Trains on synthetic data, publishes the run through MinIO, then serves the
// pulled artifacts over HTTP with Postgres-backed history and exercises the
// whole API through the client SDK.
func TestTrainPublishServe(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result := trainRun(t)
	outputDir := filepath.Dir(result.ModelsDir)

	provider := setupTestProvider(t, ctx)
	require.NoError(t, storage.UploadDir(ctx, provider, outputDir, testBucket, "runs/e2e"))

	servingDir := filepath.Join(t.TempDir(), "models")
	require.NoError(t, storage.DownloadDir(ctx, provider, testBucket, "runs/e2e/"+core.ModelsDirName, servingDir))

	predictor, err := core.LoadPredictor(servingDir, core.DefaultNarrativeServingThreshold)
	require.NoError(t, err)

	db, err := database.NewDatabase(setupPostgresContainer(t, ctx))
	require.NoError(t, err)

	router := chi.NewRouter()
	api.NewService(db, predictor).AddRoutes(router)
	server := httptest.NewServer(router)
	defer server.Close()

	sdk := client.New(server.URL)

	health, err := sdk.Health(ctx)
	require.NoError(t, err)
	assert.True(t, health.ModelsLoaded)

	analysis, err := sdk.Analyze(ctx, pkgapi.AnalyzeRequest{
		PostText: "layoffs and toxic culture are wearing the engineering team down",
	}, true)
	require.NoError(t, err)
	assert.Equal(t, "Harmful", analysis.Risk.ModelRiskClass)
	assert.NotEmpty(t, analysis.SimilarPosts)

	comparison, err := sdk.Compare(ctx, pkgapi.CompareRequest{
		BaselineText: "layoffs and toxic culture are wearing the engineering team down",
		VariantText:  "excited to celebrate our growth and the new product launch",
	}, true)
	require.NoError(t, err)
	assert.NotEmpty(t, comparison.Delta.RiskProbDelta)

	similar, err := sdk.Similar(ctx, "burnout from endless overtime", 3, `company = "acme"`)
	require.NoError(t, err)
	require.NotEmpty(t, similar.Matches)
	for _, match := range similar.Matches {
		assert.Equal(t, "acme", match.Company)
	}

	history, err := sdk.History(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 2, history.Count)
	assert.Equal(t, database.ModeCompare, history.Rows[0].Mode)
	assert.Equal(t, database.ModeAnalyze, history.Rows[1].Mode)

	// malformed filters surface as coded errors through the SDK
	_, err = sdk.Similar(ctx, "burnout", 3, `company ===`)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.StatusCode)
}
