package trainer

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgrisk-backend/internal/core"
	"orgrisk-backend/internal/dataset"
	"orgrisk-backend/pkg/api"
)

type postFixture struct {
	slug      string
	text      string
	riskClass string
	narrative string // attached to most comments on the post
}

// postFixtures gives every risk class three posts per company so the
// calibrated risk model always has enough samples per class.
var postFixtures = []postFixture{
	{"p1", "sudden layoffs hit the engineering team hard this week", "harmful", "toxic_culture"},
	{"p2", "toxic culture and layoffs drove our senior engineers away", "harmful", "toxic_culture"},
	{"p3", "more layoffs announced while management blames the market", "harmful", "toxic_culture"},
	{"p4", "burnout is real after months of constant overtime here", "harmless", "burnout"},
	{"p5", "feeling serious burnout from endless overtime this quarter", "harmless", "burnout"},
	{"p6", "an overtime culture leads straight to burnout for many", "harmless", "burnout"},
	{"p7", "excited to share our growth and the new product launch", "helpful", ""},
	{"p8", "celebrating a wonderful product launch with the whole team", "helpful", ""},
	{"p9", "proud of our growth this year and thankful to everyone", "helpful", ""},
}

func writeRows(t *testing.T, path string, header []string, rows []map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := csv.NewWriter(f)
	require.NoError(t, w.Write(header))
	for _, row := range rows {
		record := make([]string, len(header))
		for i, col := range header {
			record[i] = row[col]
		}
		require.NoError(t, w.Write(record))
	}
	w.Flush()
	require.NoError(t, w.Error())
}

func writeCompany(t *testing.T, dir, company string) {
	t.Helper()

	var posts []map[string]string
	var comments []map[string]string
	for _, fx := range postFixtures {
		url := "https://www.linkedin.com/posts/" + company + "/" + fx.slug
		posts = append(posts, map[string]string{
			"post_url":               url,
			"post_text":              fx.text + " at " + company,
			"posted_at":              "2024-05-01",
			"total_comments":         "20",
			"risk_class_full":        fx.riskClass,
			"pct_toxic_burnout":      "0.2",
			"pct_negative":           "0.3",
			"pct_supportive":         "0.4",
			"pct_negative_full":      "0.3",
			"pct_toxic_burnout_full": "0.2",
		})
		for i := 0; i < 4; i++ {
			bucket := "Software Engineer"
			if i == 3 {
				bucket = "Recruiter/HR"
			}
			comments = append(comments, map[string]string{
				"post_url":     url,
				"comment_text": "comment on " + fx.slug,
				"role_bucket":  bucket,
				"narrative":    fx.narrative,
			})
		}
	}
	writeRows(t, filepath.Join(dir, company+"_posts_training.csv"), dataset.PostRequiredColumns, posts)
	writeRows(t, filepath.Join(dir, company+"_comments_enriched_full.csv"), dataset.CommentRequiredColumns, comments)
}

func trainingData(t *testing.T, companies ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, company := range companies {
		writeCompany(t, dir, company)
	}
	return dir
}

func TestRunWritesAllArtifacts(t *testing.T) {
	dataDir := trainingData(t, "acme", "globex", "meta")
	outputDir := t.TempDir()

	result, err := Run(Config{
		DataDir:        dataDir,
		OutputDir:      outputDir,
		HoldoutCompany: "meta",
		Seed:           42,
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outputDir, "models"), result.ModelsDir)
	assert.Equal(t, filepath.Join(outputDir, "reports"), result.ReportsDir)

	modelFiles := []string{
		core.MetadataFile, core.VectorizerFile, core.RoleModelFile,
		core.NarrativeModelFile, core.RiskModelFile,
		core.TrainMatrixFile, core.TrainIndexFile,
	}
	for _, name := range modelFiles {
		info, err := os.Stat(filepath.Join(result.ModelsDir, name))
		require.NoError(t, err, "missing %s", name)
		assert.Greater(t, info.Size(), int64(0))
	}
	for _, name := range []string{core.MetricsFile, core.SplitManifestFile, core.TopNgramsFile} {
		_, err := os.Stat(filepath.Join(result.ReportsDir, name))
		require.NoError(t, err, "missing %s", name)
	}

	// holdout had data for every task, so every test section is present
	require.NotNil(t, result.Metrics.Role.Test)
	require.NotNil(t, result.Metrics.Narrative.Test)
	require.NotNil(t, result.Metrics.Risk.Test)
	assert.Contains(t, result.Metrics.Role.Test.MAE, "macro")

	// two distinct training companies is enough for grouped CV
	assert.Contains(t, result.Metrics.Role.CV, "mae_macro_cv")
	assert.Contains(t, result.Metrics.Narrative.CV, "f1_macro_cv")
	assert.Contains(t, result.Metrics.Risk.CV, "f1_macro_cv")

	assert.NotEmpty(t, result.Metrics.Role.Plots)
	assert.NotEmpty(t, result.Metrics.Risk.Plots)
}

func TestRunHoldoutNeverTrains(t *testing.T) {
	dataDir := trainingData(t, "acme", "globex", "meta")
	outputDir := t.TempDir()

	result, err := Run(Config{
		DataDir:        dataDir,
		OutputDir:      outputDir,
		HoldoutCompany: "meta",
		DisableCV:      true,
	})
	require.NoError(t, err)

	for task, counts := range map[string]dataset.SplitCounts{
		"role":      result.Manifest.Role,
		"narrative": result.Manifest.Narrative,
		"risk":      result.Manifest.Risk,
	} {
		assert.NotContains(t, counts.Train, "meta", "%s train split leaked holdout rows", task)
		assert.Equal(t, map[string]int{"meta": len(postFixtures)}, counts.Test, "%s test split", task)
	}

	index, err := core.LoadIndex(filepath.Join(result.ModelsDir, core.TrainIndexFile))
	require.NoError(t, err)
	require.Len(t, index, 2*len(postFixtures))
	for _, row := range index {
		assert.NotEqual(t, "meta", row.Company)
	}
}

func TestRunDisableCVSkipsCV(t *testing.T) {
	dataDir := trainingData(t, "acme", "globex", "meta")

	result, err := Run(Config{
		DataDir:        dataDir,
		OutputDir:      t.TempDir(),
		HoldoutCompany: "meta",
		DisableCV:      true,
	})
	require.NoError(t, err)
	assert.Empty(t, result.Metrics.Role.CV)
	assert.Empty(t, result.Metrics.Narrative.CV)
	assert.Empty(t, result.Metrics.Risk.CV)
}

func TestRunUnknownHoldout(t *testing.T) {
	dataDir := trainingData(t, "acme", "globex")

	_, err := Run(Config{
		DataDir:        dataDir,
		OutputDir:      t.TempDir(),
		HoldoutCompany: "initech",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initech")
}

func TestTrainedArtifactsServeAnalyze(t *testing.T) {
	dataDir := trainingData(t, "acme", "globex", "meta")

	result, err := Run(Config{
		DataDir:        dataDir,
		OutputDir:      t.TempDir(),
		HoldoutCompany: "meta",
		DisableCV:      true,
	})
	require.NoError(t, err)

	predictor, err := core.LoadPredictor(result.ModelsDir, core.DefaultNarrativeServingThreshold)
	require.NoError(t, err)
	assert.True(t, predictor.HasRetriever())
	assert.NotNil(t, predictor.TopNgrams())

	resp, err := predictor.Analyze(api.AnalyzeRequest{
		PostText: "layoffs and toxic culture are wearing the engineering team down",
	})
	require.NoError(t, err)

	var shareSum float64
	for _, rp := range resp.RoleDistributionAll {
		assert.GreaterOrEqual(t, rp.Pct, 0.0)
		shareSum += rp.Pct
	}
	assert.InDelta(t, 100.0, shareSum, 0.01)

	var probSum float64
	for _, p := range resp.Risk.RiskProbs {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
		probSum += p
	}
	assert.InDelta(t, 1.0, probSum, 1e-6)
	assert.Contains(t, resp.Risk.RiskProbs, resp.Risk.ModelRiskClass)

	for label, prob := range resp.Narratives.NarrativeProbs {
		assert.GreaterOrEqual(t, prob, 0.0)
		assert.LessOrEqual(t, prob, 1.0)
		if resp.Narratives.NarrativeFlags[label] {
			assert.GreaterOrEqual(t, prob, core.DefaultNarrativeServingThreshold)
		}
	}

	assert.NotEmpty(t, resp.SimilarPosts)
	for i := 1; i < len(resp.SimilarPosts); i++ {
		assert.GreaterOrEqual(t, resp.SimilarPosts[i-1].Score, resp.SimilarPosts[i].Score)
	}
}
