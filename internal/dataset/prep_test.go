package dataset

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeExport(t *testing.T, dir, company string, posts []RawPost) string {
	t.Helper()
	data, err := json.Marshal(posts)
	require.NoError(t, err)
	path := filepath.Join(dir, company+".json")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func exportPost(url, text, riskClass string, comments []RawComment) RawPost {
	return RawPost{
		PostURL:       url,
		PostText:      text,
		PostedAt:      "2024-03-01",
		Likes:         12,
		RiskClassFull: riskClass,
		RiskLevelFull: "Low",
		RiskScoreFull: 0.2,
		Comments:      comments,
	}
}

func TestPrepCompanyComputesProxies(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()

	comments := []RawComment{
		{CommentText: "this place is a grind", RoleBucket: "Software Engineer",
			Sentiment: "negative", Tone: "critical", Narrative: "burnout", Enriched: true},
		{CommentText: "leadership hides everything", RoleBucket: "Recruiter/HR",
			Sentiment: "negative", Tone: "hostile", Narrative: "toxic_culture", Enriched: true},
		{CommentText: "congrats on the launch", RoleBucket: "Software Engineer",
			Sentiment: "positive", Tone: "supportive"},
		{CommentText: "interesting take", RoleBucket: "Other",
			Sentiment: "neutral", Tone: "neutral"},
	}
	writeExport(t, inDir, "acme", []RawPost{
		exportPost("https://x.com/p/1", "quarterly update from the team", "harmless", comments),
	})

	result, err := PrepCompany(filepath.Join(inDir, "acme.json"), outDir)
	require.NoError(t, err)
	assert.Equal(t, "acme", result.Company)
	assert.Equal(t, 1, result.Posts)
	assert.Equal(t, 4, result.Comments)

	f, err := os.Open(filepath.Join(outDir, "acme_posts_training.csv"))
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, PostRequiredColumns, records[0])

	row := make(map[string]string, len(records[0]))
	for i, col := range records[0] {
		row[col] = records[1][i]
	}
	assert.Equal(t, "4", row["total_comments"])
	assert.Equal(t, "harmless", row["risk_class_full"])

	// Full-pass shares cover all four comments.
	assert.Equal(t, "0.5", row["pct_negative_full"])
	assert.Equal(t, "0.25", row["pct_negative_engineer_full"])
	assert.Equal(t, "0.5", row["pct_toxic_burnout_full"])
	assert.Equal(t, "0.5", row["pct_critical_hostile_full"])
	assert.Equal(t, "0.25", row["pct_supportive_full"])

	// First-pass shares only cover the two enriched comments.
	assert.Equal(t, "1", row["pct_negative"])
	assert.Equal(t, "0.5", row["pct_negative_engineer"])
	assert.Equal(t, "1", row["pct_toxic_burnout"])
	assert.Equal(t, "1", row["pct_critical_hostile"])
	assert.Equal(t, "0", row["pct_supportive"])
}

func TestPrepCompanyDropsDuplicatesAndInvalid(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()

	writeExport(t, inDir, "acme", []RawPost{
		exportPost("https://x.com/p/1?utm=a", "first post", "harmless", nil),
		// Same canonical url as above once tracking params are stripped.
		exportPost("https://x.com/p/1?utm=b", "shadowed duplicate", "harmful", nil),
		exportPost("https://x.com/p/2", "   ", "harmless", nil),
		exportPost("", "no url at all", "harmless", nil),
	})

	result, err := PrepCompany(filepath.Join(inDir, "acme.json"), outDir)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Posts)
	assert.Equal(t, 1, result.DuplicatesDropped)
	assert.Equal(t, 2, result.InvalidDropped)
}

func TestPrepDirRoundTripsThroughLoad(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()

	enriched := func(narrative string) []RawComment {
		comments := make([]RawComment, 0, 4)
		for i := 0; i < 3; i++ {
			comments = append(comments, RawComment{
				CommentText: "engineers are burning out here", RoleBucket: "Software Engineer",
				Sentiment: "negative", Tone: "critical", Narrative: narrative, Enriched: true,
			})
		}
		comments = append(comments, RawComment{
			CommentText: "hiring is going great", RoleBucket: "Recruiter/HR",
			Sentiment: "positive", Tone: "supportive", Enriched: true,
		})
		return comments
	}

	writeExport(t, inDir, "acme", []RawPost{
		exportPost("https://x.com/p/1", "layoffs hit the platform org", "harmful", enriched("toxic_culture")),
		exportPost("https://x.com/p/2", "weekend pager duty again", "harmless", enriched("burnout")),
	})
	writeExport(t, inDir, "globex", []RawPost{
		exportPost("https://x.com/g/1", "record quarter for the team", "helpful", enriched("")),
	})

	results, err := PrepDir(inDir, outDir, 4)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "acme", results[0].Company)
	assert.Equal(t, "globex", results[1].Company)

	bundle, err := Load(DefaultConfig(outDir, "globex"))
	require.NoError(t, err)
	assert.Len(t, bundle.RetrieverTrain, 2)
	assert.Len(t, bundle.Risk.Train, 2)
	assert.Len(t, bundle.Risk.Test, 1)
	assert.Equal(t, "Harmful", bundle.Risk.Train[0].RiskTarget)

	for _, post := range bundle.RetrieverTrain {
		assert.InDelta(t, 0.75, post.Pct["pct_negative"], 1e-9)
	}
}

func TestPrepDirEmptyInput(t *testing.T) {
	_, err := PrepDir(t.TempDir(), t.TempDir(), 4)
	require.Error(t, err)
}
