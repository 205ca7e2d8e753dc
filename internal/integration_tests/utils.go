package integrationtests

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/minio"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"orgrisk-backend/internal/dataset"
	"orgrisk-backend/internal/trainer"
)

const (
	minioUsername = "admin"
	minioPassword = "password"
)

func setupMinioContainer(t *testing.T, ctx context.Context) string {
	minioContainer, err := minio.Run(
		ctx,
		"minio/minio:RELEASE.2024-01-16T16-07-38Z",
		minio.WithUsername(minioUsername),
		minio.WithPassword(minioPassword),
	)
	require.NoError(t, err, "Failed to start MinIO container")

	t.Cleanup(func() {
		err := minioContainer.Terminate(context.Background())
		require.NoError(t, err, "Failed to terminate MinIO container")
	})

	connStr, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err, "Failed to get MinIO connection string")

	return "http://" + connStr
}

func setupPostgresContainer(t *testing.T, ctx context.Context) string {
	dbName, dbUser, dbPassword := "test_db", "test_user", "test_password"

	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	t.Cleanup(func() {
		err := postgresContainer.Terminate(context.Background())
		require.NoError(t, err, "Failed to terminate PostgreSQL container")
	})

	connStr, err := postgresContainer.ConnectionString(ctx)
	require.NoError(t, err, "Failed to get PostgreSQL connection string")

	return connStr
}

type postSeed struct {
	slug      string
	text      string
	riskClass string
	narrative string
}

// postSeeds gives every risk class three posts per company so the calibrated
// risk model always has enough samples per class.
var postSeeds = []postSeed{
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
	for _, seed := range postSeeds {
		url := "https://www.linkedin.com/posts/" + company + "/" + seed.slug
		posts = append(posts, map[string]string{
			"post_url":               url,
			"post_text":              seed.text + " at " + company,
			"posted_at":              "2024-05-01",
			"total_comments":         "20",
			"risk_class_full":        seed.riskClass,
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
				"comment_text": "comment on " + seed.slug,
				"role_bucket":  bucket,
				"narrative":    seed.narrative,
			})
		}
	}
	writeRows(t, filepath.Join(dir, company+"_posts_training.csv"), dataset.PostRequiredColumns, posts)
	writeRows(t, filepath.Join(dir, company+"_comments_enriched_full.csv"), dataset.CommentRequiredColumns, comments)
}

// trainRun runs a full training pass over synthetic data and returns the
// run's output directory.
func trainRun(t *testing.T) *trainer.Result {
	t.Helper()

	dataDir := t.TempDir()
	for _, company := range []string{"acme", "globex", "meta"} {
		writeCompany(t, dataDir, company)
	}

	result, err := trainer.Run(trainer.Config{
		DataDir:        dataDir,
		OutputDir:      t.TempDir(),
		HoldoutCompany: "meta",
		DisableCV:      true,
	})
	require.NoError(t, err)
	return result
}
