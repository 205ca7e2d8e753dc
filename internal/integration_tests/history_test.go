package integrationtests

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgrisk-backend/internal/database"
)

func TestHistoryOnPostgres(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	uri := setupPostgresContainer(t, ctx)
	db, err := database.NewDatabase(uri)
	require.NoError(t, err)

	variant := "variant text"
	_, err = database.SaveRun(ctx, db, database.ModeAnalyze, "first post", nil,
		map[string]any{"confidence_entropy": 1.2})
	require.NoError(t, err)
	_, err = database.SaveRun(ctx, db, database.ModeCompare, "second post", &variant,
		map[string]any{"delta": 0.1})
	require.NoError(t, err)

	runs, err := database.FetchHistory(ctx, db, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	// newest first
	assert.Equal(t, database.ModeCompare, runs[0].Mode)
	require.NotNil(t, runs[0].VariantText)
	assert.Equal(t, variant, *runs[0].VariantText)
	assert.JSONEq(t, `{"delta":0.1}`, string(runs[0].Response))

	assert.Equal(t, database.ModeAnalyze, runs[1].Mode)
	assert.Nil(t, runs[1].VariantText)

	limited, err := database.FetchHistory(ctx, db, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, runs[0].ID, limited[0].ID)
}
