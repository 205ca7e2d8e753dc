package integrationtests

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgrisk-backend/internal/storage"
)

const testBucket = "test-bucket"

func setupTestProvider(t *testing.T, ctx context.Context) *storage.S3Provider {
	t.Helper()

	endpoint := setupMinioContainer(t, ctx)

	provider, err := storage.NewS3Provider(&storage.S3ProviderConfig{
		S3EndpointURL:     endpoint,
		S3AccessKeyID:     minioUsername,
		S3SecretAccessKey: minioPassword,
		S3Region:          "us-east-1",
	})
	require.NoError(t, err)
	require.NoError(t, provider.CreateBucket(ctx, testBucket))
	return provider
}

func TestS3ProviderObjectRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	provider := setupTestProvider(t, ctx)

	key := "run1/models/metadata.json"
	content := []byte(`{"seed": 42}`)
	require.NoError(t, provider.PutObject(ctx, testBucket, key, bytes.NewReader(content)))

	data, err := provider.GetObject(ctx, testBucket, key)
	require.NoError(t, err)
	assert.Equal(t, content, data)

	// creating an existing bucket is a no-op
	require.NoError(t, provider.CreateBucket(ctx, testBucket))
}

func TestS3ProviderListAndIter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	provider := setupTestProvider(t, ctx)

	keys := []string{"run1/a.json", "run1/plots/b.png", "run2/c.json"}
	for _, key := range keys {
		require.NoError(t, provider.PutObject(ctx, testBucket, key, bytes.NewReader([]byte("content: "+key))))
	}

	objs, err := provider.ListObjects(ctx, testBucket, "run1/")
	require.NoError(t, err)
	require.Len(t, objs, 2)

	var iterated []string
	for obj, err := range provider.IterObjects(ctx, testBucket, "run1/") {
		require.NoError(t, err)
		iterated = append(iterated, obj.Name)
	}
	assert.ElementsMatch(t, []string{"run1/a.json", "run1/plots/b.png"}, iterated)
}

func TestS3ProviderDirRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	provider := setupTestProvider(t, ctx)

	srcDir := t.TempDir()
	files := []string{"metadata.json", "role_model.json", "plots/role_mae.png"}
	for _, file := range files {
		path := filepath.Join(srcDir, file)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte("content: "+file), 0644))
	}

	require.NoError(t, storage.UploadDir(ctx, provider, srcDir, testBucket, "runs/42"))

	destDir := filepath.Join(t.TempDir(), "fetched")
	require.NoError(t, storage.DownloadDir(ctx, provider, testBucket, "runs/42", destDir))

	for _, file := range files {
		data, err := os.ReadFile(filepath.Join(destDir, file))
		require.NoError(t, err)
		assert.Equal(t, "content: "+file, string(data))
	}

	err := storage.DownloadDir(ctx, provider, testBucket, "runs/missing", t.TempDir())
	require.Error(t, err)
}
