package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

type Object struct {
	Name string
	Size int64
}

type ObjectIterator func(yield func(obj Object, err error) bool)

// Provider is the object storage abstraction used to publish and fetch
// trained artifact trees. Keys use forward slashes regardless of platform.
type Provider interface {
	CreateBucket(ctx context.Context, bucket string) error

	GetObject(ctx context.Context, bucket, key string) ([]byte, error)

	DownloadObject(ctx context.Context, bucket, key, filename string) error

	GetObjectStream(bucket, key string) (io.Reader, error)

	PutObject(ctx context.Context, bucket, key string, data io.Reader) error

	ListObjects(ctx context.Context, bucket, prefix string) ([]Object, error)

	IterObjects(ctx context.Context, bucket, prefix string) ObjectIterator
}

// UploadDir publishes every file under dir to bucket with the given key
// prefix, preserving the relative layout.
func UploadDir(ctx context.Context, provider Provider, dir, bucket, prefix string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("error opening %s for upload: %w", path, err)
		}
		defer f.Close()

		key := filepath.ToSlash(filepath.Join(prefix, rel))
		if err := provider.PutObject(ctx, bucket, key, f); err != nil {
			return fmt.Errorf("error uploading %s: %w", key, err)
		}
		return nil
	})
}

// DownloadDir fetches every object under prefix into dir, preserving the
// relative layout below the prefix.
func DownloadDir(ctx context.Context, provider Provider, bucket, prefix, dir string) error {
	objects, err := provider.ListObjects(ctx, bucket, prefix)
	if err != nil {
		return err
	}
	if len(objects) == 0 {
		return fmt.Errorf("no objects found under s3://%s/%s", bucket, prefix)
	}
	for _, obj := range objects {
		rel, err := filepath.Rel(prefix, obj.Name)
		if err != nil || rel == ".." || filepath.IsAbs(rel) {
			rel = filepath.Base(obj.Name)
		}
		if err := provider.DownloadObject(ctx, bucket, obj.Name, filepath.Join(dir, rel)); err != nil {
			return err
		}
	}
	return nil
}
