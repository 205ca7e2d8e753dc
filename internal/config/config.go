// Package config holds the environment-driven settings for the serving
// process. Training settings come from CLI flags instead, since runs are
// one-shot and explicit.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"

	"orgrisk-backend/internal/storage"
)

type Config struct {
	APIPort     string   `env:"API_PORT" envDefault:"8001"`
	DatabaseURL string   `env:"DATABASE_URL" envDefault:"orgrisk.db"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`

	ModelDir                  string  `env:"MODEL_DIR" envDefault:"output/models"`
	NarrativeServingThreshold float64 `env:"NARRATIVE_SERVING_THRESHOLD" envDefault:"0.10"`

	// ArtifactBucket, when set, makes the server pull the model directory
	// from object storage on startup instead of relying on local files.
	StorageProvider   string `env:"STORAGE_PROVIDER" envDefault:"local"`
	LocalStorageDir   string `env:"LOCAL_STORAGE_DIR" envDefault:"storage"`
	ArtifactBucket    string `env:"ARTIFACT_BUCKET"`
	ArtifactPrefix    string `env:"ARTIFACT_PREFIX"`
	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config from environment: %w", err)
	}
	return &cfg, nil
}

// NewStorageProvider builds the configured artifact store.
func (c *Config) NewStorageProvider() (storage.Provider, error) {
	switch c.StorageProvider {
	case "local":
		return storage.NewLocalProvider(c.LocalStorageDir), nil
	case "s3":
		return storage.NewS3Provider(&storage.S3ProviderConfig{
			S3EndpointURL:     c.S3EndpointURL,
			S3AccessKeyID:     c.S3AccessKeyID,
			S3SecretAccessKey: c.S3SecretAccessKey,
			S3Region:          c.S3Region,
		})
	default:
		return nil, fmt.Errorf("unknown storage provider %q, expected local or s3", c.StorageProvider)
	}
}
