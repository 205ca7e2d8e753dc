package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"orgrisk-backend/internal/config"
	"orgrisk-backend/internal/storage"
	"orgrisk-backend/internal/trainer"
)

var (
	dataDirFlag = &cli.StringFlag{
		Name:     "data_dir",
		Usage:    "Directory holding {company}_posts_training.csv and {company}_comments_enriched_full.csv files",
		Required: true,
	}
	outputDirFlag = &cli.StringFlag{
		Name:  "output_dir",
		Usage: "Directory to write the models/ and reports/ trees into",
		Value: "output",
	}
	holdoutFlag = &cli.StringFlag{
		Name:  "holdout_company",
		Usage: "Company held out of training and used as the test split",
		Value: "meta",
	}
	seedFlag = &cli.Int64Flag{
		Name:  "seed",
		Usage: "Random seed recorded in the run metadata",
		Value: 42,
	}
	disableCVFlag = &cli.BoolFlag{
		Name:  "disable_cv",
		Usage: "Skip grouped cross-validation (faster runs, fewer diagnostics)",
	}
	uploadBucketFlag = &cli.StringFlag{
		Name:  "upload_bucket",
		Usage: "Bucket to publish the output trees to after training (optional)",
	}
	uploadPrefixFlag = &cli.StringFlag{
		Name:  "upload_prefix",
		Usage: "Key prefix to publish under (defaults to the run's output dir name)",
	}
)

func main() {
	app := &cli.App{
		Name:     "train",
		Usage:    "Train the post-risk models and write serving artifacts",
		Compiled: time.Now(),
		Flags: []cli.Flag{
			dataDirFlag,
			outputDirFlag,
			holdoutFlag,
			seedFlag,
			disableCVFlag,
			uploadBucketFlag,
			uploadPrefixFlag,
		},
		Action: runTrain,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func runTrain(c *cli.Context) error {
	start := time.Now()

	result, err := trainer.Run(trainer.Config{
		DataDir:        c.String(dataDirFlag.Name),
		OutputDir:      c.String(outputDirFlag.Name),
		HoldoutCompany: c.String(holdoutFlag.Name),
		Seed:           c.Int64(seedFlag.Name),
		DisableCV:      c.Bool(disableCVFlag.Name),
	})
	if err != nil {
		return err
	}

	log.Printf("training finished in %s", time.Since(start).Round(time.Millisecond))
	log.Printf("models written to %s", result.ModelsDir)
	log.Printf("reports written to %s", result.ReportsDir)
	if result.Metrics.Risk.Test != nil {
		log.Printf("risk holdout accuracy: %.4f", result.Metrics.Risk.Test.Accuracy)
	}

	if bucket := c.String(uploadBucketFlag.Name); bucket != "" {
		return uploadRun(c, bucket, c.String(outputDirFlag.Name))
	}
	return nil
}

func uploadRun(c *cli.Context, bucket, outputDir string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	provider, err := cfg.NewStorageProvider()
	if err != nil {
		return err
	}

	prefix := c.String(uploadPrefixFlag.Name)
	if prefix == "" {
		prefix = outputDir
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := provider.CreateBucket(ctx, bucket); err != nil {
		return err
	}
	if err := storage.UploadDir(ctx, provider, outputDir, bucket, prefix); err != nil {
		return fmt.Errorf("error uploading run to bucket %s: %w", bucket, err)
	}
	log.Printf("run uploaded to %s/%s", bucket, prefix)
	return nil
}
