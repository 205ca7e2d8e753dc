package main

import (
	"log"
	"os"
	"runtime"
	"time"

	"github.com/urfave/cli/v2"

	"orgrisk-backend/internal/dataset"
)

var (
	inputDirFlag = &cli.StringFlag{
		Name:     "input_dir",
		Usage:    "Directory holding one {company}.json scrape export per company",
		Required: true,
	}
	outputDirFlag = &cli.StringFlag{
		Name:  "output_dir",
		Usage: "Directory to write the per-company training CSV pairs into",
		Value: "data",
	}
	workersFlag = &cli.IntFlag{
		Name:  "workers",
		Usage: "Max concurrent export conversions",
		Value: runtime.NumCPU(),
	}
)

func main() {
	app := &cli.App{
		Name:     "dataprep",
		Usage:    "Convert raw scrape exports into training CSVs",
		Compiled: time.Now(),
		Flags: []cli.Flag{
			inputDirFlag,
			outputDirFlag,
			workersFlag,
		},
		Action: runPrep,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func runPrep(c *cli.Context) error {
	start := time.Now()

	results, err := dataset.PrepDir(
		c.String(inputDirFlag.Name),
		c.String(outputDirFlag.Name),
		c.Int(workersFlag.Name),
	)
	if err != nil {
		return err
	}

	for _, r := range results {
		log.Printf("prepared %s: %d posts, %d comments (%d duplicates, %d invalid rows dropped)",
			r.Company, r.Posts, r.Comments, r.DuplicatesDropped, r.InvalidDropped)
	}
	log.Printf("prepared %d companies in %s", len(results), time.Since(start).Round(time.Millisecond))
	return nil
}
