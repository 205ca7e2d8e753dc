// Regenerates plot images and prints a metrics summary for a finished
// training run. Plots render from metrics.json alone, so this works on runs
// pulled from object storage without the original data.
package main

import (
	"log"
	"os"
	"sort"
	"time"

	"github.com/urfave/cli/v2"

	"orgrisk-backend/internal/reports"
)

var reportsDirFlag = &cli.StringFlag{
	Name:     "reports_dir",
	Usage:    "Reports directory of a training run (the one holding metrics.json)",
	Required: true,
}

func main() {
	app := &cli.App{
		Name:     "reports",
		Usage:    "Rebuild plots and summarize a training run's metrics",
		Compiled: time.Now(),
		Flags:    []cli.Flag{reportsDirFlag},
		Action:   runReports,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func runReports(c *cli.Context) error {
	reportsDir := c.String(reportsDirFlag.Name)

	metrics, err := reports.LoadMetrics(reportsDir)
	if err != nil {
		return err
	}

	plots, err := reports.RenderPlots(reportsDir, metrics)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(plots))
	for name := range plots {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		log.Printf("rendered %s -> %s", name, plots[name])
	}

	if role := metrics.Role.Test; role != nil {
		log.Printf("role holdout: mae_macro=%.4f", role.MAE["macro"])
	}
	if narrative := metrics.Narrative.Test; narrative != nil {
		log.Printf("narrative holdout: f1_macro=%.4f f1_micro=%.4f", narrative.F1Macro, narrative.F1Micro)
	}
	if risk := metrics.Risk.Test; risk != nil {
		log.Printf("risk holdout: accuracy=%.4f f1_macro=%.4f", risk.Accuracy, risk.F1Macro)
	}
	return nil
}
