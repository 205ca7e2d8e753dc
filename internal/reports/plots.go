package reports

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/samber/lo"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"orgrisk-backend/internal/core"
	"orgrisk-backend/internal/core/eval"
)

const (
	RoleMAEPlot       = "role_mae_per_bucket"
	NarrativePRPlot   = "narrative_pr_curves"
	RiskConfusionPlot = "risk_confusion_matrix"
)

// RenderPlots draws every chart the metrics file supports into
// reportsDir/plots and returns plot name -> file path. Everything needed is
// carried inside the metrics, so plots can be regenerated later without the
// models or data.
func RenderPlots(reportsDir string, metrics *Metrics) (map[string]string, error) {
	plotsDir := filepath.Join(reportsDir, core.PlotsDirName)
	if err := os.MkdirAll(plotsDir, 0755); err != nil {
		return nil, fmt.Errorf("error creating plots dir: %w", err)
	}

	paths := make(map[string]string, 3)

	if metrics.Role.Test != nil {
		path := filepath.Join(plotsDir, RoleMAEPlot+".png")
		if err := plotRoleMAE(metrics.Role.Test.MAE, path); err != nil {
			return nil, err
		}
		paths[RoleMAEPlot] = path
	}
	if metrics.Narrative.Test != nil {
		path := filepath.Join(plotsDir, NarrativePRPlot+".png")
		if err := plotPRCurves(metrics.Narrative.Test.PRCurves, path); err != nil {
			return nil, err
		}
		paths[NarrativePRPlot] = path
	}
	if metrics.Risk.Test != nil {
		path := filepath.Join(plotsDir, RiskConfusionPlot+".png")
		if err := plotConfusion(metrics.Risk.Test.Classes, metrics.Risk.Test.Confusion, path); err != nil {
			return nil, err
		}
		paths[RiskConfusionPlot] = path
	}
	return paths, nil
}

// plotRoleMAE draws one bar per role bucket. The "macro" aggregate is
// excluded from the bars since it averages the others.
func plotRoleMAE(mae map[string]float64, path string) error {
	buckets := lo.Without(lo.Keys(mae), "macro")
	sort.Strings(buckets)

	values := make(plotter.Values, len(buckets))
	for i, bucket := range buckets {
		values[i] = mae[bucket]
	}

	p := plot.New()
	p.Title.Text = "Role composition: per-bucket MAE"
	p.Y.Label.Text = "MAE"

	bars, err := plotter.NewBarChart(values, vg.Points(18))
	if err != nil {
		return fmt.Errorf("error building MAE bar chart: %w", err)
	}
	bars.Color = plotutil.Color(0)
	p.Add(bars)
	p.NominalX(buckets...)
	p.X.Tick.Label.Rotation = 0.8
	p.X.Tick.Label.XAlign = -0.9

	if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("error saving %s: %w", path, err)
	}
	return nil
}

func plotPRCurves(curves map[string][]eval.PRPoint, path string) error {
	labels := lo.Keys(curves)
	sort.Strings(labels)

	p := plot.New()
	p.Title.Text = "Narrative precision-recall curves"
	p.X.Label.Text = "Recall"
	p.Y.Label.Text = "Precision"
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1.05

	for i, label := range labels {
		pts := make(plotter.XYs, len(curves[label]))
		for j, point := range curves[label] {
			pts[j].X = point.Recall
			pts[j].Y = point.Precision
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("error building PR curve for %s: %w", label, err)
		}
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(label, line)
	}

	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("error saving %s: %w", path, err)
	}
	return nil
}

// confusionGrid adapts a row-normalized confusion matrix to the heat map
// interface. Row 0 is drawn at the top to match the usual orientation.
type confusionGrid struct {
	cells [][]float64
}

func (g confusionGrid) Dims() (int, int) { return len(g.cells), len(g.cells) }
func (g confusionGrid) X(c int) float64  { return float64(c) }
func (g confusionGrid) Y(r int) float64  { return float64(len(g.cells) - 1 - r) }
func (g confusionGrid) Z(c, r int) float64 {
	return g.cells[len(g.cells)-1-r][c]
}

func plotConfusion(classes []string, cells [][]float64, path string) error {
	p := plot.New()
	p.Title.Text = "Risk class confusion matrix (normalized)"
	p.X.Label.Text = "Predicted label"
	p.Y.Label.Text = "True label"

	heat := plotter.NewHeatMap(confusionGrid{cells: cells}, palette.Heat(12, 1))
	heat.Min, heat.Max = 0, 1
	p.Add(heat)

	reversed := make([]string, len(classes))
	for i, class := range classes {
		reversed[len(classes)-1-i] = class
	}
	p.NominalX(classes...)
	p.NominalY(reversed...)

	labels := plotter.XYLabels{}
	for r, row := range cells {
		for c, v := range row {
			labels.XYs = append(labels.XYs, plotter.XY{X: float64(c), Y: float64(len(cells) - 1 - r)})
			labels.Labels = append(labels.Labels, fmt.Sprintf("%.2f", v))
		}
	}
	annotations, err := plotter.NewLabels(labels)
	if err != nil {
		return fmt.Errorf("error building confusion annotations: %w", err)
	}
	p.Add(annotations)

	if err := p.Save(6*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("error saving %s: %w", path, err)
	}
	return nil
}
