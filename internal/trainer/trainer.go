// Package trainer runs the full offline pipeline: load the post/comment
// exports, fit the shared feature space and the three predictive models,
// build the retriever, and write the artifact and report trees that serving
// reads.
package trainer

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"

	"orgrisk-backend/internal/core"
	"orgrisk-backend/internal/core/eval"
	"orgrisk-backend/internal/core/taxonomy"
	"orgrisk-backend/internal/core/textfeat"
	"orgrisk-backend/internal/dataset"
	"orgrisk-backend/internal/reports"
)

type Config struct {
	DataDir        string
	OutputDir      string
	HoldoutCompany string
	Seed           int64
	DisableCV      bool
}

// Result points at the written artifact trees and carries the in-memory
// metrics for callers that want to log or assert on them.
type Result struct {
	ModelsDir  string
	ReportsDir string
	Metrics    *reports.Metrics
	Manifest   dataset.SplitManifest
}

type run struct {
	config  Config
	tax     *taxonomy.Taxonomy
	tfidf   textfeat.VectorizerConfig
	bundle  *dataset.Bundle
	metrics reports.Metrics

	vectorizer *textfeat.Vectorizer
	role       *core.RoleModel
	narrative  *core.NarrativeModel
	risk       *core.RiskModel

	retrieverMatrix *textfeat.Matrix
	retrieverIndex  []core.IndexRow
}

// Run executes every pipeline stage in order and returns once both the
// models/ and reports/ trees are fully written. Any stage failure aborts the
// run with nothing partially trusted.
func Run(config Config) (*Result, error) {
	r := &run{config: config, tax: taxonomy.Default(), tfidf: textfeat.DefaultVectorizerConfig()}

	stages := []struct {
		name string
		fn   func() error
	}{
		{"loading dataset", r.loadData},
		{"fitting shared features", r.fitFeatures},
		{"training role model", r.trainRole},
		{"training narrative model", r.trainNarrative},
		{"training risk model", r.trainRisk},
		{"building retriever", r.buildRetriever},
		{"saving model artifacts", r.saveModels},
		{"writing reports", r.writeReports},
	}

	bar := progressbar.NewOptions(len(stages),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("training"),
		progressbar.OptionShowCount(),
	)
	for _, stage := range stages {
		bar.Describe(stage.name)
		if err := stage.fn(); err != nil {
			return nil, fmt.Errorf("%s: %w", stage.name, err)
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	r.logChecklist()
	return &Result{
		ModelsDir:  r.modelsDir(),
		ReportsDir: r.reportsDir(),
		Metrics:    &r.metrics,
		Manifest:   r.bundle.Manifest,
	}, nil
}

func (r *run) modelsDir() string  { return filepath.Join(r.config.OutputDir, core.ModelsDirName) }
func (r *run) reportsDir() string { return filepath.Join(r.config.OutputDir, core.ReportsDirName) }

func (r *run) loadData() error {
	bundle, err := dataset.Load(dataset.DefaultConfig(r.config.DataDir, r.config.HoldoutCompany))
	if err != nil {
		return err
	}
	if len(bundle.RetrieverTrain) == 0 {
		return fmt.Errorf("no training posts outside holdout company %q", r.config.HoldoutCompany)
	}
	r.bundle = bundle
	slog.Info("dataset loaded",
		"role_train", len(bundle.Role.Train), "role_test", len(bundle.Role.Test),
		"narrative_train", len(bundle.Narrative.Train), "narrative_test", len(bundle.Narrative.Test),
		"risk_train", len(bundle.Risk.Train), "risk_test", len(bundle.Risk.Test),
		"retriever_train", len(bundle.RetrieverTrain),
		"holdout", bundle.HoldoutCompany)
	return nil
}

// fitFeatures fits one vectorizer over every non-holdout post. All models
// share this feature space so that a single transform serves every sub-model
// at inference time.
func (r *run) fitFeatures() error {
	vectorizer := textfeat.NewVectorizer(r.tfidf)
	matrix, err := vectorizer.FitTransform(texts(r.bundle.RetrieverTrain))
	if err != nil {
		return err
	}
	r.vectorizer = vectorizer
	r.retrieverMatrix = matrix
	slog.Info("shared features fitted", "features", vectorizer.NumFeatures(), "posts", matrix.NumRows)
	return nil
}

func (r *run) trainRole() error {
	split := r.bundle.Role
	buckets := r.tax.RoleBuckets
	if len(split.Train) == 0 {
		return fmt.Errorf("role task has no training rows")
	}

	xTrain, err := r.vectorizer.Transform(texts(split.Train))
	if err != nil {
		return err
	}
	model, err := core.FitRoleModel(xTrain, roleTargets(split.Train, len(buckets)), buckets)
	if err != nil {
		return err
	}
	r.role = model

	if len(split.Test) > 0 {
		xTest, err := r.vectorizer.Transform(texts(split.Test))
		if err != nil {
			return err
		}
		metrics, err := eval.EvaluateRole(model, xTest, roleTargets(split.Test, len(buckets)), buckets)
		if err != nil {
			return err
		}
		r.metrics.Role.Test = metrics
	}

	if !r.config.DisableCV {
		cv, err := eval.RunRoleCV(split.Train, buckets, r.tfidf)
		if err != nil {
			return err
		}
		r.metrics.Role.CV = cv
	}
	return nil
}

func (r *run) trainNarrative() error {
	split := r.bundle.Narrative
	labels := r.tax.NarrativeLabels
	if len(split.Train) == 0 {
		return fmt.Errorf("narrative task has no training rows")
	}

	xTrain, err := r.vectorizer.Transform(texts(split.Train))
	if err != nil {
		return err
	}
	model, err := core.FitNarrativeModel(xTrain, narrativeTargets(split.Train), labels)
	if err != nil {
		return err
	}
	r.narrative = model

	if len(split.Test) > 0 {
		xTest, err := r.vectorizer.Transform(texts(split.Test))
		if err != nil {
			return err
		}
		metrics, err := eval.EvaluateNarrative(model, xTest, narrativeTargets(split.Test), labels, core.DefaultNarrativeThreshold)
		if err != nil {
			return err
		}
		r.metrics.Narrative.Test = metrics
	}

	if !r.config.DisableCV {
		cv, err := eval.RunNarrativeCV(split.Train, labels, core.DefaultNarrativeThreshold, r.tfidf)
		if err != nil {
			return err
		}
		r.metrics.Narrative.CV = cv
	}
	return nil
}

func (r *run) trainRisk() error {
	split := r.bundle.Risk
	if len(split.Train) == 0 {
		return fmt.Errorf("risk task has no labeled training rows")
	}

	xTrain, err := r.vectorizer.Transform(texts(split.Train))
	if err != nil {
		return err
	}
	model, err := core.FitRiskModel(xTrain, riskTargets(split.Train))
	if err != nil {
		return err
	}
	r.risk = model

	if len(split.Test) > 0 {
		xTest, err := r.vectorizer.Transform(texts(split.Test))
		if err != nil {
			return err
		}
		metrics, err := eval.EvaluateRisk(model, xTest, riskTargets(split.Test), model.Classes())
		if err != nil {
			return err
		}
		r.metrics.Risk.Test = metrics
	}

	if !r.config.DisableCV {
		cv, err := eval.RunRiskCV(split.Train, model.Classes(), r.tfidf)
		if err != nil {
			return err
		}
		r.metrics.Risk.CV = cv
	}
	return nil
}

func (r *run) buildRetriever() error {
	index := make([]core.IndexRow, len(r.bundle.RetrieverTrain))
	for i, p := range r.bundle.RetrieverTrain {
		index[i] = core.IndexRow{
			PostURL:       p.URL,
			Company:       p.Company,
			PostedAt:      p.PostedAt,
			RiskClass:     p.RiskTarget,
			TotalComments: p.TotalComments,
			Pct:           p.Pct,
		}
	}
	// construct once here so row/matrix mismatches fail the run instead of
	// surfacing at serving time
	if _, err := core.NewRetriever(r.vectorizer, r.retrieverMatrix, index); err != nil {
		return err
	}
	r.retrieverIndex = index
	return nil
}

func (r *run) saveModels() error {
	dir := r.modelsDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating models dir: %w", err)
	}

	metadata := &core.Metadata{
		RoleBuckets:             r.tax.RoleBuckets,
		NarrativeLabels:         r.tax.NarrativeLabels,
		RiskClasses:             r.tax.RiskClasses,
		NarrativeThreshold:      core.DefaultNarrativeThreshold,
		NarrativeShareThreshold: dataset.NarrativeShareThreshold,
		HoldoutCompany:          r.bundle.HoldoutCompany,
		MinComments: core.MinComments{
			Role:      dataset.RoleMinComments,
			Narrative: dataset.NarrativeMinComments,
		},
		Tfidf:     r.tfidf,
		Seed:      r.config.Seed,
		TrainedAt: time.Now().UTC().Format(time.RFC3339),
	}

	if err := core.SaveMetadata(filepath.Join(dir, core.MetadataFile), metadata); err != nil {
		return err
	}
	if err := r.vectorizer.Save(filepath.Join(dir, core.VectorizerFile)); err != nil {
		return err
	}
	if err := core.SaveRoleModel(filepath.Join(dir, core.RoleModelFile), r.role); err != nil {
		return err
	}
	if err := core.SaveNarrativeModel(filepath.Join(dir, core.NarrativeModelFile), r.narrative); err != nil {
		return err
	}
	if err := core.SaveRiskModel(filepath.Join(dir, core.RiskModelFile), r.risk); err != nil {
		return err
	}
	if err := r.retrieverMatrix.Save(filepath.Join(dir, core.TrainMatrixFile)); err != nil {
		return err
	}
	return core.SaveIndex(filepath.Join(dir, core.TrainIndexFile), r.retrieverIndex)
}

func (r *run) writeReports() error {
	dir := r.reportsDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating reports dir: %w", err)
	}

	plotPaths, err := reports.RenderPlots(dir, &r.metrics)
	if err != nil {
		return err
	}
	attachPlots(&r.metrics, dir, plotPaths)

	if err := reports.WriteMetrics(dir, &r.metrics); err != nil {
		return err
	}
	if err := reports.WriteSplitManifest(dir, r.bundle.Manifest); err != nil {
		return err
	}

	featureNames := r.vectorizer.FeatureNames()
	top := &reports.TopNgrams{
		Role:      eval.TopTerms(r.role, r.tax.RoleBuckets, featureNames, eval.DefaultTopTerms),
		Narrative: eval.TopTerms(r.narrative, r.tax.NarrativeLabels, featureNames, eval.DefaultTopTerms),
		Risk:      eval.TopTerms(r.risk, r.risk.Classes(), featureNames, eval.DefaultTopTerms),
	}
	return reports.WriteTopNgrams(dir, top)
}

// attachPlots records each rendered plot in its metrics section, as a path
// relative to the reports directory so the file stays portable.
func attachPlots(metrics *reports.Metrics, reportsDir string, paths map[string]string) {
	rel := func(name string) map[string]string {
		path, ok := paths[name]
		if !ok {
			return nil
		}
		if r, err := filepath.Rel(reportsDir, path); err == nil {
			path = r
		}
		return map[string]string{name: path}
	}
	metrics.Role.Plots = rel(reports.RoleMAEPlot)
	metrics.Narrative.Plots = rel(reports.NarrativePRPlot)
	metrics.Risk.Plots = rel(reports.RiskConfusionPlot)
}

func (r *run) logChecklist() {
	modelFiles := []string{
		core.MetadataFile, core.VectorizerFile, core.RoleModelFile,
		core.NarrativeModelFile, core.RiskModelFile, core.TrainMatrixFile, core.TrainIndexFile,
	}
	for _, name := range modelFiles {
		logArtifact(filepath.Join(r.modelsDir(), name))
	}
	for _, name := range []string{core.MetricsFile, core.SplitManifestFile, core.TopNgramsFile} {
		logArtifact(filepath.Join(r.reportsDir(), name))
	}
	if !r.bundle.NarrativeFromComments() {
		slog.Warn("narrative targets used the proxy fallback for some companies",
			"companies", r.bundle.NarrativeProxyCompanies)
	}
}

func logArtifact(path string) {
	info, err := os.Stat(path)
	if err != nil {
		slog.Error("expected artifact missing", "path", path)
		return
	}
	slog.Info("artifact written", "path", path, "bytes", info.Size())
}

func texts(posts []dataset.Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.Text
	}
	return out
}

func roleTargets(posts []dataset.Post, numBuckets int) [][]float64 {
	targets := make([][]float64, len(posts))
	for i, p := range posts {
		if len(p.RoleShares) == numBuckets {
			targets[i] = p.RoleShares
		} else {
			targets[i] = make([]float64, numBuckets)
		}
	}
	return targets
}

func narrativeTargets(posts []dataset.Post) [][]int {
	targets := make([][]int, len(posts))
	for i, p := range posts {
		targets[i] = p.NarrativeFlags
	}
	return targets
}

func riskTargets(posts []dataset.Post) []string {
	targets := make([]string, len(posts))
	for i, p := range posts {
		targets[i] = p.RiskTarget
	}
	return targets
}
