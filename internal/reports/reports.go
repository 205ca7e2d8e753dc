// Package reports writes the training run's evaluation outputs: metrics,
// the split manifest, top n-grams, and plot images. Serving only ever reads
// top_ngrams.json; everything else is for humans.
package reports

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"orgrisk-backend/internal/core"
	"orgrisk-backend/internal/core/eval"
	"orgrisk-backend/internal/dataset"
)

type RoleSection struct {
	Test  *eval.RoleMetrics  `json:"test"`
	CV    map[string]float64 `json:"cv"`
	Plots map[string]string  `json:"plots"`
}

type NarrativeSection struct {
	Test  *eval.NarrativeMetrics `json:"test"`
	CV    map[string]float64     `json:"cv"`
	Plots map[string]string      `json:"plots"`
}

type RiskSection struct {
	Test  *eval.RiskMetrics  `json:"test"`
	CV    map[string]float64 `json:"cv"`
	Plots map[string]string  `json:"plots"`
}

type Metrics struct {
	Role      RoleSection      `json:"role"`
	Narrative NarrativeSection `json:"narrative"`
	Risk      RiskSection      `json:"risk"`
}

// TopNgrams holds the highest-weighted terms per linear sub-model, for
// qualitative inspection and as serving-side report evidence.
type TopNgrams struct {
	Role      map[string][]eval.TermWeight `json:"role"`
	Narrative map[string][]eval.TermWeight `json:"narrative"`
	Risk      map[string][]eval.TermWeight `json:"risk"`
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error serializing %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing %s: %w", path, err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("error parsing %s: %w", path, err)
	}
	return nil
}

func WriteMetrics(reportsDir string, metrics *Metrics) error {
	return writeJSON(filepath.Join(reportsDir, core.MetricsFile), metrics)
}

func LoadMetrics(reportsDir string) (*Metrics, error) {
	var metrics Metrics
	if err := readJSON(filepath.Join(reportsDir, core.MetricsFile), &metrics); err != nil {
		return nil, err
	}
	return &metrics, nil
}

func WriteSplitManifest(reportsDir string, manifest dataset.SplitManifest) error {
	return writeJSON(filepath.Join(reportsDir, core.SplitManifestFile), manifest)
}

func WriteTopNgrams(reportsDir string, top *TopNgrams) error {
	return writeJSON(filepath.Join(reportsDir, core.TopNgramsFile), top)
}
