package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"orgrisk-backend/internal/core/textfeat"
)

// Artifact layout under a run's output directory.
const (
	ModelsDirName  = "models"
	ReportsDirName = "reports"
	PlotsDirName   = "plots"

	MetadataFile       = "metadata.json"
	RoleModelFile      = "role_model.json"
	NarrativeModelFile = "narrative_model.json"
	RiskModelFile      = "risk_model.json"
	VectorizerFile     = "shared_tfidf.json"
	TrainMatrixFile    = "train_tfidf_matrix.json"
	TrainIndexFile     = "train_post_index.csv"

	MetricsFile       = "metrics.json"
	SplitManifestFile = "split_manifest.json"
	TopNgramsFile     = "top_ngrams.json"
)

var (
	ErrNotFitted       = errors.New("model has not been fitted")
	ErrMissingArtifact = errors.New("missing model artifact")
)

type MinComments struct {
	Role      float64 `json:"role"`
	Narrative float64 `json:"narrative"`
}

// Metadata describes a trained artifact set. Serving refuses to start
// without it.
type Metadata struct {
	RoleBuckets             []string                  `json:"role_buckets"`
	NarrativeLabels         []string                  `json:"narrative_labels"`
	RiskClasses             []string                  `json:"risk_classes"`
	NarrativeThreshold      float64                   `json:"narrative_threshold"`
	NarrativeShareThreshold float64                   `json:"narrative_share_threshold"`
	HoldoutCompany          string                    `json:"holdout_company"`
	MinComments             MinComments               `json:"min_comments"`
	Tfidf                   textfeat.VectorizerConfig `json:"tfidf"`
	Seed                    int64                     `json:"seed"`
	TrainedAt               string                    `json:"trained_at"`
}

func (m *Metadata) Validate() error {
	if len(m.RoleBuckets) == 0 || len(m.NarrativeLabels) == 0 {
		return errors.New("metadata missing required role_buckets or narrative_labels")
	}
	return nil
}

func SaveMetadata(path string, metadata *Metadata) error {
	return saveJSON(path, metadata)
}

func LoadMetadata(path string) (*Metadata, error) {
	var metadata Metadata
	if err := loadJSON(path, &metadata); err != nil {
		return nil, err
	}
	if err := metadata.Validate(); err != nil {
		return nil, err
	}
	return &metadata, nil
}

func saveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error serializing %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing %s: %w", path, err)
	}
	return nil
}

func loadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrMissingArtifact, path)
		}
		return fmt.Errorf("error reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("error parsing %s: %w", path, err)
	}
	return nil
}
