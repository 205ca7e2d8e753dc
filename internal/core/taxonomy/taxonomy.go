// Package taxonomy holds the fixed label sets and the rule-based risk policy
// shared by training, evaluation and serving. The definitions live in an
// embedded yaml file so the closed sets stay in one place.
package taxonomy

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v2"
)

//go:embed taxonomy.yaml
var taxonomyYAML []byte

type RiskLevel struct {
	Level   string  `yaml:"level"`
	MinProb float64 `yaml:"min_prob"`
}

type RuleBasedRisk struct {
	HarmfulClass       string   `yaml:"harmful_class"`
	HarmfulNarratives  []string `yaml:"harmful_narratives"`
	HarmlessClass      string   `yaml:"harmless_class"`
	HarmlessNarratives []string `yaml:"harmless_narratives"`
	DefaultClass       string   `yaml:"default_class"`
}

type Taxonomy struct {
	RoleBuckets     []string      `yaml:"role_buckets"`
	NarrativeLabels []string      `yaml:"narrative_labels"`
	RiskClasses     []string      `yaml:"risk_classes"`
	RuleBasedRisk   RuleBasedRisk `yaml:"rule_based_risk"`
	RiskLevels      []RiskLevel   `yaml:"risk_levels"`

	roleBucketSet map[string]bool
}

var (
	loadOnce sync.Once
	loaded   *Taxonomy
	loadErr  error
)

func load() (*Taxonomy, error) {
	var t Taxonomy
	if err := yaml.Unmarshal(taxonomyYAML, &t); err != nil {
		return nil, fmt.Errorf("error parsing embedded taxonomy: %w", err)
	}
	if len(t.RoleBuckets) == 0 || len(t.NarrativeLabels) == 0 || len(t.RiskClasses) == 0 {
		return nil, fmt.Errorf("embedded taxonomy is incomplete")
	}
	t.roleBucketSet = make(map[string]bool, len(t.RoleBuckets))
	for _, b := range t.RoleBuckets {
		t.roleBucketSet[b] = true
	}
	return &t, nil
}

// Default returns the embedded taxonomy. It panics on a malformed embed since
// that is a build defect, not a runtime condition.
func Default() *Taxonomy {
	loadOnce.Do(func() {
		loaded, loadErr = load()
	})
	if loadErr != nil {
		panic(loadErr)
	}
	return loaded
}

// NormalizeRoleBucket maps unknown or empty buckets to "Other".
func (t *Taxonomy) NormalizeRoleBucket(bucket string) string {
	if t.roleBucketSet[bucket] {
		return bucket
	}
	return "Other"
}

// RuleBasedClass applies the deterministic risk policy over narrative flags:
// any harmful narrative wins, then any harmless narrative, then the default.
func (t *Taxonomy) RuleBasedClass(flags map[string]bool) string {
	for _, label := range t.RuleBasedRisk.HarmfulNarratives {
		if flags[label] {
			return t.RuleBasedRisk.HarmfulClass
		}
	}
	for _, label := range t.RuleBasedRisk.HarmlessNarratives {
		if flags[label] {
			return t.RuleBasedRisk.HarmlessClass
		}
	}
	return t.RuleBasedRisk.DefaultClass
}

// LevelForProb buckets the maximum class probability into a coarse risk level.
func (t *Taxonomy) LevelForProb(maxProb float64) string {
	for _, rl := range t.RiskLevels {
		if maxProb >= rl.MinProb {
			return rl.Level
		}
	}
	return t.RiskLevels[len(t.RiskLevels)-1].Level
}
