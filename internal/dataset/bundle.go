package dataset

import (
	"fmt"
	"log/slog"
	"sort"

	"orgrisk-backend/internal/core/taxonomy"
)

type Config struct {
	DataDir              string
	HoldoutCompany       string
	RoleMinComments      float64
	NarrativeMinComments float64
	ShareThreshold       float64
}

func DefaultConfig(dataDir, holdoutCompany string) Config {
	return Config{
		DataDir:              dataDir,
		HoldoutCompany:       holdoutCompany,
		RoleMinComments:      RoleMinComments,
		NarrativeMinComments: NarrativeMinComments,
		ShareThreshold:       NarrativeShareThreshold,
	}
}

type postKey struct {
	company string
	url     string
}

// Load reads every company's posts and comments, derives the per-task
// targets, and splits by the holdout company. Duplicate (company, url) pairs
// and missing columns are fatal; posts without a risk label stay in the role,
// narrative and retriever sets but are excluded from the risk task.
func Load(config Config) (*Bundle, error) {
	tax := taxonomy.Default()

	companies, err := DiscoverCompanies(config.DataDir)
	if err != nil {
		return nil, err
	}
	if !contains(companies, config.HoldoutCompany) {
		return nil, fmt.Errorf("holdout company %q not found, available: %v", config.HoldoutCompany, companies)
	}

	var posts []Post
	var comments []Comment
	for _, company := range companies {
		companyPosts, err := loadCompanyPosts(config.DataDir, company)
		if err != nil {
			return nil, err
		}
		posts = append(posts, companyPosts...)

		companyComments, err := loadCompanyComments(config.DataDir, company)
		if err != nil {
			return nil, err
		}
		comments = append(comments, companyComments...)
	}

	// per-company loading already rejects duplicates; re-check across the
	// merged set before deriving targets
	index := make(map[postKey]int, len(posts))
	for i, p := range posts {
		key := postKey{p.Company, p.URL}
		if _, dup := index[key]; dup {
			return nil, fmt.Errorf("%w across merged companies: %s %s", ErrDuplicatePost, p.Company, p.URL)
		}
		index[key] = i
	}

	attachRoleShares(posts, index, comments, tax)
	proxyCompanies := attachNarrativeFlags(posts, index, comments, tax, config.ShareThreshold)
	for _, company := range proxyCompanies {
		slog.Warn("no usable comment narratives, narrative targets fall back to pct_toxic_burnout proxy", "company", company)
	}

	bundle := &Bundle{
		HoldoutCompany:          config.HoldoutCompany,
		NarrativeProxyCompanies: proxyCompanies,
	}
	var rolePosts, narrativePosts, riskPosts []Post
	for _, p := range posts {
		if p.TotalComments >= config.RoleMinComments {
			rolePosts = append(rolePosts, p)
		}
		if p.TotalComments >= config.NarrativeMinComments {
			narrativePosts = append(narrativePosts, p)
		}
		if p.RiskTarget != "" {
			riskPosts = append(riskPosts, p)
		}
		if p.Company != config.HoldoutCompany {
			bundle.RetrieverTrain = append(bundle.RetrieverTrain, p)
		}
	}

	bundle.Role = splitByHoldout(rolePosts, config.HoldoutCompany)
	bundle.Narrative = splitByHoldout(narrativePosts, config.HoldoutCompany)
	bundle.Risk = splitByHoldout(riskPosts, config.HoldoutCompany)
	bundle.Manifest = SplitManifest{
		Role:      countByCompany(bundle.Role),
		Narrative: countByCompany(bundle.Narrative),
		Risk:      countByCompany(bundle.Risk),
	}
	return bundle, nil
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func attachRoleShares(posts []Post, index map[postKey]int, comments []Comment, tax *taxonomy.Taxonomy) {
	buckets := tax.RoleBuckets
	bucketIdx := make(map[string]int, len(buckets))
	for i, b := range buckets {
		bucketIdx[b] = i
	}

	counts := make(map[postKey][]float64)
	for _, c := range comments {
		key := postKey{c.Company, c.PostURL}
		if _, ok := index[key]; !ok {
			continue
		}
		if counts[key] == nil {
			counts[key] = make([]float64, len(buckets))
		}
		counts[key][bucketIdx[tax.NormalizeRoleBucket(c.RoleBucket)]]++
	}

	for i := range posts {
		key := postKey{posts[i].Company, posts[i].URL}
		shares := make([]float64, len(buckets))
		if c, ok := counts[key]; ok {
			var total float64
			for _, v := range c {
				total += v
			}
			if total > 0 {
				for j, v := range c {
					shares[j] = v / total
				}
			}
		}
		posts[i].RoleShares = shares
	}
}

// attachNarrativeFlags flags a label when its share of a post's commentary
// meets the threshold. The share denominator is every comment on the post,
// so unlabeled commentary dilutes. A company with no recognized narrative
// labels anywhere falls back to the pct_toxic_burnout proxy, which drives
// toxic_culture and burnout together and leaves the remaining labels unset;
// fallback companies are returned sorted.
func attachNarrativeFlags(posts []Post, index map[postKey]int, comments []Comment, tax *taxonomy.Taxonomy, threshold float64) []string {
	labels := tax.NarrativeLabels
	labelIdx := make(map[string]int, len(labels))
	for i, l := range labels {
		labelIdx[l] = i
	}

	labelCounts := make(map[postKey][]float64)
	totals := make(map[postKey]float64)
	companyLabeled := make(map[string]bool)
	for _, c := range comments {
		key := postKey{c.Company, c.PostURL}
		if _, ok := index[key]; !ok {
			continue
		}
		totals[key]++
		if li, ok := labelIdx[c.Narrative]; ok {
			companyLabeled[c.Company] = true
			if labelCounts[key] == nil {
				labelCounts[key] = make([]float64, len(labels))
			}
			labelCounts[key][li]++
		}
	}

	proxySet := make(map[string]bool)
	for i := range posts {
		flags := make([]int, len(labels))
		if companyLabeled[posts[i].Company] {
			key := postKey{posts[i].Company, posts[i].URL}
			if total := totals[key]; total > 0 {
				for j, count := range labelCounts[key] {
					if count/total >= threshold {
						flags[j] = 1
					}
				}
			}
		} else {
			proxySet[posts[i].Company] = true
			if posts[i].Pct["pct_toxic_burnout"] >= threshold {
				flags[labelIdx["toxic_culture"]] = 1
				flags[labelIdx["burnout"]] = 1
			}
		}
		posts[i].NarrativeFlags = flags
	}

	proxyCompanies := make([]string, 0, len(proxySet))
	for company := range proxySet {
		proxyCompanies = append(proxyCompanies, company)
	}
	sort.Strings(proxyCompanies)
	return proxyCompanies
}

func splitByHoldout(posts []Post, holdout string) TaskSplit {
	var split TaskSplit
	for _, p := range posts {
		if p.Company == holdout {
			split.Test = append(split.Test, p)
		} else {
			split.Train = append(split.Train, p)
		}
	}
	return split
}

func countByCompany(split TaskSplit) SplitCounts {
	counts := SplitCounts{Train: map[string]int{}, Test: map[string]int{}}
	for _, p := range split.Train {
		counts.Train[p.Company]++
	}
	for _, p := range split.Test {
		counts.Test[p.Company]++
	}
	return counts
}
