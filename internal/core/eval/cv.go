package eval

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"

	"orgrisk-backend/internal/core"
	"orgrisk-backend/internal/core/textfeat"
	"orgrisk-backend/internal/dataset"
)

const desiredCVSplits = 5

// groupFolds partitions row indices into folds so that no company straddles
// a fold boundary. Companies are assigned largest-first to the currently
// smallest fold, which keeps fold sizes balanced.
func groupFolds(companies []string, numFolds int) [][]int {
	byCompany := make(map[string][]int)
	for i, company := range companies {
		byCompany[company] = append(byCompany[company], i)
	}
	names := lo.Keys(byCompany)
	sort.Slice(names, func(a, b int) bool {
		if len(byCompany[names[a]]) != len(byCompany[names[b]]) {
			return len(byCompany[names[a]]) > len(byCompany[names[b]])
		}
		return names[a] < names[b]
	})

	folds := make([][]int, numFolds)
	sizes := make([]int, numFolds)
	for _, name := range names {
		smallest := 0
		for f := 1; f < numFolds; f++ {
			if sizes[f] < sizes[smallest] {
				smallest = f
			}
		}
		folds[smallest] = append(folds[smallest], byCompany[name]...)
		sizes[smallest] += len(byCompany[name])
	}
	for _, fold := range folds {
		sort.Ints(fold)
	}
	return folds
}

// effectiveSplits clamps the fold count to the company diversity. Fewer than
// 2 distinct companies cannot form grouped folds, so CV is skipped entirely.
func effectiveSplits(companies []string, desired int) int {
	distinct := len(lo.Uniq(companies))
	if distinct < 2 {
		return 0
	}
	return max(2, min(desired, distinct))
}

func cvSplit(posts []dataset.Post, fold []int) (train, val []dataset.Post) {
	inFold := make(map[int]bool, len(fold))
	for _, i := range fold {
		inFold[i] = true
	}
	for i, p := range posts {
		if inFold[i] {
			val = append(val, p)
		} else {
			train = append(train, p)
		}
	}
	return train, val
}

func postTexts(posts []dataset.Post) []string {
	texts := make([]string, len(posts))
	for i, p := range posts {
		texts[i] = p.Text
	}
	return texts
}

// fitFoldFeatures refits the feature extractor on the fold's training texts,
// the same way a fresh training run would, so no vocabulary leaks across the
// fold boundary.
func fitFoldFeatures(train, val []dataset.Post, tfidf textfeat.VectorizerConfig) (*textfeat.Matrix, *textfeat.Matrix, error) {
	vectorizer := textfeat.NewVectorizer(tfidf)
	xTrain, err := vectorizer.FitTransform(postTexts(train))
	if err != nil {
		return nil, nil, err
	}
	xVal, err := vectorizer.Transform(postTexts(val))
	if err != nil {
		return nil, nil, err
	}
	return xTrain, xVal, nil
}

// RunRoleCV reports the cross-validated macro MAE of refitted role models.
// An empty map means CV was skipped for lack of company diversity, which is
// logged but not an error since CV is a diagnostic.
func RunRoleCV(posts []dataset.Post, buckets []string, tfidf textfeat.VectorizerConfig) (map[string]float64, error) {
	companies := companyNames(posts)
	splits := effectiveSplits(companies, desiredCVSplits)
	if splits == 0 {
		slog.Warn("skipping grouped CV, fewer than 2 distinct companies", "task", "role")
		return map[string]float64{}, nil
	}

	var foldScores []float64
	for _, fold := range groupFolds(companies, splits) {
		train, val := cvSplit(posts, fold)
		xTrain, xVal, err := fitFoldFeatures(train, val, tfidf)
		if err != nil {
			return nil, fmt.Errorf("building fold features: %w", err)
		}
		model, err := core.FitRoleModel(xTrain, roleTargets(train, len(buckets)), buckets)
		if err != nil {
			return nil, fmt.Errorf("fitting fold role model: %w", err)
		}
		preds, err := model.PredictSharesMatrix(xVal)
		if err != nil {
			return nil, err
		}
		maes := make([]float64, len(buckets))
		colTrue := make([]float64, len(val))
		colPred := make([]float64, len(val))
		for j := range buckets {
			for i, p := range val {
				colTrue[i] = p.RoleShares[j]
				colPred[i] = preds[i][j]
			}
			maes[j] = MAE(colTrue, colPred)
		}
		foldScores = append(foldScores, stat.Mean(maes, nil))
	}
	return map[string]float64{"mae_macro_cv": stat.Mean(foldScores, nil)}, nil
}

// RunNarrativeCV reports the cross-validated macro F1 at the reporting
// threshold.
func RunNarrativeCV(posts []dataset.Post, labels []string, threshold float64, tfidf textfeat.VectorizerConfig) (map[string]float64, error) {
	companies := companyNames(posts)
	splits := effectiveSplits(companies, desiredCVSplits)
	if splits == 0 {
		slog.Warn("skipping grouped CV, fewer than 2 distinct companies", "task", "narrative")
		return map[string]float64{}, nil
	}

	var foldScores []float64
	for _, fold := range groupFolds(companies, splits) {
		train, val := cvSplit(posts, fold)
		xTrain, xVal, err := fitFoldFeatures(train, val, tfidf)
		if err != nil {
			return nil, fmt.Errorf("building fold features: %w", err)
		}
		model, err := core.FitNarrativeModel(xTrain, narrativeTargets(train), labels)
		if err != nil {
			return nil, fmt.Errorf("fitting fold narrative model: %w", err)
		}
		probs, err := model.PredictProbsMatrix(xVal)
		if err != nil {
			return nil, err
		}
		yPred := make([][]int, len(probs))
		for i, row := range probs {
			yPred[i] = core.Flags(row, threshold)
		}
		foldScores = append(foldScores, MultiLabelF1Macro(narrativeTargets(val), yPred))
	}
	return map[string]float64{"f1_macro_cv": stat.Mean(foldScores, nil)}, nil
}

// RunRiskCV reports the cross-validated macro F1 of refitted risk models.
func RunRiskCV(posts []dataset.Post, classes []string, tfidf textfeat.VectorizerConfig) (map[string]float64, error) {
	companies := companyNames(posts)
	splits := effectiveSplits(companies, desiredCVSplits)
	if splits == 0 {
		slog.Warn("skipping grouped CV, fewer than 2 distinct companies", "task", "risk")
		return map[string]float64{}, nil
	}

	var foldScores []float64
	for _, fold := range groupFolds(companies, splits) {
		train, val := cvSplit(posts, fold)
		xTrain, xVal, err := fitFoldFeatures(train, val, tfidf)
		if err != nil {
			return nil, fmt.Errorf("building fold features: %w", err)
		}
		model, err := core.FitRiskModel(xTrain, riskTargets(train))
		if err != nil {
			return nil, fmt.Errorf("fitting fold risk model: %w", err)
		}
		yPred := make([]string, xVal.NumRows)
		for i := 0; i < xVal.NumRows; i++ {
			probs, err := model.PredictProbs(xVal.Row(i))
			if err != nil {
				return nil, err
			}
			yPred[i] = model.ArgMaxClass(probs)
		}
		foldScores = append(foldScores, MultiClassF1Macro(riskTargets(val), yPred, classes))
	}
	return map[string]float64{"f1_macro_cv": stat.Mean(foldScores, nil)}, nil
}

func companyNames(posts []dataset.Post) []string {
	names := make([]string, len(posts))
	for i, p := range posts {
		names[i] = p.Company
	}
	return names
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
