package optimize

import (
	"fmt"

	"github.com/NYTEMODEONLY/grok-code-sub002/internal/relevance"
)

// Strategy chooses which ranked files make it into the context.
type Strategy string

const (
	// DepthFirst takes the top N files by relevance.
	DepthFirst Strategy = "depth-first"
	// DiversityFirst keeps the top hits, then one representative per
	// dominant relevance factor, then fills by rank.
	DiversityFirst Strategy = "diversity-first"
)

// diversityKeep is how many top files diversity selection always keeps.
const diversityKeep = 3

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case DepthFirst, DiversityFirst:
		return Strategy(s), nil
	case "":
		return DepthFirst, nil
	}
	return "", fmt.Errorf("unknown optimization strategy %q (want %s or %s)", s, DepthFirst, DiversityFirst)
}

// Factor is the relevance signal that dominates a score.
type Factor string

const (
	FactorSymbol     Factor = "symbol"
	FactorDependency Factor = "dependency"
	FactorPath       Factor = "path"
	FactorKeyword    Factor = "keyword"
	FactorRecency    Factor = "recency"
	FactorNone       Factor = ""
)

var clusterOrder = []Factor{FactorSymbol, FactorDependency, FactorPath, FactorKeyword, FactorRecency}

// Dominant returns the factor with the largest raw contribution, or
// FactorNone if every factor is zero. Earlier factors win ties.
func Dominant(sc relevance.Score) Factor {
	values := map[Factor]float64{
		FactorSymbol:     sc.SymbolMatches + sc.DensityBonus,
		FactorDependency: sc.DependencyScore,
		FactorPath:       sc.PathScore,
		FactorKeyword:    sc.KeywordMatches,
		FactorRecency:    sc.RecencyScore,
	}
	best, bestVal := FactorNone, 0.0
	for _, f := range clusterOrder {
		if values[f] > bestVal {
			best, bestVal = f, values[f]
		}
	}
	return best
}

// Select picks up to maxFiles scores from ranked (highest first). If
// maxFiles is <= 0 or >= len(ranked), everything is returned.
func Select(ranked []relevance.Score, maxFiles int, strategy Strategy) []relevance.Score {
	if maxFiles <= 0 || maxFiles >= len(ranked) {
		return ranked
	}
	if strategy != DiversityFirst || maxFiles <= diversityKeep {
		return ranked[:maxFiles]
	}

	taken := make([]bool, len(ranked))
	count := 0
	take := func(i int) {
		taken[i] = true
		count++
	}

	for i := 0; i < diversityKeep; i++ {
		take(i)
	}

	for _, f := range clusterOrder {
		if count >= maxFiles {
			break
		}
		for i := range ranked {
			if !taken[i] && Dominant(ranked[i]) == f {
				take(i)
				break
			}
		}
	}

	for i := range ranked {
		if count >= maxFiles {
			break
		}
		if !taken[i] {
			take(i)
		}
	}

	// Keep rank order in the output.
	out := make([]relevance.Score, 0, count)
	for i, ok := range taken {
		if ok {
			out = append(out, ranked[i])
		}
	}
	return out
}
