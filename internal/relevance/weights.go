package relevance

import (
	"fmt"
)

// Weights is the scoring table. The first group sets the raw points each
// signal contributes; Aggregate sets how much each subscore counts toward
// the total.
type Weights struct {
	ExactSymbol       float64 `mapstructure:"exactSymbol" yaml:"exactSymbol"`
	PartialSymbol     float64 `mapstructure:"partialSymbol" yaml:"partialSymbol"`
	Density           float64 `mapstructure:"density" yaml:"density"`
	Keyword           float64 `mapstructure:"keyword" yaml:"keyword"`
	KeywordCap        int     `mapstructure:"keywordCap" yaml:"keywordCap"`
	DependencyForward float64 `mapstructure:"dependencyForward" yaml:"dependencyForward"`
	DependencyReverse float64 `mapstructure:"dependencyReverse" yaml:"dependencyReverse"`
	IndirectForward   float64 `mapstructure:"indirectForward" yaml:"indirectForward"`
	IndirectReverse   float64 `mapstructure:"indirectReverse" yaml:"indirectReverse"`
	Path              float64 `mapstructure:"path" yaml:"path"`
	SourceType        float64 `mapstructure:"sourceType" yaml:"sourceType"`
	OtherType         float64 `mapstructure:"otherType" yaml:"otherType"`
	Recency           float64 `mapstructure:"recency" yaml:"recency"`
	RecencyDays       float64 `mapstructure:"recencyDays" yaml:"recencyDays"`

	Aggregate Aggregate `mapstructure:"aggregate" yaml:"aggregate"`
}

// Aggregate weights each subscore in the total. All must be non-negative so
// the total never decreases when a subscore grows.
type Aggregate struct {
	Symbol     float64 `mapstructure:"symbol" yaml:"symbol"`
	Keyword    float64 `mapstructure:"keyword" yaml:"keyword"`
	Dependency float64 `mapstructure:"dependency" yaml:"dependency"`
	Path       float64 `mapstructure:"path" yaml:"path"`
	Type       float64 `mapstructure:"type" yaml:"type"`
	Recency    float64 `mapstructure:"recency" yaml:"recency"`
	Density    float64 `mapstructure:"density" yaml:"density"`
}

// DefaultWeights returns the stock scoring table.
func DefaultWeights() Weights {
	return Weights{
		ExactSymbol:       10,
		PartialSymbol:     5,
		Density:           2,
		Keyword:           1,
		KeywordCap:        5,
		DependencyForward: 3,
		DependencyReverse: 2,
		IndirectForward:   1,
		IndirectReverse:   1,
		Path:              4,
		SourceType:        2,
		OtherType:         -1,
		Recency:           3,
		RecencyDays:       7,
		Aggregate: Aggregate{
			Symbol:     1,
			Keyword:    1,
			Dependency: 1,
			Path:       1,
			Type:       1,
			Recency:    1,
			Density:    1,
		},
	}
}

// Validate rejects tables that would break score monotonicity or ordering
// between exact and partial matches.
func (w Weights) Validate() error {
	switch {
	case w.ExactSymbol < w.PartialSymbol:
		return fmt.Errorf("exactSymbol (%g) must be >= partialSymbol (%g)", w.ExactSymbol, w.PartialSymbol)
	case w.PartialSymbol < 0, w.Density < 0, w.Keyword < 0, w.Path < 0, w.Recency < 0:
		return fmt.Errorf("symbol, density, keyword, path and recency weights must be non-negative")
	case w.DependencyForward < 0, w.DependencyReverse < 0:
		return fmt.Errorf("dependency weights must be non-negative")
	case w.IndirectForward < 0, w.IndirectReverse < 0:
		return fmt.Errorf("indirect dependency weights must be non-negative")
	case w.IndirectForward > w.DependencyForward:
		return fmt.Errorf("indirectForward (%g) must be <= dependencyForward (%g)", w.IndirectForward, w.DependencyForward)
	case w.IndirectReverse > w.DependencyReverse:
		return fmt.Errorf("indirectReverse (%g) must be <= dependencyReverse (%g)", w.IndirectReverse, w.DependencyReverse)
	case w.KeywordCap < 1:
		return fmt.Errorf("keywordCap must be at least 1, got %d", w.KeywordCap)
	case w.RecencyDays <= 0:
		return fmt.Errorf("recencyDays must be positive, got %g", w.RecencyDays)
	}
	a := w.Aggregate
	for name, v := range map[string]float64{
		"symbol": a.Symbol, "keyword": a.Keyword, "dependency": a.Dependency,
		"path": a.Path, "type": a.Type, "recency": a.Recency, "density": a.Density,
	} {
		if v < 0 {
			return fmt.Errorf("aggregate.%s must be non-negative, got %g", name, v)
		}
	}
	return nil
}
