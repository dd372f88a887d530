package budget

import (
	"fmt"
	"sort"
)

// Category names used by the engine.
const (
	Essentials   = "essentials"
	Conversation = "conversation"
	Files        = "files"
	Buffer       = "buffer"
)

// Pruning strategy names.
const (
	Aggressive   = "aggressive"
	Balanced     = "balanced"
	Conservative = "conservative"
)

// Config holds category fractions, model limits, and pruning policy.
type Config struct {
	// Categories maps a category name to its fraction of the model limit.
	Categories   map[string]float64 `mapstructure:"categories" yaml:"categories"`
	Models       map[string]int     `mapstructure:"models" yaml:"models"`
	DefaultModel string             `mapstructure:"defaultModel" yaml:"defaultModel"`
	Prune        PruneConfig        `mapstructure:"prune" yaml:"prune"`
}

// PruneConfig sets per-strategy target utilization and eviction limits.
type PruneConfig struct {
	// Targets maps a strategy name to the utilization (0-1) it prunes down to.
	Targets         map[string]float64 `mapstructure:"targets" yaml:"targets"`
	MaxFilesPerCall int                `mapstructure:"maxFilesPerCall" yaml:"maxFilesPerCall"`
	// RecentMessages is how many trailing messages define "recent
	// conversation" for relevance.
	RecentMessages int `mapstructure:"recentMessages" yaml:"recentMessages"`
	// StaleMinutes is the age at which a file gets the full staleness weight.
	StaleMinutes float64 `mapstructure:"staleMinutes" yaml:"staleMinutes"`
}

// DefaultConfig returns the stock budget layout.
func DefaultConfig() Config {
	return Config{
		Categories: map[string]float64{
			Essentials:   0.15,
			Conversation: 0.40,
			Files:        0.30,
			Buffer:       0.15,
		},
		Models: map[string]int{
			"grok-code-fast-1": 256000,
			"grok-4":           256000,
			"grok-3":           131072,
			"grok-3-mini":      131072,
		},
		DefaultModel: "grok-code-fast-1",
		Prune: PruneConfig{
			Targets: map[string]float64{
				Aggressive:   0.50,
				Balanced:     0.70,
				Conservative: 0.85,
			},
			MaxFilesPerCall: 5,
			RecentMessages:  5,
			StaleMinutes:    30,
		},
	}
}

// Validate rejects layouts that would let categories overlap or strategies
// target impossible utilization.
func (c Config) Validate() error {
	if len(c.Categories) == 0 {
		return fmt.Errorf("at least one category is required")
	}
	var sum float64
	for _, name := range sortedNames(c.Categories) {
		f := c.Categories[name]
		if f <= 0 || f > 1 {
			return fmt.Errorf("category %q fraction must be in (0, 1], got %g", name, f)
		}
		sum += f
	}
	if sum > 1+1e-9 {
		return fmt.Errorf("category fractions sum to %g, must not exceed 1", sum)
	}
	for name, limit := range c.Models {
		if limit <= 0 {
			return fmt.Errorf("model %q limit must be positive, got %d", name, limit)
		}
	}
	if _, ok := c.Models[c.DefaultModel]; !ok {
		return fmt.Errorf("default model %q has no limit", c.DefaultModel)
	}
	if len(c.Prune.Targets) == 0 {
		return fmt.Errorf("at least one pruning strategy is required")
	}
	for _, name := range sortedNames(c.Prune.Targets) {
		if t := c.Prune.Targets[name]; t <= 0 || t >= 1 {
			return fmt.Errorf("pruning strategy %q target must be in (0, 1), got %g", name, t)
		}
	}
	if c.Prune.MaxFilesPerCall < 1 {
		return fmt.Errorf("prune.maxFilesPerCall must be at least 1, got %d", c.Prune.MaxFilesPerCall)
	}
	if c.Prune.RecentMessages < 1 {
		return fmt.Errorf("prune.recentMessages must be at least 1, got %d", c.Prune.RecentMessages)
	}
	if c.Prune.StaleMinutes <= 0 {
		return fmt.Errorf("prune.staleMinutes must be positive, got %g", c.Prune.StaleMinutes)
	}
	return nil
}

// Strategies returns the configured pruning strategy names, sorted.
func (c Config) Strategies() []string {
	return sortedNames(c.Prune.Targets)
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
