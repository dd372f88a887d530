// Package autocontext decides, per user utterance, whether to pull relevant
// files into the live context automatically, and learns which files
// recurring queries end up needing.
package autocontext

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/NYTEMODEONLY/grok-code-sub002/internal/model"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/optimize"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/suggest"
)

// Reasons reported when nothing is added.
const (
	ReasonDisabled     = "auto-context disabled"
	ReasonCooldown     = "cooldown active"
	ReasonNoTrigger    = "no trigger keywords"
	ReasonNoCandidates = "no suggestions above confidence threshold"
	ReasonNothingFit   = "no candidates fit the files budget"
)

// Config controls the trigger policy.
type Config struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Cooldown time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
	// MaxFiles caps additions per utterance.
	MaxFiles int `mapstructure:"maxFiles" yaml:"maxFiles"`
	// Threshold is the minimum suggestion confidence to add a file.
	Threshold float64 `mapstructure:"threshold" yaml:"threshold"`
	// InspectionDiscount lowers Threshold for inspection queries.
	InspectionDiscount float64 `mapstructure:"inspectionDiscount" yaml:"inspectionDiscount"`
	// InspectionExtra asks for more suggestions on inspection queries.
	InspectionExtra int `mapstructure:"inspectionExtra" yaml:"inspectionExtra"`
	// MinWords is the shortest non-inspection utterance that can trigger.
	MinWords int `mapstructure:"minWords" yaml:"minWords"`
	// MinPatternFrequency gates learned patterns used for proactive
	// suggestions.
	MinPatternFrequency int `mapstructure:"minPatternFrequency" yaml:"minPatternFrequency"`
	// Similarity is the Jaccard overlap a past query must exceed.
	Similarity float64 `mapstructure:"similarity" yaml:"similarity"`
}

// DefaultConfig returns the stock policy.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		Cooldown:            30 * time.Second,
		MaxFiles:            3,
		Threshold:           0.4,
		InspectionDiscount:  0.15,
		InspectionExtra:     2,
		MinWords:            3,
		MinPatternFrequency: 2,
		Similarity:          0.3,
	}
}

// Validate rejects thresholds outside [0, 1] and non-positive limits.
func (c Config) Validate() error {
	switch {
	case c.Cooldown < 0:
		return fmt.Errorf("cooldown must not be negative, got %s", c.Cooldown)
	case c.MaxFiles < 1:
		return fmt.Errorf("maxFiles must be at least 1, got %d", c.MaxFiles)
	case c.Threshold < 0 || c.Threshold > 1:
		return fmt.Errorf("threshold must be in [0, 1], got %g", c.Threshold)
	case c.InspectionDiscount < 0 || c.InspectionDiscount > c.Threshold:
		return fmt.Errorf("inspectionDiscount must be in [0, threshold], got %g", c.InspectionDiscount)
	case c.InspectionExtra < 0:
		return fmt.Errorf("inspectionExtra must not be negative, got %d", c.InspectionExtra)
	case c.MinWords < 1:
		return fmt.Errorf("minWords must be at least 1, got %d", c.MinWords)
	case c.MinPatternFrequency < 1:
		return fmt.Errorf("minPatternFrequency must be at least 1, got %d", c.MinPatternFrequency)
	case c.Similarity < 0 || c.Similarity >= 1:
		return fmt.Errorf("similarity must be in [0, 1), got %g", c.Similarity)
	}
	return nil
}

// Pipeline runs suggestion and packing for the controller.
type Pipeline interface {
	Suggest(ctx context.Context, query string, max int, learned map[string]int) (suggest.Result, error)
	Pack(ctx context.Context, query string, picks []suggest.Suggestion, strategy optimize.Strategy) ([]model.ContextFile, error)
}

// Result reports what one utterance did to the file context.
type Result struct {
	AutoAdded bool                `json:"autoAdded"`
	Reason    string              `json:"reason"`
	Trigger   Trigger             `json:"trigger"`
	Task      suggest.TaskType    `json:"task,omitempty"`
	Threshold float64             `json:"threshold,omitempty"`
	Files     []model.ContextFile `json:"files,omitempty"`
	// Skipped lists candidates already in context.
	Skipped []string `json:"skipped,omitempty"`
	// CooldownRemaining is set when the cooldown blocked the call.
	CooldownRemaining time.Duration `json:"cooldownRemaining,omitempty"`
}

// Controller is idle until an addition starts the cooldown, and idle again
// once it elapses. All methods are safe for concurrent use; Analyze calls
// are serialized.
type Controller struct {
	cfg      Config
	pipeline Pipeline
	now      func() time.Time
	log      *zap.Logger

	mu       sync.Mutex
	lastAdd  time.Time
	patterns map[string]*Pattern
	history  map[string][]HistoryEntry
}

// New creates a Controller. now defaults to time.Now.
func New(cfg Config, pipeline Pipeline, now func() time.Time, log *zap.Logger) *Controller {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		cfg:      cfg,
		pipeline: pipeline,
		now:      now,
		log:      log,
		patterns: make(map[string]*Pattern),
		history:  make(map[string][]HistoryEntry),
	}
}

// SetEnabled turns automatic additions on or off.
func (c *Controller) SetEnabled(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Enabled = on
}

// Enabled reports whether automatic additions are on.
func (c *Controller) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Enabled
}

// ResetCooldown returns the controller to idle. Learned patterns survive.
func (c *Controller) ResetCooldown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastAdd = time.Time{}
}

// Analyze inspects one utterance and, when it asks for code context,
// inserts up to MaxFiles optimized files into fileContext. Files already in
// fileContext are never replaced. Short utterances borrow terms from the
// latest user message in recent.
func (c *Controller) Analyze(ctx context.Context, input string, fileContext map[string]model.ContextFile, recent []model.Message) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cfg.Enabled {
		return Result{Reason: ReasonDisabled}, nil
	}
	now := c.now()
	if !c.lastAdd.IsZero() {
		if elapsed := now.Sub(c.lastAdd); elapsed < c.cfg.Cooldown {
			return Result{Reason: ReasonCooldown, CooldownRemaining: c.cfg.Cooldown - elapsed}, nil
		}
	}

	tr := Detect(input, c.cfg.MinWords)
	if !tr.Triggered {
		return Result{Reason: ReasonNoTrigger, Trigger: tr}, nil
	}

	query := input
	if len(splitWords(input)) < c.cfg.MinWords {
		if last := lastUserMessage(recent, input); last != "" {
			query = input + " " + last
		}
	}

	learned := make(map[string]int)
	for _, p := range c.proactive(query) {
		learned[p.Path] = p.Frequency
	}

	task := suggest.Classify(query).Type
	n := suggest.Volume(task)
	threshold := c.cfg.Threshold
	if tr.Inspection {
		n += c.cfg.InspectionExtra
		threshold -= c.cfg.InspectionDiscount
	}

	res := Result{Trigger: tr, Task: task, Threshold: threshold}
	sres, err := c.pipeline.Suggest(ctx, query, n, learned)
	if err != nil {
		res.Reason = "suggestion failed"
		return res, fmt.Errorf("suggest: %w", err)
	}

	var picks []suggest.Suggestion
	for _, sg := range sres.Suggestions {
		if _, ok := fileContext[sg.Path]; ok {
			res.Skipped = append(res.Skipped, sg.Path)
			continue
		}
		if sg.Confidence < threshold {
			continue
		}
		picks = append(picks, sg)
		if len(picks) == c.cfg.MaxFiles {
			break
		}
	}
	if len(picks) == 0 {
		res.Reason = ReasonNoCandidates
		return res, nil
	}

	files, err := c.pipeline.Pack(ctx, query, picks, strategyFor(task))
	if err != nil {
		res.Reason = "packing failed"
		return res, fmt.Errorf("pack: %w", err)
	}
	if len(files) == 0 {
		res.Reason = ReasonNothingFit
		return res, nil
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		f.Source = "auto"
		fileContext[f.Path] = f
		res.Files = append(res.Files, f)
		paths = append(paths, f.Path)
		c.history[f.Path] = append(c.history[f.Path], HistoryEntry{Query: input, Task: string(task), At: now})
	}
	c.learn(query, paths)
	c.lastAdd = now

	res.AutoAdded = true
	res.Reason = fmt.Sprintf("added %d files for %s task", len(res.Files), task)
	c.log.Info("auto-context added files",
		zap.String("task", string(task)),
		zap.Bool("inspection", tr.Inspection),
		zap.Strings("paths", paths))
	return res, nil
}

// strategyFor spreads broad tasks across relevance factors and keeps
// narrow ones on the top hits.
func strategyFor(t suggest.TaskType) optimize.Strategy {
	switch t {
	case suggest.Feature, suggest.Refactor, suggest.Documentation:
		return optimize.DiversityFirst
	}
	return optimize.DepthFirst
}

func lastUserMessage(recent []model.Message, input string) string {
	for i := len(recent) - 1; i >= 0; i-- {
		m := recent[i]
		if m.Role == model.RoleUser && strings.TrimSpace(m.Content) != strings.TrimSpace(input) {
			return m.Content
		}
	}
	return ""
}
