// Package optimize selects ranked files and packs their most useful
// sections into a token budget.
package optimize

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/NYTEMODEONLY/grok-code-sub002/internal/model"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/relevance"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/tokens"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/workspace"
)

// TruncationMarker is appended to a section cut at a line boundary.
const TruncationMarker = "... [truncated]"

// Config bounds how much of the model's window file content may use.
type Config struct {
	// ContextShare is the fraction of the model limit given to file content.
	ContextShare float64 `mapstructure:"contextShare" yaml:"contextShare"`
	// MinFileChars and MaxFileChars clamp the per-file character budget.
	MinFileChars int `mapstructure:"minFileChars" yaml:"minFileChars"`
	MaxFileChars int `mapstructure:"maxFileChars" yaml:"maxFileChars"`
	// DefaultMaxFiles applies when a request leaves MaxFiles unset.
	DefaultMaxFiles int      `mapstructure:"defaultMaxFiles" yaml:"defaultMaxFiles"`
	Strategy        Strategy `mapstructure:"strategy" yaml:"strategy"`
}

// DefaultConfig returns the stock optimizer settings.
func DefaultConfig() Config {
	return Config{
		ContextShare:    0.3,
		MinFileChars:    500,
		MaxFileChars:    20000,
		DefaultMaxFiles: 10,
		Strategy:        DepthFirst,
	}
}

// Validate checks the config for internal consistency.
func (c Config) Validate() error {
	switch {
	case c.ContextShare <= 0 || c.ContextShare > 1:
		return fmt.Errorf("contextShare must be in (0, 1], got %g", c.ContextShare)
	case c.MinFileChars <= len(TruncationMarker):
		return fmt.Errorf("minFileChars must exceed %d, got %d", len(TruncationMarker), c.MinFileChars)
	case c.MaxFileChars < c.MinFileChars:
		return fmt.Errorf("maxFileChars (%d) must be >= minFileChars (%d)", c.MaxFileChars, c.MinFileChars)
	case c.DefaultMaxFiles < 1:
		return fmt.Errorf("defaultMaxFiles must be at least 1, got %d", c.DefaultMaxFiles)
	}
	_, err := ParseStrategy(string(c.Strategy))
	return err
}

// Request is one optimization call.
type Request struct {
	Query      string
	Ranked     []relevance.Score
	ModelLimit int
	MaxFiles   int
	Strategy   Strategy
	// MinScore drops candidates whose total is below it.
	MinScore float64
	// Source labels the produced context files (scan, suggestion, auto...).
	Source string
}

// Result is the packed context.
type Result struct {
	Files        []model.ContextFile `json:"files"`
	TotalTokens  int                 `json:"totalTokens"`
	BudgetTokens int                 `json:"budgetTokens"`
	// Utilization is TotalTokens as a percentage of BudgetTokens.
	Utilization  float64  `json:"utilization"`
	PerFileChars int      `json:"perFileChars"`
	Strategy     Strategy `json:"strategy"`
}

// Optimizer packs file content into a budget.
type Optimizer struct {
	store *workspace.Store
	cfg   Config
	now   func() time.Time
	log   *zap.Logger
}

// New creates an Optimizer.
func New(store *workspace.Store, cfg Config, now func() time.Time, log *zap.Logger) *Optimizer {
	if log == nil {
		log = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Optimizer{store: store, cfg: cfg, now: now, log: log}
}

// Config returns the optimizer settings.
func (o *Optimizer) Config() Config { return o.cfg }

// PerFileBudget divides totalChars across n files and clamps the result.
func (o *Optimizer) PerFileBudget(totalChars, n int) int {
	if n <= 0 {
		return 0
	}
	per := totalChars / n
	if per < o.cfg.MinFileChars {
		per = o.cfg.MinFileChars
	}
	if per > o.cfg.MaxFileChars {
		per = o.cfg.MaxFileChars
	}
	return per
}

// Optimize selects files from req.Ranked and packs each into its share of
// the budget. Unreadable files yield empty content and an item error.
func (o *Optimizer) Optimize(ctx context.Context, req Request) (Result, []model.ItemError) {
	strategy := req.Strategy
	if strategy == "" {
		strategy = o.cfg.Strategy
	}
	maxFiles := req.MaxFiles
	if maxFiles <= 0 {
		maxFiles = o.cfg.DefaultMaxFiles
	}
	source := req.Source
	if source == "" {
		source = "scan"
	}

	var candidates []relevance.Score
	for _, sc := range req.Ranked {
		if sc.Total >= req.MinScore {
			candidates = append(candidates, sc)
		}
	}
	selected := Select(candidates, maxFiles, strategy)

	budgetTokens := int(math.Round(float64(req.ModelLimit) * o.cfg.ContextShare))
	perFile := o.PerFileBudget(tokens.Chars(budgetTokens), len(selected))
	terms := relevance.Normalize(req.Query)
	now := o.now()

	res := Result{BudgetTokens: budgetTokens, PerFileChars: perFile, Strategy: strategy}
	var errs []model.ItemError
	for _, sc := range selected {
		if err := ctx.Err(); err != nil {
			errs = append(errs, model.ItemError{Path: sc.Path, Kind: model.ErrTimeout, Err: err})
			break
		}
		cf := model.ContextFile{
			Path:           sc.Path,
			Score:          sc.Total,
			Source:         source,
			AddedAt:        now,
			LastReferenced: now,
		}
		content, err := o.store.ReadContent(sc.Path)
		if err != nil {
			o.log.Warn("skipping unreadable file", zap.String("path", sc.Path), zap.Error(err))
			errs = append(errs, model.ItemError{Path: sc.Path, Kind: model.ErrIO, Err: err})
			res.Files = append(res.Files, cf)
			continue
		}
		var st *model.SymbolTable
		if rec, ok := o.store.Get(sc.Path); ok {
			st = rec.Symbols
		}
		cf.Content, cf.Sections, cf.Truncated = Pack(content, st, terms, perFile)
		cf.Tokens = tokens.Estimate(cf.Content)
		res.TotalTokens += cf.Tokens
		res.Files = append(res.Files, cf)
	}
	if budgetTokens > 0 {
		res.Utilization = float64(res.TotalTokens) / float64(budgetTokens) * 100
	}
	o.log.Debug("optimized context",
		zap.Int("files", len(res.Files)),
		zap.Int("tokens", res.TotalTokens),
		zap.Int("perFileChars", perFile),
		zap.String("strategy", string(strategy)))
	return res, errs
}

// Pack fits content into budget characters. Content that already fits is
// returned whole; otherwise sections are appended by weight, and a section
// that would overflow is cut at its last fitting line and marked.
// The result never exceeds budget.
func Pack(content string, st *model.SymbolTable, terms []string, budget int) (string, []model.SectionKind, bool) {
	sections := Extract(content, st, terms)
	if len(content) <= budget {
		kinds := make([]model.SectionKind, 0, len(sections))
		for _, s := range sections {
			kinds = append(kinds, s.Kind)
		}
		return content, kinds, false
	}

	var (
		b         strings.Builder
		kinds     []model.SectionKind
		truncated bool
	)
	for _, s := range sections {
		sep := 0
		if b.Len() > 0 {
			sep = 2
		}
		remaining := budget - b.Len() - sep
		if remaining <= 0 {
			truncated = true
			break
		}
		text := s.Content
		if len(text) > remaining {
			truncated = true
			cut := remaining - len(TruncationMarker) - 1
			if cut <= 0 {
				continue
			}
			nl := strings.LastIndexByte(text[:cut], '\n')
			if nl <= 0 {
				continue
			}
			text = text[:nl] + "\n" + TruncationMarker
		}
		if sep > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
		kinds = append(kinds, s.Kind)
	}
	return b.String(), kinds, truncated
}
