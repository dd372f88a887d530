// Package engine wires discovery, parsing, the dependency graph, relevance
// scoring, context packing, budgeting, suggestions, and auto-context into
// the operations exposed to the CLI.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/NYTEMODEONLY/grok-code-sub002/internal/autocontext"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/budget"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/config"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/discover"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/graph"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/model"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/optimize"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/parse"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/relevance"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/suggest"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/workspace"
)

// ErrNoGraph is returned by ExportGraph before any graph was built.
var ErrNoGraph = errors.New("no dependency graph built yet")

// Options configure an Engine. Only Root is required.
type Options struct {
	Root   string
	Config config.Config
	FS     afero.Fs
	Source parse.SymbolSource
	Now    func() time.Time
	Log    *zap.Logger
}

// Engine is the context intelligence service for one project root.
type Engine struct {
	root string
	cfg  config.Config
	fs   afero.Fs
	now  func() time.Time
	log  *zap.Logger

	store     *workspace.Store
	builder   *graph.Builder
	scorer    *relevance.Scorer
	optimizer *optimize.Optimizer
	budget    *budget.Manager
	suggester *suggest.Suggester
	auto      *autocontext.Controller

	graphMu sync.Mutex
	graph   *graph.Graph

	session *Session
}

// New validates the configuration and assembles an Engine.
func New(opts Options) (*Engine, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("root is required")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.FS == nil {
		opts.FS = afero.NewOsFs()
	}
	if opts.Source == nil {
		opts.Source = parse.NewTreeSitter(opts.FS)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	root := filepath.Clean(opts.Root)
	if !filepath.IsAbs(root) {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("resolving root: %w", err)
		}
		root = abs
	}

	cfg := opts.Config
	log := opts.Log
	e := &Engine{root: root, cfg: cfg, fs: opts.FS, now: opts.Now, log: log}

	e.store = workspace.NewStore(opts.FS, opts.Source, workspace.Options{
		ParseTimeout: cfg.ParseTimeout,
		Workers:      cfg.EffectiveWorkers(),
	}, log.Named("store"))
	e.builder = graph.NewBuilder(e.store, graph.BuildOptions{
		Root:       root,
		AliasRoots: cfg.Discover.AliasRoots,
	}, log.Named("graph"))
	e.scorer = relevance.NewScorer(e.store, relevance.Options{
		Weights: cfg.Relevance,
		Root:    root,
		Workers: cfg.EffectiveWorkers(),
		Now:     opts.Now,
	}, log.Named("relevance"))
	e.optimizer = optimize.New(e.store, cfg.Optimizer, opts.Now, log.Named("optimize"))

	mgr, err := budget.NewManager(cfg.Budget, opts.Now, log.Named("budget"))
	if err != nil {
		return nil, err
	}
	e.budget = mgr
	e.suggester = suggest.New(cfg.Suggest, log.Named("suggest"))
	e.auto = autocontext.New(cfg.AutoContext, pipeline{e}, opts.Now, log.Named("auto"))
	e.session = newSession(cfg.Budget.DefaultModel, opts.Now())
	return e, nil
}

// Root returns the project root.
func (e *Engine) Root() string { return e.root }

// Config returns the engine configuration.
func (e *Engine) Config() config.Config { return e.cfg }

// Budget exposes the token budget manager.
func (e *Engine) Budget() *budget.Manager { return e.budget }

// AutoContext exposes the auto-context controller.
func (e *Engine) AutoContext() *autocontext.Controller { return e.auto }

// scan is the result of one analysis pass.
type scan struct {
	records []*model.FileRecord
	graph   *graph.Graph
	errs    []model.ItemError
}

// resolveRoots maps user roots onto absolute directories under the project
// root. No roots means the whole project.
func (e *Engine) resolveRoots(roots []string) []string {
	if len(roots) == 0 {
		return []string{e.root}
	}
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		if !filepath.IsAbs(r) {
			r = filepath.Join(e.root, r)
		}
		out = append(out, filepath.Clean(r))
	}
	return out
}

// discover lists files under each root, or the file itself when a root is a
// file, deduplicated and sorted.
func (e *Engine) discover(roots []string, sourceOnly bool) ([]string, []model.ItemError) {
	opts := discover.Options{
		Include:     e.cfg.Discover.Include,
		Exclude:     e.cfg.Discover.Exclude,
		MaxFileSize: e.cfg.Discover.MaxFileSize,
		SourceOnly:  sourceOnly,
	}
	seen := make(map[string]struct{})
	var paths []string
	var errs []model.ItemError
	for _, root := range e.resolveRoots(roots) {
		info, err := e.fs.Stat(root)
		if err != nil {
			e.log.Warn("skipping root", zap.String("path", root), zap.Error(err))
			errs = append(errs, model.ItemError{Path: root, Kind: model.ErrIO, Err: err})
			continue
		}
		if !info.IsDir() {
			if _, ok := seen[root]; !ok {
				seen[root] = struct{}{}
				paths = append(paths, root)
			}
			continue
		}
		entries, derrs := discover.Files(e.fs, root, opts)
		for _, de := range derrs {
			e.log.Warn("discovery problem", zap.String("path", de.Path), zap.Error(de.Err))
		}
		errs = append(errs, derrs...)
		for _, fe := range entries {
			if _, ok := seen[fe.Path]; ok {
				continue
			}
			seen[fe.Path] = struct{}{}
			paths = append(paths, fe.Path)
		}
	}
	sort.Strings(paths)
	return paths, errs
}

// analyze discovers, loads, and links every file under roots.
func (e *Engine) analyze(ctx context.Context, roots []string) (scan, error) {
	paths, errs := e.discover(roots, false)
	records, lerrs := e.store.LoadAll(ctx, paths)
	errs = append(errs, lerrs...)
	if err := ctx.Err(); err != nil {
		return scan{errs: errs}, err
	}
	g := e.builder.FromRecords(records)
	e.setGraph(g)
	return scan{records: records, graph: g, errs: errs}, nil
}

func (e *Engine) setGraph(g *graph.Graph) {
	e.graphMu.Lock()
	defer e.graphMu.Unlock()
	e.graph = g
}

// Graph returns the most recently built dependency graph, or nil.
func (e *Engine) Graph() *graph.Graph {
	e.graphMu.Lock()
	defer e.graphMu.Unlock()
	return e.graph
}

// BuildDependencyGraph parses paths (files or directories; none means the
// project root) and links their imports. Only source files become nodes.
// Failures are per file and never abort the build.
func (e *Engine) BuildDependencyGraph(ctx context.Context, paths []string) (*graph.Graph, []model.ItemError, error) {
	files, errs := e.discover(paths, true)
	g, berrs := e.builder.Build(ctx, files)
	errs = append(errs, berrs...)
	if err := ctx.Err(); err != nil {
		return nil, errs, err
	}
	e.setGraph(g)
	return g, errs, nil
}

// ExportGraph writes the last built graph. Relative rewrites node paths
// relative to the project root.
func (e *Engine) ExportGraph(w io.Writer, format graph.Format, relative bool) error {
	g := e.Graph()
	if g == nil {
		return ErrNoGraph
	}
	if relative {
		g = g.Relative(e.root)
	}
	return g.Export(w, format)
}

// SuggestOptions configure SuggestFiles.
type SuggestOptions struct {
	Roots []string
	// Max caps suggestions; zero uses the task type's default volume.
	Max int
	// IncludeWeak keeps files matched only by type and recency.
	IncludeWeak bool
}

// SuggestFiles ranks files for query, re-weighted by the task the query
// describes, with explanations and recommendations.
func (e *Engine) SuggestFiles(ctx context.Context, query string, opts SuggestOptions) (suggest.Result, []model.ItemError, error) {
	learned := make(map[string]int)
	for _, p := range e.auto.Proactive(query) {
		learned[p.Path] = p.Frequency
	}
	return e.suggest(ctx, query, opts, learned)
}

func (e *Engine) suggest(ctx context.Context, query string, opts SuggestOptions, learned map[string]int) (suggest.Result, []model.ItemError, error) {
	sc, err := e.analyze(ctx, opts.Roots)
	if err != nil {
		return suggest.Result{}, sc.errs, err
	}
	ranked, serrs := e.scorer.Score(ctx, query, sc.records, sc.graph)
	errs := append(sc.errs, serrs...)
	if err := ctx.Err(); err != nil {
		return suggest.Result{}, errs, err
	}
	res := e.suggester.Suggest(suggest.Request{
		Query:       query,
		Ranked:      ranked,
		Graph:       sc.graph,
		Max:         opts.Max,
		Learned:     learned,
		IncludeWeak: opts.IncludeWeak,
	})
	return res, errs, nil
}

// OptimizeOptions configure OptimizeContext.
type OptimizeOptions struct {
	Roots []string
	// MaxFiles caps selected files; zero uses the optimizer default.
	MaxFiles int
	// Strategy is depth-first or diversity-first; empty uses the default.
	Strategy string
	// Model picks the token limit; empty uses the session model.
	Model string
	// MinScore drops files scoring below it.
	MinScore float64
	// IncludeDependencies pulls the direct imports of top files ahead of
	// lower-ranked files.
	IncludeDependencies bool
}

// OptimizeContext scores files for query and packs the best of them into
// the model's context share.
func (e *Engine) OptimizeContext(ctx context.Context, query string, opts OptimizeOptions) (optimize.Result, []model.ItemError, error) {
	var strategy optimize.Strategy
	if opts.Strategy != "" {
		s, err := optimize.ParseStrategy(opts.Strategy)
		if err != nil {
			return optimize.Result{}, nil, &config.ConfigError{Field: "strategy", Message: err.Error()}
		}
		strategy = s
	}
	if opts.MaxFiles < 0 {
		return optimize.Result{}, nil, &config.ConfigError{Field: "maxFiles", Message: "must not be negative"}
	}

	sc, err := e.analyze(ctx, opts.Roots)
	if err != nil {
		return optimize.Result{}, sc.errs, err
	}
	ranked, serrs := e.scorer.Score(ctx, query, sc.records, sc.graph)
	errs := append(sc.errs, serrs...)

	maxFiles := opts.MaxFiles
	if maxFiles == 0 {
		maxFiles = e.cfg.Optimizer.DefaultMaxFiles
	}
	if opts.IncludeDependencies {
		ranked = withDependencies(ranked, sc.graph, maxFiles)
	}

	res, oerrs := e.optimizer.Optimize(ctx, optimize.Request{
		Query:      query,
		Ranked:     ranked,
		ModelLimit: e.budget.Limit(e.modelOr(opts.Model)),
		MaxFiles:   maxFiles,
		Strategy:   strategy,
		MinScore:   opts.MinScore,
		Source:     "scan",
	})
	errs = append(errs, oerrs...)
	if err := ctx.Err(); err != nil {
		return res, errs, err
	}
	return res, errs, nil
}

// withDependencies reorders ranked so each of the top n files is followed by
// its direct imports.
func withDependencies(ranked []relevance.Score, g *graph.Graph, n int) []relevance.Score {
	if g == nil || n <= 0 {
		return ranked
	}
	byPath := make(map[string]int, len(ranked))
	for i, sc := range ranked {
		byPath[sc.Path] = i
	}
	used := make([]bool, len(ranked))
	out := make([]relevance.Score, 0, len(ranked))
	for i := 0; i < len(ranked) && i < n; i++ {
		if !used[i] {
			used[i] = true
			out = append(out, ranked[i])
		}
		for _, dep := range g.Forward(ranked[i].Path) {
			j, ok := byPath[dep.Target]
			if !ok || used[j] {
				continue
			}
			used[j] = true
			out = append(out, ranked[j])
		}
	}
	for i, sc := range ranked {
		if !used[i] {
			out = append(out, sc)
		}
	}
	return out
}

func (e *Engine) modelOr(name string) string {
	if name != "" {
		return e.budget.ResolveModel(name)
	}
	return e.session.Model()
}

// CanAddToBudget checks whether tokens fit in category for model.
func (e *Engine) CanAddToBudget(category string, tokens int, modelName string) (budget.Decision, error) {
	return e.budget.CanAdd(category, tokens, e.modelOr(modelName))
}

// AddToBudget records tokens in category if they fit.
func (e *Engine) AddToBudget(category string, tokens int, modelName string) (budget.Decision, error) {
	return e.budget.Add(category, tokens, e.modelOr(modelName))
}

// RemoveFromBudget releases tokens from category.
func (e *Engine) RemoveFromBudget(category string, tokens int) (int, error) {
	return e.budget.Remove(category, tokens)
}

// BudgetStatus reports usage against model's limit.
func (e *Engine) BudgetStatus(modelName string) budget.Status {
	return e.budget.Status(e.modelOr(modelName))
}

// AnalyzeContext measures an arbitrary transcript and file set.
func (e *Engine) AnalyzeContext(messages []model.Message, files []model.ContextFile, modelName string) budget.Analysis {
	return e.budget.Analyze(messages, files, e.modelOr(modelName))
}

// Watch invalidates cached records as files under the project change. It
// returns once the watcher is running; cancel ctx to stop it.
func (e *Engine) Watch(ctx context.Context) (*workspace.Watcher, error) {
	if _, ok := e.fs.(*afero.OsFs); !ok {
		return nil, fmt.Errorf("watching requires the OS filesystem")
	}
	paths, _ := e.discover(nil, false)
	dirSet := map[string]struct{}{e.root: {}}
	for _, p := range paths {
		dirSet[filepath.Dir(p)] = struct{}{}
	}
	dirs := make([]string, 0, len(dirSet))
	for d := range dirSet {
		if _, err := e.fs.Stat(d); err == nil {
			dirs = append(dirs, d)
		}
	}
	sort.Strings(dirs)

	w, err := workspace.NewWatcher(e.store, dirs, func(path string) {
		e.log.Debug("file changed", zap.String("path", e.rel(path)))
	})
	if err != nil {
		return nil, err
	}
	go w.Run(ctx)
	return w, nil
}

func (e *Engine) rel(path string) string {
	r, err := filepath.Rel(e.root, path)
	if err != nil || strings.HasPrefix(r, "..") {
		return path
	}
	return filepath.ToSlash(r)
}
