// Package relevance ranks files against a natural-language query using
// symbol, content, dependency, path, file-type, and recency signals.
package relevance

import (
	"context"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/NYTEMODEONLY/grok-code-sub002/internal/discover"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/graph"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/model"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/workspace"
)

// Score is the explained relevance of one file to one query.
type Score struct {
	Path            string   `json:"path"`
	Rel             string   `json:"rel"`
	Category        string   `json:"category"`
	SymbolMatches   float64  `json:"symbolMatches"`
	KeywordMatches  float64  `json:"keywordMatches"`
	DependencyScore float64  `json:"dependencyScore"`
	PathScore       float64  `json:"pathScore"`
	TypeScore       float64  `json:"typeScore"`
	RecencyScore    float64  `json:"recencyScore"`
	DensityBonus    float64  `json:"densityBonus"`
	Total           float64  `json:"total"`
	MatchedSymbols  []string `json:"matchedSymbols,omitempty"`
}

// Options configure a Scorer.
type Options struct {
	Weights Weights
	// Root is used to compute the path text that terms are matched against.
	Root    string
	Workers int
	Now     func() time.Time
}

// maxCachedQueries bounds the cached subscores kept per file.
const maxCachedQueries = 64

// fileCache holds query-dependent but time-independent subscores for one
// version of a file, keyed by normalized query terms.
type fileCache struct {
	modTime int64
	byTerms map[string]staticScore
}

type staticScore struct {
	symbol, keyword, path, typ, density float64
	matched                             []string
}

// Scorer computes relevance scores. It is safe for concurrent use.
type Scorer struct {
	store   *workspace.Store
	weights Weights
	root    string
	workers int
	now     func() time.Time
	log     *zap.Logger

	mu    sync.Mutex
	cache map[string]*fileCache
}

// NewScorer creates a Scorer reading content through store.
func NewScorer(store *workspace.Store, opts Options, log *zap.Logger) *Scorer {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.Weights == (Weights{}) {
		opts.Weights = DefaultWeights()
	}
	return &Scorer{
		store:   store,
		weights: opts.Weights,
		root:    opts.Root,
		workers: opts.Workers,
		now:     opts.Now,
		log:     log,
		cache:   make(map[string]*fileCache),
	}
}

// Weights returns the scorer's table.
func (s *Scorer) Weights() Weights { return s.weights }

// Score ranks records against query, highest total first. Ties keep input
// order. g may be nil, in which case dependency scores are zero. Unreadable
// content contributes nothing and is reported as an item error.
func (s *Scorer) Score(ctx context.Context, query string, records []*model.FileRecord, g *graph.Graph) ([]Score, []model.ItemError) {
	terms := Normalize(query)
	now := s.now()

	scores := make([]Score, len(records))
	itemErrs := make([]*model.ItemError, len(records))

	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(s.workers)
	for i, rec := range records {
		eg.Go(func() error {
			if err := egctx.Err(); err != nil {
				return err
			}
			sc, ierr := s.scoreOne(terms, rec, g, now)
			scores[i] = sc
			itemErrs[i] = ierr
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, []model.ItemError{{Kind: model.ErrTimeout, Err: err}}
	}

	var errs []model.ItemError
	for _, ie := range itemErrs {
		if ie != nil {
			s.log.Warn("content unreadable", zap.String("path", ie.Path), zap.Error(ie.Err))
			errs = append(errs, *ie)
		}
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Total > scores[j].Total
	})
	return scores, errs
}

func (s *Scorer) scoreOne(terms []string, rec *model.FileRecord, g *graph.Graph, now time.Time) (Score, *model.ItemError) {
	rel := s.relPath(rec.Path)
	sc := Score{Path: rec.Path, Rel: rel, Category: string(discover.Classify(rel))}

	var ierr *model.ItemError
	modTime, key := rec.ModTime.UnixNano(), Key(terms)
	st, ok := s.cached(rec.Path, modTime, key)
	if !ok {
		content, err := s.store.ReadContent(rec.Path)
		if err != nil {
			ierr = &model.ItemError{Path: rec.Path, Kind: model.ErrIO, Err: err}
		}
		st.symbol, st.density, st.matched = s.SymbolScore(terms, rec.Symbols)
		st.keyword = s.KeywordScore(terms, content)
		st.path = s.PathScore(terms, rel)
		st.typ = s.TypeScore(discover.Category(sc.Category))
		if ierr == nil {
			s.remember(rec.Path, modTime, key, st)
		}
	}

	sc.SymbolMatches = st.symbol
	sc.DensityBonus = st.density
	sc.MatchedSymbols = st.matched
	sc.KeywordMatches = st.keyword
	sc.PathScore = st.path
	sc.TypeScore = st.typ
	sc.DependencyScore = s.DependencyScore(terms, rec.Path, g)
	sc.RecencyScore = s.RecencyScore(rec.ModTime, now)
	sc.Total = s.Total(sc)
	return sc, ierr
}

func (s *Scorer) relPath(path string) string {
	if s.root == "" {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(s.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// Total is the weighted sum of the subscores, floored at zero.
func (s *Scorer) Total(sc Score) float64 {
	a := s.weights.Aggregate
	total := a.Symbol*sc.SymbolMatches +
		a.Keyword*sc.KeywordMatches +
		a.Dependency*sc.DependencyScore +
		a.Path*sc.PathScore +
		a.Type*sc.TypeScore +
		a.Recency*sc.RecencyScore +
		a.Density*sc.DensityBonus
	if total < 0 {
		return 0
	}
	return total
}

// SymbolScore awards, per term, the best of an exact or partial match over
// the file's symbols, plus a density bonus per unique matched symbol when
// more than one symbol matched.
func (s *Scorer) SymbolScore(terms []string, st *model.SymbolTable) (score, density float64, matched []string) {
	if st == nil || len(terms) == 0 {
		return 0, 0, nil
	}
	syms := st.Definitions()
	syms = append(syms, st.Exports...)

	seen := make(map[string]struct{})
	for _, term := range terms {
		best := 0.0
		for _, sym := range syms {
			name := strings.ToLower(sym.Name)
			short := name
			if i := strings.LastIndexByte(name, '.'); i >= 0 {
				short = name[i+1:]
			}
			var w float64
			switch {
			case term == name || term == short:
				w = s.weights.ExactSymbol
			case strings.Contains(name, term) || (len(short) > 2 && strings.Contains(term, short)):
				w = s.weights.PartialSymbol
			default:
				continue
			}
			if _, dup := seen[sym.Name]; !dup {
				seen[sym.Name] = struct{}{}
				matched = append(matched, sym.Name)
			}
			if w > best {
				best = w
			}
		}
		score += best
	}
	if len(matched) > 1 {
		density = s.weights.Density * float64(len(matched))
	}
	sort.Strings(matched)
	return score, density, matched
}

// KeywordScore counts case-insensitive term occurrences in content, capped
// per term.
func (s *Scorer) KeywordScore(terms []string, content string) float64 {
	if content == "" {
		return 0
	}
	lower := strings.ToLower(content)
	var score float64
	for _, term := range terms {
		n := strings.Count(lower, term)
		if n > s.weights.KeywordCap {
			n = s.weights.KeywordCap
		}
		score += float64(n) * s.weights.Keyword
	}
	return score
}

func (s *Scorer) cached(path string, modTime int64, key string) (staticScore, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fc, ok := s.cache[path]
	if !ok || fc.modTime != modTime {
		return staticScore{}, false
	}
	st, ok := fc.byTerms[key]
	return st, ok
}

// remember stores st for one file version. A newer modification time
// replaces the file's entries; past the per-file cap they are cleared.
func (s *Scorer) remember(path string, modTime int64, key string, st staticScore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fc, ok := s.cache[path]
	switch {
	case !ok || modTime > fc.modTime:
		fc = &fileCache{modTime: modTime, byTerms: make(map[string]staticScore)}
		s.cache[path] = fc
	case modTime < fc.modTime:
		return
	case len(fc.byTerms) >= maxCachedQueries:
		clear(fc.byTerms)
	}
	fc.byTerms[key] = st
}

// DependencyScore awards, once per term, the forward weight when the term is
// found in a direct dependency's path, or the smaller indirect weight when it
// is only found two imports away. Dependents score the same way with the
// reverse weights.
func (s *Scorer) DependencyScore(terms []string, path string, g *graph.Graph) float64 {
	if g == nil {
		return 0
	}
	var fwd, rev []string
	for _, e := range g.Forward(path) {
		fwd = append(fwd, e.Target)
	}
	for _, e := range g.Reverse(path) {
		rev = append(rev, e.Source)
	}
	fwd2 := s.secondHop(path, fwd, func(p string) []string {
		var out []string
		for _, e := range g.Forward(p) {
			out = append(out, e.Target)
		}
		return out
	})
	rev2 := s.secondHop(path, rev, func(p string) []string {
		var out []string
		for _, e := range g.Reverse(p) {
			out = append(out, e.Source)
		}
		return out
	})

	var score float64
	for _, term := range terms {
		switch {
		case s.anyContains(fwd, term):
			score += s.weights.DependencyForward
		case s.anyContains(fwd2, term):
			score += s.weights.IndirectForward
		}
		switch {
		case s.anyContains(rev, term):
			score += s.weights.DependencyReverse
		case s.anyContains(rev2, term):
			score += s.weights.IndirectReverse
		}
	}
	return score
}

// secondHop returns the neighbours of first, excluding path and first itself.
func (s *Scorer) secondHop(path string, first []string, next func(string) []string) []string {
	skip := map[string]struct{}{path: {}}
	for _, p := range first {
		skip[p] = struct{}{}
	}
	var out []string
	for _, p := range first {
		for _, q := range next(p) {
			if _, ok := skip[q]; ok {
				continue
			}
			skip[q] = struct{}{}
			out = append(out, q)
		}
	}
	return out
}

func (s *Scorer) anyContains(paths []string, term string) bool {
	for _, p := range paths {
		if strings.Contains(strings.ToLower(s.relPath(p)), term) {
			return true
		}
	}
	return false
}

// PathScore awards a bonus per term contained in the relative path.
func (s *Scorer) PathScore(terms []string, rel string) float64 {
	lower := strings.ToLower(rel)
	var score float64
	for _, term := range terms {
		if strings.Contains(lower, term) {
			score += s.weights.Path
		}
	}
	return score
}

// TypeScore favors source files, is neutral for docs and config, and
// slightly penalizes everything else.
func (s *Scorer) TypeScore(cat discover.Category) float64 {
	switch cat {
	case discover.CategorySource, discover.CategoryTest:
		return s.weights.SourceType
	case discover.CategoryDocs, discover.CategoryConfig:
		return 0
	}
	return s.weights.OtherType
}

// RecencyScore decays linearly from the full weight at modTime == now to
// zero at the recency window.
func (s *Scorer) RecencyScore(modTime, now time.Time) float64 {
	age := now.Sub(modTime)
	if age < 0 {
		age = 0
	}
	window := time.Duration(s.weights.RecencyDays * float64(24*time.Hour))
	if age >= window {
		return 0
	}
	return s.weights.Recency * (1 - float64(age)/float64(window))
}
