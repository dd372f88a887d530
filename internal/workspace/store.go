// Package workspace caches per-file records (metadata, symbol tables, and
// resolved dependencies) and keeps them fresh against the filesystem.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/NYTEMODEONLY/grok-code-sub002/internal/lang"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/model"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/parse"
)

// DefaultParseTimeout bounds how long a single file may take to parse.
const DefaultParseTimeout = 5 * time.Second

// Options configure a Store.
type Options struct {
	ParseTimeout time.Duration
	// Workers bounds parse concurrency; 0 means GOMAXPROCS.
	Workers int
}

// Store caches FileRecords keyed by path. Records are immutable once
// published; updates replace the whole record.
type Store struct {
	fs      afero.Fs
	src     parse.SymbolSource
	log     *zap.Logger
	timeout time.Duration
	workers int

	mu      sync.RWMutex
	records map[string]*model.FileRecord
}

// NewStore creates a Store that reads through fs and parses through src.
func NewStore(fs afero.Fs, src parse.SymbolSource, opts Options, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.ParseTimeout <= 0 {
		opts.ParseTimeout = DefaultParseTimeout
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return &Store{
		fs:      fs,
		src:     src,
		log:     log,
		timeout: opts.ParseTimeout,
		workers: opts.Workers,
		records: make(map[string]*model.FileRecord),
	}
}

// FS returns the filesystem the store reads from.
func (s *Store) FS() afero.Fs { return s.fs }

// Workers returns the configured concurrency bound.
func (s *Store) Workers() int { return s.workers }

// Get returns the cached record for path without touching the filesystem.
func (s *Store) Get(path string) (*model.FileRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[path]
	return rec, ok
}

// Len returns the number of cached records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Invalidate drops the cached record for path.
func (s *Store) Invalidate(path string) {
	s.mu.Lock()
	delete(s.records, path)
	s.mu.Unlock()
}

// Load returns the record for path, re-parsing only when the file's
// modification time has advanced past the cached one. Files without a
// registered language get an empty symbol table.
func (s *Store) Load(ctx context.Context, path string) (*model.FileRecord, error) {
	info, err := s.fs.Stat(path)
	if err != nil {
		return nil, model.ItemError{Path: path, Kind: model.ErrIO, Err: err}
	}
	if info.IsDir() {
		return nil, model.ItemError{Path: path, Kind: model.ErrIO, Err: fmt.Errorf("is a directory")}
	}

	if rec, ok := s.Get(path); ok && !info.ModTime().After(rec.ModTime) {
		return rec, nil
	}

	rec := &model.FileRecord{
		Path:     path,
		Language: lang.ForPath(path),
		Size:     info.Size(),
		ModTime:  info.ModTime(),
	}

	if rec.Language == "" {
		rec.Symbols = &model.SymbolTable{}
	} else {
		pctx, cancel := context.WithTimeout(ctx, s.timeout)
		st, err := s.src.Parse(pctx, path)
		cancel()
		if err != nil {
			kind := model.ErrParse
			if errors.Is(err, context.DeadlineExceeded) {
				kind = model.ErrTimeout
			}
			return nil, model.ItemError{Path: path, Kind: kind, Err: err}
		}
		rec.Symbols = st
	}

	s.mu.Lock()
	// A concurrent Load may have published a fresher record.
	if cur, ok := s.records[path]; ok && cur.ModTime.After(rec.ModTime) {
		s.mu.Unlock()
		return cur, nil
	}
	s.records[path] = rec
	s.mu.Unlock()
	return rec, nil
}

// SetDeps publishes a resolved dependency list for path. It is ignored when
// the cached record has been replaced since modTime.
func (s *Store) SetDeps(path string, modTime time.Time, deps []model.DependencyEdge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.records[path]
	if !ok || !cur.ModTime.Equal(modTime) {
		return
	}
	next := *cur
	next.Deps = deps
	next.DepsResolved = true
	s.records[path] = &next
}

// LoadAll loads every path using a bounded worker pool. Results keep the
// input order; failures are logged and returned as item errors.
func (s *Store) LoadAll(ctx context.Context, paths []string) ([]*model.FileRecord, []model.ItemError) {
	type slot struct {
		rec *model.FileRecord
		err *model.ItemError
	}
	slots := make([]slot, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				slots[i].err = &model.ItemError{Path: path, Kind: model.ErrTimeout, Err: err}
				return nil
			}
			rec, err := s.Load(gctx, path)
			if err != nil {
				var ie model.ItemError
				if !errors.As(err, &ie) {
					ie = model.ItemError{Path: path, Kind: model.ErrIO, Err: err}
				}
				slots[i].err = &ie
				return nil
			}
			slots[i].rec = rec
			return nil
		})
	}
	_ = g.Wait()

	var (
		records []*model.FileRecord
		errs    []model.ItemError
	)
	for _, sl := range slots {
		if sl.err != nil {
			s.log.Warn("skipping file",
				zap.String("path", sl.err.Path),
				zap.String("kind", string(sl.err.Kind)),
				zap.Error(sl.err.Err))
			errs = append(errs, *sl.err)
			continue
		}
		records = append(records, sl.rec)
	}
	return records, errs
}

// ReadContent reads a file's raw content through the store's filesystem.
func (s *Store) ReadContent(path string) (string, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
