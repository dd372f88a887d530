package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/NYTEMODEONLY/grok-code-sub002/internal/model"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/parse"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// countingSource records how many times each path was parsed.
type countingSource struct {
	calls atomic.Int32
	block bool
	fail  map[string]bool
}

func (c *countingSource) Parse(ctx context.Context, path string) (*model.SymbolTable, error) {
	c.calls.Add(1)
	if c.block {
		<-ctx.Done()
		return nil, &parse.ParseError{Path: path, Err: ctx.Err()}
	}
	if c.fail[path] {
		return nil, &parse.ParseError{Path: path, Err: errors.New("syntax error")}
	}
	return &model.SymbolTable{
		Functions: []model.Symbol{{Name: filepath.Base(path), Kind: model.Function}},
	}, nil
}

func memFS(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
	return fs
}

func TestLoadCachesUntilModTimeAdvances(t *testing.T) {
	t.Parallel()

	fs := memFS(t, map[string]string{"/repo/a.js": "x"})
	src := &countingSource{}
	s := NewStore(fs, src, Options{}, nil)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, fs.Chtimes("/repo/a.js", base, base))

	rec, err := s.Load(ctx, "/repo/a.js")
	require.NoError(t, err)
	assert.Equal(t, "javascript", rec.Language)
	s.SetDeps("/repo/a.js", rec.ModTime, []model.DependencyEdge{{Source: "/repo/a.js", Target: "/repo/b.js"}})

	rec, err = s.Load(ctx, "/repo/a.js")
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.calls.Load())
	assert.True(t, rec.DepsResolved)

	later := base.Add(time.Minute)
	require.NoError(t, fs.Chtimes("/repo/a.js", later, later))

	rec, err = s.Load(ctx, "/repo/a.js")
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
	assert.False(t, rec.DepsResolved)
	assert.Empty(t, rec.Deps)
	assert.Equal(t, later, rec.ModTime.UTC())
}

func TestSetDepsIgnoresStaleModTime(t *testing.T) {
	t.Parallel()

	fs := memFS(t, map[string]string{"/a.go": "package a"})
	s := NewStore(fs, &countingSource{}, Options{}, nil)
	rec, err := s.Load(context.Background(), "/a.go")
	require.NoError(t, err)

	s.SetDeps("/a.go", rec.ModTime.Add(-time.Hour), []model.DependencyEdge{{Source: "/a.go", Target: "/b.go"}})
	got, ok := s.Get("/a.go")
	require.True(t, ok)
	assert.False(t, got.DepsResolved)
}

func TestLoadNonSourceFile(t *testing.T) {
	t.Parallel()

	fs := memFS(t, map[string]string{"/repo/README.md": "# docs"})
	src := &countingSource{}
	s := NewStore(fs, src, Options{}, nil)

	rec, err := s.Load(context.Background(), "/repo/README.md")
	require.NoError(t, err)
	assert.Equal(t, "", rec.Language)
	assert.NotNil(t, rec.Symbols)
	assert.Zero(t, src.calls.Load())
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	s := NewStore(afero.NewMemMapFs(), &countingSource{}, Options{}, nil)
	_, err := s.Load(context.Background(), "/missing.py")
	var ie model.ItemError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, model.ErrIO, ie.Kind)
}

func TestLoadTimeout(t *testing.T) {
	t.Parallel()

	fs := memFS(t, map[string]string{"/slow.py": "x = 1"})
	s := NewStore(fs, &countingSource{block: true}, Options{ParseTimeout: 10 * time.Millisecond}, nil)

	_, err := s.Load(context.Background(), "/slow.py")
	var ie model.ItemError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, model.ErrTimeout, ie.Kind)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoadAllKeepsOrderAndCollectsErrors(t *testing.T) {
	t.Parallel()

	files := map[string]string{}
	var paths []string
	for _, name := range []string{"e.py", "d.py", "c.py", "b.py", "a.py"} {
		p := "/repo/" + name
		files[p] = "x = 1"
		paths = append(paths, p)
	}
	paths = append(paths, "/repo/missing.py")

	src := &countingSource{fail: map[string]bool{"/repo/c.py": true}}
	s := NewStore(memFS(t, files), src, Options{Workers: 3}, nil)

	records, errs := s.LoadAll(context.Background(), paths)

	var got []string
	for _, r := range records {
		got = append(got, r.Path)
	}
	assert.Equal(t, []string{"/repo/e.py", "/repo/d.py", "/repo/b.py", "/repo/a.py"}, got)

	require.Len(t, errs, 2)
	assert.Equal(t, "/repo/c.py", errs[0].Path)
	assert.Equal(t, model.ErrParse, errs[0].Kind)
	assert.Equal(t, "/repo/missing.py", errs[1].Path)
	assert.Equal(t, model.ErrIO, errs[1].Kind)
}

func TestInvalidate(t *testing.T) {
	t.Parallel()

	fs := memFS(t, map[string]string{"/a.ts": "x"})
	src := &countingSource{}
	s := NewStore(fs, src, Options{}, nil)
	ctx := context.Background()

	_, err := s.Load(ctx, "/a.ts")
	require.NoError(t, err)
	s.Invalidate("/a.ts")
	assert.Equal(t, 0, s.Len())

	_, err = s.Load(ctx, "/a.ts")
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestWatcherInvalidatesOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.py")
	require.NoError(t, os.WriteFile(path, []byte("x = 1\n"), 0o644))

	s := NewStore(afero.NewOsFs(), &countingSource{}, Options{}, nil)
	_, err := s.Load(context.Background(), path)
	require.NoError(t, err)

	changed := make(chan string, 16)
	w, err := NewWatcher(s, []string{dir}, func(p string) { changed <- p })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	defer func() {
		cancel()
		<-w.Done()
		require.NoError(t, w.Close())
	}()

	require.NoError(t, os.WriteFile(path, []byte("x = 2\n"), 0o644))

	select {
	case p := <-changed:
		assert.Equal(t, path, p)
	case <-time.After(5 * time.Second):
		t.Fatal("no change event")
	}
	_, ok := s.Get(path)
	assert.False(t, ok)
}
