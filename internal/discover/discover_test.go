package discover

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NYTEMODEONLY/grok-code-sub002/internal/model"
)

func rels(entries []FileEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Rel
	}
	return out
}

func TestDiscoverFiles(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/repo/main.py", "print('hello')")
	writeFile(t, fs, "/repo/lib/util.py", "def helper(): pass")
	writeFile(t, fs, "/repo/README.md", "# hello")
	writeFile(t, fs, "/repo/logo.png", "\x89PNG")
	// Hidden file should be ignored
	writeFile(t, fs, "/repo/.hidden.py", "secret")

	entries, errs := Files(fs, "/repo", Options{})
	require.Empty(t, errs)

	assert.Equal(t, []string{"README.md", "lib/util.py", "main.py"}, rels(entries))
	assert.Equal(t, "/repo/lib/util.py", entries[1].Path)
	assert.Equal(t, "python", entries[1].Language)
	assert.Equal(t, CategorySource, entries[1].Category)
	assert.Equal(t, "", entries[0].Language)
	assert.Equal(t, CategoryDocs, entries[0].Category)
}

func TestDiscoverSourceOnly(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/repo/main.py", "pass")
	writeFile(t, fs, "/repo/config.yaml", "a: 1")

	entries, errs := Files(fs, "/repo", Options{SourceOnly: true})
	require.Empty(t, errs)
	assert.Equal(t, []string{"main.py"}, rels(entries))
}

func TestDiscoverSkipDirs(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/repo/main.py", "pass")
	writeFile(t, fs, "/repo/node_modules/pkg.js", "pass")
	writeFile(t, fs, "/repo/__pycache__/cached.py", "pass")
	writeFile(t, fs, "/repo/.hidden/secret.py", "pass")

	entries, errs := Files(fs, "/repo", Options{})
	require.Empty(t, errs)
	assert.Equal(t, []string{"main.py"}, rels(entries))
}

func TestDiscoverGitignore(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/repo/.gitignore", "generated/\n*.min.js\n")
	writeFile(t, fs, "/repo/app.js", "x")
	writeFile(t, fs, "/repo/app.min.js", "x")
	writeFile(t, fs, "/repo/generated/out.js", "x")

	entries, errs := Files(fs, "/repo", Options{})
	require.Empty(t, errs)
	assert.Equal(t, []string{"app.js"}, rels(entries))
}

func TestDiscoverIncludeExclude(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/repo/src/a.ts", "x")
	writeFile(t, fs, "/repo/src/a.test.ts", "x")
	writeFile(t, fs, "/repo/scripts/run.py", "x")
	writeFile(t, fs, "/repo/data/blob.bin", "x")

	entries, errs := Files(fs, "/repo", Options{
		Include: []string{"src/", "*.bin"},
		Exclude: []string{"*.test.ts"},
	})
	require.Empty(t, errs)
	assert.Equal(t, []string{"data/blob.bin", "src/a.ts"}, rels(entries))
}

func TestDiscoverMaxFileSize(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/repo/small.go", "package a")
	writeFile(t, fs, "/repo/big.go", "package a // padding padding padding")

	entries, errs := Files(fs, "/repo", Options{MaxFileSize: 16})
	assert.Equal(t, []string{"small.go"}, rels(entries))
	require.Len(t, errs, 1)
	assert.Equal(t, model.ErrTooLarge, errs[0].Kind)
	assert.Equal(t, "/repo/big.go", errs[0].Path)
}

func TestDiscoverMissingRoot(t *testing.T) {
	t.Parallel()

	entries, errs := Files(afero.NewMemMapFs(), "/nope", Options{})
	assert.Empty(t, entries)
	require.Len(t, errs, 1)
	assert.Equal(t, model.ErrIO, errs[0].Kind)
}

func TestDiscoverSymlinksSkipped(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fs := afero.NewOsFs()
	writeFile(t, fs, filepath.Join(dir, "real.py"), "pass")

	if err := os.Symlink(filepath.Join(dir, "real.py"), filepath.Join(dir, "link.py")); err != nil {
		t.Skip("symlinks not supported")
	}

	entries, errs := Files(fs, dir, Options{})
	require.Empty(t, errs)
	assert.Equal(t, []string{"real.py"}, rels(entries))
}

func TestIsTestFile(t *testing.T) {
	t.Parallel()
	cases := []struct {
		path string
		want bool
	}{
		// Test directory components
		{"tests/test_scenes.py", true},
		{"tests/conftest.py", true},
		{"spec/models/user_spec.js", true},
		{"src/__tests__/foo.js", true},
		{"src/test/java/FooTest.java", true},
		// Filename patterns
		{"internal/graph/graph_test.go", true},
		{"test_helpers.py", true},
		{"foo.test.js", true},
		{"foo.spec.ts", true},
		{"LoginTest.ts", true},
		// Production files
		{"loom/models.py", false},
		{"internal/graph/graph.go", false},
		{"conftest.py", false},
		{"testing_utils.go", false},
		{"latest.js", false},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, IsTestFile(tc.path))
		})
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()
	cases := map[string]Category{
		"src/auth.js":         CategorySource,
		"src/auth.test.js":    CategoryTest,
		"package.json":        CategoryConfig,
		"config/app.yaml":     CategoryConfig,
		"Dockerfile":          CategoryConfig,
		"docs/guide.md":       CategoryDocs,
		"README":              CategoryDocs,
		"assets/logo.png":     CategoryOther,
		"tests/fixtures.json": CategoryConfig,
	}
	for path, want := range cases {
		assert.Equal(t, want, Classify(path), path)
	}
}

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
