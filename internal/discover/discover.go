// Package discover finds candidate files in a repository.
package discover

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"
	"github.com/spf13/afero"

	"github.com/NYTEMODEONLY/grok-code-sub002/internal/lang"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/model"
)

// FileEntry represents a discovered file.
type FileEntry struct {
	Path     string // Absolute
	Rel      string // Relative to the walk root
	Language string // "" for non-source files
	Category Category
	Size     int64
	ModTime  time.Time
}

// Options control which files are returned.
type Options struct {
	// Include, when non-empty, keeps only files matching at least one
	// gitignore-style pattern.
	Include []string
	// Exclude drops files matching any gitignore-style pattern.
	Exclude []string
	// MaxFileSize skips files larger than this many bytes (0 = no limit).
	MaxFileSize int64
	// SourceOnly restricts results to files with a registered language.
	SourceOnly bool
}

var skipDirs = map[string]struct{}{
	"__pycache__":   {},
	"node_modules":  {},
	".git":          {},
	".hg":           {},
	".svn":          {},
	"venv":          {},
	".venv":         {},
	"env":           {},
	".env":          {},
	"build":         {},
	"dist":          {},
	"coverage":      {},
	"vendor":        {},
	".tox":          {},
	".mypy_cache":   {},
	".ruff_cache":   {},
	".pytest_cache": {},
	"egg-info":      {},
}

// Files discovers candidate files under root. Unreadable directories and
// oversize files are reported in the error list; the walk always continues.
func Files(fs afero.Fs, root string, opts Options) ([]FileEntry, []model.ItemError) {
	var errs []model.ItemError

	info, err := fs.Stat(root)
	if err != nil {
		return nil, []model.ItemError{{Path: root, Kind: model.ErrIO, Err: err}}
	}
	if !info.IsDir() {
		return nil, []model.ItemError{{Path: root, Kind: model.ErrIO, Err: fmt.Errorf("not a directory")}}
	}

	var gitFiles map[string]struct{}
	if _, ok := fs.(*afero.OsFs); ok {
		gitFiles = gitLsFiles(root)
	}
	var gi *ignore.GitIgnore
	if gitFiles == nil {
		gi = loadGitignore(fs, root)
	}
	include := compile(opts.Include)
	exclude := compile(opts.Exclude)

	var results []FileEntry

	_ = afero.Walk(fs, root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			errs = append(errs, model.ItemError{Path: path, Kind: model.ErrIO, Err: err})
			if fi != nil && fi.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		name := fi.Name()

		if fi.IsDir() {
			if path == root {
				return nil
			}
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") {
			return nil
		}

		// Skip symlinks
		if fi.Mode()&os.ModeSymlink != 0 {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if gitFiles != nil {
			if _, ok := gitFiles[rel]; !ok {
				return nil
			}
		} else if gi != nil && gi.MatchesPath(rel) {
			return nil
		}

		if include != nil && !include.MatchesPath(rel) {
			return nil
		}
		if exclude != nil && exclude.MatchesPath(rel) {
			return nil
		}

		langName := lang.ForPath(name)
		cat := Classify(rel)
		if opts.SourceOnly && langName == "" {
			return nil
		}
		if cat == CategoryOther && include == nil {
			return nil
		}

		if opts.MaxFileSize > 0 && fi.Size() > opts.MaxFileSize {
			errs = append(errs, model.ItemError{
				Path: path,
				Kind: model.ErrTooLarge,
				Err:  fmt.Errorf("skipped (%d > %d bytes)", fi.Size(), opts.MaxFileSize),
			})
			return nil
		}

		results = append(results, FileEntry{
			Path:     path,
			Rel:      rel,
			Language: langName,
			Category: cat,
			Size:     fi.Size(),
			ModTime:  fi.ModTime(),
		})
		return nil
	})

	sort.Slice(results, func(i, j int) bool {
		return results[i].Path < results[j].Path
	})

	return results, errs
}

func compile(patterns []string) *ignore.GitIgnore {
	if len(patterns) == 0 {
		return nil
	}
	return ignore.CompileIgnoreLines(patterns...)
}

func gitLsFiles(root string) map[string]struct{} {
	gitDir := filepath.Join(root, ".git")
	info, err := os.Stat(gitDir)
	if err != nil || !info.IsDir() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return nil
	}

	files := make(map[string]struct{})
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line != "" {
			files[line] = struct{}{}
		}
	}
	return files
}

func loadGitignore(fs afero.Fs, root string) *ignore.GitIgnore {
	data, err := afero.ReadFile(fs, filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return ignore.CompileIgnoreLines(strings.Split(string(data), "\n")...)
}
