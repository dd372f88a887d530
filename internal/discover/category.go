package discover

import (
	"path"
	"strings"

	"github.com/NYTEMODEONLY/grok-code-sub002/internal/lang"
)

// Category is the coarse role of a file, used for type bonuses and
// task-specific weighting.
type Category string

const (
	CategorySource Category = "source"
	CategoryTest   Category = "test"
	CategoryConfig Category = "config"
	CategoryDocs   Category = "docs"
	CategoryOther  Category = "other"
)

var configExts = map[string]struct{}{
	".json": {}, ".yaml": {}, ".yml": {}, ".toml": {}, ".ini": {},
	".cfg": {}, ".conf": {}, ".env": {}, ".properties": {}, ".xml": {},
}

var configNames = map[string]struct{}{
	"dockerfile": {}, "makefile": {}, "go.mod": {}, "package.json": {},
	"tsconfig.json": {}, "pyproject.toml": {}, "setup.cfg": {}, "requirements.txt": {},
}

var docExts = map[string]struct{}{
	".md": {}, ".markdown": {}, ".rst": {}, ".txt": {}, ".adoc": {},
}

var testDirs = map[string]struct{}{
	"test": {}, "tests": {}, "spec": {}, "__tests__": {}, "testdata": {},
}

// Classify returns the category of a slash-separated relative path.
func Classify(rel string) Category {
	base := strings.ToLower(path.Base(rel))
	ext := path.Ext(base)

	if lang.IsSourceExtension(ext) && IsTestFile(rel) {
		return CategoryTest
	}
	if _, ok := configNames[base]; ok {
		return CategoryConfig
	}
	if lang.IsSourceExtension(ext) {
		return CategorySource
	}
	if _, ok := configExts[ext]; ok {
		return CategoryConfig
	}
	if _, ok := docExts[ext]; ok {
		return CategoryDocs
	}
	if strings.HasPrefix(base, "readme") || strings.HasPrefix(base, "changelog") {
		return CategoryDocs
	}
	return CategoryOther
}

// IsTestFile reports whether a relative path looks like a test file, either
// by living under a test directory or by following a test naming convention.
func IsTestFile(rel string) bool {
	rel = strings.ReplaceAll(rel, `\`, "/")
	parts := strings.Split(rel, "/")
	for _, dir := range parts[:len(parts)-1] {
		if _, ok := testDirs[strings.ToLower(dir)]; ok {
			return true
		}
	}

	name := parts[len(parts)-1]
	rawStem := strings.TrimSuffix(name, path.Ext(name))
	stem := strings.ToLower(rawStem)
	switch {
	case strings.HasSuffix(stem, "_test"), strings.HasSuffix(stem, "_spec"):
		return true
	case strings.HasPrefix(stem, "test_"):
		return true
	case strings.HasSuffix(stem, ".test"), strings.HasSuffix(stem, ".spec"):
		return true
	case len(rawStem) > 4 && strings.HasSuffix(rawStem, "Test"):
		// FooTest.java
		return true
	}
	return false
}
