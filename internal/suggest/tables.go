package suggest

import "github.com/NYTEMODEONLY/grok-code-sub002/internal/discover"

// categoryMultipliers weight file categories per task. Missing entries
// count as 1.
var categoryMultipliers = map[TaskType]map[discover.Category]float64{
	Bugfix: {
		discover.CategorySource: 1.5, discover.CategoryTest: 1.2,
		discover.CategoryConfig: 0.8, discover.CategoryDocs: 0.5, discover.CategoryOther: 0.5,
	},
	Feature: {
		discover.CategorySource: 1.4, discover.CategoryTest: 0.9,
		discover.CategoryConfig: 1.0, discover.CategoryDocs: 0.7, discover.CategoryOther: 0.6,
	},
	Refactor: {
		discover.CategorySource: 1.5, discover.CategoryTest: 1.1,
		discover.CategoryConfig: 0.7, discover.CategoryDocs: 0.5, discover.CategoryOther: 0.5,
	},
	Test: {
		discover.CategoryTest: 1.8, discover.CategorySource: 1.2,
		discover.CategoryConfig: 0.8, discover.CategoryDocs: 0.5, discover.CategoryOther: 0.5,
	},
	Config: {
		discover.CategoryConfig: 1.8, discover.CategorySource: 1.0,
		discover.CategoryTest: 0.6, discover.CategoryDocs: 0.8, discover.CategoryOther: 0.9,
	},
	Documentation: {
		discover.CategoryDocs: 1.8, discover.CategorySource: 1.0,
		discover.CategoryConfig: 0.7, discover.CategoryTest: 0.5, discover.CategoryOther: 0.6,
	},
	Performance: {
		discover.CategorySource: 1.6, discover.CategoryConfig: 1.1,
		discover.CategoryTest: 0.8, discover.CategoryDocs: 0.4, discover.CategoryOther: 0.5,
	},
	Security: {
		discover.CategorySource: 1.5, discover.CategoryConfig: 1.4,
		discover.CategoryTest: 1.0, discover.CategoryDocs: 0.5, discover.CategoryOther: 0.6,
	},
}

// CategoryMultiplier returns the weight of a file category for a task.
func CategoryMultiplier(t TaskType, c discover.Category) float64 {
	if m, ok := categoryMultipliers[t][c]; ok {
		return m
	}
	return 1
}

// filenameKeywords earn a bonus when they appear in a file's relative path.
var filenameKeywords = map[TaskType][]string{
	Bugfix:        {"error", "errors", "handler", "validate", "validation", "exception"},
	Feature:       {"api", "service", "route", "routes", "component", "controller", "feature"},
	Refactor:      {"util", "utils", "helper", "helpers", "common", "shared", "base"},
	Test:          {"test", "tests", "spec", "mock", "mocks", "fixture", "fixtures"},
	Config:        {"config", "settings", "env", "setup", "docker", "deploy"},
	Documentation: {"readme", "docs", "guide", "changelog", "contributing"},
	Performance:   {"cache", "pool", "worker", "queue", "index", "query", "batch"},
	Security:      {"auth", "login", "password", "token", "crypto", "session", "permission", "security"},
}

var actions = map[TaskType]map[discover.Category]string{
	Bugfix: {
		discover.CategorySource: "Trace the failing path here and apply the fix",
		discover.CategoryTest:   "Add a regression test that reproduces the bug",
		discover.CategoryConfig: "Check for misconfiguration behind the bug",
		discover.CategoryDocs:   "Note the fix for users if behavior changes",
	},
	Feature: {
		discover.CategorySource: "Extend this module with the new functionality",
		discover.CategoryTest:   "Add tests covering the new feature",
		discover.CategoryConfig: "Add settings or flags the feature needs",
		discover.CategoryDocs:   "Document the new feature",
	},
	Refactor: {
		discover.CategorySource: "Restructure this code while keeping behavior identical",
		discover.CategoryTest:   "Run and extend these tests to lock in behavior",
		discover.CategoryConfig: "Update references after moving code",
		discover.CategoryDocs:   "Update docs that describe the old structure",
	},
	Test: {
		discover.CategorySource: "Identify the behavior under test",
		discover.CategoryTest:   "Extend or fix these tests",
		discover.CategoryConfig: "Check test runner configuration",
		discover.CategoryDocs:   "Document how to run the tests",
	},
	Config: {
		discover.CategorySource: "Check how this code reads the configuration",
		discover.CategoryTest:   "Cover the new configuration in tests",
		discover.CategoryConfig: "Edit this configuration",
		discover.CategoryDocs:   "Document the configuration options",
	},
	Documentation: {
		discover.CategorySource: "Read this code to describe it accurately",
		discover.CategoryTest:   "Use these tests as usage examples",
		discover.CategoryConfig: "Describe these settings",
		discover.CategoryDocs:   "Update this document",
	},
	Performance: {
		discover.CategorySource: "Profile this code and remove the hot spot",
		discover.CategoryTest:   "Add a benchmark for the slow path",
		discover.CategoryConfig: "Tune limits and pool sizes here",
		discover.CategoryDocs:   "Record performance characteristics",
	},
	Security: {
		discover.CategorySource: "Audit this code for the vulnerability",
		discover.CategoryTest:   "Add tests for malicious input",
		discover.CategoryConfig: "Review secrets and permissions here",
		discover.CategoryDocs:   "Document the security model",
	},
}

// defaultAction is used for categories without a table entry.
const defaultAction = "Review for context"

// ActionFor returns the suggested next step for a file category under a
// task.
func ActionFor(t TaskType, c discover.Category) string {
	if a, ok := actions[t][c]; ok {
		return a
	}
	return defaultAction
}

// volume is how many suggestions a task type asks for by default.
var volume = map[TaskType]int{
	Security:      8,
	Refactor:      8,
	Bugfix:        6,
	Performance:   6,
	Feature:       5,
	Test:          4,
	Config:        4,
	Documentation: 4,
}

// Volume returns the default suggestion count for a task type.
func Volume(t TaskType) int {
	if v, ok := volume[t]; ok {
		return v
	}
	return 5
}
