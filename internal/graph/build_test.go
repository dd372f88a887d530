package graph

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NYTEMODEONLY/grok-code-sub002/internal/model"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/parse"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/workspace"
)

func buildFrom(t *testing.T, files map[string]string, paths ...string) (*Graph, []model.ItemError) {
	t.Helper()
	fs := afero.NewMemMapFs()
	for p, c := range files {
		require.NoError(t, afero.WriteFile(fs, p, []byte(c), 0o644))
	}
	if len(paths) == 0 {
		for p := range files {
			paths = append(paths, p)
		}
	}
	store := workspace.NewStore(fs, parse.NewTreeSitter(fs), workspace.Options{}, nil)
	return NewBuilder(store, BuildOptions{Root: "/repo"}, nil).Build(context.Background(), paths)
}

func TestBuildRelativeJavaScript(t *testing.T) {
	t.Parallel()

	g, errs := buildFrom(t, map[string]string{
		"/repo/a.js": "import { b } from './b';\n",
		"/repo/b.js": "export function b() {}\n",
	})
	require.Empty(t, errs)

	want := model.DependencyEdge{Source: "/repo/a.js", Target: "/repo/b.js", Kind: model.EdgeImport, Classification: model.Internal}
	assert.Equal(t, []model.DependencyEdge{want}, g.Forward("/repo/a.js"))
	assert.Equal(t, []model.DependencyEdge{want}, g.Reverse("/repo/b.js"))
	assert.Empty(t, g.Forward("/repo/b.js"))
}

func TestBuildNoResolvableImports(t *testing.T) {
	t.Parallel()

	g, errs := buildFrom(t, map[string]string{
		"/repo/a.js": "import React from 'react';\nimport x from './missing';\nconst fs = require('fs');\n",
	})
	require.Empty(t, errs)
	assert.Empty(t, g.Forward("/repo/a.js"))
	assert.Equal(t, []string{"/repo/a.js"}, g.Nodes())
}

func TestBuildIndexAndAlias(t *testing.T) {
	t.Parallel()

	g, errs := buildFrom(t, map[string]string{
		"/repo/src/app.ts":               "import Button from '@/components/Button';\nimport { util } from '../lib';\n",
		"/repo/src/components/Button.tsx": "export default function Button() { return null; }\n",
		"/repo/lib/index.js":             "export const util = 1;\n",
	})
	require.Empty(t, errs)

	assert.Equal(t, []model.DependencyEdge{
		{Source: "/repo/src/app.ts", Target: "/repo/src/components/Button.tsx", Kind: model.EdgeImport, Classification: model.Alias},
		{Source: "/repo/src/app.ts", Target: "/repo/lib/index.js", Kind: model.EdgeImport, Classification: model.Internal},
	}, g.Forward("/repo/src/app.ts"))
}

func TestBuildPython(t *testing.T) {
	t.Parallel()

	g, errs := buildFrom(t, map[string]string{
		"/repo/pkg/__init__.py":    "",
		"/repo/pkg/mod.py":         "import os\nfrom .utils import helper\n",
		"/repo/pkg/utils.py":       "def helper():\n    pass\n",
		"/repo/pkg/sub/deep.py":    "from ..mod import thing\n",
		"/repo/pkg/sibling_use.py": "from . import utils\n",
	})
	require.Empty(t, errs)

	assert.Equal(t, []model.DependencyEdge{
		{Source: "/repo/pkg/mod.py", Target: "/repo/pkg/utils.py", Kind: model.EdgeImport, Classification: model.Internal},
		{Source: "/repo/pkg/mod.py", Target: "/repo/pkg/__init__.py", Kind: model.EdgePackage, Classification: model.Internal},
	}, g.Forward("/repo/pkg/mod.py"))

	assert.Equal(t, []model.DependencyEdge{
		{Source: "/repo/pkg/sub/deep.py", Target: "/repo/pkg/mod.py", Kind: model.EdgeImport, Classification: model.Internal},
		{Source: "/repo/pkg/sub/deep.py", Target: "/repo/pkg/__init__.py", Kind: model.EdgePackage, Classification: model.Internal},
	}, g.Forward("/repo/pkg/sub/deep.py"))

	assert.Equal(t, "/repo/pkg/utils.py", g.Forward("/repo/pkg/sibling_use.py")[0].Target)
	assert.Empty(t, g.Forward("/repo/pkg/__init__.py"))
}

func TestBuildGoModuleImports(t *testing.T) {
	t.Parallel()

	g, errs := buildFrom(t, map[string]string{
		"/repo/go.mod":                         "module example.com/app\n\ngo 1.22\n",
		"/repo/main.go":                        "package main\n\nimport (\n\t\"fmt\"\n\t\"example.com/app/internal/store\"\n)\n",
		"/repo/internal/store/store.go":        "package store\n",
		"/repo/internal/store/store_test.go":   "package store\n",
	}, "/repo/main.go", "/repo/internal/store/store.go")
	require.Empty(t, errs)

	assert.Equal(t, []model.DependencyEdge{
		{Source: "/repo/main.go", Target: "/repo/internal/store/store.go", Kind: model.EdgeImport, Classification: model.Internal},
	}, g.Forward("/repo/main.go"))
}

func TestBuildReportsMissingFiles(t *testing.T) {
	t.Parallel()

	g, errs := buildFrom(t, map[string]string{"/repo/a.js": ""}, "/repo/a.js", "/repo/gone.js")
	require.Len(t, errs, 1)
	assert.Equal(t, "/repo/gone.js", errs[0].Path)
	assert.Equal(t, model.ErrIO, errs[0].Kind)
	assert.Equal(t, []string{"/repo/a.js"}, g.Nodes())
}

func TestBuildCycle(t *testing.T) {
	t.Parallel()

	g, errs := buildFrom(t, map[string]string{
		"/repo/a.js": "import './b';\n",
		"/repo/b.js": "import './a';\n",
	})
	require.Empty(t, errs)
	assert.True(t, g.HasCycle())
	assert.Equal(t, [][]string{{"/repo/a.js", "/repo/b.js"}}, g.Cycles())
}

func TestBuildTracksTargetsAcrossBuilds(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/repo/a.js", []byte("import './b';\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/repo/b.js", []byte("export const b = 1;\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/repo/c.js", []byte("import './d';\n"), 0o644))
	store := workspace.NewStore(fs, parse.NewTreeSitter(fs), workspace.Options{}, nil)
	b := NewBuilder(store, BuildOptions{Root: "/repo"}, nil)
	ctx := context.Background()

	g, errs := b.Build(ctx, []string{"/repo/a.js", "/repo/b.js", "/repo/c.js"})
	require.Empty(t, errs)
	require.Len(t, g.Forward("/repo/a.js"), 1)
	assert.Empty(t, g.Forward("/repo/c.js"))

	// a.js and c.js are unchanged, so their cached records are reused.
	require.NoError(t, fs.Remove("/repo/b.js"))
	require.NoError(t, afero.WriteFile(fs, "/repo/d.js", []byte("export const d = 1;\n"), 0o644))

	g, errs = b.Build(ctx, []string{"/repo/a.js", "/repo/c.js", "/repo/d.js"})
	require.Empty(t, errs)
	assert.Empty(t, g.Forward("/repo/a.js"))
	assert.False(t, g.Has("/repo/b.js"))
	assert.Equal(t, []model.DependencyEdge{
		{Source: "/repo/c.js", Target: "/repo/d.js", Kind: model.EdgeImport, Classification: model.Internal},
	}, g.Forward("/repo/c.js"))
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		lang, spec string
		want       model.Classification
	}{
		{"javascript", "./b", model.Internal},
		{"javascript", "../x/y", model.Internal},
		{"javascript", "react", model.External},
		{"typescript", "@/lib/api", model.Alias},
		{"typescript", "~/lib/api", model.Alias},
		{"typescript", "@scope/pkg", model.External},
		{"python", "..utils", model.Internal},
		{"python", "os.path", model.External},
		{"go", "fmt", model.External},
		{"go", "", model.Unknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.lang, tc.spec), "%s %q", tc.lang, tc.spec)
	}
}
