package optimize

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NYTEMODEONLY/grok-code-sub002/internal/model"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/parse"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/relevance"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/tokens"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/workspace"
)

func scores(totals ...float64) []relevance.Score {
	out := make([]relevance.Score, len(totals))
	for i, t := range totals {
		out[i] = relevance.Score{Path: fmt.Sprintf("/repo/f%d.js", i), Total: t}
	}
	return out
}

func paths(in []relevance.Score) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = s.Path
	}
	return out
}

func TestSelectSingleSlot(t *testing.T) {
	t.Parallel()

	ranked := scores(100, 50)
	for _, strategy := range []Strategy{DepthFirst, DiversityFirst} {
		got := Select(ranked, 1, strategy)
		require.Len(t, got, 1, strategy)
		assert.Equal(t, 100.0, got[0].Total, strategy)
	}
}

func TestSelectAll(t *testing.T) {
	t.Parallel()

	ranked := scores(3, 2, 1)
	assert.Len(t, Select(ranked, 0, DepthFirst), 3)
	assert.Len(t, Select(ranked, 10, DiversityFirst), 3)
}

func TestSelectDiversity(t *testing.T) {
	t.Parallel()

	ranked := []relevance.Score{
		{Path: "s1", Total: 50, SymbolMatches: 40},
		{Path: "s2", Total: 45, SymbolMatches: 35},
		{Path: "s3", Total: 40, SymbolMatches: 30},
		{Path: "s4", Total: 38, SymbolMatches: 28},
		{Path: "s5", Total: 36, SymbolMatches: 26},
		{Path: "p1", Total: 10, PathScore: 8},
		{Path: "d1", Total: 9, DependencyScore: 6},
	}

	assert.Equal(t, []string{"s1", "s2", "s3", "s4", "s5"}, paths(Select(ranked, 5, DepthFirst)))
	// top three, then the best symbol-, dependency-, path-dominant files
	assert.Equal(t, []string{"s1", "s2", "s3", "s4", "d1"}, paths(Select(ranked, 5, DiversityFirst)))
	assert.Equal(t, []string{"s1", "s2", "s3", "s4", "p1", "d1"}, paths(Select(ranked, 6, DiversityFirst)))
	// three slots or fewer never cluster
	assert.Equal(t, []string{"s1", "s2", "s3"}, paths(Select(ranked, 3, DiversityFirst)))
}

func TestDominant(t *testing.T) {
	t.Parallel()

	assert.Equal(t, FactorKeyword, Dominant(relevance.Score{KeywordMatches: 5, PathScore: 4}))
	assert.Equal(t, FactorSymbol, Dominant(relevance.Score{SymbolMatches: 3, DensityBonus: 4, KeywordMatches: 5}))
	assert.Equal(t, FactorNone, Dominant(relevance.Score{TypeScore: 2}))
}

func TestParseStrategy(t *testing.T) {
	t.Parallel()

	s, err := ParseStrategy("diversity-first")
	require.NoError(t, err)
	assert.Equal(t, DiversityFirst, s)

	s, err = ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, DepthFirst, s)

	_, err = ParseStrategy("breadth")
	assert.Error(t, err)
}

const sample = `import { db } from './db';
import { hash } from './crypto';

// Authenticates a user against the database.
export function login(user, pass) {
  const row = db.find(user);
  if (!row) {
    return null;
  }
  return hash(pass) === row.hash ? row : null;
}

function audit(event) {
  db.insert('audit', event);
  db.flush();
}
`

func TestExtractSections(t *testing.T) {
	t.Parallel()

	st := &model.SymbolTable{
		Imports:   []model.Import{{Source: "./db", Line: 1, EndLine: 1}, {Source: "./crypto", Line: 2, EndLine: 2}},
		Functions: []model.Symbol{{Name: "login", Line: 5, Exported: true}, {Name: "audit", Line: 13}},
		Exports:   []model.Symbol{{Name: "login", Line: 5}},
	}
	sections := Extract(sample, st, []string{"login"})

	byKind := map[model.SectionKind]Section{}
	var order []model.SectionKind
	for _, s := range sections {
		byKind[s.Kind] = s
		order = append(order, s.Kind)
	}

	assert.Equal(t, []model.SectionKind{
		model.SectionSignatures, model.SectionExports, model.SectionImports,
		model.SectionComments, model.SectionBody,
	}, order)
	assert.Equal(t, "function audit(event) {", byKind[model.SectionSignatures].Content)
	assert.Equal(t, "export function login(user, pass) {", byKind[model.SectionExports].Content)
	assert.Contains(t, byKind[model.SectionImports].Content, "./crypto")
	assert.Equal(t, "// Authenticates a user against the database.", byKind[model.SectionComments].Content)
	assert.Equal(t, 1.0, byKind[model.SectionExports].Relevance)
}

func TestExtractRelevanceReordersSections(t *testing.T) {
	t.Parallel()

	// body mentions the term often enough to outweigh comments
	content := "// note\n" + strings.Repeat("token token\n", 3)
	sections := Extract(content, nil, []string{"token"})
	require.Len(t, sections, 2)
	assert.Equal(t, model.SectionBody, sections[0].Kind)
}

func TestPackFitsWhole(t *testing.T) {
	t.Parallel()

	out, kinds, truncated := Pack(sample, nil, nil, len(sample))
	assert.Equal(t, sample, out)
	assert.False(t, truncated)
	assert.NotEmpty(t, kinds)
}

func TestPackNeverExceedsBudget(t *testing.T) {
	t.Parallel()

	st := &model.SymbolTable{
		Imports:   []model.Import{{Line: 1, EndLine: 1}, {Line: 2, EndLine: 2}},
		Functions: []model.Symbol{{Name: "login", Line: 5}, {Name: "audit", Line: 13}},
	}
	long := sample + strings.Repeat("console.log('padding line');\n", 200)
	for budget := 1; budget <= len(long)+10; budget += 7 {
		out, _, _ := Pack(long, st, []string{"login"}, budget)
		if len(out) > budget {
			t.Fatalf("budget %d: output %d chars", budget, len(out))
		}
	}
}

func TestPackTruncatesAtLineBoundary(t *testing.T) {
	t.Parallel()

	content := strings.Repeat("abcdefghij\n", 100)
	out, kinds, truncated := Pack(content, nil, nil, 200)
	assert.True(t, truncated)
	assert.Equal(t, []model.SectionKind{model.SectionBody}, kinds)
	assert.True(t, strings.HasSuffix(out, "\n"+TruncationMarker))
	for _, line := range strings.Split(strings.TrimSuffix(out, "\n"+TruncationMarker), "\n") {
		assert.Equal(t, "abcdefghij", line)
	}
	assert.LessOrEqual(t, len(out), 200)
}

func TestPerFileBudget(t *testing.T) {
	t.Parallel()

	o := New(nil, DefaultConfig(), nil, nil)
	assert.Equal(t, 500, o.PerFileBudget(1000, 10))
	assert.Equal(t, 4000, o.PerFileBudget(8000, 2))
	assert.Equal(t, 20000, o.PerFileBudget(100000, 1))
	assert.Zero(t, o.PerFileBudget(1000, 0))
}

func TestOptimize(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	big := sample + strings.Repeat("console.log('padding line');\n", 400)
	require.NoError(t, afero.WriteFile(fs, "/repo/auth.js", []byte(big), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/repo/small.js", []byte("export const x = 1;\n"), 0o644))

	store := workspace.NewStore(fs, parse.NewTreeSitter(fs), workspace.Options{}, nil)
	_, errs := store.LoadAll(context.Background(), []string{"/repo/auth.js", "/repo/small.js"})
	require.Empty(t, errs)

	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	o := New(store, DefaultConfig(), func() time.Time { return now }, nil)

	ranked := []relevance.Score{
		{Path: "/repo/auth.js", Total: 20},
		{Path: "/repo/small.js", Total: 5},
		{Path: "/repo/gone.js", Total: 1},
	}
	res, errs := o.Optimize(context.Background(), Request{
		Query:      "login",
		Ranked:     ranked,
		ModelLimit: 8000,
		MaxFiles:   3,
		Source:     "suggestion",
	})

	require.Len(t, errs, 1)
	assert.Equal(t, "/repo/gone.js", errs[0].Path)

	require.Len(t, res.Files, 3)
	assert.Equal(t, 2400, res.BudgetTokens)
	assert.Equal(t, 3200, res.PerFileChars)

	auth := res.Files[0]
	assert.True(t, auth.Truncated)
	assert.LessOrEqual(t, len(auth.Content), res.PerFileChars)
	assert.Contains(t, auth.Content, "export function login")
	assert.Equal(t, tokens.Estimate(auth.Content), auth.Tokens)
	assert.Equal(t, "suggestion", auth.Source)
	assert.Equal(t, now, auth.AddedAt)

	assert.False(t, res.Files[1].Truncated)
	assert.Zero(t, res.Files[2].Tokens)
	assert.Empty(t, res.Files[2].Content)

	assert.Equal(t, auth.Tokens+res.Files[1].Tokens, res.TotalTokens)
	assert.InDelta(t, float64(res.TotalTokens)/2400*100, res.Utilization, 1e-9)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultConfig().Validate())

	c := DefaultConfig()
	c.ContextShare = 1.5
	assert.Error(t, c.Validate())

	c = DefaultConfig()
	c.Strategy = "random"
	assert.Error(t, c.Validate())
}
