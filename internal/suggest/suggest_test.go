package suggest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NYTEMODEONLY/grok-code-sub002/internal/graph"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/model"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/relevance"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		query string
		want  TaskType
	}{
		{"fix login bug", Bugfix},
		{"the checkout page crashes with an error", Bugfix},
		{"add a new export button", Feature},
		{"refactor the payment module and clean up helpers", Refactor},
		{"write unit tests for the parser", Test},
		{"update the docker configuration", Config},
		{"update the readme documentation", Documentation},
		{"the search endpoint is slow, optimize the cache", Performance},
		{"sanitize input to prevent sql injection", Security},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			t.Parallel()
			a := Classify(tt.query)
			if a.Type != tt.want {
				t.Errorf("Classify(%q) = %s (scores %v), want %s", tt.query, a.Type, a.Scores, tt.want)
			}
			if a.Confidence <= 0 || a.Confidence > 1 {
				t.Errorf("confidence %g out of range", a.Confidence)
			}
		})
	}
}

func TestClassifyDefault(t *testing.T) {
	t.Parallel()

	a := Classify("hello there")
	assert.Equal(t, Feature, a.Type)
	assert.Equal(t, DefaultConfidence, a.Confidence)
	assert.Equal(t, RiskMedium, a.Risk)
	assert.Empty(t, a.Keywords)
}

func TestClassifyConfidenceShare(t *testing.T) {
	t.Parallel()

	// bugfix: fix, bug -> 2 * 1.2; security: password -> 1 * 1.5
	a := Classify("fix the password bug")
	require.Equal(t, Bugfix, a.Type)
	assert.InDelta(t, 2.4/3.9, a.Confidence, 1e-9)
	assert.Equal(t, []string{"bug", "fix"}, a.Keywords)
}

func TestRiskOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, RiskCritical, RiskOf(Security))
	assert.Equal(t, RiskHigh, RiskOf(Performance))
	assert.Equal(t, RiskHigh, RiskOf(Refactor))
	assert.Equal(t, RiskMedium, RiskOf(Bugfix))
	assert.Equal(t, RiskLow, RiskOf(Documentation))
	assert.Equal(t, RiskLow, RiskOf(Test))
}

func score(path, category string, total float64) relevance.Score {
	return relevance.Score{
		Path:          "/repo/" + path,
		Rel:           path,
		Category:      category,
		SymbolMatches: total,
		Total:         total,
	}
}

func TestSuggestTaskWeighting(t *testing.T) {
	t.Parallel()

	s := New(DefaultSettings(), nil)
	ranked := []relevance.Score{
		score("src/parser.js", "source", 20),
		score("test/parser.test.js", "test", 15),
		score("docs/parser.md", "docs", 14),
	}

	res := s.Suggest(Request{Query: "write unit tests for the parser", Ranked: ranked})
	require.Equal(t, Test, res.Task.Type)
	require.Len(t, res.Suggestions, 3)
	// 15*1.8 + filename bonus beats 20*1.2
	assert.Equal(t, "test/parser.test.js", res.Suggestions[0].Rel)
	assert.Equal(t, 1, res.Suggestions[0].Rank)
	assert.Equal(t, []string{"test"}, res.Suggestions[0].Keywords)
	assert.Equal(t, "Extend or fix these tests", res.Suggestions[0].Action)
	assert.InDelta(t, 1.0, res.Suggestions[0].Confidence, 1e-9)

	for i := 1; i < len(res.Suggestions); i++ {
		assert.GreaterOrEqual(t, res.Suggestions[i-1].Score, res.Suggestions[i].Score)
	}
}

func TestSuggestReasoning(t *testing.T) {
	t.Parallel()

	s := New(DefaultSettings(), nil)
	sc := score("src/auth/login.js", "source", 30)
	sc.MatchedSymbols = []string{"login"}
	res := s.Suggest(Request{Query: "fix login bug", Ranked: []relevance.Score{sc, score("src/random.js", "source", 1)}})

	require.Len(t, res.Suggestions, 2)
	r := res.Suggestions[0].Reasoning
	assert.Contains(t, r, "high relevance")
	assert.Contains(t, r, "source files are a priority for bugfix tasks")
	assert.Contains(t, r, "defines login")
	assert.Contains(t, r, "top match")
	assert.Contains(t, res.Suggestions[1].Reasoning, "low relevance")
	assert.Contains(t, res.Suggestions[1].Reasoning, "top 3 match")
}

func TestSuggestDropsWeakFiles(t *testing.T) {
	t.Parallel()

	s := New(DefaultSettings(), nil)
	weak := relevance.Score{Path: "/repo/a.js", Rel: "a.js", Category: "source", TypeScore: 2, RecencyScore: 3, Total: 5}
	res := s.Suggest(Request{Query: "fix login bug", Ranked: []relevance.Score{weak}})
	assert.Empty(t, res.Suggestions)
	assert.Equal(t, []string{"No relevant files found; name a symbol, file, or directory to narrow the search"}, res.Recommendations)

	res = s.Suggest(Request{Query: "fix login bug", Ranked: []relevance.Score{weak}, IncludeWeak: true})
	assert.Len(t, res.Suggestions, 1)

	res = s.Suggest(Request{Query: "fix login bug", Ranked: []relevance.Score{weak}, Learned: map[string]int{"/repo/a.js": 2}})
	require.Len(t, res.Suggestions, 1)
	assert.Equal(t, 2, res.Suggestions[0].Learned)
	assert.Contains(t, res.Suggestions[0].Reasoning, "picked 2 times for similar queries")
}

func TestSuggestVolume(t *testing.T) {
	t.Parallel()

	var ranked []relevance.Score
	for _, p := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
		ranked = append(ranked, score(p+".js", "source", 10))
	}
	s := New(DefaultSettings(), nil)

	res := s.Suggest(Request{Query: "update the readme documentation", Ranked: ranked})
	assert.Len(t, res.Suggestions, Volume(Documentation))

	res = s.Suggest(Request{Query: "update the readme documentation", Ranked: ranked, Max: 2})
	assert.Len(t, res.Suggestions, 2)
}

func TestRecommendations(t *testing.T) {
	t.Parallel()

	g := graph.New()
	hub := "/repo/src/auth.js"
	for _, p := range []string{"/repo/src/a.js", "/repo/src/b.js", "/repo/src/c.js"} {
		g.AddEdge(model.DependencyEdge{Source: p, Target: hub, Kind: model.EdgeImport, Classification: model.Internal})
	}
	g.Seal()

	s := New(DefaultSettings(), nil)
	res := s.Suggest(Request{
		Query:  "prevent xss in the auth form",
		Ranked: []relevance.Score{score("src/auth.js", "source", 20)},
		Graph:  g,
	})
	require.Equal(t, Security, res.Task.Type)
	recs := strings.Join(res.Recommendations, "\n")
	assert.Contains(t, recs, "Start with src/auth.js: audit this code for the vulnerability")
	assert.Contains(t, recs, "Security-sensitive change")
	assert.Contains(t, recs, "No tests among the suggestions")
	assert.Contains(t, recs, "src/auth.js is a hub with 3 dependents")
}

func TestContainsWord(t *testing.T) {
	t.Parallel()

	assert.True(t, containsWord("src/auth/session.js", "auth"))
	assert.True(t, containsWord("auth_service.py", "auth"))
	assert.False(t, containsWord("reconfigure.go", "config"))
}

func TestSettingsValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultSettings().Validate())
	bad := DefaultSettings()
	bad.ConfidenceFloor = 0
	assert.Error(t, bad.Validate())
	bad = DefaultSettings()
	bad.FilenameBonus = -1
	assert.Error(t, bad.Validate())
}
