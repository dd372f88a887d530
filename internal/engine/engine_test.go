package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NYTEMODEONLY/grok-code-sub002/internal/autocontext"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/budget"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/config"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/graph"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/model"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/relevance"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/suggest"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Budget.Models = map[string]int{"small": 8000, "large": 100000}
	cfg.Budget.DefaultModel = "small"
	cfg.Workers = 2
	return cfg
}

func newEngine(t *testing.T, files map[string]string) (*Engine, *clock) {
	t.Helper()
	fs := afero.NewMemMapFs()
	for p, c := range files {
		require.NoError(t, afero.WriteFile(fs, p, []byte(c), 0o644))
	}
	clk := &clock{now: time.Now()}
	e, err := New(Options{Root: "/repo", Config: testConfig(), FS: fs, Now: clk.Now})
	require.NoError(t, err)
	return e, clk
}

var loginRepo = map[string]string{
	"/repo/auth.js":   "import { hash } from './crypto';\n\nexport function login(user, password) {\n  return hash(password) === user.hash;\n}\n",
	"/repo/crypto.js": "export function hash(s) {\n  return s.split('').reverse().join('');\n}\n",
	"/repo/random.js": "const x = 1;\nmodule.exports = x;\n",
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Optimizer.Strategy = "sideways"
	_, err := New(Options{Root: "/repo", Config: cfg, FS: afero.NewMemMapFs()})
	var cerr *config.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "optimizer", cerr.Field)

	_, err = New(Options{Config: testConfig()})
	assert.Error(t, err)
}

func TestBuildAndExportGraph(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, loginRepo)
	var buf bytes.Buffer
	assert.ErrorIs(t, e.ExportGraph(&buf, graph.FormatJSON, true), ErrNoGraph)

	g, errs, err := e.BuildDependencyGraph(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, errs)
	assert.Equal(t, []string{"/repo/auth.js", "/repo/crypto.js", "/repo/random.js"}, g.Nodes())
	require.Len(t, g.Forward("/repo/auth.js"), 1)
	assert.Equal(t, "/repo/crypto.js", g.Forward("/repo/auth.js")[0].Target)
	assert.Same(t, g, e.Graph())

	require.NoError(t, e.ExportGraph(&buf, graph.FormatJSON, true))
	var doc struct {
		Nodes []string `json:"nodes"`
		Edges []struct {
			Source string `json:"source"`
			Target string `json:"target"`
		} `json:"edges"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, []string{"auth.js", "crypto.js", "random.js"}, doc.Nodes)
	require.Len(t, doc.Edges, 1)
	assert.Equal(t, "auth.js", doc.Edges[0].Source)
	assert.Equal(t, "crypto.js", doc.Edges[0].Target)

	buf.Reset()
	require.NoError(t, e.ExportGraph(&buf, graph.FormatDOT, true))
	assert.Contains(t, buf.String(), `"auth.js" -> "crypto.js"`)

	buf.Reset()
	require.NoError(t, e.ExportGraph(&buf, graph.FormatCSV, false))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "source,target,kind,classification", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "/repo/auth.js,/repo/crypto.js,"), lines[1])
}

func TestBuildGraphSubset(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, loginRepo)
	g, _, err := e.BuildDependencyGraph(context.Background(), []string{"auth.js"})
	require.NoError(t, err)
	assert.True(t, g.Has("/repo/auth.js"))
	assert.False(t, g.Has("/repo/random.js"))
}

func TestBuildGraphMissingRoot(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, loginRepo)
	g, errs, err := e.BuildDependencyGraph(context.Background(), []string{"nope"})
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, model.ErrIO, errs[0].Kind)
	assert.Empty(t, g.Nodes())
}

func TestBuildGraphCanceled(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, loginRepo)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := e.BuildDependencyGraph(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSuggestFilesLogin(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, loginRepo)
	res, errs, err := e.SuggestFiles(context.Background(), "fix login bug", SuggestOptions{})
	require.NoError(t, err)
	require.Empty(t, errs)

	assert.Equal(t, suggest.Bugfix, res.Task.Type)
	require.NotEmpty(t, res.Suggestions)
	top := res.Suggestions[0]
	assert.Equal(t, "auth.js", top.Rel)
	assert.Equal(t, 1, top.Rank)
	assert.Contains(t, top.Reasoning, "login")
	for _, sg := range res.Suggestions {
		assert.NotEqual(t, "random.js", sg.Rel)
	}
	assert.NotEmpty(t, res.Recommendations)
	assert.NotNil(t, e.Graph())
}

func TestSuggestFilesIncludeWeak(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, loginRepo)
	res, _, err := e.SuggestFiles(context.Background(), "fix login bug", SuggestOptions{IncludeWeak: true, Max: 10})
	require.NoError(t, err)
	rels := make([]string, len(res.Suggestions))
	for i, sg := range res.Suggestions {
		rels[i] = sg.Rel
	}
	assert.Contains(t, rels, "random.js")
	assert.Equal(t, "auth.js", rels[0])
}

func TestOptimizeContext(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, loginRepo)
	res, _, err := e.OptimizeContext(context.Background(), "login password hash", OptimizeOptions{MaxFiles: 2})
	require.NoError(t, err)
	require.NotEmpty(t, res.Files)
	assert.LessOrEqual(t, len(res.Files), 2)
	paths := make([]string, len(res.Files))
	for i, f := range res.Files {
		paths[i] = f.Path
	}
	assert.Contains(t, paths, "/repo/auth.js")
	assert.LessOrEqual(t, res.TotalTokens, res.BudgetTokens)
	for _, f := range res.Files {
		assert.Equal(t, "scan", f.Source)
		assert.Positive(t, f.Tokens)
	}
}

func TestOptimizeContextIncludeDependencies(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, loginRepo)
	res, _, err := e.OptimizeContext(context.Background(), "login", OptimizeOptions{MaxFiles: 2, IncludeDependencies: true})
	require.NoError(t, err)
	paths := make([]string, len(res.Files))
	for i, f := range res.Files {
		paths[i] = f.Path
	}
	assert.Contains(t, paths, "/repo/crypto.js")
}

func TestOptimizeContextRejectsBadOptions(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, loginRepo)
	var cerr *config.ConfigError

	_, _, err := e.OptimizeContext(context.Background(), "login", OptimizeOptions{Strategy: "sideways"})
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "strategy", cerr.Field)

	_, _, err = e.OptimizeContext(context.Background(), "login", OptimizeOptions{MaxFiles: -1})
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "maxFiles", cerr.Field)
}

func TestWithDependencies(t *testing.T) {
	t.Parallel()

	g := graph.New()
	g.AddEdge(model.DependencyEdge{Source: "a", Target: "c", Kind: model.EdgeImport, Classification: model.Internal})
	g.Seal()

	ranked := scoresFor("a", "b", "c", "d")
	got := withDependencies(ranked, g, 1)
	order := make([]string, len(got))
	for i, sc := range got {
		order[i] = sc.Path
	}
	assert.Equal(t, []string{"a", "c", "b", "d"}, order)
	assert.Equal(t, ranked, withDependencies(ranked, nil, 1))
}

func scoresFor(paths ...string) []relevance.Score {
	out := make([]relevance.Score, len(paths))
	for i, p := range paths {
		out[i] = relevance.Score{Path: p, Total: float64(len(paths) - i)}
	}
	return out
}

func TestBudgetOperations(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, nil)
	d, err := e.CanAddToBudget(budget.Files, 2400, "")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 2400, d.Capacity)

	d, err = e.AddToBudget(budget.Files, 2000, "")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = e.AddToBudget(budget.Files, 500, "")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 100, d.OverBy)

	left, err := e.RemoveFromBudget(budget.Files, 5000)
	require.NoError(t, err)
	assert.Zero(t, left)

	st := e.BudgetStatus("large")
	assert.Equal(t, "large", st.Model)
	assert.Equal(t, 100000, st.Limit)

	_, err = e.AddToBudget("nope", 1, "")
	assert.ErrorIs(t, err, budget.ErrUnknownCategory)
}

func TestAnalyzeContext(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, nil)
	a := e.AnalyzeContext(
		[]model.Message{{Role: model.RoleUser, Content: strings.Repeat("x", 4000)}},
		[]model.ContextFile{{Path: "/repo/a.js", Tokens: 4000}},
		"",
	)
	assert.Equal(t, "small", a.Model)
	assert.Equal(t, 5000, a.CurrentTokens)
	assert.InDelta(t, 62.5, a.Utilization, 1e-9)
	assert.Equal(t, budget.Moderate, a.Status)
	assert.Equal(t, "/repo/a.js", a.LargestFile)
}

func TestSessionAddRemoveFile(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, map[string]string{
		"/repo/a.js":   strings.Repeat("a", 400),
		"/repo/big.js": strings.Repeat("b", 10000),
	})
	f, d, err := e.AddFile(context.Background(), "a.js", false)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 100, f.Tokens)
	assert.Equal(t, "explicit", f.Source)
	assert.Equal(t, 100, e.Budget().Usage(budget.Files))

	f, _, err = e.AddFile(context.Background(), "/repo/a.js", true)
	require.NoError(t, err)
	assert.True(t, f.Pinned)
	assert.Equal(t, 100, e.Budget().Usage(budget.Files), "re-adding does not recount")

	_, d, err = e.AddFile(context.Background(), "big.js", false)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Len(t, e.Session().Files(), 1)

	_, _, err = e.AddFile(context.Background(), "missing.js", false)
	var ie model.ItemError
	require.True(t, errors.As(err, &ie), "got %v", err)
	assert.Equal(t, model.ErrIO, ie.Kind)

	assert.True(t, e.RemoveFile("a.js"))
	assert.False(t, e.RemoveFile("a.js"))
	assert.Zero(t, e.Budget().Usage(budget.Files))
	assert.Empty(t, e.Session().Files())
}

func TestSessionMessagesTrackConversation(t *testing.T) {
	t.Parallel()

	e, clk := newEngine(t, map[string]string{"/repo/auth.js": "export function login() {}\n"})
	f, _, err := e.AddFile(context.Background(), "auth.js", false)
	require.NoError(t, err)
	added := f.LastReferenced

	clk.Advance(time.Minute)
	assert.True(t, e.AddMessage(model.RoleUser, "look at auth.js please"))
	assert.Equal(t, 6, e.Budget().Usage(budget.Conversation))
	files := e.Session().Files()
	require.Len(t, files, 1)
	assert.Equal(t, added.Add(time.Minute), files[0].LastReferenced)

	assert.False(t, e.AddMessage(model.RoleAssistant, strings.Repeat("z", 20000)))
	assert.Equal(t, 5006, e.Budget().Usage(budget.Conversation))
	assert.Equal(t, 1806, e.BudgetStatus("").OverCapacity)
	assert.Len(t, e.Session().Messages(), 2)

	assert.Equal(t, "large", e.SetModel("large"))
	assert.Equal(t, "small", e.SetModel("unknown"))
}

func TestSetModelReportsFilesOverCapacity(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, map[string]string{"/repo/big.js": strings.Repeat("b", 16000)})
	require.Equal(t, "large", e.SetModel("large"))
	_, d, err := e.AddFile(context.Background(), "big.js", false)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	require.Equal(t, "small", e.SetModel("small"))
	assert.Equal(t, 4000, e.Budget().Usage(budget.Files))
	st := e.BudgetStatus("")
	assert.Equal(t, 1600, st.OverCapacity)
	for _, c := range st.Categories {
		if c.Name == budget.Files {
			assert.Equal(t, 1600, c.OverBy)
		}
	}
	assert.Len(t, e.Session().Files(), 1)
}

func TestSessionPruneKeepsPinned(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, map[string]string{
		"/repo/docs/notes.md": strings.Repeat("n", 4000),
		"/repo/src/core.js":   strings.Repeat("c", 4000),
	})
	_, d, err := e.AddFile(context.Background(), "docs/notes.md", false)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	_, d, err = e.AddFile(context.Background(), "src/core.js", true)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	e.AddMessage(model.RoleUser, strings.Repeat("m", 12800))

	a := e.AnalyzeSession()
	assert.Equal(t, 5200, a.CurrentTokens)

	res, err := e.PruneContext(budget.Aggressive)
	require.NoError(t, err)
	assert.True(t, res.Pruned)
	require.Len(t, res.Files, 1)
	assert.Equal(t, "/repo/docs/notes.md", res.Files[0].Path)
	assert.False(t, res.TargetReached)

	files := e.Session().Files()
	require.Len(t, files, 1)
	assert.Equal(t, "/repo/src/core.js", files[0].Path)
	assert.Equal(t, 1000, e.Budget().Usage(budget.Files))

	res, err = e.PruneContext(budget.Aggressive)
	require.NoError(t, err)
	assert.False(t, res.Pruned)
	assert.Equal(t, "no prunable files in context", res.Reason)

	_, err = e.PruneContext("reckless")
	assert.Error(t, err)
}

func TestAnalyzeAndAutoAdd(t *testing.T) {
	t.Parallel()

	e, clk := newEngine(t, loginRepo)
	res, err := e.AnalyzeAndAutoAdd(context.Background(), "inspect the login function")
	require.NoError(t, err)
	require.True(t, res.AutoAdded, res.Reason)
	assert.True(t, res.Trigger.Inspection)

	files := e.Session().Files()
	require.NotEmpty(t, files)
	paths := make([]string, len(files))
	sum := 0
	for i, f := range files {
		paths[i] = f.Path
		sum += f.Tokens
		assert.Equal(t, "auto", f.Source)
	}
	assert.Contains(t, paths, "/repo/auth.js")
	assert.Equal(t, sum, e.Budget().Usage(budget.Files))

	clk.Advance(5 * time.Second)
	res, err = e.AnalyzeAndAutoAdd(context.Background(), "inspect the login function again")
	require.NoError(t, err)
	assert.False(t, res.AutoAdded)
	assert.Equal(t, autocontext.ReasonCooldown, res.Reason)
	assert.Equal(t, 25*time.Second, res.CooldownRemaining)
}

func TestAnalyzeAndAutoAddNoTrigger(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, loginRepo)
	res, err := e.AnalyzeAndAutoAdd(context.Background(), "thanks, that looks great")
	require.NoError(t, err)
	assert.False(t, res.AutoAdded)
	assert.Equal(t, autocontext.ReasonNoTrigger, res.Reason)
	assert.Empty(t, e.Session().Files())
}

func TestResetStartsNewSession(t *testing.T) {
	t.Parallel()

	e, clk := newEngine(t, loginRepo)
	id := e.Session().ID()
	_, err := e.AnalyzeAndAutoAdd(context.Background(), "inspect the login function")
	require.NoError(t, err)
	e.AddMessage(model.RoleUser, "hello")

	clk.Advance(time.Second)
	e.Reset()
	assert.NotEqual(t, id, e.Session().ID())
	assert.Equal(t, clk.Now(), e.Session().Started())
	assert.Empty(t, e.Session().Files())
	assert.Empty(t, e.Session().Messages())
	assert.Zero(t, e.BudgetStatus("").TotalUsed)

	res, err := e.AnalyzeAndAutoAdd(context.Background(), "inspect the login function")
	require.NoError(t, err)
	assert.NotEqual(t, autocontext.ReasonCooldown, res.Reason)
}

func TestWatchRequiresOSFilesystem(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, loginRepo)
	_, err := e.Watch(context.Background())
	assert.Error(t, err)
}
