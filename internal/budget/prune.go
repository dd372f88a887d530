package budget

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/NYTEMODEONLY/grok-code-sub002/internal/discover"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/model"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/relevance"
)

// Pruning priority components. Higher totals are evicted first.
const (
	typeWeight      = 30.0
	relevanceWeight = 30.0
	sizeWeight      = 20.0
	stalenessWeight = 20.0
	// largeFileTokens is the size that earns the full size weight.
	largeFileTokens = 2000
)

var typeBaseline = map[discover.Category]float64{
	discover.CategoryOther:  1.0,
	discover.CategoryDocs:   0.85,
	discover.CategoryConfig: 0.7,
	discover.CategoryTest:   0.55,
	discover.CategorySource: 0.3,
}

// PrunedFile is one evicted file with its explanation.
type PrunedFile struct {
	Path     string  `json:"path"`
	Tokens   int     `json:"tokens"`
	Priority float64 `json:"priority"`
	Reason   string  `json:"reason"`
}

// PruneResult describes what a prune call did. Pruned is false, with a
// Reason, when nothing needed or could be evicted.
type PruneResult struct {
	Pruned            bool         `json:"pruned"`
	Reason            string       `json:"reason"`
	Strategy          string       `json:"strategy"`
	Files             []PrunedFile `json:"files"`
	TokensRemoved     int          `json:"tokensRemoved"`
	UtilizationBefore float64      `json:"utilizationBefore"`
	UtilizationAfter  float64      `json:"utilizationAfter"`
	Target            float64      `json:"target"` // percent
	TargetReached     bool         `json:"targetReached"`
}

// ParseStrategy validates a pruning strategy name against the config.
func (m *Manager) ParseStrategy(name string) (string, error) {
	if name == "" {
		name = Balanced
	}
	if _, ok := m.cfg.Prune.Targets[name]; !ok {
		return "", fmt.Errorf("%w %q (want one of %s)", ErrUnknownStrategy, name, strings.Join(m.cfg.Strategies(), ", "))
	}
	return name, nil
}

// Priority scores how eagerly a file should be evicted, combining its type,
// inverse relevance to recent conversation terms, size, and time since it
// was added or last referenced.
func (m *Manager) Priority(f model.ContextFile, recentTerms []string, now time.Time) (float64, string) {
	cat := discover.Classify(f.Path)
	typeScore := typeBaseline[cat] * typeWeight

	rel := termCoverage(f, recentTerms)
	relScore := (1 - rel) * relevanceWeight

	sizeFrac := float64(f.Tokens) / largeFileTokens
	if sizeFrac > 1 {
		sizeFrac = 1
	}
	sizeScore := sizeFrac * sizeWeight

	last := f.AddedAt
	if f.LastReferenced.After(last) {
		last = f.LastReferenced
	}
	age := now.Sub(last)
	if last.IsZero() || age < 0 {
		age = 0
	}
	staleFrac := age.Minutes() / m.cfg.Prune.StaleMinutes
	if staleFrac > 1 {
		staleFrac = 1
	}
	staleScore := staleFrac * stalenessWeight

	var reasons []string
	if cat != discover.CategorySource {
		reasons = append(reasons, fmt.Sprintf("%s file", cat))
	}
	if len(recentTerms) > 0 && rel < 0.2 {
		reasons = append(reasons, "not mentioned in recent conversation")
	}
	if sizeFrac >= 0.5 {
		reasons = append(reasons, fmt.Sprintf("large (%d tokens)", f.Tokens))
	}
	if staleFrac >= 0.5 {
		reasons = append(reasons, fmt.Sprintf("unused for %s", age.Round(time.Minute)))
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "lowest retention priority")
	}
	return typeScore + relScore + sizeScore + staleScore, strings.Join(reasons, ", ")
}

// termCoverage is the fraction of terms that appear in the file's path or
// content.
func termCoverage(f model.ContextFile, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	text := strings.ToLower(f.Path + "\n" + f.Content)
	hits := 0
	for _, t := range terms {
		if strings.Contains(text, t) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}

// Prune evicts files until utilization falls to the strategy's target or
// the per-call cap is hit. Pinned files are never evicted. The files
// category usage is reduced by the evicted tokens. Callers remove the
// returned paths from their file context.
func (m *Manager) Prune(messages []model.Message, files []model.ContextFile, modelName, strategy string) (PruneResult, error) {
	strategy, err := m.ParseStrategy(strategy)
	if err != nil {
		return PruneResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	a := m.Analyze(messages, files, modelName)
	target := m.cfg.Prune.Targets[strategy]
	res := PruneResult{
		Strategy:          strategy,
		UtilizationBefore: a.Utilization,
		UtilizationAfter:  a.Utilization,
		Target:            target * 100,
	}

	targetTokens := int(float64(a.Limit) * target)
	gap := a.CurrentTokens - targetTokens
	if gap <= 0 {
		res.Reason = fmt.Sprintf("utilization %.1f%% already at or below %s target %.0f%%", a.Utilization, strategy, res.Target)
		res.TargetReached = true
		return res, nil
	}

	recent := messages
	if n := m.cfg.Prune.RecentMessages; len(recent) > n {
		recent = recent[len(recent)-n:]
	}
	var convo strings.Builder
	for _, msg := range recent {
		convo.WriteString(msg.Content)
		convo.WriteByte(' ')
	}
	terms := relevance.Normalize(convo.String())
	now := m.now()

	type candidate struct {
		file     model.ContextFile
		priority float64
		reason   string
	}
	var candidates []candidate
	for _, f := range files {
		if f.Pinned || f.Tokens <= 0 {
			continue
		}
		p, reason := m.Priority(f, terms, now)
		candidates = append(candidates, candidate{file: f, priority: p, reason: reason})
	}
	if len(candidates) == 0 {
		res.Reason = "no prunable files in context"
		return res, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].priority != candidates[j].priority {
			return candidates[i].priority > candidates[j].priority
		}
		return candidates[i].file.Path < candidates[j].file.Path
	})

	for _, c := range candidates {
		if res.TokensRemoved >= gap || len(res.Files) >= m.cfg.Prune.MaxFilesPerCall {
			break
		}
		res.Files = append(res.Files, PrunedFile{
			Path:     c.file.Path,
			Tokens:   c.file.Tokens,
			Priority: c.priority,
			Reason:   c.reason,
		})
		res.TokensRemoved += c.file.Tokens
	}

	m.usage[Files] = max(m.usage[Files]-res.TokensRemoved, 0)

	res.Pruned = true
	res.UtilizationAfter = percent(a.CurrentTokens-res.TokensRemoved, a.Limit)
	res.TargetReached = res.TokensRemoved >= gap
	if res.TargetReached {
		res.Reason = fmt.Sprintf("pruned %d files to reach %s target %.0f%%", len(res.Files), strategy, res.Target)
	} else {
		res.Reason = fmt.Sprintf("pruned %d files (per-call limit); utilization still above %s target %.0f%%", len(res.Files), strategy, res.Target)
	}
	m.log.Info("pruned context",
		zap.String("strategy", strategy),
		zap.Int("files", len(res.Files)),
		zap.Int("tokensRemoved", res.TokensRemoved),
		zap.Float64("utilizationAfter", res.UtilizationAfter))
	return res, nil
}
