package suggest

import (
	"fmt"
	"math"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/NYTEMODEONLY/grok-code-sub002/internal/discover"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/graph"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/relevance"
)

// Settings tune the re-ranking applied on top of relevance scores.
type Settings struct {
	// MaxSuggestions caps results when a call does not ask for a count.
	// Zero means the task type's default volume.
	MaxSuggestions int `mapstructure:"maxSuggestions" yaml:"maxSuggestions"`
	// FilenameBonus is added per task keyword found in a file's path.
	FilenameBonus float64 `mapstructure:"filenameBonus" yaml:"filenameBonus"`
	// LearnedBonus is added per past co-occurrence with similar queries,
	// up to LearnedCap occurrences.
	LearnedBonus float64 `mapstructure:"learnedBonus" yaml:"learnedBonus"`
	LearnedCap   int     `mapstructure:"learnedCap" yaml:"learnedCap"`
	// ConfidenceFloor is the score that maps to a suggestion confidence of
	// 1 when the top score is lower.
	ConfidenceFloor float64 `mapstructure:"confidenceFloor" yaml:"confidenceFloor"`
	// HubDependents is the number of dependents that makes a file a hub.
	HubDependents int `mapstructure:"hubDependents" yaml:"hubDependents"`
}

// DefaultSettings returns the stock re-ranking settings.
func DefaultSettings() Settings {
	return Settings{
		FilenameBonus:   3,
		LearnedBonus:    2,
		LearnedCap:      5,
		ConfidenceFloor: 15,
		HubDependents:   3,
	}
}

// Validate rejects negative bonuses and caps.
func (s Settings) Validate() error {
	switch {
	case s.MaxSuggestions < 0:
		return fmt.Errorf("maxSuggestions must not be negative, got %d", s.MaxSuggestions)
	case s.FilenameBonus < 0:
		return fmt.Errorf("filenameBonus must not be negative, got %g", s.FilenameBonus)
	case s.LearnedBonus < 0:
		return fmt.Errorf("learnedBonus must not be negative, got %g", s.LearnedBonus)
	case s.LearnedCap < 0:
		return fmt.Errorf("learnedCap must not be negative, got %d", s.LearnedCap)
	case s.ConfidenceFloor <= 0:
		return fmt.Errorf("confidenceFloor must be positive, got %g", s.ConfidenceFloor)
	case s.HubDependents < 1:
		return fmt.Errorf("hubDependents must be at least 1, got %d", s.HubDependents)
	}
	return nil
}

// Request is one suggestion call.
type Request struct {
	Query  string
	Ranked []relevance.Score
	// Graph is optional; it enables hub-file recommendations.
	Graph *graph.Graph
	// Max overrides the number of suggestions returned.
	Max int
	// Learned maps paths to how often they were picked for similar queries.
	Learned map[string]int
	// IncludeWeak keeps files whose only signals are type and recency.
	IncludeWeak bool
}

// Suggestion is one ranked, explained file.
type Suggestion struct {
	Path       string            `json:"path"`
	Rel        string            `json:"rel"`
	Category   discover.Category `json:"category"`
	Rank       int               `json:"rank"`
	Score      float64           `json:"score"`
	Base       float64           `json:"base"`
	Confidence float64           `json:"confidence"`
	Keywords   []string          `json:"keywords,omitempty"`
	Learned    int               `json:"learned,omitempty"`
	Reasoning  string            `json:"reasoning"`
	Action     string            `json:"action"`
	Relevance  relevance.Score   `json:"relevance"`
}

// Result is the output of Suggest.
type Result struct {
	Task            Analysis     `json:"task"`
	Suggestions     []Suggestion `json:"suggestions"`
	Recommendations []string     `json:"recommendations"`
}

// Suggester re-ranks relevance scores for the task a query describes.
type Suggester struct {
	settings Settings
	log      *zap.Logger
}

// New creates a Suggester.
func New(settings Settings, log *zap.Logger) *Suggester {
	if log == nil {
		log = zap.NewNop()
	}
	return &Suggester{settings: settings, log: log}
}

// Suggest classifies the query, re-weights the ranked files for that task,
// and explains each pick.
func (s *Suggester) Suggest(req Request) Result {
	task := Classify(req.Query)
	confMult := ConfidenceMultiplier(task.Confidence)

	var out []Suggestion
	for _, sc := range req.Ranked {
		learned := min(req.Learned[sc.Path], s.settings.LearnedCap)
		if !req.IncludeWeak && !hasEvidence(sc) && learned == 0 {
			continue
		}
		cat := discover.Category(sc.Category)
		kws := filenameHits(task.Type, sc.Rel)
		score := sc.Total*CategoryMultiplier(task.Type, cat) +
			float64(len(kws))*s.settings.FilenameBonus +
			float64(learned)*s.settings.LearnedBonus
		out = append(out, Suggestion{
			Path:      sc.Path,
			Rel:       sc.Rel,
			Category:  cat,
			Score:     score * confMult,
			Base:      sc.Total,
			Keywords:  kws,
			Learned:   learned,
			Relevance: sc,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})

	n := req.Max
	if n <= 0 {
		n = s.settings.MaxSuggestions
	}
	if n <= 0 {
		n = Volume(task.Type)
	}
	if len(out) > n {
		out = out[:n]
	}

	top := s.settings.ConfidenceFloor
	if len(out) > 0 && out[0].Score > top {
		top = out[0].Score
	}
	for i := range out {
		sg := &out[i]
		sg.Rank = i + 1
		sg.Confidence = math.Min(sg.Score/top, 1)
		sg.Action = ActionFor(task.Type, sg.Category)
		sg.Reasoning = reasoning(task.Type, sg)
	}

	res := Result{Task: task, Suggestions: out}
	res.Recommendations = s.recommend(task, out, req.Graph)
	s.log.Debug("suggested files",
		zap.String("task", string(task.Type)),
		zap.Float64("confidence", task.Confidence),
		zap.Int("suggestions", len(out)))
	return res
}

// ConfidenceMultiplier scales scores by classification confidence, from
// 0.75 at no confidence to 1.25 at full confidence.
func ConfidenceMultiplier(confidence float64) float64 {
	return 0.75 + 0.5*math.Max(0, math.Min(confidence, 1))
}

// hasEvidence reports whether any query-dependent signal fired.
func hasEvidence(sc relevance.Score) bool {
	return sc.SymbolMatches > 0 || sc.KeywordMatches > 0 || sc.PathScore > 0 || sc.DependencyScore > 0
}

// filenameHits returns the task keywords found in the path's segments.
func filenameHits(t TaskType, rel string) []string {
	lower := strings.ToLower(rel)
	var hits []string
	for _, kw := range filenameKeywords[t] {
		if containsWord(lower, kw) {
			hits = append(hits, kw)
		}
	}
	return hits
}

// containsWord matches kw against path words split on separators, so
// "auth" matches "auth/session.js" and "auth_service.py" but "config"
// does not match "reconfigure.go".
func containsWord(p, kw string) bool {
	words := strings.FieldsFunc(p, func(r rune) bool {
		return r == '/' || r == '.' || r == '_' || r == '-' || r == ' '
	})
	for _, w := range words {
		if w == kw {
			return true
		}
	}
	return false
}

// reasoning builds the explanation from the factors that fired.
func reasoning(t TaskType, sg *Suggestion) string {
	var parts []string
	switch {
	case sg.Confidence >= 0.8:
		parts = append(parts, "high relevance")
	case sg.Confidence >= 0.5:
		parts = append(parts, "good relevance")
	case sg.Confidence >= 0.25:
		parts = append(parts, "moderate relevance")
	default:
		parts = append(parts, "low relevance")
	}
	if CategoryMultiplier(t, sg.Category) > 1 {
		parts = append(parts, fmt.Sprintf("%s files are a priority for %s tasks", sg.Category, t))
	}
	if len(sg.Relevance.MatchedSymbols) > 0 {
		syms := sg.Relevance.MatchedSymbols
		if len(syms) > 3 {
			syms = syms[:3]
		}
		parts = append(parts, "defines "+strings.Join(syms, ", "))
	}
	if len(sg.Keywords) > 0 {
		parts = append(parts, "filename matches "+strings.Join(sg.Keywords, ", "))
	}
	if sg.Relevance.DependencyScore > 0 {
		parts = append(parts, "linked to query terms through imports")
	}
	if sg.Learned > 0 {
		parts = append(parts, fmt.Sprintf("picked %d times for similar queries", sg.Learned))
	}
	switch {
	case sg.Rank == 1:
		parts = append(parts, "top match")
	case sg.Rank <= 3:
		parts = append(parts, "top 3 match")
	}
	return strings.Join(parts, "; ")
}

func (s *Suggester) recommend(task Analysis, out []Suggestion, g *graph.Graph) []string {
	if len(out) == 0 {
		return []string{"No relevant files found; name a symbol, file, or directory to narrow the search"}
	}
	top := out[0]
	recs := []string{fmt.Sprintf("Start with %s: %s", top.Rel, strings.ToLower(top.Action[:1])+top.Action[1:])}

	switch task.Risk {
	case RiskCritical:
		recs = append(recs, "Security-sensitive change: get a second review and test abuse cases")
	case RiskHigh:
		recs = append(recs, "High-risk change: run the full test suite before and after")
	}

	if task.Confidence < 0.5 {
		recs = append(recs, fmt.Sprintf("Task type %s is uncertain (%.0f%% confidence); add detail to the query", task.Type, task.Confidence*100))
	}

	if task.Type != Documentation && task.Type != Config {
		hasTest := false
		for _, sg := range out {
			if sg.Category == discover.CategoryTest {
				hasTest = true
				break
			}
		}
		if !hasTest {
			recs = append(recs, "No tests among the suggestions; locate or add tests for "+path.Base(top.Rel))
		}
	}

	if hub := s.hub(out, g); hub != nil {
		recs = append(recs, fmt.Sprintf("%s is a hub with %d dependents; changes there ripple widely", hub.Rel, len(g.Reverse(hub.Path))))
	}
	return recs
}

// hub returns the most central suggestion with enough dependents, if any.
func (s *Suggester) hub(out []Suggestion, g *graph.Graph) *Suggestion {
	if g == nil {
		return nil
	}
	centrality := g.Centrality()
	var best *Suggestion
	for i := range out {
		sg := &out[i]
		if len(g.Reverse(sg.Path)) < s.settings.HubDependents {
			continue
		}
		if best == nil || centrality[sg.Path] > centrality[best.Path] {
			best = sg
		}
	}
	return best
}
