package autocontext

import (
	"sort"
	"time"

	"github.com/NYTEMODEONLY/grok-code-sub002/internal/relevance"
)

// Pattern is a normalized query seen before and the files picked for it.
type Pattern struct {
	Key   string         `json:"key"`
	Terms []string       `json:"terms"`
	Count int            `json:"count"`
	Files map[string]int `json:"files"`
	Last  time.Time      `json:"last"`
}

// HistoryEntry records one automatic addition of a file.
type HistoryEntry struct {
	Query string    `json:"query"`
	Task  string    `json:"task"`
	At    time.Time `json:"at"`
}

// Proactive is a file suggested from past similar queries.
type Proactive struct {
	Path       string  `json:"path"`
	Frequency  int     `json:"frequency"`
	Similarity float64 `json:"similarity"`
}

// Jaccard returns |a∩b| / |a∪b| for two term sets. Two empty sets have
// similarity 0.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	inter := 0
	union := len(set)
	seen := make(map[string]bool, len(b))
	for _, t := range b {
		if seen[t] {
			continue
		}
		seen[t] = true
		if set[t] {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}

// Learn records that paths were picked for query.
func (c *Controller) Learn(query string, paths []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.learn(query, paths)
}

func (c *Controller) learn(query string, paths []string) {
	terms := relevance.Normalize(query)
	if len(terms) == 0 {
		return
	}
	key := relevance.Key(terms)
	p, ok := c.patterns[key]
	if !ok {
		p = &Pattern{Key: key, Terms: terms, Files: make(map[string]int)}
		c.patterns[key] = p
	}
	p.Count++
	p.Last = c.now()
	for _, path := range paths {
		p.Files[path]++
	}
}

// Proactive returns files picked for past queries similar to query. Only
// patterns seen at least the configured minimum number of times count.
func (c *Controller) Proactive(query string) []Proactive {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.proactive(query)
}

func (c *Controller) proactive(query string) []Proactive {
	terms := relevance.Normalize(query)
	if len(terms) == 0 {
		return nil
	}
	byPath := make(map[string]*Proactive)
	for _, p := range c.patterns {
		if p.Count < c.cfg.MinPatternFrequency {
			continue
		}
		sim := Jaccard(terms, p.Terms)
		if sim <= c.cfg.Similarity {
			continue
		}
		for path, n := range p.Files {
			pr, ok := byPath[path]
			if !ok {
				pr = &Proactive{Path: path}
				byPath[path] = pr
			}
			pr.Frequency += n
			pr.Similarity = max(pr.Similarity, sim)
		}
	}
	out := make([]Proactive, 0, len(byPath))
	for _, pr := range byPath {
		out = append(out, *pr)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].Path < out[j].Path
	})
	return out
}

// Patterns returns a copy of the learned patterns, most frequent first.
func (c *Controller) Patterns() []Pattern {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Pattern, 0, len(c.patterns))
	for _, p := range c.patterns {
		cp := *p
		cp.Terms = append([]string(nil), p.Terms...)
		cp.Files = make(map[string]int, len(p.Files))
		for k, v := range p.Files {
			cp.Files[k] = v
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// History returns the automatic additions of path, oldest first.
func (c *Controller) History(path string) []HistoryEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]HistoryEntry(nil), c.history[path]...)
}
