// Package toon implements TOON (Token-Oriented Object Notation) encoding
// of engine results.
package toon

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/NYTEMODEONLY/grok-code-sub002/internal/autocontext"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/budget"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/graph"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/model"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/optimize"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/suggest"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// Suggestions encodes a file suggestion result.
func Suggestions(res suggest.Result) string {
	parts := []string{
		field("task", string(res.Task.Type)),
		field("confidence", num(res.Task.Confidence)),
		field("risk", string(res.Task.Risk)),
	}

	rows := make([][]string, 0, len(res.Suggestions))
	for i := range res.Suggestions {
		sg := &res.Suggestions[i]
		rows = append(rows, []string{
			strconv.Itoa(sg.Rank),
			sg.Rel,
			string(sg.Category),
			num(sg.Score),
			num(sg.Confidence),
			sg.Action,
			sg.Reasoning,
		})
	}
	parts = append(parts, formatTabular("suggestions",
		[]string{"rank", "path", "category", "score", "confidence", "action", "reasoning"}, rows))
	parts = append(parts, formatList("recommendations", res.Recommendations))
	return strings.Join(parts, "\n")
}

// Context encodes an optimized context. With content set, each file's
// packed text follows the table.
func Context(root string, res optimize.Result, content bool) string {
	parts := []string{
		field("strategy", string(res.Strategy)),
		field("tokens", strconv.Itoa(res.TotalTokens)),
		field("budget", strconv.Itoa(res.BudgetTokens)),
		field("utilization", pct(res.Utilization)),
	}
	parts = append(parts, fileTable("files", root, res.Files))
	if content {
		for _, f := range res.Files {
			parts = append(parts, fmt.Sprintf("--- %s\n%s", rel(root, f.Path), strings.TrimRight(f.Content, "\n")))
		}
	}
	return strings.Join(parts, "\n")
}

// Files encodes a file context, as held by a session.
func Files(root string, files []model.ContextFile) string {
	return fileTable("context", root, files)
}

func fileTable(name, root string, files []model.ContextFile) string {
	rows := make([][]string, 0, len(files))
	for i := range files {
		f := &files[i]
		sections := make([]string, len(f.Sections))
		for j, s := range f.Sections {
			sections[j] = string(s)
		}
		rows = append(rows, []string{
			rel(root, f.Path),
			strconv.Itoa(f.Tokens),
			num(f.Score),
			strings.Join(sections, " "),
			strconv.FormatBool(f.Truncated),
			f.Source,
			strconv.FormatBool(f.Pinned),
		})
	}
	return formatTabular(name, []string{"path", "tokens", "score", "sections", "truncated", "source", "pinned"}, rows)
}

// Graph encodes nodes with their fan-in, fan-out, and centrality, then the
// edges. With cycles set, detected cycles are appended.
func Graph(g *graph.Graph, cycles bool) string {
	centrality := g.Centrality()
	var nodeRows [][]string
	for _, n := range g.Nodes() {
		nodeRows = append(nodeRows, []string{
			n,
			strconv.Itoa(len(g.Reverse(n))),
			strconv.Itoa(len(g.Forward(n))),
			fmt.Sprintf("%.4f", centrality[n]),
		})
	}
	parts := []string{formatTabular("nodes", []string{"path", "dependents", "dependencies", "centrality"}, nodeRows)}

	var edgeRows [][]string
	for _, e := range g.Edges() {
		edgeRows = append(edgeRows, []string{e.Source, e.Target, string(e.Kind), string(e.Classification)})
	}
	parts = append(parts, formatTabular("edges", []string{"source", "target", "kind", "classification"}, edgeRows))

	if cycles {
		var cycleRows [][]string
		for i, c := range g.Cycles() {
			cycleRows = append(cycleRows, []string{strconv.Itoa(i + 1), strings.Join(c, " -> ")})
		}
		parts = append(parts, formatTabular("cycles", []string{"id", "path"}, cycleRows))
	}
	return strings.Join(parts, "\n")
}

// Budget encodes per-category usage.
func Budget(st budget.Status) string {
	parts := []string{
		field("model", st.Model),
		field("limit", strconv.Itoa(st.Limit)),
		field("used", strconv.Itoa(st.TotalUsed)),
		field("remaining", strconv.Itoa(st.Remaining)),
		field("utilization", pct(st.Utilization)),
	}
	if st.OverCapacity > 0 {
		parts = append(parts, field("overCapacity", strconv.Itoa(st.OverCapacity)))
	}
	rows := make([][]string, 0, len(st.Categories))
	for _, c := range st.Categories {
		rows = append(rows, []string{c.Name, strconv.Itoa(c.Used), strconv.Itoa(c.Capacity), pct(c.Utilization)})
	}
	parts = append(parts, formatTabular("categories", []string{"name", "used", "capacity", "utilization"}, rows))
	return strings.Join(parts, "\n")
}

// Decision encodes a budget admission check.
func Decision(d budget.Decision) string {
	parts := []string{
		field("allowed", strconv.FormatBool(d.Allowed)),
		field("category", d.Category),
		field("requested", strconv.Itoa(d.Requested)),
		field("current", strconv.Itoa(d.Current)),
		field("capacity", strconv.Itoa(d.Capacity)),
		field("available", strconv.Itoa(d.Available)),
	}
	if d.Allowed {
		parts = append(parts, field("remaining", strconv.Itoa(d.Remaining)))
	} else {
		parts = append(parts, field("overBy", strconv.Itoa(d.OverBy)))
	}
	return strings.Join(parts, "\n")
}

// Analysis encodes a context measurement.
func Analysis(root string, a budget.Analysis) string {
	parts := []string{
		field("model", a.Model),
		field("limit", strconv.Itoa(a.Limit)),
		field("messages", strconv.Itoa(a.MessageCount)),
		field("messageTokens", strconv.Itoa(a.MessageTokens)),
		field("files", strconv.Itoa(a.FileCount)),
		field("fileTokens", strconv.Itoa(a.FileTokens)),
		field("current", strconv.Itoa(a.CurrentTokens)),
		field("utilization", pct(a.Utilization)),
		field("status", string(a.Status)),
	}
	if a.LargestFile != "" {
		parts = append(parts, field("largest", fmt.Sprintf("%s (%d tokens)", rel(root, a.LargestFile), a.LargestFileTok)))
	}
	return strings.Join(parts, "\n")
}

// Prune encodes a pruning result.
func Prune(root string, res budget.PruneResult) string {
	parts := []string{
		field("pruned", strconv.FormatBool(res.Pruned)),
		field("strategy", res.Strategy),
		field("reason", res.Reason),
		field("before", pct(res.UtilizationBefore)),
		field("after", pct(res.UtilizationAfter)),
		field("target", pct(res.Target)),
		field("tokensRemoved", strconv.Itoa(res.TokensRemoved)),
	}
	rows := make([][]string, 0, len(res.Files))
	for _, f := range res.Files {
		rows = append(rows, []string{rel(root, f.Path), strconv.Itoa(f.Tokens), num(f.Priority), f.Reason})
	}
	parts = append(parts, formatTabular("removed", []string{"path", "tokens", "priority", "reason"}, rows))
	return strings.Join(parts, "\n")
}

// AutoContext encodes an auto-context decision.
func AutoContext(root string, res autocontext.Result) string {
	parts := []string{
		field("autoAdded", strconv.FormatBool(res.AutoAdded)),
		field("reason", res.Reason),
	}
	if res.Task != "" {
		parts = append(parts, field("task", string(res.Task)), field("threshold", num(res.Threshold)))
	}
	if res.CooldownRemaining > 0 {
		parts = append(parts, field("cooldown", res.CooldownRemaining.String()))
	}
	if res.AutoAdded {
		parts = append(parts, fileTable("added", root, res.Files))
	}
	if len(res.Skipped) > 0 {
		skipped := make([]string, len(res.Skipped))
		for i, p := range res.Skipped {
			skipped[i] = rel(root, p)
		}
		parts = append(parts, formatList("skipped", skipped))
	}
	return strings.Join(parts, "\n")
}

// Patterns encodes learned query patterns.
func Patterns(pats []autocontext.Pattern) string {
	rows := make([][]string, 0, len(pats))
	for _, p := range pats {
		rows = append(rows, []string{p.Key, strconv.Itoa(p.Count), strconv.Itoa(len(p.Files))})
	}
	return formatTabular("patterns", []string{"key", "count", "files"}, rows)
}

func field(name, value string) string {
	return fmt.Sprintf("%s: %s", name, encodeValue(value))
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}

func pct(f float64) string {
	return strconv.FormatFloat(f, 'f', 1, 64)
}

func rel(root, path string) string {
	if root == "" {
		return path
	}
	r, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(r, "..") {
		return path
	}
	return filepath.ToSlash(r)
}

func formatList(name string, items []string) string {
	encoded := make([]string, len(items))
	for i, it := range items {
		encoded[i] = encodeValue(it)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]:", name, len(items))
	for _, e := range encoded {
		fmt.Fprintf(&b, "\n  %s", e)
	}
	return b.String()
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}

	if value != strings.TrimSpace(value) {
		return quote(value)
	}

	if strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}

	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}

	if looksNumeric.MatchString(value) {
		return value
	}

	if needsQuoting.MatchString(value) {
		return quote(value)
	}

	if strings.HasPrefix(value, "-") {
		return quote(value)
	}

	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}
