package optimize

import (
	"sort"
	"strings"

	"github.com/NYTEMODEONLY/grok-code-sub002/internal/model"
)

// Section is a contiguous-in-spirit slice of a file: the lines of one kind,
// kept in source order.
type Section struct {
	Kind      model.SectionKind
	Content   string
	Priority  float64
	Relevance float64
}

// Weight orders sections for greedy packing.
func (s Section) Weight() float64 {
	return s.Priority * (1 + s.Relevance*0.1)
}

// Priorities are the fixed base weights per section kind.
var Priorities = map[model.SectionKind]float64{
	model.SectionSignatures: 10,
	model.SectionExports:    9,
	model.SectionImports:    7,
	model.SectionComments:   4,
	model.SectionBody:       3,
}

var commentPrefixes = []string{"//", "#", "/*", "*", `"""`, "'''"}

var exportPrefixes = []string{"export ", "module.exports", "exports.", "__all__"}

// Extract splits content into sections using the symbol table for import
// spans and declaration lines. Every line lands in exactly one section.
func Extract(content string, st *model.SymbolTable, terms []string) []Section {
	lines := strings.Split(content, "\n")
	kind := make([]model.SectionKind, len(lines))

	mark := func(line int, k model.SectionKind) {
		if line >= 1 && line <= len(lines) && kind[line-1] == "" {
			kind[line-1] = k
		}
	}

	if st != nil {
		for _, imp := range st.Imports {
			for l := imp.Line; l <= imp.EndLine; l++ {
				mark(l, model.SectionImports)
			}
		}
		for _, sym := range st.Exports {
			mark(sym.Line, model.SectionExports)
		}
		for _, sym := range st.Definitions() {
			if isExportLine(lineAt(lines, sym.Line)) {
				mark(sym.Line, model.SectionExports)
				continue
			}
			if sym.Kind == model.Variable {
				continue
			}
			mark(sym.Line, model.SectionSignatures)
		}
	}

	for i, line := range lines {
		if kind[i] != "" {
			continue
		}
		trimmed := strings.TrimSpace(line)
		switch {
		case isExportLine(trimmed):
			kind[i] = model.SectionExports
		case isComment(trimmed):
			kind[i] = model.SectionComments
		default:
			kind[i] = model.SectionBody
		}
	}

	buckets := make(map[model.SectionKind][]string)
	for i, line := range lines {
		buckets[kind[i]] = append(buckets[kind[i]], line)
	}

	var sections []Section
	for _, k := range []model.SectionKind{
		model.SectionImports, model.SectionExports, model.SectionSignatures,
		model.SectionComments, model.SectionBody,
	} {
		text := strings.TrimRight(strings.Join(buckets[k], "\n"), "\n")
		if strings.TrimSpace(text) == "" {
			continue
		}
		sections = append(sections, Section{
			Kind:      k,
			Content:   text,
			Priority:  Priorities[k],
			Relevance: termOccurrences(text, terms),
		})
	}

	sort.SliceStable(sections, func(i, j int) bool {
		return sections[i].Weight() > sections[j].Weight()
	})
	return sections
}

func lineAt(lines []string, n int) string {
	if n < 1 || n > len(lines) {
		return ""
	}
	return strings.TrimSpace(lines[n-1])
}

func isExportLine(trimmed string) bool {
	for _, p := range exportPrefixes {
		if strings.HasPrefix(trimmed, p) {
			return true
		}
	}
	return false
}

func isComment(trimmed string) bool {
	for _, p := range commentPrefixes {
		if strings.HasPrefix(trimmed, p) {
			return true
		}
	}
	return false
}

func termOccurrences(text string, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	n := 0
	for _, t := range terms {
		n += strings.Count(lower, t)
	}
	return float64(n)
}
