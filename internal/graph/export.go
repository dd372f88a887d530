package graph

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/NYTEMODEONLY/grok-code-sub002/internal/model"
)

// Format is a graph serialization format.
type Format string

const (
	FormatJSON Format = "json"
	FormatDOT  Format = "dot"
	FormatCSV  Format = "csv"
)

// ErrUnknownFormat is returned for unrecognized format names.
var ErrUnknownFormat = errors.New("unknown graph format")

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatDOT, FormatCSV:
		return f, nil
	}
	return "", fmt.Errorf("%w %q (want json, dot, or csv)", ErrUnknownFormat, s)
}

// document is the JSON shape of an exported graph.
type document struct {
	Nodes []string               `json:"nodes"`
	Edges []model.DependencyEdge `json:"edges"`
}

// Export writes the graph in the given format.
func (g *Graph) Export(w io.Writer, format Format) error {
	switch format {
	case FormatJSON:
		doc := document{Nodes: g.Nodes(), Edges: g.Edges()}
		if doc.Nodes == nil {
			doc.Nodes = []string{}
		}
		if doc.Edges == nil {
			doc.Edges = []model.DependencyEdge{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case FormatDOT:
		return g.writeDOT(w)
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write([]string{"source", "target", "kind", "classification"}); err != nil {
			return err
		}
		for _, e := range g.Edges() {
			if err := cw.Write([]string{e.Source, e.Target, string(e.Kind), string(e.Classification)}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	}
	return fmt.Errorf("%w %q", ErrUnknownFormat, format)
}

func (g *Graph) writeDOT(w io.Writer) error {
	var b strings.Builder
	b.WriteString("digraph dependencies {\n")
	b.WriteString("  rankdir=LR;\n")
	for _, n := range g.Nodes() {
		fmt.Fprintf(&b, "  %q;\n", n)
	}
	for _, e := range g.Edges() {
		style := ""
		if e.Kind == model.EdgePackage {
			style = ", style=dashed"
		}
		fmt.Fprintf(&b, "  %q -> %q [label=%q%s];\n", e.Source, e.Target, string(e.Kind), style)
	}
	b.WriteString("}\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// Import reads a graph previously written with Export(FormatJSON).
func Import(r io.Reader, format Format) (*Graph, error) {
	if format != FormatJSON {
		return nil, fmt.Errorf("%w %q: only json can be imported", ErrUnknownFormat, format)
	}
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding graph: %w", err)
	}
	g := New()
	for _, n := range doc.Nodes {
		g.AddNode(n)
	}
	for _, e := range doc.Edges {
		g.AddEdge(e)
	}
	return g.Seal(), nil
}

// Relative returns a copy of the graph with every path made relative to
// root, for display.
func (g *Graph) Relative(root string) *Graph {
	rel := func(p string) string {
		if r, err := filepath.Rel(root, p); err == nil && !strings.HasPrefix(r, "..") {
			return filepath.ToSlash(r)
		}
		return p
	}
	out := New()
	for _, n := range g.Nodes() {
		out.AddNode(rel(n))
	}
	for _, e := range g.Edges() {
		e.Source, e.Target = rel(e.Source), rel(e.Target)
		out.AddEdge(e)
	}
	return out.Seal()
}
