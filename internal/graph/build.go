package graph

import (
	"context"

	"go.uber.org/zap"

	"github.com/NYTEMODEONLY/grok-code-sub002/internal/model"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/workspace"
)

// BuildOptions configure import resolution.
type BuildOptions struct {
	// Root is the project root used for "/"-prefixed and Go module imports.
	Root string
	// AliasRoots are searched for "@/" and "~/" specifiers. Defaults to
	// src/ then the root.
	AliasRoots []string
}

// Builder turns a set of files into a Graph. Imports are resolved on every
// build since a target can appear or disappear without the importing file
// changing.
type Builder struct {
	store *workspace.Store
	opts  BuildOptions
	log   *zap.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(store *workspace.Store, opts BuildOptions, log *zap.Logger) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Builder{store: store, opts: opts, log: log}
}

// Build loads every path, resolves imports, and returns the sealed graph.
// Files that fail to load or parse are skipped and reported.
func (b *Builder) Build(ctx context.Context, paths []string) (*Graph, []model.ItemError) {
	records, errs := b.store.LoadAll(ctx, paths)
	return b.FromRecords(records), errs
}

// FromRecords builds a graph from already-loaded records.
func (b *Builder) FromRecords(records []*model.FileRecord) *Graph {
	resolver := NewResolver(b.store.FS(), b.opts.Root, b.opts.AliasRoots)
	g := New()
	for _, rec := range records {
		g.AddNode(rec.Path)
		deps := resolver.Resolve(rec)
		b.store.SetDeps(rec.Path, rec.ModTime, deps)
		for _, e := range deps {
			g.AddEdge(e)
		}
	}
	g.Seal()
	b.log.Debug("graph built",
		zap.Int("nodes", len(g.Nodes())),
		zap.Int("edges", g.EdgeCount()),
		zap.Bool("cyclic", g.HasCycle()))
	return g
}
