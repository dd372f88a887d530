// Package parse extracts symbol tables from source files using tree-sitter.
package parse

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/afero"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/NYTEMODEONLY/grok-code-sub002/internal/lang"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/model"
)

// ErrUnsupported is returned for files with no registered language.
var ErrUnsupported = errors.New("unsupported language")

// SymbolSource turns a file into a canonical symbol table. Implementations
// must return errors rather than panic; callers skip files that fail.
type SymbolSource interface {
	Parse(ctx context.Context, path string) (*model.SymbolTable, error)
}

// ParseError reports why a single file could not be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// TreeSitter is a SymbolSource backed by tree-sitter grammars.
// It is safe for concurrent use: parsers are pooled per language.
type TreeSitter struct {
	fs    afero.Fs
	pools map[string]*sync.Pool
}

// NewTreeSitter creates a SymbolSource that reads files through fs.
func NewTreeSitter(fs afero.Fs) *TreeSitter {
	pools := make(map[string]*sync.Pool, len(lang.Languages))
	for name, l := range lang.Languages {
		l := l
		pools[name] = &sync.Pool{New: func() any { return l.NewParser() }}
	}
	return &TreeSitter{fs: fs, pools: pools}
}

// Parse reads path and extracts its symbol table.
func (ts *TreeSitter) Parse(ctx context.Context, path string) (*model.SymbolTable, error) {
	langName := lang.ForPath(path)
	if langName == "" {
		return nil, &ParseError{Path: path, Err: ErrUnsupported}
	}
	source, err := afero.ReadFile(ts.fs, path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return ts.ParseSource(ctx, langName, path, source)
}

// ParseSource extracts a symbol table from in-memory source.
func (ts *TreeSitter) ParseSource(ctx context.Context, langName, path string, source []byte) (*model.SymbolTable, error) {
	l, ok := lang.Languages[langName]
	if !ok {
		return nil, &ParseError{Path: path, Err: ErrUnsupported}
	}
	if err := ctx.Err(); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	if len(source) == 0 {
		return &model.SymbolTable{Language: langName}, nil
	}

	pool := ts.pools[langName]
	parser := pool.Get().(*sitter.Parser)

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		// A cancelled parser is left mid-document; drop it instead of pooling.
		parser.Close()
		return nil, &ParseError{Path: path, Err: err}
	}
	pool.Put(parser)
	defer tree.Close()

	st := l.Extract(tree.RootNode(), source)
	st.Language = langName
	return st, nil
}
