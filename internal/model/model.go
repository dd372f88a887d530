// Package model defines core data structures for the context engine.
package model

import (
	"fmt"
	"time"
)

// SymbolKind indicates the syntactic kind of a symbol.
type SymbolKind string

const (
	Class    SymbolKind = "class"
	Function SymbolKind = "function"
	Method   SymbolKind = "method"
	Variable SymbolKind = "variable"
	Type     SymbolKind = "type"
)

// Symbol is a single declaration extracted from a source file.
type Symbol struct {
	Name      string
	Kind      SymbolKind
	Line      int // 1-based
	EndLine   int
	Signature string
	Exported  bool
}

// Import is a single import statement. Line and EndLine span the statement.
type Import struct {
	Source  string // raw module specifier, e.g. "./b", "..utils", "fmt"
	Names   []string
	Line    int
	EndLine int
}

// SymbolTable is the language-normalized output of a SymbolSource.
type SymbolTable struct {
	Language  string
	Functions []Symbol
	Classes   []Symbol
	Variables []Symbol
	Types     []Symbol
	Imports   []Import
	Exports   []Symbol
}

// Definitions returns every declared symbol in source order buckets:
// functions, classes, types, then variables.
func (st *SymbolTable) Definitions() []Symbol {
	if st == nil {
		return nil
	}
	out := make([]Symbol, 0, len(st.Functions)+len(st.Classes)+len(st.Types)+len(st.Variables))
	out = append(out, st.Functions...)
	out = append(out, st.Classes...)
	out = append(out, st.Types...)
	out = append(out, st.Variables...)
	return out
}

// EdgeKind distinguishes import edges from synthetic package-membership edges.
type EdgeKind string

const (
	EdgeImport  EdgeKind = "import"
	EdgePackage EdgeKind = "package"
)

// Classification records how an import specifier was interpreted.
type Classification string

const (
	Internal Classification = "internal"
	External Classification = "external"
	Alias    Classification = "alias"
	Unknown  Classification = "unknown"
)

// DependencyEdge is a resolved edge in the dependency graph:
// Source imports (or belongs to the package of) Target.
type DependencyEdge struct {
	Source         string         `json:"source"`
	Target         string         `json:"target"`
	Kind           EdgeKind       `json:"kind"`
	Classification Classification `json:"classification"`
}

// FileRecord holds metadata, the symbol table, and the cached forward
// dependency list for a single file. Symbols and Deps are only valid for
// ModTime; a newer modification time invalidates both.
type FileRecord struct {
	Path     string
	Language string
	Size     int64
	ModTime  time.Time
	Symbols  *SymbolTable
	Deps     []DependencyEdge
	// DepsResolved distinguishes "no dependencies" from "not yet resolved".
	DepsResolved bool
}

// SectionKind names a slice of a file's content.
type SectionKind string

const (
	SectionImports    SectionKind = "imports"
	SectionExports    SectionKind = "exports"
	SectionSignatures SectionKind = "signatures"
	SectionComments   SectionKind = "comments"
	SectionBody       SectionKind = "body"
)

// ContextFile is a file selected into the live file-context set.
type ContextFile struct {
	Path      string        `json:"path"`
	Content   string        `json:"content"`
	Tokens    int           `json:"tokens"`
	Score     float64       `json:"score"`
	Sections  []SectionKind `json:"sections"`
	Truncated bool          `json:"truncated"`
	Source    string        `json:"source"` // explicit, scan, suggestion, auto
	Pinned    bool          `json:"pinned"`
	AddedAt   time.Time     `json:"addedAt"`
	// LastReferenced is bumped whenever the file is mentioned again.
	LastReferenced time.Time `json:"lastReferenced"`
}

// Role of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry in the session transcript.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ErrorKind classifies recoverable per-item failures.
type ErrorKind string

const (
	ErrParse    ErrorKind = "parse"
	ErrIO       ErrorKind = "io"
	ErrTimeout  ErrorKind = "timeout"
	ErrTooLarge ErrorKind = "too_large"
)

// ItemError is a recoverable failure for a single file or directory.
// Aggregate operations collect these instead of aborting.
type ItemError struct {
	Path string
	Kind ErrorKind
	Err  error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Path, e.Kind, e.Err)
}

func (e ItemError) Unwrap() error {
	return e.Err
}
