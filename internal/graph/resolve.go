package graph

import (
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/mod/modfile"

	"github.com/NYTEMODEONLY/grok-code-sub002/internal/lang"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/model"
)

// Resolver maps import specifiers to existing files.
type Resolver struct {
	fs         afero.Fs
	root       string
	aliasRoots []string
	goModule   string
}

// NewResolver creates a resolver for a project rooted at root. aliasRoots
// are tried in order for "@/" and "~/" specifiers; relative entries are
// joined to root. A go.mod at root enables module-local Go imports.
func NewResolver(fs afero.Fs, root string, aliasRoots []string) *Resolver {
	r := &Resolver{fs: fs, root: root}
	if len(aliasRoots) == 0 {
		aliasRoots = []string{"src", "."}
	}
	for _, a := range aliasRoots {
		if !filepath.IsAbs(a) {
			a = filepath.Join(root, a)
		}
		r.aliasRoots = append(r.aliasRoots, a)
	}
	if root != "" {
		if data, err := afero.ReadFile(fs, filepath.Join(root, "go.mod")); err == nil {
			r.goModule = modfile.ModulePath(data)
		}
	}
	return r
}

// Classify reports how a specifier would be interpreted for a file in the
// given language, without touching the filesystem.
func Classify(language, spec string) model.Classification {
	switch {
	case spec == "":
		return model.Unknown
	case strings.HasPrefix(spec, "@/"), strings.HasPrefix(spec, "~/"):
		return model.Alias
	case language == "python" && strings.HasPrefix(spec, "."):
		return model.Internal
	case strings.HasPrefix(spec, "./"), strings.HasPrefix(spec, "../"), strings.HasPrefix(spec, "/"):
		return model.Internal
	default:
		return model.External
	}
}

// Resolve returns the edges for one file's imports. Specifiers that do not
// resolve to an existing file produce no edge.
func (r *Resolver) Resolve(rec *model.FileRecord) []model.DependencyEdge {
	if rec.Symbols == nil {
		return nil
	}

	var edges []model.DependencyEdge
	add := func(target string, kind model.EdgeKind, class model.Classification) {
		if target == "" || target == rec.Path {
			return
		}
		for _, e := range edges {
			if e.Target == target && e.Kind == kind {
				return
			}
		}
		edges = append(edges, model.DependencyEdge{
			Source:         rec.Path,
			Target:         target,
			Kind:           kind,
			Classification: class,
		})
	}

	dir := filepath.Dir(rec.Path)
	for _, imp := range rec.Symbols.Imports {
		class := Classify(rec.Language, imp.Source)
		switch {
		case rec.Language == "python" && class == model.Internal:
			for _, t := range r.resolvePython(dir, imp) {
				add(t, model.EdgeImport, class)
			}
		case rec.Language == "go" && class == model.External:
			for _, t := range r.resolveGoPackage(imp.Source) {
				add(t, model.EdgeImport, model.Internal)
			}
		case class == model.Internal:
			base := dir
			if strings.HasPrefix(imp.Source, "/") {
				base = r.root
			}
			add(r.resolveModule(filepath.Join(base, imp.Source)), model.EdgeImport, class)
		case class == model.Alias:
			rest := imp.Source[2:]
			for _, aliasRoot := range r.aliasRoots {
				if t := r.resolveModule(filepath.Join(aliasRoot, rest)); t != "" {
					add(t, model.EdgeImport, class)
					break
				}
			}
		}
	}

	if rec.Language == "python" {
		add(r.packageInit(rec.Path), model.EdgePackage, model.Internal)
	}
	return edges
}

// resolveModule tries the path itself, then each known source extension,
// then an index file inside it if it is a directory.
func (r *Resolver) resolveModule(base string) string {
	if r.isFile(base) {
		return base
	}
	for _, ext := range lang.ResolutionExtensions {
		if r.isFile(base + ext) {
			return base + ext
		}
	}
	if r.isDir(base) {
		for _, ext := range lang.ResolutionExtensions {
			if idx := filepath.Join(base, "index"+ext); r.isFile(idx) {
				return idx
			}
		}
		if idx := filepath.Join(base, "__init__.py"); r.isFile(idx) {
			return idx
		}
	}
	return ""
}

// resolvePython handles dotted relative imports: one leading dot is the
// current package, each further dot ascends one directory. "from . import x"
// resolves each imported name as a sibling module.
func (r *Resolver) resolvePython(dir string, imp model.Import) []string {
	spec := imp.Source
	dots := len(spec) - len(strings.TrimLeft(spec, "."))
	base := dir
	for i := 1; i < dots; i++ {
		base = filepath.Dir(base)
	}
	rest := strings.TrimLeft(spec, ".")

	if rest == "" {
		var out []string
		for _, name := range imp.Names {
			if t := r.resolvePythonModule(filepath.Join(base, name)); t != "" {
				out = append(out, t)
			}
		}
		if len(out) == 0 {
			if t := r.resolvePythonModule(base); t != "" {
				out = append(out, t)
			}
		}
		return out
	}

	if t := r.resolvePythonModule(filepath.Join(base, filepath.FromSlash(strings.ReplaceAll(rest, ".", "/")))); t != "" {
		return []string{t}
	}
	return nil
}

func (r *Resolver) resolvePythonModule(base string) string {
	if r.isFile(base + ".py") {
		return base + ".py"
	}
	if idx := filepath.Join(base, "__init__.py"); r.isFile(idx) {
		return idx
	}
	return ""
}

// packageInit finds the nearest ancestor __init__.py for a Python file,
// stopping at the project root.
func (r *Resolver) packageInit(path string) string {
	dir := filepath.Dir(path)
	if filepath.Base(path) == "__init__.py" {
		dir = filepath.Dir(dir)
	}
	for {
		if r.root != "" && !strings.HasPrefix(dir, r.root) {
			return ""
		}
		if idx := filepath.Join(dir, "__init__.py"); r.isFile(idx) {
			return idx
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// resolveGoPackage maps a module-local import path to the non-test Go files
// of that package directory.
func (r *Resolver) resolveGoPackage(importPath string) []string {
	if r.goModule == "" {
		return nil
	}
	var rel string
	switch {
	case importPath == r.goModule:
		rel = "."
	case strings.HasPrefix(importPath, r.goModule+"/"):
		rel = strings.TrimPrefix(importPath, r.goModule+"/")
	default:
		return nil
	}
	dir := filepath.Join(r.root, filepath.FromSlash(rel))
	infos, err := afero.ReadDir(r.fs, dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, fi := range infos {
		name := fi.Name()
		if fi.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	return out
}

func (r *Resolver) isFile(path string) bool {
	fi, err := r.fs.Stat(path)
	return err == nil && !fi.IsDir()
}

func (r *Resolver) isDir(path string) bool {
	fi, err := r.fs.Stat(path)
	return err == nil && fi.IsDir()
}
