package lang

import (
	"unicode"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/NYTEMODEONLY/grok-code-sub002/internal/model"
)

func init() {
	Languages["go"] = &Language{
		Name:       "go",
		Extensions: []string{".go"},
		lang:       golang.GetLanguage(),
		Extract:    goExtract,
	}
}

func goExtract(root *sitter.Node, source []byte) *model.SymbolTable {
	st := &model.SymbolTable{}

	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		switch node.Type() {
		case "import_declaration":
			goCollectImports(node, node, source, st)
		case "function_declaration":
			name := fieldText(node, "name", source)
			if name == "" {
				continue
			}
			goAddSymbol(st, model.Symbol{
				Name:      name,
				Kind:      model.Function,
				Line:      startLine(node),
				EndLine:   endLine(node),
				Signature: goFunctionSignature(node, source),
				Exported:  goIsExported(name),
			})
		case "method_declaration":
			name := fieldText(node, "name", source)
			if name == "" {
				continue
			}
			qualified := name
			if recv := goFindReceiverType(node, source); recv != "" {
				qualified = recv + "." + name
			}
			goAddSymbol(st, model.Symbol{
				Name:      qualified,
				Kind:      model.Method,
				Line:      startLine(node),
				EndLine:   endLine(node),
				Signature: goFunctionSignature(node, source),
				Exported:  goIsExported(name),
			})
		case "type_declaration":
			for j := 0; j < int(node.NamedChildCount()); j++ {
				spec := node.NamedChild(j)
				if spec.Type() != "type_spec" && spec.Type() != "type_alias" {
					continue
				}
				name := fieldText(spec, "name", source)
				if name == "" {
					continue
				}
				kind := model.Type
				if t := spec.ChildByFieldName("type"); t != nil && t.Type() == "struct_type" {
					kind = model.Class
				}
				goAddSymbol(st, model.Symbol{
					Name:      name,
					Kind:      kind,
					Line:      startLine(spec),
					EndLine:   endLine(spec),
					Signature: "type " + name,
					Exported:  goIsExported(name),
				})
			}
		case "var_declaration", "const_declaration":
			goCollectVars(node, source, st)
		}
	}

	return st
}

func goCollectImports(decl, node *sitter.Node, source []byte, st *model.SymbolTable) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "import_spec":
			imp := model.Import{
				Source:  unquote(fieldText(child, "path", source)),
				Line:    startLine(decl),
				EndLine: endLine(decl),
			}
			if alias := fieldText(child, "name", source); alias != "" {
				imp.Names = []string{alias}
			}
			st.Imports = append(st.Imports, imp)
		case "import_spec_list":
			goCollectImports(decl, child, source, st)
		}
	}
}

func goCollectVars(decl *sitter.Node, source []byte, st *model.SymbolTable) {
	var specs []*sitter.Node
	for i := 0; i < int(decl.NamedChildCount()); i++ {
		child := decl.NamedChild(i)
		switch child.Type() {
		case "var_spec", "const_spec":
			specs = append(specs, child)
		case "var_spec_list":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				specs = append(specs, child.NamedChild(j))
			}
		}
	}
	for _, spec := range specs {
		for k := 0; k < int(spec.NamedChildCount()); k++ {
			id := spec.NamedChild(k)
			if id.Type() != "identifier" {
				continue
			}
			name := NodeText(id, source)
			if name == "_" {
				continue
			}
			goAddSymbol(st, model.Symbol{
				Name:      name,
				Kind:      model.Variable,
				Line:      startLine(spec),
				EndLine:   endLine(spec),
				Signature: CollapseWhitespace(NodeText(spec, source)),
				Exported:  goIsExported(name),
			})
		}
	}
}

func goAddSymbol(st *model.SymbolTable, sym model.Symbol) {
	switch sym.Kind {
	case model.Function, model.Method:
		st.Functions = append(st.Functions, sym)
	case model.Class:
		st.Classes = append(st.Classes, sym)
	case model.Type:
		st.Types = append(st.Types, sym)
	default:
		st.Variables = append(st.Variables, sym)
	}
	if sym.Exported {
		st.Exports = append(st.Exports, sym)
	}
}

func goIsExported(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r)
}

// goFindReceiverType extracts the receiver type name from a method_declaration node.
// Navigates: method_declaration → receiver parameter_list → parameter_declaration → type.
func goFindReceiverType(node *sitter.Node, source []byte) string {
	recv := node.ChildByFieldName("receiver")
	if recv == nil {
		return ""
	}
	for j := 0; j < int(recv.NamedChildCount()); j++ {
		param := recv.NamedChild(j)
		if param.Type() == "parameter_declaration" {
			return goExtractTypeName(param, source)
		}
	}
	return ""
}

// goExtractTypeName extracts the type name from a parameter_declaration,
// unwrapping pointer_type if present.
func goExtractTypeName(param *sitter.Node, source []byte) string {
	for i := 0; i < int(param.ChildCount()); i++ {
		child := param.Child(i)
		switch child.Type() {
		case "type_identifier":
			return NodeText(child, source)
		case "pointer_type":
			for k := 0; k < int(child.ChildCount()); k++ {
				inner := child.Child(k)
				if inner.Type() == "type_identifier" {
					return NodeText(inner, source)
				}
			}
		}
	}
	return ""
}

func goFunctionSignature(node *sitter.Node, source []byte) string {
	sig := "func " + fieldText(node, "name", source) +
		CollapseWhitespace(fieldText(node, "parameters", source))
	if result := fieldText(node, "result", source); result != "" {
		sig += " " + CollapseWhitespace(result)
	}
	return sig
}
