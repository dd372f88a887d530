package lang

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/NYTEMODEONLY/grok-code-sub002/internal/model"
)

func init() {
	Languages["javascript"] = &Language{
		Name:       "javascript",
		Extensions: []string{".js", ".jsx", ".mjs", ".cjs"},
		lang:       javascript.GetLanguage(),
		Extract:    jsExtract,
	}
	Languages["typescript"] = &Language{
		Name:       "typescript",
		Extensions: []string{".ts"},
		lang:       typescript.GetLanguage(),
		Extract:    jsExtract,
	}
	Languages["tsx"] = &Language{
		Name:       "tsx",
		Extensions: []string{".tsx"},
		lang:       tsx.GetLanguage(),
		Extract:    jsExtract,
	}
}

// jsExtract covers JavaScript, TypeScript and TSX; the grammars share node
// names for everything extracted here.
func jsExtract(root *sitter.Node, source []byte) *model.SymbolTable {
	st := &model.SymbolTable{}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		jsVisitStatement(node, node, false, source, st)
	}
	return st
}

func jsVisitStatement(node, outer *sitter.Node, exported bool, source []byte, st *model.SymbolTable) {
	switch node.Type() {
	case "import_statement":
		src := node.ChildByFieldName("source")
		if src == nil {
			return
		}
		st.Imports = append(st.Imports, model.Import{
			Source:  unquote(NodeText(src, source)),
			Names:   jsImportNames(node, source),
			Line:    startLine(node),
			EndLine: endLine(node),
		})
	case "export_statement":
		if src := node.ChildByFieldName("source"); src != nil {
			// export ... from './x' is both an import and an export.
			st.Imports = append(st.Imports, model.Import{
				Source:  unquote(NodeText(src, source)),
				Line:    startLine(node),
				EndLine: endLine(node),
			})
		}
		if decl := node.ChildByFieldName("declaration"); decl != nil {
			jsVisitStatement(decl, node, true, source, st)
			return
		}
		jsCollectExportClause(node, source, st)
	case "function_declaration", "generator_function_declaration":
		name := fieldText(node, "name", source)
		if name == "" {
			return
		}
		jsAdd(st, model.Symbol{
			Name:      name,
			Kind:      model.Function,
			Line:      startLine(outer),
			EndLine:   endLine(outer),
			Signature: "function " + name + CollapseWhitespace(fieldText(node, "parameters", source)),
			Exported:  exported,
		})
	case "class_declaration", "abstract_class_declaration":
		name := fieldText(node, "name", source)
		if name == "" {
			return
		}
		jsAdd(st, model.Symbol{
			Name:      name,
			Kind:      model.Class,
			Line:      startLine(outer),
			EndLine:   endLine(outer),
			Signature: "class " + name,
			Exported:  exported,
		})
		jsCollectMethods(node, name, source, st)
	case "interface_declaration", "type_alias_declaration", "enum_declaration":
		name := fieldText(node, "name", source)
		if name == "" {
			return
		}
		jsAdd(st, model.Symbol{
			Name:      name,
			Kind:      model.Type,
			Line:      startLine(outer),
			EndLine:   endLine(outer),
			Signature: CollapseWhitespace(firstLine(NodeText(node, source))),
			Exported:  exported,
		})
	case "lexical_declaration", "variable_declaration":
		jsCollectDeclarators(node, outer, exported, source, st)
	case "expression_statement":
		// Bare require('./x') for side effects.
		for i := 0; i < int(node.NamedChildCount()); i++ {
			if spec := jsRequireSource(node.NamedChild(i), source); spec != "" {
				st.Imports = append(st.Imports, model.Import{
					Source:  spec,
					Line:    startLine(node),
					EndLine: endLine(node),
				})
			}
		}
	}
}

func jsCollectDeclarators(node, outer *sitter.Node, exported bool, source []byte, st *model.SymbolTable) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		decl := node.NamedChild(i)
		if decl.Type() != "variable_declarator" {
			continue
		}
		nameNode := decl.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		value := decl.ChildByFieldName("value")
		if spec := jsRequireSource(value, source); spec != "" {
			st.Imports = append(st.Imports, model.Import{
				Source:  spec,
				Names:   []string{NodeText(nameNode, source)},
				Line:    startLine(outer),
				EndLine: endLine(outer),
			})
			continue
		}
		if nameNode.Type() != "identifier" {
			continue
		}
		name := NodeText(nameNode, source)
		sym := model.Symbol{
			Name:      name,
			Kind:      model.Variable,
			Line:      startLine(outer),
			EndLine:   endLine(outer),
			Signature: name,
			Exported:  exported,
		}
		if value != nil {
			switch value.Type() {
			case "arrow_function", "function", "function_expression", "generator_function":
				sym.Kind = model.Function
				params := value.ChildByFieldName("parameters")
				if params == nil {
					params = value.ChildByFieldName("parameter")
				}
				if params != nil {
					sym.Signature = name + CollapseWhitespace(NodeText(params, source))
				}
			case "class":
				sym.Kind = model.Class
			}
		}
		jsAdd(st, sym)
	}
}

func jsCollectMethods(class *sitter.Node, className string, source []byte, st *model.SymbolTable) {
	body := class.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		if member.Type() != "method_definition" && member.Type() != "method_signature" {
			continue
		}
		name := fieldText(member, "name", source)
		if name == "" {
			continue
		}
		st.Functions = append(st.Functions, model.Symbol{
			Name:      className + "." + name,
			Kind:      model.Method,
			Line:      startLine(member),
			EndLine:   endLine(member),
			Signature: name + CollapseWhitespace(fieldText(member, "parameters", source)),
		})
	}
}

func jsCollectExportClause(node *sitter.Node, source []byte, st *model.SymbolTable) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		clause := node.NamedChild(i)
		if clause.Type() != "export_clause" {
			continue
		}
		for j := 0; j < int(clause.NamedChildCount()); j++ {
			spec := clause.NamedChild(j)
			if spec.Type() != "export_specifier" {
				continue
			}
			name := fieldText(spec, "alias", source)
			if name == "" {
				name = fieldText(spec, "name", source)
			}
			st.Exports = append(st.Exports, model.Symbol{
				Name:     name,
				Kind:     model.Variable,
				Line:     startLine(node),
				EndLine:  endLine(node),
				Exported: true,
			})
		}
	}
}

func jsAdd(st *model.SymbolTable, sym model.Symbol) {
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

// jsRequireSource returns the specifier of a require('x') call, or "".
func jsRequireSource(node *sitter.Node, source []byte) string {
	if node == nil || node.Type() != "call_expression" {
		return ""
	}
	fn := node.ChildByFieldName("function")
	if fn == nil || fn.Type() != "identifier" || NodeText(fn, source) != "require" {
		return ""
	}
	args := node.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() == 0 {
		return ""
	}
	first := args.NamedChild(0)
	if first.Type() != "string" {
		return ""
	}
	return unquote(NodeText(first, source))
}

func jsImportNames(node *sitter.Node, source []byte) []string {
	var names []string
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == "identifier" {
			names = append(names, NodeText(n, source))
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "import_clause" {
			walk(child)
		}
	}
	return names
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
