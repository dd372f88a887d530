package lang

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/NYTEMODEONLY/grok-code-sub002/internal/model"
)

func init() {
	Languages["python"] = &Language{
		Name:       "python",
		Extensions: []string{".py"},
		lang:       python.GetLanguage(),
		Extract:    pythonExtract,
	}
}

func pythonExtract(root *sitter.Node, source []byte) *model.SymbolTable {
	st := &model.SymbolTable{}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		pythonVisitTopLevel(root.NamedChild(i), root.NamedChild(i), source, st)
	}
	return st
}

// pythonVisitTopLevel handles one module-level statement. outer is the node
// whose span is recorded; it differs from node for decorated definitions.
func pythonVisitTopLevel(node, outer *sitter.Node, source []byte, st *model.SymbolTable) {
	switch node.Type() {
	case "import_statement":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			name := child
			if child.Type() == "aliased_import" {
				name = child.ChildByFieldName("name")
			}
			if name == nil || name.Type() != "dotted_name" {
				continue
			}
			st.Imports = append(st.Imports, model.Import{
				Source:  NodeText(name, source),
				Line:    startLine(node),
				EndLine: endLine(node),
			})
		}
	case "import_from_statement":
		module := node.ChildByFieldName("module_name")
		if module == nil {
			return
		}
		imp := model.Import{
			Source:  NodeText(module, source),
			Line:    startLine(node),
			EndLine: endLine(node),
		}
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			if child.StartByte() == module.StartByte() {
				continue
			}
			switch child.Type() {
			case "dotted_name":
				imp.Names = append(imp.Names, NodeText(child, source))
			case "aliased_import":
				if n := child.ChildByFieldName("name"); n != nil {
					imp.Names = append(imp.Names, NodeText(n, source))
				}
			}
		}
		st.Imports = append(st.Imports, imp)
	case "decorated_definition":
		if def := node.ChildByFieldName("definition"); def != nil {
			pythonVisitTopLevel(def, node, source, st)
		}
	case "function_definition":
		name := fieldText(node, "name", source)
		if name == "" {
			return
		}
		st.Functions = append(st.Functions, model.Symbol{
			Name:      name,
			Kind:      model.Function,
			Line:      startLine(outer),
			EndLine:   endLine(outer),
			Signature: pythonFunctionSignature(node, source),
			Exported:  !strings.HasPrefix(name, "_"),
		})
	case "class_definition":
		name := fieldText(node, "name", source)
		if name == "" {
			return
		}
		st.Classes = append(st.Classes, model.Symbol{
			Name:      name,
			Kind:      model.Class,
			Line:      startLine(outer),
			EndLine:   endLine(outer),
			Signature: pythonClassSignature(node, source),
			Exported:  !strings.HasPrefix(name, "_"),
		})
		pythonCollectMethods(node, name, source, st)
	case "expression_statement":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			if child.Type() != "assignment" {
				continue
			}
			left := child.ChildByFieldName("left")
			if left == nil || left.Type() != "identifier" {
				continue
			}
			name := NodeText(left, source)
			st.Variables = append(st.Variables, model.Symbol{
				Name:      name,
				Kind:      model.Variable,
				Line:      startLine(node),
				EndLine:   endLine(node),
				Signature: pythonFieldSignature(child, source),
				Exported:  !strings.HasPrefix(name, "_"),
			})
			if name == "__all__" {
				pythonCollectAll(child, source, st)
			}
		}
	}
}

func pythonCollectMethods(class *sitter.Node, className string, source []byte, st *model.SymbolTable) {
	body := class.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		outer := body.NamedChild(i)
		def := outer
		if outer.Type() == "decorated_definition" {
			def = outer.ChildByFieldName("definition")
		}
		if def == nil || def.Type() != "function_definition" {
			continue
		}
		name := fieldText(def, "name", source)
		if name == "" {
			continue
		}
		st.Functions = append(st.Functions, model.Symbol{
			Name:      className + "." + name,
			Kind:      model.Method,
			Line:      startLine(outer),
			EndLine:   endLine(outer),
			Signature: pythonFunctionSignature(def, source),
			Exported:  !strings.HasPrefix(name, "_") || strings.HasSuffix(name, "__"),
		})
	}
}

// pythonCollectAll records the names listed in a module's __all__ as exports.
func pythonCollectAll(assign *sitter.Node, source []byte, st *model.SymbolTable) {
	right := assign.ChildByFieldName("right")
	if right == nil {
		return
	}
	for i := 0; i < int(right.NamedChildCount()); i++ {
		item := right.NamedChild(i)
		if item.Type() != "string" {
			continue
		}
		st.Exports = append(st.Exports, model.Symbol{
			Name:     unquote(NodeText(item, source)),
			Kind:     model.Variable,
			Line:     startLine(item),
			EndLine:  endLine(item),
			Exported: true,
		})
	}
}

func pythonClassSignature(node *sitter.Node, source []byte) string {
	name := fieldText(node, "name", source)
	if args := fieldText(node, "superclasses", source); args != "" {
		return name + args
	}
	return name
}

// pythonFieldSignature returns "name: type" when an annotation is present,
// otherwise just the assigned name.
func pythonFieldSignature(node *sitter.Node, source []byte) string {
	name := fieldText(node, "left", source)
	if annotation := fieldText(node, "type", source); annotation != "" {
		return name + ": " + annotation
	}
	return name
}

func pythonFunctionSignature(node *sitter.Node, source []byte) string {
	sig := fieldText(node, "name", source) + CollapseWhitespace(fieldText(node, "parameters", source))
	if returnType := fieldText(node, "return_type", source); returnType != "" {
		sig += " -> " + returnType
	}
	return sig
}
