package lang

import (
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/csharp"

	"github.com/phobologic/typescan/internal/model"
)

func init() {
	Languages["csharp"] = &Language{
		Name:       "csharp",
		Extensions: []string{".cs"},
		lang:       csharp.GetLanguage(),
		TypeDecls: map[string]model.SymbolKind{
			"class_declaration":         model.Class,
			"interface_declaration":     model.Interface,
			"struct_declaration":        model.Struct,
			"enum_declaration":          model.Enum,
			"record_declaration":        model.Record,
			"record_struct_declaration": model.RecordStruct,
		},
		Namespaces: map[string]bool{
			"namespace_declaration":             true,
			"file_scoped_namespace_declaration": true,
		},
		Containers: map[string]bool{
			"compilation_unit":                  true,
			"namespace_declaration":             true,
			"file_scoped_namespace_declaration": true,
			"declaration_list":                  true,
		},
		RefineKind:    csRefineKind,
		DeclName:      csFindDeclName,
		Arity:         csArity,
		IsPartial:     csIsPartial,
		BaseTypes:     csBaseTypes,
		NamespaceName: csNamespaceName,
		ParseUsing:    csParseUsing,
	}
}

// csRefineKind tells a record struct from a record class. The grammar parses
// both as record_declaration; only the struct keyword ahead of the name differs.
func csRefineKind(node *sitter.Node, kind model.SymbolKind) model.SymbolKind {
	if kind != model.Record {
		return kind
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		switch node.Child(i).Type() {
		case "struct":
			return model.RecordStruct
		case "identifier", "base_list", "declaration_list", "{":
			return kind
		}
	}
	return kind
}

// csFindDeclName returns the identifier a type declaration introduces.
func csFindDeclName(node *sitter.Node, _ []byte) *sitter.Node {
	if name := node.ChildByFieldName("name"); name != nil {
		return name
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "identifier" {
			return child
		}
	}
	return nil
}

// csArity counts the type_parameter children of a declaration's type_parameter_list.
func csArity(node *sitter.Node) int {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() != "type_parameter_list" {
			continue
		}
		n := 0
		for j := 0; j < int(child.NamedChildCount()); j++ {
			if child.NamedChild(j).Type() == "type_parameter" {
				n++
			}
		}
		return n
	}
	return 0
}

// csIsPartial looks for a partial modifier ahead of the declared name.
func csIsPartial(node *sitter.Node, source []byte) bool {
	name := csFindDeclName(node, source)
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == name {
			break
		}
		switch child.Type() {
		case "modifier", "partial":
			if NodeText(child, source) == "partial" {
				return true
			}
		}
	}
	return false
}

// csBaseTypes returns the type nodes listed after ':' in a declaration.
// Record primary constructor bases (Base(args)) are unwrapped to their type.
func csBaseTypes(node *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() != "base_list" {
			continue
		}
		for j := 0; j < int(child.NamedChildCount()); j++ {
			base := child.NamedChild(j)
			switch base.Type() {
			case "argument_list", "comment":
				continue
			case "primary_constructor_base_type":
				if base.NamedChildCount() > 0 {
					out = append(out, base.NamedChild(0))
				}
			default:
				out = append(out, base)
			}
		}
	}
	return out
}

// csNamespaceName returns the normalized dotted name of a namespace declaration.
func csNamespaceName(node *sitter.Node, source []byte) string {
	if name := node.ChildByFieldName("name"); name != nil {
		return NormalizeTypeName(NodeText(name, source))
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "identifier", "qualified_name":
			return NormalizeTypeName(NodeText(child, source))
		}
	}
	return ""
}

// csParseUsing decodes using_directive nodes of the forms
// "using N;", "using static T;", "using A = T;" and "global using ...".
func csParseUsing(node *sitter.Node, source []byte) (model.Using, bool) {
	var u model.Using
	if node.Type() != "using_directive" {
		return u, false
	}
	var names []*sitter.Node
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "static":
			u.Static = true
		case "global":
			u.Global = true
		case "name_equals":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				if id := child.NamedChild(j); id.Type() == "identifier" {
					u.Alias = NodeText(id, source)
					break
				}
			}
		case "=":
			// Newer grammars place the alias identifier directly before '='.
			if len(names) > 0 {
				u.Alias = NodeText(names[len(names)-1], source)
				names = names[:len(names)-1]
			}
		case "identifier", "qualified_name", "generic_name", "alias_qualified_name":
			names = append(names, child)
		}
	}
	if len(names) == 0 {
		return u, false
	}
	u.Namespace = NormalizeTypeName(NodeText(names[len(names)-1], source))
	return u, u.Namespace != ""
}

// NormalizeTypeName canonicalizes a C# type name as written in source:
// whitespace, global:: and nullable markers are dropped, extern alias
// separators become dots, and generic argument lists collapse to a `N arity
// suffix, so "global::Ns.Base<T, List<int>>" becomes "Ns.Base`2".
func NormalizeTypeName(text string) string {
	s := StripWhitespace(text)
	s = strings.TrimPrefix(s, "global::")
	s = strings.ReplaceAll(s, "::", ".")

	var b strings.Builder
	depth, commas := 0, 0
	for _, r := range s {
		switch {
		case r == '<':
			if depth == 0 {
				commas = 0
			}
			depth++
		case r == '>':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				b.WriteString("`" + strconv.Itoa(commas+1))
			}
		case depth > 0:
			if r == ',' && depth == 1 {
				commas++
			}
		case r == '?':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
