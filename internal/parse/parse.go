// Package parse builds source models from C# files using tree-sitter.
package parse

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/typescan/internal/lang"
	"github.com/phobologic/typescan/internal/model"
)

// scope is the lexical context a declaration is found in.
type scope struct {
	namespace string
	usings    []model.Using // innermost first
	outer     *model.TypeDecl
}

// File parses source and returns its source model. Syntax errors do not
// produce an error: they are recorded on the model's Err and the model holds
// no declarations. The returned error is non-nil only when ctx is done.
// The parser must be created for l and must not be shared across goroutines.
// filePath is used only for the model's Path and should be workspace-relative.
func File(ctx context.Context, l *lang.Language, parser *sitter.Parser, source []byte, filePath string) (*model.SourceModel, error) {
	m := &model.SourceModel{Path: filePath, Text: source}
	if len(source) == 0 {
		return m, nil
	}

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		m.Err = &model.FileError{Kind: model.ParseDiagnostic, Path: filePath, Reason: "parser failed", Err: err}
		return m, nil
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		reason := "syntax error"
		if bad := firstError(root); bad != nil {
			p := bad.StartPoint()
			reason = fmt.Sprintf("syntax error at %d:%d", p.Row+1, p.Column+1)
		}
		m.Err = &model.FileError{Kind: model.ParseDiagnostic, Path: filePath, Reason: reason}
		return m, nil
	}

	w := &walker{lang: l, source: source}
	m.Decls = w.container(root, scope{})
	m.Usings = w.fileUsings
	return m, nil
}

type walker struct {
	lang       *lang.Language
	source     []byte
	fileUsings []model.Using
}

// container collects the type declarations directly inside node, descending
// through namespaces. Using directives found in node apply to everything
// declared inside it.
func (w *walker) container(node *sitter.Node, sc scope) []*model.TypeDecl {
	var local []model.Using
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if u, ok := w.lang.ParseUsing(node.NamedChild(i), w.source); ok {
			local = append(local, u)
		}
	}
	if node.Type() == "compilation_unit" {
		w.fileUsings = local
	}
	if len(local) > 0 {
		sc.usings = append(append([]model.Using(nil), local...), sc.usings...)
	}

	var decls []*model.TypeDecl
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		typ := child.Type()

		if kind, ok := w.lang.TypeDecls[typ]; ok {
			if d := w.decl(child, kind, sc); d != nil {
				decls = append(decls, d)
			}
			continue
		}

		if w.lang.Namespaces[typ] {
			inner := sc
			inner.namespace = joinName(sc.namespace, w.lang.NamespaceName(child, w.source))
			if typ == "file_scoped_namespace_declaration" {
				// Older grammars leave the members as siblings that follow.
				sc.namespace = inner.namespace
				decls = append(decls, w.container(child, inner)...)
				continue
			}
			if body := bodyOf(child); body != nil {
				decls = append(decls, w.container(body, inner)...)
			}
			continue
		}

		if w.lang.Containers[typ] {
			decls = append(decls, w.container(child, sc)...)
		}
	}
	return decls
}

func (w *walker) decl(node *sitter.Node, kind model.SymbolKind, sc scope) *model.TypeDecl {
	nameNode := w.lang.DeclName(node, w.source)
	if nameNode == nil {
		return nil
	}
	if w.lang.RefineKind != nil {
		kind = w.lang.RefineKind(node, kind)
	}
	pos := nameNode.StartPoint()
	d := &model.TypeDecl{
		Name:      lang.NodeText(nameNode, w.source),
		Kind:      kind,
		Arity:     w.lang.Arity(node),
		Namespace: sc.namespace,
		Outer:     sc.outer,
		Partial:   w.lang.IsPartial(node, w.source),
		Usings:    sc.usings,
		Line:      int(pos.Row) + 1,
		Column:    int(pos.Column) + 1,
	}

	// An enum's base list names its underlying integral type, not a supertype.
	if kind != model.Enum {
		for _, b := range w.lang.BaseTypes(node) {
			bp := b.StartPoint()
			text := lang.NormalizeTypeName(lang.NodeText(b, w.source))
			if text == "" {
				continue
			}
			d.Bases = append(d.Bases, model.TypeRef{
				Text:   text,
				Line:   int(bp.Row) + 1,
				Column: int(bp.Column) + 1,
			})
		}
	}

	if body := bodyOf(node); body != nil {
		inner := sc
		inner.outer = d
		d.Nested = w.container(body, inner)
	}
	return d
}

func bodyOf(node *sitter.Node) *sitter.Node {
	if body := node.ChildByFieldName("body"); body != nil {
		return body
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "declaration_list" {
			return child
		}
	}
	return nil
}

// firstError returns the first ERROR or missing node in document order.
func firstError(node *sitter.Node) *sitter.Node {
	if node.Type() == "ERROR" || node.IsMissing() {
		return node
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if !child.HasError() && !child.IsMissing() {
			continue
		}
		if bad := firstError(child); bad != nil {
			return bad
		}
	}
	return nil
}

func joinName(prefix, name string) string {
	switch {
	case prefix == "":
		return name
	case name == "":
		return prefix
	}
	return prefix + "." + name
}
