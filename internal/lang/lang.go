// Package lang provides a language registry mapping file extensions to
// tree-sitter languages and the node types that declare types.
package lang

import (
	"regexp"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/typescan/internal/model"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Language holds tree-sitter configuration for a supported language.
type Language struct {
	Name       string
	Extensions []string
	lang       *sitter.Language

	// TypeDecls maps declaration node types to the kind of type they declare.
	TypeDecls map[string]model.SymbolKind

	// Namespaces lists node types that open a namespace scope.
	Namespaces map[string]bool

	// Containers lists node types whose children may hold further declarations
	// (namespace and type bodies).
	Containers map[string]bool

	// RefineKind adjusts the kind looked up in TypeDecls for grammars that share
	// one node type between several kinds. Optional.
	RefineKind func(node *sitter.Node, kind model.SymbolKind) model.SymbolKind

	// DeclName returns the declared identifier of a type declaration node.
	DeclName func(node *sitter.Node, source []byte) *sitter.Node

	// Arity returns the number of generic type parameters a declaration has.
	Arity func(node *sitter.Node) int

	// IsPartial reports whether a declaration carries the partial modifier.
	IsPartial func(node *sitter.Node, source []byte) bool

	// BaseTypes returns the type nodes of a declaration's base list.
	BaseTypes func(node *sitter.Node) []*sitter.Node

	// NamespaceName returns the dotted name a namespace node declares.
	NamespaceName func(node *sitter.Node, source []byte) string

	// ParseUsing decodes a using directive node. ok is false for other nodes.
	ParseUsing func(node *sitter.Node, source []byte) (u model.Using, ok bool)
}

// GetLanguage returns the tree-sitter Language pointer.
func (l *Language) GetLanguage() *sitter.Language {
	return l.lang
}

// NewParser creates a fresh tree-sitter parser for this language.
// Each goroutine must use its own parser (not thread-safe).
func (l *Language) NewParser() *sitter.Parser {
	p := sitter.NewParser()
	p.SetLanguage(l.lang)
	return p
}

// Languages maps language names to their configuration.
// Populated by init() functions in per-language files; read-only afterwards.
var Languages = map[string]*Language{}

// extensionMap is built lazily after all init() functions have run.
var extensionMap map[string]string
var extensionOnce sync.Once

func getExtensionMap() map[string]string {
	extensionOnce.Do(func() {
		extensionMap = make(map[string]string)
		for _, l := range Languages {
			for _, ext := range l.Extensions {
				extensionMap[ext] = l.Name
			}
		}
	})
	return extensionMap
}

// ForExtension returns the language name for a file extension, or "" if unsupported.
func ForExtension(ext string) string {
	return getExtensionMap()[strings.ToLower(ext)]
}

// NodeText returns the source text of a tree-sitter node.
func NodeText(node *sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}

// StripWhitespace removes all whitespace from s.
func StripWhitespace(s string) string {
	return whitespaceRe.ReplaceAllString(s, "")
}
