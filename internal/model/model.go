// Package model defines core data structures for typescan.
package model

import (
	"sort"
	"strconv"
	"strings"
)

// SymbolKind indicates the syntactic kind of a declared type.
type SymbolKind string

const (
	Class        SymbolKind = "class"
	Interface    SymbolKind = "interface"
	Struct       SymbolKind = "struct"
	Enum         SymbolKind = "enum"
	Record       SymbolKind = "record"
	RecordStruct SymbolKind = "record struct"
)

// ParseKind maps a user-facing kind name to a SymbolKind.
func ParseKind(s string) (SymbolKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "class":
		return Class, true
	case "interface":
		return Interface, true
	case "struct":
		return Struct, true
	case "enum":
		return Enum, true
	case "record":
		return Record, true
	case "record struct", "record_struct", "recordstruct":
		return RecordStruct, true
	}
	return "", false
}

// Workspace is the set of loaded projects and their reference graph.
type Workspace struct {
	Root       string
	Descriptor string
	// Projects are ordered dependencies-first.
	Projects []*Project

	byName map[string]*Project
}

// NewWorkspace indexes projects by name. Names must already be unique.
func NewWorkspace(root, descriptor string, projects []*Project) *Workspace {
	w := &Workspace{
		Root:       root,
		Descriptor: descriptor,
		Projects:   projects,
		byName:     make(map[string]*Project, len(projects)),
	}
	for _, p := range projects {
		w.byName[p.Name] = p
	}
	return w
}

// Project returns the project with the exact given name.
func (w *Workspace) Project(name string) (*Project, bool) {
	p, ok := w.byName[name]
	return p, ok
}

// ProjectNames returns all project names, sorted.
func (w *Workspace) ProjectNames() []string {
	names := make([]string, 0, len(w.Projects))
	for _, p := range w.Projects {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

// Project is a named compilation unit: an MSBuild project and its sources.
type Project struct {
	Name       string
	Path       string   // project file, relative to the workspace root
	Dir        string   // project directory, relative to the workspace root
	References []string // direct project references, by name, sorted

	// Deps holds every transitively referenced project, dependencies-first.
	Deps    []*Project
	Sources []*SourceModel // sorted by Path

	// Symbols maps fully-qualified names to the types this project declares.
	Symbols map[string]*Symbol
}

// Lookup returns the symbol this project declares under fullName, or nil.
func (p *Project) Lookup(fullName string) *Symbol {
	return p.Symbols[fullName]
}

// Using is a using directive in scope for a declaration.
type Using struct {
	Namespace string
	Alias     string // non-empty for "using Alias = Target;"
	Static    bool
	Global    bool // "global using": applies to every file of the project
}

// TypeRef is a type name as written in source.
type TypeRef struct {
	Text   string // normalized: generic arguments reduced to a `N arity suffix
	Line   int
	Column int
}

// TypeDecl is a type declaration node of a source file's syntax tree.
type TypeDecl struct {
	Name      string
	Kind      SymbolKind
	Arity     int
	Namespace string
	Outer     *TypeDecl
	Partial   bool
	Bases     []TypeRef
	// Usings in scope, innermost namespace first, file-level last.
	Usings []Using
	Line   int
	Column int
	Nested []*TypeDecl
}

// MetadataName returns name with a `N suffix when arity is non-zero.
func MetadataName(name string, arity int) string {
	if arity == 0 {
		return name
	}
	return name + "`" + strconv.Itoa(arity)
}

// FullName returns the fully-qualified name: Namespace.Outer.Name`N.
func (d *TypeDecl) FullName() string {
	name := MetadataName(d.Name, d.Arity)
	if d.Outer != nil {
		return d.Outer.FullName() + "." + name
	}
	if d.Namespace != "" {
		return d.Namespace + "." + name
	}
	return name
}

// SourceModel is one parsed source file together with its semantic bindings.
type SourceModel struct {
	Path   string // relative to the workspace root, forward slashes
	Text   []byte
	Usings []Using // file-level using directives
	Decls  []*TypeDecl

	// Bindings maps every type declaration to its symbol once binding succeeds.
	Bindings map[*TypeDecl]*Symbol
	// Err is set when the file failed to parse or bind; Bindings is then empty.
	Err *FileError
}

// AllDecls returns every type declaration in the file, outer before nested,
// in source order.
func (m *SourceModel) AllDecls() []*TypeDecl {
	var out []*TypeDecl
	var walk func([]*TypeDecl)
	walk = func(decls []*TypeDecl) {
		for _, d := range decls {
			out = append(out, d)
			walk(d.Nested)
		}
	}
	walk(m.Decls)
	return out
}

// Bound reports whether semantic binding completed for the file.
func (m *SourceModel) Bound() bool {
	return m.Err == nil && m.Bindings != nil
}

// Symbol is the canonical identity of a declared type. Symbols are shared by
// pointer; two declarations refer to the same type iff they share a Symbol.
type Symbol struct {
	FullName string
	Name     string
	Kind     SymbolKind
	Project  string
	// Files lists every source file declaring the type (partial types span several).
	Files []string
	Bases []BaseRef
}

// BaseRef is one direct base type of a symbol.
type BaseRef struct {
	// Symbol is nil when the base lives outside the loaded workspace.
	Symbol *Symbol
	// Name is the symbol's full name, or the textual name for external bases.
	Name string
	// Candidates are the qualified names an external base may stand for,
	// derived from the enclosing namespaces and using directives.
	Candidates []string
}

// External reports whether the base could not be resolved to a Symbol.
func (b BaseRef) External() bool { return b.Symbol == nil }

// Names returns every name the base may be matched by.
func (b BaseRef) Names() []string {
	if b.Symbol != nil {
		return []string{b.Symbol.FullName}
	}
	names := make([]string, 0, len(b.Candidates)+1)
	names = append(names, b.Name)
	for _, c := range b.Candidates {
		if c != b.Name {
			names = append(names, c)
		}
	}
	return names
}

// Predicate selects declarations whose base chain contains any target.
type Predicate struct {
	Targets []string
	// Kinds restricts candidate declarations; empty means every kind.
	Kinds []SymbolKind
	// SimpleNames lets a target match the last dotted segment of a base name.
	SimpleNames bool
}

// NewPredicate builds a predicate from targets, trimming blanks and
// dropping duplicates while keeping first-seen order.
func NewPredicate(targets ...string) Predicate {
	var p Predicate
	seen := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		t = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "global::"))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		p.Targets = append(p.Targets, t)
	}
	return p
}

// Empty reports whether the predicate has no targets.
func (p Predicate) Empty() bool { return len(p.Targets) == 0 }

// Accepts reports whether declarations of kind are candidates.
func (p Predicate) Accepts(kind SymbolKind) bool {
	if len(p.Kinds) == 0 {
		return true
	}
	for _, k := range p.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Matches reports whether name equals one of the targets.
func (p Predicate) Matches(name string) bool {
	for _, t := range p.Targets {
		if t == name {
			return true
		}
		if p.SimpleNames && !strings.Contains(t, ".") && lastSegment(name) == t {
			return true
		}
	}
	return false
}

func lastSegment(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// Match is one declaration satisfying a predicate.
type Match struct {
	Project     string
	File        string
	Name        string
	FullName    string
	Kind        SymbolKind
	Line        int
	Column      int
	MatchedBase string
	// Depth is 1 for a direct base, 2 for its base, and so on.
	Depth                int
	CyclicChainTruncated bool
}

// DiagnosticKind classifies a diagnostic.
type DiagnosticKind string

const (
	ParseDiagnostic DiagnosticKind = "parse"
	BindDiagnostic  DiagnosticKind = "bind"
	CycleDiagnostic DiagnosticKind = "cycle"
)

// Diagnostic reports a skipped file or a warning about a declaration.
type Diagnostic struct {
	Project string
	File    string
	Name    string // declaration full name, for cycle warnings
	Kind    DiagnosticKind
	Reason  string
}

// ScanResult is the complete, ordered output of one scan.
type ScanResult struct {
	Workspace string
	Projects  []string
	Targets   []string
	Matches   []Match
	// Skipped lists files that failed to parse or bind.
	Skipped []Diagnostic
	// Warnings lists declarations whose base chain was cut at a cycle.
	Warnings []Diagnostic
}
