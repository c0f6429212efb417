package resolve

import (
	"strings"

	"github.com/phobologic/typescan/internal/model"
)

// lookup resolves the base type name text, written on declaration d, to a
// symbol. Scopes are searched in priority order: the declaring file, the
// declaring project, then referenced projects in dependency order. Within a
// scope the candidate names are tried in the order candidates returns them.
// A name found in no scope becomes an external BaseRef.
func lookup(text string, d *model.TypeDecl, local map[string]*model.Symbol, p *model.Project, globals []model.Using) model.BaseRef {
	cands := candidates(text, d, globals)

	find := func(table func(string) *model.Symbol) *model.Symbol {
		for _, c := range cands {
			if sym := table(c); sym != nil {
				return sym
			}
		}
		return nil
	}

	sym := find(func(name string) *model.Symbol { return local[name] })
	if sym == nil {
		sym = find(p.Lookup)
	}
	for _, dep := range p.Deps {
		if sym != nil {
			break
		}
		sym = find(dep.Lookup)
	}

	if sym != nil {
		return model.BaseRef{Symbol: sym, Name: sym.FullName}
	}
	return model.BaseRef{Name: text, Candidates: cands}
}

// candidates lists the fully-qualified names text may stand for on d, most
// specific first: members of enclosing types, enclosing namespaces from the
// innermost out, the global namespace, then every using directive in scope.
// An alias on the first segment replaces it and makes the name qualified.
func candidates(text string, d *model.TypeDecl, globals []model.Using) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(name string) {
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}

	head, rest := text, ""
	if i := strings.IndexByte(text, '.'); i >= 0 {
		head, rest = text[:i], text[i:]
	}
	if target, ok := aliasTarget(head, d.Usings, globals); ok {
		add(target + rest)
		return out
	}

	for o := d.Outer; o != nil; o = o.Outer {
		add(o.FullName() + "." + text)
	}
	for ns := d.Namespace; ns != ""; ns = parentNamespace(ns) {
		add(ns + "." + text)
	}
	add(text)

	for _, usings := range [][]model.Using{d.Usings, globals} {
		for _, u := range usings {
			if u.Alias != "" || u.Namespace == "" {
				continue
			}
			add(u.Namespace + "." + text)
		}
	}
	return out
}

// aliasTarget finds the alias named head among the usings in scope.
// Closer usings shadow outer ones and file usings shadow global ones.
func aliasTarget(head string, usings, globals []model.Using) (string, bool) {
	for _, list := range [][]model.Using{usings, globals} {
		for _, u := range list {
			if u.Alias == head {
				return u.Namespace, true
			}
		}
	}
	return "", false
}

func parentNamespace(ns string) string {
	if i := strings.LastIndexByte(ns, '.'); i >= 0 {
		return ns[:i]
	}
	return ""
}
