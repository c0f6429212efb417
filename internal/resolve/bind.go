// Package resolve binds type declarations to symbols and computes their
// transitive base-type chains.
package resolve

import (
	"context"
	"fmt"
	"runtime"

	slogctx "github.com/veqryn/slog-context"
	"golang.org/x/sync/errgroup"

	"github.com/phobologic/typescan/internal/model"
)

// declared tracks, per full name, whether the symbol came from partial
// declarations and which file declared it first.
type declared struct {
	sym     *model.Symbol
	partial bool
	file    string
}

// Bind declares every type of project p and resolves their base types.
// Projects referenced by p (p.Deps) must already be bound. Files that fail
// to bind get a bind FileError and no bindings; the returned error is only
// ever a context error. implicitUsings are namespaces imported into every
// file of the project (SDK implicit usings).
func Bind(ctx context.Context, p *model.Project, implicitUsings []string, concurrency int) error {
	ctx = slogctx.With(ctx, "project", p.Name)
	p.Symbols = make(map[string]*model.Symbol)
	table := make(map[string]*declared)

	for _, m := range p.Sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		if m.Err != nil {
			continue
		}
		if fe := declare(p, m, table); fe != nil {
			m.Err = fe
			slogctx.Warn(ctx, "skipping file", "file", m.Path, "reason", fe.Reason)
		}
	}

	globals := globalUsings(p, implicitUsings)

	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}

	// Each task returns the bases it resolved for one file; the merge below
	// runs on this goroutine in path order.
	results := make([][]resolvedBases, len(p.Sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, m := range p.Sources {
		if !m.Bound() {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = resolveFile(p, m, globals)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, rs := range results {
		for _, r := range rs {
			r.sym.Bases = appendBases(r.sym.Bases, r.bases)
		}
	}

	slogctx.Debug(ctx, "bound project", "files", len(p.Sources), "symbols", len(p.Symbols))
	return nil
}

// declare binds the declarations of one file. The file binds completely or
// not at all: on conflict nothing it declared stays in the table.
func declare(p *model.Project, m *model.SourceModel, table map[string]*declared) *model.FileError {
	staged := make(map[string]*declared)
	bindings := make(map[*model.TypeDecl]*model.Symbol)

	for _, d := range m.AllDecls() {
		full := d.FullName()
		prev, inFile := staged[full]
		if !inFile {
			prev = table[full]
		}

		if prev != nil {
			if prev.sym.Kind != d.Kind {
				return bindError(m, d, fmt.Sprintf("%s %s conflicts with %s declared in %s", d.Kind, full, prev.sym.Kind, prev.file))
			}
			if !prev.partial || !d.Partial {
				return bindError(m, d, fmt.Sprintf("duplicate declaration of %s (first declared in %s)", full, prev.file))
			}
			if !inFile {
				staged[full] = prev
			}
			bindings[d] = prev.sym
			continue
		}

		sym := &model.Symbol{
			FullName: full,
			Name:     d.Name,
			Kind:     d.Kind,
			Project:  p.Name,
		}
		staged[full] = &declared{sym: sym, partial: d.Partial, file: m.Path}
		bindings[d] = sym
	}

	for full, dc := range staged {
		if !containsString(dc.sym.Files, m.Path) {
			dc.sym.Files = append(dc.sym.Files, m.Path)
		}
		if _, ok := table[full]; !ok {
			table[full] = dc
			p.Symbols[full] = dc.sym
		}
	}
	m.Bindings = bindings
	return nil
}

func bindError(m *model.SourceModel, d *model.TypeDecl, reason string) *model.FileError {
	return &model.FileError{
		Kind:   model.BindDiagnostic,
		Path:   m.Path,
		Reason: fmt.Sprintf("%d:%d: %s", d.Line, d.Column, reason),
	}
}

type resolvedBases struct {
	sym   *model.Symbol
	bases []model.BaseRef
}

func resolveFile(p *model.Project, m *model.SourceModel, globals []model.Using) []resolvedBases {
	local := make(map[string]*model.Symbol, len(m.Bindings))
	for d, sym := range m.Bindings {
		local[d.FullName()] = sym
	}

	var out []resolvedBases
	for _, d := range m.AllDecls() {
		if len(d.Bases) == 0 {
			continue
		}
		sym := m.Bindings[d]
		bases := make([]model.BaseRef, 0, len(d.Bases))
		for _, ref := range d.Bases {
			bases = append(bases, lookup(ref.Text, d, local, p, globals))
		}
		out = append(out, resolvedBases{sym: sym, bases: bases})
	}
	return out
}

// appendBases adds bases not already present, keeping declaration order.
// Partial declarations in several files each contribute their bases.
func appendBases(dst, src []model.BaseRef) []model.BaseRef {
	for _, b := range src {
		dup := false
		for _, have := range dst {
			if sameBase(have, b) {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, b)
		}
	}
	return dst
}

func sameBase(a, b model.BaseRef) bool {
	if a.Symbol != nil || b.Symbol != nil {
		return a.Symbol == b.Symbol
	}
	return a.Name == b.Name
}

// globalUsings collects "global using" directives from every bound file of
// the project followed by the SDK's implicit usings.
func globalUsings(p *model.Project, implicit []string) []model.Using {
	var out []model.Using
	seen := make(map[model.Using]struct{})
	add := func(u model.Using) {
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	for _, m := range p.Sources {
		if !m.Bound() {
			continue
		}
		for _, u := range m.Usings {
			if u.Global {
				add(u)
			}
		}
	}
	for _, ns := range implicit {
		add(model.Using{Namespace: ns, Global: true})
	}
	return out
}

func containsString(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
