// Package scan finds type declarations whose base-type chain reaches a
// predicate target.
package scan

import (
	"context"
	"runtime"
	"sort"

	slogctx "github.com/veqryn/slog-context"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"

	"github.com/phobologic/typescan/internal/lang"
	"github.com/phobologic/typescan/internal/model"
	"github.com/phobologic/typescan/internal/resolve"
	"github.com/phobologic/typescan/internal/workspace"
)

// ErrEmptyPredicate is returned when a scan has no target names.
var ErrEmptyPredicate = errors.Base("predicate has no target names")

// Options configure a Scanner.
type Options struct {
	// Concurrency bounds the worker pool; zero means GOMAXPROCS.
	Concurrency int
}

// Scanner runs scans against loaded workspaces. Chains computed by one scan
// are reused by later scans of the same workspace. A Scanner is safe for
// concurrent use.
type Scanner struct {
	concurrency int
	chains      *resolve.ChainCache
}

// New returns a Scanner.
func New(opts Options) *Scanner {
	n := opts.Concurrency
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	return &Scanner{concurrency: n, chains: resolve.NewChainCache()}
}

// NewPredicate builds a predicate from user-supplied target names and kind
// names. Targets are normalised the way base names are (generic arguments
// become a `N suffix, global:: is dropped).
func NewPredicate(targets []string, kinds []string, simpleNames bool) (model.Predicate, error) {
	normalized := make([]string, 0, len(targets))
	for _, t := range targets {
		normalized = append(normalized, lang.NormalizeTypeName(t))
	}
	p := model.NewPredicate(normalized...)
	p.SimpleNames = simpleNames
	for _, k := range kinds {
		kind, ok := model.ParseKind(k)
		if !ok {
			return model.Predicate{}, errors.Errorf("unknown kind %q", k)
		}
		p.Kinds = append(p.Kinds, kind)
	}
	return p, nil
}

// fileResult is what one worker produces for one source file.
type fileResult struct {
	matches  []model.Match
	warnings []model.Diagnostic
	skipped  *model.Diagnostic
}

type fileTask struct {
	project *model.Project
	source  *model.SourceModel
}

// Scan returns every declaration in the selected project (all projects when
// project is empty) whose transitive base chain contains a predicate target.
// Files that failed to parse or bind are reported in Skipped. The result is
// sorted and does not depend on scheduling.
func (s *Scanner) Scan(ctx context.Context, ws *model.Workspace, project string, pred model.Predicate) (*model.ScanResult, error) {
	if pred.Empty() {
		return nil, errors.WithStack(ErrEmptyPredicate)
	}
	projects, err := workspace.SelectProject(ws, project)
	if err != nil {
		return nil, err
	}

	var tasks []fileTask
	for _, p := range projects {
		for _, m := range p.Sources {
			tasks = append(tasks, fileTask{project: p, source: m})
		}
	}

	shared := s.chains.Snapshot()
	results := make([]fileResult, len(tasks))
	locals := make([]map[*model.Symbol]*resolve.Chain, len(tasks))

	// One resolver per task: the private caches stay single-goroutine and
	// are merged after every worker has returned.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, task := range tasks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r := resolve.NewResolver(shared)
			results[i] = scanFile(r, task.project, task.source, pred)
			locals[i] = r.Local()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.chains.Merge(locals...)

	res := &model.ScanResult{
		Workspace: ws.Descriptor,
		Targets:   append([]string(nil), pred.Targets...),
	}
	for _, p := range projects {
		res.Projects = append(res.Projects, p.Name)
	}
	for _, r := range results {
		res.Matches = append(res.Matches, r.matches...)
		res.Warnings = append(res.Warnings, r.warnings...)
		if r.skipped != nil {
			res.Skipped = append(res.Skipped, *r.skipped)
		}
	}
	sortResult(res)

	slogctx.Debug(ctx, "scan finished",
		"projects", len(projects),
		"files", len(tasks),
		"matches", len(res.Matches),
		"skipped", len(res.Skipped),
		"cached_chains", s.chains.Len())
	return res, nil
}

func scanFile(r *resolve.Resolver, p *model.Project, m *model.SourceModel, pred model.Predicate) fileResult {
	var out fileResult
	if !m.Bound() {
		d := model.Diagnostic{Project: p.Name, File: m.Path, Kind: model.ParseDiagnostic, Reason: "not bound"}
		if m.Err != nil {
			d.Kind = m.Err.Kind
			d.Reason = m.Err.Reason
		}
		out.skipped = &d
		return out
	}

	for _, decl := range m.AllDecls() {
		sym := r.Resolve(m, decl)
		if sym == nil {
			continue
		}
		ch := r.Chain(sym)
		if ch.Cyclic {
			out.warnings = append(out.warnings, model.Diagnostic{
				Project: p.Name,
				File:    m.Path,
				Name:    sym.FullName,
				Kind:    model.CycleDiagnostic,
				Reason:  "inheritance cycle; base chain truncated",
			})
		}
		if !pred.Accepts(decl.Kind) {
			continue
		}
		if name, depth, ok := firstMatch(ch, pred); ok {
			out.matches = append(out.matches, model.Match{
				Project:              p.Name,
				File:                 m.Path,
				Name:                 decl.Name,
				FullName:             sym.FullName,
				Kind:                 decl.Kind,
				Line:                 decl.Line,
				Column:               decl.Column,
				MatchedBase:          name,
				Depth:                depth,
				CyclicChainTruncated: ch.Cyclic,
			})
		}
	}
	return out
}

// firstMatch walks the chain breadth-first and returns the first base name
// the predicate accepts.
func firstMatch(ch *resolve.Chain, pred model.Predicate) (string, int, bool) {
	for _, e := range ch.Entries {
		for _, name := range e.Base.Names() {
			if pred.Matches(name) {
				return name, e.Depth, true
			}
		}
	}
	return "", 0, false
}

func sortResult(res *model.ScanResult) {
	sort.SliceStable(res.Matches, func(i, j int) bool {
		a, b := res.Matches[i], res.Matches[j]
		if a.Project != b.Project {
			return a.Project < b.Project
		}
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Column != b.Column {
			return a.Column < b.Column
		}
		return a.FullName < b.FullName
	})
	sort.SliceStable(res.Skipped, func(i, j int) bool {
		a, b := res.Skipped[i], res.Skipped[j]
		if a.Project != b.Project {
			return a.Project < b.Project
		}
		if a.File != b.File {
			return a.File < b.File
		}
		return a.Kind < b.Kind
	})
	sort.SliceStable(res.Warnings, func(i, j int) bool {
		a, b := res.Warnings[i], res.Warnings[j]
		if a.Project != b.Project {
			return a.Project < b.Project
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.File < b.File
	})
}
