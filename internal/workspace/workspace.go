// Package workspace loads a solution and its projects into parsed, bound
// project models.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/dustin/go-humanize"
	sitter "github.com/smacker/go-tree-sitter"
	slogctx "github.com/veqryn/slog-context"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"

	"github.com/phobologic/typescan/internal/discover"
	"github.com/phobologic/typescan/internal/graph"
	"github.com/phobologic/typescan/internal/lang"
	"github.com/phobologic/typescan/internal/manifest"
	"github.com/phobologic/typescan/internal/model"
	"github.com/phobologic/typescan/internal/parse"
	"github.com/phobologic/typescan/internal/resolve"
)

// DefaultMaxFileSize is the source size above which files are skipped.
const DefaultMaxFileSize = 1_000_000 // 1 MB

// Options control a workspace load.
type Options struct {
	// Concurrency bounds the parse and bind worker pools; zero means GOMAXPROCS.
	Concurrency int
	// MaxFileSize skips larger source files with a parse diagnostic; zero means
	// DefaultMaxFileSize, negative means no limit.
	MaxFileSize int64
	// Exclude holds gitignore-style patterns relative to the root.
	Exclude []string
	// RespectGitignore applies the root .gitignore to discovered sources.
	RespectGitignore bool
}

// projectInfo is a project file read during load, before parsing.
type projectInfo struct {
	entry manifest.ProjectEntry
	file  *manifest.ProjectFile
}

// plan is a workspace whose projects are read and ordered and whose source
// files are discovered, but not yet parsed.
type plan struct {
	descriptor string
	infos      map[string]*projectInfo
	projects   []*model.Project
	jobs       []parseJob
}

// Load opens the descriptor (relative to root) and returns every project in
// dependency order, parsed and bound. Individual source files that fail to
// parse or bind are recorded on their SourceModel; any other problem is a
// *model.WorkspaceLoadError.
func Load(ctx context.Context, root, descriptor string, opts Options) (*model.Workspace, error) {
	ctx = slogctx.With(ctx, "descriptor", descriptor)

	pl, err := makePlan(root, descriptor, opts)
	if err != nil {
		return nil, err
	}

	if err := parseAll(ctx, root, pl.jobs, opts); err != nil {
		return nil, errors.WithStack(&model.WorkspaceLoadError{Descriptor: descriptor, Reason: "parsing sources", Err: err})
	}

	for _, p := range pl.projects {
		if err := resolve.Bind(ctx, p, pl.infos[p.Name].file.ImplicitUsingNamespaces(), opts.Concurrency); err != nil {
			return nil, errors.WithStack(&model.WorkspaceLoadError{Descriptor: descriptor, Reason: "binding " + p.Name, Err: err})
		}
	}

	slogctx.Info(ctx, "loaded workspace", "projects", len(pl.projects), "files", len(pl.jobs))
	return model.NewWorkspace(root, pl.descriptor, pl.projects), nil
}

// Inputs lists every file a Load of descriptor would read, relative to root:
// the descriptor, the project files, then the source files.
func Inputs(root, descriptor string, opts Options) ([]string, error) {
	pl, err := makePlan(root, descriptor, opts)
	if err != nil {
		return nil, err
	}
	inputs := []string{pl.descriptor}
	for _, p := range pl.projects {
		inputs = append(inputs, p.Path)
	}
	for _, j := range pl.jobs {
		inputs = append(inputs, j.file.Path)
	}
	return inputs, nil
}

func makePlan(root, descriptor string, opts Options) (*plan, error) {
	loadErr := func(reason string, err error) error {
		return errors.WithStack(&model.WorkspaceLoadError{Descriptor: descriptor, Reason: reason, Err: err})
	}

	sln, err := manifest.ReadSolution(root, descriptor)
	if err != nil {
		return nil, loadErr("reading descriptor", err)
	}

	infos, err := readProjects(root, sln)
	if err != nil {
		return nil, loadErr(err.Error(), nil)
	}

	names := make([]string, 0, len(infos))
	refs := make(map[string][]string, len(infos))
	byPath := make(map[string]string, len(infos))
	for name, info := range infos {
		names = append(names, name)
		byPath[info.entry.Path] = name
	}
	sort.Strings(names)
	for _, name := range names {
		for _, ref := range infos[name].file.References {
			refs[name] = append(refs[name], byPath[ref])
		}
	}

	order, err := graph.Order(names, refs)
	if err != nil {
		return nil, loadErr("invalid project reference graph", err)
	}
	transitive := graph.Transitive(order, refs)

	ignore := discover.LoadIgnore(root, opts.RespectGitignore, opts.Exclude)

	pl := &plan{descriptor: sln.Path, infos: infos}
	byName := make(map[string]*model.Project, len(order))
	for _, name := range order {
		info := infos[name]
		p := &model.Project{
			Name:       name,
			Path:       info.entry.Path,
			Dir:        path.Dir(info.entry.Path),
			References: uniqueSorted(refs[name]),
		}
		for _, dep := range transitive[name] {
			p.Deps = append(p.Deps, byName[dep])
		}

		files, err := discover.Files(root, p.Dir, discover.Options{
			DefaultItems: info.file.DefaultItems,
			Include:      info.file.CompileInclude,
			Remove:       info.file.CompileRemove,
			Ignore:       ignore,
		})
		if err != nil {
			return nil, loadErr("discovering sources of "+name, err)
		}

		p.Sources = make([]*model.SourceModel, len(files))
		for i, f := range files {
			pl.jobs = append(pl.jobs, parseJob{project: p, index: i, file: f})
		}
		pl.projects = append(pl.projects, p)
		byName[name] = p
	}
	return pl, nil
}

// readProjects reads every project listed by the solution plus every project
// they reference, directly or not. A referenced project file that does not
// exist is an error, as are two projects sharing a name.
func readProjects(root string, sln *manifest.Solution) (map[string]*projectInfo, error) {
	infos := make(map[string]*projectInfo)
	seenPath := make(map[string]bool)

	queue := append([]manifest.ProjectEntry(nil), sln.Projects...)
	referrer := make(map[string]string)
	for len(queue) > 0 {
		entry := queue[0]
		queue = queue[1:]
		if seenPath[entry.Path] {
			continue
		}
		seenPath[entry.Path] = true

		pf, err := manifest.ReadProject(root, entry.Path)
		if err != nil {
			if from, ok := referrer[entry.Path]; ok {
				return nil, errors.Errorf("project %s references %s: %w", from, entry.Path, err)
			}
			return nil, errors.Errorf("project %s: %w", entry.Path, err)
		}
		if other, dup := infos[entry.Name]; dup {
			return nil, errors.Errorf("duplicate project name %q (%s and %s)", entry.Name, other.entry.Path, entry.Path)
		}
		infos[entry.Name] = &projectInfo{entry: entry, file: pf}

		for _, ref := range pf.References {
			if seenPath[ref] {
				continue
			}
			if _, ok := referrer[ref]; !ok {
				referrer[ref] = entry.Name
			}
			queue = append(queue, manifest.ProjectEntry{Name: manifest.ProjectName(ref), Path: ref})
		}
	}
	return infos, nil
}

type parseJob struct {
	project *model.Project
	index   int
	file    discover.FileEntry
}

// parseAll parses every job on a bounded pool. Each worker owns its parsers;
// results are written to their slot in the project's Sources slice, so the
// order does not depend on scheduling.
func parseAll(ctx context.Context, root string, jobs []parseJob, opts Options) error {
	maxSize := opts.MaxFileSize
	if maxSize == 0 {
		maxSize = DefaultMaxFileSize
	}

	numWorkers := opts.Concurrency
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	if numWorkers > len(jobs) {
		numWorkers = len(jobs)
	}

	work := make(chan parseJob)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(work)
		for _, j := range jobs {
			select {
			case work <- j:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for range numWorkers {
		g.Go(func() error {
			// Each goroutine gets its own parsers
			parsers := make(map[string]*sitter.Parser)
			for j := range work {
				if err := gctx.Err(); err != nil {
					return err
				}
				l := lang.Languages[j.file.Language]
				p, ok := parsers[j.file.Language]
				if !ok {
					p = l.NewParser()
					parsers[j.file.Language] = p
				}
				m, err := parseFile(gctx, root, l, p, j.file.Path, maxSize)
				if err != nil {
					return err
				}
				if m.Err != nil {
					slogctx.Warn(gctx, "skipping file", "project", j.project.Name, "file", m.Path, "reason", m.Err.Reason)
				}
				j.project.Sources[j.index] = m
			}
			return nil
		})
	}
	return g.Wait()
}

// parseFile reads and parses one source file. Unreadable, oversized and
// syntactically broken files yield a SourceModel with a parse error.
func parseFile(ctx context.Context, root string, l *lang.Language, p *sitter.Parser, rel string, maxSize int64) (*model.SourceModel, error) {
	abs := filepath.Join(root, filepath.FromSlash(rel))
	failed := func(reason string, err error) *model.SourceModel {
		return &model.SourceModel{
			Path: rel,
			Err:  &model.FileError{Kind: model.ParseDiagnostic, Path: rel, Reason: reason, Err: err},
		}
	}

	if maxSize > 0 {
		if fi, err := os.Stat(abs); err == nil && fi.Size() > maxSize {
			reason := fmt.Sprintf("file too large (%s > %s)", humanize.Bytes(uint64(fi.Size())), humanize.Bytes(uint64(maxSize)))
			return failed(reason, nil), nil
		}
	}

	source, err := os.ReadFile(abs)
	if err != nil {
		return failed("reading file", err), nil
	}
	return parse.File(ctx, l, p, source, rel)
}

// SelectProject returns the project named name, or every project in
// dependency order when name is empty.
func SelectProject(ws *model.Workspace, name string) ([]*model.Project, error) {
	if name == "" {
		return ws.Projects, nil
	}
	p, ok := ws.Project(name)
	if !ok {
		return nil, errors.WithStack(&model.ProjectNotFoundError{Name: name, Available: ws.ProjectNames()})
	}
	return []*model.Project{p}, nil
}

func uniqueSorted(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := append([]string(nil), values...)
	sort.Strings(out)
	n := 1
	for i := 1; i < len(out); i++ {
		if out[i] != out[n-1] {
			out[n] = out[i]
			n++
		}
	}
	return out[:n]
}
