package server

import (
	"context"
	"sync"

	slogctx "github.com/veqryn/slog-context"

	"github.com/phobologic/typescan/internal/cache"
	"github.com/phobologic/typescan/internal/model"
	"github.com/phobologic/typescan/internal/scan"
	"github.com/phobologic/typescan/internal/workspace"
)

// loaded is a workspace kept between tool calls together with the scanner
// whose chain cache belongs to it.
type loaded struct {
	fingerprint string
	ws          *model.Workspace
	scanner     *scan.Scanner
}

// Workspaces loads workspaces under one root and keeps them until one of
// their input files changes.
type Workspaces struct {
	root        string
	opts        workspace.Options
	concurrency int

	mu      sync.Mutex
	entries map[string]*loaded
}

// NewWorkspaces returns an empty set of workspaces rooted at root.
func NewWorkspaces(root string, opts workspace.Options) *Workspaces {
	return &Workspaces{
		root:        root,
		opts:        opts,
		concurrency: opts.Concurrency,
		entries:     make(map[string]*loaded),
	}
}

// Get returns the loaded workspace for descriptor, reloading it when any of
// its inputs changed since the last call.
func (w *Workspaces) Get(ctx context.Context, descriptor string) (*model.Workspace, *scan.Scanner, error) {
	inputs, err := workspace.Inputs(w.root, descriptor, w.opts)
	if err != nil {
		return nil, nil, err
	}
	fp, err := cache.Fingerprint(w.root, cache.Key{Descriptor: descriptor}, inputs)
	if err != nil {
		return nil, nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if e, ok := w.entries[descriptor]; ok && e.fingerprint == fp {
		return e.ws, e.scanner, nil
	}

	slogctx.Info(ctx, "loading workspace", "descriptor", descriptor, "inputs", len(inputs))
	ws, err := workspace.Load(ctx, w.root, descriptor, w.opts)
	if err != nil {
		return nil, nil, err
	}
	e := &loaded{
		fingerprint: fp,
		ws:          ws,
		scanner:     scan.New(scan.Options{Concurrency: w.concurrency}),
	}
	w.entries[descriptor] = e
	return e.ws, e.scanner, nil
}
