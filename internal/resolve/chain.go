package resolve

import (
	"sync"

	"github.com/phobologic/typescan/internal/model"
)

// ChainEntry is one base type reachable from a symbol.
type ChainEntry struct {
	Base  model.BaseRef
	Depth int // 1 for a direct base
}

// Chain is the transitive base-type closure of a symbol in breadth-first
// order. It never contains the symbol itself.
type Chain struct {
	Entries []ChainEntry
	// Cyclic is set when the symbol is reachable from its own bases.
	Cyclic bool
}

// ChainCache memoises chains across scans. Readers get an immutable
// snapshot; Merge publishes a new snapshot, so a scan in flight never sees
// the map change under it.
type ChainCache struct {
	mu     sync.Mutex
	chains map[*model.Symbol]*Chain
}

// NewChainCache returns an empty cache.
func NewChainCache() *ChainCache {
	return &ChainCache{chains: make(map[*model.Symbol]*Chain)}
}

// Snapshot returns the current chains. The map must not be modified.
func (c *ChainCache) Snapshot() map[*model.Symbol]*Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chains
}

// Merge publishes the chains computed by workers.
func (c *ChainCache) Merge(locals ...map[*model.Symbol]*Chain) {
	c.mu.Lock()
	defer c.mu.Unlock()

	added := 0
	for _, l := range locals {
		added += len(l)
	}
	if added == 0 {
		return
	}
	next := make(map[*model.Symbol]*Chain, len(c.chains)+added)
	for s, ch := range c.chains {
		next[s] = ch
	}
	for _, l := range locals {
		for s, ch := range l {
			if _, ok := next[s]; !ok {
				next[s] = ch
			}
		}
	}
	c.chains = next
}

// Len returns the number of memoised chains.
func (c *ChainCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.chains)
}

// Resolver answers symbol and chain queries for one worker. It reads a
// shared snapshot and writes only to its private cache, so it must not be
// used from more than one goroutine.
type Resolver struct {
	shared map[*model.Symbol]*Chain
	local  map[*model.Symbol]*Chain
}

// NewResolver returns a Resolver reading from shared, which may be nil.
func NewResolver(shared map[*model.Symbol]*Chain) *Resolver {
	return &Resolver{shared: shared, local: make(map[*model.Symbol]*Chain)}
}

// Resolve returns the symbol bound to declaration d of file m, or nil when
// the file is not bound.
func (r *Resolver) Resolve(m *model.SourceModel, d *model.TypeDecl) *model.Symbol {
	if !m.Bound() {
		return nil
	}
	return m.Bindings[d]
}

// Chain returns the memoised base chain of sym.
func (r *Resolver) Chain(sym *model.Symbol) *Chain {
	if ch, ok := r.shared[sym]; ok {
		return ch
	}
	if ch, ok := r.local[sym]; ok {
		return ch
	}
	ch := computeChain(sym)
	r.local[sym] = ch
	return ch
}

// Local returns the chains this resolver computed and did not find in the
// shared snapshot.
func (r *Resolver) Local() map[*model.Symbol]*Chain {
	return r.local
}

// computeChain walks the bases of sym breadth-first. Every symbol is
// expanded at most once, which bounds the walk on cyclic input.
func computeChain(sym *model.Symbol) *Chain {
	type item struct {
		base  model.BaseRef
		depth int
	}

	ch := &Chain{}
	seenSym := map[*model.Symbol]struct{}{}
	seenExt := map[string]struct{}{}

	queue := make([]item, 0, len(sym.Bases))
	for _, b := range sym.Bases {
		queue = append(queue, item{base: b, depth: 1})
	}

	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]

		if it.base.External() {
			if _, dup := seenExt[it.base.Name]; dup {
				continue
			}
			seenExt[it.base.Name] = struct{}{}
			ch.Entries = append(ch.Entries, ChainEntry{Base: it.base, Depth: it.depth})
			continue
		}

		s := it.base.Symbol
		if s == sym {
			ch.Cyclic = true
			continue
		}
		if _, dup := seenSym[s]; dup {
			continue
		}
		seenSym[s] = struct{}{}
		ch.Entries = append(ch.Entries, ChainEntry{Base: it.base, Depth: it.depth})
		for _, b := range s.Bases {
			queue = append(queue, item{base: b, depth: it.depth + 1})
		}
	}
	return ch
}
