// Package graph orders projects by their reference graph.
package graph

import (
	"fmt"
	"sort"
	"strings"
)

// CycleError reports a cyclic project reference graph.
type CycleError struct {
	// Cycle lists the projects on the cycle; the first is repeated at the end.
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cyclic project references: %s", strings.Join(e.Cycle, " -> "))
}

// Order returns nodes so that every node comes after the nodes it references.
// Among nodes that are ready at the same time the smaller name goes first, so
// the order is deterministic. A self-reference or longer cycle yields a
// *CycleError. References to nodes outside nodes are ignored.
func Order(nodes []string, refs map[string][]string) ([]string, error) {
	known := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		known[n] = struct{}{}
	}

	// pending counts unresolved references per node; dependents maps a
	// target to the nodes referencing it.
	pending := make(map[string]int, len(nodes))
	dependents := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		pending[n] = 0
	}
	for _, n := range nodes {
		seen := make(map[string]struct{})
		for _, tgt := range refs[n] {
			if _, ok := known[tgt]; !ok {
				continue
			}
			if _, dup := seen[tgt]; dup {
				continue
			}
			seen[tgt] = struct{}{}
			pending[n]++
			dependents[tgt] = append(dependents[tgt], n)
		}
	}

	var ready []string
	for n, count := range pending {
		if count == 0 {
			ready = append(ready, n)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(nodes))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)
		for _, dep := range dependents[n] {
			pending[dep]--
			if pending[dep] == 0 {
				ready = insertSorted(ready, dep)
			}
		}
	}

	if len(order) < len(known) {
		return nil, &CycleError{Cycle: findCycle(nodes, refs, known)}
	}
	return order, nil
}

// Transitive returns, for every node, all nodes it references directly or
// indirectly, listed in the given dependency order.
func Transitive(order []string, refs map[string][]string) map[string][]string {
	position := make(map[string]int, len(order))
	for i, n := range order {
		position[n] = i
	}

	closure := make(map[string]map[string]struct{}, len(order))
	for _, n := range order {
		set := make(map[string]struct{})
		for _, tgt := range refs[n] {
			if _, ok := position[tgt]; !ok || tgt == n {
				continue
			}
			set[tgt] = struct{}{}
			// Dependencies come earlier in order, so their closure is complete.
			for t := range closure[tgt] {
				set[t] = struct{}{}
			}
		}
		closure[n] = set
	}

	out := make(map[string][]string, len(order))
	for _, n := range order {
		deps := make([]string, 0, len(closure[n]))
		for t := range closure[n] {
			deps = append(deps, t)
		}
		sort.Slice(deps, func(i, j int) bool {
			return position[deps[i]] < position[deps[j]]
		})
		out[n] = deps
	}
	return out
}

// findCycle returns one cycle among the nodes, smallest starting node first.
func findCycle(nodes []string, refs map[string][]string, known map[string]struct{}) []string {
	sorted := append([]string(nil), nodes...)
	sort.Strings(sorted)

	const (
		unvisited = iota
		onStack
		done
	)
	state := make(map[string]int, len(nodes))
	var stack []string
	var cycle []string

	var visit func(n string) bool
	visit = func(n string) bool {
		state[n] = onStack
		stack = append(stack, n)
		targets := append([]string(nil), refs[n]...)
		sort.Strings(targets)
		for _, tgt := range targets {
			if _, ok := known[tgt]; !ok {
				continue
			}
			switch state[tgt] {
			case onStack:
				for i, s := range stack {
					if s == tgt {
						cycle = append(append([]string(nil), stack[i:]...), tgt)
						return true
					}
				}
			case unvisited:
				if visit(tgt) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[n] = done
		return false
	}

	for _, n := range sorted {
		if state[n] == unvisited && visit(n) {
			return cycle
		}
	}
	return nil
}

func insertSorted(list []string, s string) []string {
	i := sort.SearchStrings(list, s)
	list = append(list, "")
	copy(list[i+1:], list[i:])
	list[i] = s
	return list
}
