// Package depgraph holds the explicit task dependency graph used by cycle
// detection and ordering.
package depgraph

import (
	"errors"

	"alchemist/internal/domain"
)

var ErrCycle = errors.New("dependency graph contains a cycle")

type visitState int

const (
	visitNew visitState = iota
	visitVisiting
	visitDone
)

// Graph is an adjacency map from task id to dependency ids. Only edges to known
// task ids are kept; unknown references are a separate finding.
type Graph struct {
	order []string
	deps  map[string][]string
}

// Build constructs the graph once per validation pass. When ids repeat, the
// first record wins.
func Build(tasks []domain.Task) Graph {
	g := Graph{deps: make(map[string][]string, len(tasks))}
	for _, t := range tasks {
		if t.ID == "" {
			continue
		}
		if _, ok := g.deps[t.ID]; ok {
			continue
		}
		g.order = append(g.order, t.ID)
		g.deps[t.ID] = nil
	}
	seen := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if t.ID == "" || seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		for _, dep := range t.Dependencies {
			if _, ok := g.deps[dep]; ok {
				g.deps[t.ID] = append(g.deps[t.ID], dep)
			}
		}
	}
	return g
}

// Nodes returns task ids in first-appearance order.
func (g Graph) Nodes() []string {
	return append([]string(nil), g.order...)
}

// Deps returns the known dependencies of id.
func (g Graph) Deps(id string) []string {
	return g.deps[id]
}

func (g Graph) Has(id string) bool {
	_, ok := g.deps[id]
	return ok
}

// Cyclic returns every task that lies on a cycle or depends, directly or
// transitively, on one. Each node is visited once.
func (g Graph) Cyclic() map[string]bool {
	state := make(map[string]visitState, len(g.order))
	tainted := map[string]bool{}

	var dfs func(id string) bool
	dfs = func(id string) bool {
		state[id] = visitVisiting
		for _, dep := range g.deps[id] {
			switch state[dep] {
			case visitNew:
				if dfs(dep) {
					tainted[id] = true
				}
			case visitVisiting:
				tainted[id] = true
			case visitDone:
				if tainted[dep] {
					tainted[id] = true
				}
			}
		}
		state[id] = visitDone
		return tainted[id]
	}

	for _, id := range g.order {
		if state[id] == visitNew {
			dfs(id)
		}
	}
	return tainted
}

// Cycle returns one dependency cycle if any exists, else nil. The starting
// node is repeated at the end, e.g. ["A", "B", "C", "A"].
func (g Graph) Cycle() []string {
	state := make(map[string]visitState, len(g.order))
	onStack := map[string]int{}
	var stack []string
	var cycle []string

	var dfs func(id string)
	dfs = func(id string) {
		state[id] = visitVisiting
		onStack[id] = len(stack)
		stack = append(stack, id)
		for _, dep := range g.deps[id] {
			if cycle != nil {
				return
			}
			switch state[dep] {
			case visitNew:
				dfs(dep)
			case visitVisiting:
				cycle = append([]string{}, stack[onStack[dep]:]...)
				cycle = append(cycle, dep)
				return
			}
		}
		stack = stack[:len(stack)-1]
		delete(onStack, id)
		state[id] = visitDone
	}

	for _, id := range g.order {
		if state[id] == visitNew {
			dfs(id)
			if cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// TopoOrder returns task ids with every dependency before its dependents.
// Ties keep first-appearance order.
func (g Graph) TopoOrder() ([]string, error) {
	if g.Cycle() != nil {
		return nil, ErrCycle
	}
	done := make(map[string]bool, len(g.order))
	out := make([]string, 0, len(g.order))
	var visit func(id string)
	visit = func(id string) {
		if done[id] {
			return
		}
		done[id] = true
		for _, dep := range g.deps[id] {
			visit(dep)
		}
		out = append(out, id)
	}
	for _, id := range g.order {
		visit(id)
	}
	return out, nil
}
