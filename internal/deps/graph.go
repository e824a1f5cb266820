// Package deps maintains the file-level dependency graph derived from
// import statements. The graph is directed and cycles are permitted.
package deps

import (
	"sort"

	"github.com/codeprov/codeprov-go/internal/models"
)

// Graph is an adjacency map over repository file paths.
type Graph struct {
	edges   map[string]map[string]struct{}
	reverse map[string]map[string]struct{}
}

// NewGraph builds a graph from persisted dependency edges.
func NewGraph(deps []models.Dependency) *Graph {
	g := &Graph{
		edges:   make(map[string]map[string]struct{}),
		reverse: make(map[string]map[string]struct{}),
	}
	for _, d := range deps {
		g.AddEdge(d.FromPath, d.ToPath)
	}
	return g
}

// AddEdge records from importing to. Self edges are dropped.
func (g *Graph) AddEdge(from, to string) {
	if from == to || from == "" || to == "" {
		return
	}
	if g.edges[from] == nil {
		g.edges[from] = make(map[string]struct{})
	}
	g.edges[from][to] = struct{}{}
	if g.reverse[to] == nil {
		g.reverse[to] = make(map[string]struct{})
	}
	g.reverse[to][from] = struct{}{}
}

// Imports returns the direct dependencies of path, sorted.
func (g *Graph) Imports(path string) []string {
	return sortedKeys(g.edges[path])
}

// Dependents returns the files that directly import path, sorted.
func (g *Graph) Dependents(path string) []string {
	return sortedKeys(g.reverse[path])
}

// Impacted walks the reverse edges breadth-first from the given files and
// returns every file reachable within depth hops, excluding the start set.
// depth <= 0 means unbounded. Cycles terminate because visited nodes are
// never re-enqueued.
func (g *Graph) Impacted(start []string, depth int) []string {
	visited := make(map[string]struct{}, len(start))
	for _, p := range start {
		visited[p] = struct{}{}
	}

	frontier := append([]string(nil), start...)
	var impacted []string
	for hop := 0; len(frontier) > 0 && (depth <= 0 || hop < depth); hop++ {
		var next []string
		for _, p := range frontier {
			for dep := range g.reverse[p] {
				if _, ok := visited[dep]; ok {
					continue
				}
				visited[dep] = struct{}{}
				impacted = append(impacted, dep)
				next = append(next, dep)
			}
		}
		frontier = next
	}
	sort.Strings(impacted)
	return impacted
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
