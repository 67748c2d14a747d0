package schema

import (
	"slices"
)

// inheritanceGraph maps a type name to the names it extends.
type inheritanceGraph map[string][]string

func buildInheritanceGraph(defs []TypeDef) inheritanceGraph {
	graph := make(inheritanceGraph, len(defs))
	for _, d := range defs {
		if d.IsUnion() {
			continue
		}
		if graph[d.Name] == nil {
			graph[d.Name] = []string{}
		}
		graph[d.Name] = append(graph[d.Name], d.Extends...)
	}
	return graph
}

// findInheritanceCycles reports every strongly connected component of the
// extends relation that forms a cycle. Each cycle is returned as a closed
// path, e.g. ["A", "B", "A"], starting at its smallest name.
//
// The algorithm:
//  1. Build type → parents graph from extends clauses
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or a self-loop
func findInheritanceCycles(defs []TypeDef) [][]string {
	graph := buildInheritanceGraph(defs)

	var cycles [][]string
	for _, scc := range tarjanSCC(graph) {
		if len(scc) == 1 && !slices.Contains(graph[scc[0]], scc[0]) {
			continue
		}
		slices.Sort(scc)
		cycles = append(cycles, cyclePath(scc, graph))
	}
	slices.SortFunc(cycles, func(a, b []string) int {
		return compareNames(a[0], b[0])
	})
	return cycles
}

func compareNames(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order so results are deterministic.
func tarjanSCC(graph inheritanceGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, known := graph[w]; !known {
				continue
			}
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// cyclePath walks edges inside the SCC from its first member until the
// walk returns to it.
func cyclePath(scc []string, graph inheritanceGraph) []string {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}

	start := scc[0]
	path := []string{start}
	visited := map[string]bool{start: true}
	current := start
	for {
		next := ""
		for _, w := range graph[current] {
			if w == start {
				next = w
				break
			}
			if members[w] && !visited[w] && next == "" {
				next = w
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		visited[next] = true
		current = next
	}
	return path
}
