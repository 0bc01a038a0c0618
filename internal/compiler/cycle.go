package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/dynq/internal/ir"
)

// CycleError is an embedded type that contains itself, directly or
// through other embedded types.
type CycleError struct {
	Path    []string `json:"path"` // ["A", "B", "A"]
	Message string   `json:"message"`
}

// AnalyzeEmbeddedCycles finds embedded types whose values would be
// infinitely deep.
//
// The algorithm:
//  1. Build the embedded → embedded containment graph
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or a self-loop
//
// Results are deterministic: nodes are visited in name order.
func AnalyzeEmbeddedCycles(schema *ir.Schema) []CycleError {
	if len(schema.Embedded) == 0 {
		return nil
	}

	graph := buildContainmentGraph(schema)
	var cycles []CycleError
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			cycles = append(cycles, sccToCycle(scc, graph))
		}
	}
	return cycles
}

// containmentGraph maps an embedded type to the embedded types its
// properties hold.
type containmentGraph map[string][]string

func buildContainmentGraph(schema *ir.Schema) containmentGraph {
	graph := make(containmentGraph, len(schema.Embedded))
	for name, emb := range schema.Embedded {
		graph[name] = []string{}
		for _, p := range emb.Properties {
			t := p.Type
			if t.Kind == ir.KindCollection && t.Elem != nil {
				t = *t.Elem
			}
			if t.Kind != ir.KindEmbedded {
				continue
			}
			if _, ok := schema.Embedded[t.Embedded]; ok && !slices.Contains(graph[name], t.Embedded) {
				graph[name] = append(graph[name], t.Embedded)
			}
		}
		slices.Sort(graph[name])
	}
	return graph
}

func hasSelfLoop(node string, graph containmentGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph containmentGraph) [][]string {
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
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root node: pop its component
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
			slices.Sort(scc)
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

func sccToCycle(scc []string, graph containmentGraph) CycleError {
	path := reconstructCyclePath(scc, graph)
	return CycleError{
		Path:    path,
		Message: fmt.Sprintf("embedded type contains itself: %s", strings.Join(path, " → ")),
	}
}

// reconstructCyclePath walks edges inside the SCC from its first node
// until it returns to it.
func reconstructCyclePath(scc []string, graph containmentGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	members := make(map[string]bool, len(scc))
	for _, node := range scc {
		members[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if members[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
