package compiler

import (
	"slices"

	"github.com/roach88/lineage/internal/ir"
)

// aliasGraph maps a variable name to the names it aliases. Each declared
// variable has at most one alias, but the graph form keeps the strongly
// connected component search general.
type aliasGraph struct {
	nodes []string // declaration order
	edges map[string][]string
}

// buildAliasGraph constructs the alias graph from variable declarations.
func buildAliasGraph(decls []ir.VarDecl) aliasGraph {
	g := aliasGraph{edges: make(map[string][]string)}
	for _, d := range decls {
		if _, ok := g.edges[d.Name]; !ok {
			g.nodes = append(g.nodes, d.Name)
			g.edges[d.Name] = []string{}
		}
		if d.Alias != "" {
			g.edges[d.Name] = append(g.edges[d.Name], d.Alias)
		}
	}
	return g
}

// aliasCycles returns every alias cycle as a path that starts and ends at
// the same variable, in declaration order of the first member.
//
// The algorithm:
//  1. Build the name → alias graph from the declarations
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or a self-alias as a cycle
func aliasCycles(decls []ir.VarDecl) [][]string {
	if len(decls) == 0 {
		return nil
	}
	g := buildAliasGraph(decls)

	var cycles [][]string
	for _, scc := range tarjanSCC(g) {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], g)) {
			cycles = append(cycles, reconstructCyclePath(scc, g))
		}
	}
	order := make(map[string]int, len(g.nodes))
	for i, n := range g.nodes {
		order[n] = i
	}
	slices.SortFunc(cycles, func(a, b []string) int { return order[a[0]] - order[b[0]] })
	return cycles
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, g aliasGraph) bool {
	return slices.Contains(g.edges[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Nodes are visited in declaration order so the result is deterministic.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(g aliasGraph) [][]string {
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

		for _, w := range g.edges[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root node: pop the stack and emit an SCC
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
			// Members in visit order, root first
			slices.Reverse(scc)
			sccs = append(sccs, scc)
		}
	}

	for _, node := range g.nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// reconstructCyclePath builds a cycle path from an SCC.
//
// Strategy: Start at first node in SCC, follow edges to other SCC members,
// continue until we return to start node.
func reconstructCyclePath(scc []string, g aliasGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	sccSet := make(map[string]bool)
	for _, node := range scc {
		sccSet[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range g.edges[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
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
