package schema

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/cuemby/caravan/pkg/types"
)

// BuildGraph builds the dependency graph from introspected schemas.
// Nodes are qualified table names; edges run parent -> child (the
// parent must be written first). Every declared FK yields one edge;
// duplicate FKs between the same pair collapse to a single edge.
// Child lists are kept sorted so identical input produces identical
// output.
func BuildGraph(tables []types.TableSchema) map[string][]string {
	graph := make(map[string][]string)
	seen := make(map[string]map[string]bool)

	addNode := func(name string) {
		if _, ok := graph[name]; !ok {
			graph[name] = []string{}
		}
	}

	for i := range tables {
		child := tables[i].QualifiedName()
		addNode(child)
		for _, fk := range tables[i].ForeignKeys {
			parent := fk.ToTable
			addNode(parent)
			if seen[parent] == nil {
				seen[parent] = make(map[string]bool)
			}
			if seen[parent][child] {
				continue
			}
			seen[parent][child] = true
			graph[parent] = append(graph[parent], child)
		}
	}

	for node := range graph {
		sort.Strings(graph[node])
	}
	return graph
}

// FindCycles enumerates the simple cycles of the graph via DFS. Each
// cycle is reported exactly once, canonicalized by rotating its
// lexically smallest node to the front; the first node is repeated as
// the last element.
func FindCycles(graph map[string][]string) [][]string {
	nodes := sortedNodes(graph)

	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var path []string
	var cycles [][]string
	reported := make(map[string]bool)

	var dfs func(node string)
	dfs = func(node string) {
		visited[node] = true
		onStack[node] = true
		path = append(path, node)

		for _, child := range graph[node] {
			if !visited[child] {
				dfs(child)
			} else if onStack[child] {
				start := -1
				for i, p := range path {
					if p == child {
						start = i
						break
					}
				}
				if start >= 0 {
					cycle := canonicalizeCycle(path[start:])
					key := strings.Join(cycle, "|")
					if !reported[key] {
						reported[key] = true
						cycles = append(cycles, cycle)
					}
				}
			}
		}

		onStack[node] = false
		path = path[:len(path)-1]
	}

	for _, node := range nodes {
		if !visited[node] {
			dfs(node)
		}
	}
	return cycles
}

// canonicalizeCycle rotates the cycle so its lexically smallest node
// comes first, then closes it by appending the first node again.
func canonicalizeCycle(cycle []string) []string {
	smallest := 0
	for i := 1; i < len(cycle); i++ {
		if cycle[i] < cycle[smallest] {
			smallest = i
		}
	}
	out := make([]string, 0, len(cycle)+1)
	out = append(out, cycle[smallest:]...)
	out = append(out, cycle[:smallest]...)
	out = append(out, out[0])
	return out
}

// SuggestBreakPoint picks the cycle node with the fewest outgoing
// edges in the full graph (ties broken lexically) and directs the
// extractor to defer FK validation along the edge to its successor.
func SuggestBreakPoint(cycle []string, graph map[string][]string) types.BreakPoint {
	// Exclude the closing duplicate
	members := cycle[:len(cycle)-1]

	breakFrom := ""
	minDeg := -1
	for _, node := range members {
		deg := len(graph[node])
		if minDeg < 0 || deg < minDeg || (deg == minDeg && node < breakFrom) {
			minDeg = deg
			breakFrom = node
		}
	}

	breakTo := members[0]
	for i, node := range members {
		if node == breakFrom {
			breakTo = members[(i+1)%len(members)]
			break
		}
	}

	return types.BreakPoint{
		BreakFrom: breakFrom,
		BreakTo:   breakTo,
		Strategy:  fmt.Sprintf("Extract %s first without validating FK from %s", breakTo, breakFrom),
		Impact:    fmt.Sprintf("Affects %d downstream tables", minDeg),
	}
}

// TopologicalOrder runs Kahn's algorithm over the graph. When the
// queue drains with nodes remaining, a cycle exists; the declared
// break targets are released first (then the lexically smallest
// remaining node) so the order still covers every node.
func TopologicalOrder(graph map[string][]string, breakTargets []string) (order []string, hasCycle bool) {
	inDegree := make(map[string]int)
	for node := range graph {
		if _, ok := inDegree[node]; !ok {
			inDegree[node] = 0
		}
		for _, child := range graph[node] {
			inDegree[child]++
		}
	}

	var queue []string
	for node, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, node)
		}
	}
	sort.Strings(queue)

	processed := make(map[string]bool, len(inDegree))

	for len(order) < len(inDegree) {
		if len(queue) == 0 {
			hasCycle = true
			next := nextBreak(breakTargets, inDegree, processed)
			if next == "" {
				break
			}
			inDegree[next] = 0
			queue = append(queue, next)
		}

		current := queue[0]
		queue = queue[1:]
		if processed[current] {
			continue
		}
		processed[current] = true
		order = append(order, current)

		for _, child := range graph[current] {
			inDegree[child]--
			if inDegree[child] <= 0 && !processed[child] {
				queue = append(queue, child)
			}
		}
		sort.Strings(queue)
	}
	return order, hasCycle
}

// nextBreak picks the node to release when Kahn stalls: a declared
// break target if one is still pending, otherwise the lexically
// smallest unprocessed node.
func nextBreak(breakTargets []string, inDegree map[string]int, processed map[string]bool) string {
	targets := append([]string(nil), breakTargets...)
	sort.Strings(targets)
	for _, t := range targets {
		if _, ok := inDegree[t]; ok && !processed[t] {
			return t
		}
	}

	var remaining []string
	for node := range inDegree {
		if !processed[node] {
			remaining = append(remaining, node)
		}
	}
	if len(remaining) == 0 {
		return ""
	}
	sort.Strings(remaining)
	return remaining[0]
}

// WriteDOT renders the graph as GraphViz DOT for visualization. Node
// labels are bare table names.
func WriteDOT(graph map[string][]string, w io.Writer) error {
	if _, err := fmt.Fprintln(w, "digraph dependencies {"); err != nil {
		return err
	}
	fmt.Fprintln(w, "  rankdir=LR;")
	fmt.Fprintln(w, "  node [shape=box];")
	fmt.Fprintln(w)

	for _, parent := range sortedNodes(graph) {
		for _, child := range graph[parent] {
			fmt.Fprintf(w, "  %q -> %q;\n", lastPart(parent), lastPart(child))
		}
	}

	_, err := fmt.Fprintln(w, "}")
	return err
}

func lastPart(qualified string) string {
	parts := strings.Split(qualified, ".")
	return parts[len(parts)-1]
}

func sortedNodes(graph map[string][]string) []string {
	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	return nodes
}
