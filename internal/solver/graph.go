package solver

import (
	"sort"

	"github.com/envforge/resolve/internal/core"
)

// Node is one resolved component: the exact version pinned for it and
// every requirement path that reached it.
type Node struct {
	Component core.Component
	Version   core.Version
	Paths     []core.RequirementPath
}

// Graph is the output of a resolution: a flat arena of resolved nodes
// with a deterministic, dependencies-first installation order.
type Graph struct {
	nodes map[string]*Node
	order []string
}

// Node returns the resolved node for a PURL.
func (g *Graph) Node(purl string) (*Node, bool) {
	n, ok := g.nodes[purl]
	return n, ok
}

// Order returns component PURLs topologically sorted so dependencies
// precede dependents. Members of a dependency cycle are emitted in
// lexical order at the point the cycle blocks progress.
func (g *Graph) Order() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Nodes returns the resolved nodes in installation order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, purl := range g.order {
		out = append(out, g.nodes[purl])
	}
	return out
}

// Len returns the number of resolved components.
func (g *Graph) Len() int { return len(g.order) }

func buildGraph(arena map[string]*node, profile Profile) *Graph {
	g := &Graph{nodes: make(map[string]*Node, len(arena))}

	purls := make([]string, 0, len(arena))
	for purl, n := range arena {
		purls = append(purls, purl)
		g.nodes[purl] = &Node{
			Component: n.component,
			Version:   n.pinned.version,
			Paths:     n.paths,
		}
	}
	sort.Strings(purls)

	// Kahn's algorithm over dependency edges, smallest PURL first so the
	// order is total. A depends on B means B installs first.
	indegree := make(map[string]int, len(purls))
	dependents := make(map[string][]string, len(purls))
	for _, purl := range purls {
		indegree[purl] = 0
	}
	for _, purl := range purls {
		n := arena[purl]
		seen := make(map[string]bool)
		for _, edge := range followedEdges(n.pinned.version, profile, purl) {
			target := edge.TargetPURL
			if _, ok := arena[target]; !ok || seen[target] {
				continue
			}
			seen[target] = true
			indegree[purl]++
			dependents[target] = append(dependents[target], purl)
		}
	}

	ready := make([]string, 0, len(purls))
	for _, purl := range purls {
		if indegree[purl] == 0 {
			ready = append(ready, purl)
		}
	}

	remaining := len(purls)
	placed := make(map[string]bool, len(purls))
	for remaining > 0 {
		if len(ready) == 0 {
			// Cycle: emit the blocked remainder lexically. Cycles are
			// legal data, not an error.
			for _, purl := range purls {
				if !placed[purl] {
					g.order = append(g.order, purl)
					placed[purl] = true
					remaining--
				}
			}
			break
		}
		sort.Strings(ready)
		purl := ready[0]
		ready = ready[1:]

		g.order = append(g.order, purl)
		placed[purl] = true
		remaining--

		for _, dep := range dependents[purl] {
			indegree[dep]--
			if indegree[dep] == 0 && !placed[dep] {
				ready = append(ready, dep)
			}
		}
	}

	return g
}
