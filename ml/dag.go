package ml

import "fmt"

// Edge points from a node to one of its children through a labelled connection.
type Edge struct {
	Child int
	Label int
}

// DAG is a topologically sorted graph used by recursive layers. Node 0 is the
// root and children always carry higher indices than their parents, so
// visiting indices in decreasing order visits every child before its parent.
type DAG struct {
	adj [][]Edge
}

func NewDAG(size int) *DAG {
	return &DAG{adj: make([][]Edge, size)}
}

func (g *DAG) Len() int { return len(g.adj) }

func (g *DAG) Children(n int) []Edge { return g.adj[n] }

// AddEdge records child as a child of parent reached through label.
func (g *DAG) AddEdge(parent, child, label int) {
	g.adj[parent] = append(g.adj[parent], Edge{Child: child, Label: label})
}

// Validate checks the ordering every recursive traversal depends on.
func (g *DAG) Validate() error {
	for n, edges := range g.adj {
		for _, e := range edges {
			if e.Child <= n || e.Child >= len(g.adj) {
				return fmt.Errorf("ml: edge %d -> %d breaks topological order of %d nodes", n, e.Child, len(g.adj))
			}
			if e.Label < 0 {
				return fmt.Errorf("ml: edge %d -> %d has negative label %d", n, e.Child, e.Label)
			}
		}
	}
	return nil
}
