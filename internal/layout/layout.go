// Package layout assigns deterministic 2D positions to a built graph.
// It is a small layered placement: nodes are ranked by graph distance
// from the root, ranks are stacked along the layout axis, and nodes
// within a rank keep the builder's order. Identical input always yields
// identical positions, and no two footprints ever overlap.
package layout

import (
	"log"

	"github.com/crewlens/crewlens/internal/graph"
)

// Direction selects the layout axis: Vertical stacks ranks top-down,
// Horizontal stacks them left-right.
type Direction string

const (
	Vertical   Direction = "vertical"
	Horizontal Direction = "horizontal"
)

// Fixed spacing between ranks and between nodes within a rank.
const (
	rankGap = 80.0
	nodeGap = 48.0
)

// Bounds is the overall extent of the placed graph, for viewport fitting.
type Bounds struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Assign populates every node's position in place and returns the overall
// bounds. The graph is expected to be freshly built; positions from a
// previous pass are overwritten.
//
// Cycles cannot come out of the chain edge derivation, but a back-edge in
// a hand-made graph must not hang the ranking: the visited set breaks it
// with a logged warning.
func Assign(g *graph.Graph, dir Direction) Bounds {
	if g == nil || len(g.Nodes) == 0 {
		return Bounds{}
	}

	ranks := rankNodes(g)

	// Group nodes by rank, preserving builder order within each rank.
	maxRank := 0
	for _, r := range ranks {
		if r > maxRank {
			maxRank = r
		}
	}
	rows := make([][]*graph.Node, maxRank+1)
	for _, n := range g.Nodes {
		r := ranks[n.ID]
		rows[r] = append(rows[r], n)
	}

	parents := singleParents(g)

	// Walk ranks along the main axis. Within a rank, nodes are placed
	// sequentially along the cross axis; a rank holding a single node
	// with a single parent is centered under that parent instead, so
	// chains with differing footprints stay visually aligned.
	mainOffset := 0.0
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		rankExtent := 0.0
		crossOffset := 0.0
		for _, n := range row {
			main, cross := axes(n.Size, dir)
			setPos(n, dir, mainOffset, crossOffset)
			crossOffset += cross + nodeGap
			if main > rankExtent {
				rankExtent = main
			}
		}
		if len(row) == 1 {
			if parent := parents[row[0].ID]; parent != nil && parent.Placed {
				centerOnNeighbor(row[0], parent, dir)
			}
		}
		for _, n := range row {
			n.Placed = true
		}
		mainOffset += rankExtent + rankGap
	}

	normalize(g)
	return measure(g)
}

// rankNodes assigns each node its graph distance from a root. Roots are
// nodes with no incoming edges; an all-cycle graph falls back to the
// first node.
func rankNodes(g *graph.Graph) map[string]int {
	incoming := make(map[string]int, len(g.Nodes))
	adjacent := make(map[string][]string, len(g.Nodes))
	for _, n := range g.Nodes {
		incoming[n.ID] = 0
	}
	for _, e := range g.Edges {
		adjacent[e.From] = append(adjacent[e.From], e.To)
		incoming[e.To]++
	}

	ranks := make(map[string]int, len(g.Nodes))
	visited := make(map[string]bool, len(g.Nodes))

	var frontier []string
	for _, n := range g.Nodes {
		if incoming[n.ID] == 0 {
			frontier = append(frontier, n.ID)
			ranks[n.ID] = 0
			visited[n.ID] = true
		}
	}
	if len(frontier) == 0 {
		// Every node has an incoming edge: the graph is one big cycle.
		first := g.Nodes[0].ID
		log.Printf("layout: graph has no entry node, breaking cycle at %q", first)
		frontier = []string{first}
		ranks[first] = 0
		visited[first] = true
	}

	for len(frontier) > 0 {
		var next []string
		for _, id := range frontier {
			for _, to := range adjacent[id] {
				if visited[to] {
					// Back-edge into an already ranked node; ignore it
					// rather than loop.
					if ranks[to] <= ranks[id] {
						log.Printf("layout: ignoring back-edge %s->%s", id, to)
					}
					continue
				}
				visited[to] = true
				ranks[to] = ranks[id] + 1
				next = append(next, to)
			}
		}
		frontier = next
	}

	// Unreachable nodes (possible mid-stream, before their edges arrive)
	// land on rank 0 so they still get a deterministic slot.
	for _, n := range g.Nodes {
		if !visited[n.ID] {
			ranks[n.ID] = 0
		}
	}
	return ranks
}

// singleParents maps a node id to its parent node when it has exactly one.
func singleParents(g *graph.Graph) map[string]*graph.Node {
	count := make(map[string]int)
	parent := make(map[string]*graph.Node)
	for _, e := range g.Edges {
		count[e.To]++
		parent[e.To] = g.Node(e.From)
	}
	for id, c := range count {
		if c != 1 {
			delete(parent, id)
		}
	}
	return parent
}

// axes splits a footprint into (main, cross) extents for the direction.
func axes(s graph.Size, dir Direction) (main, cross float64) {
	if dir == Horizontal {
		return s.Width, s.Height
	}
	return s.Height, s.Width
}

func setPos(n *graph.Node, dir Direction, main, cross float64) {
	if dir == Horizontal {
		n.Pos = graph.Point{X: main, Y: cross}
	} else {
		n.Pos = graph.Point{X: cross, Y: main}
	}
}

// centerOnNeighbor aligns a node's cross-axis center with its single
// parent's center. Left-aligning instead would visibly stagger chains
// whose footprints differ.
func centerOnNeighbor(n, neighbor *graph.Node, dir Direction) {
	if dir == Horizontal {
		center := neighbor.Pos.Y + neighbor.Size.Height/2
		n.Pos.Y = center - n.Size.Height/2
	} else {
		center := neighbor.Pos.X + neighbor.Size.Width/2
		n.Pos.X = center - n.Size.Width/2
	}
}

// normalize shifts everything so the minimum coordinate is zero on both
// axes. Centering a wide child under a narrow parent can push X negative.
func normalize(g *graph.Graph) {
	minX, minY := 0.0, 0.0
	for _, n := range g.Nodes {
		if n.Pos.X < minX {
			minX = n.Pos.X
		}
		if n.Pos.Y < minY {
			minY = n.Pos.Y
		}
	}
	if minX == 0 && minY == 0 {
		return
	}
	for _, n := range g.Nodes {
		n.Pos.X -= minX
		n.Pos.Y -= minY
	}
}

func measure(g *graph.Graph) Bounds {
	var b Bounds
	for _, n := range g.Nodes {
		if x := n.Pos.X + n.Size.Width; x > b.Width {
			b.Width = x
		}
		if y := n.Pos.Y + n.Size.Height; y > b.Height {
			b.Height = y
		}
	}
	return b
}
