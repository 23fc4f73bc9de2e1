// Package graph derives a renderable node/edge graph from a merged
// execution snapshot. Building is a pure function of the snapshot; edges
// are always re-derived, never stored.
package graph

import "github.com/crewlens/crewlens/internal/state"

// EdgeStyle is a purely visual weight derived from the source node's
// status. It never carries semantic state.
type EdgeStyle string

const (
	StyleDone   EdgeStyle = "done"
	StyleActive EdgeStyle = "active"
	StyleIdle   EdgeStyle = "idle"
)

// Size is a node's declared footprint in layout units.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Point is an assigned layout position (top-left corner of the footprint).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node wraps one entity for rendering. Pos is only meaningful after the
// layout engine has run; Placed reports whether it did.
type Node struct {
	ID     string     `json:"id"`
	Kind   state.Kind `json:"kind"`
	Root   bool       `json:"root"`
	Label  string     `json:"label"`
	Status string     `json:"status"`
	Size   Size       `json:"size"`
	Pos    Point      `json:"pos"`
	Placed bool       `json:"placed"`
}

// Edge connects two node ids that are both present in the same graph.
type Edge struct {
	From     string    `json:"from"`
	To       string    `json:"to"`
	Style    EdgeStyle `json:"style"`
	Animated bool      `json:"animated"`
}

// Graph is the builder output: nodes in draw order plus derived edges.
type Graph struct {
	Nodes []*Node `json:"nodes"`
	Edges []Edge  `json:"edges"`
}

// Node returns the node with the given id, or nil.
func (g *Graph) Node(id string) *Node {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// Declared footprints per entity kind. The exact numbers only matter for
// deterministic, overlap-free placement.
var (
	rootSize = Size{Width: 288, Height: 120}
	kindSize = map[state.Kind]Size{
		state.KindAgent: {Width: 256, Height: 140},
		state.KindTask:  {Width: 224, Height: 120},
		state.KindStep:  {Width: 224, Height: 120},
	}
)

func footprint(k state.Kind) Size {
	if s, ok := kindSize[k]; ok {
		return s
	}
	return Size{Width: 224, Height: 120}
}

// styleFor maps a source entity's status to the visual weight of its
// outgoing edge.
func styleFor(status string) (EdgeStyle, bool) {
	switch status {
	case state.StatusCompleted:
		return StyleDone, false
	case state.StatusRunning:
		return StyleActive, true
	default:
		return StyleIdle, false
	}
}
