package graph

import (
	"log"
	"sort"

	"github.com/crewlens/crewlens/internal/state"
)

// OrderPolicy controls participant ordering. Explicit is usually the
// root's declared execution order; when it is empty (or only covers some
// participants) the builder falls back to association order and finally
// to snapshot insertion order.
type OrderPolicy struct {
	Explicit []string
}

// PolicyFrom derives the order policy a snapshot declares for itself.
func PolicyFrom(snap *state.Snapshot) OrderPolicy {
	if snap == nil || snap.Root == nil {
		return OrderPolicy{}
	}
	return OrderPolicy{Explicit: snap.Root.ExecutionOrder}
}

// Build derives the node/edge graph for a snapshot.
//
// Ordering is a three-tier fallback, applied consistently so the same
// snapshot always yields the same graph:
//
//  1. ids named by the explicit policy, in policy order
//  2. participants referenced by a secondary entity (an agent inherits the
//     position of the earliest task assigned to it; a step inherits the
//     position of the earliest step depending on it)
//  3. snapshot insertion order
//
// Edges are a sequential chain through the ordered participants, with one
// edge from the root to the first participant when a root exists. Unknown
// ids in the policy are logged and skipped; they shrink the graph, they
// never break it.
func Build(snap *state.Snapshot, policy OrderPolicy) *Graph {
	g := &Graph{}
	if snap == nil {
		return g
	}

	parts := snap.Participants()
	ordered := orderParticipants(snap, parts, policy)

	if snap.Root != nil {
		label := snap.Root.Name
		if label == "" {
			label = snap.Root.ID
		}
		g.Nodes = append(g.Nodes, &Node{
			ID:     snap.Root.ID,
			Root:   true,
			Label:  label,
			Status: snap.Root.Status,
			Size:   rootSize,
		})
	}

	for _, p := range ordered {
		g.Nodes = append(g.Nodes, &Node{
			ID:     p.ID,
			Kind:   p.Kind,
			Label:  participantLabel(p),
			Status: p.Status,
			Size:   footprint(p.Kind),
		})
	}

	if len(ordered) == 0 {
		return g
	}

	if snap.Root != nil {
		style, animated := styleFor(snap.Root.Status)
		g.Edges = append(g.Edges, Edge{
			From:     snap.Root.ID,
			To:       ordered[0].ID,
			Style:    style,
			Animated: animated,
		})
	}
	for i := 0; i+1 < len(ordered); i++ {
		style, animated := styleFor(ordered[i].Status)
		g.Edges = append(g.Edges, Edge{
			From:     ordered[i].ID,
			To:       ordered[i+1].ID,
			Style:    style,
			Animated: animated,
		})
	}
	return g
}

// orderParticipants applies the three-tier policy. The sort key is
// (tier, position-within-tier); sorting is stable over insertion order so
// ties cannot reshuffle between rebuilds.
func orderParticipants(snap *state.Snapshot, parts []*state.Participant, policy OrderPolicy) []*state.Participant {
	type keyed struct {
		p    *state.Participant
		tier int
		pos  int
	}

	// Tier 1: explicit order, skipping ids the snapshot does not know.
	explicit := make(map[string]int, len(policy.Explicit))
	next := 0
	for _, id := range policy.Explicit {
		if _, ok := snap.Participant(id); !ok {
			log.Printf("graph: execution order references unknown id %q, skipping", id)
			continue
		}
		if _, dup := explicit[id]; dup {
			continue
		}
		explicit[id] = next
		next++
	}

	// Tier 2: first association. Scan secondary entities in insertion
	// order; the earliest reference wins.
	assoc := make(map[string]int)
	for i, p := range parts {
		if p.Kind == state.KindTask && p.AgentID != "" {
			if _, seen := assoc[p.AgentID]; !seen {
				assoc[p.AgentID] = i
			}
		}
		for _, dep := range p.Dependencies {
			if _, seen := assoc[dep]; !seen {
				assoc[dep] = i
			}
		}
	}

	keys := make([]keyed, len(parts))
	for i, p := range parts {
		k := keyed{p: p, tier: 3, pos: i}
		if pos, ok := explicit[p.ID]; ok {
			k.tier, k.pos = 1, pos
		} else if pos, ok := assoc[p.ID]; ok {
			k.tier, k.pos = 2, pos
		}
		keys[i] = k
	}

	sort.SliceStable(keys, func(i, j int) bool {
		if keys[i].tier != keys[j].tier {
			return keys[i].tier < keys[j].tier
		}
		return keys[i].pos < keys[j].pos
	})

	out := make([]*state.Participant, len(keys))
	for i, k := range keys {
		out[i] = k.p
	}
	return out
}

func participantLabel(p *state.Participant) string {
	switch {
	case p.Name != "":
		return p.Name
	case p.Role != "":
		return p.Role
	case p.Description != "":
		return p.Description
	default:
		return p.ID
	}
}
