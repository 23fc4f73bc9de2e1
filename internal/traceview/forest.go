package traceview

// BuildForest partitions spans into parent-linked trees. A span whose
// ParentID is empty or points outside the batch is a root. Sibling order
// preserves the original relative order of the input.
//
// The build is two linear passes: one to index by id, one to attach.
// Because each span attaches to at most one parent by id, a declared
// parent cycle (a->b->a) cannot produce a cyclic tree; the second span
// simply hangs off the first wherever the first ended up. That property
// is what lets Flatten recurse without a visited set.
func BuildForest(spans []*Span) []*Span {
	if len(spans) == 0 {
		return nil
	}

	byID := make(map[string]*Span, len(spans))
	for _, s := range spans {
		s.Children = nil // derived state; rebuild from scratch
		byID[s.ID] = s
	}

	var roots []*Span
	for _, s := range spans {
		if s.ParentID == "" {
			roots = append(roots, s)
			continue
		}
		parent, ok := byID[s.ParentID]
		if !ok || parent == s {
			// Unresolvable parent: promote to root rather than drop.
			roots = append(roots, s)
			continue
		}
		parent.Children = append(parent.Children, s)
	}
	return roots
}

// ExpandState tracks which spans show their children. It is the only
// long-lived mutable state in the trace viewers: toggles persist across
// re-flattens within one view session, and the first flatten seeds every
// span that has children as expanded.
type ExpandState struct {
	expanded map[string]bool
	seeded   bool
}

// NewExpandState returns an unseeded expand state for a fresh view.
func NewExpandState() *ExpandState {
	return &ExpandState{expanded: make(map[string]bool)}
}

// Toggle flips one span's expansion.
func (e *ExpandState) Toggle(id string) {
	e.expanded[id] = !e.expanded[id]
}

// Expanded reports whether a span currently shows its children.
func (e *ExpandState) Expanded(id string) bool {
	return e.expanded[id]
}

func (e *ExpandState) seed(roots []*Span) {
	var walk func(*Span)
	walk = func(s *Span) {
		if len(s.Children) > 0 {
			e.expanded[s.ID] = true
		}
		for _, c := range s.Children {
			walk(c)
		}
	}
	for _, r := range roots {
		walk(r)
	}
	e.seeded = true
}

// Flatten emits the forest as an ordered, depth-tagged row list via
// depth-first pre-order. Children of collapsed spans are skipped. Depth is
// recomputed from the live forest on every call; whatever the input spans
// carried is overwritten.
func Flatten(roots []*Span, ex *ExpandState) []*Span {
	if ex == nil {
		ex = NewExpandState()
	}
	if !ex.seeded {
		ex.seed(roots)
	}

	var rows []*Span
	var walk func(s *Span, depth int)
	walk = func(s *Span, depth int) {
		s.Depth = depth
		rows = append(rows, s)
		if !ex.Expanded(s.ID) {
			return
		}
		for _, c := range s.Children {
			walk(c, depth+1)
		}
	}
	for _, r := range roots {
		walk(r, 0)
	}
	return rows
}
