package state

// Merge folds one decoded update into the prior snapshot and returns a new
// snapshot. The prior snapshot is never modified, so a renderer holding a
// reference to it keeps seeing a consistent frame.
//
// Field semantics are shallow last-write-wins: a patch only overwrites the
// fields it names, and entities absent from the patch are carried over
// unchanged. Repeated delivery of the same patch is therefore harmless.
//
// A root record with a different id than the prior root marks a new
// kickoff: accumulated participants belong to the old execution and are
// dropped before the patch applies.
func Merge(prior *Snapshot, u *Update) *Snapshot {
	if u == nil {
		return prior
	}
	if prior == nil {
		prior = NewSnapshot()
	}

	root := u.Crew
	if root == nil {
		root = u.Flow
	}

	var next *Snapshot
	if root != nil && prior.Root != nil && root.ID != "" && root.ID != prior.Root.ID {
		next = NewSnapshot()
	} else {
		next = prior.clone()
	}

	if root != nil {
		next.Root = mergeRoot(next.Root, root)
	}

	next.applyParticipants(u.Agents, KindAgent)
	next.applyParticipants(u.Tasks, KindTask)
	next.applyParticipants(u.Steps, KindStep)

	return next
}

func mergeRoot(prior *Root, p *RootPatch) *Root {
	r := prior.clone()
	if r == nil {
		r = &Root{ID: p.ID}
	}
	if p.ID != "" {
		r.ID = p.ID
	}
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.Output != nil {
		r.Output = *p.Output
	}
	if p.Type != nil {
		r.Type = *p.Type
	}
	if p.StartedAt != nil {
		r.StartedAt = parseTimestamp(*p.StartedAt)
	}
	if p.CompletedAt != nil {
		r.CompletedAt = parseTimestamp(*p.CompletedAt)
	}
	if p.ExecutionOrder != nil {
		r.ExecutionOrder = append([]string(nil), (*p.ExecutionOrder)...)
	}
	return r
}

// applyParticipants upserts a batch of participant patches. The receiver
// must be a private clone; existing records are copied before they are
// touched so shared pointers from older snapshots stay intact.
func (s *Snapshot) applyParticipants(patches []ParticipantPatch, kind Kind) {
	for i := range patches {
		p := &patches[i]
		if p.ID == "" {
			continue
		}
		if idx, ok := s.index[p.ID]; ok {
			merged := s.participants[idx].clone()
			applyPatch(merged, p)
			s.participants[idx] = merged
			continue
		}
		fresh := &Participant{ID: p.ID, Kind: kind}
		applyPatch(fresh, p)
		s.index[p.ID] = len(s.participants)
		s.participants = append(s.participants, fresh)
	}
}

func applyPatch(dst *Participant, p *ParticipantPatch) {
	if p.Name != nil {
		dst.Name = *p.Name
	}
	if p.Role != nil {
		dst.Role = *p.Role
	}
	if p.Description != nil {
		dst.Description = *p.Description
	}
	if p.Status != nil {
		dst.Status = *p.Status
	}
	if p.Output != nil {
		dst.Output = *p.Output
	}
	if p.Error != nil {
		dst.Error = *p.Error
	}
	if p.AgentID != nil {
		dst.AgentID = *p.AgentID
	}
	if p.Dependencies != nil {
		dst.Dependencies = append([]string(nil), (*p.Dependencies)...)
	}
	if p.Inputs != nil {
		dst.Inputs = *p.Inputs
	}
	if p.Outputs != nil {
		dst.Outputs = *p.Outputs
	}
}
