// Package state holds the canonical execution snapshot and the merge logic
// that folds streamed partial updates into it. Everything here is
// immutable-in, immutable-out: Merge never modifies its inputs, so a caller
// can keep rendering the previous snapshot while the next one is computed.
package state

import "time"

// Kind identifies what a participant is. Crews carry agents and tasks,
// flows carry steps.
type Kind string

const (
	KindAgent Kind = "agent"
	KindTask  Kind = "task"
	KindStep  Kind = "step"
)

// Agent statuses as emitted by the backend event listener.
const (
	AgentInitializing = "initializing"
	AgentWaiting      = "waiting"
	AgentRunning      = "running"
	AgentCompleted    = "completed"
)

// Task and step statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Root is the crew or flow record that owns an execution.
type Root struct {
	ID          string
	Name        string
	Type        string // "crew" or "flow"
	Status      string
	Output      string
	StartedAt   time.Time
	CompletedAt time.Time

	// ExecutionOrder is the backend's declared participant order, when it
	// sends one. Empty means "derive the order yourself".
	ExecutionOrder []string
}

func (r *Root) clone() *Root {
	if r == nil {
		return nil
	}
	c := *r
	c.ExecutionOrder = append([]string(nil), r.ExecutionOrder...)
	return &c
}

// Participant is a non-root entity: an agent, a task, or a flow step.
// One struct covers all three kinds; fields that do not apply to a kind
// stay at their zero value.
type Participant struct {
	ID           string
	Kind         Kind
	Name         string
	Role         string // agents only
	Description  string
	Status       string
	Output       string
	Error        string         // steps only
	AgentID      string         // tasks only: the agent this task is assigned to
	Dependencies []string       // steps only: ids of upstream steps
	Inputs       map[string]any // steps only
	Outputs      map[string]any // steps only
}

func (p *Participant) clone() *Participant {
	c := *p
	c.Dependencies = append([]string(nil), p.Dependencies...)
	if p.Inputs != nil {
		c.Inputs = make(map[string]any, len(p.Inputs))
		for k, v := range p.Inputs {
			c.Inputs[k] = v
		}
	}
	if p.Outputs != nil {
		c.Outputs = make(map[string]any, len(p.Outputs))
		for k, v := range p.Outputs {
			c.Outputs[k] = v
		}
	}
	return &c
}
