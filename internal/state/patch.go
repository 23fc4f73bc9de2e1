package state

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// ParseError reports a malformed inbound update message. The snapshot is
// left untouched when one of these occurs; callers surface it as a
// non-fatal banner and keep the session running.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse update: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("parse update: %s", e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// RootPatch is a partial update for the crew/flow record. Nil fields mean
// "no change", never "clear".
type RootPatch struct {
	ID             string    `json:"id"`
	Name           *string   `json:"name"`
	Status         *string   `json:"status"`
	Output         *string   `json:"output"`
	Type           *string   `json:"type"`
	StartedAt      *string   `json:"started_at"`
	CompletedAt    *string   `json:"completed_at"`
	ExecutionOrder *[]string `json:"execution_order"`
}

// ParticipantPatch is a partial update for one agent, task, or step.
type ParticipantPatch struct {
	ID           string          `json:"id"`
	Name         *string         `json:"name"`
	Role         *string         `json:"role"`
	Description  *string         `json:"description"`
	Status       *string         `json:"status"`
	Output       *string         `json:"output"`
	Error        *string         `json:"error"`
	AgentID      *string         `json:"agent_id"`
	Dependencies *[]string       `json:"dependencies"`
	Inputs       *map[string]any `json:"inputs"`
	Outputs      *map[string]any `json:"outputs"`
}

// Update is one decoded patch message from the backend stream. Any subset
// of the fields may be present; unknown fields in the raw message are
// ignored for forward compatibility.
type Update struct {
	Crew   *RootPatch         `json:"crew"`
	Flow   *RootPatch         `json:"flow"`
	Agents []ParticipantPatch `json:"agents"`
	Tasks  []ParticipantPatch `json:"tasks"`
	Steps  []ParticipantPatch `json:"steps"`
}

// RootID returns the execution id named by the patch, or "" when the
// message carries no root record.
func (u *Update) RootID() string {
	if u.Crew != nil && u.Crew.ID != "" {
		return u.Crew.ID
	}
	if u.Flow != nil && u.Flow.ID != "" {
		return u.Flow.ID
	}
	return ""
}

// DecodeUpdate parses one raw message from the transport. Liveness pings
// (type == "connection_test") decode to nil with no error; they must not
// be folded into the snapshot. A malformed payload yields a *ParseError.
func DecodeUpdate(data []byte) (*Update, error) {
	if !gjson.ValidBytes(data) {
		return nil, &ParseError{Reason: "invalid JSON"}
	}
	if gjson.GetBytes(data, "type").String() == "connection_test" {
		return nil, nil
	}

	var u Update
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, &ParseError{Reason: "unexpected message shape", Err: err}
	}
	return &u, nil
}

// parseTimestamp converts an ISO-8601 string from the wire into a
// time.Time. The core never sees raw timestamp strings; anything
// unparseable collapses to the zero time.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
