// Package backend talks to the agent-orchestration backend: a REST API
// for crews, flows, and traces, and a WebSocket stream of execution
// updates. Everything time-valued is parsed from ISO-8601 at this
// boundary; the core packages never see raw timestamp strings.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/crewlens/crewlens/internal/traceview"
)

// Client is the HTTP side of the backend collaborator.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 15 * time.Second},
	}
}

// BaseURL reports the backend address the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Execution describes one crew or flow known to the backend.
type Execution struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Kind        string `json:"kind"` // "crew" or "flow"
	Description string `json:"description,omitempty"`
}

// Trace is one fetched execution trace with its spans promoted into the
// traceview model.
type Trace struct {
	ID          string            `json:"id"`
	ExecutionID string            `json:"execution_id"`
	Name        string            `json:"name"`
	Status      string            `json:"status"`
	Start       time.Time         `json:"start_time"`
	End         time.Time         `json:"end_time"`
	Spans       []*traceview.Span `json:"spans"`
}

// ListCrews fetches the crews the backend can run.
func (c *Client) ListCrews(ctx context.Context) ([]Execution, error) {
	var resp struct {
		Status string      `json:"status"`
		Detail string      `json:"detail"`
		Crews  []Execution `json:"crews"`
	}
	if err := c.getJSON(ctx, "/api/crews", &resp); err != nil {
		return nil, err
	}
	if resp.Status != "success" {
		return nil, fmt.Errorf("backend: list crews: %s", resp.Detail)
	}
	for i := range resp.Crews {
		resp.Crews[i].Kind = "crew"
	}
	return resp.Crews, nil
}

// ListFlows fetches the flows the backend can run.
func (c *Client) ListFlows(ctx context.Context) ([]Execution, error) {
	var resp struct {
		Status string      `json:"status"`
		Detail string      `json:"detail"`
		Flows  []Execution `json:"flows"`
	}
	if err := c.getJSON(ctx, "/api/flows", &resp); err != nil {
		return nil, err
	}
	if resp.Status != "success" {
		return nil, fmt.Errorf("backend: list flows: %s", resp.Detail)
	}
	for i := range resp.Flows {
		resp.Flows[i].Kind = "flow"
	}
	return resp.Flows, nil
}

// Traces fetches all traces recorded for one execution. Traces arrive as
// an immutable batch; callers re-derive views from them, never mutate.
func (c *Client) Traces(ctx context.Context, executionID string) ([]Trace, error) {
	var resp struct {
		Status string      `json:"status"`
		Detail string      `json:"detail"`
		Traces []wireTrace `json:"traces"`
	}
	path := "/api/traces/" + url.PathEscape(executionID)
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "success" {
		return nil, fmt.Errorf("backend: traces for %s: %s", executionID, resp.Detail)
	}

	out := make([]Trace, 0, len(resp.Traces))
	for _, wt := range resp.Traces {
		out = append(out, wt.promote())
	}
	return out, nil
}

// Ping checks backend reachability, for the doctor command.
func (c *Client) Ping(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	return c.getJSON(ctx, "/api/crews", &resp)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("backend: build request: %w", err)
	}
	res, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %s: %w", path, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("backend: %s: unexpected status %s", path, res.Status)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("backend: %s: decode response: %w", path, err)
	}
	return nil
}

// wireTrace is the backend's trace shape: the root record plus agent and
// task sub-records keyed by id.
type wireTrace struct {
	ID        string              `json:"id"`
	CrewID    string              `json:"crew_id"`
	FlowID    string              `json:"flow_id"`
	CrewName  string              `json:"crew_name"`
	Status    string              `json:"status"`
	StartTime string              `json:"start_time"`
	EndTime   string              `json:"end_time"`
	Agents    map[string]wireSpan `json:"agents"`
	Tasks     map[string]wireSpan `json:"tasks"`
}

type wireSpan struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	Description string `json:"description"`
	AgentID     string `json:"agent_id"`
	Status      string `json:"status"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Output      string `json:"output"`
}

// promote converts a wire trace into the traceview span model: one root
// span for the execution, one span per agent under the root, and one span
// per task under its agent (or the root when unassigned). Sub-records
// arrive as maps, so spans are sorted by start time then id to keep the
// result deterministic.
func (wt wireTrace) promote() Trace {
	execID := wt.CrewID
	if execID == "" {
		execID = wt.FlowID
	}
	name := wt.CrewName
	if name == "" {
		name = execID
	}

	tr := Trace{
		ID:          wt.ID,
		ExecutionID: execID,
		Name:        name,
		Status:      wt.Status,
		Start:       parseWireTime(wt.StartTime),
		End:         parseWireTime(wt.EndTime),
	}

	root := &traceview.Span{
		ID:     wt.ID,
		Name:   name,
		Status: wt.Status,
		Start:  tr.Start,
		End:    tr.End,
	}
	tr.Spans = append(tr.Spans, root)

	agents := make([]*traceview.Span, 0, len(wt.Agents))
	for id, a := range wt.Agents {
		agents = append(agents, &traceview.Span{
			ID:          orID(a.ID, id),
			Name:        orID(a.Name, a.Role),
			ServiceName: a.Role,
			ParentID:    root.ID,
			Status:      a.Status,
			Start:       parseWireTime(a.StartTime),
			End:         parseWireTime(a.EndTime),
		})
	}
	sortSpans(agents)
	tr.Spans = append(tr.Spans, agents...)

	known := make(map[string]bool, len(agents))
	for _, a := range agents {
		known[a.ID] = true
	}

	tasks := make([]*traceview.Span, 0, len(wt.Tasks))
	for id, tk := range wt.Tasks {
		parent := root.ID
		if tk.AgentID != "" && known[tk.AgentID] {
			parent = tk.AgentID
		}
		tasks = append(tasks, &traceview.Span{
			ID:       orID(tk.ID, id),
			Name:     orID(tk.Name, tk.Description),
			ParentID: parent,
			Status:   tk.Status,
			Start:    parseWireTime(tk.StartTime),
			End:      parseWireTime(tk.EndTime),
		})
	}
	sortSpans(tasks)
	tr.Spans = append(tr.Spans, tasks...)

	return tr
}

func sortSpans(spans []*traceview.Span) {
	sort.Slice(spans, func(i, j int) bool {
		if !spans[i].Start.Equal(spans[j].Start) {
			return spans[i].Start.Before(spans[j].Start)
		}
		return spans[i].ID < spans[j].ID
	})
}

func orID(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

// parseWireTime accepts the backend's ISO-8601 variants. The backend
// writes naive UTC timestamps without a zone suffix, so that layout is
// tried too. Unparseable or empty strings collapse to the zero time,
// which the span model reads as "still in flight".
func parseWireTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
