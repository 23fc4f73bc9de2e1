package backend

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/coder/websocket"
)

// StreamState is the per-connection lifecycle. The core pipeline is
// stateless; this is the only state machine in the system.
type StreamState string

const (
	StateDisconnected StreamState = "disconnected"
	StateConnecting   StreamState = "connecting"
	StateConnected    StreamState = "connected"
)

// Stream is a WebSocket subscription to the backend's execution updates.
// Messages are delivered to the handler in arrival order from a single
// read loop, which is the FIFO guarantee the merger depends on.
// Reconnect/backoff policy is deliberately not here; the owner decides
// whether and when to dial again.
type Stream struct {
	url  string
	conn *websocket.Conn

	mu    sync.RWMutex
	state StreamState
}

// NewStream prepares a stream for the given ws:// or wss:// URL.
func NewStream(url string) *Stream {
	return &Stream{url: url, state: StateDisconnected}
}

// State returns the current connection state.
func (st *Stream) State() StreamState {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.state
}

func (st *Stream) setState(s StreamState) {
	st.mu.Lock()
	st.state = s
	st.mu.Unlock()
}

// Dial opens the connection.
func (st *Stream) Dial(ctx context.Context) error {
	st.setState(StateConnecting)
	conn, _, err := websocket.Dial(ctx, st.url, nil)
	if err != nil {
		st.setState(StateDisconnected)
		return fmt.Errorf("stream: dial %s: %w", st.url, err)
	}
	// Update payloads can carry large task outputs.
	conn.SetReadLimit(16 << 20)
	st.conn = conn
	st.setState(StateConnected)
	log.Printf("stream: connected to %s", st.url)
	return nil
}

// Run reads messages until the context is cancelled or the connection
// drops, handing each raw payload to handle in order. Handler errors are
// logged and skipped: one bad message must not tear down the session.
func (st *Stream) Run(ctx context.Context, handle func([]byte) error) error {
	if st.conn == nil {
		return fmt.Errorf("stream: not connected")
	}
	defer st.setState(StateDisconnected)

	for {
		_, data, err := st.conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("stream: read: %w", err)
		}
		if err := handle(data); err != nil {
			log.Printf("stream: handler rejected message: %v", err)
		}
	}
}

// Close shuts the connection down.
func (st *Stream) Close() {
	if st.conn != nil {
		_ = st.conn.Close(websocket.StatusNormalClosure, "client shutting down")
	}
	st.setState(StateDisconnected)
}
