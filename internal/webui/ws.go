package webui

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/crewlens/crewlens/internal/layout"
	"github.com/crewlens/crewlens/internal/session"
)

// wsControl is the client-sent control message on the WebSocket. Every
// field is optional; an empty field leaves that setting alone.
type wsControl struct {
	Execution string `json:"execution"`
	Direction string `json:"direction"` // "vertical" or "horizontal"
	Paused    bool   `json:"paused"`
}

// wsMessage is the server-sent message: a frame push or a keepalive.
type wsMessage struct {
	Type      string         `json:"type"` // "frame" or "keepalive"
	Selection string         `json:"selection,omitempty"`
	Frame     *session.Frame `json:"frame,omitempty"`
}

// handleWebSocket upgrades to WebSocket and pushes a frame whenever the
// watched session publishes one. The client steers with control
// messages: switching execution resubscribes, switching direction
// triggers a relayout, pausing suppresses pushes without dropping the
// subscription.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Allow any origin for localhost dev
	})
	if err != nil {
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()

	// Read control messages from the client in a goroutine.
	controlCh := make(chan wsControl, 4)
	go func() {
		defer close(controlCh)
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var c wsControl
			if json.Unmarshal(data, &c) == nil {
				select {
				case controlCh <- c:
				default:
				}
			}
		}
	}()

	var (
		watched     *session.Session
		notifyCh    <-chan struct{}
		unsubscribe func()
		paused      bool
	)
	defer func() {
		if unsubscribe != nil {
			unsubscribe()
		}
	}()

	watch := func(selection string) {
		if unsubscribe != nil {
			unsubscribe()
			unsubscribe = nil
		}
		watched = s.sessions.Get(selection)
		notifyCh, unsubscribe = watched.Subscribe()
		s.sendFrame(ctx, conn, watched)
	}

	// Initial selection: explicit query param, else whatever execution is
	// currently receiving updates.
	if sel := r.URL.Query().Get("execution"); sel != "" {
		watch(sel)
	} else if active, ok := s.sessions.Active(); ok {
		watch(active.Selection)
	}

	// Keepalive so the client can tell a quiet run from a dead server.
	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "server shutting down")
			return

		case c, ok := <-controlCh:
			if !ok {
				// Client disconnected.
				return
			}
			paused = c.Paused
			if c.Direction != "" && watched != nil {
				watched.SetDirection(layout.Direction(c.Direction))
			}
			if c.Execution != "" && (watched == nil || c.Execution != watched.Selection) {
				watch(c.Execution)
			}

		case <-notifyCh:
			if paused {
				continue
			}
			s.sendFrame(ctx, conn, watched)

		case <-keepalive.C:
			if paused {
				continue
			}
			if watched != nil {
				s.sendFrame(ctx, conn, watched)
			} else {
				s.sendWS(ctx, conn, wsMessage{Type: "keepalive"})
			}
		}
	}
}

// sendFrame pushes the session's latest frame, or a keepalive when no
// frame has been derived yet.
func (s *Server) sendFrame(ctx context.Context, conn *websocket.Conn, sess *session.Session) {
	msg := wsMessage{Type: "keepalive", Selection: sess.Selection}
	if frame := sess.Frame(); frame != nil {
		msg.Type = "frame"
		msg.Frame = frame
	}
	s.sendWS(ctx, conn, msg)
}

func (s *Server) sendWS(ctx context.Context, conn *websocket.Conn, msg wsMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	// Write errors mean the connection is gone; the main loop's reader
	// will notice and exit.
	_ = conn.Write(writeCtx, websocket.MessageText, data)
}
