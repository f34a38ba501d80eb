package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shii9/reconkit/internal/batch"
)

const (
	writeWait           = 10 * time.Second
	pingPeriod          = 30 * time.Second
	defaultStreamBuffer = 512
)

// StreamMessage is one event on the batch stream.
type StreamMessage struct {
	Type      string        `json:"type"` // "snapshot", "update", "complete"
	Batch     *batch.State  `json:"batch,omitempty"`
	Update    *batch.Update `json:"update,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleStream sends the current snapshot, then every slot update for the
// batch, then a complete event. A newer batch, or a subscription that fell
// behind, restarts the stream with a fresh snapshot.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	tracker := s.runner.Tracker()
	sub := tracker.Subscribe(s.streamBuffer)
	defer sub.Close()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Str("remote_addr", r.RemoteAddr).Msg("Failed to upgrade to WebSocket")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go readUntilClosed(conn, cancel)

	var gen, seq uint64

	// resync sends a fresh snapshot and reports whether the stream is done.
	resync := func() bool {
		state := tracker.Snapshot()
		gen, seq = state.Generation, state.Seq
		if err := send(conn, StreamMessage{Type: "snapshot", Batch: &state}); err != nil {
			return true
		}
		if state.ID != "" && !state.Running {
			complete(conn, &state)
			return true
		}
		return false
	}

	if resync() {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-sub.Lagged:
			s.logger.Debug().Str("remote_addr", r.RemoteAddr).Msg("Stream lagging, resyncing")
			if resync() {
				return
			}
		case u, ok := <-sub.Updates:
			if !ok {
				return
			}
			if u.Generation < gen || (u.Generation == gen && u.Seq <= seq) {
				continue
			}
			if u.Generation > gen {
				if resync() {
					return
				}
				continue
			}
			seq = u.Seq
			if u.Done {
				final := tracker.Snapshot()
				if final.Generation == gen {
					complete(conn, &final)
					return
				}
				continue
			}
			if err := send(conn, StreamMessage{Type: "update", Update: &u}); err != nil {
				s.logger.Debug().Err(err).Str("remote_addr", r.RemoteAddr).Msg("Stream write failed")
				return
			}
		}
	}
}

// complete sends the final state followed by a normal close frame.
func complete(conn *websocket.Conn, state *batch.State) {
	if err := send(conn, StreamMessage{Type: "complete", Batch: state}); err != nil {
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "complete"),
		time.Now().Add(writeWait))
}

func send(conn *websocket.Conn, msg StreamMessage) error {
	msg.Timestamp = time.Now()
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}

// readUntilClosed drains client frames so close and pong frames are handled.
func readUntilClosed(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
