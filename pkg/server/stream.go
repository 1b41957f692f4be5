package server

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/jdziat/simple-report-runs/pkg/core"
)

const writeWait = 10 * time.Second

// StreamMessage is one frame of the event stream.
type StreamMessage struct {
	Type  string     `json:"type"`
	Event core.Event `json:"event"`
}

// handleStream upgrades to a websocket and forwards run events until the
// client goes away. Events a slow client cannot keep up with are dropped.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.AllowedOrigins,
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream ended")

	events := s.cfg.Orchestrator.Events()
	defer s.cfg.Orchestrator.Unsubscribe(events)

	// Clients only listen; CloseRead cancels ctx when they disconnect.
	ctx := conn.CloseRead(r.Context())
	s.log.Debug().Str("remote", r.RemoteAddr).Msg("event stream opened")

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case e := <-events:
			if err := s.writeEvent(ctx, conn, e); err != nil {
				s.log.Debug().Err(err).Msg("event stream closed")
				return
			}
		}
	}
}

func (s *Server) writeEvent(ctx context.Context, conn *websocket.Conn, e core.Event) error {
	wctx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	return wsjson.Write(wctx, conn, StreamMessage{Type: core.EventName(e), Event: e})
}
