package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsEventBuffer = 64
	wsWriteWait   = 10 * time.Second
	wsPingPeriod  = 30 * time.Second
)

// handleWS upgrades the connection and streams orchestrator events as JSON
// frames until the client disconnects. A slow client misses events rather
// than stalling the bus.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	id, events := s.orch.Bus().Subscribe(wsEventBuffer)
	defer s.orch.Bus().Unsubscribe(id)

	// Drain the read side so close frames and pongs are processed.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event := <-events:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
			return
		}
	}
}
