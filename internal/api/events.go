// internal/api/events.go
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 5 * time.Second

// handleEvents streams every event as one JSON text message.
// ?line=<id> restricts the stream to one line.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	only := r.URL.Query().Get("line")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the client
		s.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	id, ch := s.hub.Subscribe(0)
	defer s.hub.Unsubscribe(id)

	log := s.log.With().Str("subscriber", id.String()).Logger()
	log.Info().Str("remote", r.RemoteAddr).Msg("event stream opened")
	defer log.Info().Msg("event stream closed")

	// the client never sends; reading detects the close
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
				time.Now().Add(time.Second))
			return
		case <-gone:
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if only != "" && e.Line != only {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(e); err != nil {
				log.Debug().Err(err).Msg("event write failed")
				return
			}
		}
	}
}
