package web

import (
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"govgen/internal/session"
)

// EventSnapshot is sent once when a websocket connects and carries the
// selected page.
const EventSnapshot = "session.snapshot"

const wsWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: localOrigin,
}

// localOrigin accepts same-machine pages and clients that send no Origin.
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return u.Host == r.Host
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// subscribe before the handshake completes so no event published after
	// the client sees the snapshot can be missed.
	events, unsubscribe := s.session.Subscribe(32)
	defer unsubscribe()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.PreviewSubscribers.Inc()
		defer s.metrics.PreviewSubscribers.Dec()
	}

	snapshot := session.Event{Type: EventSnapshot, At: time.Now().UTC()}
	if cur, ok := s.session.Current(); ok {
		snapshot.PageID = cur.ID
		snapshot.Page = &cur
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(snapshot); err != nil {
		return
	}

	// The browser never sends anything useful; reading only detects close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.log.Debug().Err(err).Msg("websocket read")
				}
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(e); err != nil {
				s.log.Debug().Err(err).Msg("websocket write")
				return
			}
		}
	}
}
