package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var feedUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Keys are per-developer credentials, not browser sessions, so any
	// origin may connect.
	CheckOrigin: func(*http.Request) bool { return true },
}

const closeInvalidKey = 4001

// feedWebsocket upgrades the connection and subscribes it to snapshot
// broadcasts. Authentication happens after the upgrade so the client
// receives a proper close code instead of a failed handshake.
func (h *handler) feedWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := feedUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Debug("feed websocket upgrade failed")
		return
	}

	presented := r.URL.Query().Get("api_key")
	if _, err := h.app.Auth.Authenticate(r.Context(), presented); err != nil {
		msg := websocket.FormatCloseMessage(closeInvalidKey, "Invalid or revoked API key")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	h.app.FeedWS.Register(conn)
	defer func() {
		h.app.FeedWS.Unregister(conn)
		_ = conn.Close()
	}()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if kind == websocket.TextMessage && string(data) == "ping" {
			// The broadcaster owns the write side of every registered
			// connection; replies must go through it too.
			if err := h.app.FeedWS.Send(conn, []byte("pong")); err != nil {
				return
			}
		}
	}
}
