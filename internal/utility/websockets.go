package utility

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Simple Hub to hold active connections: Map[SessionID] -> Connection
var (
	Clients   = make(map[string]*websocket.Conn)
	ClientsMu sync.Mutex // Mutex to prevent race conditions
	Upgrader  = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// Allow CORS for development
		CheckOrigin: func(r *http.Request) bool { return true },
	}
)

// RegisterClient tracks a new state-watcher connection for a session.
func RegisterClient(sessionID string, conn *websocket.Conn) {
	ClientsMu.Lock()
	defer ClientsMu.Unlock()
	Clients[sessionID] = conn
	log.Info().Str("session_id", sessionID).Msg("WebSocket Client Connected")
}

// UnregisterClient drops a connection (when the tab closes).
func UnregisterClient(sessionID string) {
	ClientsMu.Lock()
	defer ClientsMu.Unlock()
	if _, ok := Clients[sessionID]; ok {
		delete(Clients, sessionID)
		log.Info().Str("session_id", sessionID).Msg("WebSocket Client Disconnected")
	}
}

// PushStateUpdate sends the session's fresh state snapshot to its watcher,
// if one is connected.
func PushStateUpdate(sessionID string, snapshot []byte) {
	ClientsMu.Lock()
	defer ClientsMu.Unlock()

	if conn, ok := Clients[sessionID]; ok {
		if err := conn.WriteMessage(websocket.TextMessage, snapshot); err != nil {
			log.Error().Err(err).Msg("Failed to send WS message, removing client")
			conn.Close()
			delete(Clients, sessionID)
		}
	}
}
