package handlers

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/veoflow/veoflow/internal/interfaces"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WebSocketHandler pushes task status events to connected clients. Each
// connection gets its own event subscription; throttling happens in the hub.
type WebSocketHandler struct {
	events interfaces.EventService
	logger arbor.ILogger
}

// NewWebSocketHandler creates a websocket handler
func NewWebSocketHandler(events interfaces.EventService, logger arbor.ILogger) *WebSocketHandler {
	return &WebSocketHandler{
		events: events,
		logger: logger,
	}
}

// HandleWebSocket handles GET /ws
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	h.logger.Debug().Str("remote", r.RemoteAddr).Msg("WebSocket client connected")

	eventCh, cancel := h.events.Subscribe()

	var once sync.Once
	closeAll := func() {
		once.Do(func() {
			cancel()
			conn.Close()
			h.logger.Debug().Str("remote", r.RemoteAddr).Msg("WebSocket client disconnected")
		})
	}

	// Reader drains control frames and detects disconnects
	go func() {
		defer closeAll()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go func() {
		defer closeAll()
		for event := range eventCh {
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		}
	}()
}
