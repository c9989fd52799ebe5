package websocket

import (
	"fmt"
	"sync"

	"github.com/taxigo/dispatch/pkg/logger"
)

// Hub maintains active client connections keyed by session id. It is the
// delivery side of the dispatch broadcaster: Send targets one session and
// fails when the session is gone or its buffer is full.
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	logger     *logger.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     log,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.SessionID] = client
			h.mu.Unlock()
			h.logger.Info("Client registered",
				logger.String("session_id", client.SessionID),
			)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.SessionID]; ok {
				delete(h.clients, client.SessionID)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("Client unregistered",
				logger.String("session_id", client.SessionID),
			)
		}
	}
}

// Register registers a new client
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister unregisters a client
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Send delivers raw bytes to a single session. It satisfies the dispatch
// broadcaster's Sender.
func (h *Hub) Send(sessionID string, data []byte) error {
	h.mu.RLock()
	client, ok := h.clients[sessionID]
	h.mu.RUnlock()

	if !ok {
		return fmt.Errorf("session %s not connected", sessionID)
	}

	select {
	case client.send <- data:
		return nil
	default:
		return fmt.Errorf("session %s send buffer full", sessionID)
	}
}

// GetActiveConnections returns the number of active connections
func (h *Hub) GetActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
