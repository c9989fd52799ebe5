package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/taxigo/dispatch/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// EventHandler receives decoded client events. The dispatch gateway
// implements it.
type EventHandler interface {
	HandleEvent(ctx context.Context, sessionID, event string, data json.RawMessage)
	HandleDisconnect(ctx context.Context, sessionID string)
}

// Client represents one WebSocket session.
type Client struct {
	SessionID string
	Conn      *websocket.Conn

	hub     *Hub
	handler EventHandler
	send    chan []byte
	logger  *logger.Logger
}

// inboundMessage is the wire format for client events.
type inboundMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewClient creates a client for an upgraded connection.
func NewClient(hub *Hub, conn *websocket.Conn, sessionID string, handler EventHandler, log *logger.Logger) *Client {
	return &Client{
		SessionID: sessionID,
		Conn:      conn,
		hub:       hub,
		handler:   handler,
		send:      make(chan []byte, 256),
		logger:    log,
	}
}

// ReadPump pumps messages from the WebSocket connection to the event handler
func (c *Client) ReadPump() {
	defer func() {
		c.handler.HandleDisconnect(context.Background(), c.SessionID)
		c.hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket read error",
					logger.Err(err),
					logger.String("session_id", c.SessionID),
				)
			}
			break
		}

		var msg inboundMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.logger.Warn("Malformed client message dropped",
				logger.String("session_id", c.SessionID),
				logger.Err(err),
			)
			continue
		}

		c.handler.HandleEvent(context.Background(), c.SessionID, msg.Event, msg.Data)
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current websocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
