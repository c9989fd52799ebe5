package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"

	"github.com/taxigo/dispatch/internal/service/dispatch"
	"github.com/taxigo/dispatch/pkg/auth"
	"github.com/taxigo/dispatch/pkg/logger"
	"github.com/taxigo/dispatch/pkg/websocket"
)

// HandleWebSocket handles GET /v1/ws. The token's subject and role become
// the session binding; clients never self-declare an identity.
func (h *Handlers) HandleWebSocket(c *gin.Context) {
	token, err := auth.FromRequest(c.Request)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing access token"})
		return
	}

	claims, err := h.Auth.ParseAndValidate(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid access token"})
		return
	}

	role := dispatch.Role(claims.Role)
	if !role.IsValid() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown role"})
		return
	}

	upgrader := gorilla.Upgrader{
		ReadBufferSize:  h.Config.WebSocket.ReadBufferSize,
		WriteBufferSize: h.Config.WebSocket.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return true // Allow all origins in development
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Error("Failed to upgrade to WebSocket", logger.Err(err))
		return
	}

	sessionID := uuid.New().String()
	if err := h.Directory.Bind(sessionID, role, claims.Subject); err != nil {
		h.Logger.Error("Failed to bind session", logger.Err(err))
		conn.Close()
		return
	}

	client := websocket.NewClient(h.Hub, conn, sessionID, h.Gateway, h.Logger)
	h.Hub.Register(client)
	h.Monitor.RecordActiveSessions(h.Hub.GetActiveConnections())

	go client.WritePump()
	go client.ReadPump()
}
