package ws

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"huru-chat/internal/middleware"
	"huru-chat/internal/observability"
)

// NotifyWebSocketHandler handles notification websocket connections.
type NotifyWebSocketHandler struct {
	hub       *Hub
	jwtSecret string
}

// NewNotifyWebSocketHandler constructs a NotifyWebSocketHandler.
func NewNotifyWebSocketHandler(hub *Hub, jwtSecret string) *NotifyWebSocketHandler {
	return &NotifyWebSocketHandler{hub: hub, jwtSecret: jwtSecret}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and registers the client under its own
// user ID. Clients receive their notifications live for as long as the
// connection stays open.
func (h *NotifyWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("huru-chat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
		if token != "" {
			token = "Bearer " + token
		}
	}

	userID, err := h.validateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	h.hub.AddClient(userID, conn, info)
	observability.IncWSActive()

	// Keep connection alive and clean on close
	go func() {
		defer func() {
			h.hub.RemoveClient(userID, conn)
			observability.DecWSActive()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *NotifyWebSocketHandler) validateToken(header string) (int, error) {
	parts := strings.Split(header, " ")
	if len(parts) == 2 {
		return middleware.ParseToken(h.jwtSecret, parts[1])
	}
	return 0, fmt.Errorf("invalid token")
}
