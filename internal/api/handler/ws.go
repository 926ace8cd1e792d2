package handler

import (
	"log"

	"chatline/backend/internal/chathub"

	"github.com/gin-gonic/gin"
)

// ServeWebSocket authenticates the request, upgrades it and hands the
// connection to the hub. The client still announces itself with "join".
func (h *Handler) ServeWebSocket(c *gin.Context) {
	userID, err := h.authenticate(c)
	if err != nil {
		respondError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		log.Printf("WARNING: WebSocket upgrade failed for user %d: %v", userID, err)
		return
	}

	client := chathub.NewWebSocketClient(conn, h.Hub, h.Config.SendBufferSize, h.Config.MaxFrameBytes)
	if err := h.Hub.Connect(client, userID); err != nil {
		log.Printf("ERROR: Failed to register connection %s: %v", client.ConnID, err)
		conn.Close()
		return
	}
	client.Run()
}
