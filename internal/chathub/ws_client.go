package chathub

import (
	"context"
	"log"
	"sync"
	"time"

	"chatline/backend/internal/config"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WebSocketClient implements Client over a gorilla/websocket connection.
type WebSocketClient struct {
	ConnID string
	Conn   *websocket.Conn
	Hub    *ManagerService
	Send   chan []byte

	maxFrameBytes int64
	closeOnce     sync.Once
}

func NewWebSocketClient(conn *websocket.Conn, hub *ManagerService, bufferSize int, maxFrameBytes int64) *WebSocketClient {
	return &WebSocketClient{
		ConnID:        uuid.NewString(),
		Conn:          conn,
		Hub:           hub,
		Send:          make(chan []byte, bufferSize),
		maxFrameBytes: maxFrameBytes,
	}
}

func (c *WebSocketClient) GetConnID() string             { return c.ConnID }
func (c *WebSocketClient) GetSendChannel() chan<- []byte { return c.Send }

// Run starts the pumps.
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close closes the Send channel, which stops writePump.
func (c *WebSocketClient) Close() {
	c.closeOnce.Do(func() { close(c.Send) })
}

// readPump decodes inbound frames and hands them to the hub. It disconnects
// the client from the hub when the socket fails or closes.
func (c *WebSocketClient) readPump() {
	defer func() {
		c.Hub.Disconnect(context.Background(), c.ConnID)
		c.Conn.Close()
	}()

	if c.maxFrameBytes > 0 {
		c.Conn.SetReadLimit(c.maxFrameBytes)
	}
	c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
		return nil
	})

	for {
		_, frame, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WARNING: Connection %s: read error: %v", c.ConnID, err)
			}
			return
		}
		c.Hub.Dispatch(context.Background(), c.ConnID, frame)
	}
}

// writePump writes every queued frame as its own text message and keeps the
// connection alive with pings.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(config.PingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Printf("WARNING: Connection %s: write error: %v", c.ConnID, err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
