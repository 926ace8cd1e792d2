package handler

import (
	"net/http"
	"strconv"

	"chatline/backend/internal/auth"
	"chatline/backend/internal/chathub"
	"chatline/backend/internal/chatlist"
	"chatline/backend/internal/config"
	"chatline/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Handler serves the HTTP API and the WebSocket upgrade.
type Handler struct {
	Hub     *chathub.ManagerService
	Auth    *auth.Service
	Chats   *chatlist.Service
	Storage storage.Storage
	Config  config.Config

	upgrader websocket.Upgrader
}

func NewHandler(hub *chathub.ManagerService, authSvc *auth.Service, chats *chatlist.Service, s storage.Storage, cfg config.Config) *Handler {
	h := &Handler{
		Hub:     hub,
		Auth:    authSvc,
		Chats:   chats,
		Storage: s,
		Config:  cfg,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return cfg.AllowsOrigin(r.Header.Get("Origin"))
		},
	}
	return h
}

// Register mounts every route on r.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/healthz", h.Health)
	r.GET("/ws", h.ServeWebSocket)

	users := r.Group("/api/users")
	users.POST("/register", h.RegisterUser)
	users.POST("/login", h.Login)
	users.GET("/detail/:id", h.GetUserDetail)
	users.GET("/list/:id", h.RequireAuth(), h.ListChats)
	users.POST("/online/:id", h.RequireAuth(), h.SetOnline)

	messages := r.Group("/api/messages", h.RequireAuth())
	messages.POST("", h.SendMessage)
	messages.GET("/:room_id", h.GetMessages)
	messages.GET("/rooms/:room_id", h.GetRoomMembers)

	r.POST("/api/rooms", h.RequireAuth(), h.CreateGroupRoom)
}

// Health reports liveness and the number of live connections.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": h.Hub.Registry.Count(),
	})
}

// idParam parses a positive numeric path parameter.
func idParam(c *gin.Context, name string) (uint, bool) {
	n, err := strconv.ParseUint(c.Param(name), 10, 0)
	if err != nil || n == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(n), true
}
