package handler

import (
	"net/http"

	"chatline/backend/internal/apperr"

	"github.com/gin-gonic/gin"
)

type onlineRequest struct {
	IsOnline *bool `json:"isOnline"`
}

// ListChats returns the caller's chat list.
func (h *Handler) ListChats(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok || !requireSelf(c, id) {
		return
	}

	entries, err := h.Chats.ListForUser(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries})
}

// GetUserDetail returns the public profile of a user.
func (h *Handler) GetUserDetail(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	user, err := h.Storage.GetUser(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user": gin.H{
			"id":        user.ID,
			"full_name": user.FullName,
			"nickname":  user.Nickname,
			"avatar":    user.Avatar,
			"isOnline":  user.IsOnline,
		},
	})
}

// SetOnline stores an explicit status for the caller and announces it.
func (h *Handler) SetOnline(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok || !requireSelf(c, id) {
		return
	}

	var req onlineRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsOnline == nil {
		respondError(c, apperr.Validation("isOnline is required"))
		return
	}

	if err := h.Hub.SetUserStatus(c.Request.Context(), id, *req.IsOnline); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
