package handler

import (
	"context"
	"net/http"
	"slices"

	"chatline/backend/internal/apperr"
	"chatline/backend/internal/models"

	"github.com/gin-gonic/gin"
)

type sendMessageRequest struct {
	RoomID   uint   `json:"roomId"`
	SenderID uint   `json:"senderId"`
	Message  string `json:"message"`
}

type createRoomRequest struct {
	Name      string `json:"name"`
	MemberIDs []uint `json:"member_ids"`
}

// requireMember fails unless the caller belongs to the room. Reads use it;
// sends are checked by the hub.
func (h *Handler) requireMember(ctx context.Context, roomID, userID uint) error {
	if _, err := h.Storage.GetRoom(ctx, roomID); err != nil {
		return err
	}
	members, err := h.Storage.ListRoomMembers(ctx, roomID)
	if err != nil {
		return err
	}
	if !slices.Contains(members, userID) {
		return apperr.Forbidden("not a member of room %d", roomID)
	}
	return nil
}

// GetMessages returns the room history, oldest first.
func (h *Handler) GetMessages(c *gin.Context) {
	roomID, ok := idParam(c, "room_id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := h.requireMember(ctx, roomID, callerID(c)); err != nil {
		respondError(c, err)
		return
	}

	history, err := h.Storage.ListMessages(ctx, roomID)
	if err != nil {
		respondError(c, err)
		return
	}
	if history == nil {
		history = []models.Message{}
	}
	c.JSON(http.StatusOK, history)
}

// GetRoomMembers returns the room with the profiles of its members.
func (h *Handler) GetRoomMembers(c *gin.Context) {
	roomID, ok := idParam(c, "room_id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	room, err := h.Storage.GetRoom(ctx, roomID)
	if err != nil {
		respondError(c, err)
		return
	}
	members, err := h.Storage.ListRoomMemberProfiles(ctx, roomID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !slices.ContainsFunc(members, func(u models.User) bool { return u.ID == callerID(c) }) {
		respondError(c, apperr.Forbidden("not a member of room %d", roomID))
		return
	}

	c.JSON(http.StatusOK, models.RoomWithMembers{
		ID:      room.ID,
		Type:    room.Type,
		Name:    room.Name,
		Members: members,
	})
}

// SendMessage stores a message sent over HTTP and fans it out like one sent
// over a WebSocket. The hub checks the body and room membership.
func (h *Handler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Validation("invalid request body"))
		return
	}
	if req.SenderID != 0 && !requireSelf(c, req.SenderID) {
		return
	}

	msg, err := h.Hub.SendMessage(c.Request.Context(), req.RoomID, callerID(c), req.Message)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// CreateGroupRoom creates a named room with the caller and the given members.
func (h *Handler) CreateGroupRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Validation("invalid request body"))
		return
	}

	members := append([]uint{callerID(c)}, req.MemberIDs...)
	room, err := h.Storage.CreateGroupRoom(c.Request.Context(), req.Name, members)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, room)
}
