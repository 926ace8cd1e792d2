package handler

import (
	"net/http"
	"strings"

	"chatline/backend/internal/apperr"
	"chatline/backend/internal/auth"

	"github.com/gin-gonic/gin"
)

const userIDKey = "userID"

// RequireAuth accepts a bearer token in the Authorization header or, for
// browsers opening a WebSocket, in the token query parameter.
func (h *Handler) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := h.authenticate(c)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

func (h *Handler) authenticate(c *gin.Context) (uint, error) {
	token := c.Query("token")
	if header := c.GetHeader("Authorization"); header != "" {
		scheme, value, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return 0, apperr.Auth("authorization header must be a bearer token")
		}
		token = strings.TrimSpace(value)
	}
	if token == "" {
		return 0, apperr.Auth("authorization token missing")
	}
	return h.Auth.Authenticate(token)
}

func callerID(c *gin.Context) uint {
	return c.GetUint(userIDKey)
}

// requireSelf rejects requests acting on another user's id.
func requireSelf(c *gin.Context, id uint) bool {
	if callerID(c) != id {
		respondError(c, apperr.Forbidden("cannot act on behalf of user %d", id))
		return false
	}
	return true
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) RegisterUser(c *gin.Context) {
	var in auth.RegisterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, apperr.Validation("invalid request body"))
		return
	}

	user, err := h.Auth.Register(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "User registered successfully", "user": user})
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Validation("invalid request body"))
		return
	}

	token, user, err := h.Auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user": gin.H{
			"id":        user.ID,
			"full_name": user.FullName,
			"email":     user.Email,
			"avatar":    user.Avatar,
		},
	})
}
