package handler

import (
	"net/http"

	"github.com/MUKTHARS/clmprod-sub000/config"
	"github.com/MUKTHARS/clmprod-sub000/middleware"
	"github.com/MUKTHARS/clmprod-sub000/model"
	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	config *config.Config
}

func NewAuthHandler(cfg *config.Config) *AuthHandler {
	return &AuthHandler{config: cfg}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token     string     `json:"token"`
	ExpiresAt string     `json:"expires_at"`
	Username  string     `json:"username"`
	UserID    string     `json:"user_id"`
	Role      model.Role `json:"role"`
}

// Login issues a token for a configured development account
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	user := h.config.FindUser(req.Username)
	if user == nil || user.Password != req.Password {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
		return
	}

	role, ok := model.ParseRole(user.Role)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "Account has no workflow role"})
		return
	}
	userID := user.UserID
	if userID == "" {
		userID = user.Username
	}
	p := model.Principal{UserID: userID, Role: role}

	token, expiresAt, err := middleware.GenerateToken(p, &h.config.Auth)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt.Format("2006-01-02T15:04:05Z07:00"),
		Username:  user.Username,
		UserID:    p.UserID,
		Role:      p.Role,
	})
}

// GetCurrentUser returns the principal of the request
func (h *AuthHandler) GetCurrentUser(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id": p.UserID,
		"role":    p.Role,
	})
}
