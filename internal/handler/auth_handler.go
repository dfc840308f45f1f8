package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"contentplanner/internal/identity"
)

type AuthHandler struct {
	provider *identity.Provider
	logger   *zap.Logger
}

func NewAuthHandler(provider *identity.Provider, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{provider: provider, logger: logger}
}

type registerRequest struct {
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"displayName"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	sess, err := h.provider.Register(c.Request.Context(), req.Email, req.Password, req.DisplayName)
	switch {
	case errors.Is(err, identity.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.Is(err, identity.ErrWeakRegistration):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.logger.Error("Register failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}

	h.logger.Info("User registered", zap.String("user_id", sess.Identity.UID))
	c.JSON(http.StatusCreated, sess)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	sess, err := h.provider.SignIn(c.Request.Context(), req.Email, req.Password)
	if errors.Is(err, identity.ErrInvalidCredentials) {
		h.logger.Warn("Login rejected", zap.String("client_ip", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("Login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	c.JSON(http.StatusOK, sess)
}

// Logout revokes the caller's session token. The session's mirror and
// suggestions are torn down by the sign-out listener.
func (h *AuthHandler) Logout(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	if err := h.provider.SignOut(c.Request.Context(), s.ID); err != nil {
		h.logger.Error("Logout failed", zap.String("session_id", s.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) Me(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":   s.Identity(),
		"synced": s.Mirror.Synced(),
	})
}
