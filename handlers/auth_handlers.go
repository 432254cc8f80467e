package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"studentparent-server-go/auth"
)

// AuthHandler serves /login and /logout.
type AuthHandler struct {
	Service *auth.Service
	log     *logrus.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(svc *auth.Service, log *logrus.Logger) *AuthHandler {
	return &AuthHandler{Service: svc, log: log}
}

type loginRequest struct {
	Phone    string `json:"phone" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login handles POST /login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "code": http.StatusBadRequest, "msg": "phone and password are required"})
		return
	}
	res, err := h.Service.Login(c.Request.Context(), req.Phone, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "code": http.StatusUnauthorized, "msg": err.Error()})
		return
	}
	if err != nil {
		h.log.WithError(err).Error("Error during login")
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "code": http.StatusInternalServerError, "msg": "login failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "code": http.StatusOK, "msg": "success", "token": res.Token, "user": res.User})
}

// Logout handles POST /logout
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.Service.Logout(c.Request.Context(), tokenFrom(c)); err != nil {
		h.log.WithError(err).Error("Error during logout")
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "code": http.StatusInternalServerError, "msg": "logout failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "code": http.StatusOK, "msg": "success"})
}
