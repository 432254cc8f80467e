package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"studentparent-server-go/models"
)

const (
	roleKey      = "role"
	requestIDKey = "request_id"

	RequestIDHeader = "X-Request-Id"
	TokenHeader     = "X-Token"
)

// RoleResolver maps a login token to a role.
type RoleResolver interface {
	Resolve(ctx context.Context, token string) (models.Role, error)
}

// RequestID tags every request with an id, reusing one sent by the caller.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// AccessLog writes one logrus line per request.
func AccessLog(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := log.WithFields(logrus.Fields{
			"request_id": c.GetString(requestIDKey),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"duration":   time.Since(start),
			"role":       RoleFrom(c),
		})
		if len(c.Errors) > 0 {
			entry.WithField("errors", c.Errors.String()).Warn("request")
			return
		}
		entry.Info("request")
	}
}

// CORS allows every origin; preflight requests end here.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			origin = "*"
		}
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+TokenHeader+", "+RequestIDHeader)
		h.Set("Access-Control-Expose-Headers", RequestIDHeader+", Content-Disposition")
		h.Add("Vary", "Origin")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// tokenFrom reads "Authorization: Bearer <token>" or the X-Token header.
func tokenFrom(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(c.GetHeader(TokenHeader))
}

// Auth stores the caller role. Requests without a valid token are UNKNOWN.
func Auth(resolver RoleResolver, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := models.RoleUnknown
		if token := tokenFrom(c); token != "" {
			resolved, err := resolver.Resolve(c.Request.Context(), token)
			if err != nil {
				log.WithError(err).WithField("request_id", c.GetString(requestIDKey)).Warn("会话解析失败")
			} else {
				role = resolved
			}
		}
		c.Set(roleKey, role)
		c.Next()
	}
}

// RoleFrom returns the role stored by Auth.
func RoleFrom(c *gin.Context) models.Role {
	if v, ok := c.Get(roleKey); ok {
		if role, ok := v.(models.Role); ok {
			return role
		}
	}
	return models.RoleUnknown
}
