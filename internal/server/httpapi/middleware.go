package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/buzzdrop/internal/common"
	"github.com/dmitrijs2005/buzzdrop/internal/server/access"
	"github.com/dmitrijs2005/buzzdrop/internal/server/auth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	principalKey     = "principal"
	requestIDHeader  = "X-Request-ID"
	bearerPrefix     = "Bearer "
	requestIDContext = "request_id"
)

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.NewString()
		c.Set(requestIDContext, requestID)
		c.Header(requestIDHeader, requestID)

		start := time.Now()
		c.Next()

		h.logger.Info(c.Request.Context(), "request completed",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
			"size", c.Writer.Size(),
		)
	}
}

func (h *Handler) recoverPanic() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error(c.Request.Context(), "panic recovered",
					"request_id", c.GetString(requestIDContext),
					"error", r,
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}

// authenticate attaches the caller's principal when a valid session token
// is present. Anonymous requests pass through.
func (h *Handler) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := sessionToken(c)
		if token == "" {
			c.Next()
			return
		}
		claims, err := auth.ParseToken(token, h.opts.SecretKey)
		if err != nil {
			h.logger.Debug(c.Request.Context(), "rejected session token", "error", err)
			c.Next()
			return
		}
		c.Set(principalKey, access.Principal{
			Identity: claims.Identity,
			Admin:    h.users.IsAdmin(claims.Identity),
		})
		c.Next()
	}
}

func (h *Handler) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.policy.RequireIdentity(principal(c)); err != nil {
			h.abortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (h *Handler) limitBody(max int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if max > 0 {
			if c.Request.ContentLength > max {
				h.abortWithError(c, common.ErrTooLarge)
				return
			}
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, max)
		}
		c.Next()
	}
}

func sessionToken(c *gin.Context) string {
	if v := c.GetHeader("Authorization"); strings.HasPrefix(v, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(v, bearerPrefix))
	}
	if v, err := c.Cookie(common.SessionCookieName); err == nil {
		return v
	}
	return ""
}

func principal(c *gin.Context) access.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(access.Principal); ok {
			return p
		}
	}
	return access.Principal{}
}
