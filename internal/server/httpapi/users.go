package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListUsers shows the configured users to admins. Passwords never leave
// the identity provider.
func (h *Handler) ListUsers(c *gin.Context) {
	if err := h.policy.RequireAdmin(principal(c)); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": h.users.Users()})
}
