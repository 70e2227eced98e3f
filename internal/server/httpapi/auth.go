package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/buzzdrop/internal/common"
	"github.com/dmitrijs2005/buzzdrop/internal/server/auth"
	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	Username string `form:"username" json:"username" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password required"})
		return
	}

	ctx := c.Request.Context()
	identity, ok := h.users.Verify(ctx, req.Username, req.Password)
	if !ok {
		h.logger.Warn(ctx, "failed login", "username", req.Username, "address", clientAddress(c))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
		return
	}

	admin := h.users.IsAdmin(identity)
	token, err := auth.GenerateToken(identity, admin, h.opts.SecretKey, h.opts.SessionValidity)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(common.SessionCookieName, token, int(h.opts.SessionValidity.Seconds()), "/", "", h.opts.SecureCookie, true)
	h.logger.Info(ctx, "logged in", "identity", identity)
	c.JSON(http.StatusOK, gin.H{"token": token, "username": identity, "is_admin": admin})
}

func (h *Handler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(common.SessionCookieName, "", -1, "/", "", h.opts.SecureCookie, true)
	c.JSON(http.StatusOK, gin.H{"status": "logged out"})
}
