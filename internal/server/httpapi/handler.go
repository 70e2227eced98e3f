// Package httpapi binds the artifact service to a JSON-over-HTTP API built
// on gin.
package httpapi

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/buzzdrop/internal/logging"
	"github.com/dmitrijs2005/buzzdrop/internal/server/access"
	"github.com/dmitrijs2005/buzzdrop/internal/server/identity"
	"github.com/dmitrijs2005/buzzdrop/internal/server/services"
	"github.com/gin-gonic/gin"
)

// multipartSlack is added to the body limit of uploads to leave room for
// part headers and the other form fields.
const multipartSlack = 64 * 1024

type Options struct {
	SecretKey        []byte
	SessionValidity  time.Duration
	MaxContentLength int64
	// SecureCookie marks the session cookie Secure; set it behind TLS.
	SecureCookie bool
}

type Handler struct {
	artifacts *services.ArtifactService
	users     identity.Provider
	policy    access.Policy
	logger    logging.Logger
	opts      Options
}

func NewHandler(artifacts *services.ArtifactService, users identity.Provider, logger logging.Logger, opts Options) *Handler {
	return &Handler{
		artifacts: artifacts,
		users:     users,
		logger:    logger.With("module", "http"),
		opts:      opts,
	}
}

// Routes builds the gin engine with every route and middleware attached.
func (h *Handler) Routes() *gin.Engine {
	engine := gin.New()
	engine.Use(h.requestLogger(), h.recoverPanic(), h.authenticate())

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "up", "name": "buzzdrop"})
	})

	engine.POST("/login", h.Login)
	engine.POST("/logout", h.Logout)

	// the share id is the capability; no session needed
	engine.GET("/view/:id", h.View)
	engine.POST("/view/:id/confirm", h.ConfirmView)
	engine.GET("/download/:id", h.Download)
	engine.POST("/report_decryption/:id", h.ReportDecryption)

	authorized := engine.Group("/")
	authorized.Use(h.requireAuth())
	{
		authorized.GET("/api/artifacts", h.ListArtifacts)
		authorized.POST("/upload", h.limitBody(h.opts.MaxContentLength+multipartSlack), h.Upload)
		authorized.POST("/notes", h.limitBody(h.opts.MaxContentLength*2+multipartSlack), h.CreateNote)
		authorized.POST("/delete/:id", h.Delete)
		authorized.GET("/users", h.ListUsers)
	}

	return engine
}
