package httpapi

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/buzzdrop/internal/common"
	"github.com/dmitrijs2005/buzzdrop/internal/server/models"
	"github.com/dmitrijs2005/buzzdrop/internal/server/services"
	"github.com/dmitrijs2005/buzzdrop/internal/server/storage"
	"github.com/gin-gonic/gin"
)

// ListArtifacts returns the caller's artifacts and those shared with them.
// Admins may pass ?owner= to list another user's artifacts.
func (h *Handler) ListArtifacts(c *gin.Context) {
	ctx := c.Request.Context()
	p := principal(c)

	owner := c.DefaultQuery("owner", p.Identity)
	owned, err := h.artifacts.ListOwned(ctx, p, owner)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	shared, err := h.artifacts.ListShared(ctx, p)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	opts := h.artifacts.Options()
	c.JSON(http.StatusOK, gin.H{
		"owned":              owned,
		"shared":             shared,
		"allowed_extensions": opts.AllowedExtensions,
		"max_content_length": opts.MaxSize,
	})
}

func (h *Handler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			h.abortWithError(c, common.ErrTooLarge)
			return
		}
		h.abortWithError(c, fmt.Errorf("%w: no file part", common.ErrValidation))
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	defer f.Close()

	res, err := h.artifacts.Create(c.Request.Context(), services.CreateRequest{
		Owner:      principal(c).Identity,
		Kind:       models.KindFile,
		Filename:   fh.Filename,
		Body:       f,
		Size:       fh.Size,
		ExpiryRaw:  c.PostForm("expiry"),
		SharedWith: splitIdentities(c.PostFormArray("shared_with")),
	})
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"file_id": res.ID, "share_link": res.ShareLink})
}

type noteRequest struct {
	Content string `json:"content" binding:"required"`
	// Encoding is "base64" for binary (e.g. client-encrypted) content.
	Encoding   string   `json:"encoding"`
	Expiry     string   `json:"expiry"`
	SharedWith []string `json:"shared_with"`
}

func (h *Handler) CreateNote(c *gin.Context) {
	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			h.abortWithError(c, common.ErrTooLarge)
			return
		}
		h.abortWithError(c, fmt.Errorf("%w: note content required", common.ErrValidation))
		return
	}

	content := []byte(req.Content)
	switch strings.ToLower(req.Encoding) {
	case "", "raw", "text":
	case "base64":
		decoded, err := base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			h.abortWithError(c, fmt.Errorf("%w: bad base64 content", common.ErrValidation))
			return
		}
		content = decoded
	default:
		h.abortWithError(c, fmt.Errorf("%w: unknown encoding %q", common.ErrValidation, req.Encoding))
		return
	}

	res, err := h.artifacts.Create(c.Request.Context(), services.CreateRequest{
		Owner:      principal(c).Identity,
		Kind:       models.KindNote,
		Body:       bytes.NewReader(content),
		Size:       int64(len(content)),
		ExpiryRaw:  req.Expiry,
		SharedWith: splitIdentities(req.SharedWith),
	})
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"file_id": res.ID, "share_link": res.ShareLink})
}

func (h *Handler) View(c *gin.Context) {
	d, err := h.artifacts.Peek(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewResponse(d))
}

// ConfirmView is the second step before a download. It re-checks the
// artifact and hands out the download URL.
func (h *Handler) ConfirmView(c *gin.Context) {
	d, err := h.artifacts.Peek(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	resp := viewResponse(d)
	resp["download_url"] = "/download/" + d.ID
	c.JSON(http.StatusOK, resp)
}

func viewResponse(d *models.Display) gin.H {
	return gin.H{
		"file_id":       d.ID,
		"original_name": d.Name,
		"kind":          d.Kind,
		"size":          d.Size,
		"expires_at":    d.ExpiresAt,
	}
}

// Download consumes the artifact and streams its bytes. Once the first
// byte is written the artifact is gone for everyone else, even if the
// transfer breaks.
func (h *Handler) Download(c *gin.Context) {
	ctx := c.Request.Context()
	d, err := h.artifacts.Retrieve(ctx, c.Param("id"), clientAddress(c))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	defer d.Body.Close()

	c.Header("Content-Type", "application/octet-stream")
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": d.Artifact.OriginalName}))
	c.Header("Content-Length", strconv.FormatInt(d.Artifact.Size, 10))
	c.Header("Cache-Control", "no-store")
	c.Status(http.StatusOK)

	for chunk, err := range storage.Chunks(d.Body) {
		if err != nil {
			h.logger.Error(ctx, "download interrupted", "id", d.Artifact.ID, "error", err)
			return
		}
		if _, err := c.Writer.Write(chunk); err != nil {
			h.logger.Warn(ctx, "client went away during download", "id", d.Artifact.ID, "error", err)
			return
		}
	}
}

func (h *Handler) Delete(c *gin.Context) {
	if err := h.artifacts.Delete(c.Request.Context(), c.Param("id"), principal(c)); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

type decryptionReport struct {
	Success *bool `json:"success"`
}

func (h *Handler) ReportDecryption(c *gin.Context) {
	var req decryptionReport
	if err := c.ShouldBindJSON(&req); err != nil || req.Success == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	recorded, err := h.artifacts.ReportDecryption(c.Request.Context(), c.Param("id"), *req.Success)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "recorded", "first_report": recorded})
}

// clientAddress is the first X-Forwarded-For entry, else the peer host.
func clientAddress(c *gin.Context) string {
	if fwd := c.GetHeader(common.ForwardedForHeader); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil || host == "" {
		if c.Request.RemoteAddr != "" {
			return c.Request.RemoteAddr
		}
		return common.UnknownAddress
	}
	return host
}

func splitIdentities(values []string) []string {
	var out []string
	for _, v := range values {
		out = append(out, strings.Split(v, ",")...)
	}
	return out
}
