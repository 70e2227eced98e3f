package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/buzzdrop/internal/common"
	"github.com/gin-gonic/gin"
)

func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes), errors.Is(err, common.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, common.ErrorNotFound), errors.Is(err, common.ErrStorageNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrExpired), errors.Is(err, common.ErrAlreadyConsumed):
		return http.StatusGone
	case errors.Is(err, common.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, common.ErrorUnauthorized), errors.Is(err, common.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrStorageWrite), errors.Is(err, common.ErrStorageRead):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(status int, err error) string {
	switch status {
	case http.StatusRequestEntityTooLarge:
		return "File too large"
	case http.StatusNotFound:
		return "File not found"
	case http.StatusGone:
		if errors.Is(err, common.ErrExpired) {
			return "File has expired"
		}
		return "File has already been downloaded"
	case http.StatusBadRequest, http.StatusForbidden, http.StatusUnauthorized:
		return err.Error()
	case http.StatusBadGateway:
		return "storage unavailable"
	default:
		return "internal server error"
	}
}

func (h *Handler) abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(c.Request.Context(), "request failed",
			"request_id", c.GetString(requestIDContext),
			"path", c.FullPath(),
			"error", err,
		)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": messageFor(status, err)})
}
