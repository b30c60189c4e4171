package rest

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/storykeeper/internal/common"
	"github.com/dmitrijs2005/storykeeper/internal/logging"
	"github.com/gin-gonic/gin"
)

// respond writes the {error, message, ...payload} envelope every endpoint uses.
func respond(c *gin.Context, status int, isError bool, message string, payload gin.H) {
	body := gin.H{"error": isError, "message": message}
	for k, v := range payload {
		body[k] = v
	}
	c.JSON(status, body)
}

func ok(c *gin.Context, status int, message string, payload gin.H) {
	respond(c, status, false, message, payload)
}

func fail(c *gin.Context, status int, message string) {
	respond(c, status, true, message, nil)
}

// statusFor maps a service error onto an HTTP status and client message.
func statusFor(err error) (int, string) {
	var ve *common.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Reason
	case errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest, "Invalid input"
	case errors.Is(err, common.ErrAlreadyExists):
		return http.StatusBadRequest, "User already exists"
	case errors.Is(err, common.ErrInvalidCredentials):
		return http.StatusBadRequest, "Invalid credentials"
	case errors.Is(err, common.ErrPlaceholderAsset):
		return http.StatusBadRequest, "The placeholder image cannot be deleted"
	case errors.Is(err, common.ErrAssetInUse):
		return http.StatusBadRequest, "Image is still used by a travel story"
	case errors.Is(err, common.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "Image is too large"
	case errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized, "Access token expired"
	case errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound, "Travel story not found"
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

// failWith answers with the mapped status. Server-side failures are logged
// with the request logger.
func (s *Server) failWith(c *gin.Context, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		ctx := c.Request.Context()
		logging.FromContext(ctx, s.logger).Error(ctx, "request failed", "error", err)
	}
	fail(c, status, msg)
}
