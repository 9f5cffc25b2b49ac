// Package middleware provides HTTP middleware for FormBridge.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/amitpaz1/formbridge-sub001/internal/pkg/errors"
	"github.com/amitpaz1/formbridge-sub001/internal/pkg/logger"
)

// ErrorHandler is a Gin middleware that provides centralized error handling.
// It captures errors added via c.Error() and renders them in the envelope
// shape every HTTP response of this service uses.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		if appErr, ok := apperrors.IsAppError(err); ok {
			logger.Warn("Request error",
				zap.String("type", string(appErr.Type)),
				zap.String("message", appErr.Message),
				zap.Int("status", appErr.HTTPStatus()),
				zap.String("request_id", GetRequestID(c.Request.Context())),
				zap.Error(appErr.Err),
			)
			c.JSON(appErr.HTTPStatus(), apperrors.ToEnvelope(appErr))
			return
		}

		// Fallback: generic 500 in the same envelope shape.
		logger.Error("Unhandled request error",
			zap.String("request_id", GetRequestID(c.Request.Context())),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError,
			apperrors.ToEnvelope(apperrors.Internal("An internal error occurred")))
	}
}
