package api

import (
	"errors"
	"net/http"
	"time"

	"pcstore-service/internal/apperr"
	"pcstore-service/internal/compat"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type fieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// statusFor maps an error kind to its HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation), errors.Is(err, apperr.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrInvalidTransition), errors.Is(err, apperr.ErrOutOfStock):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrProtocolGenerationFailed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError renders err with the status of its kind. Internal errors are
// logged and reported without detail.
func (h *Handler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}

	var (
		configErrs *compat.ValidationErrors
		fieldErrs  apperr.ValidationErrors
		fieldErr   *apperr.ValidationError
		stockErr   *apperr.OutOfStockError
	)
	switch {
	case errors.As(err, &configErrs):
		body["error"] = "invalid configuration"
		body["details"] = configErrs.Details()
	case errors.As(err, &fieldErrs):
		details := make([]fieldError, len(fieldErrs))
		for i, fe := range fieldErrs {
			details[i] = fieldError{Field: fe.Field, Message: fe.Message}
		}
		body["details"] = details
	case errors.As(err, &fieldErr):
		body["details"] = []fieldError{{Field: fieldErr.Field, Message: fieldErr.Message}}
	case errors.As(err, &stockErr):
		body["component_id"] = stockErr.ComponentID
		body["requested"] = stockErr.Requested
		body["available"] = stockErr.Available
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		body = gin.H{"error": "internal error"}
	}

	c.JSON(status, body)
}

// requestLogger logs every request through zap
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
