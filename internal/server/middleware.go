package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/flynn-ai/tripwise/internal/errors"
	"github.com/flynn-ai/tripwise/pkg/protocol"
)

func requestLogger(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"client", c.ClientIP(),
		}
		switch {
		case status >= http.StatusInternalServerError:
			logger.Warnw("http_request", fields...)
		default:
			logger.Debugw("http_request", fields...)
		}
	}
}

func recovery(logger *zap.SugaredLogger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Errorw("http_panic", "path", c.Request.URL.Path, "panic", recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, protocol.ErrorResponse{
			Error: "internal server error",
			Code:  errors.CodeInternal,
		})
	})
}

// statusFor maps an error to an HTTP status. Caller mistakes are 400, a
// missing answer is 404, everything else is 500.
func statusFor(err error) int {
	switch {
	case errors.GetCode(err) == errors.CodeSessionNoAnswer:
		return http.StatusNotFound
	case errors.GetCategory(err) == errors.CategoryUser:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	code := errors.GetCode(err)
	if code == "" {
		code = errors.CodeInternal
	}
	if status >= http.StatusInternalServerError {
		s.logger.Warnw("request_failed", "path", c.Request.URL.Path, "code", code, "error", err)
	}
	c.AbortWithStatusJSON(status, protocol.ErrorResponse{
		Error:       message(err),
		Code:        code,
		Suggestions: errors.GetSuggestions(err),
	})
}

func message(err error) string {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
