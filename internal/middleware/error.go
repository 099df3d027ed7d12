package middleware

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/passpolicy/internal/handler"
	"github.com/jwalitptl/passpolicy/pkg/errors"
)

// ErrorHandler logs errors attached with c.Error and, when the handler did
// not write a response, renders the last one.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only handle errors if they exist
		if len(c.Errors) == 0 {
			return
		}

		traceID := c.GetString(ContextRequestID)
		lastErr := c.Errors.Last()
		status := errors.HTTPStatus(lastErr.Err)

		for _, e := range c.Errors {
			event := log.Warn()
			if status >= http.StatusInternalServerError {
				event = log.Error()
			}
			event.
				Err(e.Err).
				Str("request_id", traceID).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Str("client_ip", c.ClientIP()).
				Msg("Request error")
		}

		if c.Writer.Written() {
			return
		}

		resp := handler.NewErrorResponse(publicMessage(lastErr.Err, status))
		resp.TraceID = traceID

		var pve *errors.PolicyValidationError
		if stderrors.As(lastErr.Err, &pve) {
			resp.Errors = pve.Violations
		}

		c.AbortWithStatusJSON(status, resp)
	}
}

// publicMessage hides wrapped causes; only the application message leaves
// the process.
func publicMessage(err error, status int) string {
	var pve *errors.PolicyValidationError
	if stderrors.As(err, &pve) {
		return "invalid password policy"
	}
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr.Message
	}
	return http.StatusText(status)
}
