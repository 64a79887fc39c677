// Package middleware contains the Gin middleware shared by the HTTP layer.
//
// This file provides the request-id injector, panic recovery, and the accessor
// for the request-scoped logger. The logger itself is attached by
// RedactingLogger and is available two ways:
//
//   - LoggerFrom(c) for handlers, via the Gin context key "logger";
//   - zerolog.Ctx(ctx) for services, via the request's context.Context.
//
// Recommended order: RequestID, RedactingLogger, Recovery, then the rest, so
// that panics and rejections carry the correlation id.
package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	loggerKey       = "logger"

	// UserIDKey holds the authenticated user id (string) in the Gin context.
	UserIDKey = "userID"

	// maxRequestIDLength bounds a client-supplied correlation id.
	maxRequestIDLength = 128
)

// RequestID propagates X-Request-ID or mints a UUID when absent or oversized.
// The id is echoed on the response and stored under "requestID".
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" || len(rid) > maxRequestIDLength {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// Recovery turns a panic into the standard JSON 500 envelope and logs the
// stack with the request-scoped logger.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			abortJSON(c, http.StatusInternalServerError, "internal_error", "internal server error")
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger, or the global logger when
// none was attached. The result is never nil.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.Logger
	return &l
}

// UserID returns the authenticated user id set by RequireAuth, or "".
func UserID(c *gin.Context) string {
	return asString(c.Value(UserIDKey))
}

// attachLogger stores l on both the Gin context and the request context.
func attachLogger(c *gin.Context, l zerolog.Logger) {
	c.Set(loggerKey, &l)
	c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))
}

// abortJSON writes the error envelope used across the API.
func abortJSON(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       code,
		"message":    msg,
	})
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
