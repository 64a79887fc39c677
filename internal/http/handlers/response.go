package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/dogblood-backend/internal/domain"
	"github.com/tbourn/dogblood-backend/internal/http/middleware"
)

// ErrorResponse is the error envelope returned by every endpoint.
type ErrorResponse struct {
	// Echo of X-Request-ID for log correlation
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go)
	Code string `json:"code" example:"not_found"`
	// Safe to show to users
	Message string `json:"message" example:"not found"`
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID       string `json:"id"        example:"0b7c2c1e-5f0e-4d8e-9f57-3f5ad1f0b8a1"`
	Email    string `json:"email"     example:"alice@example.com"`
	FullName string `json:"full_name" example:"Alice Smith"`
	Credits  int    `json:"credits"   example:"3"`
}

func userResponse(u *domain.User) UserResponse {
	return UserResponse{ID: u.ID, Email: u.Email, FullName: u.FullName, Credits: u.Credits}
}

// fail aborts with the error envelope. 5xx responses are logged.
func fail(c *gin.Context, status int, code, msg string) {
	failWithCause(c, status, code, msg, nil)
}

func failWithCause(c *gin.Context, status int, code, msg string, cause error) {
	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		ev := lg.Error().Int("status", status).Str("code", code)
		if cause != nil {
			ev = ev.Err(cause)
		}
		ev.Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail is fail for callers outside the package (router fallbacks).
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
