package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/dogblood-backend/internal/domain"
	"github.com/tbourn/dogblood-backend/internal/http/middleware"
	"github.com/tbourn/dogblood-backend/internal/services"
)

// RegisterRequest is the registration payload.
type RegisterRequest struct {
	Email    string `json:"email"     binding:"required" example:"alice@example.com"`
	Password string `json:"password"  binding:"required" example:"correct-horse"`
	FullName string `json:"full_name" binding:"required" example:"Alice Smith"`
}

// LoginRequest is the login payload.
type LoginRequest struct {
	Email    string `json:"email"    binding:"required" example:"alice@example.com"`
	Password string `json:"password" binding:"required" example:"correct-horse"`
}

// TokenResponse carries a bearer token and the account it belongs to.
type TokenResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type" example:"bearer"`
	User        UserResponse `json:"user"`
}

// Register godoc
// @ID          register
// @Summary     Create an account
// @Description Registers a user with zero credits and returns a bearer token.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.RegisterRequest  true  "Account details"
// @Success     200   {object}  handlers.TokenResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Invalid input or email already registered"
// @Failure     500   {object}  handlers.ErrorResponse  "Internal error"
// @Router      /auth/register [post]
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeInvalidInput, "email, password and full_name are required")
		return
	}
	sess, err := h.auth.Register(c.Request.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		writeServiceError(c, err, registerMessage(err))
		return
	}
	ok(c, http.StatusOK, tokenResponse(sess.AccessToken, sess.User))
}

// Login godoc
// @ID          login
// @Summary     Log in
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.LoginRequest  true  "Credentials"
// @Success     200   {object}  handlers.TokenResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Malformed body"
// @Failure     401   {object}  handlers.ErrorResponse  "Invalid credentials"
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeInvalidInput, "email and password are required")
		return
	}
	sess, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(c, err, loginMessage(err))
		return
	}
	ok(c, http.StatusOK, tokenResponse(sess.AccessToken, sess.User))
}

// Profile godoc
// @ID          profile
// @Summary     Current user
// @Tags        User
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.UserResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /user/profile [get]
func (h *Handlers) Profile(c *gin.Context) {
	if u, found := middleware.CurrentUser(c); found {
		ok(c, http.StatusOK, userResponse(u))
		return
	}
	u, err := h.auth.Profile(c.Request.Context(), userID(c))
	if err != nil {
		writeServiceError(c, err, "")
		return
	}
	ok(c, http.StatusOK, userResponse(u))
}

func tokenResponse(token string, u *domain.User) TokenResponse {
	return TokenResponse{AccessToken: token, TokenType: "bearer", User: userResponse(u)}
}

func registerMessage(err error) string {
	if errors.Is(err, services.ErrConflict) {
		return "Email already registered"
	}
	return ""
}

func loginMessage(err error) string {
	if errors.Is(err, services.ErrUnauthorized) {
		return "Invalid credentials"
	}
	return ""
}
