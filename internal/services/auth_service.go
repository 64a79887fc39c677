package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/dogblood-backend/internal/auth"
	"github.com/tbourn/dogblood-backend/internal/domain"
	"github.com/tbourn/dogblood-backend/internal/repo"
)

// MinPasswordBytes is the shortest accepted password.
const MinPasswordBytes = 8

// Session is the result of registration or login.
type Session struct {
	AccessToken string
	User        *domain.User
}

// AuthService registers users, issues tokens and resolves bearer tokens to
// active users.
type AuthService struct {
	DB        *gorm.DB
	Tokens    TokenIssuer
	Passwords PasswordHasher
}

// NewAuthService constructs an AuthService.
func NewAuthService(db *gorm.DB, tokens TokenIssuer, passwords PasswordHasher) *AuthService {
	return &AuthService{DB: db, Tokens: tokens, Passwords: passwords}
}

// Register creates an account with a zero balance and returns a token for it.
// A taken email yields ErrConflict.
func (s *AuthService) Register(ctx context.Context, email, password, fullName string) (*Session, error) {
	tr := otel.Tracer("services/AuthService")
	ctx, span := tr.Start(ctx, "Register")
	defer span.End()

	email = NormalizeEmail(email)
	fullName = strings.TrimSpace(fullName)
	if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	if fullName == "" {
		return nil, fmt.Errorf("%w: full_name is required", ErrInvalidInput)
	}
	if len(password) < MinPasswordBytes || len(password) > auth.MaxPasswordBytes {
		return nil, fmt.Errorf("%w: password must be %d to %d bytes", ErrInvalidInput, MinPasswordBytes, auth.MaxPasswordBytes)
	}

	hash, err := s.Passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u, err := repo.CreateUser(ctx, s.DB, email, fullName, hash)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, fmt.Errorf("%w: email already registered", ErrConflict)
	}
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", u.ID))
	zerolog.Ctx(ctx).Info().Str("user_id", u.ID).Msg("user registered")
	return s.issue(u)
}

// Login verifies credentials. Unknown emails, wrong passwords and inactive
// accounts all yield ErrUnauthorized.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	tr := otel.Tracer("services/AuthService")
	ctx, span := tr.Start(ctx, "Login")
	defer span.End()

	u, err := repo.GetUserByEmail(ctx, s.DB, NormalizeEmail(email))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if err := s.Passwords.Verify(u.PasswordHash, password); err != nil {
		return nil, ErrUnauthorized
	}
	if !u.IsActive {
		return nil, ErrUnauthorized
	}
	return s.issue(u)
}

// Authenticate resolves a bearer token to an active user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	tr := otel.Tracer("services/AuthService")
	ctx, span := tr.Start(ctx, "Authenticate")
	defer span.End()

	userID, err := s.Tokens.Validate(token)
	if err != nil {
		return nil, ErrUnauthorized
	}
	span.SetAttributes(attribute.String("user.id", userID))
	return s.Profile(ctx, userID)
}

// Profile returns the active user with the given id.
func (s *AuthService) Profile(ctx context.Context, userID string) (*domain.User, error) {
	tr := otel.Tracer("services/AuthService")
	ctx, span := tr.Start(ctx, "Profile", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	u, err := repo.GetUserByID(ctx, s.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, ErrUnauthorized
	}
	return u, nil
}

func (s *AuthService) issue(u *domain.User) (*Session, error) {
	tok, err := s.Tokens.Generate(u.ID)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{AccessToken: tok, User: u}, nil
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
