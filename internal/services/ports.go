package services

import (
	"context"

	"github.com/tbourn/dogblood-backend/internal/payments"
	"github.com/tbourn/dogblood-backend/internal/report"
)

// Extractor converts PDF bytes into plain text.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// Analyzer interprets extracted lab text. An empty question asks for a full
// analysis.
type Analyzer interface {
	Analyze(ctx context.Context, testText, question string) (string, error)
}

// Renderer produces the downloadable report.
type Renderer interface {
	Render(ctx context.Context, in report.Input) ([]byte, error)
}

// Gateway is the hosted checkout provider.
type Gateway interface {
	CreateSession(ctx context.Context, req payments.CheckoutRequest) (*payments.Session, error)
	GetStatus(ctx context.Context, sessionID string) (*payments.Status, error)
	VerifyAndParseWebhook(payload []byte, signature string) (*payments.WebhookEvent, error)
}

// TokenIssuer issues and verifies bearer tokens.
type TokenIssuer interface {
	Generate(userID string) (string, error)
	Validate(token string) (string, error)
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(hash, plaintext string) error
}
