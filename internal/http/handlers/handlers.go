package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/dogblood-backend/internal/domain"
	"github.com/tbourn/dogblood-backend/internal/http/middleware"
	"github.com/tbourn/dogblood-backend/internal/services"
)

// AuthService is consumed by the account endpoints.
type AuthService interface {
	Register(ctx context.Context, email, password, fullName string) (*services.Session, error)
	Login(ctx context.Context, email, password string) (*services.Session, error)
	Profile(ctx context.Context, userID string) (*domain.User, error)
}

// AnalysisService is consumed by the blood-test endpoints.
type AnalysisService interface {
	Submit(ctx context.Context, userID string, up services.Upload) (*services.AnalysisResult, error)
	Get(ctx context.Context, userID, testID string) (*domain.BloodTest, error)
	Download(ctx context.Context, userID, testID string) (*services.Report, error)
	List(ctx context.Context, userID string, limit int) ([]domain.BloodTest, error)
	Stats(ctx context.Context, userID string) (int64, *time.Time, error)
}

// ConversationService is consumed by the chat endpoints.
type ConversationService interface {
	Ask(ctx context.Context, userID, testID, question string) (string, error)
	History(ctx context.Context, userID, testID string) ([]domain.ChatMessage, error)
}

// PaymentService is consumed by the checkout and webhook endpoints.
type PaymentService interface {
	CreateCheckout(ctx context.Context, userID string, credits int, hostURL string) (*services.Checkout, error)
	Status(ctx context.Context, sessionID string) (*services.PaymentStatus, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// Handlers groups the API endpoints over their services.
type Handlers struct {
	auth     AuthService
	analysis AnalysisService
	chat     ConversationService
	payments PaymentService

	// MaxUploadBytes caps the multipart body of an upload.
	MaxUploadBytes int64
	// MaxWebhookBytes caps a webhook payload.
	MaxWebhookBytes int64
}

// New binds the handlers to their services.
func New(auth AuthService, analysis AnalysisService, chat ConversationService, payments PaymentService) *Handlers {
	return &Handlers{
		auth:            auth,
		analysis:        analysis,
		chat:            chat,
		payments:        payments,
		MaxUploadBytes:  10 << 20,
		MaxWebhookBytes: 1 << 20,
	}
}

func userID(c *gin.Context) string { return middleware.UserID(c) }

// Root godoc
// @Summary  Service banner
// @Tags     Health
// @Produce  json
// @Success  200  {object}  map[string]string
// @Router   / [get]
func Root(c *gin.Context) {
	ok(c, http.StatusOK, gin.H{"message": "DogBloodGPT API is running"})
}
