package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/dogblood-backend/internal/domain"
	"github.com/tbourn/dogblood-backend/internal/observability"
	"github.com/tbourn/dogblood-backend/internal/payments"
	"github.com/tbourn/dogblood-backend/internal/repo"
)

// ProductName is shown on the hosted checkout page.
const ProductName = "DogBloodGPT Analysis Credits"

// Pricing is the credit price model.
type Pricing struct {
	UnitAmountCents int64
	Currency        string
	MaxCredits      int
}

// Checkout is a created hosted checkout.
type Checkout struct {
	URL       string
	SessionID string
}

// PaymentStatus is the gateway view of a session after reconciliation.
type PaymentStatus struct {
	Status        string
	PaymentStatus string
	AmountTotal   int64
	Currency      string
}

// PaymentService opens checkouts and turns confirmed payments into credits.
//
// Each transaction carries the purchasing user's id. Whichever path first
// observes payment_status=paid (a status poll or a webhook) flips
// credits_added and grants the credits in the same database transaction;
// every later observation is a no-op.
type PaymentService struct {
	DB      *gorm.DB
	Gateway Gateway
	Ledger  CreditLedger
	Pricing Pricing
	Timeout time.Duration
}

// NewPaymentService constructs a PaymentService.
func NewPaymentService(db *gorm.DB, gw Gateway, pricing Pricing, timeout time.Duration) *PaymentService {
	return &PaymentService{DB: db, Gateway: gw, Pricing: pricing, Timeout: timeout}
}

// CreateCheckout opens a checkout for credits units on behalf of userID.
// hostURL is the frontend origin used for the return URLs.
func (s *PaymentService) CreateCheckout(ctx context.Context, userID string, credits int, hostURL string) (*Checkout, error) {
	tr := otel.Tracer("services/PaymentService")
	ctx, span := tr.Start(ctx, "CreateCheckout",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("credits", credits),
		),
	)
	defer span.End()

	if userID == "" {
		return nil, ErrUnauthorized
	}
	limit := s.Pricing.MaxCredits
	if limit <= 0 {
		limit = 100
	}
	if credits < 1 || credits > limit {
		return nil, fmt.Errorf("%w: credits must be between 1 and %d", ErrInvalidInput, limit)
	}
	host, err := normalizeHost(hostURL)
	if err != nil {
		return nil, err
	}

	gctx, cancel := withTimeout(ctx, s.Timeout)
	defer cancel()
	sess, err := s.Gateway.CreateSession(gctx, payments.CheckoutRequest{
		ProductName:       ProductName,
		UnitAmount:        s.Pricing.UnitAmountCents,
		Quantity:          int64(credits),
		Currency:          s.Pricing.Currency,
		SuccessURL:        host + "/payment-success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:         host + "/payment-cancel",
		ClientReferenceID: userID,
		Metadata: map[string]string{
			"credits": strconv.Itoa(credits),
			"source":  "dogbloodgpt",
			"user_id": userID,
		},
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %w", ErrPaymentGateway, err)
	}

	amount := s.Pricing.UnitAmountCents * int64(credits)
	if _, err := repo.CreatePayment(ctx, s.DB, sess.ID, userID, credits, amount, s.Pricing.Currency); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, fmt.Errorf("%w: session already recorded", ErrConflict)
		}
		return nil, fmt.Errorf("record payment: %w", err)
	}
	zerolog.Ctx(ctx).Info().Str("user_id", userID).Str("session_id", sess.ID).Int("credits", credits).Msg("checkout created")
	return &Checkout{URL: sess.URL, SessionID: sess.ID}, nil
}

// Status queries the gateway, stores what it reports and grants credits if
// the session is paid and has not been credited yet. An unknown local
// transaction still reports the gateway status.
func (s *PaymentService) Status(ctx context.Context, sessionID string) (*PaymentStatus, error) {
	tr := otel.Tracer("services/PaymentService")
	ctx, span := tr.Start(ctx, "Status", trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("%w: session_id is required", ErrInvalidInput)
	}
	gctx, cancel := withTimeout(ctx, s.Timeout)
	defer cancel()
	st, err := s.Gateway.GetStatus(gctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %w", ErrPaymentGateway, err)
	}

	if err := s.apply(ctx, sessionID, st.Status, st.PaymentStatus, false); err != nil {
		return nil, err
	}
	return &PaymentStatus{
		Status:        st.Status,
		PaymentStatus: st.PaymentStatus,
		AmountTotal:   st.AmountTotal,
		Currency:      st.Currency,
	}, nil
}

// HandleWebhook verifies a gateway delivery and reconciles checkout events.
// Events for other types or unknown sessions are accepted and ignored.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	tr := otel.Tracer("services/PaymentService")
	ctx, span := tr.Start(ctx, "HandleWebhook")
	defer span.End()

	ev, err := s.Gateway.VerifyAndParseWebhook(payload, signature)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, payments.ErrInvalidWebhook) {
			return fmt.Errorf("%w: %w", ErrInvalidWebhook, err)
		}
		return fmt.Errorf("%w: %w", ErrPaymentGateway, err)
	}
	span.SetAttributes(attribute.String("event.type", ev.Type), attribute.String("session.id", ev.SessionID))
	if ev.SessionID == "" {
		return nil
	}

	paymentStatus := ev.PaymentStatus
	if !ev.Completed() && paymentStatus == domain.PaymentPaid {
		// Only completion events settle a session.
		paymentStatus = ""
	}
	return s.apply(ctx, ev.SessionID, "", paymentStatus, true)
}

// apply stores gateway statuses for sessionID and reconciles a paid session
// in one transaction.
func (s *PaymentService) apply(ctx context.Context, sessionID, status, paymentStatus string, fromWebhook bool) error {
	lg := zerolog.Ctx(ctx).With().Str("session_id", sessionID).Logger()
	var granted int
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := repo.GetPaymentBySession(ctx, tx, sessionID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		ps := paymentStatus
		if p.CreditsAdded {
			ps = ""
		}
		if status != "" || ps != "" {
			if err := repo.UpdatePaymentStatus(ctx, tx, sessionID, status, ps); err != nil {
				return err
			}
		}
		if fromWebhook {
			if err := repo.MarkWebhookProcessed(ctx, tx, sessionID); err != nil {
				return err
			}
		}
		if paymentStatus != domain.PaymentPaid || p.CreditsAdded {
			return nil
		}

		claimed, err := repo.MarkCreditsAdded(ctx, tx, sessionID)
		if err != nil || !claimed {
			return err
		}
		if _, err := s.Ledger.Grant(ctx, tx, p.UserID, p.Credits); err != nil {
			return err
		}
		granted = p.Credits
		return nil
	})
	if err != nil {
		lg.Error().Err(err).Msg("payment reconciliation failed")
		return fmt.Errorf("reconcile payment: %w", err)
	}
	if granted > 0 {
		observability.CreditsGranted.Add(float64(granted))
		lg.Info().Int("credits", granted).Bool("webhook", fromWebhook).Msg("credits granted")
	}
	return nil
}

func normalizeHost(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: host_url must be an absolute http(s) URL", ErrInvalidInput)
	}
	return strings.TrimRight(u.Scheme+"://"+u.Host+u.Path, "/"), nil
}
