package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/dogblood-backend/internal/domain"
	"github.com/tbourn/dogblood-backend/internal/observability"
	"github.com/tbourn/dogblood-backend/internal/repo"
)

// MaxQuestionRunes bounds a follow-up question.
const MaxQuestionRunes = 2000

// ConversationService answers follow-up questions about a stored analysis.
// Asking is free; the question and its answer are appended to the thread as
// one unit.
type ConversationService struct {
	DB       *gorm.DB
	Analyzer Analyzer
	Slots    *Slots
	Timeout  time.Duration
}

// NewConversationService constructs a ConversationService.
func NewConversationService(db *gorm.DB, an Analyzer, slots *Slots, timeout time.Duration) *ConversationService {
	return &ConversationService{DB: db, Analyzer: an, Slots: slots, Timeout: timeout}
}

// Ask forwards question, with the record's extracted text, to the analyzer
// and appends both messages to the record's thread.
func (s *ConversationService) Ask(ctx context.Context, userID, testID, question string) (answer string, err error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "Ask",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("test.id", testID),
		),
	)
	defer span.End()
	defer func() {
		outcome := outcomeOf(err)
		observability.ChatQuestions.WithLabelValues(outcome).Inc()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
	}()

	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("%w: message is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(question) > MaxQuestionRunes {
		return "", fmt.Errorf("%w: message too long", ErrInvalidInput)
	}

	bt, err := repo.GetBloodTest(ctx, s.DB, testID, userID, false)
	if errors.Is(err, repo.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	askedAt := time.Now().UTC()

	release, err := s.Slots.Acquire(ctx)
	if err != nil {
		return "", err
	}
	answer, err = s.answer(ctx, bt.ExtractedText, question)
	release()
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("user_id", userID).Str("test_id", testID).Msg("follow-up question failed")
		return "", err
	}
	answeredAt := time.Now().UTC()

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sess, err := repo.GetOrCreateSession(ctx, tx, testID, userID)
		if err != nil {
			return err
		}
		_, err = repo.AppendMessages(ctx, tx, sess.ID,
			repo.NewMessage{Role: domain.RoleUser, Content: question, At: askedAt},
			repo.NewMessage{Role: domain.RoleAssistant, Content: answer, At: answeredAt},
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("append conversation: %w", err)
	}
	return answer, nil
}

// History returns the thread for an owned record, oldest first. A record
// with no questions yet has an empty thread.
func (s *ConversationService) History(ctx context.Context, userID, testID string) ([]domain.ChatMessage, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "History", trace.WithAttributes(attribute.String("test.id", testID)))
	defer span.End()

	if _, err := repo.GetBloodTest(ctx, s.DB, testID, userID, false); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	sess, err := repo.FindSession(ctx, s.DB, testID, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return []domain.ChatMessage{}, nil
	}
	if err != nil {
		return nil, err
	}
	msgs, err := repo.ListMessages(ctx, s.DB, sess.ID, 0)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	return msgs, nil
}

func (s *ConversationService) answer(ctx context.Context, text, question string) (string, error) {
	sctx, cancel := withTimeout(ctx, s.Timeout)
	defer cancel()

	out, err := s.Analyzer.Analyze(sctx, text, question)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %w", ErrAnalysisService, err)
	}
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("%w: empty answer", ErrAnalysisService)
	}
	return out, nil
}
