// Package services – AnalysisService
//
// This file implements the credit-metered analysis workflow. A submission runs
// strictly in order:
//
//	resolve user -> balance pre-check -> validate file -> extract text ->
//	analyze -> render report -> commit(record + conditional decrement)
//
// Nothing is written before the commit step, and the commit is one database
// transaction: the record insert and the credit decrement either both land or
// neither does. The decrement is conditional (credits >= 1) so two concurrent
// uploads on a balance of one yield exactly one success. Failures at any step
// charge nothing.
//
// Outbound steps hold a slot from the shared Slots limiter and each runs
// under its own timeout.
package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/dogblood-backend/internal/domain"
	"github.com/tbourn/dogblood-backend/internal/extract"
	"github.com/tbourn/dogblood-backend/internal/observability"
	"github.com/tbourn/dogblood-backend/internal/report"
	"github.com/tbourn/dogblood-backend/internal/repo"
)

// MaxListLimit caps GET /api/user/blood-tests.
const MaxListLimit = 100

// StepTimeouts bounds each outbound step. Zero disables the bound.
type StepTimeouts struct {
	Extract time.Duration
	Analyze time.Duration
	Render  time.Duration
}

// Upload is one submitted file.
type Upload struct {
	Filename string
	Data     []byte
	// IdempotencyKey, when set, makes a retry replay the original result
	// instead of running (and charging) again.
	IdempotencyKey string
}

// AnalysisResult is returned by Submit.
type AnalysisResult struct {
	TestID           string
	Analysis         string
	Status           string
	CreditsRemaining int
	Replayed         bool
}

// Report is a downloadable rendered document.
type Report struct {
	Filename string
	PDF      []byte
}

// AnalysisService runs the workflow and serves stored results.
type AnalysisService struct {
	DB        *gorm.DB
	Extractor Extractor
	Analyzer  Analyzer
	Renderer  Renderer
	Ledger    CreditLedger
	Slots     *Slots
	Timeouts  StepTimeouts

	// IdempotencyTTL is how long an Idempotency-Key replays its result.
	IdempotencyTTL time.Duration

	// Now is the clock used for report dates; defaults to time.Now.
	Now func() time.Time
}

// NewAnalysisService wires the workflow collaborators.
func NewAnalysisService(db *gorm.DB, ex Extractor, an Analyzer, rd Renderer, slots *Slots, t StepTimeouts) *AnalysisService {
	return &AnalysisService{
		DB:             db,
		Extractor:      ex,
		Analyzer:       an,
		Renderer:       rd,
		Slots:          slots,
		Timeouts:       t,
		IdempotencyTTL: 24 * time.Hour,
		Now:            time.Now,
	}
}

// Submit runs one analysis for userID.
func (s *AnalysisService) Submit(ctx context.Context, userID string, up Upload) (res *AnalysisResult, err error) {
	tr := otel.Tracer("services/AnalysisService")
	ctx, span := tr.Start(ctx, "Submit",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("file.name", up.Filename),
			attribute.Int("file.size", len(up.Data)),
		),
	)
	defer span.End()
	lg := zerolog.Ctx(ctx).With().Str("user_id", userID).Str("filename", up.Filename).Logger()

	defer func() {
		outcome := outcomeOf(err)
		if res != nil && res.Replayed {
			outcome = observability.OutcomeReplayed
		}
		observability.AnalysisRuns.WithLabelValues(outcome).Inc()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
	}()

	// 1. Resolve user.
	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	key := strings.TrimSpace(up.IdempotencyKey)
	if key != "" {
		if prior, err := s.replay(ctx, userID, key); err == nil {
			lg.Info().Str("test_id", prior.TestID).Msg("upload replayed from idempotency key")
			return prior, nil
		} else if !errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
	}

	// 2. Balance pre-check; the authoritative check is the conditional decrement.
	if user.Credits < 1 {
		return nil, ErrInsufficientCredit
	}

	// 3. Validate.
	if err := validateUpload(up); err != nil {
		return nil, err
	}

	release, err := s.Slots.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	// 4. Extract.
	text, err := s.extract(ctx, up.Data)
	if err != nil {
		lg.Warn().Err(err).Str("step", "extract").Msg("analysis step failed")
		return nil, err
	}

	// 5. Analyze.
	analysis, err := s.analyze(ctx, text)
	if err != nil {
		lg.Error().Err(err).Str("step", "analyze").Msg("analysis step failed")
		return nil, err
	}

	// 6. Render. A failure here aborts the run; nothing is stored or charged.
	pdf, err := s.render(ctx, user.FullName, analysis)
	if err != nil {
		lg.Error().Err(err).Str("step", "render").Msg("analysis step failed")
		return nil, err
	}
	release()

	// 7+8. Commit record and decrement together.
	bt := &domain.BloodTest{
		ID:            uuid.NewString(),
		UserID:        userID,
		Filename:      filepath.Base(up.Filename),
		ExtractedText: text,
		Analysis:      analysis,
		ReportPDF:     pdf,
		Status:        domain.StatusCompleted,
		CreatedAt:     time.Now().UTC(),
	}
	var remaining int
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreateBloodTest(ctx, tx, bt); err != nil {
			return fmt.Errorf("persist analysis: %w", err)
		}
		n, err := s.Ledger.Consume(ctx, tx, userID)
		if err != nil {
			return err
		}
		remaining = n
		if key != "" {
			if _, err := repo.CreateIdempotency(ctx, tx, userID, domain.ScopeBloodTestUpload, key, bt.ID, 200, s.idemTTL()); err != nil {
				if errors.Is(err, repo.ErrDuplicate) {
					return fmt.Errorf("%w: idempotency key in use", ErrConflict)
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrInsufficientCredit) {
			lg.Error().Err(err).Str("step", "commit").Msg("analysis step failed")
		}
		return nil, err
	}
	observability.CreditsConsumed.Inc()
	span.SetAttributes(attribute.String("test.id", bt.ID))
	lg.Info().Str("test_id", bt.ID).Int("credits_remaining", remaining).Msg("analysis completed")

	return &AnalysisResult{
		TestID:           bt.ID,
		Analysis:         analysis,
		Status:           bt.Status,
		CreditsRemaining: remaining,
	}, nil
}

// Get returns an owned record without the report bytes.
func (s *AnalysisService) Get(ctx context.Context, userID, testID string) (*domain.BloodTest, error) {
	tr := otel.Tracer("services/AnalysisService")
	ctx, span := tr.Start(ctx, "Get", trace.WithAttributes(attribute.String("test.id", testID)))
	defer span.End()

	bt, err := repo.GetBloodTest(ctx, s.DB, testID, userID, false)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNotFound
	}
	return bt, err
}

// Download returns the rendered report of an owned record.
func (s *AnalysisService) Download(ctx context.Context, userID, testID string) (*Report, error) {
	tr := otel.Tracer("services/AnalysisService")
	ctx, span := tr.Start(ctx, "Download", trace.WithAttributes(attribute.String("test.id", testID)))
	defer span.End()

	bt, err := repo.GetBloodTest(ctx, s.DB, testID, userID, true)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &Report{Filename: ReportFilename(bt.Filename), PDF: bt.ReportPDF}, nil
}

// List returns the user's records newest first. limit is clamped to
// [1, MaxListLimit]; <= 0 selects the maximum.
func (s *AnalysisService) List(ctx context.Context, userID string, limit int) ([]domain.BloodTest, error) {
	tr := otel.Tracer("services/AnalysisService")
	ctx, span := tr.Start(ctx, "List", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}
	items, err := repo.ListBloodTests(ctx, s.DB, userID, limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.BloodTest{}
	}
	return items, nil
}

// Stats summarizes the user's records for cache validation.
func (s *AnalysisService) Stats(ctx context.Context, userID string) (count int64, newest *time.Time, err error) {
	return repo.BloodTestsStats(ctx, s.DB, userID)
}

// ReportFilename names the download after the uploaded file.
func ReportFilename(uploaded string) string {
	base := filepath.Base(uploaded)
	if ext := filepath.Ext(base); strings.EqualFold(ext, ".pdf") {
		base = base[:len(base)-len(ext)]
	}
	return "blood_test_report_" + base + ".pdf"
}

// ---- steps ----

func (s *AnalysisService) activeUser(ctx context.Context, userID string) (*domain.User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrUnauthorized
	}
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

func (s *AnalysisService) replay(ctx context.Context, userID, key string) (*AnalysisResult, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, domain.ScopeBloodTestUpload, key, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	bt, err := repo.GetBloodTest(ctx, s.DB, rec.ResourceID, userID, false)
	if err != nil {
		return nil, err
	}
	bal, err := s.Ledger.Balance(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	return &AnalysisResult{TestID: bt.ID, Analysis: bt.Analysis, Status: bt.Status, CreditsRemaining: bal, Replayed: true}, nil
}

func validateUpload(up Upload) error {
	if !strings.EqualFold(filepath.Ext(up.Filename), ".pdf") {
		return fmt.Errorf("%w: only PDF files are accepted", ErrInvalidInput)
	}
	if len(up.Data) == 0 || !extract.LooksLikePDF(up.Data) {
		return fmt.Errorf("%w: file is not a PDF document", ErrInvalidInput)
	}
	return nil
}

func (s *AnalysisService) extract(ctx context.Context, data []byte) (string, error) {
	defer observeStep("extract", time.Now())
	sctx, cancel := withTimeout(ctx, s.Timeouts.Extract)
	defer cancel()

	text, err := s.Extractor.Extract(sctx, data)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: no text found", ErrExtraction)
	}
	return text, nil
}

func (s *AnalysisService) analyze(ctx context.Context, text string) (string, error) {
	defer observeStep("analyze", time.Now())
	sctx, cancel := withTimeout(ctx, s.Timeouts.Analyze)
	defer cancel()

	out, err := s.Analyzer.Analyze(sctx, text, "")
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %w", ErrAnalysisService, err)
	}
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("%w: empty analysis", ErrAnalysisService)
	}
	return out, nil
}

func (s *AnalysisService) render(ctx context.Context, owner, analysis string) ([]byte, error) {
	defer observeStep("render", time.Now())
	sctx, cancel := withTimeout(ctx, s.Timeouts.Render)
	defer cancel()

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	pdf, err := s.Renderer.Render(sctx, report.Input{OwnerName: owner, Date: now(), Analysis: analysis})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrRender, err)
	}
	if len(pdf) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrRender)
	}
	return pdf, nil
}

func (s *AnalysisService) idemTTL() time.Duration {
	if s.IdempotencyTTL > 0 {
		return s.IdempotencyTTL
	}
	return 24 * time.Hour
}

// ---- helpers ----

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func observeStep(step string, start time.Time) {
	observability.AnalysisStepDuration.WithLabelValues(step).Observe(time.Since(start).Seconds())
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeSuccess
	case errors.Is(err, ErrUnauthorized):
		return observability.OutcomeUnauthorized
	case errors.Is(err, ErrInsufficientCredit):
		return observability.OutcomeInsufficientCredit
	case errors.Is(err, ErrInvalidInput):
		return observability.OutcomeInvalidInput
	case errors.Is(err, ErrExtraction):
		return observability.OutcomeExtractionFailed
	case errors.Is(err, ErrAnalysisService):
		return observability.OutcomeAnalysisFailed
	case errors.Is(err, ErrRender):
		return observability.OutcomeRenderFailed
	case errors.Is(err, ErrNotFound):
		return observability.OutcomeNotFound
	default:
		return observability.OutcomeError
	}
}
