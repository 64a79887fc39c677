package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"gorm.io/gorm"

	"github.com/tbourn/dogblood-backend/internal/domain"
	"github.com/tbourn/dogblood-backend/internal/payments"
	"github.com/tbourn/dogblood-backend/internal/report"
	"github.com/tbourn/dogblood-backend/internal/repo"
)

// pdfBytes passes the magic-byte check; the fake extractor never parses it.
var pdfBytes = []byte("%PDF-1.4\n% fake body\n%%EOF\n")

var errBoom = errors.New("boom")

// newServiceDB returns a migrated database serialized on one connection.
func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := openServiceDB(t)
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB: %v", err)
	}
	// Every statement inside a transaction goes through tx, so one
	// connection cannot self-deadlock.
	sqlDB.SetMaxOpenConns(1)
	return db
}

// newPooledServiceDB keeps the production connection pool so concurrent
// callers really race in the database.
func newPooledServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	return openServiceDB(t)
}

func openServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "services.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, email string, credits int) *domain.User {
	t.Helper()
	u, err := repo.CreateUser(context.Background(), db, email, "Alice Owner", "x")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if credits > 0 {
		if err := repo.GrantCredits(context.Background(), db, u.ID, credits); err != nil {
			t.Fatalf("GrantCredits: %v", err)
		}
	}
	u.Credits = credits
	return u
}

func balance(t *testing.T, db *gorm.DB, userID string) int {
	t.Helper()
	n, err := repo.GetCredits(context.Background(), db, userID)
	if err != nil {
		t.Fatalf("GetCredits: %v", err)
	}
	return n
}

func countTests(t *testing.T, db *gorm.DB, userID string) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&domain.BloodTest{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

// ----- Fakes -----

type fakeExtractor struct {
	text  string
	err   error
	calls atomic.Int32
}

func (f *fakeExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	f.calls.Add(1)
	return f.text, f.err
}

type fakeAnalyzer struct {
	mu        sync.Mutex
	answer    string
	err       error
	block     bool
	questions []string
	texts     []string
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, testText, question string) (string, error) {
	f.mu.Lock()
	f.questions = append(f.questions, question)
	f.texts = append(f.texts, testText)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.answer, f.err
}

type fakeRenderer struct {
	err   error
	mu    sync.Mutex
	input report.Input
}

func (f *fakeRenderer) Render(ctx context.Context, in report.Input) ([]byte, error) {
	f.mu.Lock()
	f.input = in
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-1.3 report"), nil
}

type fakeGateway struct {
	mu       sync.Mutex
	req      payments.CheckoutRequest
	session  *payments.Session
	status   *payments.Status
	event    *payments.WebhookEvent
	err      error
	webhookE error
}

func (g *fakeGateway) CreateSession(ctx context.Context, req payments.CheckoutRequest) (*payments.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.req = req
	if g.err != nil {
		return nil, g.err
	}
	return g.session, nil
}

func (g *fakeGateway) GetStatus(ctx context.Context, sessionID string) (*payments.Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	st := *g.status
	st.SessionID = sessionID
	return &st, nil
}

func (g *fakeGateway) VerifyAndParseWebhook(payload []byte, signature string) (*payments.WebhookEvent, error) {
	if g.webhookE != nil {
		return nil, g.webhookE
	}
	return g.event, nil
}

func newAnalysis(db *gorm.DB, ex *fakeExtractor, an *fakeAnalyzer, rd *fakeRenderer) *AnalysisService {
	return NewAnalysisService(db, ex, an, rd, NewSlots(4), StepTimeouts{})
}
