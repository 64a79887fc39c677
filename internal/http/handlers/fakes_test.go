package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/dogblood-backend/internal/domain"
	"github.com/tbourn/dogblood-backend/internal/http/middleware"
	"github.com/tbourn/dogblood-backend/internal/services"
)

type fakeAuth struct {
	sess *services.Session
	user *domain.User
	err  error

	email, password, name string
	profileCalls          int
}

func (f *fakeAuth) Register(_ context.Context, email, password, fullName string) (*services.Session, error) {
	f.email, f.password, f.name = email, password, fullName
	return f.sess, f.err
}

func (f *fakeAuth) Login(_ context.Context, email, password string) (*services.Session, error) {
	f.email, f.password = email, password
	return f.sess, f.err
}

func (f *fakeAuth) Profile(_ context.Context, _ string) (*domain.User, error) {
	f.profileCalls++
	return f.user, f.err
}

type fakeAnalysis struct {
	result *services.AnalysisResult
	test   *domain.BloodTest
	report *services.Report
	list   []domain.BloodTest
	count  int64
	newest *time.Time
	err    error

	upload    services.Upload
	submitted int
	limit     int
	userID    string
	testID    string
}

func (f *fakeAnalysis) Submit(_ context.Context, userID string, up services.Upload) (*services.AnalysisResult, error) {
	f.submitted++
	f.userID, f.upload = userID, up
	return f.result, f.err
}

func (f *fakeAnalysis) Get(_ context.Context, userID, testID string) (*domain.BloodTest, error) {
	f.userID, f.testID = userID, testID
	return f.test, f.err
}

func (f *fakeAnalysis) Download(_ context.Context, userID, testID string) (*services.Report, error) {
	f.userID, f.testID = userID, testID
	return f.report, f.err
}

func (f *fakeAnalysis) List(_ context.Context, userID string, limit int) ([]domain.BloodTest, error) {
	f.userID, f.limit = userID, limit
	return f.list, f.err
}

func (f *fakeAnalysis) Stats(context.Context, string) (int64, *time.Time, error) {
	return f.count, f.newest, nil
}

type fakeChat struct {
	answer string
	msgs   []domain.ChatMessage
	err    error

	testID, question string
}

func (f *fakeChat) Ask(_ context.Context, _, testID, question string) (string, error) {
	f.testID, f.question = testID, question
	return f.answer, f.err
}

func (f *fakeChat) History(_ context.Context, _, testID string) ([]domain.ChatMessage, error) {
	f.testID = testID
	return f.msgs, f.err
}

type fakePayments struct {
	checkout *services.Checkout
	status   *services.PaymentStatus
	err      error

	credits   int
	host      string
	sessionID string
	payload   []byte
	signature string
}

func (f *fakePayments) CreateCheckout(_ context.Context, _ string, credits int, hostURL string) (*services.Checkout, error) {
	f.credits, f.host = credits, hostURL
	return f.checkout, f.err
}

func (f *fakePayments) Status(_ context.Context, sessionID string) (*services.PaymentStatus, error) {
	f.sessionID = sessionID
	return f.status, f.err
}

func (f *fakePayments) HandleWebhook(_ context.Context, payload []byte, signature string) error {
	f.payload, f.signature = payload, signature
	return f.err
}

type fixture struct {
	auth     *fakeAuth
	analysis *fakeAnalysis
	chat     *fakeChat
	payments *fakePayments
	h        *Handlers
}

func newFixture() *fixture {
	f := &fixture{
		auth:     &fakeAuth{},
		analysis: &fakeAnalysis{},
		chat:     &fakeChat{},
		payments: &fakePayments{},
	}
	f.h = New(f.auth, f.analysis, f.chat, f.payments)
	return f
}

// router mounts the handlers at their API paths. A non-empty uid simulates
// RequireAuth.
func (f *fixture) router(uid string, extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(func(c *gin.Context) {
		if uid != "" {
			c.Set(middleware.UserIDKey, uid)
		}
		c.Next()
	})
	r.Use(extra...)

	r.POST("/api/auth/register", f.h.Register)
	r.POST("/api/auth/login", f.h.Login)
	r.GET("/api/user/profile", f.h.Profile)
	r.GET("/api/user/blood-tests", f.h.ListBloodTests)
	r.POST("/api/blood-test/upload", f.h.UploadBloodTest)
	r.GET("/api/blood-test/:test_id", f.h.GetBloodTest)
	r.GET("/api/blood-test/:test_id/download", f.h.DownloadReport)
	r.POST("/api/chat/ask", f.h.Ask)
	r.GET("/api/chat/:session_id/messages", f.h.ChatHistory)
	r.POST("/api/payments/create-checkout", f.h.CreateCheckout)
	r.GET("/api/payments/status/:session_id", f.h.PaymentStatus)
	r.POST("/api/webhook/stripe", f.h.StripeWebhook)
	r.GET("/", Root)
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}
