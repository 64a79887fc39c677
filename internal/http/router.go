// Package httpapi wires the HTTP transport (Gin) to the application services,
// middleware, and route handlers of the DogBloodGPT API.
//
// Middleware order:
//  1. OpenTelemetry
//  2. RequestID
//  3. RedactingLogger
//  4. Recovery
//  5. Body size limit
//  6. Metrics
//  7. gzip, CORS, security headers
//
// Protected routes add RequireAuth, then the rate limiter. The upload route
// additionally validates Idempotency-Key before the limiter so a replay of a
// finished upload is not charged against the user's budget.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/dogblood-backend/docs"
	"github.com/tbourn/dogblood-backend/internal/config"
	"github.com/tbourn/dogblood-backend/internal/domain"
	"github.com/tbourn/dogblood-backend/internal/http/handlers"
	"github.com/tbourn/dogblood-backend/internal/http/middleware"
	"github.com/tbourn/dogblood-backend/internal/repo"
)

// AuthService serves both the account endpoints and bearer authentication.
type AuthService interface {
	handlers.AuthService
	middleware.Authenticator
}

// Deps are the collaborators RegisterRoutes mounts.
type Deps struct {
	DB       *gorm.DB
	Auth     AuthService
	Analysis handlers.AnalysisService
	Chat     handlers.ConversationService
	Payments handlers.PaymentService

	// Limiter guards protected routes. Nil means an in-process token bucket
	// sized from the config.
	Limiter middleware.Limiter
}

var corsHeaders = []string{
	"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey,
}

// RegisterRoutes attaches all middleware and endpoints to r.
func RegisterRoutes(r *gin.Engine, d Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))
	r.Use(middleware.Recovery())

	// Uploads carry multipart framing on top of the file itself.
	uploadCap := cfg.Workflow.MaxUploadBytes
	if uploadCap <= 0 {
		uploadCap = 10 << 20
	}
	r.Use(limitBody(uploadCap + 1<<20))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/", handlers.Root)

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(d.Auth, d.Analysis, d.Chat, d.Payments)
	if cfg.Workflow.MaxUploadBytes > 0 {
		h.MaxUploadBytes = cfg.Workflow.MaxUploadBytes
	}

	limiter := d.Limiter
	if limiter == nil {
		limiter = middleware.NewTokenBucket(cfg.RateRPS, cfg.RateBurst)
	}
	limit := middleware.RateLimit(limiter, middleware.KeyByUserOrIP())
	requireAuth := middleware.RequireAuth(d.Auth)

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.POST("/auth/register", h.Register)
		api.POST("/auth/login", h.Login)

		api.GET("/payments/status/:session_id", h.PaymentStatus)
		api.POST("/webhook/stripe", h.StripeWebhook)
	}

	protected := api.Group("", requireAuth)
	{
		protected.GET("/user/profile", limit, h.Profile)

		protected.GET("/user/blood-tests", limit, h.ListBloodTests)
		protected.POST("/blood-test/upload",
			middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, uploadLookup(d.DB)),
			limit,
			h.UploadBloodTest,
		)
		protected.GET("/blood-test/:test_id", limit, h.GetBloodTest)
		protected.GET("/blood-test/:test_id/download", limit, h.DownloadReport)

		protected.POST("/chat/ask", limit, h.Ask)
		protected.GET("/chat/:session_id/messages", limit, h.ChatHistory)

		protected.POST("/payments/create-checkout", limit, h.CreateCheckout)
	}
}

// NewLimiter returns the shared Redis window when REDIS_ADDR is configured,
// else nil so RegisterRoutes falls back to the in-process bucket. The
// returned close func is never nil.
func NewLimiter(ctx context.Context, cfg config.Config) (middleware.Limiter, func() error, error) {
	noop := func() error { return nil }
	if cfg.Redis.Addr == "" {
		return nil, noop, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, noop, err
	}
	w, err := middleware.NewRedisWindow(rdb, "dogblood:ratelimit", cfg.Redis.WindowLimit, cfg.Redis.Window)
	if err != nil {
		_ = rdb.Close()
		return nil, noop, err
	}
	return w, rdb.Close, nil
}

// uploadLookup reports whether the user already finished an upload under key.
func uploadLookup(db *gorm.DB) middleware.IdempotencyLookup {
	return func(ctx context.Context, userID, key string, now time.Time) (bool, error) {
		if db == nil {
			return false, nil
		}
		_, err := repo.GetIdempotency(ctx, db, userID, domain.ScopeBloodTestUpload, key, now)
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		return err == nil, err
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  corsHeaders,
		ExposeHeaders: []string{"X-Request-ID", "Content-Disposition", "Content-Length", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		// AllowCredentials must stay false with a wildcard origin.
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
		c.AllowCredentials = true
	}
	return cors.New(c)
}

// limitBody caps the request body at maxBytes. Reads beyond it fail with
// *http.MaxBytesError.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
