// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, storage, credentials for the analysis and payment providers,
// per-step workflow budgets, rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects the storage driver.
type DBConfig struct {
	Driver string // sqlite|postgres
	Path   string // SQLite file path
	URL    string // Postgres DSN
}

// AuthConfig holds bearer token settings.
type AuthConfig struct {
	JWTSecret      string
	AccessTokenTTL time.Duration
}

// LLMConfig configures the OpenAI-compatible analysis provider.
type LLMConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// StripeConfig configures the payment provider.
type StripeConfig struct {
	APIKey        string
	WebhookSecret string
}

// BillingConfig is the credit price model.
type BillingConfig struct {
	CreditPriceCents      int64
	Currency              string
	MaxCreditsPerPurchase int
}

// WorkflowConfig bounds the analysis pipeline.
type WorkflowConfig struct {
	MaxUploadBytes  int64
	ExtractTimeout  time.Duration
	AnalysisTimeout time.Duration
	RenderTimeout   time.Duration
	PaymentTimeout  time.Duration
	MaxConcurrent   int
}

// RedisConfig enables the shared fixed-window limiter when Addr is set.
type RedisConfig struct {
	Addr        string
	Password    string
	WindowLimit int
	Window      time.Duration
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration // must cover the analysis budget
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool
	SwaggerEnabled bool
	APIBasePath    string

	DB       DBConfig
	Auth     AuthConfig
	LLM      LLMConfig
	Stripe   StripeConfig
	Billing  BillingConfig
	Workflow WorkflowConfig

	// Rate limiting
	RateRPS   float64
	RateBurst int
	Redis     RedisConfig

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency of uploads
	IdempotencyTTL time.Duration

	OTEL OTELConfig
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		Port:              getenv("PORT", "8001"),
		ReadTimeout:       getdur("READ_TIMEOUT", 30*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 150*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api")),

		DB: DBConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:   getenv("DB_PATH", "dogbloodgpt.db"),
			URL:    getenv("DATABASE_URL", ""),
		},
		Auth: AuthConfig{
			JWTSecret:      getenv("JWT_SECRET", ""),
			AccessTokenTTL: getdur("ACCESS_TOKEN_TTL", 15*time.Minute),
		},
		LLM: LLMConfig{
			BaseURL: strings.TrimRight(getenv("OPENAI_BASE_URL", "https://api.openai.com/v1"), "/"),
			APIKey:  getenv("OPENAI_API_KEY", ""),
			Model:   getenv("OPENAI_MODEL", "gpt-4"),
		},
		Stripe: StripeConfig{
			APIKey:        getenv("STRIPE_API_KEY", ""),
			WebhookSecret: getenv("STRIPE_WEBHOOK_SECRET", ""),
		},
		Billing: BillingConfig{
			CreditPriceCents:      int64(getint("CREDIT_PRICE_CENTS", 9700)),
			Currency:              strings.ToLower(getenv("CURRENCY", "usd")),
			MaxCreditsPerPurchase: getint("MAX_CREDITS_PER_PURCHASE", 100),
		},
		Workflow: WorkflowConfig{
			MaxUploadBytes:  int64(getint("MAX_UPLOAD_BYTES", 10<<20)),
			ExtractTimeout:  getdur("EXTRACT_TIMEOUT", 15*time.Second),
			AnalysisTimeout: getdur("ANALYSIS_TIMEOUT", 60*time.Second),
			RenderTimeout:   getdur("RENDER_TIMEOUT", 60*time.Second),
			PaymentTimeout:  getdur("PAYMENT_TIMEOUT", 20*time.Second),
			MaxConcurrent:   getint("MAX_CONCURRENT_ANALYSES", 8),
		},

		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),
		Redis: RedisConfig{
			Addr:        getenv("REDIS_ADDR", ""),
			Password:    getenv("REDIS_PASSWORD", ""),
			WindowLimit: getint("RATE_WINDOW_LIMIT", 120),
			Window:      getdur("RATE_WINDOW", time.Minute),
		},

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "dogbloodgpt-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	return cfg, cfg.Validate()
}

// Validate reports the first invalid setting.
func (cfg Config) Validate() error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.URL) == "" {
			return errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if len(cfg.Auth.JWTSecret) < 16 {
		return errors.New("JWT_SECRET must be at least 16 characters")
	}
	if cfg.Auth.AccessTokenTTL <= 0 {
		return errors.New("ACCESS_TOKEN_TTL must be > 0")
	}
	if cfg.Billing.CreditPriceCents <= 0 {
		return errors.New("CREDIT_PRICE_CENTS must be > 0")
	}
	if len(cfg.Billing.Currency) != 3 {
		return errors.New("CURRENCY must be a 3-letter ISO code")
	}
	if cfg.Billing.MaxCreditsPerPurchase < 1 {
		return errors.New("MAX_CREDITS_PER_PURCHASE must be >= 1")
	}
	w := cfg.Workflow
	if w.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be > 0")
	}
	if w.ExtractTimeout <= 0 || w.AnalysisTimeout <= 0 || w.RenderTimeout <= 0 || w.PaymentTimeout <= 0 {
		return errors.New("workflow step timeouts must be positive durations")
	}
	if w.MaxConcurrent < 1 {
		return errors.New("MAX_CONCURRENT_ANALYSES must be >= 1")
	}
	if cfg.RateRPS < 0 {
		return errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Redis.Addr != "" && (cfg.Redis.WindowLimit < 1 || cfg.Redis.Window <= 0) {
		return errors.New("RATE_WINDOW_LIMIT and RATE_WINDOW must be positive when REDIS_ADDR is set")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}
	return p
}
