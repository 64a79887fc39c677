package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/dogblood-backend/internal/ai"
	"github.com/tbourn/dogblood-backend/internal/auth"
	"github.com/tbourn/dogblood-backend/internal/config"
	"github.com/tbourn/dogblood-backend/internal/extract"
	httpapi "github.com/tbourn/dogblood-backend/internal/http"
	"github.com/tbourn/dogblood-backend/internal/observability"
	"github.com/tbourn/dogblood-backend/internal/payments"
	"github.com/tbourn/dogblood-backend/internal/report"
	"github.com/tbourn/dogblood-backend/internal/repo"
	"github.com/tbourn/dogblood-backend/internal/services"
	"github.com/tbourn/dogblood-backend/internal/sysutil"
)

const shutdownGrace = 30 * time.Second

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API. Configuration comes from the environment (and .env).

Examples:
  dogbloodgpt serve
  dogbloodgpt serve --addr :9000`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default \":$PORT\")")
	return cmd
}

func runServe(parent context.Context, addr string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	sysutil.ConfigureLogger(cfg.LogLevel, cfg.LogPretty, os.Stderr)
	gin.SetMode(cfg.GinMode)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	version := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), Version)
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	deps, closeDeps, err := buildDeps(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeDeps()

	r := gin.New()
	httpapi.RegisterRoutes(r, deps, cfg)

	if addr == "" {
		addr = net.JoinHostPort("", cfg.Port)
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
		BaseContext:       func(net.Listener) context.Context { return log.Logger.WithContext(context.Background()) },
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", addr).
			Str("version", version).
			Str("db_driver", cfg.DB.Driver).
			Bool("redis_rate_limit", cfg.Redis.Addr != "").
			Msg("server starting")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutdown signal received")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	log.Info().Msg("server stopped gracefully")
	return nil
}

func openDB(cfg config.Config) (*gorm.DB, error) {
	db, err := repo.Open(cfg.DB, cfg.OTEL.Enabled)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// buildDeps constructs the providers and services. The returned close func
// releases the rate limiter's connection.
func buildDeps(ctx context.Context, cfg config.Config, db *gorm.DB) (httpapi.Deps, func(), error) {
	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)
	if err != nil {
		return httpapi.Deps{}, nil, err
	}
	if cfg.LLM.APIKey == "" {
		log.Warn().Msg("OPENAI_API_KEY is empty; analysis calls will fail")
	}
	if cfg.Stripe.APIKey == "" {
		log.Warn().Msg("STRIPE_API_KEY is empty; checkout calls will fail")
	}

	w := cfg.Workflow
	llm := ai.NewClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, &http.Client{Timeout: w.AnalysisTimeout + 5*time.Second})
	analyst := ai.NewAnalyst(llm)
	slots := services.NewSlots(w.MaxConcurrent)

	analysis := services.NewAnalysisService(db, extract.NewPDFExtractor(), analyst, report.NewPDFRenderer(), slots,
		services.StepTimeouts{Extract: w.ExtractTimeout, Analyze: w.AnalysisTimeout, Render: w.RenderTimeout})
	analysis.IdempotencyTTL = cfg.IdempotencyTTL

	gateway := payments.NewStripeGateway(payments.Options{
		APIKey:        cfg.Stripe.APIKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
	})
	pricing := services.Pricing{
		UnitAmountCents: cfg.Billing.CreditPriceCents,
		Currency:        cfg.Billing.Currency,
		MaxCredits:      cfg.Billing.MaxCreditsPerPurchase,
	}

	limiter, closeLimiter, err := httpapi.NewLimiter(ctx, cfg)
	if err != nil {
		return httpapi.Deps{}, nil, fmt.Errorf("rate limiter: %w", err)
	}

	deps := httpapi.Deps{
		DB:       db,
		Auth:     services.NewAuthService(db, tokens, auth.NewPasswordService()),
		Analysis: analysis,
		Chat:     services.NewConversationService(db, analyst, slots, w.AnalysisTimeout),
		Payments: services.NewPaymentService(db, gateway, pricing, w.PaymentTimeout),
		Limiter:  limiter,
	}
	return deps, func() { _ = closeLimiter() }, nil
}
