package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/healthcure/clinic/internal/audit"
	"github.com/healthcure/clinic/internal/crypto"
	clinichttp "github.com/healthcure/clinic/internal/http"
	"github.com/healthcure/clinic/internal/http/handlers"
	"github.com/healthcure/clinic/internal/http/middleware"
	"github.com/healthcure/clinic/internal/platform/auth"
	"github.com/healthcure/clinic/internal/platform/mailer"
	"github.com/healthcure/clinic/internal/repo/postgres"
	"github.com/healthcure/clinic/internal/service"
	"github.com/healthcure/clinic/pkg/config"
	"github.com/healthcure/clinic/pkg/database"
	"github.com/healthcure/clinic/pkg/events"
	"github.com/healthcure/clinic/pkg/logger"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("connect database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Error("ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	// The event bus is optional; everything works without it.
	var bus events.Publisher
	if cfg.NATS.URL != "" {
		natsBus, err := events.NewNATSEventBus(cfg.NATS.URL)
		if err != nil {
			logger.Warn("NATS unavailable, security events will not fan out", "error", err)
		} else {
			bus = natsBus
			defer natsBus.Close()
			logger.Info("NATS connected")
		}
	}

	var redisClient *redis.Client
	if opts, err := redis.ParseURL(cfg.Redis.URL); err != nil {
		logger.Warn("invalid redis URL, rate limiting disabled", "error", err)
	} else {
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, rate limiting fails open", "error", err)
		}
	}

	fieldCipher, err := crypto.NewFieldCipher(cfg.Crypto.FieldKey)
	if err != nil {
		logger.Error("init field cipher", "error", err)
		os.Exit(1)
	}

	userRepo := postgres.NewUserRepository(pool, fieldCipher)
	challengeRepo := postgres.NewChallengeRepository(pool)
	auditRepo := postgres.NewAuditRepository(pool)
	clinicalRepo := postgres.NewClinicalRepository(pool)

	recorder := audit.NewRecorder(auditRepo, bus)
	hasher := crypto.NewPasswordHasher(cfg.Auth.HashWorkers)
	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	challenges := service.NewChallengeManager(challengeRepo, cfg.Auth.CodeTTL, cfg.Auth.CodeLength, cfg.Auth.MaxCodeAttempts)

	var mail mailer.Service
	switch {
	case cfg.Email.DevMode:
		mail = mailer.NewDevMailer()
	case cfg.Email.MailerSendKey != "":
		mail = mailer.NewMailerSend(cfg.Email.MailerSendKey, cfg.Email.FromName, cfg.Email.SMTPFrom)
	default:
		mail = mailer.NewSMTPMailer(cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.SMTPFrom, cfg.Email.SMTPUser, cfg.Email.SMTPPass)
	}

	authService := service.NewAuthService(userRepo, hasher, challenges, issuer, mail, recorder)
	clinicalService := service.NewClinicalService(clinicalRepo, fieldCipher, recorder)

	guard := middleware.NewGuard(issuer, cfg.Auth.CookieName)
	limiter := middleware.NewRateLimiter(redisClient, 10, time.Minute)

	router := clinichttp.NewRouter(clinichttp.RouterDeps{
		Auth:        handlers.NewAuthHandler(authService, cfg.Auth.CookieName, cfg.Auth.SessionTTL),
		Admin:       handlers.NewAdminHandler(authService, clinicalService, auditRepo),
		Clinical:    handlers.NewClinicalHandler(clinicalService),
		Guard:       guard,
		Limiter:     limiter,
		FrontendURL: cfg.Server.FrontendURL,
	})

	server := clinichttp.NewServer(":"+cfg.Server.Port, router,
		cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout)

	go func() {
		logger.Info("server listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}

	logger.Info("stopped")
}
