package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/talentbridge/platform/internal/api"
	"github.com/talentbridge/platform/internal/circuitbreaker"
	"github.com/talentbridge/platform/internal/config"
	"github.com/talentbridge/platform/internal/db"
	"github.com/talentbridge/platform/internal/directory"
	"github.com/talentbridge/platform/internal/mail"
	"github.com/talentbridge/platform/internal/metrics"
	"github.com/talentbridge/platform/internal/notify"
	"github.com/talentbridge/platform/internal/observ"
	"github.com/talentbridge/platform/internal/realtime"
	"github.com/talentbridge/platform/internal/redis"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting talentbridge notification service",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
	)

	ctx := context.Background()
	database, err := db.New(ctx, db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create database pool: %w", err)
	}
	defer database.Close()

	// Startup probe. Failure does not stop the boot; the lazy pool retries
	// under real queries.
	guardian := db.NewGuardian(database, logger)
	if !guardian.Connect(ctx, cfg.ConnectMaxRetries, time.Duration(cfg.ConnectBaseDelayMs)*time.Millisecond) {
		logger.Warn("database unreachable at startup, continuing with lazy reconnect")
	}

	// The store is unusable without its schema; migration failure is fatal.
	migrator := db.NewMigrator(database.Pool(), logger)
	if err := migrator.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	// Redis backs the upstream event guard and rate limiting. Both degrade
	// to pass-through when it is absent.
	var eventGuard api.EventGuard
	var rateLimiter *redis.RateLimiter
	redisClient, err := redis.New(ctx, redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.Warn("redis unavailable, duplicate-action suppression and rate limiting disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
	} else {
		defer redisClient.Close()
		guard := redis.NewEventGuard(redisClient, logger, redis.DefaultEventWindow)
		breaker := circuitbreaker.New(circuitbreaker.DefaultConfig("event-guard"), logger)
		eventGuard = circuitbreaker.NewProtectedGuard(guard, breaker, logger)
		rateLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  100,
			Window: 1 * time.Minute,
		})
	}

	var mailer notify.Mailer
	if cfg.AdminEmail != "" {
		sesMailer, err := mail.NewSESMailer(ctx, mail.Config{
			Region:    cfg.AWSRegion,
			FromEmail: cfg.SESFromEmail,
			ToEmail:   cfg.AdminEmail,
		}, logger)
		if err != nil {
			logger.Warn("SES unavailable, admin email copies disabled", zap.Error(err))
		} else {
			mailer = sesMailer
		}
	}

	hub := realtime.NewHub(16, logger)
	store := notify.NewPGStore(database, logger)
	dispatcher := notify.NewDispatcher(store, hub, mailer, logger)
	students := directory.New(database, logger)

	handler := api.NewHandler(logger, dispatcher, store, eventGuard, students, hub)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	// Custom logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration_ms", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	})

	r.Route("/v1", func(r chi.Router) {
		// The stream endpoint holds connections open, so the request
		// timeout applies only to the rest of the API.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Use(api.RateLimitMiddleware(rateLimiter, logger, api.IPKeyFunc))

			r.Post("/programs/assign", handler.AssignProgram)
			r.Post("/interviews/schedule", handler.ScheduleInterview)
			r.Post("/admin/notify", handler.NotifyAdmins)
			r.Get("/notifications", handler.ListNotifications)
		})

		r.Get("/notifications/stream", handler.StreamNotifications)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := database.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("database unreachable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE streams stay open indefinitely
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}
