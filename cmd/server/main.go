// Command server runs the lead-intake HTTP service: it receives WhatsApp
// webhook deliveries, buffers message fragments in Redis, debounces per
// conversation, and processes each quiet conversation into one model turn
// whose reply is dispatched back through the messaging relay.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/advdigital/go-lead-intake/internal/buffer"
	"github.com/advdigital/go-lead-intake/internal/config"
	"github.com/advdigital/go-lead-intake/internal/dispatch"
	"github.com/advdigital/go-lead-intake/internal/extract"
	httpapi "github.com/advdigital/go-lead-intake/internal/http"
	"github.com/advdigital/go-lead-intake/internal/llm"
	"github.com/advdigital/go-lead-intake/internal/observability"
	"github.com/advdigital/go-lead-intake/internal/repo"
	"github.com/advdigital/go-lead-intake/internal/scheduler"
	"github.com/advdigital/go-lead-intake/internal/services"
	"github.com/advdigital/go-lead-intake/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Local development convenience; the file is optional.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	// Logging
	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	log.Info().
		Str("version", version).
		Str("port", cfg.Port).
		Dur("debounce_window", cfg.DebounceWindow).
		Msg("starting lead-intake server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	// SQLite
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database failed")
	}

	// Redis (debounce buffer + schedule tokens)
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancelPing()
		log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis ping failed")
	}
	cancelPing()

	// Turn pipeline
	turnSvc := &services.TurnService{
		DB:     db,
		Buffer: buffer.New(rdb, cfg.BufferTTL),
		Dispatch: dispatch.New(dispatch.Options{
			BaseURL:        cfg.Dispatch.URL,
			Instance:       cfg.Dispatch.Instance,
			APIKey:         cfg.Dispatch.APIKey,
			Timeout:        cfg.Dispatch.Timeout,
			MaxRetries:     cfg.Dispatch.MaxRetries,
			RetryBaseDelay: cfg.Dispatch.RetryBaseDelay,
			Logger:         log.With().Str("component", "dispatch").Logger(),
		}),
		Extractor:       extract.New(""),
		PauseOnComplete: cfg.PauseOnComplete,
		Log:             log.With().Str("component", "turn").Logger(),
	}
	// Assign only on success so the nil check inside the service stays valid.
	if mdl, err := llm.New(cfg.LLM); err != nil {
		log.Warn().Err(err).Msg("model not configured; turns will fail until it is")
	} else {
		turnSvc.Model = mdl
		log.Info().Str("provider", cfg.LLM.Provider).Str("model", mdl.Model()).Msg("model ready")
	}

	sched := scheduler.New(rdb, cfg.DebounceWindow, cfg.BufferTTL, turnSvc.Flush,
		log.With().Str("component", "scheduler").Logger())

	intakeSvc := &services.IntakeService{
		DB:          db,
		Buffer:      turnSvc.Buffer,
		Sched:       sched,
		DeliveryTTL: cfg.DeliveryTTL,
		Log:         log.With().Str("component", "intake").Logger(),
	}
	leadSvc := &services.LeadService{DB: db}

	// HTTP
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Services{
		Intake: intakeSvc,
		Flush:  turnSvc,
		Leads:  leadSvc,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("http server failed")
	}
	stop()

	// Drain in-flight requests first, then the rest. Pending debounce timers
	// are dropped; their fragments stay in Redis and are picked up on the next
	// inbound message or an external flush.
	shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	sched.Stop()
	if err := rdb.Close(); err != nil {
		log.Warn().Err(err).Msg("redis close failed")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if err := shutdownOTel(shutCtx); err != nil {
		log.Warn().Err(err).Msg("otel shutdown failed")
	}
	log.Info().Msg("server stopped")
}
