// Command server runs the matching API: it loads configuration, opens the
// SQLite store, seeds the topic catalog, wires the asynq worker and scheduler
// for the daily expiry sweep, mounts the Gin router, and serves HTTP with
// graceful shutdown.
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
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tomoapp/go-match-backend/internal/clock"
	"github.com/tomoapp/go-match-backend/internal/config"
	httpapi "github.com/tomoapp/go-match-backend/internal/http"
	"github.com/tomoapp/go-match-backend/internal/jobs"
	"github.com/tomoapp/go-match-backend/internal/notify"
	"github.com/tomoapp/go-match-backend/internal/observability"
	"github.com/tomoapp/go-match-backend/internal/repo"
	"github.com/tomoapp/go-match-backend/internal/services"
	"github.com/tomoapp/go-match-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing (no-op unless OTEL_ENABLED).
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		ctxSd, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(ctxSd); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	// Storage.
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if cfg.OTEL.Enabled {
		if err := repo.EnableTracing(db); err != nil {
			log.Warn().Err(err).Msg("gorm tracing plugin")
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	clk := clock.System{}
	sessionSvc := services.NewSessionService(db, clk)

	// Topic catalog must exist before the first allocation.
	if err := services.NewTopicService(db).Seed(ctx); err != nil {
		log.Fatal().Err(err).Msg("seed topics")
	}

	if cfg.SweepOnStart {
		if flipped, err := sessionSvc.ExpireStale(ctx); err != nil {
			log.Warn().Err(err).Msg("startup expiry sweep")
		} else {
			log.Info().Int64("flipped", flipped).Msg("startup expiry sweep")
		}
	}

	// Background jobs and push dispatch ride on asynq when Redis is
	// configured; without it the sweep still runs at startup and push
	// notifications are dropped.
	var dispatcher notify.Dispatcher = notify.Nop{}
	if cfg.RedisAddr != "" {
		redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr}

		client := asynq.NewClient(redisOpt)
		defer client.Close()
		dispatcher = notify.NewAsynqDispatcher(client)

		worker := asynq.NewServer(redisOpt, asynq.Config{Concurrency: 2})
		go func() {
			if err := worker.Run(jobs.NewMux(sessionSvc)); err != nil {
				log.Error().Err(err).Msg("asynq worker stopped")
			}
		}()
		defer worker.Shutdown()

		scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Location: time.UTC})
		if err := jobs.RegisterSchedules(scheduler); err != nil {
			log.Fatal().Err(err).Msg("register schedules")
		}
		go func() {
			if err := scheduler.Run(); err != nil {
				log.Error().Err(err).Msg("asynq scheduler stopped")
			}
		}()
		defer scheduler.Shutdown()
	} else {
		log.Warn().Msg("REDIS_ADDR not set; daily sweep and push dispatch disabled")
	}

	// HTTP transport.
	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, clk, dispatcher, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	ctxSd, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctxSd); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
