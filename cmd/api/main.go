package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/dailygrain/server/internal/auth"
	"github.com/dailygrain/server/internal/config"
	"github.com/dailygrain/server/internal/db"
	"github.com/dailygrain/server/internal/digest"
	"github.com/dailygrain/server/internal/habit"
	httphandler "github.com/dailygrain/server/internal/http"
	"github.com/dailygrain/server/internal/http/handlers"
	"github.com/dailygrain/server/internal/interpreter"
	"github.com/dailygrain/server/internal/repo"
	"github.com/dailygrain/server/internal/sms"
)

func main() {
	_ = godotenv.Load(".env")

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	ctx := context.Background()

	var (
		users  repo.UserStore
		habits repo.HabitStore
		logs   repo.HabitLogStore
		states repo.ConversationStateStore
		codes  repo.LoginCodeStore
	)
	if cfg.DevMode {
		logger.Info("dev mode: using in-memory storage")
		mem := repo.NewMemoryStore()
		users, habits, logs, states, codes = mem, mem, mem, mem, mem
	} else {
		database, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("failed to open database", zap.Error(err))
		}
		defer database.Close()

		if err := runMigrations(database); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}

		users = repo.NewUserStore(database)
		habits = repo.NewHabitStore(database)
		logs = repo.NewHabitLogStore(database)
		states = repo.NewConversationStateStore(database)
		codes = repo.NewLoginCodeStore(database)
	}

	var transport sms.Transport
	if cfg.TwilioConfigured() {
		transport = sms.NewTwilioTransport(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioPhoneNumber, logger)
	} else {
		logger.Warn("twilio credentials not configured, sms sending disabled")
		transport = sms.NewDisabledTransport(logger)
	}

	habitSvc := habit.NewService(habits, logs)
	composer := digest.NewComposer(habits, logs, habitSvc)
	dispatcher := digest.NewDispatcher(users, composer, transport, logger)
	interp := interpreter.New(users, habits, logs, states, habitSvc, composer, logger)

	jwtService := auth.NewJWTService(cfg.JWTSecret)
	authService := auth.NewService(codes, users, transport, jwtService, cfg.CodeSalt, cfg.DevMode, logger)

	webhookHandler := handlers.NewWebhookHandler(interp, logger)
	digestHandler := handlers.NewDigestHandler(dispatcher, cfg.CronSecret, logger)
	authHandler := handlers.NewAuthHandler(authService, logger)
	dashboardHandler := handlers.NewDashboardHandler(habits, habitSvc, logger)

	router := httphandler.NewRouter(webhookHandler, digestHandler, authHandler, dashboardHandler, jwtService, users)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}

// runMigrations runs database migrations using goose.
func runMigrations(database *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	migrationDir := "internal/db/migrations"
	if info, err := os.Stat(migrationDir); err != nil || !info.IsDir() {
		return fmt.Errorf("migrations directory not found (run from the repo root)")
	}

	if err := goose.Up(database, migrationDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
