package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/nalauth/server/internal/auth"
	"github.com/nalauth/server/internal/config"
	"github.com/nalauth/server/internal/db"
	httpapi "github.com/nalauth/server/internal/http"
	"github.com/nalauth/server/internal/http/handlers"
	"github.com/nalauth/server/internal/logger"
	"github.com/nalauth/server/internal/repo"
	"github.com/nalauth/server/internal/sms"
)

func main() {
	// Env vars override .env values
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("auth-api", cfg.LogLevel)

	ctx := context.Background()

	log.Info("connecting to database", slog.String("dsn", db.RedactedDSN(cfg.DatabaseURL)))
	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer database.Close()

	if err := runMigrations(database); err != nil {
		log.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	// Repositories
	userRepo := repo.NewUserRepo(database)
	otpRepo := repo.NewOtpRepo(database)
	rateLimitRepo := repo.NewRateLimitRepo(database)
	refreshRepo := repo.NewRefreshRepo(database)
	profileRepo := repo.NewProfileRepo(database)

	// Components
	limiter := auth.NewRateLimiter(rateLimitRepo, cfg.RateLimitWindow, cfg.RateLimitMax)
	otpStore := auth.NewOtpStore(otpRepo, cfg.OTPSalt, cfg.OTPLength, cfg.OTPTTL, cfg.OTPMaxAttempts)
	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, refreshRepo)

	sender, err := sms.New(sms.Config{
		Provider:         cfg.SMSProvider,
		TwilioAccountSID: cfg.TwilioAccountSID,
		TwilioAuthToken:  cfg.TwilioAuthToken,
		TwilioFromNumber: cfg.TwilioFromNumber,
	}, log)
	if err != nil {
		log.Error("failed to configure sms provider", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.DevMode {
		log.Warn("dev mode enabled, OTP codes are echoed in responses")
	}

	authService := auth.NewAuthService(
		limiter, otpStore, tokens,
		userRepo, profileRepo, sender, log,
		cfg.OTPCooldown, cfg.ProfileCompletionThreshold, cfg.DevMode,
	)

	authHandler := handlers.NewAuthHandler(authService, userRepo, profileRepo, log)
	router := httpapi.NewRouter(authHandler, tokens, database)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	go runJanitor(janitorCtx, log, otpRepo, rateLimitRepo)

	go func() {
		log.Info("server starting", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	stopJanitor()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server exited")
}

// runJanitor periodically deletes dead OTP challenges and stale rate-limit
// windows. Live state is never touched; a failed sweep only logs.
func runJanitor(ctx context.Context, log *slog.Logger, otpRepo repo.OtpRepo, rateLimitRepo repo.RateLimitRepo) {
	const interval = time.Hour
	const retention = 24 * time.Hour

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-retention)
			if n, err := otpRepo.PurgeExpired(ctx, cutoff); err != nil {
				log.Warn("otp purge failed", slog.Any("error", err))
			} else if n > 0 {
				log.Info("purged otp challenges", slog.Int64("count", n))
			}
			if n, err := rateLimitRepo.PurgeStale(ctx, cutoff); err != nil {
				log.Warn("rate limit purge failed", slog.Any("error", err))
			} else if n > 0 {
				log.Info("purged rate limit windows", slog.Int64("count", n))
			}
		}
	}
}

// runMigrations runs database migrations using goose
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
