package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/skulicheck/skulicheck-be/internal/auth"
	"github.com/skulicheck/skulicheck-be/internal/codes"
	"github.com/skulicheck/skulicheck-be/internal/config"
	"github.com/skulicheck/skulicheck-be/internal/logging"
	"github.com/skulicheck/skulicheck-be/internal/metrics"
	"github.com/skulicheck/skulicheck-be/internal/notify"
	"github.com/skulicheck/skulicheck-be/internal/server"
	"github.com/skulicheck/skulicheck-be/internal/service"
	"github.com/skulicheck/skulicheck-be/internal/sessions"
	"github.com/skulicheck/skulicheck-be/internal/storage/database"
)

func main() {
	loadLocalEnv()

	root := &cobra.Command{
		Use:           "skulicheck",
		Short:         "SkuliCheck account backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}

	var direction string
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return database.Migrate(cmd.Context(), cfg.DatabaseURL, direction)
		},
	}
	migrateCmd.Flags().StringVar(&direction, "direction", "up", "migration direction: up or down")
	root.AddCommand(migrateCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(logging.Config{Env: cfg.LogEnv, Level: cfg.LogLevel, ServiceName: "skulicheck"})
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	store, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer store.Close()

	hasher, err := auth.NewHasher(cfg.PasswordHasher, cfg.BcryptCost)
	if err != nil {
		return err
	}
	var tokens *auth.TokenManager
	if cfg.JWTSecret != "" {
		tokens = auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer)
	} else {
		logger.Warn("JWT_SECRET not set; login responses carry no access token")
	}

	m := metrics.New()
	var email notify.Gateway = notify.Disabled{Logger: logger}
	if cfg.EmailEnabled() {
		email = notify.NewMailer(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.EmailUsername,
			Password: cfg.EmailPassword,
			From:     cfg.EmailFrom,
		}, logger)
	} else {
		logger.Warn("EMAIL_USERNAME not set; verification emails will report as unsent")
	}

	svc := service.NewAuthService(service.Dependencies{
		Users:    store,
		Codes:    codes.NewLedger(store, m),
		Sessions: sessions.NewLedger(store, m),
		Hasher:   hasher,
		Tokens:   tokens,
		Email:    notify.Counted("email", email, m),
		SMS:      notify.Counted("sms", notify.SMSStub{Logger: logger}, m),
		TTLs: service.TTLs{
			RegistrationCode: cfg.RegistrationCodeTTL,
			MFACode:          cfg.MFACodeTTL,
			ResetCode:        cfg.ResetCodeTTL,
			Session:          cfg.SessionTTL,
		},
		Logger: logger,
	})

	srv := server.New(cfg, svc, store, m, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("SkuliCheck backend listening", zap.String("addr", cfg.HTTPAddress()))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown error", zap.Error(err))
		}
		return nil
	})
	return g.Wait()
}

func loadLocalEnv() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "no .env file found; relying on existing environment")
	}
}
