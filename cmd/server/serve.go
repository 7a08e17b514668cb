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

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"remit/internal/api"
	"remit/internal/assistant"
	"remit/internal/config"
	"remit/internal/db"
	"remit/internal/gateway"
	"remit/internal/logging"
	"remit/internal/middleware"
	"remit/internal/models"
	"remit/internal/notify"
	"remit/internal/settlement"
	"remit/internal/store"
)

const shutdownTimeout = 20 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API.

Payments, receipts and the chat assistant are optional: without credentials
the server still starts and reports them as unavailable on /api/health.

Examples:
  remit serve
  DB_DRIVER=memory APP_ENV=development remit serve`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) (err error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	st, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, closeStore())
	}()

	charger := gateway.NewSquareClient(gateway.Config{
		AccessToken: cfg.Payment.AccessToken,
		LocationID:  cfg.Payment.LocationID,
		Environment: cfg.Payment.Environment,
		BaseURL:     cfg.Payment.BaseURL,
		Timeout:     cfg.Payment.Timeout,
	}, logger)

	mailer := notify.NewSMTPMailer(notify.SMTPConfig{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
	})
	dispatcher := notify.NewDispatcher(mailer, st, notify.Config{
		OpsAddress:   cfg.Mail.OpsAddress,
		RateCurrency: cfg.Mail.RateCurrency,
	}, logger)

	svc := settlement.NewService(st, charger, dispatcher, settlement.Config{
		MaxAmountMinor:     cfg.Payment.MaxAmountMinor,
		ClaimTTL:           cfg.Settlement.ClaimTTL,
		TransferFeePercent: cfg.Settlement.TransferFeePercent,
		OrderCurrency:      cfg.Settlement.OrderCurrency,
	}, logger)

	var completer assistant.Completer
	if cfg.Assistant.APIKey != "" {
		completer = assistant.NewOpenAIClient(assistant.Config{
			APIKey:    cfg.Assistant.APIKey,
			Model:     cfg.Assistant.Model,
			BaseURL:   cfg.Assistant.BaseURL,
			MaxTokens: cfg.Assistant.MaxTokens,
		})
	}
	asst, err := assistant.New(completer, logger)
	if err != nil {
		return err
	}

	if !charger.Configured() {
		logger.Warn("payment gateway not configured; settlement requests will be rejected")
	}
	if !mailer.Configured() {
		logger.Warn("mail server not configured; receipts will not be sent")
	}

	server := api.NewServer(api.Deps{
		Addr:         ":" + cfg.Port,
		ChargeBudget: gateway.MaxChargeDuration(cfg.Payment.Timeout),
		Store:        st,
		Settlement:   svc,
		Assistant:    asst,
		UserAuth:     middleware.NewAuthenticator(cfg.Auth.JWTSecret, models.AudienceUser, cfg.Auth.TokenTTL),
		AdminAuth:    middleware.NewAuthenticator(cfg.Auth.AdminJWTSecret, models.AudienceAdmin, cfg.Auth.TokenTTL),
		Status:       api.Status{Gateway: charger.Configured(), Mailer: mailer.Configured()},
		Logger:       logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server stopped: %w", err)
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	shutdownErr := server.Shutdown(ctx)
	svc.Wait()
	logger.Info("server stopped")
	return shutdownErr
}

// openStore returns the configured backend and a function releasing it.
func openStore(cfg *config.Config, logger *zap.Logger) (store.Store, func() error, error) {
	if cfg.DB.Driver == "memory" {
		if !cfg.IsDevelopment() {
			logger.Warn("using in-memory store; data is lost on restart")
		}
		st := store.NewMemoryStore()
		return st, st.Close, nil
	}

	conn, err := db.InitDB(cfg.DB, logger)
	if err != nil {
		return nil, nil, err
	}
	st := store.NewPostgresStore(conn)
	return st, st.Close, nil
}
