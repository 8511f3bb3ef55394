package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"

	"donasiku_backend/internals/configs"
	database "donasiku_backend/internals/databases"
	"donasiku_backend/internals/features/donations/gateway_events/repository"
	"donasiku_backend/internals/features/donations/gateway_events/scheduler"
	"donasiku_backend/internals/features/donations/gateways"
	"donasiku_backend/internals/features/donations/gateways/coinpayments"
	"donasiku_backend/internals/features/donations/gateways/midtrans"
	"donasiku_backend/internals/features/donations/gateways/paypal"
	"donasiku_backend/internals/features/donations/gateways/stripe"
	"donasiku_backend/internals/features/donations/ledger"
	"donasiku_backend/internals/features/donations/notifications"
	"donasiku_backend/internals/features/donations/payments/service"
	"donasiku_backend/internals/features/donations/reconciliation"
	helper "donasiku_backend/internals/helpers"
	"donasiku_backend/internals/middlewares"
	routes "donasiku_backend/internals/route"
	routeDetails "donasiku_backend/internals/route/details"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, webhook endpoints and event reaper",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	e, err := bootstrap(true)
	if err != nil {
		return err
	}
	defer e.close()
	cfg, logger := e.cfg, e.logger

	database.WarmUp(e.db, logger)

	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		return err
	}
	plans, err := configs.LoadPlans(cfg.PlansFile)
	if err != nil {
		return err
	}
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return fmt.Errorf("snowflake node %d: %w", cfg.NodeID, err)
	}

	dispatcher := notifications.NewAsyncDispatcher(buildMailer(cfg, logger), logger, 2, 256)
	defer dispatcher.Close()

	store := ledger.NewGormStore(e.db)
	events := repository.NewGormRepository(e.db)
	engine := reconciliation.NewEngine(store, dispatcher, logger)
	payments := service.NewService(store, registry, plans, node, service.Config{
		DefaultCurrency:      cfg.DefaultCurrency,
		AnonymousEmailDomain: cfg.AnonymousEmailDomain,
		BaseURL:              cfg.BaseURL,
	}, logger)

	reaper := scheduler.NewReaper(events, scheduler.ReaperConfig{
		Schedule:      cfg.EventReaperCron,
		RetentionDays: cfg.EventRetentionDays,
	}, logger)
	if err := reaper.Start(); err != nil {
		return err
	}
	defer reaper.Stop()

	app := fiber.New(fiber.Config{
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
		ErrorHandler:          helper.ErrorHandler,
		DisableStartupMessage: true,
		ProxyHeader:           fiber.HeaderXForwardedFor,
		BodyLimit:             1 << 20,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          30 * time.Second,
		IdleTimeout:           90 * time.Second,
	})
	middlewares.SetupMiddlewares(app, middlewares.SetupOptions{
		Logger:      logger,
		CorsOrigins: cfg.CorsOrigins,
	})
	routes.SetupRoutes(app, routes.Options{
		DB:          e.db,
		JWTSecret:   cfg.JWTSecret,
		Environment: cfg.Stage,
		Logger:      logger,
		Donation: routeDetails.Donation{
			Store:    store,
			Registry: registry,
			Engine:   engine,
			Payments: payments,
			Events:   events,
			Logger:   logger,
		},
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "port", cfg.Port, "providers", registry.Providers())
		errCh <- app.Listen("0.0.0.0:" + cfg.Port)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.ShutdownWithContext(shutdownCtx)
}

// buildRegistry mounts every provider whose keys are configured.
func buildRegistry(cfg *configs.Config, logger *slog.Logger) (*gateways.Registry, error) {
	reg := gateways.NewRegistry()

	if cfg.StripeEnabled() {
		reg.Register(
			stripe.NewClient(stripe.Config{
				SecretKey: cfg.Stripe.SecretKey,
				Timeout:   cfg.GatewayTimeout,
				Currency:  cfg.DefaultCurrency,
			}),
			stripe.NewWebhook(cfg.Stripe.WebhookSecret, cfg.Stripe.WebhookTolerance),
		)
	}

	if cfg.PaypalEnabled() {
		c, err := paypal.NewClient(paypal.Config{
			ClientID:  cfg.Paypal.ClientID,
			Secret:    cfg.Paypal.ClientSecret,
			WebhookID: cfg.Paypal.WebhookID,
			Mode:      cfg.Paypal.Mode,
			BaseURL:   cfg.Paypal.BaseURL,
			Timeout:   cfg.GatewayTimeout,
			Currency:  cfg.DefaultCurrency,
		})
		if err != nil {
			return nil, err
		}
		if cfg.Paypal.WebhookID == "" {
			logger.Warn("PAYPAL_WEBHOOK_ID not set; every PayPal webhook will be rejected")
		}
		reg.Register(c, paypal.NewWebhook(paypal.NewRemoteVerifier(c.API(), cfg.Paypal.WebhookID)))
	}

	if cfg.CoinPaymentsEnabled() {
		reg.Register(
			coinpayments.NewClient(coinpayments.Config{
				PublicKey:  cfg.CoinPayments.PublicKey,
				PrivateKey: cfg.CoinPayments.PrivateKey,
				Currency2:  cfg.CoinPayments.Currency,
				Timeout:    cfg.GatewayTimeout,
			}),
			coinpayments.NewIPN(cfg.CoinPayments.IPNSecret, cfg.CoinPayments.MerchantID),
		)
	}

	if cfg.MidtransEnabled() {
		reg.Register(
			midtrans.NewClient(midtrans.Config{
				ServerKey:     cfg.Midtrans.ServerKey,
				UseProduction: cfg.Midtrans.UseProduction,
				Timeout:       cfg.GatewayTimeout,
			}),
			midtrans.NewNotifications(cfg.Midtrans.ServerKey),
		)
	}

	if len(reg.Providers()) == 0 {
		logger.Warn("no payment provider configured")
	}
	return reg, nil
}

func buildMailer(cfg *configs.Config, logger *slog.Logger) notifications.Mailer {
	if cfg.SMTP.Host == "" {
		logger.Warn("SMTP_HOST not set; mails are logged, not sent")
		return notifications.LogMailer{Logger: logger}
	}
	m, err := notifications.NewSMTPMailer(notifications.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.User,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	if err != nil {
		logger.Error("smtp setup failed; falling back to log mailer", "error", err)
		return notifications.LogMailer{Logger: logger}
	}
	return m
}
