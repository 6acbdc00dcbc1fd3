package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/marigold-store/api/internal/gateways"
	"github.com/marigold-store/api/internal/handlers"
	"github.com/marigold-store/api/internal/platform/config"
	pfs "github.com/marigold-store/api/internal/platform/firestore"
	"github.com/marigold-store/api/internal/platform/jobs"
	"github.com/marigold-store/api/internal/platform/observability"
	"github.com/marigold-store/api/internal/platform/secrets"
	fsrepo "github.com/marigold-store/api/internal/repositories/firestore"
	"github.com/marigold-store/api/internal/services"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var configOpts []config.Option
	fetcher, err := secrets.NewFetcher(ctx, os.Getenv("GOOGLE_CLOUD_PROJECT"), secrets.WithLogger(logger))
	if err != nil {
		logger.Warn("secret manager unavailable, secret references will not resolve", zap.Error(err))
	} else {
		defer func() { _ = fetcher.Close() }()
		configOpts = append(configOpts, config.WithSecretResolver(fetcher))
	}

	cfg, err := config.Load(ctx, configOpts...)
	if err != nil {
		return err
	}

	provider := pfs.NewProvider(pfs.Settings{
		ProjectID:    cfg.Firestore.ProjectID,
		DatabaseID:   cfg.Firestore.DatabaseID,
		EmulatorHost: cfg.Firestore.EmulatorHost,
	})
	defer func() { _ = provider.Close() }()

	orders := fsrepo.NewOrderRepository(provider)
	gatewayConfig := fsrepo.NewGatewayConfigRepository(provider, cfg.Gateways.DefaultProvider)

	inventory, err := services.NewInventoryService(orders)
	if err != nil {
		return err
	}

	var publisher services.PaymentEventPublisher
	var pubsubClient *pubsub.Client
	if cfg.PubSub.Topic != "" {
		projectID := cfg.PubSub.ProjectID
		if projectID == "" {
			projectID = cfg.Firestore.ProjectID
		}
		pubsubClient, err = pubsub.NewClient(ctx, projectID)
		if err != nil {
			return err
		}
		defer func() { _ = pubsubClient.Close() }()
		publisher, err = jobs.NewPubSubPaymentEventPublisher(pubsubClient.Topic(cfg.PubSub.Topic))
		if err != nil {
			return err
		}
	}

	processor, err := services.NewWebhookService(services.WebhookServiceDeps{
		Orders:        orders,
		GatewayConfig: gatewayConfig,
		Inventory:     inventory,
		Publisher:     publisher,
		Credentials: gateways.Credentials{
			Easebuzz: gateways.EasebuzzCredentials{
				MerchantKey: cfg.Gateways.Easebuzz.MerchantKey,
				Salt:        cfg.Gateways.Easebuzz.Salt,
			},
			PhonePe: gateways.PhonePeCredentials{
				WebhookUser:    cfg.Gateways.PhonePe.WebhookUser,
				WebhookPass:    cfg.Gateways.PhonePe.WebhookPass,
				MerchantSecret: cfg.Gateways.PhonePe.MerchantSecret,
			},
			ZohoPay: gateways.ZohoPayCredentials{
				SigningKey: cfg.Gateways.ZohoPay.SigningKey,
			},
		},
		HashPolicy: services.HashPolicy(cfg.Webhooks.HashPolicy),
		Metrics:    observability.NewWebhookMetrics(),
	})
	if err != nil {
		return err
	}

	webhookHandlers, err := handlers.NewWebhookHandlers(processor, gateways.Provider(cfg.Gateways.DefaultProvider))
	if err != nil {
		return err
	}
	returnHandlers, err := handlers.NewPaymentReturnHandlers(processor,
		cfg.Storefront.SuccessReturnURL(), cfg.Storefront.FailureReturnURL())
	if err != nil {
		return err
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.RequestLoggerMiddleware(),
			observability.RecoveryMiddleware(logger),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(map[string]handlers.ReadinessCheck{
			"firestore": func(ctx context.Context) error {
				_, err := provider.Client(ctx)
				return err
			},
		})),
		handlers.WithWebhookRoutes(func(r chi.Router) { webhookHandlers.Register(r) }),
		handlers.WithPaymentRoutes(func(r chi.Router) {
			r.Post("/return/success", returnHandlers.Success)
			r.Get("/return/success", returnHandlers.Success)
			r.Post("/return/failure", returnHandlers.Failure)
			r.Get("/return/failure", returnHandlers.Failure)
		}),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("addr", server.Addr),
			zap.String("default_provider", cfg.Gateways.DefaultProvider),
			zap.String("hash_policy", cfg.Webhooks.HashPolicy),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
