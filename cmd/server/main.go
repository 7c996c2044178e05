package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"paylink/internal/app"
	"paylink/internal/config"
	"paylink/internal/domain"
	"paylink/internal/handler"
	"paylink/internal/provider"
	internalRedis "paylink/internal/redis"
	"paylink/internal/repository/postgres"
	"paylink/internal/service"
)

func main() {
	// Load configuration.
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	var err error
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			log.Printf("failed to initialize New Relic: %v", err)
		} else {
			log.Printf("New Relic enabled: app=%s (with DB instrumentation)", cfg.NewRelic.AppName)
		}
	}

	// Initialize database with New Relic instrumentation.
	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to PostgreSQL")

	// Initialize Redis with New Relic instrumentation.
	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Connected to Redis")

	// Wire dependencies.
	server, reconciler := wireServer(db, redisClient, nrApp, cfg)

	// Schedule the reconciler sweep. Run guards against overlapping ticks
	// itself; the cron only fires them.
	scheduler := cron.New()
	_, err = scheduler.AddFunc("@every "+cfg.Reconciler.Interval.String(), func() {
		runCtx, runCancel := context.WithTimeout(context.Background(), cfg.Reconciler.Interval)
		defer runCancel()
		if _, err := reconciler.Run(runCtx); err != nil {
			log.Printf("reconciler run failed: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("failed to schedule reconciler: %v", err)
	}
	scheduler.Start()
	log.Printf("Reconciler scheduled every %s (batch=%d, min age=%s)",
		cfg.Reconciler.Interval, cfg.Reconciler.BatchSize, cfg.Reconciler.MinAge)

	// Start server in goroutine.
	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Stop scheduling new sweeps and wait for a running one to finish.
	<-scheduler.Stop().Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// wireServer wires all dependencies and returns the HTTP server and the
// reconciler.
func wireServer(db *sql.DB, redisClient *redis.Client, nrApp *newrelic.Application, cfg *config.Config) (*http.Server, *service.Reconciler) {
	// Initialize Redis stores.
	lockStore := internalRedis.NewLockStore(redisClient)
	statusCache := internalRedis.NewStatusCacheStore(redisClient)

	// Initialize repositories.
	paymentRepo := postgres.NewPaymentRepository(db)
	webhookRepo := postgres.NewWebhookEventRepository(db)

	// Initialize provider adapters. The set is fixed for the process
	// lifetime; records resolve through the adapter that created them.
	var adapters []provider.Adapter
	if cfg.Stripe.Enabled {
		adapters = append(adapters, provider.NewStripeAdapter(provider.StripeConfig{
			SecretKey:     cfg.Stripe.SecretKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			BaseURL:       cfg.Stripe.BaseURL,
			Timeout:       cfg.Stripe.Timeout,
		}))
	}
	if cfg.PayFast.Enabled {
		adapters = append(adapters, provider.NewPayFastAdapter(provider.PayFastConfig{
			MerchantID:       cfg.PayFast.MerchantID,
			MerchantKey:      cfg.PayFast.MerchantKey,
			Passphrase:       cfg.PayFast.Passphrase,
			ProcessURL:       cfg.PayFast.ProcessURL,
			QueryURL:         cfg.PayFast.QueryURL,
			NotifyURL:        cfg.PayFast.NotifyURL,
			Timeout:          cfg.PayFast.Timeout,
			CheckoutValidity: cfg.PayFast.CheckoutValidity,
		}))
	}
	registry := provider.NewRegistry(adapters...)
	if !registry.Has(domain.ProviderStripe) && !registry.Has(domain.ProviderPayFast) {
		log.Println("warning: no payment providers enabled; checkout creation will always fail")
	}

	// Initialize services.
	notificationService := service.NewNotificationService(
		service.NewHTTPOrderNotifier(cfg.Orders.BaseURL, cfg.Orders.Timeout),
		service.NewLogEmailSender(),
	)
	paymentService := service.NewPaymentService(paymentRepo, registry, notificationService, statusCache)
	webhookService := service.NewWebhookService(paymentRepo, webhookRepo, registry, paymentService)
	reconciler := service.NewReconciler(paymentRepo, registry, paymentService, service.ReconcilerConfig{
		MinAge:    cfg.Reconciler.MinAge,
		BatchSize: cfg.Reconciler.BatchSize,
	}, lockStore, nrApp)

	// Initialize handlers.
	paymentHandler := handler.NewPaymentHandler(paymentService,
		cfg.Checkout.SuccessURL, cfg.Checkout.CancelURL, cfg.Checkout.DefaultProvider)
	webhookHandler := handler.NewWebhookHandler(webhookService)

	// Create router.
	router := app.NewRouter(app.RouterDeps{
		PaymentHandler: paymentHandler,
		WebhookHandler: webhookHandler,
		RedisClient:    redisClient,
		NewRelicApp:    nrApp,
	})

	// Create HTTP server.
	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, reconciler
}
