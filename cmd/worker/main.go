package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"timeplus_app/internal/config"
	"timeplus_app/internal/services"
	"timeplus_app/internal/tasks"
)

func main() {
	cfg := config.Load()
	logger := services.NewLogger(cfg.App)
	defer logger.Sync()

	// Create context that cancels on interrupt
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL not set")
	}
	db, err := services.InitDB(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	useFirestore := cfg.StoreDriver != config.StoreDriverMemory
	if !useFirestore {
		logger.Fatal("worker needs the firestore store driver to read users and sessions")
	}
	firebaseClients, err := services.InitFirebase(ctx, cfg.Firebase, true)
	if err != nil {
		logger.Fatal("Firebase initialization failed", zap.Error(err))
	}
	defer firebaseClients.Close()
	store := services.NewFirestoreStore(firebaseClients.Firestore)

	var paymentOpts []services.PaymentServiceOption
	if cfg.RedisURL != "" {
		cache, err := services.NewRedisCache(cfg.RedisURL)
		if err != nil {
			logger.Warn("Failed to connect to Redis, caching disabled", zap.Error(err))
		} else {
			defer cache.Close()
			paymentOpts = append(paymentOpts, services.WithPaymentCache(cache))
		}
	}

	scheduler := tasks.NewScheduler(db)
	paymentOpts = append(paymentOpts,
		services.WithCallbackRecorder(services.NewGormCallbackRecorder(db)),
		services.WithTaskScheduler(scheduler),
	)
	payments := services.NewPaymentService(store, services.NewMercadoPagoClient(cfg.MercadoPago, logger), cfg, logger, paymentOpts...)

	deps := tasks.Dependencies{
		Store:     store,
		Scheduler: scheduler,
		Payments:  payments,
		Whatsapp:  services.NewWahaService(cfg.Waha),
		Location:  cfg.Location(),
		Log:       logger,
	}
	email := services.NewEmailService(cfg.SMTP)
	if email.Configured() {
		deps.Email = email
	} else {
		logger.Warn("SMTP not configured, email notifications disabled")
	}

	// Initialize Task Registry
	registry := tasks.NewRegistry()
	tasks.DefineTasks(registry, deps)

	logger.Info("Worker started",
		zap.Duration("interval", cfg.Worker.Interval),
		zap.Strings("tasks", registry.Names()),
	)
	tasks.NewRunner(db, registry, logger).Start(ctx, cfg.Worker.Interval)
	logger.Info("Shutting down worker...")
}
