package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"timeplus_app/internal/booking"
	"timeplus_app/internal/config"
	"timeplus_app/internal/handlers"
	"timeplus_app/internal/middleware"
	"timeplus_app/internal/services"
	"timeplus_app/internal/tasks"
)

func main() {
	cfg := config.Load()
	logger := services.NewLogger(cfg.App)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cfg.MercadoPago.Check(cfg.App.PublicBaseURL); err != nil {
		logger.Warn("Mercado Pago is not configured, payment endpoints will answer 500", zap.Error(err))
	}

	// Initialize Firebase
	useFirestore := cfg.StoreDriver != config.StoreDriverMemory
	firebaseClients, err := services.InitFirebase(ctx, cfg.Firebase, useFirestore)
	if err != nil {
		if useFirestore {
			logger.Fatal("Firebase initialization failed", zap.Error(err))
		}
		logger.Warn("Firebase initialization failed, auth features will not work", zap.Error(err))
	}
	defer firebaseClients.Close()

	var store services.Store
	if useFirestore {
		store = services.NewFirestoreStore(firebaseClients.Firestore)
	} else {
		logger.Warn("Using in-memory store, data is lost on restart")
		store = services.NewMemoryStore()
	}

	// Initialize Database
	var db *gorm.DB
	if cfg.DatabaseURL != "" {
		db, err = services.InitDB(cfg.DatabaseURL, logger)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		if err := services.AutoMigrate(db, logger); err != nil {
			logger.Fatal("Failed to run database migrations", zap.Error(err))
		}
	} else {
		logger.Warn("DATABASE_URL not set, callback history and background tasks disabled")
	}

	// Initialize Redis
	var cache *services.RedisCache
	if cfg.RedisURL != "" {
		cache, err = services.NewRedisCache(cfg.RedisURL)
		if err != nil {
			logger.Warn("Failed to connect to Redis, caching disabled", zap.Error(err))
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	paymentOpts := []services.PaymentServiceOption{}
	var callbacks handlers.CallbackHistoryReader
	if cache != nil {
		paymentOpts = append(paymentOpts, services.WithPaymentCache(cache))
	}
	if db != nil {
		recorder := services.NewGormCallbackRecorder(db)
		callbacks = recorder
		paymentOpts = append(paymentOpts,
			services.WithCallbackRecorder(recorder),
			services.WithTaskScheduler(tasks.NewScheduler(db)),
		)
	}

	gateway := services.NewMercadoPagoClient(cfg.MercadoPago, logger)
	payments := services.NewPaymentService(store, gateway, cfg, logger, paymentOpts...)
	accounts := services.NewAccountService(store, cache, logger)
	finance := services.NewFinanceService(store, booking.NewCommission(cfg.CommissionRate), logger)
	catalog := services.NewCatalogService(store, cache, cfg.CatalogTTL, cfg.Location(), logger)
	sessions := services.NewSessionService(store, cache, logger)

	var (
		verifier middleware.TokenVerifier
		issuer   handlers.SessionIssuer
	)
	if firebaseClients != nil && firebaseClients.Auth != nil {
		verifier = firebaseClients.Auth
		issuer = firebaseClients.Auth
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = handlers.NewRequestValidator()
	e.HTTPErrorHandler = middleware.JSONErrorHandler(logger)

	// Middleware
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger))
	e.Use(echomw.Recover())
	allowOrigins := []string{"*"}
	if cfg.App.PublicBaseURL != "" {
		allowOrigins = []string{cfg.App.PublicBaseURL}
	}
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     allowOrigins,
		AllowCredentials: true,
	}))

	router := &handlers.Router{
		Verifier: verifier,
		Store:    store,
		Log:      logger,
		Auth:     handlers.NewAuthHandler(issuer, accounts, cfg.App.CookieSecure, logger),
		Payments: handlers.NewPaymentHandler(payments, cfg.MercadoPago.WebhookSecret, logger),
		Catalog:  handlers.NewCatalogHandler(catalog),
		Sessions: handlers.NewSessionHandler(sessions, logger),
		Finance:  handlers.NewFinanceHandler(finance),
		Admin:    handlers.NewAdminHandler(finance, callbacks),
		Users:    handlers.NewUserHandler(accounts),
	}
	router.Register(e)

	// Start server
	go func() {
		logger.Info("Server starting", zap.String("port", cfg.App.Port), zap.String("storeDriver", cfg.StoreDriver))
		if err := e.Start(":" + cfg.App.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server stopped unexpectedly", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
}
