package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/medassist/api/internal/handlers"
	"github.com/medassist/api/internal/platform/auth"
	"github.com/medassist/api/internal/platform/config"
	"github.com/medassist/api/internal/platform/events"
	"github.com/medassist/api/internal/platform/identifier"
	"github.com/medassist/api/internal/platform/keyvalue"
	"github.com/medassist/api/internal/platform/mongodb"
	"github.com/medassist/api/internal/platform/observability"
	"github.com/medassist/api/internal/platform/token"
	repomongo "github.com/medassist/api/internal/repositories/mongodb"
	"github.com/medassist/api/internal/services"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(logger); err != nil {
		logger.Fatal("api exited", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mongoProvider := mongodb.NewProvider(cfg.Mongo)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := mongoProvider.Close(closeCtx); err != nil {
			logger.Warn("mongo close failed", zap.Error(err))
		}
	}()

	db, err := mongoProvider.Database(ctx)
	if err != nil {
		return err
	}
	if err := repomongo.EnsureIndexes(ctx, db); err != nil {
		return err
	}

	redisClient, err := keyvalue.NewClient(cfg.Redis)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close failed", zap.Error(err))
		}
	}()

	publisher, err := events.NewAMQPPublisher(cfg.AMQP)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("amqp close failed", zap.Error(err))
		}
	}()

	// Repositories.
	userRepo := repomongo.NewUserRepository(db)
	pharmacyRepo := repomongo.NewPharmacyRepository(db)
	medicineRepo := repomongo.NewMedicineRepository(db)
	inventoryRepo := repomongo.NewInventoryRepository(db)
	orderRepo := repomongo.NewOrderRepository(db)
	deliveryRepo := repomongo.NewDeliveryRepository(db)

	// Key-value facilities.
	otpStore := keyvalue.NewOTPStore(redisClient)
	refreshStore := keyvalue.NewRefreshTokenStore(redisClient)
	locker := keyvalue.NewLocker(redisClient)
	limiter := keyvalue.NewRateLimiter(redisClient)
	searchCache := keyvalue.NewSearchCache(redisClient)

	issuer := token.NewIssuer(cfg.JWT)

	serviceLogger := func(ctx context.Context, event string, fields map[string]any) {
		zapFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zapFields = append(zapFields, zap.Any(key, value))
		}
		observability.FromContext(ctx).Info(event, zapFields...)
	}

	sendOTP := func(ctx context.Context, phone, code string) error {
		// No SMS provider wired; log that a code went out with both the
		// phone and the code masked. Operators needing the code in local
		// flows read it out of Redis.
		observability.FromContext(ctx).Info("otp issued",
			zap.String("phone", observability.Mask(phone)),
			zap.String("code", observability.Mask(code)),
		)
		return nil
	}

	authService, err := services.NewAuthService(services.AuthServiceDeps{
		Users:       userRepo,
		Pharmacies:  pharmacyRepo,
		Counters:    repomongo.NewCounterRepository(db),
		OTP:         otpStore,
		Refresh:     refreshStore,
		Tokens:      issuer,
		SendOTP:     sendOTP,
		BcryptCost:  cfg.Auth.BcryptCost,
		IDGenerator: identifier.Generator(identifier.PrefixUser),
		PharmacyID:  identifier.Generator(identifier.PrefixPharmacy),
		Logger:      serviceLogger,
	})
	if err != nil {
		return err
	}

	inventoryService, err := services.NewInventoryService(services.InventoryServiceDeps{
		Inventory: inventoryRepo,
		Locker:    locker,
		Logger:    serviceLogger,
	})
	if err != nil {
		return err
	}

	orderDeps := services.OrderServiceDeps{
		Orders:      orderRepo,
		Pharmacies:  pharmacyRepo,
		Inventory:   inventoryService,
		Events:      publisher,
		IDGenerator: identifier.Generator(identifier.PrefixOrder),
		Logger:      serviceLogger,
	}
	orderService, err := services.NewOrderService(orderDeps)
	if err != nil {
		return err
	}

	deliveryService, err := services.NewDeliveryService(services.DeliveryServiceDeps{
		Deliveries:  deliveryRepo,
		Pharmacies:  pharmacyRepo,
		Orders:      orderService,
		Inventory:   inventoryService,
		Events:      publisher,
		IDGenerator: identifier.Generator(identifier.PrefixDelivery),
		Logger:      serviceLogger,
	})
	if err != nil {
		return err
	}

	// Rebuild the order service with the delivery creator now available.
	orderDeps.Deliveries = deliveryService
	orderService, err = services.NewOrderService(orderDeps)
	if err != nil {
		return err
	}

	pharmacistService, err := services.NewPharmacistService(services.PharmacistServiceDeps{
		Pharmacies:  pharmacyRepo,
		Inventory:   inventoryRepo,
		Medicines:   medicineRepo,
		Orders:      orderService,
		Events:      publisher,
		IDGenerator: identifier.Generator(identifier.PrefixInventory),
		PharmacyID:  identifier.Generator(identifier.PrefixPharmacy),
		Logger:      serviceLogger,
	})
	if err != nil {
		return err
	}

	catalogService, err := services.NewCatalogService(services.CatalogServiceDeps{
		Medicines:   medicineRepo,
		Pharmacies:  pharmacyRepo,
		Cache:       searchCache,
		IDGenerator: identifier.Generator(identifier.PrefixMedicine),
		Logger:      serviceLogger,
	})
	if err != nil {
		return err
	}

	userService, err := services.NewUserService(services.UserServiceDeps{
		Users:     userRepo,
		Medicines: medicineRepo,
		Logger:    serviceLogger,
	})
	if err != nil {
		return err
	}

	var verifier auth.Verifier = issuer

	health := handlers.NewHealthHandlers().
		WithCheck("mongodb", mongoProvider.Ping).
		WithCheck("redis", func(ctx context.Context) error { return keyvalue.Ping(ctx, redisClient) })

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			cors.Handler(cors.Options{
				AllowedOrigins:   []string{cfg.Server.CORSOrigin},
				AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
				AllowCredentials: true,
				MaxAge:           300,
			}),
			observability.InjectLoggerMiddleware(logger),
			observability.RequestLoggerMiddleware(),
			observability.RecoveryMiddleware(logger),
		),
		handlers.WithHealthHandlers(health),
		handlers.WithAuthRoutes(handlers.NewAuthHandlers(authService, limiter, cfg).Routes),
		handlers.WithMedicineRoutes(handlers.NewMedicineHandlers(catalogService).Routes),
		handlers.WithPharmacyRoutes(handlers.NewPharmacyHandlers(catalogService).Routes),
		handlers.WithUserRoutes(handlers.NewUserHandlers(verifier, userService).Routes),
		handlers.WithOrderRoutes(handlers.NewOrderHandlers(verifier, orderService).Routes),
		handlers.WithPaymentRoutes(handlers.NewPaymentHandlers(verifier, orderService, !cfg.IsProduction()).Routes),
		handlers.WithPharmacistRoutes(handlers.NewPharmacistHandlers(verifier, pharmacistService).Routes),
		handlers.WithDriverRoutes(handlers.NewDriverHandlers(verifier, deliveryService).Routes),
		handlers.WithAdminRoutes(handlers.NewAdminHandlers(verifier, authService, catalogService, userRepo).Routes),
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
		logger.Info("api listening", zap.String("addr", server.Addr))
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
