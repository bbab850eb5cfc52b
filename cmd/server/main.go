package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/ignatzorin/errand-backend/internal/config"
	"github.com/ignatzorin/errand-backend/internal/db"
	httpHandlers "github.com/ignatzorin/errand-backend/internal/http/handlers"
	"github.com/ignatzorin/errand-backend/internal/http/middleware"
	httpRouter "github.com/ignatzorin/errand-backend/internal/http/router"
	"github.com/ignatzorin/errand-backend/internal/logger"
	"github.com/ignatzorin/errand-backend/internal/provider"
	"github.com/ignatzorin/errand-backend/internal/repository"
	"github.com/ignatzorin/errand-backend/internal/service"
	"github.com/ignatzorin/errand-backend/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	if cfg.IsProduction() {
		logger.Init("info")
	} else {
		logger.Init("debug")
		logger.SetTextFormatter()
	}
	mainLog := logger.Component("main")

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL, db.DefaultPoolOptions)
	if err != nil {
		mainLog.WithError(err).Fatal("main: ошибка подключения к базе")
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		mainLog.WithError(err).Fatal("main: ошибка миграций")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = db.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			// без Redis лимиты считаются в памяти процесса
			mainLog.WithError(err).Warn("main: redis недоступен")
		} else {
			defer func() { _ = redisClient.Close() }()
		}
	}

	paymentProvider := newProvider(cfg)
	mainLog.WithField("provider", paymentProvider.Name()).WithField("sandbox", cfg.Payment.Sandbox).Info("main: платёжный провайдер выбран")

	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.RefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	// Репозитории.
	userRepo := repository.NewUserRepository(dbConn)
	errandRepo := repository.NewErrandRepository(dbConn)
	paymentRepo := repository.NewPaymentRepository(dbConn)
	reviewRepo := repository.NewReviewRepository(dbConn)

	// Сервисы. Координатор и платёжный сервис ссылаются друг на друга,
	// поэтому связываются после создания.
	escrow := service.NewEscrowCoordinator(errandRepo, paymentRepo)
	paymentService := service.NewPaymentService(paymentRepo, errandRepo, userRepo, paymentProvider, service.PaymentOptions{
		Currency:    cfg.Payment.DefaultCurrency,
		CallbackURL: cfg.Payment.CallbackURL,
		Timeout:     cfg.Payment.Timeout,
		Sandbox:     cfg.Payment.Sandbox,
	})
	escrow.AttachPayments(paymentService)
	paymentService.SetDepositObserver(escrow)

	errandService := service.NewErrandService(errandRepo, escrow, service.ErrandOptions{
		EscrowRequired:  cfg.Errand.EscrowRequired,
		DefaultDuration: cfg.Errand.DefaultDuration,
	})
	reviewService := service.NewReviewService(reviewRepo, errandRepo)
	profileService := service.NewProfileService(userRepo, paymentProvider, cfg.Payment.Timeout)
	authService := service.NewAuthService(userRepo, tokenManager)

	hub := ws.NewHub()
	escrow.SetNotifier(hub)
	paymentService.SetNotifier(hub)
	errandService.SetNotifier(hub)

	health := map[string]httpHandlers.Pinger{"database": dbConn}
	if redisClient != nil {
		health["redis"] = httpHandlers.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	h := httpRouter.Handlers{
		Auth:    httpHandlers.NewAuthHandler(authService),
		Errand:  httpHandlers.NewErrandHandler(errandService),
		Payment: httpHandlers.NewPaymentHandler(paymentService),
		Webhook: httpHandlers.NewWebhookHandler(paymentService, cfg.Payment.WebhookSecret),
		Review:  httpHandlers.NewReviewHandler(reviewService),
		Profile: httpHandlers.NewProfileHandler(profileService),
		WS:      httpHandlers.NewWSHandler(hub, tokenManager, cfg.AllowedOrigins),
		Health:  httpHandlers.NewHealthHandler(health),
	}
	if paymentService.Sandbox() {
		h.Sandbox = httpHandlers.NewSandboxHandler(paymentService)
	}

	engine := httpRouter.SetupRouter(cfg, h, tokenManager, middleware.NewLimiterStore(redisClient))

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return hub.Run(gctx)
	})
	g.Go(func() error {
		mainLog.WithField("port", cfg.HTTPPort).Info("main: HTTP сервер запущен")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		mainLog.WithError(err).Error("main: сервер завершился с ошибкой")
		return
	}
	mainLog.Info("main: сервер остановлен")
}

func newProvider(cfg *config.Config) provider.Provider {
	if cfg.Payment.Sandbox {
		checkoutURL := cfg.Payment.CallbackURL
		if checkoutURL == "" {
			checkoutURL = "http://localhost:" + cfg.HTTPPort + "/sandbox/checkout"
		}
		return provider.NewSandbox(checkoutURL)
	}
	return provider.NewPaystack(provider.PaystackOptions{
		BaseURL:    cfg.Payment.BaseURL,
		SecretKey:  cfg.Payment.SecretKey,
		Timeout:    cfg.Payment.Timeout,
		RetryCount: cfg.Payment.RetryCount,
	})
}

func safeClose(conn *sqlx.DB) {
	if err := conn.Close(); err != nil {
		logger.Component("main").WithError(err).Error("main: ошибка закрытия базы")
	}
}
