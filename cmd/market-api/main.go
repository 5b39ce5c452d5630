package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rajivgeraev/artbazaar-api/internal/config"
	"github.com/rajivgeraev/artbazaar-api/internal/db"
	"github.com/rajivgeraev/artbazaar-api/internal/metrics"
	"github.com/rajivgeraev/artbazaar-api/internal/middleware"
	"github.com/rajivgeraev/artbazaar-api/internal/services/alert"
	"github.com/rajivgeraev/artbazaar-api/internal/services/auth"
	"github.com/rajivgeraev/artbazaar-api/internal/services/cloudinary"
	"github.com/rajivgeraev/artbazaar-api/internal/services/escrow"
	"github.com/rajivgeraev/artbazaar-api/internal/services/notification"
	"github.com/rajivgeraev/artbazaar-api/internal/services/offer"
	"github.com/rajivgeraev/artbazaar-api/internal/services/pricing"
	"github.com/rajivgeraev/artbazaar-api/internal/services/spend"
	"github.com/rajivgeraev/artbazaar-api/internal/utils"
	"github.com/rajivgeraev/artbazaar-api/internal/websocket"
)

func main() {
	// Загружаем конфигурацию
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	setupLogger(cfg)

	// Инициализируем базу данных
	if err := db.InitDB(cfg); err != nil {
		slog.Error("Failed to initialize database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.CloseDB()

	if cfg.AutoMigrate {
		if err := db.ApplySchema(context.Background()); err != nil {
			slog.Error("Failed to apply database schema", slog.Any("error", err))
			os.Exit(1)
		}
	}

	metrics.Register()

	jwtService := utils.NewJWTService(cfg.JWTSecret)
	wsManager := websocket.NewManager()

	// Хранилища
	offerStore := offer.NewPostgresStore(db.Pool)
	artworkStore := db.NewArtworkStore(db.Pool)

	// Сервисы
	alerts := alert.NewService(alert.NewPostgresStore(db.Pool), wsManager)
	mailer := notification.NewService(notification.NewPostgresStore(db.Pool), nil)

	escrowService := escrow.NewService(
		escrow.NewPostgresStore(db.Pool),
		escrow.NewPostgresFeeCalculator(db.Pool),
		escrow.WithAlerts(alerts),
		escrow.WithPusher(wsManager),
		escrow.WithNotifier(mailer),
		escrow.WithOfferStages(offerStore),
		escrow.WithApprovalWindow(cfg.Offers.ApprovalWindow),
	)

	offerService := offer.NewService(offer.Deps{
		Store:    offerStore,
		Artworks: artworkStore,
		Escrow:   escrowService,
		Alerts:   alerts,
		Notifier: mailer,
		Pusher:   wsManager,
	}, cfg.Offers.OfferTTL, cfg.Offers.PaymentWindow)

	spendStore := spend.NewBunStore(db.Bun)
	guard := spend.NewGuard(spendStore, alerts)
	smoother := spend.NewSmoother(spendStore, alerts)

	evaluator := pricing.NewEvaluator(pricing.NewBunStore(db.Bun), artworkStore, cfg.Pricing)
	advisor := pricing.NewAdvisor(evaluator, artworkStore)

	// Создаём экземпляр Fiber
	app := fiber.New(fiber.Config{
		AppName:      "ArtBazaar API",
		ErrorHandler: errorHandler,
	})

	// Добавляем middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowCredentials: false,
	}))
	app.Use(middleware.MetricsMiddleware())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker(healthcheck.Config{
		Probe: func(c fiber.Ctx) bool {
			ctx, cancel := db.GetContext(c.Context())
			defer cancel()
			return db.Pool.Ping(ctx) == nil
		},
	}))

	// Регистрируем маршруты
	authMiddleware := middleware.AuthMiddleware(jwtService)

	auth.NewService(jwtService).SetupRoutes(app, authMiddleware)
	offer.NewHandler(offerService).SetupRoutes(app, authMiddleware)
	escrow.NewHandler(escrowService).SetupRoutes(app, authMiddleware)
	alert.NewHandler(alerts).SetupRoutes(app, authMiddleware)
	spend.NewHandler(guard, smoother, cfg.Spend).SetupRoutes(app, authMiddleware)
	pricing.NewHandler(evaluator, advisor).SetupRoutes(app, authMiddleware)

	if uploads, err := cloudinary.NewService(cfg.CloudinaryConfig); err != nil {
		slog.Warn("Image uploads disabled", slog.Any("error", err))
	} else {
		uploads.SetupRoutes(app, authMiddleware)
	}

	// WebSocket-сервер слушает отдельный порт
	wsMux := http.NewServeMux()
	wsMux.HandleFunc("/ws", wsManager.Handler(jwtService))
	wsServer := &http.Server{
		Addr:              ":" + cfg.WSPort,
		Handler:           wsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("WebSocket server started", slog.String("port", cfg.WSPort))
		if err := wsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("WebSocket server failed", slog.Any("error", err))
		}
	}()

	go func() {
		slog.Info("ArtBazaar API started", slog.String("port", cfg.HTTPPort))
		if err := app.Listen(":"+cfg.HTTPPort, fiber.ListenConfig{DisableStartupMessage: !cfg.IsDevelopment()}); err != nil {
			slog.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	// Ждём сигнал завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	wsManager.Shutdown()
	if err := wsServer.Shutdown(ctx); err != nil {
		slog.Error("WebSocket server shutdown failed", slog.Any("error", err))
	}
	if err := app.ShutdownWithContext(ctx); err != nil {
		slog.Error("HTTP server shutdown failed", slog.Any("error", err))
	}
}

func setupLogger(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.IsDevelopment() {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// errorHandler обрабатывает ошибки Fiber
func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	// Проверяем, является ли ошибка из Fiber
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	if code == fiber.StatusInternalServerError {
		slog.Error("Unhandled request error",
			slog.String("path", c.Path()),
			slog.Any("error", err))
	}

	// Отправляем ошибку в JSON
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
