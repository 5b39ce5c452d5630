package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rajivgeraev/artbazaar-api/internal/config"
	"github.com/rajivgeraev/artbazaar-api/internal/db"
	"github.com/rajivgeraev/artbazaar-api/internal/services/alert"
	"github.com/rajivgeraev/artbazaar-api/internal/services/escrow"
	"github.com/rajivgeraev/artbazaar-api/internal/services/notification"
	"github.com/rajivgeraev/artbazaar-api/internal/services/offer"
	"github.com/rajivgeraev/artbazaar-api/internal/services/pricing"
	"github.com/rajivgeraev/artbazaar-api/internal/services/spend"
)

// Один проход плановых задач: переоценка цен, истечение предложений,
// зависшие эскроу, очередь писем и аномалии расходов. Запускается по cron.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))

	if err := db.InitDB(cfg); err != nil {
		slog.Error("Failed to initialize database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.CloseDB()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("Scheduled run failed", slog.Any("error", err))
		stop()
		db.CloseDB()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	alerts := alert.NewService(alert.NewPostgresStore(db.Pool), nil)
	mailer := notification.NewService(notification.NewPostgresStore(db.Pool), nil)
	offerStore := offer.NewPostgresStore(db.Pool)
	artworkStore := db.NewArtworkStore(db.Pool)

	evaluator := pricing.NewEvaluator(pricing.NewBunStore(db.Bun), artworkStore, cfg.Pricing)
	if _, err := evaluator.EvaluateAll(ctx); err != nil {
		return err
	}

	offers := offer.NewService(offer.Deps{Store: offerStore, Artworks: artworkStore}, cfg.Offers.OfferTTL, cfg.Offers.PaymentWindow)
	expired, err := offers.ExpireStaleOffers(ctx)
	if err != nil {
		return err
	}

	escrows := escrow.NewService(
		escrow.NewPostgresStore(db.Pool),
		escrow.NewPostgresFeeCalculator(db.Pool),
		escrow.WithAlerts(alerts),
		escrow.WithOfferStages(offerStore),
	)
	stalled, err := escrows.MarkStalled(ctx)
	if err != nil {
		return err
	}

	mail, err := mailer.ProcessPending(ctx, 0)
	if err != nil {
		return err
	}

	anomalies, err := spend.NewSmoother(spend.NewBunStore(db.Bun), alerts).DetectAnomalies(ctx, "")
	if err != nil {
		return err
	}

	slog.Info("Scheduled run finished",
		slog.Int64("offers_expired", expired),
		slog.Int("escrows_stalled", stalled),
		slog.Int("emails_sent", mail.Sent),
		slog.Int("emails_failed", mail.Failed),
		slog.Int("spend_anomalies", len(anomalies)))
	return nil
}
