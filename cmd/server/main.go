// Command server runs the storefront: carts, pricing quotes and the
// checkout that turns a cart into a preliminary order.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/JoaquinSabater/EcommerceCPF-sub000/internal/app"
	"github.com/JoaquinSabater/EcommerceCPF-sub000/internal/config"
	"github.com/JoaquinSabater/EcommerceCPF-sub000/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("storefront config rejected", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logger.New("storefront", cfg.LogLevel)
	if err := run(cfg, log); err != nil {
		log.Error("storefront exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// run serves until SIGINT or SIGTERM.
func run(cfg *config.Config, log *slog.Logger) error {
	rateSource := "static"
	if cfg.RateServiceURL != "" {
		rateSource = cfg.RateServiceURL
	}
	log.Info("storefront configured",
		slog.String("environment", cfg.Environment),
		slog.Int("http_port", cfg.HTTPPort),
		slog.Int("cart_sessions", cfg.CartSessionCacheSize),
		slog.Duration("cart_ttl", cfg.CartTTL()),
		slog.String("rate_source", rateSource),
	)

	storefront, err := app.NewApp(cfg, log)
	if err != nil {
		return fmt.Errorf("wire storefront: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := storefront.Run(ctx); err != nil {
		return err
	}
	log.Info("storefront drained, carts flushed")
	return nil
}
