package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/retailops/shopify-sync/internal/alert"
	"github.com/retailops/shopify-sync/internal/config"
	"github.com/retailops/shopify-sync/internal/dispatch"
	"github.com/retailops/shopify-sync/internal/handler"
	"github.com/retailops/shopify-sync/internal/inventory"
	"github.com/retailops/shopify-sync/internal/logging"
	"github.com/retailops/shopify-sync/internal/middleware"
	"github.com/retailops/shopify-sync/internal/promotion"
	"github.com/retailops/shopify-sync/internal/repository"
	"github.com/retailops/shopify-sync/internal/shopify"
)

var promotionTopics = []string{
	"price_rules/create",
	"price_rules/update",
	"price_rules/delete",
	"collections/update",
	"discounts/create",
	"discounts/update",
	"discounts/delete",
}

var inventoryTopics = []string{
	"products/create",
	"products/update",
	"products/delete",
	"inventory_levels/update",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("shopify-sync", cfg.LogLevel, cfg.AppEnv)

	db, err := connectDB(cfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("failed to parse redis url", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	tenants := repository.NewTenantRepository(db)
	deliveries := repository.NewDeliveryRepository(db)

	alerts := alert.New(cfg.AlertWebhookURL, cfg.AppEnv, logger)
	catalog := shopify.NewClient(cfg.ShopifyHTTPTimeout)

	registry := dispatch.NewRegistry()

	resolver := promotion.NewResolver(catalog, alerts, cfg.RateLimitDelay)
	builder := promotion.NewBuilder(resolver)
	promoClient := promotion.NewServiceClient(cfg.PromoServiceURL, cfg.ShopifyHTTPTimeout)
	promotion.NewHandlers(tenants, catalog, builder, promoClient).Register(registry)

	barcodes := inventory.NewBarcodeCache(rdb)
	stockClient := inventory.NewServiceClient(cfg.InventoryServiceURL, cfg.ShopifyHTTPTimeout)
	inventory.NewHandlers(tenants, catalog, barcodes, stockClient).Register(registry)

	dispatcher := dispatch.NewDispatcher(deliveries, registry, logger, dispatch.Options{
		Workers:      cfg.WorkerCount,
		PollInterval: cfg.PollInterval,
		MaxAttempts:  cfg.MaxAttempts,
		MinBackoff:   cfg.MinRetryBackoff,
		MaxBackoff:   cfg.MaxRetryBackoff,
	})

	dispatchCtx, stopDispatcher := context.WithCancel(context.Background())
	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		dispatcher.Start(dispatchCtx)
	}()

	mux := http.NewServeMux()
	mux.Handle("POST /webhooks/shopify/promotions", handler.NewIntakeHandler(tenants, deliveries, dispatcher, promotionTopics))
	mux.Handle("POST /webhooks/shopify/inventory", handler.NewIntakeHandler(tenants, deliveries, dispatcher, inventoryTopics))
	mux.HandleFunc("GET /health", handler.Health)
	mux.Handle("GET /metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           middleware.Recovery(middleware.Logging(mux)),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	// Stop claiming new deliveries; in-flight work runs to terminal
	// status.
	stopDispatcher()
	select {
	case <-dispatcherDone:
	case <-ctx.Done():
		slog.Error("dispatcher did not stop in time")
	}

	slog.Info("server stopped")
}

func connectDB(cfg *config.Config) (*sql.DB, error) {
	db, err := repository.NewDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("connectDB: %w", err)
	}

	for i := 0; i < 30; i++ {
		if err = db.Ping(); err == nil {
			return db, nil
		}
		slog.Info("waiting for database", "attempt", i+1)
		time.Sleep(time.Second)
	}

	db.Close()
	return nil, fmt.Errorf("connectDB: gave up after 30 attempts: %w", err)
}
