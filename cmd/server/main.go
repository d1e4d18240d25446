package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rl1809/checkout-engine/internal/adapter/handler"
	"github.com/rl1809/checkout-engine/internal/adapter/storage"
	"github.com/rl1809/checkout-engine/internal/config"
	"github.com/rl1809/checkout-engine/internal/core/domain"
	"github.com/rl1809/checkout-engine/internal/core/service"
	"github.com/rl1809/checkout-engine/internal/port"
)

func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		inventory port.InventoryRepository
		carts     port.CartRepository
		tickets   port.TicketRepository
		closers   []func()
	)

	switch cfg.StorageBackend {
	case config.BackendExternal:
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			logger.Error("failed to open mysql", "error", err)
			os.Exit(1)
		}
		db.SetMaxOpenConns(cfg.MySQLMaxConns)
		db.SetMaxIdleConns(cfg.MySQLMaxConns / 2)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			logger.Error("failed to ping mysql", "error", err)
			os.Exit(1)
		}
		logger.Info("connected to mysql")

		store := storage.NewMySQLStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			logger.Error("failed to ensure schema", "error", err)
			os.Exit(1)
		}

		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: cfg.RedisPoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("failed to ping redis", "error", err)
			os.Exit(1)
		}
		logger.Info("connected to redis")

		inventory = storage.NewRedisInventory(rdb)
		carts = store
		tickets = store
		closers = append(closers, func() { rdb.Close() }, func() { db.Close() })

	case config.BackendMemory:
		inventory = storage.NewMemoryInventory()
		carts = storage.NewMemoryCarts()
		tickets = storage.NewMemoryTickets()
		seedDemoData(ctx, logger, inventory, carts)

	default:
		logger.Error("unknown storage backend", "backend", cfg.StorageBackend)
		os.Exit(1)
	}

	checkoutService := service.NewCheckoutService(inventory, carts, tickets, logger)

	mux := http.NewServeMux()
	handler.NewHTTPHandler(checkoutService).Register(mux)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	logger.Info("http server stopped")

	for _, closeFn := range closers {
		closeFn()
	}
	logger.Info("connections closed")
}

// seedDemoData loads a small catalog and one cart so the memory backend is
// usable out of the box.
func seedDemoData(ctx context.Context, logger *slog.Logger, inventory port.InventoryRepository, carts port.CartRepository) {
	products := []domain.Product{
		{ID: "laptop-pro", Price: decimal.RequireFromString("1499.00"), Stock: 10},
		{ID: "usb-cable", Price: decimal.RequireFromString("9.90"), Stock: 200},
		{ID: "monitor-4k", Price: decimal.RequireFromString("329.50"), Stock: 1},
	}
	for _, p := range products {
		if err := inventory.PutProduct(ctx, p); err != nil {
			logger.Error("failed to seed product", "product_id", p.ID, "error", err)
		}
	}

	cart := domain.Cart{
		ID:     "demo-cart",
		UserID: "demo-user",
		Items: []domain.LineItem{
			{ProductID: "laptop-pro", Quantity: 1},
			{ProductID: "usb-cable", Quantity: 3},
			{ProductID: "monitor-4k", Quantity: 2},
		},
	}
	if err := carts.PutCart(ctx, cart); err != nil {
		logger.Error("failed to seed cart", "cart_id", cart.ID, "error", err)
	}

	logger.Info("seeded demo data", "products", len(products), "cart_id", cart.ID)
}
