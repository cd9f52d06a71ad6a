package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jafarshop/easyorders/internal/api"
	"github.com/jafarshop/easyorders/internal/config"
	"github.com/jafarshop/easyorders/internal/domain"
	"github.com/jafarshop/easyorders/internal/easyorders"
	"github.com/jafarshop/easyorders/internal/logger"
	"github.com/jafarshop/easyorders/internal/ratelimit"
	"github.com/jafarshop/easyorders/internal/repository/postgres"
	"github.com/jafarshop/easyorders/internal/service"
	"github.com/jafarshop/easyorders/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	db, err := postgres.NewConnection(cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Redis is optional. Without it the rate limit and the temp order locks only
	// hold within this process, so run a single instance.
	var (
		limiter ratelimit.Limiter
		locker  worker.Locker
	)
	if cfg.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Fatal("Failed to connect to redis", zap.Error(err))
		}

		limiter = ratelimit.NewRedisWindowLimiter(rdb, "", cfg.EasyOrders.RateLimitPerMinute, time.Minute)
		locker = worker.NewRedisLocker(rdb)
		log.Info("Using redis for rate limiting and locks", zap.String("addr", cfg.Redis.Addr))
	} else {
		limiter = ratelimit.NewPerMinute(cfg.EasyOrders.RateLimitPerMinute)
		locker = worker.NewLocalLocker()
		log.Warn("Redis not configured, rate limiting and locks are process-local")
	}

	gateway := easyorders.NewClient(cfg.EasyOrders, limiter, log)

	repos := postgres.NewRepositories(db, log)
	tx := postgres.NewTxManager(db, log)

	webhookService := service.NewWebhookService(cfg.EasyOrders, repos, tx, gateway, log)
	paymentPoller := service.NewPaymentPoller(cfg.EasyOrders, repos, tx, gateway, log)
	validationService := service.NewValidationService(cfg.EasyOrders, tx, log)
	importService := service.NewImportService(cfg.EasyOrders, tx, service.NewMarketplaceOrderCreator(log), log)
	statusPushService := service.NewStatusPushService(repos, gateway, log)
	storeService := service.NewStoreService(repos, gateway, log)
	tempOrderService := service.NewTempOrderService(repos, tx, log)

	pool := worker.NewPool(cfg.Worker, repos.Task, locker, log)
	pool.Register(domain.TaskKindWaitPayment, paymentPoller.Poll)
	pool.Register(domain.TaskKindValidate, validationService.Validate)
	pool.Register(domain.TaskKindImport, importService.Import)
	pool.Register(domain.TaskKindPushStatus, statusPushService.PushStatus)
	pool.OnExhausted(domain.TaskKindWaitPayment, paymentPoller.RecordFailure)
	pool.OnExhausted(domain.TaskKindValidate, validationService.RecordFailure)
	pool.OnExhausted(domain.TaskKindImport, importService.RecordFailure)
	pool.Start(context.Background())

	router := api.NewRouter(cfg, api.Services{
		Webhook:    webhookService,
		Stores:     storeService,
		TempOrders: tempOrderService,
	}, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr), zap.String("environment", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	pool.Stop()

	log.Info("Server exited gracefully")
}
