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

	"apna-payments/internal/config"
	"apna-payments/internal/dtos"
	"apna-payments/internal/gateway"
	"apna-payments/internal/metrics"
	"apna-payments/internal/queue"
	"apna-payments/internal/server"
	"apna-payments/internal/services"
	"apna-payments/internal/store"

	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	_ "go.uber.org/automaxprocs"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
	}()

	logHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:     slog.LevelInfo,
		AddSource: true,
	})
	log := slog.New(logHandler)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	records, closeStore, err := openStore(cfg)
	if err != nil {
		slog.Error("failed to open record store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	pending, closePending, err := openPending(cfg)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer closePending()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	dispatcher := queue.NewDispatcher(log, m, cfg.DispatchMaxInFlight)
	supervised := make(chan struct{})
	go func() {
		dispatcher.Supervise()
		close(supervised)
	}()

	instamojo := gateway.NewInstamojo(cfg.GatewayBaseURL, cfg.APIKey, cfg.AuthToken)

	intentService := services.NewIntentService(services.IntentServiceParams{
		Log:         log,
		Gateway:     gateway.NewBreaker("instamojo", instamojo),
		Records:     records,
		Dispatcher:  dispatcher,
		Pending:     pending,
		Metrics:     m,
		PrivateSalt: cfg.PrivateSalt,
	})

	srv := server.NewServer(cfg.Port, intentService, dtos.PaymentDefaults{
		Amount:  cfg.Amount,
		Purpose: cfg.Purpose,
		Webhook: cfg.Webhook,
	}, registry)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("READY", "port", cfg.Port, "store", cfg.StoreDriver)
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shut down server", "error", err)
	}

	// Let dispatched writes finish before the store goes away.
	dispatcher.Close()
	<-supervised
	slog.Info("shutdown complete")
}

func openStore(cfg config.Config) (store.RecordStore, func(), error) {
	gormConfig := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	var db *gorm.DB
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		slog.Warn("using in-memory record store; records are lost on restart")
		return store.NewMemoryStore(store.DefaultOptions()), func() {}, nil

	case config.StoreDriverSQLite:
		var err error
		db, err = gorm.Open(sqlite.Open(cfg.SQLitePath), gormConfig)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		sqlDB.SetMaxOpenConns(1)

	default:
		sqlDB, err := sql.Open("postgres", cfg.PostgresDSN())
		if err != nil {
			return nil, nil, err
		}
		sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.DBMaxOpenConns)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sqlDB.PingContext(pingCtx); err != nil {
			sqlDB.Close()
			return nil, nil, fmt.Errorf("pinging postgres: %w", err)
		}

		db, err = gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), gormConfig)
		if err != nil {
			sqlDB.Close()
			return nil, nil, err
		}
	}

	records, err := store.NewSQLStore(db, store.DefaultOptions())
	if err != nil {
		return nil, nil, err
	}

	closeFn := func() {
		if sqlDB, err := db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				slog.Error("failed to close database", "error", err)
			}
		}
	}
	return records, closeFn, nil
}

func openPending(cfg config.Config) (queue.PendingNotificationsInterface, func(), error) {
	if cfg.RedisAddr == "" {
		slog.Warn("REDIS_ADDR not set; early notifications are buffered in memory")
		return queue.NewMemoryPending(cfg.PendingTTL), func() {}, nil
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		MinIdleConns: 2,
		MaxRetries:   1,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
		IdleTimeout:  2 * time.Minute,
	})

	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		redisClient.Close()
		return nil, nil, err
	}

	closeFn := func() {
		if err := redisClient.Close(); err != nil {
			slog.Error("failed to close redis client", "error", err)
		}
	}
	return queue.NewRedisPending(redisClient, cfg.PendingTTL), closeFn, nil
}
