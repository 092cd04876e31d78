package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/nimbafinance/edge-gateway/internal/audit"
	"github.com/nimbafinance/edge-gateway/internal/config"
	"github.com/nimbafinance/edge-gateway/internal/crypto"
	"github.com/nimbafinance/edge-gateway/internal/fraud"
	"github.com/nimbafinance/edge-gateway/internal/interceptor"
	"github.com/nimbafinance/edge-gateway/internal/keystore"
	"github.com/nimbafinance/edge-gateway/internal/metrics"
	"github.com/nimbafinance/edge-gateway/internal/server"
)

const (
	serviceName = "edge-gateway"
	version     = "1.0.0"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := cfg.InitLogger()
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting edge gateway",
		zap.String("service", serviceName),
		zap.String("version", version),
		zap.String("upstream", cfg.Upstream.BaseURL),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Session keystore
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.Database,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()

	cipherService := crypto.NewCipherService(cfg.Security.KeyIterations, logger)
	sessions := keystore.NewStore(
		keystore.NewRedisBackend(redisClient),
		cipherService,
		cfg.Security.SessionTTL,
		logger,
	)

	collector := metrics.NewCollector(prometheus.DefaultRegisterer)
	routeTable := cfg.RouteTable()

	// Audit delivery: collector sink always, store and realtime hub when the
	// console read side is enabled.
	hub := audit.NewHub(logger)
	sinks := []audit.Sink{
		audit.NewCollectorSink(cfg.Audit.CollectorURL, cfg.Audit.Timeout),
		hub,
	}

	var auditStore *audit.Store
	if cfg.Database.Enabled {
		db, err := gorm.Open(postgres.Open(cfg.GetDatabaseDSN()), &gorm.Config{})
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		auditStore, err = audit.NewStore(db, logger)
		if err != nil {
			logger.Fatal("Failed to initialize audit store", zap.Error(err))
		}
		sinks = append(sinks, auditStore)
	}

	dispatcher := audit.NewDispatcher(audit.DispatcherConfig{
		BufferSize:    cfg.Audit.BufferSize,
		BatchSize:     cfg.Audit.BatchSize,
		FlushInterval: cfg.Audit.FlushInterval,
	}, logger, sinks...)
	if err := dispatcher.Start(ctx); err != nil {
		logger.Fatal("Failed to start audit dispatcher", zap.Error(err))
	}

	analyzer := fraud.NewAnalyzer(cfg.Fraud.ScorerURL, cfg.Fraud.Timeout, logger)

	chain := interceptor.NewChain(logger, collector,
		interceptor.NewAuthInterceptor(sessions, logger),
		interceptor.NewAuditInterceptor(routeTable, dispatcher, collector, logger),
		interceptor.NewFraudInterceptor(routeTable, analyzer, collector, logger, cfg.Fraud.Blocking, cfg.Fraud.Timeout),
		interceptor.NewEncryptInterceptor(routeTable, cipherService, sessions, collector, logger),
	)

	transport, err := interceptor.NewDispatcher(cfg.Upstream.BaseURL, cfg.Upstream.Timeout, collector, logger)
	if err != nil {
		logger.Fatal("Failed to initialize upstream dispatcher", zap.Error(err))
	}

	srv := server.New(cfg, logger, chain, transport, sessions, auditStore, hub)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: srv.Router(),
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		logger.Error("Audit dispatcher shutdown failed", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}
