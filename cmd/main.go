package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"docgate/internal/api"
	"docgate/internal/auth"
	"docgate/internal/cache"
	"docgate/internal/config"
	"docgate/internal/connection"
	"docgate/internal/docstore"
	"docgate/internal/logging"
	"docgate/internal/manager"
	"docgate/internal/messaging"
	"docgate/internal/metrics"
	"docgate/internal/provision"
	"docgate/internal/proxy"
	"docgate/internal/quota"
	"docgate/internal/storage"
	"docgate/internal/validation"
	"docgate/internal/worker"
)

// @title docgate API
// @version 1.0
// @description Multi-tenant gateway for provisioning and querying caller-owned document stores
// @host localhost:8080
// @BasePath /
// @schemes http

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	issueAdmin := flag.String("issue-admin-token", "", "print an admin JWT for the given subject and exit")
	flag.Parse()

	// Load Configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	issuer := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if *issueAdmin != "" {
		token, err := issuer.GenerateToken(*issueAdmin)
		if err != nil {
			logger.Fatal("Failed to issue admin token", zap.Error(err))
		}
		fmt.Println(token)
		return
	}

	if err := run(cfg, issuer, logger); err != nil {
		logger.Fatal("docgate stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, issuer *auth.TokenIssuer, logger *zap.Logger) error {
	// Init Metrics
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tenant registry
	store, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open registry: %w", err)
	}
	defer store.Close()
	logger.Info("Registry connected", zap.String("driver", cfg.Database.Driver))

	var tenants storage.TenantStore = store
	if cfg.Redis.Addr != "" {
		client, err := cache.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		tc := cache.NewTenantCache(store, client, cfg.Redis.TTL, logger)
		defer tc.Close()
		tenants = tc
		logger.Info("Redis tenant cache enabled")
	}

	connector, err := docstore.NewConnector(cfg.Store.Driver, cfg.Store.ConnectTimeout)
	if err != nil {
		return err
	}

	// Usage pipeline
	var (
		publisher provision.EventPublisher = provision.NopPublisher{}
		pipeline  api.UsagePipeline
		tm        *manager.TenantManager
	)
	if cfg.RabbitMQ.URL != "" {
		rabbitClient, err := messaging.NewRabbitClient(cfg.RabbitMQ.URL, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()
		logger.Info("RabbitMQ connected")

		pool := worker.NewWorkerPool("usage", cfg.Workers, logger)
		tm = manager.NewTenantManager(rabbitClient, store, pool, logger)
		defer tm.ShutdownAll()
		publisher = rabbitClient
		pipeline = tm

		// Recover Existing Tenants
		existing, err := store.ListTenants(ctx)
		if err != nil {
			return fmt.Errorf("failed to load tenants: %w", err)
		}
		for _, t := range existing {
			if err := tm.AddTenant(ctx, t.ID); err != nil {
				logger.Warn("Failed to recover tenant", zap.String("tenant", t.ID.String()), zap.Error(err))
				continue
			}
		}
		logger.Info("Usage consumers recovered", zap.Int("tenants", len(existing)))

		go func() {
			ticker := time.NewTicker(10 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					for _, id := range tm.ListTenantIDs() {
						rabbitClient.UpdateQueueDepth(id)
					}
				}
			}
		}()
	} else {
		logger.Warn("rabbitmq.url not set, usage events are not recorded")
	}

	gate, err := validation.NewGate()
	if err != nil {
		return err
	}
	tracker := quota.NewTracker(tenants, cfg.Quota.FreeTierLimit, logger)

	// Init API
	apiHandler := api.NewAPI(api.Deps{
		Tenants:       tenants,
		Events:        store,
		Gate:          gate,
		Conns:         connection.NewManager(connector, cfg.Store.OperationTimeout, logger),
		Engine:        provision.NewEngine(tracker, publisher, logger),
		Proxy:         proxy.New(logger),
		Quota:         tracker,
		Authenticator: auth.NewAuthenticator(tenants),
		Issuer:        issuer,
		UsagePipeline: pipeline,
	}, cfg, logger)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      apiHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting API server", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("Shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	logger.Info("Graceful shutdown complete")
	return nil
}
