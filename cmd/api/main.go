package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "bloodbank/api/swagger" // swagger docs
	"bloodbank/internal/auth"
	"bloodbank/internal/config"
	"bloodbank/internal/database"
	"bloodbank/internal/handler"
	"bloodbank/internal/model"
	"bloodbank/internal/service"
	"bloodbank/internal/websocket"
	"bloodbank/pkg/logger"
	"bloodbank/pkg/metrics"
	pkgredis "bloodbank/pkg/redis"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// @title           Blood Bank API
// @version         1.0
// @description     Donation intake, hospital requests and ledger-backed blood inventory.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Options{ServiceName: "bloodbank-api"}).Error(context.Background(), "config load failed", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		ServiceName: "bloodbank-api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
	})
	if !cfg.App.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}
	gin.DefaultWriter = log.Zerolog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error(context.Background(), "server stopped with error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	db, err := database.NewConnection(cfg.DB)
	if err != nil {
		return err
	}
	if err := database.Migrate(ctx, db); err != nil {
		return err
	}
	log.Info(ctx, "connected to PostgreSQL and migrated schema")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	workflowMetrics := metrics.NewWorkflowMetrics(reg)

	hub := websocket.NewHub(log)
	go hub.Run(ctx)

	svc := service.New(db, service.Options{
		Thresholds:       thresholds(cfg.Inventory),
		DonationCooldown: cfg.Inventory.DonationCooldown,
		Publisher:        hub,
		Metrics:          workflowMetrics,
		Logger:           log,
	})
	if err := svc.Inventory.SyncLowStockFlags(ctx); err != nil {
		return err
	}

	deps := handler.RouterDeps{
		Services:       svc,
		Signer:         auth.NewSigner(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL),
		Logger:         log,
		Hub:            hub,
		IdempotencyTTL: cfg.Redis.IdempotencyTTL,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Swagger:        !cfg.App.IsProd(),
	}
	if cfg.App.Metrics {
		deps.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	}
	if cfg.Redis.Enabled() {
		rdb, err := pkgredis.New(ctx, pkgredis.Options{
			URL:         cfg.Redis.URL,
			PoolSize:    cfg.Redis.PoolSize,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		if err != nil {
			return err
		}
		defer rdb.Close()
		deps.Idempotency = rdb
		log.Info(ctx, "idempotency keys backed by redis")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           handler.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(log.WithField(ctx, "port", cfg.App.Port), "server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func thresholds(cfg config.InventoryConfig) service.Thresholds {
	overrides := make(map[string]int, len(cfg.LowStockOverrides))
	for group, v := range cfg.LowStockOverrides {
		overrides[model.NormalizeBloodGroup(group)] = v
	}
	return service.Thresholds{Default: cfg.LowStockThreshold, Overrides: overrides}
}
