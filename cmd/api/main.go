package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/voucherredeem-backend/api/routes"
	"github.com/angelmondragon/voucherredeem-backend/internal/redemption"
	otpwebhook "github.com/angelmondragon/voucherredeem-backend/internal/webhooks/otp"
	"github.com/angelmondragon/voucherredeem-backend/pkg/config"
	"github.com/angelmondragon/voucherredeem-backend/pkg/db"
	"github.com/angelmondragon/voucherredeem-backend/pkg/logger"
	"github.com/angelmondragon/voucherredeem-backend/pkg/marketplace"
	"github.com/angelmondragon/voucherredeem-backend/pkg/metrics"
	"github.com/angelmondragon/voucherredeem-backend/pkg/migrate"
	"github.com/angelmondragon/voucherredeem-backend/pkg/numberprovider"
	"github.com/angelmondragon/voucherredeem-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, dbClient.Close())
	}()

	if err := migrate.MaybeRun(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	router := routes.RouterParams{
		Config: cfg,
		Logger: logg,
		DB:     dbClient,
	}

	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return err
		}
		defer func() {
			err = multierr.Append(err, redisClient.Close())
		}()
		router.Redis = redisClient
	} else {
		logg.Warn(ctx, "redis not configured; idempotency replay and rate limiting disabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	redemptionMetrics := metrics.NewRedemptionMetrics(registry)
	router.Gatherer = registry
	router.HTTPMetrics = metrics.NewHTTPMetrics(registry)

	provider, err := numberprovider.NewClient(cfg.Provider,
		numberprovider.WithLogger(logg),
		numberprovider.WithObserver(redemptionMetrics),
	)
	if err != nil {
		return err
	}

	orders, err := marketplace.NewClient(cfg.Marketplace)
	if err != nil {
		return err
	}

	redemptionRepo := redemption.NewRepository(dbClient.DB())
	router.Redemptions, err = redemption.NewService(redemption.ServiceParams{
		Repo:     redemptionRepo,
		Provider: provider,
		Orders:   orders,
		Policy:   redemption.DefaultPolicy(),
		Logger:   logg,
		Metrics:  redemptionMetrics,
	})
	if err != nil {
		return err
	}

	router.OTPWebhook, err = otpwebhook.NewService(otpwebhook.ServiceParams{
		Logs:        otpwebhook.NewLogRepository(dbClient.DB()),
		Redemptions: redemptionRepo,
		Tx:          dbClient,
		Secret:      cfg.Webhook.OTPSecret,
		Logger:      logg,
		Metrics:     redemptionMetrics,
	})
	if err != nil {
		return err
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":    cfg.App.Env,
		"addr":   addr,
		"driver": dbClient.Dialect(),
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logg.Info(logCtx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(groupCtx), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return group.Wait()
}
