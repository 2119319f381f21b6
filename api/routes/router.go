package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/voucherredeem-backend/api/controllers"
	redeemcontrollers "github.com/angelmondragon/voucherredeem-backend/api/controllers/redeem"
	webhookcontrollers "github.com/angelmondragon/voucherredeem-backend/api/controllers/webhooks"
	"github.com/angelmondragon/voucherredeem-backend/api/middleware"
	"github.com/angelmondragon/voucherredeem-backend/internal/redemption"
	"github.com/angelmondragon/voucherredeem-backend/pkg/config"
	"github.com/angelmondragon/voucherredeem-backend/pkg/logger"
	"github.com/angelmondragon/voucherredeem-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/voucherredeem-backend/pkg/redis"
)

// redisClient is satisfied by *pkgredis.Client. Pass nil when redis is not configured.
type redisClient interface {
	pkgredis.IdempotencyStore
	pkgredis.RateLimiter
	pkgredis.Pinger
}

type RouterParams struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          controllers.Pinger
	Redis       redisClient
	Redemptions redemption.Service
	OTPWebhook  webhookcontrollers.OTPWebhookService
	Gatherer    prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(p.HTTPMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	// Leave the redis-backed interfaces nil when redis is disabled.
	var (
		idempotencyStore pkgredis.IdempotencyStore
		limiter          pkgredis.RateLimiter
		cache            controllers.Pinger
	)
	if p.Redis != nil {
		idempotencyStore, limiter, cache = p.Redis, p.Redis, p.Redis
	}

	startPolicy := middleware.NewRateLimitPolicy(
		"start",
		cfg.RateLimit.StartWindow,
		cfg.RateLimit.StartIPLimit,
		cfg.RateLimit.StartOrderLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.DB, cache))
	})

	if p.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/redeem", func(r chi.Router) {
		r.Get("/services", redeemcontrollers.Services(p.Redemptions, logg))
		r.Get("/status/{id}", redeemcontrollers.Status(p.Redemptions, logg))
		r.Get("/orders/{orderId}", redeemcontrollers.StatusByOrder(p.Redemptions, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Idempotency(idempotencyStore, cfg.Idempotency.TTL, logg))
			r.With(middleware.RateLimit(startPolicy, limiter, logg)).Post("/start", redeemcontrollers.Start(p.Redemptions, logg))
			r.Post("/retry", redeemcontrollers.Retry(p.Redemptions, logg))
		})
	})

	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/otp", webhookcontrollers.OTPWebhook(p.OTPWebhook, int64(cfg.Webhook.MaxBodyKB)*1024, logg))
	})

	if cfg.App.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(cfg.App.StaticDir)))
	} else {
		r.Get("/", controllers.Root())
	}

	return r
}
