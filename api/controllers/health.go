package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/voucherredeem-backend/api/responses"
	"github.com/angelmondragon/voucherredeem-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/voucherredeem-backend/pkg/errors"
	"github.com/angelmondragon/voucherredeem-backend/pkg/logger"
)

const readinessTimeout = 2 * time.Second

const envHeader = "X-Voucher-Env"

// Pinger is anything readiness can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings the database and, when configured, redis. A nil pinger is skipped.
func HealthReady(cfg *config.Config, logg *logger.Logger, database Pinger, cache Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := map[string]string{"database": "skipped", "redis": "skipped"}
		probes := []struct {
			name   string
			pinger Pinger
		}{
			{"database", database},
			{"redis", cache},
		}
		for _, probe := range probes {
			if probe.pinger == nil {
				continue
			}
			if err := probe.pinger.Ping(ctx); err != nil {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Wrap(pkgerrors.CodeDependency, err, probe.name+" unavailable"))
				return
			}
			checks[probe.name] = "ok"
		}

		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
