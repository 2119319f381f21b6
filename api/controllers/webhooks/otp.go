package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/voucherredeem-backend/api/responses"
	otpwebhook "github.com/angelmondragon/voucherredeem-backend/internal/webhooks/otp"
	pkgerrors "github.com/angelmondragon/voucherredeem-backend/pkg/errors"
	"github.com/angelmondragon/voucherredeem-backend/pkg/logger"
)

const defaultMaxBodyBytes = 1 << 20

type OTPWebhookService interface {
	Apply(ctx context.Context, req otpwebhook.Request) (*otpwebhook.Result, error)
}

// OTPWebhook accepts passcode deliveries from the number provider.
// An oversized body is cut at maxBodyBytes and still logged; it then fails to parse.
func OTPWebhook(svc OTPWebhookService, maxBodyBytes int64, logg *logger.Logger) http.HandlerFunc {
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil && logg != nil {
			logg.Warn(logg.WithField(ctx, "read_error", err.Error()), "webhook.otp.body_truncated")
		}

		if _, err := svc.Apply(ctx, otpwebhook.Request{
			Endpoint: r.URL.Path,
			Headers:  r.Header.Clone(),
			Body:     payload,
		}); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]bool{"ok": true})
	}
}
