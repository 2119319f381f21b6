package otpwebhook

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/angelmondragon/voucherredeem-backend/internal/redemption"
	"github.com/angelmondragon/voucherredeem-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/voucherredeem-backend/pkg/errors"
	"github.com/angelmondragon/voucherredeem-backend/pkg/logger"
	"github.com/angelmondragon/voucherredeem-backend/pkg/metrics"
	"gorm.io/gorm"
)

// Outcome labels for webhook_deliveries_total.
const (
	OutcomeApplied      = "applied"
	OutcomeUnauthorized = "unauthorized"
	OutcomeMalformed    = "malformed"
	OutcomeUnmatched    = "unmatched"
	OutcomeError        = "error"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Request is one inbound webhook call.
type Request struct {
	Endpoint string
	Headers  http.Header
	Body     []byte
}

// Result describes an applied delivery.
type Result struct {
	RedemptionID int64
	Service      string
}

type ServiceParams struct {
	Logs        LogRepository
	Redemptions redemption.Repository
	Tx          txRunner
	Secret      string
	Logger      *logger.Logger
	Metrics     *metrics.RedemptionMetrics
}

// Service authenticates OTP webhooks and applies them to the matching redemption.
type Service struct {
	logs        LogRepository
	redemptions redemption.Repository
	tx          txRunner
	secret      []byte
	logg        *logger.Logger
	metrics     *metrics.RedemptionMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logs == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook log repo required")
	}
	if params.Redemptions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "redemption repo required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if strings.TrimSpace(params.Secret) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook secret required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		logs:        params.Logs,
		redemptions: params.Redemptions,
		tx:          params.Tx,
		secret:      []byte(params.Secret),
		logg:        params.Logger,
		metrics:     params.Metrics,
	}, nil
}

// Apply logs the call, then correlates it to a redemption by lease reference and
// marks it complete. Every call is logged, including rejected ones.
func (s *Service) Apply(ctx context.Context, req Request) (*Result, error) {
	valid := s.authorized(req.Headers)

	entry := &models.WebhookLog{
		Endpoint:       req.Endpoint,
		Headers:        req.Headers,
		Payload:        string(req.Body),
		ValidSignature: valid,
	}
	if err := s.logs.Create(ctx, entry); err != nil {
		if valid {
			s.metrics.IncWebhook(OutcomeError)
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write webhook log")
		}
		s.logg.Error(ctx, "webhook.log.failed", err)
	}

	if !valid {
		s.metrics.IncWebhook(OutcomeUnauthorized)
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "unauthorized")
	}

	delivery, ok := parseDelivery(req.Body)
	if !ok {
		s.metrics.IncWebhook(OutcomeMalformed)
		return nil, pkgerrors.New(pkgerrors.CodeMalformedPayload, "bad request")
	}

	ctx = s.logg.WithLeaseRef(ctx, delivery.LeaseRef)

	var result *Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.redemptions.WithTx(tx)

		record, err := repo.FindLatestByLeaseRef(ctx, delivery.LeaseRef)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find redemption by lease")
		}
		if record == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "not found")
		}

		if err := repo.CreateOTPEvent(ctx, &models.OTPEvent{
			RedemptionID: record.ID,
			OTPCode:      delivery.OTPCode,
			RawPayload:   string(req.Body),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create otp event")
		}
		if err := repo.MarkSuccess(ctx, record.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark redemption success")
		}

		result = &Result{RedemptionID: record.ID, Service: record.ServiceLabel}
		return nil
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			s.metrics.IncWebhook(OutcomeUnmatched)
			s.logg.Warn(ctx, "webhook.otp.unmatched")
		} else {
			s.metrics.IncWebhook(OutcomeError)
		}
		if pkgerrors.As(err) == nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "apply otp")
		}
		return nil, err
	}

	s.metrics.IncWebhook(OutcomeApplied)
	s.metrics.IncCompleted(result.Service)
	s.logg.Info(s.logg.WithRedemptionID(ctx, result.RedemptionID), "webhook.otp.applied")
	return result, nil
}

func (s *Service) authorized(headers http.Header) bool {
	token := bearerToken(headers.Get("Authorization"))
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), s.secret) == 1
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	const prefix = "bearer "
	if len(header) >= len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		header = header[len(prefix):]
	}
	return strings.TrimSpace(header)
}
