package redemption

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/voucherredeem-backend/pkg/db/models"
	"github.com/angelmondragon/voucherredeem-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/voucherredeem-backend/pkg/errors"
	"github.com/angelmondragon/voucherredeem-backend/pkg/logger"
	"github.com/angelmondragon/voucherredeem-backend/pkg/marketplace"
	"github.com/angelmondragon/voucherredeem-backend/pkg/metrics"
	"github.com/angelmondragon/voucherredeem-backend/pkg/numberprovider"
)

// NumberProvider leases and releases voucher numbers.
type NumberProvider interface {
	Acquire(ctx context.Context, serviceCode string) (*numberprovider.Lease, error)
	Release(ctx context.Context, leaseRef string)
	Poll(ctx context.Context, leaseRef string) (*string, error)
}

// OrderVerifier checks that an order may be redeemed.
type OrderVerifier interface {
	VerifyOrder(ctx context.Context, orderID string) (*marketplace.OrderVerification, error)
}

// Service drives the redemption state machine.
type Service interface {
	Start(ctx context.Context, orderID, serviceLabel string) (*StartResult, error)
	Retry(ctx context.Context, redemptionID int64) (*RetryResult, error)
	Status(ctx context.Context, redemptionID int64) (*StatusView, error)
	StatusByOrder(ctx context.Context, orderID string) (*StatusView, error)
	Services() []string
	PollOTP(ctx context.Context, redemptionID int64) (*string, error)
}

// ServiceParams names the dependencies for the redemption service.
type ServiceParams struct {
	Repo     Repository
	Provider NumberProvider
	Orders   OrderVerifier
	Policy   Policy
	Logger   *logger.Logger
	Metrics  *metrics.RedemptionMetrics
}

type service struct {
	repo     Repository
	provider NumberProvider
	orders   OrderVerifier
	policy   Policy
	logg     *logger.Logger
	metrics  *metrics.RedemptionMetrics
}

// NewService wires the redemption service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("redemption repository required")
	}
	if params.Provider == nil {
		return nil, fmt.Errorf("number provider required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order verifier required")
	}
	if params.Policy.MaxAttempts <= 0 {
		return nil, fmt.Errorf("policy max attempts must be positive")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     params.Repo,
		provider: params.Provider,
		orders:   params.Orders,
		policy:   params.Policy,
		logg:     params.Logger,
		metrics:  params.Metrics,
	}, nil
}

func (s *service) Start(ctx context.Context, orderID, serviceLabel string) (*StartResult, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order_id is required")
	}
	serviceCode, ok := s.policy.ServiceCode(serviceLabel)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown service").
			WithDetails(map[string]any{"allowed": s.policy.ServiceLabels()})
	}

	ctx = s.logg.WithFields(ctx, map[string]any{"order_id": orderID, "service": serviceLabel})

	verification, err := s.orders.VerifyOrder(ctx, orderID)
	if err != nil {
		return nil, asTyped(err, pkgerrors.CodeDependency, "verify order")
	}
	if !verification.Eligible() {
		status := ""
		if verification != nil {
			status = string(verification.Status)
		}
		return nil, pkgerrors.New(pkgerrors.CodeOrderNotEligible, "order is not eligible for redemption").
			WithDetails(map[string]any{"status": status})
	}

	lease, err := s.provider.Acquire(ctx, serviceCode)
	if err != nil {
		return nil, asTyped(err, pkgerrors.CodeProvider, "acquire number")
	}

	record := &models.Redemption{
		OrderID:       orderID,
		ServiceLabel:  serviceLabel,
		ServiceCode:   serviceCode,
		VoucherNumber: &lease.Number,
		LeaseRef:      &lease.LeaseRef,
		State:         enums.RedemptionStateWaitingOTP,
		Attempts:      0,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		s.provider.Release(ctx, lease.LeaseRef)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create redemption")
	}

	ctx = s.logg.WithRedemptionID(ctx, record.ID)
	s.logg.Info(ctx, "redemption.started")
	s.metrics.IncStarted(serviceLabel)

	return &StartResult{
		RedemptionID:  record.ID,
		ServiceLabel:  serviceLabel,
		ServiceCode:   serviceCode,
		VoucherNumber: lease.Number,
		ExpiresIn:     lease.TTLSeconds,
	}, nil
}

func (s *service) Retry(ctx context.Context, redemptionID int64) (*RetryResult, error) {
	ctx = s.logg.WithRedemptionID(ctx, redemptionID)

	record, err := s.load(ctx, redemptionID)
	if err != nil {
		return nil, err
	}
	// Attempts is checked before state; an exhausted redemption reports exhaustion even if complete.
	if record.Attempts >= s.policy.MaxAttempts {
		return nil, pkgerrors.New(pkgerrors.CodeAttemptsExhausted, "retry limit reached")
	}
	if record.State == enums.RedemptionStateSuccess {
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyComplete, "redemption already complete")
	}

	if record.LeaseRef != nil && *record.LeaseRef != "" {
		s.provider.Release(ctx, *record.LeaseRef)
	}

	lease, err := s.provider.Acquire(ctx, record.ServiceCode)
	if err != nil {
		return nil, asTyped(err, pkgerrors.CodeProvider, "acquire number")
	}

	swapped, err := s.repo.SwapLease(ctx, record.ID, record.Attempts, lease.Number, lease.LeaseRef)
	if err != nil {
		s.provider.Release(ctx, lease.LeaseRef)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update redemption lease")
	}
	if !swapped {
		s.provider.Release(ctx, lease.LeaseRef)
		return nil, s.lostSwap(ctx, record.ID)
	}

	s.logg.Info(s.logg.WithField(ctx, "attempts", record.Attempts+1), "redemption.retried")
	s.metrics.IncRetried(record.ServiceLabel)

	return &RetryResult{
		RedemptionID:  record.ID,
		VoucherNumber: lease.Number,
		ExpiresIn:     lease.TTLSeconds,
		Attempts:      record.Attempts + 1,
	}, nil
}

// lostSwap explains why a conditional lease swap matched no row.
func (s *service) lostSwap(ctx context.Context, redemptionID int64) error {
	current, err := s.repo.FindByID(ctx, redemptionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload redemption")
	}
	switch {
	case current == nil:
		return pkgerrors.New(pkgerrors.CodeNotFound, "redemption not found")
	case current.State == enums.RedemptionStateSuccess:
		return pkgerrors.New(pkgerrors.CodeAlreadyComplete, "redemption already complete")
	case current.Attempts >= s.policy.MaxAttempts:
		return pkgerrors.New(pkgerrors.CodeAttemptsExhausted, "retry limit reached")
	default:
		s.logg.Warn(ctx, "redemption.retry.conflict")
		return pkgerrors.New(pkgerrors.CodeConflict, "redemption changed while retrying, try again")
	}
}

func (s *service) Status(ctx context.Context, redemptionID int64) (*StatusView, error) {
	record, err := s.load(ctx, redemptionID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, record)
}

func (s *service) StatusByOrder(ctx context.Context, orderID string) (*StatusView, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order_id is required")
	}
	record, err := s.repo.FindLatestByOrderID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load redemption by order")
	}
	if record == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no redemption for order")
	}
	return s.view(ctx, record)
}

func (s *service) Services() []string {
	return s.policy.ServiceLabels()
}

// PollOTP asks the provider for a passcode on the current lease. It never changes state;
// only the webhook completes a redemption.
func (s *service) PollOTP(ctx context.Context, redemptionID int64) (*string, error) {
	record, err := s.load(ctx, redemptionID)
	if err != nil {
		return nil, err
	}
	if record.LeaseRef == nil || *record.LeaseRef == "" {
		return nil, nil
	}
	code, err := s.provider.Poll(ctx, *record.LeaseRef)
	if err != nil {
		return nil, asTyped(err, pkgerrors.CodeProvider, "poll status")
	}
	return code, nil
}

func (s *service) load(ctx context.Context, redemptionID int64) (*models.Redemption, error) {
	record, err := s.repo.FindByID(ctx, redemptionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load redemption")
	}
	if record == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "redemption not found")
	}
	return record, nil
}

func (s *service) view(ctx context.Context, record *models.Redemption) (*StatusView, error) {
	latest, err := s.repo.FindLatestOTPEvent(ctx, record.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load latest otp")
	}
	return newStatusView(record, latest, s.policy), nil
}

// asTyped keeps an existing coded error and wraps anything else with code.
func asTyped(err error, code pkgerrors.Code, message string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(code, err, message)
}
