package redemption

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/voucherredeem-backend/pkg/db/models"
	"github.com/angelmondragon/voucherredeem-backend/pkg/enums"
	"gorm.io/gorm"
)

// Repository handles redemption and OTP event persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, redemption *models.Redemption) error
	FindByID(ctx context.Context, id int64) (*models.Redemption, error)
	FindLatestByLeaseRef(ctx context.Context, leaseRef string) (*models.Redemption, error)
	FindLatestByOrderID(ctx context.Context, orderID string) (*models.Redemption, error)
	SwapLease(ctx context.Context, id int64, expectedAttempts int, voucherNumber, leaseRef string) (bool, error)
	MarkSuccess(ctx context.Context, id int64) error
	CreateOTPEvent(ctx context.Context, event *models.OTPEvent) error
	FindLatestOTPEvent(ctx context.Context, redemptionID int64) (*models.OTPEvent, error)
	CountOTPEvents(ctx context.Context, redemptionID int64) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a redemption repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, redemption *models.Redemption) error {
	return r.db.WithContext(ctx).Create(redemption).Error
}

func (r *repository) FindByID(ctx context.Context, id int64) (*models.Redemption, error) {
	var redemption models.Redemption
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&redemption).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &redemption, nil
}

// FindLatestByLeaseRef returns the most recently created redemption holding leaseRef.
func (r *repository) FindLatestByLeaseRef(ctx context.Context, leaseRef string) (*models.Redemption, error) {
	return r.findLatest(ctx, "lease_ref = ?", leaseRef)
}

func (r *repository) FindLatestByOrderID(ctx context.Context, orderID string) (*models.Redemption, error) {
	return r.findLatest(ctx, "order_id = ?", orderID)
}

func (r *repository) findLatest(ctx context.Context, query string, arg any) (*models.Redemption, error) {
	var redemption models.Redemption
	if err := r.db.WithContext(ctx).
		Where(query, arg).
		Order("id DESC").
		Limit(1).
		Take(&redemption).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &redemption, nil
}

// SwapLease replaces the lease and bumps attempts, but only while the row is still
// non-terminal and at expectedAttempts. It reports whether the row was updated.
func (r *repository) SwapLease(ctx context.Context, id int64, expectedAttempts int, voucherNumber, leaseRef string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Redemption{}).
		Where("id = ? AND state <> ? AND attempts = ?", id, enums.RedemptionStateSuccess, expectedAttempts).
		Updates(map[string]any{
			"voucher_number": voucherNumber,
			"lease_ref":      leaseRef,
			"state":          enums.RedemptionStateWaitingOTP,
			"attempts":       gorm.Expr("attempts + 1"),
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkSuccess sets the terminal state unconditionally. Repeating it is harmless.
func (r *repository) MarkSuccess(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&models.Redemption{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"state":      enums.RedemptionStateSuccess,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *repository) CreateOTPEvent(ctx context.Context, event *models.OTPEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) FindLatestOTPEvent(ctx context.Context, redemptionID int64) (*models.OTPEvent, error) {
	var event models.OTPEvent
	if err := r.db.WithContext(ctx).
		Where("redemption_id = ?", redemptionID).
		Order("id DESC").
		Limit(1).
		Take(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

func (r *repository) CountOTPEvents(ctx context.Context, redemptionID int64) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.OTPEvent{}).
		Where("redemption_id = ?", redemptionID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
