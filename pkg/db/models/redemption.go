package models

import (
	"time"

	"github.com/angelmondragon/voucherredeem-backend/pkg/enums"
)

// Redemption is one buyer's attempt to turn a paid order into a voucher number.
// LeaseRef and VoucherNumber are overwritten on every retry; the previous lease is not kept.
type Redemption struct {
	ID            int64                 `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID       string                `gorm:"column:order_id;not null;index"`
	ServiceLabel  string                `gorm:"column:service_label;not null"`
	ServiceCode   string                `gorm:"column:service_code;not null"`
	VoucherNumber *string               `gorm:"column:voucher_number"`
	LeaseRef      *string               `gorm:"column:lease_ref;index"`
	State         enums.RedemptionState `gorm:"column:state;not null;default:WAITING_OTP"`
	Attempts      int                   `gorm:"column:attempts;not null;default:0"`
	LastError     *string               `gorm:"column:last_error"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (Redemption) TableName() string { return "redemptions" }
