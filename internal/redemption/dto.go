package redemption

import (
	"github.com/angelmondragon/voucherredeem-backend/pkg/db/models"
	"github.com/angelmondragon/voucherredeem-backend/pkg/enums"
)

// StartRequest is the buyer payload for starting a redemption.
type StartRequest struct {
	OrderID string `json:"order_id" validate:"required,max=128"`
	Service string `json:"service" validate:"required,max=32"`
}

// RetryRequest is the buyer payload for swapping in a new number.
type RetryRequest struct {
	RedemptionID int64 `json:"redemption_id" validate:"required,gt=0"`
}

type StartResult struct {
	RedemptionID  int64  `json:"redemption_id"`
	ServiceLabel  string `json:"service_label"`
	ServiceCode   string `json:"service_code"`
	VoucherNumber string `json:"voucher_number"`
	ExpiresIn     int    `json:"expires_in"`
}

type RetryResult struct {
	RedemptionID  int64  `json:"redemption_id"`
	VoucherNumber string `json:"voucher_number"`
	ExpiresIn     int    `json:"expires_in"`
	Attempts      int    `json:"attempts"`
}

// StatusView is the read model returned to the buyer. It never carries lease references.
type StatusView struct {
	RedemptionID  int64                 `json:"redemption_id"`
	OrderID       string                `json:"order_id"`
	State         enums.RedemptionState `json:"state"`
	VoucherNumber *string               `json:"voucher_number"`
	OTP           *string               `json:"otp"`
	Attempts      int                   `json:"attempts"`
	CanRetry      bool                  `json:"can_retry"`
	ServiceLabel  string                `json:"service_label"`
	ServiceCode   string                `json:"service_code"`
}

func newStatusView(r *models.Redemption, latest *models.OTPEvent, policy Policy) *StatusView {
	view := &StatusView{
		RedemptionID:  r.ID,
		OrderID:       r.OrderID,
		State:         r.State,
		VoucherNumber: r.VoucherNumber,
		Attempts:      r.Attempts,
		CanRetry:      policy.CanRetry(r),
		ServiceLabel:  r.ServiceLabel,
		ServiceCode:   r.ServiceCode,
	}
	if latest != nil {
		otp := latest.OTPCode
		view.OTP = &otp
	}
	return view
}
