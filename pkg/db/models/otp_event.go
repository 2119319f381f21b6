package models

import "time"

// OTPEvent is an append-only record of a passcode delivered for a redemption.
type OTPEvent struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	RedemptionID int64     `gorm:"column:redemption_id;not null;index"`
	OTPCode      string    `gorm:"column:otp_code;not null"`
	RawPayload   string    `gorm:"column:raw_payload"`
	ReceivedAt   time.Time `gorm:"column:received_at;autoCreateTime"`
}

func (OTPEvent) TableName() string { return "otp_events" }
