package models

import (
	"net/http"
	"time"
)

// WebhookLog is the audit row written for every inbound webhook call, authenticated or not.
type WebhookLog struct {
	ID             int64       `gorm:"column:id;primaryKey;autoIncrement"`
	Endpoint       string      `gorm:"column:endpoint;not null"`
	Headers        http.Header `gorm:"column:headers;serializer:json"`
	Payload        string      `gorm:"column:payload"`
	ValidSignature bool        `gorm:"column:valid_signature;not null"`
	CreatedAt      time.Time   `gorm:"column:created_at;autoCreateTime"`
}

func (WebhookLog) TableName() string { return "webhook_logs" }
