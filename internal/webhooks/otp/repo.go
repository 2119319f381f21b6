package otpwebhook

import (
	"context"

	"github.com/angelmondragon/voucherredeem-backend/pkg/db/models"
	"gorm.io/gorm"
)

// LogRepository appends webhook audit rows.
type LogRepository interface {
	Create(ctx context.Context, entry *models.WebhookLog) error
	ListByEndpoint(ctx context.Context, endpoint string) ([]models.WebhookLog, error)
}

type logRepository struct {
	db *gorm.DB
}

// NewLogRepository returns a webhook log repository bound to db.
func NewLogRepository(db *gorm.DB) LogRepository {
	return &logRepository{db: db}
}

func (r *logRepository) Create(ctx context.Context, entry *models.WebhookLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListByEndpoint returns rows oldest first.
func (r *logRepository) ListByEndpoint(ctx context.Context, endpoint string) ([]models.WebhookLog, error) {
	var rows []models.WebhookLog
	if err := r.db.WithContext(ctx).
		Where("endpoint = ?", endpoint).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
