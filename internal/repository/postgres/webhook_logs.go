package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/easyorders/internal/domain"
)

type webhookLogRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewWebhookLogRepository creates a new webhook log repository
func NewWebhookLogRepository(db DBTX, logger *zap.Logger) *webhookLogRepository {
	return &webhookLogRepository{
		db:     db,
		logger: logger,
	}
}

func (r *webhookLogRepository) Create(ctx context.Context, log *domain.WebhookLog) error {
	query := `
		INSERT INTO easyorders_webhook_logs (id, store_id, request_headers, request_body, http_status, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}

	headers, err := marshalNullableJSON(log.RequestHeaders)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query,
		log.ID,
		nullUUID(log.StoreID),
		headers,
		log.RequestBody,
		log.HTTPStatus,
		log.Error,
		log.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create webhook log", zap.Error(err))
		return err
	}

	return nil
}
