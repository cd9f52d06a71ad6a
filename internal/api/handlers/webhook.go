package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/easyorders/internal/domain"
	"github.com/jafarshop/easyorders/internal/service"
	"github.com/jafarshop/easyorders/pkg/errors"
)

const maxWebhookBody = 1 << 20

// WebhookIntake stages inbound orders and records every call
type WebhookIntake interface {
	Ingest(ctx context.Context, req service.IngestRequest) (*domain.TempOrder, error)
	RecordCall(ctx context.Context, storeID *uuid.UUID, headers http.Header, body []byte, status int, callErr error)
}

// WebhookResponse is returned for accepted and duplicate deliveries
type WebhookResponse struct {
	TempOrderID string                 `json:"temp_order_id"`
	Status      domain.TempOrderStatus `json:"status"`
}

// HandleEasyOrdersWebhook handles POST /integrations/easyorders/webhook
func HandleEasyOrdersWebhook(intake WebhookIntake, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			invalid := &errors.ErrInvalidPayload{Message: "unreadable body"}
			intake.RecordCall(ctx, nil, c.Request.Header, nil, http.StatusUnprocessableEntity, invalid)
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": invalid.Error()})
			return
		}

		order, err := intake.Ingest(ctx, service.IngestRequest{
			Payload:  body,
			Secret:   c.GetHeader(service.SecretHeader),
			ClientIP: c.ClientIP(),
		})
		if err != nil {
			status := statusFor(err)
			intake.RecordCall(ctx, nil, c.Request.Header, body, status, err)
			if status == http.StatusForbidden || status == http.StatusUnauthorized {
				logger.Warn("Rejected webhook", zap.String("client_ip", c.ClientIP()), zap.Int("status", status))
			}
			respondError(c, logger, err, "Failed to ingest webhook")
			return
		}

		storeID := order.StoreID
		intake.RecordCall(ctx, &storeID, c.Request.Header, body, http.StatusOK, nil)

		c.JSON(http.StatusOK, WebhookResponse{
			TempOrderID: order.ID.String(),
			Status:      order.Status,
		})
	}
}
