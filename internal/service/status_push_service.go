package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/easyorders/internal/domain"
	"github.com/jafarshop/easyorders/internal/easyorders"
	"github.com/jafarshop/easyorders/internal/repository"
)

type statusPushService struct {
	repos   *repository.Repositories
	gateway easyorders.Gateway
	logger  *zap.Logger
}

// NewStatusPushService creates the service that confirms imported orders back to EasyOrders
func NewStatusPushService(repos *repository.Repositories, gateway easyorders.Gateway, logger *zap.Logger) *statusPushService {
	return &statusPushService{
		repos:   repos,
		gateway: gateway,
		logger:  logger,
	}
}

// PushStatus marks the external order as confirmed. Upstream errors are returned
// so the task is retried.
func (s *statusPushService) PushStatus(ctx context.Context, tempOrderID uuid.UUID) error {
	order, err := s.repos.TempOrder.GetByID(ctx, tempOrderID)
	if isNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if order.Status != domain.TempOrderStatusImported {
		return nil
	}

	store, err := s.repos.Store.GetByID(ctx, order.StoreID)
	if isNotFound(err) {
		s.logger.Warn("Store missing, status not pushed", zap.String("temp_order_id", order.ID.String()))
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.gateway.UpdateOrderStatus(ctx, store, order.ExternalOrderID, easyorders.StatusConfirmed); err != nil {
		return err
	}

	s.logger.Info("Pushed order status",
		zap.String("temp_order_id", order.ID.String()),
		zap.String("external_order_id", order.ExternalOrderID),
		zap.String("status", easyorders.StatusConfirmed),
	)
	return nil
}
