package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/easyorders/internal/domain"
	"github.com/jafarshop/easyorders/internal/repository"
	"github.com/jafarshop/easyorders/pkg/errors"
)

// BulkApproveResult lists which temp orders were queued for import
type BulkApproveResult struct {
	Approved []uuid.UUID       `json:"approved"`
	Skipped  map[string]string `json:"skipped"`
}

type tempOrderService struct {
	repos  *repository.Repositories
	tx     repository.TxManager
	logger *zap.Logger
	now    func() time.Time
}

// NewTempOrderService creates the admin service for staged orders
func NewTempOrderService(repos *repository.Repositories, tx repository.TxManager, logger *zap.Logger) *tempOrderService {
	return &tempOrderService{
		repos:  repos,
		tx:     tx,
		logger: logger,
		now:    time.Now,
	}
}

func (s *tempOrderService) List(ctx context.Context, filter repository.TempOrderFilter) ([]*domain.TempOrder, int, error) {
	return s.repos.TempOrder.List(ctx, filter)
}

func (s *tempOrderService) Get(ctx context.Context, id uuid.UUID) (*domain.TempOrder, error) {
	return s.repos.TempOrder.GetByID(ctx, id)
}

// Approve queues an import. Validated and approved orders keep their status;
// failed and import_failed orders move to approved.
func (s *tempOrderService) Approve(ctx context.Context, id uuid.UUID) (*domain.TempOrder, error) {
	var approved *domain.TempOrder
	err := s.tx.WithinTx(ctx, func(repos *repository.Repositories) error {
		order, err := repos.TempOrder.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if !order.Status.IsImportable() {
			if err := transition(order, domain.TempOrderStatusApproved); err != nil {
				return err
			}
			if err := repos.TempOrder.Update(ctx, order); err != nil {
				return err
			}
		}

		approved = order
		return enqueue(ctx, repos, domain.TaskKindImport, order.ID, s.now())
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Approved temp order",
		zap.String("temp_order_id", approved.ID.String()),
		zap.String("status", string(approved.Status)),
	)
	return approved, nil
}

// BulkApprove approves every listed order it can. Orders that cannot be approved
// are reported in Skipped with the reason.
func (s *tempOrderService) BulkApprove(ctx context.Context, ids []uuid.UUID) (*BulkApproveResult, error) {
	orders, err := s.repos.TempOrder.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := &BulkApproveResult{
		Approved: []uuid.UUID{},
		Skipped:  map[string]string{},
	}

	found := make(map[uuid.UUID]bool, len(orders))
	for _, order := range orders {
		found[order.ID] = true
		if _, err := s.Approve(ctx, order.ID); err != nil {
			switch err.(type) {
			case *errors.ErrInvalidStateTransition, *errors.ErrNotFound:
				result.Skipped[order.ID.String()] = err.Error()
				continue
			}
			return nil, err
		}
		result.Approved = append(result.Approved, order.ID)
	}

	for _, id := range ids {
		if !found[id] {
			result.Skipped[id.String()] = "not found"
		}
	}
	return result, nil
}

// Revalidate sends a pending or failed order back through validation
func (s *tempOrderService) Revalidate(ctx context.Context, id uuid.UUID) (*domain.TempOrder, error) {
	var order *domain.TempOrder
	err := s.tx.WithinTx(ctx, func(repos *repository.Repositories) error {
		var err error
		order, err = repos.TempOrder.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}

		switch order.Status {
		case domain.TempOrderStatusPending:
		case domain.TempOrderStatusFailed:
			if err := transition(order, domain.TempOrderStatusPending); err != nil {
				return err
			}
			order.SetFailureReason("")
			if err := repos.TempOrder.Update(ctx, order); err != nil {
				return err
			}
		default:
			return &errors.ErrInvalidStateTransition{From: order.Status, To: domain.TempOrderStatusPending}
		}

		return enqueue(ctx, repos, domain.TaskKindValidate, order.ID, s.now())
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}
