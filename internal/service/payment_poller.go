package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/easyorders/internal/config"
	"github.com/jafarshop/easyorders/internal/domain"
	"github.com/jafarshop/easyorders/internal/easyorders"
	"github.com/jafarshop/easyorders/internal/repository"
)

const missingStoreReason = "Missing EasyOrders store while waiting for payment status"

type paymentPoller struct {
	cfg     config.EasyOrdersConfig
	repos   *repository.Repositories
	tx      repository.TxManager
	gateway easyorders.Gateway
	logger  *zap.Logger
	now     func() time.Time
}

// NewPaymentPoller creates the poller that waits for online payments to settle
func NewPaymentPoller(cfg config.EasyOrdersConfig, repos *repository.Repositories, tx repository.TxManager, gateway easyorders.Gateway, logger *zap.Logger) *paymentPoller {
	return &paymentPoller{
		cfg:     cfg,
		repos:   repos,
		tx:      tx,
		gateway: gateway,
		logger:  logger,
		now:     time.Now,
	}
}

// Poll checks the external payment status of a waiting temp order once. It either
// reschedules itself, hands the order to the validator or gives up after the deadline.
func (p *paymentPoller) Poll(ctx context.Context, tempOrderID uuid.UUID) error {
	order, err := p.repos.TempOrder.GetByID(ctx, tempOrderID)
	if isNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if order.Status != domain.TempOrderStatusWaitingPayment {
		return nil
	}

	now := p.now()
	deadline := p.deadline(order)
	if now.After(deadline) {
		minutes := int(p.cfg.OnlinePaymentTimeout.Minutes())
		return p.giveUp(ctx, tempOrderID, fmt.Sprintf("Payment status timeout after %d minutes", minutes))
	}

	store, err := p.repos.Store.GetByID(ctx, order.StoreID)
	if isNotFound(err) {
		return p.giveUp(ctx, tempOrderID, missingStoreReason)
	}
	if err != nil {
		return err
	}

	payload, err := p.gateway.FetchOrderDetails(ctx, store, order.ExternalOrderID)
	if err != nil {
		p.logger.Warn("Failed to fetch payment status",
			zap.String("temp_order_id", order.ID.String()),
			zap.String("external_order_id", order.ExternalOrderID),
			zap.Error(err),
		)
		return p.reschedule(ctx, tempOrderID, deadline)
	}

	normalized, err := NormalizeAt(payload, order.ExternalOrderID, now)
	if err != nil {
		p.logger.Warn("Failed to parse payment status",
			zap.String("temp_order_id", order.ID.String()),
			zap.Error(err),
		)
		return p.reschedule(ctx, tempOrderID, deadline)
	}

	if !domain.IsTerminalPaymentStatus(normalized.Status) {
		return p.reschedule(ctx, tempOrderID, deadline)
	}

	return p.release(ctx, tempOrderID, payload, normalized)
}

// deadline is the stored poll deadline, or creation time plus the payment timeout
// for rows staged before a deadline was recorded
func (p *paymentPoller) deadline(order *domain.TempOrder) time.Time {
	if order.PaymentPollDeadline != nil {
		return *order.PaymentPollDeadline
	}
	return order.CreatedAt.Add(p.cfg.OnlinePaymentTimeout)
}

// RecordFailure stops waiting on a temp order whose poll task kept failing until
// the attempts ran out
func (p *paymentPoller) RecordFailure(ctx context.Context, tempOrderID uuid.UUID, cause error) error {
	reason := "Payment status check failed"
	if cause != nil {
		reason = fmt.Sprintf("Payment status check failed: %s", cause.Error())
	}
	return p.giveUp(ctx, tempOrderID, reason)
}

func (p *paymentPoller) giveUp(ctx context.Context, tempOrderID uuid.UUID, reason string) error {
	return p.tx.WithinTx(ctx, func(repos *repository.Repositories) error {
		order, err := repos.TempOrder.GetByIDForUpdate(ctx, tempOrderID)
		if isNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if order.Status != domain.TempOrderStatusWaitingPayment {
			return nil
		}

		if err := transition(order, domain.TempOrderStatusImportFailed); err != nil {
			return err
		}
		order.AppendFailureReason(reason)

		p.logger.Warn("Stopped waiting for payment",
			zap.String("temp_order_id", order.ID.String()),
			zap.String("external_order_id", order.ExternalOrderID),
			zap.String("reason", reason),
		)
		return repos.TempOrder.Update(ctx, order)
	})
}

func (p *paymentPoller) reschedule(ctx context.Context, tempOrderID uuid.UUID, deadline time.Time) error {
	return p.tx.WithinTx(ctx, func(repos *repository.Repositories) error {
		order, err := repos.TempOrder.GetByIDForUpdate(ctx, tempOrderID)
		if isNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if order.Status != domain.TempOrderStatusWaitingPayment {
			return nil
		}

		order.PaymentPollAttempts++
		if order.PaymentPollDeadline == nil {
			order.PaymentPollDeadline = &deadline
		}
		if err := repos.TempOrder.Update(ctx, order); err != nil {
			return err
		}

		p.logger.Debug("Payment still pending",
			zap.String("temp_order_id", order.ID.String()),
			zap.Int("attempts", order.PaymentPollAttempts),
		)
		return enqueue(ctx, repos, domain.TaskKindWaitPayment, order.ID, p.now().Add(p.cfg.OnlinePaymentPollInterval))
	})
}

// release stores the settled payload and hands the order to the validator.
// A failed online payment is validated too; the importer records the failure.
func (p *paymentPoller) release(ctx context.Context, tempOrderID uuid.UUID, payload []byte, normalized *domain.NormalizedOrder) error {
	return p.tx.WithinTx(ctx, func(repos *repository.Repositories) error {
		order, err := repos.TempOrder.GetByIDForUpdate(ctx, tempOrderID)
		if isNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if order.Status != domain.TempOrderStatusWaitingPayment {
			return nil
		}

		if err := transition(order, domain.TempOrderStatusPending); err != nil {
			return err
		}
		order.Payload = payload
		order.ApplyNormalized(normalized)
		order.PaymentPollDeadline = nil

		if err := repos.TempOrder.Update(ctx, order); err != nil {
			return err
		}

		p.logger.Info("Payment settled",
			zap.String("temp_order_id", order.ID.String()),
			zap.String("external_order_id", order.ExternalOrderID),
			zap.String("external_status", normalized.Status),
		)
		return enqueue(ctx, repos, domain.TaskKindValidate, order.ID, p.now())
	})
}
