package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jafarshop/easyorders/internal/domain"
	"github.com/jafarshop/easyorders/internal/repository"
	"github.com/jafarshop/easyorders/pkg/errors"
)

// enqueue schedules the next pipeline step for a temp order. Called with the
// repositories of the transaction that changed the temp order.
func enqueue(ctx context.Context, repos *repository.Repositories, kind domain.TaskKind, tempOrderID uuid.UUID, runAt time.Time) error {
	return repos.Task.Enqueue(ctx, &domain.Task{
		Kind:        kind,
		TempOrderID: tempOrderID,
		RunAt:       runAt,
		Status:      domain.TaskStatusQueued,
	})
}

// transition moves order to next, enforcing the status transition table
func transition(order *domain.TempOrder, next domain.TempOrderStatus) error {
	if !order.Status.CanTransitionTo(next) {
		return &errors.ErrInvalidStateTransition{From: order.Status, To: next}
	}
	order.Status = next
	return nil
}

func isNotFound(err error) bool {
	_, ok := err.(*errors.ErrNotFound)
	return ok
}

func parseOptionalUUID(raw string) *uuid.UUID {
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}
