package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/easyorders/internal/config"
	"github.com/jafarshop/easyorders/internal/domain"
	"github.com/jafarshop/easyorders/internal/repository"
)

const (
	lockKeyPrefix  = "easyorders:temp-order:"
	lockRetryDelay = 5 * time.Second
	maxBackoff     = 5 * time.Minute
)

// Handler runs one pipeline stage for a temp order. Business outcomes are stored on
// the temp order; a returned error means the task should be retried.
type Handler func(ctx context.Context, tempOrderID uuid.UUID) error

// ExhaustedHandler records the last error on the temp order once a task has used
// up its attempts, so the order ends in a failure status instead of staying put.
type ExhaustedHandler func(ctx context.Context, tempOrderID uuid.UUID, cause error) error

// Pool claims due pipeline tasks and runs them with bounded concurrency.
// Tasks of the same temp order never run concurrently.
type Pool struct {
	cfg       config.WorkerConfig
	tasks     repository.TaskRepository
	locker    Locker
	handlers  map[domain.TaskKind]Handler
	exhausted map[domain.TaskKind]ExhaustedHandler
	logger    *zap.Logger
	now       func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewPool creates a worker pool reading tasks from the outbox table
func NewPool(cfg config.WorkerConfig, tasks repository.TaskRepository, locker Locker, logger *zap.Logger) *Pool {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = cfg.Concurrency
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Pool{
		cfg:       cfg,
		tasks:     tasks,
		locker:    locker,
		handlers:  make(map[domain.TaskKind]Handler),
		exhausted: make(map[domain.TaskKind]ExhaustedHandler),
		logger:    logger,
		now:       time.Now,
	}
}

// Register sets the handler of a task kind. Must be called before Start.
func (p *Pool) Register(kind domain.TaskKind, handler Handler) {
	p.handlers[kind] = handler
}

// OnExhausted sets the hook run before a task of kind is marked dead. Must be called before Start.
func (p *Pool) OnExhausted(kind domain.TaskKind, handler ExhaustedHandler) {
	p.exhausted[kind] = handler
}

// Start polls for due tasks until Stop is called or ctx is cancelled
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)

		ticker := time.NewTicker(p.cfg.PollInterval)
		defer ticker.Stop()

		p.logger.Info("Worker pool started",
			zap.Int("concurrency", p.cfg.Concurrency),
			zap.Duration("poll_interval", p.cfg.PollInterval),
		)

		for {
			// drain everything due before waiting for the next tick
			for {
				n, err := p.RunOnce(ctx)
				if err != nil && ctx.Err() == nil {
					p.logger.Error("Failed to claim tasks", zap.Error(err))
				}
				if err != nil || n < p.cfg.BatchSize {
					break
				}
			}

			select {
			case <-ctx.Done():
				p.logger.Info("Worker pool stopped")
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop cancels polling and waits for running tasks to finish
func (p *Pool) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
}

// RunOnce claims one batch of due tasks, runs it and returns the number claimed
func (p *Pool) RunOnce(ctx context.Context) (int, error) {
	claimed, err := p.tasks.ClaimDue(ctx, p.now(), p.cfg.Lease, p.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup
	for _, task := range claimed {
		sem <- struct{}{}
		wg.Add(1)
		go func(task *domain.Task) {
			defer func() {
				<-sem
				wg.Done()
			}()
			p.process(ctx, task)
		}(task)
	}
	wg.Wait()

	return len(claimed), nil
}

func (p *Pool) process(ctx context.Context, task *domain.Task) {
	logger := p.logger.With(
		zap.String("task_id", task.ID.String()),
		zap.String("task_kind", string(task.Kind)),
		zap.String("temp_order_id", task.TempOrderID.String()),
		zap.Int("attempts", task.Attempts),
	)

	handler, ok := p.handlers[task.Kind]
	if !ok {
		logger.Error("No handler for task kind")
		p.settle(logger, p.tasks.Fail(ctx, task.ID, fmt.Sprintf("no handler for task kind %s", task.Kind)))
		return
	}

	release, err := p.locker.Lock(ctx, lockKeyPrefix+task.TempOrderID.String(), p.cfg.Lease)
	if err == ErrLocked {
		logger.Debug("Temp order busy, retrying later")
		p.settle(logger, p.tasks.Retry(ctx, task.ID, p.now().Add(lockRetryDelay), err.Error()))
		return
	}
	if err != nil {
		logger.Warn("Failed to lock temp order", zap.Error(err))
		p.settle(logger, p.tasks.Retry(ctx, task.ID, p.now().Add(lockRetryDelay), err.Error()))
		return
	}
	defer release()

	if err := p.run(ctx, handler, task.TempOrderID); err != nil {
		if task.Attempts >= p.cfg.MaxAttempts {
			logger.Error("Task failed permanently", zap.Error(err))
			if onExhausted, ok := p.exhausted[task.Kind]; ok {
				if hookErr := p.runExhausted(ctx, onExhausted, task.TempOrderID, err); hookErr != nil {
					logger.Error("Failed to record task failure on temp order", zap.Error(hookErr))
				}
			}
			p.settle(logger, p.tasks.Fail(ctx, task.ID, err.Error()))
			return
		}
		logger.Warn("Task failed, retrying", zap.Error(err))
		p.settle(logger, p.tasks.Retry(ctx, task.ID, p.now().Add(Backoff(task.Attempts)), err.Error()))
		return
	}

	p.settle(logger, p.tasks.Complete(ctx, task.ID))
}

func (p *Pool) run(ctx context.Context, handler Handler, tempOrderID uuid.UUID) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return handler(ctx, tempOrderID)
}

func (p *Pool) runExhausted(ctx context.Context, handler ExhaustedHandler, tempOrderID uuid.UUID, cause error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("exhausted hook panicked: %v", r)
		}
	}()
	return handler(ctx, tempOrderID, cause)
}

// settle logs a failed status write; the lease expiry makes the task claimable again
func (p *Pool) settle(logger *zap.Logger, err error) {
	if err != nil {
		logger.Error("Failed to update task status", zap.Error(err))
	}
}

// Backoff returns the retry delay after the given number of attempts
func Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > 8 {
		return maxBackoff
	}
	d := time.Duration(1<<uint(attempts)) * time.Second
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
