package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/jafarshop/easyorders/internal/repository"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// NewRepositories creates all repositories on db
func NewRepositories(db DBTX, logger *zap.Logger) *repository.Repositories {
	return &repository.Repositories{
		Store:      NewStoreRepository(db, logger),
		TempOrder:  NewTempOrderRepository(db, logger),
		WebhookLog: NewWebhookLogRepository(db, logger),
		Task:       NewTaskRepository(db, logger),
		Catalog:    NewCatalogRepository(db, logger),
		Customer:   NewCustomerRepository(db, logger),
		Order:      NewOrderRepository(db, logger),
	}
}

type txManager struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTxManager creates a transaction manager backed by db
func NewTxManager(db *sql.DB, logger *zap.Logger) *txManager {
	return &txManager{
		db:     db,
		logger: logger,
	}
}

func (m *txManager) WithinTx(ctx context.Context, fn func(repos *repository.Repositories) error) (err error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(NewRepositories(tx, m.logger)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			m.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
