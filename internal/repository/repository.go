package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jafarshop/easyorders/internal/domain"
)

// Repositories groups all repositories. Inside a transaction every repository
// shares the same *sql.Tx.
type Repositories struct {
	Store      StoreRepository
	TempOrder  TempOrderRepository
	WebhookLog WebhookLogRepository
	Task       TaskRepository
	Catalog    CatalogRepository
	Customer   CustomerRepository
	Order      OrderRepository
}

// TxManager runs fn inside a database transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(repos *Repositories) error) error
}

type StoreFilter struct {
	Status domain.StoreStatus
	Search string
	Limit  int
	Offset int
}

type StoreRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Store, error)
	// GetByWebhookSecret returns the active store whose secret hash matches secret,
	// or *errors.ErrUnauthorized. Only stores with the secret's prefix, or none, are compared.
	GetByWebhookSecret(ctx context.Context, secret string) (*domain.Store, error)
	List(ctx context.Context, filter StoreFilter) ([]*domain.Store, int, error)
	Create(ctx context.Context, store *domain.Store) error
	Update(ctx context.Context, store *domain.Store) error
	UpdateWebhookSecret(ctx context.Context, id uuid.UUID, hash, prefix string) error
}

type TempOrderFilter struct {
	Status   domain.TempOrderStatus
	StoreID  *uuid.UUID
	DateFrom *time.Time
	DateTo   *time.Time
	Search   string
	Limit    int
	Offset   int
}

type TempOrderRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.TempOrder, error)
	// GetByIDForUpdate locks the row until the surrounding transaction ends
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.TempOrder, error)
	FindByExternalID(ctx context.Context, storeID uuid.UUID, externalOrderID string) (*domain.TempOrder, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.TempOrder, error)
	List(ctx context.Context, filter TempOrderFilter) ([]*domain.TempOrder, int, error)
	// Create returns *errors.ErrDuplicate when (store_id, external_order_id) already exists
	Create(ctx context.Context, order *domain.TempOrder) error
	Update(ctx context.Context, order *domain.TempOrder) error
}

type WebhookLogRepository interface {
	Create(ctx context.Context, log *domain.WebhookLog) error
}

type TaskRepository interface {
	Enqueue(ctx context.Context, task *domain.Task) error
	// ClaimDue leases up to limit due tasks until now+lease and increments their attempts
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*domain.Task, error)
	Complete(ctx context.Context, id uuid.UUID) error
	Retry(ctx context.Context, id uuid.UUID, runAt time.Time, lastError string) error
	Fail(ctx context.Context, id uuid.UUID, lastError string) error
}

type CatalogRepository interface {
	// FindStockBySKU resolves a SKU to a stock row, preferring preferredShopID
	// when several shops carry it
	FindStockBySKU(ctx context.Context, sku string, preferredShopID *uuid.UUID) (*domain.Stock, error)
	GetStocksByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Stock, error)
	// DecrementStock reserves quantity units and reports false when not enough are left
	DecrementStock(ctx context.Context, stockID uuid.UUID, quantity int) (bool, error)
}

type CustomerRepository interface {
	FindByPhone(ctx context.Context, phone string) (*domain.Customer, error)
	Create(ctx context.Context, customer *domain.Customer) error
	FindAddress(ctx context.Context, userID uuid.UUID, address string) (*domain.CustomerAddress, error)
	CreateAddress(ctx context.Context, address *domain.CustomerAddress) error
}

type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	CreateDetail(ctx context.Context, detail *domain.OrderDetail) error
	// Update persists delivery fee, totals and note
	Update(ctx context.Context, order *domain.Order) error
	CreateTransaction(ctx context.Context, trx *domain.Transaction) error
	UnlockDigitalFiles(ctx context.Context, orderID uuid.UUID, at time.Time) error
}
