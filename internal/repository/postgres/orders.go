package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/easyorders/internal/domain"
)

type orderRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewOrderRepository creates a new marketplace order repository
func NewOrderRepository(db DBTX, logger *zap.Logger) *orderRepository {
	return &orderRepository{
		db:     db,
		logger: logger,
	}
}

func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	query := `
		INSERT INTO orders (id, user_id, shop_id, phone, username, address, address_id, delivery_type,
			delivery_fee, total_price, total_discount, note, notes, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	now := time.Now()
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	notes, err := marshalNullableJSON(order.Notes)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query,
		order.ID,
		nullUUID(order.UserID),
		order.ShopID,
		nullString(order.Phone),
		nullString(order.Username),
		nullString(order.Address),
		nullUUID(order.AddressID),
		order.DeliveryType,
		order.DeliveryFee,
		order.TotalPrice,
		order.TotalDiscount,
		nullString(order.Note),
		notes,
		order.Status,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create order", zap.Error(err))
		return err
	}
	return nil
}

func (r *orderRepository) CreateDetail(ctx context.Context, detail *domain.OrderDetail) error {
	query := `
		INSERT INTO order_details (id, order_id, stock_id, quantity, unit_price, total_price)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	if detail.ID == uuid.Nil {
		detail.ID = uuid.New()
	}

	_, err := r.db.ExecContext(ctx, query,
		detail.ID,
		detail.OrderID,
		detail.StockID,
		detail.Quantity,
		detail.UnitPrice,
		detail.TotalPrice,
	)
	if err != nil {
		r.logger.Error("Failed to create order detail", zap.Error(err))
		return err
	}
	return nil
}

func (r *orderRepository) Update(ctx context.Context, order *domain.Order) error {
	query := `
		UPDATE orders
		SET delivery_fee = $2, total_price = $3, total_discount = $4, note = $5, updated_at = $6
		WHERE id = $1
	`

	order.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		order.ID,
		order.DeliveryFee,
		order.TotalPrice,
		order.TotalDiscount,
		nullString(order.Note),
		order.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to update order", zap.String("order_id", order.ID.String()), zap.Error(err))
		return err
	}
	return expectAffected(result, "order", order.ID)
}

func (r *orderRepository) CreateTransaction(ctx context.Context, trx *domain.Transaction) error {
	query := `
		INSERT INTO transactions (id, order_id, user_id, price, payment_trx_id, note, status, status_description, perform_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	now := time.Now()
	if trx.ID == uuid.Nil {
		trx.ID = uuid.New()
	}
	if trx.PerformTime.IsZero() {
		trx.PerformTime = now
	}
	if trx.CreatedAt.IsZero() {
		trx.CreatedAt = now
	}

	_, err := r.db.ExecContext(ctx, query,
		trx.ID,
		trx.OrderID,
		nullUUID(trx.UserID),
		trx.Price,
		nullString(trx.PaymentTrxID),
		nullString(trx.Note),
		trx.Status,
		nullString(trx.StatusDescription),
		trx.PerformTime,
		trx.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create transaction", zap.String("order_id", trx.OrderID.String()), zap.Error(err))
		return err
	}
	return nil
}

func (r *orderRepository) UnlockDigitalFiles(ctx context.Context, orderID uuid.UUID, at time.Time) error {
	query := `UPDATE orders SET digital_files_unlocked_at = $2 WHERE id = $1 AND digital_files_unlocked_at IS NULL`

	if _, err := r.db.ExecContext(ctx, query, orderID, at); err != nil {
		r.logger.Error("Failed to unlock digital files", zap.String("order_id", orderID.String()), zap.Error(err))
		return err
	}
	return nil
}
