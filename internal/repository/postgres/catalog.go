package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/easyorders/internal/domain"
	"github.com/jafarshop/easyorders/pkg/errors"
)

const stockColumns = `s.id, s.product_id, p.shop_id, s.sku, s.quantity, s.total_price, p.active, p.status`

type catalogRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewCatalogRepository creates a repository over the marketplace products and stocks
func NewCatalogRepository(db DBTX, logger *zap.Logger) *catalogRepository {
	return &catalogRepository{
		db:     db,
		logger: logger,
	}
}

func scanStock(row rowScanner) (*domain.Stock, error) {
	var stock domain.Stock
	var shopID uuid.NullUUID

	err := row.Scan(
		&stock.ID,
		&stock.ProductID,
		&shopID,
		&stock.SKU,
		&stock.Quantity,
		&stock.TotalPrice,
		&stock.ProductActive,
		&stock.ProductStatus,
	)
	if err != nil {
		return nil, err
	}

	if shopID.Valid {
		stock.ShopID = &shopID.UUID
	}
	return &stock, nil
}

func (r *catalogRepository) FindStockBySKU(ctx context.Context, sku string, preferredShopID *uuid.UUID) (*domain.Stock, error) {
	query := `
		SELECT ` + stockColumns + `
		FROM stocks s
		JOIN products p ON p.id = s.product_id
		WHERE s.sku = $1
		ORDER BY (p.shop_id = $2) DESC NULLS LAST, s.created_at
		LIMIT 1
	`

	stock, err := scanStock(r.db.QueryRowContext(ctx, query, sku, nullUUID(preferredShopID)))
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "stock", ID: sku}
	}
	if err != nil {
		r.logger.Error("Failed to find stock by SKU", zap.String("sku", sku), zap.Error(err))
		return nil, err
	}
	return stock, nil
}

func (r *catalogRepository) GetStocksByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Stock, error) {
	stocks := make(map[uuid.UUID]*domain.Stock, len(ids))
	if len(ids) == 0 {
		return stocks, nil
	}

	query := `
		SELECT ` + stockColumns + `
		FROM stocks s
		JOIN products p ON p.id = s.product_id
		WHERE s.id = ANY($1::uuid[])
	`

	rows, err := r.db.QueryContext(ctx, query, uuidStrings(ids))
	if err != nil {
		r.logger.Error("Failed to get stocks by IDs", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		stock, err := scanStock(rows)
		if err != nil {
			return nil, err
		}
		stocks[stock.ID] = stock
	}
	return stocks, rows.Err()
}

func (r *catalogRepository) DecrementStock(ctx context.Context, stockID uuid.UUID, quantity int) (bool, error) {
	query := `UPDATE stocks SET quantity = quantity - $2, updated_at = NOW() WHERE id = $1 AND quantity >= $2`

	result, err := r.db.ExecContext(ctx, query, stockID, quantity)
	if err != nil {
		r.logger.Error("Failed to decrement stock", zap.String("stock_id", stockID.String()), zap.Error(err))
		return false, err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
