package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jafarshop/easyorders/internal/domain"
	"github.com/jafarshop/easyorders/internal/repository"
)

// OrderLine is one stock line of a shop group
type OrderLine struct {
	StockID   uuid.UUID
	SKU       string
	Quantity  int
	UnitPrice decimal.Decimal
}

// ShopGroup holds the lines sold by a single shop
type ShopGroup struct {
	ShopID uuid.UUID
	Lines  []OrderLine
}

// OrderCreationRequest asks the marketplace to create one order per shop group
type OrderCreationRequest struct {
	Groups       []ShopGroup
	UserID       *uuid.UUID
	Phone        string
	Username     string
	Address      string
	AddressID    *uuid.UUID
	DeliveryType string
	Notes        map[string]string
}

// OrderCreationResult carries either the created orders or the reason they were refused.
// A rejection is a business outcome, not an error.
type OrderCreationResult struct {
	Orders    []*domain.Order
	Rejection string
}

// Rejected reports whether the marketplace refused the request
func (r *OrderCreationResult) Rejected() bool {
	return r.Rejection != ""
}

// OrderCreator creates marketplace orders using the repositories of the caller's transaction
type OrderCreator interface {
	CreateOrders(ctx context.Context, repos *repository.Repositories, req OrderCreationRequest) (*OrderCreationResult, error)
}

type marketplaceOrderCreator struct {
	logger *zap.Logger
}

// NewMarketplaceOrderCreator creates the Postgres-backed order creator
func NewMarketplaceOrderCreator(logger *zap.Logger) *marketplaceOrderCreator {
	return &marketplaceOrderCreator{
		logger: logger,
	}
}

func (c *marketplaceOrderCreator) CreateOrders(ctx context.Context, repos *repository.Repositories, req OrderCreationRequest) (*OrderCreationResult, error) {
	if len(req.Groups) == 0 {
		return &OrderCreationResult{Rejection: "No products to create an order from"}, nil
	}

	deliveryType := req.DeliveryType
	if deliveryType == "" {
		deliveryType = domain.DeliveryTypeDelivery
	}

	result := &OrderCreationResult{}
	for _, group := range req.Groups {
		if len(group.Lines) == 0 {
			continue
		}

		order := &domain.Order{
			UserID:       req.UserID,
			ShopID:       group.ShopID,
			Phone:        req.Phone,
			Username:     req.Username,
			Address:      req.Address,
			AddressID:    req.AddressID,
			DeliveryType: deliveryType,
			Notes:        req.Notes,
			Status:       domain.OrderStatusNew,
		}
		for _, line := range group.Lines {
			order.TotalPrice = order.TotalPrice.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
		}
		order.TotalPrice = order.TotalPrice.Round(2)

		if err := repos.Order.Create(ctx, order); err != nil {
			return nil, fmt.Errorf("failed to create order for shop %s: %w", group.ShopID, err)
		}

		for _, line := range group.Lines {
			reserved, err := repos.Catalog.DecrementStock(ctx, line.StockID, line.Quantity)
			if err != nil {
				return nil, err
			}
			if !reserved {
				// the caller's transaction rolls back the orders created so far
				return &OrderCreationResult{Rejection: fmt.Sprintf("Insufficient stock for SKU %s", line.SKU)}, nil
			}

			detail := &domain.OrderDetail{
				OrderID:    order.ID,
				StockID:    line.StockID,
				Quantity:   line.Quantity,
				UnitPrice:  line.UnitPrice,
				TotalPrice: line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))).Round(2),
			}
			if err := repos.Order.CreateDetail(ctx, detail); err != nil {
				return nil, err
			}
		}

		result.Orders = append(result.Orders, order)
	}

	if len(result.Orders) == 0 {
		return &OrderCreationResult{Rejection: "No products to create an order from"}, nil
	}

	c.logger.Info("Created marketplace orders",
		zap.Int("orders", len(result.Orders)),
		zap.String("external_order_id", req.Notes["external_order_id"]),
	)
	return result, nil
}
