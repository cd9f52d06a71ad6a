package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jafarshop/easyorders/internal/config"
	"github.com/jafarshop/easyorders/internal/domain"
	"github.com/jafarshop/easyorders/internal/repository"
)

type validationService struct {
	cfg        config.EasyOrdersConfig
	tx         repository.TxManager
	mainShopID *uuid.UUID
	logger     *zap.Logger
	now        func() time.Time
}

// NewValidationService creates the service that checks staged orders against the catalog
func NewValidationService(cfg config.EasyOrdersConfig, tx repository.TxManager, logger *zap.Logger) *validationService {
	return &validationService{
		cfg:        cfg,
		tx:         tx,
		mainShopID: parseOptionalUUID(cfg.MainShopID),
		logger:     logger,
		now:        time.Now,
	}
}

// Validate resolves every line item of a pending temp order and moves it to
// validated or failed. Orders in any other status are left untouched.
func (s *validationService) Validate(ctx context.Context, tempOrderID uuid.UUID) error {
	return s.tx.WithinTx(ctx, func(repos *repository.Repositories) error {
		order, err := repos.TempOrder.GetByIDForUpdate(ctx, tempOrderID)
		if isNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}

		if order.Status != domain.TempOrderStatusPending {
			s.logger.Debug("Skipping validation",
				zap.String("temp_order_id", order.ID.String()),
				zap.String("status", string(order.Status)),
			)
			return nil
		}

		normalized := order.Normalized
		if normalized == nil {
			if normalized, err = Normalize(order.Payload, order.ExternalOrderID); err != nil {
				return fmt.Errorf("failed to normalize temp order %s: %w", order.ID, err)
			}
		}

		problems, err := s.check(ctx, repos.Catalog, normalized)
		if err != nil {
			return err
		}
		order.Normalized = normalized

		if len(problems) == 0 {
			if err := transition(order, domain.TempOrderStatusValidated); err != nil {
				return err
			}
			order.SetFailureReason("")
		} else {
			if err := transition(order, domain.TempOrderStatusFailed); err != nil {
				return err
			}
			order.SetFailureReason(strings.Join(problems, "; "))
		}

		if err := repos.TempOrder.Update(ctx, order); err != nil {
			return err
		}

		s.logger.Info("Validated temp order",
			zap.String("temp_order_id", order.ID.String()),
			zap.String("external_order_id", order.ExternalOrderID),
			zap.String("status", string(order.Status)),
			zap.Int("problems", len(problems)),
		)

		if order.Status == domain.TempOrderStatusValidated && s.cfg.AutoImportOnValidate {
			return enqueue(ctx, repos, domain.TaskKindImport, order.ID, s.now())
		}
		return nil
	})
}

// RecordFailure moves a pending temp order to failed with the error that kept its
// validation task failing until the attempts ran out
func (s *validationService) RecordFailure(ctx context.Context, tempOrderID uuid.UUID, cause error) error {
	reason := "Validation failed"
	if cause != nil {
		reason = fmt.Sprintf("Validation failed: %s", cause.Error())
	}

	return s.tx.WithinTx(ctx, func(repos *repository.Repositories) error {
		order, err := repos.TempOrder.GetByIDForUpdate(ctx, tempOrderID)
		if isNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if order.Status != domain.TempOrderStatusPending {
			return nil
		}

		if err := transition(order, domain.TempOrderStatusFailed); err != nil {
			return err
		}
		order.SetFailureReason(reason)

		s.logger.Warn("Validation failed permanently",
			zap.String("temp_order_id", order.ID.String()),
			zap.String("external_order_id", order.ExternalOrderID),
			zap.String("reason", reason),
		)
		return repos.TempOrder.Update(ctx, order)
	})
}

// check annotates the items of n in place and returns the human readable problems found
func (s *validationService) check(ctx context.Context, catalog repository.CatalogRepository, n *domain.NormalizedOrder) ([]string, error) {
	var problems []string

	for i := range n.Items {
		item := &n.Items[i]
		sku := item.EffectiveSKU()

		resolved := domain.ResolvedItem{
			PricePolicy: domain.PriceCheck{ExternalPrice: item.Resolved.PricePolicy.ExternalPrice},
		}
		if !resolved.PricePolicy.ExternalPrice.Valid && item.Price.Valid {
			resolved.PricePolicy.ExternalPrice = item.Price
		}

		stock, err := s.resolve(ctx, catalog, item.Variant.VariantSKU, item.Product.SKU)
		if err != nil {
			return nil, err
		}

		if stock == nil {
			if sku == "" {
				sku = "N/A"
			}
			problems = append(problems, fmt.Sprintf("Unknown SKU at item #%d: %s", i+1, sku))
			item.Resolved = resolved
			continue
		}

		productID, stockID := stock.ProductID, stock.ID
		resolved.InternalProductID = &productID
		resolved.InternalVariantID = &stockID
		resolved.StockID = &stockID
		resolved.ShopID = stock.ShopID

		if !stock.IsSellable() {
			problems = append(problems, fmt.Sprintf("Inactive product for SKU %s", sku))
		}
		if item.Quantity <= 0 || stock.Quantity < item.Quantity {
			problems = append(problems, fmt.Sprintf("Insufficient stock for SKU %s", sku))
		}

		internal := stock.TotalPrice.Round(2)
		resolved.PricePolicy.InternalPrice = decimal.NewNullDecimal(internal)
		if resolved.PricePolicy.ExternalPrice.Valid {
			resolved.PricePolicy.Mismatch = !resolved.PricePolicy.ExternalPrice.Decimal.Round(2).Equal(internal)
		}

		item.Resolved = resolved
	}

	if !totalsCoherent(n.Totals) {
		problems = append(problems, "Totals mismatch: cost + shipping - coupon_discount != total")
	}

	return problems, nil
}

// resolve looks up the variant SKU first and falls back to the product SKU
func (s *validationService) resolve(ctx context.Context, catalog repository.CatalogRepository, variantSKU, productSKU string) (*domain.Stock, error) {
	for _, sku := range []string{variantSKU, productSKU} {
		if sku == "" {
			continue
		}
		stock, err := catalog.FindStockBySKU(ctx, sku, s.mainShopID)
		if err == nil {
			return stock, nil
		}
		if !isNotFound(err) {
			return nil, err
		}
	}
	return nil, nil
}

// totalsCoherent checks round(cost + shipping - coupon, 2) == round(total, 2); missing values count as zero
func totalsCoherent(t domain.NormalizedTotals) bool {
	expected := orZero(t.Cost).Add(orZero(t.ShippingCost)).Sub(orZero(t.CouponDiscount)).Round(2)
	return expected.Equal(orZero(t.TotalCost).Round(2))
}

func orZero(d decimal.NullDecimal) decimal.Decimal {
	if !d.Valid {
		return decimal.Zero
	}
	return d.Decimal
}
