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

const (
	guestName          = "Guest"
	addressTitle       = "EasyOrders Address"
	failedPaymentNote  = "Customer attempted an online payment via EasyOrders, but it failed."
	defaultImportError = "import failed"
	importErrorPrefix  = "Import failed"
)

// importRejected aborts the import transaction so nothing created before the
// rejection is committed
type importRejected struct {
	reason string
}

func (e *importRejected) Error() string {
	return e.reason
}

type importService struct {
	cfg     config.EasyOrdersConfig
	tx      repository.TxManager
	creator OrderCreator
	logger  *zap.Logger
	now     func() time.Time
}

// NewImportService creates the service that turns validated temp orders into marketplace orders
func NewImportService(cfg config.EasyOrdersConfig, tx repository.TxManager, creator OrderCreator, logger *zap.Logger) *importService {
	return &importService{
		cfg:     cfg,
		tx:      tx,
		creator: creator,
		logger:  logger,
		now:     time.Now,
	}
}

// Import creates the marketplace orders of a validated or approved temp order in one
// transaction. Missing, imported and not yet importable orders are a no-op.
func (s *importService) Import(ctx context.Context, tempOrderID uuid.UUID) error {
	err := s.tx.WithinTx(ctx, func(repos *repository.Repositories) error {
		return s.importOrder(ctx, repos, tempOrderID)
	})

	rejected, ok := err.(*importRejected)
	if !ok {
		return err
	}

	// the creation attempt was rolled back; record the rejection in a fresh transaction
	return s.markFailed(ctx, tempOrderID, rejected.reason)
}

// RecordFailure moves an importable temp order to import_failed with the error that
// kept its import task failing until the attempts ran out
func (s *importService) RecordFailure(ctx context.Context, tempOrderID uuid.UUID, cause error) error {
	reason := defaultImportError
	if cause != nil {
		reason = fmt.Sprintf("%s: %s", importErrorPrefix, cause.Error())
	}
	return s.markFailed(ctx, tempOrderID, reason)
}

func (s *importService) markFailed(ctx context.Context, tempOrderID uuid.UUID, reason string) error {
	return s.tx.WithinTx(ctx, func(repos *repository.Repositories) error {
		order, err := repos.TempOrder.GetByIDForUpdate(ctx, tempOrderID)
		if isNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if !order.Status.IsImportable() {
			return nil
		}

		if err := transition(order, domain.TempOrderStatusImportFailed); err != nil {
			return err
		}
		order.SetFailureReason(reason)

		s.logger.Warn("Import failed",
			zap.String("temp_order_id", order.ID.String()),
			zap.String("external_order_id", order.ExternalOrderID),
			zap.String("reason", reason),
		)
		return repos.TempOrder.Update(ctx, order)
	})
}

func (s *importService) importOrder(ctx context.Context, repos *repository.Repositories, tempOrderID uuid.UUID) error {
	temp, err := repos.TempOrder.GetByIDForUpdate(ctx, tempOrderID)
	if isNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if temp.Status == domain.TempOrderStatusImported || !temp.Status.IsImportable() {
		return nil
	}

	normalized := temp.Normalized
	if normalized == nil {
		normalized = &domain.NormalizedOrder{}
	}

	customerName := firstNonEmpty(temp.CustomerName, normalized.Customer.FullName)
	customerPhone := firstNonEmpty(temp.CustomerPhone, normalized.Customer.Phone)
	addressText := firstNonEmpty(temp.Address, normalized.Customer.Address)
	paymentMethod := firstNonEmpty(temp.PaymentMethod, normalized.PaymentMethod)
	externalStatus := normalized.Status

	customer, address, err := s.resolveCustomer(ctx, repos, customerName, customerPhone, addressText)
	if err != nil {
		return err
	}

	groups, err := s.groupByShop(ctx, repos, normalized.Items)
	if err != nil {
		return err
	}

	req := OrderCreationRequest{
		Groups:       groups,
		Phone:        customerPhone,
		Username:     customerName,
		Address:      addressText,
		DeliveryType: domain.DeliveryTypeDelivery,
		Notes: map[string]string{
			"source":            "easyorders",
			"external_order_id": temp.ExternalOrderID,
		},
	}
	if temp.ShortID != nil {
		req.Notes["short_id"] = *temp.ShortID
	}
	if customer != nil {
		req.UserID = &customer.ID
	}
	if address != nil {
		req.AddressID = &address.ID
	}

	result, err := s.creator.CreateOrders(ctx, repos, req)
	if err != nil {
		return err
	}
	if result.Rejected() {
		return &importRejected{reason: result.Rejection}
	}
	if len(result.Orders) == 0 {
		return &importRejected{reason: defaultImportError}
	}
	orders := result.Orders

	shipping := temp.ShippingCost
	if !shipping.Valid {
		shipping = normalized.Totals.ShippingCost
	}
	if shipping.Valid && shipping.Decimal.IsPositive() {
		for i, fee := range SplitShipping(shipping.Decimal, len(orders)) {
			orders[i].DeliveryFee = orders[i].DeliveryFee.Add(fee)
			orders[i].TotalPrice = orders[i].TotalPrice.Add(fee)
		}
	}

	if coupon := orZero(normalized.Totals.CouponDiscount); coupon.IsPositive() {
		totals := make([]decimal.Decimal, len(orders))
		for i, o := range orders {
			totals[i] = o.TotalPrice
		}
		for i, portion := range SplitDiscount(coupon, totals) {
			if !portion.IsPositive() {
				continue
			}
			orders[i].TotalPrice = decimal.Max(decimal.Zero, orders[i].TotalPrice.Sub(portion))
			orders[i].TotalDiscount = decimal.Max(decimal.Zero, orders[i].TotalDiscount.Add(portion))
		}
	}

	trxStatus := transactionStatus(paymentMethod, externalStatus)
	failedOnline := externalStatus == domain.ExternalStatusPaidFailed && !domain.IsCashOnDelivery(paymentMethod)
	reference := fmt.Sprintf("EasyOrders order #%s", temp.ExternalOrderID)
	now := s.now()

	for _, order := range orders {
		if failedOnline {
			order.Note = strings.TrimSpace(order.Note + " " + failedPaymentNote)
		}
		if err := repos.Order.Update(ctx, order); err != nil {
			return err
		}

		trx := &domain.Transaction{
			OrderID:           order.ID,
			UserID:            order.UserID,
			Price:             order.TotalPrice,
			PaymentTrxID:      temp.ExternalOrderID,
			Note:              reference,
			Status:            trxStatus,
			StatusDescription: reference,
			PerformTime:       now,
		}
		if err := repos.Order.CreateTransaction(ctx, trx); err != nil {
			return err
		}

		if trxStatus == domain.TransactionStatusPaid {
			if err := repos.Order.UnlockDigitalFiles(ctx, order.ID, now); err != nil {
				return err
			}
		}
	}

	if err := transition(temp, domain.TempOrderStatusImported); err != nil {
		return err
	}
	firstID := orders[0].ID
	temp.ImportedOrderID = &firstID
	temp.SetFailureReason("")

	if err := repos.TempOrder.Update(ctx, temp); err != nil {
		return err
	}

	s.logger.Info("Imported temp order",
		zap.String("temp_order_id", temp.ID.String()),
		zap.String("external_order_id", temp.ExternalOrderID),
		zap.Int("orders", len(orders)),
		zap.String("imported_order_id", firstID.String()),
	)

	if s.cfg.PushStatusAfterImport {
		return enqueue(ctx, repos, domain.TaskKindPushStatus, temp.ID, now)
	}
	return nil
}

// resolveCustomer finds or creates the customer by phone. Without a phone the
// order is imported as a guest order with no customer.
func (s *importService) resolveCustomer(ctx context.Context, repos *repository.Repositories, name, phone, addressText string) (*domain.Customer, *domain.CustomerAddress, error) {
	if phone == "" {
		return nil, nil, nil
	}

	customer, err := repos.Customer.FindByPhone(ctx, phone)
	if isNotFound(err) {
		customer = &domain.Customer{
			Phone:     phone,
			FirstName: firstNonEmpty(name, guestName),
			Active:    true,
		}
		err = repos.Customer.Create(ctx, customer)
	}
	if err != nil {
		return nil, nil, err
	}

	if addressText == "" {
		return customer, nil, nil
	}

	address, err := repos.Customer.FindAddress(ctx, customer.ID, addressText)
	if isNotFound(err) {
		address = &domain.CustomerAddress{
			UserID:    customer.ID,
			Address:   addressText,
			FirstName: firstNonEmpty(name, customer.FirstName),
			Phone:     phone,
			Title:     addressTitle,
			Active:    true,
		}
		err = repos.Customer.CreateAddress(ctx, address)
	}
	if err != nil {
		return nil, nil, err
	}
	return customer, address, nil
}

// groupByShop groups resolved items by the shop owning their stock, keeping the
// order shops first appear in. Items without a resolvable stock or shop are dropped.
func (s *importService) groupByShop(ctx context.Context, repos *repository.Repositories, items []domain.NormalizedItem) ([]ShopGroup, error) {
	var stockIDs []uuid.UUID
	for _, item := range items {
		if item.Resolved.StockID != nil {
			stockIDs = append(stockIDs, *item.Resolved.StockID)
		}
	}

	stocks, err := repos.Catalog.GetStocksByIDs(ctx, stockIDs)
	if err != nil {
		return nil, err
	}

	var groups []ShopGroup
	index := make(map[uuid.UUID]int)
	policy := domain.PricePolicy(s.cfg.PricePolicy)

	for _, item := range items {
		if item.Resolved.StockID == nil || item.Quantity <= 0 {
			continue
		}
		stock, ok := stocks[*item.Resolved.StockID]
		if !ok || stock.ShopID == nil {
			continue
		}

		line := OrderLine{
			StockID:   stock.ID,
			SKU:       stock.SKU,
			Quantity:  item.Quantity,
			UnitPrice: unitPrice(policy, item, stock),
		}

		i, ok := index[*stock.ShopID]
		if !ok {
			i = len(groups)
			index[*stock.ShopID] = i
			groups = append(groups, ShopGroup{ShopID: *stock.ShopID})
		}
		groups[i].Lines = append(groups[i].Lines, line)
	}

	return groups, nil
}

// unitPrice applies the price policy. trust_external keeps the EasyOrders line
// price when there is one; reprice_from_internal always uses the catalog price.
func unitPrice(policy domain.PricePolicy, item domain.NormalizedItem, stock *domain.Stock) decimal.Decimal {
	if policy != domain.PricePolicyRepriceFromInternal {
		if external := item.Resolved.PricePolicy.ExternalPrice; external.Valid {
			return external.Decimal.Round(2)
		}
	}
	return stock.TotalPrice.Round(2)
}

func transactionStatus(paymentMethod, externalStatus string) domain.TransactionStatus {
	if domain.IsCashOnDelivery(paymentMethod) {
		return domain.TransactionStatusProgress
	}
	if externalStatus == domain.ExternalStatusPaid {
		return domain.TransactionStatusPaid
	}
	return domain.TransactionStatusProgress
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
