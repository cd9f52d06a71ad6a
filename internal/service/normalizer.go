package service

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jafarshop/easyorders/internal/domain"
	"github.com/jafarshop/easyorders/internal/easyorders"
)

// compositeSKUSeparator joins the SKUs of a bundle sold as a single EasyOrders item
const compositeSKUSeparator = "+"

var createdAtLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000000Z",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	domain.DayLayout,
}

// Normalize converts a raw EasyOrders order into its canonical form
func Normalize(raw []byte, externalOrderID string) (*domain.NormalizedOrder, error) {
	return NormalizeAt(raw, externalOrderID, time.Now())
}

// NormalizeAt is Normalize with an explicit clock. now is only used for created_day
// when the order has no creation timestamp.
func NormalizeAt(raw []byte, externalOrderID string, now time.Time) (*domain.NormalizedOrder, error) {
	order, err := easyorders.ParseOrder(raw)
	if err != nil {
		return nil, err
	}

	if externalOrderID == "" {
		externalOrderID = order.ID.String()
	}

	normalized := &domain.NormalizedOrder{
		ExternalOrderID: externalOrderID,
		ShortID:         order.ShortID.Ptr(),
		GuestID:         order.GuestID.Ptr(),
		Timestamps: domain.NormalizedTimestamps{
			CreatedAt:  order.CreatedAt,
			UpdatedAt:  order.UpdatedAt,
			CreatedDay: createdDay(order.CreatedAt, now),
		},
		Store: domain.NormalizedStore{
			ExternalStoreID: order.StoreID.Ptr(),
		},
		Customer: domain.NormalizedCustomer{
			FullName:   strings.TrimSpace(order.FullName),
			Phone:      strings.TrimSpace(order.Phone.String()),
			Government: order.Government,
			Address:    order.Address,
		},
		Network: domain.NormalizedNetwork{
			IP:        order.IP,
			IPCountry: order.IPCountry,
		},
		PaymentMethod: order.PaymentMethod,
		Totals: domain.NormalizedTotals{
			Cost:           order.Cost,
			ShippingCost:   order.ShippingCost,
			TotalCost:      order.TotalCost,
			Expense:        order.Expense,
			CouponDiscount: order.CouponDiscount,
		},
		Status:   order.Status,
		Metadata: nonNullJSON(order.Metadata),
		Items:    make([]domain.NormalizedItem, 0, len(order.CartItems)),
	}

	for _, cartItem := range order.CartItems {
		normalized.Items = append(normalized.Items, normalizeItem(cartItem)...)
	}

	return normalized, nil
}

// normalizeItem returns one item, or one item per part for a composite SKU
func normalizeItem(cartItem easyorders.CartItem) []domain.NormalizedItem {
	item := domain.NormalizedItem{
		ExternalItemID: cartItem.ID.Ptr(),
		Price:          cartItem.Price,
		Quantity:       cartItem.Qty(),
		Product: domain.NormalizedProduct{
			ExternalID: cartItem.Product.ID.Ptr(),
			Name:       cartItem.Product.Name,
			SKU:        strings.TrimSpace(cartItem.Product.SKU),
			Slug:       cartItem.Product.Slug,
			Thumb:      cartItem.Product.Thumb,
			Images:     cartItem.Product.Images,
		},
		Variant: domain.NormalizedVariant{
			ExternalID:     cartItem.Variant.ID.Ptr(),
			VariantSKU:     strings.TrimSpace(cartItem.Variant.TaagerCode),
			VariationProps: nonNullJSON(cartItem.Variant.VariationProps),
		},
	}
	if item.Product.Images == nil {
		item.Product.Images = []string{}
	}
	item.Resolved.PricePolicy.ExternalPrice = item.Price

	sku := item.EffectiveSKU()
	if !strings.Contains(sku, compositeSKUSeparator) {
		return []domain.NormalizedItem{item}
	}

	inVariant := item.Variant.VariantSKU != ""
	var parts []domain.NormalizedItem
	for _, part := range strings.Split(sku, compositeSKUSeparator) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		split := item
		if inVariant {
			split.Variant.VariantSKU = part
		} else {
			split.Product.SKU = part
		}
		// per-part prices are unknown, validation falls back to the catalog price
		split.Price = decimal.NullDecimal{}
		split.Resolved = domain.ResolvedItem{}
		parts = append(parts, split)
	}
	return parts
}

func createdDay(createdAt *string, now time.Time) string {
	if createdAt == nil || strings.TrimSpace(*createdAt) == "" {
		return now.Format(domain.DayLayout)
	}

	value := strings.TrimSpace(*createdAt)
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format(domain.DayLayout)
		}
	}

	if len(value) >= len(domain.DayLayout) {
		if t, err := time.Parse(domain.DayLayout, value[:len(domain.DayLayout)]); err == nil {
			return t.Format(domain.DayLayout)
		}
	}
	return now.Format(domain.DayLayout)
}

func nonNullJSON(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}

// ExternalOrderID extracts the order id of a webhook body
func ExternalOrderID(raw []byte) (string, error) {
	var body struct {
		ID easyorders.FlexString `json:"id"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", fmt.Errorf("invalid JSON body: %w", err)
	}
	return strings.TrimSpace(body.ID.String()), nil
}
