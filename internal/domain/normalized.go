package domain

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DayLayout is the calendar day format used for created_day
const DayLayout = "2006-01-02"

// NormalizedOrder is the canonical form of an EasyOrders order, annotated by the validator
type NormalizedOrder struct {
	ExternalOrderID string               `json:"external_order_id"`
	ShortID         *string              `json:"short_id"`
	GuestID         *string              `json:"guest_id"`
	Timestamps      NormalizedTimestamps `json:"timestamps"`
	Store           NormalizedStore      `json:"store"`
	Customer        NormalizedCustomer   `json:"customer"`
	Network         NormalizedNetwork    `json:"network"`
	PaymentMethod   string               `json:"payment_method"`
	Totals          NormalizedTotals     `json:"totals"`
	Status          string               `json:"status"`
	Metadata        json.RawMessage      `json:"metadata,omitempty"`
	Items           []NormalizedItem     `json:"items"`
}

type NormalizedTimestamps struct {
	CreatedAt  *string `json:"created_at"`
	UpdatedAt  *string `json:"updated_at"`
	CreatedDay string  `json:"created_day"`
}

type NormalizedStore struct {
	ExternalStoreID *string `json:"external_store_id"`
}

type NormalizedCustomer struct {
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	Government string `json:"government"`
	Address    string `json:"address"`
}

type NormalizedNetwork struct {
	IP        string `json:"ip"`
	IPCountry string `json:"ip_country"`
}

// NormalizedTotals are passed through from EasyOrders, never computed
type NormalizedTotals struct {
	Cost           decimal.NullDecimal `json:"cost"`
	ShippingCost   decimal.NullDecimal `json:"shipping_cost"`
	TotalCost      decimal.NullDecimal `json:"total_cost"`
	Expense        decimal.NullDecimal `json:"expense"`
	CouponDiscount decimal.NullDecimal `json:"coupon_discount"`
}

// NormalizedItem is one line item after composite SKU splitting
type NormalizedItem struct {
	ExternalItemID *string             `json:"external_item_id"`
	Price          decimal.NullDecimal `json:"price"`
	Quantity       int                 `json:"quantity"`
	Product        NormalizedProduct   `json:"product"`
	Variant        NormalizedVariant   `json:"variant"`
	Resolved       ResolvedItem        `json:"resolved"`
}

type NormalizedProduct struct {
	ExternalID *string  `json:"external_id"`
	Name       string   `json:"name"`
	SKU        string   `json:"sku"`
	Slug       string   `json:"slug"`
	Thumb      *string  `json:"thumb"`
	Images     []string `json:"images"`
}

type NormalizedVariant struct {
	ExternalID     *string         `json:"external_id"`
	VariantSKU     string          `json:"variant_sku"`
	VariationProps json.RawMessage `json:"variation_props,omitempty"`
}

// ResolvedItem holds the catalog resolution filled in by the validator
type ResolvedItem struct {
	InternalProductID *uuid.UUID `json:"internal_product_id"`
	InternalVariantID *uuid.UUID `json:"internal_variant_id"`
	StockID           *uuid.UUID `json:"stock_id"`
	ShopID            *uuid.UUID `json:"shop_id"`
	PricePolicy       PriceCheck `json:"price_policy"`
}

// PriceCheck compares the external line price with the internal catalog price.
// Mismatch is advisory only.
type PriceCheck struct {
	ExternalPrice decimal.NullDecimal `json:"external_price"`
	InternalPrice decimal.NullDecimal `json:"internal_price"`
	Mismatch      bool                `json:"mismatch"`
}

// EffectiveSKU returns the variant SKU when present, otherwise the product SKU
func (i NormalizedItem) EffectiveSKU() string {
	if i.Variant.VariantSKU != "" {
		return i.Variant.VariantSKU
	}
	return i.Product.SKU
}
