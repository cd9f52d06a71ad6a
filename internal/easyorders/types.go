package easyorders

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// FlexString decodes a JSON string, number or null into a string.
// EasyOrders sends ids and phone numbers either way depending on the endpoint.
type FlexString struct {
	Value string
	Valid bool
}

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = FlexString{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString{Value: s, Valid: true}
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(data))
	}
	*f = FlexString{Value: n.String(), Valid: true}
	return nil
}

func (f FlexString) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// String returns the value, or "" when null
func (f FlexString) String() string {
	return f.Value
}

// Ptr returns nil for null or blank values
func (f FlexString) Ptr() *string {
	if !f.Valid || strings.TrimSpace(f.Value) == "" {
		return nil
	}
	v := f.Value
	return &v
}

// Order is an EasyOrders order as returned by the order details endpoint
// and as posted to the webhook
type Order struct {
	ID             FlexString          `json:"id"`
	Status         string              `json:"status"`
	PaymentMethod  string              `json:"payment_method"`
	ShortID        FlexString          `json:"short_id"`
	GuestID        FlexString          `json:"guest_id"`
	StoreID        FlexString          `json:"store_id"`
	FullName       string              `json:"full_name"`
	Phone          FlexString          `json:"phone"`
	Government     string              `json:"government"`
	Address        string              `json:"address"`
	IP             string              `json:"ip"`
	IPCountry      string              `json:"ip_country"`
	CreatedAt      *string             `json:"created_at"`
	UpdatedAt      *string             `json:"updated_at"`
	CartItems      []CartItem          `json:"cart_items"`
	Cost           decimal.NullDecimal `json:"cost"`
	ShippingCost   decimal.NullDecimal `json:"shipping_cost"`
	TotalCost      decimal.NullDecimal `json:"total_cost"`
	Expense        decimal.NullDecimal `json:"expense"`
	CouponDiscount decimal.NullDecimal `json:"coupon_discount"`
	Metadata       json.RawMessage     `json:"metadata"`
}

type CartItem struct {
	ID       FlexString          `json:"id"`
	Price    decimal.NullDecimal `json:"price"`
	Quantity json.Number         `json:"quantity"`
	Product  CartProduct         `json:"product"`
	Variant  CartVariant         `json:"variant"`
}

// Qty returns the item quantity, zero when missing or malformed
func (c CartItem) Qty() int {
	if c.Quantity == "" {
		return 0
	}
	if n, err := c.Quantity.Int64(); err == nil {
		return int(n)
	}
	if f, err := strconv.ParseFloat(c.Quantity.String(), 64); err == nil {
		return int(f)
	}
	return 0
}

type CartProduct struct {
	ID     FlexString `json:"id"`
	Name   string     `json:"name"`
	SKU    string     `json:"sku"`
	Slug   string     `json:"slug"`
	Thumb  *string    `json:"thumb"`
	Images []string   `json:"images"`
}

type CartVariant struct {
	ID             FlexString      `json:"id"`
	TaagerCode     string          `json:"taager_code"`
	VariationProps json.RawMessage `json:"variation_props"`
}

// Product is one entry of the external product list
type Product struct {
	ID       FlexString          `json:"id"`
	Name     string              `json:"name"`
	SKU      string              `json:"sku"`
	Slug     string              `json:"slug"`
	Price    decimal.NullDecimal `json:"price"`
	Quantity json.Number         `json:"quantity"`
	Variants []ProductVariant    `json:"variants"`
}

type ProductVariant struct {
	ID         FlexString          `json:"id"`
	TaagerCode string              `json:"taager_code"`
	Price      decimal.NullDecimal `json:"price"`
	Quantity   json.Number         `json:"quantity"`
}

// SKUs returns the product SKU and every non-empty variant code
func (p Product) SKUs() []string {
	var skus []string
	if p.SKU != "" {
		skus = append(skus, p.SKU)
	}
	for _, v := range p.Variants {
		if v.TaagerCode != "" {
			skus = append(skus, v.TaagerCode)
		}
	}
	return skus
}

// ParseOrder decodes a raw order body
func ParseOrder(raw []byte) (*Order, error) {
	var order Order
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, fmt.Errorf("failed to decode easyorders order: %w", err)
	}
	return &order, nil
}

// parseProductList accepts either a bare array or a {"data": [...]} wrapper
func parseProductList(raw []byte) ([]Product, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}

	if raw[0] == '[' {
		var products []Product
		if err := json.Unmarshal(raw, &products); err != nil {
			return nil, fmt.Errorf("failed to decode product list: %w", err)
		}
		return products, nil
	}

	var wrapper struct {
		Data []Product `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, fmt.Errorf("failed to decode product list: %w", err)
	}
	return wrapper.Data, nil
}
