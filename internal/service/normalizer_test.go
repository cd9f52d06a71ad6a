package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleOrder = `{
	"id": "ord-1",
	"short_id": 1042,
	"status": "pending",
	"payment_method": "cod",
	"full_name": " Lina Haddad ",
	"phone": 962790000000,
	"government": "Amman",
	"address": "Street 5",
	"created_at": "2024-03-05T22:15:00.000000Z",
	"cost": 30,
	"shipping_cost": 3,
	"total_cost": 33,
	"cart_items": [
		{
			"id": "item-1",
			"price": 10,
			"quantity": 2,
			"product": {"id": "p-1", "name": "Mug", "sku": "MUG-1"},
			"variant": {"id": "v-1", "taager_code": "MUG-1-RED"}
		},
		{
			"id": "item-2",
			"price": 10,
			"quantity": 1,
			"product": {"id": "p-2", "name": "Bundle", "sku": "CAP-1 + SCARF-1"}
		}
	]
}`

func TestNormalize(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	n, err := NormalizeAt([]byte(sampleOrder), "ord-1", now)
	require.NoError(t, err)

	assert.Equal(t, "ord-1", n.ExternalOrderID)
	require.NotNil(t, n.ShortID)
	assert.Equal(t, "1042", *n.ShortID)
	assert.Equal(t, "Lina Haddad", n.Customer.FullName)
	assert.Equal(t, "962790000000", n.Customer.Phone)
	assert.Equal(t, "2024-03-05", n.Timestamps.CreatedDay)
	assert.True(t, n.Totals.TotalCost.Decimal.Equal(dec("33")))
	assert.False(t, n.Totals.CouponDiscount.Valid)

	require.Len(t, n.Items, 3)

	first := n.Items[0]
	assert.Equal(t, "MUG-1-RED", first.EffectiveSKU())
	assert.Equal(t, 2, first.Quantity)
	assert.True(t, first.Resolved.PricePolicy.ExternalPrice.Decimal.Equal(dec("10")))
	assert.Nil(t, first.Resolved.StockID)
	assert.NotNil(t, first.Product.Images)
}

func TestNormalize_CompositeSKUSplit(t *testing.T) {
	n, err := NormalizeAt([]byte(sampleOrder), "ord-1", time.Now())
	require.NoError(t, err)
	require.Len(t, n.Items, 3)

	for i, sku := range []string{"CAP-1", "SCARF-1"} {
		part := n.Items[i+1]
		assert.Equal(t, sku, part.Product.SKU)
		assert.Equal(t, 1, part.Quantity, "quantity is inherited")
		assert.False(t, part.Price.Valid, "split parts carry no external price")
		assert.False(t, part.Resolved.PricePolicy.ExternalPrice.Valid)
		require.NotNil(t, part.ExternalItemID)
		assert.Equal(t, "item-2", *part.ExternalItemID)
	}
}

func TestNormalize_CompositeVariantSKU(t *testing.T) {
	raw := `{"id": 7, "cart_items": [{"quantity": "3", "product": {"sku": "SET"}, "variant": {"taager_code": "A+B+"}}]}`

	n, err := NormalizeAt([]byte(raw), "", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "7", n.ExternalOrderID)

	require.Len(t, n.Items, 2)
	assert.Equal(t, "A", n.Items[0].Variant.VariantSKU)
	assert.Equal(t, "B", n.Items[1].Variant.VariantSKU)
	assert.Equal(t, "SET", n.Items[0].Product.SKU)
	assert.Equal(t, 3, n.Items[1].Quantity)
}

func TestNormalize_CreatedDayFallsBackToNow(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	n, err := NormalizeAt([]byte(`{"id": "x"}`), "x", now)
	require.NoError(t, err)
	assert.Equal(t, "2024-06-01", n.Timestamps.CreatedDay)
	assert.Empty(t, n.Items)
}

func TestExternalOrderID(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{name: "string", body: `{"id": "abc"}`, want: "abc"},
		{name: "number", body: `{"id": 123}`, want: "123"},
		{name: "missing", body: `{"status": "paid"}`, want: ""},
		{name: "invalid json", body: `{`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExternalOrderID([]byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
