package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store represents an EasyOrders seller account
type Store struct {
	ID                  uuid.UUID
	Name                string
	ExternalStoreID     *string
	Status              StoreStatus
	APIKey              *string
	WebhookSecretHash   string
	WebhookSecretPrefix string                 // lookup key, empty for short secrets
	Settings            map[string]interface{} // JSONB
	LastSyncAt          *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// SecretPrefixLength is how many leading characters of a webhook secret are stored in
// clear to narrow the hash comparisons. Secrets shorter than SecretPrefixMinLength get no prefix.
const (
	SecretPrefixLength    = 8
	SecretPrefixMinLength = 24
)

// WebhookSecretPrefix returns the lookup key stored next to the hash of secret
func WebhookSecretPrefix(secret string) string {
	if len(secret) < SecretPrefixMinLength {
		return ""
	}
	return secret[:SecretPrefixLength]
}

// IsActive reports whether the store accepts webhooks
func (s *Store) IsActive() bool {
	return s.Status == StoreStatusActive
}

// TempOrder is the staging record for one external order
type TempOrder struct {
	ID                  uuid.UUID
	StoreID             uuid.UUID
	ExternalOrderID     string
	ShortID             *string
	GuestID             *string
	Status              TempOrderStatus
	FailureReason       *string
	Cost                decimal.NullDecimal
	ShippingCost        decimal.NullDecimal
	TotalCost           decimal.NullDecimal
	Expense             decimal.NullDecimal
	CustomerName        string
	CustomerPhone       string
	Government          string
	Address             string
	PaymentMethod       string
	IP                  string
	IPCountry           string
	CreatedDay          time.Time
	Payload             json.RawMessage // JSONB, verbatim EasyOrders response
	Normalized          *NormalizedOrder
	PaymentPollDeadline *time.Time
	PaymentPollAttempts int
	ImportedOrderID     *uuid.UUID
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// AppendFailureReason appends reason to the existing failure reason
func (t *TempOrder) AppendFailureReason(reason string) {
	if t.FailureReason != nil && *t.FailureReason != "" {
		joined := *t.FailureReason + "; " + reason
		t.FailureReason = &joined
		return
	}
	t.FailureReason = &reason
}

// SetFailureReason replaces the failure reason; an empty reason clears it
func (t *TempOrder) SetFailureReason(reason string) {
	if reason == "" {
		t.FailureReason = nil
		return
	}
	t.FailureReason = &reason
}

// ApplyNormalized copies the denormalized search fields and totals from n
func (t *TempOrder) ApplyNormalized(n *NormalizedOrder) {
	t.Normalized = n
	t.ShortID = n.ShortID
	t.GuestID = n.GuestID
	t.Cost = n.Totals.Cost
	t.ShippingCost = n.Totals.ShippingCost
	t.TotalCost = n.Totals.TotalCost
	t.Expense = n.Totals.Expense
	t.CustomerName = n.Customer.FullName
	t.CustomerPhone = n.Customer.Phone
	t.Government = n.Customer.Government
	t.Address = n.Customer.Address
	t.PaymentMethod = n.PaymentMethod
	t.IP = n.Network.IP
	t.IPCountry = n.Network.IPCountry
	if day, err := time.Parse(DayLayout, n.Timestamps.CreatedDay); err == nil {
		t.CreatedDay = day
	}
}

// WebhookLog records one inbound webhook call
type WebhookLog struct {
	ID             uuid.UUID
	StoreID        *uuid.UUID
	RequestHeaders map[string][]string // JSONB
	RequestBody    string
	HTTPStatus     int
	Error          *string
	CreatedAt      time.Time
}

// Task is a durable, delayed pipeline step keyed by temp order
type Task struct {
	ID          uuid.UUID
	Kind        TaskKind
	TempOrderID uuid.UUID
	RunAt       time.Time
	Attempts    int
	Status      TaskStatus
	LastError   *string
	LockedUntil *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Stock is the catalog projection of a sellable SKU
type Stock struct {
	ID            uuid.UUID
	ProductID     uuid.UUID
	ShopID        *uuid.UUID
	SKU           string
	Quantity      int
	TotalPrice    decimal.Decimal
	ProductActive bool
	ProductStatus string
}

// IsSellable reports whether the owning product is active and published
func (s *Stock) IsSellable() bool {
	return s.ProductActive && s.ProductStatus == ProductStatusPublished
}

// Customer is an internal marketplace user
type Customer struct {
	ID        uuid.UUID
	Phone     string
	FirstName string
	Active    bool
	CreatedAt time.Time
}

// CustomerAddress is a saved delivery address of a customer
type CustomerAddress struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Address   string
	FirstName string
	LastName  string
	Phone     string
	Title     string
	Active    bool
	CreatedAt time.Time
}

// Order is an internal marketplace order for a single shop
type Order struct {
	ID            uuid.UUID
	UserID        *uuid.UUID
	ShopID        uuid.UUID
	Phone         string
	Username      string
	Address       string
	AddressID     *uuid.UUID
	DeliveryType  string
	DeliveryFee   decimal.Decimal
	TotalPrice    decimal.Decimal
	TotalDiscount decimal.Decimal
	Note          string
	Notes         map[string]string // JSONB
	Status        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OrderDetail is one stock line of an internal order
type OrderDetail struct {
	ID         uuid.UUID
	OrderID    uuid.UUID
	StockID    uuid.UUID
	Quantity   int
	UnitPrice  decimal.Decimal
	TotalPrice decimal.Decimal
}

// Transaction is a payment transaction attached to an internal order
type Transaction struct {
	ID                uuid.UUID
	OrderID           uuid.UUID
	UserID            *uuid.UUID
	Price             decimal.Decimal
	PaymentTrxID      string
	Note              string
	Status            TransactionStatus
	StatusDescription string
	PerformTime       time.Time
	CreatedAt         time.Time
}
