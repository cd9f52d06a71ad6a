package domain

import "strings"

// TempOrderStatus is the lifecycle status of a staged EasyOrders order
type TempOrderStatus string

const (
	TempOrderStatusPending        TempOrderStatus = "pending"
	TempOrderStatusWaitingPayment TempOrderStatus = "waiting_payment"
	TempOrderStatusValidated      TempOrderStatus = "validated"
	TempOrderStatusFailed         TempOrderStatus = "failed"
	TempOrderStatusApproved       TempOrderStatus = "approved"
	TempOrderStatusImported       TempOrderStatus = "imported"
	TempOrderStatusImportFailed   TempOrderStatus = "import_failed"
)

// AllTempOrderStatuses lists every status in lifecycle order
var AllTempOrderStatuses = []TempOrderStatus{
	TempOrderStatusPending,
	TempOrderStatusWaitingPayment,
	TempOrderStatusValidated,
	TempOrderStatusFailed,
	TempOrderStatusApproved,
	TempOrderStatusImported,
	TempOrderStatusImportFailed,
}

// IsValid checks if the status is known
func (s TempOrderStatus) IsValid() bool {
	switch s {
	case TempOrderStatusPending,
		TempOrderStatusWaitingPayment,
		TempOrderStatusValidated,
		TempOrderStatusFailed,
		TempOrderStatusApproved,
		TempOrderStatusImported,
		TempOrderStatusImportFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo checks if a status transition is valid.
// Pipeline transitions and the manual admin transitions (approve, revalidate)
// are both listed here; nothing leaves imported.
func (s TempOrderStatus) CanTransitionTo(next TempOrderStatus) bool {
	switch s {
	case TempOrderStatusPending:
		return next == TempOrderStatusWaitingPayment ||
			next == TempOrderStatusValidated ||
			next == TempOrderStatusFailed ||
			next == TempOrderStatusImportFailed
	case TempOrderStatusWaitingPayment:
		return next == TempOrderStatusPending ||
			next == TempOrderStatusImportFailed
	case TempOrderStatusValidated:
		return next == TempOrderStatusApproved ||
			next == TempOrderStatusImported ||
			next == TempOrderStatusImportFailed
	case TempOrderStatusFailed:
		return next == TempOrderStatusPending ||
			next == TempOrderStatusApproved
	case TempOrderStatusApproved:
		return next == TempOrderStatusImported ||
			next == TempOrderStatusImportFailed
	case TempOrderStatusImportFailed:
		return next == TempOrderStatusApproved
	case TempOrderStatusImported:
		return false
	default:
		return false
	}
}

// IsImportable reports whether the importer may run on this status
func (s TempOrderStatus) IsImportable() bool {
	return s == TempOrderStatusValidated || s == TempOrderStatusApproved
}

// StoreStatus is the status of an EasyOrders seller account
type StoreStatus string

const (
	StoreStatusActive   StoreStatus = "active"
	StoreStatusInactive StoreStatus = "inactive"
)

// IsValid checks if the store status is valid
func (s StoreStatus) IsValid() bool {
	return s == StoreStatusActive || s == StoreStatusInactive
}

// External order statuses reported by EasyOrders that drive the payment wait
const (
	ExternalStatusPendingPayment = "pending_payment"
	ExternalStatusPaid           = "paid"
	ExternalStatusPaidFailed     = "paid_failed"
)

// IsTerminalPaymentStatus reports whether an external status ends the payment wait
func IsTerminalPaymentStatus(status string) bool {
	return status == ExternalStatusPaid || status == ExternalStatusPaidFailed
}

// IsCashOnDelivery reports whether an EasyOrders payment method is cash on delivery
func IsCashOnDelivery(paymentMethod string) bool {
	switch strings.ToLower(strings.TrimSpace(paymentMethod)) {
	case "cod", "cash_on_delivery":
		return true
	default:
		return false
	}
}

// PricePolicy decides which price is authoritative when importing
type PricePolicy string

const (
	PricePolicyTrustExternal       PricePolicy = "trust_external"
	PricePolicyRepriceFromInternal PricePolicy = "reprice_from_internal"
)

// IsValid checks if the price policy is valid
func (p PricePolicy) IsValid() bool {
	return p == PricePolicyTrustExternal || p == PricePolicyRepriceFromInternal
}

// TaskKind identifies a pipeline stage executed by the worker pool
type TaskKind string

const (
	TaskKindValidate    TaskKind = "validate"
	TaskKindWaitPayment TaskKind = "wait_payment"
	TaskKindImport      TaskKind = "import"
	TaskKindPushStatus  TaskKind = "push_status"
)

// TaskStatus is the delivery status of a queued pipeline task
type TaskStatus string

const (
	TaskStatusQueued  TaskStatus = "queued"
	TaskStatusRunning TaskStatus = "running"
	TaskStatusDone    TaskStatus = "done"
	TaskStatusDead    TaskStatus = "dead"
)

// TransactionStatus is the payment status of an imported order's transaction
type TransactionStatus string

const (
	TransactionStatusProgress TransactionStatus = "progress"
	TransactionStatusPaid     TransactionStatus = "paid"
)

// DeliveryTypeDelivery is the delivery type given to imported orders
const DeliveryTypeDelivery = "delivery"

// ProductStatusPublished is the catalog status of a sellable product
const ProductStatusPublished = "published"

// OrderStatusNew is the status of a freshly created marketplace order
const OrderStatusNew = "new"
