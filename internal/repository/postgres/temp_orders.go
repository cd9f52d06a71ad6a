package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/easyorders/internal/domain"
	"github.com/jafarshop/easyorders/internal/repository"
	"github.com/jafarshop/easyorders/pkg/errors"
)

const tempOrderColumns = `id, store_id, external_order_id, short_id, guest_id, status, failure_reason,
	cost, shipping_cost, total_cost, expense,
	customer_name, customer_phone, government, address, payment_method, ip, ip_country,
	created_day, payload, normalized, payment_poll_deadline, payment_poll_attempts, imported_order_id,
	created_at, updated_at`

type tempOrderRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewTempOrderRepository creates a new temp order repository
func NewTempOrderRepository(db DBTX, logger *zap.Logger) *tempOrderRepository {
	return &tempOrderRepository{
		db:     db,
		logger: logger,
	}
}

func scanTempOrder(row rowScanner, extra ...interface{}) (*domain.TempOrder, error) {
	var order domain.TempOrder
	var shortID, guestID, failureReason sql.NullString
	var customerName, customerPhone, government, address, paymentMethod, ip, ipCountry sql.NullString
	var createdDay, pollDeadline sql.NullTime
	var payload, normalized []byte
	var importedOrderID uuid.NullUUID

	dest := []interface{}{
		&order.ID,
		&order.StoreID,
		&order.ExternalOrderID,
		&shortID,
		&guestID,
		&order.Status,
		&failureReason,
		&order.Cost,
		&order.ShippingCost,
		&order.TotalCost,
		&order.Expense,
		&customerName,
		&customerPhone,
		&government,
		&address,
		&paymentMethod,
		&ip,
		&ipCountry,
		&createdDay,
		&payload,
		&normalized,
		&pollDeadline,
		&order.PaymentPollAttempts,
		&importedOrderID,
		&order.CreatedAt,
		&order.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	if shortID.Valid {
		order.ShortID = &shortID.String
	}
	if guestID.Valid {
		order.GuestID = &guestID.String
	}
	if failureReason.Valid {
		order.FailureReason = &failureReason.String
	}
	order.CustomerName = customerName.String
	order.CustomerPhone = customerPhone.String
	order.Government = government.String
	order.Address = address.String
	order.PaymentMethod = paymentMethod.String
	order.IP = ip.String
	order.IPCountry = ipCountry.String
	if createdDay.Valid {
		order.CreatedDay = createdDay.Time
	}
	if pollDeadline.Valid {
		order.PaymentPollDeadline = &pollDeadline.Time
	}
	if importedOrderID.Valid {
		order.ImportedOrderID = &importedOrderID.UUID
	}
	if len(payload) > 0 {
		order.Payload = json.RawMessage(payload)
	}
	if len(normalized) > 0 {
		var n domain.NormalizedOrder
		if err := json.Unmarshal(normalized, &n); err != nil {
			return nil, fmt.Errorf("failed to decode normalized order %s: %w", order.ID, err)
		}
		order.Normalized = &n
	}

	return &order, nil
}

func (r *tempOrderRepository) get(ctx context.Context, query string, id uuid.UUID) (*domain.TempOrder, error) {
	order, err := scanTempOrder(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "temp_order", ID: id.String()}
	}
	if err != nil {
		r.logger.Error("Failed to get temp order", zap.String("temp_order_id", id.String()), zap.Error(err))
		return nil, err
	}
	return order, nil
}

func (r *tempOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.TempOrder, error) {
	return r.get(ctx, `SELECT `+tempOrderColumns+` FROM easyorders_temp_orders WHERE id = $1`, id)
}

func (r *tempOrderRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.TempOrder, error) {
	return r.get(ctx, `SELECT `+tempOrderColumns+` FROM easyorders_temp_orders WHERE id = $1 FOR UPDATE`, id)
}

func (r *tempOrderRepository) FindByExternalID(ctx context.Context, storeID uuid.UUID, externalOrderID string) (*domain.TempOrder, error) {
	query := `SELECT ` + tempOrderColumns + ` FROM easyorders_temp_orders WHERE store_id = $1 AND external_order_id = $2`

	order, err := scanTempOrder(r.db.QueryRowContext(ctx, query, storeID, externalOrderID))
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "temp_order", ID: externalOrderID}
	}
	if err != nil {
		r.logger.Error("Failed to find temp order by external ID",
			zap.String("store_id", storeID.String()),
			zap.String("external_order_id", externalOrderID),
			zap.Error(err),
		)
		return nil, err
	}
	return order, nil
}

func (r *tempOrderRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.TempOrder, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + tempOrderColumns + ` FROM easyorders_temp_orders WHERE id = ANY($1::uuid[]) ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, uuidStrings(ids))
	if err != nil {
		r.logger.Error("Failed to list temp orders by IDs", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var orders []*domain.TempOrder
	for rows.Next() {
		order, err := scanTempOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func (r *tempOrderRepository) List(ctx context.Context, filter repository.TempOrderFilter) ([]*domain.TempOrder, int, error) {
	var conditions []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Status != "" {
		conditions = append(conditions, "status = "+arg(string(filter.Status)))
	}
	if filter.StoreID != nil {
		conditions = append(conditions, "store_id = "+arg(*filter.StoreID))
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, "created_day >= "+arg(filter.DateFrom.Format(domain.DayLayout)))
	}
	if filter.DateTo != nil {
		conditions = append(conditions, "created_day <= "+arg(filter.DateTo.Format(domain.DayLayout)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		p := arg("%" + search + "%")
		conditions = append(conditions, fmt.Sprintf(
			"(customer_name ILIKE %[1]s OR customer_phone ILIKE %[1]s OR external_order_id ILIKE %[1]s OR short_id ILIKE %[1]s)", p))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s, COUNT(*) OVER()
		FROM easyorders_temp_orders
		%s
		ORDER BY created_at DESC
		LIMIT %s OFFSET %s
	`, tempOrderColumns, where, arg(limitOrDefault(filter.Limit)), arg(filter.Offset))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list temp orders", zap.Error(err))
		return nil, 0, err
	}
	defer rows.Close()

	var orders []*domain.TempOrder
	var total int
	for rows.Next() {
		order, err := scanTempOrder(rows, &total)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, order)
	}
	return orders, total, rows.Err()
}

func (r *tempOrderRepository) Create(ctx context.Context, order *domain.TempOrder) error {
	query := `
		INSERT INTO easyorders_temp_orders (` + tempOrderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)
		ON CONFLICT (store_id, external_order_id) DO NOTHING
		RETURNING id
	`

	now := time.Now()
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.Status == "" {
		order.Status = domain.TempOrderStatusPending
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = now
	}

	args, err := tempOrderArgs(order)
	if err != nil {
		return err
	}

	var id uuid.UUID
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if err == sql.ErrNoRows || isUniqueViolation(err) {
		return &errors.ErrDuplicate{Resource: "temp_order", Constraint: "uq_easyorders_temp_orders_store_external"}
	}
	if err != nil {
		r.logger.Error("Failed to create temp order",
			zap.String("external_order_id", order.ExternalOrderID),
			zap.Error(err),
		)
		return err
	}

	return nil
}

func (r *tempOrderRepository) Update(ctx context.Context, order *domain.TempOrder) error {
	query := `
		UPDATE easyorders_temp_orders
		SET short_id = $4, guest_id = $5, status = $6, failure_reason = $7,
			cost = $8, shipping_cost = $9, total_cost = $10, expense = $11,
			customer_name = $12, customer_phone = $13, government = $14, address = $15,
			payment_method = $16, ip = $17, ip_country = $18, created_day = $19,
			payload = $20, normalized = $21, payment_poll_deadline = $22, payment_poll_attempts = $23,
			imported_order_id = $24, updated_at = $25
		WHERE id = $1 AND store_id = $2 AND external_order_id = $3
	`

	order.UpdatedAt = time.Now()

	args, err := tempOrderArgs(order)
	if err != nil {
		return err
	}
	// created_at is immutable
	args = append(args[:24], order.UpdatedAt)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update temp order",
			zap.String("temp_order_id", order.ID.String()),
			zap.Error(err),
		)
		return err
	}

	return expectAffected(result, "temp_order", order.ID)
}

// tempOrderArgs returns the values of tempOrderColumns in order
func tempOrderArgs(order *domain.TempOrder) ([]interface{}, error) {
	payload, err := marshalNullableJSON(order.Payload)
	if err != nil {
		return nil, err
	}

	var normalized interface{}
	if order.Normalized != nil {
		if normalized, err = marshalNullableJSON(order.Normalized); err != nil {
			return nil, err
		}
	}

	var createdDay interface{}
	if !order.CreatedDay.IsZero() {
		createdDay = order.CreatedDay.Format(domain.DayLayout)
	}

	return []interface{}{
		order.ID,
		order.StoreID,
		order.ExternalOrderID,
		order.ShortID,
		order.GuestID,
		order.Status,
		order.FailureReason,
		order.Cost,
		order.ShippingCost,
		order.TotalCost,
		order.Expense,
		nullString(order.CustomerName),
		nullString(order.CustomerPhone),
		nullString(order.Government),
		nullString(order.Address),
		nullString(order.PaymentMethod),
		nullString(order.IP),
		nullString(order.IPCountry),
		createdDay,
		payload,
		normalized,
		order.PaymentPollDeadline,
		order.PaymentPollAttempts,
		nullUUID(order.ImportedOrderID),
		order.CreatedAt,
		order.UpdatedAt,
	}, nil
}
