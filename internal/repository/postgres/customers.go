package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/easyorders/internal/domain"
	"github.com/jafarshop/easyorders/pkg/errors"
)

type customerRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewCustomerRepository creates a new marketplace customer repository
func NewCustomerRepository(db DBTX, logger *zap.Logger) *customerRepository {
	return &customerRepository{
		db:     db,
		logger: logger,
	}
}

func (r *customerRepository) FindByPhone(ctx context.Context, phone string) (*domain.Customer, error) {
	query := `SELECT id, phone, firstname, active, created_at FROM users WHERE phone = $1`

	var customer domain.Customer
	var firstName sql.NullString

	err := r.db.QueryRowContext(ctx, query, phone).Scan(
		&customer.ID,
		&customer.Phone,
		&firstName,
		&customer.Active,
		&customer.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "user", ID: phone}
	}
	if err != nil {
		r.logger.Error("Failed to find user by phone", zap.Error(err))
		return nil, err
	}

	customer.FirstName = firstName.String
	return &customer, nil
}

func (r *customerRepository) Create(ctx context.Context, customer *domain.Customer) error {
	query := `
		INSERT INTO users (id, phone, firstname, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`

	if customer.ID == uuid.Nil {
		customer.ID = uuid.New()
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, query,
		customer.ID,
		customer.Phone,
		nullString(customer.FirstName),
		customer.Active,
		customer.CreatedAt,
	)
	if isUniqueViolation(err) {
		return &errors.ErrDuplicate{Resource: "user", Constraint: constraintName(err)}
	}
	if err != nil {
		r.logger.Error("Failed to create user", zap.Error(err))
		return err
	}
	return nil
}

func (r *customerRepository) FindAddress(ctx context.Context, userID uuid.UUID, address string) (*domain.CustomerAddress, error) {
	query := `
		SELECT id, user_id, address, firstname, lastname, phone, title, active, created_at
		FROM user_addresses
		WHERE user_id = $1 AND address = $2
		ORDER BY created_at
		LIMIT 1
	`

	var addr domain.CustomerAddress
	var firstName, lastName, phone, title sql.NullString

	err := r.db.QueryRowContext(ctx, query, userID, address).Scan(
		&addr.ID,
		&addr.UserID,
		&addr.Address,
		&firstName,
		&lastName,
		&phone,
		&title,
		&addr.Active,
		&addr.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "user_address", ID: userID.String()}
	}
	if err != nil {
		r.logger.Error("Failed to find user address", zap.Error(err))
		return nil, err
	}

	addr.FirstName = firstName.String
	addr.LastName = lastName.String
	addr.Phone = phone.String
	addr.Title = title.String
	return &addr, nil
}

func (r *customerRepository) CreateAddress(ctx context.Context, addr *domain.CustomerAddress) error {
	query := `
		INSERT INTO user_addresses (id, user_id, title, address, firstname, lastname, phone, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`

	if addr.ID == uuid.Nil {
		addr.ID = uuid.New()
	}
	if addr.CreatedAt.IsZero() {
		addr.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, query,
		addr.ID,
		addr.UserID,
		nullString(addr.Title),
		addr.Address,
		nullString(addr.FirstName),
		nullString(addr.LastName),
		nullString(addr.Phone),
		addr.Active,
		addr.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create user address", zap.Error(err))
		return err
	}
	return nil
}
