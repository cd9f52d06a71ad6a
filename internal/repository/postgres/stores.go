package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/jafarshop/easyorders/internal/domain"
	"github.com/jafarshop/easyorders/internal/repository"
	"github.com/jafarshop/easyorders/pkg/errors"
)

const storeColumns = `id, name, external_store_id, status, api_key, webhook_secret_hash, webhook_secret_prefix, settings, last_sync_at, created_at, updated_at`

type storeRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewStoreRepository creates a new store repository
func NewStoreRepository(db DBTX, logger *zap.Logger) *storeRepository {
	return &storeRepository{
		db:     db,
		logger: logger,
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStore(row rowScanner, extra ...interface{}) (*domain.Store, error) {
	var store domain.Store
	var externalStoreID, apiKey sql.NullString
	var settings []byte
	var lastSyncAt sql.NullTime

	dest := []interface{}{
		&store.ID,
		&store.Name,
		&externalStoreID,
		&store.Status,
		&apiKey,
		&store.WebhookSecretHash,
		&store.WebhookSecretPrefix,
		&settings,
		&lastSyncAt,
		&store.CreatedAt,
		&store.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	if externalStoreID.Valid {
		store.ExternalStoreID = &externalStoreID.String
	}
	if apiKey.Valid {
		store.APIKey = &apiKey.String
	}
	if lastSyncAt.Valid {
		store.LastSyncAt = &lastSyncAt.Time
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &store.Settings); err != nil {
			return nil, fmt.Errorf("failed to decode store settings: %w", err)
		}
	}

	return &store, nil
}

func (r *storeRepository) GetByWebhookSecret(ctx context.Context, secret string) (*domain.Store, error) {
	if secret == "" {
		return nil, &errors.ErrUnauthorized{Message: "missing webhook secret"}
	}

	// bcrypt hashes are salted, so only the stores sharing the secret's prefix are
	// compared. Stores without a prefix (short or pre-prefix secrets) are always candidates.
	query := `
		SELECT ` + storeColumns + `
		FROM easyorders_stores
		WHERE status = $1 AND (webhook_secret_prefix = $2 OR webhook_secret_prefix = '')
		ORDER BY webhook_secret_prefix DESC
	`

	rows, err := r.db.QueryContext(ctx, query, domain.StoreStatusActive, domain.WebhookSecretPrefix(secret))
	if err != nil {
		r.logger.Error("Failed to query stores", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		store, err := scanStore(rows)
		if err != nil {
			r.logger.Warn("Failed to scan store", zap.Error(err))
			continue
		}

		if err := bcrypt.CompareHashAndPassword([]byte(store.WebhookSecretHash), []byte(secret)); err == nil {
			return store, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return nil, &errors.ErrUnauthorized{Message: "invalid webhook secret"}
}

func (r *storeRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Store, error) {
	query := `SELECT ` + storeColumns + ` FROM easyorders_stores WHERE id = $1`

	store, err := scanStore(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "store", ID: id.String()}
	}
	if err != nil {
		r.logger.Error("Failed to get store by ID", zap.Error(err))
		return nil, err
	}

	return store, nil
}

func (r *storeRepository) List(ctx context.Context, filter repository.StoreFilter) ([]*domain.Store, int, error) {
	query := `
		SELECT ` + storeColumns + `, COUNT(*) OVER()
		FROM easyorders_stores
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR name ILIKE '%' || $2 || '%' OR external_store_id ILIKE '%' || $2 || '%')
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.QueryContext(ctx, query, string(filter.Status), filter.Search, limitOrDefault(filter.Limit), filter.Offset)
	if err != nil {
		r.logger.Error("Failed to list stores", zap.Error(err))
		return nil, 0, err
	}
	defer rows.Close()

	var stores []*domain.Store
	var total int
	for rows.Next() {
		store, err := scanStore(rows, &total)
		if err != nil {
			return nil, 0, err
		}
		stores = append(stores, store)
	}

	return stores, total, rows.Err()
}

func (r *storeRepository) Create(ctx context.Context, store *domain.Store) error {
	query := `
		INSERT INTO easyorders_stores (id, name, external_store_id, status, api_key, webhook_secret_hash, webhook_secret_prefix, settings, last_sync_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	now := time.Now()
	if store.ID == uuid.Nil {
		store.ID = uuid.New()
	}
	if store.Status == "" {
		store.Status = domain.StoreStatusActive
	}
	if store.CreatedAt.IsZero() {
		store.CreatedAt = now
	}
	if store.UpdatedAt.IsZero() {
		store.UpdatedAt = now
	}

	settings, err := marshalNullableJSON(store.Settings)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query,
		store.ID,
		store.Name,
		store.ExternalStoreID,
		store.Status,
		store.APIKey,
		store.WebhookSecretHash,
		store.WebhookSecretPrefix,
		settings,
		store.LastSyncAt,
		store.CreatedAt,
		store.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return &errors.ErrDuplicate{Resource: "store", Constraint: constraintName(err)}
	}
	if err != nil {
		r.logger.Error("Failed to create store", zap.Error(err))
		return err
	}

	return nil
}

func (r *storeRepository) Update(ctx context.Context, store *domain.Store) error {
	query := `
		UPDATE easyorders_stores
		SET name = $2, external_store_id = $3, status = $4, api_key = $5, settings = $6, last_sync_at = $7, updated_at = $8
		WHERE id = $1
	`

	store.UpdatedAt = time.Now()

	settings, err := marshalNullableJSON(store.Settings)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, query,
		store.ID,
		store.Name,
		store.ExternalStoreID,
		store.Status,
		store.APIKey,
		settings,
		store.LastSyncAt,
		store.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return &errors.ErrDuplicate{Resource: "store", Constraint: constraintName(err)}
	}
	if err != nil {
		r.logger.Error("Failed to update store", zap.Error(err))
		return err
	}

	return expectAffected(result, "store", store.ID)
}

func (r *storeRepository) UpdateWebhookSecret(ctx context.Context, id uuid.UUID, hash, prefix string) error {
	query := `UPDATE easyorders_stores SET webhook_secret_hash = $2, webhook_secret_prefix = $3, updated_at = $4 WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, hash, prefix, time.Now())
	if err != nil {
		r.logger.Error("Failed to update store webhook secret", zap.Error(err))
		return err
	}

	return expectAffected(result, "store", id)
}
