package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/jafarshop/easyorders/internal/domain"
	"github.com/jafarshop/easyorders/internal/easyorders"
	"github.com/jafarshop/easyorders/internal/repository"
	"github.com/jafarshop/easyorders/pkg/errors"
)

const (
	secretLength   = 40
	secretAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	bcryptCost     = 10
)

// StoreInput holds the editable fields of a store. Nil fields are left unchanged on update.
type StoreInput struct {
	Name            *string                `json:"name"`
	ExternalStoreID *string                `json:"external_store_id"`
	Status          *domain.StoreStatus    `json:"status"`
	APIKey          *string                `json:"api_key"`
	WebhookSecret   *string                `json:"webhook_secret"`
	Settings        map[string]interface{} `json:"settings"`
}

// ConnectionReport is the result of probing a store's EasyOrders credentials
type ConnectionReport struct {
	StoreID   uuid.UUID `json:"store_id"`
	HasAPIKey bool      `json:"has_api_key"`
	OK        bool      `json:"ok"`
	Products  int       `json:"products"`
	Error     string    `json:"error,omitempty"`
}

type storeService struct {
	repos   *repository.Repositories
	gateway easyorders.Gateway
	logger  *zap.Logger
}

// NewStoreService creates the admin service for EasyOrders stores
func NewStoreService(repos *repository.Repositories, gateway easyorders.Gateway, logger *zap.Logger) *storeService {
	return &storeService{
		repos:   repos,
		gateway: gateway,
		logger:  logger,
	}
}

// GenerateSecret returns a random alphanumeric webhook secret
func GenerateSecret() (string, error) {
	max := big.NewInt(int64(len(secretAlphabet)))
	var b strings.Builder
	b.Grow(secretLength)
	for i := 0; i < secretLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate secret: %w", err)
		}
		b.WriteByte(secretAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// HashSecret bcrypt-hashes a webhook secret
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(hash), nil
}

func (s *storeService) List(ctx context.Context, filter repository.StoreFilter) ([]*domain.Store, int, error) {
	return s.repos.Store.List(ctx, filter)
}

func (s *storeService) Get(ctx context.Context, id uuid.UUID) (*domain.Store, error) {
	return s.repos.Store.GetByID(ctx, id)
}

// Create creates a store. When no webhook secret is given one is generated; the
// plain secret is returned once and only its hash is stored.
func (s *storeService) Create(ctx context.Context, input StoreInput) (*domain.Store, string, error) {
	if input.Name == nil || strings.TrimSpace(*input.Name) == "" {
		return nil, "", &errors.ErrInvalidPayload{Field: "name", Message: "is required"}
	}

	secret := ""
	if input.WebhookSecret != nil {
		secret = strings.TrimSpace(*input.WebhookSecret)
	}
	if secret == "" {
		generated, err := GenerateSecret()
		if err != nil {
			return nil, "", err
		}
		secret = generated
	}

	hash, err := HashSecret(secret)
	if err != nil {
		return nil, "", err
	}

	store := &domain.Store{
		Name:                strings.TrimSpace(*input.Name),
		Status:              domain.StoreStatusActive,
		WebhookSecretHash:   hash,
		WebhookSecretPrefix: domain.WebhookSecretPrefix(secret),
		Settings:            map[string]interface{}{},
	}
	if err := applyStoreInput(store, input); err != nil {
		return nil, "", err
	}

	if err := s.repos.Store.Create(ctx, store); err != nil {
		return nil, "", err
	}

	s.logger.Info("Created EasyOrders store",
		zap.String("store_id", store.ID.String()),
		zap.String("name", store.Name),
	)
	return store, secret, nil
}

func (s *storeService) Update(ctx context.Context, id uuid.UUID, input StoreInput) (*domain.Store, error) {
	store, err := s.repos.Store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := applyStoreInput(store, input); err != nil {
		return nil, err
	}
	if err := s.repos.Store.Update(ctx, store); err != nil {
		return nil, err
	}

	if input.WebhookSecret != nil {
		if secret := strings.TrimSpace(*input.WebhookSecret); secret != "" {
			if err := s.setSecret(ctx, store, secret); err != nil {
				return nil, err
			}
		}
	}
	return store, nil
}

// RotateSecret replaces the webhook secret of a store and returns the new plain secret
func (s *storeService) RotateSecret(ctx context.Context, id uuid.UUID) (string, error) {
	secret, err := GenerateSecret()
	if err != nil {
		return "", err
	}
	if err := s.setSecret(ctx, &domain.Store{ID: id}, secret); err != nil {
		return "", err
	}

	s.logger.Info("Rotated webhook secret", zap.String("store_id", id.String()))
	return secret, nil
}

func (s *storeService) setSecret(ctx context.Context, store *domain.Store, secret string) error {
	hash, err := HashSecret(secret)
	if err != nil {
		return err
	}
	prefix := domain.WebhookSecretPrefix(secret)
	if err := s.repos.Store.UpdateWebhookSecret(ctx, store.ID, hash, prefix); err != nil {
		return err
	}
	store.WebhookSecretHash = hash
	store.WebhookSecretPrefix = prefix
	return nil
}

// TestConnection probes the product list endpoint with the store's API key
func (s *storeService) TestConnection(ctx context.Context, id uuid.UUID) (*ConnectionReport, error) {
	store, err := s.repos.Store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	report := &ConnectionReport{
		StoreID:   store.ID,
		HasAPIKey: store.APIKey != nil && *store.APIKey != "",
	}
	if !report.HasAPIKey {
		report.Error = "store has no API key"
		return report, nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	products, err := s.gateway.FetchProductList(probeCtx, store, 1)
	if err != nil {
		report.Error = err.Error()
		return report, nil
	}

	report.OK = true
	report.Products = len(products)
	return report, nil
}

func applyStoreInput(store *domain.Store, input StoreInput) error {
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return &errors.ErrInvalidPayload{Field: "name", Message: "must not be empty"}
		}
		store.Name = name
	}
	if input.ExternalStoreID != nil {
		store.ExternalStoreID = blankToNil(*input.ExternalStoreID)
	}
	if input.Status != nil {
		if !input.Status.IsValid() {
			return &errors.ErrInvalidPayload{Field: "status", Message: "must be active or inactive"}
		}
		store.Status = *input.Status
	}
	if input.APIKey != nil {
		store.APIKey = blankToNil(*input.APIKey)
	}
	if input.Settings != nil {
		store.Settings = input.Settings
	}
	return nil
}

func blankToNil(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
