package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/jafarshop/easyorders/internal/domain"
	"github.com/jafarshop/easyorders/internal/easyorders"
	"github.com/jafarshop/easyorders/pkg/errors"
)

func strPtr(s string) *string {
	return &s
}

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret()
	require.NoError(t, err)
	b, err := GenerateSecret()
	require.NoError(t, err)

	assert.Len(t, a, 40)
	assert.NotEqual(t, a, b)
	for _, r := range a {
		assert.True(t, strings.ContainsRune(secretAlphabet, r), "unexpected rune %q", r)
	}
}

func TestStoreService_Create(t *testing.T) {
	db := newMemDB(testNow)
	svc := NewStoreService(db.repos(), &fakeGateway{}, zap.NewNop())

	store, secret, err := svc.Create(context.Background(), StoreInput{
		Name:   strPtr(" Amman Outlet "),
		APIKey: strPtr("key-1"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Amman Outlet", store.Name)
	assert.Equal(t, domain.StoreStatusActive, store.Status)
	assert.Len(t, secret, 40)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(store.WebhookSecretHash), []byte(secret)))

	// the generated secret authenticates webhooks
	found, err := db.repos().Store.GetByWebhookSecret(context.Background(), secret)
	require.NoError(t, err)
	assert.Equal(t, store.ID, found.ID)
}

func TestStoreService_CreateRequiresName(t *testing.T) {
	svc := NewStoreService(newMemDB(testNow).repos(), &fakeGateway{}, zap.NewNop())
	_, _, err := svc.Create(context.Background(), StoreInput{})
	assert.IsType(t, &errors.ErrInvalidPayload{}, err)
}

func TestStoreService_UpdateAndRotate(t *testing.T) {
	db := newMemDB(testNow)
	store := db.addStore("old-secret", nil)
	svc := NewStoreService(db.repos(), &fakeGateway{}, zap.NewNop())

	inactive := domain.StoreStatusInactive
	updated, err := svc.Update(context.Background(), store.ID, StoreInput{Status: &inactive, APIKey: strPtr("  ")})
	require.NoError(t, err)
	assert.Equal(t, domain.StoreStatusInactive, updated.Status)
	assert.Nil(t, updated.APIKey)

	bad := domain.StoreStatus("paused")
	_, err = svc.Update(context.Background(), store.ID, StoreInput{Status: &bad})
	assert.IsType(t, &errors.ErrInvalidPayload{}, err)

	secret, err := svc.RotateSecret(context.Background(), store.ID)
	require.NoError(t, err)
	hash := db.stores[store.ID].WebhookSecretHash
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)))
	assert.Error(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("old-secret")))
	assert.Equal(t, secret[:domain.SecretPrefixLength], db.stores[store.ID].WebhookSecretPrefix)
}

func TestStoreService_UpdateReplacesSecret(t *testing.T) {
	db := newMemDB(testNow)
	store := db.addStore("old-secret", nil)
	svc := NewStoreService(db.repos(), &fakeGateway{}, zap.NewNop())

	custom := "abcdefgh-admin-chosen-secret-value"
	_, err := svc.Update(context.Background(), store.ID, StoreInput{WebhookSecret: strPtr(" " + custom + " ")})
	require.NoError(t, err)

	saved := db.stores[store.ID]
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(saved.WebhookSecretHash), []byte(custom)))
	assert.Equal(t, "abcdefgh", saved.WebhookSecretPrefix)

	found, err := db.repos().Store.GetByWebhookSecret(context.Background(), custom)
	require.NoError(t, err)
	assert.Equal(t, store.ID, found.ID)
}

func TestStoreService_SecretLookupOnlyComparesPrefixMatches(t *testing.T) {
	db := newMemDB(testNow)
	svc := NewStoreService(db.repos(), &fakeGateway{}, zap.NewNop())

	var secrets []string
	for i := 0; i < 5; i++ {
		_, secret, err := svc.Create(context.Background(), StoreInput{Name: strPtr(fmt.Sprintf("Store %d", i))})
		require.NoError(t, err)
		secrets = append(secrets, secret)
	}

	unknown, err := GenerateSecret()
	require.NoError(t, err)
	_, err = db.repos().Store.GetByWebhookSecret(context.Background(), unknown)
	assert.IsType(t, &errors.ErrUnauthorized{}, err)
	assert.Zero(t, db.secretCompares, "a random secret is compared against prefix matches only")

	db.secretCompares = 0
	found, err := db.repos().Store.GetByWebhookSecret(context.Background(), secrets[3])
	require.NoError(t, err)
	assert.Equal(t, "Store 3", found.Name)
	assert.Equal(t, 1, db.secretCompares)
}

func TestStoreService_TestConnection(t *testing.T) {
	db := newMemDB(testNow)
	withoutKey := db.addStore("a", nil)
	withKey := db.addStore("b", strPtr("key"))

	gateway := &fakeGateway{products: []easyorders.Product{{Name: "Mug"}, {Name: "Cap"}}}
	svc := NewStoreService(db.repos(), gateway, zap.NewNop())

	report, err := svc.TestConnection(context.Background(), withoutKey.ID)
	require.NoError(t, err)
	assert.False(t, report.HasAPIKey)
	assert.False(t, report.OK)

	report, err = svc.TestConnection(context.Background(), withKey.ID)
	require.NoError(t, err)
	assert.True(t, report.OK)
	assert.Equal(t, 2, report.Products)

	gateway.err = &errors.ErrUpstreamUnavailable{StatusCode: 401, Err: fmt.Errorf("unauthorized")}
	report, err = svc.TestConnection(context.Background(), withKey.ID)
	require.NoError(t, err)
	assert.False(t, report.OK)
	assert.Contains(t, report.Error, "401")
}
