package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jafarshop/easyorders/internal/domain"
	"github.com/jafarshop/easyorders/internal/repository"
	"github.com/jafarshop/easyorders/internal/service"
	"github.com/jafarshop/easyorders/pkg/errors"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type recordedCall struct {
	storeID *uuid.UUID
	secret  string
	status  int
	err     error
}

type fakeIntake struct {
	order *domain.TempOrder
	err   error
	req   service.IngestRequest
	calls []recordedCall
}

func (f *fakeIntake) Ingest(ctx context.Context, req service.IngestRequest) (*domain.TempOrder, error) {
	f.req = req
	return f.order, f.err
}

func (f *fakeIntake) RecordCall(ctx context.Context, storeID *uuid.UUID, headers http.Header, body []byte, status int, callErr error) {
	f.calls = append(f.calls, recordedCall{
		storeID: storeID,
		secret:  headers.Get(service.SecretHeader),
		status:  status,
		err:     callErr,
	})
}

type fakeStores struct {
	store  *domain.Store
	secret string
	filter repository.StoreFilter
	input  service.StoreInput
	err    error
}

func (f *fakeStores) List(ctx context.Context, filter repository.StoreFilter) ([]*domain.Store, int, error) {
	f.filter = filter
	if f.err != nil {
		return nil, 0, f.err
	}
	return []*domain.Store{f.store}, 1, nil
}

func (f *fakeStores) Get(ctx context.Context, id uuid.UUID) (*domain.Store, error) {
	return f.store, f.err
}

func (f *fakeStores) Create(ctx context.Context, input service.StoreInput) (*domain.Store, string, error) {
	f.input = input
	return f.store, f.secret, f.err
}

func (f *fakeStores) Update(ctx context.Context, id uuid.UUID, input service.StoreInput) (*domain.Store, error) {
	f.input = input
	return f.store, f.err
}

func (f *fakeStores) RotateSecret(ctx context.Context, id uuid.UUID) (string, error) {
	return f.secret, f.err
}

func (f *fakeStores) TestConnection(ctx context.Context, id uuid.UUID) (*service.ConnectionReport, error) {
	return &service.ConnectionReport{StoreID: id, HasAPIKey: true, OK: true, Products: 3}, f.err
}

type fakeTempOrders struct {
	order  *domain.TempOrder
	filter repository.TempOrderFilter
	ids    []uuid.UUID
	err    error
}

func (f *fakeTempOrders) List(ctx context.Context, filter repository.TempOrderFilter) ([]*domain.TempOrder, int, error) {
	f.filter = filter
	if f.err != nil {
		return nil, 0, f.err
	}
	return []*domain.TempOrder{f.order}, 1, nil
}

func (f *fakeTempOrders) Get(ctx context.Context, id uuid.UUID) (*domain.TempOrder, error) {
	return f.order, f.err
}

func (f *fakeTempOrders) Approve(ctx context.Context, id uuid.UUID) (*domain.TempOrder, error) {
	return f.order, f.err
}

func (f *fakeTempOrders) BulkApprove(ctx context.Context, ids []uuid.UUID) (*service.BulkApproveResult, error) {
	f.ids = ids
	if f.err != nil {
		return nil, f.err
	}
	return &service.BulkApproveResult{Approved: ids, Skipped: map[string]string{}}, nil
}

func (f *fakeTempOrders) Revalidate(ctx context.Context, id uuid.UUID) (*domain.TempOrder, error) {
	return f.order, f.err
}

func sampleStore() *domain.Store {
	apiKey := "key"
	return &domain.Store{
		ID:                uuid.New(),
		Name:              "Amman Outlet",
		Status:            domain.StoreStatusActive,
		APIKey:            &apiKey,
		WebhookSecretHash: "$2a$10$hash",
		Settings:          map[string]interface{}{},
		CreatedAt:         testNow,
		UpdatedAt:         testNow,
	}
}

func sampleTempOrder() *domain.TempOrder {
	return &domain.TempOrder{
		ID:              uuid.New(),
		StoreID:         uuid.New(),
		ExternalOrderID: "ord-1",
		Status:          domain.TempOrderStatusValidated,
		CustomerName:    "Lina Haddad",
		CustomerPhone:   "0790000000",
		CreatedDay:      testNow,
		Payload:         json.RawMessage(`{"id":"ord-1"}`),
		CreatedAt:       testNow,
		UpdatedAt:       testNow,
	}
}

func newTestEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func doRequest(r *gin.Engine, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&errors.ErrForbidden{}, http.StatusForbidden},
		{&errors.ErrUnauthorized{Message: "bad secret"}, http.StatusUnauthorized},
		{&errors.ErrInvalidPayload{Field: "id"}, http.StatusUnprocessableEntity},
		{&errors.ErrNotFound{Resource: "store"}, http.StatusNotFound},
		{&errors.ErrInvalidStateTransition{From: domain.TempOrderStatusImported, To: domain.TempOrderStatusApproved}, http.StatusConflict},
		{&errors.ErrDuplicate{Resource: "store"}, http.StatusConflict},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), "%T", tt.err)
	}
}

func TestWebhook_Accepted(t *testing.T) {
	order := sampleTempOrder()
	order.Status = domain.TempOrderStatusPending
	intake := &fakeIntake{order: order}

	r := newTestEngine()
	r.POST("/webhook", HandleEasyOrdersWebhook(intake, zap.NewNop()))

	w := doRequest(r, http.MethodPost, "/webhook", []byte(`{"id":"ord-1"}`), map[string]string{"secret": "s3cret"})
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, order.ID.String(), body["temp_order_id"])
	assert.Equal(t, "pending", body["status"])

	assert.Equal(t, "s3cret", intake.req.Secret)
	assert.JSONEq(t, `{"id":"ord-1"}`, string(intake.req.Payload))

	require.Len(t, intake.calls, 1)
	assert.Equal(t, http.StatusOK, intake.calls[0].status)
	require.NotNil(t, intake.calls[0].storeID)
	assert.Equal(t, order.StoreID, *intake.calls[0].storeID)
}

func TestWebhook_Rejected(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"bad secret", &errors.ErrUnauthorized{Message: "invalid webhook secret"}, http.StatusUnauthorized},
		{"ip not allowed", &errors.ErrForbidden{}, http.StatusForbidden},
		{"missing id", &errors.ErrInvalidPayload{Field: "id", Message: "missing order id"}, http.StatusUnprocessableEntity},
		{"storage down", fmt.Errorf("connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intake := &fakeIntake{err: tt.err}
			r := newTestEngine()
			r.POST("/webhook", HandleEasyOrdersWebhook(intake, zap.NewNop()))

			w := doRequest(r, http.MethodPost, "/webhook", []byte(`{}`), nil)
			assert.Equal(t, tt.want, w.Code)

			require.Len(t, intake.calls, 1, "every call is logged")
			assert.Equal(t, tt.want, intake.calls[0].status)
			assert.Equal(t, tt.err, intake.calls[0].err)
		})
	}
}

func TestWebhook_InternalErrorIsHidden(t *testing.T) {
	intake := &fakeIntake{err: fmt.Errorf("pq: password authentication failed")}
	r := newTestEngine()
	r.POST("/webhook", HandleEasyOrdersWebhook(intake, zap.NewNop()))

	w := doRequest(r, http.MethodPost, "/webhook", []byte(`{}`), nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal error", decode(t, w)["error"])
}

func TestStores_ListPassesFilter(t *testing.T) {
	stores := &fakeStores{store: sampleStore()}
	r := newTestEngine()
	r.GET("/stores", HandleListStores(stores, zap.NewNop()))

	w := doRequest(r, http.MethodGet, "/stores?status=active&search=amman&page=3&per_page=500", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, domain.StoreStatusActive, stores.filter.Status)
	assert.Equal(t, "amman", stores.filter.Search)
	assert.Equal(t, 100, stores.filter.Limit)
	assert.Equal(t, 200, stores.filter.Offset)

	body := decode(t, w)
	assert.EqualValues(t, 1, body["total"])
	data := body["data"].([]interface{})
	require.Len(t, data, 1)
	first := data[0].(map[string]interface{})
	assert.Equal(t, true, first["has_api_key"])
	assert.NotContains(t, first, "api_key")
	assert.NotContains(t, first, "webhook_secret")
}

func TestStores_ListRejectsUnknownStatus(t *testing.T) {
	r := newTestEngine()
	r.GET("/stores", HandleListStores(&fakeStores{store: sampleStore()}, zap.NewNop()))

	w := doRequest(r, http.MethodGet, "/stores?status=bogus", nil, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestStores_CreateReturnsSecretOnce(t *testing.T) {
	stores := &fakeStores{store: sampleStore(), secret: "generated-secret"}
	r := newTestEngine()
	r.POST("/stores", HandleCreateStore(stores, zap.NewNop()))
	r.GET("/stores/:id", HandleGetStore(stores, zap.NewNop()))

	w := doRequest(r, http.MethodPost, "/stores", []byte(`{"name":"Amman Outlet","api_key":"key"}`), nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "generated-secret", decode(t, w)["webhook_secret"])
	require.NotNil(t, stores.input.Name)
	assert.Equal(t, "Amman Outlet", *stores.input.Name)

	w = doRequest(r, http.MethodGet, "/stores/"+stores.store.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, decode(t, w), "webhook_secret")
}

func TestStores_CreateInvalidBody(t *testing.T) {
	r := newTestEngine()
	r.POST("/stores", HandleCreateStore(&fakeStores{}, zap.NewNop()))

	w := doRequest(r, http.MethodPost, "/stores", []byte(`{"name":`), nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "validation failed", decode(t, w)["error"])
}

func TestStores_InvalidID(t *testing.T) {
	r := newTestEngine()
	r.GET("/stores/:id", HandleGetStore(&fakeStores{}, zap.NewNop()))

	w := doRequest(r, http.MethodGet, "/stores/not-a-uuid", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStores_NotFound(t *testing.T) {
	stores := &fakeStores{err: &errors.ErrNotFound{Resource: "store", ID: "x"}}
	r := newTestEngine()
	r.PUT("/stores/:id", HandleUpdateStore(stores, zap.NewNop()))

	w := doRequest(r, http.MethodPut, "/stores/"+uuid.NewString(), []byte(`{"name":"x"}`), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStores_RotateAndTestConnection(t *testing.T) {
	stores := &fakeStores{store: sampleStore(), secret: "rotated"}
	r := newTestEngine()
	r.POST("/stores/:id/rotate-secret", HandleRotateStoreSecret(stores, zap.NewNop()))
	r.POST("/stores/:id/test-connection", HandleTestStoreConnection(stores, zap.NewNop()))
	id := uuid.NewString()

	w := doRequest(r, http.MethodPost, "/stores/"+id+"/rotate-secret", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "rotated", decode(t, w)["webhook_secret"])

	w = doRequest(r, http.MethodPost, "/stores/"+id+"/test-connection", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["ok"])
	assert.EqualValues(t, 3, body["products"])
}

func TestTempOrders_ListFilters(t *testing.T) {
	orders := &fakeTempOrders{order: sampleTempOrder()}
	r := newTestEngine()
	r.GET("/temp-orders", HandleListTempOrders(orders, zap.NewNop()))
	storeID := uuid.New()

	w := doRequest(r, http.MethodGet, "/temp-orders?status=failed&store_id="+storeID.String()+
		"&date_from=2024-05-01&date_to=2024-06-01T00:00:00Z&search=lina&per_page=10", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, domain.TempOrderStatusFailed, orders.filter.Status)
	require.NotNil(t, orders.filter.StoreID)
	assert.Equal(t, storeID, *orders.filter.StoreID)
	require.NotNil(t, orders.filter.DateFrom)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), *orders.filter.DateFrom)
	require.NotNil(t, orders.filter.DateTo)
	assert.Equal(t, "lina", orders.filter.Search)
	assert.Equal(t, 10, orders.filter.Limit)
	assert.Equal(t, 0, orders.filter.Offset)
}

func TestTempOrders_ListRejectsBadFilters(t *testing.T) {
	r := newTestEngine()
	r.GET("/temp-orders", HandleListTempOrders(&fakeTempOrders{order: sampleTempOrder()}, zap.NewNop()))

	assert.Equal(t, http.StatusUnprocessableEntity, doRequest(r, http.MethodGet, "/temp-orders?status=nope", nil, nil).Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(r, http.MethodGet, "/temp-orders?store_id=nope", nil, nil).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, doRequest(r, http.MethodGet, "/temp-orders?date_from=yesterday", nil, nil).Code)
}

func TestTempOrders_ShowIncludesPayload(t *testing.T) {
	orders := &fakeTempOrders{order: sampleTempOrder()}
	r := newTestEngine()
	r.GET("/temp-orders/:id", HandleGetTempOrder(orders, zap.NewNop()))

	w := doRequest(r, http.MethodGet, "/temp-orders/"+orders.order.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "ord-1", body["external_order_id"])
	assert.Equal(t, "2024-06-01", body["created_day"])
	assert.Equal(t, map[string]interface{}{"id": "ord-1"}, body["payload"])
}

func TestTempOrders_ApproveConflict(t *testing.T) {
	orders := &fakeTempOrders{err: &errors.ErrInvalidStateTransition{
		From: domain.TempOrderStatusImported,
		To:   domain.TempOrderStatusApproved,
	}}
	r := newTestEngine()
	r.POST("/temp-orders/:id/approve", HandleApproveTempOrder(orders, zap.NewNop()))

	w := doRequest(r, http.MethodPost, "/temp-orders/"+uuid.NewString()+"/approve", nil, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestTempOrders_ApproveAndRevalidate(t *testing.T) {
	orders := &fakeTempOrders{order: sampleTempOrder()}
	r := newTestEngine()
	r.POST("/temp-orders/:id/approve", HandleApproveTempOrder(orders, zap.NewNop()))
	r.POST("/temp-orders/:id/revalidate", HandleRevalidateTempOrder(orders, zap.NewNop()))
	id := orders.order.ID.String()

	assert.Equal(t, http.StatusAccepted, doRequest(r, http.MethodPost, "/temp-orders/"+id+"/approve", nil, nil).Code)
	assert.Equal(t, http.StatusAccepted, doRequest(r, http.MethodPost, "/temp-orders/"+id+"/revalidate", nil, nil).Code)
}

func TestTempOrders_BulkApprove(t *testing.T) {
	orders := &fakeTempOrders{}
	r := newTestEngine()
	r.POST("/temp-orders/bulk-approve", HandleBulkApproveTempOrders(orders, zap.NewNop()))
	a, b := uuid.New(), uuid.New()

	payload, err := json.Marshal(map[string]interface{}{"ids": []string{a.String(), b.String()}})
	require.NoError(t, err)

	w := doRequest(r, http.MethodPost, "/temp-orders/bulk-approve", payload, nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []uuid.UUID{a, b}, orders.ids)

	w = doRequest(r, http.MethodPost, "/temp-orders/bulk-approve", []byte(`{"ids":[]}`), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}
