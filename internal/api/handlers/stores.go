package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/easyorders/internal/domain"
	"github.com/jafarshop/easyorders/internal/repository"
	"github.com/jafarshop/easyorders/internal/service"
)

// StoreAdmin manages EasyOrders stores from the dashboard
type StoreAdmin interface {
	List(ctx context.Context, filter repository.StoreFilter) ([]*domain.Store, int, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Store, error)
	Create(ctx context.Context, input service.StoreInput) (*domain.Store, string, error)
	Update(ctx context.Context, id uuid.UUID, input service.StoreInput) (*domain.Store, error)
	RotateSecret(ctx context.Context, id uuid.UUID) (string, error)
	TestConnection(ctx context.Context, id uuid.UUID) (*service.ConnectionReport, error)
}

// StoreResponse never exposes the API key or the secret hash
type StoreResponse struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name"`
	ExternalStoreID *string                `json:"external_store_id,omitempty"`
	Status          domain.StoreStatus     `json:"status"`
	HasAPIKey       bool                   `json:"has_api_key"`
	Settings        map[string]interface{} `json:"settings"`
	LastSyncAt      *string                `json:"last_sync_at,omitempty"`
	CreatedAt       string                 `json:"created_at"`
	UpdatedAt       string                 `json:"updated_at"`
	WebhookSecret   string                 `json:"webhook_secret,omitempty"`
}

func toStoreResponse(store *domain.Store) StoreResponse {
	resp := StoreResponse{
		ID:              store.ID.String(),
		Name:            store.Name,
		ExternalStoreID: store.ExternalStoreID,
		Status:          store.Status,
		HasAPIKey:       store.APIKey != nil && *store.APIKey != "",
		Settings:        store.Settings,
		CreatedAt:       store.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       store.UpdatedAt.Format(time.RFC3339),
	}
	if store.LastSyncAt != nil {
		lastSync := store.LastSyncAt.Format(time.RFC3339)
		resp.LastSyncAt = &lastSync
	}
	return resp
}

// pagination reads page and per_page, per_page capped at 100
func pagination(c *gin.Context) (limit, offset, page int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return limit, (page - 1) * limit, page
}

func parseIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ID"})
		return uuid.Nil, false
	}
	return id, true
}

// HandleListStores handles GET /v1/dashboard/admin/easyorders/stores
func HandleListStores(stores StoreAdmin, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset, page := pagination(c)

		status := domain.StoreStatus(c.Query("status"))
		if status != "" && !status.IsValid() {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid status"})
			return
		}

		list, total, err := stores.List(c.Request.Context(), repository.StoreFilter{
			Status: status,
			Search: c.Query("search"),
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			respondError(c, logger, err, "Failed to list stores")
			return
		}

		data := make([]StoreResponse, 0, len(list))
		for _, store := range list {
			data = append(data, toStoreResponse(store))
		}

		c.JSON(http.StatusOK, gin.H{
			"data":     data,
			"total":    total,
			"page":     page,
			"per_page": limit,
		})
	}
}

// HandleGetStore handles GET /v1/dashboard/admin/easyorders/stores/:id
func HandleGetStore(stores StoreAdmin, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseIDParam(c)
		if !ok {
			return
		}

		store, err := stores.Get(c.Request.Context(), id)
		if err != nil {
			respondError(c, logger, err, "Failed to get store")
			return
		}
		c.JSON(http.StatusOK, toStoreResponse(store))
	}
}

// HandleCreateStore handles POST /v1/dashboard/admin/easyorders/stores.
// The webhook secret is only ever returned here and by rotate-secret.
func HandleCreateStore(stores StoreAdmin, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input service.StoreInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "validation failed",
				"details": err.Error(),
			})
			return
		}

		store, secret, err := stores.Create(c.Request.Context(), input)
		if err != nil {
			respondError(c, logger, err, "Failed to create store")
			return
		}

		resp := toStoreResponse(store)
		resp.WebhookSecret = secret
		c.JSON(http.StatusCreated, resp)
	}
}

// HandleUpdateStore handles PUT /v1/dashboard/admin/easyorders/stores/:id
func HandleUpdateStore(stores StoreAdmin, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseIDParam(c)
		if !ok {
			return
		}

		var input service.StoreInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "validation failed",
				"details": err.Error(),
			})
			return
		}

		store, err := stores.Update(c.Request.Context(), id, input)
		if err != nil {
			respondError(c, logger, err, "Failed to update store")
			return
		}
		c.JSON(http.StatusOK, toStoreResponse(store))
	}
}

// HandleRotateStoreSecret handles POST /v1/dashboard/admin/easyorders/stores/:id/rotate-secret
func HandleRotateStoreSecret(stores StoreAdmin, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseIDParam(c)
		if !ok {
			return
		}

		secret, err := stores.RotateSecret(c.Request.Context(), id)
		if err != nil {
			respondError(c, logger, err, "Failed to rotate webhook secret")
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"id":             id.String(),
			"webhook_secret": secret,
		})
	}
}

// HandleTestStoreConnection handles POST /v1/dashboard/admin/easyorders/stores/:id/test-connection
func HandleTestStoreConnection(stores StoreAdmin, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseIDParam(c)
		if !ok {
			return
		}

		report, err := stores.TestConnection(c.Request.Context(), id)
		if err != nil {
			respondError(c, logger, err, "Failed to test store connection")
			return
		}
		c.JSON(http.StatusOK, report)
	}
}
