package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jafarshop/easyorders/internal/domain"
	"github.com/jafarshop/easyorders/internal/repository"
	"github.com/jafarshop/easyorders/internal/service"
)

// TempOrderAdmin reviews staged orders from the dashboard
type TempOrderAdmin interface {
	List(ctx context.Context, filter repository.TempOrderFilter) ([]*domain.TempOrder, int, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.TempOrder, error)
	Approve(ctx context.Context, id uuid.UUID) (*domain.TempOrder, error)
	BulkApprove(ctx context.Context, ids []uuid.UUID) (*service.BulkApproveResult, error)
	Revalidate(ctx context.Context, id uuid.UUID) (*domain.TempOrder, error)
}

// BulkApproveRequest is the body of the bulk approve endpoint
type BulkApproveRequest struct {
	IDs []uuid.UUID `json:"ids" binding:"required,min=1,max=100"`
}

// TempOrderResponse is the list view of a staged order
type TempOrderResponse struct {
	ID                  string                 `json:"id"`
	StoreID             string                 `json:"store_id"`
	ExternalOrderID     string                 `json:"external_order_id"`
	ShortID             *string                `json:"short_id,omitempty"`
	Status              domain.TempOrderStatus `json:"status"`
	FailureReason       *string                `json:"failure_reason,omitempty"`
	Cost                *decimal.Decimal       `json:"cost,omitempty"`
	ShippingCost        *decimal.Decimal       `json:"shipping_cost,omitempty"`
	TotalCost           *decimal.Decimal       `json:"total_cost,omitempty"`
	CustomerName        string                 `json:"customer_name"`
	CustomerPhone       string                 `json:"customer_phone"`
	Government          string                 `json:"government"`
	PaymentMethod       string                 `json:"payment_method"`
	CreatedDay          string                 `json:"created_day"`
	PaymentPollDeadline *string                `json:"payment_poll_deadline,omitempty"`
	ImportedOrderID     *string                `json:"imported_order_id,omitempty"`
	CreatedAt           string                 `json:"created_at"`
	UpdatedAt           string                 `json:"updated_at"`
}

// TempOrderDetailResponse adds the raw payload and the annotated normalized order
type TempOrderDetailResponse struct {
	TempOrderResponse
	Address    string                  `json:"address"`
	IP         string                  `json:"ip"`
	IPCountry  string                  `json:"ip_country"`
	Payload    json.RawMessage         `json:"payload"`
	Normalized *domain.NormalizedOrder `json:"normalized"`
}

func nullableDecimal(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	return &d.Decimal
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func toTempOrderResponse(order *domain.TempOrder) TempOrderResponse {
	resp := TempOrderResponse{
		ID:                  order.ID.String(),
		StoreID:             order.StoreID.String(),
		ExternalOrderID:     order.ExternalOrderID,
		ShortID:             order.ShortID,
		Status:              order.Status,
		FailureReason:       order.FailureReason,
		Cost:                nullableDecimal(order.Cost),
		ShippingCost:        nullableDecimal(order.ShippingCost),
		TotalCost:           nullableDecimal(order.TotalCost),
		CustomerName:        order.CustomerName,
		CustomerPhone:       order.CustomerPhone,
		Government:          order.Government,
		PaymentMethod:       order.PaymentMethod,
		CreatedDay:          order.CreatedDay.Format(domain.DayLayout),
		PaymentPollDeadline: formatTime(order.PaymentPollDeadline),
		CreatedAt:           order.CreatedAt.Format(time.RFC3339),
		UpdatedAt:           order.UpdatedAt.Format(time.RFC3339),
	}
	if order.ImportedOrderID != nil {
		imported := order.ImportedOrderID.String()
		resp.ImportedOrderID = &imported
	}
	return resp
}

// parseDay accepts a calendar day or an RFC3339 timestamp
func parseDay(raw string) (*time.Time, bool) {
	if raw == "" {
		return nil, true
	}
	if t, err := time.Parse(domain.DayLayout, raw); err == nil {
		return &t, true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, true
	}
	return nil, false
}

// HandleListTempOrders handles GET /v1/dashboard/admin/easyorders/temp-orders
func HandleListTempOrders(orders TempOrderAdmin, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset, page := pagination(c)

		filter := repository.TempOrderFilter{
			Search: c.Query("search"),
			Limit:  limit,
			Offset: offset,
		}

		if status := c.Query("status"); status != "" {
			filter.Status = domain.TempOrderStatus(status)
			if !filter.Status.IsValid() {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid status"})
				return
			}
		}

		if raw := c.Query("store_id"); raw != "" {
			storeID, err := uuid.Parse(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid store ID"})
				return
			}
			filter.StoreID = &storeID
		}

		var ok bool
		if filter.DateFrom, ok = parseDay(c.Query("date_from")); !ok {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid date_from"})
			return
		}
		if filter.DateTo, ok = parseDay(c.Query("date_to")); !ok {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid date_to"})
			return
		}

		list, total, err := orders.List(c.Request.Context(), filter)
		if err != nil {
			respondError(c, logger, err, "Failed to list temp orders")
			return
		}

		data := make([]TempOrderResponse, 0, len(list))
		for _, order := range list {
			data = append(data, toTempOrderResponse(order))
		}

		c.JSON(http.StatusOK, gin.H{
			"data":     data,
			"total":    total,
			"page":     page,
			"per_page": limit,
		})
	}
}

// HandleGetTempOrder handles GET /v1/dashboard/admin/easyorders/temp-orders/:id
func HandleGetTempOrder(orders TempOrderAdmin, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseIDParam(c)
		if !ok {
			return
		}

		order, err := orders.Get(c.Request.Context(), id)
		if err != nil {
			respondError(c, logger, err, "Failed to get temp order")
			return
		}

		c.JSON(http.StatusOK, TempOrderDetailResponse{
			TempOrderResponse: toTempOrderResponse(order),
			Address:           order.Address,
			IP:                order.IP,
			IPCountry:         order.IPCountry,
			Payload:           order.Payload,
			Normalized:        order.Normalized,
		})
	}
}

// HandleApproveTempOrder handles POST /v1/dashboard/admin/easyorders/temp-orders/:id/approve
func HandleApproveTempOrder(orders TempOrderAdmin, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseIDParam(c)
		if !ok {
			return
		}

		order, err := orders.Approve(c.Request.Context(), id)
		if err != nil {
			respondError(c, logger, err, "Failed to approve temp order")
			return
		}
		c.JSON(http.StatusAccepted, toTempOrderResponse(order))
	}
}

// HandleBulkApproveTempOrders handles POST /v1/dashboard/admin/easyorders/temp-orders/bulk-approve
func HandleBulkApproveTempOrders(orders TempOrderAdmin, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req BulkApproveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "validation failed",
				"details": err.Error(),
			})
			return
		}

		result, err := orders.BulkApprove(c.Request.Context(), req.IDs)
		if err != nil {
			respondError(c, logger, err, "Failed to bulk approve temp orders")
			return
		}
		c.JSON(http.StatusAccepted, result)
	}
}

// HandleRevalidateTempOrder handles POST /v1/dashboard/admin/easyorders/temp-orders/:id/revalidate
func HandleRevalidateTempOrder(orders TempOrderAdmin, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseIDParam(c)
		if !ok {
			return
		}

		order, err := orders.Revalidate(c.Request.Context(), id)
		if err != nil {
			respondError(c, logger, err, "Failed to revalidate temp order")
			return
		}
		c.JSON(http.StatusAccepted, toTempOrderResponse(order))
	}
}
