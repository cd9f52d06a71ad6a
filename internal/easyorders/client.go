package easyorders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/jafarshop/easyorders/internal/config"
	"github.com/jafarshop/easyorders/internal/domain"
	"github.com/jafarshop/easyorders/internal/ratelimit"
	"github.com/jafarshop/easyorders/pkg/errors"
)

// StatusConfirmed is pushed back to EasyOrders once an order is imported
const StatusConfirmed = "confirmed"

// Gateway is the outbound EasyOrders API used by the pipeline
type Gateway interface {
	FetchOrderDetails(ctx context.Context, store *domain.Store, externalOrderID string) (json.RawMessage, error)
	FetchProductList(ctx context.Context, store *domain.Store, page int) ([]Product, error)
	UpdateOrderStatus(ctx context.Context, store *domain.Store, externalOrderID, status string) error
}

type Client struct {
	baseURL          string
	orderDetailsPath string
	productsPath     string
	orderStatusPath  string
	orderClient      *http.Client
	productClient    *http.Client
	limiter          ratelimit.Limiter
	logger           *zap.Logger
}

// NewClient creates a new EasyOrders REST client. Every request waits on limiter first.
func NewClient(cfg config.EasyOrdersConfig, limiter ratelimit.Limiter, logger *zap.Logger) *Client {
	// Normalize base URL - remove trailing slashes
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")

	return &Client{
		baseURL:          baseURL,
		orderDetailsPath: strings.Trim(cfg.OrderDetailsPath, "/"),
		productsPath:     strings.Trim(cfg.ProductsPath, "/"),
		orderStatusPath:  strings.Trim(cfg.OrderStatusPath, "/"),
		orderClient: &http.Client{
			Timeout: cfg.OrderTimeout,
		},
		productClient: &http.Client{
			Timeout: cfg.ProductTimeout,
		},
		limiter: limiter,
		logger:  logger,
	}
}

// FetchOrderDetails returns the authoritative order body for externalOrderID.
// Failures are reported as *errors.ErrUpstreamUnavailable; there is no retry here.
func (c *Client) FetchOrderDetails(ctx context.Context, store *domain.Store, externalOrderID string) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, c.orderDetailsPath, url.PathEscape(externalOrderID))

	body, err := c.do(ctx, c.orderClient, store, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	if !json.Valid(body) {
		return nil, &errors.ErrUpstreamUnavailable{
			StatusCode: http.StatusOK,
			Err:        fmt.Errorf("order details response is not valid JSON"),
		}
	}

	return json.RawMessage(body), nil
}

// FetchProductList returns one page of the store's product catalog
func (c *Client) FetchProductList(ctx context.Context, store *domain.Store, page int) ([]Product, error) {
	if page < 1 {
		page = 1
	}
	endpoint := fmt.Sprintf("%s/%s?page=%s", c.baseURL, c.productsPath, strconv.Itoa(page))

	body, err := c.do(ctx, c.productClient, store, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	products, err := parseProductList(body)
	if err != nil {
		return nil, &errors.ErrUpstreamUnavailable{StatusCode: http.StatusOK, Err: err}
	}
	return products, nil
}

// UpdateOrderStatus patches the external order status
func (c *Client) UpdateOrderStatus(ctx context.Context, store *domain.Store, externalOrderID, status string) error {
	path := c.orderStatusPath
	if strings.Contains(path, "%s") {
		path = fmt.Sprintf(path, url.PathEscape(externalOrderID))
	} else {
		path = path + "/" + url.PathEscape(externalOrderID)
	}
	endpoint := fmt.Sprintf("%s/%s", c.baseURL, path)

	payload, err := json.Marshal(map[string]string{"status": status})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	_, err = c.do(ctx, c.orderClient, store, http.MethodPatch, endpoint, payload)
	return err
}

func (c *Client) do(ctx context.Context, httpClient *http.Client, store *domain.Store, method, endpoint string, payload []byte) ([]byte, error) {
	if store == nil || store.APIKey == nil || *store.APIKey == "" {
		return nil, &errors.ErrUpstreamUnavailable{Err: fmt.Errorf("store has no EasyOrders API key")}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &errors.ErrUpstreamUnavailable{Err: fmt.Errorf("rate limiter: %w", err)}
		}
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Api-Key", *store.APIKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		c.logger.Warn("EasyOrders request failed",
			zap.String("method", method),
			zap.String("url", endpoint),
			zap.Error(err),
		)
		return nil, &errors.ErrUpstreamUnavailable{Err: fmt.Errorf("failed to execute request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errors.ErrUpstreamUnavailable{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("EasyOrders API error",
			zap.String("method", method),
			zap.String("url", endpoint),
			zap.Int("status", resp.StatusCode),
		)
		return nil, &errors.ErrUpstreamUnavailable{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("body: %s", truncate(string(body), 512)),
		}
	}

	return body, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
