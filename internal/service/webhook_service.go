package service

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/easyorders/internal/config"
	"github.com/jafarshop/easyorders/internal/domain"
	"github.com/jafarshop/easyorders/internal/easyorders"
	"github.com/jafarshop/easyorders/internal/repository"
	"github.com/jafarshop/easyorders/pkg/errors"
)

// SecretHeader carries the per-store webhook secret
const SecretHeader = "secret"

const fetchFailedReason = "Failed to fetch order details from EasyOrders: "

// IngestRequest is one inbound webhook call
type IngestRequest struct {
	Payload  []byte
	Secret   string
	ClientIP string
}

type webhookService struct {
	cfg       config.EasyOrdersConfig
	repos     *repository.Repositories
	tx        repository.TxManager
	gateway   easyorders.Gateway
	allowlist []*net.IPNet
	logger    *zap.Logger
	now       func() time.Time
}

// NewWebhookService creates the intake service for EasyOrders order webhooks
func NewWebhookService(cfg config.EasyOrdersConfig, repos *repository.Repositories, tx repository.TxManager, gateway easyorders.Gateway, logger *zap.Logger) *webhookService {
	return &webhookService{
		cfg:       cfg,
		repos:     repos,
		tx:        tx,
		gateway:   gateway,
		allowlist: parseAllowlist(cfg.IPAllowlist, logger),
		logger:    logger,
		now:       time.Now,
	}
}

// parseAllowlist accepts single addresses and CIDR ranges; invalid entries are skipped
func parseAllowlist(entries []string, logger *zap.Logger) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		if !strings.Contains(entry, "/") {
			if ip := net.ParseIP(entry); ip != nil {
				bits := 8 * net.IPv6len
				if ip.To4() != nil {
					ip = ip.To4()
					bits = 8 * net.IPv4len
				}
				nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
				continue
			}
		} else if _, ipNet, err := net.ParseCIDR(entry); err == nil {
			nets = append(nets, ipNet)
			continue
		}
		logger.Warn("Ignoring invalid allowlist entry", zap.String("entry", entry))
	}
	return nets
}

// IsIPAllowed reports whether clientIP may call the webhook. An empty allowlist allows everyone.
func (s *webhookService) IsIPAllowed(clientIP string) bool {
	if len(s.cfg.IPAllowlist) == 0 {
		return true
	}
	ip := net.ParseIP(strings.TrimSpace(clientIP))
	if ip == nil {
		return false
	}
	for _, n := range s.allowlist {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Ingest stages one webhook order. Duplicate deliveries return the existing
// staging order without contacting EasyOrders again.
func (s *webhookService) Ingest(ctx context.Context, req IngestRequest) (*domain.TempOrder, error) {
	if !s.IsIPAllowed(req.ClientIP) {
		return nil, &errors.ErrForbidden{Message: "IP address not allowed"}
	}

	store, err := s.repos.Store.GetByWebhookSecret(ctx, req.Secret)
	if err != nil {
		return nil, err
	}

	externalOrderID, err := ExternalOrderID(req.Payload)
	if err != nil {
		return nil, &errors.ErrInvalidPayload{Field: "id", Message: err.Error()}
	}
	if externalOrderID == "" {
		return nil, &errors.ErrInvalidPayload{Field: "id", Message: "missing order id"}
	}

	existing, err := s.repos.TempOrder.FindByExternalID(ctx, store.ID, externalOrderID)
	if err == nil {
		s.logger.Info("Duplicate webhook",
			zap.String("store_id", store.ID.String()),
			zap.String("external_order_id", externalOrderID),
			zap.String("temp_order_id", existing.ID.String()),
		)
		return existing, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	// the fetch stays outside the transaction so no row lock is held across the network call
	payload, fetchErr := s.gateway.FetchOrderDetails(ctx, store, externalOrderID)
	order := s.buildTempOrder(store, externalOrderID, req.Payload, payload, fetchErr)

	err = s.tx.WithinTx(ctx, func(repos *repository.Repositories) error {
		if err := repos.TempOrder.Create(ctx, order); err != nil {
			return err
		}

		switch order.Status {
		case domain.TempOrderStatusWaitingPayment:
			return enqueue(ctx, repos, domain.TaskKindWaitPayment, order.ID, s.now().Add(s.cfg.OnlinePaymentPollInterval))
		case domain.TempOrderStatusPending:
			return enqueue(ctx, repos, domain.TaskKindValidate, order.ID, s.now())
		default:
			return nil
		}
	})
	if _, ok := err.(*errors.ErrDuplicate); ok {
		// a concurrent delivery of the same order won the insert
		return s.repos.TempOrder.FindByExternalID(ctx, store.ID, externalOrderID)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("Staged EasyOrders order",
		zap.String("store_id", store.ID.String()),
		zap.String("external_order_id", externalOrderID),
		zap.String("temp_order_id", order.ID.String()),
		zap.String("status", string(order.Status)),
	)
	return order, nil
}

// buildTempOrder picks the initial status. A failed fetch stages the webhook
// body as import_failed so an admin can still approve it.
func (s *webhookService) buildTempOrder(store *domain.Store, externalOrderID string, webhookBody, fetched []byte, fetchErr error) *domain.TempOrder {
	now := s.now()
	order := &domain.TempOrder{
		StoreID:         store.ID,
		ExternalOrderID: externalOrderID,
		Payload:         fetched,
	}

	if fetchErr != nil {
		s.logger.Warn("Failed to fetch order details",
			zap.String("store_id", store.ID.String()),
			zap.String("external_order_id", externalOrderID),
			zap.Error(fetchErr),
		)
		order.Payload = webhookBody
		order.Status = domain.TempOrderStatusImportFailed
		order.SetFailureReason(fetchFailedReason + fetchErr.Error())
	}

	normalized, err := NormalizeAt(order.Payload, externalOrderID, now)
	if err != nil {
		s.logger.Warn("Failed to normalize order",
			zap.String("external_order_id", externalOrderID),
			zap.Error(err),
		)
		normalized = &domain.NormalizedOrder{
			ExternalOrderID: externalOrderID,
			Timestamps:      domain.NormalizedTimestamps{CreatedDay: now.Format(domain.DayLayout)},
			Items:           []domain.NormalizedItem{},
		}
		if order.Status == "" {
			order.Status = domain.TempOrderStatusImportFailed
			order.SetFailureReason(fmt.Sprintf("Failed to parse order details: %v", err))
		}
	}
	order.ApplyNormalized(normalized)

	if order.Status != "" {
		return order
	}

	if s.awaitsPayment(normalized) {
		deadline := now.Add(s.cfg.OnlinePaymentTimeout)
		order.Status = domain.TempOrderStatusWaitingPayment
		order.PaymentPollDeadline = &deadline
		return order
	}

	order.Status = domain.TempOrderStatusPending
	return order
}

func (s *webhookService) awaitsPayment(n *domain.NormalizedOrder) bool {
	return s.cfg.WaitForOnlinePayment &&
		!domain.IsCashOnDelivery(n.PaymentMethod) &&
		n.Status == domain.ExternalStatusPendingPayment
}

// RecordCall writes the webhook log row of one inbound call. Failures are logged, never returned.
func (s *webhookService) RecordCall(ctx context.Context, storeID *uuid.UUID, headers http.Header, body []byte, status int, callErr error) {
	entry := &domain.WebhookLog{
		StoreID:        storeID,
		RequestHeaders: redactHeaders(headers),
		RequestBody:    string(body),
		HTTPStatus:     status,
	}
	if callErr != nil {
		msg := callErr.Error()
		entry.Error = &msg
	}

	if err := s.repos.WebhookLog.Create(ctx, entry); err != nil {
		s.logger.Error("Failed to write webhook log", zap.Int("status", status), zap.Error(err))
	}
}

func redactHeaders(headers http.Header) map[string][]string {
	out := make(map[string][]string, len(headers))
	for key, values := range headers {
		if strings.EqualFold(key, SecretHeader) || strings.EqualFold(key, "Authorization") {
			out[key] = []string{"[redacted]"}
			continue
		}
		out[key] = append([]string(nil), values...)
	}
	return out
}
