package handler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/retailops/shopify-sync/internal/domain"
	"github.com/retailops/shopify-sync/internal/logging"
	"github.com/retailops/shopify-sync/internal/metrics"
	"github.com/retailops/shopify-sync/internal/signature"
)

// Shopify webhook request headers.
const (
	HeaderShopDomain = "X-Shopify-Shop-Domain"
	HeaderHmac       = "X-Shopify-Hmac-Sha256"
	HeaderTopic      = "X-Shopify-Topic"
	HeaderWebhookID  = "X-Shopify-Webhook-Id"
)

const maxBodyBytes = 1 << 20

type deliveryStore interface {
	Insert(ctx context.Context, d *domain.WebhookDelivery) error
}

type tenantStore interface {
	GetActiveByDomain(ctx context.Context, shopDomain string) (*domain.TenantConfig, error)
}

type waker interface {
	Notify()
}

// IntakeHandler is one topic-scoped webhook endpoint. It runs the intake
// checks in a fixed order (tenant, signature, webhook id, topic, ledger
// insert) and acknowledges duplicates without reprocessing them.
type IntakeHandler struct {
	tenants    tenantStore
	deliveries deliveryStore
	dispatcher waker
	allowed    map[string]struct{}
}

func NewIntakeHandler(tenants tenantStore, deliveries deliveryStore, dispatcher waker, allowedTopics []string) *IntakeHandler {
	allowed := make(map[string]struct{}, len(allowedTopics))
	for _, t := range allowedTopics {
		allowed[t] = struct{}{}
	}
	return &IntakeHandler{
		tenants:    tenants,
		deliveries: deliveries,
		dispatcher: dispatcher,
		allowed:    allowed,
	}
}

func (h *IntakeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	shopDomain := r.Header.Get(HeaderShopDomain)
	if shopDomain == "" {
		RespondAppError(w, ErrMissingShopDomain)
		return
	}

	tenant, err := h.tenants.GetActiveByDomain(r.Context(), shopDomain)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn("no active config for shop domain", "shop_domain", shopDomain)
			RespondAppError(w, ErrUnknownShopDomain)
			return
		}
		log.Error("tenant lookup failed", "shop_domain", shopDomain, "error", err)
		RespondAppError(w, ErrInternalError)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		log.Error("failed to read webhook body", "error", err)
		RespondAppError(w, ErrInvalidRequest)
		return
	}

	if !signature.Verify(body, r.Header.Get(HeaderHmac), tenant.WebhookSecret) {
		log.Warn("webhook signature verification failed", "shop_domain", shopDomain)
		RespondAppError(w, ErrInvalidSignature)
		return
	}

	deliveryID := r.Header.Get(HeaderWebhookID)
	if deliveryID == "" {
		RespondAppError(w, ErrMissingWebhookID)
		return
	}

	topic := r.Header.Get(HeaderTopic)
	if _, ok := h.allowed[topic]; !ok {
		log.Warn("topic not allowed on this endpoint", "topic", topic)
		RespondAppError(w, ErrTopicNotAllowed)
		return
	}

	digest := sha256.Sum256(body)
	now := time.Now().UTC()
	delivery := &domain.WebhookDelivery{
		ID:            uuid.New(),
		DeliveryID:    deliveryID,
		Topic:         topic,
		ShopDomain:    shopDomain,
		Status:        domain.DeliveryStatusReceived,
		PayloadDigest: hex.EncodeToString(digest[:]),
		Payload:       body,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := h.deliveries.Insert(r.Context(), delivery); err != nil {
		if errors.Is(err, domain.ErrDuplicateDelivery) {
			// Ledger insert doubles as the idempotency gate: the unique
			// constraint rejecting the row is the duplicate signal.
			log.Info("duplicate webhook delivery acknowledged",
				"delivery_id", deliveryID, "topic", topic)
			metrics.DeliveriesDuplicate.WithLabelValues(topic).Inc()
			RespondSuccess(w, http.StatusOK, map[string]string{"status": "duplicate"})
			return
		}
		log.Error("failed to record webhook delivery", "error", err)
		RespondAppError(w, ErrInternalError)
		return
	}

	metrics.DeliveriesReceived.WithLabelValues(topic).Inc()
	h.dispatcher.Notify()

	log.Info("webhook delivery recorded",
		"delivery_id", deliveryID,
		"topic", topic,
		"shop_domain", shopDomain,
	)
	RespondSuccess(w, http.StatusOK, map[string]string{"status": "received"})
}
