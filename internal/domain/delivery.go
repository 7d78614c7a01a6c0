package domain

import (
	"time"

	"github.com/google/uuid"
)

type DeliveryStatus string

const (
	DeliveryStatusReceived   DeliveryStatus = "received"
	DeliveryStatusProcessing DeliveryStatus = "processing"
	DeliveryStatusSuccess    DeliveryStatus = "success"
	DeliveryStatusFailed     DeliveryStatus = "failed"
	DeliveryStatusDuplicate  DeliveryStatus = "duplicate"
)

// WebhookDelivery is the ledger row recorded for every webhook Shopify
// delivers. DeliveryID is the upstream X-Shopify-Webhook-Id and carries a
// unique constraint; it is the sole idempotency control for the pipeline.
type WebhookDelivery struct {
	ID               uuid.UUID
	DeliveryID       string
	Topic            string
	ShopDomain       string
	Status           DeliveryStatus
	PayloadDigest    string
	Payload          []byte
	ErrorMessage     string
	Attempts         int
	NextAttemptAt    time.Time
	ProcessingTimeMs *int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
