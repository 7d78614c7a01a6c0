package domain

import (
	"time"

	"github.com/google/uuid"
)

// TenantConfig is the per-shop connection record. It is owned by
// configuration management; this service only ever reads it.
type TenantConfig struct {
	ID             uuid.UUID
	StoreID        uuid.UUID
	RetailerID     uuid.UUID
	ShopDomain     string
	AccessToken    string
	WebhookSecret  string
	APIVersion     string
	SyncInventory  bool
	SyncPromotions bool
	Extra          map[string]any
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PromoRetailer returns the retailer name used for promotion batch
// operations: the extra_data override when present, else the store ID.
func (c *TenantConfig) PromoRetailer() string {
	if v, ok := c.Extra["promo_retailer"].(string); ok && v != "" {
		return v
	}
	return c.StoreID.String()
}

// AdminBaseURL is the versioned Shopify Admin API root for this shop.
func (c *TenantConfig) AdminBaseURL() string {
	return "https://" + c.ShopDomain + "/admin/api/" + c.APIVersion
}
