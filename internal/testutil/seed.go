package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/retailops/shopify-sync/internal/domain"
)

func SeedTenant(t *testing.T, db *sql.DB, shopDomain, secret string) *domain.TenantConfig {
	t.Helper()

	c := &domain.TenantConfig{
		ID:             uuid.New(),
		StoreID:        uuid.New(),
		RetailerID:     uuid.New(),
		ShopDomain:     shopDomain,
		AccessToken:    "shpat_test",
		WebhookSecret:  secret,
		APIVersion:     "2024-07",
		SyncInventory:  true,
		SyncPromotions: true,
		IsActive:       true,
		CreatedAt:      time.Now().UTC(),
	}

	_, err := db.Exec(
		`INSERT INTO tenant_configs (id, store_id, retailer_id, shop_domain, access_token, webhook_secret, api_version, sync_inventory, sync_promotions, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.StoreID, c.RetailerID, c.ShopDomain, c.AccessToken, c.WebhookSecret, c.APIVersion, c.SyncInventory, c.SyncPromotions, c.IsActive, c.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed tenant %s: %v", shopDomain, err)
	}
	return c
}

func GetDeliveryStatus(t *testing.T, db *sql.DB, deliveryID string) domain.DeliveryStatus {
	t.Helper()

	var status domain.DeliveryStatus
	err := db.QueryRow(`SELECT status FROM webhook_deliveries WHERE delivery_id = $1`, deliveryID).Scan(&status)
	if err != nil {
		t.Fatalf("get delivery status %s: %v", deliveryID, err)
	}
	return status
}

func CountDeliveries(t *testing.T, db *sql.DB, deliveryID string) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM webhook_deliveries WHERE delivery_id = $1`, deliveryID).Scan(&count)
	if err != nil {
		t.Fatalf("count deliveries %s: %v", deliveryID, err)
	}
	return count
}
