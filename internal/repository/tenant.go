package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/retailops/shopify-sync/internal/domain"
)

type TenantRepository struct {
	db *sql.DB
}

func NewTenantRepository(db *sql.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// GetActiveByDomain resolves a shop domain to its active tenant config.
// Inactive tenants are treated as unknown.
func (r *TenantRepository) GetActiveByDomain(ctx context.Context, shopDomain string) (*domain.TenantConfig, error) {
	var (
		t        domain.TenantConfig
		extraRaw []byte
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, store_id, retailer_id, shop_domain, access_token, webhook_secret,
			api_version, sync_inventory, sync_promotions, extra, is_active,
			created_at, updated_at
		FROM tenant_configs
		WHERE shop_domain = $1 AND is_active = TRUE`,
		shopDomain,
	).Scan(
		&t.ID, &t.StoreID, &t.RetailerID, &t.ShopDomain, &t.AccessToken,
		&t.WebhookSecret, &t.APIVersion, &t.SyncInventory, &t.SyncPromotions,
		&extraRaw, &t.IsActive, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetActiveByDomain: %w", err)
	}

	if len(extraRaw) > 0 {
		if err := json.Unmarshal(extraRaw, &t.Extra); err != nil {
			return nil, fmt.Errorf("GetActiveByDomain: extra: %w", err)
		}
	}
	return &t, nil
}
