package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/retailops/shopify-sync/internal/dispatch"
	"github.com/retailops/shopify-sync/internal/domain"
	"github.com/retailops/shopify-sync/internal/logging"
	"github.com/retailops/shopify-sync/internal/shopify"
)

type tenantStore interface {
	GetActiveByDomain(ctx context.Context, shopDomain string) (*domain.TenantConfig, error)
}

type catalogClient interface {
	GetInventoryItemSKU(ctx context.Context, tenant *domain.TenantConfig, inventoryItemID string) (string, error)
}

// Handlers owns the inventory sync topics: barcode-cache maintenance
// from product webhooks and stock-level pushes from inventory-level
// webhooks.
type Handlers struct {
	tenants tenantStore
	catalog catalogClient
	cache   *BarcodeCache
	stock   *ServiceClient
}

func NewHandlers(tenants tenantStore, catalog catalogClient, cache *BarcodeCache, stock *ServiceClient) *Handlers {
	return &Handlers{tenants: tenants, catalog: catalog, cache: cache, stock: stock}
}

func (h *Handlers) Register(reg *dispatch.Registry) {
	reg.Register("products/create", h.ProductChange)
	reg.Register("products/update", h.ProductChange)
	reg.Register("products/delete", h.ProductDelete)
	reg.Register("inventory_levels/update", h.InventoryLevelUpdate)
}

func (h *Handlers) tenantFor(ctx context.Context, delivery *domain.WebhookDelivery) (*domain.TenantConfig, error) {
	tenant, err := h.tenants.GetActiveByDomain(ctx, delivery.ShopDomain)
	if err != nil {
		return nil, fmt.Errorf("tenantFor: %s: %w", delivery.ShopDomain, err)
	}
	if !tenant.SyncInventory {
		logging.FromContext(ctx).Info("inventory sync disabled for shop, skipping",
			"shop_domain", delivery.ShopDomain, "topic", delivery.Topic)
		return nil, nil
	}
	return tenant, nil
}

// ProductChange caches inventory item to barcode mappings from the
// product payload so later stock-level webhooks resolve without a
// catalog call. Cache write failures are logged, not fatal: the
// stock-level path falls back to the catalog API.
func (h *Handlers) ProductChange(ctx context.Context, delivery *domain.WebhookDelivery) error {
	tenant, err := h.tenantFor(ctx, delivery)
	if err != nil || tenant == nil {
		return err
	}

	var product shopify.Product
	if err := json.Unmarshal(delivery.Payload, &product); err != nil {
		return domain.Permanent(fmt.Errorf("ProductChange: parse payload: %w", err))
	}

	log := logging.FromContext(ctx)
	cached := 0
	for _, variant := range product.Variants {
		if variant.InventoryItemID == 0 {
			continue
		}
		barcode := variantBarcode(variant)
		if barcode == "" {
			continue
		}
		if err := h.cache.Set(ctx, tenant.ShopDomain, variant.InventoryItemID, barcode); err != nil {
			log.Error("barcode cache write failed", "inventory_item_id", variant.InventoryItemID, "error", err)
			continue
		}
		cached++
	}

	log.Info("cached variant barcode mappings",
		"product_id", product.ID, "cached", cached, "shop_domain", delivery.ShopDomain)
	return nil
}

// ProductDelete zero-stocks every known variant of the deleted product.
// Shopify sends only the product id on this topic, so the existing
// variants come from the inventory service itself. A proper delete
// waits on a delete endpoint downstream.
func (h *Handlers) ProductDelete(ctx context.Context, delivery *domain.WebhookDelivery) error {
	tenant, err := h.tenantFor(ctx, delivery)
	if err != nil || tenant == nil {
		return err
	}

	var payload struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(delivery.Payload, &payload); err != nil {
		return domain.Permanent(fmt.Errorf("ProductDelete: parse payload: %w", err))
	}
	if payload.ID == 0 {
		return domain.Permanent(fmt.Errorf("ProductDelete: missing product id"))
	}

	log := logging.FromContext(ctx)
	productID := strconv.FormatInt(payload.ID, 10)

	variants, err := h.stock.ListVariantsByProduct(ctx, tenant.StoreID.String(), productID)
	if err != nil {
		return fmt.Errorf("ProductDelete: %w", err)
	}
	if len(variants) == 0 {
		log.Warn("no inventory items found for deleted product",
			"product_id", productID, "shop_domain", delivery.ShopDomain)
		return nil
	}

	items := make([]StockItem, 0, len(variants))
	for _, v := range variants {
		if len(v.Barcodes) == 0 {
			continue
		}
		items = append(items, StockItem{
			Operation:  "upsert",
			Barcodes:   v.Barcodes,
			StockLevel: 0,
		})
	}
	if len(items) == 0 {
		log.Warn("no barcodes found for deleted product",
			"product_id", productID, "shop_domain", delivery.ShopDomain)
		return nil
	}

	if err := h.stock.UpdateStock(ctx, tenant.StoreID.String(), tenant.RetailerID.String(), items); err != nil {
		return fmt.Errorf("ProductDelete: %w", err)
	}

	log.Info("zeroed stock for deleted product",
		"product_id", productID, "variants", len(items), "shop_domain", delivery.ShopDomain)
	return nil
}

func (h *Handlers) InventoryLevelUpdate(ctx context.Context, delivery *domain.WebhookDelivery) error {
	tenant, err := h.tenantFor(ctx, delivery)
	if err != nil || tenant == nil {
		return err
	}

	var level shopify.InventoryLevel
	if err := json.Unmarshal(delivery.Payload, &level); err != nil {
		return domain.Permanent(fmt.Errorf("InventoryLevelUpdate: parse payload: %w", err))
	}
	if level.InventoryItemID == 0 {
		return domain.Permanent(fmt.Errorf("InventoryLevelUpdate: missing inventory_item_id"))
	}

	log := logging.FromContext(ctx)

	// Null means inventory tracking is off for the item.
	if level.Available == nil {
		log.Info("skipping stock update with null available",
			"inventory_item_id", level.InventoryItemID, "shop_domain", delivery.ShopDomain)
		return nil
	}

	barcode, err := h.resolveBarcode(ctx, tenant, level.InventoryItemID)
	if err != nil {
		return fmt.Errorf("InventoryLevelUpdate: %w", err)
	}

	available := *level.Available
	if available < 0 {
		available = 0
	}

	err = h.stock.UpdateStock(ctx, tenant.StoreID.String(), tenant.RetailerID.String(), []StockItem{{
		Operation:  "upsert",
		Barcodes:   []string{barcode},
		StockLevel: available,
	}})
	if err != nil {
		return fmt.Errorf("InventoryLevelUpdate: %w", err)
	}

	log.Info("stock level updated",
		"barcode", barcode, "stock_level", available,
		"inventory_item_id", level.InventoryItemID, "shop_domain", delivery.ShopDomain)
	return nil
}

// resolveBarcode checks the cache first, then falls back to the catalog
// inventory item endpoint, caching whatever it finds.
func (h *Handlers) resolveBarcode(ctx context.Context, tenant *domain.TenantConfig, inventoryItemID int64) (string, error) {
	barcode, err := h.cache.Get(ctx, tenant.ShopDomain, inventoryItemID)
	if err != nil {
		logging.FromContext(ctx).Error("barcode cache read failed", "inventory_item_id", inventoryItemID, "error", err)
	}
	if barcode != "" {
		return barcode, nil
	}

	id := strconv.FormatInt(inventoryItemID, 10)
	sku, err := h.catalog.GetInventoryItemSKU(ctx, tenant, id)
	if err != nil {
		return "", fmt.Errorf("resolveBarcode: %w", err)
	}
	if sku == "" {
		sku = id
	}

	if err := h.cache.Set(ctx, tenant.ShopDomain, inventoryItemID, sku); err != nil {
		logging.FromContext(ctx).Error("barcode cache write failed", "inventory_item_id", inventoryItemID, "error", err)
	}
	return sku, nil
}

// variantBarcode applies the identifier fallback chain for a variant.
func variantBarcode(v shopify.Variant) string {
	if v.Barcode != "" {
		return v.Barcode
	}
	if v.SKU != "" {
		return v.SKU
	}
	if v.ID != 0 {
		return strconv.FormatInt(v.ID, 10)
	}
	return ""
}
