package inventory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheKeyPrefix = "shopify:inv_item"
	cacheTTL       = 24 * time.Hour
)

// BarcodeCache maps inventory item IDs to barcodes per shop. Product
// webhooks populate it proactively so stock-level webhooks usually
// resolve without a catalog API call.
type BarcodeCache struct {
	rdb *redis.Client
}

func NewBarcodeCache(rdb *redis.Client) *BarcodeCache {
	return &BarcodeCache{rdb: rdb}
}

func cacheKey(shopDomain string, inventoryItemID int64) string {
	return cacheKeyPrefix + ":" + shopDomain + ":" + strconv.FormatInt(inventoryItemID, 10)
}

// Get returns the cached barcode, or "" on a miss.
func (c *BarcodeCache) Get(ctx context.Context, shopDomain string, inventoryItemID int64) (string, error) {
	barcode, err := c.rdb.Get(ctx, cacheKey(shopDomain, inventoryItemID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("BarcodeCache.Get: %w", err)
	}
	return barcode, nil
}

func (c *BarcodeCache) Set(ctx context.Context, shopDomain string, inventoryItemID int64, barcode string) error {
	if err := c.rdb.Set(ctx, cacheKey(shopDomain, inventoryItemID), barcode, cacheTTL).Err(); err != nil {
		return fmt.Errorf("BarcodeCache.Set: %w", err)
	}
	return nil
}
