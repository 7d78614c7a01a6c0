package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/retailops/shopify-sync/internal/domain"
)

// StatusError is returned for any non-2xx Admin API response. The retry
// layer inspects Code to tell rate limits and outages from hard failures.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("shopify: status %d from %s", e.Code, e.URL)
}

// HTTPStatus exposes the response code to the retry classifier.
func (e *StatusError) HTTPStatus() int { return e.Code }

// IsRateLimited reports whether err is a Shopify 429 response.
func IsRateLimited(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusTooManyRequests
}

// Client talks to the Shopify Admin REST API on behalf of a tenant. All
// calls carry the tenant's access token and a bounded timeout.
type Client struct {
	httpClient *http.Client
}

func NewClient(timeout time.Duration) *Client {
	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

func (c *Client) getJSON(ctx context.Context, tenant *domain.TenantConfig, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("getJSON: build request: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", tenant.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("getJSON: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, URL: url}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("getJSON: decode %s: %w", url, err)
	}
	return nil
}

// GetProductVariants fetches one product and returns its variants.
func (c *Client) GetProductVariants(ctx context.Context, tenant *domain.TenantConfig, productID string) ([]Variant, error) {
	var body struct {
		Product struct {
			Variants []Variant `json:"variants"`
		} `json:"product"`
	}
	url := fmt.Sprintf("%s/products/%s.json", tenant.AdminBaseURL(), productID)
	if err := c.getJSON(ctx, tenant, url, &body); err != nil {
		return nil, err
	}
	return body.Product.Variants, nil
}

// GetVariant fetches a single variant.
func (c *Client) GetVariant(ctx context.Context, tenant *domain.TenantConfig, variantID string) (*Variant, error) {
	var body struct {
		Variant Variant `json:"variant"`
	}
	url := fmt.Sprintf("%s/variants/%s.json", tenant.AdminBaseURL(), variantID)
	if err := c.getJSON(ctx, tenant, url, &body); err != nil {
		return nil, err
	}
	return &body.Variant, nil
}

// GetCollectionProductIDs lists the IDs of every product in a collection.
func (c *Client) GetCollectionProductIDs(ctx context.Context, tenant *domain.TenantConfig, collectionID string) ([]string, error) {
	var body struct {
		Products []struct {
			ID int64 `json:"id"`
		} `json:"products"`
	}
	url := fmt.Sprintf("%s/collections/%s/products.json", tenant.AdminBaseURL(), collectionID)
	if err := c.getJSON(ctx, tenant, url, &body); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(body.Products))
	for _, p := range body.Products {
		ids = append(ids, fmt.Sprintf("%d", p.ID))
	}
	return ids, nil
}

// GetInventoryItemSKU resolves an inventory item to its SKU.
func (c *Client) GetInventoryItemSKU(ctx context.Context, tenant *domain.TenantConfig, inventoryItemID string) (string, error) {
	var body struct {
		InventoryItem struct {
			SKU string `json:"sku"`
		} `json:"inventory_item"`
	}
	url := fmt.Sprintf("%s/inventory_items/%s.json", tenant.AdminBaseURL(), inventoryItemID)
	if err := c.getJSON(ctx, tenant, url, &body); err != nil {
		return "", err
	}
	return body.InventoryItem.SKU, nil
}

// ListPriceRules fetches every price rule for the shop, following
// Link-header pagination.
func (c *Client) ListPriceRules(ctx context.Context, tenant *domain.TenantConfig) ([]PriceRule, error) {
	var rules []PriceRule
	url := tenant.AdminBaseURL() + "/price_rules.json?limit=250"
	for url != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("ListPriceRules: build request: %w", err)
		}
		req.Header.Set("X-Shopify-Access-Token", tenant.AccessToken)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("ListPriceRules: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, &StatusError{Code: resp.StatusCode, URL: url}
		}

		var page struct {
			PriceRules []PriceRule `json:"price_rules"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("ListPriceRules: decode: %w", err)
		}
		link := resp.Header.Get("Link")
		resp.Body.Close()

		rules = append(rules, page.PriceRules...)
		url = nextPageURL(link)
	}
	return rules, nil
}

// nextPageURL extracts the rel="next" target from a Link header, or ""
// when there is no further page.
func nextPageURL(linkHeader string) string {
	for _, part := range strings.Split(linkHeader, ",") {
		if !strings.Contains(part, `rel="next"`) {
			continue
		}
		start := strings.Index(part, "<")
		end := strings.Index(part, ">")
		if start >= 0 && end > start {
			return part[start+1 : end]
		}
	}
	return ""
}
