package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// StockItem is one upsert entry in an inventory update request.
type StockItem struct {
	Operation  string   `json:"operation"`
	Barcodes   []string `json:"barcodes"`
	StockLevel int64    `json:"stockLevel"`
}

type stockUpdateRequest struct {
	StoreID        string      `json:"storeId"`
	RetailerID     string      `json:"retailerId"`
	Categories     []string    `json:"categories"`
	Items          []StockItem `json:"items"`
	PerformInserts bool        `json:"performInserts"`
}

// VariantRecord is one known inventory item, as listed by the
// inventory service.
type VariantRecord struct {
	Barcodes []string `json:"barcodes"`
}

type variantListRequest struct {
	StoreID string              `json:"storeId"`
	Filters map[string][]string `json:"filters"`
}

type variantListResponse struct {
	Items []VariantRecord `json:"items"`
}

// ServiceError is a non-2xx reply from the inventory service.
type ServiceError struct {
	Code int
	Body string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("inventory service returned %d: %s", e.Code, e.Body)
}

func (e *ServiceError) HTTPStatus() int { return e.Code }

// ServiceClient pushes stock-level updates to the downstream inventory
// service. Updates never insert new items; unknown barcodes are dropped
// downstream.
type ServiceClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewServiceClient(baseURL string, timeout time.Duration) *ServiceClient {
	return &ServiceClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *ServiceClient) UpdateStock(ctx context.Context, storeID, retailerID string, items []StockItem) error {
	if len(items) == 0 {
		return nil
	}

	body, err := json.Marshal(stockUpdateRequest{
		StoreID:        storeID,
		RetailerID:     retailerID,
		Categories:     []string{},
		Items:          items,
		PerformInserts: false,
	})
	if err != nil {
		return fmt.Errorf("UpdateStock: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/inventory/update", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("UpdateStock: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("UpdateStock: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("UpdateStock: %w", &ServiceError{Code: resp.StatusCode, Body: string(detail)})
	}
	return nil
}

// ListVariantsByProduct returns the inventory items the service holds
// for one retailer product id.
func (c *ServiceClient) ListVariantsByProduct(ctx context.Context, storeID, productID string) ([]VariantRecord, error) {
	body, err := json.Marshal(variantListRequest{
		StoreID: storeID,
		Filters: map[string][]string{"retailerProductId": {productID}},
	})
	if err != nil {
		return nil, fmt.Errorf("ListVariantsByProduct: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/variants/list", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ListVariantsByProduct: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ListVariantsByProduct: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ListVariantsByProduct: %w", &ServiceError{Code: resp.StatusCode, Body: string(detail)})
	}

	var listed variantListResponse
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		return nil, fmt.Errorf("ListVariantsByProduct: decode response: %w", err)
	}
	return listed.Items, nil
}
