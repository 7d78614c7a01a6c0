package promotion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/retailops/shopify-sync/internal/domain"
)

// Batch accumulates promotion create and delete operations for a single
// retailer and commits them in one request. A webhook produces at most
// one batch, so the downstream service sees each event atomically.
type Batch struct {
	retailer string
	creates  []*domain.Promotion
	deletes  []batchDelete
}

type batchDelete struct {
	PromoID string `json:"promo_id"`
	StoreID string `json:"store_id"`
}

func NewBatch(retailer string) *Batch {
	return &Batch{retailer: retailer}
}

func (b *Batch) Create(promo *domain.Promotion) {
	b.creates = append(b.creates, promo)
}

func (b *Batch) Delete(promoID, storeID string) {
	b.deletes = append(b.deletes, batchDelete{PromoID: promoID, StoreID: storeID})
}

func (b *Batch) Empty() bool {
	return len(b.creates) == 0 && len(b.deletes) == 0
}

type batchRequest struct {
	Retailer string              `json:"retailer"`
	Deletes  []batchDelete       `json:"deletes,omitempty"`
	Creates  []*domain.Promotion `json:"creates,omitempty"`
}

// ServiceError is a non-2xx reply from the promotions service.
type ServiceError struct {
	Code int
	Body string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("promotions service returned %d: %s", e.Code, e.Body)
}

func (e *ServiceError) HTTPStatus() int { return e.Code }

// ServiceClient publishes promotion batches to the downstream
// promotions service.
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

// Commit posts the batch. Deletes are applied before creates downstream,
// which is what update flows rely on. Committing an empty batch is a
// no-op.
func (c *ServiceClient) Commit(ctx context.Context, batch *Batch) error {
	if batch.Empty() {
		return nil
	}

	body, err := json.Marshal(batchRequest{
		Retailer: batch.retailer,
		Deletes:  batch.deletes,
		Creates:  batch.creates,
	})
	if err != nil {
		return fmt.Errorf("Commit: marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/promotions/batch", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("Commit: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Commit: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("Commit: %w", &ServiceError{Code: resp.StatusCode, Body: string(detail)})
	}
	return nil
}
