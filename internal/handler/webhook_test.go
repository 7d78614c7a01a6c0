package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailops/shopify-sync/internal/domain"
)

const testWebhookSecret = "test-secret-key"

type mockTenantStore struct {
	tenant *domain.TenantConfig
	err    error
}

func (m *mockTenantStore) GetActiveByDomain(_ context.Context, _ string) (*domain.TenantConfig, error) {
	return m.tenant, m.err
}

type mockDeliveryStore struct {
	inserted []*domain.WebhookDelivery
	err      error
}

func (m *mockDeliveryStore) Insert(_ context.Context, d *domain.WebhookDelivery) error {
	if m.err != nil {
		return m.err
	}
	m.inserted = append(m.inserted, d)
	return nil
}

type mockWaker struct {
	notified int
}

func (m *mockWaker) Notify() { m.notified++ }

func signBody(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func testTenant() *domain.TenantConfig {
	return &domain.TenantConfig{
		ID:             uuid.New(),
		StoreID:        uuid.New(),
		ShopDomain:     "demo.myshopify.com",
		WebhookSecret:  testWebhookSecret,
		SyncPromotions: true,
		IsActive:       true,
	}
}

func TestIntakeHandler(t *testing.T) {
	body := []byte(`{"id": 123, "title": "Summer Sale"}`)

	tests := []struct {
		name       string
		headers    map[string]string
		tenants    *mockTenantStore
		deliveries *mockDeliveryStore
		wantStatus int
		wantCode   string
	}{
		{
			name: "accepted",
			headers: map[string]string{
				HeaderShopDomain: "demo.myshopify.com",
				HeaderHmac:       signBody(body, testWebhookSecret),
				HeaderWebhookID:  "wh-1",
				HeaderTopic:      "price_rules/create",
			},
			tenants:    &mockTenantStore{tenant: testTenant()},
			deliveries: &mockDeliveryStore{},
			wantStatus: http.StatusOK,
		},
		{
			name: "missing shop domain header",
			headers: map[string]string{
				HeaderHmac:      signBody(body, testWebhookSecret),
				HeaderWebhookID: "wh-1",
				HeaderTopic:     "price_rules/create",
			},
			tenants:    &mockTenantStore{tenant: testTenant()},
			deliveries: &mockDeliveryStore{},
			wantStatus: http.StatusBadRequest,
			wantCode:   "MISSING_SHOP_DOMAIN",
		},
		{
			name: "unknown shop domain",
			headers: map[string]string{
				HeaderShopDomain: "stranger.myshopify.com",
				HeaderHmac:       signBody(body, testWebhookSecret),
				HeaderWebhookID:  "wh-1",
				HeaderTopic:      "price_rules/create",
			},
			tenants:    &mockTenantStore{err: domain.ErrNotFound},
			deliveries: &mockDeliveryStore{},
			wantStatus: http.StatusNotFound,
			wantCode:   "UNKNOWN_SHOP_DOMAIN",
		},
		{
			name: "invalid signature",
			headers: map[string]string{
				HeaderShopDomain: "demo.myshopify.com",
				HeaderHmac:       signBody(body, "other-secret"),
				HeaderWebhookID:  "wh-1",
				HeaderTopic:      "price_rules/create",
			},
			tenants:    &mockTenantStore{tenant: testTenant()},
			deliveries: &mockDeliveryStore{},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "INVALID_SIGNATURE",
		},
		{
			name: "missing webhook id",
			headers: map[string]string{
				HeaderShopDomain: "demo.myshopify.com",
				HeaderHmac:       signBody(body, testWebhookSecret),
				HeaderTopic:      "price_rules/create",
			},
			tenants:    &mockTenantStore{tenant: testTenant()},
			deliveries: &mockDeliveryStore{},
			wantStatus: http.StatusBadRequest,
			wantCode:   "MISSING_WEBHOOK_ID",
		},
		{
			name: "topic not allowed",
			headers: map[string]string{
				HeaderShopDomain: "demo.myshopify.com",
				HeaderHmac:       signBody(body, testWebhookSecret),
				HeaderWebhookID:  "wh-1",
				HeaderTopic:      "orders/create",
			},
			tenants:    &mockTenantStore{tenant: testTenant()},
			deliveries: &mockDeliveryStore{},
			wantStatus: http.StatusBadRequest,
			wantCode:   "TOPIC_NOT_ALLOWED",
		},
		{
			name: "duplicate delivery acknowledged",
			headers: map[string]string{
				HeaderShopDomain: "demo.myshopify.com",
				HeaderHmac:       signBody(body, testWebhookSecret),
				HeaderWebhookID:  "wh-1",
				HeaderTopic:      "price_rules/create",
			},
			tenants:    &mockTenantStore{tenant: testTenant()},
			deliveries: &mockDeliveryStore{err: domain.ErrDuplicateDelivery},
			wantStatus: http.StatusOK,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			waker := &mockWaker{}
			h := NewIntakeHandler(tc.tenants, tc.deliveries, waker, []string{"price_rules/create"})

			req := httptest.NewRequest(http.MethodPost, "/webhooks/shopify/promotions", bytes.NewReader(body))
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code)

			var resp APIResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			if tc.wantCode != "" {
				require.NotNil(t, resp.Error)
				assert.Equal(t, tc.wantCode, resp.Error.Code)
				assert.Empty(t, tc.deliveries.inserted)
				assert.Zero(t, waker.notified)
			}
		})
	}
}

func TestIntakeHandlerRecordsDelivery(t *testing.T) {
	body := []byte(`{"id": 99}`)
	deliveries := &mockDeliveryStore{}
	waker := &mockWaker{}
	h := NewIntakeHandler(&mockTenantStore{tenant: testTenant()}, deliveries, waker, []string{"price_rules/update"})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/shopify/promotions", bytes.NewReader(body))
	req.Header.Set(HeaderShopDomain, "demo.myshopify.com")
	req.Header.Set(HeaderHmac, signBody(body, testWebhookSecret))
	req.Header.Set(HeaderWebhookID, "wh-42")
	req.Header.Set(HeaderTopic, "price_rules/update")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, deliveries.inserted, 1)

	d := deliveries.inserted[0]
	assert.Equal(t, "wh-42", d.DeliveryID)
	assert.Equal(t, "price_rules/update", d.Topic)
	assert.Equal(t, "demo.myshopify.com", d.ShopDomain)
	assert.Equal(t, domain.DeliveryStatusReceived, d.Status)
	assert.Equal(t, body, d.Payload)
	assert.NotEmpty(t, d.PayloadDigest)
	assert.Equal(t, 1, waker.notified)
}

func TestIntakeHandlerDuplicateBody(t *testing.T) {
	body := []byte(`{"id": 7}`)
	deliveries := &mockDeliveryStore{}
	h := NewIntakeHandler(&mockTenantStore{tenant: testTenant()}, deliveries, &mockWaker{}, []string{"price_rules/create"})

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/shopify/promotions", bytes.NewReader(body))
		req.Header.Set(HeaderShopDomain, "demo.myshopify.com")
		req.Header.Set(HeaderHmac, signBody(body, testWebhookSecret))
		req.Header.Set(HeaderWebhookID, "wh-dup")
		req.Header.Set(HeaderTopic, "price_rules/create")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	first := send()
	require.Equal(t, http.StatusOK, first.Code)

	// Second submission hits the unique constraint and is acknowledged
	// without a second row.
	deliveries.err = domain.ErrDuplicateDelivery
	second := send()
	require.Equal(t, http.StatusOK, second.Code)
	assert.Len(t, deliveries.inserted, 1)

	var resp APIResponse
	require.NoError(t, json.NewDecoder(second.Body).Decode(&resp))
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "duplicate", data["status"])
}
