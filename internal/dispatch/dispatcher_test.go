package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailops/shopify-sync/internal/domain"
	"github.com/retailops/shopify-sync/internal/shopify"
)

type outcome struct {
	id     uuid.UUID
	status domain.DeliveryStatus
	errMsg string
}

type reschedule struct {
	id   uuid.UUID
	next time.Time
}

type mockStore struct {
	mu          sync.Mutex
	due         []domain.WebhookDelivery
	outcomes    []outcome
	reschedules []reschedule
}

func (m *mockStore) ClaimDue(_ context.Context, limit int) ([]domain.WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.due) == 0 {
		return nil, nil
	}
	n := min(limit, len(m.due))
	claimed := m.due[:n]
	m.due = m.due[n:]
	for i := range claimed {
		claimed[i].Attempts++
		claimed[i].Status = domain.DeliveryStatusProcessing
	}
	return claimed, nil
}

func (m *mockStore) MarkOutcome(_ context.Context, id uuid.UUID, status domain.DeliveryStatus, errMsg string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome{id: id, status: status, errMsg: errMsg})
	return nil
}

func (m *mockStore) Reschedule(_ context.Context, id uuid.UUID, next time.Time, _ string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reschedules = append(m.reschedules, reschedule{id: id, next: next})
	return nil
}

func testDispatcher(store *mockStore, registry *Registry) *Dispatcher {
	return NewDispatcher(store, registry, slog.Default(), Options{
		Workers:      2,
		PollInterval: 10 * time.Millisecond,
		MaxAttempts:  3,
		MinBackoff:   30 * time.Second,
		MaxBackoff:   10 * time.Minute,
	})
}

func claimedDelivery(topic string, attempts int) domain.WebhookDelivery {
	return domain.WebhookDelivery{
		ID:         uuid.New(),
		DeliveryID: uuid.NewString(),
		Topic:      topic,
		ShopDomain: "demo.myshopify.com",
		Status:     domain.DeliveryStatusProcessing,
		Attempts:   attempts,
	}
}

func TestProcessSuccess(t *testing.T) {
	store := &mockStore{}
	reg := NewRegistry()
	reg.Register("price_rules/create", func(context.Context, *domain.WebhookDelivery) error {
		return nil
	})
	d := testDispatcher(store, reg)

	delivery := claimedDelivery("price_rules/create", 1)
	d.process(context.Background(), delivery)

	require.Len(t, store.outcomes, 1)
	assert.Equal(t, domain.DeliveryStatusSuccess, store.outcomes[0].status)
	assert.Empty(t, store.outcomes[0].errMsg)
	assert.Empty(t, store.reschedules)
}

func TestProcessMissingHandlerFailsPermanently(t *testing.T) {
	store := &mockStore{}
	d := testDispatcher(store, NewRegistry())

	delivery := claimedDelivery("orders/create", 1)
	d.process(context.Background(), delivery)

	require.Len(t, store.outcomes, 1)
	assert.Equal(t, domain.DeliveryStatusFailed, store.outcomes[0].status)
	assert.Contains(t, store.outcomes[0].errMsg, "orders/create")
	assert.Empty(t, store.reschedules, "a missing handler never succeeds on replay")
}

func TestProcessTransientErrorReschedules(t *testing.T) {
	store := &mockStore{}
	reg := NewRegistry()
	reg.Register("price_rules/create", func(context.Context, *domain.WebhookDelivery) error {
		return &shopify.StatusError{Code: 503}
	})
	d := testDispatcher(store, reg)

	delivery := claimedDelivery("price_rules/create", 1)
	before := time.Now().UTC()
	d.process(context.Background(), delivery)

	assert.Empty(t, store.outcomes)
	require.Len(t, store.reschedules, 1)
	next := store.reschedules[0].next
	assert.True(t, next.After(before.Add(29*time.Second)), "first retry backs off at least the minimum")
}

func TestProcessTransientErrorExhaustsAttempts(t *testing.T) {
	store := &mockStore{}
	reg := NewRegistry()
	reg.Register("price_rules/create", func(context.Context, *domain.WebhookDelivery) error {
		return &shopify.StatusError{Code: 503}
	})
	d := testDispatcher(store, reg)

	delivery := claimedDelivery("price_rules/create", 3)
	d.process(context.Background(), delivery)

	require.Len(t, store.outcomes, 1)
	assert.Equal(t, domain.DeliveryStatusFailed, store.outcomes[0].status)
	assert.Empty(t, store.reschedules)
}

func TestProcessPermanentErrorFailsImmediately(t *testing.T) {
	store := &mockStore{}
	reg := NewRegistry()
	reg.Register("price_rules/create", func(context.Context, *domain.WebhookDelivery) error {
		return errors.New("unclassifiable rule")
	})
	d := testDispatcher(store, reg)

	delivery := claimedDelivery("price_rules/create", 1)
	d.process(context.Background(), delivery)

	require.Len(t, store.outcomes, 1)
	assert.Equal(t, domain.DeliveryStatusFailed, store.outcomes[0].status)
	assert.Empty(t, store.reschedules)
}

func TestStartDrainsQueueOnNotify(t *testing.T) {
	store := &mockStore{due: []domain.WebhookDelivery{
		claimedDelivery("price_rules/create", 0),
		claimedDelivery("price_rules/create", 0),
	}}
	// ClaimDue hands out received rows; reset them for the claim path.
	for i := range store.due {
		store.due[i].Status = domain.DeliveryStatusReceived
		store.due[i].Attempts = 0
	}

	var handled sync.WaitGroup
	handled.Add(2)
	reg := NewRegistry()
	reg.Register("price_rules/create", func(context.Context, *domain.WebhookDelivery) error {
		handled.Done()
		return nil
	})

	d := testDispatcher(store, reg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Start(ctx)
	}()

	d.Notify()
	waitTimeout(t, &handled, time.Second)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Len(t, store.outcomes, 2)
}

func waitTimeout(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()
	ch := make(chan struct{})
	go func() {
		defer close(ch)
		wg.Wait()
	}()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatal("handlers did not run in time")
	}
}
