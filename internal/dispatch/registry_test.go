package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailops/shopify-sync/internal/domain"
)

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry()
	handled := false
	reg.Register("price_rules/create", func(context.Context, *domain.WebhookDelivery) error {
		handled = true
		return nil
	})

	h, ok := reg.Lookup("price_rules/create")
	require.True(t, ok)
	require.NoError(t, h(context.Background(), &domain.WebhookDelivery{}))
	assert.True(t, handled)

	_, ok = reg.Lookup("orders/create")
	assert.False(t, ok)
}

func TestRegistryDoubleRegisterPanics(t *testing.T) {
	reg := NewRegistry()
	noop := func(context.Context, *domain.WebhookDelivery) error { return nil }
	reg.Register("products/update", noop)

	assert.Panics(t, func() {
		reg.Register("products/update", noop)
	})
}

func TestRegistryTopics(t *testing.T) {
	reg := NewRegistry()
	noop := func(context.Context, *domain.WebhookDelivery) error { return nil }
	reg.Register("price_rules/create", noop)
	reg.Register("price_rules/delete", noop)

	assert.ElementsMatch(t, []string{"price_rules/create", "price_rules/delete"}, reg.Topics())
}
