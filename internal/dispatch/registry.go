package dispatch

import (
	"context"
	"fmt"

	"github.com/retailops/shopify-sync/internal/domain"
)

// HandlerFunc processes one ledgered delivery. The raw payload is carried
// on the delivery itself.
type HandlerFunc func(ctx context.Context, delivery *domain.WebhookDelivery) error

// Registry maps webhook topics to handlers. It is built once at startup
// and passed into the dispatcher; there is no package-level registration.
type Registry struct {
	handlers map[string]HandlerFunc
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Register binds a handler to a topic. Registering the same topic twice
// is a wiring bug and panics at startup rather than silently shadowing.
func (r *Registry) Register(topic string, h HandlerFunc) {
	if _, exists := r.handlers[topic]; exists {
		panic(fmt.Sprintf("dispatch: handler already registered for topic %q", topic))
	}
	r.handlers[topic] = h
}

// Lookup returns the handler for topic, or false when none is registered.
func (r *Registry) Lookup(topic string) (HandlerFunc, bool) {
	h, ok := r.handlers[topic]
	return h, ok
}

// Topics lists every registered topic.
func (r *Registry) Topics() []string {
	topics := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		topics = append(topics, t)
	}
	return topics
}
