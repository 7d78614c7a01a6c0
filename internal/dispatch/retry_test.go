package dispatch

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/retailops/shopify-sync/internal/domain"
	"github.com/retailops/shopify-sync/internal/shopify"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", &shopify.StatusError{Code: 429}, true},
		{"server error", &shopify.StatusError{Code: 503}, true},
		{"wrapped server error", fmt.Errorf("handler: %w", &shopify.StatusError{Code: 500}), true},
		{"not found", &shopify.StatusError{Code: 404}, false},
		{"unprocessable", &shopify.StatusError{Code: 422}, false},
		{"network timeout", timeoutErr{}, true},
		{"connection refused", syscall.ECONNREFUSED, true},
		{"connection reset", syscall.ECONNRESET, true},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"plain error", errors.New("bad payload"), false},
		{"validation sentinel", domain.ErrTitleRequired, false},
		{"permanently marked 500", domain.Permanent(&shopify.StatusError{Code: 500}), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsTransient(tc.err))
		})
	}
}

func TestBackoff(t *testing.T) {
	min := 30 * time.Second
	max := 10 * time.Minute

	assert.Equal(t, 30*time.Second, Backoff(1, min, max))
	assert.Equal(t, time.Minute, Backoff(2, min, max))
	assert.Equal(t, 2*time.Minute, Backoff(3, min, max))
	assert.Equal(t, 4*time.Minute, Backoff(4, min, max))
	assert.Equal(t, 8*time.Minute, Backoff(5, min, max))
	assert.Equal(t, max, Backoff(6, min, max))
	assert.Equal(t, max, Backoff(20, min, max))
}

func TestBackoffNeverExceedsMax(t *testing.T) {
	min := 30 * time.Second
	max := 10 * time.Minute
	for attempts := 1; attempts <= 30; attempts++ {
		d := Backoff(attempts, min, max)
		assert.GreaterOrEqual(t, d, min)
		assert.LessOrEqual(t, d, max)
	}
}
