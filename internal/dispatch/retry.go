package dispatch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/retailops/shopify-sync/internal/domain"
)

// httpStatusError is satisfied by the outbound API clients' error types.
type httpStatusError interface {
	error
	HTTPStatus() int
}

// IsTransient classifies a processing error. Connection failures,
// timeouts, 429s and 5xx responses are worth retrying; everything else
// (validation errors, other 4xx, missing handlers) never succeeds on a
// replay. An explicit Permanent marker wins over any other signal.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if domain.IsPermanent(err) {
		return false
	}

	var se httpStatusError
	if errors.As(err, &se) {
		code := se.HTTPStatus()
		return code == http.StatusTooManyRequests || code >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// Backoff returns the delay before the next attempt: exponential from
// min, doubling per attempt, capped at max. attempts is the number of
// attempts already made (>= 1).
func Backoff(attempts int, min, max time.Duration) time.Duration {
	d := min
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
