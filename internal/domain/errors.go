package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateDelivery = errors.New("duplicate webhook delivery")
	ErrNoHandler         = errors.New("no handler registered for topic")
	ErrUnknownDiscount   = errors.New("unknown discount value encoding")
	ErrNoEligibleItems   = errors.New("no eligible items resolved")
	ErrTitleRequired     = errors.New("title required")
	ErrMissingRuleID     = errors.New("missing rule id in payload")
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as unretryable regardless of its underlying cause.
// Used where a transport failure must abort for good, e.g. a SKU
// resolution that died mid-flight and cannot be safely replayed.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err carries the Permanent marker.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
