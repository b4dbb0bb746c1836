package execution

import (
	"context"
	"errors"
	"fmt"
)

// TransientError marks a failure that is safe to retry with the same client
// order id: timeouts, rate limits, 5xx-equivalents. The exchange's client-id
// idempotency makes the retry safe even if the original request landed.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(err error) error { return &TransientError{Err: err} }

// AmbiguousError marks a failure after which the request may or may not have
// reached the exchange AND the outcome cannot be re-asked safely — the order
// goes to UNKNOWN and waits for reconciliation instead of being retried.
type AmbiguousError struct {
	Err error
}

func (e *AmbiguousError) Error() string { return fmt.Sprintf("ambiguous: %v", e.Err) }
func (e *AmbiguousError) Unwrap() error { return e.Err }

// Ambiguous wraps err as requiring reconciliation.
func Ambiguous(err error) error { return &AmbiguousError{Err: err} }

// IsTransient devuelve true si el error admite retry. Un deadline vencido
// cuenta como transitorio: el reenvío con el mismo client id es idempotente.
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsAmbiguous devuelve true si el error exige reconciliación.
func IsAmbiguous(err error) bool {
	var ae *AmbiguousError
	return errors.As(err, &ae)
}
