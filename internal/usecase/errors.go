package usecase

import (
	"errors"
	"fmt"
)

// ErrDuplicateEvent is returned when a payment event is already being
// processed (or was processed) and no invoice can be resolved yet.
var ErrDuplicateEvent = errors.New("duplicate payment event")

// NotFoundError marks a missing order, user or invoice. Fatal; never
// triggers the local fallback.
type NotFoundError struct {
	Kind string // "order" | "user" | "invoice"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ProviderInvocationError wraps a failure of the external invoicing
// provider itself. It is raised only by the invoicing client, so the
// orchestrator can branch on type rather than message text when deciding
// to fall back to a local invoice.
type ProviderInvocationError struct {
	Op  string
	Err error
}

func (e *ProviderInvocationError) Error() string {
	return fmt.Sprintf("invoicing provider: %s failed: %v", e.Op, e.Err)
}

func (e *ProviderInvocationError) Unwrap() error { return e.Err }
