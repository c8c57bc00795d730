package payment

import (
	"errors"
	"fmt"

	"fashionadmin/internal/store"
)

// Kind classifies a failed payment operation. The HTTP layer maps each kind
// to exactly one status code.
type Kind string

const (
	KindValidation            Kind = "validation"
	KindProductNotFound       Kind = "product_not_found"
	KindOrderNotFound         Kind = "order_not_found"
	KindForbidden             Kind = "forbidden"
	KindInvalidTransition     Kind = "invalid_transition"
	KindPaymentCreationFailed Kind = "payment_creation_failed"
	KindCaptureFailed         Kind = "capture_failed"
	KindAmountMismatch        Kind = "amount_mismatch"
	KindGateway               Kind = "gateway_error"
	KindPersistence           Kind = "persistence"
	KindInvalidSignature      Kind = "invalid_signature"
)

// Error is returned by every Service and Reconciler operation. Detail is safe
// to show to clients; Err is the underlying cause and is only logged.
type Error struct {
	Kind      Kind
	Detail    string
	ProductID string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, or "" when err is not a payment error.
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return ""
}

func newError(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// storeError translates order store failures.
func storeError(err error, detail string) *Error {
	switch {
	case errors.Is(err, store.ErrOrderNotFound):
		return newError(KindOrderNotFound, "order not found", err)
	case errors.Is(err, store.ErrInvalidTransition):
		return newError(KindInvalidTransition, "order cannot change to that status", err)
	default:
		return newError(KindPersistence, detail, err)
	}
}
