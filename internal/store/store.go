// Package store persists orders. Every status change goes through a single
// conditional document update so that concurrent writers (explicit capture
// and webhook delivery) converge instead of double-applying.
package store

import (
	"errors"
	"fmt"
	"time"

	"fashionadmin/internal/models"
)

var (
	ErrOrderNotFound            = errors.New("order not found")
	ErrAlreadyAttached          = errors.New("order already has a different external order id")
	ErrDuplicateExternalOrderID = errors.New("external order id already belongs to another order")
	ErrNotPending               = errors.New("order is not pending payment")
	ErrInvalidTransition        = errors.New("invalid status transition")
)

// PersistenceError wraps a storage failure with the operation that hit it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Transition describes one status write. An empty From makes the write
// unconditional; otherwise it only happens while the stored status equals From.
type Transition struct {
	From models.OrderStatus
	To   models.OrderStatus

	PaymentID      string
	PayerInfo      *models.PayerInfo
	CapturedAmount string
	FailureReason  string
	At             time.Time
}

// TransitionResult carries the order as stored after the call. Applied is
// false when the conditional write found the order in another status.
type TransitionResult struct {
	Order   models.Order
	Applied bool
}

type ListFilter struct {
	UserID string
	Status models.OrderStatus
	Page   int64
	Limit  int64
}

func (f ListFilter) skip() int64 {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.limit()
}

func (f ListFilter) limit() int64 {
	if f.Limit < 1 {
		return 20
	}
	return f.Limit
}

func (t Transition) validate() error {
	if !t.To.IsTerminal() {
		return fmt.Errorf("%w: target %q is not terminal", ErrInvalidTransition, t.To)
	}
	if t.From != "" && !models.CanTransition(t.From, t.To) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.From, t.To)
	}
	if t.To == models.StatusPaid && t.PaymentID == "" {
		return fmt.Errorf("%w: paid requires a payment id", ErrInvalidTransition)
	}
	return nil
}

// apply copies the transition fields onto o the same way the Mongo update does.
func (t Transition) apply(o *models.Order) {
	at := t.At
	o.Status = t.To
	o.UpdatedAt = at
	if t.PaymentID != "" {
		o.PaymentID = t.PaymentID
	}
	if t.PayerInfo != nil {
		payer := *t.PayerInfo
		o.PayerInfo = &payer
	}
	if t.CapturedAmount != "" {
		o.CapturedAmount = t.CapturedAmount
	}
	if t.FailureReason != "" {
		o.FailureReason = t.FailureReason
	}
	switch t.To {
	case models.StatusPaid:
		o.PaidAt = &at
	case models.StatusCancelled:
		o.CancelledAt = &at
	case models.StatusPaymentFailed:
		o.FailedAt = &at
	}
}
