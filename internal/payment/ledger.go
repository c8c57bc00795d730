package payment

import (
	"context"
	"time"

	"go.uber.org/zap"

	"fashionadmin/internal/models"
	"fashionadmin/internal/paypal"
	"fashionadmin/internal/store"
)

const failureAmountMismatch = "amount_mismatch"

// settlement is a payment the processor reports as captured.
type settlement struct {
	PaymentID string
	Amount    paypal.Money
	Payer     *paypal.Payer
}

// ledger owns the conditional status writes shared by the capture path, the
// webhook path and admin reconciliation. Whichever path gets there first
// applies the change; the others observe Applied=false.
type ledger struct {
	orders OrderStore
	logger *zap.Logger
	now    func() time.Time
}

// settle moves a pending order to paid, or to payment_failed when the captured
// amount does not match the stored total. The returned order is its state
// after the write attempt.
func (l ledger) settle(ctx context.Context, order models.Order, s settlement, source string) (models.Order, error) {
	orderID := order.ID.Hex()
	log := l.logger.With(
		zap.String("order_id", orderID),
		zap.String("external_order_id", order.ExternalOrderID),
		zap.String("payment_id", s.PaymentID),
		zap.String("source", source),
	)

	if !amountMatches(order, s.Amount) {
		res, err := l.orders.TransitionStatus(ctx, orderID, store.Transition{
			From:           models.StatusPendingPayment,
			To:             models.StatusPaymentFailed,
			PaymentID:      s.PaymentID,
			CapturedAmount: s.Amount.Value,
			FailureReason:  failureAmountMismatch,
			At:             l.now(),
		})
		if err != nil {
			return order, storeError(err, "could not update order")
		}
		if res.Order.Status == models.StatusPaid {
			return res.Order, nil
		}
		if res.Applied {
			orderTransitions.WithLabelValues(string(models.StatusPaymentFailed), source).Inc()
		}
		log.Error("captured amount differs from order total, refund required",
			zap.Float64("order_total", order.TotalAmount),
			zap.String("order_currency", order.Currency),
			zap.String("captured_amount", s.Amount.Value),
			zap.String("captured_currency", s.Amount.CurrencyCode),
		)
		return res.Order, newError(KindAmountMismatch, "captured amount does not match order total", nil)
	}

	res, err := l.orders.TransitionStatus(ctx, orderID, store.Transition{
		From:           models.StatusPendingPayment,
		To:             models.StatusPaid,
		PaymentID:      s.PaymentID,
		PayerInfo:      payerInfo(s.Payer),
		CapturedAmount: s.Amount.Value,
		At:             l.now(),
	})
	if err != nil {
		return order, storeError(err, "could not update order")
	}

	switch {
	case res.Applied:
		orderTransitions.WithLabelValues(string(models.StatusPaid), source).Inc()
		log.Info("order paid")
	case res.Order.Status == models.StatusPaid:
		log.Debug("order already paid")
	default:
		log.Error("payment captured for an order that is no longer pending",
			zap.String("status", string(res.Order.Status)),
		)
		return res.Order, newError(KindInvalidTransition, "order is no longer pending payment", nil)
	}
	return res.Order, nil
}

// fail moves a pending order to payment_failed. A terminal order is left as is.
func (l ledger) fail(ctx context.Context, order models.Order, reason, source string) (store.TransitionResult, error) {
	res, err := l.orders.TransitionStatus(ctx, order.ID.Hex(), store.Transition{
		From:          models.StatusPendingPayment,
		To:            models.StatusPaymentFailed,
		FailureReason: reason,
		At:            l.now(),
	})
	if err != nil {
		return res, storeError(err, "could not update order")
	}
	if res.Applied {
		orderTransitions.WithLabelValues(string(models.StatusPaymentFailed), source).Inc()
		l.logger.Info("order payment failed",
			zap.String("order_id", order.ID.Hex()),
			zap.String("external_order_id", order.ExternalOrderID),
			zap.String("reason", reason),
			zap.String("source", source),
		)
	}
	return res, nil
}

func (l ledger) cancel(ctx context.Context, order models.Order, source string) (store.TransitionResult, error) {
	res, err := l.orders.TransitionStatus(ctx, order.ID.Hex(), store.Transition{
		From: models.StatusPendingPayment,
		To:   models.StatusCancelled,
		At:   l.now(),
	})
	if err != nil {
		return res, storeError(err, "could not update order")
	}
	if res.Applied {
		orderTransitions.WithLabelValues(string(models.StatusCancelled), source).Inc()
		l.logger.Info("order cancelled",
			zap.String("order_id", order.ID.Hex()),
			zap.String("source", source),
		)
	}
	return res, nil
}
