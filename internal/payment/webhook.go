package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"fashionadmin/internal/models"
	"fashionadmin/internal/paypal"
)

const (
	EventCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"
	EventCaptureDenied    = "PAYMENT.CAPTURE.DENIED"
	EventOrderApproved    = "CHECKOUT.ORDER.APPROVED"
)

// Event is the envelope of a processor notification.
type Event struct {
	ID           string          `json:"id"`
	EventType    string          `json:"event_type"`
	ResourceType string          `json:"resource_type"`
	Summary      string          `json:"summary"`
	Resource     json.RawMessage `json:"resource"`
}

type captureResource struct {
	ID                string       `json:"id"`
	Status            string       `json:"status"`
	Amount            paypal.Money `json:"amount"`
	SupplementaryData struct {
		RelatedIDs struct {
			OrderID string `json:"order_id"`
		} `json:"related_ids"`
	} `json:"supplementary_data"`
}

type orderResource struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Reconciler applies processor notifications to local orders. Duplicate and
// out-of-order deliveries are harmless because every write is conditional on
// the order still being pending.
type Reconciler struct {
	verifier Verifier
	orders   OrderStore
	logger   *zap.Logger
	ledger   ledger
}

func NewReconciler(verifier Verifier, orders OrderStore, logger *zap.Logger) *Reconciler {
	logger = logger.Named("webhook")
	return &Reconciler{
		verifier: verifier,
		orders:   orders,
		logger:   logger,
		ledger:   ledger{orders: orders, logger: logger, now: func() time.Time { return time.Now().UTC() }},
	}
}

// HandleNotification returns nil when the notification should be
// acknowledged. KindInvalidSignature means reject; any other error asks the
// processor to deliver again.
func (r *Reconciler) HandleNotification(ctx context.Context, body []byte, headers http.Header) error {
	if !r.verifier.VerifyNotification(ctx, headers, body) {
		webhookEvents.WithLabelValues("unknown", "invalid_signature").Inc()
		r.logger.Warn("notification rejected",
			zap.Bool("security", true),
			zap.String("transmission_id", headers.Get(paypal.HeaderTransmissionID)),
		)
		return newError(KindInvalidSignature, "invalid webhook signature", nil)
	}

	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		webhookEvents.WithLabelValues("unknown", "malformed").Inc()
		r.logger.Error("notification body is not valid json", zap.Error(err))
		return nil
	}

	eventType := strings.ToUpper(event.EventType)
	log := r.logger.With(zap.String("event_id", event.ID), zap.String("event_type", eventType))

	var err error
	switch eventType {
	case EventCaptureCompleted:
		err = r.captureCompleted(ctx, log, event)
	case EventCaptureDenied:
		err = r.captureDenied(ctx, log, event)
	case EventOrderApproved:
		var res orderResource
		_ = json.Unmarshal(event.Resource, &res)
		log.Info("order approved by buyer", zap.String("external_order_id", res.ID))
	default:
		log.Info("unhandled event type")
	}

	if err != nil {
		webhookEvents.WithLabelValues(eventType, "error").Inc()
		return err
	}
	webhookEvents.WithLabelValues(eventType, "ok").Inc()
	return nil
}

func (r *Reconciler) captureCompleted(ctx context.Context, log *zap.Logger, event Event) error {
	res, order, ok, err := r.locate(ctx, log, event)
	if !ok {
		return err
	}
	log = log.With(zap.String("order_id", order.ID.Hex()), zap.String("payment_id", res.ID))

	_, err = r.ledger.settle(ctx, order, settlement{PaymentID: res.ID, Amount: res.Amount}, sourceWebhook)
	switch KindOf(err) {
	case "":
		return nil
	case KindAmountMismatch, KindInvalidTransition:
		// Recorded and logged; delivering again cannot change the outcome.
		log.Warn("capture notification not applied", zap.Error(err))
		return nil
	default:
		log.Error("could not apply capture notification", zap.Error(err))
		return err
	}
}

func (r *Reconciler) captureDenied(ctx context.Context, log *zap.Logger, event Event) error {
	_, order, ok, err := r.locate(ctx, log, event)
	if !ok {
		return err
	}

	res, err := r.ledger.fail(ctx, order, "capture_denied", sourceWebhook)
	if err != nil {
		log.Error("could not apply denial notification", zap.String("order_id", order.ID.Hex()), zap.Error(err))
		return err
	}
	if !res.Applied {
		log.Info("denial ignored, order already final",
			zap.String("order_id", order.ID.Hex()),
			zap.String("status", string(res.Order.Status)),
		)
	}
	return nil
}

// locate decodes a capture resource and loads the order it refers to. ok is
// false when processing should stop; err is then the value to return.
func (r *Reconciler) locate(ctx context.Context, log *zap.Logger, event Event) (captureResource, models.Order, bool, error) {
	var res captureResource
	if err := json.Unmarshal(event.Resource, &res); err != nil {
		log.Error("capture resource is malformed", zap.Error(err))
		return res, models.Order{}, false, nil
	}
	externalOrderID := res.SupplementaryData.RelatedIDs.OrderID
	if externalOrderID == "" {
		log.Error("capture notification has no related order id", zap.String("capture_id", res.ID))
		return res, models.Order{}, false, nil
	}

	order, err := r.orders.FindByExternalOrderID(ctx, externalOrderID)
	if err != nil {
		perr := storeError(err, "could not load order")
		log.Error("could not load order for notification",
			zap.String("external_order_id", externalOrderID),
			zap.Error(err),
		)
		return res, models.Order{}, false, perr
	}
	return res, order, true, nil
}
