// Package payment drives the order payment lifecycle: checkout creation,
// capture, cancellation and processor-pushed reconciliation.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"fashionadmin/internal/catalog"
	"fashionadmin/internal/models"
	"fashionadmin/internal/paypal"
	"fashionadmin/internal/store"
)

const (
	defaultCartTimeout  = 5 * time.Second
	compensationTimeout = 10 * time.Second
	maxItemQuantity     = 999
)

type ItemRequest struct {
	ProductID string
	Quantity  int
}

type CreatePaymentInput struct {
	UserID          string
	Items           []ItemRequest
	ShippingAddress models.ShippingAddress
}

type CreatePaymentResult struct {
	OrderID         string
	ExternalOrderID string
	ApprovalURL     string
	TotalAmount     float64
}

type CaptureResult struct {
	OrderID   string
	PaymentID string
	Status    models.OrderStatus
	Amount    float64
	Order     models.Order
}

type ListOrdersInput struct {
	Requester models.Identity
	// AllUsers lists every user's orders and needs the admin role.
	AllUsers bool
	Status   models.OrderStatus
	Page     int64
	Limit    int64
}

type OrderPage struct {
	Orders     []models.Order
	Total      int64
	Page       int64
	Limit      int64
	TotalPages int64
}

type ReconcileResult struct {
	Order        models.Order
	Applied      bool
	RemoteStatus string
}

type Service struct {
	gateway Gateway
	orders  OrderStore
	catalog Catalog
	cart    Cart
	logger  *zap.Logger
	ledger  ledger

	cartTimeout time.Duration
}

func NewService(gateway Gateway, orders OrderStore, products Catalog, cart Cart, logger *zap.Logger) *Service {
	logger = logger.Named("payment")
	return &Service{
		gateway:     gateway,
		orders:      orders,
		catalog:     products,
		cart:        cart,
		logger:      logger,
		ledger:      ledger{orders: orders, logger: logger, now: func() time.Time { return time.Now().UTC() }},
		cartTimeout: defaultCartTimeout,
	}
}

// CreatePayment snapshots current catalog prices into a pending order and
// opens a matching processor order. A pending order never outlives a failed
// processor call.
func (s *Service) CreatePayment(ctx context.Context, in CreatePaymentInput) (CreatePaymentResult, error) {
	if err := in.validate(); err != nil {
		return CreatePaymentResult{}, err
	}

	items := make([]models.OrderItem, 0, len(in.Items))
	lines := make([]paypal.LineItem, 0, len(in.Items))
	for _, req := range in.Items {
		p, err := s.catalog.GetProductByID(ctx, req.ProductID)
		if errors.Is(err, catalog.ErrProductNotFound) {
			paymentsCreated.WithLabelValues("product_not_found").Inc()
			return CreatePaymentResult{}, &Error{
				Kind:      KindProductNotFound,
				Detail:    fmt.Sprintf("product %s not found", req.ProductID),
				ProductID: req.ProductID,
				Err:       err,
			}
		}
		if err != nil {
			return CreatePaymentResult{}, newError(KindPersistence, "could not load products", err)
		}

		price := unitPrice(p.Price)
		if !price.IsPositive() {
			return CreatePaymentResult{}, &Error{
				Kind:      KindValidation,
				Detail:    fmt.Sprintf("product %s has no valid price", req.ProductID),
				ProductID: req.ProductID,
			}
		}
		items = append(items, models.OrderItem{
			ProductID:   p.ID,
			Name:        p.Name,
			Description: p.Description,
			UnitPrice:   price.InexactFloat64(),
			Quantity:    req.Quantity,
			ImageURL:    p.ImageURL,
		})
		lines = append(lines, paypal.LineItem{
			Name:        p.Name,
			Description: p.Description,
			UnitAmount:  price,
			Quantity:    req.Quantity,
		})
	}

	total := orderTotal(items)
	order, err := s.orders.CreatePendingOrder(ctx, models.Order{
		UserID:          in.UserID,
		Items:           items,
		TotalAmount:     total.InexactFloat64(),
		Currency:        s.gateway.Currency(),
		ShippingAddress: in.ShippingAddress.Trimmed(),
		PaymentMethod:   models.PaymentMethodPayPal,
	})
	if err != nil {
		paymentsCreated.WithLabelValues("store_error").Inc()
		return CreatePaymentResult{}, newError(KindPersistence, "could not create order", err)
	}
	orderID := order.ID.Hex()
	log := s.logger.With(zap.String("order_id", orderID), zap.String("user_id", in.UserID))

	created, err := s.gateway.CreateOrder(ctx, paypal.CreateOrderRequest{
		ReferenceID: orderID,
		Description: "Order " + orderID,
		Amount:      total,
		Items:       lines,
	})
	if err == nil && created.ApprovalLink == "" {
		err = errors.New("processor returned no approval link")
	}
	if err != nil {
		s.compensate(ctx, log, orderID, err)
		paymentsCreated.WithLabelValues("gateway_error").Inc()
		return CreatePaymentResult{}, newError(KindPaymentCreationFailed, "payment processor could not create the order", err)
	}

	log = log.With(zap.String("external_order_id", created.ID))
	if err := s.orders.AttachExternalOrderID(ctx, orderID, created.ID); err != nil {
		s.compensate(ctx, log, orderID, err)
		paymentsCreated.WithLabelValues("store_error").Inc()
		return CreatePaymentResult{}, newError(KindPaymentCreationFailed, "could not record the processor order", err)
	}

	paymentsCreated.WithLabelValues("ok").Inc()
	log.Info("payment created", zap.String("total", total.StringFixed(2)))
	return CreatePaymentResult{
		OrderID:         orderID,
		ExternalOrderID: created.ID,
		ApprovalURL:     created.ApprovalLink,
		TotalAmount:     total.InexactFloat64(),
	}, nil
}

// compensate removes the pending order created for a checkout that could not
// be completed. It survives cancellation of the request context.
func (s *Service) compensate(ctx context.Context, log *zap.Logger, orderID string, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	if err := s.orders.DeletePendingOrder(ctx, orderID); err != nil {
		log.Error("could not delete pending order after failed checkout",
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return
	}
	log.Warn("checkout failed, pending order removed", zap.Error(cause))
}

// CapturePayment finalizes the processor order and marks the local order paid.
// Repeating the call, or racing a webhook for the same order, converges on the
// same paid state.
func (s *Service) CapturePayment(ctx context.Context, externalOrderID string, requester models.Identity) (CaptureResult, error) {
	externalOrderID = strings.TrimSpace(externalOrderID)
	if externalOrderID == "" {
		return CaptureResult{}, newError(KindValidation, "external order id is required", nil)
	}
	log := s.logger.With(zap.String("external_order_id", externalOrderID), zap.String("user_id", requester.UserID))

	capture, err := s.gateway.CaptureOrder(ctx, externalOrderID)
	if paypal.IsAlreadyCaptured(err) {
		log.Info("processor reports order already captured")
		return s.recoverCaptured(ctx, externalOrderID)
	}
	if err != nil {
		log.Warn("capture failed", zap.Error(err))
		return CaptureResult{}, newError(KindCaptureFailed, "payment capture failed", err)
	}

	order, err := s.orders.FindByExternalOrderID(ctx, externalOrderID)
	if err != nil {
		log.Error("captured order has no local record", zap.Error(err))
		return CaptureResult{}, storeError(err, "could not load order")
	}

	switch capture.Status {
	case paypal.CaptureStatusCompleted:
	case paypal.CaptureStatusDeclined, paypal.CaptureStatusFailed:
		if _, err := s.ledger.fail(ctx, order, "capture_"+strings.ToLower(capture.Status), sourceCapture); err != nil {
			return CaptureResult{}, err
		}
		return CaptureResult{}, newError(KindCaptureFailed, "payment was declined", nil)
	default:
		log.Info("capture not completed yet", zap.String("capture_status", capture.Status))
		return CaptureResult{}, newError(KindCaptureFailed, "payment capture is pending at the processor", nil)
	}

	paid, err := s.ledger.settle(ctx, order, settlement{
		PaymentID: capture.TransactionID,
		Amount:    capture.Amount,
		Payer:     capture.Payer,
	}, sourceCapture)
	if err != nil {
		return CaptureResult{}, err
	}

	s.clearCart(ctx, paid.UserID)
	return captureResult(paid), nil
}

// recoverCaptured resolves a capture the processor had already performed,
// either by us on an earlier attempt or out of band.
func (s *Service) recoverCaptured(ctx context.Context, externalOrderID string) (CaptureResult, error) {
	order, err := s.orders.FindByExternalOrderID(ctx, externalOrderID)
	if err != nil {
		return CaptureResult{}, storeError(err, "could not load order")
	}
	if order.Status == models.StatusPaid {
		return captureResult(order), nil
	}
	if order.Status != models.StatusPendingPayment {
		s.logger.Error("processor captured an order that is no longer pending",
			zap.String("order_id", order.ID.Hex()),
			zap.String("external_order_id", externalOrderID),
			zap.String("status", string(order.Status)),
		)
		return CaptureResult{}, newError(KindInvalidTransition, "order is no longer pending payment", nil)
	}

	details, err := s.gateway.GetOrderDetails(ctx, externalOrderID)
	if err != nil {
		return CaptureResult{}, newError(KindCaptureFailed, "payment capture failed", err)
	}
	completed, ok := details.CompletedCapture()
	if !ok {
		return CaptureResult{}, newError(KindCaptureFailed, "processor has no completed capture for the order", nil)
	}

	paid, err := s.ledger.settle(ctx, order, settlement{
		PaymentID: completed.ID,
		Amount:    completed.Amount,
		Payer:     details.Payer,
	}, sourceCapture)
	if err != nil {
		return CaptureResult{}, err
	}
	s.clearCart(ctx, paid.UserID)
	return captureResult(paid), nil
}

// clearCart empties the owner's cart. Failure is logged and ignored.
func (s *Service) clearCart(ctx context.Context, userID string) {
	if s.cart == nil || userID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cartTimeout)
	defer cancel()

	if err := s.cart.ClearCart(ctx, userID); err != nil {
		s.logger.Warn("could not clear cart after payment", zap.String("user_id", userID), zap.Error(err))
	}
}

func captureResult(o models.Order) CaptureResult {
	return CaptureResult{
		OrderID:   o.ID.Hex(),
		PaymentID: o.PaymentID,
		Status:    o.Status,
		Amount:    o.TotalAmount,
		Order:     o,
	}
}

// CancelPayment lets the owner abandon a pending order.
func (s *Service) CancelPayment(ctx context.Context, orderID string, requester models.Identity) (models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return models.Order{}, storeError(err, "could not load order")
	}
	if !order.OwnedBy(requester.UserID) {
		return models.Order{}, newError(KindForbidden, "order belongs to another user", nil)
	}
	if order.Status != models.StatusPendingPayment {
		return models.Order{}, newError(KindInvalidTransition, fmt.Sprintf("order is %s and cannot be cancelled", order.Status), nil)
	}

	res, err := s.ledger.cancel(ctx, order, sourceCancel)
	if err != nil {
		return models.Order{}, err
	}
	if !res.Applied {
		return models.Order{}, newError(KindInvalidTransition, fmt.Sprintf("order is %s and cannot be cancelled", res.Order.Status), nil)
	}
	return res.Order, nil
}

// GetPaymentStatus returns the order to its owner or an admin.
func (s *Service) GetPaymentStatus(ctx context.Context, orderID string, requester models.Identity) (models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return models.Order{}, storeError(err, "could not load order")
	}
	if !order.OwnedBy(requester.UserID) && !requester.IsAdmin() {
		return models.Order{}, newError(KindForbidden, "order belongs to another user", nil)
	}
	return order, nil
}

func (s *Service) ListOrders(ctx context.Context, in ListOrdersInput) (OrderPage, error) {
	if in.AllUsers && !in.Requester.IsAdmin() {
		return OrderPage{}, newError(KindForbidden, "admin role required", nil)
	}
	if in.Status != "" && !in.Status.Valid() {
		return OrderPage{}, newError(KindValidation, fmt.Sprintf("unknown status %q", in.Status), nil)
	}

	filter := store.ListFilter{Status: in.Status, Page: in.Page, Limit: in.Limit}
	if !in.AllUsers {
		if in.Requester.UserID == "" {
			return OrderPage{}, newError(KindForbidden, "authentication required", nil)
		}
		filter.UserID = in.Requester.UserID
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 20
	}

	orders, total, err := s.orders.ListOrders(ctx, filter)
	if err != nil {
		return OrderPage{}, newError(KindPersistence, "could not list orders", err)
	}
	return OrderPage{
		Orders:     orders,
		Total:      total,
		Page:       filter.Page,
		Limit:      filter.Limit,
		TotalPages: (total + filter.Limit - 1) / filter.Limit,
	}, nil
}

// ReconcileOrder asks the processor for the order's state and applies the
// matching transition. Terminal orders are returned unchanged.
func (s *Service) ReconcileOrder(ctx context.Context, orderID string) (ReconcileResult, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return ReconcileResult{}, storeError(err, "could not load order")
	}
	if order.Status.IsTerminal() {
		return ReconcileResult{Order: order}, nil
	}
	if order.ExternalOrderID == "" {
		return ReconcileResult{}, newError(KindValidation, "order has no processor order", nil)
	}

	details, err := s.gateway.GetOrderDetails(ctx, order.ExternalOrderID)
	if err != nil {
		return ReconcileResult{}, newError(KindGateway, "could not fetch processor order", err)
	}
	out := ReconcileResult{Order: order, RemoteStatus: details.Status}
	log := s.logger.With(
		zap.String("order_id", orderID),
		zap.String("external_order_id", order.ExternalOrderID),
		zap.String("remote_status", details.Status),
	)

	if completed, ok := details.CompletedCapture(); ok {
		updated, err := s.ledger.settle(ctx, order, settlement{
			PaymentID: completed.ID,
			Amount:    completed.Amount,
			Payer:     details.Payer,
		}, sourceReconcile)
		out.Order = updated
		out.Applied = updated.Status != order.Status
		return out, err
	}

	for _, c := range details.Captures {
		if c.Status == paypal.CaptureStatusDeclined || c.Status == paypal.CaptureStatusFailed {
			res, err := s.ledger.fail(ctx, order, "capture_"+strings.ToLower(c.Status), sourceReconcile)
			if err != nil {
				return out, err
			}
			out.Order, out.Applied = res.Order, res.Applied
			return out, nil
		}
	}

	if details.Status == paypal.OrderStatusVoided {
		res, err := s.ledger.cancel(ctx, order, sourceReconcile)
		if err != nil {
			return out, err
		}
		out.Order, out.Applied = res.Order, res.Applied
		return out, nil
	}

	log.Info("processor order has no final outcome yet")
	return out, nil
}

func (in CreatePaymentInput) validate() error {
	if strings.TrimSpace(in.UserID) == "" {
		return newError(KindValidation, "user id is required", nil)
	}
	if len(in.Items) == 0 {
		return newError(KindValidation, "at least one item is required", nil)
	}
	for i, it := range in.Items {
		if strings.TrimSpace(it.ProductID) == "" {
			return newError(KindValidation, fmt.Sprintf("items[%d]: product id is required", i), nil)
		}
		if it.Quantity <= 0 || it.Quantity > maxItemQuantity {
			return &Error{
				Kind:      KindValidation,
				Detail:    fmt.Sprintf("items[%d]: quantity must be between 1 and %d", i, maxItemQuantity),
				ProductID: it.ProductID,
			}
		}
	}
	if missing := missingAddressFields(in.ShippingAddress); len(missing) > 0 {
		return newError(KindValidation, "shipping address is missing "+strings.Join(missing, ", "), nil)
	}
	return nil
}

func missingAddressFields(a models.ShippingAddress) []string {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"name", a.Name},
		{"address", a.Address},
		{"city", a.City},
		{"state", a.State},
		{"zipCode", a.ZipCode},
		{"country", a.Country},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

