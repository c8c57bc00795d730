package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fashionadmin/internal/models"
	"fashionadmin/internal/paypal"
	"fashionadmin/internal/store"
)

func requireKind(t *testing.T, err error, kind Kind) *Error {
	t.Helper()
	var perr *Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, kind, perr.Kind, perr.Error())
	return perr
}

func TestCheckoutScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created := h.create(t, alice)
	assert.Equal(t, 100.0, created.TotalAmount)
	assert.NotEmpty(t, created.ExternalOrderID)
	assert.Contains(t, created.ApprovalURL, created.ExternalOrderID)

	captured, err := h.svc.CapturePayment(ctx, created.ExternalOrderID, alice)
	require.NoError(t, err)
	assert.Equal(t, created.OrderID, captured.OrderID)
	assert.Equal(t, models.StatusPaid, captured.Status)
	assert.NotEmpty(t, captured.PaymentID)
	assert.Equal(t, 100.0, captured.Amount)

	order, err := h.svc.GetPaymentStatus(ctx, created.OrderID, alice)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, order.Status)
	assert.Equal(t, 100.0, order.TotalAmount)
	assert.Equal(t, captured.PaymentID, order.PaymentID)
	require.NotNil(t, order.PayerInfo)
	assert.Equal(t, "PAYER-1", order.PayerInfo.PayerID)
	assert.Equal(t, "buyer@example.com", order.PayerInfo.Email)
	assert.Equal(t, "100.00", order.CapturedAmount)
	assert.NotNil(t, order.PaidAt)

	assert.Equal(t, []string{"alice"}, h.cart.clearedUsers())
}

func TestCreatePaymentSnapshotsItems(t *testing.T) {
	h := newHarness(t)

	created := h.create(t, alice,
		ItemRequest{ProductID: "p1", Quantity: 1},
		ItemRequest{ProductID: "p2", Quantity: 3},
	)
	assert.Equal(t, 109.97, created.TotalAmount)

	order, err := h.mem.FindByID(context.Background(), created.OrderID)
	require.NoError(t, err)
	require.Len(t, order.Items, 2)
	assert.Equal(t, models.OrderItem{
		ProductID: "p1", Name: "Linen Shirt", UnitPrice: 50, Quantity: 1, ImageURL: "https://cdn.test/p1.jpg",
	}, order.Items[0])
	assert.Equal(t, 19.99, order.Items[1].UnitPrice)
	assert.Equal(t, "alice", order.UserID)
	assert.Equal(t, "USD", order.Currency)
	assert.Equal(t, models.PaymentMethodPayPal, order.PaymentMethod)
	assert.Equal(t, models.StatusPendingPayment, order.Status)
	assert.Equal(t, created.ExternalOrderID, order.ExternalOrderID)
}

func TestPriceSnapshotSurvivesCatalogChange(t *testing.T) {
	h := newHarness(t)
	h.catalog.setPrice("p1", 100)

	created := h.create(t, alice, ItemRequest{ProductID: "p1", Quantity: 1})
	h.catalog.setPrice("p1", 150)

	order, err := h.svc.GetPaymentStatus(context.Background(), created.OrderID, alice)
	require.NoError(t, err)
	assert.Equal(t, 100.0, order.TotalAmount)
	assert.Equal(t, 100.0, order.Items[0].UnitPrice)
}

func TestCreatePaymentValidation(t *testing.T) {
	tests := []struct {
		name string
		in   CreatePaymentInput
	}{
		{"no user", CreatePaymentInput{Items: []ItemRequest{{ProductID: "p1", Quantity: 1}}, ShippingAddress: shipping()}},
		{"no items", CreatePaymentInput{UserID: "alice", ShippingAddress: shipping()}},
		{"zero quantity", CreatePaymentInput{UserID: "alice", Items: []ItemRequest{{ProductID: "p1"}}, ShippingAddress: shipping()}},
		{"negative quantity", CreatePaymentInput{UserID: "alice", Items: []ItemRequest{{ProductID: "p1", Quantity: -1}}, ShippingAddress: shipping()}},
		{"blank product", CreatePaymentInput{UserID: "alice", Items: []ItemRequest{{ProductID: " ", Quantity: 1}}, ShippingAddress: shipping()}},
		{"blank city", CreatePaymentInput{UserID: "alice", Items: []ItemRequest{{ProductID: "p1", Quantity: 1}}, ShippingAddress: func() models.ShippingAddress {
			a := shipping()
			a.City = "   "
			return a
		}()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.svc.CreatePayment(context.Background(), tt.in)
			requireKind(t, err, KindValidation)
			assert.Zero(t, h.gateway.createCalls)
		})
	}
}

func TestCreatePaymentUnknownProduct(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.CreatePayment(ctx, CreatePaymentInput{
		UserID:          "alice",
		Items:           []ItemRequest{{ProductID: "p1", Quantity: 1}, {ProductID: "missing", Quantity: 1}},
		ShippingAddress: shipping(),
	})
	perr := requireKind(t, err, KindProductNotFound)
	assert.Equal(t, "missing", perr.ProductID)

	_, total, err := h.mem.ListOrders(ctx, store.ListFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Zero(t, h.gateway.createCalls)
}

func TestCreatePaymentStoreFailureSkipsGateway(t *testing.T) {
	h := newHarness(t)
	h.flaky.createErr = errStoreDown

	_, err := h.svc.CreatePayment(context.Background(), CreatePaymentInput{
		UserID: "alice", Items: []ItemRequest{{ProductID: "p1", Quantity: 1}}, ShippingAddress: shipping(),
	})
	requireKind(t, err, KindPersistence)
	assert.Zero(t, h.gateway.createCalls)
}

func TestFailedCheckoutLeavesNoOrder(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
	}{
		{"gateway rejects", func(h *harness) {
			h.gateway.createErr = &paypal.RequestError{Operation: "create_order", HTTPStatus: 500, ProcessorMessage: "INTERNAL_SERVER_ERROR"}
		}},
		{"gateway unreachable", func(h *harness) {
			h.gateway.createErr = &paypal.AuthError{Err: context.DeadlineExceeded}
		}},
		{"no approval link", func(h *harness) { h.gateway.noApprovalLink = true }},
		{"attach fails", func(h *harness) { h.flaky.attachErr = store.ErrDuplicateExternalOrderID }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h)

			_, err := h.svc.CreatePayment(context.Background(), CreatePaymentInput{
				UserID: "alice", Items: []ItemRequest{{ProductID: "p1", Quantity: 2}}, ShippingAddress: shipping(),
			})
			perr := requireKind(t, err, KindPaymentCreationFailed)
			assert.NotContains(t, perr.Detail, "INTERNAL_SERVER_ERROR")

			require.NotEmpty(t, h.gateway.lastReference)
			_, err = h.mem.FindByID(context.Background(), h.gateway.lastReference)
			assert.ErrorIs(t, err, store.ErrOrderNotFound)
		})
	}
}

func TestFailedCompensationStillReportsCreationFailure(t *testing.T) {
	h := newHarness(t)
	h.gateway.createErr = errors.New("boom")
	h.flaky.deleteErr = errStoreDown

	_, err := h.svc.CreatePayment(context.Background(), CreatePaymentInput{
		UserID: "alice", Items: []ItemRequest{{ProductID: "p1", Quantity: 1}}, ShippingAddress: shipping(),
	})
	requireKind(t, err, KindPaymentCreationFailed)
}

func TestCaptureIsIdempotent(t *testing.T) {
	for _, alreadyCaptured := range []bool{false, true} {
		name := "processor replays capture"
		if alreadyCaptured {
			name = "processor reports already captured"
		}
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			h.gateway.alreadyCaptured = alreadyCaptured
			ctx := context.Background()
			created := h.create(t, alice)

			first, err := h.svc.CapturePayment(ctx, created.ExternalOrderID, alice)
			require.NoError(t, err)
			second, err := h.svc.CapturePayment(ctx, created.ExternalOrderID, alice)
			require.NoError(t, err)

			assert.Equal(t, models.StatusPaid, second.Status)
			assert.Equal(t, first.PaymentID, second.PaymentID)
			require.NotNil(t, first.Order.PaidAt)
			require.NotNil(t, second.Order.PaidAt)
			assert.True(t, first.Order.PaidAt.Equal(*second.Order.PaidAt))
			assert.Equal(t, 2, h.gateway.captureCalls)
		})
	}
}

func TestCaptureRecoversOutOfBandCapture(t *testing.T) {
	h := newHarness(t)
	h.gateway.alreadyCaptured = true
	created := h.create(t, alice)
	c := h.gateway.captureOutOfBand(created.ExternalOrderID)

	res, err := h.svc.CapturePayment(context.Background(), created.ExternalOrderID, alice)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, res.Status)
	assert.Equal(t, c.TransactionID, res.PaymentID)
}

func TestCaptureFailureTouchesNothing(t *testing.T) {
	h := newHarness(t)
	created := h.create(t, alice)
	h.gateway.captureErr = &paypal.RequestError{Operation: "capture_order", HTTPStatus: 422, Issues: []string{"INSTRUMENT_DECLINED"}}

	_, err := h.svc.CapturePayment(context.Background(), created.ExternalOrderID, alice)
	requireKind(t, err, KindCaptureFailed)

	order, err := h.mem.FindByID(context.Background(), created.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingPayment, order.Status)
	assert.Empty(t, order.PaymentID)
	assert.Empty(t, h.cart.clearedUsers())
}

func TestCaptureDeclinedMarksFailed(t *testing.T) {
	h := newHarness(t)
	h.gateway.captureStatus = paypal.CaptureStatusDeclined
	created := h.create(t, alice)

	_, err := h.svc.CapturePayment(context.Background(), created.ExternalOrderID, alice)
	requireKind(t, err, KindCaptureFailed)

	order, err := h.mem.FindByID(context.Background(), created.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaymentFailed, order.Status)
	assert.Equal(t, "capture_declined", order.FailureReason)
	assert.NotNil(t, order.FailedAt)
}

func TestCapturePendingLeavesOrderPending(t *testing.T) {
	h := newHarness(t)
	h.gateway.captureStatus = paypal.CaptureStatusPending
	created := h.create(t, alice)

	_, err := h.svc.CapturePayment(context.Background(), created.ExternalOrderID, alice)
	requireKind(t, err, KindCaptureFailed)

	order, err := h.mem.FindByID(context.Background(), created.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingPayment, order.Status)
}

func TestCaptureAmountMismatch(t *testing.T) {
	h := newHarness(t)
	h.gateway.captureAmount = "1.00"
	created := h.create(t, alice)

	_, err := h.svc.CapturePayment(context.Background(), created.ExternalOrderID, alice)
	requireKind(t, err, KindAmountMismatch)

	order, err := h.mem.FindByID(context.Background(), created.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaymentFailed, order.Status)
	assert.Equal(t, failureAmountMismatch, order.FailureReason)
	assert.Equal(t, "CAP-"+created.ExternalOrderID, order.PaymentID)
	assert.Equal(t, "1.00", order.CapturedAmount)
	assert.Empty(t, h.cart.clearedUsers())
}

func TestCaptureUnknownOrder(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.CapturePayment(context.Background(), "PP-404", alice)
	requireKind(t, err, KindOrderNotFound)

	_, err = h.svc.CapturePayment(context.Background(), "  ", alice)
	requireKind(t, err, KindValidation)
}

func TestCaptureAfterCancelIsInvalidTransition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created := h.create(t, alice)

	_, err := h.svc.CancelPayment(ctx, created.OrderID, alice)
	require.NoError(t, err)

	_, err = h.svc.CapturePayment(ctx, created.ExternalOrderID, alice)
	requireKind(t, err, KindInvalidTransition)

	order, err := h.mem.FindByID(ctx, created.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, order.Status)
}

func TestCartFailureDoesNotFailCapture(t *testing.T) {
	h := newHarness(t)
	h.cart.err = errors.New("cart unavailable")
	created := h.create(t, alice)

	res, err := h.svc.CapturePayment(context.Background(), created.ExternalOrderID, alice)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, res.Status)
	assert.Equal(t, []string{"alice"}, h.cart.clearedUsers())
}

func TestCancelPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("owner cancels pending order", func(t *testing.T) {
		h := newHarness(t)
		created := h.create(t, alice)

		order, err := h.svc.CancelPayment(ctx, created.OrderID, alice)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, order.Status)
		assert.NotNil(t, order.CancelledAt)
	})

	t.Run("other user is forbidden", func(t *testing.T) {
		h := newHarness(t)
		created := h.create(t, alice)

		_, err := h.svc.CancelPayment(ctx, created.OrderID, bob)
		requireKind(t, err, KindForbidden)

		order, err := h.mem.FindByID(ctx, created.OrderID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPendingPayment, order.Status)
	})

	t.Run("paid order is not cancellable", func(t *testing.T) {
		h := newHarness(t)
		created := h.create(t, alice)
		_, err := h.svc.CapturePayment(ctx, created.ExternalOrderID, alice)
		require.NoError(t, err)

		_, err = h.svc.CancelPayment(ctx, created.OrderID, alice)
		requireKind(t, err, KindInvalidTransition)

		order, err := h.mem.FindByID(ctx, created.OrderID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPaid, order.Status)
		assert.Nil(t, order.CancelledAt)
	})

	t.Run("missing order", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.svc.CancelPayment(ctx, "5f2b6c1a9d3e4f0012345678", alice)
		requireKind(t, err, KindOrderNotFound)
	})
}

func TestGetPaymentStatusOwnership(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created := h.create(t, alice)

	order, err := h.svc.GetPaymentStatus(ctx, created.OrderID, bob)
	requireKind(t, err, KindForbidden)
	assert.Zero(t, order)

	order, err = h.svc.GetPaymentStatus(ctx, created.OrderID, admin)
	require.NoError(t, err)
	assert.Equal(t, created.OrderID, order.ID.Hex())

	_, err = h.svc.GetPaymentStatus(ctx, "not-an-id", alice)
	requireKind(t, err, KindOrderNotFound)
}

func TestListOrders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a1 := h.create(t, alice)
	h.create(t, alice)
	h.create(t, bob)
	_, err := h.svc.CapturePayment(ctx, a1.ExternalOrderID, alice)
	require.NoError(t, err)

	page, err := h.svc.ListOrders(ctx, ListOrdersInput{Requester: alice})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	assert.Equal(t, int64(1), page.Page)
	assert.Equal(t, int64(20), page.Limit)
	for _, o := range page.Orders {
		assert.Equal(t, "alice", o.UserID)
	}

	page, err = h.svc.ListOrders(ctx, ListOrdersInput{Requester: admin, AllUsers: true, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Len(t, page.Orders, 2)
	assert.Equal(t, int64(2), page.TotalPages)

	page, err = h.svc.ListOrders(ctx, ListOrdersInput{Requester: admin, AllUsers: true, Status: models.StatusPaid})
	require.NoError(t, err)
	require.Len(t, page.Orders, 1)
	assert.Equal(t, a1.OrderID, page.Orders[0].ID.Hex())

	_, err = h.svc.ListOrders(ctx, ListOrdersInput{Requester: bob, AllUsers: true})
	requireKind(t, err, KindForbidden)

	_, err = h.svc.ListOrders(ctx, ListOrdersInput{Requester: admin, AllUsers: true, Status: "shipped"})
	requireKind(t, err, KindValidation)
}

func TestReconcileOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("completed capture marks paid", func(t *testing.T) {
		h := newHarness(t)
		created := h.create(t, alice)
		c := h.gateway.captureOutOfBand(created.ExternalOrderID)

		res, err := h.svc.ReconcileOrder(ctx, created.OrderID)
		require.NoError(t, err)
		assert.True(t, res.Applied)
		assert.Equal(t, paypal.OrderStatusCompleted, res.RemoteStatus)
		assert.Equal(t, models.StatusPaid, res.Order.Status)
		assert.Equal(t, c.TransactionID, res.Order.PaymentID)
	})

	t.Run("declined capture marks failed", func(t *testing.T) {
		h := newHarness(t)
		created := h.create(t, alice)
		h.gateway.details[created.ExternalOrderID] = paypal.OrderDetails{
			ID: created.ExternalOrderID, Status: paypal.OrderStatusCompleted,
			Captures: []paypal.CaptureDetail{{ID: "CAP-X", Status: paypal.CaptureStatusDeclined}},
		}

		res, err := h.svc.ReconcileOrder(ctx, created.OrderID)
		require.NoError(t, err)
		assert.True(t, res.Applied)
		assert.Equal(t, models.StatusPaymentFailed, res.Order.Status)
	})

	t.Run("voided order is cancelled", func(t *testing.T) {
		h := newHarness(t)
		created := h.create(t, alice)
		h.gateway.details[created.ExternalOrderID] = paypal.OrderDetails{ID: created.ExternalOrderID, Status: paypal.OrderStatusVoided}

		res, err := h.svc.ReconcileOrder(ctx, created.OrderID)
		require.NoError(t, err)
		assert.True(t, res.Applied)
		assert.Equal(t, models.StatusCancelled, res.Order.Status)
	})

	t.Run("approved order stays pending", func(t *testing.T) {
		h := newHarness(t)
		created := h.create(t, alice)

		res, err := h.svc.ReconcileOrder(ctx, created.OrderID)
		require.NoError(t, err)
		assert.False(t, res.Applied)
		assert.Equal(t, paypal.OrderStatusApproved, res.RemoteStatus)
		assert.Equal(t, models.StatusPendingPayment, res.Order.Status)
	})

	t.Run("terminal order is left alone", func(t *testing.T) {
		h := newHarness(t)
		created := h.create(t, alice)
		_, err := h.svc.CancelPayment(ctx, created.OrderID, alice)
		require.NoError(t, err)
		h.gateway.detailsErr = errors.New("must not be called")

		res, err := h.svc.ReconcileOrder(ctx, created.OrderID)
		require.NoError(t, err)
		assert.False(t, res.Applied)
		assert.Equal(t, models.StatusCancelled, res.Order.Status)
	})

	t.Run("gateway failure", func(t *testing.T) {
		h := newHarness(t)
		created := h.create(t, alice)
		h.gateway.detailsErr = &paypal.RequestError{Operation: "get_order"}

		_, err := h.svc.ReconcileOrder(ctx, created.OrderID)
		requireKind(t, err, KindGateway)
	})
}

func TestAmountMatches(t *testing.T) {
	order := models.Order{TotalAmount: 100, Currency: "USD"}

	assert.True(t, amountMatches(order, paypal.Money{CurrencyCode: "USD", Value: "100.00"}))
	assert.True(t, amountMatches(order, paypal.Money{CurrencyCode: "usd", Value: "100"}))
	assert.False(t, amountMatches(order, paypal.Money{CurrencyCode: "EUR", Value: "100.00"}))
	assert.False(t, amountMatches(order, paypal.Money{CurrencyCode: "USD", Value: "99.99"}))
	assert.False(t, amountMatches(order, paypal.Money{CurrencyCode: "USD"}))
}

func TestOrderTotal(t *testing.T) {
	total := orderTotal([]models.OrderItem{
		{UnitPrice: 19.99, Quantity: 3},
		{UnitPrice: 0.1, Quantity: 3},
	})
	assert.Equal(t, "60.27", total.StringFixed(2))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindForbidden, KindOf(newError(KindForbidden, "no", nil)))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, KindOrderNotFound, KindOf(storeError(store.ErrOrderNotFound, "x")))
	assert.Equal(t, KindPersistence, KindOf(storeError(errStoreDown, "x")))
}
