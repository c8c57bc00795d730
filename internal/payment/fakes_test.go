package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"

	"fashionadmin/internal/catalog"
	"fashionadmin/internal/models"
	"fashionadmin/internal/paypal"
	"fashionadmin/internal/store"
)

// fakeGateway imitates the processor: captures are keyed by external order id
// and repeated captures return the first result.
type fakeGateway struct {
	mu sync.Mutex

	createErr       error
	noApprovalLink  bool
	captureErr      error
	captureStatus   string
	captureAmount   string
	alreadyCaptured bool
	detailsErr      error
	details         map[string]paypal.OrderDetails

	nextID        int
	lastReference string
	amounts       map[string]decimal.Decimal
	captures      map[string]paypal.Capture
	createCalls   int
	captureCalls  int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		amounts:  make(map[string]decimal.Decimal),
		captures: make(map[string]paypal.Capture),
		details:  make(map[string]paypal.OrderDetails),
	}
}

func (g *fakeGateway) Currency() string { return "USD" }

func (g *fakeGateway) CreateOrder(_ context.Context, in paypal.CreateOrderRequest) (paypal.CreatedOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.createCalls++
	g.lastReference = in.ReferenceID
	if g.createErr != nil {
		return paypal.CreatedOrder{}, g.createErr
	}
	g.nextID++
	id := fmt.Sprintf("PP-%d", g.nextID)
	g.amounts[id] = in.Amount

	out := paypal.CreatedOrder{ID: id, Status: "CREATED"}
	if !g.noApprovalLink {
		out.ApprovalLink = "https://www.sandbox.paypal.com/checkoutnow?token=" + id
	}
	return out, nil
}

func (g *fakeGateway) CaptureOrder(_ context.Context, externalOrderID string) (paypal.Capture, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.captureCalls++
	if g.captureErr != nil {
		return paypal.Capture{}, g.captureErr
	}
	if existing, ok := g.captures[externalOrderID]; ok {
		if g.alreadyCaptured {
			return paypal.Capture{}, alreadyCapturedErr()
		}
		return existing, nil
	}

	c := g.newCapture(externalOrderID)
	g.captures[externalOrderID] = c
	return c, nil
}

// captureOutOfBand records a capture without going through CaptureOrder.
func (g *fakeGateway) captureOutOfBand(externalOrderID string) paypal.Capture {
	g.mu.Lock()
	defer g.mu.Unlock()
	c := g.newCapture(externalOrderID)
	g.captures[externalOrderID] = c
	return c
}

func (g *fakeGateway) newCapture(externalOrderID string) paypal.Capture {
	status := g.captureStatus
	if status == "" {
		status = paypal.CaptureStatusCompleted
	}
	amount := g.amounts[externalOrderID].StringFixed(2)
	if g.captureAmount != "" {
		amount = g.captureAmount
	}
	return paypal.Capture{
		OrderID:       externalOrderID,
		Status:        status,
		TransactionID: "CAP-" + externalOrderID,
		Amount:        paypal.Money{CurrencyCode: "USD", Value: amount},
		Payer: &paypal.Payer{
			PayerID:      "PAYER-1",
			EmailAddress: "buyer@example.com",
			Name:         &paypal.PayerName{GivenName: "Ada", Surname: "Lovelace"},
		},
	}
}

func (g *fakeGateway) GetOrderDetails(_ context.Context, externalOrderID string) (paypal.OrderDetails, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.detailsErr != nil {
		return paypal.OrderDetails{}, g.detailsErr
	}
	if d, ok := g.details[externalOrderID]; ok {
		return d, nil
	}
	if c, ok := g.captures[externalOrderID]; ok {
		return paypal.OrderDetails{
			ID:     externalOrderID,
			Status: paypal.OrderStatusCompleted,
			Payer:  c.Payer,
			Captures: []paypal.CaptureDetail{{
				ID: c.TransactionID, Status: c.Status, Amount: c.Amount,
			}},
		}, nil
	}
	return paypal.OrderDetails{ID: externalOrderID, Status: paypal.OrderStatusApproved}, nil
}

func alreadyCapturedErr() error {
	return &paypal.RequestError{
		Operation:        "capture_order",
		HTTPStatus:       http.StatusUnprocessableEntity,
		ProcessorMessage: "UNPROCESSABLE_ENTITY",
		Issues:           []string{"ORDER_ALREADY_CAPTURED"},
	}
}

type fakeCatalog struct {
	mu       sync.Mutex
	products map[string]catalog.Product
	err      error
}

func newFakeCatalog(products ...catalog.Product) *fakeCatalog {
	c := &fakeCatalog{products: make(map[string]catalog.Product)}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

func (c *fakeCatalog) GetProductByID(_ context.Context, id string) (catalog.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return catalog.Product{}, c.err
	}
	p, ok := c.products[id]
	if !ok {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	return p, nil
}

func (c *fakeCatalog) setPrice(id string, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.products[id]
	p.Price = price
	c.products[id] = p
}

type fakeCart struct {
	mu      sync.Mutex
	cleared []string
	err     error
}

func (c *fakeCart) ClearCart(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleared = append(c.cleared, userID)
	return c.err
}

func (c *fakeCart) clearedUsers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.cleared...)
}

type fakeVerifier struct {
	reject bool
}

func (v fakeVerifier) VerifyNotification(context.Context, http.Header, []byte) bool {
	return !v.reject
}

// flakyStore fails selected operations of an in-memory store.
type flakyStore struct {
	*store.MemoryOrderStore
	attachErr  error
	deleteErr  error
	findExtErr error
	createErr  error
}

func (s *flakyStore) CreatePendingOrder(ctx context.Context, draft models.Order) (models.Order, error) {
	if s.createErr != nil {
		return models.Order{}, s.createErr
	}
	return s.MemoryOrderStore.CreatePendingOrder(ctx, draft)
}

func (s *flakyStore) AttachExternalOrderID(ctx context.Context, orderID, externalOrderID string) error {
	if s.attachErr != nil {
		return s.attachErr
	}
	return s.MemoryOrderStore.AttachExternalOrderID(ctx, orderID, externalOrderID)
}

func (s *flakyStore) DeletePendingOrder(ctx context.Context, orderID string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.MemoryOrderStore.DeletePendingOrder(ctx, orderID)
}

func (s *flakyStore) FindByExternalOrderID(ctx context.Context, externalOrderID string) (models.Order, error) {
	if s.findExtErr != nil {
		return models.Order{}, s.findExtErr
	}
	return s.MemoryOrderStore.FindByExternalOrderID(ctx, externalOrderID)
}

var errStoreDown = &store.PersistenceError{Op: "find", Err: errors.New("connection reset")}

type harness struct {
	svc      *Service
	rec      *Reconciler
	gateway  *fakeGateway
	mem      *store.MemoryOrderStore
	flaky    *flakyStore
	catalog  *fakeCatalog
	cart     *fakeCart
	verifier *fakeVerifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	mem := store.NewMemoryOrderStore()
	h := &harness{
		gateway: newFakeGateway(),
		mem:     mem,
		flaky:   &flakyStore{MemoryOrderStore: mem},
		catalog: newFakeCatalog(
			catalog.Product{ID: "p1", Name: "Linen Shirt", Price: 50, ImageURL: "https://cdn.test/p1.jpg"},
			catalog.Product{ID: "p2", Name: "Silk Scarf", Price: 19.99},
		),
		cart:     &fakeCart{},
		verifier: &fakeVerifier{},
	}
	h.svc = NewService(h.gateway, h.flaky, h.catalog, h.cart, logger)
	h.rec = NewReconciler(h.verifier, h.flaky, logger)
	return h
}

var (
	alice = models.Identity{UserID: "alice", Role: models.RoleUser}
	bob   = models.Identity{UserID: "bob", Role: models.RoleUser}
	admin = models.Identity{UserID: "root", Role: models.RoleAdmin}
)

func shipping() models.ShippingAddress {
	return models.ShippingAddress{
		Name: "Alice", Address: "1 Main St", City: "Springfield",
		State: "IL", ZipCode: "62701", Country: "US",
	}
}

func (h *harness) create(t *testing.T, user models.Identity, items ...ItemRequest) CreatePaymentResult {
	t.Helper()
	if len(items) == 0 {
		items = []ItemRequest{{ProductID: "p1", Quantity: 2}}
	}
	res, err := h.svc.CreatePayment(context.Background(), CreatePaymentInput{
		UserID:          user.UserID,
		Items:           items,
		ShippingAddress: shipping(),
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	return res
}

func captureEvent(eventType, externalOrderID, captureID, amount string) []byte {
	resource := map[string]any{
		"id":     captureID,
		"status": "COMPLETED",
		"amount": map[string]string{"currency_code": "USD", "value": amount},
	}
	if externalOrderID != "" {
		resource["supplementary_data"] = map[string]any{
			"related_ids": map[string]string{"order_id": externalOrderID},
		}
	}
	body, _ := json.Marshal(map[string]any{
		"id":            "WH-" + captureID,
		"event_type":    eventType,
		"resource_type": "capture",
		"resource":      resource,
	})
	return body
}
