package payment

import (
	"context"
	"net/http"

	"fashionadmin/internal/cart"
	"fashionadmin/internal/catalog"
	"fashionadmin/internal/models"
	"fashionadmin/internal/paypal"
	"fashionadmin/internal/store"
)

type Gateway interface {
	Currency() string
	CreateOrder(ctx context.Context, in paypal.CreateOrderRequest) (paypal.CreatedOrder, error)
	CaptureOrder(ctx context.Context, externalOrderID string) (paypal.Capture, error)
	GetOrderDetails(ctx context.Context, externalOrderID string) (paypal.OrderDetails, error)
}

type OrderStore interface {
	CreatePendingOrder(ctx context.Context, draft models.Order) (models.Order, error)
	AttachExternalOrderID(ctx context.Context, orderID, externalOrderID string) error
	FindByExternalOrderID(ctx context.Context, externalOrderID string) (models.Order, error)
	FindByID(ctx context.Context, orderID string) (models.Order, error)
	TransitionStatus(ctx context.Context, orderID string, t store.Transition) (store.TransitionResult, error)
	DeletePendingOrder(ctx context.Context, orderID string) error
	ListOrders(ctx context.Context, f store.ListFilter) ([]models.Order, int64, error)
}

type Catalog interface {
	GetProductByID(ctx context.Context, id string) (catalog.Product, error)
}

type Cart interface {
	ClearCart(ctx context.Context, userID string) error
}

type Verifier interface {
	VerifyNotification(ctx context.Context, headers http.Header, body []byte) bool
}

var (
	_ Gateway    = (*paypal.Client)(nil)
	_ Verifier   = (*paypal.WebhookVerifier)(nil)
	_ OrderStore = (*store.MongoOrderStore)(nil)
	_ OrderStore = (*store.MemoryOrderStore)(nil)
	_ Catalog    = (*catalog.MongoCatalog)(nil)
	_ Cart       = (*cart.MongoCart)(nil)
)
