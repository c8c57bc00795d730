package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fashionadmin/internal/middleware"
	"fashionadmin/internal/models"
	"fashionadmin/internal/payment"
)

const (
	// covers a processor round trip plus store writes
	paymentRequestTimeout = 30 * time.Second
	maxWebhookBody        = 1 << 20
)

type PaymentService interface {
	CreatePayment(ctx context.Context, in payment.CreatePaymentInput) (payment.CreatePaymentResult, error)
	CapturePayment(ctx context.Context, externalOrderID string, requester models.Identity) (payment.CaptureResult, error)
	CancelPayment(ctx context.Context, orderID string, requester models.Identity) (models.Order, error)
	GetPaymentStatus(ctx context.Context, orderID string, requester models.Identity) (models.Order, error)
	ListOrders(ctx context.Context, in payment.ListOrdersInput) (payment.OrderPage, error)
	ReconcileOrder(ctx context.Context, orderID string) (payment.ReconcileResult, error)
}

type NotificationHandler interface {
	HandleNotification(ctx context.Context, body []byte, headers http.Header) error
}

/* =========================
   REQUEST DTOs
========================= */

type createPaymentItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,gt=0,lte=999"`
}

type shippingAddressRequest struct {
	Name    string `json:"name" binding:"required"`
	Address string `json:"address" binding:"required"`
	City    string `json:"city" binding:"required"`
	State   string `json:"state" binding:"required"`
	ZipCode string `json:"zipCode" binding:"required"`
	Country string `json:"country" binding:"required"`
}

type createPaymentRequest struct {
	Items           []createPaymentItemRequest `json:"items" binding:"required,min=1,dive"`
	ShippingAddress shippingAddressRequest     `json:"shippingAddress" binding:"required"`
}

func (r createPaymentRequest) toInput(userID string) payment.CreatePaymentInput {
	items := make([]payment.ItemRequest, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, payment.ItemRequest{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return payment.CreatePaymentInput{
		UserID: userID,
		Items:  items,
		ShippingAddress: models.ShippingAddress{
			Name:    r.ShippingAddress.Name,
			Address: r.ShippingAddress.Address,
			City:    r.ShippingAddress.City,
			State:   r.ShippingAddress.State,
			ZipCode: r.ShippingAddress.ZipCode,
			Country: r.ShippingAddress.Country,
		},
	}
}

/* =========================
   USER ROUTES
========================= */

func CreatePayment(svc PaymentService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /payments/create"
		defer handlePanic(c, logger, route)

		identity, ok := requireIdentity(c)
		if !ok {
			return
		}

		var req createPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, logger, route, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), paymentRequestTimeout)
		defer cancel()

		res, err := svc.CreatePayment(ctx, req.toInput(identity.UserID))
		if err != nil {
			respondPaymentError(c, logger, route, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"orderId":         res.OrderID,
			"externalOrderId": res.ExternalOrderID,
			"approvalUrl":     res.ApprovalURL,
			"totalAmount":     res.TotalAmount,
		})
	}
}

func CapturePayment(svc PaymentService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /payments/capture/:externalOrderId"
		defer handlePanic(c, logger, route)

		identity, ok := requireIdentity(c)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), paymentRequestTimeout)
		defer cancel()

		res, err := svc.CapturePayment(ctx, c.Param("externalOrderId"), identity)
		if err != nil {
			respondPaymentError(c, logger, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"orderId":   res.OrderID,
			"paymentId": res.PaymentID,
			"status":    res.Status,
			"amount":    res.Amount,
		})
	}
}

func GetPaymentStatus(svc PaymentService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /payments/status/:orderId"
		defer handlePanic(c, logger, route)

		identity, ok := requireIdentity(c)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		order, err := svc.GetPaymentStatus(ctx, c.Param("orderId"), identity)
		if err != nil {
			respondPaymentError(c, logger, route, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

func CancelPayment(svc PaymentService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /payments/cancel/:orderId"
		defer handlePanic(c, logger, route)

		identity, ok := requireIdentity(c)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		order, err := svc.CancelPayment(ctx, c.Param("orderId"), identity)
		if err != nil {
			respondPaymentError(c, logger, route, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "order cancelled", "order": order})
	}
}

func ListMyOrders(svc PaymentService, logger *zap.Logger) gin.HandlerFunc {
	return listOrders(svc, logger, "GET /payments/orders", false)
}

/* =========================
   PROCESSOR WEBHOOK
========================= */

// PayPalWebhook answers 200 for anything that should not be delivered again,
// 401 for a bad signature and 500 when the processor should retry.
func PayPalWebhook(handler NotificationHandler, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /payments/webhook/paypal"
		defer handlePanic(c, logger, route)

		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
		if err != nil {
			respondWithError(c, logger, http.StatusBadRequest, route, "could not read body")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), paymentRequestTimeout)
		defer cancel()

		err = handler.HandleNotification(ctx, body, c.Request.Header)
		switch payment.KindOf(err) {
		case "":
			if err != nil {
				respondPaymentError(c, logger, route, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"received": true})
		case payment.KindInvalidSignature:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook signature"})
		default:
			logger.Error("webhook processing failed, asking for redelivery", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "webhook processing failed"})
		}
	}
}

/* =========================
   SHARED
========================= */

func listOrders(svc PaymentService, logger *zap.Logger, route string, allUsers bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer handlePanic(c, logger, route)

		identity, ok := requireIdentity(c)
		if !ok {
			return
		}

		page, limit, err := parsePaginationParams(c.Query("page"), c.Query("limit"))
		if err != nil {
			respondWithError(c, logger, http.StatusBadRequest, route, err.Error())
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		res, err := svc.ListOrders(ctx, payment.ListOrdersInput{
			Requester: identity,
			AllUsers:  allUsers,
			Status:    models.OrderStatus(c.Query("status")),
			Page:      page,
			Limit:     limit,
		})
		if err != nil {
			respondPaymentError(c, logger, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"data": res.Orders,
			"pagination": gin.H{
				"page":       res.Page,
				"limit":      res.Limit,
				"total":      res.Total,
				"totalPages": res.TotalPages,
			},
		})
	}
}

func requireIdentity(c *gin.Context) (models.Identity, bool) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok || identity.UserID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return models.Identity{}, false
	}
	return identity, true
}
