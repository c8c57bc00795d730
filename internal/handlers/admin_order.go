package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ListOrders is the admin view over every user's orders, optionally filtered
// by ?status=.
func ListOrders(svc PaymentService, logger *zap.Logger) gin.HandlerFunc {
	return listOrders(svc, logger, "GET /admin/orders", true)
}

// ReconcileOrder pulls the processor's view of a pending order and applies it.
func ReconcileOrder(svc PaymentService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /admin/payments/reconcile/:orderId"
		defer handlePanic(c, logger, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), paymentRequestTimeout)
		defer cancel()

		res, err := svc.ReconcileOrder(ctx, c.Param("orderId"))
		if err != nil {
			respondPaymentError(c, logger, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"order":        res.Order,
			"applied":      res.Applied,
			"remoteStatus": res.RemoteStatus,
		})
	}
}

// Health reports whether the database answers a ping.
func Health(ping func(ctx context.Context) error, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		if err := ping(ctx); err != nil {
			logger.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": "down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "up"})
	}
}
