package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"fashionadmin/internal/payment"
)

func handlePanic(c *gin.Context, logger *zap.Logger, route string) {
	if r := recover(); r != nil {
		logger.Error("panic recovered", zap.String("route", route), zap.Any("panic", r), zap.Stack("stack"))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func respondWithError(c *gin.Context, logger *zap.Logger, status int, route string, message string) {
	logger.Info("returning error", zap.String("route", route), zap.Int("status", status), zap.String("message", message))
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// respondBindError renders binding failures; validator errors are listed
// field by field.
func respondBindError(c *gin.Context, logger *zap.Logger, route string, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		respondWithError(c, logger, http.StatusBadRequest, route, "invalid request body")
		return
	}

	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, describeFieldError(fe))
	}
	logger.Info("validation failed", zap.String("route", route), zap.Strings("details", details))
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": details})
}

func describeFieldError(fe validator.FieldError) string {
	field := fieldPath(fe.Namespace())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must have at least %s entries", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

// fieldPath turns "createPaymentRequest.ShippingAddress.ZipCode" into
// "shippingAddress.zipCode".
func fieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToLower(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, ".")
}

func statusForKind(kind payment.Kind) int {
	switch kind {
	case payment.KindValidation, payment.KindProductNotFound, payment.KindInvalidTransition,
		payment.KindCaptureFailed, payment.KindAmountMismatch:
		return http.StatusBadRequest
	case payment.KindOrderNotFound:
		return http.StatusNotFound
	case payment.KindForbidden:
		return http.StatusForbidden
	case payment.KindInvalidSignature:
		return http.StatusUnauthorized
	case payment.KindGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondPaymentError maps a payment error to its status code. Only Detail
// reaches the client; the cause is logged.
func respondPaymentError(c *gin.Context, logger *zap.Logger, route string, err error) {
	var perr *payment.Error
	if !errors.As(err, &perr) {
		logger.Error("unexpected error", zap.String("route", route), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	status := statusForKind(perr.Kind)
	fields := []zap.Field{
		zap.String("route", route),
		zap.Int("status", status),
		zap.String("kind", string(perr.Kind)),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		logger.Error("payment request failed", fields...)
	} else {
		logger.Info("payment request rejected", fields...)
	}

	body := gin.H{"error": perr.Detail, "code": string(perr.Kind)}
	if perr.ProductID != "" {
		body["productId"] = perr.ProductID
	}
	c.AbortWithStatusJSON(status, body)
}
