package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OrderStatus is the payment lifecycle state of an order.
type OrderStatus string

const (
	StatusPendingPayment OrderStatus = "pending_payment"
	StatusPaid           OrderStatus = "paid"
	StatusPaymentFailed  OrderStatus = "payment_failed"
	StatusCancelled      OrderStatus = "cancelled"
)

const PaymentMethodPayPal = "paypal"

// IsTerminal reports whether no transition leaves the status.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusPaid, StatusPaymentFailed, StatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is one of the known statuses.
func (s OrderStatus) Valid() bool {
	return s == StatusPendingPayment || s.IsTerminal()
}

// CanTransition reports whether from -> to is an edge of the state machine.
// Only pending_payment has outgoing edges and all of them are terminal.
func CanTransition(from, to OrderStatus) bool {
	return from == StatusPendingPayment && to.IsTerminal()
}

// OrderItem is the line item snapshot taken when the order is created.
type OrderItem struct {
	ProductID   string  `bson:"productId" json:"productId"`
	Name        string  `bson:"name" json:"name"`
	Description string  `bson:"description,omitempty" json:"description,omitempty"`
	UnitPrice   float64 `bson:"unitPrice" json:"unitPrice"`
	Quantity    int     `bson:"quantity" json:"quantity"`
	ImageURL    string  `bson:"imageUrl,omitempty" json:"imageUrl,omitempty"`
}

type ShippingAddress struct {
	Name    string `bson:"name" json:"name"`
	Address string `bson:"address" json:"address"`
	City    string `bson:"city" json:"city"`
	State   string `bson:"state" json:"state"`
	ZipCode string `bson:"zipCode" json:"zipCode"`
	Country string `bson:"country" json:"country"`
}

// Trimmed returns a copy with surrounding whitespace removed from every field.
func (a ShippingAddress) Trimmed() ShippingAddress {
	return ShippingAddress{
		Name:    strings.TrimSpace(a.Name),
		Address: strings.TrimSpace(a.Address),
		City:    strings.TrimSpace(a.City),
		State:   strings.TrimSpace(a.State),
		ZipCode: strings.TrimSpace(a.ZipCode),
		Country: strings.TrimSpace(a.Country),
	}
}

// PayerInfo is what the processor reports about the buyer on capture.
type PayerInfo struct {
	PayerID     string `bson:"payerId,omitempty" json:"payerId,omitempty"`
	Email       string `bson:"email,omitempty" json:"email,omitempty"`
	GivenName   string `bson:"givenName,omitempty" json:"givenName,omitempty"`
	Surname     string `bson:"surname,omitempty" json:"surname,omitempty"`
	CountryCode string `bson:"countryCode,omitempty" json:"countryCode,omitempty"`
}

// Order defines the persisted order document.
type Order struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"orderId"`
	ExternalOrderID string             `bson:"externalOrderId,omitempty" json:"externalOrderId,omitempty"`
	UserID          string             `bson:"userId" json:"userId"`
	Items           []OrderItem        `bson:"items" json:"items"`
	TotalAmount     float64            `bson:"totalAmount" json:"totalAmount"`
	Currency        string             `bson:"currency" json:"currency"`
	ShippingAddress ShippingAddress    `bson:"shippingAddress" json:"shippingAddress"`
	PaymentMethod   string             `bson:"paymentMethod" json:"paymentMethod"`
	Status          OrderStatus        `bson:"status" json:"status"`
	PaymentID       string             `bson:"paymentId,omitempty" json:"paymentId,omitempty"`
	PayerInfo       *PayerInfo         `bson:"payerInfo,omitempty" json:"payerInfo,omitempty"`
	CapturedAmount  string             `bson:"capturedAmount,omitempty" json:"capturedAmount,omitempty"`
	FailureReason   string             `bson:"failureReason,omitempty" json:"failureReason,omitempty"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt" json:"updatedAt"`
	PaidAt          *time.Time         `bson:"paidAt,omitempty" json:"paidAt,omitempty"`
	CancelledAt     *time.Time         `bson:"cancelledAt,omitempty" json:"cancelledAt,omitempty"`
	FailedAt        *time.Time         `bson:"failedAt,omitempty" json:"failedAt,omitempty"`
}

// OwnedBy reports whether userID placed the order.
func (o Order) OwnedBy(userID string) bool {
	return userID != "" && o.UserID == userID
}
