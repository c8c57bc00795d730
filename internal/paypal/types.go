package paypal

import "github.com/shopspring/decimal"

// Money is PayPal's amount object. Value is a decimal string.
type Money struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

func NewMoney(currency string, amount decimal.Decimal) Money {
	return Money{CurrencyCode: currency, Value: amount.StringFixed(2)}
}

// Decimal parses Value; a malformed value yields an error rather than zero.
func (m Money) Decimal() (decimal.Decimal, error) {
	return decimal.NewFromString(m.Value)
}

type Link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method,omitempty"`
}

type Payer struct {
	PayerID      string     `json:"payer_id,omitempty"`
	EmailAddress string     `json:"email_address,omitempty"`
	Name         *PayerName `json:"name,omitempty"`
	Address      *struct {
		CountryCode string `json:"country_code,omitempty"`
	} `json:"address,omitempty"`
}

type PayerName struct {
	GivenName string `json:"given_name,omitempty"`
	Surname   string `json:"surname,omitempty"`
}

// LineItem is one purchase-unit item as sent to the processor.
type LineItem struct {
	Name        string
	Description string
	UnitAmount  decimal.Decimal
	Quantity    int
}

type CreateOrderRequest struct {
	ReferenceID string
	Description string
	Amount      decimal.Decimal
	Items       []LineItem
}

type CreatedOrder struct {
	ID           string
	Status       string
	ApprovalLink string
}

type Capture struct {
	OrderID       string
	Status        string
	TransactionID string
	Amount        Money
	Payer         *Payer
}

// CaptureDetail is one capture listed in an order's purchase unit.
type CaptureDetail struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount Money  `json:"amount"`
}

type OrderDetails struct {
	ID       string
	Status   string
	Payer    *Payer
	Captures []CaptureDetail
}

// CompletedCapture returns the first capture in COMPLETED state.
func (d OrderDetails) CompletedCapture() (CaptureDetail, bool) {
	for _, c := range d.Captures {
		if c.Status == CaptureStatusCompleted {
			return c, true
		}
	}
	return CaptureDetail{}, false
}

const (
	OrderStatusCompleted = "COMPLETED"
	OrderStatusApproved  = "APPROVED"
	OrderStatusVoided    = "VOIDED"

	CaptureStatusCompleted = "COMPLETED"
	CaptureStatusDeclined  = "DECLINED"
	CaptureStatusFailed    = "FAILED"
	CaptureStatusPending   = "PENDING"
)

// wire formats

type orderPayload struct {
	Intent             string              `json:"intent"`
	ApplicationContext applicationContext  `json:"application_context"`
	PurchaseUnits      []purchaseUnitInput `json:"purchase_units"`
}

type applicationContext struct {
	BrandName   string `json:"brand_name,omitempty"`
	LandingPage string `json:"landing_page"`
	UserAction  string `json:"user_action"`
	ReturnURL   string `json:"return_url"`
	CancelURL   string `json:"cancel_url"`
}

type purchaseUnitInput struct {
	ReferenceID string      `json:"reference_id"`
	Description string      `json:"description,omitempty"`
	Amount      amountInput `json:"amount"`
	Items       []itemInput `json:"items"`
}

type amountInput struct {
	Money
	Breakdown struct {
		ItemTotal Money `json:"item_total"`
	} `json:"breakdown"`
}

type itemInput struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	UnitAmount  Money  `json:"unit_amount"`
	Quantity    string `json:"quantity"`
	Category    string `json:"category"`
}

type orderResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Links         []Link `json:"links"`
	Payer         *Payer `json:"payer,omitempty"`
	PurchaseUnits []struct {
		ReferenceID string `json:"reference_id"`
		Payments    struct {
			Captures []CaptureDetail `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

func (r orderResponse) captures() []CaptureDetail {
	var out []CaptureDetail
	for _, pu := range r.PurchaseUnits {
		out = append(out, pu.Payments.Captures...)
	}
	return out
}

func (r orderResponse) approvalLink() string {
	for _, rel := range []string{"approve", "payer-action"} {
		for _, l := range r.Links {
			if l.Rel == rel {
				return l.Href
			}
		}
	}
	return ""
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type errorResponse struct {
	Name             string `json:"name"`
	Message          string `json:"message"`
	DebugID          string `json:"debug_id"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Details          []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}
