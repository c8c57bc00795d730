// Package paypal talks to the PayPal REST API. It reports failures and
// carries no business rules; callers decide what a failure means.
package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Currency     string
	BrandName    string
	ReturnURL    string
	CancelURL    string
	Timeout      time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.Named("paypal"),
	}
}

func (c *Client) Currency() string {
	return c.cfg.Currency
}

// AcquireAccessToken exchanges the client credentials for a bearer token.
// Tokens are not cached; every gateway operation asks for a fresh one.
func (c *Client) AcquireAccessToken(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", &AuthError{Err: err}
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		observeGateway("token", "network_error", start)
		return "", &AuthError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		observeGateway("token", "network_error", start)
		return "", &AuthError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		observeGateway("token", "rejected", start)
		var e errorResponse
		_ = json.Unmarshal(body, &e)
		msg := e.ErrorDescription
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		c.logger.Error("access token rejected", zap.Int("status", resp.StatusCode), zap.String("error", e.Error))
		return "", &AuthError{HTTPStatus: resp.StatusCode, Message: msg}
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil || tok.AccessToken == "" {
		observeGateway("token", "invalid_response", start)
		return "", &AuthError{HTTPStatus: resp.StatusCode, Message: "token missing from response", Err: err}
	}
	observeGateway("token", "ok", start)
	c.logger.Debug("access token obtained", zap.Int("expires_in", tok.ExpiresIn))
	return tok.AccessToken, nil
}

// CreateOrder registers the checkout intent and returns the approval link the
// buyer must visit.
func (c *Client) CreateOrder(ctx context.Context, in CreateOrderRequest) (CreatedOrder, error) {
	payload := orderPayload{
		Intent: "CAPTURE",
		ApplicationContext: applicationContext{
			BrandName:   c.cfg.BrandName,
			LandingPage: "NO_PREFERENCE",
			UserAction:  "PAY_NOW",
			ReturnURL:   c.cfg.ReturnURL,
			CancelURL:   c.cfg.CancelURL,
		},
		PurchaseUnits: []purchaseUnitInput{{
			ReferenceID: in.ReferenceID,
			Description: in.Description,
			Items:       make([]itemInput, 0, len(in.Items)),
		}},
	}
	unit := &payload.PurchaseUnits[0]
	unit.Amount.Money = NewMoney(c.cfg.Currency, in.Amount)
	unit.Amount.Breakdown.ItemTotal = NewMoney(c.cfg.Currency, in.Amount)
	for _, item := range in.Items {
		unit.Items = append(unit.Items, itemInput{
			Name:        truncate(item.Name, 127),
			Description: truncate(item.Description, 127),
			UnitAmount:  NewMoney(c.cfg.Currency, item.UnitAmount),
			Quantity:    strconv.Itoa(item.Quantity),
			Category:    "PHYSICAL_GOODS",
		})
	}

	var resp orderResponse
	if err := c.do(ctx, "create_order", http.MethodPost, "/v2/checkout/orders", "create-"+in.ReferenceID, payload, &resp); err != nil {
		return CreatedOrder{}, err
	}

	c.logger.Info("order created",
		zap.String("external_order_id", resp.ID),
		zap.String("reference_id", in.ReferenceID),
		zap.String("amount", in.Amount.StringFixed(2)),
	)
	return CreatedOrder{ID: resp.ID, Status: resp.Status, ApprovalLink: resp.approvalLink()}, nil
}

// CaptureOrder finalizes the payment. The PayPal-Request-Id is derived from
// the order id, so a retried capture is answered with the original result.
func (c *Client) CaptureOrder(ctx context.Context, externalOrderID string) (Capture, error) {
	var resp orderResponse
	path := "/v2/checkout/orders/" + url.PathEscape(externalOrderID) + "/capture"
	if err := c.do(ctx, "capture_order", http.MethodPost, path, "capture-"+externalOrderID, struct{}{}, &resp); err != nil {
		return Capture{}, err
	}

	captures := resp.captures()
	if len(captures) == 0 {
		return Capture{}, &RequestError{
			Operation:        "capture_order",
			HTTPStatus:       http.StatusOK,
			ProcessorMessage: "capture response contained no captures",
		}
	}
	capture := captures[0]

	c.logger.Info("order captured",
		zap.String("external_order_id", resp.ID),
		zap.String("capture_id", capture.ID),
		zap.String("capture_status", capture.Status),
	)
	return Capture{
		OrderID:       resp.ID,
		Status:        capture.Status,
		TransactionID: capture.ID,
		Amount:        capture.Amount,
		Payer:         resp.Payer,
	}, nil
}

func (c *Client) GetOrderDetails(ctx context.Context, externalOrderID string) (OrderDetails, error) {
	var resp orderResponse
	path := "/v2/checkout/orders/" + url.PathEscape(externalOrderID)
	if err := c.do(ctx, "get_order", http.MethodGet, path, "", nil, &resp); err != nil {
		return OrderDetails{}, err
	}
	return OrderDetails{
		ID:       resp.ID,
		Status:   resp.Status,
		Payer:    resp.Payer,
		Captures: resp.captures(),
	}, nil
}

func (c *Client) do(ctx context.Context, op, method, path, requestID string, in, out any) error {
	token, err := c.AcquireAccessToken(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return &RequestError{Operation: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return &RequestError{Operation: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		observeGateway(op, "network_error", start)
		c.logger.Error("request failed", zap.String("operation", op), zap.Error(err))
		return &RequestError{Operation: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		observeGateway(op, "network_error", start)
		return &RequestError{Operation: op, HTTPStatus: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		observeGateway(op, "rejected", start)
		reqErr := decodeRequestError(op, resp.StatusCode, raw)
		c.logger.Warn("request rejected",
			zap.String("operation", op),
			zap.Int("status", resp.StatusCode),
			zap.String("name", reqErr.ProcessorMessage),
			zap.Strings("issues", reqErr.Issues),
			zap.String("debug_id", reqErr.DebugID),
		)
		return reqErr
	}
	observeGateway(op, "ok", start)

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &RequestError{Operation: op, HTTPStatus: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func decodeRequestError(op string, status int, raw []byte) *RequestError {
	reqErr := &RequestError{Operation: op, HTTPStatus: status}

	var e errorResponse
	if err := json.Unmarshal(raw, &e); err != nil {
		reqErr.ProcessorMessage = http.StatusText(status)
		reqErr.Err = errors.New(strings.TrimSpace(string(raw)))
		return reqErr
	}

	reqErr.ProcessorMessage = e.Message
	if reqErr.ProcessorMessage == "" {
		reqErr.ProcessorMessage = e.Name
	}
	if reqErr.ProcessorMessage == "" {
		reqErr.ProcessorMessage = http.StatusText(status)
	}
	reqErr.DebugID = e.DebugID
	for _, d := range e.Details {
		reqErr.Issues = append(reqErr.Issues, d.Issue)
	}
	return reqErr
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
