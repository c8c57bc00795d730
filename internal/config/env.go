package config

import (
	"errors"
	"fmt"
)

const (
	paypalLiveURL    = "https://api-m.paypal.com"
	paypalSandboxURL = "https://api-m.sandbox.paypal.com"
)

func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// BaseURL resolves the PayPal REST endpoint for the configured mode.
func (p PayPalConfig) BaseURL() string {
	if p.Mode == "live" {
		return paypalLiveURL
	}
	return paypalSandboxURL
}

func (p PayPalConfig) ReturnURL() string {
	return p.FrontendURL + "/payment/success"
}

func (p PayPalConfig) CancelURL() string {
	return p.FrontendURL + "/payment/cancel"
}

func (c Config) Validate() error {
	if c.MongoURI == "" {
		return errors.New("MONGO_URI is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.PayPal.ClientID == "" || c.PayPal.ClientSecret == "" {
		return errors.New("PAYPAL_CLIENT_ID and PAYPAL_CLIENT_SECRET are required")
	}
	if c.PayPal.Mode != "live" && c.PayPal.Mode != "sandbox" {
		return fmt.Errorf("PAYPAL_MODE must be live or sandbox, got %q", c.PayPal.Mode)
	}
	if c.PayPal.StrictSignatureVerification && c.PayPal.WebhookID == "" {
		return errors.New("PAYPAL_WEBHOOK_ID is required when signature verification is strict")
	}
	if c.IsProduction() && !c.PayPal.StrictSignatureVerification {
		return errors.New("STRICT_SIGNATURE_VERIFICATION cannot be disabled in production")
	}
	if c.PayPal.Timeout <= 0 {
		return errors.New("PAYPAL_TIMEOUT must be positive")
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive")
	}
	return nil
}
