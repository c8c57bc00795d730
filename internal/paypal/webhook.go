package paypal

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	HeaderTransmissionID   = "Paypal-Transmission-Id"
	HeaderTransmissionTime = "Paypal-Transmission-Time"
	HeaderTransmissionSig  = "Paypal-Transmission-Sig"
	HeaderCertURL          = "Paypal-Cert-Url"
	HeaderAuthAlgo         = "Paypal-Auth-Algo"
)

// WebhookVerifier checks PayPal's transmission signature. With strict off it
// accepts everything and says so in the log; config refuses that in production.
type WebhookVerifier struct {
	strict     bool
	webhookID  string
	httpClient *http.Client
	logger     *zap.Logger
	certs      sync.Map // cert url -> *x509.Certificate
}

func NewWebhookVerifier(strict bool, webhookID string, httpClient *http.Client, logger *zap.Logger) *WebhookVerifier {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &WebhookVerifier{
		strict:     strict,
		webhookID:  webhookID,
		httpClient: httpClient,
		logger:     logger.Named("webhook_verify"),
	}
}

// VerifyNotification reports whether body carries a valid signature. Any
// failure, including a cert that cannot be fetched, is a plain false.
func (v *WebhookVerifier) VerifyNotification(ctx context.Context, headers http.Header, body []byte) bool {
	if !v.strict {
		v.logger.Warn("signature verification disabled, accepting notification")
		return true
	}

	if err := v.verify(ctx, headers, body); err != nil {
		v.logger.Warn("signature rejected",
			zap.Bool("security", true),
			zap.String("transmission_id", headers.Get(HeaderTransmissionID)),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (v *WebhookVerifier) verify(ctx context.Context, headers http.Header, body []byte) error {
	transmissionID := headers.Get(HeaderTransmissionID)
	transmissionTime := headers.Get(HeaderTransmissionTime)
	sig := headers.Get(HeaderTransmissionSig)
	certURL := headers.Get(HeaderCertURL)
	if transmissionID == "" || transmissionTime == "" || sig == "" || certURL == "" {
		return errors.New("missing transmission headers")
	}
	if v.webhookID == "" {
		return errors.New("webhook id not configured")
	}
	if algo := headers.Get(HeaderAuthAlgo); algo != "" && !strings.EqualFold(algo, "SHA256withRSA") {
		return fmt.Errorf("unsupported auth algo %q", algo)
	}

	signature, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}

	cert, err := v.certificate(ctx, certURL)
	if err != nil {
		return err
	}
	if now := time.Now(); now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
		return errors.New("certificate outside validity window")
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return errors.New("certificate key is not rsa")
	}

	digest := sha256.Sum256([]byte(SignedMessage(transmissionID, transmissionTime, v.webhookID, body)))
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], signature)
}

// SignedMessage is the string PayPal signs for a notification.
func SignedMessage(transmissionID, transmissionTime, webhookID string, body []byte) string {
	return transmissionID + "|" + transmissionTime + "|" + webhookID + "|" + strconv.FormatUint(uint64(crc32.ChecksumIEEE(body)), 10)
}

func (v *WebhookVerifier) certificate(ctx context.Context, certURL string) (*x509.Certificate, error) {
	if cached, ok := v.certs.Load(certURL); ok {
		return cached.(*x509.Certificate), nil
	}
	if err := checkCertURL(certURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, certURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch cert: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch cert: status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("read cert: %w", err)
	}
	cert, err := ParseCertificate(raw)
	if err != nil {
		return nil, err
	}
	v.certs.Store(certURL, cert)
	return cert, nil
}

// CacheCertificate seeds the cert cache, e.g. with a pinned certificate.
func (v *WebhookVerifier) CacheCertificate(certURL string, cert *x509.Certificate) {
	v.certs.Store(certURL, cert)
}

func ParseCertificate(raw []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errors.New("cert is not pem encoded")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse cert: %w", err)
	}
	return cert, nil
}

func checkCertURL(certURL string) error {
	u, err := url.Parse(certURL)
	if err != nil {
		return fmt.Errorf("cert url: %w", err)
	}
	host := strings.ToLower(u.Hostname())
	if u.Scheme != "https" || (host != "paypal.com" && !strings.HasSuffix(host, ".paypal.com")) {
		return fmt.Errorf("cert url %q is not a paypal https url", certURL)
	}
	return nil
}
