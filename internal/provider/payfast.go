package provider

import (
	"context"
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"paylink/internal/domain"
)

const (
	payfastDefaultProcessURL = "https://www.payfast.co.za/eng/process"
)

// PayFastConfig holds credentials and endpoints for the PayFast adapter.
type PayFastConfig struct {
	MerchantID  string
	MerchantKey string
	Passphrase  string
	ProcessURL  string
	QueryURL    string
	NotifyURL   string
	Timeout     time.Duration

	// CheckoutValidity caps how long a signed redirect is honoured before
	// the engine regards the checkout as expired.
	CheckoutValidity time.Duration
}

// PayFastAdapter implements Adapter for PayFast hosted payments (ZAR).
// Checkout is a signed redirect; asynchronous ITN posts carry the result.
type PayFastAdapter struct {
	cfg    PayFastConfig
	client *http.Client
	now    func() time.Time
}

// NewPayFastAdapter creates a PayFast adapter.
func NewPayFastAdapter(cfg PayFastConfig) *PayFastAdapter {
	if cfg.ProcessURL == "" {
		cfg.ProcessURL = payfastDefaultProcessURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CheckoutValidity == 0 {
		cfg.CheckoutValidity = 24 * time.Hour
	}
	return &PayFastAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		now:    time.Now,
	}
}

// Name returns the provider identity.
func (a *PayFastAdapter) Name() domain.Provider {
	return domain.ProviderPayFast
}

// Capabilities reports that PayFast records are not refreshed on read; only
// the reconciler re-queries them.
func (a *PayFastAdapter) Capabilities() Capabilities {
	return Capabilities{StatusRefresh: false}
}

// CreateCheckout builds the signed redirect URL. No network call is made;
// the provider learns about the payment when the customer lands on it.
func (a *PayFastAdapter) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if req.AmountMinorUnits <= 0 {
		return nil, fmt.Errorf("%w: non-positive amount", ErrInvalidRequest)
	}
	if !strings.EqualFold(req.Currency, "ZAR") {
		return nil, fmt.Errorf("%w: payfast only settles ZAR", ErrInvalidRequest)
	}

	// m_payment_id is the merchant-side reference; ITN deliveries echo it
	// back, so it doubles as the provider reference for this adapter.
	reference := uuid.New().String()

	// PayFast signs fields in the order they appear in the form.
	pairs := []pair{
		{"merchant_id", a.cfg.MerchantID},
		{"merchant_key", a.cfg.MerchantKey},
		{"return_url", req.SuccessURL},
		{"cancel_url", req.CancelURL},
		{"notify_url", a.cfg.NotifyURL},
		{"m_payment_id", reference},
		{"amount", formatRands(req.AmountMinorUnits)},
		{"item_name", "Order " + req.OrderRef},
	}

	signature := payfastSignature(pairs, a.cfg.Passphrase)
	query := encodePairs(pairs) + "&signature=" + signature

	return &CheckoutSession{
		Reference:   reference,
		CheckoutURL: a.cfg.ProcessURL + "?" + query,
		ExpiresAt:   a.now().Add(a.cfg.CheckoutValidity),
		RawMetadata: query,
	}, nil
}

// GetStatus polls the configured transaction query endpoint.
func (a *PayFastAdapter) GetStatus(ctx context.Context, providerReference string) (domain.PaymentStatus, error) {
	if a.cfg.QueryURL == "" {
		return "", fmt.Errorf("%w: no query endpoint configured", ErrProviderUnavailable)
	}

	endpoint := strings.TrimRight(a.cfg.QueryURL, "/") + "/" + url.PathEscape(providerReference)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	req.Header.Set("merchant-id", a.cfg.MerchantID)
	req.Header.Set("merchant-key", a.cfg.MerchantKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %v", ErrProviderUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: payfast returned %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var result struct {
		PaymentStatus string `json:"payment_status"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", ErrProviderUnavailable, err)
	}

	return mapPayFastStatus(result.PaymentStatus), nil
}

// VerifyWebhook validates the ITN signature. The signature is an MD5 over
// the posted fields in the order they were received, so the raw body must
// reach us untouched by any form/JSON middleware.
func (a *PayFastAdapter) VerifyWebhook(rawBody []byte, header http.Header) error {
	pairs, provided, err := parseITN(rawBody)
	if err != nil || provided == "" {
		return ErrInvalidSignature
	}

	expected := payfastSignature(pairs, a.cfg.Passphrase)
	if subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

// ParseWebhookEvent extracts the canonical event from a verified ITN body.
func (a *PayFastAdapter) ParseWebhookEvent(rawBody []byte) (*WebhookEvent, error) {
	values, err := url.ParseQuery(string(rawBody))
	if err != nil {
		return nil, ErrInvalidPayload
	}

	eventID := values.Get("pf_payment_id")
	reference := values.Get("m_payment_id")
	if eventID == "" || reference == "" {
		return nil, ErrInvalidPayload
	}

	return &WebhookEvent{
		ProviderEventID:   eventID,
		ProviderReference: reference,
		Status:            mapPayFastStatus(values.Get("payment_status")),
	}, nil
}

// mapPayFastStatus translates ITN payment_status values. Unknown codes stay
// pending.
func mapPayFastStatus(status string) domain.PaymentStatus {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "COMPLETE":
		return domain.PaymentStatusPaid
	case "FAILED", "CANCELLED":
		return domain.PaymentStatusFailed
	case "EXPIRED":
		return domain.PaymentStatusExpired
	default:
		return domain.PaymentStatusPending
	}
}

type pair struct {
	key   string
	value string
}

// parseITN splits a form-encoded ITN body preserving field order, pulling
// the signature field out of the signed set.
func parseITN(rawBody []byte) ([]pair, string, error) {
	var pairs []pair
	var signature string

	for _, field := range strings.Split(string(rawBody), "&") {
		if field == "" {
			continue
		}
		kv := strings.SplitN(field, "=", 2)
		key, err := url.QueryUnescape(kv[0])
		if err != nil {
			return nil, "", err
		}
		value := ""
		if len(kv) == 2 {
			if value, err = url.QueryUnescape(kv[1]); err != nil {
				return nil, "", err
			}
		}
		if key == "signature" {
			signature = value
			continue
		}
		pairs = append(pairs, pair{key, value})
	}

	return pairs, signature, nil
}

// payfastSignature computes the MD5 parameter signature.
func payfastSignature(pairs []pair, passphrase string) string {
	base := encodePairs(pairs)
	if passphrase != "" {
		base += "&passphrase=" + url.QueryEscape(passphrase)
	}
	sum := md5.Sum([]byte(base))
	return hex.EncodeToString(sum[:])
}

// encodePairs url-encodes pairs preserving their order. Empty values are
// omitted, matching how PayFast builds its signing string.
func encodePairs(pairs []pair) string {
	var b strings.Builder
	for _, p := range pairs {
		if p.value == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p.key)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.value))
	}
	return b.String()
}

// formatRands renders minor units as a rand amount with two decimals.
func formatRands(minorUnits int64) string {
	return fmt.Sprintf("%d.%02d", minorUnits/100, minorUnits%100)
}
