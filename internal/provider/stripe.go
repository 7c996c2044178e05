package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"paylink/internal/domain"
)

const (
	stripeDefaultBaseURL = "https://api.stripe.com"

	// Stripe-Signature timestamps older than this are rejected to limit
	// replay of captured payloads.
	stripeSignatureTolerance = 5 * time.Minute
)

// StripeConfig holds credentials and endpoints for the Stripe adapter.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	BaseURL       string
	Timeout       time.Duration
}

// StripeAdapter implements Adapter on top of Stripe Checkout Sessions.
type StripeAdapter struct {
	cfg    StripeConfig
	client *http.Client
	now    func() time.Time
}

// NewStripeAdapter creates a Stripe adapter.
func NewStripeAdapter(cfg StripeConfig) *StripeAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = stripeDefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &StripeAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		now:    time.Now,
	}
}

// Name returns the provider identity.
func (a *StripeAdapter) Name() domain.Provider {
	return domain.ProviderStripe
}

// Capabilities reports that Stripe supports live status refresh on read.
func (a *StripeAdapter) Capabilities() Capabilities {
	return Capabilities{StatusRefresh: true}
}

// stripeSession is the subset of the Checkout Session object we read.
type stripeSession struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	ExpiresAt     int64  `json:"expires_at"`
}

// CreateCheckout opens a hosted Checkout Session.
func (a *StripeAdapter) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("client_reference_id", req.OrderRef)
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(req.Currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(req.AmountMinorUnits, 10))
	form.Set("line_items[0][price_data][product_data][name]", "Order "+req.OrderRef)
	for k, v := range req.Metadata {
		form.Set("metadata["+k+"]", v)
	}

	body, err := a.do(ctx, http.MethodPost, "/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}

	var session stripeSession
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("%w: decoding checkout session: %v", ErrProviderUnavailable, err)
	}
	if session.ID == "" || session.URL == "" {
		return nil, fmt.Errorf("%w: checkout session missing id or url", ErrProviderUnavailable)
	}

	return &CheckoutSession{
		Reference:   session.ID,
		CheckoutURL: session.URL,
		ExpiresAt:   time.Unix(session.ExpiresAt, 0),
		RawMetadata: string(body),
	}, nil
}

// GetStatus queries the Checkout Session and maps it to a canonical status.
func (a *StripeAdapter) GetStatus(ctx context.Context, providerReference string) (domain.PaymentStatus, error) {
	body, err := a.do(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(providerReference), nil)
	if err != nil {
		return "", err
	}

	var session stripeSession
	if err := json.Unmarshal(body, &session); err != nil {
		return "", fmt.Errorf("%w: decoding checkout session: %v", ErrProviderUnavailable, err)
	}

	return mapStripeSessionStatus(session.Status, session.PaymentStatus), nil
}

// mapStripeSessionStatus translates Stripe session state into canonical
// terms. Unrecognized combinations stay pending; a terminal state is never
// fabricated from an unknown code.
func mapStripeSessionStatus(status, paymentStatus string) domain.PaymentStatus {
	switch status {
	case "complete":
		if paymentStatus == "paid" || paymentStatus == "no_payment_required" {
			return domain.PaymentStatusPaid
		}
		return domain.PaymentStatusPending
	case "expired":
		return domain.PaymentStatusExpired
	default:
		return domain.PaymentStatusPending
	}
}

// VerifyWebhook validates the Stripe-Signature header over the raw body.
// The signed payload is "<timestamp>.<rawBody>"; re-serializing the JSON
// before verifying would break it.
func (a *StripeAdapter) VerifyWebhook(rawBody []byte, header http.Header) error {
	sigHeader := strings.TrimSpace(header.Get("Stripe-Signature"))
	if sigHeader == "" {
		return ErrInvalidSignature
	}

	timestamp, signatures, err := parseStripeSignature(sigHeader)
	if err != nil {
		return ErrInvalidSignature
	}

	skew := a.now().Sub(time.Unix(timestamp, 0))
	if skew > stripeSignatureTolerance || skew < -stripeSignatureTolerance {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(a.cfg.WebhookSecret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return ErrInvalidSignature
}

// parseStripeSignature splits "t=<ts>,v1=<sig>[,v1=<sig>...]".
func parseStripeSignature(header string) (int64, []string, error) {
	var timestamp int64
	var signatures []string

	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return 0, nil, err
			}
			timestamp = ts
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}

	if timestamp == 0 || len(signatures) == 0 {
		return 0, nil, fmt.Errorf("malformed signature header")
	}
	return timestamp, signatures, nil
}

// stripeEvent is the envelope of a webhook delivery.
type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// ParseWebhookEvent extracts the canonical event from a verified body.
func (a *StripeAdapter) ParseWebhookEvent(rawBody []byte) (*WebhookEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, ErrInvalidPayload
	}
	if event.ID == "" {
		return nil, ErrInvalidPayload
	}

	var status domain.PaymentStatus
	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		status = domain.PaymentStatusPaid
	case "checkout.session.async_payment_failed":
		status = domain.PaymentStatusFailed
	case "checkout.session.expired":
		status = domain.PaymentStatusExpired
	default:
		return nil, ErrEventIgnored
	}

	var session stripeSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, ErrInvalidPayload
	}
	if session.ID == "" {
		return nil, ErrInvalidPayload
	}

	// A completed session that has not settled yet stays pending; the
	// async_payment_succeeded delivery or the reconciler finishes it.
	if event.Type == "checkout.session.completed" &&
		session.PaymentStatus != "paid" && session.PaymentStatus != "no_payment_required" {
		status = domain.PaymentStatusPending
	}

	return &WebhookEvent{
		ProviderEventID:   event.ID,
		ProviderReference: session.ID,
		Status:            status,
	}, nil
}

// do executes one Stripe API call and maps transport failures.
func (a *StripeAdapter) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, a.cfg.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.SecretKey)
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrProviderUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return respBody, nil
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound ||
		resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("%w: stripe returned %d", ErrInvalidRequest, resp.StatusCode)
	default:
		// Auth failures and 5xx are both unavailability from the
		// caller's point of view.
		return nil, fmt.Errorf("%w: stripe returned %d", ErrProviderUnavailable, resp.StatusCode)
	}
}
