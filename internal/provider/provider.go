package provider

import (
	"context"
	"errors"
	"net/http"
	"time"

	"paylink/internal/domain"
)

var (
	// ErrProviderUnavailable is returned when the provider cannot be reached
	// or rejects our credentials. Transient; the reconciler retries on its
	// own schedule.
	ErrProviderUnavailable = errors.New("payment provider unavailable")

	// ErrInvalidRequest is returned when the checkout request is malformed.
	// Caller bug; never retried.
	ErrInvalidRequest = errors.New("invalid checkout request")

	// ErrInvalidSignature is returned when a webhook payload fails
	// signature verification.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrInvalidPayload is returned when a verified webhook body cannot be
	// parsed.
	ErrInvalidPayload = errors.New("invalid webhook payload")

	// ErrEventIgnored is returned for webhook event types this engine does
	// not act on.
	ErrEventIgnored = errors.New("webhook event ignored")

	// ErrUnknownProvider is returned when no adapter is registered for the
	// requested provider.
	ErrUnknownProvider = errors.New("unknown payment provider")
)

// CheckoutRequest contains the parameters for creating a hosted checkout.
type CheckoutRequest struct {
	OrderRef         string
	AmountMinorUnits int64
	Currency         string
	SuccessURL       string
	CancelURL        string
	Metadata         map[string]string
}

// CheckoutSession is the provider-side result of creating a hosted checkout.
type CheckoutSession struct {
	// Reference is the provider-native identifier used for status lookups
	// and webhook correlation.
	Reference   string
	CheckoutURL string
	ExpiresAt   time.Time

	// RawMetadata is the provider response retained verbatim for audit.
	RawMetadata string
}

// WebhookEvent is a provider webhook normalized into canonical terms.
type WebhookEvent struct {
	ProviderEventID   string
	ProviderReference string
	Status            domain.PaymentStatus
}

// Capabilities declares optional per-provider behaviour.
type Capabilities struct {
	// StatusRefresh reports whether status reads may perform a live
	// check-and-sync against the provider before returning. Providers
	// without it are only re-queried by the reconciler.
	StatusRefresh bool
}

// Adapter hides one provider's wire formats behind a uniform contract.
type Adapter interface {
	Name() domain.Provider
	Capabilities() Capabilities

	// CreateCheckout opens a hosted checkout session with the provider.
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)

	// GetStatus queries the provider for ground truth. Every
	// provider-specific code maps to exactly one canonical status;
	// unrecognized codes map to pending, never to a terminal state.
	GetStatus(ctx context.Context, providerReference string) (domain.PaymentStatus, error)

	// VerifyWebhook checks the signature over the raw, unparsed body.
	// Implementations must use constant-time comparison.
	VerifyWebhook(rawBody []byte, header http.Header) error

	// ParseWebhookEvent extracts the canonical event from a verified body.
	ParseWebhookEvent(rawBody []byte) (*WebhookEvent, error)
}
