package domain

import "time"

// PaymentStatus represents the canonical status of a payment record.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
	PaymentStatusExpired PaymentStatus = "expired"
)

// Terminal reports whether the status is final. A terminal record is never
// written again; later transition attempts are no-ops.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentStatusPaid, PaymentStatusFailed, PaymentStatusExpired:
		return true
	}
	return false
}

// CanTransitionTo reports whether next is a valid forward transition from s.
// The only legal moves are pending -> paid|failed|expired.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	if s != PaymentStatusPending {
		return false
	}
	switch next {
	case PaymentStatusPaid, PaymentStatusFailed, PaymentStatusExpired:
		return true
	}
	return false
}

// Provider identifies which payment provider owns a record. The set is
// closed; a record created under a provider is always resolved through that
// provider's adapter.
type Provider string

const (
	ProviderStripe  Provider = "stripe"
	ProviderPayFast Provider = "payfast"
)

// Valid reports whether p names a known provider.
func (p Provider) Valid() bool {
	switch p {
	case ProviderStripe, ProviderPayFast:
		return true
	}
	return false
}

// TransitionSource identifies which component requested a status transition.
type TransitionSource string

const (
	SourceWebhook    TransitionSource = "webhook"
	SourceReconciler TransitionSource = "reconciler"
	SourceRefresh    TransitionSource = "refresh"
)

// PaymentRecord represents one checkout attempt against a provider.
type PaymentRecord struct {
	ID                string
	OrderID           string
	CustomerID        string
	Provider          Provider
	ProviderReference string
	AmountMinorUnits  int64
	Currency          string
	Status            PaymentStatus
	CheckoutURL       string

	// RawProviderMetadata is retained verbatim for audit; business logic
	// never interprets it.
	RawProviderMetadata string

	CreatedAt time.Time
	UpdatedAt time.Time
	PaidAt    *time.Time
	ExpiresAt *time.Time
}
