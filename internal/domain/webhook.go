package domain

import "time"

// WebhookEvent is one row in the dedup ledger. Providers redeliver events;
// a (provider, provider_event_id) pair is applied to business state at most
// once.
type WebhookEvent struct {
	Provider        Provider
	ProviderEventID string
	PayloadHash     string
	ReceivedAt      time.Time
}
