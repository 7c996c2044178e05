package repository

import (
	"context"

	"paylink/internal/domain"
)

// WebhookEventRepository is the dedup ledger for provider webhook events.
type WebhookEventRepository interface {
	// Record inserts the event if it has not been seen before. Returns
	// false when the (provider, provider_event_id) pair was already
	// recorded, meaning the delivery is a duplicate and must not trigger
	// side effects again.
	Record(ctx context.Context, event *domain.WebhookEvent) (bool, error)
}
