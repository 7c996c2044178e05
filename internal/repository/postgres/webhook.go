package postgres

import (
	"context"
	"database/sql"

	"paylink/internal/domain"
)

// WebhookEventRepository is a PostgreSQL implementation of
// repository.WebhookEventRepository.
type WebhookEventRepository struct {
	q Querier
}

// NewWebhookEventRepository creates a new PostgreSQL webhook event ledger.
func NewWebhookEventRepository(db *sql.DB) *WebhookEventRepository {
	return &WebhookEventRepository{q: db}
}

// NewWebhookEventRepositoryWithTx creates a ledger using a transaction.
func NewWebhookEventRepositoryWithTx(tx *sql.Tx) *WebhookEventRepository {
	return &WebhookEventRepository{q: tx}
}

// Record inserts the event if unseen. ON CONFLICT DO NOTHING makes the
// insert itself the dedup check: zero rows affected means a duplicate
// delivery.
func (r *WebhookEventRepository) Record(ctx context.Context, event *domain.WebhookEvent) (bool, error) {
	query := `
		INSERT INTO webhook_events (provider, provider_event_id, payload_hash, received_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, provider_event_id) DO NOTHING
	`

	result, err := r.q.ExecContext(ctx, query,
		event.Provider,
		event.ProviderEventID,
		event.PayloadHash,
		event.ReceivedAt,
	)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}
