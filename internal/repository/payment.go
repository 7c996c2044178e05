package repository

import (
	"context"
	"time"

	"paylink/internal/domain"
)

// PaymentRepository defines the persistence operations for payment records.
type PaymentRepository interface {
	// Create persists a new payment record. Returns ErrDuplicate when a
	// pending record already exists for the same order and provider.
	Create(ctx context.Context, record *domain.PaymentRecord) error

	// GetByID retrieves a payment record by its internal id.
	GetByID(ctx context.Context, id string) (*domain.PaymentRecord, error)

	// GetByProviderReference retrieves a record by the provider-native
	// identifier carried by webhooks.
	GetByProviderReference(ctx context.Context, provider domain.Provider, reference string) (*domain.PaymentRecord, error)

	// GetPendingByOrder retrieves the pending record for an order and
	// provider, or nil if none exists.
	GetPendingByOrder(ctx context.Context, orderID string, provider domain.Provider) (*domain.PaymentRecord, error)

	// UpdateStatus performs the guarded status write: the row is updated
	// only if its status still equals from. Returns false when the guard
	// failed (a concurrent writer got there first, or the record is
	// already terminal). Transitioning to paid stamps paid_at in the same
	// write.
	UpdateStatus(ctx context.Context, id string, from, to domain.PaymentStatus) (bool, error)

	// ListStalePending returns up to limit pending records created before
	// the cutoff, oldest first.
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*domain.PaymentRecord, error)
}
