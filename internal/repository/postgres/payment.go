package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"paylink/internal/domain"
	"paylink/internal/repository"
)

// PaymentRepository is a PostgreSQL implementation of
// repository.PaymentRepository.
type PaymentRepository struct {
	q Querier
}

// NewPaymentRepository creates a new PostgreSQL payment repository.
func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{q: db}
}

// NewPaymentRepositoryWithTx creates a payment repository using a transaction.
func NewPaymentRepositoryWithTx(tx *sql.Tx) *PaymentRepository {
	return &PaymentRepository{q: tx}
}

const paymentColumns = `id, order_id, customer_id, provider, provider_reference,
		amount_minor_units, currency, status, checkout_url, raw_provider_metadata,
		created_at, updated_at, paid_at, expires_at`

// Create persists a new payment record. The partial unique index on
// (order_id, provider) WHERE status = 'pending' backs the duplicate check.
func (r *PaymentRepository) Create(ctx context.Context, record *domain.PaymentRecord) error {
	query := `
		INSERT INTO payment_records (
			id, order_id, customer_id, provider, provider_reference,
			amount_minor_units, currency, status, checkout_url,
			raw_provider_metadata, created_at, updated_at, expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.q.ExecContext(ctx, query,
		record.ID,
		record.OrderID,
		record.CustomerID,
		record.Provider,
		record.ProviderReference,
		record.AmountMinorUnits,
		record.Currency,
		record.Status,
		record.CheckoutURL,
		record.RawProviderMetadata,
		record.CreatedAt,
		record.UpdatedAt,
		record.ExpiresAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return repository.ErrDuplicate
		}
		return err
	}

	return nil
}

// GetByID retrieves a payment record by its internal id.
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*domain.PaymentRecord, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_records WHERE id = $1`
	return r.scanOne(r.q.QueryRowContext(ctx, query, id))
}

// GetByProviderReference retrieves a record by the provider-native id.
func (r *PaymentRepository) GetByProviderReference(ctx context.Context, provider domain.Provider, reference string) (*domain.PaymentRecord, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payment_records WHERE provider = $1 AND provider_reference = $2`
	return r.scanOne(r.q.QueryRowContext(ctx, query, provider, reference))
}

// GetPendingByOrder retrieves the pending record for an order and provider.
// Returns nil if none exists.
func (r *PaymentRepository) GetPendingByOrder(ctx context.Context, orderID string, provider domain.Provider) (*domain.PaymentRecord, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payment_records
		WHERE order_id = $1 AND provider = $2 AND status = $3`

	record, err := r.scanOne(r.q.QueryRowContext(ctx, query, orderID, provider, domain.PaymentStatusPending))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return record, err
}

// UpdateStatus performs the compare-and-set status write. The WHERE clause
// re-checks the expected current status so only one of two concurrent
// writers observing pending performs the transition.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, id string, from, to domain.PaymentStatus) (bool, error) {
	query := `
		UPDATE payment_records
		SET status = $1,
		    paid_at = CASE WHEN $1 = 'paid' THEN NOW() ELSE paid_at END,
		    updated_at = NOW()
		WHERE id = $2 AND status = $3
	`

	result, err := r.q.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

// ListStalePending returns up to limit pending records created before the
// cutoff, oldest first.
func (r *PaymentRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*domain.PaymentRecord, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payment_records
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at ASC
		LIMIT $3`

	rows, err := r.q.QueryContext(ctx, query, domain.PaymentStatusPending, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.PaymentRecord
	for rows.Next() {
		record, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func (r *PaymentRepository) scanOne(row *sql.Row) (*domain.PaymentRecord, error) {
	record, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return record, nil
}

func scanPayment(s scanner) (*domain.PaymentRecord, error) {
	var record domain.PaymentRecord
	var paidAt, expiresAt sql.NullTime

	err := s.Scan(
		&record.ID,
		&record.OrderID,
		&record.CustomerID,
		&record.Provider,
		&record.ProviderReference,
		&record.AmountMinorUnits,
		&record.Currency,
		&record.Status,
		&record.CheckoutURL,
		&record.RawProviderMetadata,
		&record.CreatedAt,
		&record.UpdatedAt,
		&paidAt,
		&expiresAt,
	)
	if err != nil {
		return nil, err
	}

	if paidAt.Valid {
		record.PaidAt = &paidAt.Time
	}
	if expiresAt.Valid {
		record.ExpiresAt = &expiresAt.Time
	}

	return &record, nil
}
