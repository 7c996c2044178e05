package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"paylink/internal/domain"
	"paylink/internal/provider"
	"paylink/internal/repository"
)

// StatusCache is a short-lived cache of provider-side statuses, used to
// keep read-through refreshes from hammering the provider API.
type StatusCache interface {
	Get(ctx context.Context, p domain.Provider, reference string) (domain.PaymentStatus, error)
	Set(ctx context.Context, p domain.Provider, reference string, status domain.PaymentStatus) error
}

// PaymentService orchestrates checkout creation, status reads and the
// single authoritative status transition.
type PaymentService struct {
	paymentRepo   repository.PaymentRepository
	providers     *provider.Registry
	notifications *NotificationService
	statusCache   StatusCache
	now           func() time.Time
}

// NewPaymentService creates a new PaymentService. statusCache may be nil;
// read-through refreshes then always hit the provider.
func NewPaymentService(
	paymentRepo repository.PaymentRepository,
	providers *provider.Registry,
	notifications *NotificationService,
	statusCache StatusCache,
) *PaymentService {
	return &PaymentService{
		paymentRepo:   paymentRepo,
		providers:     providers,
		notifications: notifications,
		statusCache:   statusCache,
		now:           time.Now,
	}
}

// CreatePaymentRequest contains the parameters for creating a checkout.
type CreatePaymentRequest struct {
	OrderID          string
	CustomerID       string
	AmountMinorUnits int64
	Currency         string
	Provider         domain.Provider
	SuccessURL       string
	CancelURL        string
}

// CreatePayment validates the request, opens a hosted checkout with the
// owning provider and persists the pending record. The checkout-created
// email is fired without being awaited; its failure never fails the call.
func (s *PaymentService) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*domain.PaymentRecord, error) {
	if req.OrderID == "" {
		return nil, ErrInvalidOrderID
	}
	if req.CustomerID == "" {
		return nil, ErrInvalidCustomerID
	}
	if req.AmountMinorUnits <= 0 {
		return nil, ErrInvalidAmount
	}
	if len(req.Currency) != 3 {
		return nil, ErrInvalidCurrency
	}
	if !req.Provider.Valid() {
		return nil, ErrUnknownProvider
	}

	// A valid provider may still be disabled in this deployment.
	adapter, err := s.providers.ForProvider(req.Provider)
	if err != nil {
		return nil, ErrUnknownProvider
	}

	existing, err := s.paymentRepo.GetPendingByOrder(ctx, req.OrderID, req.Provider)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.ExpiresAt == nil || existing.ExpiresAt.After(s.now()) {
			return nil, ErrDuplicatePayment
		}
		// The earlier checkout ran out; retire it so the retry can
		// proceed under the pending-order unique index.
		if _, err := s.Transition(ctx, existing.ID, domain.PaymentStatusExpired, domain.SourceRefresh); err != nil {
			return nil, err
		}
	}

	paymentID := uuid.New().String()

	session, err := adapter.CreateCheckout(ctx, provider.CheckoutRequest{
		OrderRef:         req.OrderID,
		AmountMinorUnits: req.AmountMinorUnits,
		Currency:         req.Currency,
		SuccessURL:       req.SuccessURL,
		CancelURL:        req.CancelURL,
		Metadata: map[string]string{
			"payment_id":  paymentID,
			"order_id":    req.OrderID,
			"customer_id": req.CustomerID,
		},
	})
	if err != nil {
		return nil, err
	}

	record := &domain.PaymentRecord{
		ID:                  paymentID,
		OrderID:             req.OrderID,
		CustomerID:          req.CustomerID,
		Provider:            req.Provider,
		ProviderReference:   session.Reference,
		AmountMinorUnits:    req.AmountMinorUnits,
		Currency:            req.Currency,
		Status:              domain.PaymentStatusPending,
		CheckoutURL:         session.CheckoutURL,
		RawProviderMetadata: session.RawMetadata,
		CreatedAt:           s.now(),
		UpdatedAt:           s.now(),
	}
	if !session.ExpiresAt.IsZero() {
		expiresAt := session.ExpiresAt
		record.ExpiresAt = &expiresAt
	}

	if err := s.paymentRepo.Create(ctx, record); err != nil {
		// A concurrent creation won the pending-order index. The
		// provider-side session we just opened is referenced nowhere
		// and expires on its own.
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicatePayment
		}
		return nil, err
	}

	go s.notifications.CheckoutCreated(record)

	return record, nil
}

// GetPayment retrieves a payment record. For providers with the status
// refresh capability a non-terminal record is checked against provider
// truth before returning; a provider failure degrades to the stored record.
func (s *PaymentService) GetPayment(ctx context.Context, paymentID string) (*domain.PaymentRecord, error) {
	if paymentID == "" {
		return nil, ErrInvalidPaymentID
	}

	record, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	if record.Status.Terminal() {
		return record, nil
	}

	adapter, err := s.providers.ForProvider(record.Provider)
	if err != nil || !adapter.Capabilities().StatusRefresh {
		return record, nil
	}

	if s.statusCache != nil {
		if cached, err := s.statusCache.Get(ctx, record.Provider, record.ProviderReference); err == nil && cached != "" {
			// Recently checked; skip the upstream round trip.
			return record, nil
		}
	}

	status, err := adapter.GetStatus(ctx, record.ProviderReference)
	if err != nil {
		log.Printf("[PAYMENT] status refresh failed: payment=%s provider=%s err=%v", record.ID, record.Provider, err)
		return record, nil
	}

	if s.statusCache != nil {
		if err := s.statusCache.Set(ctx, record.Provider, record.ProviderReference, status); err != nil {
			log.Printf("[PAYMENT] status cache write failed: payment=%s err=%v", record.ID, err)
		}
	}

	if status == record.Status {
		return record, nil
	}

	if _, err := s.Transition(ctx, record.ID, status, domain.SourceRefresh); err != nil {
		return nil, err
	}

	return s.paymentRepo.GetByID(ctx, record.ID)
}

// Transition is the single authoritative state-mutation entry point, shared
// by the webhook ingestor, the reconciler and read-through refreshes. It
// returns false without error when the record is already terminal, the move
// is not a valid forward transition, or a concurrent writer applied the
// transition first. The pending->paid side effect fires exactly once, on
// the caller that won the compare-and-set.
func (s *PaymentService) Transition(ctx context.Context, paymentID string, next domain.PaymentStatus, source domain.TransitionSource) (bool, error) {
	record, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return false, err
	}

	if !record.Status.CanTransitionTo(next) {
		return false, nil
	}

	applied, err := s.paymentRepo.UpdateStatus(ctx, record.ID, record.Status, next)
	if err != nil {
		return false, err
	}
	if !applied {
		// Lost the race; the winner owns the side effect.
		return false, nil
	}

	log.Printf("[PAYMENT] transition applied: payment=%s %s->%s source=%s", record.ID, record.Status, next, source)

	if next == domain.PaymentStatusPaid {
		paid, err := s.paymentRepo.GetByID(ctx, record.ID)
		if err != nil {
			// The write itself succeeded; report the transition and
			// notify from the in-memory copy.
			paidAt := s.now()
			record.Status = domain.PaymentStatusPaid
			record.PaidAt = &paidAt
			paid = record
		}
		go s.notifications.OrderPaid(paid)
	}

	return true, nil
}
