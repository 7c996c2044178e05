package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"time"

	"paylink/internal/domain"
	"paylink/internal/provider"
	"paylink/internal/repository"
)

// WebhookOutcome describes how an inbound delivery was handled. Everything
// except an error means the provider gets a 200 and stops retrying.
type WebhookOutcome string

const (
	// WebhookApplied means the event drove a status transition.
	WebhookApplied WebhookOutcome = "applied"

	// WebhookNoOp means the event was valid but changed nothing: the
	// record was already terminal, the event type is not acted on, or the
	// reported status is not a forward move.
	WebhookNoOp WebhookOutcome = "noop"

	// WebhookDeduplicated means the provider redelivered an event already
	// in the ledger. Harmless; no side effects re-fire.
	WebhookDeduplicated WebhookOutcome = "deduplicated"
)

// WebhookService ingests provider webhooks: verify on the raw bytes, parse,
// deduplicate against the event ledger, then apply the canonical transition.
type WebhookService struct {
	paymentRepo repository.PaymentRepository
	ledger      repository.WebhookEventRepository
	providers   *provider.Registry
	payments    *PaymentService
	now         func() time.Time
}

// NewWebhookService creates a new WebhookService.
func NewWebhookService(
	paymentRepo repository.PaymentRepository,
	ledger repository.WebhookEventRepository,
	providers *provider.Registry,
	payments *PaymentService,
) *WebhookService {
	return &WebhookService{
		paymentRepo: paymentRepo,
		ledger:      ledger,
		providers:   providers,
		payments:    payments,
		now:         time.Now,
	}
}

// Ingest processes one inbound delivery. rawBody must be the unparsed
// request bytes; signatures are computed over them, and re-serialized JSON
// does not verify.
func (s *WebhookService) Ingest(ctx context.Context, p domain.Provider, rawBody []byte, header http.Header) (WebhookOutcome, error) {
	adapter, err := s.providers.ForProvider(p)
	if err != nil {
		return "", ErrUnknownProvider
	}

	// Signature first. A payload that does not verify is never parsed:
	// parsing forged bytes would hand an attacker a status transition.
	if err := adapter.VerifyWebhook(rawBody, header); err != nil {
		return "", err
	}

	event, err := adapter.ParseWebhookEvent(rawBody)
	if err != nil {
		if errors.Is(err, provider.ErrEventIgnored) {
			return WebhookNoOp, nil
		}
		return "", err
	}

	record, err := s.paymentRepo.GetByProviderReference(ctx, p, event.ProviderReference)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrUnknownReference
		}
		return "", err
	}

	// Ledger write before the transition: the transition itself is an
	// idempotent compare-and-set, so a crash between the two at worst
	// drops one application for the reconciler to repair. The reverse
	// order could fire the paid side effect twice.
	hash := sha256.Sum256(rawBody)
	inserted, err := s.ledger.Record(ctx, &domain.WebhookEvent{
		Provider:        p,
		ProviderEventID: event.ProviderEventID,
		PayloadHash:     hex.EncodeToString(hash[:]),
		ReceivedAt:      s.now(),
	})
	if err != nil {
		return "", err
	}
	if !inserted {
		log.Printf("[WEBHOOK] duplicate delivery: provider=%s event=%s", p, event.ProviderEventID)
		return WebhookDeduplicated, nil
	}

	applied, err := s.payments.Transition(ctx, record.ID, event.Status, domain.SourceWebhook)
	if err != nil {
		return "", err
	}
	if !applied {
		return WebhookNoOp, nil
	}

	return WebhookApplied, nil
}
