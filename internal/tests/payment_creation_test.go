package tests

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"paylink/internal/domain"
	"paylink/internal/provider"
	"paylink/internal/service"
)

// ──────────────────────────────────────────────
// CHECKOUT CREATION
// ──────────────────────────────────────────────

func validCreateRequest() service.CreatePaymentRequest {
	return service.CreatePaymentRequest{
		OrderID:          "order-1",
		CustomerID:       "cust-1",
		AmountMinorUnits: 29900,
		Currency:         "ZAR",
		Provider:         domain.ProviderPayFast,
		SuccessURL:       "https://shop.example/success",
		CancelURL:        "https://shop.example/cancel",
	}
}

func TestCreatePayment_Success(t *testing.T) {
	t.Parallel()

	adapter := &MockAdapter{Provider: domain.ProviderPayFast}
	repo := NewMockPaymentRepository()
	svc, _, email := newPaymentService(repo, adapter)

	record, err := svc.CreatePayment(context.Background(), validCreateRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if record.Status != domain.PaymentStatusPending {
		t.Errorf("expected status pending, got %s", record.Status)
	}
	if record.CheckoutURL == "" {
		t.Error("expected a checkout URL")
	}
	if record.ProviderReference == "" {
		t.Error("expected a provider reference")
	}
	if record.ID == "" {
		t.Error("expected a payment id")
	}

	stored := repo.GetRecord(record.ID)
	if stored == nil {
		t.Fatal("expected record to be persisted")
	}
	if stored.AmountMinorUnits != 29900 || stored.Currency != "ZAR" {
		t.Errorf("persisted amount mismatch: %d %s", stored.AmountMinorUnits, stored.Currency)
	}

	if !waitForCount(&email.CheckoutCallCount, 1, time.Second) {
		t.Error("expected checkout-created email to fire")
	}
}

func TestCreatePayment_ValidationErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		mutate  func(*service.CreatePaymentRequest)
		wantErr error
	}{
		{"missing order", func(r *service.CreatePaymentRequest) { r.OrderID = "" }, service.ErrInvalidOrderID},
		{"missing customer", func(r *service.CreatePaymentRequest) { r.CustomerID = "" }, service.ErrInvalidCustomerID},
		{"zero amount", func(r *service.CreatePaymentRequest) { r.AmountMinorUnits = 0 }, service.ErrInvalidAmount},
		{"negative amount", func(r *service.CreatePaymentRequest) { r.AmountMinorUnits = -100 }, service.ErrInvalidAmount},
		{"bad currency", func(r *service.CreatePaymentRequest) { r.Currency = "ZARS" }, service.ErrInvalidCurrency},
		{"unknown provider", func(r *service.CreatePaymentRequest) { r.Provider = "skrill" }, service.ErrUnknownProvider},
	}

	adapter := &MockAdapter{Provider: domain.ProviderPayFast}
	repo := NewMockPaymentRepository()
	svc, _, _ := newPaymentService(repo, adapter)

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validCreateRequest()
			tc.mutate(&req)
			if _, err := svc.CreatePayment(context.Background(), req); !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}

	if n := atomic.LoadInt32(&repo.CreateCallCount); n != 0 {
		t.Errorf("expected no persistence attempts, got %d", n)
	}
}

func TestCreatePayment_DuplicatePendingOrderRejected(t *testing.T) {
	t.Parallel()

	adapter := &MockAdapter{Provider: domain.ProviderPayFast}
	repo := NewMockPaymentRepository()
	repo.AddRecord(pendingRecord("pay-1", "order-1"))
	svc, _, _ := newPaymentService(repo, adapter)

	_, err := svc.CreatePayment(context.Background(), validCreateRequest())
	if !errors.Is(err, service.ErrDuplicatePayment) {
		t.Fatalf("expected ErrDuplicatePayment, got %v", err)
	}
	if n := atomic.LoadInt32(&adapter.CreateCallCount); n != 0 {
		t.Errorf("expected no provider session to be opened, got %d", n)
	}
}

func TestCreatePayment_ExpiredPendingCheckoutIsRetired(t *testing.T) {
	t.Parallel()

	adapter := &MockAdapter{Provider: domain.ProviderPayFast}
	repo := NewMockPaymentRepository()

	stale := pendingRecord("pay-1", "order-1")
	expired := time.Now().Add(-time.Minute)
	stale.ExpiresAt = &expired
	repo.AddRecord(stale)

	svc, _, _ := newPaymentService(repo, adapter)

	record, err := svc.CreatePayment(context.Background(), validCreateRequest())
	if err != nil {
		t.Fatalf("expected retry to succeed past the expired checkout, got %v", err)
	}
	if record.ID == "pay-1" {
		t.Fatal("expected a fresh record, not the expired one")
	}
	if got := repo.GetRecord("pay-1").Status; got != domain.PaymentStatusExpired {
		t.Errorf("expected stale checkout to be retired as expired, got %s", got)
	}
	if got := repo.GetRecord(record.ID).Status; got != domain.PaymentStatusPending {
		t.Errorf("expected fresh record to be pending, got %s", got)
	}
}

func TestCreatePayment_ProviderUnavailable_NothingPersisted(t *testing.T) {
	t.Parallel()

	adapter := &MockAdapter{
		Provider:    domain.ProviderPayFast,
		CreateError: provider.ErrProviderUnavailable,
	}
	repo := NewMockPaymentRepository()
	svc, _, email := newPaymentService(repo, adapter)

	_, err := svc.CreatePayment(context.Background(), validCreateRequest())
	if !errors.Is(err, provider.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	if n := atomic.LoadInt32(&repo.CreateCallCount); n != 0 {
		t.Errorf("expected no record persisted, got %d create calls", n)
	}
	time.Sleep(50 * time.Millisecond)
	if n := atomic.LoadInt32(&email.CheckoutCallCount); n != 0 {
		t.Errorf("expected no email, got %d", n)
	}
}

func TestCreatePayment_EmailFailureDoesNotFailCreation(t *testing.T) {
	t.Parallel()

	adapter := &MockAdapter{Provider: domain.ProviderPayFast}
	repo := NewMockPaymentRepository()
	orders := &MockOrderNotifier{}
	email := &MockEmailSender{SendError: errors.New("smtp down")}
	notifications := service.NewNotificationService(orders, email)
	registry := provider.NewRegistry(adapter)
	svc := service.NewPaymentService(repo, registry, notifications, nil)

	record, err := svc.CreatePayment(context.Background(), validCreateRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !waitForCount(&email.CheckoutCallCount, 1, time.Second) {
		t.Error("expected email send to be attempted")
	}
	if got := repo.GetRecord(record.ID).Status; got != domain.PaymentStatusPending {
		t.Errorf("expected record to stay pending, got %s", got)
	}
}

// ──────────────────────────────────────────────
// STATUS READS
// ──────────────────────────────────────────────

func TestGetPayment_RefreshCapableProvider_ReadsThrough(t *testing.T) {
	t.Parallel()

	adapter := &MockAdapter{
		Provider: domain.ProviderStripe,
		Caps:     provider.Capabilities{StatusRefresh: true},
		Status:   domain.PaymentStatusPaid,
	}
	repo := NewMockPaymentRepository()

	record := pendingRecord("pay-1", "order-1")
	record.Provider = domain.ProviderStripe
	repo.AddRecord(record)

	svc, orders, _ := newPaymentService(repo, adapter)

	got, err := svc.GetPayment(context.Background(), "pay-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != domain.PaymentStatusPaid {
		t.Errorf("expected refreshed status paid, got %s", got.Status)
	}
	if got.PaidAt == nil {
		t.Error("expected paid_at on the returned record")
	}
	if n := atomic.LoadInt32(&adapter.StatusCallCount); n != 1 {
		t.Errorf("expected 1 provider status call, got %d", n)
	}
	if !waitForCount(&orders.NotifyCallCount, 1, time.Second) {
		t.Error("expected order-paid notification to fire")
	}
}

func TestGetPayment_WebhookOnlyProvider_NeverPolls(t *testing.T) {
	t.Parallel()

	adapter := &MockAdapter{
		Provider: domain.ProviderPayFast,
		Status:   domain.PaymentStatusPaid,
	}
	repo := NewMockPaymentRepository()
	repo.AddRecord(pendingRecord("pay-1", "order-1"))
	svc, _, _ := newPaymentService(repo, adapter)

	got, err := svc.GetPayment(context.Background(), "pay-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != domain.PaymentStatusPending {
		t.Errorf("expected stored status pending, got %s", got.Status)
	}
	if n := atomic.LoadInt32(&adapter.StatusCallCount); n != 0 {
		t.Errorf("expected no provider calls without the refresh capability, got %d", n)
	}
}

func TestGetPayment_TerminalRecord_SkipsProvider(t *testing.T) {
	t.Parallel()

	adapter := &MockAdapter{
		Provider: domain.ProviderStripe,
		Caps:     provider.Capabilities{StatusRefresh: true},
		Status:   domain.PaymentStatusPaid,
	}
	repo := NewMockPaymentRepository()

	record := pendingRecord("pay-1", "order-1")
	record.Provider = domain.ProviderStripe
	record.Status = domain.PaymentStatusFailed
	repo.AddRecord(record)

	svc, _, _ := newPaymentService(repo, adapter)

	got, err := svc.GetPayment(context.Background(), "pay-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != domain.PaymentStatusFailed {
		t.Errorf("expected stored terminal status, got %s", got.Status)
	}
	if n := atomic.LoadInt32(&adapter.StatusCallCount); n != 0 {
		t.Errorf("terminal records must not hit the provider, got %d calls", n)
	}
}

func TestGetPayment_ProviderOutage_DegradesToStoredRecord(t *testing.T) {
	t.Parallel()

	adapter := &MockAdapter{
		Provider:    domain.ProviderStripe,
		Caps:        provider.Capabilities{StatusRefresh: true},
		StatusError: provider.ErrProviderUnavailable,
	}
	repo := NewMockPaymentRepository()

	record := pendingRecord("pay-1", "order-1")
	record.Provider = domain.ProviderStripe
	repo.AddRecord(record)

	svc, _, _ := newPaymentService(repo, adapter)

	got, err := svc.GetPayment(context.Background(), "pay-1")
	if err != nil {
		t.Fatalf("a provider outage must not fail the read, got %v", err)
	}
	if got.Status != domain.PaymentStatusPending {
		t.Errorf("expected the stored record back, got %s", got.Status)
	}
}

func TestGetPayment_FreshCacheEntry_SkipsProviderCall(t *testing.T) {
	t.Parallel()

	adapter := &MockAdapter{
		Provider: domain.ProviderStripe,
		Caps:     provider.Capabilities{StatusRefresh: true},
		Status:   domain.PaymentStatusPending,
	}
	repo := NewMockPaymentRepository()

	record := pendingRecord("pay-1", "order-1")
	record.Provider = domain.ProviderStripe
	repo.AddRecord(record)

	cache := NewMockStatusCache()
	orders := &MockOrderNotifier{}
	notifications := service.NewNotificationService(orders, &MockEmailSender{})
	registry := provider.NewRegistry(adapter)
	svc := service.NewPaymentService(repo, registry, notifications, cache)

	ctx := context.Background()
	if _, err := svc.GetPayment(ctx, "pay-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.GetPayment(ctx, "pay-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n := atomic.LoadInt32(&adapter.StatusCallCount); n != 1 {
		t.Errorf("expected the second read to be served from cache, got %d provider calls", n)
	}
}

func TestGetPayment_UnknownID_ReturnsNotFound(t *testing.T) {
	t.Parallel()

	svc, _, _ := newPaymentService(NewMockPaymentRepository(), &MockAdapter{Provider: domain.ProviderPayFast})

	if _, err := svc.GetPayment(context.Background(), "no-such-id"); err == nil {
		t.Fatal("expected an error for an unknown payment id")
	}
	if _, err := svc.GetPayment(context.Background(), ""); !errors.Is(err, service.ErrInvalidPaymentID) {
		t.Fatal("expected ErrInvalidPaymentID for an empty id")
	}
}
