package tests

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"paylink/internal/domain"
	"paylink/internal/provider"
	"paylink/internal/repository"
)

// ──────────────────────────────────────────────
// MOCK PAYMENT REPOSITORY
// ──────────────────────────────────────────────

// MockPaymentRepository is a mock implementation of PaymentRepository.
type MockPaymentRepository struct {
	mu      sync.RWMutex
	records map[string]*domain.PaymentRecord

	// Counters for verification
	CreateCallCount       int32
	UpdateStatusCallCount int32

	// Error injection
	CreateError       error
	GetError          error
	UpdateStatusError error
}

// NewMockPaymentRepository creates a new mock payment repository.
func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{
		records: make(map[string]*domain.PaymentRecord),
	}
}

// AddRecord seeds a record into the mock repository.
func (m *MockPaymentRepository) AddRecord(record *domain.PaymentRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.ID] = record
}

// GetRecord returns a record copy for test assertions, or nil.
func (m *MockPaymentRepository) GetRecord(id string) *domain.PaymentRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[id]
	if !ok {
		return nil
	}
	copy := *record
	return &copy
}

func (m *MockPaymentRepository) Create(ctx context.Context, record *domain.PaymentRecord) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.records {
		if existing.OrderID == record.OrderID && existing.Provider == record.Provider &&
			existing.Status == domain.PaymentStatusPending {
			return repository.ErrDuplicate
		}
	}
	copy := *record
	m.records[record.ID] = &copy
	return nil
}

func (m *MockPaymentRepository) GetByID(ctx context.Context, id string) (*domain.PaymentRecord, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *record
	return &copy, nil
}

func (m *MockPaymentRepository) GetByProviderReference(ctx context.Context, p domain.Provider, reference string) (*domain.PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, record := range m.records {
		if record.Provider == p && record.ProviderReference == reference {
			copy := *record
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockPaymentRepository) GetPendingByOrder(ctx context.Context, orderID string, p domain.Provider) (*domain.PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, record := range m.records {
		if record.OrderID == orderID && record.Provider == p && record.Status == domain.PaymentStatusPending {
			copy := *record
			return &copy, nil
		}
	}
	return nil, nil
}

// UpdateStatus mirrors the SQL compare-and-set: the write applies only when
// the stored status still equals from, under one lock, so concurrent
// callers see exactly one winner.
func (m *MockPaymentRepository) UpdateStatus(ctx context.Context, id string, from, to domain.PaymentStatus) (bool, error) {
	atomic.AddInt32(&m.UpdateStatusCallCount, 1)
	if m.UpdateStatusError != nil {
		return false, m.UpdateStatusError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[id]
	if !ok || record.Status != from {
		return false, nil
	}
	record.Status = to
	record.UpdatedAt = time.Now()
	if to == domain.PaymentStatusPaid && record.PaidAt == nil {
		now := time.Now()
		record.PaidAt = &now
	}
	return true, nil
}

func (m *MockPaymentRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*domain.PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.PaymentRecord
	for _, record := range m.records {
		if record.Status == domain.PaymentStatusPending && record.CreatedAt.Before(cutoff) {
			copy := *record
			result = append(result, &copy)
			if len(result) == limit {
				break
			}
		}
	}
	return result, nil
}

// ──────────────────────────────────────────────
// MOCK WEBHOOK EVENT LEDGER
// ──────────────────────────────────────────────

// MockWebhookEventRepository is a mock implementation of the dedup ledger.
type MockWebhookEventRepository struct {
	mu     sync.Mutex
	events map[string]*domain.WebhookEvent

	RecordCallCount int32
	RecordError     error
}

// NewMockWebhookEventRepository creates a new mock ledger.
func NewMockWebhookEventRepository() *MockWebhookEventRepository {
	return &MockWebhookEventRepository{
		events: make(map[string]*domain.WebhookEvent),
	}
}

func (m *MockWebhookEventRepository) Record(ctx context.Context, event *domain.WebhookEvent) (bool, error) {
	atomic.AddInt32(&m.RecordCallCount, 1)
	if m.RecordError != nil {
		return false, m.RecordError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := string(event.Provider) + ":" + event.ProviderEventID
	if _, exists := m.events[key]; exists {
		return false, nil
	}
	copy := *event
	m.events[key] = &copy
	return true, nil
}

// CountEvents returns the ledger size for test assertions.
func (m *MockWebhookEventRepository) CountEvents() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// ──────────────────────────────────────────────
// MOCK PROVIDER ADAPTER
// ──────────────────────────────────────────────

// MockAdapter is a configurable mock implementation of provider.Adapter.
type MockAdapter struct {
	Provider    domain.Provider
	Caps        provider.Capabilities
	Session     *provider.CheckoutSession
	Status      domain.PaymentStatus
	Event       *provider.WebhookEvent
	CreateError error
	StatusError error
	VerifyError error
	ParseError  error

	// StatusBlock, when set, is received from before GetStatus returns.
	// Used to hold a reconciler run open.
	StatusBlock chan struct{}

	CreateCallCount int32
	StatusCallCount int32
	VerifyCallCount int32
}

func (m *MockAdapter) Name() domain.Provider {
	return m.Provider
}

func (m *MockAdapter) Capabilities() provider.Capabilities {
	return m.Caps
}

func (m *MockAdapter) CreateCheckout(ctx context.Context, req provider.CheckoutRequest) (*provider.CheckoutSession, error) {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return nil, m.CreateError
	}
	if m.Session != nil {
		return m.Session, nil
	}
	return &provider.CheckoutSession{
		Reference:   "ref-" + req.OrderRef,
		CheckoutURL: "https://pay.example/" + req.OrderRef,
		ExpiresAt:   time.Now().Add(time.Hour),
	}, nil
}

func (m *MockAdapter) GetStatus(ctx context.Context, providerReference string) (domain.PaymentStatus, error) {
	atomic.AddInt32(&m.StatusCallCount, 1)
	if m.StatusBlock != nil {
		<-m.StatusBlock
	}
	if m.StatusError != nil {
		return "", m.StatusError
	}
	return m.Status, nil
}

func (m *MockAdapter) VerifyWebhook(rawBody []byte, header http.Header) error {
	atomic.AddInt32(&m.VerifyCallCount, 1)
	return m.VerifyError
}

func (m *MockAdapter) ParseWebhookEvent(rawBody []byte) (*provider.WebhookEvent, error) {
	if m.ParseError != nil {
		return nil, m.ParseError
	}
	if m.Event != nil {
		return m.Event, nil
	}
	return nil, provider.ErrInvalidPayload
}

// ──────────────────────────────────────────────
// MOCK NOTIFICATION PORTS
// ──────────────────────────────────────────────

// MockOrderNotifier counts order-paid callbacks.
type MockOrderNotifier struct {
	NotifyCallCount int32
	NotifyError     error
}

func (m *MockOrderNotifier) NotifyOrderPaid(ctx context.Context, record *domain.PaymentRecord) error {
	atomic.AddInt32(&m.NotifyCallCount, 1)
	return m.NotifyError
}

// MockEmailSender counts email sends.
type MockEmailSender struct {
	CheckoutCallCount int32
	ReceivedCallCount int32
	SendError         error
}

func (m *MockEmailSender) SendCheckoutCreated(ctx context.Context, record *domain.PaymentRecord) error {
	atomic.AddInt32(&m.CheckoutCallCount, 1)
	return m.SendError
}

func (m *MockEmailSender) SendPaymentReceived(ctx context.Context, record *domain.PaymentRecord) error {
	atomic.AddInt32(&m.ReceivedCallCount, 1)
	return m.SendError
}

// ──────────────────────────────────────────────
// MOCK STATUS CACHE AND RUN LOCK
// ──────────────────────────────────────────────

// MockStatusCache is a map-backed implementation of service.StatusCache.
type MockStatusCache struct {
	mu      sync.Mutex
	entries map[string]domain.PaymentStatus

	GetCallCount int32
	SetCallCount int32
}

// NewMockStatusCache creates a new mock status cache.
func NewMockStatusCache() *MockStatusCache {
	return &MockStatusCache{entries: make(map[string]domain.PaymentStatus)}
}

func (m *MockStatusCache) Get(ctx context.Context, p domain.Provider, reference string) (domain.PaymentStatus, error) {
	atomic.AddInt32(&m.GetCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[string(p)+":"+reference], nil
}

func (m *MockStatusCache) Set(ctx context.Context, p domain.Provider, reference string, status domain.PaymentStatus) error {
	atomic.AddInt32(&m.SetCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[string(p)+":"+reference] = status
	return nil
}

// MockRunLock is a configurable implementation of service.RunLock.
type MockRunLock struct {
	Held bool

	AcquireCallCount int32
	ReleaseCallCount int32
}

func (m *MockRunLock) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	atomic.AddInt32(&m.AcquireCallCount, 1)
	return !m.Held, nil
}

func (m *MockRunLock) Release(ctx context.Context) error {
	atomic.AddInt32(&m.ReleaseCallCount, 1)
	return nil
}

// ──────────────────────────────────────────────
// TEST HELPERS
// ──────────────────────────────────────────────

// waitForCount polls an atomic counter until it reaches want or the
// deadline passes. Side effects fire on goroutines; tests need a grace
// window before asserting on them.
func waitForCount(counter *int32, want int32, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(counter) >= want {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return atomic.LoadInt32(counter) >= want
}
