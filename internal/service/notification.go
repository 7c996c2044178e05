package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"paylink/internal/domain"
)

// OrderNotifier reports payment outcomes to the order-management system.
type OrderNotifier interface {
	NotifyOrderPaid(ctx context.Context, record *domain.PaymentRecord) error
}

// EmailSender delivers customer-facing payment emails.
type EmailSender interface {
	SendCheckoutCreated(ctx context.Context, record *domain.PaymentRecord) error
	SendPaymentReceived(ctx context.Context, record *domain.PaymentRecord) error
}

// NotificationService fans payment events out to the collaborator ports.
// Every call is best-effort: failures are logged and never propagated, so a
// broken mail server cannot fail a checkout.
type NotificationService struct {
	orders OrderNotifier
	email  EmailSender
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(orders OrderNotifier, email EmailSender) *NotificationService {
	return &NotificationService{orders: orders, email: email}
}

const notifyTimeout = 5 * time.Second

// CheckoutCreated announces a freshly created checkout. Called from a
// goroutine; uses its own deadline so it outlives the originating request.
func (s *NotificationService) CheckoutCreated(record *domain.PaymentRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	if s.email == nil {
		return
	}
	if err := s.email.SendCheckoutCreated(ctx, record); err != nil {
		log.Printf("[NOTIFICATION] checkout-created email failed: payment=%s err=%v", record.ID, err)
	}
}

// OrderPaid announces the one-time pending->paid side effect.
func (s *NotificationService) OrderPaid(record *domain.PaymentRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	if s.orders != nil {
		if err := s.orders.NotifyOrderPaid(ctx, record); err != nil {
			log.Printf("[NOTIFICATION] order-paid callback failed: payment=%s order=%s err=%v", record.ID, record.OrderID, err)
		}
	}

	if s.email != nil {
		if err := s.email.SendPaymentReceived(ctx, record); err != nil {
			log.Printf("[NOTIFICATION] payment-received email failed: payment=%s err=%v", record.ID, err)
		}
	}
}

// HTTPOrderNotifier posts order-paid callbacks to the order-management API.
type HTTPOrderNotifier struct {
	baseURL string
	client  *http.Client
}

// NewHTTPOrderNotifier creates a notifier against the given base URL.
func NewHTTPOrderNotifier(baseURL string, timeout time.Duration) *HTTPOrderNotifier {
	if timeout == 0 {
		timeout = notifyTimeout
	}
	return &HTTPOrderNotifier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// NotifyOrderPaid posts the paid event for the record's order.
func (n *HTTPOrderNotifier) NotifyOrderPaid(ctx context.Context, record *domain.PaymentRecord) error {
	payload, err := json.Marshal(map[string]any{
		"payment_id":         record.ID,
		"provider":           record.Provider,
		"amount_minor_units": record.AmountMinorUnits,
		"currency":           record.Currency,
		"paid_at":            record.PaidAt,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/internal/orders/%s/paid", n.baseURL, record.OrderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("order service returned %d", resp.StatusCode)
	}
	return nil
}

// LogEmailSender is the default email port. It only logs; a real SMTP or
// provider-backed sender plugs in behind the same interface.
type LogEmailSender struct{}

// NewLogEmailSender creates a new LogEmailSender.
func NewLogEmailSender() *LogEmailSender {
	return &LogEmailSender{}
}

// SendCheckoutCreated logs the checkout-created email.
func (s *LogEmailSender) SendCheckoutCreated(ctx context.Context, record *domain.PaymentRecord) error {
	log.Printf("[EMAIL] checkout created: payment=%s customer=%s amount=%d %s",
		record.ID, record.CustomerID, record.AmountMinorUnits, record.Currency)
	return nil
}

// SendPaymentReceived logs the payment-received email.
func (s *LogEmailSender) SendPaymentReceived(ctx context.Context, record *domain.PaymentRecord) error {
	log.Printf("[EMAIL] payment received: payment=%s customer=%s amount=%d %s",
		record.ID, record.CustomerID, record.AmountMinorUnits, record.Currency)
	return nil
}
