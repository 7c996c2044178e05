package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"paylink/internal/domain"
)

func payfastTestAdapter() *PayFastAdapter {
	return NewPayFastAdapter(PayFastConfig{
		MerchantID:  "10000100",
		MerchantKey: "46f0cd694581a",
		Passphrase:  "jt7NOE43FZPn",
		NotifyURL:   "https://engine.example/v1/payments/webhook/payfast",
	})
}

// signedITN builds a form-encoded ITN body with a valid trailing signature.
func signedITN(a *PayFastAdapter, fields []pair) []byte {
	signature := payfastSignature(fields, a.cfg.Passphrase)
	return []byte(encodePairs(fields) + "&signature=" + signature)
}

func paidITNFields(reference string) []pair {
	return []pair{
		{"m_payment_id", reference},
		{"pf_payment_id", "1089250"},
		{"payment_status", "COMPLETE"},
		{"amount_gross", "299.00"},
		{"merchant_id", "10000100"},
	}
}

func TestPayFastCreateCheckout_SignedRedirect(t *testing.T) {
	t.Parallel()

	adapter := payfastTestAdapter()
	session, err := adapter.CreateCheckout(context.Background(), CheckoutRequest{
		OrderRef:         "order-1",
		AmountMinorUnits: 29900,
		Currency:         "ZAR",
		SuccessURL:       "https://shop.example/success",
		CancelURL:        "https://shop.example/cancel",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.Reference == "" {
		t.Fatal("expected a merchant payment reference")
	}
	if !strings.HasPrefix(session.CheckoutURL, payfastDefaultProcessURL+"?") {
		t.Fatalf("unexpected checkout url: %q", session.CheckoutURL)
	}
	if session.ExpiresAt.IsZero() {
		t.Error("expected an expiry on the signed redirect")
	}

	parsed, err := url.Parse(session.CheckoutURL)
	if err != nil {
		t.Fatalf("parsing checkout url: %v", err)
	}
	query := parsed.Query()
	if got := query.Get("amount"); got != "299.00" {
		t.Errorf("unexpected amount: %q", got)
	}
	if got := query.Get("m_payment_id"); got != session.Reference {
		t.Errorf("m_payment_id %q does not match reference %q", got, session.Reference)
	}
	if query.Get("signature") == "" {
		t.Error("expected the redirect to carry a signature")
	}

	// The carried signature must match a recomputation over the same fields.
	pairs, provided, err := parseITN([]byte(parsed.RawQuery))
	if err != nil {
		t.Fatalf("splitting query: %v", err)
	}
	if expected := payfastSignature(pairs, adapter.cfg.Passphrase); provided != expected {
		t.Errorf("signature mismatch: got %q, want %q", provided, expected)
	}
}

func TestPayFastCreateCheckout_RejectsBadRequests(t *testing.T) {
	t.Parallel()

	adapter := payfastTestAdapter()
	ctx := context.Background()

	cases := []struct {
		name   string
		amount int64
		ccy    string
	}{
		{"foreign currency", 29900, "USD"},
		{"zero amount", 0, "ZAR"},
		{"negative amount", -500, "ZAR"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := adapter.CreateCheckout(ctx, CheckoutRequest{
				OrderRef:         "order-1",
				AmountMinorUnits: tc.amount,
				Currency:         tc.ccy,
			})
			if !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}
}

func TestPayFastVerifyWebhook_ValidSignature(t *testing.T) {
	t.Parallel()

	adapter := payfastTestAdapter()
	body := signedITN(adapter, paidITNFields("ref-1"))

	if err := adapter.VerifyWebhook(body, http.Header{}); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestPayFastVerifyWebhook_TamperedFieldRejected(t *testing.T) {
	t.Parallel()

	adapter := payfastTestAdapter()
	body := string(signedITN(adapter, paidITNFields("ref-1")))

	tampered := strings.Replace(body, "amount_gross=299.00", "amount_gross=1.00", 1)
	if err := adapter.VerifyWebhook([]byte(tampered), http.Header{}); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestPayFastVerifyWebhook_ReorderedFieldsRejected(t *testing.T) {
	t.Parallel()

	// The signature covers fields in received order; the same fields in a
	// different order sign differently.
	adapter := payfastTestAdapter()
	fields := paidITNFields("ref-1")
	signature := payfastSignature(fields, adapter.cfg.Passphrase)

	reordered := []pair{fields[2], fields[0], fields[1], fields[3], fields[4]}
	body := encodePairs(reordered) + "&signature=" + signature

	if err := adapter.VerifyWebhook([]byte(body), http.Header{}); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestPayFastVerifyWebhook_MissingSignatureRejected(t *testing.T) {
	t.Parallel()

	adapter := payfastTestAdapter()
	body := encodePairs(paidITNFields("ref-1"))

	if err := adapter.VerifyWebhook([]byte(body), http.Header{}); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestPayFastVerifyWebhook_WrongPassphraseRejected(t *testing.T) {
	t.Parallel()

	signer := NewPayFastAdapter(PayFastConfig{Passphrase: "other-passphrase"})
	adapter := payfastTestAdapter()
	body := signedITN(signer, paidITNFields("ref-1"))

	if err := adapter.VerifyWebhook(body, http.Header{}); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestPayFastParseWebhookEvent(t *testing.T) {
	t.Parallel()

	adapter := payfastTestAdapter()
	body := signedITN(adapter, paidITNFields("ref-1"))

	event, err := adapter.ParseWebhookEvent(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.ProviderEventID != "1089250" {
		t.Errorf("unexpected event id: %q", event.ProviderEventID)
	}
	if event.ProviderReference != "ref-1" {
		t.Errorf("unexpected reference: %q", event.ProviderReference)
	}
	if event.Status != domain.PaymentStatusPaid {
		t.Errorf("expected paid, got %s", event.Status)
	}
}

func TestPayFastParseWebhookEvent_MissingIdentityRejected(t *testing.T) {
	t.Parallel()

	adapter := payfastTestAdapter()
	for _, body := range []string{
		"payment_status=COMPLETE",
		"m_payment_id=ref-1&payment_status=COMPLETE",
		"pf_payment_id=1089250&payment_status=COMPLETE",
	} {
		if _, err := adapter.ParseWebhookEvent([]byte(body)); !errors.Is(err, ErrInvalidPayload) {
			t.Errorf("body %q: expected ErrInvalidPayload, got %v", body, err)
		}
	}
}

func TestMapPayFastStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want domain.PaymentStatus
	}{
		{"COMPLETE", domain.PaymentStatusPaid},
		{"complete", domain.PaymentStatusPaid},
		{" Complete ", domain.PaymentStatusPaid},
		{"FAILED", domain.PaymentStatusFailed},
		{"CANCELLED", domain.PaymentStatusFailed},
		{"EXPIRED", domain.PaymentStatusExpired},
		{"PENDING", domain.PaymentStatusPending},
		{"SOMETHING_NEW", domain.PaymentStatusPending},
		{"", domain.PaymentStatusPending},
	}
	for _, tc := range cases {
		if got := mapPayFastStatus(tc.in); got != tc.want {
			t.Errorf("mapPayFastStatus(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestPayFastGetStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transactions/ref-1" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("merchant-id"); got != "10000100" {
			t.Errorf("unexpected merchant-id header: %q", got)
		}
		fmt.Fprint(w, `{"payment_status":"COMPLETE"}`)
	}))
	defer server.Close()

	adapter := NewPayFastAdapter(PayFastConfig{
		MerchantID:  "10000100",
		MerchantKey: "46f0cd694581a",
		QueryURL:    server.URL + "/transactions",
	})

	status, err := adapter.GetStatus(context.Background(), "ref-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != domain.PaymentStatusPaid {
		t.Errorf("expected paid, got %s", status)
	}
}

func TestPayFastGetStatus_NoQueryEndpoint(t *testing.T) {
	t.Parallel()

	adapter := payfastTestAdapter()
	if _, err := adapter.GetStatus(context.Background(), "ref-1"); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestFormatRands(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   int64
		want string
	}{
		{29900, "299.00"},
		{100, "1.00"},
		{101, "1.01"},
		{5, "0.05"},
		{99, "0.99"},
		{1234567, "12345.67"},
	}
	for _, tc := range cases {
		if got := formatRands(tc.in); got != tc.want {
			t.Errorf("formatRands(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
