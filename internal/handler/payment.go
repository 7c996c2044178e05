package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"paylink/internal/domain"
	"paylink/internal/service"
)

// PaymentHandler handles HTTP requests for payments.
type PaymentHandler struct {
	paymentService  *service.PaymentService
	successURL      string
	cancelURL       string
	defaultProvider domain.Provider
}

// NewPaymentHandler creates a new PaymentHandler. successURL and cancelURL
// are the configured landing pages the provider redirects the customer to;
// defaultProvider is used when the request body omits one.
func NewPaymentHandler(paymentService *service.PaymentService, successURL, cancelURL, defaultProvider string) *PaymentHandler {
	return &PaymentHandler{
		paymentService:  paymentService,
		successURL:      successURL,
		cancelURL:       cancelURL,
		defaultProvider: domain.Provider(defaultProvider),
	}
}

// CreatePaymentRequest is the HTTP request body for creating a checkout.
type CreatePaymentRequest struct {
	OrderID          string `json:"order_id"`
	CustomerID       string `json:"customer_id"`
	AmountMinorUnits int64  `json:"amount_minor_units"`
	Currency         string `json:"currency"`
	Provider         string `json:"provider"`
}

// CreatePaymentResponse is the HTTP response for checkout creation.
type CreatePaymentResponse struct {
	PaymentID   string     `json:"payment_id"`
	CheckoutURL string     `json:"checkout_url"`
	Status      string     `json:"status"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// PaymentStatusResponse is the HTTP response for status queries.
type PaymentStatusResponse struct {
	PaymentID        string     `json:"payment_id"`
	OrderID          string     `json:"order_id"`
	Provider         string     `json:"provider"`
	AmountMinorUnits int64      `json:"amount_minor_units"`
	Currency         string     `json:"currency"`
	Status           string     `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	PaidAt           *time.Time `json:"paid_at,omitempty"`
}

// CreatePayment handles POST /v1/payments
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	p := domain.Provider(req.Provider)
	if p == "" {
		p = h.defaultProvider
	}

	record, err := h.paymentService.CreatePayment(c.Request.Context(), service.CreatePaymentRequest{
		OrderID:          req.OrderID,
		CustomerID:       req.CustomerID,
		AmountMinorUnits: req.AmountMinorUnits,
		Currency:         req.Currency,
		Provider:         p,
		SuccessURL:       h.successURL,
		CancelURL:        h.cancelURL,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, CreatePaymentResponse{
		PaymentID:   record.ID,
		CheckoutURL: record.CheckoutURL,
		Status:      string(record.Status),
		ExpiresAt:   record.ExpiresAt,
	})
}

// GetPaymentStatus handles GET /v1/payments/:id/status
func (h *PaymentHandler) GetPaymentStatus(c *gin.Context) {
	paymentID := c.Param("id")

	record, err := h.paymentService.GetPayment(c.Request.Context(), paymentID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, PaymentStatusResponse{
		PaymentID:        record.ID,
		OrderID:          record.OrderID,
		Provider:         string(record.Provider),
		AmountMinorUnits: record.AmountMinorUnits,
		Currency:         record.Currency,
		Status:           string(record.Status),
		CreatedAt:        record.CreatedAt,
		PaidAt:           record.PaidAt,
	})
}
