package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"paylink/internal/domain"
	"paylink/internal/provider"
	"paylink/internal/service"
)

// WebhookHandler handles inbound provider webhooks.
type WebhookHandler struct {
	webhookService *service.WebhookService
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(webhookService *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhookService: webhookService}
}

// HandleWebhook handles POST /v1/payments/webhook/:provider
//
// The raw body is captured before any parsing; signatures are computed over
// the exact bytes the provider sent. No body-parsing middleware may run
// ahead of this handler.
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	p := domain.Provider(c.Param("provider"))

	rawBody, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unreadable body"})
		return
	}

	outcome, err := h.webhookService.Ingest(c.Request.Context(), p, rawBody, c.Request.Header)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownProvider):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown provider"})
		case errors.Is(err, provider.ErrInvalidSignature):
			// Logged with the source for audit; deterministic, so provider
			// retries will keep failing.
			log.Printf("[WEBHOOK] signature rejected: provider=%s ip=%s ua=%q",
				p, c.ClientIP(), c.Request.UserAgent())
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid signature"})
		case errors.Is(err, provider.ErrInvalidPayload):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid payload"})
		case errors.Is(err, service.ErrUnknownReference):
			// Nothing for us to do and nothing a retry would fix; ack so
			// the provider stops redelivering.
			log.Printf("[WEBHOOK] event for unknown reference: provider=%s ip=%s", p, c.ClientIP())
			c.JSON(http.StatusOK, gin.H{"received": true})
		default:
			// Unexpected internal failure; providers retry on 5xx.
			log.Printf("[WEBHOOK] internal error: provider=%s err=%v", p, err)
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		}
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"received": true, "outcome": string(outcome)})
}
