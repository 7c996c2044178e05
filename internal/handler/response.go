package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"paylink/internal/provider"
	"paylink/internal/repository"
	"paylink/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response with the appropriate HTTP status
// code. Unexpected errors are logged in full server-side and redacted in
// the response body.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	if code >= http.StatusInternalServerError {
		log.Printf("[HTTP] internal error: path=%s err=%v", c.FullPath(), err)
		c.JSON(code, ErrorResponse{Error: "internal error"})
		return
	}
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps engine errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Not found
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound

	// Caller errors - Bad Request
	case errors.Is(err, service.ErrInvalidOrderID),
		errors.Is(err, service.ErrInvalidCustomerID),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidCurrency),
		errors.Is(err, service.ErrInvalidPaymentID),
		errors.Is(err, service.ErrUnknownProvider),
		errors.Is(err, provider.ErrInvalidRequest),
		errors.Is(err, provider.ErrInvalidPayload),
		errors.Is(err, provider.ErrInvalidSignature):
		return http.StatusBadRequest

	// Business-rule conflict
	case errors.Is(err, service.ErrDuplicatePayment):
		return http.StatusConflict

	// Upstream transient failure
	case errors.Is(err, provider.ErrProviderUnavailable):
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}
