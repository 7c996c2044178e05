package service

import "errors"

var (
	// ErrInvalidOrderID is returned when the order id is empty.
	ErrInvalidOrderID = errors.New("invalid order id")

	// ErrInvalidCustomerID is returned when the customer id is empty.
	ErrInvalidCustomerID = errors.New("invalid customer id")

	// ErrInvalidAmount is returned when the amount is not a positive number
	// of minor units.
	ErrInvalidAmount = errors.New("invalid payment amount")

	// ErrInvalidCurrency is returned when the currency is not a three
	// letter code.
	ErrInvalidCurrency = errors.New("invalid currency code")

	// ErrInvalidPaymentID is returned when the payment id is empty.
	ErrInvalidPaymentID = errors.New("invalid payment id")

	// ErrUnknownProvider is returned when no adapter is configured for the
	// requested provider.
	ErrUnknownProvider = errors.New("unknown payment provider")

	// ErrDuplicatePayment is returned when an unexpired pending payment
	// already exists for the same order and provider.
	ErrDuplicatePayment = errors.New("pending payment already exists for order")

	// ErrUnknownReference is returned when a webhook names a provider
	// reference no payment record carries.
	ErrUnknownReference = errors.New("unknown provider reference")
)
