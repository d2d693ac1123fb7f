package services

import "errors"

var (
	// ErrAlreadyIssued is returned when ticket issuance is invoked for a
	// payment whose tickets were already generated (or are being generated
	// by a concurrent run). Callers treat it as a no-op signal, not a fault.
	ErrAlreadyIssued = errors.New("tickets already issued for this payment")

	// ErrInvalidPayment is returned when a payment record lacks the fields
	// issuance needs (buyer, event, line items).
	ErrInvalidPayment = errors.New("payment record is missing required fields")

	// ErrPaymentNotFound is returned by the synchronous reconciliation path
	// when the gateway has no payment for the notified id.
	ErrPaymentNotFound = errors.New("payment not found at gateway")

	// ErrMissingExternalReference is returned when a gateway snapshot does
	// not carry the internal payment id.
	ErrMissingExternalReference = errors.New("snapshot has no external reference")

	// ErrNothingToSettle is returned when a settlement is requested for an
	// event with no approved, unsettled payments.
	ErrNothingToSettle = errors.New("no approved payments pending settlement")
)
