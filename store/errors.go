package store

import "errors"

// Business-rule errors returned by the store and service layers. The HTTP
// boundary maps these to transport codes with errors.Is; nothing in the core
// inspects strings.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNoCardAvailable     = errors.New("no card available")
	ErrCardNotUsed         = errors.New("card not used")
	ErrAmountMismatch      = errors.New("amount mismatch")
	ErrMalformedCallback   = errors.New("malformed callback payload")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidQuantity     = errors.New("quantity must be positive")
	ErrProductInactive     = errors.New("product not on sale")
	ErrForbidden           = errors.New("not the owner")

	// ErrAlreadyProcessed signals an idempotent no-op, not a failure: the
	// callback was settled by an earlier delivery.
	ErrAlreadyProcessed = errors.New("already processed")

	// ErrFulfillmentPending means payment succeeded but automatic delivery
	// could not complete; the order stays paid for an operator to resolve.
	ErrFulfillmentPending = errors.New("fulfillment pending")

	// ErrDuplicate surfaces unique-constraint violations (order numbers,
	// transaction ids) so callers can regenerate and retry.
	ErrDuplicate = errors.New("duplicate key")
)
