package models

import (
	"errors"
	"fmt"
)

// Failure kinds surfaced by the cart and checkout workflows. All of them are
// recoverable per-request; none aborts the serving process.
var (
	// ErrNotFound indicates a product, address or order lookup miss.
	ErrNotFound = errors.New("not found")

	// ErrEmptyCart rejects checkout steps on a cart with no entries.
	ErrEmptyCart = errors.New("cart is empty")

	// ErrOutOfStock rejects a cart add that would exceed available stock.
	ErrOutOfStock = errors.New("product is out of stock")

	// ErrServiceUnavailable rejects a service without an approved trainer.
	ErrServiceUnavailable = errors.New("service has no approved trainer")

	// ErrMissingGuestEmail rejects guest checkout without an email.
	ErrMissingGuestEmail = errors.New("guest email is required")

	// ErrOrderNotStaged rejects summary/confirm before start_order staged one.
	ErrOrderNotStaged = errors.New("no order staged for this session")

	// ErrInsufficientReservation flags a reservation ledger release below the
	// held amount. A data-consistency fault: logged and surfaced, not fatal.
	ErrInsufficientReservation = errors.New("reserved stock below released amount")

	// ErrCartExpired reports a cart cleared by the inactivity timeout.
	ErrCartExpired = errors.New("cart expired due to inactivity")

	// ErrOrderNotCancellable rejects cancelling a non-pending order.
	ErrOrderNotCancellable = errors.New("only pending orders can be cancelled")
)

// InsufficientStockError aborts an order confirmation whose staged quantity
// exceeds the authoritative stock of a product. It names the offending
// product so the caller can tell the customer which line failed.
type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q (product %d): requested %d, available %d",
		e.ProductName, e.ProductID, e.Requested, e.Available)
}

// FieldError is a single address form validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries field-level failures back to the caller for
// redisplay. It is recovered locally, never propagated as a server fault.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %d field(s)", len(e.Fields))
}
