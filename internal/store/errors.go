package store

import (
	"errors"
	"fmt"
)

// ErrEmptyCart rejects checkout of a missing or drained cart.
var ErrEmptyCart = errors.New("cannot checkout with an empty cart")

// NotFoundError covers missing users, products, cart items and orders.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

// ForbiddenError signals an ownership or role violation.
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string {
	return e.Reason
}

// InvalidStateError signals an illegal status transition or a mutation of an
// order in a terminal state.
type InvalidStateError struct {
	Reason string
}

func (e *InvalidStateError) Error() string {
	return e.Reason
}

// InsufficientStockError carries the quantity still available so the caller
// can build a useful message.
type InsufficientStockError struct {
	Product   string
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for '%s'. Available: %d", e.Product, e.Available)
}

// ProductUnavailableError signals a deactivated product.
type ProductUnavailableError struct {
	Product string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product '%s' is no longer available", e.Product)
}
