package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinel errors for the common failure kinds. Store and service code
// wraps these with %w so callers can match with errors.Is.
var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrProductNotFound  = errors.New("product not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrCategoryNotFound = errors.New("category not found")
	ErrReviewNotFound   = errors.New("review not found")

	ErrInvalidArgument = errors.New("invalid argument")
	ErrForbidden       = errors.New("forbidden")

	// ErrVersionConflict is an optimistic-lock failure: the row's version
	// changed between read and write. Retryable inside checkout only.
	ErrVersionConflict = errors.New("version conflict")

	// ErrProductInUse blocks catalog deletion while order lines or
	// reviews still reference the product.
	ErrProductInUse = errors.New("product is referenced by order lines or reviews")

	// ErrUserHasOrders blocks account deletion while orders exist.
	ErrUserHasOrders = errors.New("user still has orders")
)

// InvalidTransitionError reports a status change not permitted by the
// order lifecycle.
type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order transition from %s to %s", e.From, e.To)
}

// InsufficientStockError reports that a product cannot cover the
// requested quantity.
type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested=%d, available=%d",
		e.ProductID, e.Requested, e.Available)
}

// InsufficientBalanceError reports that a user's balance cannot cover an
// order total.
type InsufficientBalanceError struct {
	UserID  int64
	Balance decimal.Decimal
	Total   decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for user %d: balance=%s, total=%s",
		e.UserID, e.Balance.StringFixed(2), e.Total.StringFixed(2))
}
