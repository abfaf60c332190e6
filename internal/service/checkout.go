package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// errStockRace marks an insufficient-stock condition detected during the
// commit phase: a concurrent decrement won between the precondition check
// and the write. Unlike the precondition form it is retried, since a
// concurrent cancellation may free stock in the interim.
var errStockRace = errors.New("stock changed during commit")

// Checkout validates balance and stock for the order, atomically decrements
// stock per line, debits the user's balance and moves the order to PENDING.
// Lock conflicts and commit-phase stock races are retried up to the policy
// bound with a linearly increasing backoff; every other failure surfaces
// immediately. An order with no lines checks out to PENDING with a zero
// total and no side effects.
func (s *OrderService) Checkout(ctx context.Context, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Checkout")
	defer span.End()

	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
	}()

	var lastErr error
	for attempt := 1; attempt <= s.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			util.CheckoutRetriesTotal.WithLabelValues(retryReason(lastErr)).Inc()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.policy.BackoffStep * time.Duration(attempt-1)):
			}
		}
		util.CheckoutAttemptsTotal.Inc()

		order, err := s.attemptCheckout(ctx, orderID)
		if err == nil {
			util.CheckoutSuccessTotal.Inc()
			s.logger.Info("Order checked out",
				zap.Int64("order_id", order.ID),
				zap.String("total", order.Total.StringFixed(2)),
				zap.Int("attempt", attempt))
			s.publishOrderConfirmed(ctx, order)
			return order, nil
		}
		if errors.Is(err, models.ErrVersionConflict) || errors.Is(err, errStockRace) {
			s.logger.Warn("Checkout attempt lost a race, retrying",
				zap.Int64("order_id", orderID),
				zap.Int("attempt", attempt),
				zap.Error(err))
			lastErr = err
			continue
		}
		util.CheckoutFailedTotal.WithLabelValues(failReason(err)).Inc()
		return nil, err
	}

	// Retries exhausted. A lock conflict may be hiding a real stock
	// shortage, so re-validate once against current stock and surface the
	// most accurate error.
	if errors.Is(lastErr, models.ErrVersionConflict) {
		if stockErr := s.revalidateStock(ctx, orderID); stockErr != nil {
			util.CheckoutFailedTotal.WithLabelValues("insufficient_stock").Inc()
			return nil, stockErr
		}
		util.CheckoutFailedTotal.WithLabelValues("version_conflict").Inc()
		return nil, lastErr
	}

	var stockErr *models.InsufficientStockError
	if errors.As(lastErr, &stockErr) {
		util.CheckoutFailedTotal.WithLabelValues("insufficient_stock").Inc()
		return nil, stockErr
	}
	util.CheckoutFailedTotal.WithLabelValues("exhausted").Inc()
	return nil, lastErr
}

// attemptCheckout runs one full check-then-commit pass. Commit-phase
// operations are individually atomic conditional updates; a failure midway
// compensates what already went through before returning, so every attempt
// starts from clean state.
func (s *OrderService) attemptCheckout(ctx context.Context, orderID int64) (*models.Order, error) {
	order, err := s.orders.GetOrderWithLines(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == models.OrderStatusPending {
		return order, nil
	}
	if !order.Status.CanTransitionTo(models.OrderStatusPending) {
		return nil, &models.InvalidTransitionError{From: order.Status, To: models.OrderStatusPending}
	}
	if order.UserID == 0 {
		// data-integrity bug, not a caller error
		return nil, fmt.Errorf("order %d has no associated user", orderID)
	}

	order.RecalculateTotal()

	if len(order.Lines) == 0 {
		order.Status = models.OrderStatusPending
		if err := s.orders.SaveOrder(ctx, order); err != nil {
			return nil, err
		}
		return order, nil
	}

	user, err := s.users.GetUserByID(ctx, order.UserID)
	if err != nil {
		return nil, err
	}
	if user.Balance.LessThan(order.Total) {
		return nil, &models.InsufficientBalanceError{
			UserID:  user.ID,
			Balance: user.Balance,
			Total:   order.Total,
		}
	}

	for i := range order.Lines {
		line := &order.Lines[i]
		product := line.Product
		if product == nil {
			product, err = s.products.GetProductByID(ctx, line.ProductID)
			if err != nil {
				return nil, err
			}
		}
		if product.Stock < line.Quantity {
			return nil, &models.InsufficientStockError{
				ProductID: line.ProductID,
				Requested: line.Quantity,
				Available: product.Stock,
			}
		}
	}

	decremented := make([]*models.OrderLine, 0, len(order.Lines))
	for i := range order.Lines {
		line := &order.Lines[i]
		rows, err := s.products.DecrementStock(ctx, line.ProductID, line.Quantity)
		if err != nil {
			s.releaseStock(ctx, decremented)
			return nil, err
		}
		if rows == 0 {
			s.releaseStock(ctx, decremented)
			available := 0
			if p, perr := s.products.GetProductByID(ctx, line.ProductID); perr == nil {
				available = p.Stock
			}
			return nil, fmt.Errorf("%w: %w", errStockRace, &models.InsufficientStockError{
				ProductID: line.ProductID,
				Requested: line.Quantity,
				Available: available,
			})
		}
		decremented = append(decremented, line)
		s.invalidateProduct(ctx, line.ProductID)
	}

	rows, err := s.users.DebitBalance(ctx, user.ID, order.Total, user.Version)
	if err != nil {
		s.releaseStock(ctx, decremented)
		return nil, err
	}
	if rows == 0 {
		s.releaseStock(ctx, decremented)
		// zero rows is either a version conflict or a balance that shrank
		// since the check; reload to tell them apart
		fresh, ferr := s.users.GetUserByID(ctx, user.ID)
		if ferr == nil && fresh.Balance.LessThan(order.Total) {
			return nil, &models.InsufficientBalanceError{
				UserID:  fresh.ID,
				Balance: fresh.Balance,
				Total:   order.Total,
			}
		}
		return nil, fmt.Errorf("%w: user %d", models.ErrVersionConflict, user.ID)
	}

	order.Status = models.OrderStatusPending
	if err := s.orders.SaveOrder(ctx, order); err != nil {
		if cerr := s.users.CreditBalance(ctx, user.ID, order.Total); cerr != nil {
			s.logger.Error("Failed to re-credit balance after aborted checkout",
				zap.Int64("user_id", user.ID),
				zap.String("amount", order.Total.StringFixed(2)),
				zap.Error(cerr))
		}
		s.releaseStock(ctx, decremented)
		return nil, err
	}
	return order, nil
}

// releaseStock reverses this attempt's decrements after a mid-commit
// failure.
func (s *OrderService) releaseStock(ctx context.Context, lines []*models.OrderLine) {
	for _, line := range lines {
		if err := s.products.IncrementStock(ctx, line.ProductID, line.Quantity); err != nil {
			s.logger.Error("Failed to release stock after aborted checkout",
				zap.Int64("product_id", line.ProductID),
				zap.Int("quantity", line.Quantity),
				zap.Error(err))
			continue
		}
		s.invalidateProduct(ctx, line.ProductID)
	}
}

// revalidateStock reloads the order and reports the first line whose
// product can no longer cover it, or nil when stock is fine.
func (s *OrderService) revalidateStock(ctx context.Context, orderID int64) error {
	order, err := s.orders.GetOrderWithLines(ctx, orderID)
	if err != nil {
		return nil
	}
	for i := range order.Lines {
		line := &order.Lines[i]
		product := line.Product
		if product == nil {
			product, err = s.products.GetProductByID(ctx, line.ProductID)
			if err != nil {
				continue
			}
		}
		if product.Stock < line.Quantity {
			return &models.InsufficientStockError{
				ProductID: line.ProductID,
				Requested: line.Quantity,
				Available: product.Stock,
			}
		}
	}
	return nil
}

func (s *OrderService) publishOrderConfirmed(ctx context.Context, order *models.Order) {
	if s.events == nil {
		return
	}
	event := &models.OrderConfirmedEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderConfirmed),
		OrderID:   order.ID,
		UserID:    order.UserID,
		Total:     order.Total,
		Lines:     models.EventLines(order),
	}
	if err := s.events.PublishOrderConfirmed(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderConfirmed event", zap.Error(err))
	}
}

func retryReason(err error) string {
	if errors.Is(err, errStockRace) {
		return "stock_race"
	}
	return "version_conflict"
}

func failReason(err error) string {
	var (
		stockErr      *models.InsufficientStockError
		balanceErr    *models.InsufficientBalanceError
		transitionErr *models.InvalidTransitionError
	)
	switch {
	case errors.As(err, &stockErr):
		return "insufficient_stock"
	case errors.As(err, &balanceErr):
		return "insufficient_balance"
	case errors.As(err, &transitionErr):
		return "invalid_transition"
	case errors.Is(err, models.ErrOrderNotFound),
		errors.Is(err, models.ErrUserNotFound),
		errors.Is(err, models.ErrProductNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
