package service

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CheckoutPolicy bounds the checkout retry loop
type CheckoutPolicy struct {
	MaxAttempts int
	BackoffStep time.Duration
}

// DefaultCheckoutPolicy returns the standard bound: three attempts with a
// linearly increasing backoff.
func DefaultCheckoutPolicy() CheckoutPolicy {
	return CheckoutPolicy{MaxAttempts: 3, BackoffStep: 50 * time.Millisecond}
}

// OrderService handles the order lifecycle: the cart aggregate, status
// transitions and checkout.
type OrderService struct {
	orders   OrderStore
	products ProductStore
	users    UserStore
	events   EventSink
	cache    ProductCache
	policy   CheckoutPolicy
	logger   *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	orders OrderStore,
	products ProductStore,
	users UserStore,
	events EventSink,
	cache ProductCache,
	policy CheckoutPolicy,
) *OrderService {
	if policy.MaxAttempts <= 0 {
		policy = DefaultCheckoutPolicy()
	}
	return &OrderService{
		orders:   orders,
		products: products,
		users:    users,
		events:   events,
		cache:    cache,
		policy:   policy,
		logger:   util.GetLogger(),
	}
}

// CreateOrder opens a new empty order for the user
func (s *OrderService) CreateOrder(ctx context.Context, userID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}

	order := &models.Order{
		UserID: userID,
		Status: models.OrderStatusCreated,
	}
	if err := s.orders.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", userID))

	s.publishOrderCreated(ctx, order)
	return order, nil
}

// GetOrder retrieves an order with its lines
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	return s.orders.GetOrderWithLines(ctx, orderID)
}

// AddLine adds quantity of a product to the order, merging into an
// existing line for the same product. The current catalog price is
// snapshotted onto the line and the total is recomputed.
func (s *OrderService) AddLine(ctx context.Context, orderID, productID int64, quantity int) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.AddLine")
	defer span.End()

	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive, got %d", models.ErrInvalidArgument, quantity)
	}

	order, err := s.loadEditableOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	product, err := s.products.GetProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	order.AddLine(productID, quantity, product.Price)
	order.RecalculateTotal()

	if err := s.orders.SaveOrder(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// SetLineQuantity sets the quantity of the order's line for the product.
// Zero removes the line; a negative quantity is rejected. The price
// snapshot is refreshed when the line is touched.
func (s *OrderService) SetLineQuantity(ctx context.Context, orderID, productID int64, quantity int) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.SetLineQuantity")
	defer span.End()

	if quantity < 0 {
		return nil, fmt.Errorf("%w: quantity must not be negative, got %d", models.ErrInvalidArgument, quantity)
	}
	if quantity == 0 {
		return s.RemoveLine(ctx, orderID, productID)
	}

	order, err := s.loadEditableOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	line := order.Line(productID)
	if line == nil {
		return nil, fmt.Errorf("%w: %d in order %d", models.ErrProductNotFound, productID, orderID)
	}

	product, err := s.products.GetProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	line.Quantity = quantity
	line.UnitPrice = product.Price
	order.RecalculateTotal()

	if err := s.orders.SaveOrder(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// RemoveLine removes the order's line for the product and recomputes the
// total. The detached line is deleted on save.
func (s *OrderService) RemoveLine(ctx context.Context, orderID, productID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.RemoveLine")
	defer span.End()

	order, err := s.loadEditableOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !order.RemoveLine(productID) {
		return nil, fmt.Errorf("%w: %d in order %d", models.ErrProductNotFound, productID, orderID)
	}
	order.RecalculateTotal()

	if err := s.orders.SaveOrder(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// loadEditableOrder loads an order whose lines may still change. Lines are
// frozen once checkout moves the order past CREATED, since stock and
// balance have been reserved against them.
func (s *OrderService) loadEditableOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	order, err := s.orders.GetOrderWithLines(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusCreated {
		return nil, fmt.Errorf("%w: order %d is %s, lines can only change while CREATED",
			models.ErrInvalidArgument, orderID, order.Status)
	}
	return order, nil
}

// ChangeStatus applies a lifecycle transition to the order. A
// self-transition is a no-op success. Cancelling a PENDING order gives the
// reserved stock back to every line's product; no other transition touches
// stock or balance. Transitions other than cancellation require the admin
// role; cancellation is open to the order's owner.
func (s *OrderService) ChangeStatus(ctx context.Context, orderID int64, next models.OrderStatus, callerID int64, role models.Role) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ChangeStatus")
	defer span.End()

	if !next.Valid() {
		return nil, fmt.Errorf("%w: unknown order status %q", models.ErrInvalidArgument, next)
	}
	if next != models.OrderStatusCancelled {
		if err := RequireAdmin(role); err != nil {
			return nil, err
		}
	}

	order, err := s.orders.GetOrderWithLines(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if next == models.OrderStatusCancelled && order.UserID != callerID {
		if err := RequireAdmin(role); err != nil {
			return nil, fmt.Errorf("%w: only the owner may cancel order %d", models.ErrForbidden, orderID)
		}
	}

	if order.Status == next {
		return order, nil
	}
	if !order.Status.CanTransitionTo(next) {
		return nil, &models.InvalidTransitionError{From: order.Status, To: next}
	}

	reposition := order.Status == models.OrderStatusPending && next == models.OrderStatusCancelled
	prev := order.Status
	order.Status = next

	if err := s.orders.SaveOrder(ctx, order); err != nil {
		return nil, err
	}

	if reposition {
		s.repositionStock(ctx, order)
	}

	s.logger.Info("Order status changed",
		zap.Int64("order_id", order.ID),
		zap.String("from", string(prev)),
		zap.String("to", string(next)))

	if next == models.OrderStatusCancelled {
		util.OrdersCancelledTotal.Inc()
		s.publishOrderCancelled(ctx, order, reposition)
	} else {
		s.publishStatusChanged(ctx, order, prev, next)
	}
	return order, nil
}

// repositionStock reverses the checkout's stock decrements after a PENDING
// order is cancelled.
func (s *OrderService) repositionStock(ctx context.Context, order *models.Order) {
	for i := range order.Lines {
		line := &order.Lines[i]
		if err := s.products.IncrementStock(ctx, line.ProductID, line.Quantity); err != nil {
			s.logger.Error("Failed to reposition stock",
				zap.Int64("order_id", order.ID),
				zap.Int64("product_id", line.ProductID),
				zap.Int("quantity", line.Quantity),
				zap.Error(err))
			continue
		}
		util.StockRepositionedTotal.Add(float64(line.Quantity))
		s.invalidateProduct(ctx, line.ProductID)
	}
}

// DeleteOrder removes the order together with all of its lines. A PENDING
// order still holds reserved stock and the owner's debited balance, so it
// must be cancelled before it can be deleted.
func (s *OrderService) DeleteOrder(ctx context.Context, orderID int64) error {
	ctx, span := util.StartSpan(ctx, "OrderService.DeleteOrder")
	defer span.End()

	order, err := s.orders.GetOrderWithLines(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status == models.OrderStatusPending {
		return fmt.Errorf("%w: order %d is PENDING, cancel it before deleting",
			models.ErrInvalidArgument, orderID)
	}
	return s.orders.DeleteOrder(ctx, orderID)
}

// ListOrdersForUser retrieves orders owned by the user
func (s *OrderService) ListOrdersForUser(ctx context.Context, userID int64) ([]models.Order, error) {
	return s.orders.ListOrdersByUser(ctx, userID)
}

// ListAllOrders retrieves every order; back-office only
func (s *OrderService) ListAllOrders(ctx context.Context, role models.Role) ([]models.Order, error) {
	if err := RequireAdmin(role); err != nil {
		return nil, err
	}
	return s.orders.ListOrders(ctx)
}

func (s *OrderService) invalidateProduct(ctx context.Context, productID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateProduct(ctx, productID); err != nil {
		s.logger.Warn("Failed to invalidate product cache",
			zap.Int64("product_id", productID),
			zap.Error(err))
	}
}

func (s *OrderService) publishOrderCreated(ctx context.Context, order *models.Order) {
	if s.events == nil {
		return
	}
	event := &models.OrderCreatedEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderCreated),
		OrderID:   order.ID,
		UserID:    order.UserID,
	}
	if err := s.events.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}
}

func (s *OrderService) publishStatusChanged(ctx context.Context, order *models.Order, from, to models.OrderStatus) {
	if s.events == nil {
		return
	}
	event := &models.OrderStatusChangedEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderStatusChanged),
		OrderID:   order.ID,
		From:      from,
		To:        to,
	}
	if err := s.events.PublishOrderStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
	}
}

func (s *OrderService) publishOrderCancelled(ctx context.Context, order *models.Order, repositioned bool) {
	if s.events == nil {
		return
	}
	event := &models.OrderCancelledEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderCancelled),
		OrderID:   order.ID,
		UserID:    order.UserID,
	}
	if repositioned {
		event.Repositioned = models.EventLines(order)
	}
	if err := s.events.PublishOrderCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
