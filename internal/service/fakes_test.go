package service

import (
	"context"
	"fmt"
	"sync"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

// fakeStore is an in-memory stand-in for the sqlx store. Every method
// holds the mutex for its whole body, mirroring the per-statement
// atomicity of the real conditional updates.
type fakeStore struct {
	mu       sync.Mutex
	orders   map[int64]*models.Order
	products map[int64]*models.Product
	users    map[int64]*models.User
	reviews  map[int64]*models.Review

	nextOrderID  int64
	nextUserID   int64
	nextReviewID int64

	// saveOrderErrs are popped one per SaveOrder call before any state
	// change, to script optimistic-lock conflicts.
	saveOrderErrs []error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:   make(map[int64]*models.Order),
		products: make(map[int64]*models.Product),
		users:    make(map[int64]*models.User),
		reviews:  make(map[int64]*models.Review),
	}
}

func copyOrder(o *models.Order) *models.Order {
	cp := *o
	cp.Lines = make([]models.OrderLine, len(o.Lines))
	copy(cp.Lines, o.Lines)
	for i := range cp.Lines {
		cp.Lines[i].Product = nil
	}
	return &cp
}

func (f *fakeStore) addProduct(id int64, price string, stock int) {
	f.products[id] = &models.Product{
		ID:      id,
		Name:    fmt.Sprintf("product-%d", id),
		Price:   decimal.RequireFromString(price),
		Stock:   stock,
		Version: 1,
	}
}

func (f *fakeStore) addUser(id int64, balance string) {
	f.users[id] = &models.User{
		ID:      id,
		Name:    fmt.Sprintf("user-%d", id),
		Email:   fmt.Sprintf("user-%d@example.com", id),
		Role:    models.RoleClient,
		Balance: decimal.RequireFromString(balance),
		Version: 1,
	}
}

func (f *fakeStore) CreateOrder(ctx context.Context, order *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextOrderID++
	order.ID = f.nextOrderID
	order.Version = 1
	f.orders[order.ID] = copyOrder(order)
	return nil
}

func (f *fakeStore) GetOrderWithLines(ctx context.Context, id int64) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", models.ErrOrderNotFound, id)
	}
	order := copyOrder(stored)
	for i := range order.Lines {
		if p, ok := f.products[order.Lines[i].ProductID]; ok {
			cp := *p
			order.Lines[i].Product = &cp
		}
	}
	return order, nil
}

func (f *fakeStore) SaveOrder(ctx context.Context, order *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.saveOrderErrs) > 0 {
		err := f.saveOrderErrs[0]
		f.saveOrderErrs = f.saveOrderErrs[1:]
		if err != nil {
			return err
		}
	}
	stored, ok := f.orders[order.ID]
	if !ok {
		return fmt.Errorf("%w: %d", models.ErrOrderNotFound, order.ID)
	}
	if stored.Version != order.Version {
		return fmt.Errorf("%w: order %d", models.ErrVersionConflict, order.ID)
	}
	order.Version++
	f.orders[order.ID] = copyOrder(order)
	return nil
}

func (f *fakeStore) DeleteOrder(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.orders[id]; !ok {
		return fmt.Errorf("%w: %d", models.ErrOrderNotFound, id)
	}
	delete(f.orders, id)
	return nil
}

func (f *fakeStore) ListOrdersByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var orders []models.Order
	for _, o := range f.orders {
		if o.UserID == userID {
			orders = append(orders, *copyOrder(o))
		}
	}
	return orders, nil
}

func (f *fakeStore) ListOrders(ctx context.Context) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var orders []models.Order
	for _, o := range f.orders {
		orders = append(orders, *copyOrder(o))
	}
	return orders, nil
}

func (f *fakeStore) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", models.ErrProductNotFound, id)
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) DecrementStock(ctx context.Context, productID int64, quantity int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[productID]
	if !ok {
		return 0, nil
	}
	if p.Stock < quantity {
		return 0, nil
	}
	p.Stock -= quantity
	p.Version++
	return 1, nil
}

func (f *fakeStore) IncrementStock(ctx context.Context, productID int64, quantity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[productID]
	if !ok {
		return fmt.Errorf("%w: %d", models.ErrProductNotFound, productID)
	}
	p.Stock += quantity
	p.Version++
	return nil
}

func (f *fakeStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", models.ErrUserNotFound, id)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) DebitBalance(ctx context.Context, userID int64, amount decimal.Decimal, version int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return 0, nil
	}
	if u.Version != version || u.Balance.LessThan(amount) {
		return 0, nil
	}
	u.Balance = u.Balance.Sub(amount)
	u.Version++
	return 1, nil
}

func (f *fakeStore) CreditBalance(ctx context.Context, userID int64, amount decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return fmt.Errorf("%w: %d", models.ErrUserNotFound, userID)
	}
	u.Balance = u.Balance.Add(amount)
	u.Version++
	return nil
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", models.ErrUserNotFound, email)
}

func (f *fakeStore) CreateUser(ctx context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextUserID++
	user.ID = f.nextUserID
	user.Version = 1
	cp := *user
	f.users[user.ID] = &cp
	return nil
}

func (f *fakeStore) DeleteUser(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return fmt.Errorf("%w: %d", models.ErrUserNotFound, id)
	}
	delete(f.users, id)
	return nil
}

func (f *fakeStore) AdjustBalance(ctx context.Context, userID int64, delta decimal.Decimal) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return 0, nil
	}
	next := u.Balance.Add(delta)
	if next.IsNegative() {
		return 0, nil
	}
	u.Balance = next
	u.Version++
	return 1, nil
}

func (f *fakeStore) CountOrdersByUser(ctx context.Context, userID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, o := range f.orders {
		if o.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) CreateReview(ctx context.Context, review *models.Review) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextReviewID++
	review.ID = f.nextReviewID
	cp := *review
	f.reviews[review.ID] = &cp
	return nil
}

func (f *fakeStore) GetReviewByID(ctx context.Context, id int64) (*models.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reviews[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", models.ErrReviewNotFound, id)
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) ListReviewsByProduct(ctx context.Context, productID int64) ([]models.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var reviews []models.Review
	for _, r := range f.reviews {
		if r.ProductID == productID {
			reviews = append(reviews, *r)
		}
	}
	return reviews, nil
}

func (f *fakeStore) DeleteReview(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.reviews[id]; !ok {
		return fmt.Errorf("%w: %d", models.ErrReviewNotFound, id)
	}
	delete(f.reviews, id)
	return nil
}

func (f *fakeStore) DeleteReviewsByUser(ctx context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, r := range f.reviews {
		if r.UserID == userID {
			delete(f.reviews, id)
		}
	}
	return nil
}

func (f *fakeStore) productStock(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[id].Stock
}

func (f *fakeStore) userBalance(id int64) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[id].Balance
}

func (f *fakeStore) orderStatus(id int64) models.OrderStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[id].Status
}

// fakeEventSink records published events
type fakeEventSink struct {
	mu        sync.Mutex
	confirmed []*models.OrderConfirmedEvent
	cancelled []*models.OrderCancelledEvent
	created   []*models.OrderCreatedEvent
	changed   []*models.OrderStatusChangedEvent
}

func (f *fakeEventSink) PublishOrderCreated(ctx context.Context, e *models.OrderCreatedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, e)
	return nil
}

func (f *fakeEventSink) PublishOrderConfirmed(ctx context.Context, e *models.OrderConfirmedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmed = append(f.confirmed, e)
	return nil
}

func (f *fakeEventSink) PublishOrderStatusChanged(ctx context.Context, e *models.OrderStatusChangedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changed = append(f.changed, e)
	return nil
}

func (f *fakeEventSink) PublishOrderCancelled(ctx context.Context, e *models.OrderCancelledEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, e)
	return nil
}
