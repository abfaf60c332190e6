package service

import (
	"context"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

// OrderStore is the persistence surface the order service needs. An order
// loads together with its lines and each line's product; saving applies
// the version check, line upserts and orphan deletes.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderWithLines(ctx context.Context, id int64) (*models.Order, error)
	SaveOrder(ctx context.Context, order *models.Order) error
	DeleteOrder(ctx context.Context, id int64) error
	ListOrdersByUser(ctx context.Context, userID int64) ([]models.Order, error)
	ListOrders(ctx context.Context) ([]models.Order, error)
}

// ProductStore covers the stock primitives used by checkout and
// cancellation. DecrementStock reports rows affected: zero means the
// stock guard failed at write time and nothing changed.
type ProductStore interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	DecrementStock(ctx context.Context, productID int64, quantity int) (int64, error)
	IncrementStock(ctx context.Context, productID int64, quantity int) error
}

// UserStore covers the balance primitives used by checkout. DebitBalance
// is conditional on both the balance and the row version; zero rows means
// the caller must reload the user to tell a conflict from an insufficient
// balance.
type UserStore interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	DebitBalance(ctx context.Context, userID int64, amount decimal.Decimal, version int) (int64, error)
	CreditBalance(ctx context.Context, userID int64, amount decimal.Decimal) error
}

// AccountStore is the persistence surface the user service needs.
// AdjustBalance re-checks the non-negativity guard at write time and
// reports rows affected.
type AccountStore interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, id int64) error
	AdjustBalance(ctx context.Context, userID int64, delta decimal.Decimal) (int64, error)
	CountOrdersByUser(ctx context.Context, userID int64) (int64, error)
	DeleteReviewsByUser(ctx context.Context, userID int64) error
}

// ReviewStore is the persistence surface the review service needs.
type ReviewStore interface {
	CreateReview(ctx context.Context, review *models.Review) error
	GetReviewByID(ctx context.Context, id int64) (*models.Review, error)
	ListReviewsByProduct(ctx context.Context, productID int64) ([]models.Review, error)
	DeleteReview(ctx context.Context, id int64) error
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// EventSink publishes order lifecycle events. Publish failures are logged
// by the services, never surfaced to callers.
type EventSink interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderConfirmed(ctx context.Context, event *models.OrderConfirmedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
}

// ProductCache invalidates cached product reads after a stock or catalog
// mutation.
type ProductCache interface {
	InvalidateProduct(ctx context.Context, productID int64) error
}
