package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category groups products in the catalog
type Category struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Product represents a product in the catalog
type Product struct {
	ID         int64           `db:"id" json:"id"`
	CategoryID int64           `db:"category_id" json:"category_id"`
	Reference  string          `db:"reference" json:"reference"`
	Name       string          `db:"name" json:"name"`
	Price      decimal.Decimal `db:"price" json:"price"`
	Stock      int             `db:"stock" json:"stock"`
	Version    int             `db:"version" json:"version"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// Role identifies the capability level of an account
type Role string

const (
	RoleClient Role = "CLIENT"
	RoleAdmin  Role = "ADMIN"
)

// User represents a customer or admin account
type User struct {
	ID           int64           `db:"id" json:"id"`
	Name         string          `db:"name" json:"name"`
	Email        string          `db:"email" json:"email"`
	PasswordHash string          `db:"password_hash" json:"-"`
	Role         Role            `db:"role" json:"role"`
	Balance      decimal.Decimal `db:"balance" json:"balance"`
	Version      int             `db:"version" json:"version"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// Order represents a customer order. The order owns its lines: saving an
// order upserts the current lines and deletes any line no longer present,
// and deleting an order deletes all of its lines.
type Order struct {
	ID        int64           `db:"id" json:"id"`
	UserID    int64           `db:"user_id" json:"user_id"`
	Total     decimal.Decimal `db:"total" json:"total"`
	Status    OrderStatus     `db:"status" json:"status"`
	Version   int             `db:"version" json:"version"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`

	Lines []OrderLine `db:"-" json:"lines,omitempty"`
}

// OrderLine is one (product, quantity, price-snapshot) entry within an
// order, identified by the (order, product) pair. UnitPrice is the catalog
// price captured when the line was created or last touched, not the live
// catalog price.
type OrderLine struct {
	OrderID   int64           `db:"order_id" json:"order_id"`
	ProductID int64           `db:"product_id" json:"product_id"`
	Quantity  int             `db:"quantity" json:"quantity"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`

	// Product is populated when the order is loaded with its lines
	Product *Product `db:"-" json:"product,omitempty"`
}

// Subtotal returns quantity × unit price for the line
func (l *OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Line returns the line for the given product, or nil
func (o *Order) Line(productID int64) *OrderLine {
	for i := range o.Lines {
		if o.Lines[i].ProductID == productID {
			return &o.Lines[i]
		}
	}
	return nil
}

// AddLine merges quantity into the existing line for the product, or
// appends a new line. The price snapshot is refreshed either way. Returns
// the affected line; the caller must recompute the total afterward.
func (o *Order) AddLine(productID int64, quantity int, unitPrice decimal.Decimal) *OrderLine {
	if line := o.Line(productID); line != nil {
		line.Quantity += quantity
		line.UnitPrice = unitPrice
		return line
	}
	o.Lines = append(o.Lines, OrderLine{
		OrderID:   o.ID,
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: unitPrice,
	})
	return &o.Lines[len(o.Lines)-1]
}

// RemoveLine detaches the line for the product from the order; the line is
// deleted from storage on the next save. Returns false if no such line.
func (o *Order) RemoveLine(productID int64) bool {
	for i := range o.Lines {
		if o.Lines[i].ProductID == productID {
			o.Lines = append(o.Lines[:i], o.Lines[i+1:]...)
			return true
		}
	}
	return false
}

// RecalculateTotal sets Total to the sum of line subtotals, zero when the
// order has no lines. The stored total is derived, never authoritative, so
// this must run after every line mutation. Safe to call redundantly.
func (o *Order) RecalculateTotal() {
	total := decimal.Zero
	for i := range o.Lines {
		total = total.Add(o.Lines[i].Subtotal())
	}
	o.Total = total
}

// Review is a user's rating of a product
type Review struct {
	ID        int64     `db:"id" json:"id"`
	ProductID int64     `db:"product_id" json:"product_id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Score     int       `db:"score" json:"score"`
	Comment   string    `db:"comment" json:"comment"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Review scores are integers in [MinReviewScore, MaxReviewScore]
const (
	MinReviewScore = 1
	MaxReviewScore = 5
)

// ProcessedEvent for consumer idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
