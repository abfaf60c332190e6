package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", models.ErrProductNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductByReference retrieves a product by its unique reference code
func (s *Store) GetProductByReference(ctx context.Context, reference string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE reference = $1", reference)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", models.ErrProductNotFound, reference)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ListProducts retrieves all products
func (s *Store) ListProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products, "SELECT * FROM products ORDER BY id")
	return products, err
}

// ListProductsByCategory retrieves products in a category
func (s *Store) ListProductsByCategory(ctx context.Context, categoryID int64) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products,
		"SELECT * FROM products WHERE category_id = $1 ORDER BY id", categoryID)
	return products, err
}

// GetProductsByIDs retrieves multiple products by IDs
func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM products WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var products []models.Product
	err = s.db.SelectContext(ctx, &products, query, args...)
	return products, err
}

// CreateProduct inserts a new product
func (s *Store) CreateProduct(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO products (category_id, reference, name, price, stock)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, version, created_at`

	return s.db.GetContext(ctx, product, query,
		product.CategoryID, product.Reference, product.Name, product.Price, product.Stock)
}

// UpdateProduct updates catalog fields of a product. Stock is excluded:
// only DecrementStock and IncrementStock mutate it.
func (s *Store) UpdateProduct(ctx context.Context, product *models.Product) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE products SET category_id = $1, reference = $2, name = $3, price = $4, version = version + 1 WHERE id = $5",
		product.CategoryID, product.Reference, product.Name, product.Price, product.ID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: %d", models.ErrProductNotFound, product.ID)
	}
	product.Version++
	return nil
}

// DeleteProduct removes a product row
func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: %d", models.ErrProductNotFound, id)
	}
	return nil
}

// CountProductReferences counts order lines and reviews that reference the
// product; deletion is only allowed at zero.
func (s *Store) CountProductReferences(ctx context.Context, productID int64) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count, `
		SELECT (SELECT COUNT(*) FROM order_lines WHERE product_id = $1)
		     + (SELECT COUNT(*) FROM reviews WHERE product_id = $1)`, productID)
	return count, err
}

// DecrementStock decrements a product's stock by quantity only if enough
// stock is available at write time. Returns the affected-row count: zero
// means the guard failed and stock was left unchanged.
func (s *Store) DecrementStock(ctx context.Context, productID int64, quantity int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE products SET stock = stock - $1, version = version + 1 WHERE id = $2 AND stock >= $1",
		quantity, productID)
	if err != nil {
		return 0, fmt.Errorf("failed to decrement stock: %w", err)
	}
	return res.RowsAffected()
}

// IncrementStock unconditionally gives stock back to a product; used by
// the cancellation reposition path.
func (s *Store) IncrementStock(ctx context.Context, productID int64, quantity int) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE products SET stock = stock + $1, version = version + 1 WHERE id = $2",
		quantity, productID)
	return err
}

// GetCategoryByID retrieves a category by ID
func (s *Store) GetCategoryByID(ctx context.Context, id int64) (*models.Category, error) {
	var category models.Category
	err := s.db.GetContext(ctx, &category, "SELECT * FROM categories WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", models.ErrCategoryNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &category, nil
}

// ListCategories retrieves all categories
func (s *Store) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	err := s.db.SelectContext(ctx, &categories, "SELECT * FROM categories ORDER BY id")
	return categories, err
}

// CreateCategory inserts a new category
func (s *Store) CreateCategory(ctx context.Context, category *models.Category) error {
	return s.db.GetContext(ctx, &category.ID,
		"INSERT INTO categories (name) VALUES ($1) RETURNING id", category.Name)
}

// GetUserByID retrieves a user by ID
func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", models.ErrUserNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE email = $1", email)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", models.ErrUserNotFound, email)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser inserts a new user
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (name, email, password_hash, role, balance)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, version, created_at`

	return s.db.GetContext(ctx, user, query,
		user.Name, user.Email, user.PasswordHash, user.Role, user.Balance)
}

// DeleteUser removes a user row
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: %d", models.ErrUserNotFound, id)
	}
	return nil
}

// CountOrdersByUser counts orders owned by the user
func (s *Store) CountOrdersByUser(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM orders WHERE user_id = $1", userID)
	return count, err
}

// DebitBalance debits amount from the user's balance only if the balance
// covers it and the row version still matches. Returns the affected-row
// count: zero means either an optimistic-lock conflict or an insufficient
// balance; the caller reloads the user to tell them apart.
func (s *Store) DebitBalance(ctx context.Context, userID int64, amount decimal.Decimal, version int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET balance = balance - $1, version = version + 1 WHERE id = $2 AND version = $3 AND balance >= $1",
		amount, userID, version)
	if err != nil {
		return 0, fmt.Errorf("failed to debit balance: %w", err)
	}
	return res.RowsAffected()
}

// CreditBalance unconditionally adds amount back to the user's balance;
// used to compensate a debit when a checkout attempt fails mid-commit.
func (s *Store) CreditBalance(ctx context.Context, userID int64, amount decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE users SET balance = balance + $1, version = version + 1 WHERE id = $2",
		amount, userID)
	return err
}

// AdjustBalance adds a signed delta to the user's balance only if the
// result stays non-negative. Returns the affected-row count.
func (s *Store) AdjustBalance(ctx context.Context, userID int64, delta decimal.Decimal) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET balance = balance + $1, version = version + 1 WHERE id = $2 AND balance + $1 >= 0",
		delta, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to adjust balance: %w", err)
	}
	return res.RowsAffected()
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
