package service

import (
	"context"
	"fmt"
	"strings"

	"storefront/internal/models"
	"storefront/internal/redisclient"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// CatalogService manages products and categories. Reads go through the
// Redis cache with the database as fallback; any mutation invalidates the
// cached product.
type CatalogService struct {
	store  *store.Store
	cache  *redisclient.Client
	logger *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(store *store.Store, cache *redisclient.Client) *CatalogService {
	return &CatalogService{
		store:  store,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// GetProduct retrieves a product, serving from cache when possible
func (cs *CatalogService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.GetProduct")
	defer span.End()

	if cs.cache != nil {
		product, err := cs.cache.GetProduct(ctx, id)
		if err != nil {
			cs.logger.Warn("Product cache read failed, falling back to DB",
				zap.Int64("product_id", id),
				zap.Error(err))
		} else if product != nil {
			util.CacheHitsTotal.Inc()
			return product, nil
		} else {
			util.CacheMissesTotal.Inc()
		}
	}

	product, err := cs.store.GetProductByID(ctx, id)
	if err != nil {
		return nil, err
	}
	cs.cacheProduct(ctx, product)
	return product, nil
}

// ListProducts retrieves all products
func (cs *CatalogService) ListProducts(ctx context.Context) ([]models.Product, error) {
	return cs.store.ListProducts(ctx)
}

// ListProductsByCategory retrieves products in a category
func (cs *CatalogService) ListProductsByCategory(ctx context.Context, categoryID int64) ([]models.Product, error) {
	if _, err := cs.store.GetCategoryByID(ctx, categoryID); err != nil {
		return nil, err
	}
	return cs.store.ListProductsByCategory(ctx, categoryID)
}

// CreateProduct adds a product to the catalog; admin only
func (cs *CatalogService) CreateProduct(ctx context.Context, product *models.Product, role models.Role) error {
	ctx, span := util.StartSpan(ctx, "CatalogService.CreateProduct")
	defer span.End()

	if err := RequireAdmin(role); err != nil {
		return err
	}
	if err := validateProduct(product); err != nil {
		return err
	}
	if _, err := cs.store.GetCategoryByID(ctx, product.CategoryID); err != nil {
		return err
	}

	if err := cs.store.CreateProduct(ctx, product); err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	cs.logger.Info("Product created",
		zap.Int64("product_id", product.ID),
		zap.String("reference", product.Reference))
	return nil
}

// UpdateProduct edits catalog fields of a product; admin only. Stock is
// never written here, only the checkout and cancellation paths touch it.
func (cs *CatalogService) UpdateProduct(ctx context.Context, product *models.Product, role models.Role) error {
	ctx, span := util.StartSpan(ctx, "CatalogService.UpdateProduct")
	defer span.End()

	if err := RequireAdmin(role); err != nil {
		return err
	}
	if err := validateProduct(product); err != nil {
		return err
	}

	if err := cs.store.UpdateProduct(ctx, product); err != nil {
		return err
	}
	cs.invalidateProduct(ctx, product.ID)
	return nil
}

// DeleteProduct removes a product; refused while any order line or review
// still references it. Admin only.
func (cs *CatalogService) DeleteProduct(ctx context.Context, id int64, role models.Role) error {
	ctx, span := util.StartSpan(ctx, "CatalogService.DeleteProduct")
	defer span.End()

	if err := RequireAdmin(role); err != nil {
		return err
	}

	refs, err := cs.store.CountProductReferences(ctx, id)
	if err != nil {
		return err
	}
	if refs > 0 {
		return fmt.Errorf("%w: product %d has %d references", models.ErrProductInUse, id, refs)
	}

	if err := cs.store.DeleteProduct(ctx, id); err != nil {
		return err
	}
	cs.invalidateProduct(ctx, id)
	return nil
}

// GetCategory retrieves a category by ID
func (cs *CatalogService) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	return cs.store.GetCategoryByID(ctx, id)
}

// ListCategories retrieves all categories
func (cs *CatalogService) ListCategories(ctx context.Context) ([]models.Category, error) {
	return cs.store.ListCategories(ctx)
}

// CreateCategory adds a category; admin only
func (cs *CatalogService) CreateCategory(ctx context.Context, category *models.Category, role models.Role) error {
	if err := RequireAdmin(role); err != nil {
		return err
	}
	if strings.TrimSpace(category.Name) == "" {
		return fmt.Errorf("%w: category name is required", models.ErrInvalidArgument)
	}
	return cs.store.CreateCategory(ctx, category)
}

func validateProduct(product *models.Product) error {
	if strings.TrimSpace(product.Name) == "" {
		return fmt.Errorf("%w: product name is required", models.ErrInvalidArgument)
	}
	if strings.TrimSpace(product.Reference) == "" {
		return fmt.Errorf("%w: product reference is required", models.ErrInvalidArgument)
	}
	if product.Price.IsNegative() {
		return fmt.Errorf("%w: product price must not be negative", models.ErrInvalidArgument)
	}
	if product.Stock < 0 {
		return fmt.Errorf("%w: product stock must not be negative", models.ErrInvalidArgument)
	}
	return nil
}

func (cs *CatalogService) cacheProduct(ctx context.Context, product *models.Product) {
	if cs.cache == nil {
		return
	}
	if err := cs.cache.SetProduct(ctx, product); err != nil {
		cs.logger.Warn("Failed to cache product",
			zap.Int64("product_id", product.ID),
			zap.Error(err))
	}
}

func (cs *CatalogService) invalidateProduct(ctx context.Context, productID int64) {
	if cs.cache == nil {
		return
	}
	if err := cs.cache.InvalidateProduct(ctx, productID); err != nil {
		cs.logger.Warn("Failed to invalidate product cache",
			zap.Int64("product_id", productID),
			zap.Error(err))
	}
}
