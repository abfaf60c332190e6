package service

import (
	"context"
	"fmt"

	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// ReviewService manages product reviews
type ReviewService struct {
	store  ReviewStore
	logger *zap.Logger
}

// NewReviewService creates a new review service
func NewReviewService(store ReviewStore) *ReviewService {
	return &ReviewService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// CreateReview records a user's rating of a product. The score must be an
// integer in [1,5]; both the product and the user must exist.
func (rs *ReviewService) CreateReview(ctx context.Context, review *models.Review) error {
	ctx, span := util.StartSpan(ctx, "ReviewService.CreateReview")
	defer span.End()

	if review.Score < models.MinReviewScore || review.Score > models.MaxReviewScore {
		return fmt.Errorf("%w: score must be between %d and %d, got %d",
			models.ErrInvalidArgument, models.MinReviewScore, models.MaxReviewScore, review.Score)
	}
	if _, err := rs.store.GetProductByID(ctx, review.ProductID); err != nil {
		return err
	}
	if _, err := rs.store.GetUserByID(ctx, review.UserID); err != nil {
		return err
	}

	if err := rs.store.CreateReview(ctx, review); err != nil {
		return fmt.Errorf("failed to create review: %w", err)
	}
	rs.logger.Info("Review created",
		zap.Int64("review_id", review.ID),
		zap.Int64("product_id", review.ProductID),
		zap.Int("score", review.Score))
	return nil
}

// ListReviewsForProduct retrieves reviews for a product
func (rs *ReviewService) ListReviewsForProduct(ctx context.Context, productID int64) ([]models.Review, error) {
	if _, err := rs.store.GetProductByID(ctx, productID); err != nil {
		return nil, err
	}
	return rs.store.ListReviewsByProduct(ctx, productID)
}

// DeleteReview removes a review. The author may delete their own review;
// anyone else needs the admin role.
func (rs *ReviewService) DeleteReview(ctx context.Context, reviewID, callerID int64, role models.Role) error {
	review, err := rs.store.GetReviewByID(ctx, reviewID)
	if err != nil {
		return err
	}
	if review.UserID != callerID {
		if err := RequireAdmin(role); err != nil {
			return err
		}
	}
	return rs.store.DeleteReview(ctx, reviewID)
}
