package service

import (
	"context"
	"testing"

	"storefront/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateReviewRejectsOutOfRangeScore(t *testing.T) {
	ctx := context.Background()
	f := newFakeStore()
	f.addProduct(1, "10.00", 5)
	f.addUser(7, "0.00")
	svc := NewReviewService(f)

	for _, score := range []int{0, -1, 6} {
		err := svc.CreateReview(ctx, &models.Review{ProductID: 1, UserID: 7, Score: score})
		assert.ErrorIs(t, err, models.ErrInvalidArgument, "score %d", score)
	}

	reviews, err := svc.ListReviewsForProduct(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, reviews)
}

func TestCreateReviewAcceptsBoundaryScores(t *testing.T) {
	ctx := context.Background()
	f := newFakeStore()
	f.addProduct(1, "10.00", 5)
	f.addUser(7, "0.00")
	svc := NewReviewService(f)

	require.NoError(t, svc.CreateReview(ctx, &models.Review{ProductID: 1, UserID: 7, Score: models.MinReviewScore}))
	require.NoError(t, svc.CreateReview(ctx, &models.Review{ProductID: 1, UserID: 7, Score: models.MaxReviewScore}))

	reviews, err := svc.ListReviewsForProduct(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, reviews, 2)
}

func TestDeleteReviewOwnerOrAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFakeStore()
	f.addProduct(1, "10.00", 5)
	f.addUser(7, "0.00")
	svc := NewReviewService(f)

	review := &models.Review{ProductID: 1, UserID: 7, Score: 3}
	require.NoError(t, svc.CreateReview(ctx, review))

	err := svc.DeleteReview(ctx, review.ID, 8, models.RoleClient)
	assert.ErrorIs(t, err, models.ErrForbidden)

	require.NoError(t, svc.DeleteReview(ctx, review.ID, 7, models.RoleClient))
}
