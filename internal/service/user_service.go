package service

import (
	"context"
	"fmt"
	"strings"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// UserService manages accounts and their balances
type UserService struct {
	store  AccountStore
	logger *zap.Logger
}

// NewUserService creates a new user service
func NewUserService(store AccountStore) *UserService {
	return &UserService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// GetUser retrieves a user by ID
func (us *UserService) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return us.store.GetUserByID(ctx, id)
}

// GetUserByEmail retrieves a user by email
func (us *UserService) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return us.store.GetUserByEmail(ctx, email)
}

// CreateUser registers a new account. New accounts default to the CLIENT
// role and a zero balance.
func (us *UserService) CreateUser(ctx context.Context, user *models.User) error {
	ctx, span := util.StartSpan(ctx, "UserService.CreateUser")
	defer span.End()

	if strings.TrimSpace(user.Name) == "" {
		return fmt.Errorf("%w: user name is required", models.ErrInvalidArgument)
	}
	if strings.TrimSpace(user.Email) == "" {
		return fmt.Errorf("%w: user email is required", models.ErrInvalidArgument)
	}
	if user.Balance.IsNegative() {
		return fmt.Errorf("%w: balance must not be negative", models.ErrInvalidArgument)
	}
	if user.Role == "" {
		user.Role = models.RoleClient
	}

	if err := us.store.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	us.logger.Info("User created",
		zap.Int64("user_id", user.ID),
		zap.String("role", string(user.Role)))
	return nil
}

// AdjustBalance adds a signed delta to a user's balance. A zero delta is
// rejected, as is any adjustment that would leave the balance negative;
// nothing is written in either case. Adjusting another user's balance is
// a back-office operation gated on the admin role.
func (us *UserService) AdjustBalance(ctx context.Context, userID int64, delta decimal.Decimal, role models.Role) (*models.User, error) {
	ctx, span := util.StartSpan(ctx, "UserService.AdjustBalance")
	defer span.End()

	if err := RequireAdmin(role); err != nil {
		return nil, err
	}
	if delta.IsZero() {
		return nil, fmt.Errorf("%w: balance delta must not be zero", models.ErrInvalidArgument)
	}

	user, err := us.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Balance.Add(delta).IsNegative() {
		return nil, fmt.Errorf("%w: adjustment of %s would leave balance %s negative",
			models.ErrInvalidArgument, delta.StringFixed(2), user.Balance.StringFixed(2))
	}

	rows, err := us.store.AdjustBalance(ctx, userID, delta)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		// the write-time guard caught a concurrent debit
		return nil, fmt.Errorf("%w: adjustment of %s rejected for user %d",
			models.ErrInvalidArgument, delta.StringFixed(2), userID)
	}

	us.logger.Info("Balance adjusted",
		zap.Int64("user_id", userID),
		zap.String("delta", delta.StringFixed(2)))
	return us.store.GetUserByID(ctx, userID)
}

// DeleteUser removes an account. Deletion is refused while the user still
// owns orders; the user's reviews are deleted with the account.
func (us *UserService) DeleteUser(ctx context.Context, userID int64, role models.Role) error {
	ctx, span := util.StartSpan(ctx, "UserService.DeleteUser")
	defer span.End()

	if err := RequireAdmin(role); err != nil {
		return err
	}

	count, err := us.store.CountOrdersByUser(ctx, userID)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: user %d has %d orders", models.ErrUserHasOrders, userID, count)
	}

	if err := us.store.DeleteReviewsByUser(ctx, userID); err != nil {
		return err
	}
	if err := us.store.DeleteUser(ctx, userID); err != nil {
		return err
	}
	us.logger.Info("User deleted", zap.Int64("user_id", userID))
	return nil
}
