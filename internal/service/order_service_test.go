package service

import (
	"context"
	"testing"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddLineMergesSameProduct(t *testing.T) {
	ctx := context.Background()
	f := newFakeStore()
	f.addProduct(1, "4.25", 50)
	f.addUser(7, "0.00")
	svc := newTestOrderService(f, nil)

	order, err := svc.CreateOrder(ctx, 7)
	require.NoError(t, err)

	_, err = svc.AddLine(ctx, order.ID, 1, 2)
	require.NoError(t, err)
	updated, err := svc.AddLine(ctx, order.ID, 1, 3)
	require.NoError(t, err)

	require.Len(t, updated.Lines, 1)
	assert.Equal(t, 5, updated.Lines[0].Quantity)
	assert.True(t, updated.Total.Equal(decimal.RequireFromString("21.25")),
		"total = %s", updated.Total)
}

func TestAddLineRejectsNonPositiveQuantity(t *testing.T) {
	ctx := context.Background()
	f := newFakeStore()
	f.addProduct(1, "4.25", 50)
	f.addUser(7, "0.00")
	svc := newTestOrderService(f, nil)

	order, err := svc.CreateOrder(ctx, 7)
	require.NoError(t, err)

	_, err = svc.AddLine(ctx, order.ID, 1, 0)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	_, err = svc.AddLine(ctx, order.ID, 1, -3)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestSetLineQuantityZeroRemovesLine(t *testing.T) {
	ctx := context.Background()
	f := newFakeStore()
	f.addProduct(1, "4.25", 50)
	f.addProduct(2, "10.00", 50)
	f.addUser(7, "0.00")
	svc := newTestOrderService(f, nil)

	order, err := svc.CreateOrder(ctx, 7)
	require.NoError(t, err)
	_, err = svc.AddLine(ctx, order.ID, 1, 2)
	require.NoError(t, err)
	_, err = svc.AddLine(ctx, order.ID, 2, 1)
	require.NoError(t, err)

	updated, err := svc.SetLineQuantity(ctx, order.ID, 1, 0)
	require.NoError(t, err)

	require.Len(t, updated.Lines, 1)
	assert.Equal(t, int64(2), updated.Lines[0].ProductID)
	assert.True(t, updated.Total.Equal(decimal.RequireFromString("10.00")))

	_, err = svc.SetLineQuantity(ctx, order.ID, 2, -1)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestRemoveLastLineZeroesTotal(t *testing.T) {
	ctx := context.Background()
	f := newFakeStore()
	f.addProduct(1, "4.25", 50)
	f.addUser(7, "0.00")
	svc := newTestOrderService(f, nil)

	order, err := svc.CreateOrder(ctx, 7)
	require.NoError(t, err)
	_, err = svc.AddLine(ctx, order.ID, 1, 2)
	require.NoError(t, err)

	updated, err := svc.RemoveLine(ctx, order.ID, 1)
	require.NoError(t, err)

	assert.Empty(t, updated.Lines)
	assert.True(t, updated.Total.IsZero())
}

func TestLinesFrozenAfterCheckout(t *testing.T) {
	ctx := context.Background()
	f := newFakeStore()
	f.addProduct(1, "4.25", 50)
	f.addUser(7, "100.00")
	svc := newTestOrderService(f, nil)

	order, err := svc.CreateOrder(ctx, 7)
	require.NoError(t, err)
	_, err = svc.AddLine(ctx, order.ID, 1, 2)
	require.NoError(t, err)
	_, err = svc.Checkout(ctx, order.ID)
	require.NoError(t, err)

	_, err = svc.AddLine(ctx, order.ID, 1, 1)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestCancelPendingRepositionsStock(t *testing.T) {
	ctx := context.Background()
	f := newFakeStore()
	f.addProduct(1, "10.00", 5)
	f.addProduct(2, "20.00", 5)
	f.addProduct(3, "30.00", 9)
	f.addUser(7, "100.00")
	events := &fakeEventSink{}
	svc := newTestOrderService(f, events)

	order, err := svc.CreateOrder(ctx, 7)
	require.NoError(t, err)
	_, err = svc.AddLine(ctx, order.ID, 1, 2)
	require.NoError(t, err)
	_, err = svc.AddLine(ctx, order.ID, 2, 1)
	require.NoError(t, err)
	_, err = svc.Checkout(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, 3, f.productStock(1))
	require.Equal(t, 4, f.productStock(2))

	cancelled, err := svc.ChangeStatus(ctx, order.ID, models.OrderStatusCancelled, 7, models.RoleClient)
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 5, f.productStock(1))
	assert.Equal(t, 5, f.productStock(2))
	// untouched product keeps its stock
	assert.Equal(t, 9, f.productStock(3))

	require.Len(t, events.cancelled, 1)
	assert.Len(t, events.cancelled[0].Repositioned, 2)
}

func TestCancelCreatedDoesNotTouchStock(t *testing.T) {
	ctx := context.Background()
	f := newFakeStore()
	f.addProduct(1, "10.00", 5)
	f.addUser(7, "100.00")
	svc := newTestOrderService(f, nil)

	order, err := svc.CreateOrder(ctx, 7)
	require.NoError(t, err)
	_, err = svc.AddLine(ctx, order.ID, 1, 2)
	require.NoError(t, err)

	cancelled, err := svc.ChangeStatus(ctx, order.ID, models.OrderStatusCancelled, 7, models.RoleClient)
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 5, f.productStock(1))
}

func TestCancelByNonOwnerRequiresAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFakeStore()
	f.addProduct(1, "10.00", 5)
	f.addUser(7, "100.00")
	f.addUser(8, "100.00")
	svc := newTestOrderService(f, nil)

	order, err := svc.CreateOrder(ctx, 7)
	require.NoError(t, err)
	_, err = svc.AddLine(ctx, order.ID, 1, 2)
	require.NoError(t, err)
	_, err = svc.Checkout(ctx, order.ID)
	require.NoError(t, err)

	_, err = svc.ChangeStatus(ctx, order.ID, models.OrderStatusCancelled, 8, models.RoleClient)
	assert.ErrorIs(t, err, models.ErrForbidden)
	assert.Equal(t, models.OrderStatusPending, f.orderStatus(order.ID))
	assert.Equal(t, 3, f.productStock(1))

	// back office may cancel any order
	cancelled, err := svc.ChangeStatus(ctx, order.ID, models.OrderStatusCancelled, 8, models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 5, f.productStock(1))
}

func TestDeleteOrderRefusedWhilePending(t *testing.T) {
	ctx := context.Background()
	f := newFakeStore()
	f.addProduct(1, "10.00", 5)
	f.addUser(7, "100.00")
	svc := newTestOrderService(f, nil)

	order, err := svc.CreateOrder(ctx, 7)
	require.NoError(t, err)
	_, err = svc.AddLine(ctx, order.ID, 1, 2)
	require.NoError(t, err)
	_, err = svc.Checkout(ctx, order.ID)
	require.NoError(t, err)

	err = svc.DeleteOrder(ctx, order.ID)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	assert.Equal(t, models.OrderStatusPending, f.orderStatus(order.ID))

	// cancelling releases the reservation, then deletion goes through
	_, err = svc.ChangeStatus(ctx, order.ID, models.OrderStatusCancelled, 7, models.RoleClient)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteOrder(ctx, order.ID))
	_, err = svc.GetOrder(ctx, order.ID)
	assert.ErrorIs(t, err, models.ErrOrderNotFound)
}

func TestChangeStatusRejectsIllegalTransition(t *testing.T) {
	ctx := context.Background()
	f := newFakeStore()
	f.addUser(7, "0.00")
	svc := newTestOrderService(f, nil)

	order, err := svc.CreateOrder(ctx, 7)
	require.NoError(t, err)

	_, err = svc.ChangeStatus(ctx, order.ID, models.OrderStatusDelivered, 0, models.RoleAdmin)

	var transitionErr *models.InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, models.OrderStatusCreated, transitionErr.From)
	assert.Equal(t, models.OrderStatusDelivered, transitionErr.To)
	assert.Equal(t, models.OrderStatusCreated, f.orderStatus(order.ID))
}

func TestChangeStatusSelfTransitionIsNoOp(t *testing.T) {
	ctx := context.Background()
	f := newFakeStore()
	f.addUser(7, "0.00")
	svc := newTestOrderService(f, nil)

	order, err := svc.CreateOrder(ctx, 7)
	require.NoError(t, err)

	same, err := svc.ChangeStatus(ctx, order.ID, models.OrderStatusCreated, 0, models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCreated, same.Status)
}

func TestChangeStatusRequiresAdminExceptCancel(t *testing.T) {
	ctx := context.Background()
	f := newFakeStore()
	f.addUser(7, "100.00")
	svc := newTestOrderService(f, nil)

	order, err := svc.CreateOrder(ctx, 7)
	require.NoError(t, err)
	_, err = svc.Checkout(ctx, order.ID)
	require.NoError(t, err)

	_, err = svc.ChangeStatus(ctx, order.ID, models.OrderStatusPaid, 7, models.RoleClient)
	assert.ErrorIs(t, err, models.ErrForbidden)
	assert.Equal(t, models.OrderStatusPending, f.orderStatus(order.ID))

	_, err = svc.ChangeStatus(ctx, order.ID, models.OrderStatusPaid, 0, models.RoleAdmin)
	assert.NoError(t, err)
}

func TestChangeStatusRejectsUnknownStatus(t *testing.T) {
	ctx := context.Background()
	f := newFakeStore()
	f.addUser(7, "0.00")
	svc := newTestOrderService(f, nil)

	order, err := svc.CreateOrder(ctx, 7)
	require.NoError(t, err)

	_, err = svc.ChangeStatus(ctx, order.ID, "SOMEWHERE", 0, models.RoleAdmin)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestListAllOrdersRequiresAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFakeStore()
	svc := newTestOrderService(f, nil)

	_, err := svc.ListAllOrders(ctx, models.RoleClient)
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = svc.ListAllOrders(ctx, models.RoleAdmin)
	assert.NoError(t, err)
}

func TestCreateOrderUnknownUser(t *testing.T) {
	f := newFakeStore()
	svc := newTestOrderService(f, nil)

	_, err := svc.CreateOrder(context.Background(), 42)
	assert.ErrorIs(t, err, models.ErrUserNotFound)
}
