package orders_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seatnext/internal/changefeed"
	"seatnext/internal/orders"
	"seatnext/internal/orders/orderstest"
	"seatnext/internal/shared/apperr"
	"seatnext/pkg/clock"
	"seatnext/pkg/logger"
)

var start = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to orders.Status
		ok       bool
	}{
		{orders.StatusAwaitingVerification, orders.StatusPlaced, true},
		{orders.StatusPlaced, orders.StatusInPrep, true},
		{orders.StatusInPrep, orders.StatusReady, true},
		{orders.StatusReady, orders.StatusCollected, true},
		{orders.StatusReady, orders.StatusNoShow, true},
		{orders.StatusInPrep, orders.StatusRejected, false},
		{orders.StatusCollected, orders.StatusCancelled, false},
		{orders.StatusCancelled, orders.StatusPlaced, false},
		{orders.StatusPlaced, orders.StatusCollected, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, orders.CanTransition(tt.from, tt.to))
		})
	}
}

func TestTransition_ClearsETAOnRejectAndCancel(t *testing.T) {
	eta := start.Add(10 * time.Minute)
	for _, to := range []orders.Status{orders.StatusRejected, orders.StatusCancelled} {
		o := orders.Order{Status: orders.StatusPlaced, ETA: &eta}
		guard, patch, err := orders.Transition(o, to)
		require.NoError(t, err)
		assert.True(t, guard.Matches(o))

		after := patch.Apply(o)
		assert.Equal(t, to, after.Status)
		assert.Nil(t, after.ETA)
		assert.Nil(t, patch.Columns(start)["eta"])
		assert.Contains(t, patch.Columns(start), "eta")
	}

	o := orders.Order{Status: orders.StatusInPrep, ETA: &eta}
	_, patch, err := orders.Transition(o, orders.StatusReady)
	require.NoError(t, err)
	assert.NotNil(t, patch.Apply(o).ETA)
}

func TestTransition_Invalid(t *testing.T) {
	_, _, err := orders.Transition(orders.Order{Status: orders.StatusCollected}, orders.StatusPlaced)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, _, err = orders.Transition(orders.Order{Status: orders.StatusPlaced}, "burnt")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestExtend_KeepsOriginalETA(t *testing.T) {
	eta := start.Add(10 * time.Minute)
	o := orders.Order{Status: orders.StatusInPrep, ETA: &eta}

	guard, patch, err := orders.Extend(o, 5*time.Minute, start)
	require.NoError(t, err)
	assert.True(t, guard.Matches(o))

	once := patch.Apply(o)
	assert.Equal(t, start.Add(15*time.Minute), *once.ETA)
	assert.Equal(t, eta, *once.OriginalETA)
	assert.False(t, guard.Matches(once))

	_, patch, err = orders.Extend(once, 5*time.Minute, start)
	require.NoError(t, err)
	twice := patch.Apply(once)
	assert.Equal(t, start.Add(20*time.Minute), *twice.ETA)
	assert.Equal(t, eta, *twice.OriginalETA)
}

func TestExtend_Rejections(t *testing.T) {
	_, _, err := orders.Extend(orders.Order{Status: orders.StatusReady}, time.Minute, start)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, _, err = orders.Extend(orders.Order{Status: orders.StatusPlaced}, 0, start)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func newService() (orders.Service, *orderstest.Repository, *clock.Fake) {
	clk := clock.NewFake(start)
	repo := orderstest.New(nil, clk)
	return orders.NewService(repo, clk, logger.Discard()), repo, clk
}

func TestService_PlaceAndLifecycle(t *testing.T) {
	svc, repo, _ := newService()
	ctx := context.Background()
	venueID := uuid.New()

	order, err := svc.Place(ctx, venueID, &orders.PlaceOrderRequest{OrderNumber: " A12 ", PrepMinutes: 12})
	require.NoError(t, err)
	assert.Equal(t, "A12", order.OrderNumber)
	assert.Equal(t, orders.StatusPlaced, order.Status)
	assert.Equal(t, orders.ConfidenceMedium, order.Confidence)
	assert.Equal(t, start.Add(12*time.Minute), *order.ETA)

	for _, to := range []orders.Status{orders.StatusInPrep, orders.StatusReady, orders.StatusCollected} {
		order, err = svc.UpdateStatus(ctx, order.ID, to)
		require.NoError(t, err)
		assert.Equal(t, to, order.Status)
	}

	_, err = svc.UpdateStatus(ctx, order.ID, orders.StatusCancelled)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	stored, _ := repo.Order(order.ID)
	assert.Equal(t, orders.StatusCollected, stored.Status)
}

func TestService_Verification(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()

	order, err := svc.Place(ctx, uuid.New(), &orders.PlaceOrderRequest{OrderNumber: "B7", RequiresVerification: true})
	require.NoError(t, err)
	assert.Equal(t, orders.StatusAwaitingVerification, order.Status)
	assert.True(t, order.AwaitingMerchantConfirmation)

	order, err = svc.UpdateStatus(ctx, order.ID, orders.StatusPlaced)
	require.NoError(t, err)
	assert.False(t, order.AwaitingMerchantConfirmation)
}

func TestService_RejectClearsETA(t *testing.T) {
	svc, repo, _ := newService()
	ctx := context.Background()
	eta := start.Add(5 * time.Minute)

	order, err := svc.Place(ctx, uuid.New(), &orders.PlaceOrderRequest{OrderNumber: "C1", ETA: &eta})
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, order.ID, orders.StatusRejected)
	require.NoError(t, err)

	stored, _ := repo.Order(order.ID)
	assert.Nil(t, stored.ETA)
}

func TestService_ExtendETA(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()

	order, err := svc.Place(ctx, uuid.New(), &orders.PlaceOrderRequest{OrderNumber: "D4", PrepMinutes: 10})
	require.NoError(t, err)

	order, err = svc.ExtendETA(ctx, order.ID, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, start.Add(15*time.Minute), *order.ETA)
	assert.Equal(t, start.Add(10*time.Minute), *order.OriginalETA)
}

func TestService_Errors(t *testing.T) {
	svc, repo, _ := newService()
	ctx := context.Background()

	_, err := svc.Place(ctx, uuid.New(), &orders.PlaceOrderRequest{OrderNumber: "  "})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.Place(ctx, uuid.New(), &orders.PlaceOrderRequest{OrderNumber: "E1", Confidence: "certain"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.UpdateStatus(ctx, uuid.New(), orders.StatusInPrep)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	repo.FailWith(errors.New("db down"))
	_, err = svc.Place(ctx, uuid.New(), &orders.PlaceOrderRequest{OrderNumber: "E2"})
	assert.True(t, apperr.Is(err, apperr.KindExternal))
}

func TestMerge(t *testing.T) {
	eta := start.Add(time.Minute)
	local := orders.Order{ID: uuid.New(), VenueID: uuid.New(), Status: orders.StatusInPrep, ETA: &eta}

	stored := local
	stored.Status = orders.StatusCancelled
	stored.ETA = nil
	ev, err := changefeed.NewEvent(changefeed.EventUpdate, changefeed.TableOrders, local.VenueID, local.ID, local, stored, start)
	require.NoError(t, err)

	merged, err := orders.Merge(&local, ev)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, merged.Status)
	assert.Nil(t, merged.ETA)

	del, err := changefeed.NewEvent(changefeed.EventDelete, changefeed.TableOrders, local.VenueID, local.ID, local, nil, start)
	require.NoError(t, err)
	merged, err = orders.Merge(&local, del)
	require.NoError(t, err)
	assert.Nil(t, merged)
}
