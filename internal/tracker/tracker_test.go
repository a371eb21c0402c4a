package tracker_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seatnext/internal/changefeed"
	"seatnext/internal/feedback"
	"seatnext/internal/notifications"
	"seatnext/internal/queue"
	"seatnext/internal/queue/queuetest"
	"seatnext/internal/tracker"
	"seatnext/pkg/cache"
	"seatnext/pkg/clock"
	"seatnext/pkg/logger"
)

var start = time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)

type fixture struct {
	clock   *clock.Fake
	hub     *changefeed.LocalHub
	service queue.Service
	venueID uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		clock:   clock.NewFake(start),
		hub:     changefeed.NewLocalHub(),
		venueID: uuid.New(),
	}
	repo := queuetest.New(f.hub, f.clock)
	f.service = queue.NewService(repo, notifications.Nop{}, feedback.NoopTrigger{}, f.clock, nil, logger.Discard())
	return f
}

func (f *fixture) join(t *testing.T) *queue.QueueEntry {
	t.Helper()
	entry, err := f.service.Join(context.Background(), f.venueID, nil, &queue.JoinQueueRequest{PartySize: 2})
	require.NoError(t, err)
	return entry
}

func receive(t *testing.T, views <-chan tracker.View) tracker.View {
	t.Helper()
	select {
	case v, ok := <-views:
		require.True(t, ok, "view stream closed early")
		return v
	case <-time.After(time.Second):
		t.Fatal("no view received")
		return tracker.View{}
	}
}

func TestDerive(t *testing.T) {
	venueID := uuid.New()
	mk := func(pos int, status queue.Status) queue.QueueEntry {
		return queue.QueueEntry{ID: uuid.New(), VenueID: venueID, Position: pos, Status: status, PartySize: 2}
	}
	self := mk(4, queue.StatusWaiting)
	waiting := []queue.QueueEntry{
		mk(3, queue.StatusWaiting),
		self,
		mk(1, queue.StatusWaiting),
		mk(6, queue.StatusWaiting),
		mk(2, queue.StatusReady),
	}

	v := tracker.Derive(self, waiting, start)
	require.NotNil(t, v.Position)
	assert.Equal(t, 4, *v.Position)
	require.Len(t, v.Ahead, 2)
	assert.Equal(t, waiting[2].ID, v.Ahead[0].ID)
	assert.Equal(t, waiting[0].ID, v.Ahead[1].ID)
	assert.False(t, v.Done())
}

func TestDerive_NotWaiting(t *testing.T) {
	self := queue.QueueEntry{ID: uuid.New(), Position: 5, Status: queue.StatusReady}
	other := queue.QueueEntry{ID: uuid.New(), Position: 1, Status: queue.StatusWaiting}

	v := tracker.Derive(self, []queue.QueueEntry{other}, start)
	assert.Nil(t, v.Position)
	assert.Empty(t, v.Ahead)
	assert.NotNil(t, v.Ahead)

	self.Status = queue.StatusNoShow
	v = tracker.Derive(self, nil, start)
	assert.Equal(t, queue.StatusCancelled, v.Entry.Status)
	assert.True(t, v.Done())
}

func TestWatch_FollowsVenueChanges(t *testing.T) {
	f := newFixture()
	first := f.join(t)
	f.join(t)
	third := f.join(t)

	tr := tracker.New(f.service, nil, f.hub, f.clock, logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	views, err := tr.Watch(ctx, third.ID)
	require.NoError(t, err)

	v := receive(t, views)
	require.NotNil(t, v.Position)
	assert.Equal(t, 3, *v.Position)
	assert.Len(t, v.Ahead, 2)

	_, err = f.service.MarkReady(ctx, first.ID, nil)
	require.NoError(t, err)
	v = receive(t, views)
	assert.Len(t, v.Ahead, 1)

	_, err = f.service.Cancel(ctx, third.ID, "", queue.ActorPatron)
	require.NoError(t, err)
	v = receive(t, views)
	assert.True(t, v.Done())

	select {
	case _, ok := <-views:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("stream not closed after resolution")
	}
	require.Eventually(t, func() bool { return f.hub.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestWatch_ClosesOnContextCancel(t *testing.T) {
	f := newFixture()
	entry := f.join(t)

	tr := tracker.New(f.service, nil, f.hub, f.clock, logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())

	views, err := tr.Watch(ctx, entry.ID)
	require.NoError(t, err)
	receive(t, views)

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-views:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return f.hub.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestWatch_UnknownEntry(t *testing.T) {
	f := newFixture()
	tr := tracker.New(f.service, nil, f.hub, f.clock, logger.Discard())

	_, err := tr.Watch(context.Background(), uuid.New())
	assert.Error(t, err)
	assert.Equal(t, 0, f.hub.Subscribers())
}

func TestView_ReadsWaitingListThroughCache(t *testing.T) {
	f := newFixture()
	f.join(t)
	self := f.join(t)

	db, mock := redismock.NewClientMock()
	tr := tracker.New(f.service, cache.NewService(db, logger.Discard()), f.hub, f.clock, logger.Discard())
	ctx := context.Background()

	waiting, err := f.service.ListWaiting(ctx, f.venueID)
	require.NoError(t, err)
	payload, err := json.Marshal(waiting)
	require.NoError(t, err)

	key := tracker.WaitingKey(f.venueID)
	mock.ExpectGet(key).RedisNil()
	mock.ExpectSet(key, payload, 30*time.Second).SetVal("OK")
	// a cached list containing only self means nobody is ahead
	cached, err := json.Marshal([]queue.QueueEntry{*self})
	require.NoError(t, err)
	mock.ExpectGet(key).SetVal(string(cached))
	mock.ExpectDel(key).SetVal(1)

	v, err := tr.View(ctx, self.ID)
	require.NoError(t, err)
	assert.Len(t, v.Ahead, 1)

	v, err = tr.View(ctx, self.ID)
	require.NoError(t, err)
	assert.Empty(t, v.Ahead)

	tr.Invalidate(ctx, f.venueID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestController_Position(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newFixture()
	entry := f.join(t)

	tr := tracker.New(f.service, nil, f.hub, f.clock, logger.Discard())
	router := gin.New()
	tracker.SetupTrackerRoutes(router.Group("/api/v1"), tracker.NewController(tr), func(c *gin.Context) { c.Next() })

	tests := []struct {
		name string
		path string
		code int
	}{
		{"known entry", "/api/v1/queue/" + entry.ID.String() + "/position", http.StatusOK},
		{"unknown entry", "/api/v1/queue/" + uuid.NewString() + "/position", http.StatusNotFound},
		{"bad id", "/api/v1/queue/nope/position", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.code, w.Code)
		})
	}
}
