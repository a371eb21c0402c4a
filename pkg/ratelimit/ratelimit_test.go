package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seatnext/pkg/clock"
)

var now = time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)

func testConfig() *Config {
	return &Config{
		Enabled:         true,
		WindowDuration:  time.Minute,
		DefaultRequests: 60,
		PublicRequests:  100,
		PatronRequests:  2,
		StaffRequests:   300,
		AdminRequests:   200,
		HealthRequests:  1000,
		WhitelistedIPs:  []string{"10.0.0.1"},
	}
}

func expectWindow(mock redismock.ClientMock, key string, limit int, count, remaining int64) {
	mock.ExpectEval(slidingWindowScript, []string{key},
		now.Add(-time.Minute).UnixMilli(),
		now.UnixMilli(),
		limit,
		60,
	).SetVal([]interface{}{count, remaining})
}

func TestGetRateLimitType(t *testing.T) {
	tests := []struct {
		path string
		want RateLimitType
	}{
		{"/health", RateLimitTypeHealth},
		{"/metrics", RateLimitTypeHealth},
		{"/api/v1/admin/queue/sweep", RateLimitTypeAdmin},
		{"/api/v1/venues/:venue_id/orders", RateLimitTypeStaff},
		{"/api/v1/queue/:id/ready", RateLimitTypeStaff},
		{"/api/v1/queue/:id/arrive", RateLimitTypePatron},
		{"/api/v1/proposals/:id/confirm", RateLimitTypePatron},
		{"/api/v1/queue/:id/position/stream", RateLimitTypePublic},
		{"/swagger/index.html", RateLimitTypePublic},
		{"/api/v1/venues/:venue_id/queue/waiting", RateLimitTypePublic},
		{"/api/v1/queue/:id", RateLimitTypeDefault},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, getRateLimitType(tt.path))
		})
	}
}

func TestIsAllowed(t *testing.T) {
	db, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(db, testConfig(), clock.NewFake(now))
	key := Key("192.0.2.1", RateLimitTypePatron)

	expectWindow(mock, key, 2, 1, 1)
	expectWindow(mock, key, 2, 3, 0)

	res, err := limiter.IsAllowed(context.Background(), "192.0.2.1", RateLimitTypePatron)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)
	assert.Equal(t, now.Add(time.Minute).Unix(), res.ResetTime)

	res, err = limiter.IsAllowed(context.Background(), "192.0.2.1", RateLimitTypePatron)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsAllowed_SkipsRedis(t *testing.T) {
	db, mock := redismock.NewClientMock()

	limiter := NewRateLimiter(db, testConfig(), clock.NewFake(now))
	res, err := limiter.IsAllowed(context.Background(), "10.0.0.1", RateLimitTypePatron)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	cfg := testConfig()
	cfg.Enabled = false
	limiter = NewRateLimiter(db, cfg, clock.NewFake(now))
	res, err = limiter.IsAllowed(context.Background(), "192.0.2.1", RateLimitTypeStaff)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 300, res.Remaining)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(db, testConfig(), clock.NewFake(now))

	router := gin.New()
	router.Use(Middleware(limiter))
	router.POST("/api/v1/queue/:id/arrive", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	key := Key("203.0.113.9", RateLimitTypePatron)
	expectWindow(mock, key, 2, 1, 1)
	expectWindow(mock, key, 2, 3, 0)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/queue/abc/arrive", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.1.1.1")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	w := send()
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))

	w = send()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
