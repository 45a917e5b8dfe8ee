package ratelimiter

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryAfterText(t *testing.T) {
	var tests = []struct {
		in   time.Duration
		want string
	}{
		{-time.Second, "less than a minute"},
		{0, "less than a minute"},
		{59 * time.Second, "less than a minute"},
		{time.Minute, "1 minute"},
		{time.Minute + time.Millisecond, "2 minutes"},
		{5 * time.Minute, "5 minutes"},
		{59*time.Minute + 30*time.Second, "60 minutes"},
		{time.Hour, "1 hour"},
		{time.Hour + time.Second, "2 hours"},
		{3 * time.Hour, "3 hours"},
	}

	for _, tt := range tests {
		t.Run(tt.in.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, RetryAfterText(tt.in))
		})
	}
}

func TestNewDeniedResponse(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	resetAt := now.Add(59*time.Minute + 58*time.Second + 500*time.Millisecond)
	d := Decision{Allowed: false, Limit: 10, Remaining: 0, ResetAt: resetAt, Reason: ReasonQuotaExceeded}

	resp := NewDeniedResponse(d, "AI operations are limited to 10 per hour", now)

	assert.Equal(t, http.StatusTooManyRequests, resp.Status)
	assert.Equal(t, "3599", resp.Headers.Get(HeaderRetryAfter))
	assert.Equal(t, "10", resp.Headers.Get(HeaderRateLimitLimit))
	assert.Equal(t, "0", resp.Headers.Get(HeaderRateLimitRemaining))
	assert.Equal(t, "1709297998500", resp.Headers.Get(HeaderRateLimitReset))

	assert.Equal(t, DeniedBody{
		Error:      "Rate limit exceeded: AI operations are limited to 10 per hour",
		RetryAfter: "60 minutes",
		ResetAt:    "2024-03-01T12:59:58.500Z",
		Limit:      10,
		Remaining:  0,
	}, resp.Body)
}

func TestDeniedResponse_Write(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	d := Decision{Limit: 3, ResetAt: now.Add(30 * time.Second)}
	resp := NewDeniedResponse(d, "burst", now)

	rec := httptest.NewRecorder()
	require.NoError(t, resp.Write(rec))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "30", rec.Header().Get(HeaderRetryAfter))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Rate limit exceeded: burst", body["error"])
	assert.Equal(t, "less than a minute", body["retryAfter"])
	assert.Equal(t, "2024-03-01T12:00:30.000Z", body["resetAt"])
	assert.Equal(t, float64(3), body["limit"])
	assert.Equal(t, float64(0), body["remaining"])
	assert.Len(t, body, 5)
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, int64(0), retryAfterSeconds(-time.Second))
	assert.Equal(t, int64(0), retryAfterSeconds(0))
	assert.Equal(t, int64(1), retryAfterSeconds(time.Millisecond))
	assert.Equal(t, int64(60), retryAfterSeconds(time.Minute))
}
