package ratelimiter

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"
)

const (
	HeaderRetryAfter         = "Retry-After"
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"

	// millisecond ISO-8601 in UTC, e.g. 2024-03-01T13:00:00.000Z
	resetAtLayout = "2006-01-02T15:04:05.000Z07:00"

	// how long a fail-closed client is asked to wait while the store is down
	backendRetryAfter = 30 * time.Second
)

// DeniedBody is the JSON wire shape of a refusal.
type DeniedBody struct {
	Error      string `json:"error"`
	RetryAfter string `json:"retryAfter"`
	ResetAt    string `json:"resetAt"`
	Limit      int64  `json:"limit"`
	Remaining  int64  `json:"remaining"`
}

// DeniedResponse is everything a handler needs to refuse a request. Handlers
// write it verbatim and do no further work.
type DeniedResponse struct {
	Status  int
	Headers http.Header
	Body    DeniedBody
}

// NewDeniedResponse formats a denied decision as a 429.
func NewDeniedResponse(d Decision, description string, now time.Time) *DeniedResponse {
	wait := d.ResetAt.Sub(now)
	return newDeniedResponse(http.StatusTooManyRequests, "Rate limit exceeded: "+description, d.Limit, d.ResetAt, wait)
}

// newUnavailableResponse refuses a request because the store could not be
// consulted and the preset fails closed.
func newUnavailableResponse(preset LimitPreset, now time.Time) *DeniedResponse {
	return newDeniedResponse(
		http.StatusServiceUnavailable,
		"Rate limiter unavailable: "+preset.Description,
		preset.Quota.Limit,
		now.Add(backendRetryAfter),
		backendRetryAfter,
	)
}

func newDeniedResponse(status int, msg string, limit int64, resetAt time.Time, wait time.Duration) *DeniedResponse {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set(HeaderRetryAfter, strconv.FormatInt(retryAfterSeconds(wait), 10))
	setLimitHeaders(h, limit, 0, resetAt)

	return &DeniedResponse{
		Status:  status,
		Headers: h,
		Body: DeniedBody{
			Error:      msg,
			RetryAfter: RetryAfterText(wait),
			ResetAt:    resetAt.UTC().Format(resetAtLayout),
			Limit:      limit,
			Remaining:  0,
		},
	}
}

// Write sends the response to w.
func (r *DeniedResponse) Write(w http.ResponseWriter) error {
	for k, vs := range r.Headers {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(r.Status)
	return json.NewEncoder(w).Encode(r.Body)
}

func setLimitHeaders(h http.Header, limit, remaining int64, resetAt time.Time) {
	h.Set(HeaderRateLimitLimit, strconv.FormatInt(limit, 10))
	h.Set(HeaderRateLimitRemaining, strconv.FormatInt(remaining, 10))
	h.Set(HeaderRateLimitReset, strconv.FormatInt(resetAt.UnixMilli(), 10))
}

// RetryAfterText phrases a wait for humans: "less than a minute", "1 minute",
// "N minutes", "1 hour" or "N hours", rounding up.
func RetryAfterText(d time.Duration) string {
	if d < time.Minute {
		return "less than a minute"
	}
	if d < time.Hour {
		minutes := int64(math.Ceil(d.Minutes()))
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}

	hours := int64(math.Ceil(d.Hours()))
	if hours == 1 {
		return "1 hour"
	}
	return fmt.Sprintf("%d hours", hours)
}

func retryAfterSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}
