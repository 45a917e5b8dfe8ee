package rate_limiter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrBackendUnavailable wraps every failure to reach or execute against the
// shared counter store. Callers decide whether to fail open or closed.
var ErrBackendUnavailable = errors.New("rate limiter backend unavailable")

// Request describes one admission check: at most Limit requests for Key
// within the trailing Duration ending at Now. A zero Now means "use the
// strategy's clock".
type Request struct {
	Key      string
	Limit    int64
	Duration time.Duration
	Now      time.Time
}

type State int64

const (
	Deny  State = 0
	Allow State = 1
)

func (s State) String() string {
	if s == Allow {
		return "allow"
	}
	return "deny"
}

// Result is the outcome of a single window check. ResetAt is the moment the
// oldest entry still inside the window slides out.
type Result struct {
	State     State
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

func (r *Result) Allowed() bool {
	return r != nil && r.State == Allow
}

type Strategy interface {
	Run(ctx context.Context, r *Request) (*Result, error)
}

func (r *Request) validate() error {
	if r == nil {
		return errors.New("request is required")
	}
	if r.Key == "" {
		return errors.New("key is required")
	}
	if r.Limit <= 0 {
		return fmt.Errorf("limit must be positive, got %d", r.Limit)
	}
	if r.Duration.Milliseconds() <= 0 {
		return fmt.Errorf("duration must be at least 1ms, got %s", r.Duration)
	}
	return nil
}
