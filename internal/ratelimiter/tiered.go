package ratelimiter

import (
	"context"
	"fmt"
	"time"

	"github.com/lowc1012/tiered-rate-limiter/pkg/utils"
	"github.com/lowc1012/tiered-rate-limiter/rate_limiter"
)

const defaultCheckTimeout = 500 * time.Millisecond

var _ Evaluator = &TieredLimiter{}

// TieredLimiter runs a preset's quota window and then, if present, its burst
// window against one Strategy.
//
// A request the burst window refuses has already been recorded in the quota
// window. The quota counter therefore counts attempts that got past the quota
// check, and undoing that entry would need a second atomic operation with its
// own failure mode.
type TieredLimiter struct {
	strategy rate_limiter.Strategy
	timeout  time.Duration
	now      func() time.Time
}

type Option func(*TieredLimiter)

// WithTimeout bounds each store round trip. Zero or negative disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(l *TieredLimiter) {
		l.timeout = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *TieredLimiter) {
		if now != nil {
			l.now = now
		}
	}
}

func NewTieredLimiter(strategy rate_limiter.Strategy, opts ...Option) *TieredLimiter {
	l := &TieredLimiter{
		strategy: strategy,
		timeout:  defaultCheckTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Evaluate checks quota first so that a client who used up the long window is
// told about the quota rather than the burst. Store failures are returned
// wrapped in rate_limiter.ErrBackendUnavailable; no policy is applied here.
func (l *TieredLimiter) Evaluate(ctx context.Context, identifier string, preset LimitPreset, now time.Time) (Decision, error) {
	if identifier == "" {
		identifier = utils.AnonymousIdentifier
	}
	if now.IsZero() {
		now = l.now()
	}

	quota, err := l.check(ctx, preset.Quota, identifier, now)
	if err != nil {
		return Decision{}, fmt.Errorf("preset %s quota check: %w", preset.Name, err)
	}
	if !quota.Allowed() {
		return decisionFrom(quota, preset.Name, ReasonQuotaExceeded), nil
	}

	if preset.Burst == nil {
		return decisionFrom(quota, preset.Name, ReasonNone), nil
	}

	burst, err := l.check(ctx, *preset.Burst, identifier, now)
	if err != nil {
		return Decision{}, fmt.Errorf("preset %s burst check: %w", preset.Name, err)
	}
	if !burst.Allowed() {
		return decisionFrom(burst, preset.Name, ReasonBurstExceeded), nil
	}

	if burst.Remaining < quota.Remaining {
		return decisionFrom(burst, preset.Name, ReasonNone), nil
	}
	return decisionFrom(quota, preset.Name, ReasonNone), nil
}

func (l *TieredLimiter) check(ctx context.Context, cfg LimitConfig, identifier string, now time.Time) (*rate_limiter.Result, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	return l.strategy.Run(ctx, &rate_limiter.Request{
		Key:      cfg.Key(identifier),
		Limit:    cfg.Limit,
		Duration: cfg.Window,
		Now:      now,
	})
}

func decisionFrom(r *rate_limiter.Result, preset string, reason Reason) Decision {
	return Decision{
		Allowed:   r.Allowed(),
		Limit:     r.Limit,
		Remaining: r.Remaining,
		ResetAt:   r.ResetAt,
		Reason:    reason,
		Preset:    preset,
	}
}
