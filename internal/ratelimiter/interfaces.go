package ratelimiter

import (
	"context"
	"time"
)

// Reason tells why a Decision denied (or, for fail-open, let through) a request.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonQuotaExceeded      Reason = "quota_exceeded"
	ReasonBurstExceeded      Reason = "burst_exceeded"
	ReasonBackendUnavailable Reason = "backend_unavailable"
)

// Decision is the aggregated outcome of all tiers of a preset.
type Decision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time
	Reason    Reason
	Preset    string
}

// Evaluator decides whether identifier may proceed under preset at now.
type Evaluator interface {
	Evaluate(ctx context.Context, identifier string, preset LimitPreset, now time.Time) (Decision, error)
}
