package ratelimiter

import (
	"time"

	internal "github.com/lowc1012/tiered-rate-limiter/internal/ratelimiter"
	"github.com/lowc1012/tiered-rate-limiter/rate_limiter"
)

// LimitConfig is a single sliding window.
type LimitConfig = internal.LimitConfig

// LimitPreset is a named quota window plus optional burst window.
type LimitPreset = internal.LimitPreset

// Registry holds the presets known to the process.
type Registry = internal.Registry

// Decision is the aggregated outcome of a preset evaluation.
type Decision = internal.Decision

// Reason explains a Decision.
type Reason = internal.Reason

// Evaluator evaluates presets for an identifier.
type Evaluator = internal.Evaluator

// TieredLimiter runs quota then burst windows.
type TieredLimiter = internal.TieredLimiter

// LimiterOption configures a TieredLimiter.
type LimiterOption = internal.Option

const (
	ReasonNone               = internal.ReasonNone
	ReasonQuotaExceeded      = internal.ReasonQuotaExceeded
	ReasonBurstExceeded      = internal.ReasonBurstExceeded
	ReasonBackendUnavailable = internal.ReasonBackendUnavailable

	PresetExpensive         = internal.PresetExpensive
	PresetQuotaLimited      = internal.PresetQuotaLimited
	PresetResourceIntensive = internal.PresetResourceIntensive
	PresetLightweight       = internal.PresetLightweight
)

var ErrUnknownPreset = internal.ErrUnknownPreset

// DefaultPresets returns the built-in presets.
func DefaultPresets() []LimitPreset {
	return internal.DefaultPresets()
}

// NewRegistry validates presets and indexes them by name.
func NewRegistry(presets ...LimitPreset) (*Registry, error) {
	return internal.NewRegistry(presets...)
}

// NewTieredLimiter builds the default Evaluator on top of strategy.
func NewTieredLimiter(strategy rate_limiter.Strategy, opts ...LimiterOption) *TieredLimiter {
	return internal.NewTieredLimiter(strategy, opts...)
}

// WithCheckTimeout bounds each store round trip made by a TieredLimiter.
func WithCheckTimeout(d time.Duration) LimiterOption {
	return internal.WithTimeout(d)
}
