package ratelimiter

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var ErrUnknownPreset = errors.New("unknown rate limit preset")

const (
	PresetExpensive         = "expensive-operation"
	PresetQuotaLimited      = "quota-limited-operation"
	PresetResourceIntensive = "resource-intensive-operation"
	PresetLightweight       = "lightweight-operation"
)

// LimitConfig is one sliding window: at most Limit requests per Window. State
// for a client lives under "<KeyPrefix>:<identifier>".
type LimitConfig struct {
	Limit     int64
	Window    time.Duration
	KeyPrefix string
}

func (c LimitConfig) Validate() error {
	if c.Limit <= 0 {
		return fmt.Errorf("limit must be positive, got %d", c.Limit)
	}
	if c.Window.Milliseconds() <= 0 {
		return fmt.Errorf("window must be at least 1ms, got %s", c.Window)
	}
	if strings.TrimSpace(c.KeyPrefix) == "" {
		return errors.New("key prefix is required")
	}
	return nil
}

func (c LimitConfig) Key(identifier string) string {
	return c.KeyPrefix + ":" + identifier
}

// LimitPreset pairs a long quota window with an optional short burst window.
// FailOpen admits requests when the store cannot be reached; otherwise they
// are refused.
type LimitPreset struct {
	Name        string
	Quota       LimitConfig
	Burst       *LimitConfig
	Description string
	FailOpen    bool
}

func (p LimitPreset) Validate() error {
	if p.Name == "" {
		return errors.New("preset name is required")
	}
	if err := p.Quota.Validate(); err != nil {
		return fmt.Errorf("preset %s quota: %w", p.Name, err)
	}
	if p.Burst != nil {
		if err := p.Burst.Validate(); err != nil {
			return fmt.Errorf("preset %s burst: %w", p.Name, err)
		}
		if p.Burst.KeyPrefix == p.Quota.KeyPrefix {
			return fmt.Errorf("preset %s: quota and burst must not share key prefix %q", p.Name, p.Quota.KeyPrefix)
		}
	}
	return nil
}

// DefaultPresets returns the four built-in sensitivity tiers. The numbers are
// tuning knobs, not business rules.
func DefaultPresets() []LimitPreset {
	return []LimitPreset{
		{
			Name:        PresetExpensive,
			Quota:       LimitConfig{Limit: 10, Window: time.Hour, KeyPrefix: "ratelimit:expensive:hour"},
			Burst:       &LimitConfig{Limit: 3, Window: time.Minute, KeyPrefix: "ratelimit:expensive:minute"},
			Description: "AI operations are limited to 10 per hour",
		},
		{
			Name:        PresetQuotaLimited,
			Quota:       LimitConfig{Limit: 50, Window: time.Hour, KeyPrefix: "ratelimit:quota-limited:hour"},
			Burst:       &LimitConfig{Limit: 5, Window: time.Minute, KeyPrefix: "ratelimit:quota-limited:minute"},
			Description: "search requests are limited to 50 per hour",
		},
		{
			Name:        PresetResourceIntensive,
			Quota:       LimitConfig{Limit: 20, Window: time.Hour, KeyPrefix: "ratelimit:resource-intensive:hour"},
			Burst:       &LimitConfig{Limit: 5, Window: time.Minute, KeyPrefix: "ratelimit:resource-intensive:minute"},
			Description: "uploads and changes are limited to 20 per hour",
		},
		{
			Name:        PresetLightweight,
			Quota:       LimitConfig{Limit: 100, Window: time.Hour, KeyPrefix: "ratelimit:lightweight:hour"},
			Description: "requests are limited to 100 per hour",
			FailOpen:    true,
		},
	}
}

// Registry is the immutable set of presets known to the process.
type Registry struct {
	presets map[string]LimitPreset
}

// NewRegistry validates presets and indexes them by name. Every window in the
// registry must own its key prefix: two windows sharing one would count each
// other's requests and overwrite each other's expiry.
func NewRegistry(presets ...LimitPreset) (*Registry, error) {
	r := &Registry{presets: make(map[string]LimitPreset, len(presets))}
	owners := make(map[string]string, 2*len(presets))
	for _, p := range presets {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.presets[p.Name]; dup {
			return nil, fmt.Errorf("duplicate preset %q", p.Name)
		}

		windows := []LimitConfig{p.Quota}
		if p.Burst != nil {
			windows = append(windows, *p.Burst)
		}
		for _, w := range windows {
			if owner, taken := owners[w.KeyPrefix]; taken {
				return nil, fmt.Errorf("preset %s: key prefix %q already used by preset %s", p.Name, w.KeyPrefix, owner)
			}
			owners[w.KeyPrefix] = p.Name
		}

		r.presets[p.Name] = p
	}
	return r, nil
}

func (r *Registry) Get(name string) (LimitPreset, error) {
	p, ok := r.presets[name]
	if !ok {
		return LimitPreset{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return p, nil
}

// Names returns preset names in lexical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.presets))
	for name := range r.presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WithFailPolicy returns a copy of r with FailOpen forced on for failOpen and
// off for failClosed. A name in both lists, or an unknown name, is an error.
func (r *Registry) WithFailPolicy(failOpen, failClosed []string) (*Registry, error) {
	out := &Registry{presets: make(map[string]LimitPreset, len(r.presets))}
	for name, p := range r.presets {
		out.presets[name] = p
	}

	closed := make(map[string]struct{}, len(failClosed))
	for _, name := range failClosed {
		closed[name] = struct{}{}
	}

	apply := func(names []string, open bool) error {
		for _, name := range names {
			p, ok := out.presets[name]
			if !ok {
				return fmt.Errorf("%w: %q", ErrUnknownPreset, name)
			}
			p.FailOpen = open
			out.presets[name] = p
		}
		return nil
	}

	for _, name := range failOpen {
		if _, both := closed[name]; both {
			return nil, fmt.Errorf("preset %q cannot be both fail-open and fail-closed", name)
		}
	}
	if err := apply(failOpen, true); err != nil {
		return nil, err
	}
	if err := apply(failClosed, false); err != nil {
		return nil, err
	}
	return out, nil
}
