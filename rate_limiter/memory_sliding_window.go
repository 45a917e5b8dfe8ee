package rate_limiter

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

var _ Strategy = &memorySlidingWindowStrategy{}

// memorySlidingWindowStrategy is the in-process counterpart of
// slidingWindowStrategy. State is local to the process, so it only enforces a
// global limit for single-instance deployments and tests.
type memorySlidingWindowStrategy struct {
	mu   sync.Mutex
	logs map[string][]int64 // ascending arrival times in epoch ms
	now  func() time.Time
}

func NewMemorySlidingWindowStrategy(now func() time.Time) *memorySlidingWindowStrategy {
	if now == nil {
		now = time.Now
	}
	return &memorySlidingWindowStrategy{
		logs: make(map[string][]int64),
		now:  now,
	}
}

func (m *memorySlidingWindowStrategy) Run(ctx context.Context, r *Request) (*Result, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	now := r.Now
	if now.IsZero() {
		now = m.now()
	}
	nowMS := now.UnixMilli()
	windowMS := r.Duration.Milliseconds()

	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.logs[r.Key]
	cut := sort.Search(len(entries), func(i int) bool { return entries[i] > nowMS-windowMS })
	entries = entries[cut:]
	count := int64(len(entries))

	state := Deny
	remaining := int64(0)
	if count < r.Limit {
		i := sort.Search(len(entries), func(i int) bool { return entries[i] > nowMS })
		entries = append(entries, 0)
		copy(entries[i+1:], entries[i:])
		entries[i] = nowMS
		state = Allow
		remaining = r.Limit - count - 1
	}

	if len(entries) == 0 {
		delete(m.logs, r.Key)
	} else {
		m.logs[r.Key] = entries
	}

	resetMS := nowMS + windowMS
	if len(entries) > 0 {
		resetMS = entries[0] + windowMS
	}

	return &Result{
		State:     state,
		Limit:     r.Limit,
		Remaining: remaining,
		ResetAt:   time.UnixMilli(resetMS),
	}, nil
}
