package rate_limiter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lowc1012/tiered-rate-limiter/internal/log"
)

var _ Strategy = &slidingWindowStrategy{}

// slidingWindowScript prunes, counts and conditionally records in one step so
// two callers racing on the same key can never both see count < limit.
//
// KEYS[1] sorted set, ARGV: now (ms), window (ms), limit, member.
// Returns {allowed, remaining, reset (ms)}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)

local allowed = 0
local remaining = 0
if count < limit then
  redis.call('ZADD', key, now, member)
  redis.call('PEXPIRE', key, window)
  allowed = 1
  remaining = limit - count - 1
end

local reset = now + window
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if #oldest >= 2 then
  reset = tonumber(oldest[2]) + window
end

return {allowed, remaining, reset}
`)

type slidingWindowStrategy struct {
	client redis.UniversalClient
	now    func() time.Time
	logger *zap.Logger
}

// NewSlidingWindowStrategy returns a Strategy that keeps one sorted set per key
// in Redis, scored by arrival time in epoch milliseconds.
func NewSlidingWindowStrategy(client redis.UniversalClient, now func() time.Time) *slidingWindowStrategy {
	if now == nil {
		now = time.Now
	}
	return &slidingWindowStrategy{
		client: client,
		now:    now,
		logger: log.Logger(),
	}
}

// WithLogger overrides the process logger.
func (s *slidingWindowStrategy) WithLogger(l *zap.Logger) *slidingWindowStrategy {
	s.logger = l
	return s
}

func (s *slidingWindowStrategy) Run(ctx context.Context, r *Request) (*Result, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}

	now := r.Now
	if now.IsZero() {
		now = s.now()
	}
	nowMS := now.UnixMilli()
	windowMS := r.Duration.Milliseconds()

	// the uuid suffix keeps same-millisecond arrivals distinct members
	member := strconv.FormatInt(nowMS, 10) + "-" + uuid.NewString()

	res, err := slidingWindowScript.Run(ctx, s.client, []string{r.Key}, nowMS, windowMS, r.Limit, member).Result()
	if err != nil {
		s.logger.Error("Failed to run sliding window script", zap.String("key", r.Key), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	values, ok := res.([]interface{})
	if !ok || len(values) != 3 {
		return nil, fmt.Errorf("%w: unexpected script result %T", ErrBackendUnavailable, res)
	}

	var parsed [3]int64
	for i, v := range values {
		n, err := asInt64(v)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing script result: %w", ErrBackendUnavailable, err)
		}
		parsed[i] = n
	}

	state := Deny
	if parsed[0] == 1 {
		state = Allow
	}

	return &Result{
		State:     state,
		Limit:     r.Limit,
		Remaining: parsed[1],
		ResetAt:   time.UnixMilli(parsed[2]),
	}, nil
}

func asInt64(v interface{}) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse int64 from %q: %w", x, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", v)
	}
}
