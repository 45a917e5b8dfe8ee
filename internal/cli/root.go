package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lowc1012/tiered-rate-limiter/internal/config"
	"github.com/lowc1012/tiered-rate-limiter/pkg/ratelimiter"
	"github.com/lowc1012/tiered-rate-limiter/pkg/utils"
	"github.com/lowc1012/tiered-rate-limiter/rate_limiter"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ratelimiter",
		Short: "Tiered, Redis-backed request rate limiting",
		Long: `Serves rate-limited document and chat endpoints and inspects limiter state.
All limiter state lives in Redis (REDIS_URL), so any number of instances share one budget per client.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newServerCmd(),
		newCheckCmd(),
		newPresetsCmd(),
	)

	return root
}

// newRegistry applies the configured fail-policy overrides to the built-in presets.
func newRegistry(cfg config.RateLimiterConfig) (*ratelimiter.Registry, error) {
	reg, err := ratelimiter.NewRegistry(ratelimiter.DefaultPresets()...)
	if err != nil {
		return nil, err
	}
	return reg.WithFailPolicy(cfg.FailOpen, cfg.FailClosed)
}

// newManager wires the Redis client, sliding window strategy and tiered
// limiter. The returned client is owned by the caller.
func newManager(cfg config.Config, logger *zap.Logger, opts ...ratelimiter.ManagerOption) (*ratelimiter.Manager, *redis.Client, error) {
	redisOpts, err := cfg.Redis.RedisOptions()
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(redisOpts)

	// an unreachable store is not fatal: each preset's fail policy covers it
	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("Redis not reachable at startup", zap.String("addr", redisOpts.Addr), zap.Error(err))
	}

	registry, err := newRegistry(cfg.RateLimiter)
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("building presets: %w", err)
	}

	strategy := rate_limiter.NewSlidingWindowStrategy(client, time.Now).WithLogger(logger)
	limiter := ratelimiter.NewTieredLimiter(strategy, ratelimiter.WithCheckTimeout(cfg.RateLimiter.BackendTimeout))

	base := []ratelimiter.ManagerOption{ratelimiter.WithLogger(logger)}
	if headers := cfg.RateLimiter.KeyHeaders; len(headers) > 0 {
		base = append(base, ratelimiter.WithExtractor(utils.NewHTTPHeadersExtractor(headers...)))
	}
	opts = append(base, opts...)
	m, err := ratelimiter.NewManager(limiter, registry, opts...)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return m, client, nil
}
