package rate_limiter

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testcontainers "github.com/testcontainers/testcontainers-go"
	rediscontainer "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"
)

func newRedisContainerClient(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := rediscontainer.Run(ctx, "redis:7.2-alpine")
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)

	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestSlidingWindowStrategy_RealRedis_Concurrent(t *testing.T) {
	client := newRedisContainerClient(t)
	s := NewSlidingWindowStrategy(client, nil).WithLogger(zap.NewNop())

	const (
		limit = 50
		extra = 250
	)

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < limit+extra; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.Run(context.Background(), &Request{Key: "it:conc", Limit: limit, Duration: time.Minute})
			if !assert.NoError(t, err) {
				return
			}
			if res.Allowed() {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(limit), allowed.Load())
}

func TestSlidingWindowStrategy_RealRedis_Expiry(t *testing.T) {
	client := newRedisContainerClient(t)
	s := NewSlidingWindowStrategy(client, nil).WithLogger(zap.NewNop())

	res, err := s.Run(context.Background(), &Request{Key: "it:ttl", Limit: 2, Duration: 2 * time.Second})
	require.NoError(t, err)
	require.True(t, res.Allowed())

	ttl, err := client.PTTL(context.Background(), "it:ttl").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, 2*time.Second)
}
