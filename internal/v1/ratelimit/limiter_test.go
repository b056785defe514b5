package ratelimit

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/djroom/engine/internal/v1/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		RateLimitQueueMutations: "3-M",
		RateLimitDeckActions:    "3-M",
		RateLimitDeckSeek:       "3-M",
	}
}

func TestNew_MemoryStore(t *testing.T) {
	l, err := New(testConfig(), nil)
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestCheckAndRecord_AllowsUnderLimitThenBlocks(t *testing.T) {
	l, err := New(testConfig(), nil)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		assert.True(t, l.CheckAndRecord(ctx, "client-1", BucketQueueMutation))
	}
	assert.False(t, l.CheckAndRecord(ctx, "client-1", BucketQueueMutation))
}

func TestCheckAndRecord_BucketsAreIndependent(t *testing.T) {
	l, err := New(testConfig(), nil)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		assert.True(t, l.CheckAndRecord(ctx, "client-1", BucketQueueMutation))
	}
	// deck action bucket is untouched
	assert.True(t, l.CheckAndRecord(ctx, "client-1", BucketDeckAction))
	assert.True(t, l.CheckAndRecord(ctx, "client-1", BucketDeckSeek))
}

func TestCheckAndRecord_ClientsAreIndependent(t *testing.T) {
	l, err := New(testConfig(), nil)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		assert.True(t, l.CheckAndRecord(ctx, "client-1", BucketQueueMutation))
	}
	assert.False(t, l.CheckAndRecord(ctx, "client-1", BucketQueueMutation))
	assert.True(t, l.CheckAndRecord(ctx, "client-2", BucketQueueMutation))
}

func TestNew_RedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	l, err := New(testConfig(), rc)
	require.NoError(t, err)

	ctx := context.Background()
	assert.True(t, l.CheckAndRecord(ctx, "client-1", BucketDeckSeek))
}

func TestCheckAndRecord_FailsOpenOnStoreFailure(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	l, err := New(testConfig(), rc)
	require.NoError(t, err)

	mr.Close()

	ctx := context.Background()
	assert.True(t, l.CheckAndRecord(ctx, "client-1", BucketQueueMutation))
}

func TestNew_InvalidRate(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitQueueMutations = "not-a-rate"
	_, err := New(cfg, nil)
	assert.Error(t, err)
}
