package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/agentoven/workflow-copilot/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_WaitConsumesBurstWithoutBlocking(t *testing.T) {
	l := ratelimit.New(map[ratelimit.Endpoint]ratelimit.BucketConfig{
		ratelimit.EndpointDefault: {RatePerSecond: 100, Burst: 3},
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(ctx, ratelimit.EndpointDefault))
	}
}

func TestLimiter_UnknownEndpointFallsBackToDefault(t *testing.T) {
	l := ratelimit.New(map[ratelimit.Endpoint]ratelimit.BucketConfig{
		ratelimit.EndpointDefault: {RatePerSecond: 50, Burst: 5},
	})

	err := l.Wait(context.Background(), ratelimit.Endpoint("unregistered"))
	assert.NoError(t, err)
}

func TestLimiter_ThrottledCountIncrementsWhenBucketEmpty(t *testing.T) {
	l := ratelimit.New(map[ratelimit.Endpoint]ratelimit.BucketConfig{
		ratelimit.EndpointDefault: {RatePerSecond: 1, Burst: 1},
	})

	ctx := context.Background()
	require.NoError(t, l.Wait(ctx, ratelimit.EndpointDefault))

	ctx2, cancel := context.WithTimeout(ctx, 1500*time.Millisecond)
	defer cancel()
	require.NoError(t, l.Wait(ctx2, ratelimit.EndpointDefault))

	assert.GreaterOrEqual(t, l.ThrottledCount(ratelimit.EndpointDefault), int64(1))
}

func TestLimiter_NilConfigUsesDefaults(t *testing.T) {
	l := ratelimit.New(nil)
	assert.NoError(t, l.Wait(context.Background(), ratelimit.EndpointWriteWorkflow))
}
