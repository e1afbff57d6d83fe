// Package ratelimit throttles outbound Engine calls per logical endpoint
// using a token-bucket algorithm (§5 "Rate limiting").
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Endpoint identifies a logical Engine operation for rate-limiting
// purposes. Distinct endpoints get independent buckets.
type Endpoint string

const (
	EndpointWriteWorkflow   Endpoint = "write-workflow"
	EndpointDeleteWorkflow  Endpoint = "delete-workflow"
	EndpointReadWorkflow    Endpoint = "read-workflow"
	EndpointReadExecution   Endpoint = "read-execution"
	EndpointCreateExecution Endpoint = "create-execution"
	EndpointDefault         Endpoint = "default"
)

// BucketConfig is the tokens-per-second / burst pair for one endpoint.
type BucketConfig struct {
	RatePerSecond float64
	Burst         int
}

// DefaultBuckets returns the §5 defaults: write workflow 2/5, delete
// workflow 1/3, read workflow 5/10, read execution 5/10, create execution
// 3/8, default 2/5.
func DefaultBuckets() map[Endpoint]BucketConfig {
	return map[Endpoint]BucketConfig{
		EndpointWriteWorkflow:   {RatePerSecond: 2, Burst: 5},
		EndpointDeleteWorkflow:  {RatePerSecond: 1, Burst: 3},
		EndpointReadWorkflow:    {RatePerSecond: 5, Burst: 10},
		EndpointReadExecution:   {RatePerSecond: 5, Burst: 10},
		EndpointCreateExecution: {RatePerSecond: 3, Burst: 8},
		EndpointDefault:         {RatePerSecond: 2, Burst: 5},
	}
}

// Limiter owns one token bucket per logical endpoint plus a counter of how
// many calls were made to wait for a token (§5 "record throttled-request
// counts").
type Limiter struct {
	mu        sync.Mutex
	buckets   map[Endpoint]*rate.Limiter
	config    map[Endpoint]BucketConfig
	throttled map[Endpoint]int64
}

// New builds a Limiter from the given per-endpoint configuration. Any
// endpoint not present in cfg falls back to EndpointDefault's bucket.
func New(cfg map[Endpoint]BucketConfig) *Limiter {
	if cfg == nil {
		cfg = DefaultBuckets()
	}
	if _, ok := cfg[EndpointDefault]; !ok {
		cfg[EndpointDefault] = BucketConfig{RatePerSecond: 2, Burst: 5}
	}
	l := &Limiter{
		buckets:   make(map[Endpoint]*rate.Limiter, len(cfg)),
		config:    cfg,
		throttled: make(map[Endpoint]int64),
	}
	for ep, bc := range cfg {
		l.buckets[ep] = rate.NewLimiter(rate.Limit(bc.RatePerSecond), bc.Burst)
	}
	return l
}

// Wait blocks until a token for endpoint ep is available or ctx is done.
// Calls that had to wait (bucket was empty) increment the throttled
// counter for that endpoint.
func (l *Limiter) Wait(ctx context.Context, ep Endpoint) error {
	b := l.bucketFor(ep)
	if b.Tokens() < 1 {
		l.mu.Lock()
		l.throttled[ep]++
		l.mu.Unlock()
	}
	return b.Wait(ctx)
}

func (l *Limiter) bucketFor(ep Endpoint) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[ep]; ok {
		return b
	}
	b := l.buckets[EndpointDefault]
	l.buckets[ep] = b
	return b
}

// ThrottledCount returns how many calls to ep have had to wait for a
// token since the Limiter was created.
func (l *Limiter) ThrottledCount(ep Endpoint) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.throttled[ep]
}
