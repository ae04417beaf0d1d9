package harnessports

import "context"

// RateLimiter coordinates throughput across conversations/models.
type RateLimiter interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
