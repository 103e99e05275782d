// Package cache defines the shared store for query service payloads.
package cache

import (
	"context"
	"time"
)

type Interface interface {
	MGet(ctx context.Context, keys []string) (map[string][]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Indexer groups payload keys under a set so they can be dropped together.
type Indexer interface {
	Index(ctx context.Context, set string, key string, ttl time.Duration) error
	Members(ctx context.Context, set string) ([]string, error)
}
