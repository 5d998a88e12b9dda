package cache

import (
	"context"
	"time"
)

// NoopUserCache is used when no redis address is configured. Every Get misses.
type NoopUserCache struct{}

func NewNoopUserCache() NoopUserCache { return NoopUserCache{} }

func (NoopUserCache) Get(context.Context, string) (*UserProfile, error) {
	return nil, ErrCacheMiss
}

func (NoopUserCache) Set(context.Context, string, *UserProfile, time.Duration) error {
	return nil
}

func (NoopUserCache) BuildKey(username string) string {
	return "user:" + username
}

func (NoopUserCache) Close() error {
	return nil
}

var _ UserCache = NoopUserCache{}
