package cache

import (
	"context"
	"errors"
	"time"
)

var ErrCacheMiss = errors.New("cache miss")

// UserProfile is the cached, credential-free view of a user.
type UserProfile struct {
	Username         string    `json:"username"`
	SecurityQuestion string    `json:"security_question"`
	CreatedAt        time.Time `json:"created_at"`
}

type UserCache interface {
	Get(ctx context.Context, key string) (*UserProfile, error)
	Set(ctx context.Context, key string, profile *UserProfile, ttl time.Duration) error
	BuildKey(username string) string
	Close() error
}
