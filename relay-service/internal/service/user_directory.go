package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/weiawesome/wes-dm-relay/pkg/log"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/cache"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/repository"
)

// UserDirectory answers profile lookups cache-aside, collapsing concurrent
// misses for the same user into one store read.
type UserDirectory struct {
	repo  repository.UserRepository
	cache cache.UserCache
	ttl   time.Duration
	sf    singleflight.Group
}

func NewUserDirectory(repo repository.UserRepository, userCache cache.UserCache, ttl time.Duration) *UserDirectory {
	if userCache == nil {
		userCache = cache.NewNoopUserCache()
	}
	return &UserDirectory{
		repo:  repo,
		cache: userCache,
		ttl:   ttl,
	}
}

// Profile returns the cached profile of username, or
// repository.ErrUserNotFound.
func (d *UserDirectory) Profile(ctx context.Context, username string) (*cache.UserProfile, error) {
	key := d.cache.BuildKey(username)

	if profile, err := d.cache.Get(ctx, key); err == nil {
		return profile, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldUsername, username).Msg("user cache read failed")
	}

	result, err, _ := d.sf.Do(key, func() (interface{}, error) {
		user, err := d.repo.FindByUsername(ctx, username)
		if err != nil {
			return nil, err
		}

		profile := &cache.UserProfile{
			Username:         user.Username,
			SecurityQuestion: user.SecurityQuestion,
			CreatedAt:        user.CreatedAt,
		}
		if err := d.cache.Set(ctx, key, profile, d.ttl); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldUsername, username).Msg("user cache write failed")
		}
		return profile, nil
	})
	if err != nil {
		return nil, err
	}

	profile, ok := result.(*cache.UserProfile)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from singleflight")
	}
	return profile, nil
}

// Exists reports whether username is a registered user.
func (d *UserDirectory) Exists(ctx context.Context, username string) (bool, error) {
	_, err := d.Profile(ctx, username)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, repository.ErrUserNotFound) {
		return false, nil
	}
	return false, err
}
