package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-dm-relay/relay-service/internal/cache"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/domain"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/repository"
)

type mapCache struct {
	mu      sync.Mutex
	entries map[string]*cache.UserProfile
	getErr  error
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string]*cache.UserProfile)}
}

func (c *mapCache) Get(_ context.Context, key string) (*cache.UserProfile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	p, ok := c.entries[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return p, nil
}

func (c *mapCache) Set(_ context.Context, key string, profile *cache.UserProfile, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = profile
	return nil
}

func (c *mapCache) BuildKey(username string) string { return "test:user:" + username }
func (c *mapCache) Close() error                    { return nil }

// countingUsers counts store reads and can stall them to force overlap.
type countingUsers struct {
	repository.UserRepository
	reads atomic.Int32
	gate  chan struct{}
}

func (u *countingUsers) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	u.reads.Add(1)
	if u.gate != nil {
		<-u.gate
	}
	return u.UserRepository.FindByUsername(ctx, username)
}

func TestUserDirectory_CacheAside(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := repository.NewGormUserRepository(db)
	require.NoError(t, repo.Create(ctx, &domain.User{
		Username:           "alice",
		PasswordHash:       "secret-hash",
		SecurityQuestion:   "First pet?",
		SecurityAnswerHash: "answer-hash",
	}))

	users := &countingUsers{UserRepository: repo}
	c := newMapCache()
	dir := NewUserDirectory(users, c, time.Minute)

	p, err := dir.Profile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "First pet?", p.SecurityQuestion)

	_, err = dir.Profile(ctx, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 1, users.reads.Load())
	assert.Contains(t, c.entries, "test:user:alice")

	ok, err := dir.Exists(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NotContains(t, c.entries, "test:user:nobody")

	_, err = dir.Profile(ctx, "nobody")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}

func TestUserDirectory_CacheErrorFallsBackToStore(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := repository.NewGormUserRepository(db)
	require.NoError(t, repo.Create(ctx, &domain.User{Username: "bob", PasswordHash: "h", SecurityAnswerHash: "a"}))

	c := newMapCache()
	c.getErr = errors.New("redis unavailable")
	dir := NewUserDirectory(repo, c, time.Minute)

	ok, err := dir.Exists(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUserDirectory_ConcurrentMissesShareOneRead(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := repository.NewGormUserRepository(db)
	require.NoError(t, repo.Create(ctx, &domain.User{Username: "carol", PasswordHash: "h", SecurityAnswerHash: "a"}))

	users := &countingUsers{UserRepository: repo, gate: make(chan struct{})}
	dir := NewUserDirectory(users, newMapCache(), time.Minute)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := dir.Profile(ctx, "carol")
			errs <- err
		}()
	}

	require.Eventually(t, func() bool { return users.reads.Load() == 1 }, time.Second, 5*time.Millisecond)
	// Give the other callers time to join the in-flight read.
	time.Sleep(50 * time.Millisecond)
	close(users.gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 1, users.reads.Load())
}
