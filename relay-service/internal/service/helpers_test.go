package service

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/weiawesome/wes-dm-relay/pkg/database"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/cache"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/domain"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/repository"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.New(&database.Config{
		Driver:       "sqlite",
		FilePath:     fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		MaxIdleConns: 1,
		MaxOpenConns: 1,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	require.NoError(t, repository.Migrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func newDirectory(db *gorm.DB) *UserDirectory {
	return NewUserDirectory(repository.NewGormUserRepository(db), cache.NewNoopUserCache(), time.Minute)
}

// fakeHandle records pushed payloads in order.
type fakeHandle struct {
	id       string
	username string

	mu      sync.Mutex
	sent    []*domain.MessagePayload
	sendErr error
	closed  bool
}

func newFakeHandle(username string) *fakeHandle {
	return &fakeHandle{id: uuid.NewString(), username: username}
}

func (f *fakeHandle) ID() string       { return f.id }
func (f *fakeHandle) Username() string { return f.username }

func (f *fakeHandle) Send(payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	if f.closed {
		return fmt.Errorf("closed")
	}
	f.sent = append(f.sent, payload.(*domain.MessagePayload))
	return nil
}

func (f *fakeHandle) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeHandle) failWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErr = err
}

func (f *fakeHandle) received() []*domain.MessagePayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.MessagePayload, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeHandle) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func texts(payloads []*domain.MessagePayload) []string {
	out := make([]string, 0, len(payloads))
	for _, p := range payloads {
		out = append(out, p.Text)
	}
	return out
}
