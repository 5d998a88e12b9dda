package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/weiawesome/wes-dm-relay/relay-service/internal/config"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/domain"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/hub"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/repository"
)

type deliveryFixture struct {
	hub      *hub.Hub
	messages *repository.GormMessageRepository
	svc      DeliveryService
}

func newDeliveryFixture(t *testing.T, cfg config.DeliveryConfig) *deliveryFixture {
	t.Helper()
	return newDeliveryFixtureWith(newTestDB(t), cfg)
}

func newDeliveryFixtureOn(db *gorm.DB) *deliveryFixture {
	return newDeliveryFixtureWith(db, config.DeliveryConfig{})
}

func newDeliveryFixtureWith(db *gorm.DB, cfg config.DeliveryConfig) *deliveryFixture {
	h := hub.NewHub()
	messages := repository.NewGormMessageRepository(db, nil)
	return &deliveryFixture{
		hub:      h,
		messages: messages,
		svc:      NewDeliveryService(h, messages, nil, cfg),
	}
}

func (f *deliveryFixture) connect(t *testing.T, username string) (*fakeHandle, *Conn) {
	t.Helper()
	handle := newFakeHandle(username)
	conn, err := f.svc.Connect(context.Background(), handle)
	require.NoError(t, err)
	return handle, conn
}

func TestDelivery_OfflineThenConnectDeliversOnceInOrder(t *testing.T) {
	ctx := context.Background()
	f := newDeliveryFixture(t, config.DeliveryConfig{FlushBatchSize: 2})

	_, alice := f.connect(t, "alice")
	for i := 0; i < 5; i++ {
		msg, err := f.svc.Send(ctx, alice, "bob", fmt.Sprintf("m%d", i))
		require.NoError(t, err)
		assert.False(t, msg.Delivered)
	}

	pending, err := f.messages.CountPending(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(5), pending)

	bob, bobConn := f.connect(t, "bob")
	assert.Equal(t, domain.ConnActive, bobConn.State())
	assert.Equal(t, []string{"m0", "m1", "m2", "m3", "m4"}, texts(bob.received()))

	pending, err = f.messages.CountPending(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, pending)

	// A reconnect must not push anything again.
	f.svc.Disconnect(ctx, bobConn)
	again, _ := f.connect(t, "bob")
	assert.Empty(t, again.received())
}

func TestDelivery_OnlineRecipientGetsImmediatePush(t *testing.T) {
	ctx := context.Background()
	f := newDeliveryFixture(t, config.DeliveryConfig{})

	_, alice := f.connect(t, "alice")
	bob, _ := f.connect(t, "bob")

	msg, err := f.svc.Send(ctx, alice, "bob", "hi")
	require.NoError(t, err)
	assert.True(t, msg.Delivered)

	got := bob.received()
	require.Len(t, got, 1)
	assert.Equal(t, msg.ID, got[0].ID)
	assert.Equal(t, "alice", got[0].FromUser)
	assert.True(t, got[0].Delivered)

	pending, err := f.messages.PendingFor(ctx, "bob", "", 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDelivery_FailedPushStaysQueued(t *testing.T) {
	ctx := context.Background()
	f := newDeliveryFixture(t, config.DeliveryConfig{})

	_, alice := f.connect(t, "alice")
	bob, _ := f.connect(t, "bob")
	bob.failWith(errors.New("broken pipe"))

	msg, err := f.svc.Send(ctx, alice, "bob", "hi")
	require.NoError(t, err, "the sender never sees a push failure")
	assert.False(t, msg.Delivered)

	_, ok := f.hub.Lookup("bob")
	assert.False(t, ok, "stale handle is unregistered")
	assert.True(t, bob.isClosed())

	pending, err := f.messages.PendingFor(ctx, "bob", "", 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, msg.ID, pending[0].ID)

	fresh, _ := f.connect(t, "bob")
	assert.Equal(t, []string{"hi"}, texts(fresh.received()))
}

func TestDelivery_FlushFailureAbortsConnect(t *testing.T) {
	ctx := context.Background()
	f := newDeliveryFixture(t, config.DeliveryConfig{})

	_, alice := f.connect(t, "alice")
	_, err := f.svc.Send(ctx, alice, "bob", "hi")
	require.NoError(t, err)

	broken := newFakeHandle("bob")
	broken.failWith(errors.New("reset by peer"))

	conn, err := f.svc.Connect(ctx, broken)
	assert.Error(t, err)
	assert.Nil(t, conn)
	assert.True(t, broken.isClosed())

	_, ok := f.hub.Lookup("bob")
	assert.False(t, ok)

	pending, err := f.messages.CountPending(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)
}

func TestDelivery_BacklogCap(t *testing.T) {
	ctx := context.Background()
	f := newDeliveryFixture(t, config.DeliveryConfig{MaxBacklog: 2})

	_, alice := f.connect(t, "alice")
	for i := 0; i < 2; i++ {
		_, err := f.svc.Send(ctx, alice, "bob", "queued")
		require.NoError(t, err)
	}

	_, err := f.svc.Send(ctx, alice, "bob", "one too many")
	assert.ErrorIs(t, err, ErrBacklogFull)

	pending, err := f.messages.CountPending(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(2), pending)
}

func TestDelivery_SendValidation(t *testing.T) {
	ctx := context.Background()
	f := newDeliveryFixture(t, config.DeliveryConfig{})
	_, alice := f.connect(t, "alice")

	_, err := f.svc.Send(ctx, alice, "", "hi")
	assert.ErrorIs(t, err, ErrInvalidMessage)
	_, err = f.svc.Send(ctx, alice, "bob", "   ")
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestDelivery_DisconnectClosesConnection(t *testing.T) {
	ctx := context.Background()
	f := newDeliveryFixture(t, config.DeliveryConfig{})

	handle, alice := f.connect(t, "alice")
	f.svc.Disconnect(ctx, alice)
	f.svc.Disconnect(ctx, alice)

	assert.Equal(t, domain.ConnClosed, alice.State())
	assert.True(t, handle.isClosed())
	_, ok := f.hub.Lookup("alice")
	assert.False(t, ok)

	_, err := f.svc.Send(ctx, alice, "bob", "hi")
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestDelivery_ReconnectEvictsAndOldDisconnectIsHarmless(t *testing.T) {
	ctx := context.Background()
	f := newDeliveryFixture(t, config.DeliveryConfig{})

	oldHandle, oldConn := f.connect(t, "bob")
	newHandle, _ := f.connect(t, "bob")
	assert.True(t, oldHandle.isClosed())

	f.svc.Disconnect(ctx, oldConn)

	got, ok := f.hub.Lookup("bob")
	require.True(t, ok)
	assert.Equal(t, newHandle.ID(), got.ID())
}

func TestDelivery_ConcurrentSendsDuringConnect(t *testing.T) {
	ctx := context.Background()
	f := newDeliveryFixture(t, config.DeliveryConfig{FlushBatchSize: 3})

	const senders, perSender = 5, 10
	conns := make([]*Conn, senders)
	for i := range conns {
		_, conns[i] = f.connect(t, fmt.Sprintf("sender%d", i))
	}

	bob := newFakeHandle("bob")
	var wg sync.WaitGroup
	for i, conn := range conns {
		wg.Add(1)
		go func(i int, conn *Conn) {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				_, err := f.svc.Send(ctx, conn, "bob", fmt.Sprintf("s%d-%d", i, j))
				assert.NoError(t, err)
			}
		}(i, conn)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := f.svc.Connect(ctx, bob)
		assert.NoError(t, err)
	}()
	wg.Wait()

	got := bob.received()
	require.Len(t, got, senders*perSender, "every message pushed exactly once")

	ids := make([]string, 0, len(got))
	seen := make(map[string]bool)
	for _, p := range got {
		assert.False(t, seen[p.ID], "message %s pushed twice", p.ID)
		seen[p.ID] = true
		ids = append(ids, p.ID)
	}
	assert.True(t, sort.StringsAreSorted(ids), "pushes follow store order")

	pending, err := f.messages.CountPending(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestDelivery_HistoryIsDirectionless(t *testing.T) {
	ctx := context.Background()
	f := newDeliveryFixture(t, config.DeliveryConfig{})

	_, alice := f.connect(t, "alice")
	_, bob := f.connect(t, "bob")

	var want []string
	for i := 0; i < 6; i++ {
		from, to := alice, "bob"
		if i%2 == 1 {
			from, to = bob, "alice"
		}
		text := fmt.Sprintf("m%d", i)
		_, err := f.svc.Send(ctx, from, to, text)
		require.NoError(t, err)
		want = append(want, text)
	}

	history, err := f.svc.History(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, history, len(want))
	for i, m := range history {
		assert.Equal(t, want[i], m.Text)
		assert.True(t, m.Delivered)
	}
}

func TestKeyedMutex_ForgetsIdleKeys(t *testing.T) {
	k := newKeyedMutex()
	unlockA := k.Lock("a")
	unlockB := k.Lock("b")
	assert.Equal(t, 2, k.size())

	unlockA()
	unlockB()
	assert.Equal(t, 0, k.size())
}
