package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/weiawesome/wes-dm-relay/pkg/log"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/audit"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/config"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/domain"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/events"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/hub"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/repository"
)

// Conn is one client connection as seen by the delivery pipeline.
type Conn struct {
	handle hub.Handle
	state  atomic.Int32
}

func newConn(handle hub.Handle) *Conn {
	c := &Conn{handle: handle}
	c.state.Store(int32(domain.ConnConnecting))
	return c
}

func (c *Conn) Username() string { return c.handle.Username() }

func (c *Conn) State() domain.ConnState { return domain.ConnState(c.state.Load()) }

type deliveryServiceImpl struct {
	hub        *hub.Hub
	messages   repository.MessageRepository
	publisher  events.Publisher
	locks      *keyedMutex
	maxBacklog int64
	batchSize  int
}

func NewDeliveryService(
	h *hub.Hub,
	messages repository.MessageRepository,
	publisher events.Publisher,
	cfg config.DeliveryConfig,
) DeliveryService {
	batch := cfg.FlushBatchSize
	if batch <= 0 {
		batch = 100
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &deliveryServiceImpl{
		hub:        h,
		messages:   messages,
		publisher:  publisher,
		locks:      newKeyedMutex(),
		maxBacklog: cfg.MaxBacklog,
		batchSize:  batch,
	}
}

// Connect holds the user's delivery lock across registration and flush, so
// live sends to this user wait until the backlog has gone out.
func (s *deliveryServiceImpl) Connect(ctx context.Context, handle hub.Handle) (*Conn, error) {
	username := handle.Username()
	ctx = log.WithUsername(ctx, username)
	l := log.Ctx(ctx)

	conn := newConn(handle)

	unlock := s.locks.Lock(username)
	defer unlock()

	s.hub.Register(handle)

	flushed, err := s.flush(ctx, handle)
	if err != nil {
		s.hub.Unregister(username, handle)
		handle.Close()
		conn.state.Store(int32(domain.ConnClosed))
		l.Warn().Err(err).Int("flushed", flushed).Msg("backlog flush failed, connection dropped")
		return nil, err
	}

	conn.state.Store(int32(domain.ConnActive))
	audit.Log(ctx, audit.ActionConnect, username, "connection opened")
	l.Info().
		Str(log.FieldConnID, handle.ID()).
		Int("flushed", flushed).
		Msg("client connected")
	return conn, nil
}

// flush pushes the backlog page by page in id order. The caller holds the
// recipient's lock.
func (s *deliveryServiceImpl) flush(ctx context.Context, handle hub.Handle) (int, error) {
	recipient := handle.Username()
	afterID := ""
	flushed := 0

	for {
		page, err := s.messages.PendingFor(ctx, recipient, afterID, s.batchSize)
		if err != nil {
			return flushed, fmt.Errorf("load backlog: %w", err)
		}

		for _, msg := range page {
			if err := handle.Send(msg.Payload()); err != nil {
				return flushed, fmt.Errorf("push message %s: %w", msg.ID, err)
			}
			if err := s.messages.MarkDelivered(ctx, msg.ID); err != nil {
				return flushed, fmt.Errorf("mark message %s delivered: %w", msg.ID, err)
			}
			msg.Delivered = true
			flushed++
			events.Emit(ctx, s.publisher, events.New(events.TypeMessageDelivered, recipient, msg))
			afterID = msg.ID
		}

		if len(page) < s.batchSize {
			return flushed, nil
		}
	}
}

func (s *deliveryServiceImpl) Send(ctx context.Context, conn *Conn, to, text string) (*domain.Message, error) {
	if conn == nil || conn.State() != domain.ConnActive {
		return nil, ErrConnectionClosed
	}

	to = strings.TrimSpace(to)
	if to == "" || strings.TrimSpace(text) == "" {
		return nil, ErrInvalidMessage
	}

	from := conn.Username()
	l := log.Ctx(ctx).With().
		Str(log.FieldFromUser, from).
		Str(log.FieldToUser, to).
		Logger()

	unlock := s.locks.Lock(to)
	defer unlock()

	if s.maxBacklog > 0 {
		pending, err := s.messages.CountPending(ctx, to)
		if err != nil {
			return nil, fmt.Errorf("count backlog: %w", err)
		}
		if pending >= s.maxBacklog {
			return nil, ErrBacklogFull
		}
	}

	msg, err := s.messages.Append(ctx, from, to, text)
	if err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}
	events.Emit(ctx, s.publisher, events.New(events.TypeMessageStored, to, msg))

	err = s.hub.Deliver(to, msg.Payload())
	switch {
	case err == nil:
		if err := s.messages.MarkDelivered(ctx, msg.ID); err != nil {
			// Pushed but still flagged undelivered; the next connect resends it.
			l.Error().Err(err).Str(log.FieldMessageID, msg.ID).Msg("failed to mark message delivered")
			return msg, nil
		}
		msg.Delivered = true
		events.Emit(ctx, s.publisher, events.New(events.TypeMessageDelivered, to, msg))
	case errors.Is(err, hub.ErrNotConnected):
		l.Debug().Str(log.FieldMessageID, msg.ID).Msg("recipient offline, message queued")
	default:
		l.Warn().Err(err).Str(log.FieldMessageID, msg.ID).Msg("live push failed, message queued")
	}
	return msg, nil
}

func (s *deliveryServiceImpl) Disconnect(ctx context.Context, conn *Conn) {
	if conn == nil {
		return
	}
	if prev := domain.ConnState(conn.state.Swap(int32(domain.ConnClosed))); prev == domain.ConnClosed {
		return
	}

	username := conn.Username()
	removed := s.hub.Unregister(username, conn.handle)
	conn.handle.Close()

	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldUsername, username).
		Str(log.FieldConnID, conn.handle.ID()).
		Bool("was_current", removed).
		Msg("client disconnected")
}

func (s *deliveryServiceImpl) History(ctx context.Context, userA, userB string) ([]*domain.Message, error) {
	messages, err := s.messages.History(ctx, userA, userB)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return messages, nil
}
