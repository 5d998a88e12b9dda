package hub

import (
	"errors"
	"fmt"
	"sync"

	"github.com/weiawesome/wes-dm-relay/pkg/log"
)

var ErrNotConnected = errors.New("user is not connected")

// Handle is a live connection bound to one user.
type Handle interface {
	ID() string
	Username() string
	Send(payload interface{}) error
	Close() error
}

// Hub owns the username -> handle table. There is at most one handle per
// username; callers go through Deliver rather than keeping handles around.
type Hub struct {
	clients map[string]Handle
	mu      sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]Handle),
	}
}

// Register installs handle for its username. A previous handle for the same
// username is removed and closed, and returned.
func (h *Hub) Register(handle Handle) Handle {
	username := handle.Username()

	h.mu.Lock()
	prev, ok := h.clients[username]
	h.clients[username] = handle
	h.mu.Unlock()

	l := log.L()
	if ok && prev != handle {
		prev.Close()
		l.Info().
			Str(log.FieldUsername, username).
			Str(log.FieldConnID, prev.ID()).
			Msg("evicted previous connection")
	} else {
		prev = nil
	}

	l.Debug().
		Str(log.FieldUsername, username).
		Str(log.FieldConnID, handle.ID()).
		Msg("client registered")
	return prev
}

func (h *Hub) Lookup(username string) (Handle, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	handle, ok := h.clients[username]
	return handle, ok
}

// Unregister removes the entry for username only if it is still handle.
// It reports whether anything was removed and is safe to call repeatedly.
func (h *Hub) Unregister(username string, handle Handle) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	current, ok := h.clients[username]
	if !ok || current != handle {
		return false
	}
	delete(h.clients, username)

	l := log.L()
	l.Debug().
		Str(log.FieldUsername, username).
		Str(log.FieldConnID, handle.ID()).
		Msg("client unregistered")
	return true
}

// Deliver pushes payload to the user's live handle. On a failed push the
// stale handle is unregistered and closed, and the transport error returned.
func (h *Hub) Deliver(username string, payload interface{}) error {
	handle, ok := h.Lookup(username)
	if !ok {
		return ErrNotConnected
	}

	if err := handle.Send(payload); err != nil {
		h.Unregister(username, handle)
		handle.Close()
		return fmt.Errorf("push to %s: %w", username, err)
	}
	return nil
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll closes and removes every handle. Used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	handles := make([]Handle, 0, len(h.clients))
	for username, handle := range h.clients {
		handles = append(handles, handle)
		delete(h.clients, username)
	}
	h.mu.Unlock()

	for _, handle := range handles {
		handle.Close()
	}
}
