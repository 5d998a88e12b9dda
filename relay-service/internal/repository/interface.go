package repository

import (
	"context"
	"errors"

	"github.com/weiawesome/wes-dm-relay/relay-service/internal/domain"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrUsernameExists = errors.New("username already exists")

	ErrMessageNotFound = errors.New("message not found")

	ErrRequestNotFound = errors.New("chat request not found")
	ErrRequestExists   = errors.New("an active chat request already exists for this pair")
	ErrPairBlocked     = errors.New("chat between these users is blocked")
)

// UserRepository is the identity store.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	UpdatePassword(ctx context.Context, username, passwordHash string) error
	List(ctx context.Context) ([]*domain.User, error)
}

// MessageRepository is the durable per-pair message log.
type MessageRepository interface {
	// Append assigns an id and timestamp and stores the message undelivered.
	Append(ctx context.Context, from, to, text string) (*domain.Message, error)
	// PendingFor returns undelivered messages for recipient with id > afterID,
	// in id order. limit <= 0 returns all of them.
	PendingFor(ctx context.Context, recipient, afterID string, limit int) ([]*domain.Message, error)
	CountPending(ctx context.Context, recipient string) (int64, error)
	// MarkDelivered is idempotent.
	MarkDelivered(ctx context.Context, id string) error
	History(ctx context.Context, userA, userB string) ([]*domain.Message, error)
}

// ChatRequestRepository is the request ledger.
type ChatRequestRepository interface {
	// Create stores a pending request unless the pair already has an active
	// or blocked record.
	Create(ctx context.Context, from, to string) (*domain.ChatRequest, error)
	// TransitionPending moves the pending request from -> to to status.
	TransitionPending(ctx context.Context, from, to string, status domain.RequestStatus) (*domain.ChatRequest, error)
	// DeletePending removes the pending request from -> to.
	DeletePending(ctx context.Context, from, to string) (*domain.ChatRequest, error)
	// UpdateLatest sets the status of the pair's most recent record,
	// regardless of direction.
	UpdateLatest(ctx context.Context, userA, userB string, status domain.RequestStatus) (*domain.ChatRequest, error)
	ListPendingFor(ctx context.Context, username string) ([]*domain.ChatRequest, error)
	ListFor(ctx context.Context, username string) ([]*domain.ChatRequest, error)
}
