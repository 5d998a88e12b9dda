package service

import (
	"context"
	"errors"

	"github.com/weiawesome/wes-dm-relay/relay-service/internal/domain"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/hub"
)

var (
	ErrConnectionClosed = errors.New("connection is closed")
	ErrInvalidMessage   = errors.New("message needs a recipient and non-empty text")
	ErrBacklogFull      = errors.New("recipient backlog is full")

	ErrInvalidUsername = errors.New("username must not be empty")
	ErrSelfRequest     = errors.New("cannot send a chat request to yourself")
	ErrInvalidStatus   = errors.New("invalid request status")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrIncorrectAnswer    = errors.New("incorrect security answer")
	ErrSecretTooLong      = errors.New("password or answer exceeds 72 bytes")
)

// DeliveryService runs the connection lifecycle and message delivery.
type DeliveryService interface {
	// Connect registers handle, evicting any previous connection for the
	// same user, and flushes the user's backlog in order.
	Connect(ctx context.Context, handle hub.Handle) (*Conn, error)
	// Send stores a message and attempts a live push to the recipient.
	// A failed push is not an error; the message stays queued.
	Send(ctx context.Context, conn *Conn, to, text string) (*domain.Message, error)
	Disconnect(ctx context.Context, conn *Conn)
	History(ctx context.Context, userA, userB string) ([]*domain.Message, error)
}

// ContactService applies contact-request transitions.
type ContactService interface {
	Create(ctx context.Context, from, to string) (*domain.ChatRequest, error)
	Accept(ctx context.Context, from, to string) (*domain.ChatRequest, error)
	Reject(ctx context.Context, from, to string) error
	UpdateStatus(ctx context.Context, from, to, status string) (*domain.ChatRequest, error)
	ListPending(ctx context.Context, username string) ([]*domain.ChatRequest, error)
	ListRelationships(ctx context.Context, username string) ([]domain.Relationship, error)
}

// AccountService handles signup, login and password recovery.
type AccountService interface {
	Signup(ctx context.Context, req *domain.SignupRequest) (*domain.UserResponse, error)
	Login(ctx context.Context, req *domain.LoginRequest) (*domain.AuthResponse, error)
	RecoveryQuestion(ctx context.Context, username string) (*domain.RecoveryQuestionResponse, error)
	VerifyRecovery(ctx context.Context, req *domain.VerifyRecoveryRequest) error
	ResetPassword(ctx context.Context, req *domain.ResetPasswordRequest) error
	ListUsers(ctx context.Context) ([]domain.UserResponse, error)
}
