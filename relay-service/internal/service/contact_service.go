package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/weiawesome/wes-dm-relay/pkg/log"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/audit"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/config"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/domain"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/events"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/repository"
)

type contactServiceImpl struct {
	repo      repository.ChatRequestRepository
	users     *UserDirectory
	publisher events.Publisher
	cfg       config.ContactsConfig
}

func NewContactService(
	repo repository.ChatRequestRepository,
	users *UserDirectory,
	publisher events.Publisher,
	cfg config.ContactsConfig,
) ContactService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &contactServiceImpl{
		repo:      repo,
		users:     users,
		publisher: publisher,
		cfg:       cfg,
	}
}

// normalizePair trims both usernames and rejects empty ones.
func normalizePair(from, to string) (string, string, error) {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from == "" || to == "" {
		return "", "", ErrInvalidUsername
	}
	return from, to, nil
}

func (s *contactServiceImpl) Create(ctx context.Context, from, to string) (*domain.ChatRequest, error) {
	from, to, err := normalizePair(from, to)
	if err != nil {
		return nil, err
	}
	if from == to {
		return nil, ErrSelfRequest
	}

	if s.cfg.RequireKnownUsers {
		for _, username := range []string{from, to} {
			ok, err := s.users.Exists(ctx, username)
			if err != nil {
				return nil, fmt.Errorf("look up %s: %w", username, err)
			}
			if !ok {
				return nil, fmt.Errorf("%s: %w", username, repository.ErrUserNotFound)
			}
		}
	}

	req, err := s.repo.Create(ctx, from, to)
	if err != nil {
		return nil, err
	}

	audit.LogWithTarget(ctx, audit.ActionRequestCreate, from, to, "", "chat request created")
	events.Emit(ctx, s.publisher, events.New(events.TypeRequestCreated, domain.PairKey(from, to), req))
	return req, nil
}

func (s *contactServiceImpl) Accept(ctx context.Context, from, to string) (*domain.ChatRequest, error) {
	from, to, err := normalizePair(from, to)
	if err != nil {
		return nil, err
	}

	req, err := s.repo.TransitionPending(ctx, from, to, domain.StatusAccepted)
	if err != nil {
		return nil, err
	}

	audit.LogWithTarget(ctx, audit.ActionRequestAccept, to, from, "", "chat request accepted")
	events.Emit(ctx, s.publisher, events.New(events.TypeRequestAccepted, domain.PairKey(from, to), req))
	return req, nil
}

func (s *contactServiceImpl) Reject(ctx context.Context, from, to string) error {
	from, to, err := normalizePair(from, to)
	if err != nil {
		return err
	}

	req, err := s.repo.DeletePending(ctx, from, to)
	if err != nil {
		return err
	}

	audit.LogWithTarget(ctx, audit.ActionRequestReject, to, from, "", "chat request rejected")
	events.Emit(ctx, s.publisher, events.New(events.TypeRequestRejected, domain.PairKey(from, to), req))
	return nil
}

func (s *contactServiceImpl) UpdateStatus(ctx context.Context, from, to, status string) (*domain.ChatRequest, error) {
	from, to, err := normalizePair(from, to)
	if err != nil {
		return nil, err
	}

	parsed, err := s.parseStatus(status)
	if err != nil {
		return nil, err
	}

	req, err := s.repo.UpdateLatest(ctx, from, to, parsed)
	if err != nil {
		return nil, err
	}

	if !parsed.Known() {
		l := log.Ctx(ctx)
		l.Warn().
			Str(log.FieldRequest, req.ID).
			Str("status", string(parsed)).
			Msg("custom request status stored")
	}

	audit.LogWithTarget(ctx, audit.ActionRequestStatus, from, to, string(parsed), "chat request status updated")
	events.Emit(ctx, s.publisher, events.New(events.TypeRequestStatusUpdated, domain.PairKey(from, to), req))
	return req, nil
}

// parseStatus accepts the built-in statuses case-insensitively. Anything
// else is rejected unless custom statuses are enabled.
func (s *contactServiceImpl) parseStatus(status string) (domain.RequestStatus, error) {
	trimmed := strings.TrimSpace(status)
	known := domain.RequestStatus(strings.ToLower(trimmed))
	if known.Known() {
		return known, nil
	}

	if !s.cfg.AllowCustomStatus || trimmed == "" || len(trimmed) > domain.MaxStatusLength {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return domain.RequestStatus(trimmed), nil
}

func (s *contactServiceImpl) ListPending(ctx context.Context, username string) ([]*domain.ChatRequest, error) {
	return s.repo.ListPendingFor(ctx, strings.TrimSpace(username))
}

func (s *contactServiceImpl) ListRelationships(ctx context.Context, username string) ([]domain.Relationship, error) {
	username = strings.TrimSpace(username)
	requests, err := s.repo.ListFor(ctx, username)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Relationship, 0, len(requests))
	for _, r := range requests {
		out = append(out, domain.Relationship{
			User:   r.Other(username),
			Status: r.Status,
		})
	}
	return out, nil
}
