package service

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/weiawesome/wes-dm-relay/pkg/jwt"
	"github.com/weiawesome/wes-dm-relay/pkg/log"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/audit"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/domain"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/repository"
)

type accountServiceImpl struct {
	repo       repository.UserRepository
	users      *UserDirectory
	tokens     *jwt.Manager
	bcryptCost int
}

func NewAccountService(
	repo repository.UserRepository,
	users *UserDirectory,
	tokens *jwt.Manager,
	bcryptCost int,
) AccountService {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &accountServiceImpl{
		repo:       repo,
		users:      users,
		tokens:     tokens,
		bcryptCost: bcryptCost,
	}
}

// hashSecret bcrypt-hashes a password or answer.
func (s *accountServiceImpl) hashSecret(secret string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.bcryptCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, ErrSecretTooLong
	}
	return hash, err
}

// normalizeAnswer makes recovery answers insensitive to case and padding.
func normalizeAnswer(answer string) string {
	return strings.ToLower(strings.TrimSpace(answer))
}

func (s *accountServiceImpl) Signup(ctx context.Context, req *domain.SignupRequest) (*domain.UserResponse, error) {
	l := log.Ctx(ctx)

	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, ErrInvalidUsername
	}

	passwordHash, err := s.hashSecret(req.Password)
	if err != nil {
		if !errors.Is(err, ErrSecretTooLong) {
			l.Error().Err(err).Msg("failed to hash password")
		}
		return nil, err
	}
	answerHash, err := s.hashSecret(normalizeAnswer(req.Answer))
	if err != nil {
		if !errors.Is(err, ErrSecretTooLong) {
			l.Error().Err(err).Msg("failed to hash security answer")
		}
		return nil, err
	}

	user := &domain.User{
		Username:           username,
		PasswordHash:       string(passwordHash),
		SecurityQuestion:   strings.TrimSpace(req.Question),
		SecurityAnswerHash: string(answerHash),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if !errors.Is(err, repository.ErrUsernameExists) {
			l.Error().Err(err).Msg("failed to create user")
		}
		return nil, err
	}

	audit.Log(ctx, audit.ActionSignup, user.Username, "user signed up")

	resp := user.ToResponse()
	return &resp, nil
}

func (s *accountServiceImpl) Login(ctx context.Context, req *domain.LoginRequest) (*domain.AuthResponse, error) {
	l := log.Ctx(ctx)
	username := strings.TrimSpace(req.Username)

	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			audit.Log(ctx, audit.ActionLoginFailed, username, "login failed: user not found")
			return nil, ErrInvalidCredentials
		}
		l.Error().Err(err).Msg("failed to get user by username")
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		audit.Log(ctx, audit.ActionLoginFailed, user.Username, "login failed: wrong password")
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Generate(user.Username)
	if err != nil {
		l.Error().Err(err).Str(log.FieldUsername, user.Username).Msg("failed to generate token")
		return nil, err
	}

	audit.Log(ctx, audit.ActionLogin, user.Username, "user logged in")

	return &domain.AuthResponse{
		Username:    user.Username,
		AccessToken: token,
		ExpiresAt:   expiresAt,
	}, nil
}

func (s *accountServiceImpl) RecoveryQuestion(ctx context.Context, username string) (*domain.RecoveryQuestionResponse, error) {
	profile, err := s.users.Profile(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}
	return &domain.RecoveryQuestionResponse{
		Username: profile.Username,
		Question: profile.SecurityQuestion,
	}, nil
}

func (s *accountServiceImpl) VerifyRecovery(ctx context.Context, req *domain.VerifyRecoveryRequest) error {
	if _, err := s.checkAnswer(ctx, req.Username, req.Answer); err != nil {
		return err
	}
	audit.Log(ctx, audit.ActionRecoveryVerified, strings.TrimSpace(req.Username), "security answer verified")
	return nil
}

func (s *accountServiceImpl) ResetPassword(ctx context.Context, req *domain.ResetPasswordRequest) error {
	l := log.Ctx(ctx)

	user, err := s.checkAnswer(ctx, req.Username, req.Answer)
	if err != nil {
		return err
	}

	hash, err := s.hashSecret(req.NewPassword)
	if err != nil {
		if !errors.Is(err, ErrSecretTooLong) {
			l.Error().Err(err).Msg("failed to hash password")
		}
		return err
	}
	if err := s.repo.UpdatePassword(ctx, user.Username, string(hash)); err != nil {
		return err
	}

	audit.Log(ctx, audit.ActionResetPassword, user.Username, "password reset")
	return nil
}

func (s *accountServiceImpl) checkAnswer(ctx context.Context, username, answer string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.SecurityAnswerHash), []byte(normalizeAnswer(answer))); err != nil {
		audit.Log(ctx, audit.ActionRecoveryFailed, username, "security answer rejected")
		return nil, ErrIncorrectAnswer
	}
	return user, nil
}

func (s *accountServiceImpl) ListUsers(ctx context.Context) ([]domain.UserResponse, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]domain.UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, u.ToResponse())
	}
	return out, nil
}
