package auth

import (
	"context"
	"errors"
	"fmt"

	"magicstream/internal/audit"
	"magicstream/internal/tokens"
	"magicstream/internal/users"
	"magicstream/pkg/logger"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserAlreadyExists  = errors.New("user already exists")
)

// TokenService is what the auth feature needs from the token lifecycle.
type TokenService interface {
	Issue(ctx context.Context, user *users.User) (*tokens.Pair, error)
	ValidateAndRefresh(ctx context.Context, refreshToken string) (*tokens.Pair, error)
	Revoke(ctx context.Context, identity string) error
	RefreshIdentity(refreshToken string) (string, error)
}

// PasswordHasher hashes and checks passwords.
type PasswordHasher interface {
	Hash(secret string) (string, error)
	Verify(hash, candidate string) bool
}

type Service interface {
	Register(ctx context.Context, req *RegisterRequest) (*users.User, *tokens.Pair, error)
	Login(ctx context.Context, req *LoginRequest) (*users.User, *tokens.Pair, error)
	Refresh(ctx context.Context, refreshToken string) (*tokens.Pair, error)
	Logout(ctx context.Context, principalID, refreshToken string)
	ChangePassword(ctx context.Context, userID string, req *ChangePasswordRequest) error
	Profile(ctx context.Context, userID string) (*users.User, error)
	RevokeUser(ctx context.Context, userID string) error
}

type service struct {
	repo   users.Repository
	tokens TokenService
	hasher PasswordHasher
	audit  audit.Publisher
	log    *logger.Logger
}

func NewService(repo users.Repository, tokenService TokenService, hasher PasswordHasher, publisher audit.Publisher, log *logger.Logger) Service {
	if publisher == nil {
		publisher = audit.NopPublisher{}
	}
	return &service{
		repo:   repo,
		tokens: tokenService,
		hasher: hasher,
		audit:  publisher,
		log:    log,
	}
}

func (s *service) Register(ctx context.Context, req *RegisterRequest) (*users.User, *tokens.Pair, error) {
	exists, err := s.repo.EmailExists(ctx, req.Email)
	if err != nil {
		return nil, nil, err
	}
	if exists {
		return nil, nil, ErrUserAlreadyExists
	}

	hashedPassword, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	user := &users.User{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  hashedPassword,
		Role:      users.RoleUser,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, nil, err
	}

	pair, err := s.tokens.Issue(ctx, user)
	if err != nil {
		s.publish(ctx, audit.EventTypeRegister, user.Identity(), tokens.Reason(err))
		return nil, nil, err
	}

	s.publish(ctx, audit.EventTypeRegister, user.Identity(), "")
	return user, pair, nil
}

func (s *service) Login(ctx context.Context, req *LoginRequest) (*users.User, *tokens.Pair, error) {
	user, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			s.publish(ctx, audit.EventTypeLogin, "", "unknown_email")
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	if !s.hasher.Verify(user.Password, req.Password) {
		s.publish(ctx, audit.EventTypeLogin, user.Identity(), "bad_password")
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := s.tokens.Issue(ctx, user)
	if err != nil {
		s.publish(ctx, audit.EventTypeLogin, user.Identity(), tokens.Reason(err))
		return nil, nil, err
	}

	s.log.LogAuthSuccess(ctx, user.Identity(), "password")
	s.publish(ctx, audit.EventTypeLogin, user.Identity(), "")
	return user, pair, nil
}

func (s *service) Refresh(ctx context.Context, refreshToken string) (*tokens.Pair, error) {
	return s.tokens.ValidateAndRefresh(ctx, refreshToken)
}

// Logout never fails. The identity comes from the access token when the
// caller still has a valid one, otherwise from the signature-checked refresh
// token.
func (s *service) Logout(ctx context.Context, principalID, refreshToken string) {
	identity := principalID
	if identity == "" && refreshToken != "" {
		id, err := s.tokens.RefreshIdentity(refreshToken)
		if err == nil {
			identity = id
		}
	}
	if identity == "" {
		return
	}

	if err := s.tokens.Revoke(ctx, identity); err != nil {
		s.log.LogRevokeFailed(ctx, identity, err)
		s.publish(ctx, audit.EventTypeLogout, identity, tokens.Reason(err))
		return
	}
	s.publish(ctx, audit.EventTypeLogout, identity, "")
}

// ChangePassword also revokes the refresh token so other sessions have to log
// in again once their access token runs out.
func (s *service) ChangePassword(ctx context.Context, userID string, req *ChangePasswordRequest) error {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	if !s.hasher.Verify(user.Password, req.CurrentPassword) {
		return ErrInvalidCredentials
	}

	hashedPassword, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.UpdateUserPassword(ctx, userID, hashedPassword); err != nil {
		return err
	}

	if err := s.tokens.Revoke(ctx, userID); err != nil {
		s.log.LogRevokeFailed(ctx, userID, err)
	}
	return nil
}

func (s *service) Profile(ctx context.Context, userID string) (*users.User, error) {
	return s.repo.GetUserByID(ctx, userID)
}

func (s *service) RevokeUser(ctx context.Context, userID string) error {
	if _, err := s.repo.GetUserByID(ctx, userID); err != nil {
		return err
	}
	return s.tokens.Revoke(ctx, userID)
}

// publish records an audit event; an empty reason means success.
func (s *service) publish(ctx context.Context, eventType audit.EventType, userID, reason string) {
	outcome := audit.OutcomeSuccess
	if reason != "" {
		outcome = audit.OutcomeFailure
	}
	if err := s.audit.Publish(ctx, audit.NewEvent(eventType, userID, outcome, reason)); err != nil {
		s.log.ErrorWithContext(ctx, "audit publish failed", err, map[string]interface{}{
			"event_type": string(eventType),
		})
	}
}
