package tokens

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"magicstream/internal/audit"
	"magicstream/internal/users"
	"magicstream/pkg/logger"
	"magicstream/pkg/metrics"
)

// Config is read once at startup and never mutated afterwards.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	// StoreTimeout bounds every store round trip.
	StoreTimeout time.Duration
}

func (c Config) validate() error {
	switch {
	case len(c.AccessSecret) == 0:
		return errors.New("access token secret is required")
	case len(c.RefreshSecret) == 0:
		return errors.New("refresh token secret is required")
	case bytes.Equal(c.AccessSecret, c.RefreshSecret):
		return errors.New("access and refresh secrets must differ")
	case c.AccessTTL <= 0 || c.RefreshTTL <= 0:
		return errors.New("token lifetimes must be positive")
	case c.StoreTimeout <= 0:
		return errors.New("store timeout must be positive")
	}
	return nil
}

// UserLookup resolves an identity to its current user record.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*users.User, error)
}

type Option func(*Service)

func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.log = l }
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAuditPublisher(p audit.Publisher) Option {
	return func(s *Service) { s.audit = p }
}

// WithClock replaces time.Now; expiry is always judged against this clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service implements issue, stateless access validation, refresh rotation and
// revocation. It is safe for concurrent use; the store is the only point of
// synchronization.
type Service struct {
	cfg     Config
	store   Store
	users   UserLookup
	hasher  *Hasher
	log     *logger.Logger
	metrics *metrics.Recorder
	audit   audit.Publisher
	now     func() time.Time
}

func NewService(cfg Config, store Store, lookup UserLookup, hasher *Hasher, opts ...Option) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	s := &Service{
		cfg:    cfg,
		store:  store,
		users:  lookup,
		hasher: hasher,
		log:    logger.GetDefault(),
		audit:  audit.NopPublisher{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue mints a new access/refresh pair for user and persists the refresh
// hash, superseding any earlier refresh token. Tokens are only returned once
// the hash is stored.
func (s *Service) Issue(ctx context.Context, user *users.User) (*Pair, error) {
	pair, hash, err := s.mint(user)
	if err != nil {
		return nil, err
	}

	identity := user.Identity()
	if err := s.withStore(ctx, "save", func(ctx context.Context) error {
		return s.store.SaveRefreshHash(ctx, identity, hash)
	}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}

	s.metrics.TokenIssued()
	s.log.LogTokenIssued(ctx, identity, pair.RefreshExpiresAt)
	return pair, nil
}

// ValidateAccess checks signature, type and expiry of an access token. It
// performs no I/O.
func (s *Service) ValidateAccess(tokenString string) (*Claims, error) {
	claims, err := s.verify(tokenString, TypeAccess)
	if err == nil {
		err = s.checkExpiry(claims)
	}
	if err != nil {
		s.metrics.ValidationFailed(Reason(err))
		return nil, err
	}
	return claims, nil
}

// ValidateAndRefresh exchanges a refresh token for a new pair. The presented
// token is invalidated by the rotation; a concurrent call presenting the same
// token loses the compare-and-swap and gets ErrRevoked.
func (s *Service) ValidateAndRefresh(ctx context.Context, refreshToken string) (*Pair, error) {
	pair, identity, err := s.refresh(ctx, refreshToken)
	if err != nil {
		outcome := metrics.OutcomeRejected
		if !IsAuthFailure(err) {
			outcome = metrics.OutcomeUnavailable
		}
		s.metrics.Refresh(outcome)
		s.log.LogRefreshRejected(ctx, identity, Reason(err))
		s.publish(ctx, audit.NewEvent(audit.EventTypeRefresh, identity, audit.OutcomeFailure, Reason(err)))
		return nil, err
	}

	s.metrics.Refresh(metrics.OutcomeRotated)
	s.publish(ctx, audit.NewEvent(audit.EventTypeRefresh, identity, audit.OutcomeSuccess, ""))
	return pair, nil
}

func (s *Service) refresh(ctx context.Context, refreshToken string) (*Pair, string, error) {
	claims, err := s.verify(refreshToken, TypeRefresh)
	if err != nil {
		return nil, "", err
	}
	identity := claims.UserID
	if err := s.checkExpiry(claims); err != nil {
		return nil, identity, err
	}

	var stored string
	err = s.withStore(ctx, "load", func(ctx context.Context) error {
		var loadErr error
		stored, loadErr = s.store.LoadRefreshHash(ctx, identity)
		return loadErr
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, identity, ErrRevoked
		}
		return nil, identity, err
	}

	if !s.hasher.Verify(stored, refreshToken) {
		return nil, identity, ErrRevoked
	}

	user, err := s.users.GetUserByID(ctx, identity)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return nil, identity, ErrNotFound
		}
		return nil, identity, wrapUnavailable(err)
	}

	pair, next, err := s.mint(user)
	if err != nil {
		return nil, identity, err
	}

	err = s.withStore(ctx, "swap", func(ctx context.Context) error {
		return s.store.SwapRefreshHash(ctx, identity, stored, next)
	})
	if err != nil {
		if errors.Is(err, ErrHashMismatch) || errors.Is(err, ErrNotFound) {
			return nil, identity, ErrRevoked
		}
		return nil, identity, err
	}

	s.metrics.TokenIssued()
	s.log.LogTokenIssued(ctx, identity, pair.RefreshExpiresAt)
	return pair, identity, nil
}

// Revoke drops the user's refresh token. Access tokens already handed out
// stay valid until they expire.
func (s *Service) Revoke(ctx context.Context, identity string) error {
	err := s.withStore(ctx, "clear", func(ctx context.Context) error {
		return s.store.ClearRefreshHash(ctx, identity)
	})
	if err != nil {
		s.publish(ctx, audit.NewEvent(audit.EventTypeRevoke, identity, audit.OutcomeFailure, Reason(err)))
		return err
	}

	s.metrics.Revoked()
	s.publish(ctx, audit.NewEvent(audit.EventTypeRevoke, identity, audit.OutcomeSuccess, ""))
	return nil
}

// RefreshIdentity returns the user a refresh token was issued to. Signature
// and type are checked, expiry is not: an expired but authentic token is
// still good enough to log its owner out.
func (s *Service) RefreshIdentity(refreshToken string) (string, error) {
	claims, err := s.verify(refreshToken, TypeRefresh)
	if err != nil {
		return "", err
	}
	if claims.UserID == "" {
		return "", ErrMalformed
	}
	return claims.UserID, nil
}

// AccessTTL and RefreshTTL drive cookie lifetimes in the HTTP layer.
func (s *Service) AccessTTL() time.Duration  { return s.cfg.AccessTTL }
func (s *Service) RefreshTTL() time.Duration { return s.cfg.RefreshTTL }

func (s *Service) mint(user *users.User) (*Pair, string, error) {
	now := s.now()
	identity := user.Identity()
	accessExp := now.Add(s.cfg.AccessTTL)
	refreshExp := now.Add(s.cfg.RefreshTTL)

	access := &Claims{
		Type:             TypeAccess,
		UserID:           identity,
		FirstName:        user.FirstName,
		LastName:         user.LastName,
		Email:            user.Email,
		Role:             string(user.Role),
		RegisteredClaims: s.registered(identity, now, accessExp),
	}
	accessToken, err := Sign(access, s.cfg.AccessSecret)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrTokenGenerationFailed, err)
	}

	refresh := &Claims{
		Type:             TypeRefresh,
		UserID:           identity,
		Email:            user.Email,
		Role:             string(user.Role),
		RegisteredClaims: s.registered(identity, now, refreshExp),
	}
	refreshToken, err := Sign(refresh, s.cfg.RefreshSecret)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrTokenGenerationFailed, err)
	}

	hash, err := s.hasher.Hash(refreshToken)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrTokenGenerationFailed, err)
	}

	return &Pair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, hash, nil
}

// registered fills the standard claims. The random jti keeps two tokens
// minted within the same second distinct.
func (s *Service) registered(identity string, now, exp time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   identity,
		Issuer:    s.cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
}

func (s *Service) verify(tokenString string, want TokenType) (*Claims, error) {
	secret := s.cfg.AccessSecret
	if want == TypeRefresh {
		secret = s.cfg.RefreshSecret
	}

	claims, err := Parse(tokenString, secret)
	if err != nil {
		// A well-formed token of the other kind fails the signature check
		// because it was signed with the other secret.
		if errors.Is(err, ErrInvalidSignature) {
			if peeked, peekErr := PeekType(tokenString); peekErr == nil && peeked.Valid() && peeked != want {
				return nil, ErrWrongTokenType
			}
		}
		return nil, err
	}
	if claims.Type != want {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

func (s *Service) checkExpiry(claims *Claims) error {
	exp := claims.ExpiresAtTime()
	if exp.IsZero() || !s.now().Before(exp) {
		return ErrExpired
	}
	return nil
}

func (s *Service) withStore(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	if err != nil && ctx.Err() != nil && !errors.Is(err, ErrStoreUnavailable) {
		err = wrapUnavailable(err)
	}

	// not-found and mismatch are answers, not failures
	logErr := err
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrHashMismatch) {
		logErr = nil
	}
	s.log.LogStoreCall(ctx, op, time.Since(start), logErr)
	return err
}

func (s *Service) publish(ctx context.Context, event audit.Event) {
	if err := s.audit.Publish(ctx, event); err != nil {
		s.log.ErrorWithContext(ctx, "audit publish failed", err, map[string]interface{}{
			"event_type": string(event.Type),
		})
	}
}
