// Package auth provides account registration, credential checks and
// token-addressed sessions.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/promptstudio/promptstudio/internal/config"
	"github.com/promptstudio/promptstudio/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountExists      = store.ErrAccountExists
	ErrInvalidInput       = errors.New("name and secret are required")
	ErrSecretTooLong      = errors.New("secret must be at most 72 bytes")
)

// tokenBytes is the raw entropy of a session token (256 bits).
const tokenBytes = 32

// maxSecretBytes is the bcrypt input limit.
const maxSecretBytes = 72

// Service handles registration, login and session resolution.
type Service struct {
	store      store.Store
	sessionTTL time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewService creates a new auth service. A zero session TTL disables expiry.
func NewService(s store.Store, cfg config.SessionConfig, logger *slog.Logger) *Service {
	return &Service{
		store:      s,
		sessionTTL: cfg.TTL.Duration,
		logger:     logger.With("component", "auth"),
		now:        time.Now,
	}
}

// Register creates a free account. An existing name is never modified.
func (s *Service) Register(ctx context.Context, name, secret string) (*store.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" || secret == "" {
		return nil, ErrInvalidInput
	}
	if len(secret) > maxSecretBytes {
		return nil, ErrSecretTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash secret: %w", err)
	}

	acct := &store.Account{
		ID:         uuid.New().String(),
		Name:       name,
		SecretHash: string(hash),
		CreatedAt:  s.now(),
	}
	if err := s.store.CreateAccount(ctx, acct); err != nil {
		if errors.Is(err, store.ErrAccountExists) {
			return nil, ErrAccountExists
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	return acct, nil
}

// Authenticate returns the account when name and secret both match. Unknown
// names and wrong secrets are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, name, secret string) (*store.Account, error) {
	acct, err := s.store.GetAccount(ctx, strings.TrimSpace(name))
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if acct == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.SecretHash), []byte(secret)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return acct, nil
}

// Login authenticates and opens a new session. Earlier sessions of the same
// account stay valid.
func (s *Service) Login(ctx context.Context, name, secret string) (string, error) {
	acct, err := s.Authenticate(ctx, name, secret)
	if err != nil {
		return "", err
	}
	return s.CreateSession(ctx, acct.Name)
}

// CreateSession opens a session for name and returns its token.
func (s *Service) CreateSession(ctx context.Context, name string) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}
	sess := &store.Session{
		Token:       token,
		AccountName: name,
		Usage:       map[string]int{},
		CreatedAt:   s.now(),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return token, nil
}

// Resolve maps a token to Authenticated or Unauthenticated. Unknown, deleted
// and expired tokens, and tokens whose account no longer exists, all resolve
// to Unauthenticated.
func (s *Service) Resolve(ctx context.Context, token string) (Result, error) {
	if token == "" {
		return Unauthenticated{}, nil
	}

	sess, err := s.store.GetSession(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess == nil {
		return Unauthenticated{}, nil
	}
	if s.expired(sess) {
		return Unauthenticated{}, nil
	}

	acct, err := s.store.GetAccount(ctx, sess.AccountName)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if acct == nil {
		return Unauthenticated{}, nil
	}

	return Authenticated{
		Name:  acct.Name,
		Token: token,
		Usage: sess.Usage,
	}, nil
}

// Logout deletes the session. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.store.DeleteSession(ctx, token)
}

// SetEntitlementPaid upgrades the account to paid. It is idempotent, and an
// unknown name is a no-op; the returned flag reports whether it matched.
func (s *Service) SetEntitlementPaid(ctx context.Context, name string) (bool, error) {
	ok, err := s.store.SetAccountPaid(ctx, name, s.now())
	if err != nil {
		return false, fmt.Errorf("set paid: %w", err)
	}
	return ok, nil
}

// IsPaid reports whether the named account is paid. Unknown names are free.
func (s *Service) IsPaid(ctx context.Context, name string) (bool, error) {
	acct, err := s.store.GetAccount(ctx, name)
	if err != nil {
		return false, fmt.Errorf("get account: %w", err)
	}
	return acct != nil && acct.Paid, nil
}

// PurgeExpired deletes sessions older than the TTL. It is a no-op when no
// TTL is configured.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	if s.sessionTTL <= 0 {
		return 0, nil
	}
	return s.store.PurgeSessions(ctx, s.now().Add(-s.sessionTTL))
}

// RunPurger calls PurgeExpired every interval until ctx is cancelled.
func (s *Service) RunPurger(ctx context.Context, interval time.Duration) {
	if s.sessionTTL <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeExpired(ctx)
			if err != nil {
				s.logger.Warn("session purge failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Info("purged expired sessions", "count", n)
			}
		}
	}
}

func (s *Service) expired(sess *store.Session) bool {
	return s.sessionTTL > 0 && s.now().Sub(sess.CreatedAt) > s.sessionTTL
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
