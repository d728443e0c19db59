// Package store defines the account and session storage interfaces and provides
// in-memory, SQLite and PostgreSQL implementations.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrAccountExists is returned by CreateAccount when the name is taken.
	ErrAccountExists = errors.New("account already exists")
	// ErrSessionNotFound is returned by usage operations on an unknown token.
	ErrSessionNotFound = errors.New("session not found")
)

// AccountStore holds registered identities and their entitlement flag.
type AccountStore interface {
	CreateAccount(ctx context.Context, acct *Account) error
	// GetAccount returns nil, nil when no account has the given name.
	GetAccount(ctx context.Context, name string) (*Account, error)
	// SetAccountPaid marks the account as paid. It reports whether an account
	// with that name exists; a missing account is not an error.
	SetAccountPaid(ctx context.Context, name string, at time.Time) (bool, error)
}

// SessionStore maps opaque tokens to live sessions and their usage counters.
type SessionStore interface {
	CreateSession(ctx context.Context, sess *Session) error
	// GetSession returns nil, nil for unknown tokens.
	GetSession(ctx context.Context, token string) (*Session, error)
	DeleteSession(ctx context.Context, token string) error

	// IncrementUsage atomically increments the (token, tool) counter if it is
	// below limit. It returns the counter value after the call and whether
	// the increment happened.
	IncrementUsage(ctx context.Context, token, tool string, limit int) (int, bool, error)
	// GetUsage returns 0 for unknown sessions or tools.
	GetUsage(ctx context.Context, token, tool string) (int, error)

	PurgeSessions(ctx context.Context, createdBefore time.Time) (int64, error)
}

// Store is the persistence interface for the service.
type Store interface {
	AccountStore
	SessionStore

	// Health
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// Account is a registered identity. Name doubles as the purchaser email when
// matching payment confirmations.
type Account struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	SecretHash string     `json:"-"`
	Paid       bool       `json:"paid"`
	CreatedAt  time.Time  `json:"created_at"`
	PaidAt     *time.Time `json:"paid_at,omitempty"`
}

// Session is a token-addressed login with per-tool usage counters.
type Session struct {
	Token       string         `json:"-"`
	AccountName string         `json:"account_name"`
	Usage       map[string]int `json:"usage"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Count returns the usage counter for tool, defaulting to zero.
func (s *Session) Count(tool string) int {
	if s == nil || s.Usage == nil {
		return 0
	}
	return s.Usage[tool]
}
