package store

import (
	"context"
	"maps"
	"sync"
	"time"
)

// MemoryStore implements Store in process memory. Accounts and sessions are
// guarded by independent locks; all state is lost on restart.
type MemoryStore struct {
	accountsMu sync.RWMutex
	accounts   map[string]*Account

	sessionsMu sync.Mutex
	sessions   map[string]*Session
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*Account),
		sessions: make(map[string]*Session),
	}
}

func (s *MemoryStore) CreateAccount(ctx context.Context, acct *Account) error {
	s.accountsMu.Lock()
	defer s.accountsMu.Unlock()

	if _, ok := s.accounts[acct.Name]; ok {
		return ErrAccountExists
	}
	cp := *acct
	s.accounts[acct.Name] = &cp
	return nil
}

func (s *MemoryStore) GetAccount(ctx context.Context, name string) (*Account, error) {
	s.accountsMu.RLock()
	defer s.accountsMu.RUnlock()

	acct, ok := s.accounts[name]
	if !ok {
		return nil, nil
	}
	cp := *acct
	return &cp, nil
}

func (s *MemoryStore) SetAccountPaid(ctx context.Context, name string, at time.Time) (bool, error) {
	s.accountsMu.Lock()
	defer s.accountsMu.Unlock()

	acct, ok := s.accounts[name]
	if !ok {
		return false, nil
	}
	if !acct.Paid {
		acct.Paid = true
		acct.PaidAt = &at
	}
	return true, nil
}

func (s *MemoryStore) CreateSession(ctx context.Context, sess *Session) error {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	usage := make(map[string]int, len(sess.Usage))
	maps.Copy(usage, sess.Usage)
	s.sessions[sess.Token] = &Session{
		Token:       sess.Token,
		AccountName: sess.AccountName,
		Usage:       usage,
		CreatedAt:   sess.CreatedAt,
	}
	return nil
}

func (s *MemoryStore) GetSession(ctx context.Context, token string) (*Session, error) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return nil, nil
	}
	return &Session{
		Token:       sess.Token,
		AccountName: sess.AccountName,
		Usage:       maps.Clone(sess.Usage),
		CreatedAt:   sess.CreatedAt,
	}, nil
}

func (s *MemoryStore) DeleteSession(ctx context.Context, token string) error {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	delete(s.sessions, token)
	return nil
}

func (s *MemoryStore) IncrementUsage(ctx context.Context, token, tool string, limit int) (int, bool, error) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return 0, false, ErrSessionNotFound
	}
	count := sess.Usage[tool]
	if count >= limit {
		return count, false, nil
	}
	sess.Usage[tool] = count + 1
	return count + 1, true, nil
}

func (s *MemoryStore) GetUsage(ctx context.Context, token, tool string) (int, error) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return 0, nil
	}
	return sess.Usage[tool], nil
}

func (s *MemoryStore) PurgeSessions(ctx context.Context, createdBefore time.Time) (int64, error) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	var n int64
	for token, sess := range s.sessions {
		if sess.CreatedAt.Before(createdBefore) {
			delete(s.sessions, token)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
