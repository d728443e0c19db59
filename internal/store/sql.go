package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// sqlStore holds the queries shared by the SQLite and PostgreSQL stores.
// Queries are written with "?" placeholders and rebound per dialect.
type sqlStore struct {
	db       *sql.DB
	dollarPH bool // rewrite "?" to "$n" (PostgreSQL)
}

func (s *sqlStore) q(query string) string {
	if !s.dollarPH {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) CreateAccount(ctx context.Context, acct *Account) error {
	res, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO accounts (id, name, secret_hash, paid, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (name) DO NOTHING`),
		acct.ID, acct.Name, acct.SecretHash, acct.Paid, acct.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	if n == 0 {
		return ErrAccountExists
	}
	return nil
}

func (s *sqlStore) GetAccount(ctx context.Context, name string) (*Account, error) {
	var (
		a      Account
		paidAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, s.q(
		"SELECT id, name, secret_hash, paid, created_at, paid_at FROM accounts WHERE name = ?"), name,
	).Scan(&a.ID, &a.Name, &a.SecretHash, &a.Paid, &a.CreatedAt, &paidAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if paidAt.Valid {
		a.PaidAt = &paidAt.Time
	}
	return &a, nil
}

func (s *sqlStore) SetAccountPaid(ctx context.Context, name string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(
		"UPDATE accounts SET paid = ?, paid_at = COALESCE(paid_at, ?) WHERE name = ?"),
		true, at.UTC(), name,
	)
	if err != nil {
		return false, fmt.Errorf("update account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update account: %w", err)
	}
	return n > 0, nil
}

func (s *sqlStore) CreateSession(ctx context.Context, sess *Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.q(
		"INSERT INTO sessions (token, account_name, created_at) VALUES (?, ?, ?)"),
		sess.Token, sess.AccountName, sess.CreatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	for tool, count := range sess.Usage {
		if _, err := tx.ExecContext(ctx, s.q(
			"INSERT INTO session_usage (token, tool, count) VALUES (?, ?, ?)"),
			sess.Token, tool, count,
		); err != nil {
			return fmt.Errorf("insert usage: %w", err)
		}
	}
	return tx.Commit()
}

func (s *sqlStore) GetSession(ctx context.Context, token string) (*Session, error) {
	sess := Session{Token: token, Usage: make(map[string]int)}
	err := s.db.QueryRowContext(ctx, s.q(
		"SELECT account_name, created_at FROM sessions WHERE token = ?"), token,
	).Scan(&sess.AccountName, &sess.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, s.q(
		"SELECT tool, count FROM session_usage WHERE token = ?"), token)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			tool  string
			count int
		)
		if err := rows.Scan(&tool, &count); err != nil {
			return nil, err
		}
		sess.Usage[tool] = count
	}
	return &sess, rows.Err()
}

func (s *sqlStore) DeleteSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, s.q("DELETE FROM sessions WHERE token = ?"), token)
	return err
}

func (s *sqlStore) IncrementUsage(ctx context.Context, token, tool string, limit int) (int, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	err = tx.QueryRowContext(ctx, s.q("SELECT 1 FROM sessions WHERE token = ?"), token).Scan(&one)
	if err == sql.ErrNoRows {
		return 0, false, ErrSessionNotFound
	}
	if err != nil {
		return 0, false, err
	}

	if _, err := tx.ExecContext(ctx, s.q(
		`INSERT INTO session_usage (token, tool, count) VALUES (?, ?, 0)
		 ON CONFLICT (token, tool) DO NOTHING`), token, tool,
	); err != nil {
		return 0, false, fmt.Errorf("init usage: %w", err)
	}

	// The conditional update is the check-and-increment; concurrent callers
	// serialize on the row.
	res, err := tx.ExecContext(ctx, s.q(
		"UPDATE session_usage SET count = count + 1 WHERE token = ? AND tool = ? AND count < ?"),
		token, tool, limit,
	)
	if err != nil {
		return 0, false, fmt.Errorf("increment usage: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("increment usage: %w", err)
	}

	var count int
	if err := tx.QueryRowContext(ctx, s.q(
		"SELECT count FROM session_usage WHERE token = ? AND tool = ?"), token, tool,
	).Scan(&count); err != nil {
		return 0, false, fmt.Errorf("read usage: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("commit: %w", err)
	}
	return count, n == 1, nil
}

func (s *sqlStore) GetUsage(ctx context.Context, token, tool string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, s.q(
		"SELECT count FROM session_usage WHERE token = ? AND tool = ?"), token, tool,
	).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return count, err
}

func (s *sqlStore) PurgeSessions(ctx context.Context, createdBefore time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.q("DELETE FROM sessions WHERE created_at < ?"), createdBefore.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
