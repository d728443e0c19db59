// Package usage enforces the free-tier quota per session and tool.
package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/promptstudio/promptstudio/internal/metrics"
	"github.com/promptstudio/promptstudio/internal/store"
)

// FreeLimit is the number of generations a free account gets per session and tool.
const FreeLimit = 3

// ErrSessionNotFound is returned for tokens with no live session.
var ErrSessionNotFound = store.ErrSessionNotFound

// Decision is the outcome of a metering check.
type Decision int

const (
	Allowed Decision = iota + 1
	LimitReached
)

func (d Decision) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case LimitReached:
		return "limit_reached"
	default:
		return "unknown"
	}
}

// EntitledFunc reports whether the named account is exempt from metering.
type EntitledFunc func(ctx context.Context, name string) (bool, error)

// Meter checks and consumes free-tier usage.
type Meter struct {
	sessions store.SessionStore
	metrics  metrics.Recorder
	logger   *slog.Logger
}

// NewMeter creates a Meter over the given session store.
func NewMeter(sessions store.SessionStore, rec metrics.Recorder, logger *slog.Logger) *Meter {
	return &Meter{
		sessions: sessions,
		metrics:  rec,
		logger:   logger.With("component", "usage"),
	}
}

// CheckAndConsume decides whether the session may use tool once more. Paid
// accounts are always allowed and their counters are left alone. Free
// accounts are allowed while the counter is below FreeLimit, consuming one
// unit; the check and the increment are a single atomic store operation.
func (m *Meter) CheckAndConsume(ctx context.Context, token, tool string, isPaid EntitledFunc) (Decision, error) {
	sess, err := m.sessions.GetSession(ctx, token)
	if err != nil {
		return 0, fmt.Errorf("get session: %w", err)
	}
	if sess == nil {
		return 0, ErrSessionNotFound
	}

	paid, err := isPaid(ctx, sess.AccountName)
	if err != nil {
		return 0, fmt.Errorf("check entitlement: %w", err)
	}
	if paid {
		m.record(tool, Allowed, sess.AccountName, -1)
		return Allowed, nil
	}

	count, ok, err := m.sessions.IncrementUsage(ctx, token, tool, FreeLimit)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return 0, ErrSessionNotFound
		}
		return 0, fmt.Errorf("increment usage: %w", err)
	}

	d := Allowed
	if !ok {
		d = LimitReached
	}
	m.record(tool, d, sess.AccountName, count)
	return d, nil
}

// CurrentCount returns the counter for (token, tool), zero when either is unknown.
func (m *Meter) CurrentCount(ctx context.Context, token, tool string) (int, error) {
	return m.sessions.GetUsage(ctx, token, tool)
}

// Remaining returns how many free uses are left at count.
func Remaining(count int) int {
	return max(FreeLimit-count, 0)
}

func (m *Meter) record(tool string, d Decision, account string, count int) {
	m.metrics.RecordUsageDecision(tool, d.String())
	if d == LimitReached {
		m.logger.Info("free limit reached", "tool", tool, "account", account, "count", count)
		return
	}
	m.logger.Debug("usage allowed", "tool", tool, "account", account, "count", count)
}
