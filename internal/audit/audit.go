// Package audit is an optional Postgres-backed session-history log: when
// SPIRITSTREAM_AUDIT_DSN is configured, it subscribes to the event bus and
// persists every group lifecycle transition for later review, following
// the teacher's internal/auth postgres-store shape (pgxpool, a bounded
// per-operation timeout, DSN-or-nil activation).
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ScopeCreep-zip/spiritstream/internal/eventbus"
)

const defaultOperationTimeout = 5 * time.Second

// Logger persists group_state_changed events to Postgres. Zero value is
// not usable; build one with Open.
type Logger struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// Open connects to dsn and ensures the audit_log table exists. An empty
// dsn is a caller error: callers should skip building a Logger entirely
// when SPIRITSTREAM_AUDIT_DSN is unset, since audit logging is optional.
func Open(ctx context.Context, dsn string) (*Logger, error) {
	if dsn == "" {
		return nil, fmt.Errorf("audit: dsn is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("audit: open pool: %w", err)
	}

	l := &Logger{pool: pool, timeout: defaultOperationTimeout}
	if err := l.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return l, nil
}

func (l *Logger) ensureSchema(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	_, err := l.pool.Exec(opCtx, `
CREATE TABLE IF NOT EXISTS audit_log (
	id BIGSERIAL PRIMARY KEY,
	group_id TEXT NOT NULL,
	from_state TEXT NOT NULL,
	to_state TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`)
	if err != nil {
		return fmt.Errorf("audit: ensure schema: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (l *Logger) Close() {
	if l == nil || l.pool == nil {
		return
	}
	l.pool.Close()
}

// Record inserts one group-state transition.
func (l *Logger) Record(ctx context.Context, groupID, fromState, toState, reason string) error {
	opCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	_, err := l.pool.Exec(opCtx,
		`INSERT INTO audit_log (group_id, from_state, to_state, reason) VALUES ($1, $2, $3, $4)`,
		groupID, fromState, toState, reason)
	if err != nil {
		return fmt.Errorf("audit: record: %w", err)
	}
	return nil
}

// Entry is one row read back from the audit log.
type Entry struct {
	GroupID    string
	FromState  string
	ToState    string
	Reason     string
	RecordedAt time.Time
}

// Recent returns the most recent n entries, newest first.
func (l *Logger) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		n = 100
	}
	opCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	rows, err := l.pool.Query(opCtx,
		`SELECT group_id, from_state, to_state, reason, recorded_at FROM audit_log ORDER BY recorded_at DESC LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("audit: recent: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.GroupID, &e.FromState, &e.ToState, &e.Reason, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: rows: %w", err)
	}
	return entries, nil
}

// Subscribe drains bus for GroupStateChanged events and records each one,
// until ctx is cancelled. Intended to run in its own goroutine for the
// life of the process. Record failures are logged and otherwise ignored —
// the audit log is never allowed to affect group lifecycle correctness.
func (l *Logger) Subscribe(ctx context.Context, bus *eventbus.Bus, log zerolog.Logger) {
	sub := bus.Subscribe(eventbus.DefaultQueueCapacity)
	defer bus.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		bus.Unsubscribe(sub)
		close(done)
	}()

	for {
		event, ok := sub.Next()
		if !ok {
			return
		}
		if event.Name != eventbus.GroupStateChanged {
			continue
		}
		payload, ok := event.Payload.(eventbus.GroupStateChangedPayload)
		if !ok {
			continue
		}
		if err := l.Record(ctx, payload.GroupID, payload.FromState, payload.ToState, payload.Reason); err != nil {
			log.Warn().Err(err).Str("group_id", payload.GroupID).Msg("audit record failed")
			select {
			case <-done:
				return
			default:
			}
		}
	}
}
