// Package store is the durable usage record: seconds used per monthly period.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the narrow pgx surface the store needs; *pgxpool.Pool satisfies it,
// and so does a pgxmock pool in tests.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Usage persists the aggregate used-seconds keyed by period code.
type Usage struct {
	db DB
}

func NewUsage(db DB) *Usage {
	return &Usage{db: db}
}

// Init creates the usage table when it does not exist yet.
func (s *Usage) Init(ctx context.Context) error {
	const q = `
create table if not exists usage_periods (
    period_code  text primary key,
    used_seconds bigint not null default 0,
    updated_at   timestamptz not null default now()
)`
	_, err := s.db.Exec(ctx, q)
	return err
}

// GetUsed returns the recorded usage for the period; an absent row is zero.
func (s *Usage) GetUsed(ctx context.Context, periodCode string) (time.Duration, error) {
	const q = `select used_seconds from usage_periods where period_code = $1`
	var secs int64
	if err := s.db.QueryRow(ctx, q, periodCode).Scan(&secs); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return time.Duration(secs) * time.Second, nil
}

// SaveUsed upserts the usage snapshot for the period.
func (s *Usage) SaveUsed(ctx context.Context, periodCode string, used time.Duration) error {
	const q = `
insert into usage_periods (period_code, used_seconds, updated_at)
values ($1, $2, now())
on conflict (period_code) do update
set used_seconds = excluded.used_seconds, updated_at = now()`
	_, err := s.db.Exec(ctx, q, periodCode, int64(used/time.Second))
	return err
}

// Noop is the store used when no database is configured: reads are zero and
// writes vanish, so quota enforcement is process-local only.
type Noop struct{}

func (Noop) GetUsed(ctx context.Context, periodCode string) (time.Duration, error) { return 0, nil }

func (Noop) SaveUsed(ctx context.Context, periodCode string, used time.Duration) error { return nil }
