package limiter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PG is a PostgreSQL-backed fixed-window limiter.
type PG struct {
	pool   pgxQuerier
	window time.Duration
	limit  int
	now    func() time.Time
}

type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter allowing limit requests per window.
func NewPG(pool *pgxpool.Pool, window time.Duration, limit int) *PG {
	return NewPGWithQuerier(pool, window, limit)
}

// NewPGWithQuerier constructs a limiter on any pgx querier.
func NewPGWithQuerier(q pgxQuerier, window time.Duration, limit int) *PG {
	return &PG{pool: q, window: window, limit: limit, now: time.Now}
}

// HashSubject returns a stable key for a subject so raw member ids are not stored.
func HashSubject(subject string) string {
	h := sha256.Sum256([]byte(subject))
	return hex.EncodeToString(h[:])
}

// Allow increments the subject's counter, starting a new window when the
// previous one has elapsed.
func (l *PG) Allow(ctx context.Context, subject string) (bool, time.Duration, error) {
	const q = `
INSERT INTO request_limits (subject, window_start, hits)
VALUES ($1, now(), 1)
ON CONFLICT (subject) DO UPDATE
SET
  window_start = CASE WHEN now() - request_limits.window_start > $2::interval THEN now() ELSE request_limits.window_start END,
  hits = CASE WHEN now() - request_limits.window_start > $2::interval THEN 1 ELSE request_limits.hits + 1 END
RETURNING hits, window_start`
	var hits int
	var start time.Time
	if err := l.pool.QueryRow(ctx, q, HashSubject(subject), l.window).Scan(&hits, &start); err != nil {
		return false, 0, err
	}
	if hits <= l.limit {
		return true, 0, nil
	}
	wait := start.Add(l.window).Sub(l.now())
	if wait < 0 {
		wait = 0
	}
	return false, wait, nil
}
