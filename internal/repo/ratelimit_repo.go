package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RateLimitRepo gates request counts per (subject, purpose). The check and
// the insert form one advisory-locked transaction: two concurrent calls for
// the same subject can never both observe the last free slot.
type RateLimitRepo interface {
	// ConsumeSlot sums windows newer than now-window and, when the sum is
	// below max, inserts a count-1 window row. When denied, retryAfter is the
	// time until the oldest counted window leaves the range.
	ConsumeSlot(ctx context.Context, subject, purpose string, window time.Duration, max int) (allowed bool, retryAfter time.Duration, err error)
	// PurgeStale deletes windows whose start is before the cutoff.
	PurgeStale(ctx context.Context, cutoff time.Time) (int64, error)
}

type rateLimitRepo struct {
	db *sql.DB
}

// NewRateLimitRepo creates a new RateLimitRepo instance.
func NewRateLimitRepo(db *sql.DB) RateLimitRepo {
	return &rateLimitRepo{db: db}
}

func (r *rateLimitRepo) ConsumeSlot(ctx context.Context, subject, purpose string, window time.Duration, max int) (bool, time.Duration, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1, hashtext($2 || ':' || $3))`,
		lockClassRateLimit, subject, purpose); err != nil {
		return false, 0, fmt.Errorf("advisory lock: %w", err)
	}

	windowSecs := int(window / time.Second)

	var total int
	var oldest sql.NullTime
	var dbNow time.Time
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(request_count), 0), MIN(window_start), now()
		FROM rate_limit_windows
		WHERE subject = $1 AND purpose = $2
		  AND window_start >= now() - make_interval(secs => $3)
	`, subject, purpose, windowSecs).Scan(&total, &oldest, &dbNow)
	if err != nil {
		return false, 0, fmt.Errorf("sum windows: %w", err)
	}

	if total >= max {
		retryAfter := time.Duration(0)
		if oldest.Valid {
			retryAfter = oldest.Time.Add(window).Sub(dbNow)
			if retryAfter < 0 {
				retryAfter = 0
			}
		}
		if err := tx.Commit(); err != nil {
			return false, 0, fmt.Errorf("commit: %w", err)
		}
		return false, retryAfter, nil
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO rate_limit_windows (subject, purpose, window_seconds)
		VALUES ($1, $2, $3)
	`, subject, purpose, windowSecs); err != nil {
		return false, 0, fmt.Errorf("insert window: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("commit: %w", err)
	}
	return true, 0, nil
}

func (r *rateLimitRepo) PurgeStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM rate_limit_windows WHERE window_start < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge windows: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
