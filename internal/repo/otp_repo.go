package repo

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nalauth/server/internal/model"
)

// Advisory lock classes. Each keyed entity gets its own class so locks for
// different concerns never collide.
const (
	lockClassOtp       = 1
	lockClassRateLimit = 2
	lockClassRefresh   = 3
)

// OtpRepo defines the storage operations for OTP challenges. Both mutations
// are single transactions: concurrent calls for the same phone number
// serialize at the storage layer, never via in-process locks.
type OtpRepo interface {
	// CreateReplacing invalidates every live challenge for the phone number
	// and inserts a fresh one, atomically.
	CreateReplacing(ctx context.Context, phone, codeHash string, expiresAt time.Time, maxAttempts int) (uuid.UUID, error)
	// VerifyChallenge runs the attempt-check, compare and mutation against the
	// newest live challenge as one row-locked unit, so two concurrent calls
	// cannot double-spend the attempt budget or both consume the challenge.
	VerifyChallenge(ctx context.Context, phone, candidateHash string) (model.OtpVerifyResult, error)
	// PurgeExpired deletes dead challenges older than the cutoff.
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

type otpRepo struct {
	db *sql.DB
}

// NewOtpRepo creates a new OtpRepo instance.
func NewOtpRepo(db *sql.DB) OtpRepo {
	return &otpRepo{db: db}
}

func (r *otpRepo) CreateReplacing(ctx context.Context, phone, codeHash string, expiresAt time.Time, maxAttempts int) (uuid.UUID, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Serialize issuance per phone so invalidate-then-insert appears atomic to
	// concurrent observers. Released on COMMIT/ROLLBACK.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1, hashtext($2))`, lockClassOtp, phone); err != nil {
		return uuid.Nil, fmt.Errorf("advisory lock: %w", err)
	}

	// A new challenge invalidates all prior unverified ones for the number.
	if _, err := tx.ExecContext(ctx, `
		UPDATE otp_challenges
		SET expires_at = now()
		WHERE phone_number = $1 AND NOT verified AND expires_at > now()
	`, phone); err != nil {
		return uuid.Nil, fmt.Errorf("invalidate prior challenges: %w", err)
	}

	var idStr string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO otp_challenges (phone_number, code_hash, expires_at, max_attempts)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, phone, codeHash, expiresAt, maxAttempts).Scan(&idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert challenge: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("commit: %w", err)
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse challenge ID: %w", err)
	}
	return id, nil
}

func (r *otpRepo) VerifyChallenge(ctx context.Context, phone, candidateHash string) (model.OtpVerifyResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.OtpVerifyResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var id string
	var codeHash string
	var attempts, maxAttempts int
	err = tx.QueryRowContext(ctx, `
		SELECT id, code_hash, attempt_count, max_attempts
		FROM otp_challenges
		WHERE phone_number = $1 AND NOT verified AND expires_at > now()
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`, phone).Scan(&id, &codeHash, &attempts, &maxAttempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.OtpVerifyResult{Status: model.OtpVerifyNotFound}, nil
		}
		return model.OtpVerifyResult{}, fmt.Errorf("select challenge: %w", err)
	}

	if attempts >= maxAttempts {
		// Budget already spent. Force-expire the row so it stops matching the
		// live predicate.
		if _, err := tx.ExecContext(ctx, `
			UPDATE otp_challenges SET expires_at = now() WHERE id = $1
		`, id); err != nil {
			return model.OtpVerifyResult{}, fmt.Errorf("expire exhausted challenge: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return model.OtpVerifyResult{}, fmt.Errorf("commit: %w", err)
		}
		return model.OtpVerifyResult{Status: model.OtpVerifyMaxAttempts}, nil
	}

	if subtle.ConstantTimeCompare([]byte(candidateHash), []byte(codeHash)) == 1 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE otp_challenges SET verified = TRUE, verified_at = now() WHERE id = $1
		`, id); err != nil {
			return model.OtpVerifyResult{}, fmt.Errorf("mark verified: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return model.OtpVerifyResult{}, fmt.Errorf("commit: %w", err)
		}
		return model.OtpVerifyResult{Status: model.OtpVerifySuccess}, nil
	}

	var newCount int
	err = tx.QueryRowContext(ctx, `
		UPDATE otp_challenges
		SET attempt_count = attempt_count + 1
		WHERE id = $1
		RETURNING attempt_count
	`, id).Scan(&newCount)
	if err != nil {
		return model.OtpVerifyResult{}, fmt.Errorf("increment attempt: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.OtpVerifyResult{}, fmt.Errorf("commit: %w", err)
	}
	return model.OtpVerifyResult{
		Status:            model.OtpVerifyMismatch,
		AttemptsRemaining: maxAttempts - newCount,
	}, nil
}

func (r *otpRepo) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM otp_challenges
		WHERE (verified OR expires_at <= now()) AND created_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge challenges: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
