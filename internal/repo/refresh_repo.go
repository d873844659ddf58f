package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nalauth/server/internal/model"
)

// RefreshRepo defines the storage operations for refresh tokens. A user has
// at most one active token: every insert revokes the user's other active rows
// in the same transaction, serialized per user with an advisory lock.
type RefreshRepo interface {
	// CreateReplacing revokes all active tokens for the user and inserts the
	// new hash, atomically.
	CreateReplacing(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) (uuid.UUID, error)
	// FindActiveByHash returns the token and its owning user when the hash
	// matches a non-revoked, unexpired row. ErrNotFound otherwise.
	FindActiveByHash(ctx context.Context, tokenHash string) (model.RefreshToken, model.User, error)
	// Rotate revokes the old hash and inserts the new one as one unit; at no
	// point are both valid, and two concurrent rotations of the same token
	// cannot both succeed. Returns the owning user.
	Rotate(ctx context.Context, oldHash, newHash string, expiresAt time.Time) (model.User, error)
	// RevokeByHash marks the row revoked; reports whether a live row changed.
	RevokeByHash(ctx context.Context, tokenHash string) (bool, error)
	// RevokeAllForUser revokes every active token for the user and returns the count.
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

type refreshRepo struct {
	db *sql.DB
}

// NewRefreshRepo creates a new RefreshRepo instance.
func NewRefreshRepo(db *sql.DB) RefreshRepo {
	return &refreshRepo{db: db}
}

func (r *refreshRepo) CreateReplacing(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) (uuid.UUID, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := lockUserSessions(ctx, tx, userID); err != nil {
		return uuid.Nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = now()
		WHERE user_id = $1 AND NOT revoked
	`, userID); err != nil {
		return uuid.Nil, fmt.Errorf("revoke active tokens: %w", err)
	}

	var idStr string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO refresh_tokens (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`, userID, tokenHash, expiresAt).Scan(&idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert refresh token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("commit: %w", err)
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse token ID: %w", err)
	}
	return id, nil
}

func (r *refreshRepo) FindActiveByHash(ctx context.Context, tokenHash string) (model.RefreshToken, model.User, error) {
	var t model.RefreshToken
	var u model.User
	var tokenIDStr, userIDStr string
	err := r.db.QueryRowContext(ctx, `
		SELECT rt.id, rt.user_id, rt.token_hash, rt.created_at, rt.expires_at, rt.revoked, rt.revoked_at,
		       u.phone_number, u.is_verified, u.created_at, u.updated_at, u.last_login
		FROM refresh_tokens rt
		JOIN users u ON u.user_id = rt.user_id
		WHERE rt.token_hash = $1 AND NOT rt.revoked AND rt.expires_at > now()
	`, tokenHash).Scan(
		&tokenIDStr, &userIDStr, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt, &t.Revoked, &t.RevokedAt,
		&u.PhoneNumber, &u.IsVerified, &u.CreatedAt, &u.UpdatedAt, &u.LastLogin,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RefreshToken{}, model.User{}, ErrNotFound
		}
		return model.RefreshToken{}, model.User{}, fmt.Errorf("find token: %w", err)
	}
	t.ID, _ = uuid.Parse(tokenIDStr)
	t.UserID, _ = uuid.Parse(userIDStr)
	u.ID = t.UserID
	return t, u, nil
}

func (r *refreshRepo) Rotate(ctx context.Context, oldHash, newHash string, expiresAt time.Time) (model.User, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.User{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Learn the owner first, then take the per-user lock before any mutation.
	// Same lock order as CreateReplacing, so the two cannot deadlock.
	var userIDStr string
	err = tx.QueryRowContext(ctx, `
		SELECT user_id FROM refresh_tokens WHERE token_hash = $1
	`, oldHash).Scan(&userIDStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("find token owner: %w", err)
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return model.User{}, fmt.Errorf("parse user ID: %w", err)
	}

	if err := lockUserSessions(ctx, tx, userID); err != nil {
		return model.User{}, err
	}

	// Revoke the old token only if it is still live. Zero rows means a
	// concurrent rotation or revoke won the race; this one fails closed.
	res, err := tx.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = now()
		WHERE token_hash = $1 AND NOT revoked AND expires_at > now()
	`, oldHash)
	if err != nil {
		return model.User{}, fmt.Errorf("revoke old token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.User{}, ErrNotFound
	}

	// Single-session policy: nothing else stays active either.
	if _, err := tx.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = now()
		WHERE user_id = $1 AND NOT revoked
	`, userID); err != nil {
		return model.User{}, fmt.Errorf("revoke sibling tokens: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO refresh_tokens (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
	`, userID, newHash, expiresAt); err != nil {
		return model.User{}, fmt.Errorf("insert replacement token: %w", err)
	}

	var u model.User
	err = tx.QueryRowContext(ctx, `
		SELECT phone_number, is_verified, created_at, updated_at, last_login
		FROM users WHERE user_id = $1
	`, userID).Scan(&u.PhoneNumber, &u.IsVerified, &u.CreatedAt, &u.UpdatedAt, &u.LastLogin)
	if err != nil {
		return model.User{}, fmt.Errorf("load token owner: %w", err)
	}
	u.ID = userID

	if err := tx.Commit(); err != nil {
		return model.User{}, fmt.Errorf("commit: %w", err)
	}
	return u, nil
}

func (r *refreshRepo) RevokeByHash(ctx context.Context, tokenHash string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = now()
		WHERE token_hash = $1 AND NOT revoked
	`, tokenHash)
	if err != nil {
		return false, fmt.Errorf("revoke token: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *refreshRepo) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = now()
		WHERE user_id = $1 AND NOT revoked
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke all tokens: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func lockUserSessions(ctx context.Context, tx *sql.Tx, userID uuid.UUID) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1, hashtext($2))`,
		lockClassRefresh, userID.String()); err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}
	return nil
}
