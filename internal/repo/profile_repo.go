package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ProfileRepo reads profile-completion state. The auth core never writes
// user_profiles; profile management lives elsewhere.
type ProfileRepo interface {
	Exists(ctx context.Context, userID uuid.UUID) (bool, error)
	CompletionPercentage(ctx context.Context, userID uuid.UUID) (int, error)
}

type profileRepo struct {
	db *sql.DB
}

// NewProfileRepo creates a new ProfileRepo instance.
func NewProfileRepo(db *sql.DB) ProfileRepo {
	return &profileRepo{db: db}
}

func (r *profileRepo) Exists(ctx context.Context, userID uuid.UUID) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `
		SELECT 1 FROM user_profiles WHERE user_id = $1
	`, userID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query profile: %w", err)
	}
	return true, nil
}

func (r *profileRepo) CompletionPercentage(ctx context.Context, userID uuid.UUID) (int, error) {
	var pct int
	err := r.db.QueryRowContext(ctx, `
		SELECT profile_completion_percentage FROM user_profiles WHERE user_id = $1
	`, userID).Scan(&pct)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("query profile completion: %w", err)
	}
	return pct, nil
}
