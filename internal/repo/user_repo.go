package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/nalauth/server/internal/model"
)

// UserRepo defines the interface for user repository operations.
type UserRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (model.User, error)
	GetByPhone(ctx context.Context, phone string) (model.User, error)
	// UpsertOnLogin creates the user on first login or touches last_login on
	// subsequent ones. The bool reports whether the user was created.
	UpsertOnLogin(ctx context.Context, phone string) (model.User, bool, error)
}

type userRepo struct {
	db *sql.DB
}

// NewUserRepo creates a new UserRepo instance.
func NewUserRepo(db *sql.DB) UserRepo {
	return &userRepo{db: db}
}

const userColumns = `user_id, phone_number, is_verified, created_at, updated_at, last_login`

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	var idStr string
	err := row.Scan(&idStr, &u.PhoneNumber, &u.IsVerified, &u.CreatedAt, &u.UpdatedAt, &u.LastLogin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("scan user: %w", err)
	}
	u.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.User{}, fmt.Errorf("parse user ID: %w", err)
	}
	return u, nil
}

// GetByID retrieves a user by ID.
func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE user_id = $1
	`, id)
	return scanUser(row)
}

// GetByPhone retrieves a user by phone number.
func (r *userRepo) GetByPhone(ctx context.Context, phone string) (model.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE phone_number = $1
	`, phone)
	return scanUser(row)
}

// UpsertOnLogin inserts the user if the phone number is unseen, otherwise
// updates last_login. ON CONFLICT DO NOTHING keeps concurrent first logins for
// the same number from failing; the loser of the insert race falls through to
// the update path and reports created=false.
func (r *userRepo) UpsertOnLogin(ctx context.Context, phone string) (model.User, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (phone_number, is_verified, last_login)
		VALUES ($1, TRUE, now())
		ON CONFLICT (phone_number) DO NOTHING
		RETURNING `+userColumns+`
	`, phone)
	u, err := scanUser(row)
	if err == nil {
		return u, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return model.User{}, false, fmt.Errorf("insert user: %w", err)
	}

	row = r.db.QueryRowContext(ctx, `
		UPDATE users
		SET last_login = now(), updated_at = now(), is_verified = TRUE
		WHERE phone_number = $1
		RETURNING `+userColumns+`
	`, phone)
	u, err = scanUser(row)
	if err != nil {
		return model.User{}, false, fmt.Errorf("update user on login: %w", err)
	}
	return u, false, nil
}
