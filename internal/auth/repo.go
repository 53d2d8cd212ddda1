package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/regwatch/regwatch/internal/platform/db"
	"github.com/regwatch/regwatch/internal/shared"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	CreateSession(ctx context.Context, session LoginSession) error
	DeleteSession(ctx context.Context, id string) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const findUserByEmail = `
SELECT id, email, password_hash, role, is_active, created_at, updated_at
FROM users
WHERE lower(email) = lower($1)`

// FindByEmail fetches a user by email, case-insensitively.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	var (
		user      User
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	err := r.pool.QueryRow(ctx, findUserByEmail, email).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Role, &user.IsActive, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	user.CreatedAt = createdAt.Time
	user.UpdatedAt = updatedAt.Time
	return &user, nil
}

const insertLoginSession = `
INSERT INTO login_sessions (id, user_id, created_at, expires_at, ip, user_agent)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET user_id = EXCLUDED.user_id, expires_at = EXCLUDED.expires_at`

const touchLastLogin = `UPDATE users SET last_login_at = $2, updated_at = $2 WHERE id = $1`

// CreateSession records the login and stamps the user's last login in one transaction.
func (r *PGRepository) CreateSession(ctx context.Context, session LoginSession) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertLoginSession,
			session.ID,
			session.UserID,
			pgtype.Timestamptz{Time: session.CreatedAt.UTC(), Valid: true},
			pgtype.Timestamptz{Time: session.ExpiresAt.UTC(), Valid: true},
			pgtype.Text{String: session.IP, Valid: session.IP != ""},
			pgtype.Text{String: session.UserAgent, Valid: session.UserAgent != ""},
		); err != nil {
			return fmt.Errorf("insert login session: %w", err)
		}
		if _, err := tx.Exec(ctx, touchLastLogin, session.UserID, session.CreatedAt.UTC()); err != nil {
			return fmt.Errorf("touch last login: %w", err)
		}
		return nil
	})
}

// DeleteSession removes a session record.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM login_sessions WHERE id = $1`, id)
	return err
}

var _ Repository = (*PGRepository)(nil)
