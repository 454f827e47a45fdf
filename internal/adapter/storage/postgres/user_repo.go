package postgres

import (
	"context"
	"errors"
	"fmt"

	"retail-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	constraintUserEmail = "users_email_key"
	userColumns         = `id, email, full_name, password_hash, role, failed_login_attempts, lockout_end, last_login_at, created_at, updated_at`
)

// UserRepo implements ports.UserRepository.
type UserRepo struct {
	pool Pool
}

// NewUserRepo creates a new UserRepo.
func NewUserRepo(pool Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

// Create inserts a new user. Emails are stored lower-cased.
func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	query := `INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.pool.Exec(ctx, query,
		u.ID, u.Email, u.FullName, u.PasswordHash, string(u.Role),
		u.FailedLoginAttempts, u.LockoutEnd, u.LastLoginAt, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if uniqueConstraint(err) == constraintUserEmail {
			return fmt.Errorf("insert user: %w", domain.ErrDuplicateEmail)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID fetches a user by UUID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.get(r.pool.QueryRow(ctx, query, id), "get user by id")
}

// GetByEmailForUpdate locks the user row so concurrent sign-ins serialise
// their failed-attempt bookkeeping.
func (r *UserRepo) GetByEmailForUpdate(ctx context.Context, tx pgx.Tx, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 FOR UPDATE`
	return r.get(tx.QueryRow(ctx, query, email), "get user by email for update")
}

func (r *UserRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`
	return r.get(tx.QueryRow(ctx, query, id), "get user by id for update")
}

// UpdateLoginState persists lockout counters and the last login time.
func (r *UserRepo) UpdateLoginState(ctx context.Context, tx pgx.Tx, u *domain.User) error {
	query := `UPDATE users
		SET failed_login_attempts = $1, lockout_end = $2, last_login_at = $3, updated_at = $4
		WHERE id = $5`

	tag, err := tx.Exec(ctx, query, u.FailedLoginAttempts, u.LockoutEnd, u.LastLoginAt, u.UpdatedAt, u.ID)
	if err != nil {
		return fmt.Errorf("update login state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user not found: %s", u.ID)
	}
	return nil
}

func (r *UserRepo) get(row pgx.Row, op string) (*domain.User, error) {
	u := &domain.User{}
	err := row.Scan(
		&u.ID, &u.Email, &u.FullName, &u.PasswordHash, &u.Role,
		&u.FailedLoginAttempts, &u.LockoutEnd, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}
