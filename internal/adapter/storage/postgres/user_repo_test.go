package postgres

import (
	"context"
	"testing"
	"time"

	"retail-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUser() *domain.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.User{
		ID:           uuid.New(),
		Email:        "ana@example.com",
		FullName:     "Ana Silva",
		PasswordHash: "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		Role:         domain.RoleCustomer,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func userCols() []string {
	return []string{"id", "email", "full_name", "password_hash", "role", "failed_login_attempts",
		"lockout_end", "last_login_at", "created_at", "updated_at"}
}

func userRow(u *domain.User) *pgxmock.Rows {
	return pgxmock.NewRows(userCols()).AddRow(
		u.ID, u.Email, u.FullName, u.PasswordHash, u.Role, u.FailedLoginAttempts,
		u.LockoutEnd, u.LastLoginAt, u.CreatedAt, u.UpdatedAt,
	)
}

func TestUserRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewUserRepo(mock)
	u := newTestUser()

	mock.ExpectExec("INSERT INTO users").
		WithArgs(u.ID, u.Email, u.FullName, u.PasswordHash, "CUSTOMER", 0,
			u.LockoutEnd, u.LastLoginAt, u.CreatedAt, u.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, repo.Create(context.Background(), u))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_Create_DuplicateEmail(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewUserRepo(mock)

	mock.ExpectExec("INSERT INTO users").
		WithArgs(anyArgs(10)...).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: constraintUserEmail})

	err = repo.Create(context.Background(), newTestUser())
	assert.ErrorIs(t, err, domain.ErrDuplicateEmail)
}

func TestUserRepo_GetByEmailForUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewUserRepo(mock)
	u := newTestUser()
	end := time.Now().UTC().Add(10 * time.Minute).Truncate(time.Microsecond)
	u.FailedLoginAttempts = 5
	u.LockoutEnd = &end

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM users WHERE email .+ FOR UPDATE").
		WithArgs(u.Email).
		WillReturnRows(userRow(u))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	result, err := repo.GetByEmailForUpdate(context.Background(), tx, u.Email)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 5, result.FailedLoginAttempts)
	require.NotNil(t, result.LockoutEnd)
	assert.True(t, result.IsLockedOut(time.Now()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewUserRepo(mock)
	id := uuid.New()

	mock.ExpectQuery("SELECT .+ FROM users WHERE id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(userCols()))

	result, err := repo.GetByID(context.Background(), id)
	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestUserRepo_UpdateLoginState(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewUserRepo(mock)
	u := newTestUser()
	u.FailedLoginAttempts = 2

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users").
		WithArgs(2, u.LockoutEnd, u.LastLoginAt, u.UpdatedAt, u.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	assert.NoError(t, repo.UpdateLoginState(context.Background(), tx, u))
	assert.NoError(t, mock.ExpectationsWereMet())
}
