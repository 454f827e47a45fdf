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

func newTestAccount(accountType domain.AccountType, balance string) *domain.Account {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Account{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		AccountNumber: "400012345678",
		AccountType:   accountType,
		Balance:       domain.MustMoney(balance, "USD"),
		IsActive:      true,
		Version:       3,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func accountCols() []string {
	return []string{"id", "user_id", "account_number", "account_type", "balance", "currency",
		"is_active", "version", "created_at", "updated_at", "closed_at"}
}

func accountRow(rows *pgxmock.Rows, a *domain.Account) *pgxmock.Rows {
	return rows.AddRow(
		a.ID, a.UserID, a.AccountNumber, a.AccountType, a.Balance.Amount(), a.Balance.Currency(),
		a.IsActive, a.Version, a.CreatedAt, a.UpdatedAt, a.ClosedAt,
	)
}

func TestAccountRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAccountRepo(mock)
	a := newTestAccount(domain.AccountTypeChecking, "0")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO accounts").
		WithArgs(a.ID, a.UserID, a.AccountNumber, "CHECKING", a.Balance.Amount(), "USD",
			true, int64(3), a.CreatedAt, a.UpdatedAt, a.ClosedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), tx, a)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_Create_DuplicateNumber(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAccountRepo(mock)
	a := newTestAccount(domain.AccountTypeChecking, "0")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO accounts").
		WithArgs(anyArgs(11)...).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: constraintAccountNumber})

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), tx, a)
	assert.ErrorIs(t, err, domain.ErrDuplicateAccountNumber)
}

func TestAccountRepo_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAccountRepo(mock)
	a := newTestAccount(domain.AccountTypeSavings, "1500.2500")

	mock.ExpectQuery("SELECT .+ FROM accounts WHERE id").
		WithArgs(a.ID).
		WillReturnRows(accountRow(pgxmock.NewRows(accountCols()), a))

	result, err := repo.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, a.ID, result.ID)
	assert.Equal(t, domain.AccountTypeSavings, result.AccountType)
	assert.Equal(t, "1500.25 USD", result.Balance.String())
	assert.Equal(t, int64(3), result.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAccountRepo(mock)
	id := uuid.New()

	mock.ExpectQuery("SELECT .+ FROM accounts WHERE id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(accountCols()))

	result, err := repo.GetByID(context.Background(), id)
	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestAccountRepo_GetByIDForUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAccountRepo(mock)
	a := newTestAccount(domain.AccountTypeChecking, "10")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM accounts WHERE id .+ FOR UPDATE").
		WithArgs(a.ID).
		WillReturnRows(accountRow(pgxmock.NewRows(accountCols()), a))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	result, err := repo.GetByIDForUpdate(context.Background(), tx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, a.ID, result.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_ListInterestBearing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAccountRepo(mock)
	savings := newTestAccount(domain.AccountTypeSavings, "100")
	cd := newTestAccount(domain.AccountTypeCertificateOfDeposit, "5000")

	rows := pgxmock.NewRows(accountCols())
	accountRow(rows, savings)
	accountRow(rows, cd)

	mock.ExpectQuery("SELECT .+ FROM accounts\\s+WHERE is_active AND account_type IN").
		WithArgs("SAVINGS", "MONEY_MARKET", "CERTIFICATE_OF_DEPOSIT").
		WillReturnRows(rows)

	result, err := repo.ListInterestBearing(context.Background())
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, savings.ID, result[0].ID)
	assert.Equal(t, cd.ID, result[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_Update_BumpsVersion(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAccountRepo(mock)
	a := newTestAccount(domain.AccountTypeChecking, "75")

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE accounts").
		WithArgs(a.Balance.Amount(), true, a.ClosedAt, a.UpdatedAt, a.ID, int64(3)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	require.NoError(t, repo.Update(context.Background(), tx, a))
	assert.Equal(t, int64(4), a.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_Update_StaleVersion(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAccountRepo(mock)
	a := newTestAccount(domain.AccountTypeChecking, "75")

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE accounts").
		WithArgs(anyArgs(6)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Update(context.Background(), tx, a)
	assert.ErrorIs(t, err, domain.ErrConcurrentUpdate)
	assert.Equal(t, int64(3), a.Version)
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}
