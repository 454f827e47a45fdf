package postgres

import (
	"context"
	"errors"
	"fmt"

	"retail-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const (
	constraintAccountNumber = "accounts_account_number_key"
	accountColumns          = `id, user_id, account_number, account_type, balance, currency, is_active, version, created_at, updated_at, closed_at`
)

// AccountRepo implements ports.AccountRepository.
type AccountRepo struct {
	pool Pool
}

// NewAccountRepo creates a new AccountRepo.
func NewAccountRepo(pool Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

// Create inserts a new account within a transaction.
func (r *AccountRepo) Create(ctx context.Context, tx pgx.Tx, a *domain.Account) error {
	query := `INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := tx.Exec(ctx, query,
		a.ID, a.UserID, a.AccountNumber, string(a.AccountType),
		a.Balance.Amount(), a.Balance.Currency(), a.IsActive, a.Version,
		a.CreatedAt, a.UpdatedAt, a.ClosedAt,
	)
	if err != nil {
		if uniqueConstraint(err) == constraintAccountNumber {
			return fmt.Errorf("insert account: %w", domain.ErrDuplicateAccountNumber)
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetByID fetches an account by its UUID (without locking).
func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	a, err := scanAccount(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get account by id: %w", err)
	}
	return a, nil
}

// GetByIDForUpdate fetches an account by ID with pessimistic locking.
// This MUST be called within a transaction.
func (r *AccountRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`

	a, err := scanAccount(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get account for update: %w", err)
	}
	return a, nil
}

// ListByUser returns every account owned by userID, oldest first.
func (r *AccountRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1 ORDER BY created_at`
	return r.list(ctx, query, userID)
}

// ListInterestBearing returns active accounts whose type accrues interest.
func (r *AccountRepo) ListInterestBearing(ctx context.Context) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts
		WHERE is_active AND account_type IN ($1, $2, $3) ORDER BY created_at`
	return r.list(ctx, query,
		string(domain.AccountTypeSavings),
		string(domain.AccountTypeMoneyMarket),
		string(domain.AccountTypeCertificateOfDeposit),
	)
}

func (r *AccountRepo) list(ctx context.Context, query string, args ...any) ([]domain.Account, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account row: %w", err)
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account rows: %w", err)
	}
	return accounts, nil
}

// Update persists balance and lifecycle fields guarded by the version column.
func (r *AccountRepo) Update(ctx context.Context, tx pgx.Tx, a *domain.Account) error {
	query := `UPDATE accounts
		SET balance = $1, is_active = $2, closed_at = $3, updated_at = $4, version = version + 1
		WHERE id = $5 AND version = $6`

	tag, err := tx.Exec(ctx, query, a.Balance.Amount(), a.IsActive, a.ClosedAt, a.UpdatedAt, a.ID, a.Version)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update account %s: %w", a.ID, domain.ErrConcurrentUpdate)
	}
	a.Version++
	return nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		a        domain.Account
		balance  decimal.Decimal
		currency string
	)
	err := row.Scan(
		&a.ID, &a.UserID, &a.AccountNumber, &a.AccountType,
		&balance, &currency, &a.IsActive, &a.Version,
		&a.CreatedAt, &a.UpdatedAt, &a.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	if a.Balance, err = domain.NewMoney(balance, currency); err != nil {
		return nil, fmt.Errorf("account %s balance: %w", a.ID, err)
	}
	return &a, nil
}
