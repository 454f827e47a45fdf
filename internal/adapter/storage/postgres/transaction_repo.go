package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"retail-ledger/internal/core/domain"
	"retail-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const (
	constraintTxnReference = "transactions_account_reference_key"
	transactionColumns     = `id, account_id, related_account_id, transaction_type, direction, amount, balance_after, currency,
		description, reference_number, transaction_date, created_at`
)

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// Create inserts a ledger entry within a transaction.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	query := `INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := tx.Exec(ctx, query,
		t.ID, t.AccountID, t.RelatedAccountID, string(t.Type), string(t.Direction),
		t.Amount.Amount(), t.BalanceAfter.Amount(), t.Amount.Currency(),
		t.Description, t.ReferenceNumber, t.TransactionDate, t.CreatedAt,
	)
	if err != nil {
		if uniqueConstraint(err) == constraintTxnReference {
			return fmt.Errorf("insert transaction %s: %w", t.ReferenceNumber, domain.ErrDuplicateReference)
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByReference fetches the entry for an account/reference pair.
func (r *TransactionRepo) GetByReference(ctx context.Context, accountID uuid.UUID, reference string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE account_id = $1 AND reference_number = $2`

	t, err := scanTransaction(r.pool.QueryRow(ctx, query, accountID, reference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get transaction by reference: %w", err)
	}
	return t, nil
}

// ListByAccount fetches entries with filtering and pagination, newest first.
func (r *TransactionRepo) ListByAccount(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, fmt.Sprintf("account_id = $%d", argIdx))
	args = append(args, params.AccountID)
	argIdx++

	if params.Type != nil {
		conditions = append(conditions, fmt.Sprintf("transaction_type = $%d", argIdx))
		args = append(args, string(*params.Type))
		argIdx++
	}
	if params.From != nil {
		conditions = append(conditions, fmt.Sprintf("transaction_date >= $%d", argIdx))
		args = append(args, *params.From)
		argIdx++
	}
	if params.To != nil {
		conditions = append(conditions, fmt.Sprintf("transaction_date <= $%d", argIdx))
		args = append(args, *params.To)
		argIdx++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM transactions %s", where)
	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT %s FROM transactions %s
		ORDER BY transaction_date DESC, id LIMIT $%d OFFSET $%d`, transactionColumns, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan transaction row: %w", err)
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return txns, total, nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		t            domain.Transaction
		amount       decimal.Decimal
		balanceAfter decimal.Decimal
		currency     string
	)
	err := row.Scan(
		&t.ID, &t.AccountID, &t.RelatedAccountID, &t.Type, &t.Direction,
		&amount, &balanceAfter, &currency,
		&t.Description, &t.ReferenceNumber, &t.TransactionDate, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if t.Amount, err = domain.NewMoney(amount, currency); err != nil {
		return nil, fmt.Errorf("transaction %s amount: %w", t.ID, err)
	}
	if t.BalanceAfter, err = domain.NewMoney(balanceAfter, currency); err != nil {
		return nil, fmt.Errorf("transaction %s balance: %w", t.ID, err)
	}
	return &t, nil
}
