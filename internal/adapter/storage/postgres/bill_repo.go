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

const billColumns = `id, user_id, account_id, payee, amount, currency, due_date, is_paid, paid_at, created_at`

// BillRepo implements ports.BillRepository.
type BillRepo struct {
	pool Pool
}

// NewBillRepo creates a new BillRepo.
func NewBillRepo(pool Pool) *BillRepo {
	return &BillRepo{pool: pool}
}

func (r *BillRepo) Create(ctx context.Context, b *domain.Bill) error {
	query := `INSERT INTO bills (` + billColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.pool.Exec(ctx, query,
		b.ID, b.UserID, b.AccountID, b.Payee, b.Amount.Amount(), b.Amount.Currency(),
		b.DueDate, b.IsPaid, b.PaidAt, b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert bill: %w", err)
	}
	return nil
}

// GetByIDForUpdate locks the bill so it cannot be paid twice.
func (r *BillRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Bill, error) {
	query := `SELECT ` + billColumns + ` FROM bills WHERE id = $1 FOR UPDATE`

	b, err := scanBill(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get bill for update: %w", err)
	}
	return b, nil
}

// ListByUser returns the user's bills, soonest due first.
func (r *BillRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Bill, error) {
	query := `SELECT ` + billColumns + ` FROM bills WHERE user_id = $1 ORDER BY due_date, created_at`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}
	defer rows.Close()

	var bills []domain.Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bill row: %w", err)
		}
		bills = append(bills, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bill rows: %w", err)
	}
	return bills, nil
}

func (r *BillRepo) MarkPaid(ctx context.Context, tx pgx.Tx, b *domain.Bill) error {
	tag, err := tx.Exec(ctx, `UPDATE bills SET is_paid = TRUE, paid_at = $1 WHERE id = $2 AND NOT is_paid`, b.PaidAt, b.ID)
	if err != nil {
		return fmt.Errorf("mark bill paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark bill %s paid: %w", b.ID, domain.ErrConcurrentUpdate)
	}
	return nil
}

func scanBill(row pgx.Row) (*domain.Bill, error) {
	var (
		b        domain.Bill
		amount   decimal.Decimal
		currency string
	)
	err := row.Scan(
		&b.ID, &b.UserID, &b.AccountID, &b.Payee, &amount, &currency,
		&b.DueDate, &b.IsPaid, &b.PaidAt, &b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if b.Amount, err = domain.NewMoney(amount, currency); err != nil {
		return nil, fmt.Errorf("bill %s amount: %w", b.ID, err)
	}
	return &b, nil
}
