package ports

import (
	"context"
	"time"

	"retail-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

//go:generate mockgen -destination=mocks/mock_repositories.go -package=mocks retail-ledger/internal/core/ports OutboxRepository,TxRunner,UserRepository,AuditRepository

// UserRepository defines persistence operations for users.
// Methods accepting pgx.Tx lock the row for the rest of the unit of work.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmailForUpdate(ctx context.Context, tx pgx.Tx, email string) (*domain.User, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.User, error)
	UpdateLoginState(ctx context.Context, tx pgx.Tx, user *domain.User) error
}

// AccountRepository defines persistence operations for accounts.
// Update is optimistic: it fails with domain.ErrConcurrentUpdate when the
// stored version no longer matches and bumps Version on success.
type AccountRepository interface {
	Create(ctx context.Context, tx pgx.Tx, account *domain.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Account, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Account, error)
	ListInterestBearing(ctx context.Context) ([]domain.Account, error)
	Update(ctx context.Context, tx pgx.Tx, account *domain.Account) error
}

// TransactionRepository defines persistence operations for ledger entries.
// Create returns domain.ErrDuplicateReference on (account, reference) collisions.
type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, transaction *domain.Transaction) error
	GetByReference(ctx context.Context, accountID uuid.UUID, reference string) (*domain.Transaction, error)
	ListByAccount(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
}

// TransactionListParams holds filter + pagination for listing transactions.
type TransactionListParams struct {
	AccountID uuid.UUID
	Type      *domain.TransactionType
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
}

// BillRepository defines persistence operations for bills.
type BillRepository interface {
	Create(ctx context.Context, bill *domain.Bill) error
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Bill, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Bill, error)
	MarkPaid(ctx context.Context, tx pgx.Tx, bill *domain.Bill) error
}

// OutboxRepository stores events staged by the ledger and drained by the relay.
type OutboxRepository interface {
	Create(ctx context.Context, tx pgx.Tx, msg *domain.OutboxMessage) error
	// FetchUnprocessed returns unprocessed messages ordered by (created_at, id),
	// starting strictly after the cursor when one is given.
	FetchUnprocessed(ctx context.Context, after *domain.OutboxCursor, limit int) ([]domain.OutboxMessage, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error
	RecordFailure(ctx context.Context, id uuid.UUID, reason string) error
}

// AuditRepository persists audit entries.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// TxRunner opens units of work. RunInTx commits when fn returns nil and rolls
// back otherwise; lost races are retried with a fresh transaction.
type TxRunner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}
