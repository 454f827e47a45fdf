package ports

import (
	"context"
	"time"

	"retail-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -destination=mocks/mock_services.go -package=mocks retail-ledger/internal/core/ports LedgerService,AccountService,BillService,AuthService,EventSubscriber,HashService,TokenService,IdempotencyCache,LeaseLock,AuditService,NotificationPublisher,NotificationInbox,EmailSender,ScheduledJob

// HashService handles password hashing (Argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(userID uuid.UUID, role domain.Role) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	UserID uuid.UUID
	Role   domain.Role
}

// IdempotencyCache is the Redis-layer idempotency check (fast path).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // nil when absent
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// LeaseLock is a cluster-wide mutual exclusion lease with automatic expiry.
type LeaseLock interface {
	// Acquire returns false without error when another owner holds the lease.
	Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, owner string) error
}

// --- Service Ports (Business Logic) ---

// LedgerService is the funds movement engine. Every operation runs inside the
// caller-supplied unit of work and never commits it.
type LedgerService interface {
	Deposit(ctx context.Context, tx pgx.Tx, caller domain.Caller, req DepositRequest) (*domain.Transaction, error)
	Withdraw(ctx context.Context, tx pgx.Tx, caller domain.Caller, req WithdrawRequest) (*domain.Transaction, error)
	Transfer(ctx context.Context, tx pgx.Tx, caller domain.Caller, req TransferRequest) (*TransferResult, error)
	PayBill(ctx context.Context, tx pgx.Tx, caller domain.Caller, req PayBillRequest) (*domain.Transaction, error)
	AddTransaction(ctx context.Context, tx pgx.Tx, caller domain.Caller, req AddTransactionRequest) (*domain.Transaction, error)
	RecordPaymentFailure(ctx context.Context, tx pgx.Tx, caller domain.Caller, req PaymentFailureRequest) error
}

// DepositRequest holds validated input for a deposit. A non-empty
// ReferenceNumber makes the call idempotent per account.
type DepositRequest struct {
	AccountID       uuid.UUID
	Amount          decimal.Decimal
	Currency        string // optional, must match the account when set
	Description     string
	ReferenceNumber string
}

type WithdrawRequest struct {
	AccountID   uuid.UUID
	Amount      decimal.Decimal
	Currency    string
	Description string
}

type TransferRequest struct {
	FromAccountID uuid.UUID
	ToAccountID   uuid.UUID
	Amount        decimal.Decimal
	Currency      string
	Description   string
}

// TransferResult holds both legs of a transfer. They share a reference number.
type TransferResult struct {
	Debit  *domain.Transaction
	Credit *domain.Transaction
}

type PayBillRequest struct {
	BillID    uuid.UUID
	AccountID uuid.UUID
}

// AddTransactionRequest applies a single-account credit or debit of any
// non-transfer type.
type AddTransactionRequest struct {
	AccountID       uuid.UUID
	Type            domain.TransactionType
	Amount          decimal.Decimal
	Currency        string
	Description     string
	ReferenceNumber string // generated when empty
}

type PaymentFailureRequest struct {
	AccountID uuid.UUID
	Amount    decimal.Decimal
	Currency  string
	Reason    string
}

// AccountService manages the account lifecycle and read models.
type AccountService interface {
	OpenAccount(ctx context.Context, tx pgx.Tx, caller domain.Caller, req OpenAccountRequest) (*domain.Account, error)
	CloseAccount(ctx context.Context, tx pgx.Tx, caller domain.Caller, accountID uuid.UUID) (*domain.Account, error)
	GetAccount(ctx context.Context, caller domain.Caller, accountID uuid.UUID) (*domain.Account, error)
	ListAccounts(ctx context.Context, caller domain.Caller, userID uuid.UUID) ([]domain.Account, error)
	ListTransactions(ctx context.Context, caller domain.Caller, params TransactionListParams) ([]domain.Transaction, int64, error)
}

// OpenAccountRequest opens an account for UserID, or for the caller when nil.
type OpenAccountRequest struct {
	UserID      uuid.UUID
	AccountType domain.AccountType
	Currency    string
}

// BillService registers payables; paying them goes through LedgerService.
type BillService interface {
	CreateBill(ctx context.Context, caller domain.Caller, req CreateBillRequest) (*domain.Bill, error)
	ListBills(ctx context.Context, caller domain.Caller) ([]domain.Bill, error)
}

type CreateBillRequest struct {
	AccountID uuid.UUID
	Payee     string
	Amount    decimal.Decimal
	DueDate   time.Time
}

// AuthService defines authentication business logic.
type AuthService interface {
	Register(ctx context.Context, req RegisterRequest) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	UnlockUser(ctx context.Context, caller domain.Caller, userID uuid.UUID) error
}

// RegisterRequest holds input for customer registration.
type RegisterRequest struct {
	Email           string
	FullName        string
	Password        string
	ConfirmPassword string
}

type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *domain.User
}

// AuditService records security-relevant actions.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}

// --- Outbox delivery ---

// EventSubscriber receives every relayed event. Delivery is at least once,
// so Handle must tolerate duplicates.
type EventSubscriber interface {
	Name() string
	Handle(ctx context.Context, evt domain.Event) error
}

// Notification is the in-app message derived from an event.
type Notification struct {
	ID        uuid.UUID        `json:"id"` // source event id
	UserID    uuid.UUID        `json:"user_id"`
	EventType domain.EventType `json:"event_type"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	CreatedAt time.Time        `json:"created_at"`
}

// NotificationPublisher pushes notifications to connected clients.
type NotificationPublisher interface {
	// Publish returns false when this notification was already published.
	Publish(ctx context.Context, n Notification) (bool, error)
}

// NotificationInbox reads back a user's recent notifications, newest first.
type NotificationInbox interface {
	Inbox(ctx context.Context, userID uuid.UUID, limit int) ([]Notification, error)
}

type EmailMessage struct {
	To      string
	Subject string
	Body    string
}

type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// ScheduledJob is a unit of background work driven by the scheduler.
// Cancelling ctx stops the job from starting new work.
type ScheduledJob interface {
	Name() string
	Run(ctx context.Context) error
}
