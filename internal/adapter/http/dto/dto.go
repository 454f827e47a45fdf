package dto

import "github.com/shopspring/decimal"

// RegisterRequest is the request body for customer registration.
type RegisterRequest struct {
	Email           string `json:"email" binding:"required,email,max=254"`
	FullName        string `json:"full_name" binding:"required,min=1,max=100"`
	Password        string `json:"password" binding:"required,min=8,max=128"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UserResponse is the public view of a user.
type UserResponse struct {
	ID          string  `json:"id"`
	Email       string  `json:"email"`
	FullName    string  `json:"full_name"`
	Role        string  `json:"role"`
	LastLoginAt *string `json:"last_login_at,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

// LoginResponse is the response body for successful login.
type LoginResponse struct {
	Token  string       `json:"token"`
	Expiry int64        `json:"expiry"` // Unix timestamp
	User   UserResponse `json:"user"`
}

// OpenAccountRequest opens an account. Staff may set UserID; customers
// always open for themselves.
type OpenAccountRequest struct {
	UserID      string `json:"user_id" binding:"omitempty,uuid"`
	AccountType string `json:"account_type" binding:"required,account_type"`
	Currency    string `json:"currency" binding:"required,currency"`
}

// DepositRequest credits the account in the path. ReferenceNumber makes the
// request safe to retry.
type DepositRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency" binding:"omitempty,currency"`
	Description     string          `json:"description" binding:"max=255"`
	ReferenceNumber string          `json:"reference_number" binding:"omitempty,max=64,safe_id"`
}

// WithdrawRequest debits the account in the path.
type WithdrawRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency" binding:"omitempty,currency"`
	Description string          `json:"description" binding:"max=255"`
}

// TransferRequest moves funds between two accounts.
type TransferRequest struct {
	FromAccountID string          `json:"from_account_id" binding:"required,uuid"`
	ToAccountID   string          `json:"to_account_id" binding:"required,uuid"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency" binding:"omitempty,currency"`
	Description   string          `json:"description" binding:"max=255"`
}

// CreateBillRequest registers a payable against one of the caller's accounts.
type CreateBillRequest struct {
	AccountID string          `json:"account_id" binding:"required,uuid"`
	Payee     string          `json:"payee" binding:"required,max=100"`
	Amount    decimal.Decimal `json:"amount"`
	DueDate   string          `json:"due_date" binding:"required,datetime=2006-01-02"`
}

// PayBillRequest selects the account a bill is paid from.
type PayBillRequest struct {
	AccountID string `json:"account_id" binding:"required,uuid"`
}

// AddTransactionRequest is the staff entry point for any single-account
// movement (fees, refunds, card charges, manual corrections).
type AddTransactionRequest struct {
	Type            string          `json:"transaction_type" binding:"required,transaction_type"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency" binding:"omitempty,currency"`
	Description     string          `json:"description" binding:"max=255"`
	ReferenceNumber string          `json:"reference_number" binding:"omitempty,max=64,safe_id"`
}

// AccountResponse is the response body for an account.
type AccountResponse struct {
	ID            string  `json:"id"`
	UserID        string  `json:"user_id"`
	AccountNumber string  `json:"account_number"`
	AccountType   string  `json:"account_type"`
	Balance       string  `json:"balance"`
	Currency      string  `json:"currency"`
	IsActive      bool    `json:"is_active"`
	CreatedAt     string  `json:"created_at"`
	ClosedAt      *string `json:"closed_at,omitempty"`
}

// TransactionResponse is the response body for a ledger entry.
type TransactionResponse struct {
	ID               string  `json:"id"`
	AccountID        string  `json:"account_id"`
	RelatedAccountID *string `json:"related_account_id,omitempty"`
	TransactionType  string  `json:"transaction_type"`
	Direction        string  `json:"direction"`
	Amount           string  `json:"amount"`
	Currency         string  `json:"currency"`
	BalanceAfter     string  `json:"balance_after"`
	Description      string  `json:"description"`
	ReferenceNumber  string  `json:"reference_number"`
	TransactionDate  string  `json:"transaction_date"`
}

// TransferResponse holds both legs of a transfer.
type TransferResponse struct {
	ReferenceNumber string              `json:"reference_number"`
	Debit           TransactionResponse `json:"debit"`
	Credit          TransactionResponse `json:"credit"`
}

// BillResponse is the response body for a bill.
type BillResponse struct {
	ID        string  `json:"id"`
	AccountID string  `json:"account_id"`
	Payee     string  `json:"payee"`
	Amount    string  `json:"amount"`
	Currency  string  `json:"currency"`
	DueDate   string  `json:"due_date"`
	IsPaid    bool    `json:"is_paid"`
	PaidAt    *string `json:"paid_at,omitempty"`
}

// TransactionListResponse wraps paginated transaction list.
type TransactionListResponse struct {
	Items      []TransactionResponse `json:"items"`
	Total      int64                 `json:"total"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	TotalPages int                   `json:"total_pages"`
}

// JobRunResponse reports a manually triggered background job.
type JobRunResponse struct {
	Job       string `json:"job"`
	Status    string `json:"status"`
	StartedAt string `json:"started_at"`
}

// NotificationResponse is one in-app notification.
type NotificationResponse struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
}
