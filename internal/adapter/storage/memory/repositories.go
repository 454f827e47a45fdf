package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"retail-ledger/internal/core/domain"
	"retail-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// --- Users ---

// UserRepo implements ports.UserRepository.
type UserRepo struct{ s *Store }

func NewUserRepo(s *Store) *UserRepo { return &UserRepo{s: s} }

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if existing.Email == u.Email {
			return fmt.Errorf("insert user: %w", domain.ErrDuplicateEmail)
		}
	}
	r.s.users[u.ID] = copyUser(*u)
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	u = copyUser(u)
	return &u, nil
}

func (r *UserRepo) GetByEmailForUpdate(ctx context.Context, tx pgx.Tx, email string) (*domain.User, error) {
	mt, err := r.s.unwrap(tx)
	if err != nil {
		return nil, err
	}
	for _, u := range mt.users {
		if u.Email == email {
			u = copyUser(u)
			return &u, nil
		}
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if u.Email == email {
			u = copyUser(u)
			return &u, nil
		}
	}
	return nil, nil
}

func (r *UserRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.User, error) {
	mt, err := r.s.unwrap(tx)
	if err != nil {
		return nil, err
	}
	if u, ok := mt.users[id]; ok {
		u = copyUser(u)
		return &u, nil
	}
	return r.GetByID(ctx, id)
}

func (r *UserRepo) UpdateLoginState(ctx context.Context, tx pgx.Tx, u *domain.User) error {
	mt, err := r.s.unwrap(tx)
	if err != nil {
		return err
	}
	current, ok := mt.users[u.ID]
	if !ok {
		r.s.mu.RLock()
		current, ok = r.s.users[u.ID]
		r.s.mu.RUnlock()
	}
	if !ok {
		return fmt.Errorf("user not found: %s", u.ID)
	}
	current.FailedLoginAttempts = u.FailedLoginAttempts
	current.LockoutEnd = cloneTime(u.LockoutEnd)
	current.LastLoginAt = cloneTime(u.LastLoginAt)
	current.UpdatedAt = u.UpdatedAt
	mt.users[u.ID] = current
	return nil
}

func copyUser(u domain.User) domain.User {
	u.LockoutEnd = cloneTime(u.LockoutEnd)
	u.LastLoginAt = cloneTime(u.LastLoginAt)
	return u
}

// --- Accounts ---

// AccountRepo implements ports.AccountRepository with the same optimistic
// version check as the SQL driver.
type AccountRepo struct{ s *Store }

func NewAccountRepo(s *Store) *AccountRepo { return &AccountRepo{s: s} }

func (r *AccountRepo) Create(ctx context.Context, tx pgx.Tx, a *domain.Account) error {
	mt, err := r.s.unwrap(tx)
	if err != nil {
		return err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, existing := range r.s.accounts {
		if existing.AccountNumber == a.AccountNumber {
			return fmt.Errorf("insert account: %w", domain.ErrDuplicateAccountNumber)
		}
	}
	for _, existing := range mt.accounts {
		if existing.AccountNumber == a.AccountNumber && existing.ID != a.ID {
			return fmt.Errorf("insert account: %w", domain.ErrDuplicateAccountNumber)
		}
	}
	mt.accounts[a.ID] = copyAccount(*a)
	return nil
}

func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return nil, nil
	}
	a = copyAccount(a)
	return &a, nil
}

func (r *AccountRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Account, error) {
	mt, err := r.s.unwrap(tx)
	if err != nil {
		return nil, err
	}
	if a, ok := mt.accounts[id]; ok {
		a = copyAccount(a)
		return &a, nil
	}
	return r.GetByID(ctx, id)
}

func (r *AccountRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Account, error) {
	return r.list(func(a domain.Account) bool { return a.UserID == userID }), nil
}

func (r *AccountRepo) ListInterestBearing(ctx context.Context) ([]domain.Account, error) {
	return r.list(func(a domain.Account) bool {
		return a.IsActive && a.AccountType.IsInterestBearing()
	}), nil
}

func (r *AccountRepo) list(keep func(domain.Account) bool) []domain.Account {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Account
	for _, a := range r.s.accounts {
		if keep(a) {
			out = append(out, copyAccount(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].AccountNumber < out[j].AccountNumber
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *AccountRepo) Update(ctx context.Context, tx pgx.Tx, a *domain.Account) error {
	mt, err := r.s.unwrap(tx)
	if err != nil {
		return err
	}
	current, ok := mt.accounts[a.ID]
	if !ok {
		r.s.mu.RLock()
		current, ok = r.s.accounts[a.ID]
		r.s.mu.RUnlock()
	}
	if !ok || current.Version != a.Version {
		return fmt.Errorf("update account %s: %w", a.ID, domain.ErrConcurrentUpdate)
	}
	a.Version++
	mt.accounts[a.ID] = copyAccount(*a)
	return nil
}

func copyAccount(a domain.Account) domain.Account {
	a.ClosedAt = cloneTime(a.ClosedAt)
	return a
}

// --- Transactions ---

// TransactionRepo implements ports.TransactionRepository. Entries are
// append-only; (account, reference) is unique.
type TransactionRepo struct{ s *Store }

func NewTransactionRepo(s *Store) *TransactionRepo { return &TransactionRepo{s: s} }

func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	mt, err := r.s.unwrap(tx)
	if err != nil {
		return err
	}
	key := refKey{t.AccountID, t.ReferenceNumber}
	r.s.mu.RLock()
	_, taken := r.s.refs[key]
	r.s.mu.RUnlock()
	for _, staged := range mt.txns {
		if staged.AccountID == t.AccountID && staged.ReferenceNumber == t.ReferenceNumber {
			taken = true
		}
	}
	if taken {
		return fmt.Errorf("insert transaction %s: %w", t.ReferenceNumber, domain.ErrDuplicateReference)
	}
	mt.txns = append(mt.txns, *t)
	return nil
}

func (r *TransactionRepo) GetByReference(ctx context.Context, accountID uuid.UUID, reference string) (*domain.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	idx, ok := r.s.refs[refKey{accountID, reference}]
	if !ok {
		return nil, nil
	}
	t := r.s.txns[idx]
	return &t, nil
}

// ListByAccount returns entries newest first; entries with the same
// timestamp come back in reverse insertion order.
func (r *TransactionRepo) ListByAccount(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	r.s.mu.RLock()
	var matched []domain.Transaction
	for i := len(r.s.txns) - 1; i >= 0; i-- {
		t := r.s.txns[i]
		if t.AccountID != params.AccountID {
			continue
		}
		if params.Type != nil && t.Type != *params.Type {
			continue
		}
		if params.From != nil && t.TransactionDate.Before(*params.From) {
			continue
		}
		if params.To != nil && t.TransactionDate.After(*params.To) {
			continue
		}
		matched = append(matched, t)
	}
	r.s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].TransactionDate.After(matched[j].TransactionDate)
	})

	total := int64(len(matched))
	start := (params.Page - 1) * params.PageSize
	if start < 0 || params.PageSize <= 0 || start >= len(matched) {
		return []domain.Transaction{}, total, nil
	}
	end := min(start+params.PageSize, len(matched))
	return matched[start:end], total, nil
}

// --- Bills ---

// BillRepo implements ports.BillRepository.
type BillRepo struct{ s *Store }

func NewBillRepo(s *Store) *BillRepo { return &BillRepo{s: s} }

func (r *BillRepo) Create(ctx context.Context, b *domain.Bill) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.bills[b.ID] = copyBill(*b)
	return nil
}

func (r *BillRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Bill, error) {
	mt, err := r.s.unwrap(tx)
	if err != nil {
		return nil, err
	}
	if b, ok := mt.bills[id]; ok {
		b = copyBill(b)
		return &b, nil
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	b, ok := r.s.bills[id]
	if !ok {
		return nil, nil
	}
	b = copyBill(b)
	return &b, nil
}

func (r *BillRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Bill, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Bill
	for _, b := range r.s.bills {
		if b.UserID == userID {
			out = append(out, copyBill(b))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].DueDate.Before(out[j].DueDate)
	})
	return out, nil
}

func (r *BillRepo) MarkPaid(ctx context.Context, tx pgx.Tx, b *domain.Bill) error {
	mt, err := r.s.unwrap(tx)
	if err != nil {
		return err
	}
	current, ok := mt.bills[b.ID]
	if !ok {
		r.s.mu.RLock()
		current, ok = r.s.bills[b.ID]
		r.s.mu.RUnlock()
	}
	if !ok || current.IsPaid {
		return fmt.Errorf("mark bill %s paid: %w", b.ID, domain.ErrConcurrentUpdate)
	}
	current.IsPaid = true
	current.PaidAt = cloneTime(b.PaidAt)
	mt.bills[b.ID] = current
	return nil
}

func copyBill(b domain.Bill) domain.Bill {
	b.PaidAt = cloneTime(b.PaidAt)
	return b
}

// --- Outbox ---

// OutboxRepo implements ports.OutboxRepository.
type OutboxRepo struct{ s *Store }

func NewOutboxRepo(s *Store) *OutboxRepo { return &OutboxRepo{s: s} }

func (r *OutboxRepo) Create(ctx context.Context, tx pgx.Tx, m *domain.OutboxMessage) error {
	mt, err := r.s.unwrap(tx)
	if err != nil {
		return err
	}
	msg := *m
	msg.EventData = append([]byte(nil), m.EventData...)
	mt.outbox = append(mt.outbox, msg)
	return nil
}

func (r *OutboxRepo) FetchUnprocessed(ctx context.Context, after *domain.OutboxCursor, limit int) ([]domain.OutboxMessage, error) {
	r.s.mu.RLock()
	var out []domain.OutboxMessage
	for _, m := range r.s.outbox {
		if m.IsProcessed {
			continue
		}
		if after != nil && !cursorLess(after, m.Cursor()) {
			continue
		}
		out = append(out, m)
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return cursorLess(out[i].Cursor(), out[j].Cursor()) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *OutboxRepo) MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error {
	return r.update(id, func(m *domain.OutboxMessage) {
		m.IsProcessed = true
		m.ProcessedAt = &processedAt
		m.LastError = nil
	})
}

func (r *OutboxRepo) RecordFailure(ctx context.Context, id uuid.UUID, reason string) error {
	return r.update(id, func(m *domain.OutboxMessage) {
		m.Attempts++
		m.LastError = &reason
	})
}

// cursorLess orders like postgres compares (created_at, id) row values.
func cursorLess(a, b *domain.OutboxCursor) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}

// Processed reports how many messages have been marked processed.
func (r *OutboxRepo) Processed() int {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := 0
	for _, m := range r.s.outbox {
		if m.IsProcessed {
			n++
		}
	}
	return n
}

func (r *OutboxRepo) update(id uuid.UUID, fn func(*domain.OutboxMessage)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.outbox {
		if r.s.outbox[i].ID == id {
			fn(&r.s.outbox[i])
			return nil
		}
	}
	return fmt.Errorf("outbox message not found: %s", id)
}

// --- Audit ---

// AuditRepo implements ports.AuditRepository.
type AuditRepo struct{ s *Store }

func NewAuditRepo(s *Store) *AuditRepo { return &AuditRepo{s: s} }

func (r *AuditRepo) Create(ctx context.Context, log *domain.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.audits = append(r.s.audits, *log)
	return nil
}

// Entries returns a snapshot of the audit trail.
func (r *AuditRepo) Entries() []domain.AuditLog {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return append([]domain.AuditLog(nil), r.s.audits...)
}
