package domain

import (
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func newTestAccount(t *testing.T, balance string) *Account {
	t.Helper()
	acc, err := NewAccount(uuid.New(), AccountTypeChecking, "USD", "100000000001", now)
	require.NoError(t, err)
	acc.Balance = MustMoney(balance, "USD")
	return acc
}

func TestNewAccount(t *testing.T) {
	acc, err := NewAccount(uuid.New(), AccountTypeSavings, "usd", "123456789012", now)
	require.NoError(t, err)
	assert.True(t, acc.IsActive)
	assert.True(t, acc.Balance.IsZero())
	assert.Equal(t, "USD", acc.Currency())

	_, err = NewAccount(uuid.New(), AccountType("GOLD"), "USD", "1", now)
	assert.ErrorIs(t, err, ErrInvalidAccountType)
}

func TestAccount_CreditDebit(t *testing.T) {
	acc := newTestAccount(t, "100.00")

	require.NoError(t, acc.Credit(MustMoney("50", "USD"), now))
	assert.Equal(t, "150.00 USD", acc.Balance.String())

	require.NoError(t, acc.Debit(MustMoney("150", "USD"), now))
	assert.True(t, acc.Balance.IsZero())

	err := acc.Debit(MustMoney("0.01", "USD"), now)
	var insufficient *InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "0.00 USD", insufficient.Available.String())
	assert.Equal(t, "0.01 USD", insufficient.Required.String())
	assert.True(t, acc.Balance.IsZero(), "failed debit leaves balance untouched")

	assert.ErrorIs(t, acc.Credit(MustMoney("1", "EUR"), now), ErrCurrencyMismatch)
}

func TestAccount_InactiveRejectsMovement(t *testing.T) {
	acc := newTestAccount(t, "10")
	acc.IsActive = false

	assert.ErrorIs(t, acc.Credit(MustMoney("1", "USD"), now), ErrAccountNotActive)
	assert.ErrorIs(t, acc.Debit(MustMoney("1", "USD"), now), ErrAccountNotActive)
}

func TestAccount_Close(t *testing.T) {
	acc := newTestAccount(t, "10")
	assert.ErrorIs(t, acc.Close(now), ErrAccountNotEmpty)

	acc.Balance = MustMoney("0", "USD")
	require.NoError(t, acc.Close(now))
	assert.False(t, acc.IsActive)
	require.NotNil(t, acc.ClosedAt)

	assert.ErrorIs(t, acc.Close(now), ErrAccountNotActive)
}

func TestAccountType_InterestBearing(t *testing.T) {
	assert.False(t, AccountTypeChecking.IsInterestBearing())
	assert.True(t, AccountTypeSavings.IsInterestBearing())
	assert.True(t, AccountTypeMoneyMarket.IsInterestBearing())
	assert.True(t, AccountTypeCertificateOfDeposit.IsInterestBearing())
}

func TestTransactionType_Classification(t *testing.T) {
	tests := []struct {
		typ    TransactionType
		credit bool
		debit  bool
		prefix string
	}{
		{TransactionTypeDeposit, true, false, "DEP"},
		{TransactionTypeWithdrawal, false, true, "WDR"},
		{TransactionTypeTransfer, false, false, "TRF"},
		{TransactionTypeBillPayment, false, false, "BIL"},
		{TransactionTypeInterestCredit, true, false, "INT"},
		{TransactionTypeFee, false, true, "FEE"},
		{TransactionTypeRefund, true, false, "RFD"},
		{TransactionTypeCardCharge, false, true, "CRD"},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			assert.Equal(t, tt.credit, tt.typ.IsCredit())
			assert.Equal(t, tt.debit, tt.typ.IsDebit())
			assert.Equal(t, tt.prefix, tt.typ.ReferencePrefix())
		})
	}
}

func TestNewReferenceNumber(t *testing.T) {
	pattern := regexp.MustCompile(`^WDR-[0-9A-F]{32}$`)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		ref, err := NewReferenceNumber(TransactionTypeWithdrawal)
		require.NoError(t, err)
		assert.Regexp(t, pattern, ref)
		assert.False(t, seen[ref])
		seen[ref] = true
	}
}

func TestInterestReference_IsDeterministic(t *testing.T) {
	id := uuid.MustParse("6f1c1f2e-9b0e-4b7a-9d3c-2f1c5e7a8b90")
	first := InterestReference(id, now)
	second := InterestReference(id, now.Add(24*time.Hour))

	assert.Equal(t, "INT-6f1c1f2e-9b0e-4b7a-9d3c-2f1c5e7a8b90-202603", first)
	assert.Equal(t, first, second)
	assert.NotEqual(t, first, InterestReference(id, now.AddDate(0, 1, 0)))
}

func TestNewAccountNumber(t *testing.T) {
	n, err := NewAccountNumber()
	require.NoError(t, err)
	assert.Regexp(t, `^[1-9][0-9]{11}$`, n)
}

func TestCanAccess(t *testing.T) {
	owner := uuid.New()
	other := uuid.New()

	assert.True(t, CanAccess(owner, false, owner))
	assert.False(t, CanAccess(other, false, owner))
	assert.True(t, CanAccess(other, true, owner))
	assert.False(t, CanAccess(uuid.Nil, false, uuid.Nil))

	assert.True(t, SystemCaller().CanAccess(owner))
	assert.True(t, Caller{UserID: other, Role: RoleAdmin}.CanAccess(owner))
	assert.False(t, Caller{UserID: other, Role: RoleCustomer}.CanAccess(owner))
}

func TestUser_Lockout(t *testing.T) {
	u := &User{ID: uuid.New()}

	for i := 0; i < DefaultMaxFailedLogins-1; i++ {
		u.RecordFailedLogin(DefaultMaxFailedLogins, DefaultLockoutDuration, now)
		assert.False(t, u.IsLockedOut(now))
	}

	u.RecordFailedLogin(DefaultMaxFailedLogins, DefaultLockoutDuration, now)
	assert.Equal(t, 5, u.FailedLoginAttempts)
	assert.True(t, u.IsLockedOut(now))
	assert.True(t, u.IsLockedOut(now.Add(14*time.Minute)))
	assert.False(t, u.IsLockedOut(now.Add(DefaultLockoutDuration)))

	later := now.Add(20 * time.Minute)
	u.RecordSuccessfulLogin(later)
	assert.Zero(t, u.FailedLoginAttempts)
	assert.Nil(t, u.LockoutEnd)
	assert.Equal(t, later, *u.LastLoginAt)
}

func TestUser_FailureAfterExpiredLockoutStartsNewWindow(t *testing.T) {
	u := &User{ID: uuid.New()}
	for i := 0; i < 5; i++ {
		u.RecordFailedLogin(5, time.Minute, now)
	}
	require.True(t, u.IsLockedOut(now))

	after := now.Add(2 * time.Minute)
	u.RecordFailedLogin(5, time.Minute, after)
	assert.Equal(t, 1, u.FailedLoginAttempts)
	assert.False(t, u.IsLockedOut(after))
}

func TestUser_Unlock(t *testing.T) {
	u := &User{ID: uuid.New()}
	for i := 0; i < 5; i++ {
		u.RecordFailedLogin(5, time.Hour, now)
	}
	u.Unlock(now)
	assert.False(t, u.IsLockedOut(now))
	assert.Zero(t, u.FailedLoginAttempts)
}

func TestBill_MarkPaid(t *testing.T) {
	b := NewBill(uuid.New(), uuid.New(), "Power Co", MustMoney("80", "USD"), now.AddDate(0, 0, 10), now)
	require.NoError(t, b.MarkPaid(now))
	assert.True(t, b.IsPaid)
	assert.ErrorIs(t, b.MarkPaid(now), ErrBillAlreadyPaid)
}
