package dto

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

// --- SanitizeStruct tests ---

func TestSanitizeStruct_TrimsWhitespace(t *testing.T) {
	req := CreateBillRequest{
		AccountID: "  6f1c2b1e-0000-4000-8000-000000000001 ",
		Payee:     " City Power ",
		DueDate:   "2026-04-01 ",
	}
	SanitizeStruct(&req)

	assert.Equal(t, "6f1c2b1e-0000-4000-8000-000000000001", req.AccountID)
	assert.Equal(t, "City Power", req.Payee)
	assert.Equal(t, "2026-04-01", req.DueDate)
}

func TestSanitizeStruct_EscapesHTML(t *testing.T) {
	req := DepositRequest{
		Amount:      decimal.NewFromInt(10),
		Description: "salary <script>alert('x')</script>",
	}
	SanitizeStruct(&req)

	assert.Contains(t, req.Description, "&lt;script&gt;")
	assert.NotContains(t, req.Description, "<script>")
	assert.True(t, req.Amount.Equal(decimal.NewFromInt(10)), "non-string fields untouched")
}

func TestSanitizeStruct_HandlesPointerString(t *testing.T) {
	note := "  <b>late</b>  "
	var empty *string
	req := struct {
		Note  *string
		Other *string
	}{Note: &note, Other: empty}
	SanitizeStruct(&req)

	assert.Equal(t, "&lt;b&gt;late&lt;/b&gt;", *req.Note)
	assert.Nil(t, req.Other)
}

func TestSanitizeStruct_NonPointerIsNoOp(t *testing.T) {
	s := "hello"
	SanitizeStruct(s) // should not panic
}

// --- Custom Validator tests ---

func newValidator() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	RegisterValidations(v)
	return v
}

func TestSafeID(t *testing.T) {
	for _, tc := range []string{"ref-001", "REF_002", "a.b.c", "ABC-def_GHI.123"} {
		assert.True(t, safeStringRe.MatchString(tc), "expected valid: %s", tc)
	}
	for _, tc := range []string{"ref 001", "ref<001>", "ref;DROP", "", "ref\n001"} {
		assert.False(t, safeStringRe.MatchString(tc), "expected invalid: %q", tc)
	}
}

func TestCurrencyTag(t *testing.T) {
	v := newValidator()
	assert.NoError(t, v.Var("USD", "currency"))
	assert.NoError(t, v.Var("eur", "currency"))
	assert.Error(t, v.Var("US", "currency"))
	assert.Error(t, v.Var("US1", "currency"))
	assert.Error(t, v.Var("DOLLAR", "currency"))
}

func TestAccountTypeTag(t *testing.T) {
	v := newValidator()
	assert.NoError(t, v.Var("SAVINGS", "account_type"))
	assert.NoError(t, v.Var("money_market", "account_type"))
	assert.Error(t, v.Var("BROKERAGE", "account_type"))
}

func TestTransactionTypeTag(t *testing.T) {
	v := newValidator()
	for _, ok := range []string{"DEPOSIT", "withdrawal", "FEE", "REFUND", "CARD_CHARGE", "INTEREST_CREDIT"} {
		assert.NoError(t, v.Var(ok, "transaction_type"), ok)
	}
	for _, bad := range []string{"TRANSFER", "BILL_PAYMENT", "GIFT"} {
		assert.Error(t, v.Var(bad, "transaction_type"), bad)
	}
}

func TestRequestStructs(t *testing.T) {
	v := newValidator()

	assert.NoError(t, v.Struct(OpenAccountRequest{AccountType: "CHECKING", Currency: "USD"}))
	assert.Error(t, v.Struct(OpenAccountRequest{UserID: "not-a-uuid", AccountType: "CHECKING", Currency: "USD"}))

	assert.NoError(t, v.Struct(CreateBillRequest{
		AccountID: "6f1c2b1e-0000-4000-8000-000000000001", Payee: "Gas", DueDate: "2026-04-01",
	}))
	assert.Error(t, v.Struct(CreateBillRequest{
		AccountID: "6f1c2b1e-0000-4000-8000-000000000001", Payee: "Gas", DueDate: "01/04/2026",
	}))

	assert.Error(t, v.Struct(DepositRequest{ReferenceNumber: "has spaces"}))
	assert.NoError(t, v.Struct(DepositRequest{ReferenceNumber: "PAYROLL-2026-03"}))
}
