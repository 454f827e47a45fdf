package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewReferenceNumber returns "<PREFIX>-<32 hex chars>" built from a UUIDv7,
// so references sort roughly by creation time.
func NewReferenceNumber(t TransactionType) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate reference: %w", err)
	}
	return t.ReferencePrefix() + "-" + strings.ToUpper(hex.EncodeToString(id[:])), nil
}

// InterestReference is deterministic per account and month so a rerun of the
// interest job collides instead of double-crediting.
func InterestReference(accountID uuid.UUID, period time.Time) string {
	return fmt.Sprintf("%s-%s-%s", TransactionTypeInterestCredit.ReferencePrefix(), accountID, period.UTC().Format("200601"))
}

const accountNumberDigits = 12

// NewAccountNumber returns a random 12-digit account number.
func NewAccountNumber() (string, error) {
	max := big.NewInt(10)
	var sb strings.Builder
	sb.Grow(accountNumberDigits)
	for i := 0; i < accountNumberDigits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate account number: %w", err)
		}
		if i == 0 && n.Int64() == 0 {
			n = big.NewInt(1)
		}
		sb.WriteByte(byte('0' + n.Int64()))
	}
	return sb.String(), nil
}
