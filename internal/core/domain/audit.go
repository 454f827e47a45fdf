package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionRegister       AuditAction = "REGISTER"
	AuditActionLogin          AuditAction = "LOGIN"
	AuditActionUnlockUser     AuditAction = "UNLOCK_USER"
	AuditActionOpenAccount    AuditAction = "OPEN_ACCOUNT"
	AuditActionCloseAccount   AuditAction = "CLOSE_ACCOUNT"
	AuditActionDeposit        AuditAction = "DEPOSIT"
	AuditActionWithdraw       AuditAction = "WITHDRAW"
	AuditActionTransfer       AuditAction = "TRANSFER"
	AuditActionCreateBill     AuditAction = "CREATE_BILL"
	AuditActionPayBill        AuditAction = "PAY_BILL"
	AuditActionAddTransaction AuditAction = "ADD_TRANSACTION"
	AuditActionRunJob         AuditAction = "RUN_JOB"
)

// AuditLog records a single audited action in the system.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	ActorID      *uuid.UUID  `json:"actor_id,omitempty"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address"`
	CreatedAt    time.Time   `json:"created_at"`
}
