package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"retail-ledger/internal/core/domain"
	"retail-ledger/internal/core/ports"
	"retail-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type auditRoute struct {
	action       domain.AuditAction
	resourceType string
}

// auditedRoutes maps registered route patterns of money-moving and account
// lifecycle writes to audit actions. Sign-in flows are audited by AuthService.
var auditedRoutes = map[string]auditRoute{
	"POST /api/v1/accounts":                        {domain.AuditActionOpenAccount, "account"},
	"POST /api/v1/accounts/:id/close":              {domain.AuditActionCloseAccount, "account"},
	"POST /api/v1/accounts/:id/deposit":            {domain.AuditActionDeposit, "account"},
	"POST /api/v1/accounts/:id/withdraw":           {domain.AuditActionWithdraw, "account"},
	"POST /api/v1/transfers":                       {domain.AuditActionTransfer, "transfer"},
	"POST /api/v1/bills":                           {domain.AuditActionCreateBill, "bill"},
	"POST /api/v1/bills/:id/pay":                   {domain.AuditActionPayBill, "bill"},
	"POST /api/v1/admin/accounts/:id/transactions": {domain.AuditActionAddTransaction, "account"},
	"POST /api/v1/admin/jobs/:job":                 {domain.AuditActionRunJob, "job"},
}

// AuditLog creates an audit middleware that records successful writes.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status < 200 || status >= 300 {
			return
		}
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead || c.Request.Method == http.MethodOptions {
			return
		}

		route, ok := auditedRoutes[c.Request.Method+" "+c.FullPath()]
		if !ok {
			return
		}

		var actorID *uuid.UUID
		if caller, ok := CallerFromContext(c); ok {
			actorID = &caller.UserID
		}

		resourceID := c.Param("id")
		if job := c.Param("job"); job != "" {
			resourceID = job
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"request_id": c.GetString(response.RequestIDKey),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:           uuid.New(),
			ActorID:      actorID,
			Action:       route.action,
			ResourceType: route.resourceType,
			ResourceID:   resourceID,
			IPAddress:    c.ClientIP(),
			Details:      string(details),
			CreatedAt:    time.Now().UTC(),
		})
	}
}
