package handler

import (
	"time"

	"retail-ledger/internal/adapter/http/dto"
	"retail-ledger/internal/core/ports"
	"retail-ledger/pkg/apperror"
	"retail-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// BillHandler handles bill registration and listing. Paying a bill is a
// ledger operation served by LedgerHandler.PayBill.
type BillHandler struct {
	bills ports.BillService
}

func NewBillHandler(bills ports.BillService) *BillHandler {
	return &BillHandler{bills: bills}
}

// ListBills handles GET /api/v1/bills.
func (h *BillHandler) ListBills(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	bills, err := h.bills.ListBills(c.Request.Context(), caller)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.BillResponse, len(bills))
	for i := range bills {
		items[i] = toBillResponse(&bills[i])
	}
	response.OK(c, items)
}

// CreateBill handles POST /api/v1/bills.
func (h *BillHandler) CreateBill(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	var req dto.CreateBillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	due, err := time.Parse("2006-01-02", req.DueDate)
	if err != nil {
		response.Error(c, apperror.Validation("due_date must be YYYY-MM-DD"))
		return
	}

	bill, err := h.bills.CreateBill(c.Request.Context(), caller, ports.CreateBillRequest{
		AccountID: uuid.MustParse(req.AccountID),
		Payee:     req.Payee,
		Amount:    req.Amount,
		DueDate:   due,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toBillResponse(bill))
}
