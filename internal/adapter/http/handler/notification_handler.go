package handler

import (
	"strconv"

	"retail-ledger/internal/adapter/http/dto"
	"retail-ledger/internal/core/ports"
	"retail-ledger/pkg/apperror"
	"retail-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// NotificationHandler serves the caller's in-app notification inbox.
type NotificationHandler struct {
	inbox ports.NotificationInbox
}

func NewNotificationHandler(inbox ports.NotificationInbox) *NotificationHandler {
	return &NotificationHandler{inbox: inbox}
}

// ListNotifications handles GET /api/v1/notifications?limit=N.
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	limit := defaultPageSize
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.Error(c, apperror.Validation("limit must be a positive integer"))
			return
		}
		limit = min(n, maxPageSize)
	}

	notifications, err := h.inbox.Inbox(c.Request.Context(), caller.UserID, limit)
	if err != nil {
		response.Error(c, apperror.InternalError(err))
		return
	}

	items := make([]dto.NotificationResponse, len(notifications))
	for i, n := range notifications {
		items[i] = dto.NotificationResponse{
			ID:        n.ID.String(),
			EventType: string(n.EventType),
			Title:     n.Title,
			Body:      n.Body,
			CreatedAt: formatTime(n.CreatedAt),
		}
	}
	response.OK(c, items)
}
