package handler

import (
	"context"
	"errors"
	"time"

	"retail-ledger/internal/adapter/http/dto"
	"retail-ledger/internal/scheduler"
	"retail-ledger/pkg/apperror"
	"retail-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// JobTrigger runs a registered background job on demand.
type JobTrigger interface {
	Trigger(ctx context.Context, name string) error
}

// jobAliases maps the path segment to the scheduler job name.
var jobAliases = map[string]string{
	"interest": "interest-accrual",
	"outbox":   "outbox-relay",
}

// JobHandler lets staff run scheduled jobs immediately.
type JobHandler struct {
	jobs JobTrigger
}

func NewJobHandler(jobs JobTrigger) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// RunJob handles POST /api/v1/admin/jobs/:job. The job runs to completion
// before the response is written.
func (h *JobHandler) RunJob(c *gin.Context) {
	name, ok := jobAliases[c.Param("job")]
	if !ok {
		response.Error(c, apperror.ErrNotFound("Job"))
		return
	}

	started := time.Now()
	if err := h.jobs.Trigger(c.Request.Context(), name); err != nil {
		if errors.Is(err, scheduler.ErrUnknownJob) {
			response.Error(c, apperror.ErrNotFound("Job"))
			return
		}
		response.Error(c, apperror.InternalError(err))
		return
	}

	response.OK(c, dto.JobRunResponse{
		Job:       name,
		Status:    "completed",
		StartedAt: formatTime(started),
	})
}
