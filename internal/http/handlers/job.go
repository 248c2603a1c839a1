package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/attune-backend/internal/domain"
	"github.com/yungbote/attune-backend/internal/http/response"
	"github.com/yungbote/attune-backend/internal/platform/dbctx"
	"github.com/yungbote/attune-backend/internal/services"
)

type JobHandler struct {
	jobs services.JobService
}

func NewJobHandler(jobs services.JobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// GET /api/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	h.onJob(c, "get_job_failed", h.jobs.GetByID)
}

// POST /api/jobs/:id/cancel
func (h *JobHandler) CancelJob(c *gin.Context) {
	h.onJob(c, "cancel_job_failed", h.jobs.Cancel)
}

// POST /api/jobs/:id/restart
func (h *JobHandler) RestartJob(c *gin.Context) {
	h.onJob(c, "restart_job_failed", h.jobs.Restart)
}

// GET /api/relationships/:id/jobs?limit=
func (h *JobHandler) ListForRelationship(c *gin.Context) {
	relID, ok := uuidParam(c, "id", "invalid_relationship_id")
	if !ok {
		return
	}
	jobs, err := h.jobs.ListForRelationship(dbctx.Context{Ctx: c.Request.Context()}, relID, limitQuery(c, 50, 200))
	if err != nil {
		response.RespondErr(c, "list_jobs_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"jobs": jobs})
}

func (h *JobHandler) onJob(c *gin.Context, failCode string, op func(dbctx.Context, uuid.UUID) (*types.JobRun, error)) {
	jobID, ok := uuidParam(c, "id", "invalid_job_id")
	if !ok {
		return
	}
	job, err := op(dbctx.Context{Ctx: c.Request.Context()}, jobID)
	if err != nil {
		response.RespondErr(c, failCode, err)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}
