package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/attune-backend/internal/http/response"
	"github.com/yungbote/attune-backend/internal/services"
)

type ConflictHandler struct {
	conflicts services.ConflictService
	insights  services.InsightService
}

func NewConflictHandler(conflicts services.ConflictService, insights services.InsightService) *ConflictHandler {
	return &ConflictHandler{conflicts: conflicts, insights: insights}
}

// POST /api/relationships/:id/conflicts
func (h *ConflictHandler) Capture(c *gin.Context) {
	relID, ok := uuidParam(c, "id", "invalid_relationship_id")
	if !ok {
		return
	}
	var in services.CaptureConflictInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	conflict, job, err := h.conflicts.Capture(c.Request.Context(), relID, in)
	if err != nil {
		response.RespondErr(c, "capture_conflict_failed", err)
		return
	}
	response.RespondAccepted(c, gin.H{"conflict": conflict, "job": job})
}

// GET /api/relationships/:id/conflicts
func (h *ConflictHandler) List(c *gin.Context) {
	relID, ok := uuidParam(c, "id", "invalid_relationship_id")
	if !ok {
		return
	}
	since, err := timeQuery(c, "since")
	if err != nil {
		response.RespondErr(c, "invalid_request", err)
		return
	}
	until, err := timeQuery(c, "until")
	if err != nil {
		response.RespondErr(c, "invalid_request", err)
		return
	}
	out, err := h.conflicts.ListForRelationship(c.Request.Context(), relID, since, until)
	if err != nil {
		response.RespondErr(c, "list_conflicts_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"conflicts": out})
}

// GET /api/conflicts/:id
func (h *ConflictHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id", "invalid_conflict_id")
	if !ok {
		return
	}
	view, err := h.insights.Conflict(c.Request.Context(), id)
	if err != nil {
		response.RespondErr(c, "get_conflict_failed", err)
		return
	}
	response.RespondOK(c, view)
}

// GET /api/conflicts/:id/chain
func (h *ConflictHandler) Chain(c *gin.Context) {
	id, ok := uuidParam(c, "id", "invalid_conflict_id")
	if !ok {
		return
	}
	members, err := h.insights.Chain(c.Request.Context(), id)
	if err != nil {
		response.RespondErr(c, "get_chain_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"chain": members})
}

// POST /api/conflicts/:id/enrich
func (h *ConflictHandler) Enrich(c *gin.Context) {
	id, ok := uuidParam(c, "id", "invalid_conflict_id")
	if !ok {
		return
	}
	conflict, job, err := h.conflicts.RequestEnrichment(c.Request.Context(), id)
	if err != nil {
		response.RespondErr(c, "enrich_conflict_failed", err)
		return
	}
	response.RespondAccepted(c, gin.H{"conflict": conflict, "job": job})
}

// POST /api/conflicts/:id/resolve
func (h *ConflictHandler) Resolve(c *gin.Context) {
	id, ok := uuidParam(c, "id", "invalid_conflict_id")
	if !ok {
		return
	}
	var in services.ResolveConflictInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	conflict, err := h.conflicts.Resolve(c.Request.Context(), id, in)
	if err != nil {
		response.RespondErr(c, "resolve_conflict_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"conflict": conflict})
}

// DELETE /api/conflicts/:id
func (h *ConflictHandler) Delete(c *gin.Context) {
	id, ok := uuidParam(c, "id", "invalid_conflict_id")
	if !ok {
		return
	}
	if err := h.conflicts.Delete(c.Request.Context(), id); err != nil {
		response.RespondErr(c, "delete_conflict_failed", err)
		return
	}
	response.RespondNoContent(c)
}
