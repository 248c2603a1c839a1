package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/attune-backend/internal/http/response"
	"github.com/yungbote/attune-backend/internal/services"
)

// InsightHandler serves the read-only relationship dashboards.
type InsightHandler struct {
	insights services.InsightService
}

func NewInsightHandler(insights services.InsightService) *InsightHandler {
	return &InsightHandler{insights: insights}
}

// GET /api/relationships/:id/risk
func (h *InsightHandler) Risk(c *gin.Context) {
	id, ok := uuidParam(c, "id", "invalid_relationship_id")
	if !ok {
		return
	}
	a, err := h.insights.Risk(c.Request.Context(), id)
	if err != nil {
		response.RespondErr(c, "risk_failed", err)
		return
	}
	response.RespondOK(c, a)
}

// GET /api/relationships/:id/chronic-needs
func (h *InsightHandler) ChronicNeeds(c *gin.Context) {
	id, ok := uuidParam(c, "id", "invalid_relationship_id")
	if !ok {
		return
	}
	needs, err := h.insights.ChronicNeeds(c.Request.Context(), id)
	if err != nil {
		response.RespondErr(c, "chronic_needs_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"chronic_needs": needs})
}

// GET /api/relationships/:id/triggers
func (h *InsightHandler) Triggers(c *gin.Context) {
	id, ok := uuidParam(c, "id", "invalid_relationship_id")
	if !ok {
		return
	}
	triggers, err := h.insights.Triggers(c.Request.Context(), id)
	if err != nil {
		response.RespondErr(c, "triggers_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"triggers": triggers})
}

// GET /api/relationships/:id/patterns
func (h *InsightHandler) Patterns(c *gin.Context) {
	id, ok := uuidParam(c, "id", "invalid_relationship_id")
	if !ok {
		return
	}
	view, err := h.insights.Patterns(c.Request.Context(), id)
	if err != nil {
		response.RespondErr(c, "patterns_failed", err)
		return
	}
	response.RespondOK(c, view)
}

// GET /api/relationships/:id/health
func (h *InsightHandler) Health(c *gin.Context) {
	id, ok := uuidParam(c, "id", "invalid_relationship_id")
	if !ok {
		return
	}
	report, err := h.insights.Health(c.Request.Context(), id)
	if err != nil {
		response.RespondErr(c, "health_failed", err)
		return
	}
	response.RespondOK(c, report)
}

// GET /api/relationships/:id/health/history
func (h *InsightHandler) HealthHistory(c *gin.Context) {
	id, ok := uuidParam(c, "id", "invalid_relationship_id")
	if !ok {
		return
	}
	snaps, err := h.insights.HealthHistory(c.Request.Context(), id, limitQuery(c, 30, 365))
	if err != nil {
		response.RespondErr(c, "health_history_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"snapshots": snaps})
}
