package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/attune-backend/internal/http/response"
	"github.com/yungbote/attune-backend/internal/services"
)

type RelationshipHandler struct {
	rels services.RelationshipService
}

func NewRelationshipHandler(rels services.RelationshipService) *RelationshipHandler {
	return &RelationshipHandler{rels: rels}
}

// POST /api/relationships
func (h *RelationshipHandler) Create(c *gin.Context) {
	var in services.CreateRelationshipInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	rel, err := h.rels.Create(c.Request.Context(), in)
	if err != nil {
		response.RespondErr(c, "create_relationship_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"relationship": rel})
}

// GET /api/relationships/:id
func (h *RelationshipHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id", "invalid_relationship_id")
	if !ok {
		return
	}
	rel, err := h.rels.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondErr(c, "get_relationship_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"relationship": rel})
}

// GET /api/relationships/:id/profiles
func (h *RelationshipHandler) ListProfiles(c *gin.Context) {
	id, ok := uuidParam(c, "id", "invalid_relationship_id")
	if !ok {
		return
	}
	profiles, err := h.rels.ListProfiles(c.Request.Context(), id)
	if err != nil {
		response.RespondErr(c, "list_profiles_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"profiles": profiles})
}

// PUT /api/relationships/:id/partners/:partner_id/profile
func (h *RelationshipHandler) UpsertProfile(c *gin.Context) {
	id, ok := uuidParam(c, "id", "invalid_relationship_id")
	if !ok {
		return
	}
	partnerID, ok := uuidParam(c, "partner_id", "invalid_partner_id")
	if !ok {
		return
	}
	var in services.ProfileInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.rels.UpsertProfile(c.Request.Context(), id, partnerID, in)
	if err != nil {
		response.RespondErr(c, "upsert_profile_failed", err)
		return
	}
	response.RespondOK(c, res)
}
