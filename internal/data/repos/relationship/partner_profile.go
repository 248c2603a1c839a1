package relationship

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/attune-backend/internal/data/repos/repoerr"
	types "github.com/yungbote/attune-backend/internal/domain"
	"github.com/yungbote/attune-backend/internal/platform/dbctx"
	"github.com/yungbote/attune-backend/internal/platform/logger"
)

type PartnerProfileRepo interface {
	Upsert(dbc dbctx.Context, p *types.PartnerProfile) (*types.PartnerProfile, error)
	ListByRelationship(dbc dbctx.Context, relationshipID uuid.UUID) ([]*types.PartnerProfile, error)
}

type partnerProfileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPartnerProfileRepo(db *gorm.DB, baseLog *logger.Logger) PartnerProfileRepo {
	return &partnerProfileRepo{
		db:  db,
		log: baseLog.With("repo", "PartnerProfileRepo"),
	}
}

func (r *partnerProfileRepo) Upsert(dbc dbctx.Context, p *types.PartnerProfile) (*types.PartnerProfile, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if p == nil || p.RelationshipID == uuid.Nil || p.PartnerID == uuid.Nil {
		return nil, nil
	}
	p.UpdatedAt = time.Now().UTC()
	err := transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "relationship_id"}, {Name: "partner_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"stress_triggers", "soothing_mechanisms", "apology_preferences",
				"post_conflict_need", "repair_gestures", "escalation_triggers", "updated_at",
			}),
		}).
		Create(p).Error
	if err != nil {
		return nil, repoerr.MapError("partner_profile.upsert", err)
	}
	var stored types.PartnerProfile
	if err := transaction.WithContext(dbc.Ctx).
		Where("relationship_id = ? AND partner_id = ?", p.RelationshipID, p.PartnerID).
		First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *partnerProfileRepo) ListByRelationship(dbc dbctx.Context, relationshipID uuid.UUID) ([]*types.PartnerProfile, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.PartnerProfile
	if relationshipID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("relationship_id = ?", relationshipID).
		Order("partner_id").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
