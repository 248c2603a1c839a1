package relationship

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/attune-backend/internal/data/repos/repoerr"
	types "github.com/yungbote/attune-backend/internal/domain"
	"github.com/yungbote/attune-backend/internal/platform/dbctx"
	"github.com/yungbote/attune-backend/internal/platform/logger"
)

type RelationshipPatternsRepo interface {
	Replace(dbc dbctx.Context, row *types.RelationshipPatterns) error
	GetByRelationship(dbc dbctx.Context, relationshipID uuid.UUID) (*types.RelationshipPatterns, error)
	DeleteByRelationship(dbc dbctx.Context, relationshipID uuid.UUID) (bool, error)
}

type relationshipPatternsRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRelationshipPatternsRepo(db *gorm.DB, baseLog *logger.Logger) RelationshipPatternsRepo {
	return &relationshipPatternsRepo{
		db:  db,
		log: baseLog.With("repo", "RelationshipPatternsRepo"),
	}
}

// Replace overwrites every derived column of the relationship's single patterns row.
func (r *relationshipPatternsRepo) Replace(dbc dbctx.Context, row *types.RelationshipPatterns) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if row == nil || row.RelationshipID == uuid.Nil {
		return nil
	}
	row.UpdatedAt = time.Now().UTC()
	err := transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "relationship_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"last_updated", "total_fights_analyzed", "lookback_days",
				"escalation_triggers", "deescalation_techniques", "recurring_topics",
				"repair_strategies", "meta_patterns", "updated_at",
			}),
		}).
		Create(row).Error
	return repoerr.MapError("relationship_patterns.replace", err)
}

func (r *relationshipPatternsRepo) GetByRelationship(dbc dbctx.Context, relationshipID uuid.UUID) (*types.RelationshipPatterns, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if relationshipID == uuid.Nil {
		return nil, nil
	}
	var row types.RelationshipPatterns
	err := transaction.WithContext(dbc.Ctx).Where("relationship_id = ?", relationshipID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// DeleteByRelationship drops the stored patterns row; it reports whether a row existed.
func (r *relationshipPatternsRepo) DeleteByRelationship(dbc dbctx.Context, relationshipID uuid.UUID) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if relationshipID == uuid.Nil {
		return false, nil
	}
	res := transaction.WithContext(dbc.Ctx).
		Where("relationship_id = ?", relationshipID).
		Delete(&types.RelationshipPatterns{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
