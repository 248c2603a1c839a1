package conflict

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/attune-backend/internal/data/repos/repoerr"
	types "github.com/yungbote/attune-backend/internal/domain"
	"github.com/yungbote/attune-backend/internal/platform/dbctx"
	"github.com/yungbote/attune-backend/internal/platform/logger"
)

type UnmetNeedRepo interface {
	ReplaceForConflict(dbc dbctx.Context, conflictID uuid.UUID, rows []*types.UnmetNeed) error
	ListByConflictIDs(dbc dbctx.Context, conflictIDs []uuid.UUID) ([]*types.UnmetNeed, error)
	ListByRelationship(dbc dbctx.Context, relationshipID uuid.UUID) ([]*types.UnmetNeed, error)
}

type unmetNeedRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUnmetNeedRepo(db *gorm.DB, baseLog *logger.Logger) UnmetNeedRepo {
	return &unmetNeedRepo{
		db:  db,
		log: baseLog.With("repo", "UnmetNeedRepo"),
	}
}

func (r *unmetNeedRepo) ReplaceForConflict(dbc dbctx.Context, conflictID uuid.UUID, rows []*types.UnmetNeed) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if conflictID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Where("conflict_id = ?", conflictID).Delete(&types.UnmetNeed{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		if err := txx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
			return repoerr.MapError("unmet_need.replace", err)
		}
		return nil
	})
}

func (r *unmetNeedRepo) ListByConflictIDs(dbc dbctx.Context, conflictIDs []uuid.UUID) ([]*types.UnmetNeed, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.UnmetNeed
	if len(conflictIDs) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("conflict_id IN ?", conflictIDs).
		Order("conflict_id, need").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *unmetNeedRepo) ListByRelationship(dbc dbctx.Context, relationshipID uuid.UUID) ([]*types.UnmetNeed, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.UnmetNeed
	if relationshipID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("relationship_id = ?", relationshipID).
		Order("created_at ASC, need").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
