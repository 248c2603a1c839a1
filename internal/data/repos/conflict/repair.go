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

type RepairAttemptRepo interface {
	ReplaceForConflict(dbc dbctx.Context, conflictID uuid.UUID, rows []*types.RepairAttempt) error
	ListByConflictIDs(dbc dbctx.Context, conflictIDs []uuid.UUID) ([]*types.RepairAttempt, error)
	ListByRelationship(dbc dbctx.Context, relationshipID uuid.UUID) ([]*types.RepairAttempt, error)
}

type repairAttemptRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRepairAttemptRepo(db *gorm.DB, baseLog *logger.Logger) RepairAttemptRepo {
	return &repairAttemptRepo{
		db:  db,
		log: baseLog.With("repo", "RepairAttemptRepo"),
	}
}

func (r *repairAttemptRepo) ReplaceForConflict(dbc dbctx.Context, conflictID uuid.UUID, rows []*types.RepairAttempt) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if conflictID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Where("conflict_id = ?", conflictID).Delete(&types.RepairAttempt{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		if err := txx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
			return repoerr.MapError("repair_attempt.replace", err)
		}
		return nil
	})
}

func (r *repairAttemptRepo) ListByConflictIDs(dbc dbctx.Context, conflictIDs []uuid.UUID) ([]*types.RepairAttempt, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.RepairAttempt
	if len(conflictIDs) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("conflict_id IN ?", conflictIDs).
		Order("conflict_id, turn_index").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repairAttemptRepo) ListByRelationship(dbc dbctx.Context, relationshipID uuid.UUID) ([]*types.RepairAttempt, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.RepairAttempt
	if relationshipID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("relationship_id = ?", relationshipID).
		Order("created_at ASC, turn_index").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

type RepairActionRepo interface {
	Upsert(dbc dbctx.Context, rows []*types.RepairAction) error
	ListByConflictIDs(dbc dbctx.Context, conflictIDs []uuid.UUID) ([]*types.RepairAction, error)
	ListByRelationship(dbc dbctx.Context, relationshipID uuid.UUID) ([]*types.RepairAction, error)
}

type repairActionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRepairActionRepo(db *gorm.DB, baseLog *logger.Logger) RepairActionRepo {
	return &repairActionRepo{
		db:  db,
		log: baseLog.With("repo", "RepairActionRepo"),
	}
}

// Upsert keeps the first recorded application of a strategy per conflict.
func (r *repairActionRepo) Upsert(dbc dbctx.Context, rows []*types.RepairAction) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "conflict_id"}, {Name: "strategy_norm"}},
			DoNothing: true,
		}).
		Create(&rows).Error; err != nil {
		return repoerr.MapError("repair_action.upsert", err)
	}
	return nil
}

func (r *repairActionRepo) ListByConflictIDs(dbc dbctx.Context, conflictIDs []uuid.UUID) ([]*types.RepairAction, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.RepairAction
	if len(conflictIDs) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("conflict_id IN ?", conflictIDs).
		Order("applied_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repairActionRepo) ListByRelationship(dbc dbctx.Context, relationshipID uuid.UUID) ([]*types.RepairAction, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.RepairAction
	if relationshipID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("relationship_id = ?", relationshipID).
		Order("applied_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
