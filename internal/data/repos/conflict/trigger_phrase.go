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

type TriggerPhraseRepo interface {
	ReplaceForConflict(dbc dbctx.Context, conflictID uuid.UUID, rows []*types.TriggerPhrase) error
	ListByConflictIDs(dbc dbctx.Context, conflictIDs []uuid.UUID) ([]*types.TriggerPhrase, error)
	ListByRelationship(dbc dbctx.Context, relationshipID uuid.UUID) ([]*types.TriggerPhrase, error)
}

type triggerPhraseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTriggerPhraseRepo(db *gorm.DB, baseLog *logger.Logger) TriggerPhraseRepo {
	return &triggerPhraseRepo{
		db:  db,
		log: baseLog.With("repo", "TriggerPhraseRepo"),
	}
}

// ReplaceForConflict supersedes any previous extraction pass; the natural key makes repeats no-ops.
func (r *triggerPhraseRepo) ReplaceForConflict(dbc dbctx.Context, conflictID uuid.UUID, rows []*types.TriggerPhrase) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if conflictID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Where("conflict_id = ?", conflictID).Delete(&types.TriggerPhrase{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		if err := txx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
			return repoerr.MapError("trigger_phrase.replace", err)
		}
		return nil
	})
}

func (r *triggerPhraseRepo) ListByConflictIDs(dbc dbctx.Context, conflictIDs []uuid.UUID) ([]*types.TriggerPhrase, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.TriggerPhrase
	if len(conflictIDs) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("conflict_id IN ?", conflictIDs).
		Order("conflict_id, phrase_norm, speaker_id").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *triggerPhraseRepo) ListByRelationship(dbc dbctx.Context, relationshipID uuid.UUID) ([]*types.TriggerPhrase, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.TriggerPhrase
	if relationshipID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("relationship_id = ?", relationshipID).
		Order("created_at ASC, phrase_norm").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
