package conflict

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/attune-backend/internal/data/repos/repoerr"
	types "github.com/yungbote/attune-backend/internal/domain"
	"github.com/yungbote/attune-backend/internal/platform/dbctx"
	"github.com/yungbote/attune-backend/internal/platform/logger"
)

type ConflictRepo interface {
	Create(dbc dbctx.Context, c *types.Conflict) (*types.Conflict, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Conflict, error)
	ListByRelationship(dbc dbctx.Context, relationshipID uuid.UUID, since *time.Time, until *time.Time) ([]*types.Conflict, error)
	ListUnresolvedAt(dbc dbctx.Context, relationshipID uuid.UUID, at time.Time) ([]*types.Conflict, error)
	ListByChain(dbc dbctx.Context, chainID uuid.UUID) ([]*types.Conflict, error)
	ListByEnrichmentStatus(dbc dbctx.Context, relationshipID uuid.UUID, statuses []string) ([]*types.Conflict, error)
	CountEnriched(dbc dbctx.Context, relationshipID uuid.UUID) (int64, error)
	ListRelationshipIDsWithEnriched(dbc dbctx.Context, minCount int) ([]uuid.UUID, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	TransitionStatus(dbc dbctx.Context, id uuid.UUID, allowedFrom []string, updates map[string]interface{}) (bool, error)
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type conflictRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConflictRepo(db *gorm.DB, baseLog *logger.Logger) ConflictRepo {
	return &conflictRepo{
		db:  db,
		log: baseLog.With("repo", "ConflictRepo"),
	}
}

func (r *conflictRepo) Create(dbc dbctx.Context, c *types.Conflict) (*types.Conflict, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if c == nil {
		return nil, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(c).Error; err != nil {
		return nil, repoerr.MapError("conflict.create", err)
	}
	return c, nil
}

func (r *conflictRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Conflict, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var c types.Conflict
	err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListByRelationship returns conflicts ordered by created_at; bounds are inclusive and optional.
func (r *conflictRepo) ListByRelationship(dbc dbctx.Context, relationshipID uuid.UUID, since *time.Time, until *time.Time) ([]*types.Conflict, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Conflict
	if relationshipID == uuid.Nil {
		return out, nil
	}
	q := transaction.WithContext(dbc.Ctx).Where("relationship_id = ?", relationshipID)
	if since != nil {
		q = q.Where("created_at >= ?", *since)
	}
	if until != nil {
		q = q.Where("created_at <= ?", *until)
	}
	if err := q.Order("created_at ASC, id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListUnresolvedAt returns conflicts created before at that were still open at that instant, oldest first.
func (r *conflictRepo) ListUnresolvedAt(dbc dbctx.Context, relationshipID uuid.UUID, at time.Time) ([]*types.Conflict, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Conflict
	if relationshipID == uuid.Nil {
		return out, nil
	}
	err := transaction.WithContext(dbc.Ctx).
		Where("relationship_id = ? AND created_at < ?", relationshipID, at).
		Where("(is_resolved = ? OR resolved_at > ?)", false, at).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *conflictRepo) ListByChain(dbc dbctx.Context, chainID uuid.UUID) ([]*types.Conflict, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Conflict
	if chainID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("conflict_chain_id = ?", chainID).
		Order("created_at ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *conflictRepo) ListByEnrichmentStatus(dbc dbctx.Context, relationshipID uuid.UUID, statuses []string) ([]*types.Conflict, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Conflict
	if relationshipID == uuid.Nil || len(statuses) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("relationship_id = ? AND enrichment_status IN ?", relationshipID, statuses).
		Order("created_at ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *conflictRepo) CountEnriched(dbc dbctx.Context, relationshipID uuid.UUID) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if relationshipID == uuid.Nil {
		return 0, nil
	}
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.Conflict{}).
		Where("relationship_id = ? AND enrichment_status = ?", relationshipID, "completed").
		Count(&count).Error
	return count, err
}

func (r *conflictRepo) ListRelationshipIDsWithEnriched(dbc dbctx.Context, minCount int) ([]uuid.UUID, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []struct {
		RelationshipID uuid.UUID
	}
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.Conflict{}).
		Select("relationship_id").
		Where("enrichment_status = ?", "completed").
		Group("relationship_id").
		Having("COUNT(*) >= ?", minCount).
		Order("relationship_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.RelationshipID)
	}
	return out, nil
}

func (r *conflictRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Conflict{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// TransitionStatus applies updates only while enrichment_status is one of allowedFrom.
// It returns false when another writer moved the row first.
func (r *conflictRepo) TransitionStatus(dbc dbctx.Context, id uuid.UUID, allowedFrom []string, updates map[string]interface{}) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	q := transaction.WithContext(dbc.Ctx).Model(&types.Conflict{}).Where("id = ?", id)
	if len(allowedFrom) > 0 {
		q = q.Where("enrichment_status IN ?", allowedFrom)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Delete removes a conflict together with every enrichment row it owns. Its chain child is
// re-pointed to its own parent so the chain keeps a single root.
func (r *conflictRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var doomed types.Conflict
		err := txx.Select("id", "parent_conflict_id").Where("id = ?", id).First(&doomed).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var parent interface{}
		if doomed.ParentConflictID != nil {
			parent = *doomed.ParentConflictID
		}
		for _, model := range []interface{}{
			&types.TriggerPhrase{}, &types.UnmetNeed{}, &types.RepairAttempt{}, &types.RepairAction{},
		} {
			if err := txx.Where("conflict_id = ?", id).Delete(model).Error; err != nil {
				return err
			}
		}
		if err := txx.Model(&types.Conflict{}).
			Where("parent_conflict_id = ?", id).
			Update("parent_conflict_id", parent).Error; err != nil {
			return err
		}
		return txx.Where("id = ?", id).Delete(&types.Conflict{}).Error
	})
}
