package relationship

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/attune-backend/internal/data/repos/repoerr"
	types "github.com/yungbote/attune-backend/internal/domain"
	"github.com/yungbote/attune-backend/internal/platform/dbctx"
	"github.com/yungbote/attune-backend/internal/platform/logger"
)

type RelationshipRepo interface {
	Create(dbc dbctx.Context, rel *types.Relationship) (*types.Relationship, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Relationship, error)
	ListIDs(dbc dbctx.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
}

type relationshipRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRelationshipRepo(db *gorm.DB, baseLog *logger.Logger) RelationshipRepo {
	return &relationshipRepo{
		db:  db,
		log: baseLog.With("repo", "RelationshipRepo"),
	}
}

func (r *relationshipRepo) Create(dbc dbctx.Context, rel *types.Relationship) (*types.Relationship, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if rel == nil {
		return nil, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(rel).Error; err != nil {
		return nil, repoerr.MapError("relationship.create", err)
	}
	return rel, nil
}

func (r *relationshipRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Relationship, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var rel types.Relationship
	err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).First(&rel).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rel, nil
}

// ListIDs pages relationship ids in id order; pass uuid.Nil to start.
func (r *relationshipRepo) ListIDs(dbc dbctx.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 500
	}
	var ids []uuid.UUID
	q := transaction.WithContext(dbc.Ctx).Model(&types.Relationship{})
	if after != uuid.Nil {
		q = q.Where("id > ?", after)
	}
	if err := q.Order("id ASC").Limit(limit).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
