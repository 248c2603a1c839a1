package relationship

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

type HealthSnapshotRepo interface {
	Create(dbc dbctx.Context, s *types.HealthSnapshot) (*types.HealthSnapshot, error)
	ListByRelationship(dbc dbctx.Context, relationshipID uuid.UUID, limit int) ([]*types.HealthSnapshot, error)
	LatestBefore(dbc dbctx.Context, relationshipID uuid.UUID, before time.Time) (*types.HealthSnapshot, error)
}

type healthSnapshotRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewHealthSnapshotRepo(db *gorm.DB, baseLog *logger.Logger) HealthSnapshotRepo {
	return &healthSnapshotRepo{
		db:  db,
		log: baseLog.With("repo", "HealthSnapshotRepo"),
	}
}

func (r *healthSnapshotRepo) Create(dbc dbctx.Context, s *types.HealthSnapshot) (*types.HealthSnapshot, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if s == nil {
		return nil, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(s).Error; err != nil {
		return nil, repoerr.MapError("health_snapshot.create", err)
	}
	return s, nil
}

// ListByRelationship returns the newest snapshots first.
func (r *healthSnapshotRepo) ListByRelationship(dbc dbctx.Context, relationshipID uuid.UUID, limit int) ([]*types.HealthSnapshot, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.HealthSnapshot
	if relationshipID == uuid.Nil {
		return out, nil
	}
	if limit <= 0 {
		limit = 30
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("relationship_id = ?", relationshipID).
		Order("computed_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *healthSnapshotRepo) LatestBefore(dbc dbctx.Context, relationshipID uuid.UUID, before time.Time) (*types.HealthSnapshot, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if relationshipID == uuid.Nil {
		return nil, nil
	}
	var s types.HealthSnapshot
	err := transaction.WithContext(dbc.Ctx).
		Where("relationship_id = ? AND computed_at <= ?", relationshipID, before).
		Order("computed_at DESC").
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
