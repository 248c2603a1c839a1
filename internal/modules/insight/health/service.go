package health

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/attune-backend/internal/data/repos"
	types "github.com/yungbote/attune-backend/internal/domain"
	"github.com/yungbote/attune-backend/internal/modules/insight/history"
	"github.com/yungbote/attune-backend/internal/modules/insight/policy"
	"github.com/yungbote/attune-backend/internal/observability"
	"github.com/yungbote/attune-backend/internal/platform/dbctx"
	"github.com/yungbote/attune-backend/internal/platform/logger"
)

type Service struct {
	loader    *history.Loader
	snapshots repos.HealthSnapshotRepo
	policy    *policy.Policy
	log       *logger.Logger
	now       func() time.Time
}

func NewService(loader *history.Loader, snapshots repos.HealthSnapshotRepo, p *policy.Policy, baseLog *logger.Logger) *Service {
	return &Service{
		loader:    loader,
		snapshots: snapshots,
		policy:    p,
		log:       baseLog.With("service", "HealthService"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Health computes the current score and records it as a snapshot, at most once per
// snapshot interval per relationship. A failed write is logged and does not affect the report.
func (s *Service) Health(ctx context.Context, relationshipID uuid.UUID) (*Report, error) {
	ctx, span := observability.StartSpan(ctx, "health.Compute")
	defer span.End()

	now := s.now()
	snap, err := s.loader.Load(ctx, relationshipID, now, nil)
	if err != nil {
		return nil, err
	}
	rep := Compute(snap, now, s.policy)
	span.SetAttributes(
		attribute.Float64("health.score", rep.Score),
		attribute.String("health.trend", rep.Trend),
	)
	s.record(ctx, relationshipID, &rep, now)
	return &rep, nil
}

func (s *Service) record(ctx context.Context, relationshipID uuid.UUID, rep *Report, now time.Time) {
	if s.snapshots == nil {
		return
	}
	dbc := dbctx.Context{Ctx: ctx}
	if interval := s.policy.Health.SnapshotInterval(); interval > 0 {
		last, err := s.snapshots.LatestBefore(dbc, relationshipID, now)
		if err != nil {
			s.log.Warn("load latest health snapshot failed", "relationship_id", relationshipID, "error", err)
			return
		}
		if last != nil && now.Sub(last.ComputedAt) < interval {
			return
		}
	}
	if _, err := s.snapshots.Create(dbc, rep.Snapshot()); err != nil {
		s.log.Warn("persist health snapshot failed", "relationship_id", relationshipID, "error", err)
	}
}

func (s *Service) History(ctx context.Context, relationshipID uuid.UUID, limit int) ([]*types.HealthSnapshot, error) {
	if limit <= 0 || limit > 365 {
		limit = 30
	}
	return s.snapshots.ListByRelationship(dbctx.Context{Ctx: ctx}, relationshipID, limit)
}
