package risk

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/attune-backend/internal/clients/redis"
	"github.com/yungbote/attune-backend/internal/modules/insight/history"
	"github.com/yungbote/attune-backend/internal/modules/insight/policy"
	"github.com/yungbote/attune-backend/internal/observability"
	"github.com/yungbote/attune-backend/internal/platform/logger"
)

type Service struct {
	loader *history.Loader
	cache  redis.KV
	policy *policy.Policy
	log    *logger.Logger
	now    func() time.Time
}

func NewService(loader *history.Loader, cache redis.KV, p *policy.Policy, baseLog *logger.Logger) *Service {
	if cache == nil {
		cache = redis.NewMemoryKV()
	}
	return &Service{
		loader: loader,
		cache:  cache,
		policy: p,
		log:    baseLog.With("service", "RiskService"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func cacheKey(relationshipID uuid.UUID) string { return "attune:risk:" + relationshipID.String() }

// Assess returns the current assessment, served from cache when fresh.
func (s *Service) Assess(ctx context.Context, relationshipID uuid.UUID) (*Assessment, error) {
	ctx, span := observability.StartSpan(ctx, "risk.Assess")
	defer span.End()

	if raw, err := s.cache.Get(ctx, cacheKey(relationshipID)); err == nil {
		var cached Assessment
		if json.Unmarshal([]byte(raw), &cached) == nil {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return &cached, nil
		}
	} else if !errors.Is(err, redis.ErrCacheMiss) {
		s.log.Warn("risk cache read failed", "error", err)
	}

	now := s.now()
	snap, err := s.loader.Load(ctx, relationshipID, now, nil)
	if err != nil {
		return nil, err
	}
	a := s.AssessSnapshot(snap, now)
	if raw, err := json.Marshal(a); err == nil {
		if err := s.cache.Set(ctx, cacheKey(relationshipID), string(raw), s.policy.Risk.CacheTTL()); err != nil {
			s.log.Warn("risk cache write failed", "error", err)
		}
	}
	span.SetAttributes(attribute.Float64("risk.score", a.RiskScore))
	return &a, nil
}

// AssessSnapshot scores a loaded snapshot and attaches recommendations.
func (s *Service) AssessSnapshot(snap *history.Snapshot, now time.Time) Assessment {
	a := Score(snap, now, s.policy.Risk)
	a.Recommendations = Recommend(a, snap, ChronicNeeds(snap, s.policy.Chronic))
	return a
}

func (s *Service) ChronicNeeds(ctx context.Context, relationshipID uuid.UUID) ([]ChronicNeed, error) {
	snap, err := s.loader.Load(ctx, relationshipID, s.now(), nil)
	if err != nil {
		return nil, err
	}
	return ChronicNeeds(snap, s.policy.Chronic), nil
}

// Invalidate drops the cached assessment after any write to the relationship's history.
func (s *Service) Invalidate(ctx context.Context, relationshipID uuid.UUID) {
	if err := s.cache.Delete(ctx, cacheKey(relationshipID)); err != nil {
		s.log.Warn("risk cache invalidate failed", "error", err)
	}
}
