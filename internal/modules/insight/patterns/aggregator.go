package patterns

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/attune-backend/internal/clients/redis"
	"github.com/yungbote/attune-backend/internal/data/repos"
	types "github.com/yungbote/attune-backend/internal/domain"
	"github.com/yungbote/attune-backend/internal/modules/insight/errs"
	"github.com/yungbote/attune-backend/internal/modules/insight/history"
	"github.com/yungbote/attune-backend/internal/modules/insight/policy"
	"github.com/yungbote/attune-backend/internal/observability"
	"github.com/yungbote/attune-backend/internal/platform/dbctx"
	"github.com/yungbote/attune-backend/internal/platform/logger"
)

const lockTTL = 5 * time.Minute

type Aggregator struct {
	loader   *history.Loader
	patterns repos.RelationshipPatternsRepo
	locker   redis.Locker
	events   redis.EventBus
	policy   *policy.Policy
	log      *logger.Logger
	now      func() time.Time
}

func NewAggregator(
	loader *history.Loader,
	patterns repos.RelationshipPatternsRepo,
	locker redis.Locker,
	events redis.EventBus,
	p *policy.Policy,
	baseLog *logger.Logger,
) *Aggregator {
	if locker == nil {
		locker = redis.NewLocalLocker()
	}
	if events == nil {
		events = redis.NewEventBus(nil, baseLog)
	}
	return &Aggregator{
		loader:   loader,
		patterns: patterns,
		locker:   locker,
		events:   events,
		policy:   p,
		log:      baseLog.With("service", "PatternAggregator"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Aggregate recomputes and replaces the relationship's pattern row, or removes it once the
// history no longer supports patterns. Runs for the same relationship are serialized; a
// concurrent caller gets ErrAggregationInFlight.
func (a *Aggregator) Aggregate(ctx context.Context, relationshipID uuid.UUID) (*types.PatternSet, error) {
	ctx, span := observability.StartSpan(ctx, "patterns.Aggregate")
	defer span.End()
	span.SetAttributes(attribute.String("relationship_id", relationshipID.String()))

	release, ok, err := a.locker.TryLock(ctx, "patterns:"+relationshipID.String(), lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire aggregation lock: %w", err)
	}
	if !ok {
		return nil, errs.ErrAggregationInFlight
	}
	defer release()

	now := a.now()
	var since *time.Time
	if days := a.policy.Aggregation.LookbackDays; days > 0 {
		t := now.Add(-time.Duration(days) * day)
		since = &t
	}
	snap, err := a.loader.Load(ctx, relationshipID, now, since)
	if err != nil {
		return nil, err
	}
	set, err := Compute(snap, now, a.policy.Aggregation)
	if err != nil {
		if errors.Is(err, errs.ErrInsufficientHistory) {
			cleared, delErr := a.patterns.DeleteByRelationship(dbctx.Context{Ctx: ctx}, relationshipID)
			if delErr != nil {
				return nil, fmt.Errorf("clear stale patterns: %w", delErr)
			}
			a.log.Info("aggregation skipped: insufficient history",
				"relationship_id", relationshipID,
				"enriched", len(snap.Enriched()),
				"cleared", cleared,
			)
		}
		return nil, err
	}
	if err := a.patterns.Replace(dbctx.Context{Ctx: ctx}, set.Row()); err != nil {
		return nil, fmt.Errorf("replace patterns: %w", err)
	}
	span.SetAttributes(attribute.Int("patterns.fights_analyzed", set.TotalFightsAnalyzed))
	a.log.Info("patterns aggregated",
		"relationship_id", relationshipID,
		"fights_analyzed", set.TotalFightsAnalyzed,
		"triggers", len(set.EscalationTriggers),
		"topics", len(set.RecurringTopics),
	)
	if err := a.events.Publish(ctx, redis.InsightEvent{
		Type:           redis.EventPatternsUpdated,
		RelationshipID: relationshipID,
		At:             now,
	}); err != nil {
		a.log.Warn("publish patterns event failed", "relationship_id", relationshipID, "error", err)
	}
	return set, nil
}

// Current returns the stored pattern set, or ErrInsufficientHistory when none was computed yet.
func (a *Aggregator) Current(ctx context.Context, relationshipID uuid.UUID) (*types.PatternSet, error) {
	row, err := a.patterns.GetByRelationship(dbctx.Context{Ctx: ctx}, relationshipID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, errs.ErrInsufficientHistory
	}
	return row.Decode()
}

// Triggers ranks escalation triggers live from history, without touching the stored row.
func (a *Aggregator) Triggers(ctx context.Context, relationshipID uuid.UUID) ([]types.TriggerStat, error) {
	snap, err := a.loader.Load(ctx, relationshipID, a.now(), nil)
	if err != nil {
		return nil, err
	}
	return RankTriggers(snap, a.policy.Aggregation), nil
}
