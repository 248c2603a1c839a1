package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/attune-backend/internal/platform/envutil"
	"github.com/yungbote/attune-backend/internal/platform/logger"
)

const (
	EventConflictEnriched = "conflict.enriched"
	EventConflictFailed   = "conflict.enrichment_failed"
	EventPatternsUpdated  = "relationship.patterns_updated"
	EventJobFailed        = "job.failed"
	EventJobDone          = "job.done"
)

// InsightEvent tells downstream dashboards that derived data changed; it carries ids only.
type InsightEvent struct {
	Type           string     `json:"type"`
	RelationshipID uuid.UUID  `json:"relationship_id"`
	ConflictID     *uuid.UUID `json:"conflict_id,omitempty"`
	JobID          *uuid.UUID `json:"job_id,omitempty"`
	JobType        string     `json:"job_type,omitempty"`
	Status         string     `json:"status,omitempty"`
	At             time.Time  `json:"at"`
}

type EventBus interface {
	Publish(ctx context.Context, ev InsightEvent) error
	StartForwarder(ctx context.Context, onEvent func(ev InsightEvent)) error
}

type eventBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

// NewEventBus returns a no-op bus when rdb is nil.
func NewEventBus(rdb *goredis.Client, log *logger.Logger) EventBus {
	if rdb == nil {
		return noopBus{}
	}
	return &eventBus{
		log:     log.With("service", "RedisEventBus"),
		rdb:     rdb,
		channel: envutil.String("REDIS_CHANNEL", "attune.insights"),
	}
}

func (b *eventBus) Publish(ctx context.Context, ev InsightEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *eventBus) StartForwarder(ctx context.Context, onEvent func(ev InsightEvent)) error {
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}
	sub := b.rdb.Subscribe(ctx, b.channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var ev InsightEvent
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					b.log.Warn("bad insight event payload", "error", err)
					continue
				}
				onEvent(ev)
			}
		}
	}()
	return nil
}

type noopBus struct{}

func (noopBus) Publish(context.Context, InsightEvent) error { return nil }
func (noopBus) StartForwarder(context.Context, func(InsightEvent)) error {
	return nil
}
