package pattern_aggregate

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	jobrt "github.com/yungbote/attune-backend/internal/jobs/runtime"
	"github.com/yungbote/attune-backend/internal/modules/insight/errs"
	"github.com/yungbote/attune-backend/internal/observability"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	relID, ok := jc.PayloadUUID("relationship_id")
	if !ok {
		relID, ok = jc.Job.RelationshipID, jc.Job.RelationshipID != uuid.Nil
	}
	if !ok || relID == uuid.Nil {
		jc.Dead("validate", fmt.Errorf("missing relationship_id"))
		return nil
	}

	jc.Progress("aggregate", 10, "Aggregating relationship patterns")
	set, err := p.aggregator.Aggregate(jc.Ctx, relID)
	switch {
	case err == nil:
		observability.Current().IncAggregation("updated")
	case errors.Is(err, errs.ErrInsufficientHistory):
		observability.Current().IncAggregation("insufficient_history")
		jc.Succeed("insufficient_history", map[string]any{"relationship_id": relID.String(), "state": "insufficient_history"})
		return nil
	case errors.Is(err, errs.ErrAggregationInFlight):
		observability.Current().IncAggregation("in_flight")
		// retried so the newest enrichment is still folded in
		jc.Fail("aggregate", err)
		return nil
	default:
		observability.Current().IncAggregation("error")
		return err
	}

	jc.Succeed("done", map[string]any{
		"relationship_id":       relID.String(),
		"total_fights_analyzed": set.TotalFightsAnalyzed,
		"escalation_triggers":   len(set.EscalationTriggers),
		"recurring_topics":      len(set.RecurringTopics),
		"trigger":               jc.PayloadString("trigger"),
	})
	return nil
}
