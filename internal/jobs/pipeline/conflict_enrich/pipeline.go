package conflict_enrich

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
	conflictID, ok := jc.PayloadUUID("conflict_id")
	if !ok && jc.Job.EntityID != nil {
		conflictID, ok = *jc.Job.EntityID, true
	}
	if !ok || conflictID == uuid.Nil {
		jc.Dead("validate", fmt.Errorf("missing conflict_id"))
		return nil
	}

	jc.Progress("extract", 10, "Extracting conflict signals")
	res, err := p.enricher.Enrich(jc.Ctx, conflictID)
	observability.Current().IncEnrichment(outcome(err))
	switch {
	case err == nil:
	case errors.Is(err, errs.ErrEnrichmentInFlight):
		// another worker owns this conflict; its run records the outcome
		jc.Succeed("coalesced", map[string]any{"conflict_id": conflictID.String(), "coalesced": true})
		return nil
	case errs.IsIncompleteProfiles(err):
		// the profile upsert requeues this conflict
		jc.Succeed("awaiting_profiles", map[string]any{"conflict_id": conflictID.String(), "skipped": err.Error()})
		return nil
	case errs.Permanent(err):
		jc.Dead("extract", err)
		return nil
	default:
		return err
	}

	jc.Succeed("done", map[string]any{
		"conflict_id":           conflictID.String(),
		"cached":                res.Cached,
		"trigger_phrases":       len(res.TriggerPhrases),
		"unmet_needs":           len(res.UnmetNeeds),
		"repair_attempts":       len(res.RepairAttempts),
		"aggregation_scheduled": res.AggregationScheduled,
		"trigger":               jc.PayloadString("trigger"),
	})
	return nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, errs.ErrEnrichmentInFlight):
		return "coalesced"
	case errs.IsIncompleteProfiles(err):
		return "awaiting_profiles"
	case errs.IsInsufficientData(err):
		return "insufficient_data"
	case errs.IsExtractionFailed(err):
		return "extraction_failed"
	default:
		return "error"
	}
}
