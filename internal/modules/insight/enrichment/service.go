package enrichment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/yungbote/attune-backend/internal/clients/redis"
	"github.com/yungbote/attune-backend/internal/data/graph"
	"github.com/yungbote/attune-backend/internal/data/repos"
	types "github.com/yungbote/attune-backend/internal/domain"
	"github.com/yungbote/attune-backend/internal/domain/conflict"
	"github.com/yungbote/attune-backend/internal/modules/insight/chain"
	"github.com/yungbote/attune-backend/internal/modules/insight/errs"
	"github.com/yungbote/attune-backend/internal/modules/insight/extractor"
	"github.com/yungbote/attune-backend/internal/modules/insight/policy"
	"github.com/yungbote/attune-backend/internal/normalization"
	"github.com/yungbote/attune-backend/internal/observability"
	"github.com/yungbote/attune-backend/internal/platform/ctxutil"
	"github.com/yungbote/attune-backend/internal/platform/dbctx"
	"github.com/yungbote/attune-backend/internal/platform/logger"
)

// Scheduler enqueues a pattern aggregation run; it reports false when one is already pending.
type Scheduler interface {
	SchedulePatternAggregate(ctx context.Context, relationshipID uuid.UUID) (bool, error)
}

type RiskInvalidator interface {
	Invalidate(ctx context.Context, relationshipID uuid.UUID)
}

type Deps struct {
	Tx        repos.TxRunner
	Rels      repos.RelationshipRepo
	Profiles  repos.PartnerProfileRepo
	Conflicts repos.ConflictRepo
	Phrases   repos.TriggerPhraseRepo
	Needs     repos.UnmetNeedRepo
	Repairs   repos.RepairAttemptRepo
	Extractor extractor.Extractor
	Graph     graph.ConflictGraph
	Locker    redis.Locker
	Events    redis.EventBus
	Risk      RiskInvalidator
	Scheduler Scheduler
	Policy    *policy.Policy
	Log       *logger.Logger
}

type Result struct {
	Conflict             *types.Conflict        `json:"conflict"`
	TriggerPhrases       []*types.TriggerPhrase `json:"trigger_phrases"`
	UnmetNeeds           []*types.UnmetNeed     `json:"unmet_needs"`
	RepairAttempts       []*types.RepairAttempt `json:"repair_attempts"`
	Cached               bool                   `json:"cached"`
	AggregationScheduled bool                   `json:"aggregation_scheduled"`
}

type Service struct {
	d     Deps
	log   *logger.Logger
	group singleflight.Group
	now   func() time.Time
}

func NewService(d Deps) *Service {
	if d.Locker == nil {
		d.Locker = redis.NewLocalLocker()
	}
	if d.Events == nil {
		d.Events = redis.NewEventBus(nil, d.Log)
	}
	if d.Graph == nil {
		d.Graph = graph.NewConflictGraph(nil, d.Log)
	}
	if d.Policy == nil {
		d.Policy = policy.Default()
	}
	return &Service{
		d:   d,
		log: d.Log.With("service", "EnrichmentService"),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Enrich runs extraction for one conflict. Concurrent calls in this process share one run;
// across processes the per-conflict lock makes the loser return ErrEnrichmentInFlight.
// An already completed conflict is returned from storage without calling the extractor.
func (s *Service) Enrich(ctx context.Context, conflictID uuid.UUID) (*Result, error) {
	v, err, _ := s.group.Do(conflictID.String(), func() (interface{}, error) {
		return s.enrich(ctx, conflictID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

func (s *Service) enrich(ctx context.Context, conflictID uuid.UUID) (*Result, error) {
	ctx, span := observability.StartSpan(ctx, "enrichment.Enrich")
	defer span.End()
	span.SetAttributes(attribute.String("conflict_id", conflictID.String()))
	log := s.log.With(ctxutil.LogFields(ctx)...).With("conflict_id", conflictID)

	ttl := s.d.Policy.Extraction.Timeout() + time.Minute
	release, ok, err := s.d.Locker.TryLock(ctx, "enrich:"+conflictID.String(), ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire enrichment lock: %w", err)
	}
	if !ok {
		return nil, errs.ErrEnrichmentInFlight
	}
	defer release()

	dbc := dbctx.Context{Ctx: ctx}
	c, err := s.d.Conflicts.GetByID(dbc, conflictID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errs.ErrConflictNotFound
	}
	if c.Enriched() {
		span.SetAttributes(attribute.Bool("enrichment.cached", true))
		return s.load(ctx, c, true)
	}

	rel, err := s.d.Rels.GetByID(dbc, c.RelationshipID)
	if err != nil {
		return nil, err
	}
	if rel == nil {
		return nil, errs.ErrRelationshipNotFound
	}

	profiles, err := s.d.Profiles.ListByRelationship(dbc, rel.ID)
	if err != nil {
		return nil, err
	}
	summaries, missing := profileSummaries(rel, profiles)
	if missing != nil {
		log.Info("enrichment deferred: partner profiles incomplete", "missing", missing.MissingSides)
		s.markState(ctx, c, conflict.EnrichmentAwaitingProfiles, missing)
		return nil, missing
	}

	turns, err := c.Turns()
	if err != nil {
		ierr := &errs.InsufficientDataError{Reason: "transcript could not be decoded"}
		s.markState(ctx, c, conflict.EnrichmentInsufficientData, ierr)
		return nil, ierr
	}
	in := extractor.Input{Relationship: rel, Turns: turns, Profiles: summaries, Topic: c.Topic}
	if err := extractor.CheckParticipants(in); err != nil {
		log.Info("enrichment skipped: insufficient transcript", "error", err)
		s.markState(ctx, c, conflict.EnrichmentInsufficientData, err)
		return nil, err
	}

	moved, err := s.d.Conflicts.TransitionStatus(dbc, c.ID, []string{
		conflict.EnrichmentPending,
		conflict.EnrichmentFailed,
		conflict.EnrichmentAwaitingProfiles,
		conflict.EnrichmentInsufficientData,
		conflict.EnrichmentProcessing,
	}, map[string]interface{}{
		"enrichment_status": conflict.EnrichmentProcessing,
		"enrichment_error":  "",
	})
	if err != nil {
		return nil, err
	}
	if !moved {
		// completed by another writer between the read and the transition
		fresh, err := s.d.Conflicts.GetByID(dbc, c.ID)
		if err != nil {
			return nil, err
		}
		if fresh != nil && fresh.Enriched() {
			return s.load(ctx, fresh, true)
		}
		return nil, errs.ErrEnrichmentInFlight
	}

	started := time.Now()
	xctx, cancel := context.WithTimeout(ctx, s.d.Policy.Extraction.Timeout())
	ext, err := s.d.Extractor.Extract(xctx, in)
	cancel()
	if err != nil {
		if !errs.IsExtractionFailed(err) && !errs.IsInsufficientData(err) && ctx.Err() == nil {
			err = &errs.ExtractionFailedError{Attempts: 1, Err: err}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "extraction failed")
		state := conflict.EnrichmentFailed
		if errs.IsInsufficientData(err) {
			state = conflict.EnrichmentInsufficientData
		}
		log.Warn("extraction failed", "error", err, "elapsed_ms", time.Since(started).Milliseconds())
		s.markState(ctx, c, state, err)
		return nil, err
	}

	res, err := s.persist(ctx, rel, c, ext)
	if err != nil {
		span.RecordError(err)
		s.markState(ctx, c, conflict.EnrichmentFailed, err)
		return nil, err
	}
	log.Info("conflict enriched",
		"relationship_id", rel.ID,
		"trigger_phrases", len(res.TriggerPhrases),
		"unmet_needs", len(res.UnmetNeeds),
		"chain_id", res.Conflict.ConflictChainID,
		"linked", res.Conflict.ParentConflictID != nil,
		"attempts", ext.Attempts,
		"elapsed_ms", time.Since(started).Milliseconds(),
	)

	s.afterPersist(ctx, res)
	return res, nil
}

func (s *Service) persist(ctx context.Context, rel *types.Relationship, c *types.Conflict, ext *extractor.StructuredExtraction) (*Result, error) {
	now := s.now()
	updated := *c
	if updated.Topic == "" && ext.Topic != "" {
		updated.Topic = ext.Topic
		updated.TopicSource = conflict.TopicSourceInferred
	} else if updated.TopicSource == "" && updated.Topic != "" {
		updated.TopicSource = conflict.TopicSourceCollaborator
	}
	updated.TopicNorm = normalization.TopicKey(updated.Topic)
	updated.RootCause = ext.RootCause
	updated.ResentmentLevel = ext.ResentmentLevel

	needLabels := make([]string, 0, len(ext.UnmetNeeds))
	for _, n := range ext.UnmetNeeds {
		needLabels = append(needLabels, n.Need)
	}
	decision, err := s.link(ctx, &updated, needLabels)
	if err != nil {
		return nil, fmt.Errorf("chain linkage: %w", err)
	}
	updated.ConflictChainID = &decision.ChainID
	updated.ParentConflictID = decision.ParentID
	updated.EnrichmentStatus = conflict.EnrichmentCompleted
	updated.EnrichmentError = ""
	updated.EnrichedAt = &now
	updated.ExtractionModel = ext.Model

	phrases := make([]*types.TriggerPhrase, 0, len(ext.TriggerPhrases))
	for _, p := range ext.TriggerPhrases {
		phrases = append(phrases, &types.TriggerPhrase{
			ConflictID:         c.ID,
			RelationshipID:     rel.ID,
			Phrase:             p.Phrase,
			PhraseNorm:         p.PhraseNorm,
			Category:           p.Category,
			SpeakerID:          p.SpeakerID,
			EmotionalIntensity: p.EmotionalIntensity,
			EscalationFlag:     p.EscalationFlag,
		})
	}
	needs := make([]*types.UnmetNeed, 0, len(ext.UnmetNeeds))
	for _, n := range ext.UnmetNeeds {
		needs = append(needs, &types.UnmetNeed{
			ConflictID:     c.ID,
			RelationshipID: rel.ID,
			Need:           n.Need,
			Confidence:     n.Confidence,
		})
	}
	repairs := make([]*types.RepairAttempt, 0, len(ext.RepairAttempts))
	for _, r := range ext.RepairAttempts {
		repairs = append(repairs, &types.RepairAttempt{
			ConflictID:     c.ID,
			RelationshipID: rel.ID,
			Technique:      r.Technique,
			SpeakerID:      r.SpeakerID,
			Phrase:         r.Phrase,
			PhraseNorm:     r.PhraseNorm,
			TurnIndex:      r.TurnIndex,
			DeEscalated:    r.DeEscalated,
		})
	}

	err = s.d.Tx.InTx(ctx, func(dbc dbctx.Context) error {
		if err := s.d.Phrases.ReplaceForConflict(dbc, c.ID, phrases); err != nil {
			return err
		}
		if err := s.d.Needs.ReplaceForConflict(dbc, c.ID, needs); err != nil {
			return err
		}
		if err := s.d.Repairs.ReplaceForConflict(dbc, c.ID, repairs); err != nil {
			return err
		}
		if err := s.d.Conflicts.UpdateFields(dbc, c.ID, map[string]interface{}{
			"topic":              updated.Topic,
			"topic_norm":         updated.TopicNorm,
			"topic_source":       updated.TopicSource,
			"root_cause":         updated.RootCause,
			"resentment_level":   updated.ResentmentLevel,
			"conflict_chain_id":  updated.ConflictChainID,
			"parent_conflict_id": updated.ParentConflictID,
			"enrichment_status":  updated.EnrichmentStatus,
			"enrichment_error":   "",
			"enriched_at":        now,
			"extraction_model":   updated.ExtractionModel,
			"updated_at":         now,
		}); err != nil {
			return err
		}
		if decision.ChildID == nil {
			return nil
		}
		return s.d.Conflicts.UpdateFields(dbc, *decision.ChildID, map[string]interface{}{
			"parent_conflict_id": c.ID,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("persist enrichment: %w", err)
	}
	updated.UpdatedAt = now
	return &Result{Conflict: &updated, TriggerPhrases: phrases, UnmetNeeds: needs, RepairAttempts: repairs}, nil
}

// link picks the parent among enriched conflicts still open when c was created, then places c
// between the chain member created just before it and the one created just after it, so a chain
// stays linear when conflicts are enriched out of creation order.
func (s *Service) link(ctx context.Context, c *types.Conflict, needs []string) (chain.Decision, error) {
	dbc := dbctx.Context{Ctx: ctx}
	open, err := s.d.Conflicts.ListUnresolvedAt(dbc, c.RelationshipID, c.CreatedAt)
	if err != nil {
		return chain.Decision{}, err
	}
	enriched := open[:0]
	for _, o := range open {
		if o.Enriched() {
			enriched = append(enriched, o)
		}
	}
	open = enriched
	ids := make([]uuid.UUID, 0, len(open))
	for _, o := range open {
		ids = append(ids, o.ID)
	}
	rows, err := s.d.Needs.ListByConflictIDs(dbc, ids)
	if err != nil {
		return chain.Decision{}, err
	}
	byConflict := map[uuid.UUID][]string{}
	for _, n := range rows {
		byConflict[n.ConflictID] = append(byConflict[n.ConflictID], n.Need)
	}
	candidates := make([]chain.Candidate, 0, len(open))
	for _, o := range open {
		candidates = append(candidates, chain.Candidate{Conflict: o, Needs: byConflict[o.ID]})
	}

	d := chain.Decide(c, needs, candidates, s.d.Policy.Chain)
	if !d.Linked() {
		return d, nil
	}
	members, err := s.d.Conflicts.ListByChain(dbc, d.ChainID)
	if err != nil {
		return chain.Decision{}, err
	}
	for _, o := range open {
		if o.ID == *d.ParentID {
			members = append(members, o)
		}
	}
	if tail := chain.Tail(c, members); tail != nil {
		parent := tail.ID
		d.ParentID = &parent
	}
	if next := chain.Successor(c, members); next != nil {
		child := next.ID
		d.ChildID = &child
	}
	return d, nil
}

func (s *Service) afterPersist(ctx context.Context, res *Result) {
	c := res.Conflict
	if s.d.Risk != nil {
		s.d.Risk.Invalidate(ctx, c.RelationshipID)
	}
	if err := s.d.Graph.UpsertConflict(ctx, c, res.TriggerPhrases, res.UnmetNeeds); err != nil {
		s.log.Warn("conflict graph sync failed", "conflict_id", c.ID, "error", err)
	}
	id := c.ID
	if err := s.d.Events.Publish(ctx, redis.InsightEvent{
		Type:           redis.EventConflictEnriched,
		RelationshipID: c.RelationshipID,
		ConflictID:     &id,
		Status:         c.EnrichmentStatus,
	}); err != nil {
		s.log.Warn("publish enrichment event failed", "conflict_id", c.ID, "error", err)
	}

	count, err := s.d.Conflicts.CountEnriched(dbctx.Context{Ctx: ctx}, c.RelationshipID)
	if err != nil {
		s.log.Warn("count enriched failed", "relationship_id", c.RelationshipID, "error", err)
		return
	}
	if s.d.Scheduler == nil || !s.d.Policy.Aggregation.ShouldSchedule(int(count)) {
		return
	}
	scheduled, err := s.d.Scheduler.SchedulePatternAggregate(ctx, c.RelationshipID)
	if err != nil {
		s.log.Warn("schedule aggregation failed", "relationship_id", c.RelationshipID, "error", err)
		return
	}
	res.AggregationScheduled = scheduled
}

// markState records a non-completed outcome. Failures to record are logged only.
func (s *Service) markState(ctx context.Context, c *types.Conflict, state string, cause error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	// the caller's context may already be past its deadline
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.d.Conflicts.UpdateFields(dbctx.Context{Ctx: wctx}, c.ID, map[string]interface{}{
		"enrichment_status": state,
		"enrichment_error":  msg,
	}); err != nil {
		s.log.Warn("record enrichment state failed", "conflict_id", c.ID, "state", state, "error", err)
		return
	}
	c.EnrichmentStatus = state
	c.EnrichmentError = msg
	if state == conflict.EnrichmentFailed || state == conflict.EnrichmentInsufficientData {
		id := c.ID
		if err := s.d.Events.Publish(wctx, redis.InsightEvent{
			Type:           redis.EventConflictFailed,
			RelationshipID: c.RelationshipID,
			ConflictID:     &id,
			Status:         state,
		}); err != nil {
			s.log.Warn("publish failure event failed", "conflict_id", c.ID, "error", err)
		}
	}
}

// View returns the conflict with its enrichment rows, whatever its status.
func (s *Service) View(ctx context.Context, conflictID uuid.UUID) (*Result, error) {
	c, err := s.d.Conflicts.GetByID(dbctx.Context{Ctx: ctx}, conflictID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errs.ErrConflictNotFound
	}
	return s.load(ctx, c, false)
}

func (s *Service) load(ctx context.Context, c *types.Conflict, cached bool) (*Result, error) {
	dbc := dbctx.Context{Ctx: ctx}
	ids := []uuid.UUID{c.ID}
	phrases, err := s.d.Phrases.ListByConflictIDs(dbc, ids)
	if err != nil {
		return nil, err
	}
	needs, err := s.d.Needs.ListByConflictIDs(dbc, ids)
	if err != nil {
		return nil, err
	}
	repairs, err := s.d.Repairs.ListByConflictIDs(dbc, ids)
	if err != nil {
		return nil, err
	}
	return &Result{
		Conflict:       c,
		TriggerPhrases: orEmpty(phrases),
		UnmetNeeds:     orEmpty(needs),
		RepairAttempts: orEmpty(repairs),
		Cached:         cached,
	}, nil
}

func profileSummaries(rel *types.Relationship, profiles []*types.PartnerProfile) ([]types.ProfileSummary, *errs.IncompleteProfilesError) {
	byPartner := map[uuid.UUID]*types.PartnerProfile{}
	for _, p := range profiles {
		byPartner[p.PartnerID] = p
	}
	var (
		out     []types.ProfileSummary
		missing *errs.IncompleteProfilesError
	)
	for _, id := range rel.Partners() {
		side := rel.Side(id)
		p, ok := byPartner[id]
		if !ok {
			if missing == nil {
				missing = &errs.IncompleteProfilesError{}
			}
			missing.MissingSides = append(missing.MissingSides, side)
			missing.MissingPartners = append(missing.MissingPartners, id)
			continue
		}
		out = append(out, p.Summary(side))
	}
	return out, missing
}

func orEmpty[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
