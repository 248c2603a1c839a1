package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/attune-backend/internal/data/graph"
	"github.com/yungbote/attune-backend/internal/data/repos"
	types "github.com/yungbote/attune-backend/internal/domain"
	"github.com/yungbote/attune-backend/internal/domain/conflict"
	"github.com/yungbote/attune-backend/internal/normalization"
	"github.com/yungbote/attune-backend/internal/platform/apierr"
	"github.com/yungbote/attune-backend/internal/platform/ctxutil"
	"github.com/yungbote/attune-backend/internal/platform/dbctx"
	"github.com/yungbote/attune-backend/internal/platform/logger"
)

const (
	maxTurns    = 2000
	maxTurnText = 8000
)

// RiskCache drops a relationship's cached risk assessment after its history changes.
type RiskCache interface {
	Invalidate(ctx context.Context, relationshipID uuid.UUID)
}

type noopRiskCache struct{}

func (noopRiskCache) Invalidate(context.Context, uuid.UUID) {}

type TurnInput struct {
	SpeakerID uuid.UUID `json:"speaker_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type CaptureConflictInput struct {
	Topic     string      `json:"topic"`
	CreatedAt *time.Time  `json:"created_at,omitempty"`
	Turns     []TurnInput `json:"turns"`
}

type ResolveConflictInput struct {
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	RepairStrategies []string   `json:"repair_strategies"`
	AppliedBy        *uuid.UUID `json:"applied_by,omitempty"`
}

type ConflictService interface {
	Capture(ctx context.Context, relationshipID uuid.UUID, in CaptureConflictInput) (*types.Conflict, *types.JobRun, error)
	RequestEnrichment(ctx context.Context, conflictID uuid.UUID) (*types.Conflict, *types.JobRun, error)
	Resolve(ctx context.Context, conflictID uuid.UUID, in ResolveConflictInput) (*types.Conflict, error)
	Delete(ctx context.Context, conflictID uuid.UUID) error
	ListForRelationship(ctx context.Context, relationshipID uuid.UUID, since *time.Time, until *time.Time) ([]*types.Conflict, error)
}

type conflictService struct {
	tx        repos.TxRunner
	rels      repos.RelationshipRepo
	conflicts repos.ConflictRepo
	actions   repos.RepairActionRepo
	jobs      JobService
	graph     graph.ConflictGraph
	risk      RiskCache
	log       *logger.Logger
	now       func() time.Time
}

func NewConflictService(
	tx repos.TxRunner,
	rels repos.RelationshipRepo,
	conflicts repos.ConflictRepo,
	actions repos.RepairActionRepo,
	jobs JobService,
	g graph.ConflictGraph,
	risk RiskCache,
	baseLog *logger.Logger,
) ConflictService {
	if g == nil {
		g = graph.NewConflictGraph(nil, baseLog)
	}
	if risk == nil {
		risk = noopRiskCache{}
	}
	return &conflictService{
		tx:        tx,
		rels:      rels,
		conflicts: conflicts,
		actions:   actions,
		jobs:      jobs,
		graph:     g,
		risk:      risk,
		log:       baseLog.With("service", "ConflictService"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Capture stores a finalized transcript and queues its enrichment in the same transaction.
func (s *conflictService) Capture(ctx context.Context, relationshipID uuid.UUID, in CaptureConflictInput) (*types.Conflict, *types.JobRun, error) {
	rel, err := s.relationship(ctx, relationshipID)
	if err != nil {
		return nil, nil, err
	}
	now := s.now()
	createdAt := now
	if in.CreatedAt != nil && !in.CreatedAt.IsZero() {
		createdAt = in.CreatedAt.UTC()
		if createdAt.After(now.Add(time.Minute)) {
			return nil, nil, apierr.BadRequest("invalid_created_at", fmt.Errorf("created_at is in the future"))
		}
	}
	turns, err := validateTurns(rel, in.Turns, createdAt)
	if err != nil {
		return nil, nil, err
	}
	transcript, err := conflict.EncodeTurns(turns)
	if err != nil {
		return nil, nil, fmt.Errorf("encode transcript: %w", err)
	}

	topic := strings.TrimSpace(in.Topic)
	c := &types.Conflict{
		ID:               uuid.New(),
		RelationshipID:   rel.ID,
		Transcript:       transcript,
		TurnCount:        len(turns),
		Topic:            topic,
		TopicNorm:        normalization.TopicKey(topic),
		EnrichmentStatus: conflict.EnrichmentPending,
		CreatedAt:        createdAt,
		UpdatedAt:        now,
	}
	if topic != "" {
		c.TopicSource = conflict.TopicSourceCollaborator
	}

	var job *types.JobRun
	err = s.tx.InTx(ctx, func(dbc dbctx.Context) error {
		if _, err := s.conflicts.Create(dbc, c); err != nil {
			return err
		}
		job, _, err = s.jobs.EnqueueConflictEnrichIfNeeded(dbc, rel.ID, c.ID, "capture")
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	s.risk.Invalidate(ctx, rel.ID)
	s.log.Info("conflict captured", append(ctxutil.LogFields(ctxutil.WithRelationship(ctx, rel.ID.String())),
		"conflict_id", c.ID,
		"turn_count", c.TurnCount,
	)...)
	return c, job, nil
}

// RequestEnrichment queues enrichment unless the conflict is already enriched or queued.
func (s *conflictService) RequestEnrichment(ctx context.Context, conflictID uuid.UUID) (*types.Conflict, *types.JobRun, error) {
	c, err := s.conflict(ctx, conflictID)
	if err != nil {
		return nil, nil, err
	}
	if c.Enriched() {
		return c, nil, nil
	}
	job, _, err := s.jobs.EnqueueConflictEnrichIfNeeded(dbctx.Context{Ctx: ctx}, c.RelationshipID, c.ID, "request")
	if err != nil {
		return nil, nil, err
	}
	return c, job, nil
}

// Resolve marks the conflict resolved and records the post-conflict repair strategies applied.
// Calling it again adds strategies without moving the original resolution time.
func (s *conflictService) Resolve(ctx context.Context, conflictID uuid.UUID, in ResolveConflictInput) (*types.Conflict, error) {
	c, err := s.conflict(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	rel, err := s.relationship(ctx, c.RelationshipID)
	if err != nil {
		return nil, err
	}
	if in.AppliedBy != nil && !rel.HasPartner(*in.AppliedBy) {
		return nil, apierr.BadRequest("unknown_partner", fmt.Errorf("applied_by is not a partner of this relationship"))
	}

	resolvedAt := s.now()
	if c.IsResolved && c.ResolvedAt != nil {
		resolvedAt = *c.ResolvedAt
	} else if in.ResolvedAt != nil && !in.ResolvedAt.IsZero() {
		resolvedAt = in.ResolvedAt.UTC()
	}
	if resolvedAt.Before(c.CreatedAt) {
		return nil, apierr.BadRequest("invalid_resolved_at", fmt.Errorf("resolved_at precedes conflict creation"))
	}

	actions := make([]*types.RepairAction, 0, len(in.RepairStrategies))
	seen := map[string]bool{}
	for _, raw := range in.RepairStrategies {
		label := strings.TrimSpace(raw)
		norm := normalization.Phrase(label)
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		actions = append(actions, &types.RepairAction{
			ConflictID:     c.ID,
			RelationshipID: c.RelationshipID,
			Strategy:       label,
			StrategyNorm:   norm,
			AppliedBy:      in.AppliedBy,
			AppliedAt:      resolvedAt,
		})
	}

	err = s.tx.InTx(ctx, func(dbc dbctx.Context) error {
		if err := s.actions.Upsert(dbc, actions); err != nil {
			return err
		}
		return s.conflicts.UpdateFields(dbc, c.ID, map[string]interface{}{
			"is_resolved": true,
			"resolved_at": resolvedAt,
		})
	})
	if err != nil {
		return nil, err
	}
	s.risk.Invalidate(ctx, c.RelationshipID)
	return s.conflict(ctx, c.ID)
}

// Delete removes the conflict with its enrichment rows. Deleting an enriched conflict re-queues
// pattern aggregation so the stored patterns stop counting it.
func (s *conflictService) Delete(ctx context.Context, conflictID uuid.UUID) error {
	c, err := s.conflict(ctx, conflictID)
	if err != nil {
		return err
	}
	err = s.tx.InTx(ctx, func(dbc dbctx.Context) error {
		if err := s.conflicts.Delete(dbc, c.ID); err != nil {
			return err
		}
		if c.EnrichmentStatus != conflict.EnrichmentCompleted {
			return nil
		}
		_, _, err := s.jobs.EnqueuePatternAggregateIfNeeded(dbc, c.RelationshipID, "conflict_deleted")
		return err
	})
	if err != nil {
		return err
	}
	if err := s.graph.DeleteConflict(ctx, c.ID); err != nil {
		s.log.Warn("conflict graph delete failed", "conflict_id", c.ID, "error", err)
	}
	s.risk.Invalidate(ctx, c.RelationshipID)
	return nil
}

func (s *conflictService) ListForRelationship(ctx context.Context, relationshipID uuid.UUID, since *time.Time, until *time.Time) ([]*types.Conflict, error) {
	if _, err := s.relationship(ctx, relationshipID); err != nil {
		return nil, err
	}
	return s.conflicts.ListByRelationship(dbctx.Context{Ctx: ctx}, relationshipID, since, until)
}

func (s *conflictService) relationship(ctx context.Context, id uuid.UUID) (*types.Relationship, error) {
	rel, err := s.rels.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return nil, err
	}
	if rel == nil {
		return nil, apierr.NotFound("relationship_not_found", fmt.Errorf("relationship %s not found", id))
	}
	return rel, nil
}

func (s *conflictService) conflict(ctx context.Context, id uuid.UUID) (*types.Conflict, error) {
	c, err := s.conflicts.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apierr.NotFound("conflict_not_found", fmt.Errorf("conflict %s not found", id))
	}
	return c, nil
}

// validateTurns requires known speakers and non-empty text, and orders turns by timestamp.
// Turns without a timestamp inherit the conflict's creation time and keep their input order.
func validateTurns(rel *types.Relationship, in []TurnInput, createdAt time.Time) ([]conflict.TranscriptTurn, error) {
	if len(in) == 0 {
		return nil, apierr.BadRequest("empty_transcript", fmt.Errorf("transcript has no turns"))
	}
	if len(in) > maxTurns {
		return nil, apierr.BadRequest("transcript_too_long", fmt.Errorf("transcript exceeds %d turns", maxTurns))
	}
	out := make([]conflict.TranscriptTurn, 0, len(in))
	for i, t := range in {
		if !rel.HasPartner(t.SpeakerID) {
			return nil, apierr.BadRequest("unknown_speaker", fmt.Errorf("turn %d: speaker is not a partner of this relationship", i))
		}
		text := strings.TrimSpace(t.Text)
		if text == "" {
			return nil, apierr.BadRequest("empty_turn", fmt.Errorf("turn %d: text is empty", i))
		}
		if len(text) > maxTurnText {
			return nil, apierr.BadRequest("turn_too_long", fmt.Errorf("turn %d: text exceeds %d bytes", i, maxTurnText))
		}
		ts := t.Timestamp.UTC()
		if t.Timestamp.IsZero() {
			ts = createdAt
		}
		out = append(out, conflict.TranscriptTurn{SpeakerID: t.SpeakerID, Text: text, Timestamp: ts})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}
