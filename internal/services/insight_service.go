package services

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/yungbote/attune-backend/internal/data/repos"
	types "github.com/yungbote/attune-backend/internal/domain"
	"github.com/yungbote/attune-backend/internal/modules/insight/chain"
	"github.com/yungbote/attune-backend/internal/modules/insight/enrichment"
	"github.com/yungbote/attune-backend/internal/modules/insight/errs"
	"github.com/yungbote/attune-backend/internal/modules/insight/health"
	"github.com/yungbote/attune-backend/internal/modules/insight/patterns"
	"github.com/yungbote/attune-backend/internal/modules/insight/policy"
	"github.com/yungbote/attune-backend/internal/modules/insight/risk"
	"github.com/yungbote/attune-backend/internal/platform/apierr"
	"github.com/yungbote/attune-backend/internal/platform/dbctx"
	"github.com/yungbote/attune-backend/internal/platform/logger"
)

const (
	PatternsStateReady               = "ready"
	PatternsStateInsufficientHistory = "insufficient_history"
)

type ConflictView struct {
	*enrichment.Result
	Chain []*types.Conflict `json:"chain"`
}

type PatternsView struct {
	State         string            `json:"state"`
	EnrichedCount int64             `json:"enriched_count"`
	Required      int               `json:"required"`
	Patterns      *types.PatternSet `json:"patterns,omitempty"`
}

// InsightService is the read side; every method is safe to call concurrently with enrichment.
type InsightService interface {
	Conflict(ctx context.Context, conflictID uuid.UUID) (*ConflictView, error)
	Chain(ctx context.Context, conflictID uuid.UUID) ([]*types.Conflict, error)
	Risk(ctx context.Context, relationshipID uuid.UUID) (*risk.Assessment, error)
	ChronicNeeds(ctx context.Context, relationshipID uuid.UUID) ([]risk.ChronicNeed, error)
	Triggers(ctx context.Context, relationshipID uuid.UUID) ([]types.TriggerStat, error)
	Patterns(ctx context.Context, relationshipID uuid.UUID) (*PatternsView, error)
	Health(ctx context.Context, relationshipID uuid.UUID) (*health.Report, error)
	HealthHistory(ctx context.Context, relationshipID uuid.UUID, limit int) ([]*types.HealthSnapshot, error)
}

type insightService struct {
	rels       repos.RelationshipRepo
	conflicts  repos.ConflictRepo
	enrichment *enrichment.Service
	risk       *risk.Service
	aggregator *patterns.Aggregator
	health     *health.Service
	policy     *policy.Policy
	log        *logger.Logger
}

func NewInsightService(
	rels repos.RelationshipRepo,
	conflicts repos.ConflictRepo,
	enrich *enrichment.Service,
	riskSvc *risk.Service,
	aggregator *patterns.Aggregator,
	healthSvc *health.Service,
	p *policy.Policy,
	baseLog *logger.Logger,
) InsightService {
	if p == nil {
		p = policy.Default()
	}
	return &insightService{
		rels:       rels,
		conflicts:  conflicts,
		enrichment: enrich,
		risk:       riskSvc,
		aggregator: aggregator,
		health:     healthSvc,
		policy:     p,
		log:        baseLog.With("service", "InsightService"),
	}
}

func (s *insightService) Conflict(ctx context.Context, conflictID uuid.UUID) (*ConflictView, error) {
	res, err := s.enrichment.View(ctx, conflictID)
	if err != nil {
		return nil, mapInsightErr(err)
	}
	members, err := s.chainOf(ctx, res.Conflict)
	if err != nil {
		return nil, err
	}
	return &ConflictView{Result: res, Chain: members}, nil
}

func (s *insightService) Chain(ctx context.Context, conflictID uuid.UUID) ([]*types.Conflict, error) {
	c, err := s.conflicts.GetByID(dbctx.Context{Ctx: ctx}, conflictID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, mapInsightErr(errs.ErrConflictNotFound)
	}
	return s.chainOf(ctx, c)
}

// chainOf lists a conflict's chain oldest first; an unlinked conflict is a chain of one.
func (s *insightService) chainOf(ctx context.Context, c *types.Conflict) ([]*types.Conflict, error) {
	if c.ConflictChainID == nil {
		return []*types.Conflict{c}, nil
	}
	members, err := s.conflicts.ListByChain(dbctx.Context{Ctx: ctx}, *c.ConflictChainID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return []*types.Conflict{c}, nil
	}
	return chain.Order(members), nil
}

func (s *insightService) Risk(ctx context.Context, relationshipID uuid.UUID) (*risk.Assessment, error) {
	a, err := s.risk.Assess(ctx, relationshipID)
	if err != nil {
		return nil, mapInsightErr(err)
	}
	return a, nil
}

func (s *insightService) ChronicNeeds(ctx context.Context, relationshipID uuid.UUID) ([]risk.ChronicNeed, error) {
	out, err := s.risk.ChronicNeeds(ctx, relationshipID)
	if err != nil {
		return nil, mapInsightErr(err)
	}
	return out, nil
}

func (s *insightService) Triggers(ctx context.Context, relationshipID uuid.UUID) ([]types.TriggerStat, error) {
	out, err := s.aggregator.Triggers(ctx, relationshipID)
	if err != nil {
		return nil, mapInsightErr(err)
	}
	return out, nil
}

// Patterns reports insufficient_history as a state rather than an error, whenever fewer
// enriched conflicts exist than aggregation requires, even if an older row is still stored.
func (s *insightService) Patterns(ctx context.Context, relationshipID uuid.UUID) (*PatternsView, error) {
	dbc := dbctx.Context{Ctx: ctx}
	rel, err := s.rels.GetByID(dbc, relationshipID)
	if err != nil {
		return nil, err
	}
	if rel == nil {
		return nil, mapInsightErr(errs.ErrRelationshipNotFound)
	}
	count, err := s.conflicts.CountEnriched(dbc, relationshipID)
	if err != nil {
		return nil, err
	}
	view := &PatternsView{
		EnrichedCount: count,
		Required:      s.policy.Aggregation.MinRecords,
	}
	if count < int64(view.Required) {
		view.State = PatternsStateInsufficientHistory
		return view, nil
	}
	set, err := s.aggregator.Current(ctx, relationshipID)
	switch {
	case errors.Is(err, errs.ErrInsufficientHistory):
		view.State = PatternsStateInsufficientHistory
		return view, nil
	case err != nil:
		return nil, mapInsightErr(err)
	}
	view.State = PatternsStateReady
	view.Patterns = set
	return view, nil
}

func (s *insightService) Health(ctx context.Context, relationshipID uuid.UUID) (*health.Report, error) {
	r, err := s.health.Health(ctx, relationshipID)
	if err != nil {
		return nil, mapInsightErr(err)
	}
	return r, nil
}

func (s *insightService) HealthHistory(ctx context.Context, relationshipID uuid.UUID, limit int) ([]*types.HealthSnapshot, error) {
	out, err := s.health.History(ctx, relationshipID, limit)
	if err != nil {
		return nil, mapInsightErr(err)
	}
	return out, nil
}

func mapInsightErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errs.ErrRelationshipNotFound):
		return apierr.NotFound("relationship_not_found", err)
	case errors.Is(err, errs.ErrConflictNotFound):
		return apierr.NotFound("conflict_not_found", err)
	case errors.Is(err, errs.ErrEnrichmentInFlight), errors.Is(err, errs.ErrAggregationInFlight):
		return apierr.Conflict("in_flight", err)
	case errs.IsIncompleteProfiles(err):
		return apierr.Unprocessable("incomplete_profiles", err)
	case errs.IsInsufficientData(err):
		return apierr.Unprocessable("insufficient_data", err)
	case errs.IsExtractionFailed(err):
		return apierr.BadGateway("extraction_failed", err)
	default:
		return err
	}
}
