package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/attune-backend/internal/data/repos"
	types "github.com/yungbote/attune-backend/internal/domain"
	"github.com/yungbote/attune-backend/internal/domain/conflict"
	"github.com/yungbote/attune-backend/internal/domain/relationship"
	"github.com/yungbote/attune-backend/internal/platform/apierr"
	"github.com/yungbote/attune-backend/internal/platform/dbctx"
	"github.com/yungbote/attune-backend/internal/platform/logger"
)

type CreateRelationshipInput struct {
	PartnerAID uuid.UUID `json:"partner_a_id"`
	PartnerBID uuid.UUID `json:"partner_b_id"`
}

type ProfileInput struct {
	StressTriggers     []string `json:"stress_triggers"`
	SoothingMechanisms []string `json:"soothing_mechanisms"`
	ApologyPreferences []string `json:"apology_preferences"`
	PostConflictNeed   string   `json:"post_conflict_need"`
	RepairGestures     []string `json:"repair_gestures"`
	EscalationTriggers []string `json:"escalation_triggers"`
}

type ProfileResult struct {
	Profile  *types.PartnerProfile `json:"profile"`
	Complete bool                  `json:"complete"`
	Requeued int                   `json:"requeued"`
}

type RelationshipService interface {
	Create(ctx context.Context, in CreateRelationshipInput) (*types.Relationship, error)
	Get(ctx context.Context, id uuid.UUID) (*types.Relationship, error)
	ListProfiles(ctx context.Context, id uuid.UUID) ([]*types.PartnerProfile, error)
	UpsertProfile(ctx context.Context, relationshipID uuid.UUID, partnerID uuid.UUID, in ProfileInput) (*ProfileResult, error)
}

type relationshipService struct {
	tx        repos.TxRunner
	rels      repos.RelationshipRepo
	profiles  repos.PartnerProfileRepo
	conflicts repos.ConflictRepo
	jobs      JobService
	log       *logger.Logger
}

func NewRelationshipService(
	tx repos.TxRunner,
	rels repos.RelationshipRepo,
	profiles repos.PartnerProfileRepo,
	conflicts repos.ConflictRepo,
	jobs JobService,
	baseLog *logger.Logger,
) RelationshipService {
	return &relationshipService{
		tx:        tx,
		rels:      rels,
		profiles:  profiles,
		conflicts: conflicts,
		jobs:      jobs,
		log:       baseLog.With("service", "RelationshipService"),
	}
}

func (s *relationshipService) Create(ctx context.Context, in CreateRelationshipInput) (*types.Relationship, error) {
	if in.PartnerAID == uuid.Nil || in.PartnerBID == uuid.Nil {
		return nil, apierr.BadRequest("missing_partner", fmt.Errorf("both partner ids are required"))
	}
	if in.PartnerAID == in.PartnerBID {
		return nil, apierr.BadRequest("duplicate_partner", fmt.Errorf("partner ids must differ"))
	}
	rel, err := s.rels.Create(dbctx.Context{Ctx: ctx}, &types.Relationship{
		PartnerAID: in.PartnerAID,
		PartnerBID: in.PartnerBID,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("relationship created", "relationship_id", rel.ID)
	return rel, nil
}

func (s *relationshipService) Get(ctx context.Context, id uuid.UUID) (*types.Relationship, error) {
	rel, err := s.rels.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return nil, err
	}
	if rel == nil {
		return nil, apierr.NotFound("relationship_not_found", fmt.Errorf("relationship %s not found", id))
	}
	return rel, nil
}

func (s *relationshipService) ListProfiles(ctx context.Context, id uuid.UUID) ([]*types.PartnerProfile, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.profiles.ListByRelationship(dbctx.Context{Ctx: ctx}, id)
}

// UpsertProfile replaces a partner's self-reported profile. Once both sides exist, conflicts
// parked in awaiting_profiles are queued for enrichment again.
func (s *relationshipService) UpsertProfile(ctx context.Context, relationshipID uuid.UUID, partnerID uuid.UUID, in ProfileInput) (*ProfileResult, error) {
	rel, err := s.Get(ctx, relationshipID)
	if err != nil {
		return nil, err
	}
	if !rel.HasPartner(partnerID) {
		return nil, apierr.NotFound("partner_not_found", fmt.Errorf("partner is not a member of this relationship"))
	}

	out := &ProfileResult{}
	err = s.tx.InTx(ctx, func(dbc dbctx.Context) error {
		stored, err := s.profiles.Upsert(dbc, &types.PartnerProfile{
			RelationshipID:     rel.ID,
			PartnerID:          partnerID,
			StressTriggers:     relationship.EncodeStrings(clean(in.StressTriggers)),
			SoothingMechanisms: relationship.EncodeStrings(clean(in.SoothingMechanisms)),
			ApologyPreferences: relationship.EncodeStrings(clean(in.ApologyPreferences)),
			PostConflictNeed:   strings.TrimSpace(in.PostConflictNeed),
			RepairGestures:     relationship.EncodeStrings(clean(in.RepairGestures)),
			EscalationTriggers: relationship.EncodeStrings(clean(in.EscalationTriggers)),
		})
		if err != nil {
			return err
		}
		out.Profile = stored

		all, err := s.profiles.ListByRelationship(dbc, rel.ID)
		if err != nil {
			return err
		}
		have := map[uuid.UUID]bool{}
		for _, p := range all {
			have[p.PartnerID] = true
		}
		out.Complete = have[rel.PartnerAID] && have[rel.PartnerBID]
		if !out.Complete {
			return nil
		}

		waiting, err := s.conflicts.ListByEnrichmentStatus(dbc, rel.ID, []string{conflict.EnrichmentAwaitingProfiles})
		if err != nil {
			return err
		}
		for _, c := range waiting {
			_, created, err := s.jobs.EnqueueConflictEnrichIfNeeded(dbc, rel.ID, c.ID, "profiles_complete")
			if err != nil {
				return err
			}
			if created {
				out.Requeued++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.Requeued > 0 {
		s.log.Info("requeued conflicts awaiting profiles", "relationship_id", rel.ID, "count", out.Requeued)
	}
	return out, nil
}

func clean(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || seen[strings.ToLower(v)] {
			continue
		}
		seen[strings.ToLower(v)] = true
		out = append(out, v)
	}
	return out
}
