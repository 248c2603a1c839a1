package history

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/attune-backend/internal/data/repos"
	types "github.com/yungbote/attune-backend/internal/domain"
	"github.com/yungbote/attune-backend/internal/domain/conflict"
	"github.com/yungbote/attune-backend/internal/modules/insight/errs"
	"github.com/yungbote/attune-backend/internal/platform/dbctx"
	"github.com/yungbote/attune-backend/internal/platform/logger"
)

// Snapshot is a relationship's conflict history with enrichment rows indexed by conflict.
type Snapshot struct {
	Relationship *types.Relationship
	Profiles     []*types.PartnerProfile
	AsOf         time.Time
	Since        *time.Time

	Conflicts []*types.Conflict
	Phrases   map[uuid.UUID][]*types.TriggerPhrase
	Needs     map[uuid.UUID][]*types.UnmetNeed
	Repairs   map[uuid.UUID][]*types.RepairAttempt
	Actions   map[uuid.UUID][]*types.RepairAction
}

// Enriched returns the completed conflicts in created_at order.
func (s *Snapshot) Enriched() []*types.Conflict {
	out := make([]*types.Conflict, 0, len(s.Conflicts))
	for _, c := range s.Conflicts {
		if c.Enriched() {
			out = append(out, c)
		}
	}
	return out
}

func (s *Snapshot) Unresolved() []*types.Conflict {
	out := make([]*types.Conflict, 0, len(s.Conflicts))
	for _, c := range s.Conflicts {
		if !c.IsResolved {
			out = append(out, c)
		}
	}
	return out
}

func (s *Snapshot) NeedLabels(conflictID uuid.UUID) []string {
	rows := s.Needs[conflictID]
	out := make([]string, 0, len(rows))
	for _, n := range rows {
		out = append(out, n.Need)
	}
	return out
}

// AsOfTime rewinds the snapshot to t: conflicts created later are dropped and resolutions
// that happened after t are undone. Rows are copied; the receiver is not modified.
func (s *Snapshot) AsOfTime(t time.Time) *Snapshot {
	out := &Snapshot{
		Relationship: s.Relationship,
		Profiles:     s.Profiles,
		AsOf:         t,
		Since:        s.Since,
		Phrases:      map[uuid.UUID][]*types.TriggerPhrase{},
		Needs:        map[uuid.UUID][]*types.UnmetNeed{},
		Repairs:      map[uuid.UUID][]*types.RepairAttempt{},
		Actions:      map[uuid.UUID][]*types.RepairAction{},
	}
	for _, c := range s.Conflicts {
		if c.CreatedAt.After(t) {
			continue
		}
		cp := *c
		if cp.IsResolved && (cp.ResolvedAt == nil || cp.ResolvedAt.After(t)) {
			cp.IsResolved = false
			cp.ResolvedAt = nil
		}
		if cp.EnrichedAt != nil && cp.EnrichedAt.After(t) && cp.EnrichmentStatus == conflict.EnrichmentCompleted {
			cp.EnrichmentStatus = conflict.EnrichmentPending
		}
		out.Conflicts = append(out.Conflicts, &cp)
		if cp.Enriched() {
			out.Phrases[cp.ID] = s.Phrases[cp.ID]
			out.Needs[cp.ID] = s.Needs[cp.ID]
			out.Repairs[cp.ID] = s.Repairs[cp.ID]
		}
		for _, a := range s.Actions[cp.ID] {
			if !a.AppliedAt.After(t) {
				out.Actions[cp.ID] = append(out.Actions[cp.ID], a)
			}
		}
	}
	return out
}

type Loader struct {
	rels      repos.RelationshipRepo
	profiles  repos.PartnerProfileRepo
	conflicts repos.ConflictRepo
	phrases   repos.TriggerPhraseRepo
	needs     repos.UnmetNeedRepo
	repairs   repos.RepairAttemptRepo
	actions   repos.RepairActionRepo
	log       *logger.Logger
}

func NewLoader(
	rels repos.RelationshipRepo,
	profiles repos.PartnerProfileRepo,
	conflicts repos.ConflictRepo,
	phrases repos.TriggerPhraseRepo,
	needs repos.UnmetNeedRepo,
	repairs repos.RepairAttemptRepo,
	actions repos.RepairActionRepo,
	baseLog *logger.Logger,
) *Loader {
	return &Loader{
		rels:      rels,
		profiles:  profiles,
		conflicts: conflicts,
		phrases:   phrases,
		needs:     needs,
		repairs:   repairs,
		actions:   actions,
		log:       baseLog.With("service", "HistoryLoader"),
	}
}

// Load reads every conflict of the relationship created in [since, asOf] plus its enrichment rows.
func (l *Loader) Load(ctx context.Context, relationshipID uuid.UUID, asOf time.Time, since *time.Time) (*Snapshot, error) {
	dbc := dbctx.Context{Ctx: ctx}
	rel, err := l.rels.GetByID(dbc, relationshipID)
	if err != nil {
		return nil, err
	}
	if rel == nil {
		return nil, errs.ErrRelationshipNotFound
	}
	snap := &Snapshot{
		Relationship: rel,
		AsOf:         asOf,
		Since:        since,
		Phrases:      map[uuid.UUID][]*types.TriggerPhrase{},
		Needs:        map[uuid.UUID][]*types.UnmetNeed{},
		Repairs:      map[uuid.UUID][]*types.RepairAttempt{},
		Actions:      map[uuid.UUID][]*types.RepairAction{},
	}

	var (
		phrases []*types.TriggerPhrase
		needs   []*types.UnmetNeed
		repairs []*types.RepairAttempt
		actions []*types.RepairAction
	)
	g, gctx := errgroup.WithContext(ctx)
	gdbc := dbctx.Context{Ctx: gctx}
	g.Go(func() error {
		var err error
		snap.Conflicts, err = l.conflicts.ListByRelationship(gdbc, relationshipID, since, &asOf)
		return err
	})
	g.Go(func() error {
		var err error
		snap.Profiles, err = l.profiles.ListByRelationship(gdbc, relationshipID)
		return err
	})
	g.Go(func() error {
		var err error
		phrases, err = l.phrases.ListByRelationship(gdbc, relationshipID)
		return err
	})
	g.Go(func() error {
		var err error
		needs, err = l.needs.ListByRelationship(gdbc, relationshipID)
		return err
	})
	g.Go(func() error {
		var err error
		repairs, err = l.repairs.ListByRelationship(gdbc, relationshipID)
		return err
	})
	g.Go(func() error {
		var err error
		actions, err = l.actions.ListByRelationship(gdbc, relationshipID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, p := range phrases {
		snap.Phrases[p.ConflictID] = append(snap.Phrases[p.ConflictID], p)
	}
	for _, n := range needs {
		snap.Needs[n.ConflictID] = append(snap.Needs[n.ConflictID], n)
	}
	for _, r := range repairs {
		snap.Repairs[r.ConflictID] = append(snap.Repairs[r.ConflictID], r)
	}
	for _, a := range actions {
		snap.Actions[a.ConflictID] = append(snap.Actions[a.ConflictID], a)
	}
	// Rows of conflicts outside the window are ignored by consumers because they key off Conflicts.
	return snap.AsOfTime(asOf), nil
}
