package patterns

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/attune-backend/internal/domain"
	"github.com/yungbote/attune-backend/internal/domain/conflict"
	"github.com/yungbote/attune-backend/internal/modules/insight/errs"
	"github.com/yungbote/attune-backend/internal/modules/insight/history"
	"github.com/yungbote/attune-backend/internal/modules/insight/policy"
	"github.com/yungbote/attune-backend/internal/normalization"
)

var t0 = time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)

func newSnap() *history.Snapshot {
	return &history.Snapshot{
		Relationship: &types.Relationship{ID: uuid.New(), PartnerAID: uuid.New(), PartnerBID: uuid.New()},
		Phrases:      map[uuid.UUID][]*types.TriggerPhrase{},
		Needs:        map[uuid.UUID][]*types.UnmetNeed{},
		Repairs:      map[uuid.UUID][]*types.RepairAttempt{},
		Actions:      map[uuid.UUID][]*types.RepairAction{},
	}
}

func addConflict(s *history.Snapshot, topic string, at time.Time) *types.Conflict {
	c := &types.Conflict{
		ID:               uuid.New(),
		RelationshipID:   s.Relationship.ID,
		Topic:            topic,
		TopicNorm:        normalization.TopicKey(topic),
		ResentmentLevel:  5,
		EnrichmentStatus: conflict.EnrichmentCompleted,
		CreatedAt:        at,
	}
	s.Conflicts = append(s.Conflicts, c)
	return c
}

func resolve(c *types.Conflict, after time.Duration) {
	at := c.CreatedAt.Add(after)
	c.IsResolved = true
	c.ResolvedAt = &at
}

func addPhrase(s *history.Snapshot, c *types.Conflict, speaker uuid.UUID, phrase string, escalating bool) {
	s.Phrases[c.ID] = append(s.Phrases[c.ID], &types.TriggerPhrase{
		ConflictID:         c.ID,
		Phrase:             phrase,
		PhraseNorm:         normalization.Phrase(phrase),
		Category:           conflict.CategoryCriticism,
		SpeakerID:          speaker,
		EmotionalIntensity: 8,
		EscalationFlag:     escalating,
	})
}

func addRepair(s *history.Snapshot, c *types.Conflict, speaker uuid.UUID, technique string, turn int, worked bool) {
	s.Repairs[c.ID] = append(s.Repairs[c.ID], &types.RepairAttempt{
		ConflictID:  c.ID,
		Technique:   technique,
		SpeakerID:   speaker,
		Phrase:      technique,
		PhraseNorm:  technique,
		TurnIndex:   turn,
		DeEscalated: worked,
	})
}

func addAction(s *history.Snapshot, c *types.Conflict, strategy string, at time.Time) {
	s.Actions[c.ID] = append(s.Actions[c.ID], &types.RepairAction{
		ConflictID:   c.ID,
		Strategy:     strategy,
		StrategyNorm: normalization.Phrase(strategy),
		AppliedAt:    at,
	})
}

func TestComputeNeedsThreeRecords(t *testing.T) {
	p := policy.Default().Aggregation
	s := newSnap()
	addConflict(s, "chores", t0)
	addConflict(s, "money", t0.Add(24*time.Hour))
	pending := addConflict(s, "work", t0.Add(48*time.Hour))
	pending.EnrichmentStatus = conflict.EnrichmentPending

	if _, err := Compute(s, t0.Add(72*time.Hour), p); !errors.Is(err, errs.ErrInsufficientHistory) {
		t.Fatalf("expected ErrInsufficientHistory with 2 enriched records, got %v", err)
	}

	pending.EnrichmentStatus = conflict.EnrichmentCompleted
	set, err := Compute(s, t0.Add(72*time.Hour), p)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if set.TotalFightsAnalyzed != 3 {
		t.Fatalf("expected 3 fights analyzed, got %d", set.TotalFightsAnalyzed)
	}
	if set.EscalationTriggers == nil || set.RecurringTopics == nil || set.RepairStrategies == nil {
		t.Fatalf("expected non-nil lists, got %+v", set)
	}
}

func TestYouNeverListenScenario(t *testing.T) {
	p := policy.Default().Aggregation
	s := newSnap()
	a, b := s.Relationship.PartnerAID, s.Relationship.PartnerBID

	var cs []*types.Conflict
	for i := 0; i < 4; i++ {
		cs = append(cs, addConflict(s, "listening", t0.Add(time.Duration(i)*72*time.Hour)))
	}
	addPhrase(s, cs[0], a, "You never listen!", true)
	addPhrase(s, cs[1], a, "you never listen", true)
	addPhrase(s, cs[2], a, "You NEVER listen.", false)
	addPhrase(s, cs[2], b, "you never listen", true)
	addPhrase(s, cs[3], a, "You never listen", false)
	// a duplicate row in the same conflict must not count twice
	addPhrase(s, cs[3], a, "you never listen!!", false)

	addPhrase(s, cs[0], b, "Whatever.", true)
	addPhrase(s, cs[1], b, "whatever", true)
	addPhrase(s, cs[1], b, "Calm down", false)

	set, err := Compute(s, t0.Add(30*24*time.Hour), p)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(set.EscalationTriggers) != 2 {
		t.Fatalf("expected 2 ranked triggers (single occurrences dropped), got %+v", set.EscalationTriggers)
	}
	top := set.EscalationTriggers[0]
	if top.Phrase != "Whatever." || top.EscalationRate != 1 {
		t.Fatalf("expected 'whatever' first at rate 1, got %+v", top)
	}
	listen := set.EscalationTriggers[1]
	if normalization.Phrase(listen.Phrase) != "you never listen" {
		t.Fatalf("expected 'you never listen' second, got %+v", listen)
	}
	if listen.Occurrences != 4 || listen.EscalatingCount != 3 || listen.EscalationRate != 0.75 {
		t.Fatalf("expected 3/4 = 0.75, got %+v", listen)
	}
	if listen.Category != conflict.CategoryCriticism {
		t.Fatalf("unexpected category %q", listen.Category)
	}

	if got := RankTriggers(s, p); len(got) != 2 || got[1].EscalationRate != 0.75 {
		t.Fatalf("RankTriggers disagrees with Compute: %+v", got)
	}
}

func TestRecurringTopicsAndChronic(t *testing.T) {
	p := policy.Default().Aggregation
	s := newSnap()
	c1 := addConflict(s, "chores", t0)
	c2 := addConflict(s, "Chores", t0.Add(5*24*time.Hour))
	addConflict(s, "money", t0.Add(6*24*time.Hour))
	resolve(c2, time.Hour)
	addAction(s, c2, "chore chart", c2.CreatedAt.Add(2*time.Hour))

	set, err := Compute(s, t0.Add(7*24*time.Hour), p)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(set.RecurringTopics) != 1 {
		t.Fatalf("expected only chores to recur, got %+v", set.RecurringTopics)
	}
	chores := set.RecurringTopics[0]
	if chores.Occurrences != 2 || chores.Chronic || !chores.EverResolved || chores.ResolutionAttempts != 1 {
		t.Fatalf("unexpected chores stat %+v", chores)
	}
	if !chores.FirstSeen.Equal(c1.CreatedAt) || !chores.LastSeen.Equal(c2.CreatedAt) {
		t.Fatalf("unexpected first/last seen %+v", chores)
	}

	addConflict(s, "the chores", t0.Add(9*24*time.Hour))
	set, err = Compute(s, t0.Add(10*24*time.Hour), p)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if got := set.RecurringTopics[0]; got.Occurrences != 3 || !got.Chronic {
		t.Fatalf("expected chores chronic after a third occurrence, got %+v", got)
	}
}

func TestRepairStrategyOutcomes(t *testing.T) {
	p := policy.Default().Aggregation
	s := newSnap()
	now := t0.Add(40 * 24 * time.Hour)

	chores := addConflict(s, "chores", t0)
	resolve(chores, 2*time.Hour)
	addAction(s, chores, "Chore chart", t0.Add(3*time.Hour))
	// recurs 10 days later: the chart failed
	addConflict(s, "chores", t0.Add(10*24*time.Hour))

	money := addConflict(s, "money", t0.Add(12*24*time.Hour))
	resolve(money, time.Hour)
	addAction(s, money, "chore chart", money.CreatedAt.Add(2*time.Hour))
	addAction(s, money, "budget meeting", money.CreatedAt.Add(2*time.Hour))

	inlaws := addConflict(s, "in-laws", now.Add(-5*24*time.Hour))
	resolve(inlaws, time.Hour)
	addAction(s, inlaws, "apology dinner", inlaws.CreatedAt.Add(2*time.Hour))

	set, err := Compute(s, now, p)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	byName := map[string]types.RepairStrategyStat{}
	for _, st := range set.RepairStrategies {
		byName[normalization.Phrase(st.Strategy)] = st
	}
	chart := byName["chore chart"]
	if chart.TimesTried != 2 || chart.TimesSuccessful != 1 || chart.SuccessRate != 0.5 {
		t.Fatalf("unexpected chore chart outcome %+v", chart)
	}
	if budget := byName["budget meeting"]; budget.TimesTried != 1 || budget.SuccessRate != 1 {
		t.Fatalf("unexpected budget outcome %+v", budget)
	}
	dinner := byName["apology dinner"]
	if dinner.TimesTried != 0 || dinner.Pending != 1 || dinner.SuccessRate != 0 {
		t.Fatalf("expected apology dinner pending, got %+v", dinner)
	}
	if set.RepairStrategies[0].SuccessRate != 1 {
		t.Fatalf("expected best strategy first, got %+v", set.RepairStrategies)
	}
}

func TestMetaPatternsAndTechniques(t *testing.T) {
	p := policy.Default().Aggregation
	s := newSnap()
	a, b := s.Relationship.PartnerAID, s.Relationship.PartnerBID

	c1 := addConflict(s, "chores", t0)
	c2 := addConflict(s, "money", t0.Add(3*24*time.Hour))
	c3 := addConflict(s, "work", t0.Add(6*24*time.Hour))
	c4 := addConflict(s, "family", t0.Add(9*24*time.Hour))
	resolve(c1, time.Hour)
	resolve(c2, 2*time.Hour)
	resolve(c3, 30*time.Hour)

	addRepair(s, c1, b, "apology", 3, true)
	addRepair(s, c2, a, "humor", 5, false)
	addRepair(s, c2, b, "validation", 2, true)
	addRepair(s, c3, a, "apology", 1, true)
	addRepair(s, c4, b, "humor", 4, false)

	addPhrase(s, c1, a, "you always", true)
	addPhrase(s, c2, a, "typical", true)
	addPhrase(s, c2, b, "whatever", true)
	addPhrase(s, c2, a, "unbelievable", true)
	addPhrase(s, c3, b, "fine", false)

	set, err := Compute(s, t0.Add(20*24*time.Hour), p)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	m := set.Meta
	if m.RepairInitiator != SidePartnerB {
		t.Fatalf("expected partner_b to initiate repair, got %q", m.RepairInitiator)
	}
	if m.Escalator != SidePartnerA {
		t.Fatalf("expected partner_a to escalate, got %q", m.Escalator)
	}
	if m.AverageIntensity != "high" || m.AverageResentment != 5 {
		t.Fatalf("unexpected averages %+v", m)
	}
	if m.ResolutionLatency != LatencySameDay {
		t.Fatalf("expected same_day latency, got %q", m.ResolutionLatency)
	}

	if len(set.DeescalationTechniques) != 2 {
		t.Fatalf("expected apology and humor, got %+v", set.DeescalationTechniques)
	}
	if got := set.DeescalationTechniques[0]; got.Technique != "apology" || got.SuccessRate != 1 {
		t.Fatalf("expected apology first, got %+v", got)
	}
	if got := set.DeescalationTechniques[1]; got.Technique != "humor" || got.Attempts != 2 || got.SuccessRate != 0 {
		t.Fatalf("unexpected humor stat %+v", got)
	}

	resolveNone := newSnap()
	for i := 0; i < 3; i++ {
		addConflict(resolveNone, "x", t0.Add(time.Duration(i)*time.Hour))
	}
	set, err = Compute(resolveNone, t0.Add(48*time.Hour), p)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if set.Meta.ResolutionLatency != LatencyOftenUnresolved || set.Meta.RepairInitiator != SideUnknown {
		t.Fatalf("unexpected empty-history meta %+v", set.Meta)
	}
}
