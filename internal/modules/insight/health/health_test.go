package health

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/attune-backend/internal/data/repos"
	"github.com/yungbote/attune-backend/internal/data/repos/testutil"
	types "github.com/yungbote/attune-backend/internal/domain"
	"github.com/yungbote/attune-backend/internal/domain/conflict"
	"github.com/yungbote/attune-backend/internal/modules/insight/history"
	"github.com/yungbote/attune-backend/internal/modules/insight/policy"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newSnap() *history.Snapshot {
	return &history.Snapshot{
		Relationship: &types.Relationship{ID: uuid.New(), PartnerAID: uuid.New(), PartnerBID: uuid.New()},
		Phrases:      map[uuid.UUID][]*types.TriggerPhrase{},
		Needs:        map[uuid.UUID][]*types.UnmetNeed{},
		Repairs:      map[uuid.UUID][]*types.RepairAttempt{},
		Actions:      map[uuid.UUID][]*types.RepairAction{},
	}
}

func add(s *history.Snapshot, at time.Time, resentment int, resolvedAt *time.Time) *types.Conflict {
	c := &types.Conflict{
		ID:               uuid.New(),
		RelationshipID:   s.Relationship.ID,
		Topic:            "chores",
		TopicNorm:        "chore",
		ResentmentLevel:  resentment,
		IsResolved:       resolvedAt != nil,
		ResolvedAt:       resolvedAt,
		EnrichmentStatus: conflict.EnrichmentCompleted,
		CreatedAt:        at,
	}
	s.Conflicts = append(s.Conflicts, c)
	return c
}

func TestZeroConflictsBaseline(t *testing.T) {
	t.Parallel()
	p := policy.Default()
	rep := Compute(newSnap(), now, p)
	if rep.Score != 100 || rep.PreviousScore != 100 || rep.Trend != types.TrendStable {
		t.Fatalf("expected stable baseline 100, got %+v", rep)
	}
	if math.IsNaN(rep.Score) || math.IsNaN(rep.Delta) {
		t.Fatalf("NaN in report %+v", rep)
	}
	if got := Compute(nil, now, p); got.Score != 100 {
		t.Fatalf("nil snapshot should score baseline, got %v", got.Score)
	}
}

func TestCalculateFormula(t *testing.T) {
	t.Parallel()
	p := policy.Default()
	s := newSnap()
	resolvedAt := now.Add(-2 * day)
	add(s, now.Add(-3*day), 4, &resolvedAt)
	add(s, now.Add(-1*day), 6, nil)

	score, comp := Calculate(s, now, p)
	if comp.ResolutionRate != 0.5 || comp.AvgResentment != 5 || comp.ConflictCount != 2 {
		t.Fatalf("unexpected components %+v", comp)
	}
	want := 100 * (0.40*(1-comp.RiskScore) + 0.35*0.5 + 0.25*0.5)
	if math.Abs(score-want) > 0.051 {
		t.Fatalf("expected %.2f, got %.2f", want, score)
	}
	if score < 0 || score > 100 {
		t.Fatalf("score out of range: %v", score)
	}
}

func TestTrendImprovesAfterResolution(t *testing.T) {
	t.Parallel()
	p := policy.Default()
	s := newSnap()
	resolvedAt := now.Add(-5 * day)
	add(s, now.Add(-40*day), 9, &resolvedAt)

	rep := Compute(s, now, p)
	if rep.Trend != types.TrendImproving {
		t.Fatalf("expected improving, got %+v", rep)
	}
	if rep.Delta <= p.Health.TrendThreshold {
		t.Fatalf("expected delta above threshold, got %v", rep.Delta)
	}
	if math.Abs(rep.Score-77.3) > 0.2 {
		t.Fatalf("expected ~77.3 now, got %v", rep.Score)
	}
	if math.Abs(rep.PreviousScore-34.0) > 0.3 {
		t.Fatalf("expected ~34.0 a month ago, got %v", rep.PreviousScore)
	}
	// the rewind must not mutate the live history
	if !s.Conflicts[0].IsResolved {
		t.Fatalf("trend computation mutated the snapshot")
	}
}

func TestTrendThresholds(t *testing.T) {
	t.Parallel()
	cases := []struct {
		cur, prev float64
		want      string
	}{
		{80, 70, types.TrendImproving},
		{70, 80, types.TrendDeclining},
		{72, 70, types.TrendStable},
		{65, 70, types.TrendStable},
	}
	for _, tc := range cases {
		if got := Trend(tc.cur, tc.prev, 5); got != tc.want {
			t.Fatalf("Trend(%v,%v)=%s want %s", tc.cur, tc.prev, got, tc.want)
		}
	}
}

func TestServicePersistsSnapshots(t *testing.T) {
	db := testutil.Tx(t, testutil.DB(t))
	log := testutil.Logger(t)
	ctx := context.Background()
	rel := testutil.SeedRelationship(t, db, true)
	testutil.SeedConflict(t, db, rel, testutil.ConflictSeed{
		CreatedAt:  time.Now().UTC().Add(-2 * day),
		Topic:      "money",
		Resentment: 5,
	})

	loader := history.NewLoader(
		repos.NewRelationshipRepo(db, log),
		repos.NewPartnerProfileRepo(db, log),
		repos.NewConflictRepo(db, log),
		repos.NewTriggerPhraseRepo(db, log),
		repos.NewUnmetNeedRepo(db, log),
		repos.NewRepairAttemptRepo(db, log),
		repos.NewRepairActionRepo(db, log),
		log,
	)
	svc := NewService(loader, repos.NewHealthSnapshotRepo(db, log), policy.Default(), log)

	rep, err := svc.Health(ctx, rel.ID)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if rep.Components.ConflictCount != 1 || rep.Score <= 0 || rep.Score >= 100 {
		t.Fatalf("unexpected report %+v", rep)
	}
	hist, err := svc.History(ctx, rel.ID, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 1 || hist[0].Score != rep.Score || hist[0].Trend != rep.Trend {
		t.Fatalf("expected the computed report to be recorded, got %+v", hist)
	}
}

func TestServiceThrottlesSnapshots(t *testing.T) {
	db := testutil.Tx(t, testutil.DB(t))
	log := testutil.Logger(t)
	ctx := context.Background()
	rel := testutil.SeedRelationship(t, db, true)
	clock := time.Now().UTC().Truncate(time.Second)
	testutil.SeedConflict(t, db, rel, testutil.ConflictSeed{
		CreatedAt:  clock.Add(-2 * day),
		Topic:      "money",
		Resentment: 5,
	})

	loader := history.NewLoader(
		repos.NewRelationshipRepo(db, log),
		repos.NewPartnerProfileRepo(db, log),
		repos.NewConflictRepo(db, log),
		repos.NewTriggerPhraseRepo(db, log),
		repos.NewUnmetNeedRepo(db, log),
		repos.NewRepairAttemptRepo(db, log),
		repos.NewRepairActionRepo(db, log),
		log,
	)
	svc := NewService(loader, repos.NewHealthSnapshotRepo(db, log), policy.Default(), log)
	svc.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		if _, err := svc.Health(ctx, rel.ID); err != nil {
			t.Fatalf("Health #%d: %v", i, err)
		}
		clock = clock.Add(10 * time.Minute)
	}
	hist, err := svc.History(ctx, rel.ID, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("polling within the interval should record one snapshot, got %d", len(hist))
	}

	clock = clock.Add(time.Hour)
	if _, err := svc.Health(ctx, rel.ID); err != nil {
		t.Fatalf("Health after interval: %v", err)
	}
	hist, err = svc.History(ctx, rel.ID, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("expected a second snapshot after the interval, got %d", len(hist))
	}
}
