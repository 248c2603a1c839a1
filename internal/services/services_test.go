package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/attune-backend/internal/data/repos"
	"github.com/yungbote/attune-backend/internal/data/repos/testutil"
	types "github.com/yungbote/attune-backend/internal/domain"
	"github.com/yungbote/attune-backend/internal/domain/conflict"
	jobstatus "github.com/yungbote/attune-backend/internal/domain/jobs"
	"github.com/yungbote/attune-backend/internal/modules/insight/history"
	"github.com/yungbote/attune-backend/internal/modules/insight/patterns"
	"github.com/yungbote/attune-backend/internal/modules/insight/policy"
	"github.com/yungbote/attune-backend/internal/platform/apierr"
	"github.com/yungbote/attune-backend/internal/platform/dbctx"
)

type fixture struct {
	db       *gorm.DB
	jobRepo  repos.JobRunRepo
	actions  repos.RepairActionRepo
	jobs     JobService
	conflict ConflictService
	rels     RelationshipService
}

type countingRisk struct{ calls int }

func (r *countingRisk) Invalidate(context.Context, uuid.UUID) { r.calls++ }

func newFixture(t *testing.T) (*fixture, *countingRisk) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	risk := &countingRisk{}
	jobRepo := repos.NewJobRunRepo(db, log)
	jobs := NewJobService(db, log, jobRepo, NewJobNotifier(nil, log))
	tx := repos.NewGormTxRunner(db)
	conflicts := repos.NewConflictRepo(db, log)
	actions := repos.NewRepairActionRepo(db, log)
	rels := repos.NewRelationshipRepo(db, log)
	return &fixture{
		db:       db,
		jobRepo:  jobRepo,
		actions:  actions,
		jobs:     jobs,
		conflict: NewConflictService(tx, rels, conflicts, actions, jobs, nil, risk, log),
		rels:     NewRelationshipService(tx, rels, repos.NewPartnerProfileRepo(db, log), conflicts, jobs, log),
	}, risk
}

func apiCode(t *testing.T, err error) (int, string) {
	t.Helper()
	var ae *apierr.Error
	if !errors.As(err, &ae) {
		t.Fatalf("expected apierr.Error, got %v", err)
	}
	return ae.Status, ae.Code
}

func TestCaptureQueuesEnrichment(t *testing.T) {
	f, risk := newFixture(t)
	ctx := context.Background()
	rel := testutil.SeedRelationship(t, f.db, true)
	at := time.Now().UTC().Add(-time.Hour)

	c, job, err := f.conflict.Capture(ctx, rel.ID, CaptureConflictInput{
		Topic: "Dishes",
		Turns: []TurnInput{
			{SpeakerID: rel.PartnerBID, Text: "I did them yesterday.", Timestamp: at.Add(10 * time.Second)},
			{SpeakerID: rel.PartnerAID, Text: "You never do the dishes.", Timestamp: at},
		},
	})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if c.EnrichmentStatus != conflict.EnrichmentPending || c.TurnCount != 2 {
		t.Fatalf("unexpected conflict: status=%s turns=%d", c.EnrichmentStatus, c.TurnCount)
	}
	if c.TopicSource != conflict.TopicSourceCollaborator || c.TopicNorm == "" {
		t.Fatalf("expected collaborator topic, got %q/%q", c.TopicSource, c.TopicNorm)
	}
	turns, err := c.Turns()
	if err != nil || turns[0].SpeakerID != rel.PartnerAID {
		t.Fatalf("expected turns ordered by timestamp, got %+v (%v)", turns, err)
	}
	if job == nil || job.JobType != JobTypeConflictEnrich || job.Status != jobstatus.StatusQueued {
		t.Fatalf("expected queued conflict_enrich job, got %+v", job)
	}
	if job.EntityID == nil || *job.EntityID != c.ID {
		t.Fatalf("job entity mismatch")
	}
	if risk.calls != 1 {
		t.Fatalf("expected risk invalidation, got %d", risk.calls)
	}

	_, again, err := f.conflict.RequestEnrichment(ctx, c.ID)
	if err != nil {
		t.Fatalf("RequestEnrichment: %v", err)
	}
	if again == nil || again.ID != job.ID {
		t.Fatalf("expected the queued job back instead of a duplicate, got %+v", again)
	}
}

func TestCaptureValidation(t *testing.T) {
	f, _ := newFixture(t)
	ctx := context.Background()
	rel := testutil.SeedRelationship(t, f.db, false)

	cases := []struct {
		name   string
		relID  uuid.UUID
		in     CaptureConflictInput
		status int
		code   string
	}{
		{"unknown relationship", uuid.New(), CaptureConflictInput{Turns: []TurnInput{{SpeakerID: rel.PartnerAID, Text: "hi"}}}, http.StatusNotFound, "relationship_not_found"},
		{"empty", rel.ID, CaptureConflictInput{}, http.StatusBadRequest, "empty_transcript"},
		{"stranger", rel.ID, CaptureConflictInput{Turns: []TurnInput{{SpeakerID: uuid.New(), Text: "hi"}}}, http.StatusBadRequest, "unknown_speaker"},
		{"blank text", rel.ID, CaptureConflictInput{Turns: []TurnInput{{SpeakerID: rel.PartnerAID, Text: "   "}}}, http.StatusBadRequest, "empty_turn"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := f.conflict.Capture(ctx, tc.relID, tc.in)
			status, code := apiCode(t, err)
			if status != tc.status || code != tc.code {
				t.Fatalf("got %d/%s, want %d/%s", status, code, tc.status, tc.code)
			}
		})
	}
}

func TestResolveRecordsRepairActions(t *testing.T) {
	f, _ := newFixture(t)
	ctx := context.Background()
	rel := testutil.SeedRelationship(t, f.db, true)
	created := time.Now().UTC().Add(-48 * time.Hour)
	c := testutil.SeedConflict(t, f.db, rel, testutil.ConflictSeed{CreatedAt: created, Topic: "chores"})

	resolvedAt := created.Add(2 * time.Hour)
	by := rel.PartnerAID
	got, err := f.conflict.Resolve(ctx, c.ID, ResolveConflictInput{
		ResolvedAt:       &resolvedAt,
		RepairStrategies: []string{"Chore chart", "chore chart ", "Apology dinner", ""},
		AppliedBy:        &by,
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !got.IsResolved || got.ResolvedAt == nil || !got.ResolvedAt.Equal(resolvedAt) {
		t.Fatalf("expected resolved at %v, got %+v", resolvedAt, got.ResolvedAt)
	}
	rows, err := f.actions.ListByConflictIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{c.ID})
	if err != nil {
		t.Fatalf("ListByConflictIDs: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 distinct strategies, got %d", len(rows))
	}

	later := resolvedAt.Add(24 * time.Hour)
	got, err = f.conflict.Resolve(ctx, c.ID, ResolveConflictInput{ResolvedAt: &later, RepairStrategies: []string{"Weekly check-in"}})
	if err != nil {
		t.Fatalf("Resolve again: %v", err)
	}
	if !got.ResolvedAt.Equal(resolvedAt) {
		t.Fatalf("resolution time moved to %v", got.ResolvedAt)
	}
	rows, _ = f.actions.ListByConflictIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{c.ID})
	if len(rows) != 3 {
		t.Fatalf("expected 3 strategies after second resolve, got %d", len(rows))
	}

	stranger := uuid.New()
	_, err = f.conflict.Resolve(ctx, c.ID, ResolveConflictInput{AppliedBy: &stranger})
	if status, _ := apiCode(t, err); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for stranger, got %d", status)
	}
}

func TestDeleteConflict(t *testing.T) {
	f, risk := newFixture(t)
	ctx := context.Background()
	rel := testutil.SeedRelationship(t, f.db, true)
	c := testutil.SeedConflict(t, f.db, rel, testutil.ConflictSeed{Topic: "money"})

	if err := f.conflict.Delete(ctx, c.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if risk.calls != 1 {
		t.Fatalf("expected risk invalidation on delete")
	}
	dbc := dbctx.Context{Ctx: ctx}
	job, err := f.jobRepo.FindRunnableForEntity(dbc, rel.ID, EntityRelationship, rel.ID, JobTypePatternAggregate)
	if err != nil || job == nil {
		t.Fatalf("expected aggregation queued after deleting an enriched conflict: job=%v err=%v", job, err)
	}
	err = f.conflict.Delete(ctx, c.ID)
	if status, code := apiCode(t, err); status != http.StatusNotFound || code != "conflict_not_found" {
		t.Fatalf("got %d/%s", status, code)
	}

	other := testutil.SeedRelationship(t, f.db, true)
	pending := testutil.SeedConflict(t, f.db, other, testutil.ConflictSeed{Topic: "money", Status: conflict.EnrichmentPending})
	if err := f.conflict.Delete(ctx, pending.ID); err != nil {
		t.Fatalf("Delete pending: %v", err)
	}
	job, err = f.jobRepo.FindRunnableForEntity(dbc, other.ID, EntityRelationship, other.ID, JobTypePatternAggregate)
	if err != nil || job != nil {
		t.Fatalf("an unenriched conflict should not trigger aggregation: job=%v err=%v", job, err)
	}
}

func TestUpsertProfileRequeuesAwaitingConflicts(t *testing.T) {
	f, _ := newFixture(t)
	ctx := context.Background()
	rel := testutil.SeedRelationship(t, f.db, false)
	waiting := testutil.SeedConflict(t, f.db, rel, testutil.ConflictSeed{Status: conflict.EnrichmentAwaitingProfiles})
	testutil.SeedConflict(t, f.db, rel, testutil.ConflictSeed{Status: conflict.EnrichmentCompleted})

	res, err := f.rels.UpsertProfile(ctx, rel.ID, rel.PartnerAID, ProfileInput{
		StressTriggers:   []string{"raised voice", "Raised voice", " "},
		PostConflictNeed: " space ",
	})
	if err != nil {
		t.Fatalf("UpsertProfile A: %v", err)
	}
	if res.Complete || res.Requeued != 0 {
		t.Fatalf("expected incomplete profiles, got %+v", res)
	}
	if got := res.Profile.Summary("partner_a"); len(got.StressTriggers) != 1 || got.PostConflictNeed != "space" {
		t.Fatalf("profile not cleaned: %+v", got)
	}

	res, err = f.rels.UpsertProfile(ctx, rel.ID, rel.PartnerBID, ProfileInput{PostConflictNeed: "reassurance"})
	if err != nil {
		t.Fatalf("UpsertProfile B: %v", err)
	}
	if !res.Complete || res.Requeued != 1 {
		t.Fatalf("expected one requeued conflict, got %+v", res)
	}
	job, err := f.jobRepo.FindRunnableForEntity(dbctx.Context{Ctx: ctx}, rel.ID, EntityConflict, waiting.ID, JobTypeConflictEnrich)
	if err != nil || job == nil {
		t.Fatalf("expected enrichment job for waiting conflict (err=%v)", err)
	}

	_, err = f.rels.UpsertProfile(ctx, rel.ID, uuid.New(), ProfileInput{})
	if status, _ := apiCode(t, err); status != http.StatusNotFound {
		t.Fatalf("expected 404 for non-member, got %d", status)
	}
}

func TestCreateRelationship(t *testing.T) {
	f, _ := newFixture(t)
	ctx := context.Background()
	a := uuid.New()

	if _, err := f.rels.Create(ctx, CreateRelationshipInput{PartnerAID: a, PartnerBID: a}); err == nil {
		t.Fatalf("expected duplicate partner rejection")
	}
	rel, err := f.rels.Create(ctx, CreateRelationshipInput{PartnerAID: a, PartnerBID: uuid.New()})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := f.rels.Get(ctx, rel.ID)
	if err != nil || got.PartnerAID != a {
		t.Fatalf("Get: %+v (%v)", got, err)
	}
}

func TestJobCancelRestart(t *testing.T) {
	f, _ := newFixture(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	relID := uuid.New()

	job, created, err := f.jobs.EnqueuePatternAggregateIfNeeded(dbc, relID, "test")
	if err != nil || !created {
		t.Fatalf("enqueue: created=%v err=%v", created, err)
	}
	if ok, err := f.jobs.SchedulePatternAggregate(ctx, relID); err != nil || ok {
		t.Fatalf("expected dedupe while queued, got %v (%v)", ok, err)
	}

	_, err = f.jobs.Restart(dbc, job.ID)
	if status, _ := apiCode(t, err); status != http.StatusConflict {
		t.Fatalf("expected 409 restarting a queued job, got %d", status)
	}

	canceled, err := f.jobs.Cancel(dbc, job.ID)
	if err != nil || canceled.Status != jobstatus.StatusCanceled {
		t.Fatalf("Cancel: %+v (%v)", canceled, err)
	}
	if ok, err := f.jobs.SchedulePatternAggregate(ctx, relID); err != nil || !ok {
		t.Fatalf("expected a new job once the old one is canceled, got %v (%v)", ok, err)
	}

	restarted, err := f.jobs.Restart(dbc, job.ID)
	if err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if restarted.Status != jobstatus.StatusQueued || restarted.Attempts != 0 || restarted.Error != "" {
		t.Fatalf("unexpected restarted job: %+v", restarted)
	}

	list, err := f.jobs.ListForRelationship(dbc, relID, 0)
	if err != nil || len(list) != 2 {
		t.Fatalf("expected 2 jobs, got %d (%v)", len(list), err)
	}

	_, err = f.jobs.GetByID(dbc, uuid.New())
	if status, _ := apiCode(t, err); status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}


func TestPatternSweep(t *testing.T) {
	f, _ := newFixture(t)
	ctx := context.Background()
	log := testutil.Logger(t)

	ready := testutil.SeedRelationship(t, f.db, true)
	sparse := testutil.SeedRelationship(t, f.db, true)
	base := time.Now().UTC().Add(-72 * time.Hour)
	for i := 0; i < 3; i++ {
		testutil.SeedConflict(t, f.db, ready, testutil.ConflictSeed{CreatedAt: base.Add(time.Duration(i) * time.Hour), Topic: "chores"})
	}
	testutil.SeedConflict(t, f.db, sparse, testutil.ConflictSeed{CreatedAt: base, Topic: "money"})

	sweeper := NewPatternSweeper(repos.NewConflictRepo(f.db, log), f.jobs, 3, "", log)
	n, err := sweeper.Sweep(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 queued aggregation, got %d (%v)", n, err)
	}
	n, err = sweeper.Sweep(ctx)
	if err != nil || n != 0 {
		t.Fatalf("expected dedupe on second sweep, got %d (%v)", n, err)
	}
	if err := sweeper.Start(ctx); err != nil {
		t.Fatalf("empty schedule should be a no-op: %v", err)
	}
	bad := NewPatternSweeper(repos.NewConflictRepo(f.db, log), f.jobs, 3, "not a cron", log)
	if err := bad.Start(ctx); err == nil {
		t.Fatalf("expected schedule parse error")
	}
}

func TestPatternsGateOnEnrichedCount(t *testing.T) {
	f, _ := newFixture(t)
	ctx := context.Background()
	log := testutil.Logger(t)
	rel := testutil.SeedRelationship(t, f.db, true)
	stored := repos.NewRelationshipPatternsRepo(f.db, log)
	conflicts := repos.NewConflictRepo(f.db, log)
	loader := history.NewLoader(
		repos.NewRelationshipRepo(f.db, log),
		repos.NewPartnerProfileRepo(f.db, log),
		conflicts,
		repos.NewTriggerPhraseRepo(f.db, log),
		repos.NewUnmetNeedRepo(f.db, log),
		repos.NewRepairAttemptRepo(f.db, log),
		repos.NewRepairActionRepo(f.db, log),
		log,
	)
	svc := &insightService{
		rels:       repos.NewRelationshipRepo(f.db, log),
		conflicts:  conflicts,
		aggregator: patterns.NewAggregator(loader, stored, nil, nil, policy.Default(), log),
		policy:     policy.Default(),
		log:        log,
	}

	testutil.SeedConflict(t, f.db, rel, testutil.ConflictSeed{Topic: "chores"})
	// a row left over from a larger history
	left := &types.PatternSet{RelationshipID: rel.ID, LastUpdated: time.Now().UTC(), TotalFightsAnalyzed: 3}
	if err := stored.Replace(dbctx.Context{Ctx: ctx}, left.Row()); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	view, err := svc.Patterns(ctx, rel.ID)
	if err != nil {
		t.Fatalf("Patterns: %v", err)
	}
	if view.State != PatternsStateInsufficientHistory || view.Patterns != nil || view.EnrichedCount != 1 {
		t.Fatalf("expected insufficient_history with 1 enriched, got %+v", view)
	}

	testutil.SeedConflict(t, f.db, rel, testutil.ConflictSeed{Topic: "chores"})
	testutil.SeedConflict(t, f.db, rel, testutil.ConflictSeed{Topic: "chores"})
	view, err = svc.Patterns(ctx, rel.ID)
	if err != nil {
		t.Fatalf("Patterns: %v", err)
	}
	if view.State != PatternsStateReady || view.Patterns == nil || view.Patterns.TotalFightsAnalyzed != 3 {
		t.Fatalf("expected ready patterns, got %+v", view)
	}
}
