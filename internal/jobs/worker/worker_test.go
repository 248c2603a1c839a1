package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/attune-backend/internal/data/repos"
	"github.com/yungbote/attune-backend/internal/data/repos/testutil"
	types "github.com/yungbote/attune-backend/internal/domain"
	jobstatus "github.com/yungbote/attune-backend/internal/domain/jobs"
	"github.com/yungbote/attune-backend/internal/jobs/pipeline/conflict_enrich"
	"github.com/yungbote/attune-backend/internal/jobs/pipeline/pattern_aggregate"
	"github.com/yungbote/attune-backend/internal/jobs/runtime"
	"github.com/yungbote/attune-backend/internal/modules/insight/enrichment"
	"github.com/yungbote/attune-backend/internal/modules/insight/errs"
	"github.com/yungbote/attune-backend/internal/platform/dbctx"
	"github.com/yungbote/attune-backend/internal/services"
)

type fakeEnricher struct {
	err   error
	calls int
}

func (f *fakeEnricher) Enrich(ctx context.Context, id uuid.UUID) (*enrichment.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &enrichment.Result{Conflict: &types.Conflict{ID: id}}, nil
}

type fakeAggregator struct{ err error }

func (f *fakeAggregator) Aggregate(ctx context.Context, relID uuid.UUID) (*types.PatternSet, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &types.PatternSet{RelationshipID: relID, TotalFightsAnalyzed: 3}, nil
}

type panicky struct{}

func (panicky) Type() string                  { return "explode" }
func (panicky) Run(jc *runtime.Context) error { panic("boom") }

func setup(t *testing.T, enrichErr, aggErr error) (*Worker, services.JobService, repos.JobRunRepo, *fakeEnricher) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	repo := repos.NewJobRunRepo(db, log)
	notify := services.NewJobNotifier(nil, log)
	enricher := &fakeEnricher{err: enrichErr}

	reg := runtime.NewRegistry()
	for _, h := range []runtime.Handler{
		conflict_enrich.New(log, enricher),
		pattern_aggregate.New(log, &fakeAggregator{err: aggErr}),
		panicky{},
	} {
		if err := reg.Register(h); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	w := NewWorker(db, log, repo, reg, notify, Config{MaxAttempts: 3})
	return w, services.NewJobService(db, log, repo, notify), repo, enricher
}

func runOne(t *testing.T, w *Worker, repo repos.JobRunRepo, id uuid.UUID) *types.JobRun {
	t.Helper()
	ran, err := w.RunOnce(context.Background())
	if err != nil || !ran {
		t.Fatalf("RunOnce: ran=%v err=%v", ran, err)
	}
	rows, err := repo.GetByIDs(dbctx.Context{Ctx: context.Background()}, []uuid.UUID{id})
	if err != nil || len(rows) != 1 {
		t.Fatalf("reload job: %v", err)
	}
	return rows[0]
}

func enqueueEnrich(t *testing.T, jobs services.JobService) *types.JobRun {
	t.Helper()
	job, _, err := jobs.EnqueueConflictEnrichIfNeeded(dbctx.Context{Ctx: context.Background()}, uuid.New(), uuid.New(), "test")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return job
}

func TestRunOnceEmptyQueue(t *testing.T) {
	w, _, _, _ := setup(t, nil, nil)
	ran, err := w.RunOnce(context.Background())
	if err != nil || ran {
		t.Fatalf("expected idle worker, got ran=%v err=%v", ran, err)
	}
}

func TestConflictEnrichOutcomes(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status string
		stage  string
	}{
		{"success", nil, jobstatus.StatusSucceeded, "done"},
		{"coalesced", errs.ErrEnrichmentInFlight, jobstatus.StatusSucceeded, "coalesced"},
		{"awaiting profiles", &errs.IncompleteProfilesError{MissingSides: []string{"partner_b"}}, jobstatus.StatusSucceeded, "awaiting_profiles"},
		{"insufficient data", &errs.InsufficientDataError{Reason: "one speaker"}, jobstatus.StatusDead, "extract"},
		{"extraction failed", &errs.ExtractionFailedError{Attempts: 2, Err: errors.New("bad json")}, jobstatus.StatusDead, "extract"},
		{"transient", errors.New("db unavailable"), jobstatus.StatusFailed, "run"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, jobs, repo, enricher := setup(t, tc.err, nil)
			job := enqueueEnrich(t, jobs)
			got := runOne(t, w, repo, job.ID)
			if got.Status != tc.status || got.Stage != tc.stage {
				t.Fatalf("got %s/%s, want %s/%s", got.Status, got.Stage, tc.status, tc.stage)
			}
			if got.Attempts != 1 || enricher.calls != 1 {
				t.Fatalf("expected one attempt, got attempts=%d calls=%d", got.Attempts, enricher.calls)
			}
		})
	}
}

func TestPatternAggregateOutcomes(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status string
		stage  string
	}{
		{"success", nil, jobstatus.StatusSucceeded, "done"},
		{"insufficient history", errs.ErrInsufficientHistory, jobstatus.StatusSucceeded, "insufficient_history"},
		{"in flight", errs.ErrAggregationInFlight, jobstatus.StatusFailed, "aggregate"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, jobs, repo, _ := setup(t, nil, tc.err)
			job, created, err := jobs.EnqueuePatternAggregateIfNeeded(dbctx.Context{Ctx: context.Background()}, uuid.New(), "test")
			if err != nil || !created {
				t.Fatalf("enqueue: %v", err)
			}
			got := runOne(t, w, repo, job.ID)
			if got.Status != tc.status || got.Stage != tc.stage {
				t.Fatalf("got %s/%s, want %s/%s", got.Status, got.Stage, tc.status, tc.stage)
			}
		})
	}
}

func TestMissingHandlerAndPanic(t *testing.T) {
	w, jobs, repo, _ := setup(t, nil, nil)
	dbc := dbctx.Context{Ctx: context.Background()}

	unknown, err := jobs.Enqueue(dbc, uuid.New(), "no_such_job", "", nil, nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if got := runOne(t, w, repo, unknown.ID); got.Status != jobstatus.StatusDead {
		t.Fatalf("expected dead job for unknown type, got %s", got.Status)
	}

	boom, err := jobs.Enqueue(dbc, uuid.New(), "explode", "", nil, nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	got := runOne(t, w, repo, boom.ID)
	if got.Status != jobstatus.StatusFailed || got.Stage != "panic" {
		t.Fatalf("expected failed/panic, got %s/%s", got.Status, got.Stage)
	}
}

func TestExhaustedFailureIsBuried(t *testing.T) {
	w, jobs, repo, _ := setup(t, nil, errs.ErrAggregationInFlight)
	dbc := dbctx.Context{Ctx: context.Background()}
	job, _, err := jobs.EnqueuePatternAggregateIfNeeded(dbc, uuid.New(), "test")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := repo.UpdateFields(dbc, job.ID, map[string]interface{}{"attempts": 2}); err != nil {
		t.Fatalf("seed attempts: %v", err)
	}
	if got := runOne(t, w, repo, job.ID); got.Status != jobstatus.StatusFailed || got.Attempts != 3 {
		t.Fatalf("expected failed third attempt, got %s attempts=%d", got.Status, got.Attempts)
	}

	w.buryExhausted(context.Background())
	rows, err := repo.GetByIDs(dbc, []uuid.UUID{job.ID})
	if err != nil || len(rows) != 1 {
		t.Fatalf("reload: %v", err)
	}
	if rows[0].Status != jobstatus.StatusDead {
		t.Fatalf("expected dead, got %s", rows[0].Status)
	}
}
