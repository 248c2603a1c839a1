package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/attune-backend/internal/data/repos"
	types "github.com/yungbote/attune-backend/internal/domain"
	jobstatus "github.com/yungbote/attune-backend/internal/domain/jobs"
	"github.com/yungbote/attune-backend/internal/platform/apierr"
	"github.com/yungbote/attune-backend/internal/platform/ctxutil"
	"github.com/yungbote/attune-backend/internal/platform/dbctx"
	"github.com/yungbote/attune-backend/internal/platform/logger"
)

const (
	JobTypeConflictEnrich   = "conflict_enrich"
	JobTypePatternAggregate = "pattern_aggregate"

	EntityConflict     = "conflict"
	EntityRelationship = "relationship"
)

type JobService interface {
	Enqueue(dbc dbctx.Context, relationshipID uuid.UUID, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any) (*types.JobRun, error)
	EnqueueConflictEnrichIfNeeded(dbc dbctx.Context, relationshipID uuid.UUID, conflictID uuid.UUID, trigger string) (*types.JobRun, bool, error)
	EnqueuePatternAggregateIfNeeded(dbc dbctx.Context, relationshipID uuid.UUID, trigger string) (*types.JobRun, bool, error)
	SchedulePatternAggregate(ctx context.Context, relationshipID uuid.UUID) (bool, error)
	GetByID(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error)
	ListForRelationship(dbc dbctx.Context, relationshipID uuid.UUID, limit int) ([]*types.JobRun, error)
	Cancel(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error)
	Restart(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error)
}

type jobService struct {
	db     *gorm.DB
	log    *logger.Logger
	repo   repos.JobRunRepo
	notify JobNotifier
}

func NewJobService(db *gorm.DB, baseLog *logger.Logger, repo repos.JobRunRepo, notify JobNotifier) JobService {
	return &jobService{
		db:     db,
		log:    baseLog.With("service", "JobService"),
		repo:   repo,
		notify: notify,
	}
}

// Enqueue writes a queued job row; the database worker claims it on its next poll.
func (s *jobService) Enqueue(dbc dbctx.Context, relationshipID uuid.UUID, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any) (*types.JobRun, error) {
	if relationshipID == uuid.Nil {
		return nil, fmt.Errorf("missing relationship_id")
	}
	if jobType == "" {
		return nil, fmt.Errorf("missing job_type")
	}
	if payload == nil {
		payload = map[string]any{}
	}
	ctxutil.InjectPayload(dbc.Ctx, payload)
	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	now := time.Now().UTC()
	job := &types.JobRun{
		ID:             uuid.New(),
		RelationshipID: relationshipID,
		JobType:        jobType,
		EntityType:     entityType,
		EntityID:       entityID,
		Status:         jobstatus.StatusQueued,
		Stage:          jobstatus.StatusQueued,
		Message:        "Queued",
		Payload:        datatypes.JSON(b),
		Result:         datatypes.JSON([]byte(`{}`)),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := s.repo.Create(dbctx.Context{Ctx: dbc.Ctx, Tx: transaction}, []*types.JobRun{job}); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	if s.notify != nil {
		s.notify.JobCreated(job)
	}
	return job, nil
}

func (s *jobService) EnqueueConflictEnrichIfNeeded(dbc dbctx.Context, relationshipID uuid.UUID, conflictID uuid.UUID, trigger string) (*types.JobRun, bool, error) {
	if conflictID == uuid.Nil {
		return nil, false, fmt.Errorf("missing conflict_id")
	}
	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	repoCtx := dbctx.Context{Ctx: dbc.Ctx, Tx: transaction}
	existing, err := s.repo.FindRunnableForEntity(repoCtx, relationshipID, EntityConflict, conflictID, JobTypeConflictEnrich)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}
	entityID := conflictID
	job, err := s.Enqueue(repoCtx, relationshipID, JobTypeConflictEnrich, EntityConflict, &entityID, map[string]any{
		"conflict_id": conflictID.String(),
		"trigger":     trigger,
	})
	if err != nil {
		return nil, false, err
	}
	return job, true, nil
}

// EnqueuePatternAggregateIfNeeded keeps at most one runnable aggregation per relationship.
// When one is already runnable it returns that job with created=false.
func (s *jobService) EnqueuePatternAggregateIfNeeded(dbc dbctx.Context, relationshipID uuid.UUID, trigger string) (*types.JobRun, bool, error) {
	if relationshipID == uuid.Nil {
		return nil, false, fmt.Errorf("missing relationship_id")
	}
	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	repoCtx := dbctx.Context{Ctx: dbc.Ctx, Tx: transaction}
	existing, err := s.repo.FindRunnableForEntity(repoCtx, relationshipID, EntityRelationship, relationshipID, JobTypePatternAggregate)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}
	entityID := relationshipID
	job, err := s.Enqueue(repoCtx, relationshipID, JobTypePatternAggregate, EntityRelationship, &entityID, map[string]any{
		"relationship_id": relationshipID.String(),
		"trigger":         trigger,
	})
	if err != nil {
		return nil, false, err
	}
	return job, true, nil
}

func (s *jobService) SchedulePatternAggregate(ctx context.Context, relationshipID uuid.UUID) (bool, error) {
	_, created, err := s.EnqueuePatternAggregateIfNeeded(dbctx.Context{Ctx: ctx}, relationshipID, "enrichment_cadence")
	return created, err
}

func (s *jobService) GetByID(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error) {
	if jobID == uuid.Nil {
		return nil, apierr.BadRequest("invalid_job_id", fmt.Errorf("missing job id"))
	}
	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	rows, err := s.repo.GetByIDs(dbctx.Context{Ctx: dbc.Ctx, Tx: transaction}, []uuid.UUID{jobID})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 || rows[0] == nil {
		return nil, apierr.NotFound("job_not_found", fmt.Errorf("job %s not found", jobID))
	}
	return rows[0], nil
}

func (s *jobService) ListForRelationship(dbc dbctx.Context, relationshipID uuid.UUID, limit int) ([]*types.JobRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	return s.repo.ListByRelationship(dbctx.Context{Ctx: dbc.Ctx, Tx: transaction}, relationshipID, limit)
}

// Cancel is a no-op for jobs that already reached a terminal status.
func (s *jobService) Cancel(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	var updated *types.JobRun
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		inner := dbctx.Context{Ctx: dbc.Ctx, Tx: txx}
		job, err := s.GetByID(inner, jobID)
		if err != nil {
			return err
		}
		if terminal(job.Status) {
			updated = job
			return nil
		}
		now := time.Now().UTC()
		if _, err := s.repo.UpdateFieldsUnlessStatus(inner, jobID, terminalStatuses, map[string]interface{}{
			"status":       jobstatus.StatusCanceled,
			"message":      "Canceled",
			"locked_at":    nil,
			"heartbeat_at": now,
			"updated_at":   now,
		}); err != nil {
			return err
		}
		updated, err = s.GetByID(inner, jobID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Restart requeues a failed, dead or canceled job with a fresh attempt budget.
func (s *jobService) Restart(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	var updated *types.JobRun
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		inner := dbctx.Context{Ctx: dbc.Ctx, Tx: txx}
		job, err := s.GetByID(inner, jobID)
		if err != nil {
			return err
		}
		switch strings.ToLower(strings.TrimSpace(job.Status)) {
		case jobstatus.StatusFailed, jobstatus.StatusDead, jobstatus.StatusCanceled:
		default:
			return apierr.Conflict("job_not_restartable", fmt.Errorf("job is %s", job.Status))
		}
		now := time.Now().UTC()
		if err := s.repo.UpdateFields(inner, jobID, map[string]interface{}{
			"status":        jobstatus.StatusQueued,
			"stage":         jobstatus.StatusQueued,
			"progress":      0,
			"attempts":      0,
			"message":       "Queued",
			"error":         "",
			"last_error_at": nil,
			"locked_at":     nil,
			"heartbeat_at":  nil,
			"updated_at":    now,
		}); err != nil {
			return err
		}
		updated, err = s.GetByID(inner, jobID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

var terminalStatuses = []string{jobstatus.StatusSucceeded, jobstatus.StatusDead, jobstatus.StatusCanceled}

func terminal(status string) bool {
	for _, s := range terminalStatuses {
		if status == s {
			return true
		}
	}
	return false
}
