package services

import (
	"context"

	"github.com/yungbote/attune-backend/internal/clients/redis"
	types "github.com/yungbote/attune-backend/internal/domain"
	"github.com/yungbote/attune-backend/internal/platform/logger"
)

type JobNotifier interface {
	JobCreated(job *types.JobRun)
	JobProgress(job *types.JobRun, stage string, progress int, message string)
	JobFailed(job *types.JobRun, stage string, errorMessage string)
	JobDone(job *types.JobRun)
}

type jobNotifier struct {
	bus redis.EventBus
	log *logger.Logger
}

// NewJobNotifier forwards terminal job transitions to the insight event bus.
func NewJobNotifier(bus redis.EventBus, baseLog *logger.Logger) JobNotifier {
	if bus == nil {
		bus = redis.NewEventBus(nil, baseLog)
	}
	return &jobNotifier{bus: bus, log: baseLog.With("service", "JobNotifier")}
}

func (n *jobNotifier) JobCreated(job *types.JobRun) {
	n.log.Debug("job created", "job_id", job.ID, "job_type", job.JobType, "relationship_id", job.RelationshipID)
}

func (n *jobNotifier) JobProgress(job *types.JobRun, stage string, progress int, message string) {
	n.log.Debug("job progress", "job_id", job.ID, "job_type", job.JobType, "stage", stage, "progress", progress)
}

func (n *jobNotifier) JobFailed(job *types.JobRun, stage string, errorMessage string) {
	n.log.Warn("job failed",
		"job_id", job.ID,
		"job_type", job.JobType,
		"status", job.Status,
		"stage", stage,
		"attempts", job.Attempts,
		"error", errorMessage,
	)
	n.publish(redis.EventJobFailed, job)
}

func (n *jobNotifier) JobDone(job *types.JobRun) {
	n.publish(redis.EventJobDone, job)
}

func (n *jobNotifier) publish(eventType string, job *types.JobRun) {
	id := job.ID
	err := n.bus.Publish(context.Background(), redis.InsightEvent{
		Type:           eventType,
		RelationshipID: job.RelationshipID,
		ConflictID:     job.EntityIDIf("conflict"),
		JobID:          &id,
		JobType:        job.JobType,
		Status:         job.Status,
	})
	if err != nil {
		n.log.Warn("publish job event failed", "job_id", job.ID, "error", err)
	}
}
