package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/yungbote/attune-backend/internal/data/repos"
	"github.com/yungbote/attune-backend/internal/platform/dbctx"
	"github.com/yungbote/attune-backend/internal/platform/logger"
)

// PatternSweeper periodically queues aggregation for every relationship with enough
// enriched history, catching relationships whose cadence trigger was missed.
type PatternSweeper struct {
	conflicts  repos.ConflictRepo
	jobs       JobService
	minRecords int
	schedule   string
	log        *logger.Logger
}

func NewPatternSweeper(conflicts repos.ConflictRepo, jobs JobService, minRecords int, schedule string, baseLog *logger.Logger) *PatternSweeper {
	if minRecords < 1 {
		minRecords = 1
	}
	return &PatternSweeper{
		conflicts:  conflicts,
		jobs:       jobs,
		minRecords: minRecords,
		schedule:   strings.TrimSpace(schedule),
		log:        baseLog.With("service", "PatternSweeper"),
	}
}

// Sweep returns how many aggregation jobs it queued.
func (s *PatternSweeper) Sweep(ctx context.Context) (int, error) {
	dbc := dbctx.Context{Ctx: ctx}
	ids, err := s.conflicts.ListRelationshipIDsWithEnriched(dbc, s.minRecords)
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return queued, ctx.Err()
		}
		_, created, err := s.jobs.EnqueuePatternAggregateIfNeeded(dbc, id, "sweep")
		if err != nil {
			return queued, fmt.Errorf("enqueue aggregation for %s: %w", id, err)
		}
		if created {
			queued++
		}
	}
	s.log.Info("pattern sweep finished", "relationships", len(ids), "queued", queued)
	return queued, nil
}

// Start schedules Sweep on the cron schedule until ctx ends. An empty schedule disables the sweep.
func (s *PatternSweeper) Start(ctx context.Context) error {
	if s.schedule == "" {
		return nil
	}
	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(s.schedule, func() {
		if _, err := s.Sweep(ctx); err != nil {
			s.log.Warn("pattern sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("parse sweep schedule %q: %w", s.schedule, err)
	}
	c.Start()
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	s.log.Info("pattern sweep scheduled", "schedule", s.schedule)
	return nil
}
