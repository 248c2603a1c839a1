package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/attune-backend/internal/data/graph"
	"github.com/yungbote/attune-backend/internal/jobs/pipeline/conflict_enrich"
	"github.com/yungbote/attune-backend/internal/jobs/pipeline/pattern_aggregate"
	jobruntime "github.com/yungbote/attune-backend/internal/jobs/runtime"
	"github.com/yungbote/attune-backend/internal/jobs/worker"
	"github.com/yungbote/attune-backend/internal/modules/insight/enrichment"
	"github.com/yungbote/attune-backend/internal/modules/insight/extractor"
	"github.com/yungbote/attune-backend/internal/modules/insight/health"
	"github.com/yungbote/attune-backend/internal/modules/insight/history"
	"github.com/yungbote/attune-backend/internal/modules/insight/patterns"
	"github.com/yungbote/attune-backend/internal/modules/insight/policy"
	"github.com/yungbote/attune-backend/internal/modules/insight/risk"
	"github.com/yungbote/attune-backend/internal/platform/logger"
	"github.com/yungbote/attune-backend/internal/services"
)

type Services struct {
	Policy *policy.Policy

	// Engine
	Enrichment *enrichment.Service
	Risk       *risk.Service
	Health     *health.Service
	Aggregator *patterns.Aggregator

	// Caller-facing
	Relationship services.RelationshipService
	Conflict     services.ConflictService
	Insight      services.InsightService

	// Jobs + notifications
	JobNotifier services.JobNotifier
	JobService  services.JobService
	JobRegistry *jobruntime.Registry
	JobWorker   *worker.Worker
	Sweeper     *services.PatternSweeper
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, clients Clients, reposet Repos) (Services, error) {
	log.Info("Wiring services...")

	p := policy.Current(log)

	loader := history.NewLoader(
		reposet.Relationship,
		reposet.Profile,
		reposet.Conflict,
		reposet.Phrase,
		reposet.Need,
		reposet.Repair,
		reposet.RepairAction,
		log,
	)
	conflictGraph := graph.NewConflictGraph(clients.Neo4j, log)

	notifier := services.NewJobNotifier(clients.Events, log)
	jobService := services.NewJobService(db, log, reposet.JobRun, notifier)

	riskSvc := risk.NewService(loader, clients.Cache, p, log)
	healthSvc := health.NewService(loader, reposet.Health, p, log)
	aggregator := patterns.NewAggregator(loader, reposet.Patterns, clients.Locker, clients.Events, p, log)

	enrich := enrichment.NewService(enrichment.Deps{
		Tx:        reposet.Tx,
		Rels:      reposet.Relationship,
		Profiles:  reposet.Profile,
		Conflicts: reposet.Conflict,
		Phrases:   reposet.Phrase,
		Needs:     reposet.Need,
		Repairs:   reposet.Repair,
		Extractor: extractor.NewLLMExtractor(clients.OpenAI, p.Extraction, log),
		Graph:     conflictGraph,
		Locker:    clients.Locker,
		Events:    clients.Events,
		Risk:      riskSvc,
		Scheduler: jobService,
		Policy:    p,
		Log:       log,
	})

	relSvc := services.NewRelationshipService(reposet.Tx, reposet.Relationship, reposet.Profile, reposet.Conflict, jobService, log)
	conflictSvc := services.NewConflictService(reposet.Tx, reposet.Relationship, reposet.Conflict, reposet.RepairAction, jobService, conflictGraph, riskSvc, log)
	insightSvc := services.NewInsightService(reposet.Relationship, reposet.Conflict, enrich, riskSvc, aggregator, healthSvc, p, log)

	jobRegistry := jobruntime.NewRegistry()
	if err := jobRegistry.Register(
		conflict_enrich.New(log, enrich),
		pattern_aggregate.New(log, aggregator),
	); err != nil {
		return Services{}, err
	}
	jobWorker := worker.NewWorker(db, log, reposet.JobRun, jobRegistry, notifier, worker.Config{
		Concurrency:  cfg.WorkerConcurrency,
		MaxAttempts:  cfg.WorkerMaxAttempts,
		RetryDelay:   cfg.WorkerRetryDelay,
		StaleRunning: cfg.WorkerStaleRunning,
	})

	sweeper := services.NewPatternSweeper(reposet.Conflict, jobService, p.Aggregation.MinRecords, cfg.PatternSweepCron, log)

	return Services{
		Policy:       p,
		Enrichment:   enrich,
		Risk:         riskSvc,
		Health:       healthSvc,
		Aggregator:   aggregator,
		Relationship: relSvc,
		Conflict:     conflictSvc,
		Insight:      insightSvc,
		JobNotifier:  notifier,
		JobService:   jobService,
		JobRegistry:  jobRegistry,
		JobWorker:    jobWorker,
		Sweeper:      sweeper,
	}, nil
}
