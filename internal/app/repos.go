package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/attune-backend/internal/data/repos"
	"github.com/yungbote/attune-backend/internal/platform/logger"
)

type Repos struct {
	Tx repos.TxRunner

	Relationship repos.RelationshipRepo
	Profile      repos.PartnerProfileRepo
	Conflict     repos.ConflictRepo
	Phrase       repos.TriggerPhraseRepo
	Need         repos.UnmetNeedRepo
	Repair       repos.RepairAttemptRepo
	RepairAction repos.RepairActionRepo
	Patterns     repos.RelationshipPatternsRepo
	Health       repos.HealthSnapshotRepo
	JobRun       repos.JobRunRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Tx:           repos.NewGormTxRunner(db),
		Relationship: repos.NewRelationshipRepo(db, log),
		Profile:      repos.NewPartnerProfileRepo(db, log),
		Conflict:     repos.NewConflictRepo(db, log),
		Phrase:       repos.NewTriggerPhraseRepo(db, log),
		Need:         repos.NewUnmetNeedRepo(db, log),
		Repair:       repos.NewRepairAttemptRepo(db, log),
		RepairAction: repos.NewRepairActionRepo(db, log),
		Patterns:     repos.NewRelationshipPatternsRepo(db, log),
		Health:       repos.NewHealthSnapshotRepo(db, log),
		JobRun:       repos.NewJobRunRepo(db, log),
	}
}
