package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/attune-backend/internal/data/repos/conflict"
	"github.com/yungbote/attune-backend/internal/data/repos/jobs"
	"github.com/yungbote/attune-backend/internal/data/repos/relationship"
	"github.com/yungbote/attune-backend/internal/platform/logger"
)

type ConflictRepo = conflict.ConflictRepo
type TriggerPhraseRepo = conflict.TriggerPhraseRepo
type UnmetNeedRepo = conflict.UnmetNeedRepo
type RepairAttemptRepo = conflict.RepairAttemptRepo
type RepairActionRepo = conflict.RepairActionRepo

type RelationshipRepo = relationship.RelationshipRepo
type PartnerProfileRepo = relationship.PartnerProfileRepo
type RelationshipPatternsRepo = relationship.RelationshipPatternsRepo
type HealthSnapshotRepo = relationship.HealthSnapshotRepo

type JobRunRepo = jobs.JobRunRepo

func NewConflictRepo(db *gorm.DB, baseLog *logger.Logger) ConflictRepo {
	return conflict.NewConflictRepo(db, baseLog)
}
func NewTriggerPhraseRepo(db *gorm.DB, baseLog *logger.Logger) TriggerPhraseRepo {
	return conflict.NewTriggerPhraseRepo(db, baseLog)
}
func NewUnmetNeedRepo(db *gorm.DB, baseLog *logger.Logger) UnmetNeedRepo {
	return conflict.NewUnmetNeedRepo(db, baseLog)
}
func NewRepairAttemptRepo(db *gorm.DB, baseLog *logger.Logger) RepairAttemptRepo {
	return conflict.NewRepairAttemptRepo(db, baseLog)
}
func NewRepairActionRepo(db *gorm.DB, baseLog *logger.Logger) RepairActionRepo {
	return conflict.NewRepairActionRepo(db, baseLog)
}

func NewRelationshipRepo(db *gorm.DB, baseLog *logger.Logger) RelationshipRepo {
	return relationship.NewRelationshipRepo(db, baseLog)
}
func NewPartnerProfileRepo(db *gorm.DB, baseLog *logger.Logger) PartnerProfileRepo {
	return relationship.NewPartnerProfileRepo(db, baseLog)
}
func NewRelationshipPatternsRepo(db *gorm.DB, baseLog *logger.Logger) RelationshipPatternsRepo {
	return relationship.NewRelationshipPatternsRepo(db, baseLog)
}
func NewHealthSnapshotRepo(db *gorm.DB, baseLog *logger.Logger) HealthSnapshotRepo {
	return relationship.NewHealthSnapshotRepo(db, baseLog)
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return jobs.NewJobRunRepo(db, baseLog)
}
