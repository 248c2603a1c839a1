package domain

import (
	"github.com/yungbote/attune-backend/internal/domain/conflict"
	"github.com/yungbote/attune-backend/internal/domain/jobs"
	"github.com/yungbote/attune-backend/internal/domain/relationship"
)

// CONFLICT
type Conflict = conflict.Conflict
type TranscriptTurn = conflict.TranscriptTurn
type TriggerPhrase = conflict.TriggerPhrase
type UnmetNeed = conflict.UnmetNeed
type RepairAttempt = conflict.RepairAttempt
type RepairAction = conflict.RepairAction

// RELATIONSHIP
type Relationship = relationship.Relationship
type PartnerProfile = relationship.PartnerProfile
type ProfileSummary = relationship.ProfileSummary
type RelationshipPatterns = relationship.RelationshipPatterns
type PatternSet = relationship.PatternSet
type TriggerStat = relationship.TriggerStat
type TechniqueStat = relationship.TechniqueStat
type TopicStat = relationship.TopicStat
type RepairStrategyStat = relationship.RepairStrategyStat
type MetaPatterns = relationship.MetaPatterns
type HealthSnapshot = relationship.HealthSnapshot

const (
	TrendImproving = relationship.TrendImproving
	TrendStable    = relationship.TrendStable
	TrendDeclining = relationship.TrendDeclining
)

// JOBS
type JobRun = jobs.JobRun
