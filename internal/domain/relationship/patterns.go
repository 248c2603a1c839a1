package relationship

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RelationshipPatterns is a derived cache, regenerated wholesale by aggregation.
type RelationshipPatterns struct {
	ID                     uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	RelationshipID         uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"relationship_id"`
	LastUpdated            time.Time      `gorm:"column:last_updated;not null" json:"last_updated"`
	TotalFightsAnalyzed    int            `gorm:"column:total_fights_analyzed;not null;default:0" json:"total_fights_analyzed"`
	LookbackDays           int            `gorm:"column:lookback_days;not null;default:0" json:"lookback_days"`
	EscalationTriggers     datatypes.JSON `gorm:"column:escalation_triggers" json:"escalation_triggers"`
	DeescalationTechniques datatypes.JSON `gorm:"column:deescalation_techniques" json:"deescalation_techniques"`
	RecurringTopics        datatypes.JSON `gorm:"column:recurring_topics" json:"recurring_topics"`
	RepairStrategies       datatypes.JSON `gorm:"column:repair_strategies" json:"repair_strategies"`
	MetaPatterns           datatypes.JSON `gorm:"column:meta_patterns" json:"meta_patterns"`
	CreatedAt              time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt              time.Time      `gorm:"not null" json:"updated_at"`
}

func (RelationshipPatterns) TableName() string { return "relationship_patterns" }

func (p *RelationshipPatterns) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

type TriggerStat struct {
	Phrase          string  `json:"phrase"`
	Category        string  `json:"category"`
	Occurrences     int     `json:"occurrences"`
	EscalatingCount int     `json:"escalating_count"`
	EscalationRate  float64 `json:"escalation_rate"`
}

type TechniqueStat struct {
	Technique   string  `json:"technique"`
	Attempts    int     `json:"attempts"`
	Successes   int     `json:"successes"`
	SuccessRate float64 `json:"success_rate"`
}

type TopicStat struct {
	Topic              string    `json:"topic"`
	Occurrences        int       `json:"occurrences"`
	FirstSeen          time.Time `json:"first_seen"`
	LastSeen           time.Time `json:"last_seen"`
	EverResolved       bool      `json:"ever_resolved"`
	ResolutionAttempts int       `json:"resolution_attempts"`
	Chronic            bool      `json:"chronic"`
}

type RepairStrategyStat struct {
	Strategy        string  `json:"strategy"`
	TimesTried      int     `json:"times_tried"`
	TimesSuccessful int     `json:"times_successful"`
	SuccessRate     float64 `json:"success_rate"`
	Pending         int     `json:"pending"`
}

type MetaPatterns struct {
	RepairInitiator   string  `json:"repair_initiator"`
	Escalator         string  `json:"escalator"`
	AverageIntensity  string  `json:"average_intensity"`
	AverageResentment float64 `json:"average_resentment"`
	ResolutionLatency string  `json:"resolution_latency"`
}

// PatternSet is the decoded form of RelationshipPatterns.
type PatternSet struct {
	RelationshipID         uuid.UUID            `json:"relationship_id"`
	LastUpdated            time.Time            `json:"last_updated"`
	TotalFightsAnalyzed    int                  `json:"total_fights_analyzed"`
	LookbackDays           int                  `json:"lookback_days"`
	EscalationTriggers     []TriggerStat        `json:"escalation_triggers"`
	DeescalationTechniques []TechniqueStat      `json:"deescalation_techniques"`
	RecurringTopics        []TopicStat          `json:"recurring_topics"`
	RepairStrategies       []RepairStrategyStat `json:"repair_strategies"`
	Meta                   MetaPatterns         `json:"meta_patterns"`
}

func (s *PatternSet) Row() *RelationshipPatterns {
	return &RelationshipPatterns{
		RelationshipID:         s.RelationshipID,
		LastUpdated:            s.LastUpdated,
		TotalFightsAnalyzed:    s.TotalFightsAnalyzed,
		LookbackDays:           s.LookbackDays,
		EscalationTriggers:     mustJSON(nonNil(s.EscalationTriggers)),
		DeescalationTechniques: mustJSON(nonNil(s.DeescalationTechniques)),
		RecurringTopics:        mustJSON(nonNil(s.RecurringTopics)),
		RepairStrategies:       mustJSON(nonNil(s.RepairStrategies)),
		MetaPatterns:           mustJSON(s.Meta),
	}
}

func (p *RelationshipPatterns) Decode() (*PatternSet, error) {
	out := &PatternSet{
		RelationshipID:      p.RelationshipID,
		LastUpdated:         p.LastUpdated,
		TotalFightsAnalyzed: p.TotalFightsAnalyzed,
		LookbackDays:        p.LookbackDays,
	}
	for _, f := range []struct {
		raw datatypes.JSON
		dst any
	}{
		{p.EscalationTriggers, &out.EscalationTriggers},
		{p.DeescalationTechniques, &out.DeescalationTechniques},
		{p.RecurringTopics, &out.RecurringTopics},
		{p.RepairStrategies, &out.RepairStrategies},
		{p.MetaPatterns, &out.Meta},
	} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

func mustJSON(v any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON([]byte("null"))
	}
	return datatypes.JSON(b)
}
