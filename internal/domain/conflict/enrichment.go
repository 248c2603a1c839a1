package conflict

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Closed trigger phrase categories.
const (
	CategoryBlame         = "blame"
	CategoryContempt      = "contempt"
	CategoryDismissal     = "dismissal"
	CategoryStonewalling  = "stonewalling_cue"
	CategoryCriticism     = "criticism"
	CategoryDefensiveness = "defensiveness"
	CategoryThreat        = "threat"
	CategorySarcasm       = "sarcasm"
)

var TriggerCategories = []string{
	CategoryBlame, CategoryContempt, CategoryDismissal, CategoryStonewalling,
	CategoryCriticism, CategoryDefensiveness, CategoryThreat, CategorySarcasm,
}

// Closed unmet need labels.
var NeedLabels = []string{
	"feeling_heard", "trust", "respect", "autonomy", "affection", "appreciation",
	"security", "fairness", "support", "quality_time", "reassurance",
}

// Closed in-conflict repair techniques.
var RepairTechniques = []string{
	"apology", "validation", "humor", "break_request", "reassurance",
	"compromise", "affection", "accountability", "curiosity",
}

func inVocab(vocab []string, v string) bool {
	for _, x := range vocab {
		if x == v {
			return true
		}
	}
	return false
}

func IsTriggerCategory(v string) bool { return inVocab(TriggerCategories, v) }
func IsNeedLabel(v string) bool       { return inVocab(NeedLabels, v) }
func IsRepairTechnique(v string) bool { return inVocab(RepairTechniques, v) }

// TriggerPhrase rows are written once per extraction pass and replaced wholesale on re-extraction.
type TriggerPhrase struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ConflictID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_trigger_phrase_natural,priority:1" json:"conflict_id"`
	RelationshipID     uuid.UUID `gorm:"type:uuid;not null;index" json:"relationship_id"`
	Phrase             string    `gorm:"column:phrase;not null" json:"phrase"`
	PhraseNorm         string    `gorm:"column:phrase_norm;not null;uniqueIndex:idx_trigger_phrase_natural,priority:2" json:"phrase_norm"`
	Category           string    `gorm:"column:category;not null;index" json:"category"`
	SpeakerID          uuid.UUID `gorm:"type:uuid;column:speaker_id;not null;uniqueIndex:idx_trigger_phrase_natural,priority:3" json:"speaker_id"`
	EmotionalIntensity int       `gorm:"column:emotional_intensity;not null;default:0" json:"emotional_intensity"`
	EscalationFlag     bool      `gorm:"column:escalation_flag;not null;default:false" json:"escalation_flag"`
	CreatedAt          time.Time `gorm:"not null" json:"created_at"`
}

func (TriggerPhrase) TableName() string { return "trigger_phrase" }

func (p *TriggerPhrase) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

type UnmetNeed struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ConflictID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_unmet_need_natural,priority:1" json:"conflict_id"`
	RelationshipID uuid.UUID `gorm:"type:uuid;not null;index" json:"relationship_id"`
	Need           string    `gorm:"column:need;not null;uniqueIndex:idx_unmet_need_natural,priority:2" json:"need"`
	Confidence     float64   `gorm:"column:confidence;not null;default:0" json:"confidence"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
}

func (UnmetNeed) TableName() string { return "unmet_need" }

func (n *UnmetNeed) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}

// RepairAttempt is a repair bid made during the conflict itself.
type RepairAttempt struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ConflictID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_repair_attempt_natural,priority:1" json:"conflict_id"`
	RelationshipID uuid.UUID `gorm:"type:uuid;not null;index" json:"relationship_id"`
	Technique      string    `gorm:"column:technique;not null;uniqueIndex:idx_repair_attempt_natural,priority:2" json:"technique"`
	SpeakerID      uuid.UUID `gorm:"type:uuid;column:speaker_id;not null;uniqueIndex:idx_repair_attempt_natural,priority:3" json:"speaker_id"`
	Phrase         string    `gorm:"column:phrase;not null" json:"phrase"`
	PhraseNorm     string    `gorm:"column:phrase_norm;not null;uniqueIndex:idx_repair_attempt_natural,priority:4" json:"phrase_norm"`
	TurnIndex      int       `gorm:"column:turn_index;not null;default:0" json:"turn_index"`
	DeEscalated    bool      `gorm:"column:de_escalated;not null;default:false" json:"de_escalated"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
}

func (RepairAttempt) TableName() string { return "repair_attempt" }

func (a *RepairAttempt) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// RepairAction is a post-conflict strategy recorded when a conflict is resolved.
type RepairAction struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ConflictID     uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_repair_action_natural,priority:1" json:"conflict_id"`
	RelationshipID uuid.UUID  `gorm:"type:uuid;not null;index" json:"relationship_id"`
	Strategy       string     `gorm:"column:strategy;not null" json:"strategy"`
	StrategyNorm   string     `gorm:"column:strategy_norm;not null;uniqueIndex:idx_repair_action_natural,priority:2" json:"strategy_norm"`
	AppliedBy      *uuid.UUID `gorm:"type:uuid;column:applied_by" json:"applied_by,omitempty"`
	AppliedAt      time.Time  `gorm:"column:applied_at;not null;index" json:"applied_at"`
	CreatedAt      time.Time  `gorm:"not null" json:"created_at"`
}

func (RepairAction) TableName() string { return "repair_action" }

func (a *RepairAction) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
