package conflict

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	EnrichmentPending          = "pending"
	EnrichmentProcessing       = "processing"
	EnrichmentCompleted        = "completed"
	EnrichmentFailed           = "failed"
	EnrichmentAwaitingProfiles = "awaiting_profiles"
	EnrichmentInsufficientData = "insufficient_data"
)

const (
	TopicSourceCollaborator = "collaborator"
	TopicSourceInferred     = "inferred"
)

// TranscriptTurn is one speaker-labeled utterance of a finalized transcript.
type TranscriptTurn struct {
	SpeakerID uuid.UUID `json:"speaker_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type Conflict struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RelationshipID uuid.UUID `gorm:"type:uuid;not null;index:idx_conflict_rel_open,priority:1;index:idx_conflict_rel_created,priority:1" json:"relationship_id"`

	Transcript datatypes.JSON `gorm:"column:transcript;not null" json:"-"`
	TurnCount  int            `gorm:"column:turn_count;not null;default:0" json:"turn_count"`

	Topic       string `gorm:"column:topic" json:"topic"`
	TopicNorm   string `gorm:"column:topic_norm;index" json:"topic_norm"`
	TopicSource string `gorm:"column:topic_source" json:"topic_source,omitempty"`
	RootCause   string `gorm:"column:root_cause" json:"root_cause,omitempty"`

	ResentmentLevel int        `gorm:"column:resentment_level;not null;default:0" json:"resentment_level"`
	IsResolved      bool       `gorm:"column:is_resolved;not null;default:false;index:idx_conflict_rel_open,priority:2" json:"is_resolved"`
	ResolvedAt      *time.Time `gorm:"column:resolved_at" json:"resolved_at,omitempty"`

	ParentConflictID *uuid.UUID `gorm:"type:uuid;column:parent_conflict_id;index" json:"parent_conflict_id,omitempty"`
	ConflictChainID  *uuid.UUID `gorm:"type:uuid;column:conflict_chain_id;index:idx_conflict_chain,priority:1" json:"conflict_chain_id,omitempty"`

	EnrichmentStatus string     `gorm:"column:enrichment_status;not null;default:'pending';index" json:"enrichment_status"`
	EnrichmentError  string     `gorm:"column:enrichment_error" json:"enrichment_error,omitempty"`
	EnrichedAt       *time.Time `gorm:"column:enriched_at" json:"enriched_at,omitempty"`
	ExtractionModel  string     `gorm:"column:extraction_model" json:"extraction_model,omitempty"`

	CreatedAt time.Time `gorm:"not null;index:idx_conflict_rel_open,priority:3;index:idx_conflict_rel_created,priority:2;index:idx_conflict_chain,priority:2" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Conflict) TableName() string { return "conflict" }

func (c *Conflict) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.EnrichmentStatus == "" {
		c.EnrichmentStatus = EnrichmentPending
	}
	return nil
}

// Turns decodes the stored transcript; an empty column yields no turns.
func (c *Conflict) Turns() ([]TranscriptTurn, error) {
	if c == nil || len(c.Transcript) == 0 {
		return nil, nil
	}
	var out []TranscriptTurn
	if err := json.Unmarshal(c.Transcript, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func EncodeTurns(turns []TranscriptTurn) (datatypes.JSON, error) {
	if turns == nil {
		turns = []TranscriptTurn{}
	}
	b, err := json.Marshal(turns)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

// OpenAt reports whether the conflict was still unresolved at t.
func (c *Conflict) OpenAt(t time.Time) bool {
	if c == nil {
		return false
	}
	if !c.IsResolved {
		return true
	}
	return c.ResolvedAt != nil && c.ResolvedAt.After(t)
}

func (c *Conflict) Enriched() bool {
	return c != nil && c.EnrichmentStatus == EnrichmentCompleted
}
