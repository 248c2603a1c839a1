package relationship

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	TrendImproving = "improving"
	TrendStable    = "stable"
	TrendDeclining = "declining"
)

// HealthSnapshot records one health computation; the score remains reproducible without it.
type HealthSnapshot struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RelationshipID uuid.UUID `gorm:"type:uuid;not null;index:idx_health_snapshot_rel_time,priority:1" json:"relationship_id"`
	Score          float64   `gorm:"column:score;not null" json:"score"`
	PreviousScore  float64   `gorm:"column:previous_score;not null" json:"previous_score"`
	Delta          float64   `gorm:"column:delta;not null" json:"delta"`
	Trend          string    `gorm:"column:trend;not null" json:"trend"`
	RiskScore      float64   `gorm:"column:risk_score;not null" json:"risk_score"`
	ResolutionRate float64   `gorm:"column:resolution_rate;not null" json:"resolution_rate"`
	AvgResentment  float64   `gorm:"column:avg_resentment;not null" json:"avg_resentment"`
	ConflictCount  int       `gorm:"column:conflict_count;not null" json:"conflict_count"`
	ComputedAt     time.Time `gorm:"column:computed_at;not null;index:idx_health_snapshot_rel_time,priority:2" json:"computed_at"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
}

func (HealthSnapshot) TableName() string { return "health_snapshot" }

func (h *HealthSnapshot) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}
