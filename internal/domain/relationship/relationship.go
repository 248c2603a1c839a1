package relationship

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Relationship is the explicit scope every insight operation runs against.
type Relationship struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PartnerAID uuid.UUID `gorm:"type:uuid;column:partner_a_id;not null;index" json:"partner_a_id"`
	PartnerBID uuid.UUID `gorm:"type:uuid;column:partner_b_id;not null;index" json:"partner_b_id"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`
}

func (Relationship) TableName() string { return "relationship" }

func (r *Relationship) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

func (r *Relationship) Partners() []uuid.UUID {
	if r == nil {
		return nil
	}
	return []uuid.UUID{r.PartnerAID, r.PartnerBID}
}

func (r *Relationship) HasPartner(id uuid.UUID) bool {
	return r != nil && id != uuid.Nil && (r.PartnerAID == id || r.PartnerBID == id)
}

// Side returns "partner_a" or "partner_b" for a member id, "" otherwise.
func (r *Relationship) Side(id uuid.UUID) string {
	switch {
	case r == nil || id == uuid.Nil:
		return ""
	case r.PartnerAID == id:
		return "partner_a"
	case r.PartnerBID == id:
		return "partner_b"
	default:
		return ""
	}
}

// PartnerProfile holds one partner's self-reported conflict preferences.
type PartnerProfile struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	RelationshipID     uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_partner_profile_rel_partner,priority:1" json:"relationship_id"`
	PartnerID          uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_partner_profile_rel_partner,priority:2" json:"partner_id"`
	StressTriggers     datatypes.JSON `gorm:"column:stress_triggers" json:"stress_triggers"`
	SoothingMechanisms datatypes.JSON `gorm:"column:soothing_mechanisms" json:"soothing_mechanisms"`
	ApologyPreferences datatypes.JSON `gorm:"column:apology_preferences" json:"apology_preferences"`
	PostConflictNeed   string         `gorm:"column:post_conflict_need" json:"post_conflict_need"`
	RepairGestures     datatypes.JSON `gorm:"column:repair_gestures" json:"repair_gestures"`
	EscalationTriggers datatypes.JSON `gorm:"column:escalation_triggers" json:"escalation_triggers"`
	CreatedAt          time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"not null" json:"updated_at"`
}

func (PartnerProfile) TableName() string { return "partner_profile" }

func (p *PartnerProfile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// ProfileSummary is the decoded, prompt-ready view of a PartnerProfile.
type ProfileSummary struct {
	PartnerID          uuid.UUID `json:"partner_id"`
	Label              string    `json:"label"`
	StressTriggers     []string  `json:"stress_triggers"`
	SoothingMechanisms []string  `json:"soothing_mechanisms"`
	ApologyPreferences []string  `json:"apology_preferences"`
	PostConflictNeed   string    `json:"post_conflict_need"`
	RepairGestures     []string  `json:"repair_gestures"`
	EscalationTriggers []string  `json:"escalation_triggers"`
}

func (p *PartnerProfile) Summary(label string) ProfileSummary {
	if p == nil {
		return ProfileSummary{Label: label}
	}
	return ProfileSummary{
		PartnerID:          p.PartnerID,
		Label:              label,
		StressTriggers:     decodeStrings(p.StressTriggers),
		SoothingMechanisms: decodeStrings(p.SoothingMechanisms),
		ApologyPreferences: decodeStrings(p.ApologyPreferences),
		PostConflictNeed:   p.PostConflictNeed,
		RepairGestures:     decodeStrings(p.RepairGestures),
		EscalationTriggers: decodeStrings(p.EscalationTriggers),
	}
}

func EncodeStrings(v []string) datatypes.JSON {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return datatypes.JSON(b)
}

func decodeStrings(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return []string{}
	}
	return out
}
