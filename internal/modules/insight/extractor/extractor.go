package extractor

import (
	"context"

	"github.com/google/uuid"

	types "github.com/yungbote/attune-backend/internal/domain"
)

// Input is everything one extraction sees. Relationship scopes speaker attribution.
type Input struct {
	Relationship *types.Relationship
	Turns        []types.TranscriptTurn
	Profiles     []types.ProfileSummary
	Topic        string
}

type TriggerCandidate struct {
	Phrase             string
	PhraseNorm         string
	Category           string
	SpeakerID          uuid.UUID
	EmotionalIntensity int
	EscalationFlag     bool
}

type NeedCandidate struct {
	Need       string
	Confidence float64
}

type RepairCandidate struct {
	Phrase      string
	PhraseNorm  string
	Technique   string
	SpeakerID   uuid.UUID
	TurnIndex   int
	DeEscalated bool
}

// StructuredExtraction is validated, deduplicated and capped; it is safe to persist as is.
type StructuredExtraction struct {
	Topic           string
	RootCause       string
	ResentmentLevel int
	TriggerPhrases  []TriggerCandidate
	UnmetNeeds      []NeedCandidate
	RepairAttempts  []RepairCandidate
	Model           string
	Attempts        int
}

type Extractor interface {
	Extract(ctx context.Context, in Input) (*StructuredExtraction, error)
}

// Func adapts a function to Extractor.
type Func func(ctx context.Context, in Input) (*StructuredExtraction, error)

func (f Func) Extract(ctx context.Context, in Input) (*StructuredExtraction, error) { return f(ctx, in) }
