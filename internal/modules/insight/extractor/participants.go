package extractor

import (
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/attune-backend/internal/modules/insight/errs"
)

// CheckParticipants requires at least one non-empty turn from each partner.
func CheckParticipants(in Input) error {
	if in.Relationship == nil {
		return &errs.InsufficientDataError{Reason: "no relationship scope"}
	}
	if len(in.Turns) == 0 {
		return &errs.InsufficientDataError{Reason: "transcript has no turns", MissingSpeakers: in.Relationship.Partners()}
	}
	spoke := map[uuid.UUID]bool{}
	for _, t := range in.Turns {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		spoke[t.SpeakerID] = true
	}
	var missing []uuid.UUID
	for _, id := range in.Relationship.Partners() {
		if !spoke[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return &errs.InsufficientDataError{MissingSpeakers: missing}
	}
	return nil
}
