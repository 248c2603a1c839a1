package errs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrInsufficientHistory signals that aggregation has too few enriched conflicts. It is a state, not a failure.
var ErrInsufficientHistory = errors.New("insufficient history")

// ErrEnrichmentInFlight is returned when another worker already holds the conflict's enrichment lock.
var ErrEnrichmentInFlight = errors.New("enrichment already in flight")

// ErrAggregationInFlight is returned when the relationship's aggregation lock is held elsewhere.
var ErrAggregationInFlight = errors.New("aggregation already in flight")

var ErrRelationshipNotFound = errors.New("relationship not found")
var ErrConflictNotFound = errors.New("conflict not found")

// InsufficientDataError means the transcript lacks a turn from at least one participant.
type InsufficientDataError struct {
	MissingSpeakers []uuid.UUID
	Reason          string
}

func (e *InsufficientDataError) Error() string {
	if e == nil {
		return ""
	}
	if e.Reason != "" {
		return "insufficient transcript data: " + e.Reason
	}
	ids := make([]string, 0, len(e.MissingSpeakers))
	for _, id := range e.MissingSpeakers {
		ids = append(ids, id.String())
	}
	return fmt.Sprintf("insufficient transcript data: no turns from %s", strings.Join(ids, ", "))
}

// ExtractionFailedError wraps the last cause after the stricter retry also failed.
type ExtractionFailedError struct {
	Attempts int
	Err      error
}

func (e *ExtractionFailedError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("extraction failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ExtractionFailedError) Unwrap() error { return e.Err }

// IncompleteProfilesError names which partner side has no profile yet.
type IncompleteProfilesError struct {
	MissingSides    []string
	MissingPartners []uuid.UUID
}

func (e *IncompleteProfilesError) Error() string {
	if e == nil {
		return ""
	}
	return "incomplete partner profiles: missing " + strings.Join(e.MissingSides, ", ")
}

func IsInsufficientData(err error) bool {
	var t *InsufficientDataError
	return errors.As(err, &t)
}

func IsExtractionFailed(err error) bool {
	var t *ExtractionFailedError
	return errors.As(err, &t)
}

func IsIncompleteProfiles(err error) bool {
	var t *IncompleteProfilesError
	return errors.As(err, &t)
}

// Permanent reports whether a job retry would repeat the same outcome.
// Extraction already retried once internally; profile gaps are retried by the profile upsert.
func Permanent(err error) bool {
	return IsInsufficientData(err) || IsIncompleteProfiles(err) || IsExtractionFailed(err) ||
		errors.Is(err, ErrConflictNotFound) || errors.Is(err, ErrRelationshipNotFound)
}
