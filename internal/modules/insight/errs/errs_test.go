package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
)

func TestTaxonomyWrapping(t *testing.T) {
	t.Parallel()
	cause := errors.New("bad json")
	wrapped := fmt.Errorf("enrich: %w", &ExtractionFailedError{Attempts: 2, Err: cause})
	if !IsExtractionFailed(wrapped) {
		t.Fatalf("expected extraction failed through wrap")
	}
	if !errors.Is(wrapped, cause) {
		t.Fatalf("expected cause to unwrap")
	}

	missing := &IncompleteProfilesError{MissingSides: []string{"partner_b"}, MissingPartners: []uuid.UUID{uuid.New()}}
	if !IsIncompleteProfiles(fmt.Errorf("x: %w", missing)) || !Permanent(missing) {
		t.Fatalf("expected incomplete profiles to be detected and permanent")
	}
	if missing.Error() != "incomplete partner profiles: missing partner_b" {
		t.Fatalf("unexpected message %q", missing.Error())
	}
	if !Permanent(wrapped) {
		t.Fatalf("extraction failures should not be retried by the job queue")
	}
	if Permanent(fmt.Errorf("db: %w", errors.New("connection reset"))) {
		t.Fatalf("transient errors must stay retryable")
	}
	if !Permanent(&InsufficientDataError{Reason: "empty"}) {
		t.Fatalf("insufficient data should be permanent")
	}
}
