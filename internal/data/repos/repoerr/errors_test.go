package repoerr

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapError(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"pg unique", &pgconn.PgError{Code: "23505"}, ErrDuplicate},
		{"sqlite unique", errors.New("UNIQUE constraint failed: trigger_phrase.conflict_id"), ErrDuplicate},
		{"pg deadlock", &pgconn.PgError{Code: "40P01"}, ErrRetryable},
		{"canceled", context.Canceled, ErrRetryable},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := MapError("op", tc.err)
			if !errors.Is(got, tc.want) {
				t.Fatalf("MapError(%v) = %v, want %v", tc.err, got, tc.want)
			}
			if !errors.Is(got, tc.err) {
				t.Fatalf("original error lost: %v", got)
			}
		})
	}
	if MapError("op", nil) != nil {
		t.Fatalf("nil should map to nil")
	}
	if errors.Is(MapError("op", errors.New("boom")), ErrDuplicate) {
		t.Fatalf("plain errors must not be tagged duplicate")
	}
}
