package chain

import (
	"testing"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/attune-backend/internal/domain"
	"github.com/yungbote/attune-backend/internal/modules/insight/policy"
	"github.com/yungbote/attune-backend/internal/normalization"
)

func mk(topic string, at time.Time) *types.Conflict {
	return &types.Conflict{ID: uuid.New(), Topic: topic, TopicNorm: normalization.TopicKey(topic), CreatedAt: at}
}

func TestDecide(t *testing.T) {
	p := policy.Default().Chain
	day0 := time.Date(2026, 4, 1, 19, 0, 0, 0, time.UTC)

	first := mk("chores", day0)
	chainID := first.ID
	first.ConflictChainID = &chainID

	t.Run("same normalized topic links and inherits chain", func(t *testing.T) {
		second := mk("Chores!", day0.Add(5*24*time.Hour))
		d := Decide(second, []string{"fairness"}, []Candidate{{Conflict: first, Needs: []string{"appreciation"}}}, p)
		if !d.Linked() || *d.ParentID != first.ID || d.ChainID != chainID {
			t.Fatalf("expected link to first, got %+v", d)
		}
	})

	t.Run("unrelated topic starts its own chain", func(t *testing.T) {
		third := mk("vacation budget", day0.Add(6*24*time.Hour))
		d := Decide(third, nil, []Candidate{{Conflict: first}}, p)
		if d.Linked() || d.ChainID != third.ID {
			t.Fatalf("expected new chain, got %+v", d)
		}
	})

	t.Run("needs alone never link", func(t *testing.T) {
		other := mk("in-laws visit", day0.Add(2*24*time.Hour))
		d := Decide(other, []string{"respect", "fairness"}, []Candidate{{Conflict: first, Needs: []string{"respect", "fairness"}}}, p)
		if d.Linked() {
			t.Fatalf("needs-only similarity %.2f must stay below threshold", d.Score)
		}
	})

	t.Run("partial topic overlap plus needs can link", func(t *testing.T) {
		a := mk("kitchen chores", day0)
		b := mk("chores schedule", day0.Add(time.Hour))
		// topic jaccard 1/3, need jaccard 1 -> 0.7/3 + 0.3 = 0.533
		d := Decide(b, []string{"fairness"}, []Candidate{{Conflict: a, Needs: []string{"fairness"}}}, p)
		if !d.Linked() {
			t.Fatalf("expected link, score %.3f", d.Score)
		}
	})

	t.Run("ties go to the most recent candidate", func(t *testing.T) {
		older := mk("chores", day0)
		newerC := mk("chores", day0.Add(24*time.Hour))
		c := mk("chores", day0.Add(48*time.Hour))
		d := Decide(c, nil, []Candidate{{Conflict: newerC}, {Conflict: older}}, p)
		if !d.Linked() || *d.ParentID != newerC.ID {
			t.Fatalf("expected most recent parent, got %+v", d)
		}
	})

	t.Run("later conflicts are never parents", func(t *testing.T) {
		c := mk("chores", day0)
		later := mk("chores", day0.Add(time.Hour))
		d := Decide(c, nil, []Candidate{{Conflict: later}}, p)
		if d.Linked() {
			t.Fatalf("linked to a later conflict")
		}
	})
}

func TestTail(t *testing.T) {
	day0 := time.Date(2026, 4, 1, 19, 0, 0, 0, time.UTC)
	a := mk("chores", day0)
	b := mk("chores", day0.Add(24*time.Hour))
	c := mk("chores", day0.Add(48*time.Hour))
	if got := Tail(c, []*types.Conflict{a, b, c}); got == nil || got.ID != b.ID {
		t.Fatalf("expected tail b, got %v", got)
	}
	if got := Tail(a, []*types.Conflict{a, b}); got != nil {
		t.Fatalf("expected no tail before the first member")
	}
	ordered := Order([]*types.Conflict{c, a, b})
	if ordered[0].ID != a.ID || ordered[2].ID != c.ID {
		t.Fatalf("Order: unexpected order")
	}
}

func TestSuccessor(t *testing.T) {
	day0 := time.Date(2026, 4, 1, 19, 0, 0, 0, time.UTC)
	a := mk("chores", day0)
	b := mk("chores", day0.Add(24*time.Hour))
	c := mk("chores", day0.Add(48*time.Hour))
	d := mk("chores", day0.Add(72*time.Hour))
	if got := Successor(b, []*types.Conflict{a, d, c}); got == nil || got.ID != c.ID {
		t.Fatalf("expected successor c, got %v", got)
	}
	if got := Successor(d, []*types.Conflict{a, b, c, d}); got != nil {
		t.Fatalf("expected no successor after the tail")
	}
}
