package risk

import (
	"sort"
	"time"

	"github.com/yungbote/attune-backend/internal/modules/insight/history"
	"github.com/yungbote/attune-backend/internal/modules/insight/policy"
)

type ChronicNeed struct {
	Need          string    `json:"need"`
	ConflictCount int       `json:"conflict_count"`
	Share         float64   `json:"share"`
	AvgConfidence float64   `json:"avg_confidence"`
	LastExpressed time.Time `json:"last_expressed"`
}

// ChronicNeeds returns needs seen in at least MinConflicts enriched conflicts, or in MinShare of
// them once seen MinShareConflicts times; most frequent first.
func ChronicNeeds(snap *history.Snapshot, p policy.ChronicPolicy) []ChronicNeed {
	enriched := snap.Enriched()
	if len(enriched) == 0 {
		return []ChronicNeed{}
	}
	type agg struct {
		count   int
		confSum float64
		last    time.Time
	}
	byNeed := map[string]*agg{}
	for _, c := range enriched {
		seen := map[string]bool{}
		for _, n := range snap.Needs[c.ID] {
			if seen[n.Need] {
				continue
			}
			seen[n.Need] = true
			a := byNeed[n.Need]
			if a == nil {
				a = &agg{}
				byNeed[n.Need] = a
			}
			a.count++
			a.confSum += n.Confidence
			if c.CreatedAt.After(a.last) {
				a.last = c.CreatedAt
			}
		}
	}
	total := float64(len(enriched))
	out := []ChronicNeed{}
	for need, a := range byNeed {
		share := float64(a.count) / total
		if a.count >= p.MinConflicts || (a.count >= p.MinShareConflicts && share >= p.MinShare) {
			out = append(out, ChronicNeed{
				Need:          need,
				ConflictCount: a.count,
				Share:         round(share, 3),
				AvgConfidence: round(a.confSum/float64(a.count), 3),
				LastExpressed: a.last,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConflictCount != out[j].ConflictCount {
			return out[i].ConflictCount > out[j].ConflictCount
		}
		return out[i].Need < out[j].Need
	})
	return out
}
