package risk

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/attune-backend/internal/domain"
	"github.com/yungbote/attune-backend/internal/modules/insight/history"
	"github.com/yungbote/attune-backend/internal/modules/insight/policy"
)

const (
	BandLow      = "low"
	BandMedium   = "medium"
	BandHigh     = "high"
	BandCritical = "critical"
)

const day = 24 * time.Hour

type Factors struct {
	Unresolved float64 `json:"unresolved"`
	Resentment float64 `json:"resentment"`
	Recency    float64 `json:"recency"`
	Recurrence float64 `json:"recurrence"`
}

// Assessment is computed on read; it is never stored as a source of truth.
type Assessment struct {
	RelationshipID                 uuid.UUID `json:"relationship_id"`
	RiskScore                      float64   `json:"risk_score"`
	Interpretation                 string    `json:"interpretation"`
	UnresolvedIssueCount           int       `json:"unresolved_issue_count"`
	PredictedDaysUntilNextConflict *float64  `json:"predicted_days_until_next_conflict"`
	Factors                        Factors   `json:"factors"`
	Recommendations                []string  `json:"recommendations"`
	ComputedAt                     time.Time `json:"computed_at"`
}

func Band(score float64) string {
	switch {
	case score < 0.25:
		return BandLow
	case score < 0.5:
		return BandMedium
	case score < 0.75:
		return BandHigh
	default:
		return BandCritical
	}
}

// Score combines the four weighted factors over the snapshot as of now. It has no side effects.
func Score(snap *history.Snapshot, now time.Time, p policy.RiskPolicy) Assessment {
	out := Assessment{ComputedAt: now, Interpretation: BandLow, Recommendations: []string{}}
	if snap == nil {
		return out
	}
	if snap.Relationship != nil {
		out.RelationshipID = snap.Relationship.ID
	}
	if len(snap.Conflicts) == 0 {
		return out
	}

	unresolved := snap.Unresolved()
	out.UnresolvedIssueCount = len(unresolved)

	f := Factors{
		Unresolved: saturate(float64(len(unresolved)), float64(p.UnresolvedSaturation)),
		Resentment: resentmentFactor(unresolved, now, p),
		Recency:    recencyFactor(snap.Conflicts, now, p),
		Recurrence: saturate(float64(recurrenceUnits(snap, unresolved)), float64(p.RecurrenceSaturation)),
	}
	out.Factors = f
	score := p.Weights.Unresolved*f.Unresolved +
		p.Weights.Resentment*f.Resentment +
		p.Weights.Recency*f.Recency +
		p.Weights.Recurrence*f.Recurrence
	out.RiskScore = clamp01(round(score, 4))
	out.Interpretation = Band(out.RiskScore)
	out.PredictedDaysUntilNextConflict = predictDays(snap.Conflicts, now, p)
	return out
}

func saturate(v, cap float64) float64 {
	if cap <= 0 {
		return 0
	}
	return math.Min(v/cap, 1)
}

// resentmentFactor sums resentment/10 over open conflicts, halving every ResentmentHalfLifeDays.
func resentmentFactor(open []*types.Conflict, now time.Time, p policy.RiskPolicy) float64 {
	sum := 0.0
	for _, c := range open {
		if c.ResentmentLevel <= 0 {
			continue
		}
		age := now.Sub(c.CreatedAt).Hours() / 24
		if age < 0 {
			age = 0
		}
		sum += float64(c.ResentmentLevel) / 10 * math.Pow(0.5, age/p.ResentmentHalfLifeDays)
	}
	return math.Min(sum/p.ResentmentSaturation, 1)
}

func recencyFactor(all []*types.Conflict, now time.Time, p policy.RiskPolicy) float64 {
	last := all[0].CreatedAt
	for _, c := range all[1:] {
		if c.CreatedAt.After(last) {
			last = c.CreatedAt
		}
	}
	days := now.Sub(last).Hours() / 24
	if days < 0 {
		days = 0
	}
	return math.Pow(0.5, days/p.RecencyHalfLifeDays)
}

// recurrenceUnits counts repeats among open conflicts: each extra occurrence of a topic, plus
// each extra chain a need label shows up in.
func recurrenceUnits(snap *history.Snapshot, open []*types.Conflict) int {
	units := 0
	topics := map[string]int{}
	needChains := map[string]map[uuid.UUID]struct{}{}
	for _, c := range open {
		if c.TopicNorm != "" {
			topics[c.TopicNorm]++
		}
		chain := c.ID
		if c.ConflictChainID != nil && *c.ConflictChainID != uuid.Nil {
			chain = *c.ConflictChainID
		}
		for _, n := range snap.NeedLabels(c.ID) {
			if needChains[n] == nil {
				needChains[n] = map[uuid.UUID]struct{}{}
			}
			needChains[n][chain] = struct{}{}
		}
	}
	for _, n := range topics {
		if n >= 2 {
			units += n - 1
		}
	}
	for _, chains := range needChains {
		if len(chains) >= 2 {
			units += len(chains) - 1
		}
	}
	return units
}

func predictDays(all []*types.Conflict, now time.Time, p policy.RiskPolicy) *float64 {
	if len(all) == 0 {
		return nil
	}
	times := make([]time.Time, 0, len(all))
	for _, c := range all {
		times = append(times, c.CreatedAt)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	interval := p.DefaultIntervalDays
	if len(times) >= 2 {
		gaps := make([]float64, 0, len(times)-1)
		for i := 1; i < len(times); i++ {
			gaps = append(gaps, times[i].Sub(times[i-1]).Hours()/24)
		}
		interval = median(gaps)
	}
	since := now.Sub(times[len(times)-1]).Hours() / 24
	days := math.Max(interval-since, p.MinPredictedDays)
	days = round(days, 1)
	return &days
}

func median(v []float64) float64 {
	s := append([]float64(nil), v...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round(v float64, places int) float64 {
	m := math.Pow(10, float64(places))
	return math.Round(v*m) / m
}
