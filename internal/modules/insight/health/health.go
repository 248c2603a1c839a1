package health

import (
	"math"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/attune-backend/internal/domain"
	"github.com/yungbote/attune-backend/internal/modules/insight/history"
	"github.com/yungbote/attune-backend/internal/modules/insight/policy"
	"github.com/yungbote/attune-backend/internal/modules/insight/risk"
)

const day = 24 * time.Hour

type Components struct {
	RiskScore      float64 `json:"risk_score"`
	ResolutionRate float64 `json:"resolution_rate"`
	AvgResentment  float64 `json:"avg_resentment"`
	ConflictCount  int     `json:"conflict_count"`
}

type Report struct {
	RelationshipID uuid.UUID  `json:"relationship_id"`
	Score          float64    `json:"score"`
	PreviousScore  float64    `json:"previous_score"`
	Delta          float64    `json:"delta"`
	Trend          string     `json:"trend"`
	Components     Components `json:"components"`
	ComputedAt     time.Time  `json:"computed_at"`
}

// Snapshot converts the report into its persisted history row.
func (r Report) Snapshot() *types.HealthSnapshot {
	return &types.HealthSnapshot{
		RelationshipID: r.RelationshipID,
		Score:          r.Score,
		PreviousScore:  r.PreviousScore,
		Delta:          r.Delta,
		Trend:          r.Trend,
		RiskScore:      r.Components.RiskScore,
		ResolutionRate: r.Components.ResolutionRate,
		AvgResentment:  r.Components.AvgResentment,
		ConflictCount:  r.Components.ConflictCount,
		ComputedAt:     r.ComputedAt,
	}
}

// Calculate is a pure function of the history as of now. With no conflicts it returns the
// policy baseline.
func Calculate(snap *history.Snapshot, now time.Time, p *policy.Policy) (float64, Components) {
	var comp Components
	if snap == nil || len(snap.Conflicts) == 0 {
		comp.ResolutionRate = 1
		return clamp(p.Health.Baseline), comp
	}
	comp.ConflictCount = len(snap.Conflicts)
	comp.RiskScore = risk.Score(snap, now, p.Risk).RiskScore

	resolved, resentmentSum, resentmentN := 0, 0, 0
	for _, c := range snap.Conflicts {
		if c.IsResolved {
			resolved++
		}
		if c.ResentmentLevel > 0 {
			resentmentSum += c.ResentmentLevel
			resentmentN++
		}
	}
	comp.ResolutionRate = round(float64(resolved)/float64(len(snap.Conflicts)), 4)
	if resentmentN > 0 {
		comp.AvgResentment = round(float64(resentmentSum)/float64(resentmentN), 2)
	}

	w := p.Health.Weights
	score := 100 * (w.Risk*(1-comp.RiskScore) +
		w.Resolution*comp.ResolutionRate +
		w.Resentment*(1-comp.AvgResentment/10))
	return clamp(score), comp
}

// Trend compares against the previous period; changes within threshold are stable.
func Trend(current, previous, threshold float64) string {
	switch d := current - previous; {
	case d > threshold:
		return types.TrendImproving
	case d < -threshold:
		return types.TrendDeclining
	default:
		return types.TrendStable
	}
}

// Compute scores now and the same history rewound by the trend window.
func Compute(snap *history.Snapshot, now time.Time, p *policy.Policy) Report {
	score, comp := Calculate(snap, now, p)
	prevAt := now.Add(-time.Duration(p.Health.TrendWindowDays) * day)
	var prev float64
	if snap == nil {
		prev, _ = Calculate(nil, prevAt, p)
	} else {
		prev, _ = Calculate(snap.AsOfTime(prevAt), prevAt, p)
	}
	out := Report{
		Score:         score,
		PreviousScore: prev,
		Delta:         round(score-prev, 1),
		Trend:         Trend(score, prev, p.Health.TrendThreshold),
		Components:    comp,
		ComputedAt:    now,
	}
	if snap != nil && snap.Relationship != nil {
		out.RelationshipID = snap.Relationship.ID
	}
	return out
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return round(math.Max(0, math.Min(100, v)), 1)
}

func round(v float64, places int) float64 {
	f := math.Pow(10, float64(places))
	return math.Round(v*f) / f
}
