package patterns

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/attune-backend/internal/domain"
	"github.com/yungbote/attune-backend/internal/modules/insight/errs"
	"github.com/yungbote/attune-backend/internal/modules/insight/history"
	"github.com/yungbote/attune-backend/internal/modules/insight/policy"
)

const day = 24 * time.Hour

const (
	SidePartnerA = "partner_a"
	SidePartnerB = "partner_b"
	SideBalanced = "balanced"
	SideUnknown  = "unknown"

	LatencySameDay         = "same_day"
	LatencyNextDay         = "next_day"
	LatencyDaysLater       = "days_later"
	LatencyOftenUnresolved = "often_unresolved"
)

// Compute rebuilds the full pattern set from the enriched history. Fewer than MinRecords
// enriched conflicts yields ErrInsufficientHistory.
func Compute(snap *history.Snapshot, now time.Time, p policy.AggregationPolicy) (*types.PatternSet, error) {
	enriched := snap.Enriched()
	if len(enriched) < p.MinRecords {
		return nil, errs.ErrInsufficientHistory
	}
	return &types.PatternSet{
		RelationshipID:         snap.Relationship.ID,
		LastUpdated:            now,
		TotalFightsAnalyzed:    len(enriched),
		LookbackDays:           p.LookbackDays,
		EscalationTriggers:     RankTriggers(snap, p),
		DeescalationTechniques: rankTechniques(snap, enriched, p),
		RecurringTopics:        recurringTopics(snap, enriched, p),
		RepairStrategies:       repairStrategies(snap, enriched, now, p),
		Meta:                   metaPatterns(snap, enriched),
	}, nil
}

// RankTriggers groups normalized phrases by conflict: a phrase counts once per conflict and
// escalates in that conflict when any of its rows was flagged.
func RankTriggers(snap *history.Snapshot, p policy.AggregationPolicy) []types.TriggerStat {
	type agg struct {
		phrase     string
		categories map[string]int
		conflicts  int
		escalating int
	}
	byNorm := map[string]*agg{}
	for _, c := range snap.Enriched() {
		perConflict := map[string]bool{}
		for _, tp := range snap.Phrases[c.ID] {
			a := byNorm[tp.PhraseNorm]
			if a == nil {
				a = &agg{phrase: tp.Phrase, categories: map[string]int{}}
				byNorm[tp.PhraseNorm] = a
			}
			a.categories[tp.Category]++
			esc, seen := perConflict[tp.PhraseNorm]
			if !seen {
				a.conflicts++
			}
			if tp.EscalationFlag && !esc {
				a.escalating++
			}
			perConflict[tp.PhraseNorm] = esc || tp.EscalationFlag
		}
	}
	out := []types.TriggerStat{}
	for _, a := range byNorm {
		if a.conflicts < p.MinOccurrences {
			continue
		}
		out = append(out, types.TriggerStat{
			Phrase:          a.phrase,
			Category:        topKey(a.categories),
			Occurrences:     a.conflicts,
			EscalatingCount: a.escalating,
			EscalationRate:  ratio(a.escalating, a.conflicts),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EscalationRate != out[j].EscalationRate {
			return out[i].EscalationRate > out[j].EscalationRate
		}
		if out[i].Occurrences != out[j].Occurrences {
			return out[i].Occurrences > out[j].Occurrences
		}
		return out[i].Phrase < out[j].Phrase
	})
	return top(out, p.TopN)
}

func rankTechniques(snap *history.Snapshot, enriched []*types.Conflict, p policy.AggregationPolicy) []types.TechniqueStat {
	attempts := map[string]int{}
	successes := map[string]int{}
	for _, c := range enriched {
		for _, r := range snap.Repairs[c.ID] {
			attempts[r.Technique]++
			if r.DeEscalated {
				successes[r.Technique]++
			}
		}
	}
	out := []types.TechniqueStat{}
	for tech, n := range attempts {
		if n < p.MinOccurrences {
			continue
		}
		out = append(out, types.TechniqueStat{
			Technique:   tech,
			Attempts:    n,
			Successes:   successes[tech],
			SuccessRate: ratio(successes[tech], n),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SuccessRate != out[j].SuccessRate {
			return out[i].SuccessRate > out[j].SuccessRate
		}
		if out[i].Attempts != out[j].Attempts {
			return out[i].Attempts > out[j].Attempts
		}
		return out[i].Technique < out[j].Technique
	})
	return top(out, p.TopN)
}

func recurringTopics(snap *history.Snapshot, enriched []*types.Conflict, p policy.AggregationPolicy) []types.TopicStat {
	byNorm := map[string]*types.TopicStat{}
	for _, c := range enriched {
		if c.TopicNorm == "" {
			continue
		}
		st := byNorm[c.TopicNorm]
		if st == nil {
			st = &types.TopicStat{FirstSeen: c.CreatedAt, LastSeen: c.CreatedAt}
			byNorm[c.TopicNorm] = st
		}
		st.Occurrences++
		if c.CreatedAt.Before(st.FirstSeen) {
			st.FirstSeen = c.CreatedAt
		}
		if !c.CreatedAt.Before(st.LastSeen) {
			st.LastSeen = c.CreatedAt
			st.Topic = c.Topic
		}
		if st.Topic == "" {
			st.Topic = c.Topic
		}
		st.EverResolved = st.EverResolved || c.IsResolved
		st.ResolutionAttempts += len(snap.Actions[c.ID])
	}
	out := []types.TopicStat{}
	for _, st := range byNorm {
		if st.Occurrences < p.MinOccurrences {
			continue
		}
		st.Chronic = st.Occurrences >= p.ChronicTopicOccurrences
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Occurrences != out[j].Occurrences {
			return out[i].Occurrences > out[j].Occurrences
		}
		if !out[i].LastSeen.Equal(out[j].LastSeen) {
			return out[i].LastSeen.After(out[j].LastSeen)
		}
		return out[i].Topic < out[j].Topic
	})
	return top(out, p.TopN)
}

// repairStrategies scores each post-conflict strategy use: it succeeded when no conflict on the
// same topic followed within RepairWindowDays. Uses whose window is still open and clean are
// reported as pending and left out of the rate.
func repairStrategies(snap *history.Snapshot, enriched []*types.Conflict, now time.Time, p policy.AggregationPolicy) []types.RepairStrategyStat {
	window := time.Duration(p.RepairWindowDays) * day
	byTopic := map[string][]time.Time{}
	for _, c := range snap.Conflicts {
		if c.TopicNorm != "" {
			byTopic[c.TopicNorm] = append(byTopic[c.TopicNorm], c.CreatedAt)
		}
	}
	type agg struct {
		label     string
		tried     int
		succeeded int
		pending   int
	}
	byStrategy := map[string]*agg{}
	for _, c := range enriched {
		for _, a := range snap.Actions[c.ID] {
			st := byStrategy[a.StrategyNorm]
			if st == nil {
				st = &agg{label: a.Strategy}
				byStrategy[a.StrategyNorm] = st
			}
			recurred := false
			if c.TopicNorm != "" {
				for _, at := range byTopic[c.TopicNorm] {
					if at.After(a.AppliedAt) && !at.After(a.AppliedAt.Add(window)) {
						recurred = true
						break
					}
				}
			}
			switch {
			case recurred:
				st.tried++
			case now.Before(a.AppliedAt.Add(window)):
				st.pending++
			default:
				st.tried++
				st.succeeded++
			}
		}
	}
	out := []types.RepairStrategyStat{}
	for _, st := range byStrategy {
		out = append(out, types.RepairStrategyStat{
			Strategy:        st.label,
			TimesTried:      st.tried,
			TimesSuccessful: st.succeeded,
			SuccessRate:     ratio(st.succeeded, st.tried),
			Pending:         st.pending,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SuccessRate != out[j].SuccessRate {
			return out[i].SuccessRate > out[j].SuccessRate
		}
		if out[i].TimesTried != out[j].TimesTried {
			return out[i].TimesTried > out[j].TimesTried
		}
		return out[i].Strategy < out[j].Strategy
	})
	return top(out, p.TopN)
}

func metaPatterns(snap *history.Snapshot, enriched []*types.Conflict) types.MetaPatterns {
	rel := snap.Relationship
	initiators := map[string]int{}
	escalators := map[string]int{}
	intensitySum, intensityN := 0, 0
	resentmentSum, resentmentN := 0, 0
	latency := map[string]int{}
	unresolved := 0

	for _, c := range enriched {
		if repairs := snap.Repairs[c.ID]; len(repairs) > 0 {
			first := repairs[0]
			for _, r := range repairs[1:] {
				if r.TurnIndex < first.TurnIndex {
					first = r
				}
			}
			initiators[rel.Side(first.SpeakerID)]++
		}
		perSpeaker := map[uuid.UUID]int{}
		for _, tp := range snap.Phrases[c.ID] {
			intensitySum += tp.EmotionalIntensity
			intensityN++
			if tp.EscalationFlag {
				perSpeaker[tp.SpeakerID]++
			}
		}
		if side := dominantSide(rel, perSpeaker); side != "" {
			escalators[side]++
		}
		if c.ResentmentLevel > 0 {
			resentmentSum += c.ResentmentLevel
			resentmentN++
		}
		if !c.IsResolved || c.ResolvedAt == nil {
			unresolved++
			continue
		}
		switch d := c.ResolvedAt.Sub(c.CreatedAt); {
		case d < day:
			latency[LatencySameDay]++
		case d < 2*day:
			latency[LatencyNextDay]++
		default:
			latency[LatencyDaysLater]++
		}
	}

	m := types.MetaPatterns{
		RepairInitiator:   majority(initiators),
		Escalator:         majority(escalators),
		AverageIntensity:  intensityBand(intensitySum, intensityN),
		AverageResentment: round2(ratio(resentmentSum, resentmentN)),
	}
	if len(enriched) > 0 && float64(unresolved)/float64(len(enriched)) >= 0.5 {
		m.ResolutionLatency = LatencyOftenUnresolved
	} else {
		m.ResolutionLatency = LatencySameDay
		best := -1
		for _, k := range []string{LatencySameDay, LatencyNextDay, LatencyDaysLater} {
			if latency[k] > best {
				m.ResolutionLatency, best = k, latency[k]
			}
		}
	}
	return m
}

// dominantSide returns the partner with strictly more escalating phrases in one conflict.
func dominantSide(rel *types.Relationship, counts map[uuid.UUID]int) string {
	a, b := counts[rel.PartnerAID], counts[rel.PartnerBID]
	switch {
	case a == 0 && b == 0:
		return ""
	case a > b:
		return SidePartnerA
	case b > a:
		return SidePartnerB
	default:
		return SideBalanced
	}
}

func majority(votes map[string]int) string {
	a, b := votes[SidePartnerA], votes[SidePartnerB]
	switch {
	case a == 0 && b == 0:
		return SideUnknown
	case a > b:
		return SidePartnerA
	case b > a:
		return SidePartnerB
	default:
		return SideBalanced
	}
}

func intensityBand(sum, n int) string {
	if n == 0 {
		return "low"
	}
	avg := float64(sum) / float64(n)
	switch {
	case avg < 4:
		return "low"
	case avg < 7:
		return "medium"
	default:
		return "high"
	}
}

func topKey(counts map[string]int) string {
	best, bestN := "", 0
	for k, n := range counts {
		if n > bestN || (n == bestN && k < best) {
			best, bestN = k, n
		}
	}
	return best
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return round2(float64(num) / float64(den))
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func top[T any](v []T, n int) []T {
	if n > 0 && len(v) > n {
		return v[:n]
	}
	return v
}
