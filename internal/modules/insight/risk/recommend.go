package risk

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yungbote/attune-backend/internal/modules/insight/history"
)

// Recommend derives suggestions from the dominant factors, chronic needs and the partners'
// self-reported soothing mechanisms. Output order is stable.
func Recommend(a Assessment, snap *history.Snapshot, chronic []ChronicNeed) []string {
	out := []string{}
	if snap == nil || len(snap.Conflicts) == 0 {
		return out
	}
	open := snap.Unresolved()

	if a.UnresolvedIssueCount >= 2 && a.Factors.Unresolved >= 0.4 {
		oldest := open[0]
		label := strings.TrimSpace(oldest.Topic)
		if label == "" {
			out = append(out, fmt.Sprintf("%d conflicts are still open; close the oldest one before starting new discussions.", a.UnresolvedIssueCount))
		} else {
			out = append(out, fmt.Sprintf("%d conflicts are still open; start by closing the oldest one, about %q.", a.UnresolvedIssueCount, label))
		}
	}
	if a.Factors.Recurrence > 0 {
		if topic := mostRepeatedOpenTopic(snap); topic != "" {
			out = append(out, fmt.Sprintf("%q keeps coming back without resolution; agree on one concrete change before discussing it again.", topic))
		} else {
			out = append(out, "The same needs keep surfacing in separate conflicts; name them explicitly next time you talk.")
		}
	}
	if a.Factors.Recency >= 0.7 && a.Factors.Resentment >= 0.3 {
		out = append(out, "Tension is recent and resentment is high; plan a calm check-in once both partners feel settled.")
	}
	if len(chronic) > 0 {
		out = append(out, fmt.Sprintf("The need for %s has gone unmet in %d conflicts; make space to address it directly.",
			humanize(chronic[0].Need), chronic[0].ConflictCount))
	}
	if a.Interpretation == BandHigh || a.Interpretation == BandCritical {
		if soothe := soothingHints(snap); soothe != "" {
			out = append(out, "Before the next conversation, use what helps each partner calm down: "+soothe+".")
		}
	}
	return out
}

func mostRepeatedOpenTopic(snap *history.Snapshot) string {
	counts := map[string]int{}
	labels := map[string]string{}
	for _, c := range snap.Unresolved() {
		if c.TopicNorm == "" {
			continue
		}
		counts[c.TopicNorm]++
		labels[c.TopicNorm] = c.Topic
	}
	best, bestN := "", 1
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if counts[k] > bestN {
			best, bestN = k, counts[k]
		}
	}
	if best == "" {
		return ""
	}
	return labels[best]
}

func soothingHints(snap *history.Snapshot) string {
	rel := snap.Relationship
	if rel == nil {
		return ""
	}
	parts := []string{}
	for _, p := range snap.Profiles {
		side := rel.Side(p.PartnerID)
		if side == "" {
			continue
		}
		s := p.Summary(side)
		if len(s.SoothingMechanisms) == 0 {
			continue
		}
		parts = append(parts, side+": "+strings.Join(s.SoothingMechanisms, ", "))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

func humanize(label string) string { return strings.ReplaceAll(label, "_", " ") }
