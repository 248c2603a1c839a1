package chain

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	types "github.com/yungbote/attune-backend/internal/domain"
	"github.com/yungbote/attune-backend/internal/modules/insight/policy"
	"github.com/yungbote/attune-backend/internal/normalization"
)

// Candidate is an earlier conflict that was still open when the new one was created.
type Candidate struct {
	Conflict *types.Conflict
	Needs    []string
}

type Decision struct {
	ParentID *uuid.UUID
	ChainID  uuid.UUID
	Score    float64
	// ChildID is a later chain member that must be re-pointed to the new conflict.
	ChildID *uuid.UUID
}

func (d Decision) Linked() bool { return d.ParentID != nil }

// Similarity is TopicWeight·jaccard(topic tokens) + NeedWeight·jaccard(need labels).
func Similarity(topicA, topicB []string, needsA, needsB []string, p policy.ChainPolicy) float64 {
	return p.TopicWeight*normalization.Jaccard(topicA, topicB) + p.NeedWeight*normalization.Jaccard(dedupe(needsA), dedupe(needsB))
}

// Decide links c to the most similar candidate scoring at least the threshold; ties go to the
// most recent candidate. Unlinked conflicts start a chain keyed by their own id.
func Decide(c *types.Conflict, needs []string, candidates []Candidate, p policy.ChainPolicy) Decision {
	tokens := topicTokens(c)
	var (
		best      *types.Conflict
		bestScore float64
	)
	for _, cand := range candidates {
		prev := cand.Conflict
		if prev == nil || prev.ID == c.ID || !prev.CreatedAt.Before(c.CreatedAt) {
			continue
		}
		score := Similarity(tokens, topicTokens(prev), needs, cand.Needs, p)
		if score+1e-9 < p.Threshold {
			continue
		}
		if best == nil || score > bestScore+1e-9 || (score > bestScore-1e-9 && newer(prev, best)) {
			best, bestScore = prev, score
		}
	}
	if best == nil {
		return Decision{ChainID: c.ID}
	}
	parent := best.ID
	chainID := best.ID
	if best.ConflictChainID != nil && *best.ConflictChainID != uuid.Nil {
		chainID = *best.ConflictChainID
	}
	return Decision{ParentID: &parent, ChainID: chainID, Score: bestScore}
}

// Tail returns the latest chain member created before c, keeping chains linear.
func Tail(c *types.Conflict, members []*types.Conflict) *types.Conflict {
	var tail *types.Conflict
	for _, m := range members {
		if m == nil || m.ID == c.ID || !m.CreatedAt.Before(c.CreatedAt) {
			continue
		}
		if tail == nil || newer(m, tail) {
			tail = m
		}
	}
	return tail
}

// Successor returns the earliest chain member created after c, or nil when c becomes the tail.
func Successor(c *types.Conflict, members []*types.Conflict) *types.Conflict {
	var next *types.Conflict
	for _, m := range members {
		if m == nil || m.ID == c.ID || !m.CreatedAt.After(c.CreatedAt) {
			continue
		}
		if next == nil || newer(next, m) {
			next = m
		}
	}
	return next
}

// Order returns chain members sorted by created_at then id.
func Order(members []*types.Conflict) []*types.Conflict {
	out := append([]*types.Conflict(nil), members...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func newer(a, b *types.Conflict) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID.String() > b.ID.String()
}

func topicTokens(c *types.Conflict) []string {
	if c.TopicNorm != "" {
		return strings.Fields(c.TopicNorm)
	}
	return normalization.TopicTokens(c.Topic)
}

func dedupe(v []string) []string {
	seen := make(map[string]struct{}, len(v))
	out := make([]string, 0, len(v))
	for _, s := range v {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
