package graph

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	types "github.com/yungbote/attune-backend/internal/domain"
	"github.com/yungbote/attune-backend/internal/platform/logger"
	"github.com/yungbote/attune-backend/internal/platform/neo4jdb"
)

// ConflictGraph is the optional projection of conflicts, chains, topics and needs.
type ConflictGraph interface {
	UpsertConflict(ctx context.Context, c *types.Conflict, phrases []*types.TriggerPhrase, needs []*types.UnmetNeed) error
	DeleteConflict(ctx context.Context, conflictID uuid.UUID) error
}

var schemaStatements = []string{
	`CREATE CONSTRAINT relationship_id_unique IF NOT EXISTS FOR (r:Relationship) REQUIRE r.id IS UNIQUE`,
	`CREATE CONSTRAINT conflict_id_unique IF NOT EXISTS FOR (c:Conflict) REQUIRE c.id IS UNIQUE`,
	`CREATE CONSTRAINT topic_rel_norm_unique IF NOT EXISTS FOR (t:Topic) REQUIRE (t.relationship_id, t.norm) IS UNIQUE`,
}

type neo4jConflictGraph struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

// NewConflictGraph returns a no-op graph when client is nil.
func NewConflictGraph(client *neo4jdb.Client, baseLog *logger.Logger) ConflictGraph {
	if client == nil || client.Driver == nil {
		return noopGraph{}
	}
	return &neo4jConflictGraph{client: client, log: baseLog.With("graph", "ConflictGraph")}
}

type noopGraph struct{}

func (noopGraph) UpsertConflict(context.Context, *types.Conflict, []*types.TriggerPhrase, []*types.UnmetNeed) error {
	return nil
}
func (noopGraph) DeleteConflict(context.Context, uuid.UUID) error { return nil }

func (g *neo4jConflictGraph) UpsertConflict(ctx context.Context, c *types.Conflict, phrases []*types.TriggerPhrase, needs []*types.UnmetNeed) error {
	if c == nil || c.ID == uuid.Nil || c.RelationshipID == uuid.Nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	chainID := ""
	if c.ConflictChainID != nil && *c.ConflictChainID != uuid.Nil {
		chainID = c.ConflictChainID.String()
	}
	parentID := ""
	if c.ParentConflictID != nil && *c.ParentConflictID != uuid.Nil {
		parentID = c.ParentConflictID.String()
	}

	conflictNode := map[string]any{
		"id":               c.ID.String(),
		"relationship_id":  c.RelationshipID.String(),
		"topic_norm":       c.TopicNorm,
		"resentment_level": c.ResentmentLevel,
		"is_resolved":      c.IsResolved,
		"chain_id":         chainID,
		"created_at":       c.CreatedAt.UTC().Format(time.RFC3339Nano),
		"synced_at":        now,
	}

	triggerRows := make([]map[string]any, 0, len(phrases))
	for _, p := range phrases {
		if p == nil || strings.TrimSpace(p.PhraseNorm) == "" {
			continue
		}
		triggerRows = append(triggerRows, map[string]any{
			"phrase_norm": p.PhraseNorm,
			"category":    p.Category,
			"intensity":   p.EmotionalIntensity,
			"escalating":  p.EscalationFlag,
		})
	}
	needRows := make([]map[string]any, 0, len(needs))
	for _, n := range needs {
		if n == nil || n.Need == "" {
			continue
		}
		needRows = append(needRows, map[string]any{"need": n.Need, "confidence": n.Confidence})
	}

	g.client.EnsureSchema(ctx, schemaStatements...)

	return g.client.Write(ctx, func(tx neo4j.ManagedTransaction) error {
		run := func(cypher string, params map[string]any) error {
			return neo4jdb.Exec(ctx, tx, cypher, params)
		}

		if err := run(`
MERGE (r:Relationship {id: $relationship_id})
SET r.synced_at = $synced_at
WITH r
MERGE (c:Conflict {id: $conflict.id})
SET c += $conflict
MERGE (r)-[e:HAS_CONFLICT]->(c)
SET e.synced_at = $synced_at
`, map[string]any{
			"relationship_id": c.RelationshipID.String(),
			"conflict":        conflictNode,
			"synced_at":       now,
		}); err != nil {
			return err
		}

		// Re-extraction replaces the conflict's outgoing insight edges.
		if err := run(`
MATCH (c:Conflict {id: $id})-[e:ABOUT_TOPIC|EXPRESSED_NEED|TRIGGERED_BY|FOLLOWS]->()
DELETE e
`, map[string]any{"id": c.ID.String()}); err != nil {
			return err
		}

		if c.TopicNorm != "" {
			if err := run(`
MATCH (c:Conflict {id: $id})
MERGE (t:Topic {relationship_id: $relationship_id, norm: $norm})
SET t.label = $label, t.synced_at = $synced_at
MERGE (c)-[:ABOUT_TOPIC]->(t)
`, map[string]any{
				"id":              c.ID.String(),
				"relationship_id": c.RelationshipID.String(),
				"norm":            c.TopicNorm,
				"label":           c.Topic,
				"synced_at":       now,
			}); err != nil {
				return err
			}
		}

		if parentID != "" {
			if err := run(`
MATCH (c:Conflict {id: $id})
MERGE (p:Conflict {id: $parent_id})
MERGE (c)-[e:FOLLOWS]->(p)
SET e.chain_id = $chain_id, e.synced_at = $synced_at
`, map[string]any{
				"id":        c.ID.String(),
				"parent_id": parentID,
				"chain_id":  chainID,
				"synced_at": now,
			}); err != nil {
				return err
			}
		}

		if len(needRows) > 0 {
			if err := run(`
MATCH (c:Conflict {id: $id})
UNWIND $needs AS n
MERGE (nd:Need {label: n.need})
MERGE (c)-[e:EXPRESSED_NEED]->(nd)
SET e.confidence = n.confidence
`, map[string]any{"id": c.ID.String(), "needs": needRows}); err != nil {
				return err
			}
		}

		if len(triggerRows) > 0 {
			if err := run(`
MATCH (c:Conflict {id: $id})
UNWIND $triggers AS t
MERGE (tr:Trigger {relationship_id: $relationship_id, phrase_norm: t.phrase_norm})
SET tr.category = t.category
MERGE (c)-[e:TRIGGERED_BY]->(tr)
SET e.intensity = t.intensity, e.escalating = t.escalating
`, map[string]any{
				"id":              c.ID.String(),
				"relationship_id": c.RelationshipID.String(),
				"triggers":        triggerRows,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

func (g *neo4jConflictGraph) DeleteConflict(ctx context.Context, conflictID uuid.UUID) error {
	if conflictID == uuid.Nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return g.client.Write(ctx, func(tx neo4j.ManagedTransaction) error {
		return neo4jdb.Exec(ctx, tx, `MATCH (c:Conflict {id: $id}) DETACH DELETE c`, map[string]any{"id": conflictID.String()})
	})
}
