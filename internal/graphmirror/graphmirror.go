// Package graphmirror optionally projects committed grains and links into
// Neo4j (§4.2b) so reuse-count queries and graph exploration can run against
// a real graph database without the node's own link traversal depending on
// one. Adapted from the teacher's engine/graph.GraphStore, which does the
// same MERGE-node/MERGE-edge dance for vehicle components.
package graphmirror

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/synapsenet/node/internal/model"
)

// Mirror projects grains and links into Neo4j as Grain nodes and LINKS_TO
// edges. It is never consulted on the hot ingest or query path; Link
// traversal for PoE reuse scoring uses the bbolt store's own link index.
type Mirror struct {
	driver neo4j.DriverWithContext
}

// New wraps an already-open Neo4j driver.
func New(driver neo4j.DriverWithContext) *Mirror {
	return &Mirror{driver: driver}
}

// Open dials a Neo4j instance at uri with basic auth, mirroring the
// teacher's cmd/api wiring of neo4j.NewDriverWithContext.
func Open(ctx context.Context, uri, user, password string) (*Mirror, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("graphmirror: new driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("graphmirror: verify connectivity: %w", err)
	}
	return &Mirror{driver: driver}, nil
}

// Close releases the underlying driver.
func (m *Mirror) Close(ctx context.Context) error {
	return m.driver.Close(ctx)
}

func hexID(id [32]byte) string { return hex.EncodeToString(id[:]) }

// PutGrain merges a Grain node, keyed by the grain's hex-encoded id.
func (m *Mirror) PutGrain(ctx context.Context, g model.Grain) error {
	sess := m.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := `MERGE (n:Grain {id: $id})
	           SET n.author_pk = $authorPK, n.created_ms = $createdMs, n.mime = $mime, n.lang = $lang, n.tags = $tags`
	_, err := sess.Run(ctx, cypher, map[string]any{
		"id":        hexID(g.ID),
		"authorPK":  hexID(g.Meta.AuthorPK),
		"createdMs": g.Meta.CreatedMs,
		"mime":      g.Meta.MIME,
		"lang":      g.Meta.Lang,
		"tags":      g.Meta.Tags,
	})
	if err != nil {
		return fmt.Errorf("graphmirror: put grain: %w", err)
	}
	return nil
}

// PutLink merges a LINKS_TO edge between two grain nodes, creating either
// endpoint node if it hasn't been mirrored yet (mirroring the teacher's
// SaveEdge, which MATCHes both endpoints and MERGEs the edge).
func (m *Mirror) PutLink(ctx context.Context, l model.Link) error {
	sess := m.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := `MERGE (a:Grain {id: $from})
	           MERGE (b:Grain {id: $to})
	           MERGE (a)-[r:LINKS_TO {id: $id}]->(b)
	           SET r.weight = $weight, r.rationale = $rationale, r.author_pk = $authorPK, r.created_ms = $createdMs`
	_, err := sess.Run(ctx, cypher, map[string]any{
		"id":        hexID(l.ID),
		"from":      hexID(l.FromID),
		"to":        hexID(l.ToID),
		"weight":    l.Weight,
		"rationale": l.Rationale,
		"authorPK":  hexID(l.AuthorPK),
		"createdMs": l.CreatedMs,
	})
	if err != nil {
		return fmt.Errorf("graphmirror: put link: %w", err)
	}
	return nil
}

// ReuseCount returns the number of distinct grains that link to id,
// matching the R term the PoE scorer computes locally from the bbolt
// store; exposed here only so external tooling can cross-check the two.
func (m *Mirror) ReuseCount(ctx context.Context, id [32]byte) (int64, error) {
	sess := m.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := `MATCH (:Grain)-[:LINKS_TO]->(n:Grain {id: $id}) RETURN count(*) AS c`
	result, err := sess.Run(ctx, cypher, map[string]any{"id": hexID(id)})
	if err != nil {
		return 0, fmt.Errorf("graphmirror: reuse count: %w", err)
	}
	record, err := result.Single(ctx)
	if err != nil {
		return 0, fmt.Errorf("graphmirror: reuse count: %w", err)
	}
	c, _, err := neo4j.GetRecordValue[int64](record, "c")
	if err != nil {
		return 0, fmt.Errorf("graphmirror: reuse count: %w", err)
	}
	return c, nil
}
