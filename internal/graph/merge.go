package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/ryandmonk/knowledge-graph-brain/internal/platform/logger"
	"github.com/ryandmonk/knowledge-graph-brain/internal/schema"
	"github.com/ryandmonk/knowledge-graph-brain/internal/types"
)

// Merger persists fragments with provenance. Every persisted node carries
// its business key under the schema's key field (inside the property map)
// and mirrored on a canonical `key` property; identity is (kb_id, key) per
// label, so relationship endpoints resolve without schema lookups.
type Merger struct {
	store Store
	log   *logger.Logger
}

func NewMerger(store Store, baseLog *logger.Logger) *Merger {
	return &Merger{
		store: store,
		log:   baseLog.With("component", "Merger"),
	}
}

// MergeNodesAndRels upserts fragments in order, each upsert independently
// atomic. Store failures and missing endpoints are recorded and the batch
// continues; partial success is reflected in the returned counts.
func (m *Merger) MergeNodesAndRels(
	ctx context.Context,
	kbID, sourceID, runID string,
	nodes []types.NodeFragment,
	rels []types.RelFragment,
) (types.MergeResult, []types.RunError) {
	var result types.MergeResult
	var errs []types.RunError

	for _, node := range nodes {
		created, err := m.mergeNode(ctx, kbID, sourceID, runID, node)
		if err != nil {
			errs = append(errs, types.RunError{
				Stage:   types.RunErrorStagePersistence,
				Message: fmt.Sprintf("node %s key=%v: %v", node.Label, node.Key, err),
				At:      time.Now().UTC(),
			})
			continue
		}
		result.ProcessedNodes++
		if created {
			result.CreatedNodes++
		}
	}

	for _, rel := range rels {
		created, err := m.mergeRel(ctx, kbID, sourceID, runID, rel)
		if err != nil {
			errs = append(errs, types.RunError{
				Stage:   types.RunErrorStagePersistence,
				Message: fmt.Sprintf("relationship %s %v->%v: %v", rel.Type, rel.From.Key, rel.To.Key, err),
				At:      time.Now().UTC(),
			})
			continue
		}
		result.ProcessedRels++
		if created {
			result.CreatedRels++
		}
	}

	return result, errs
}

// tenantProps drops property names the merge query stamps itself.
// Registration rejects them, but schemas persisted before that rule (or
// written around it) must still never clobber identity or provenance.
func tenantProps(props map[string]any) map[string]any {
	clean := make(map[string]any, len(props))
	for k, v := range props {
		if schema.ReservedField(k) {
			continue
		}
		clean[k] = v
	}
	return clean
}

func (m *Merger) mergeNode(ctx context.Context, kbID, sourceID, runID string, node types.NodeFragment) (bool, error) {
	query := fmt.Sprintf(`MERGE (n:%s {kb_id: $kb_id, key: $key})
ON CREATE SET n.created_at = $now
SET n += $props,
    n.kb_id = $kb_id,
    n.key = $key,
    n.source_id = $source_id,
    n.run_id = $run_id,
    n.updated_at = $now
RETURN n.created_at = $now AS created`, quoteIdent(node.Label))

	rows, err := m.store.ExecuteWrite(ctx, query, map[string]any{
		"kb_id":     kbID,
		"key":       node.Key,
		"props":     tenantProps(node.Properties),
		"source_id": sourceID,
		"run_id":    runID,
		"now":       time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return false, err
	}
	if len(rows) == 0 {
		return false, fmt.Errorf("merge returned no row")
	}
	created, _ := rows[0]["created"].(bool)
	return created, nil
}

// mergeRel MATCHes endpoints rather than merging them: a missing endpoint
// means zero rows, reported to the caller as a recorded error, never a
// blind placeholder node.
func (m *Merger) mergeRel(ctx context.Context, kbID, sourceID, runID string, rel types.RelFragment) (bool, error) {
	query := fmt.Sprintf(`MATCH (a:%s {kb_id: $kb_id, key: $from_key})
MATCH (b:%s {kb_id: $kb_id, key: $to_key})
MERGE (a)-[r:%s]->(b)
ON CREATE SET r.created_at = $now
SET r += $props,
    r.kb_id = $kb_id,
    r.source_id = $source_id,
    r.run_id = $run_id,
    r.updated_at = $now
RETURN r.created_at = $now AS created`,
		quoteIdent(rel.From.Label), quoteIdent(rel.To.Label), quoteIdent(rel.Type))

	rows, err := m.store.ExecuteWrite(ctx, query, map[string]any{
		"kb_id":     kbID,
		"from_key":  rel.From.Key,
		"to_key":    rel.To.Key,
		"props":     tenantProps(rel.Properties),
		"source_id": sourceID,
		"run_id":    runID,
		"now":       time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return false, err
	}
	if len(rows) == 0 {
		return false, fmt.Errorf("endpoint %s key=%v or %s key=%v not found",
			rel.From.Label, rel.From.Key, rel.To.Label, rel.To.Key)
	}
	created, _ := rows[0]["created"].(bool)
	return created, nil
}
