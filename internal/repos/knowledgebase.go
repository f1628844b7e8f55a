package repos

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ryandmonk/knowledge-graph-brain/internal/graph"
	"github.com/ryandmonk/knowledge-graph-brain/internal/platform/logger"
	"github.com/ryandmonk/knowledge-graph-brain/internal/types"
)

// Labels reserved for the orchestrator's own records; excluded from tenant
// graph counts even though some carry a kb_id property.
var systemLabels = []string{"KnowledgeBase", "Migration", "ApiKey", "Role", "Permission", "AuthEvent"}

type KnowledgeBaseRepo interface {
	// Upsert creates the KB on first registration and bumps schema_version
	// on every subsequent one, persisting the schema document alongside.
	Upsert(ctx context.Context, doc *types.SchemaDocument) (*types.KnowledgeBase, error)
	Get(ctx context.Context, kbID string) (*types.KnowledgeBase, error)
	GetSchema(ctx context.Context, kbID string) (*types.SchemaDocument, error)
	List(ctx context.Context) ([]types.KnowledgeBase, error)
	Counts(ctx context.Context, kbID string) (*types.GraphCounts, error)
	Ping(ctx context.Context) error
}

type knowledgeBaseRepo struct {
	store graph.Store
	log   *logger.Logger
}

func NewKnowledgeBaseRepo(store graph.Store, baseLog *logger.Logger) KnowledgeBaseRepo {
	return &knowledgeBaseRepo{
		store: store,
		log:   baseLog.With("repo", "KnowledgeBaseRepo"),
	}
}

func (r *knowledgeBaseRepo) Upsert(ctx context.Context, doc *types.SchemaDocument) (*types.KnowledgeBase, error) {
	schemaJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode schema document: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	rows, err := r.store.ExecuteWrite(ctx, `MERGE (kb:KnowledgeBase {kb_id: $kb_id})
ON CREATE SET kb.created_at = $now, kb.schema_version = 0
SET kb.schema_version = kb.schema_version + 1,
    kb.schema_json = $schema_json,
    kb.updated_at = $now
RETURN kb.schema_version AS schema_version, kb.created_at AS created_at, kb.updated_at AS updated_at`,
		map[string]any{
			"kb_id":       doc.KBID,
			"schema_json": string(schemaJSON),
			"now":         now,
		})
	if err != nil {
		return nil, fmt.Errorf("upsert knowledge base: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("upsert knowledge base: no row returned")
	}
	return kbFromRow(doc.KBID, rows[0]), nil
}

func (r *knowledgeBaseRepo) Get(ctx context.Context, kbID string) (*types.KnowledgeBase, error) {
	rows, err := r.store.ExecuteRead(ctx, `MATCH (kb:KnowledgeBase {kb_id: $kb_id})
RETURN kb.schema_version AS schema_version, kb.created_at AS created_at, kb.updated_at AS updated_at`,
		map[string]any{"kb_id": kbID})
	if err != nil {
		return nil, fmt.Errorf("get knowledge base: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return kbFromRow(kbID, rows[0]), nil
}

func (r *knowledgeBaseRepo) GetSchema(ctx context.Context, kbID string) (*types.SchemaDocument, error) {
	rows, err := r.store.ExecuteRead(ctx, `MATCH (kb:KnowledgeBase {kb_id: $kb_id})
RETURN kb.schema_json AS schema_json`,
		map[string]any{"kb_id": kbID})
	if err != nil {
		return nil, fmt.Errorf("get schema: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	raw, _ := rows[0]["schema_json"].(string)
	if raw == "" {
		return nil, nil
	}
	var doc types.SchemaDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode stored schema for %s: %w", kbID, err)
	}
	return &doc, nil
}

func (r *knowledgeBaseRepo) List(ctx context.Context) ([]types.KnowledgeBase, error) {
	rows, err := r.store.ExecuteRead(ctx, `MATCH (kb:KnowledgeBase)
RETURN kb.kb_id AS kb_id, kb.schema_version AS schema_version, kb.created_at AS created_at, kb.updated_at AS updated_at
ORDER BY kb.kb_id`, nil)
	if err != nil {
		return nil, fmt.Errorf("list knowledge bases: %w", err)
	}
	out := make([]types.KnowledgeBase, 0, len(rows))
	for _, row := range rows {
		kbID, _ := row["kb_id"].(string)
		out = append(out, *kbFromRow(kbID, row))
	}
	return out, nil
}

func (r *knowledgeBaseRepo) Counts(ctx context.Context, kbID string) (*types.GraphCounts, error) {
	notSystem := ""
	for _, l := range systemLabels {
		notSystem += " AND NOT n:" + l
	}

	rows, err := r.store.ExecuteRead(ctx,
		`MATCH (n) WHERE n.kb_id = $kb_id`+notSystem+`
RETURN labels(n)[0] AS label, count(n) AS c`,
		map[string]any{"kb_id": kbID})
	if err != nil {
		return nil, fmt.Errorf("count nodes: %w", err)
	}

	counts := &types.GraphCounts{NodesByLabel: map[string]int64{}}
	for _, row := range rows {
		label, _ := row["label"].(string)
		c := asInt64(row["c"])
		counts.NodesByLabel[label] = c
		counts.TotalNodes += c
	}

	relRows, err := r.store.ExecuteRead(ctx,
		`MATCH ()-[rel]->() WHERE rel.kb_id = $kb_id RETURN count(rel) AS c`,
		map[string]any{"kb_id": kbID})
	if err != nil {
		return nil, fmt.Errorf("count relationships: %w", err)
	}
	if len(relRows) > 0 {
		counts.TotalRelationships = asInt64(relRows[0]["c"])
	}

	return counts, nil
}

func (r *knowledgeBaseRepo) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}

func kbFromRow(kbID string, row map[string]any) *types.KnowledgeBase {
	return &types.KnowledgeBase{
		KBID:          kbID,
		SchemaVersion: int(asInt64(row["schema_version"])),
		CreatedAt:     asTime(row["created_at"]),
		UpdatedAt:     asTime(row["updated_at"]),
	}
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}

func asTime(v any) time.Time {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
