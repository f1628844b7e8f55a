package types

import "time"

// KnowledgeBase is the tenant boundary. Created on first schema
// registration; schema updates bump the version. Never deleted here.
type KnowledgeBase struct {
	KBID          string    `json:"kb_id"`
	SchemaVersion int       `json:"schema_version"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// GraphCounts is the store-side shape of a KB: totals plus a per-label
// breakdown.
type GraphCounts struct {
	TotalNodes         int64            `json:"total_nodes"`
	TotalRelationships int64            `json:"total_relationships"`
	NodesByLabel       map[string]int64 `json:"nodes_by_label"`
}

type RegisterResult struct {
	KBID              string `json:"kb_id"`
	SchemaVersion     int    `json:"schema_version"`
	NodeTypes         int    `json:"node_types"`
	RelationshipTypes int    `json:"relationship_types"`
	Sources           int    `json:"sources"`
}
