package types

import "time"

type HealthStatus string

const (
	HealthHealthy HealthStatus = "healthy"
	HealthWarning HealthStatus = "warning"
	HealthStale   HealthStatus = "stale"
	HealthError   HealthStatus = "error"
)

// SourceStatus is the most recent run observed for one source of a KB.
type SourceStatus struct {
	SourceID string `json:"source_id"`
	LastRun  *Run   `json:"last_run,omitempty"`
}

type KnowledgeBaseStatus struct {
	KBID               string           `json:"kb_id"`
	SchemaVersion      int              `json:"schema_version"`
	TotalNodes         int64            `json:"total_nodes"`
	TotalRelationships int64            `json:"total_relationships"`
	NodesByLabel       map[string]int64 `json:"nodes_by_label"`
	Sources            []SourceStatus   `json:"sources"`
	LastSuccessfulSync *time.Time       `json:"last_successful_sync,omitempty"`
	DataFreshnessHours *float64         `json:"data_freshness_hours,omitempty"`
	HealthStatus       HealthStatus     `json:"health_status"`
	LastError          string           `json:"last_error,omitempty"`
}

type SystemStatus struct {
	KnowledgeBases []KnowledgeBaseStatus `json:"knowledge_bases"`
	StoreReachable bool                  `json:"store_reachable"`
	ActiveRuns     int                   `json:"active_runs"`
	TotalErrors    int                   `json:"total_errors"`
	HealthScore    int                   `json:"health_score"`
	GeneratedAt    time.Time             `json:"generated_at"`
}
