package types

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

type RunErrorStage string

const (
	RunErrorStageExtraction  RunErrorStage = "extraction"
	RunErrorStagePersistence RunErrorStage = "persistence"
	RunErrorStageRun         RunErrorStage = "run"
)

type RunError struct {
	Stage   RunErrorStage `json:"stage"`
	Message string        `json:"message"`
	At      time.Time     `json:"at"`
}

// Run tracks one ingestion attempt from start to terminal status. Once
// completed or failed it is immutable.
type Run struct {
	RunID                string     `json:"run_id"`
	KBID                 string     `json:"kb_id"`
	SourceID             string     `json:"source_id"`
	Status               RunStatus  `json:"status"`
	StartedAt            time.Time  `json:"started_at"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	DurationMS           int64      `json:"duration_ms,omitempty"`
	NodesProcessed       int        `json:"nodes_processed"`
	RelationshipsCreated int        `json:"relationships_created"`
	Errors               []RunError `json:"errors"`
}

func (r *Run) Terminal() bool {
	return r.Status == RunStatusCompleted || r.Status == RunStatusFailed
}

// IngestResult is the caller-facing outcome of one ingestion trigger.
// Partial failure is still a success envelope with accurate counts.
type IngestResult struct {
	RunID                string     `json:"run_id"`
	ProcessedDocuments   int        `json:"processed_documents"`
	CreatedNodes         int        `json:"created_nodes"`
	CreatedRelationships int        `json:"created_relationships"`
	Errors               []RunError `json:"errors"`
}
