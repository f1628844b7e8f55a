package runs

import (
	"context"
	"errors"
	"time"

	"github.com/ryandmonk/knowledge-graph-brain/internal/types"
)

var ErrNotFound = errors.New("run not found")

// Store is the run registry. Per-run mutation is only ever issued by the
// single task that owns the run; reads may happen concurrently from status
// queries, so implementations must be safe for read-while-write.
//
// Two implementations exist: an in-process map for single-instance
// deployments and a Redis-backed store for multi-instance ones, selected at
// startup via RUN_STORE.
type Store interface {
	Start(ctx context.Context, kbID, sourceID string) (*types.Run, error)
	// UpdateStats adds the given deltas to the run's counters.
	UpdateStats(ctx context.Context, runID string, nodesProcessed, relationshipsCreated int) error
	AddError(ctx context.Context, runID string, runErr types.RunError) error
	// Complete finalizes the run to a terminal status. Completing an
	// already-terminal run is a no-op.
	Complete(ctx context.Context, runID string, status types.RunStatus) error
	Get(ctx context.Context, runID string) (*types.Run, error)
	List(ctx context.Context) ([]*types.Run, error)
	// ReapStale fails runs that have been running longer than the liveness
	// window; covers processes that died mid-run.
	ReapStale(ctx context.Context, olderThan time.Duration) (int, error)
}

func finalize(run *types.Run, status types.RunStatus, now time.Time) bool {
	if run.Terminal() {
		return false
	}
	if status != types.RunStatusCompleted && status != types.RunStatusFailed {
		return false
	}
	run.Status = status
	t := now
	run.CompletedAt = &t
	run.DurationMS = now.Sub(run.StartedAt).Milliseconds()
	return true
}
