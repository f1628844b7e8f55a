package runs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ryandmonk/knowledge-graph-brain/internal/platform/logger"
	"github.com/ryandmonk/knowledge-graph-brain/internal/types"
)

// MemoryStore keeps runs for the process lifetime. Reads return copies so
// status queries never observe a run mid-mutation.
type MemoryStore struct {
	log *logger.Logger
	mu  sync.RWMutex
	run map[string]*types.Run
}

func NewMemoryStore(baseLog *logger.Logger) *MemoryStore {
	return &MemoryStore{
		log: baseLog.With("component", "MemoryRunStore"),
		run: map[string]*types.Run{},
	}
}

func (s *MemoryStore) Start(ctx context.Context, kbID, sourceID string) (*types.Run, error) {
	run := &types.Run{
		RunID:     uuid.New().String(),
		KBID:      kbID,
		SourceID:  sourceID,
		Status:    types.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.run[run.RunID] = run
	s.mu.Unlock()
	return copyRun(run), nil
}

func (s *MemoryStore) UpdateStats(ctx context.Context, runID string, nodesProcessed, relationshipsCreated int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.run[runID]
	if !ok {
		return ErrNotFound
	}
	if run.Terminal() {
		return nil
	}
	run.NodesProcessed += nodesProcessed
	run.RelationshipsCreated += relationshipsCreated
	return nil
}

func (s *MemoryStore) AddError(ctx context.Context, runID string, runErr types.RunError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.run[runID]
	if !ok {
		return ErrNotFound
	}
	if run.Terminal() {
		return nil
	}
	run.Errors = append(run.Errors, runErr)
	return nil
}

func (s *MemoryStore) Complete(ctx context.Context, runID string, status types.RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.run[runID]
	if !ok {
		return ErrNotFound
	}
	finalize(run, status, time.Now().UTC())
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, runID string) (*types.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.run[runID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRun(run), nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*types.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Run, 0, len(s.run))
	for _, run := range s.run {
		out = append(out, copyRun(run))
	}
	return out, nil
}

func (s *MemoryStore) ReapStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	reaped := 0
	for _, run := range s.run {
		if run.Status != types.RunStatusRunning || !run.StartedAt.Before(cutoff) {
			continue
		}
		run.Errors = append(run.Errors, types.RunError{
			Stage:   types.RunErrorStageRun,
			Message: "run exceeded liveness window, marked failed by reaper",
			At:      now,
		})
		finalize(run, types.RunStatusFailed, now)
		reaped++
	}
	if reaped > 0 {
		s.log.Warn("reaped stale runs", "count", reaped, "older_than", olderThan.String())
	}
	return reaped, nil
}

func copyRun(run *types.Run) *types.Run {
	out := *run
	if run.CompletedAt != nil {
		t := *run.CompletedAt
		out.CompletedAt = &t
	}
	out.Errors = make([]types.RunError, len(run.Errors))
	copy(out.Errors, run.Errors)
	return &out
}
