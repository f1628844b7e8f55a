package runs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ryandmonk/knowledge-graph-brain/internal/platform/logger"
	"github.com/ryandmonk/knowledge-graph-brain/internal/types"
)

const redisRunHash = "kgb:runs"

// RedisStore keeps runs in a Redis hash so every orchestrator instance sees
// the same registry. Per-run read-modify-write is safe because a run only
// ever has one writer (its owning ingestion task); the reaper is expected to
// run on a single instance.
type RedisStore struct {
	log *logger.Logger
	rdb *goredis.Client
}

func NewRedisStoreFromEnv(baseLog *logger.Logger) (*RedisStore, error) {
	if baseLog == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisStore{
		log: baseLog.With("component", "RedisRunStore"),
		rdb: rdb,
	}, nil
}

func (s *RedisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func (s *RedisStore) Start(ctx context.Context, kbID, sourceID string) (*types.Run, error) {
	run := &types.Run{
		RunID:     uuid.New().String(),
		KBID:      kbID,
		SourceID:  sourceID,
		Status:    types.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := s.put(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *RedisStore) UpdateStats(ctx context.Context, runID string, nodesProcessed, relationshipsCreated int) error {
	run, err := s.Get(ctx, runID)
	if err != nil {
		return err
	}
	if run.Terminal() {
		return nil
	}
	run.NodesProcessed += nodesProcessed
	run.RelationshipsCreated += relationshipsCreated
	return s.put(ctx, run)
}

func (s *RedisStore) AddError(ctx context.Context, runID string, runErr types.RunError) error {
	run, err := s.Get(ctx, runID)
	if err != nil {
		return err
	}
	if run.Terminal() {
		return nil
	}
	run.Errors = append(run.Errors, runErr)
	return s.put(ctx, run)
}

func (s *RedisStore) Complete(ctx context.Context, runID string, status types.RunStatus) error {
	run, err := s.Get(ctx, runID)
	if err != nil {
		return err
	}
	if !finalize(run, status, time.Now().UTC()) {
		return nil
	}
	return s.put(ctx, run)
}

func (s *RedisStore) Get(ctx context.Context, runID string) (*types.Run, error) {
	raw, err := s.rdb.HGet(ctx, redisRunHash, runID).Result()
	if err == goredis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get run: %w", err)
	}
	var run types.Run
	if err := json.Unmarshal([]byte(raw), &run); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return &run, nil
}

func (s *RedisStore) List(ctx context.Context) ([]*types.Run, error) {
	all, err := s.rdb.HGetAll(ctx, redisRunHash).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list runs: %w", err)
	}
	out := make([]*types.Run, 0, len(all))
	for id, raw := range all {
		var run types.Run
		if err := json.Unmarshal([]byte(raw), &run); err != nil {
			s.log.Warn("skipping undecodable run entry", "run_id", id, "error", err)
			continue
		}
		out = append(out, &run)
	}
	return out, nil
}

func (s *RedisStore) ReapStale(ctx context.Context, olderThan time.Duration) (int, error) {
	all, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	now := time.Now().UTC()

	reaped := 0
	for _, run := range all {
		if run.Status != types.RunStatusRunning || !run.StartedAt.Before(cutoff) {
			continue
		}
		run.Errors = append(run.Errors, types.RunError{
			Stage:   types.RunErrorStageRun,
			Message: "run exceeded liveness window, marked failed by reaper",
			At:      now,
		})
		finalize(run, types.RunStatusFailed, now)
		if err := s.put(ctx, run); err != nil {
			return reaped, err
		}
		reaped++
	}
	if reaped > 0 {
		s.log.Warn("reaped stale runs", "count", reaped, "older_than", olderThan.String())
	}
	return reaped, nil
}

func (s *RedisStore) put(ctx context.Context, run *types.Run) error {
	raw, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", run.RunID, err)
	}
	if err := s.rdb.HSet(ctx, redisRunHash, run.RunID, raw).Err(); err != nil {
		return fmt.Errorf("redis put run: %w", err)
	}
	return nil
}
