package services

import (
	"context"
	"testing"
	"time"

	"github.com/ryandmonk/knowledge-graph-brain/internal/types"
)

func completedRun(kbID, sourceID string, startedAgo time.Duration) *types.Run {
	started := time.Now().UTC().Add(-startedAgo)
	done := started.Add(time.Second)
	return &types.Run{
		RunID:       "run-" + sourceID + "-" + startedAgo.String(),
		KBID:        kbID,
		SourceID:    sourceID,
		Status:      types.RunStatusCompleted,
		StartedAt:   started,
		CompletedAt: &done,
	}
}

func failedRun(kbID, sourceID string, startedAgo time.Duration, msg string) *types.Run {
	started := time.Now().UTC().Add(-startedAgo)
	done := started.Add(time.Second)
	return &types.Run{
		RunID:       "fail-" + sourceID + "-" + startedAgo.String(),
		KBID:        kbID,
		SourceID:    sourceID,
		Status:      types.RunStatusFailed,
		StartedAt:   started,
		CompletedAt: &done,
		Errors: []types.RunError{
			{Stage: types.RunErrorStagePersistence, Message: msg, At: done},
		},
	}
}

func TestKnowledgeBaseStatusUnknownKB(t *testing.T) {
	svc := NewStatusService(newFakeKBRepo(), newFakeRunStore(), testLogger(t))

	st, err := svc.KnowledgeBaseStatus(context.Background(), "nope")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st != nil {
		t.Fatalf("status for unknown kb: want=nil got=%+v", st)
	}
}

func TestKnowledgeBaseStatusHealthThresholds(t *testing.T) {
	cases := []struct {
		name       string
		startedAgo time.Duration
		want       types.HealthStatus
	}{
		{"recent sync is healthy", time.Hour, types.HealthHealthy},
		{"seven hours is warning", 7 * time.Hour, types.HealthWarning},
		{"past a day is stale", 25 * time.Hour, types.HealthStale},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			kbRepo := newFakeKBRepo()
			kbRepo.kbs["retail"] = &types.KnowledgeBase{KBID: "retail", SchemaVersion: 1}
			runStore := newFakeRunStore()
			runStore.add(completedRun("retail", "orders", tc.startedAgo))

			svc := NewStatusService(kbRepo, runStore, testLogger(t))
			st, err := svc.KnowledgeBaseStatus(context.Background(), "retail")
			if err != nil {
				t.Fatalf("status: %v", err)
			}
			if st.HealthStatus != tc.want {
				t.Fatalf("health: want=%q got=%q", tc.want, st.HealthStatus)
			}
			if st.LastSuccessfulSync == nil || st.DataFreshnessHours == nil {
				t.Fatalf("expected freshness fields to be set")
			}
		})
	}
}

func TestKnowledgeBaseStatusFailureAfterSuccessIsError(t *testing.T) {
	kbRepo := newFakeKBRepo()
	kbRepo.kbs["retail"] = &types.KnowledgeBase{KBID: "retail", SchemaVersion: 2}
	runStore := newFakeRunStore()
	runStore.add(completedRun("retail", "orders", 2*time.Hour))
	runStore.add(failedRun("retail", "orders", time.Hour, "endpoint not found"))

	svc := NewStatusService(kbRepo, runStore, testLogger(t))
	st, err := svc.KnowledgeBaseStatus(context.Background(), "retail")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.HealthStatus != types.HealthError {
		t.Fatalf("health: want=%q got=%q", types.HealthError, st.HealthStatus)
	}
	if st.LastError != "endpoint not found" {
		t.Fatalf("last_error: want=%q got=%q", "endpoint not found", st.LastError)
	}
	// The successful sync is still reported even though a later run failed.
	if st.LastSuccessfulSync == nil {
		t.Fatalf("expected last_successful_sync from the earlier completed run")
	}
}

func TestKnowledgeBaseStatusSuccessAfterFailureRecovers(t *testing.T) {
	kbRepo := newFakeKBRepo()
	kbRepo.kbs["retail"] = &types.KnowledgeBase{KBID: "retail", SchemaVersion: 1}
	runStore := newFakeRunStore()
	runStore.add(failedRun("retail", "orders", 3*time.Hour, "store down"))
	runStore.add(completedRun("retail", "orders", time.Hour))

	svc := NewStatusService(kbRepo, runStore, testLogger(t))
	st, err := svc.KnowledgeBaseStatus(context.Background(), "retail")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.HealthStatus != types.HealthHealthy {
		t.Fatalf("health: want=%q got=%q", types.HealthHealthy, st.HealthStatus)
	}
}

func TestKnowledgeBaseStatusLatestRunPerSource(t *testing.T) {
	kbRepo := newFakeKBRepo()
	kbRepo.kbs["retail"] = &types.KnowledgeBase{KBID: "retail", SchemaVersion: 1}
	kbRepo.counts["retail"] = &types.GraphCounts{
		TotalNodes:         42,
		TotalRelationships: 7,
		NodesByLabel:       map[string]int64{"Order": 40, "Product": 2},
	}
	runStore := newFakeRunStore()
	old := completedRun("retail", "orders", 5*time.Hour)
	recent := completedRun("retail", "orders", time.Hour)
	other := completedRun("retail", "catalog", 2*time.Hour)
	foreign := completedRun("other-kb", "orders", time.Minute)
	runStore.add(old)
	runStore.add(recent)
	runStore.add(other)
	runStore.add(foreign)

	svc := NewStatusService(kbRepo, runStore, testLogger(t))
	st, err := svc.KnowledgeBaseStatus(context.Background(), "retail")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(st.Sources) != 2 {
		t.Fatalf("sources: want=2 got=%d", len(st.Sources))
	}
	// Sorted by source_id, each holding the most recent run.
	if st.Sources[0].SourceID != "catalog" || st.Sources[1].SourceID != "orders" {
		t.Fatalf("source order: got %q, %q", st.Sources[0].SourceID, st.Sources[1].SourceID)
	}
	if st.Sources[1].LastRun.RunID != recent.RunID {
		t.Fatalf("orders last run: want=%q got=%q", recent.RunID, st.Sources[1].LastRun.RunID)
	}
	if st.TotalNodes != 42 || st.TotalRelationships != 7 {
		t.Fatalf("counts: got nodes=%d rels=%d", st.TotalNodes, st.TotalRelationships)
	}
}

func TestSystemStatusAggregates(t *testing.T) {
	kbRepo := newFakeKBRepo()
	kbRepo.kbs["alpha"] = &types.KnowledgeBase{KBID: "alpha", SchemaVersion: 1}
	kbRepo.kbs["beta"] = &types.KnowledgeBase{KBID: "beta", SchemaVersion: 3}
	runStore := newFakeRunStore()
	runStore.add(completedRun("alpha", "s1", time.Hour))
	runStore.add(failedRun("beta", "s1", time.Hour, "boom"))
	runStore.add(&types.Run{
		RunID:     "live",
		KBID:      "beta",
		SourceID:  "s2",
		Status:    types.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	})

	svc := NewStatusService(kbRepo, runStore, testLogger(t))
	sys, err := svc.SystemStatus(context.Background())
	if err != nil {
		t.Fatalf("system status: %v", err)
	}
	if !sys.StoreReachable {
		t.Fatalf("expected store reachable")
	}
	if sys.ActiveRuns != 1 {
		t.Fatalf("active_runs: want=1 got=%d", sys.ActiveRuns)
	}
	if sys.TotalErrors != 1 {
		t.Fatalf("total_errors: want=1 got=%d", sys.TotalErrors)
	}
	if len(sys.KnowledgeBases) != 2 {
		t.Fatalf("knowledge_bases: want=2 got=%d", len(sys.KnowledgeBases))
	}
	if sys.HealthScore >= ScoreBase {
		t.Fatalf("score should be penalized below %d, got %d", ScoreBase, sys.HealthScore)
	}
}

func TestSystemStatusStoreUnreachable(t *testing.T) {
	kbRepo := newFakeKBRepo()
	kbRepo.pingErr = context.DeadlineExceeded

	svc := NewStatusService(kbRepo, newFakeRunStore(), testLogger(t))
	sys, err := svc.SystemStatus(context.Background())
	if err != nil {
		t.Fatalf("system status: %v", err)
	}
	if sys.StoreReachable {
		t.Fatalf("expected store unreachable")
	}
	if sys.HealthScore > ScoreBase-ScoreStorePenalty {
		t.Fatalf("score: want<=%d got=%d", ScoreBase-ScoreStorePenalty, sys.HealthScore)
	}
}

func TestHealthScorePenalties(t *testing.T) {
	cases := []struct {
		name        string
		reachable   bool
		totalErrors int
		activeRuns  int
		want        int
	}{
		{"clean system", true, 0, 0, ScoreBase},
		{"per-error penalty", true, 2, 0, ScoreBase - 2*ScorePerErrorPenalty},
		{"error penalty capped", true, 100, 0, ScoreBase - ScoreErrorPenaltyCap},
		{"busy runs", true, 0, ScoreBusyRunThreshold + 1, ScoreBase - ScoreBusyRunsPenalty},
		{"store down", false, 0, 0, ScoreBase - ScoreStorePenalty},
		{"all penalties stack", false, 100, 10, ScoreBase - ScoreStorePenalty - ScoreErrorPenaltyCap - ScoreBusyRunsPenalty},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := healthScore(tc.reachable, tc.totalErrors, tc.activeRuns)
			if got != tc.want {
				t.Fatalf("score: want=%d got=%d", tc.want, got)
			}
		})
	}
}
