package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ryandmonk/knowledge-graph-brain/internal/observability"
	"github.com/ryandmonk/knowledge-graph-brain/internal/platform/logger"
	"github.com/ryandmonk/knowledge-graph-brain/internal/repos"
	"github.com/ryandmonk/knowledge-graph-brain/internal/runs"
	"github.com/ryandmonk/knowledge-graph-brain/internal/types"
)

// Health policy. The score is an operational heuristic; the weights are
// deliberately overridable constants rather than inlined numbers.
const (
	StaleAfter   = 24 * time.Hour
	WarningAfter = 6 * time.Hour

	ScoreBase             = 100
	ScoreStorePenalty     = 50
	ScorePerErrorPenalty  = 5
	ScoreErrorPenaltyCap  = 30
	ScoreBusyRunsPenalty  = 10
	ScoreBusyRunThreshold = 5
)

type StatusService interface {
	KnowledgeBaseStatus(ctx context.Context, kbID string) (*types.KnowledgeBaseStatus, error)
	SystemStatus(ctx context.Context) (*types.SystemStatus, error)
}

type statusService struct {
	kbRepo   repos.KnowledgeBaseRepo
	runStore runs.Store
	log      *logger.Logger
}

func NewStatusService(kbRepo repos.KnowledgeBaseRepo, runStore runs.Store, baseLog *logger.Logger) StatusService {
	return &statusService{
		kbRepo:   kbRepo,
		runStore: runStore,
		log:      baseLog.With("service", "StatusService"),
	}
}

func (s *statusService) KnowledgeBaseStatus(ctx context.Context, kbID string) (*types.KnowledgeBaseStatus, error) {
	kb, err := s.kbRepo.Get(ctx, kbID)
	if err != nil {
		return nil, err
	}
	if kb == nil {
		return nil, nil
	}

	counts, err := s.kbRepo.Counts(ctx, kbID)
	if err != nil {
		return nil, err
	}
	allRuns, err := s.runStore.List(ctx)
	if err != nil {
		return nil, err
	}

	status := &types.KnowledgeBaseStatus{
		KBID:               kbID,
		SchemaVersion:      kb.SchemaVersion,
		TotalNodes:         counts.TotalNodes,
		TotalRelationships: counts.TotalRelationships,
		NodesByLabel:       counts.NodesByLabel,
	}

	// Latest run per source, plus the most recent success and failure
	// across the whole KB.
	latestBySource := map[string]*types.Run{}
	var lastSuccess, lastFailure *types.Run
	for _, run := range allRuns {
		if run.KBID != kbID {
			continue
		}
		if prev, ok := latestBySource[run.SourceID]; !ok || run.StartedAt.After(prev.StartedAt) {
			latestBySource[run.SourceID] = run
		}
		switch run.Status {
		case types.RunStatusCompleted:
			if lastSuccess == nil || run.StartedAt.After(lastSuccess.StartedAt) {
				lastSuccess = run
			}
		case types.RunStatusFailed:
			if lastFailure == nil || run.StartedAt.After(lastFailure.StartedAt) {
				lastFailure = run
			}
		}
	}

	sourceIDs := make([]string, 0, len(latestBySource))
	for id := range latestBySource {
		sourceIDs = append(sourceIDs, id)
	}
	sort.Strings(sourceIDs)
	for _, id := range sourceIDs {
		status.Sources = append(status.Sources, types.SourceStatus{SourceID: id, LastRun: latestBySource[id]})
	}

	if lastSuccess != nil && lastSuccess.CompletedAt != nil {
		status.LastSuccessfulSync = lastSuccess.CompletedAt
		hours := time.Since(*lastSuccess.CompletedAt).Hours()
		status.DataFreshnessHours = &hours
	}
	if lastFailure != nil && len(lastFailure.Errors) > 0 {
		status.LastError = lastFailure.Errors[len(lastFailure.Errors)-1].Message
	}

	status.HealthStatus = deriveHealth(lastSuccess, lastFailure, status.DataFreshnessHours)
	return status, nil
}

func deriveHealth(lastSuccess, lastFailure *types.Run, freshnessHours *float64) types.HealthStatus {
	if lastFailure != nil && (lastSuccess == nil || lastFailure.StartedAt.After(lastSuccess.StartedAt)) {
		return types.HealthError
	}
	if freshnessHours == nil {
		return types.HealthHealthy
	}
	switch {
	case *freshnessHours > StaleAfter.Hours():
		return types.HealthStale
	case *freshnessHours > WarningAfter.Hours():
		return types.HealthWarning
	default:
		return types.HealthHealthy
	}
}

func (s *statusService) SystemStatus(ctx context.Context) (*types.SystemStatus, error) {
	kbs, err := s.kbRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	allRuns, err := s.runStore.List(ctx)
	if err != nil {
		return nil, err
	}

	sys := &types.SystemStatus{GeneratedAt: time.Now().UTC()}
	sys.StoreReachable = s.kbRepo.Ping(ctx) == nil

	for _, run := range allRuns {
		sys.TotalErrors += len(run.Errors)
		if run.Status == types.RunStatusRunning {
			sys.ActiveRuns++
		}
	}

	statuses := make([]types.KnowledgeBaseStatus, len(kbs))
	var mu sync.Mutex
	keep := make([]bool, len(kbs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, kb := range kbs {
		g.Go(func() error {
			st, err := s.KnowledgeBaseStatus(gctx, kb.KBID)
			if err != nil {
				// A single unreadable KB should not hide the rest.
				s.log.Warn("kb status failed", "kb_id", kb.KBID, "error", err)
				return nil
			}
			if st == nil {
				return nil
			}
			mu.Lock()
			statuses[i] = *st
			keep[i] = true
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, ok := range keep {
		if ok {
			sys.KnowledgeBases = append(sys.KnowledgeBases, statuses[i])
		}
	}

	sys.HealthScore = healthScore(sys.StoreReachable, sys.TotalErrors, sys.ActiveRuns)

	observability.Current().SetStoreUp(sys.StoreReachable)
	observability.Current().SetActiveRuns(sys.ActiveRuns)
	return sys, nil
}

func healthScore(storeReachable bool, totalErrors, activeRuns int) int {
	score := ScoreBase
	if !storeReachable {
		score -= ScoreStorePenalty
	}
	errorPenalty := totalErrors * ScorePerErrorPenalty
	if errorPenalty > ScoreErrorPenaltyCap {
		errorPenalty = ScoreErrorPenaltyCap
	}
	score -= errorPenalty
	if activeRuns > ScoreBusyRunThreshold {
		score -= ScoreBusyRunsPenalty
	}
	if score < 0 {
		score = 0
	}
	return score
}
