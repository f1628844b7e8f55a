package services

import (
	"context"
	"fmt"
	"time"

	"github.com/ryandmonk/knowledge-graph-brain/internal/graph"
	"github.com/ryandmonk/knowledge-graph-brain/internal/mapping"
	"github.com/ryandmonk/knowledge-graph-brain/internal/observability"
	"github.com/ryandmonk/knowledge-graph-brain/internal/platform/apierr"
	"github.com/ryandmonk/knowledge-graph-brain/internal/platform/logger"
	"github.com/ryandmonk/knowledge-graph-brain/internal/repos"
	"github.com/ryandmonk/knowledge-graph-brain/internal/runs"
	"github.com/ryandmonk/knowledge-graph-brain/internal/types"
)

type IngestService interface {
	// Ingest maps and persists one resolved document batch under a fresh run.
	// Fragment-level failures never abort the batch; the result carries
	// accurate counts plus the recorded errors.
	Ingest(ctx context.Context, kbID, sourceID string, docs []map[string]any) (*types.IngestResult, error)
}

type ingestService struct {
	kbRepo   repos.KnowledgeBaseRepo
	merger   *graph.Merger
	runStore runs.Store
	log      *logger.Logger
}

func NewIngestService(kbRepo repos.KnowledgeBaseRepo, merger *graph.Merger, runStore runs.Store, baseLog *logger.Logger) IngestService {
	return &ingestService{
		kbRepo:   kbRepo,
		merger:   merger,
		runStore: runStore,
		log:      baseLog.With("service", "IngestService"),
	}
}

func (s *ingestService) Ingest(ctx context.Context, kbID, sourceID string, docs []map[string]any) (*types.IngestResult, error) {
	doc, err := s.kbRepo.GetSchema(ctx, kbID)
	if err != nil {
		return nil, fmt.Errorf("load schema for %s: %w", kbID, err)
	}
	if doc == nil {
		return nil, apierr.NotFound("KB_NOT_FOUND", fmt.Errorf("knowledge base %s is not registered", kbID))
	}
	sm := doc.Mappings.SourceByID(sourceID)
	if sm == nil {
		return nil, apierr.BadRequest("UNKNOWN_SOURCE", fmt.Errorf("source %s is not mapped in %s", sourceID, kbID))
	}

	run, err := s.runStore.Start(ctx, kbID, sourceID)
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	log := s.log.With("kb_id", kbID, "source_id", sourceID, "run_id", run.RunID)
	log.Info("ingestion started", "documents", len(docs))

	result := &types.IngestResult{RunID: run.RunID}
	var processedFragments int
	for _, d := range docs {
		extracted := mapping.Extract(d, *sm, &doc.Schema)
		for _, exErr := range extracted.Errors {
			result.Errors = append(result.Errors, s.recordError(ctx, run.RunID, types.RunErrorStageExtraction, exErr.Error()))
		}

		merged, mergeErrs := s.merger.MergeNodesAndRels(ctx, kbID, sourceID, run.RunID, extracted.Nodes, extracted.Relationships)
		for _, me := range mergeErrs {
			if err := s.runStore.AddError(ctx, run.RunID, me); err != nil {
				log.Warn("record run error failed", "error", err)
			}
			result.Errors = append(result.Errors, me)
		}
		observability.Current().AddRunErrors(string(types.RunErrorStagePersistence), len(mergeErrs))

		if err := s.runStore.UpdateStats(ctx, run.RunID, merged.ProcessedNodes, merged.CreatedRels); err != nil {
			log.Warn("update run stats failed", "error", err)
		}
		result.ProcessedDocuments++
		result.CreatedNodes += merged.CreatedNodes
		result.CreatedRelationships += merged.CreatedRels
		processedFragments += merged.ProcessedNodes + merged.ProcessedRels

		observability.Current().AddGraphWrites("node", "created", merged.CreatedNodes)
		observability.Current().AddGraphWrites("node", "updated", merged.ProcessedNodes-merged.CreatedNodes)
		observability.Current().AddGraphWrites("relationship", "created", merged.CreatedRels)
		observability.Current().AddGraphWrites("relationship", "updated", merged.ProcessedRels-merged.CreatedRels)
	}

	// Partial success is still a completed run; failure means nothing at all
	// could be processed.
	status := types.RunStatusCompleted
	if len(docs) > 0 && processedFragments == 0 && len(result.Errors) > 0 {
		status = types.RunStatusFailed
	}
	if err := s.runStore.Complete(ctx, run.RunID, status); err != nil {
		log.Warn("complete run failed", "error", err)
	}

	observability.Current().ObserveIngestRun(string(status), result.ProcessedDocuments)
	log.Info("ingestion finished",
		"status", string(status),
		"processed_documents", result.ProcessedDocuments,
		"created_nodes", result.CreatedNodes,
		"created_relationships", result.CreatedRelationships,
		"errors", len(result.Errors),
	)
	return result, nil
}

func (s *ingestService) recordError(ctx context.Context, runID string, stage types.RunErrorStage, msg string) types.RunError {
	runErr := types.RunError{Stage: stage, Message: msg, At: time.Now().UTC()}
	if err := s.runStore.AddError(ctx, runID, runErr); err != nil {
		s.log.Warn("record run error failed", "run_id", runID, "error", err)
	}
	observability.Current().AddRunErrors(string(stage), 1)
	return runErr
}
