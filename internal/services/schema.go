package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/ryandmonk/knowledge-graph-brain/internal/graph"
	"github.com/ryandmonk/knowledge-graph-brain/internal/observability"
	"github.com/ryandmonk/knowledge-graph-brain/internal/platform/apierr"
	"github.com/ryandmonk/knowledge-graph-brain/internal/platform/logger"
	"github.com/ryandmonk/knowledge-graph-brain/internal/repos"
	"github.com/ryandmonk/knowledge-graph-brain/internal/schema"
	"github.com/ryandmonk/knowledge-graph-brain/internal/types"
)

type SchemaService interface {
	// Register parses, validates, and applies a schema document. Validation
	// failures reject the whole document before any store mutation.
	Register(ctx context.Context, raw []byte) (*types.RegisterResult, error)
	RegisterDocument(ctx context.Context, doc *types.SchemaDocument) (*types.RegisterResult, error)
}

type schemaService struct {
	store  graph.Store
	kbRepo repos.KnowledgeBaseRepo
	log    *logger.Logger
}

func NewSchemaService(store graph.Store, kbRepo repos.KnowledgeBaseRepo, baseLog *logger.Logger) SchemaService {
	return &schemaService{
		store:  store,
		kbRepo: kbRepo,
		log:    baseLog.With("service", "SchemaService"),
	}
}

func (s *schemaService) Register(ctx context.Context, raw []byte) (*types.RegisterResult, error) {
	doc, err := schema.Parse(raw)
	if err != nil {
		return nil, apierr.BadRequest("INVALID_SCHEMA", err)
	}
	return s.RegisterDocument(ctx, doc)
}

func (s *schemaService) RegisterDocument(ctx context.Context, doc *types.SchemaDocument) (*types.RegisterResult, error) {
	if err := schema.Validate(doc); err != nil {
		var ve *schema.ValidationError
		if errors.As(err, &ve) {
			return nil, apierr.BadRequest("INVALID_SCHEMA", err)
		}
		return nil, err
	}

	kb, err := s.kbRepo.Upsert(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("register schema for %s: %w", doc.KBID, err)
	}

	if err := graph.ProvisionKB(ctx, s.store, s.log, doc.KBID, doc); err != nil {
		return nil, fmt.Errorf("provision %s: %w", doc.KBID, err)
	}

	observability.Current().IncSchemasRegistered()
	s.log.Info("schema registered",
		"kb_id", doc.KBID,
		"schema_version", kb.SchemaVersion,
		"node_types", len(doc.Schema.Nodes),
		"relationship_types", len(doc.Schema.Relationships),
	)

	return &types.RegisterResult{
		KBID:              doc.KBID,
		SchemaVersion:     kb.SchemaVersion,
		NodeTypes:         len(doc.Schema.Nodes),
		RelationshipTypes: len(doc.Schema.Relationships),
		Sources:           len(doc.Mappings.Sources),
	}, nil
}
