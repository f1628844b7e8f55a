package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/ryandmonk/knowledge-graph-brain/internal/platform/logger"
	"github.com/ryandmonk/knowledge-graph-brain/internal/types"
)

// Vector index dimensionality by embedding provider. The provider id is
// substring-matched so versioned ids ("openai-text-embedding-3-small") size
// correctly.
const (
	VectorDimsDefault = 1024
	VectorDimsOpenAI  = 1536
	VectorDimsNomic   = 768
)

func VectorDimensions(providerID string) int {
	p := strings.ToLower(providerID)
	switch {
	case strings.Contains(p, "openai"):
		return VectorDimsOpenAI
	case strings.Contains(p, "nomic"):
		return VectorDimsNomic
	default:
		return VectorDimsDefault
	}
}

var provenanceFields = []string{"kb_id", "source_id", "run_id", "updated_at"}
var indexFields = []string{"kb_id", "source_id", "updated_at", "created_at"}

// KBProvisioning is the full data-driven spec set for one node type of one
// KB. Names are derived deterministically from kb_id, label and field, so
// re-registering a schema is a no-op at the store level.
type KBProvisioning struct {
	Unique      ConstraintSpec
	NotNull     []ConstraintSpec
	Indexes     []IndexSpec
	VectorIndex *VectorIndexSpec
}

func ProvisioningFor(kbID string, nt types.NodeType, embedding types.EmbeddingConfig) KBProvisioning {
	p := KBProvisioning{
		Unique: ConstraintSpec{
			Name:   provisionName(kbID, nt.Label, nt.KeyField, "unique"),
			Label:  nt.Label,
			Fields: []string{"kb_id", nt.KeyField},
			Kind:   ConstraintUnique,
		},
	}
	for _, f := range provenanceFields {
		p.NotNull = append(p.NotNull, ConstraintSpec{
			Name:   provisionName(kbID, nt.Label, f, "notnull"),
			Label:  nt.Label,
			Fields: []string{f},
			Kind:   ConstraintNotNull,
		})
	}
	for _, f := range indexFields {
		p.Indexes = append(p.Indexes, IndexSpec{
			Name:   provisionName(kbID, nt.Label, f, "idx"),
			Label:  nt.Label,
			Fields: []string{f},
		})
	}
	if embedding.Provider != "" {
		p.VectorIndex = &VectorIndexSpec{
			Name:       provisionName(kbID, nt.Label, "embedding", "vec"),
			Label:      nt.Label,
			Field:      "embedding",
			Dimensions: VectorDimensions(embedding.Provider),
		}
	}
	return p
}

// ProvisionKB provisions constraints and indexes for every declared node
// type. The uniqueness constraint is the only step whose failure aborts, as
// later merges depend on it; everything else is best-effort and logged.
func ProvisionKB(ctx context.Context, store Store, log *logger.Logger, kbID string, doc *types.SchemaDocument) error {
	for _, nt := range doc.Schema.Nodes {
		p := ProvisioningFor(kbID, nt, doc.Embedding)

		if err := store.CreateConstraint(ctx, p.Unique); err != nil {
			return fmt.Errorf("provision %s uniqueness for kb: %w", nt.Label, err)
		}
		for _, c := range p.NotNull {
			if err := store.CreateConstraint(ctx, c); err != nil {
				log.Warn("provenance constraint creation failed (continuing)", "constraint", c.Name, "error", err)
			}
		}
		for _, idx := range p.Indexes {
			if err := store.CreateIndex(ctx, idx); err != nil {
				log.Warn("index creation failed (continuing)", "index", idx.Name, "error", err)
			}
		}
		if p.VectorIndex != nil {
			if err := store.CreateVectorIndex(ctx, *p.VectorIndex); err != nil {
				log.Warn("vector index creation failed (continuing)", "index", p.VectorIndex.Name, "error", err)
			}
		}
	}
	return nil
}

func provisionName(kbID, label, field, kind string) string {
	return strings.ToLower(fmt.Sprintf("kb_%s_%s_%s_%s", sanitizeName(kbID), label, field, kind))
}

// sanitizeName flattens a kb_id to the identifier charset constraint and
// index names allow.
func sanitizeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
