package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/ryandmonk/knowledge-graph-brain/internal/platform/logger"
	"github.com/ryandmonk/knowledge-graph-brain/internal/platform/neo4jdb"
)

// Neo4jStore implements Store over the bolt driver. Sessions are opened per
// call; the driver pools connections underneath.
type Neo4jStore struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewNeo4jStore(client *neo4jdb.Client, baseLog *logger.Logger) *Neo4jStore {
	return &Neo4jStore{
		client: client,
		log:    baseLog.With("store", "Neo4j"),
	}
}

func (s *Neo4jStore) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.client.Database,
	})
}

func (s *Neo4jStore) ExecuteRead(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return collectRows(ctx, tx, query, params)
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j read: %w", err)
	}
	return out.([]map[string]any), nil
}

func (s *Neo4jStore) ExecuteWrite(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return collectRows(ctx, tx, query, params)
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j write: %w", err)
	}
	return out.([]map[string]any), nil
}

func (s *Neo4jStore) ExecuteWriteBatch(ctx context.Context, queries []Query) error {
	if len(queries) == 0 {
		return nil
	}
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, q := range queries {
			res, err := tx.Run(ctx, q.Text, q.Params)
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("neo4j write batch: %w", err)
	}
	return nil
}

// Schema commands cannot run inside explicit transactions, so constraint and
// index creation goes through auto-commit session runs.
func (s *Neo4jStore) runSchemaCommand(ctx context.Context, text string) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	res, err := session.Run(ctx, text, nil)
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}

func (s *Neo4jStore) CreateConstraint(ctx context.Context, spec ConstraintSpec) error {
	var text string
	switch spec.Kind {
	case ConstraintUnique:
		text = fmt.Sprintf(
			"CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE (%s) IS UNIQUE",
			quoteIdent(spec.Name), quoteIdent(spec.Label), propList(spec.Fields),
		)
	case ConstraintNotNull:
		if len(spec.Fields) != 1 {
			return fmt.Errorf("not-null constraint %q requires exactly one field", spec.Name)
		}
		text = fmt.Sprintf(
			"CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS NOT NULL",
			quoteIdent(spec.Name), quoteIdent(spec.Label), quoteIdent(spec.Fields[0]),
		)
	default:
		return fmt.Errorf("unknown constraint kind %q", spec.Kind)
	}
	if err := s.runSchemaCommand(ctx, text); err != nil {
		return fmt.Errorf("create constraint %s: %w", spec.Name, err)
	}
	return nil
}

func (s *Neo4jStore) CreateIndex(ctx context.Context, spec IndexSpec) error {
	text := fmt.Sprintf(
		"CREATE INDEX %s IF NOT EXISTS FOR (n:%s) ON (%s)",
		quoteIdent(spec.Name), quoteIdent(spec.Label), propList(spec.Fields),
	)
	if err := s.runSchemaCommand(ctx, text); err != nil {
		return fmt.Errorf("create index %s: %w", spec.Name, err)
	}
	return nil
}

func (s *Neo4jStore) CreateVectorIndex(ctx context.Context, spec VectorIndexSpec) error {
	text := fmt.Sprintf(
		"CREATE VECTOR INDEX %s IF NOT EXISTS FOR (n:%s) ON (n.%s) "+
			"OPTIONS {indexConfig: {`vector.dimensions`: %d, `vector.similarity_function`: 'cosine'}}",
		quoteIdent(spec.Name), quoteIdent(spec.Label), quoteIdent(spec.Field), spec.Dimensions,
	)
	if err := s.runSchemaCommand(ctx, text); err != nil {
		return fmt.Errorf("create vector index %s: %w", spec.Name, err)
	}
	return nil
}

func (s *Neo4jStore) Ping(ctx context.Context) error {
	return s.client.Driver.VerifyConnectivity(ctx)
}

func collectRows(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) ([]map[string]any, error) {
	res, err := tx.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		rows = append(rows, rec.AsMap())
	}
	return rows, nil
}

// quoteIdent backtick-quotes an identifier for interpolation into Cypher.
// Identifiers reach this point only after structural validation, but the
// quoting still rejects backticks outright.
func quoteIdent(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "") + "`"
}

func propList(fields []string) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, "n."+quoteIdent(f))
	}
	return strings.Join(parts, ", ")
}
