package graph

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ryandmonk/knowledge-graph-brain/internal/platform/logger"
)

// Migration is one versioned unit of store setup. Schema commands run first
// through the idempotent create-if-absent path; data writes run in a single
// transaction together with the marker, so a marker is never written for a
// partially applied migration.
type Migration struct {
	Version     int
	Name        string
	Constraints []ConstraintSpec
	Indexes     []IndexSpec
	Writes      []Query
}

func (m Migration) ID() string {
	return fmt.Sprintf("%03d_%s", m.Version, m.Name)
}

type MigrationError struct {
	Version int
	Name    string
	Err     error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration %03d_%s: %v", e.Version, e.Name, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// Available returns the shipped migration set, version ascending.
func Available() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "core_constraints",
			Constraints: []ConstraintSpec{
				{Name: "knowledgebase_kb_id_unique", Label: "KnowledgeBase", Fields: []string{"kb_id"}, Kind: ConstraintUnique},
				{Name: "migration_version_unique", Label: "Migration", Fields: []string{"version"}, Kind: ConstraintUnique},
			},
		},
		{
			Version: 2,
			Name:    "auth_schema",
			Constraints: []ConstraintSpec{
				{Name: "apikey_key_id_unique", Label: "ApiKey", Fields: []string{"key_id"}, Kind: ConstraintUnique},
				{Name: "apikey_key_hash_unique", Label: "ApiKey", Fields: []string{"key_hash"}, Kind: ConstraintUnique},
				{Name: "role_name_unique", Label: "Role", Fields: []string{"name"}, Kind: ConstraintUnique},
			},
			Indexes: []IndexSpec{
				{Name: "permission_resource_action_idx", Label: "Permission", Fields: []string{"resource", "action"}},
				{Name: "authevent_timestamp_idx", Label: "AuthEvent", Fields: []string{"timestamp"}},
			},
		},
		{
			Version: 3,
			Name:    "seed_rbac",
			Writes: []Query{
				{
					Text: `UNWIND $roles AS role
MERGE (r:Role {name: role.name})
SET r.description = role.description`,
					Params: map[string]any{"roles": seedRoles},
				},
				{
					Text: `UNWIND $perms AS p
MERGE (pm:Permission {resource: p.resource, action: p.action})`,
					Params: map[string]any{"perms": seedPermissions},
				},
				{
					Text: `UNWIND $grants AS g
MATCH (r:Role {name: g.role})
MATCH (p:Permission {resource: g.resource, action: g.action})
MERGE (r)-[:HAS_PERMISSION]->(p)`,
					Params: map[string]any{"grants": seedGrants},
				},
			},
		},
	}
}

var seedRoles = []map[string]any{
	{"name": "admin", "description": "Full access to schemas, ingestion, status and key management"},
	{"name": "ingestor", "description": "Trigger ingestion and read status"},
	{"name": "viewer", "description": "Read-only status and graph access"},
}

var seedPermissions = []map[string]any{
	{"resource": "schema", "action": "register"},
	{"resource": "ingest", "action": "trigger"},
	{"resource": "status", "action": "read"},
	{"resource": "kb", "action": "read"},
	{"resource": "apikey", "action": "manage"},
}

var seedGrants = []map[string]any{
	{"role": "admin", "resource": "schema", "action": "register"},
	{"role": "admin", "resource": "ingest", "action": "trigger"},
	{"role": "admin", "resource": "status", "action": "read"},
	{"role": "admin", "resource": "kb", "action": "read"},
	{"role": "admin", "resource": "apikey", "action": "manage"},
	{"role": "ingestor", "resource": "ingest", "action": "trigger"},
	{"role": "ingestor", "resource": "status", "action": "read"},
	{"role": "viewer", "resource": "status", "action": "read"},
	{"role": "viewer", "resource": "kb", "action": "read"},
}

type Migrator struct {
	store      Store
	log        *logger.Logger
	migrations []Migration
}

func NewMigrator(store Store, baseLog *logger.Logger) *Migrator {
	return &Migrator{
		store:      store,
		log:        baseLog.With("component", "Migrator"),
		migrations: Available(),
	}
}

// WithMigrations swaps the migration set; used by tests.
func (m *Migrator) WithMigrations(migrations []Migration) *Migrator {
	m.migrations = migrations
	return m
}

func (m *Migrator) AppliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := m.store.ExecuteRead(ctx, `MATCH (m:Migration) RETURN m.version AS version`, nil)
	if err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}
	applied := make(map[int]bool, len(rows))
	for _, row := range rows {
		switch v := row["version"].(type) {
		case int64:
			applied[int(v)] = true
		case int:
			applied[v] = true
		}
	}
	return applied, nil
}

// ApplyPending applies every available migration not yet marked, version
// ascending. A failure aborts that migration and stops: the store stays at
// the last fully applied version.
func (m *Migrator) ApplyPending(ctx context.Context) ([]string, error) {
	applied, err := m.AppliedVersions(ctx)
	if err != nil {
		return nil, err
	}

	pending := make([]Migration, 0, len(m.migrations))
	for _, mig := range m.migrations {
		if !applied[mig.Version] {
			pending = append(pending, mig)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Version < pending[j].Version })

	var done []string
	for _, mig := range pending {
		if err := m.apply(ctx, mig); err != nil {
			return done, &MigrationError{Version: mig.Version, Name: mig.Name, Err: err}
		}
		m.log.Info("migration applied", "migration", mig.ID())
		done = append(done, mig.ID())
	}
	return done, nil
}

func (m *Migrator) apply(ctx context.Context, mig Migration) error {
	for _, c := range mig.Constraints {
		if err := m.store.CreateConstraint(ctx, c); err != nil {
			return err
		}
	}
	for _, idx := range mig.Indexes {
		if err := m.store.CreateIndex(ctx, idx); err != nil {
			return err
		}
	}

	queries := make([]Query, 0, len(mig.Writes)+1)
	queries = append(queries, mig.Writes...)
	queries = append(queries, Query{
		Text: `MERGE (m:Migration {version: $version})
SET m.name = $name, m.applied_at = $applied_at`,
		Params: map[string]any{
			"version":    mig.Version,
			"name":       mig.Name,
			"applied_at": time.Now().UTC().Format(time.RFC3339Nano),
		},
	})
	return m.store.ExecuteWriteBatch(ctx, queries)
}
