package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ryandmonk/knowledge-graph-brain/internal/graph"
	"github.com/ryandmonk/knowledge-graph-brain/internal/platform/logger"
	"github.com/ryandmonk/knowledge-graph-brain/internal/types"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

// fakeGraphStore backs the merger and provisioning with an in-memory map
// keyed the way the real store keys nodes: (label, kb_id, key).
type fakeGraphStore struct {
	mu      sync.Mutex
	nodes   map[string]bool
	rels    map[string]bool
	schema  int // constraints + indexes created
	pingErr error
}

func newFakeGraphStore() *fakeGraphStore {
	return &fakeGraphStore{nodes: map[string]bool{}, rels: map[string]bool{}}
}

func (f *fakeGraphStore) ExecuteRead(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	return nil, nil
}

func (f *fakeGraphStore) ExecuteWrite(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case strings.HasPrefix(query, "MERGE (n:"):
		label := between(query, "MERGE (n:", " {")
		k := fmt.Sprintf("%s|%v|%v", label, params["kb_id"], params["key"])
		created := !f.nodes[k]
		f.nodes[k] = true
		return []map[string]any{{"created": created}}, nil
	case strings.HasPrefix(query, "MATCH (a:"):
		fromLabel := between(query, "MATCH (a:", " {")
		toLabel := between(query, "MATCH (b:", " {")
		if !f.nodes[fmt.Sprintf("%s|%v|%v", fromLabel, params["kb_id"], params["from_key"])] {
			return nil, nil
		}
		if !f.nodes[fmt.Sprintf("%s|%v|%v", toLabel, params["kb_id"], params["to_key"])] {
			return nil, nil
		}
		k := fmt.Sprintf("%v|%v|%v", params["kb_id"], params["from_key"], params["to_key"])
		created := !f.rels[k]
		f.rels[k] = true
		return []map[string]any{{"created": created}}, nil
	}
	return nil, nil
}

func (f *fakeGraphStore) ExecuteWriteBatch(ctx context.Context, queries []graph.Query) error {
	return nil
}

func (f *fakeGraphStore) CreateConstraint(ctx context.Context, spec graph.ConstraintSpec) error {
	f.mu.Lock()
	f.schema++
	f.mu.Unlock()
	return nil
}

func (f *fakeGraphStore) CreateIndex(ctx context.Context, spec graph.IndexSpec) error {
	f.mu.Lock()
	f.schema++
	f.mu.Unlock()
	return nil
}

func (f *fakeGraphStore) CreateVectorIndex(ctx context.Context, spec graph.VectorIndexSpec) error {
	f.mu.Lock()
	f.schema++
	f.mu.Unlock()
	return nil
}

func (f *fakeGraphStore) Ping(ctx context.Context) error { return f.pingErr }

func between(s, after, before string) string {
	start := strings.Index(s, after)
	if start < 0 {
		return ""
	}
	rest := s[start+len(after):]
	end := strings.Index(rest, before)
	if end < 0 {
		return rest
	}
	return rest[:end]
}

// fakeKBRepo keeps registered schemas and counts in memory.
type fakeKBRepo struct {
	mu      sync.Mutex
	schemas map[string]*types.SchemaDocument
	kbs     map[string]*types.KnowledgeBase
	counts  map[string]*types.GraphCounts
	pingErr error
}

func newFakeKBRepo() *fakeKBRepo {
	return &fakeKBRepo{
		schemas: map[string]*types.SchemaDocument{},
		kbs:     map[string]*types.KnowledgeBase{},
		counts:  map[string]*types.GraphCounts{},
	}
}

func (f *fakeKBRepo) Upsert(ctx context.Context, doc *types.SchemaDocument) (*types.KnowledgeBase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kb, ok := f.kbs[doc.KBID]
	if !ok {
		kb = &types.KnowledgeBase{KBID: doc.KBID, CreatedAt: time.Now().UTC()}
		f.kbs[doc.KBID] = kb
	}
	kb.SchemaVersion++
	kb.UpdatedAt = time.Now().UTC()
	f.schemas[doc.KBID] = doc
	out := *kb
	return &out, nil
}

func (f *fakeKBRepo) Get(ctx context.Context, kbID string) (*types.KnowledgeBase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kb, ok := f.kbs[kbID]
	if !ok {
		return nil, nil
	}
	out := *kb
	return &out, nil
}

func (f *fakeKBRepo) GetSchema(ctx context.Context, kbID string) (*types.SchemaDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.schemas[kbID], nil
}

func (f *fakeKBRepo) List(ctx context.Context) ([]types.KnowledgeBase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.KnowledgeBase, 0, len(f.kbs))
	for _, kb := range f.kbs {
		out = append(out, *kb)
	}
	return out, nil
}

func (f *fakeKBRepo) Counts(ctx context.Context, kbID string) (*types.GraphCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.counts[kbID]; ok {
		out := *c
		return &out, nil
	}
	return &types.GraphCounts{NodesByLabel: map[string]int64{}}, nil
}

func (f *fakeKBRepo) Ping(ctx context.Context) error { return f.pingErr }

// fakeRunStore is a run registry whose clock the tests control.
type fakeRunStore struct {
	mu   sync.Mutex
	runs map[string]*types.Run
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{runs: map[string]*types.Run{}}
}

func (f *fakeRunStore) add(run *types.Run) {
	f.mu.Lock()
	f.runs[run.RunID] = run
	f.mu.Unlock()
}

func (f *fakeRunStore) Start(ctx context.Context, kbID, sourceID string) (*types.Run, error) {
	run := &types.Run{
		RunID:     uuid.NewString(),
		KBID:      kbID,
		SourceID:  sourceID,
		Status:    types.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	f.add(run)
	out := *run
	return &out, nil
}

func (f *fakeRunStore) UpdateStats(ctx context.Context, runID string, nodesProcessed, relationshipsCreated int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if run, ok := f.runs[runID]; ok && !run.Terminal() {
		run.NodesProcessed += nodesProcessed
		run.RelationshipsCreated += relationshipsCreated
	}
	return nil
}

func (f *fakeRunStore) AddError(ctx context.Context, runID string, runErr types.RunError) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if run, ok := f.runs[runID]; ok && !run.Terminal() {
		run.Errors = append(run.Errors, runErr)
	}
	return nil
}

func (f *fakeRunStore) Complete(ctx context.Context, runID string, status types.RunStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok || run.Terminal() {
		return nil
	}
	now := time.Now().UTC()
	run.Status = status
	run.CompletedAt = &now
	run.DurationMS = now.Sub(run.StartedAt).Milliseconds()
	return nil
}

func (f *fakeRunStore) Get(ctx context.Context, runID string) (*types.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if run, ok := f.runs[runID]; ok {
		out := *run
		return &out, nil
	}
	return nil, nil
}

func (f *fakeRunStore) List(ctx context.Context) ([]*types.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*types.Run, 0, len(f.runs))
	for _, run := range f.runs {
		cp := *run
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeRunStore) ReapStale(ctx context.Context, olderThan time.Duration) (int, error) {
	return 0, nil
}

// fakeKeyRepo is an in-memory ApiKey store with the seeded RBAC grants.
type fakeKeyRepo struct {
	mu         sync.Mutex
	byHash     map[string]*types.APIKey
	grants     map[string][]types.Permission
	events     []types.AuthEvent
	appendErr  error
	lastTouch  map[string]time.Time
	resolveErr error
}

func newFakeKeyRepo() *fakeKeyRepo {
	return &fakeKeyRepo{
		byHash: map[string]*types.APIKey{},
		grants: map[string][]types.Permission{
			"admin": {
				{Resource: "schema", Action: "register"},
				{Resource: "ingest", Action: "trigger"},
				{Resource: "status", Action: "read"},
				{Resource: "apikey", Action: "manage"},
			},
			"viewer": {
				{Resource: "status", Action: "read"},
			},
		},
		lastTouch: map[string]time.Time{},
	}
}

func (f *fakeKeyRepo) Create(ctx context.Context, key *types.APIKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *key
	f.byHash[key.KeyHash] = &cp
	return nil
}

func (f *fakeKeyRepo) GetByHash(ctx context.Context, keyHash string) (*types.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if key, ok := f.byHash[keyHash]; ok {
		cp := *key
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeKeyRepo) Revoke(ctx context.Context, keyID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range f.byHash {
		if key.KeyID == keyID && key.IsActive {
			key.IsActive = false
			now := time.Now().UTC()
			key.RevokedAt = &now
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeKeyRepo) TouchLastUsed(ctx context.Context, keyID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastTouch[keyID] = at
	return nil
}

func (f *fakeKeyRepo) ResolvePermissions(ctx context.Context, roles []string) ([]types.Permission, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	var out []types.Permission
	for _, role := range roles {
		for _, p := range f.grants[role] {
			k := p.Resource + ":" + p.Action
			if !seen[k] {
				seen[k] = true
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (f *fakeKeyRepo) AppendAuthEvent(ctx context.Context, ev *types.AuthEvent) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.mu.Lock()
	f.events = append(f.events, *ev)
	f.mu.Unlock()
	return nil
}

func (f *fakeKeyRepo) eventTypes() []types.AuthEventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.AuthEventType, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev.EventType)
	}
	return out
}
