package graph

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/ryandmonk/knowledge-graph-brain/internal/platform/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

// fakeStore simulates just enough of the backing graph for migrator and
// merger tests: named schema objects (idempotent), migration markers, and a
// tiny node/relationship map keyed the way the merger keys them.
type fakeStore struct {
	mu sync.Mutex

	constraints map[string]ConstraintSpec
	indexes     map[string]IndexSpec
	vectors     map[string]VectorIndexSpec

	appliedVersions []int
	batches         [][]Query

	nodes map[string]string // label|kb_id|key -> created_at
	rels  map[string]string // type|kb_id|from|to -> created_at

	lastWriteParams map[string]any

	failConstraint string // constraint name that errors
	failBatch      bool
	pingErr        error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		constraints: map[string]ConstraintSpec{},
		indexes:     map[string]IndexSpec{},
		vectors:     map[string]VectorIndexSpec{},
		nodes:       map[string]string{},
		rels:        map[string]string{},
	}
}

func (f *fakeStore) ExecuteRead(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.Contains(query, "(m:Migration)") {
		rows := make([]map[string]any, 0, len(f.appliedVersions))
		for _, v := range f.appliedVersions {
			rows = append(rows, map[string]any{"version": int64(v)})
		}
		return rows, nil
	}
	return nil, nil
}

func (f *fakeStore) ExecuteWrite(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastWriteParams = params

	now, _ := params["now"].(string)
	switch {
	case strings.HasPrefix(query, "MERGE (n:"):
		label := between(query, "MERGE (n:", " {")
		k := fmt.Sprintf("%s|%v|%v", label, params["kb_id"], params["key"])
		createdAt, exists := f.nodes[k]
		if !exists {
			createdAt = now
			f.nodes[k] = createdAt
		}
		return []map[string]any{{"created": createdAt == now && !exists}}, nil
	case strings.HasPrefix(query, "MATCH (a:"):
		fromLabel := between(query, "MATCH (a:", " {")
		toLabel := between(query, "MATCH (b:", " {")
		fromKey := fmt.Sprintf("%s|%v|%v", fromLabel, params["kb_id"], params["from_key"])
		toKey := fmt.Sprintf("%s|%v|%v", toLabel, params["kb_id"], params["to_key"])
		if _, ok := f.nodes[fromKey]; !ok {
			return nil, nil
		}
		if _, ok := f.nodes[toKey]; !ok {
			return nil, nil
		}
		relType := between(query, "MERGE (a)-[r:", "]->")
		k := fmt.Sprintf("%s|%v|%v|%v", relType, params["kb_id"], params["from_key"], params["to_key"])
		createdAt, exists := f.rels[k]
		if !exists {
			createdAt = now
			f.rels[k] = createdAt
		}
		return []map[string]any{{"created": createdAt == now && !exists}}, nil
	}
	return nil, nil
}

func (f *fakeStore) ExecuteWriteBatch(ctx context.Context, queries []Query) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failBatch {
		return fmt.Errorf("batch write refused")
	}
	f.batches = append(f.batches, queries)
	for _, q := range queries {
		if strings.Contains(q.Text, "(m:Migration {version: $version})") {
			if v, ok := q.Params["version"].(int); ok {
				f.appliedVersions = append(f.appliedVersions, v)
			}
		}
	}
	return nil
}

func (f *fakeStore) CreateConstraint(ctx context.Context, spec ConstraintSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if spec.Name == f.failConstraint {
		return fmt.Errorf("constraint %s refused", spec.Name)
	}
	f.constraints[spec.Name] = spec
	return nil
}

func (f *fakeStore) CreateIndex(ctx context.Context, spec IndexSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexes[spec.Name] = spec
	return nil
}

func (f *fakeStore) CreateVectorIndex(ctx context.Context, spec VectorIndexSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectors[spec.Name] = spec
	return nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	return f.pingErr
}

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
