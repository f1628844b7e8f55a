package graph

import (
	"context"
	"strings"
	"testing"

	"github.com/ryandmonk/knowledge-graph-brain/internal/types"
)

func TestMergeNodeCreatedThenUpdated(t *testing.T) {
	store := newFakeStore()
	m := NewMerger(store, testLogger(t))
	node := types.NodeFragment{Label: "Order", Key: "o-1", Properties: map[string]any{"order_id": "o-1", "total": 5.0}}

	first, errs := m.MergeNodesAndRels(context.Background(), "retail", "orders", "run-1", []types.NodeFragment{node}, nil)
	if len(errs) != 0 {
		t.Fatalf("errors: want=0 got=%v", errs)
	}
	if first.CreatedNodes != 1 || first.ProcessedNodes != 1 {
		t.Fatalf("first merge: created=%d processed=%d", first.CreatedNodes, first.ProcessedNodes)
	}

	second, errs := m.MergeNodesAndRels(context.Background(), "retail", "orders", "run-2", []types.NodeFragment{node}, nil)
	if len(errs) != 0 {
		t.Fatalf("errors: want=0 got=%v", errs)
	}
	if second.CreatedNodes != 0 || second.ProcessedNodes != 1 {
		t.Fatalf("second merge: created=%d processed=%d", second.CreatedNodes, second.ProcessedNodes)
	}
}

func TestMergeStripsReservedProperties(t *testing.T) {
	store := newFakeStore()
	m := NewMerger(store, testLogger(t))
	node := types.NodeFragment{Label: "Document", Key: "d-1", Properties: map[string]any{
		"doc_id":     "d-1",
		"title":      "Hello",
		"created_at": "2020-01-01T00:00:00Z",
		"kb_id":      "spoofed",
		"run_id":     "spoofed",
	}}

	res, errs := m.MergeNodesAndRels(context.Background(), "docs-kb", "cms", "run-1", []types.NodeFragment{node}, nil)
	if len(errs) != 0 {
		t.Fatalf("errors: want=0 got=%v", errs)
	}
	// A document-supplied created_at must not defeat create detection.
	if res.CreatedNodes != 1 {
		t.Fatalf("created_nodes: want=1 got=%d", res.CreatedNodes)
	}

	props, _ := store.lastWriteParams["props"].(map[string]any)
	for _, reserved := range []string{"created_at", "kb_id", "run_id"} {
		if _, ok := props[reserved]; ok {
			t.Fatalf("reserved property %q reached the store", reserved)
		}
	}
	for _, kept := range []string{"doc_id", "title"} {
		if _, ok := props[kept]; !ok {
			t.Fatalf("tenant property %q was dropped", kept)
		}
	}
}

func TestMergeRelWithBothEndpoints(t *testing.T) {
	store := newFakeStore()
	m := NewMerger(store, testLogger(t))
	nodes := []types.NodeFragment{
		{Label: "Order", Key: "o-1", Properties: map[string]any{"order_id": "o-1"}},
		{Label: "Product", Key: "p-1", Properties: map[string]any{"sku": "p-1"}},
	}
	rels := []types.RelFragment{
		{
			Type: "CONTAINS",
			From: types.FragmentRef{Label: "Order", Key: "o-1"},
			To:   types.FragmentRef{Label: "Product", Key: "p-1"},
		},
	}

	result, errs := m.MergeNodesAndRels(context.Background(), "retail", "orders", "run-1", nodes, rels)
	if len(errs) != 0 {
		t.Fatalf("errors: want=0 got=%v", errs)
	}
	if result.CreatedRels != 1 || result.ProcessedRels != 1 {
		t.Fatalf("rels: created=%d processed=%d", result.CreatedRels, result.ProcessedRels)
	}

	// Same relationship again: processed but not created.
	again, errs := m.MergeNodesAndRels(context.Background(), "retail", "orders", "run-2", nil, rels)
	if len(errs) != 0 {
		t.Fatalf("errors: want=0 got=%v", errs)
	}
	if again.CreatedRels != 0 || again.ProcessedRels != 1 {
		t.Fatalf("repeat rels: created=%d processed=%d", again.CreatedRels, again.ProcessedRels)
	}
}

func TestMergeRelMissingEndpointRecorded(t *testing.T) {
	store := newFakeStore()
	m := NewMerger(store, testLogger(t))
	nodes := []types.NodeFragment{
		{Label: "Order", Key: "o-1", Properties: map[string]any{"order_id": "o-1"}},
	}
	rels := []types.RelFragment{
		{
			Type: "CONTAINS",
			From: types.FragmentRef{Label: "Order", Key: "o-1"},
			To:   types.FragmentRef{Label: "Product", Key: "ghost"},
		},
	}

	result, errs := m.MergeNodesAndRels(context.Background(), "retail", "orders", "run-1", nodes, rels)
	if result.ProcessedRels != 0 || result.CreatedRels != 0 {
		t.Fatalf("rels: created=%d processed=%d", result.CreatedRels, result.ProcessedRels)
	}
	if len(errs) != 1 {
		t.Fatalf("errors: want=1 got=%v", errs)
	}
	if errs[0].Stage != types.RunErrorStagePersistence {
		t.Fatalf("stage: want=persistence got=%q", errs[0].Stage)
	}
	if !strings.Contains(errs[0].Message, "not found") {
		t.Fatalf("message should name the missing endpoint: %q", errs[0].Message)
	}
	// Nodes were still merged despite the bad relationship.
	if result.ProcessedNodes != 1 {
		t.Fatalf("nodes: processed=%d", result.ProcessedNodes)
	}
}

func TestQuoteIdentStripsBackticks(t *testing.T) {
	if got := quoteIdent("Order"); got != "`Order`" {
		t.Fatalf("quoteIdent: got=%q", got)
	}
	if got := quoteIdent("Bad`Label"); got != "`BadLabel`" {
		t.Fatalf("quoteIdent with backtick: got=%q", got)
	}
}
