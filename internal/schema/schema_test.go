package schema

import (
	"errors"
	"strings"
	"testing"

	"github.com/ryandmonk/knowledge-graph-brain/internal/types"
)

func validDoc() *types.SchemaDocument {
	return &types.SchemaDocument{
		KBID: "retail",
		Schema: types.GraphSchema{
			Nodes: []types.NodeType{
				{Label: "Order", KeyField: "order_id", PropFields: []string{"order_id", "total"}},
				{Label: "Product", KeyField: "sku", PropFields: []string{"sku", "name"}},
			},
			Relationships: []types.RelationshipType{
				{Type: "CONTAINS", FromLabel: "Order", ToLabel: "Product", PropFields: []string{"quantity"}},
			},
		},
		Mappings: types.Mappings{
			Sources: []types.SourceMapping{
				{
					SourceID:     "orders",
					DocumentType: "order",
					NodeExtraction: types.NodeExtraction{
						Label: "Order",
						Props: map[string]string{"order_id": "$.id", "total": "$.total"},
					},
					EdgeExtractions: []types.EdgeExtraction{
						{
							Type: "CONTAINS",
							From: types.EndpointRef{Label: "Order", KeyPath: "$.id"},
							To:   types.EndpointRef{Label: "Product", KeyPath: "$.items[*].sku"},
						},
					},
				},
			},
		},
	}
}

func TestValidateAccepts(t *testing.T) {
	if err := Validate(validDoc()); err != nil {
		t.Fatalf("valid document rejected: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*types.SchemaDocument)
		wantSub string
	}{
		{"missing kb_id", func(d *types.SchemaDocument) { d.KBID = "" }, "kb_id"},
		{"no node types", func(d *types.SchemaDocument) { d.Schema.Nodes = nil }, "nodes"},
		{"unsafe label", func(d *types.SchemaDocument) { d.Schema.Nodes[0].Label = "Bad Label" }, "label"},
		{"duplicate label", func(d *types.SchemaDocument) { d.Schema.Nodes[1].Label = "Order" }, "duplicate"},
		{"missing key field", func(d *types.SchemaDocument) { d.Schema.Nodes[0].KeyField = "" }, "key_field"},
		{"unsafe key field", func(d *types.SchemaDocument) { d.Schema.Nodes[0].KeyField = "1bad" }, "key_field"},
		{"undeclared rel endpoint", func(d *types.SchemaDocument) { d.Schema.Relationships[0].ToLabel = "Ghost" }, "to_label"},
		{"undeclared mapping label", func(d *types.SchemaDocument) { d.Mappings.Sources[0].NodeExtraction.Label = "Ghost" }, "node_extraction.label"},
		{"key field unmapped", func(d *types.SchemaDocument) {
			delete(d.Mappings.Sources[0].NodeExtraction.Props, "order_id")
		}, "key field"},
		{"duplicate source_id", func(d *types.SchemaDocument) {
			d.Mappings.Sources = append(d.Mappings.Sources, d.Mappings.Sources[0])
		}, "duplicate source_id"},
		{"undeclared edge type", func(d *types.SchemaDocument) {
			d.Mappings.Sources[0].EdgeExtractions[0].Type = "GHOST_REL"
		}, "relationship type"},
		{"missing edge key path", func(d *types.SchemaDocument) {
			d.Mappings.Sources[0].EdgeExtractions[0].To.KeyPath = ""
		}, "key_path"},
		{"reserved key field", func(d *types.SchemaDocument) {
			d.Schema.Nodes[0].KeyField = "kb_id"
		}, "reserved"},
		{"reserved node prop field", func(d *types.SchemaDocument) {
			d.Schema.Nodes[0].PropFields = append(d.Schema.Nodes[0].PropFields, "created_at")
		}, "reserved"},
		{"reserved relationship prop field", func(d *types.SchemaDocument) {
			d.Schema.Relationships[0].PropFields = append(d.Schema.Relationships[0].PropFields, "run_id")
		}, "reserved"},
		{"reserved mapping prop", func(d *types.SchemaDocument) {
			d.Mappings.Sources[0].NodeExtraction.Props["created_at"] = "$.created_at"
		}, "reserved"},
		{"bare field name as path", func(d *types.SchemaDocument) {
			d.Mappings.Sources[0].NodeExtraction.Props["total"] = "total"
		}, "must start with $."},
		{"unterminated edge key path", func(d *types.SchemaDocument) {
			d.Mappings.Sources[0].EdgeExtractions[0].To.KeyPath = "$.items["
		}, "unterminated"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := validDoc()
			tc.mutate(doc)
			err := Validate(doc)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got=%T", err)
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("error %q does not mention %q", err.Error(), tc.wantSub)
			}
		})
	}
}

func TestParseYAML(t *testing.T) {
	raw := []byte(`
kb_id: retail
schema:
  nodes:
    - label: Order
      key_field: order_id
      prop_fields: [order_id, total]
mappings:
  sources:
    - source_id: orders
      document_type: order
      node_extraction:
        label: Order
        props:
          order_id: "$.id"
          total: "$.total"
`)
	doc, err := ParseYAML(raw)
	if err != nil {
		t.Fatalf("parse yaml: %v", err)
	}
	if doc.KBID != "retail" {
		t.Fatalf("kb_id: want=retail got=%q", doc.KBID)
	}
	if err := Validate(doc); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if doc.Mappings.Sources[0].NodeExtraction.Props["order_id"] != "$.id" {
		t.Fatalf("props: got=%v", doc.Mappings.Sources[0].NodeExtraction.Props)
	}
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	if _, err := Parse([]byte("{not json")); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestSafeIdent(t *testing.T) {
	good := []string{"Order", "order_id", "Product2", "X"}
	bad := []string{"", "1bad", "bad-name", "bad name", "bad.name", "`backtick`"}
	for _, s := range good {
		if !SafeIdent(s) {
			t.Fatalf("SafeIdent(%q): want=true", s)
		}
	}
	for _, s := range bad {
		if SafeIdent(s) {
			t.Fatalf("SafeIdent(%q): want=false", s)
		}
	}
}
