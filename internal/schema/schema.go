package schema

import (
	"encoding/json"
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/ryandmonk/knowledge-graph-brain/internal/mapping"
	"github.com/ryandmonk/knowledge-graph-brain/internal/types"
)

// ValidationError reports the section and field of a schema document that
// failed validation. Registration applies nothing when one is returned.
type ValidationError struct {
	Section string
	Field   string
	Reason  string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("schema validation: %s.%s: %s", e.Section, e.Field, e.Reason)
	}
	return fmt.Sprintf("schema validation: %s: %s", e.Section, e.Reason)
}

// Labels, relationship types and property fields end up interpolated into
// Cypher text (labels cannot be query parameters), so they are restricted to
// identifier-safe shapes up front.
var identPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

func SafeIdent(s string) bool {
	return identPattern.MatchString(s)
}

// The persistence layer stamps identity and provenance properties on every
// node and relationship it writes. A tenant field with one of these names
// would silently overwrite that stamp, so they are rejected at registration.
var reservedFields = map[string]bool{
	"kb_id":      true,
	"key":        true,
	"source_id":  true,
	"run_id":     true,
	"created_at": true,
	"updated_at": true,
	"embedding":  true,
}

func ReservedField(s string) bool {
	return reservedFields[s]
}

func Parse(raw []byte) (*types.SchemaDocument, error) {
	var doc types.SchemaDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &ValidationError{Section: "document", Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return &doc, nil
}

func ParseYAML(raw []byte) (*types.SchemaDocument, error) {
	var doc types.SchemaDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, &ValidationError{Section: "document", Reason: fmt.Sprintf("invalid YAML: %v", err)}
	}
	return &doc, nil
}

func Validate(doc *types.SchemaDocument) error {
	if doc == nil {
		return &ValidationError{Section: "document", Reason: "empty document"}
	}
	if doc.KBID == "" {
		return &ValidationError{Section: "document", Field: "kb_id", Reason: "required"}
	}
	if len(doc.Schema.Nodes) == 0 {
		return &ValidationError{Section: "schema", Field: "nodes", Reason: "at least one node type required"}
	}

	seenLabels := map[string]bool{}
	for i, nt := range doc.Schema.Nodes {
		section := fmt.Sprintf("schema.nodes[%d]", i)
		if nt.Label == "" {
			return &ValidationError{Section: section, Field: "label", Reason: "required"}
		}
		if !SafeIdent(nt.Label) {
			return &ValidationError{Section: section, Field: "label", Reason: fmt.Sprintf("%q is not a valid label", nt.Label)}
		}
		if seenLabels[nt.Label] {
			return &ValidationError{Section: section, Field: "label", Reason: fmt.Sprintf("duplicate label %q", nt.Label)}
		}
		seenLabels[nt.Label] = true
		if nt.KeyField == "" {
			return &ValidationError{Section: section, Field: "key_field", Reason: "required"}
		}
		if !SafeIdent(nt.KeyField) {
			return &ValidationError{Section: section, Field: "key_field", Reason: fmt.Sprintf("%q is not a valid field name", nt.KeyField)}
		}
		if ReservedField(nt.KeyField) {
			return &ValidationError{Section: section, Field: "key_field", Reason: fmt.Sprintf("%q is a reserved field name", nt.KeyField)}
		}
		for _, f := range nt.PropFields {
			if !SafeIdent(f) {
				return &ValidationError{Section: section, Field: "prop_fields", Reason: fmt.Sprintf("%q is not a valid field name", f)}
			}
			if ReservedField(f) {
				return &ValidationError{Section: section, Field: "prop_fields", Reason: fmt.Sprintf("%q is a reserved field name", f)}
			}
		}
	}

	seenRels := map[string]bool{}
	for i, rt := range doc.Schema.Relationships {
		section := fmt.Sprintf("schema.relationships[%d]", i)
		if rt.Type == "" {
			return &ValidationError{Section: section, Field: "type", Reason: "required"}
		}
		if !SafeIdent(rt.Type) {
			return &ValidationError{Section: section, Field: "type", Reason: fmt.Sprintf("%q is not a valid relationship type", rt.Type)}
		}
		if seenRels[rt.Type] {
			return &ValidationError{Section: section, Field: "type", Reason: fmt.Sprintf("duplicate relationship type %q", rt.Type)}
		}
		seenRels[rt.Type] = true
		if !seenLabels[rt.FromLabel] {
			return &ValidationError{Section: section, Field: "from_label", Reason: fmt.Sprintf("%q is not a declared node type", rt.FromLabel)}
		}
		if !seenLabels[rt.ToLabel] {
			return &ValidationError{Section: section, Field: "to_label", Reason: fmt.Sprintf("%q is not a declared node type", rt.ToLabel)}
		}
		for _, f := range rt.PropFields {
			if !SafeIdent(f) {
				return &ValidationError{Section: section, Field: "prop_fields", Reason: fmt.Sprintf("%q is not a valid field name", f)}
			}
			if ReservedField(f) {
				return &ValidationError{Section: section, Field: "prop_fields", Reason: fmt.Sprintf("%q is a reserved field name", f)}
			}
		}
	}

	seenSources := map[string]bool{}
	for i, sm := range doc.Mappings.Sources {
		section := fmt.Sprintf("mappings.sources[%d]", i)
		if sm.SourceID == "" {
			return &ValidationError{Section: section, Field: "source_id", Reason: "required"}
		}
		if seenSources[sm.SourceID] {
			return &ValidationError{Section: section, Field: "source_id", Reason: fmt.Sprintf("duplicate source_id %q", sm.SourceID)}
		}
		seenSources[sm.SourceID] = true

		nt := doc.Schema.NodeTypeByLabel(sm.NodeExtraction.Label)
		if nt == nil {
			return &ValidationError{Section: section, Field: "node_extraction.label", Reason: fmt.Sprintf("%q is not a declared node type", sm.NodeExtraction.Label)}
		}
		if _, ok := sm.NodeExtraction.Props[nt.KeyField]; !ok {
			return &ValidationError{Section: section, Field: "node_extraction.props", Reason: fmt.Sprintf("missing mapping for key field %q", nt.KeyField)}
		}
		for field, path := range sm.NodeExtraction.Props {
			if !SafeIdent(field) {
				return &ValidationError{Section: section, Field: "node_extraction.props", Reason: fmt.Sprintf("%q is not a valid field name", field)}
			}
			if ReservedField(field) {
				return &ValidationError{Section: section, Field: "node_extraction.props", Reason: fmt.Sprintf("%q is a reserved field name", field)}
			}
			if err := mapping.ValidatePath(path); err != nil {
				return &ValidationError{Section: section, Field: "node_extraction.props", Reason: err.Error()}
			}
		}

		for j, ee := range sm.EdgeExtractions {
			field := fmt.Sprintf("edge_extractions[%d]", j)
			rt := doc.Schema.RelationshipTypeByName(ee.Type)
			if rt == nil {
				return &ValidationError{Section: section, Field: field + ".type", Reason: fmt.Sprintf("%q is not a declared relationship type", ee.Type)}
			}
			if doc.Schema.NodeTypeByLabel(ee.From.Label) == nil {
				return &ValidationError{Section: section, Field: field + ".from.label", Reason: fmt.Sprintf("%q is not a declared node type", ee.From.Label)}
			}
			if doc.Schema.NodeTypeByLabel(ee.To.Label) == nil {
				return &ValidationError{Section: section, Field: field + ".to.label", Reason: fmt.Sprintf("%q is not a declared node type", ee.To.Label)}
			}
			if ee.From.KeyPath == "" {
				return &ValidationError{Section: section, Field: field + ".from.key_path", Reason: "required"}
			}
			if err := mapping.ValidatePath(ee.From.KeyPath); err != nil {
				return &ValidationError{Section: section, Field: field + ".from.key_path", Reason: err.Error()}
			}
			if ee.To.KeyPath == "" {
				return &ValidationError{Section: section, Field: field + ".to.key_path", Reason: "required"}
			}
			if err := mapping.ValidatePath(ee.To.KeyPath); err != nil {
				return &ValidationError{Section: section, Field: field + ".to.key_path", Reason: err.Error()}
			}
			for pf, path := range ee.Props {
				if !SafeIdent(pf) {
					return &ValidationError{Section: section, Field: field + ".props", Reason: fmt.Sprintf("%q is not a valid field name", pf)}
				}
				if ReservedField(pf) {
					return &ValidationError{Section: section, Field: field + ".props", Reason: fmt.Sprintf("%q is a reserved field name", pf)}
				}
				if err := mapping.ValidatePath(path); err != nil {
					return &ValidationError{Section: section, Field: field + ".props", Reason: err.Error()}
				}
			}
		}
	}

	return nil
}
