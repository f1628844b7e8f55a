package types

// SchemaDocument is the registration payload for a knowledge base: the
// declared graph schema, the embedding configuration, and the source
// mappings that drive extraction.
type SchemaDocument struct {
	KBID      string          `json:"kb_id" yaml:"kb_id"`
	Embedding EmbeddingConfig `json:"embedding" yaml:"embedding"`
	Schema    GraphSchema     `json:"schema" yaml:"schema"`
	Mappings  Mappings        `json:"mappings" yaml:"mappings"`
}

type EmbeddingConfig struct {
	Provider string `json:"provider" yaml:"provider"`
	Chunking string `json:"chunking" yaml:"chunking"`
}

type GraphSchema struct {
	Nodes         []NodeType         `json:"nodes" yaml:"nodes"`
	Relationships []RelationshipType `json:"relationships" yaml:"relationships"`
}

type NodeType struct {
	Label      string   `json:"label" yaml:"label"`
	KeyField   string   `json:"key_field" yaml:"key_field"`
	PropFields []string `json:"prop_fields" yaml:"prop_fields"`
}

type RelationshipType struct {
	Type       string   `json:"type" yaml:"type"`
	FromLabel  string   `json:"from_label" yaml:"from_label"`
	ToLabel    string   `json:"to_label" yaml:"to_label"`
	PropFields []string `json:"prop_fields" yaml:"prop_fields"`
}

type Mappings struct {
	Sources []SourceMapping `json:"sources" yaml:"sources"`
}

// SourceMapping binds one connector source to the schema: how a raw document
// from that source becomes node and relationship fragments.
type SourceMapping struct {
	SourceID        string           `json:"source_id" yaml:"source_id"`
	DocumentType    string           `json:"document_type" yaml:"document_type"`
	NodeExtraction  NodeExtraction   `json:"node_extraction" yaml:"node_extraction"`
	EdgeExtractions []EdgeExtraction `json:"edge_extractions" yaml:"edge_extractions"`
}

// NodeExtraction maps declared prop fields to path expressions evaluated
// against the source document. The declared NodeType's key_field must be one
// of the mapped fields.
type NodeExtraction struct {
	Label string            `json:"label" yaml:"label"`
	Props map[string]string `json:"props" yaml:"props"`
}

type EdgeExtraction struct {
	Type  string            `json:"type" yaml:"type"`
	From  EndpointRef       `json:"from" yaml:"from"`
	To    EndpointRef       `json:"to" yaml:"to"`
	Props map[string]string `json:"props" yaml:"props"`
}

// EndpointRef resolves one relationship endpoint: the node label plus the
// path yielding that node's business key. An array-valued key path fans the
// relationship out, one fragment per element.
type EndpointRef struct {
	Label   string `json:"label" yaml:"label"`
	KeyPath string `json:"key_path" yaml:"key_path"`
}

func (s *GraphSchema) NodeTypeByLabel(label string) *NodeType {
	for i := range s.Nodes {
		if s.Nodes[i].Label == label {
			return &s.Nodes[i]
		}
	}
	return nil
}

func (s *GraphSchema) RelationshipTypeByName(name string) *RelationshipType {
	for i := range s.Relationships {
		if s.Relationships[i].Type == name {
			return &s.Relationships[i]
		}
	}
	return nil
}

func (m *Mappings) SourceByID(sourceID string) *SourceMapping {
	for i := range m.Sources {
		if m.Sources[i].SourceID == sourceID {
			return &m.Sources[i]
		}
	}
	return nil
}
