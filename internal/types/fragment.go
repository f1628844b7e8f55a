package types

// NodeFragment is a transient, unsaved node produced by the mapping engine.
// Provenance is attached downstream at persistence time, never here.
type NodeFragment struct {
	Label      string         `json:"label"`
	Key        any            `json:"key"`
	Properties map[string]any `json:"properties"`
}

type FragmentRef struct {
	Label string `json:"label"`
	Key   any    `json:"key"`
}

// RelFragment may reference nodes not created in the same batch; the
// persistence layer resolves endpoints by business key.
type RelFragment struct {
	Type       string         `json:"type"`
	From       FragmentRef    `json:"from"`
	To         FragmentRef    `json:"to"`
	Properties map[string]any `json:"properties"`
}

// MergeResult reports one persistence call. Created counts only cover the
// create path of each upsert; processed counts include updates.
type MergeResult struct {
	CreatedNodes   int `json:"created_nodes"`
	CreatedRels    int `json:"created_rels"`
	ProcessedNodes int `json:"processed_nodes"`
	ProcessedRels  int `json:"processed_rels"`
}
