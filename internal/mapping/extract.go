package mapping

import (
	"fmt"
	"sort"

	"github.com/ryandmonk/knowledge-graph-brain/internal/types"
)

// ExtractionError records one fragment that could not be produced. The rest
// of the document's fragments are unaffected.
type ExtractionError struct {
	Kind   string // "node" or "edge"
	Target string // node label or relationship type
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction: %s %s: %s", e.Kind, e.Target, e.Reason)
}

type Result struct {
	Nodes         []types.NodeFragment
	Relationships []types.RelFragment
	Errors        []ExtractionError
}

// Extract applies one source mapping to one decoded document. Pure function:
// no I/O, no provenance, deterministic and order-stable for a given input.
func Extract(doc map[string]any, m types.SourceMapping, s *types.GraphSchema) Result {
	var res Result

	nt := s.NodeTypeByLabel(m.NodeExtraction.Label)
	if nt == nil {
		res.Errors = append(res.Errors, ExtractionError{
			Kind: "node", Target: m.NodeExtraction.Label,
			Reason: "label not declared in schema",
		})
	} else {
		node, errs := extractNode(doc, m.NodeExtraction, nt)
		res.Errors = append(res.Errors, errs...)
		if node != nil {
			res.Nodes = append(res.Nodes, *node)
		}
	}

	for _, ee := range m.EdgeExtractions {
		rels, errs := extractEdges(doc, ee)
		res.Relationships = append(res.Relationships, rels...)
		res.Errors = append(res.Errors, errs...)
	}

	return res
}

func extractNode(doc map[string]any, ex types.NodeExtraction, nt *types.NodeType) (*types.NodeFragment, []ExtractionError) {
	props := map[string]any{}
	var errs []ExtractionError

	// Iterate fields in sorted order so path errors surface deterministically.
	fields := make([]string, 0, len(ex.Props))
	for f := range ex.Props {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, field := range fields {
		v, ok, err := evalPath(doc, ex.Props[field])
		if err != nil {
			errs = append(errs, ExtractionError{Kind: "node", Target: ex.Label, Reason: err.Error()})
			continue
		}
		if !ok {
			continue // unresolved property, not a failure
		}
		props[field] = v
	}

	key, hasKey := props[nt.KeyField]
	if !hasKey || key == nil {
		errs = append(errs, ExtractionError{
			Kind: "node", Target: ex.Label,
			Reason: fmt.Sprintf("key field %q did not resolve", nt.KeyField),
		})
		return nil, errs
	}
	if _, isArr := key.([]any); isArr {
		errs = append(errs, ExtractionError{
			Kind: "node", Target: ex.Label,
			Reason: fmt.Sprintf("key field %q resolved to an array", nt.KeyField),
		})
		return nil, errs
	}

	return &types.NodeFragment{Label: ex.Label, Key: key, Properties: props}, errs
}

// extractEdges resolves both endpoints; an array-valued key path fans out one
// fragment per element, zip-joining array-valued property paths by index.
func extractEdges(doc map[string]any, ee types.EdgeExtraction) ([]types.RelFragment, []ExtractionError) {
	var errs []ExtractionError

	fromVal, fromOK, err := evalPath(doc, ee.From.KeyPath)
	if err != nil {
		return nil, []ExtractionError{{Kind: "edge", Target: ee.Type, Reason: err.Error()}}
	}
	toVal, toOK, err := evalPath(doc, ee.To.KeyPath)
	if err != nil {
		return nil, []ExtractionError{{Kind: "edge", Target: ee.Type, Reason: err.Error()}}
	}
	if !fromOK || !toOK {
		return nil, []ExtractionError{{
			Kind: "edge", Target: ee.Type,
			Reason: "endpoint key path did not resolve",
		}}
	}

	fromKeys, fromArr := asSlice(fromVal)
	toKeys, toArr := asSlice(toVal)

	// Fan-out arity: the longest array-valued endpoint; scalars broadcast.
	arity := 1
	if fromArr {
		arity = len(fromKeys)
	}
	if toArr && len(toKeys) > arity {
		arity = len(toKeys)
	}

	// Property paths are evaluated once; arrays zip by index, scalars
	// broadcast, unresolved paths are omitted everywhere.
	propFields := make([]string, 0, len(ee.Props))
	for f := range ee.Props {
		propFields = append(propFields, f)
	}
	sort.Strings(propFields)

	propVals := map[string]any{}
	propIsArr := map[string]bool{}
	for _, field := range propFields {
		v, ok, err := evalPath(doc, ee.Props[field])
		if err != nil {
			errs = append(errs, ExtractionError{Kind: "edge", Target: ee.Type, Reason: err.Error()})
			continue
		}
		if !ok {
			continue
		}
		propVals[field] = v
		_, propIsArr[field] = v.([]any)
	}

	var rels []types.RelFragment
	for i := 0; i < arity; i++ {
		fromKey, ok := pick(fromKeys, fromArr, i)
		if !ok {
			errs = append(errs, ExtractionError{
				Kind: "edge", Target: ee.Type,
				Reason: fmt.Sprintf("from key array has no element %d (length mismatch)", i),
			})
			continue
		}
		toKey, ok := pick(toKeys, toArr, i)
		if !ok {
			errs = append(errs, ExtractionError{
				Kind: "edge", Target: ee.Type,
				Reason: fmt.Sprintf("to key array has no element %d (length mismatch)", i),
			})
			continue
		}

		props := map[string]any{}
		mismatch := false
		for _, field := range propFields {
			v, present := propVals[field]
			if !present {
				continue
			}
			if propIsArr[field] {
				arr := v.([]any)
				if i >= len(arr) || arr[i] == nil {
					errs = append(errs, ExtractionError{
						Kind: "edge", Target: ee.Type,
						Reason: fmt.Sprintf("property %q array has no element %d (length mismatch)", field, i),
					})
					mismatch = true
					break
				}
				props[field] = arr[i]
			} else {
				props[field] = v
			}
		}
		if mismatch {
			continue
		}

		rels = append(rels, types.RelFragment{
			Type:       ee.Type,
			From:       types.FragmentRef{Label: ee.From.Label, Key: fromKey},
			To:         types.FragmentRef{Label: ee.To.Label, Key: toKey},
			Properties: props,
		})
	}

	return rels, errs
}

func asSlice(v any) ([]any, bool) {
	if arr, ok := v.([]any); ok {
		return arr, true
	}
	return []any{v}, false
}

func pick(vals []any, isArr bool, i int) (any, bool) {
	if !isArr {
		return vals[0], true
	}
	if i >= len(vals) || vals[i] == nil {
		return nil, false
	}
	return vals[i], true
}
