package mapping

import (
	"fmt"
	"strconv"
	"strings"
)

// Path expressions are the subset the schema language allows: `$.field`,
// `$.nested.field`, `$.items[*].sku`, `$.items[0].sku`.
type pathSeg struct {
	field    string
	index    int // -1 when no index
	wildcard bool
}

// ValidatePath checks a path expression for syntax errors without
// evaluating it, so malformed mappings fail at registration rather than
// once per ingested document.
func ValidatePath(expr string) error {
	_, err := parsePath(expr)
	return err
}

func parsePath(expr string) ([]pathSeg, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "$" {
		return nil, nil
	}
	if !strings.HasPrefix(trimmed, "$.") {
		return nil, fmt.Errorf("path %q must start with $.", expr)
	}
	parts := strings.Split(trimmed[2:], ".")
	segs := make([]pathSeg, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("path %q has an empty segment", expr)
		}
		seg := pathSeg{index: -1}
		if open := strings.Index(part, "["); open >= 0 {
			if !strings.HasSuffix(part, "]") {
				return nil, fmt.Errorf("path %q has an unterminated index", expr)
			}
			idx := part[open+1 : len(part)-1]
			seg.field = part[:open]
			if idx == "*" {
				seg.wildcard = true
			} else {
				n, err := strconv.Atoi(idx)
				if err != nil || n < 0 {
					return nil, fmt.Errorf("path %q has an invalid index %q", expr, idx)
				}
				seg.index = n
			}
		} else {
			seg.field = part
		}
		if seg.field == "" {
			return nil, fmt.Errorf("path %q has an empty field", expr)
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

// evalPath resolves a path against a decoded JSON document. Unresolved paths
// report ok=false rather than failing. A wildcard yields a slice with one
// entry per array element; elements whose tail does not resolve are nil.
func evalPath(doc any, expr string) (any, bool, error) {
	segs, err := parsePath(expr)
	if err != nil {
		return nil, false, err
	}
	v, ok := evalSegs(doc, segs)
	return v, ok, nil
}

func evalSegs(cur any, segs []pathSeg) (any, bool) {
	if len(segs) == 0 {
		return cur, cur != nil
	}
	seg := segs[0]
	m, ok := cur.(map[string]any)
	if !ok {
		return nil, false
	}
	v, present := m[seg.field]
	if !present || v == nil {
		return nil, false
	}
	switch {
	case seg.wildcard:
		arr, ok := v.([]any)
		if !ok {
			return nil, false
		}
		out := make([]any, len(arr))
		for i, elem := range arr {
			if r, ok := evalSegs(elem, segs[1:]); ok {
				out[i] = r
			}
		}
		return out, true
	case seg.index >= 0:
		arr, ok := v.([]any)
		if !ok || seg.index >= len(arr) {
			return nil, false
		}
		return evalSegs(arr[seg.index], segs[1:])
	default:
		return evalSegs(v, segs[1:])
	}
}
