// Package jsonpath resolves the gjson-style path references that step
// definitions use to pull values out of (and push values into) workflow
// state, and to reach into tool-call replies.
package jsonpath

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrNotFound is returned by Extract when the path does not resolve against doc.
var ErrNotFound = errors.New("jsonpath: path not found")

// Extract resolves path against doc (an arbitrary JSON-able tree) and
// returns the matched value decoded into a Go value (string, float64, bool,
// nil, map[string]any, or []any).
func Extract(doc map[string]any, path string) (any, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("jsonpath: marshal source: %w", err)
	}
	res := gjson.GetBytes(raw, path)
	if !res.Exists() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return res.Value(), nil
}

// Resolve walks tree and replaces every string leaf that begins with "$."
// with the value it resolves to against source, leaving every other leaf
// (including non-matching strings) untouched. It is used to turn a
// SYSTEM_ACTION's declared inputs into a concrete tool-call payload.
func Resolve(tree any, source map[string]any) (any, error) {
	switch v := tree.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			resolved, err := Resolve(val, source)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			resolved, err := Resolve(val, source)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	case string:
		if len(v) < 2 || v[0] != '$' || v[1] != '.' {
			return v, nil
		}
		val, err := Extract(source, v[2:])
		if err != nil {
			return nil, err
		}
		return val, nil
	default:
		return v, nil
	}
}

// Set writes value into doc at path, returning the updated document. doc may
// be nil, in which case a fresh document is created.
func Set(doc map[string]any, path string, value any) (map[string]any, error) {
	raw := []byte("{}")
	if doc != nil {
		var err error
		raw, err = json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("jsonpath: marshal destination: %w", err)
		}
	}
	updated, err := sjson.SetBytes(raw, path, value)
	if err != nil {
		return nil, fmt.Errorf("jsonpath: set %s: %w", path, err)
	}
	var out map[string]any
	if err := json.Unmarshal(updated, &out); err != nil {
		return nil, fmt.Errorf("jsonpath: unmarshal result: %w", err)
	}
	return out, nil
}

// ApplyMapping resolves every path in mapping against source and writes the
// resolved values into dest under their mapping key, returning the updated
// destination. A path that fails to resolve is skipped rather than failing
// the whole mapping, matching the tolerant key-copy semantics of the step
// handlers.
func ApplyMapping(dest map[string]any, mapping map[string]string, source map[string]any) (map[string]any, error) {
	if dest == nil {
		dest = map[string]any{}
	}
	for key, path := range mapping {
		val, err := Extract(source, path)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		dest, err = Set(dest, key, val)
		if err != nil {
			return nil, err
		}
	}
	return dest, nil
}
