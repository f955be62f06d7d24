package jsonpath

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	doc := map[string]any{"order": map[string]any{"id": "o-1", "total": 42.5}}
	v, err := Extract(doc, "order.id")
	require.NoError(t, err)
	require.Equal(t, "o-1", v)
}

func TestExtractNotFound(t *testing.T) {
	_, err := Extract(map[string]any{}, "missing.path")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResolveReplacesDollarPaths(t *testing.T) {
	source := map[string]any{"order": map[string]any{"id": "o-1"}}
	tree := map[string]any{
		"order_id": "$.order.id",
		"literal":  "not-a-path",
		"nested":   map[string]any{"again": "$.order.id"},
	}
	out, err := Resolve(tree, source)
	require.NoError(t, err)
	resolved := out.(map[string]any)
	require.Equal(t, "o-1", resolved["order_id"])
	require.Equal(t, "not-a-path", resolved["literal"])
	require.Equal(t, "o-1", resolved["nested"].(map[string]any)["again"])
}

func TestApplyMappingSkipsMissingPaths(t *testing.T) {
	dest, err := ApplyMapping(nil, map[string]string{
		"found":   "order.id",
		"missing": "order.nonexistent",
	}, map[string]any{"order": map[string]any{"id": "o-1"}})
	require.NoError(t, err)
	require.Equal(t, "o-1", dest["found"])
	require.NotContains(t, dest, "missing")
}
