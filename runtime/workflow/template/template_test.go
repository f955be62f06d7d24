package template

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFreeVars(t *testing.T) {
	e := New()
	vars := e.FreeVars("Hello {{ name }}, your order {{ order_id }} is ready. {{ name }}")
	require.Equal(t, []string{"name", "order_id"}, vars)
}

func TestRenderMissingVar(t *testing.T) {
	e := New()
	_, err := e.Render("Hello {{ name }}", map[string]any{})
	require.ErrorIs(t, err, ErrMissingVars)
}

func TestRenderSubstitutes(t *testing.T) {
	e := New()
	out, err := e.Render("Hello {{ name }}!", map[string]any{"name": "Ada"})
	require.NoError(t, err)
	require.Equal(t, "Hello Ada!", out)
}

func TestEvalBoolTrue(t *testing.T) {
	e := New()
	ok, err := e.EvalBool(`{{ selected }}=='x'`, map[string]any{"selected": "x"})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvalBoolFalse(t *testing.T) {
	e := New()
	ok, err := e.EvalBool(`{{ selected }}=='x'`, map[string]any{"selected": "y"})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvalBoolMissingVar(t *testing.T) {
	e := New()
	_, err := e.EvalBool(`{{ selected }}=='x'`, map[string]any{})
	require.ErrorIs(t, err, ErrMissingVars)
}

func TestEvalBoolCompileError(t *testing.T) {
	e := New()
	_, err := e.EvalBool(`{{ selected }} ===`, map[string]any{"selected": "x"})
	require.ErrorIs(t, err, ErrConditionEval)
}
