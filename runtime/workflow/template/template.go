// Package template renders the `{{ var }}` prompt and condition templates
// used by workflow step definitions, and evaluates the boolean conditions
// that drive orchestration-rule routing.
package template

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/google/cel-go/cel"
	"github.com/mbleigh/raymond"
)

// ErrMissingVars is returned by Render when the template references a
// variable not present in the supplied scope.
var ErrMissingVars = errors.New("template: missing variables")

// ErrConditionEval is returned by EvalBool when a condition fails to compile
// or evaluate, or does not reduce to a boolean.
var ErrConditionEval = errors.New("template: condition evaluation failed")

var placeholderRE = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_.]*)\s*\}\}`)

// Evaluator renders templates and evaluates boolean conditions against a
// workflow state scope. A zero Evaluator is ready to use.
type Evaluator struct{}

// New returns a ready-to-use Evaluator.
func New() *Evaluator {
	return &Evaluator{}
}

// FreeVars returns the distinct `{{ var }}` placeholder names referenced by
// tmpl, in first-occurrence order. Only the simple named-substitution syntax
// this spec's templates use is supported; raymond's block/helper syntax is
// not inspected.
func (e *Evaluator) FreeVars(tmpl string) []string {
	matches := placeholderRE.FindAllStringSubmatch(tmpl, -1)
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		name := m[1]
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// Render substitutes every `{{ var }}` placeholder in tmpl against scope.
// It fails closed: any free variable absent from scope is reported via
// ErrMissingVars rather than rendered as empty.
func (e *Evaluator) Render(tmpl string, scope map[string]any) (string, error) {
	var missing []string
	for _, name := range e.FreeVars(tmpl) {
		if _, ok := scope[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %v", ErrMissingVars, missing)
	}
	out, err := raymond.Render(tmpl, scope)
	if err != nil {
		return "", fmt.Errorf("template: render: %w", err)
	}
	return out, nil
}

// EvalBool renders condition's `{{ var }}` placeholders as CEL literals
// against scope, then compiles and evaluates the resulting expression.
// Substitution happens here rather than via Render: an orchestration-rule
// condition like `{{ selected }}=='x'` wraps only the variable in braces,
// leaving the comparison as bare CEL syntax around it, so the placeholder
// must become a properly quoted CEL literal (not Render's raw text
// substitution) for the expression to compile at all. Condition evaluation
// runs inside CEL's sandboxed environment rather than a general-purpose
// interpreter, so a malformed workflow definition cannot reach arbitrary
// host state.
func (e *Evaluator) EvalBool(condition string, scope map[string]any) (bool, error) {
	literal, err := substituteLiterals(condition, scope)
	if err != nil {
		return false, err
	}

	env, err := cel.NewEnv()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrConditionEval, err)
	}
	ast, issues := env.Compile(literal)
	if issues != nil && issues.Err() != nil {
		return false, fmt.Errorf("%w: %v", ErrConditionEval, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrConditionEval, err)
	}
	out, _, err := prg.Eval(map[string]any{})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrConditionEval, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: condition %q did not evaluate to a boolean", ErrConditionEval, condition)
	}
	return b, nil
}

// substituteLiterals replaces every `{{ var }}` placeholder in tmpl with the
// CEL literal encoding of scope[var], failing closed on a variable missing
// from scope.
func substituteLiterals(tmpl string, scope map[string]any) (string, error) {
	var missing []string
	out := placeholderRE.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := placeholderRE.FindStringSubmatch(match)[1]
		val, ok := scope[name]
		if !ok {
			missing = append(missing, name)
			return match
		}
		return celLiteral(val)
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %v", ErrMissingVars, missing)
	}
	return out, nil
}

func celLiteral(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(t)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 64)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return strconv.Quote(fmt.Sprint(t))
	}
}
