package filter

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
)

// NamedPredicate is an OData expression template registered under a name.
//
// Placeholders:
//   - `{{field_name}}` is replaced with the OData property of that schema field.
//   - `?` are replaced, in order, with the rendered literals of the call args.
//
// Example, for a Dataverse query function:
//
//	Microsoft.Dynamics.CRM.LastXDays(PropertyName='{{created}}',PropertyValue=?)
type NamedPredicate struct {
	Template string
}

// ODataFunction declares the CEL function used to reference registered predicates:
//
//   - odata("predicate")
//   - odata("predicate", [arg1, arg2, ...])
//
// The function is only used for parsing and type-checking; it is never
// evaluated by CEL.
var ODataFunction = cel.Function("odata",
	cel.Overload("odata_string", []*cel.Type{cel.StringType}, cel.BoolType),
	cel.Overload("odata_string_list", []*cel.Type{cel.StringType, cel.ListType(cel.DynType)}, cel.BoolType),
)

// WithNamedPredicate registers a named predicate template.
func WithNamedPredicate(name string, pred NamedPredicate) EngineOption {
	return func(cfg *engineConfig) {
		if name == "" {
			return
		}
		if cfg.predicates == nil {
			cfg.predicates = make(map[string]NamedPredicate, 4)
		}
		cfg.predicates[name] = pred
	}
}

func lowerNamedPredicate(n *namedPredicateNode, bindings Bindings) (Expr, error) {
	literals := make([]string, 0, len(n.args))
	for _, arg := range n.args {
		raw, err := resolveOperand(arg, bindings)
		if err != nil {
			return nil, err
		}
		literals = append(literals, ValueOf(raw).Literal())
	}

	text, err := replaceArgPlaceholders(n.template, literals)
	if err != nil {
		return nil, fmt.Errorf("predicate %q: %w", n.name, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("predicate %q rendered empty", n.name)
	}
	return RawExpr(text), nil
}

func interpolateFields(template string, schema Schema) (string, error) {
	var out strings.Builder
	n := len(template)

	for i := 0; i < n; {
		if i+1 < n && template[i] == '{' && template[i+1] == '{' {
			end := strings.Index(template[i+2:], "}}")
			if end < 0 {
				return "", fmt.Errorf("unterminated {{...}} placeholder in template")
			}
			name := strings.TrimSpace(template[i+2 : i+2+end])
			if name == "" {
				return "", fmt.Errorf("empty {{...}} placeholder in template")
			}

			field, ok := schema.Field(name)
			if !ok {
				return "", fmt.Errorf("unknown field %q in template placeholder", name)
			}
			out.WriteString(field.property())

			i += 2 + end + 2
			continue
		}

		out.WriteByte(template[i])
		i++
	}

	return out.String(), nil
}

func replaceArgPlaceholders(template string, literals []string) (string, error) {
	if len(literals) == 0 {
		if strings.Contains(template, "?") {
			return "", fmt.Errorf("template contains '?' but no args were provided")
		}
		return template, nil
	}

	var out strings.Builder
	out.Grow(len(template) + len(literals)*8)

	argIdx := 0
	for i := 0; i < len(template); i++ {
		if template[i] == '?' {
			if argIdx >= len(literals) {
				return "", fmt.Errorf("template has more '?' than args (%d)", len(literals))
			}
			out.WriteString(literals[argIdx])
			argIdx++
			continue
		}
		out.WriteByte(template[i])
	}
	if argIdx != len(literals) {
		return "", fmt.Errorf("template has fewer '?' than args (%d)", len(literals))
	}
	return out.String(), nil
}
